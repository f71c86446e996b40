// Package gridworld implements a 2D multi-room gridworld environment
package gridworld

import (
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/explorl/explorl/environment"
	"github.com/explorl/explorl/timestep"
)

// Actions available in the gridworld
const (
	Up int = iota
	Down
	Left
	Right
	numActions
)

// GridWorld is a row of rooms separated by walls, each wall pierced by
// a single door at a random height. The agent starts in the top-left
// corner of the first room and receives a reward of 1 for reaching the
// goal in the last room, which truly terminates the episode. Episodes
// that reach the step limit are truncated, not terminated.
//
// Observations are a one-hot encoding of the agent position over the
// full grid, which keeps visitation counting and linear models exact.
type GridWorld struct {
	rows, cols int
	roomSize   int
	numRooms   int
	stepLimit  int

	walls    []bool // rows*cols, true where movement is blocked
	goal     int    // flattened goal position
	position int    // flattened agent position
	stepNum  int

	rng *rand.Rand
}

// Config holds the knobs for generating a gridworld
type Config struct {
	Rooms     int
	RoomSize  int // interior width/height of each room
	StepLimit int
	Seed      uint64
}

// New generates a new multi-room gridworld. Door placement depends on
// the seed, so two environments built with the same Config are
// identical.
func New(c Config) (*GridWorld, error) {
	if c.Rooms < 1 {
		return nil, fmt.Errorf("gridworld: need at least 1 room, got %d",
			c.Rooms)
	}
	if c.RoomSize < 2 {
		return nil, fmt.Errorf("gridworld: room size must be at least 2, "+
			"got %d", c.RoomSize)
	}
	if c.StepLimit < 1 {
		return nil, fmt.Errorf("gridworld: step limit must be positive, "+
			"got %d", c.StepLimit)
	}

	rows := c.RoomSize
	cols := c.Rooms*c.RoomSize + (c.Rooms - 1) // one wall column between rooms

	g := &GridWorld{
		rows:      rows,
		cols:      cols,
		roomSize:  c.RoomSize,
		numRooms:  c.Rooms,
		stepLimit: c.StepLimit,
		walls:     make([]bool, rows*cols),
		rng:       rand.New(rand.NewSource(c.Seed)),
	}

	// Wall columns with one door each
	for w := 1; w < c.Rooms; w++ {
		col := w*c.RoomSize + (w - 1)
		door := g.rng.Intn(rows)
		for r := 0; r < rows; r++ {
			if r != door {
				g.walls[r*cols+col] = true
			}
		}
	}

	g.goal = (rows-1)*cols + (cols - 1) // bottom-right corner, last room
	g.position = 0
	return g, nil
}

// Dims gets the rows and columns of the GridWorld
func (g *GridWorld) Dims() (r, c int) {
	return g.rows, g.cols
}

// Reset starts a new episode with the agent in the top-left corner
func (g *GridWorld) Reset() (timestep.TimeStep, error) {
	g.position = 0
	g.stepNum = 0
	return timestep.First(g.observation()), nil
}

// Step moves the agent. Moves into walls or off the grid leave the
// position unchanged but still consume a step.
func (g *GridWorld) Step(action int) (timestep.TimeStep, error) {
	if action < 0 || action >= numActions {
		return timestep.TimeStep{}, fmt.Errorf("step: invalid action %d",
			action)
	}

	row, col := g.position/g.cols, g.position%g.cols
	switch action {
	case Up:
		row--
	case Down:
		row++
	case Left:
		col--
	case Right:
		col++
	}

	if row >= 0 && row < g.rows && col >= 0 && col < g.cols &&
		!g.walls[row*g.cols+col] {
		g.position = row*g.cols + col
	}
	g.stepNum++

	reward := 0.0
	terminated := false
	if g.position == g.goal {
		reward = 1.0
		terminated = true
	}
	truncated := !terminated && g.stepNum >= g.stepLimit

	return timestep.New(g.observation(), reward, terminated, truncated,
		g.stepNum), nil
}

// ObservationSpec describes the one-hot position encoding
func (g *GridWorld) ObservationSpec() environment.Spec {
	size := g.rows * g.cols
	lower := make([]float64, size)
	upper := make([]float64, size)
	for i := range upper {
		upper[i] = 1
	}
	return environment.Spec{
		Shape:       []int{size},
		LowerBound:  lower,
		UpperBound:  upper,
		Cardinality: environment.Discrete,
	}
}

// ActionSpec describes the four movement actions
func (g *GridWorld) ActionSpec() environment.Spec {
	return environment.Spec{
		Shape:       []int{1},
		LowerBound:  []float64{0},
		UpperBound:  []float64{float64(numActions - 1)},
		Cardinality: environment.Discrete,
	}
}

// Close releases no resources; gridworlds are purely in-memory
func (g *GridWorld) Close() error { return nil }

func (g *GridWorld) observation() []float64 {
	obs := make([]float64, g.rows*g.cols)
	obs[g.position] = 1
	return obs
}
