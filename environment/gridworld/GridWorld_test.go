package gridworld

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/explorl/explorl/utils/floatutils"
)

func TestResetStartsTopLeft(t *testing.T) {
	g, err := New(Config{Rooms: 2, RoomSize: 3, StepLimit: 10, Seed: 1})
	require.NoError(t, err)

	ts, err := g.Reset()
	require.NoError(t, err)
	require.Equal(t, 0, floatutils.ArgMax(ts.Observation))
	require.False(t, ts.Done())
	require.Zero(t, ts.Reward)

	rows, cols := g.Dims()
	require.Equal(t, 3, rows)
	require.Equal(t, 7, cols) // two 3-wide rooms plus one wall column
	require.Len(t, ts.Observation, rows*cols)
}

func TestGoalTerminatesWithReward(t *testing.T) {
	// Single room: no walls, goal in the bottom-right corner
	g, err := New(Config{Rooms: 1, RoomSize: 3, StepLimit: 100, Seed: 1})
	require.NoError(t, err)
	_, err = g.Reset()
	require.NoError(t, err)

	moves := []int{Right, Right, Down, Down}
	for i, a := range moves {
		ts, err := g.Step(a)
		require.NoError(t, err)
		if i < len(moves)-1 {
			require.False(t, ts.Done())
			require.Zero(t, ts.Reward)
			continue
		}
		require.True(t, ts.Terminated)
		require.False(t, ts.Truncated)
		require.Equal(t, 1.0, ts.Reward)
	}
}

func TestStepLimitTruncates(t *testing.T) {
	g, err := New(Config{Rooms: 2, RoomSize: 3, StepLimit: 4, Seed: 1})
	require.NoError(t, err)
	_, err = g.Reset()
	require.NoError(t, err)

	// Bump into the top edge until the limit hits
	for i := 0; i < 3; i++ {
		ts, err := g.Step(Up)
		require.NoError(t, err)
		require.False(t, ts.Done())
	}
	ts, err := g.Step(Up)
	require.NoError(t, err)
	require.True(t, ts.Truncated)
	require.False(t, ts.Terminated)
	require.Zero(t, ts.Reward)
}

func TestWallsBlockWithoutDoor(t *testing.T) {
	g, err := New(Config{Rooms: 2, RoomSize: 3, StepLimit: 100, Seed: 3})
	require.NoError(t, err)
	_, err = g.Reset()
	require.NoError(t, err)

	// Walk right across the first room; whether the wall lets the
	// agent through at this row depends on the door placement, but the
	// position must always stay on the grid and off wall cells.
	for i := 0; i < 10; i++ {
		ts, err := g.Step(Right)
		require.NoError(t, err)
		pos := floatutils.ArgMax(ts.Observation)
		require.False(t, g.walls[pos], "agent standing in a wall at %d", pos)
		require.Less(t, pos, len(ts.Observation))
	}
}

func TestSameSeedSameLayout(t *testing.T) {
	a, err := New(Config{Rooms: 4, RoomSize: 5, StepLimit: 10, Seed: 42})
	require.NoError(t, err)
	b, err := New(Config{Rooms: 4, RoomSize: 5, StepLimit: 10, Seed: 42})
	require.NoError(t, err)
	require.Equal(t, a.walls, b.walls)

	c, err := New(Config{Rooms: 4, RoomSize: 5, StepLimit: 10, Seed: 43})
	require.NoError(t, err)
	require.NotEqual(t, a.walls, c.walls)
}

func TestRejectsInvalidAction(t *testing.T) {
	g, err := New(Config{Rooms: 1, RoomSize: 3, StepLimit: 10, Seed: 1})
	require.NoError(t, err)
	_, err = g.Reset()
	require.NoError(t, err)
	_, err = g.Step(99)
	require.Error(t, err)
}
