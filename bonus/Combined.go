package bonus

import (
	"fmt"

	"github.com/explorl/explorl/trajectory"
)

type combineMode int

const (
	combineSum combineMode = iota
	combineProduct
)

// Combined composes several variants into one bonus, either summing
// their per-step bonuses or multiplying them. The multiplicative form
// gates a global bonus by an episodic one, e.g. "rndxepisodic".
type Combined struct {
	name     string
	mode     combineMode
	children []Bonus
}

func newCombined(name string, parts []string, mode combineMode,
	cfg Config) (*Combined, error) {

	children := make([]Bonus, len(parts))
	for i, part := range parts {
		child, err := New(part, cfg)
		if err != nil {
			return nil, fmt.Errorf("combined: part %q: %w", part, err)
		}
		if _, ok := child.(*Combined); ok {
			return nil, fmt.Errorf("combined: part %q: nesting is not "+
				"supported", part)
		}
		children[i] = child
	}
	return &Combined{name: name, mode: mode, children: children}, nil
}

// Name returns the compound variant name
func (c *Combined) Name() string { return c.name }

// NewEpisode returns the slice of per-child episode states
func (c *Combined) NewEpisode() State {
	states := make([]State, len(c.children))
	for i, child := range c.children {
		states[i] = child.NewEpisode()
	}
	return states
}

// Bonus combines the children's bonuses for one transition
func (c *Combined) Bonus(prev []float64, action int, obs []float64,
	state State) float64 {

	states := state.([]State)
	var combined float64
	for i, child := range c.children {
		b := child.Bonus(prev, action, obs, states[i])
		switch {
		case i == 0:
			combined = b
		case c.mode == combineSum:
			combined += b
		default:
			combined *= b
		}
	}
	return combined
}

// Update updates every child and merges their losses
func (c *Combined) Update(b *trajectory.Batch) (AuxLosses, error) {
	losses := AuxLosses{}
	for _, child := range c.children {
		l, err := child.Update(b)
		if err != nil {
			return nil, fmt.Errorf("combined: %s: %w", child.Name(), err)
		}
		losses.Merge(l)
	}
	return losses, nil
}
