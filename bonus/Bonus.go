// Package bonus implements intrinsic exploration bonuses: per-step
// reward signals computed from novelty rather than from the
// environment. Variants share a single interface so the collection and
// learning loops stay agnostic of which bonus is active.
package bonus

import (
	"fmt"
	"strings"

	"github.com/explorl/explorl/trajectory"
)

// AuxLosses are the named auxiliary losses of one bonus update,
// reported for metrics.
type AuxLosses map[string]float64

// Merge folds another loss map into this one
func (a AuxLosses) Merge(other AuxLosses) {
	for k, v := range other {
		a[k] += v
	}
}

// State is an opaque per-episode bonus state. Variants that keep no
// episodic state return nil from NewEpisode.
type State interface{}

// Bonus computes intrinsic rewards. The actor side calls NewEpisode at
// every episode boundary and Bonus at every step; the learner side
// calls Update once per learning step to train any learned components.
//
// Bonus and Update may run concurrently from different goroutines;
// implementations with learned components synchronize internally. The
// per-episode State is touched only by the one actor that owns it.
type Bonus interface {
	// Name returns the variant name the bonus was built from
	Name() string

	// NewEpisode returns a fresh per-episode state
	NewEpisode() State

	// Bonus returns the intrinsic bonus for the transition that took
	// action in the state observed as prev and arrived at obs.
	Bonus(prev []float64, action int, obs []float64, state State) float64

	// Update trains learned components from one batch
	Update(b *trajectory.Batch) (AuxLosses, error)
}

// Config carries the shapes and hyperparameters shared by all variants
type Config struct {
	ObsDim     int
	NumActions int

	// EmbedDim is the embedding size used by the curiosity, rnd, and
	// episodic variants. Curiosity and rnd embed through a fixed
	// random projection; episodic trains its embedding with an
	// inverse-dynamics head.
	EmbedDim int

	// Ridge regularizes the episodic ellipsoid
	Ridge float64

	// LR is the learning rate for learned bonus components
	LR float64

	// Visits is the shared visit-count table. The collection loop
	// records visits into it; the count variant reads it.
	Visits *VisitTable

	Seed uint64
}

// New builds a bonus variant by name. Compound names combine variants:
// "a+b" sums their bonuses, "axb" multiplies them.
func New(name string, cfg Config) (Bonus, error) {
	if parts := strings.Split(name, "+"); len(parts) > 1 {
		return newCombined(name, parts, combineSum, cfg)
	}
	if parts := strings.Split(name, "x"); len(parts) > 1 {
		return newCombined(name, parts, combineProduct, cfg)
	}

	switch name {
	case "", "none":
		return None{}, nil
	case "count":
		if cfg.Visits == nil {
			return nil, fmt.Errorf("bonus: count variant needs a visit table")
		}
		return &Count{visits: cfg.Visits}, nil
	case "curiosity":
		return newCuriosity(cfg), nil
	case "rnd":
		return newRND(cfg), nil
	case "episodic":
		return newEpisodic(cfg), nil
	default:
		return nil, fmt.Errorf("bonus: unknown variant %q", name)
	}
}

// None is the vanilla setting: every bonus is zero
type None struct{}

// Name returns the variant name
func (None) Name() string { return "none" }

// NewEpisode returns nil; the variant keeps no episodic state
func (None) NewEpisode() State { return nil }

// Bonus returns zero
func (None) Bonus([]float64, int, []float64, State) float64 { return 0 }

// Update is a no-op
func (None) Update(*trajectory.Batch) (AuxLosses, error) {
	return AuxLosses{}, nil
}
