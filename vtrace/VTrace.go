// Package vtrace implements the V-trace off-policy correction: it turns
// trajectories collected under a stale behavior policy into value
// targets and policy-gradient advantages that are unbiased in the limit
// for the current target policy.
//
// The recursion follows Espeholt et al. (2018). All inputs are
// time-major T x B matrices; the computation runs independently per
// batch column, backward over time.
package vtrace

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/explorl/explorl/utils/floatutils"
)

// ErrNonFinite reports that an importance ratio or corrected value
// became NaN or infinite. Callers must treat this as a halting
// condition: a non-finite target silently propagated into a parameter
// update poisons every later step.
var ErrNonFinite = errors.New("vtrace: non-finite value in correction")

// Raw policy-probability ratios are exp(targetLP - behaviorLP); the
// log-ratio is clamped before exponentiation so a collapsed behavior
// probability cannot overflow the multiplication that follows.
const logRatioClamp = 50.0

// Returns holds the per-timestep outputs of the correction: Vs are the
// corrected value targets, PGAdvantages the policy-gradient advantages.
// Both are T x B, computed fresh every learning step and never
// persisted.
type Returns struct {
	Vs           *mat.Dense
	PGAdvantages *mat.Dense
}

// FromLogProbs runs the V-trace recursion from log-probabilities of the
// taken actions under the target and behavior policies.
//
// All matrix arguments are T x B: targetLP and behaviorLP are
// log pi(a_t|x_t) under each policy, discounts is the per-step discount
// (zero where the episode truly terminated), rewards is the combined
// clipped reward, and values is V(x_t) under the current model.
// bootstrap is the length-B value estimate of the state following the
// last timestep. rhoBar and cBar are the clipping constants and must
// satisfy rhoBar >= cBar >= 1.
func FromLogProbs(targetLP, behaviorLP, discounts, rewards,
	values *mat.Dense, bootstrap []float64, rhoBar,
	cBar float64) (*Returns, error) {

	T, B := rewards.Dims()
	for _, m := range []*mat.Dense{targetLP, behaviorLP, discounts, values} {
		r, c := m.Dims()
		if r != T || c != B {
			return nil, fmt.Errorf("fromLogProbs: matrix dims "+
				"want(%d x %d) have(%d x %d)", T, B, r, c)
		}
	}
	if len(bootstrap) != B {
		return nil, fmt.Errorf("fromLogProbs: bootstrap length %d does "+
			"not match batch size %d", len(bootstrap), B)
	}
	if rhoBar < cBar || cBar < 1 {
		return nil, fmt.Errorf("fromLogProbs: need rhoBar >= cBar >= 1, "+
			"have rhoBar=%v cBar=%v", rhoBar, cBar)
	}

	vs := mat.NewDense(T, B, nil)
	adv := mat.NewDense(T, B, nil)

	for b := 0; b < B; b++ {
		// v_{t+1} of the step currently being processed; seeded with
		// the bootstrap value v_T = V(x_T).
		nextVs := bootstrap[b]
		for t := T - 1; t >= 0; t-- {
			logRatio := floatutils.Clip(
				targetLP.At(t, b)-behaviorLP.At(t, b),
				-logRatioClamp, logRatioClamp)
			ratio := math.Exp(logRatio)
			rho := math.Min(rhoBar, ratio)
			c := math.Min(cBar, ratio)

			value := values.At(t, b)
			nextValue := bootstrap[b]
			if t < T-1 {
				nextValue = values.At(t+1, b)
			}

			gamma := discounts.At(t, b)
			reward := rewards.At(t, b)

			delta := rho * (reward + gamma*nextValue - value)
			v := value + delta + gamma*c*(nextVs-nextValue)
			a := rho * (reward + gamma*nextVs - value)

			if !floatutils.Finite(v) || !floatutils.Finite(a) {
				return nil, fmt.Errorf("fromLogProbs: batch element %d, "+
					"timestep %d: %w", b, t, ErrNonFinite)
			}

			vs.Set(t, b, v)
			adv.Set(t, b, a)
			nextVs = v
		}
	}

	return &Returns{Vs: vs, PGAdvantages: adv}, nil
}

// FromLogits runs the V-trace recursion from raw target-policy logits
// and stored behavior log-probability vectors. targetLogits and
// behaviorLogProbs are flat time-major blocks of shape (T, B, A);
// actions is the flat time-major T*B block of taken actions. The
// remaining arguments are as in FromLogProbs.
func FromLogits(unroll, batchSize, numActions int, targetLogits,
	behaviorLogProbs []float64, actions []int, discounts, rewards,
	values *mat.Dense, bootstrap []float64, rhoBar,
	cBar float64) (*Returns, error) {

	want := unroll * batchSize * numActions
	if len(targetLogits) != want || len(behaviorLogProbs) != want {
		return nil, fmt.Errorf("fromLogits: logit block length "+
			"want(%d) have(%d, %d)", want, len(targetLogits),
			len(behaviorLogProbs))
	}
	if len(actions) != unroll*batchSize {
		return nil, fmt.Errorf("fromLogits: action block length "+
			"want(%d) have(%d)", unroll*batchSize, len(actions))
	}

	targetLP := mat.NewDense(unroll, batchSize, nil)
	behaviorLP := mat.NewDense(unroll, batchSize, nil)

	for t := 0; t < unroll; t++ {
		for b := 0; b < batchSize; b++ {
			start := (t*batchSize + b) * numActions
			logits := targetLogits[start : start+numActions]
			action := actions[t*batchSize+b]
			if action < 0 || action >= numActions {
				return nil, fmt.Errorf("fromLogits: batch element %d, "+
					"timestep %d: action %d out of range", b, t, action)
			}
			lse := floats.LogSumExp(logits)
			targetLP.Set(t, b, logits[action]-lse)
			behaviorLP.Set(t, b,
				behaviorLogProbs[start+action])
		}
	}

	return FromLogProbs(targetLP, behaviorLP, discounts, rewards, values,
		bootstrap, rhoBar, cBar)
}
