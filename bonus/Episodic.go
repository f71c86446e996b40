package bonus

import (
	"math"
	"sync"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/explorl/explorl/trajectory"
	"github.com/explorl/explorl/utils/floatutils"
)

// Episodic is an elliptical episodic bonus: within one episode it
// rewards observations whose embeddings point in directions the
// episode has not covered yet. The per-episode state is the inverse
// covariance of the embeddings seen so far, maintained incrementally
// with the Sherman-Morrison rank-one update, so no matrix inversion
// happens at step time. The state resets at every episode boundary,
// which makes revisiting a state rewarding again in the next episode.
//
// The embedding is learned: an inverse-dynamics head predicts the
// taken action from the embeddings of the two observations it
// connects, and training that head shapes the embedding toward the
// features the agent can actually control.
type Episodic struct {
	mu sync.RWMutex

	obsDim     int
	dim        int
	numActions int
	lr         float64
	ridge      float64

	// psi = tanh(wEmbed * obs)
	wEmbed []float64 // dim x obsDim

	// inverse-dynamics head:
	// logits = wPrev * psi(prev) + wNext * psi(next) + bias
	wPrev []float64 // numActions x dim
	wNext []float64 // numActions x dim
	bias  []float64 // numActions
}

// ellipsoid is the per-episode state: C^{-1} for the regularized
// embedding covariance C.
type ellipsoid struct {
	inv *mat.Dense
}

func newEpisodic(cfg Config) *Episodic {
	rng := rand.New(rand.NewSource(cfg.Seed))
	ridge := cfg.Ridge
	if ridge <= 0 {
		ridge = 0.1
	}
	e := &Episodic{
		obsDim:     cfg.ObsDim,
		dim:        cfg.EmbedDim,
		numActions: cfg.NumActions,
		lr:         cfg.LR,
		ridge:      ridge,
		wEmbed:     make([]float64, cfg.EmbedDim*cfg.ObsDim),
		wPrev:      make([]float64, cfg.NumActions*cfg.EmbedDim),
		wNext:      make([]float64, cfg.NumActions*cfg.EmbedDim),
		bias:       make([]float64, cfg.NumActions),
	}
	scale := 1.0 / math.Sqrt(float64(cfg.ObsDim))
	for i := range e.wEmbed {
		e.wEmbed[i] = rng.NormFloat64() * scale
	}
	return e
}

// Name returns the variant name
func (*Episodic) Name() string { return "episodic" }

// NewEpisode returns a fresh ellipsoid, C^{-1} = (1/ridge) I
func (e *Episodic) NewEpisode() State {
	inv := mat.NewDense(e.dim, e.dim, nil)
	for i := 0; i < e.dim; i++ {
		inv.Set(i, i, 1/e.ridge)
	}
	return &ellipsoid{inv: inv}
}

// embed writes psi(obs) into dst. Callers hold at least the read lock.
func (e *Episodic) embed(obs, dst []float64) {
	for i := 0; i < e.dim; i++ {
		row := e.wEmbed[i*e.obsDim : (i+1)*e.obsDim]
		sum := 0.0
		for j, o := range obs {
			sum += row[j] * o
		}
		dst[i] = math.Tanh(sum)
	}
}

// Bonus returns psi^T C^{-1} psi for the embedding psi of obs, then
// folds psi into the episode's covariance.
func (e *Episodic) Bonus(prev []float64, action int, obs []float64,
	state State) float64 {

	ell := state.(*ellipsoid)

	psi := make([]float64, e.dim)
	e.mu.RLock()
	e.embed(obs, psi)
	e.mu.RUnlock()

	// u = C^{-1} psi; the bonus is psi . u
	u := make([]float64, e.dim)
	for i := 0; i < e.dim; i++ {
		sum := 0.0
		for j := 0; j < e.dim; j++ {
			sum += ell.inv.At(i, j) * psi[j]
		}
		u[i] = sum
	}
	b := 0.0
	for i := range psi {
		b += psi[i] * u[i]
	}

	// Sherman-Morrison: C^{-1} -= (u u^T) / (1 + psi^T u). C^{-1} is
	// symmetric, so C^{-T} psi = u as well.
	scale := 1 / (1 + b)
	for i := 0; i < e.dim; i++ {
		for j := 0; j < e.dim; j++ {
			ell.inv.Set(i, j, ell.inv.At(i, j)-scale*u[i]*u[j])
		}
	}

	return b
}

// Update fits the inverse-dynamics head to the transitions of one
// batch with a single SGD pass, training the embedding through it, and
// returns the mean cross-entropy loss. Rows whose observation already
// belongs to the next episode are skipped: the transition into them
// crosses an episode boundary.
func (e *Episodic) Update(b *trajectory.Batch) (AuxLosses, error) {
	prevPsi := make([]float64, e.dim)
	nextPsi := make([]float64, e.dim)
	logits := make([]float64, e.numActions)
	logProbs := make([]float64, e.numActions)
	grad := make([]float64, e.numActions)
	dPrev := make([]float64, e.dim)
	dNext := make([]float64, e.dim)

	count := 0
	for t := 0; t < b.T; t++ {
		for col := 0; col < b.B; col++ {
			if b.Done.At(t+1, col) == 0 {
				count++
			}
		}
	}
	if count == 0 {
		return AuxLosses{"inverse_dynamics_loss": 0}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	loss := 0.0
	for t := 0; t < b.T; t++ {
		for col := 0; col < b.B; col++ {
			if b.Done.At(t+1, col) == 1 {
				continue
			}
			prevObs := b.ObsAt(t, col)
			nextObs := b.ObsAt(t+1, col)
			action := b.Action(t+1, col)

			e.embed(prevObs, prevPsi)
			e.embed(nextObs, nextPsi)

			for a := 0; a < e.numActions; a++ {
				sum := e.bias[a]
				pRow := e.wPrev[a*e.dim : (a+1)*e.dim]
				nRow := e.wNext[a*e.dim : (a+1)*e.dim]
				for i := 0; i < e.dim; i++ {
					sum += pRow[i]*prevPsi[i] + nRow[i]*nextPsi[i]
				}
				logits[a] = sum
			}
			floatutils.LogSoftmax(logits, logProbs)
			loss -= logProbs[action] / float64(count)

			for a := range grad {
				g := math.Exp(logProbs[a])
				if a == action {
					g--
				}
				grad[a] = g / float64(count)
			}

			// Embedding gradients use the head weights before the
			// head's own step.
			for i := 0; i < e.dim; i++ {
				dp, dn := 0.0, 0.0
				for a, g := range grad {
					dp += g * e.wPrev[a*e.dim+i]
					dn += g * e.wNext[a*e.dim+i]
				}
				dPrev[i] = dp
				dNext[i] = dn
			}

			for a, g := range grad {
				pRow := e.wPrev[a*e.dim : (a+1)*e.dim]
				nRow := e.wNext[a*e.dim : (a+1)*e.dim]
				for i := 0; i < e.dim; i++ {
					pRow[i] -= e.lr * g * prevPsi[i]
					nRow[i] -= e.lr * g * nextPsi[i]
				}
				e.bias[a] -= e.lr * g
			}

			for i := 0; i < e.dim; i++ {
				gp := dPrev[i] * (1 - prevPsi[i]*prevPsi[i])
				gn := dNext[i] * (1 - nextPsi[i]*nextPsi[i])
				row := e.wEmbed[i*e.obsDim : (i+1)*e.obsDim]
				for j := range row {
					row[j] -= e.lr * (gp*prevObs[j] + gn*nextObs[j])
				}
			}
		}
	}

	return AuxLosses{"inverse_dynamics_loss": loss}, nil
}
