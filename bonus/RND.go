package bonus

import (
	"sync"

	"golang.org/x/exp/rand"

	"github.com/explorl/explorl/trajectory"
)

// RND is random network distillation: a trained linear predictor
// chases the output of a fixed random target network, and the bonus is
// the squared distillation error. Frequently visited observations are
// predicted well and earn little.
type RND struct {
	mu     sync.RWMutex
	target *embedding
	lr     float64

	obsDim int
	dim    int
	wPred  []float64 // dim x obsDim
}

func newRND(cfg Config) *RND {
	rng := rand.New(rand.NewSource(cfg.Seed))
	return &RND{
		target: newEmbedding(cfg.ObsDim, cfg.EmbedDim, rng),
		lr:     cfg.LR,
		obsDim: cfg.ObsDim,
		dim:    cfg.EmbedDim,
		wPred:  make([]float64, cfg.EmbedDim*cfg.ObsDim),
	}
}

// Name returns the variant name
func (*RND) Name() string { return "rnd" }

// NewEpisode returns nil; the predictor persists across episodes
func (*RND) NewEpisode() State { return nil }

// predict writes the predictor output for obs into dst. Callers hold
// at least the read lock.
func (r *RND) predict(obs, dst []float64) {
	for i := 0; i < r.dim; i++ {
		row := r.wPred[i*r.obsDim : (i+1)*r.obsDim]
		sum := 0.0
		for j, o := range obs {
			sum += row[j] * o
		}
		dst[i] = sum
	}
}

// Bonus returns half the squared distillation error at obs
func (r *RND) Bonus(prev []float64, action int, obs []float64,
	state State) float64 {

	tgt := make([]float64, r.dim)
	pred := make([]float64, r.dim)
	r.target.apply(obs, tgt)

	r.mu.RLock()
	r.predict(obs, pred)
	r.mu.RUnlock()

	err := 0.0
	for i := range pred {
		d := pred[i] - tgt[i]
		err += d * d
	}
	return 0.5 * err
}

// Update distills the target network into the predictor on the
// observations of one batch and returns the mean distillation loss.
func (r *RND) Update(b *trajectory.Batch) (AuxLosses, error) {
	tgt := make([]float64, r.dim)
	pred := make([]float64, r.dim)

	r.mu.Lock()
	defer r.mu.Unlock()

	loss := 0.0
	count := float64(b.T * b.B)
	for t := 1; t <= b.T; t++ {
		for col := 0; col < b.B; col++ {
			obs := b.ObsAt(t, col)
			r.target.apply(obs, tgt)
			r.predict(obs, pred)

			for i := 0; i < r.dim; i++ {
				d := pred[i] - tgt[i]
				loss += 0.5 * d * d / count

				g := r.lr * d / count
				row := r.wPred[i*r.obsDim : (i+1)*r.obsDim]
				for j, o := range obs {
					row[j] -= g * o
				}
			}
		}
	}

	return AuxLosses{"rnd_loss": loss}, nil
}
