package bonus

import (
	"sync"

	"golang.org/x/exp/rand"

	"github.com/explorl/explorl/trajectory"
)

// Curiosity is a forward-dynamics bonus: a linear model predicts the
// embedding of the next observation from the current embedding and the
// taken action, and the bonus is the squared prediction error. States
// whose dynamics the model has already learned stop being rewarding.
type Curiosity struct {
	mu    sync.RWMutex
	embed *embedding

	numActions int
	lr         float64

	// pred = wState * phi(prev) + wAction[:, action]
	wState  []float64 // dim x dim
	wAction []float64 // dim x numActions
}

func newCuriosity(cfg Config) *Curiosity {
	rng := rand.New(rand.NewSource(cfg.Seed))
	dim := cfg.EmbedDim
	return &Curiosity{
		embed:      newEmbedding(cfg.ObsDim, dim, rng),
		numActions: cfg.NumActions,
		lr:         cfg.LR,
		wState:     make([]float64, dim*dim),
		wAction:    make([]float64, dim*cfg.NumActions),
	}
}

// Name returns the variant name
func (*Curiosity) Name() string { return "curiosity" }

// NewEpisode returns nil; the forward model persists across episodes
func (*Curiosity) NewEpisode() State { return nil }

// predict writes the forward-model prediction for (prevPhi, action)
// into dst. Callers hold at least the read lock.
func (c *Curiosity) predict(prevPhi []float64, action int, dst []float64) {
	dim := c.embed.dim
	for i := 0; i < dim; i++ {
		row := c.wState[i*dim : (i+1)*dim]
		sum := c.wAction[i*c.numActions+action]
		for j, p := range prevPhi {
			sum += row[j] * p
		}
		dst[i] = sum
	}
}

// Bonus returns half the squared forward-prediction error of the
// transition.
func (c *Curiosity) Bonus(prev []float64, action int, obs []float64,
	state State) float64 {

	dim := c.embed.dim
	prevPhi := make([]float64, dim)
	phi := make([]float64, dim)
	pred := make([]float64, dim)

	c.embed.apply(prev, prevPhi)
	c.embed.apply(obs, phi)

	c.mu.RLock()
	c.predict(prevPhi, action, pred)
	c.mu.RUnlock()

	err := 0.0
	for i := range pred {
		d := pred[i] - phi[i]
		err += d * d
	}
	return 0.5 * err
}

// Update fits the forward model to the transitions of one batch with a
// single SGD pass and returns the mean prediction loss.
func (c *Curiosity) Update(b *trajectory.Batch) (AuxLosses, error) {
	dim := c.embed.dim
	prevPhi := make([]float64, dim)
	phi := make([]float64, dim)
	pred := make([]float64, dim)

	c.mu.Lock()
	defer c.mu.Unlock()

	loss := 0.0
	count := float64(b.T * b.B)
	for t := 0; t < b.T; t++ {
		for col := 0; col < b.B; col++ {
			c.embed.apply(b.ObsAt(t, col), prevPhi)
			c.embed.apply(b.ObsAt(t+1, col), phi)
			action := b.Action(t+1, col)
			c.predict(prevPhi, action, pred)

			for i := 0; i < dim; i++ {
				d := pred[i] - phi[i]
				loss += 0.5 * d * d / count

				g := c.lr * d / count
				row := c.wState[i*dim : (i+1)*dim]
				for j, p := range prevPhi {
					row[j] -= g * p
				}
				c.wAction[i*c.numActions+action] -= g
			}
		}
	}

	return AuxLosses{"forward_loss": loss}, nil
}
