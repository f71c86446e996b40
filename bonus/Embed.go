package bonus

import (
	"math"

	"golang.org/x/exp/rand"
)

// embedding is a fixed random projection of observations into a small
// feature space. It is sampled once and never trained; novelty is
// measured in its image.
type embedding struct {
	obsDim int
	dim    int
	w      []float64 // dim x obsDim
}

func newEmbedding(obsDim, dim int, rng *rand.Rand) *embedding {
	e := &embedding{obsDim: obsDim, dim: dim,
		w: make([]float64, dim*obsDim)}
	scale := 1.0 / math.Sqrt(float64(obsDim))
	for i := range e.w {
		e.w[i] = rng.NormFloat64() * scale
	}
	return e
}

// apply writes tanh(W * obs) into dst
func (e *embedding) apply(obs, dst []float64) {
	for i := 0; i < e.dim; i++ {
		row := e.w[i*e.obsDim : (i+1)*e.obsDim]
		sum := 0.0
		for j, o := range obs {
			sum += row[j] * o
		}
		dst[i] = math.Tanh(sum)
	}
}
