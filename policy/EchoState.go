package policy

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/explorl/explorl/trajectory"
	"github.com/explorl/explorl/utils/floatutils"
)

// RMSProp constants for the readout update
const (
	rmsDecay   = 0.99
	rmsEpsilon = 0.01
)

// EchoState is a recurrent policy with a fixed random reservoir and a
// trained linear readout. The input and recurrent weights are sampled
// once at construction and never updated; learning adjusts only the
// readout, so policy-gradient, baseline, and entropy gradients have
// closed forms and the model needs no automatic differentiation.
//
// When an exploration policy is active, its logits are blended into the
// readout's logits with a fixed weight before sampling.
type EchoState struct {
	obsDim     int
	hidden     int
	numActions int
	explWeight float64

	// Fixed reservoir
	win  []float64 // hidden x obsDim
	wrec []float64 // hidden x hidden

	// Trained readout
	wout []float64 // numActions x hidden
	bout []float64 // numActions
	wval []float64 // hidden
	bval float64

	// RMSProp second-moment accumulators, same shapes as the readout
	msWout []float64
	msBout []float64
	msWval []float64
	msBval float64
}

// NewEchoState creates an echo-state policy. The reservoir is scaled so
// its spectral radius stays below one, which keeps the recurrence
// contractive. explWeight is the blending weight applied to exploration
// logits; pass 0 when no exploration model is used.
func NewEchoState(obsDim, hidden, numActions int, explWeight float64,
	seed uint64) *EchoState {

	rng := rand.New(rand.NewSource(seed))

	e := &EchoState{
		obsDim:     obsDim,
		hidden:     hidden,
		numActions: numActions,
		explWeight: explWeight,

		win:  make([]float64, hidden*obsDim),
		wrec: make([]float64, hidden*hidden),

		wout: make([]float64, numActions*hidden),
		bout: make([]float64, numActions),
		wval: make([]float64, hidden),

		msWout: make([]float64, numActions*hidden),
		msBout: make([]float64, numActions),
		msWval: make([]float64, hidden),
	}

	inScale := 1.0 / math.Sqrt(float64(obsDim))
	for i := range e.win {
		e.win[i] = rng.NormFloat64() * inScale
	}
	recScale := 0.9 / math.Sqrt(float64(hidden))
	for i := range e.wrec {
		e.wrec[i] = rng.NormFloat64() * recScale
	}
	outScale := 1.0 / math.Sqrt(float64(hidden))
	for i := range e.wout {
		e.wout[i] = rng.NormFloat64() * outScale
	}
	for i := range e.wval {
		e.wval[i] = rng.NormFloat64() * outScale
	}

	return e
}

// HiddenSize returns the reservoir dimension
func (e *EchoState) HiddenSize() int { return e.hidden }

// InitialState returns a fresh zero recurrent state
func (e *EchoState) InitialState() []float64 {
	return make([]float64, e.hidden)
}

// forward advances the reservoir by one step, writing the new hidden
// state into next and the readout outputs into logits.
func (e *EchoState) forward(obs, state, explLogits, next,
	logits []float64) float64 {

	for i := 0; i < e.hidden; i++ {
		sum := 0.0
		row := e.win[i*e.obsDim : (i+1)*e.obsDim]
		for j, o := range obs {
			sum += row[j] * o
		}
		rec := e.wrec[i*e.hidden : (i+1)*e.hidden]
		for j, h := range state {
			sum += rec[j] * h
		}
		next[i] = math.Tanh(sum)
	}

	for a := 0; a < e.numActions; a++ {
		row := e.wout[a*e.hidden : (a+1)*e.hidden]
		sum := e.bout[a]
		for j, h := range next {
			sum += row[j] * h
		}
		logits[a] = sum
	}
	if explLogits != nil {
		floats.AddScaled(logits, e.explWeight, explLogits)
	}

	value := e.bval
	for j, h := range next {
		value += e.wval[j] * h
	}
	return value
}

// Step runs one forward step for an actor
func (e *EchoState) Step(obs, state, explLogits []float64) ([]float64,
	float64, []float64) {

	next := make([]float64, e.hidden)
	logits := make([]float64, e.numActions)
	value := e.forward(obs, state, explLogits, next, logits)
	return logits, value, next
}

// Unroll runs the model over every row of a batch. The returned
// Output's Features block holds the flat (T+1, B, hidden) sequence of
// reservoir states, which Update consumes to form readout gradients.
func (e *EchoState) Unroll(b *trajectory.Batch, initial [][]float64,
	explLogits []float64) (*Output, error) {

	if b.ObsDim() != e.obsDim || b.NumActions() != e.numActions {
		return nil, fmt.Errorf("unroll: batch shape (%d, %d) does not "+
			"match model shape (%d, %d)", b.ObsDim(), b.NumActions(),
			e.obsDim, e.numActions)
	}
	if len(initial) != b.B {
		return nil, fmt.Errorf("unroll: %d initial states for batch "+
			"size %d", len(initial), b.B)
	}

	rows := b.T + 1
	out := &Output{
		Logits:   make([]float64, rows*b.B*e.numActions),
		Values:   mat.NewDense(rows, b.B, nil),
		Features: make([]float64, rows*b.B*e.hidden),
	}

	state := make([]float64, e.hidden)
	for col := 0; col < b.B; col++ {
		if len(initial[col]) != e.hidden {
			return nil, fmt.Errorf("unroll: initial state %d has length "+
				"%d, want %d", col, len(initial[col]), e.hidden)
		}
		copy(state, initial[col])
		for t := 0; t < rows; t++ {
			next := out.Features[(t*b.B+col)*e.hidden : (t*b.B+col+1)*e.hidden]
			logits := out.Logits[(t*b.B+col)*e.numActions : (t*b.B+col+1)*e.numActions]

			var expl []float64
			if explLogits != nil {
				start := (t*b.B + col) * e.numActions
				expl = explLogits[start : start+e.numActions]
			}

			value := e.forward(b.ObsAt(t, col), state, expl, next, logits)
			out.Values.Set(t, col, value)
			copy(state, next)
		}
	}
	return out, nil
}

// Update applies one RMSProp step to the readout from the losses of one
// V-trace-corrected batch.
func (e *EchoState) Update(in UpdateInput) (Losses, error) {
	b := in.Batch
	if in.Output == nil || in.Output.Features == nil {
		return Losses{}, fmt.Errorf("update: output lacks the forward " +
			"feature cache")
	}

	gWout := make([]float64, len(e.wout))
	gBout := make([]float64, len(e.bout))
	gWval := make([]float64, len(e.wval))
	gBval := 0.0

	var losses Losses
	probs := make([]float64, e.numActions)
	logProbs := make([]float64, e.numActions)

	count := float64(b.T * b.B)
	for t := 0; t < b.T; t++ {
		for col := 0; col < b.B; col++ {
			base := t*b.B + col
			h := in.Output.Features[base*e.hidden : (base+1)*e.hidden]
			logits := in.Output.Logits[base*e.numActions : (base+1)*e.numActions]

			floatutils.LogSoftmax(logits, logProbs)
			for a, lp := range logProbs {
				probs[a] = math.Exp(lp)
			}

			action := b.Action(t+1, col)
			adv := in.Returns.PGAdvantages.At(t, col)
			vs := in.Returns.Vs.At(t, col)
			value := in.Output.Values.At(t, col)

			// Negative entropy and its gradient wrt the logits
			negEntropy := 0.0
			for a, p := range probs {
				negEntropy += p * logProbs[a]
			}

			losses.PG -= adv * logProbs[action] / count
			losses.Baseline += 0.5 * (vs - value) * (vs - value) / count
			losses.Entropy += negEntropy / count

			gValue := in.BaselineCost * (value - vs) / count
			for a := range probs {
				g := adv * probs[a]
				if a == action {
					g -= adv
				}
				g += in.EntropyCost * probs[a] * (logProbs[a] - negEntropy)
				g /= count

				row := gWout[a*e.hidden : (a+1)*e.hidden]
				for j, hj := range h {
					row[j] += g * hj
				}
				gBout[a] += g
			}
			for j, hj := range h {
				gWval[j] += gValue * hj
			}
			gBval += gValue
		}
	}

	clipByGlobalNorm(in.MaxGradNorm, gWout, gBout, gWval, []float64{gBval})

	rmsStep(e.wout, gWout, e.msWout, in.LR)
	rmsStep(e.bout, gBout, e.msBout, in.LR)
	rmsStep(e.wval, gWval, e.msWval, in.LR)
	e.msBval = rmsDecay*e.msBval + (1-rmsDecay)*gBval*gBval
	e.bval -= in.LR * gBval / (math.Sqrt(e.msBval) + rmsEpsilon)

	if !floatutils.AllFinite(e.wout) || !floatutils.AllFinite(e.wval) {
		return losses, fmt.Errorf("update: readout weights became " +
			"non-finite")
	}
	return losses, nil
}

// clipByGlobalNorm rescales the gradient slices in place so their joint
// L2 norm does not exceed maxNorm. A non-positive maxNorm disables
// clipping.
func clipByGlobalNorm(maxNorm float64, grads ...[]float64) {
	if maxNorm <= 0 {
		return
	}
	total := 0.0
	for _, g := range grads {
		for _, v := range g {
			total += v * v
		}
	}
	norm := math.Sqrt(total)
	if norm <= maxNorm {
		return
	}
	scale := maxNorm / norm
	for _, g := range grads {
		floats.Scale(scale, g)
	}
}

func rmsStep(params, grads, ms []float64, lr float64) {
	for i, g := range grads {
		ms[i] = rmsDecay*ms[i] + (1-rmsDecay)*g*g
		params[i] -= lr * g / (math.Sqrt(ms[i]) + rmsEpsilon)
	}
}

// Clone returns a deep copy for snapshot publication
func (e *EchoState) Clone() Model {
	clone := *e
	clone.win = append([]float64(nil), e.win...)
	clone.wrec = append([]float64(nil), e.wrec...)
	clone.wout = append([]float64(nil), e.wout...)
	clone.bout = append([]float64(nil), e.bout...)
	clone.wval = append([]float64(nil), e.wval...)
	clone.msWout = append([]float64(nil), e.msWout...)
	clone.msBout = append([]float64(nil), e.msBout...)
	clone.msWval = append([]float64(nil), e.msWval...)
	return &clone
}

// echoStateGob is the gob wire form of an EchoState
type echoStateGob struct {
	ObsDim     int
	Hidden     int
	NumActions int
	ExplWeight float64

	Win  []float64
	Wrec []float64
	Wout []float64
	Bout []float64
	Wval []float64
	Bval float64

	MsWout []float64
	MsBout []float64
	MsWval []float64
	MsBval float64
}

// GobEncode implements gob.GobEncoder
func (e *EchoState) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(echoStateGob{
		ObsDim:     e.obsDim,
		Hidden:     e.hidden,
		NumActions: e.numActions,
		ExplWeight: e.explWeight,
		Win:        e.win,
		Wrec:       e.wrec,
		Wout:       e.wout,
		Bout:       e.bout,
		Wval:       e.wval,
		Bval:       e.bval,
		MsWout:     e.msWout,
		MsBout:     e.msBout,
		MsWval:     e.msWval,
		MsBval:     e.msBval,
	})
	if err != nil {
		return nil, fmt.Errorf("gobEncode: %w", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder
func (e *EchoState) GobDecode(data []byte) error {
	var wire echoStateGob
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&wire); err != nil {
		return fmt.Errorf("gobDecode: %w", err)
	}
	e.obsDim = wire.ObsDim
	e.hidden = wire.Hidden
	e.numActions = wire.NumActions
	e.explWeight = wire.ExplWeight
	e.win = wire.Win
	e.wrec = wire.Wrec
	e.wout = wire.Wout
	e.bout = wire.Bout
	e.wval = wire.Wval
	e.bval = wire.Bval
	e.msWout = wire.MsWout
	e.msBout = wire.MsBout
	e.msWval = wire.MsWval
	e.msBval = wire.MsBval
	return nil
}
