// Package learner implements the learning side of the training loop:
// assembling batches from published trajectory slots and applying
// V-trace-corrected policy-gradient updates.
package learner

import (
	"context"

	"github.com/explorl/explorl/pool"
	"github.com/explorl/explorl/trajectory"
)

// Assembler turns published slots into learner batches. Assemble
// copies slot contents into a fresh Batch and returns every slot to
// the free queue before handing the batch back, so actors regain
// capacity before the learning step runs.
type Assembler struct {
	pool      *pool.Pool
	slots     []*trajectory.Slot
	batchSize int
}

// NewAssembler creates an assembler drawing batchSize slots per batch
func NewAssembler(p *pool.Pool, slots []*trajectory.Slot,
	batchSize int) *Assembler {
	return &Assembler{pool: p, slots: slots, batchSize: batchSize}
}

// Assemble blocks until batchSize slots have been published, in
// publication order, and stacks them into a batch. On cancellation
// mid-collection the already-acquired slots are released before the
// context error is returned.
func (a *Assembler) Assemble(ctx context.Context) (*trajectory.Batch,
	error) {

	acquired := make([]int, 0, a.batchSize)
	release := func() error {
		var first error
		for _, idx := range acquired {
			if err := a.pool.Release(idx); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	for len(acquired) < a.batchSize {
		idx, err := a.pool.AcquireFull(ctx)
		if err != nil {
			release()
			return nil, err
		}
		acquired = append(acquired, idx)
	}

	first := a.slots[acquired[0]]
	batch := trajectory.NewBatch(first.Unroll(), a.batchSize,
		first.ObsDim(), first.NumActions())

	for col, idx := range acquired {
		if err := batch.SetColumn(col, a.slots[idx]); err != nil {
			release()
			return nil, err
		}
	}

	if err := release(); err != nil {
		return nil, err
	}
	return batch, nil
}
