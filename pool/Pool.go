// Package pool implements the trajectory slot pool and its
// producer/consumer hand-off protocol.
//
// The pool owns nothing but integer indices: all slot storage is
// allocated once at startup elsewhere, and only indices travel through
// the free and full queues. An index is owned by exactly one party at
// any time - the free queue, an actor (writing), the full queue, or a
// learner (reading) - and every hand-off is a compare-and-swap on the
// slot's owner word, so a violated transfer fails loudly instead of
// corrupting a slot.
package pool

import (
	"context"
	"sync/atomic"
)

// Stop is the sentinel index pushed into the free queue to tell one
// actor to terminate after its current segment.
const Stop = -1

// Owner states of a slot index
const (
	ownerFree int32 = iota
	ownerActor
	ownerFull
	ownerLearner
)

// Pool hands out slot indices to actors and learners. Both Acquire
// methods block until an index is available; Publish and Release never
// block.
type Pool struct {
	free chan int
	full chan int

	// owners[i] tracks which party currently holds index i. The queues
	// alone already serialize hand-offs; the owner words exist so that
	// a protocol violation is detected instead of silently racing.
	owners []int32
	n      int
}

// New creates a Pool with n slots, all initially free. numActors sizes
// the free queue so that one shutdown sentinel per actor can always be
// pushed without blocking.
func New(n, numActors int) *Pool {
	p := &Pool{
		free:   make(chan int, n+numActors),
		full:   make(chan int, n),
		owners: make([]int32, n),
		n:      n,
	}
	for i := 0; i < n; i++ {
		p.free <- i
	}
	return p
}

// Len returns the number of slots owned by the pool
func (p *Pool) Len() int { return p.n }

// AcquireFree blocks until a free slot index is available and transfers
// its ownership to the calling actor. It returns Stop without error
// when a shutdown sentinel is received, and ctx.Err() when the context
// is cancelled while waiting.
func (p *Pool) AcquireFree(ctx context.Context) (int, error) {
	select {
	case idx := <-p.free:
		if idx == Stop {
			return Stop, nil
		}
		if !atomic.CompareAndSwapInt32(&p.owners[idx], ownerFree,
			ownerActor) {
			return 0, &PoolError{Op: "acquireFree", Err: ErrOwnership}
		}
		return idx, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// PublishFull moves an actor-owned index into the full queue. It never
// blocks: the full queue is sized to hold every slot.
func (p *Pool) PublishFull(idx int) error {
	if idx < 0 || idx >= p.n {
		return &PoolError{Op: "publishFull", Err: ErrBadIndex}
	}
	if !atomic.CompareAndSwapInt32(&p.owners[idx], ownerActor, ownerFull) {
		return &PoolError{Op: "publishFull", Err: ErrOwnership}
	}
	p.full <- idx
	return nil
}

// AcquireFull blocks until a completed slot index is available and
// transfers its ownership to the calling learner.
func (p *Pool) AcquireFull(ctx context.Context) (int, error) {
	select {
	case idx := <-p.full:
		if !atomic.CompareAndSwapInt32(&p.owners[idx], ownerFull,
			ownerLearner) {
			return 0, &PoolError{Op: "acquireFull", Err: ErrOwnership}
		}
		return idx, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Release returns a learner-owned index to the free queue so an actor
// can write into it again. It never blocks.
func (p *Pool) Release(idx int) error {
	if idx < 0 || idx >= p.n {
		return &PoolError{Op: "release", Err: ErrBadIndex}
	}
	if !atomic.CompareAndSwapInt32(&p.owners[idx], ownerLearner,
		ownerFree) {
		return &PoolError{Op: "release", Err: ErrOwnership}
	}
	p.free <- idx
	return nil
}

// Abort returns an actor-owned index to the free queue without
// publishing it. Used when a worker dies mid-segment so the slot is not
// leaked; the partially written contents are simply overwritten by the
// next owner.
func (p *Pool) Abort(idx int) error {
	if idx < 0 || idx >= p.n {
		return &PoolError{Op: "abort", Err: ErrBadIndex}
	}
	if !atomic.CompareAndSwapInt32(&p.owners[idx], ownerActor, ownerFree) {
		return &PoolError{Op: "abort", Err: ErrOwnership}
	}
	p.free <- idx
	return nil
}

// PushSentinels pushes count shutdown sentinels into the free queue,
// one per actor that should terminate.
func (p *Pool) PushSentinels(count int) {
	for i := 0; i < count; i++ {
		p.free <- Stop
	}
}

// Counts returns how many indices each party currently owns. The sum is
// always the pool size. Intended for tests and metrics; the snapshot is
// only consistent when no hand-off is concurrently in flight.
func (p *Pool) Counts() (free, actor, full, learner int) {
	for i := range p.owners {
		switch atomic.LoadInt32(&p.owners[i]) {
		case ownerFree:
			free++
		case ownerActor:
			actor++
		case ownerFull:
			full++
		case ownerLearner:
			learner++
		}
	}
	return
}
