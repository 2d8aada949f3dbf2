// Package ring implements the bounded lock-free MPMC queue the syscall
// bridge uses to move slot indices between enclave producers and host
// consumers (spec component B).
//
// It is the classical Vyukov sequence-number ring: a single contiguous
// array of cells, each carrying its own sequence counter so producers and
// consumers can race over the same slot without a separate lock. Capacity
// is fixed at construction and rounded up to a power of two. There is no
// allocation on the hot path.
//
// The cell layout intentionally mirrors the "single contiguous buffer of
// word-sized tokens" wire format spec.md describes for the queue buffer,
// plus the per-cell sequence word the algorithm needs -- the two queues
// the launcher builds (submission and return) are each backed by one of
// these buffers sized at construction time.
package ring

import (
	"code.hybscloud.com/atomix"
)

type cell struct {
	seq   atomix.Uint64
	token uint64
}

// Queue is a bounded MPMC ring of uint64 tokens (syscall slot indices).
type Queue struct {
	mask uint64

	enqueuePos atomix.Uint64
	dequeuePos atomix.Uint64

	cells []cell
}

// New creates a queue with the given capacity, rounded up to the next
// power of two. The reference configuration uses 256.
func New(capacity int) *Queue {
	if capacity < 2 {
		capacity = 2
	}
	n := uint64(1)
	for n < uint64(capacity) {
		n <<= 1
	}
	q := &Queue{
		mask:  n - 1,
		cells: make([]cell, n),
	}
	for i := range q.cells {
		q.cells[i].seq.StoreRelaxed(uint64(i))
	}
	return q
}

// Cap returns the queue's physical capacity (a power of two).
func (q *Queue) Cap() int {
	return int(q.mask + 1)
}

// Enqueue pushes token and reports whether it succeeded. It fails only
// when the queue is full at the linearization point.
func (q *Queue) Enqueue(token uint64) bool {
	for {
		pos := q.enqueuePos.LoadAcquire()
		c := &q.cells[pos&q.mask]
		seq := c.seq.LoadAcquire()
		diff := int64(seq) - int64(pos)
		switch {
		case diff == 0:
			if q.enqueuePos.CompareAndSwapAcqRel(pos, pos+1) {
				c.token = token
				c.seq.StoreRelease(pos + 1)
				return true
			}
		case diff < 0:
			return false
		default:
			// another producer has since claimed this slot; retry.
		}
	}
}

// Dequeue pops a token and reports whether it succeeded. It fails only
// when the queue is empty at the linearization point.
func (q *Queue) Dequeue() (uint64, bool) {
	for {
		pos := q.dequeuePos.LoadAcquire()
		c := &q.cells[pos&q.mask]
		seq := c.seq.LoadAcquire()
		diff := int64(seq) - int64(pos+1)
		switch {
		case diff == 0:
			if q.dequeuePos.CompareAndSwapAcqRel(pos, pos+1) {
				token := c.token
				c.seq.StoreRelease(pos + q.mask + 1)
				return token, true
			}
		case diff < 0:
			return 0, false
		default:
			// another consumer has since claimed this slot; retry.
		}
	}
}
