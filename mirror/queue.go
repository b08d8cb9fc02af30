package mirror

import (
	"sync"

	"github.com/gammazero/deque"

	"go.viam.com/svo/logging"
	"go.viam.com/svo/octree"
)

// A Queue collects the changed records of edits as they happen and hands them out in batches, so
// that a consumer can update its copy once per frame instead of once per edit. It is safe for
// concurrent use.
type Queue struct {
	logger logging.Logger

	mu      sync.Mutex
	pending deque.Deque[octree.MutationRecord]
	edits   int
}

// NewQueue returns an empty queue.
func NewQueue(logger logging.Logger) *Queue {
	return &Queue{logger: logger}
}

// Push enqueues the changed records of one edit and returns how many were kept.
func (q *Queue) Push(records []octree.MutationRecord) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := 0
	for _, r := range records {
		if r.Changed {
			q.pending.PushBack(r)
			kept++
		}
	}
	if kept > 0 {
		q.edits++
	}
	return kept
}

// Len returns the number of queued records.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

// Drain empties the queue and returns its records coalesced by slot: each slot appears once, at the
// position of its first write, carrying its last written value. Applying the result gives the same
// bytes as applying every queued record in order.
func (q *Queue) Drain() []octree.MutationRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	total := q.pending.Len()
	out := make([]octree.MutationRecord, 0, total)
	bySlot := make(map[uint32]int, total)
	for q.pending.Len() > 0 {
		r := q.pending.PopFront()
		if i, ok := bySlot[r.Slot]; ok {
			out[i].Value = r.Value
			continue
		}
		bySlot[r.Slot] = len(out)
		out = append(out, r)
	}
	if total > 0 {
		q.logger.Debugw("drained mutation records", "edits", q.edits, "records", total, "slots", len(out))
	}
	q.edits = 0
	return out
}

// Flush drains the queue into dst and returns the number of slots written.
func (q *Queue) Flush(dst *Buffer) (int, error) {
	return dst.Apply(q.Drain())
}
