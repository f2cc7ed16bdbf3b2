// Package schedule provides the in-memory due-time queue that orders
// send requests by fire time. Entries are (fire-time, request-id) pairs
// only; all mutable state lives in the request store, so duplicate entries
// are harmless and resolved by the dispatch worker's status guard.
package schedule

import (
	"container/heap"
	"sync"
	"time"

	"github.com/sungwon/mail-scheduler/internal/metrics"
)

// Entry pairs a request ID with the time it becomes due.
type Entry struct {
	FireAt    time.Time
	RequestID int64
	seq       uint64 // insertion order, breaks fire-time ties
}

// Queue is a mutex-guarded min-heap ordered by fire time. It is safe for
// use from the request-creation handler, the startup rebuild, and the
// dispatch worker concurrently.
type Queue struct {
	mu      sync.Mutex
	entries entryHeap
	seq     uint64
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push adds an entry. No deduplication is performed.
func (q *Queue) Push(fireAt time.Time, requestID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	heap.Push(&q.entries, Entry{FireAt: fireAt, RequestID: requestID, seq: q.seq})
	metrics.QueueDepth.Set(float64(len(q.entries)))
}

// PopDue removes and returns the entry with the smallest fire time iff that
// fire time is not after now. It never blocks.
func (q *Queue) PopDue(now time.Time) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 || q.entries[0].FireAt.After(now) {
		return Entry{}, false
	}

	e := heap.Pop(&q.entries).(Entry)
	metrics.QueueDepth.Set(float64(len(q.entries)))
	return e, true
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

type entryHeap []Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if !h[i].FireAt.Equal(h[j].FireAt) {
		return h[i].FireAt.Before(h[j].FireAt)
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(Entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
