// Package queue provides the orchestrator's pending-work queue: a concurrent
// priority queue ordered by creation time, with timed polling and removal.
package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

type entry[T any] struct {
	id        string
	createdAt time.Time
	seq       uint64
	value     T
	index     int
}

// Queue orders items oldest-created first; items created at the same instant
// keep insertion order. All methods are safe for concurrent use.
type Queue[T any] struct {
	mu     sync.Mutex
	items  entries[T]
	byID   map[string]*entry[T]
	seq    uint64
	signal chan struct{}
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		byID:   make(map[string]*entry[T]),
		signal: make(chan struct{}, 1),
	}
}

// Push adds v under id. It returns false if id is already queued.
func (q *Queue[T]) Push(id string, createdAt time.Time, v T) bool {
	q.mu.Lock()
	if _, ok := q.byID[id]; ok {
		q.mu.Unlock()
		return false
	}
	q.seq++
	e := &entry[T]{id: id, createdAt: createdAt, seq: q.seq, value: v}
	heap.Push(&q.items, e)
	q.byID[id] = e
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryPop removes and returns the oldest item without waiting.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		var zero T
		return zero, false
	}
	e := heap.Pop(&q.items).(*entry[T])
	delete(q.byID, e.id)
	return e.value, true
}

// Poll waits up to timeout for an item. It returns false on timeout or when
// ctx is done.
func (q *Queue[T]) Poll(ctx context.Context, timeout time.Duration) (T, bool) {
	if v, ok := q.TryPop(); ok {
		return v, true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			var zero T
			return zero, false
		case <-t.C:
			return q.TryPop()
		case <-q.signal:
			if v, ok := q.TryPop(); ok {
				return v, true
			}
		}
	}
}

// Remove deletes the item queued under id and reports whether it was present.
func (q *Queue[T]) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&q.items, e.index)
	delete(q.byID, id)
	return true
}

// Contains reports whether id is queued.
func (q *Queue[T]) Contains(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.byID[id]
	return ok
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Drain removes every item and returns them oldest first.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, 0, q.items.Len())
	for q.items.Len() > 0 {
		e := heap.Pop(&q.items).(*entry[T])
		out = append(out, e.value)
	}
	clear(q.byID)
	return out
}

// entries implements heap.Interface.
type entries[T any] []*entry[T]

func (h entries[T]) Len() int { return len(h) }

func (h entries[T]) Less(i, j int) bool {
	if !h[i].createdAt.Equal(h[j].createdAt) {
		return h[i].createdAt.Before(h[j].createdAt)
	}
	return h[i].seq < h[j].seq
}

func (h entries[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entries[T]) Push(x any) {
	e := x.(*entry[T])
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entries[T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
