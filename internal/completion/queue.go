// Package completion carries asynchronous completion signals from backend
// callbacks back to a single consuming goroutine.
package completion

import (
	"context"
	"fmt"
	"sync"
)

// Queue is an unbounded multi-producer, single-consumer FIFO. Send never
// blocks; Receive parks the consumer until a value arrives.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	notify chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{notify: make(chan struct{}, 1)}
}

// Send appends v and wakes the consumer if it is waiting. Safe for concurrent use.
func (q *Queue[T]) Send(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Receive returns the oldest queued value, blocking until one is available or
// ctx is done. Only one goroutine may call Receive at a time.
func (q *Queue[T]) Receive(ctx context.Context) (T, error) {
	for {
		if v, ok := q.pop(); ok {
			return v, nil
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("completion receive: %w", ctx.Err())
		}
	}
}

// TryReceive returns the oldest value without blocking.
func (q *Queue[T]) TryReceive() (T, bool) {
	return q.pop()
}

// Len reports the number of values waiting to be received.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

func (q *Queue[T]) pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if q.head >= len(q.items) {
		return zero, false
	}
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return v, true
}
