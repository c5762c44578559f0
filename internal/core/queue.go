package core

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Pop once the queue is closed and drained.
var ErrQueueClosed = errors.New("output queue closed")

// OutputQueue is an unbounded FIFO of worker output lines.
// Popped lines are consumed; the queue is not a replay log.
type OutputQueue struct {
	mu     sync.Mutex
	items  []string
	closed bool
	wake   chan struct{}
}

func NewOutputQueue() *OutputQueue {
	return &OutputQueue{wake: make(chan struct{})}
}

// Push appends lines as one contiguous run. It reports false if the queue
// is already closed.
func (q *OutputQueue) Push(lines ...string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, lines...)
	q.broadcastLocked()
	return true
}

// Pop blocks until a line is available, the queue is closed and empty,
// or ctx is done.
func (q *OutputQueue) Pop(ctx context.Context) (string, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			line := q.items[0]
			q.items[0] = ""
			q.items = q.items[1:]
			q.mu.Unlock()
			return line, nil
		}
		if q.closed {
			q.mu.Unlock()
			return "", ErrQueueClosed
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-wake:
		}
	}
}

// Close marks end of stream. Lines already queued stay poppable.
func (q *OutputQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.broadcastLocked()
}

func (q *OutputQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *OutputQueue) broadcastLocked() {
	close(q.wake)
	q.wake = make(chan struct{})
}
