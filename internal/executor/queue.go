package executor

import (
	"errors"
	"sync"
	"time"
)

// ErrQueueFull is returned by Enqueue when a bounded queue is at
// capacity. The default queue is unbounded.
var ErrQueueFull = errors.New("queue full")

// taskQueue is a FIFO queue of handles shared by the submit handler and
// the worker pool. Each handle is enqueued exactly once; there is no
// retry on failure.
type taskQueue struct {
	mu       sync.Mutex
	items    []*Handle
	max      int
	notEmpty chan struct{}
}

func newTaskQueue(max int) *taskQueue {
	return &taskQueue{
		max:      max,
		notEmpty: make(chan struct{}, 1),
	}
}

// Enqueue appends a handle. Returns ErrQueueFull when a capacity bound
// is configured and reached.
func (q *taskQueue) Enqueue(h *Handle) error {
	q.mu.Lock()
	if q.max > 0 && len(q.items) >= q.max {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.items = append(q.items, h)
	q.mu.Unlock()

	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue pops the oldest handle, waiting up to timeout. Returns nil on
// timeout so workers can re-check the daemon's running flag.
func (q *taskQueue) Dequeue(timeout time.Duration) *Handle {
	deadline := time.Now().Add(timeout)
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			h := q.items[0]
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				// Wake another waiting worker.
				select {
				case q.notEmpty <- struct{}{}:
				default:
				}
			}
			return h
		}
		q.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		select {
		case <-q.notEmpty:
		case <-time.After(remaining):
		}
	}
}

// Len returns the number of queued handles.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
