package executor

import (
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := newTaskQueue(0)
	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(newHandle(id, []string{"echo"}, "/tmp", "", nil, nil)); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		h := q.Dequeue(time.Second)
		if h == nil {
			t.Fatalf("dequeue returned nil, want %s", want)
		}
		if h.TaskID != want {
			t.Errorf("dequeued %s, want %s", h.TaskID, want)
		}
	}
}

func TestQueueBounded(t *testing.T) {
	q := newTaskQueue(2)
	if err := q.Enqueue(newHandle("a", nil, "", "", nil, nil)); err != nil {
		t.Fatalf("enqueue a: %v", err)
	}
	if err := q.Enqueue(newHandle("b", nil, "", "", nil, nil)); err != nil {
		t.Fatalf("enqueue b: %v", err)
	}
	if err := q.Enqueue(newHandle("c", nil, "", "", nil, nil)); err != ErrQueueFull {
		t.Fatalf("enqueue c err = %v, want ErrQueueFull", err)
	}
	if q.Len() != 2 {
		t.Errorf("len = %d, want 2", q.Len())
	}

	// Draining makes room again.
	q.Dequeue(time.Second)
	if err := q.Enqueue(newHandle("d", nil, "", "", nil, nil)); err != nil {
		t.Errorf("enqueue after drain: %v", err)
	}
}

func TestDequeueTimeout(t *testing.T) {
	q := newTaskQueue(0)
	start := time.Now()
	if h := q.Dequeue(50 * time.Millisecond); h != nil {
		t.Fatalf("dequeue on empty queue returned %v", h.TaskID)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("dequeue returned after %v, expected to wait for the timeout", elapsed)
	}
}

func TestDequeueWakesOnEnqueue(t *testing.T) {
	q := newTaskQueue(0)
	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Enqueue(newHandle("late", nil, "", "", nil, nil))
	}()
	h := q.Dequeue(2 * time.Second)
	if h == nil || h.TaskID != "late" {
		t.Fatalf("dequeue = %v, want late", h)
	}
}
