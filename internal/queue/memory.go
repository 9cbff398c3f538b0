package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-process queue for standalone mode and tests. Tasks do not
// survive a restart, so Requeue has nothing to recover.
type Memory struct {
	tasks  chan Task
	once   sync.Once
	closed chan struct{}
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Memory{tasks: make(chan Task, capacity), closed: make(chan struct{})}
}

func (q *Memory) Enqueue(ctx context.Context, t Task) error {
	select {
	case <-q.closed:
		return fmt.Errorf("enqueue: queue closed")
	default:
	}
	select {
	case q.tasks <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Memory) Dequeue(ctx context.Context) (*Delivery, error) {
	timer := time.NewTimer(pollTimeout)
	defer timer.Stop()
	select {
	case t := <-q.tasks:
		return &Delivery{Task: t}, nil
	case <-timer.C:
		return nil, nil
	case <-q.closed:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *Memory) Ack(context.Context, *Delivery) error { return nil }

func (q *Memory) Requeue(context.Context) (int, error) { return 0, nil }

// Len returns the number of waiting tasks.
func (q *Memory) Len() int { return len(q.tasks) }

// Depth reports buffered tasks as waiting. Delivered tasks are not tracked.
func (q *Memory) Depth(context.Context) (waiting, inflight int64, err error) {
	return int64(len(q.tasks)), 0, nil
}

func (q *Memory) Close() error {
	q.once.Do(func() { close(q.closed) })
	return nil
}
