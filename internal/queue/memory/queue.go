// Package memory provides an in-process work queue with URL de-duplication.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/gramcrawl/internal/crawler"
)

// ErrClosed is returned by operations on a closed queue.
var ErrClosed = errors.New("queue closed")

// Queue is a FIFO of crawl tasks. A URL is accepted once per run; retries
// bypass the seen set. Dequeue reports crawler.ErrQueueDrained once nothing
// is pending, in flight, or waiting on a retry timer.
type Queue struct {
	mu       sync.Mutex
	pending  []crawler.Task
	seen     map[string]struct{}
	inFlight int
	delayed  int
	closed   bool
	wake     chan struct{}
	timers   map[*time.Timer]struct{}
}

// NewQueue constructs an empty queue.
func NewQueue() *Queue {
	return &Queue{
		seen:   make(map[string]struct{}),
		wake:   make(chan struct{}),
		timers: make(map[*time.Timer]struct{}),
	}
}

// Enqueue adds task unless its normalized URL was already seen.
func (q *Queue) Enqueue(ctx context.Context, task crawler.Task) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("enqueue canceled: %w", err)
	}
	key, err := crawler.NormalizeURL(task.URL)
	if err != nil {
		return false, fmt.Errorf("enqueue %q: %w", task.URL, err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false, ErrClosed
	}
	if _, ok := q.seen[key]; ok {
		return false, nil
	}
	q.seen[key] = struct{}{}
	q.pending = append(q.pending, task)
	q.broadcastLocked()
	return true, nil
}

// Dequeue pops the next task, blocking while other work may still produce tasks.
func (q *Queue) Dequeue(ctx context.Context) (crawler.Task, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return crawler.Task{}, ErrClosed
		}
		if len(q.pending) > 0 {
			task := q.pending[0]
			q.pending[0] = crawler.Task{}
			q.pending = q.pending[1:]
			q.inFlight++
			q.mu.Unlock()
			return task, nil
		}
		if q.inFlight == 0 && q.delayed == 0 {
			q.mu.Unlock()
			return crawler.Task{}, crawler.ErrQueueDrained
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return crawler.Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
		case <-wake:
		}
	}
}

// Done marks a dequeued task as finished.
func (q *Queue) Done(crawler.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inFlight > 0 {
		q.inFlight--
	}
	q.broadcastLocked()
}

// Retry releases a dequeued task and re-adds it after delay.
func (q *Queue) Retry(ctx context.Context, task crawler.Task, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		q.Done(task)
		return fmt.Errorf("retry canceled: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inFlight > 0 {
		q.inFlight--
	}
	if q.closed {
		return ErrClosed
	}
	if delay <= 0 {
		q.pending = append(q.pending, task)
		q.broadcastLocked()
		return nil
	}
	q.delayed++
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.timers, timer)
		q.delayed--
		if !q.closed {
			q.pending = append(q.pending, task)
		}
		q.broadcastLocked()
	})
	q.timers[timer] = struct{}{}
	return nil
}

// Len reports pending and in-flight counts.
func (q *Queue) Len() (pending, inFlight int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), q.inFlight + q.delayed
}

// Close stops pending retry timers and wakes all waiters.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for timer := range q.timers {
		if timer.Stop() {
			q.delayed--
		}
	}
	q.timers = nil
	q.broadcastLocked()
}

func (q *Queue) broadcastLocked() {
	close(q.wake)
	q.wake = make(chan struct{})
}
