// Package dispatcher runs a bounded pool of workers over the task queue.
package dispatcher

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/gramcrawl/internal/crawler"
	"github.com/JakeFAU/gramcrawl/internal/worker"
)

// Dispatcher fans queue work out to a fixed set of workers.
type Dispatcher struct {
	queue   crawler.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue crawler.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{queue: queue, workers: workers}
}

// Seed enqueues the initial tasks and returns how many were accepted.
func (d *Dispatcher) Seed(ctx context.Context, tasks []crawler.Task) (int, error) {
	accepted := 0
	for _, task := range tasks {
		added, err := d.queue.Enqueue(ctx, task)
		if err != nil {
			return accepted, fmt.Errorf("seed %s: %w", task.URL, err)
		}
		if added {
			accepted++
		}
	}
	return accepted, nil
}

// Run starts every worker and blocks until all of them return, which
// happens once the queue drains or ctx ends.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range d.workers {
		g.Go(func() error {
			return w.Run(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	return nil
}
