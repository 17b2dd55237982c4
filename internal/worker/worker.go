// Package worker implements the per-task execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/gramcrawl/internal/crawler"
	"github.com/JakeFAU/gramcrawl/internal/metrics"
	"github.com/JakeFAU/gramcrawl/internal/progress"
	"github.com/JakeFAU/gramcrawl/internal/telemetry"
)

// Handler performs one attempt of a task.
type Handler interface {
	Handle(ctx context.Context, task crawler.Task) crawler.Outcome
}

// Stats counts terminal task results across all workers of a run.
type Stats struct {
	Succeeded atomic.Int64
	Failed    atomic.Int64
	Retried   atomic.Int64
}

// Worker pulls tasks until the queue drains.
type Worker struct {
	id      int
	queue   crawler.Queue
	handler Handler
	sink    crawler.ResultSink
	policy  crawler.RetryPolicy
	clock   crawler.Clock
	emitter progress.Emitter
	stats   *Stats
	run     crawler.RunContext
	logger  *zap.Logger
}

// New constructs a Worker. emitter and logger may be nil.
func New(
	id int,
	queue crawler.Queue,
	handler Handler,
	sink crawler.ResultSink,
	policy crawler.RetryPolicy,
	clock crawler.Clock,
	emitter progress.Emitter,
	stats *Stats,
	run crawler.RunContext,
	logger *zap.Logger,
) *Worker {
	if emitter == nil {
		emitter = progress.Discard{}
	}
	if stats == nil {
		stats = &Stats{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:      id,
		queue:   queue,
		handler: handler,
		sink:    sink,
		policy:  policy,
		clock:   clock,
		emitter: emitter,
		stats:   stats,
		run:     run,
		logger:  logger.With(zap.Int("worker", id)),
	}
}

// Run processes tasks until the queue reports it is drained or ctx ends.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("worker %d: %w", w.id, err)
		}
		task, err := w.queue.Dequeue(ctx)
		if errors.Is(err, crawler.ErrQueueDrained) {
			w.logger.Debug("queue drained, worker exiting")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("worker %d: %w", w.id, ctx.Err())
			}
			return fmt.Errorf("worker %d dequeue: %w", w.id, err)
		}
		w.process(ctx, task)
	}
}

func (w *Worker) process(ctx context.Context, task crawler.Task) {
	start := w.clock.Now()
	w.emit(progress.StageTaskStart, task, "", "", 0)

	metrics.IncActiveWorkers()
	spanCtx, span := telemetry.StartTask(ctx, w.run.ID, task)
	outcome := w.handler.Handle(spanCtx, task)
	telemetry.EndTask(span, outcome)
	metrics.DecActiveWorkers()

	dur := w.clock.Now().Sub(start)
	metrics.ObserveOutcome(string(task.Label), outcome.Kind.String(), string(outcome.Reason))
	logger := w.logger.With(
		zap.String("url", task.URL),
		zap.String("label", string(task.Label)),
		zap.Int("attempt", task.Attempt),
	)

	switch outcome.Kind {
	case crawler.OutcomeOK:
		w.queue.Done(task)
		if outcome.Record == nil {
			logger.Error("ok outcome without record")
			w.stats.Failed.Add(1)
			w.emit(progress.StageTaskAbandoned, task, "NO_RECORD", "", dur)
			return
		}
		if err := w.sink.Append(ctx, *outcome.Record); err != nil {
			logger.Error("append record failed", zap.Error(err))
		}
		w.stats.Succeeded.Add(1)
		w.emit(progress.StageTaskDone, task, "", string(outcome.Record.Type), dur)
	case crawler.OutcomeRetry:
		if w.policy != nil && w.policy.ShouldRetry(outcome, task.Attempt) {
			delay := w.policy.Backoff(task.Attempt)
			if err := w.queue.Retry(ctx, task.Retried(), delay); err != nil {
				logger.Warn("requeue failed, abandoning task", zap.Error(err))
				w.abandon(task, outcome, dur, logger)
				return
			}
			w.stats.Retried.Add(1)
			metrics.ObserveRetry(string(outcome.Reason))
			logger.Info("task scheduled for retry",
				zap.String("reason", string(outcome.Reason)),
				zap.Duration("delay", delay),
				zap.Error(outcome.Err),
			)
			w.emit(progress.StageTaskRetry, task, string(outcome.Reason), "", dur)
			return
		}
		w.queue.Done(task)
		w.abandon(task, outcome, dur, logger)
	default:
		w.queue.Done(task)
		w.stats.Failed.Add(1)
		logger.Warn("task failed", zap.String("reason", string(outcome.Reason)), zap.Error(outcome.Err))
		w.emit(progress.StageTaskFatal, task, string(outcome.Reason), "", dur)
	}
}

func (w *Worker) abandon(task crawler.Task, outcome crawler.Outcome, dur time.Duration, logger *zap.Logger) {
	w.stats.Failed.Add(1)
	logger.Warn("retries exhausted, abandoning task",
		zap.String("reason", string(outcome.Reason)),
		zap.Error(outcome.Err),
	)
	w.emit(progress.StageTaskAbandoned, task, string(outcome.Reason), "", dur)
}

func (w *Worker) emit(stage progress.Stage, task crawler.Task, reason, recordType string, dur time.Duration) {
	w.emitter.Emit(progress.Event{
		RunID:      w.run.ID,
		TS:         w.clock.Now(),
		Stage:      stage,
		URL:        task.URL,
		Label:      string(task.Label),
		Attempt:    task.Attempt,
		Reason:     reason,
		RecordType: recordType,
		Dur:        dur,
	})
}
