package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/gramcrawl/internal/progress"
)

// PrometheusSink exports run and task lifecycle metrics.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted prometheus.Counter
	tasksStarted  *prometheus.CounterVec
	tasksFinished *prometheus.CounterVec
	tasksRunning  prometheus.Gauge
	taskDuration  *prometheus.HistogramVec
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gramcrawl_runs_started_total",
			Help: "Crawl runs started.",
		}),
		runsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gramcrawl_runs_completed_total",
			Help: "Crawl runs that reached the report stage.",
		}),
		tasksStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gramcrawl_task_attempts_total",
			Help: "Task attempts started, partitioned by label.",
		}, []string{"label"}),
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gramcrawl_task_attempts_finished_total",
			Help: "Task attempts finished, partitioned by label and stage.",
		}, []string{"label", "stage"}),
		tasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gramcrawl_task_attempts_running",
			Help: "Task attempts currently in progress.",
		}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gramcrawl_task_duration_seconds",
			Help:    "Wall time per task attempt, partitioned by stage.",
			Buckets: []float64{1, 5, 10, 20, 45, 90, 180},
		}, []string{"stage"}),
	}
	for _, c := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.tasksStarted,
		s.tasksFinished,
		s.tasksRunning,
		s.taskDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
		case progress.StageRunDone:
			s.runsCompleted.Inc()
		case progress.StageTaskStart:
			s.tasksStarted.WithLabelValues(evt.Label).Inc()
			s.tasksRunning.Inc()
		case progress.StageTaskDone, progress.StageTaskRetry, progress.StageTaskFatal, progress.StageTaskAbandoned:
			s.tasksFinished.WithLabelValues(evt.Label, string(evt.Stage)).Inc()
			s.tasksRunning.Dec()
			if evt.Dur > 0 {
				s.taskDuration.WithLabelValues(string(evt.Stage)).Observe(evt.Dur.Seconds())
			}
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
