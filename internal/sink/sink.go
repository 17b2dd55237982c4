// Package sink collects the records of a run and mirrors them to secondary
// destinations.
package sink

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/gramcrawl/internal/crawler"
	"github.com/JakeFAU/gramcrawl/internal/metrics"
)

// Sink is an append-only, concurrency-safe crawler.ResultSink. Mirror
// failures are logged and never fail the append.
type Sink struct {
	mu      sync.RWMutex
	records []crawler.Record
	writers []crawler.RecordWriter
	logger  *zap.Logger
}

// New returns a Sink that mirrors every record to writers.
func New(logger *zap.Logger, writers ...crawler.RecordWriter) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{writers: writers, logger: logger}
}

// Append stores rec and forwards it to the mirrors.
func (s *Sink) Append(ctx context.Context, rec crawler.Record) error {
	if rec.Type == "" {
		return fmt.Errorf("record for %s has no type", rec.URL)
	}
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
	metrics.ObserveRecord(string(rec.Type))

	for _, w := range s.writers {
		if err := w.WriteRecord(ctx, rec); err != nil {
			s.logger.Warn("mirror record failed",
				zap.String("url", rec.URL),
				zap.String("type", string(rec.Type)),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Records returns a copy of everything appended so far, in append order.
func (s *Sink) Records() []crawler.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of appended records.
func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// PublishWriter adapts a crawler.Publisher into a crawler.RecordWriter.
type PublishWriter struct {
	publisher crawler.Publisher
	topic     string
}

// NewPublishWriter publishes each record to topic.
func NewPublishWriter(publisher crawler.Publisher, topic string) *PublishWriter {
	return &PublishWriter{publisher: publisher, topic: topic}
}

// WriteRecord publishes rec as JSON.
func (w *PublishWriter) WriteRecord(ctx context.Context, rec crawler.Record) error {
	if _, err := w.publisher.Publish(ctx, w.topic, rec); err != nil {
		return fmt.Errorf("publish record: %w", err)
	}
	return nil
}
