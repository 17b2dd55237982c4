package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/gramcrawl/internal/progress"
)

const defaultRecent = 20

// Status is a point-in-time view of a run.
type Status struct {
	RunID     string                 `json:"runId"`
	StartedAt time.Time              `json:"startedAt"`
	Finished  bool                   `json:"finished"`
	Counts    map[progress.Stage]int `json:"counts"`
	Reasons   map[string]int         `json:"reasons"`
	Records   map[string]int         `json:"records"`
	Recent    []progress.Event       `json:"recent"`
}

// TallySink keeps live counters and the most recent events in memory.
type TallySink struct {
	mu      sync.RWMutex
	status  Status
	recent  []progress.Event
	maxKeep int
}

// NewTallySink keeps up to keep recent events; non-positive selects 20.
func NewTallySink(keep int) *TallySink {
	if keep <= 0 {
		keep = defaultRecent
	}
	return &TallySink{
		status: Status{
			Counts:  map[progress.Stage]int{},
			Reasons: map[string]int{},
			Records: map[string]int{},
		},
		maxKeep: keep,
	}
}

// Consume folds batch into the tally.
func (s *TallySink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.status.Counts[evt.Stage]++
		switch evt.Stage {
		case progress.StageRunStart:
			s.status.RunID = evt.RunID
			s.status.StartedAt = evt.TS
		case progress.StageRunDone:
			s.status.Finished = true
		}
		if evt.Reason != "" {
			s.status.Reasons[evt.Reason]++
		}
		if evt.RecordType != "" {
			s.status.Records[evt.RecordType]++
		}
		s.recent = append(s.recent, evt)
		if len(s.recent) > s.maxKeep {
			s.recent = s.recent[len(s.recent)-s.maxKeep:]
		}
	}
	return nil
}

// Snapshot returns a deep copy of the current status, newest event last.
func (s *TallySink) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.status
	out.Counts = make(map[progress.Stage]int, len(s.status.Counts))
	for k, v := range s.status.Counts {
		out.Counts[k] = v
	}
	out.Reasons = make(map[string]int, len(s.status.Reasons))
	for k, v := range s.status.Reasons {
		out.Reasons[k] = v
	}
	out.Records = make(map[string]int, len(s.status.Records))
	for k, v := range s.status.Records {
		out.Records[k] = v
	}
	out.Recent = append([]progress.Event(nil), s.recent...)
	return out
}

// Close implements progress.Sink.
func (s *TallySink) Close(context.Context) error {
	return nil
}
