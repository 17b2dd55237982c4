package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the lifecycle milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageTaskStart     Stage = "TASK_START"
	StageTaskDone      Stage = "TASK_DONE"
	StageTaskRetry     Stage = "TASK_RETRY"
	StageTaskFatal     Stage = "TASK_FATAL"
	StageTaskAbandoned Stage = "TASK_ABANDONED"
	StageRunDone       Stage = "RUN_DONE"
)

// Terminal reports whether the stage ends a task for good.
func (s Stage) Terminal() bool {
	return s == StageTaskDone || s == StageTaskFatal || s == StageTaskAbandoned
}

// Event is one progress milestone.
type Event struct {
	RunID string
	TS    time.Time
	Stage Stage
	// URL and Label identify the task for task-scoped stages.
	URL     string
	Label   string
	Attempt int
	// Reason is the failure reason for retry, fatal and abandoned stages.
	Reason     string
	RecordType string
	Dur        time.Duration
	Note       string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageTaskStart, StageTaskDone, StageTaskRetry, StageTaskFatal, StageTaskAbandoned:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
