package crawler

import (
	"errors"
	"fmt"
)

// Sentinel errors carried in Outcome.Err.
var (
	ErrLoginRequired = errors.New("login required")
	ErrPlatformError = errors.New("platform error page")
	ErrDriver        = errors.New("driver failure")
)

// OutcomeKind discriminates the three terminal states of a task attempt.
type OutcomeKind int

// Outcome kinds.
const (
	OutcomeOK OutcomeKind = iota
	OutcomeRetry
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeRetry:
		return "retry"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Reason names why a task did not complete.
type Reason string

// Failure reasons.
const (
	ReasonLoginRequired Reason = "LOGIN_REQUIRED"
	ReasonPlatformError Reason = "PLATFORM_ERROR"
	ReasonDriverError   Reason = "DRIVER_ERROR"
)

// Outcome is the result of one crawl attempt.
type Outcome struct {
	Kind   OutcomeKind
	Reason Reason
	Record *Record
	Err    error
}

// Ok wraps a finished record.
func Ok(rec Record) Outcome {
	return Outcome{Kind: OutcomeOK, Record: &rec}
}

// Retry marks the attempt as eligible for another try.
func Retry(reason Reason, err error) Outcome {
	return Outcome{Kind: OutcomeRetry, Reason: reason, Err: err}
}

// Fatal marks the task as abandoned without retry.
func Fatal(reason Reason, err error) Outcome {
	return Outcome{Kind: OutcomeFatal, Reason: reason, Err: err}
}

func (o Outcome) String() string {
	if o.Kind == OutcomeOK {
		return "ok"
	}
	if o.Err != nil {
		return fmt.Sprintf("%s(%s): %v", o.Kind, o.Reason, o.Err)
	}
	return fmt.Sprintf("%s(%s)", o.Kind, o.Reason)
}
