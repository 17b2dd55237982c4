package crawler

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrQueueDrained is returned by Queue.Dequeue once nothing is pending and
// nothing is in flight.
var ErrQueueDrained = errors.New("queue drained")

// Page is a rendered document owned by exactly one worker.
type Page interface {
	URL() string
	HTML(ctx context.Context) (string, error)
	Text(ctx context.Context, selector string) (string, error)
	Attr(ctx context.Context, selector, name string) (string, bool, error)
	Evaluate(ctx context.Context, expression string, out any) error
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	Reload(ctx context.Context) error
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	Sleep(ctx context.Context, d time.Duration) error
	// ClickText clicks the first element matching selector whose visible text
	// contains one of texts (case-insensitive). It reports whether a click happened.
	ClickText(ctx context.Context, selector string, texts []string) (bool, error)
	Scroll(ctx context.Context, px int) error
	Close() error
}

// Driver opens rendered pages.
type Driver interface {
	Open(ctx context.Context, url string) (Page, error)
}

// Enqueuer accepts new tasks. It reports false when the task was already known.
type Enqueuer interface {
	Enqueue(ctx context.Context, task Task) (bool, error)
}

// Queue coordinates task hand-off between producers and workers.
type Queue interface {
	Enqueuer
	Dequeue(ctx context.Context) (Task, error)
	Done(task Task)
	Retry(ctx context.Context, task Task, delay time.Duration) error
}

// BlobStore persists artifacts and returns their URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	URI(path string) string
}

// ResultSink is the append-only record collection for a run.
type ResultSink interface {
	Append(ctx context.Context, rec Record) error
	Records() []Record
}

// RecordWriter mirrors records to a secondary destination.
type RecordWriter interface {
	WriteRecord(ctx context.Context, rec Record) error
}

// Publisher sends payloads to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces unique identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher produces content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// RetryPolicy decides whether a retryable outcome gets another attempt.
type RetryPolicy interface {
	ShouldRetry(outcome Outcome, attempt int) bool
	Backoff(attempt int) time.Duration
}
