package dispatcher

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/gramcrawl/internal/crawler"
	"github.com/JakeFAU/gramcrawl/internal/queue/memory"
	"github.com/JakeFAU/gramcrawl/internal/sink"
	"github.com/JakeFAU/gramcrawl/internal/worker"
)

type clock struct{}

func (clock) Now() time.Time { return time.Now() }

type countingHandler struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (h *countingHandler) Handle(_ context.Context, task crawler.Task) crawler.Outcome {
	n := h.inFlight.Add(1)
	defer h.inFlight.Add(-1)
	for {
		p := h.peak.Load()
		if n <= p || h.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return crawler.Ok(crawler.Record{Type: crawler.RecordHashtag, URL: task.URL, Hashtag: &crawler.Hashtag{}})
}

func pool(q crawler.Queue, h worker.Handler, s crawler.ResultSink, n int) []*worker.Worker {
	workers := make([]*worker.Worker, 0, n)
	for i := range n {
		workers = append(workers, worker.New(i, q, h, s, nil, clock{}, nil, nil, crawler.RunContext{ID: "run"}, zap.NewNop()))
	}
	return workers
}

func TestDispatcherDrainsQueue(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue()
	s := sink.New(nil)
	h := &countingHandler{}
	d := New(q, pool(q, h, s, 2))

	var tasks []crawler.Task
	for i := range 10 {
		tasks = append(tasks, crawler.NewTask(fmt.Sprintf("https://www.instagram.com/explore/tags/t%d/", i), crawler.LabelHashtag, nil))
	}
	tasks = append(tasks, tasks[0])
	accepted, err := d.Seed(context.Background(), tasks)
	require.NoError(t, err)
	require.Equal(t, 10, accepted)

	require.NoError(t, d.Run(context.Background()))
	require.Equal(t, 10, s.Len())
	require.LessOrEqual(t, h.peak.Load(), int32(2))
}

func TestDispatcherEmptyQueueReturnsImmediately(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue()
	d := New(q, pool(q, &countingHandler{}, sink.New(nil), 2))

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not finish on an empty queue")
	}
}

func TestDispatcherSeedRejectsInvalidURL(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue()
	d := New(q, nil)
	_, err := d.Seed(context.Background(), []crawler.Task{crawler.NewTask("natgeo", crawler.LabelProfile, nil)})
	require.Error(t, err)
}
