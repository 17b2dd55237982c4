package harvest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gramcrawl/internal/crawler"
	"github.com/JakeFAU/gramcrawl/internal/page"
	"github.com/JakeFAU/gramcrawl/internal/queue/memory"
)

type failingEnqueuer struct{}

func (failingEnqueuer) Enqueue(context.Context, crawler.Task) (bool, error) {
	return false, errors.New("queue offline")
}

func snapshot(t *testing.T, html string) *page.Snapshot {
	t.Helper()
	snap, err := page.NewSnapshot("https://www.instagram.com/natgeo/", html)
	require.NoError(t, err)
	return snap
}

func urls(t *testing.T, q *memory.Queue) []string {
	t.Helper()
	var out []string
	for {
		pending, _ := q.Len()
		if pending == 0 {
			return out
		}
		task, err := q.Dequeue(context.Background())
		require.NoError(t, err)
		require.Equal(t, crawler.LabelPost, task.Label)
		out = append(out, task.URL)
		q.Done(task)
	}
}

func TestDiscoverAnchors(t *testing.T) {
	t.Parallel()

	snap := snapshot(t, `<html><body>
<a href="/p/AAAAA1/">one</a>
<a href="/p/AAAAA1/?img_index=2">one again</a>
<a href="/reel/BBBBB2/">reel</a>
<a href="https://www.instagram.com/reels/CCCCC3/">reels</a>
<a href="/explore/">not a post</a>
</body></html>`)
	q := memory.NewQueue()

	res, err := Discover(context.Background(), snap, q, 10)
	require.NoError(t, err)
	require.Equal(t, Result{Queued: 3, Matched: 3, Layer: LayerAnchors}, res)
	require.Equal(t, []string{
		"https://www.instagram.com/p/AAAAA1/",
		"https://www.instagram.com/reel/BBBBB2/",
		"https://www.instagram.com/reels/CCCCC3/",
	}, urls(t, q))
}

func TestDiscoverRespectsLimit(t *testing.T) {
	t.Parallel()

	snap := snapshot(t, `<body><a href="/p/AAAAA1/">1</a><a href="/p/AAAAA2/">2</a><a href="/p/AAAAA3/">3</a></body>`)
	q := memory.NewQueue()

	res, err := Discover(context.Background(), snap, q, 2)
	require.NoError(t, err)
	require.Equal(t, 2, res.Queued)

	res, err = Discover(context.Background(), snap, q, 0)
	require.NoError(t, err)
	require.True(t, res.Exhausted())
}

func TestDiscoverFallsBackToRawMarkup(t *testing.T) {
	t.Parallel()

	raw := `<html><body><div>no anchors yet</div><script>
{"items":[{"href":"\/p\/XyZ12_ab\/"},{"code":"/p/XyZ12_ab/"},{"u":"/reels/Reel-0001/"},{"s":"/stories/Story55555/"}]}
</script></body></html>`
	snap := snapshot(t, raw)
	q := memory.NewQueue()

	res, err := Discover(context.Background(), snap, q, 20)
	require.NoError(t, err)
	require.Equal(t, LayerRawMarkup, res.Layer)
	require.Equal(t, 3, res.Queued)
	require.Equal(t, []string{
		"https://www.instagram.com/p/XyZ12_ab/",
		"https://www.instagram.com/p/Reel-0001/",
		"https://www.instagram.com/p/Story55555/",
	}, urls(t, q))
}

func TestDiscoverDuplicatesDoNotCount(t *testing.T) {
	t.Parallel()

	snap := snapshot(t, `<body><a href="/p/AAAAA1/">1</a><a href="/p/AAAAA2/">2</a></body>`)
	q := memory.NewQueue()
	_, err := q.Enqueue(context.Background(), crawler.NewTask("https://www.instagram.com/p/AAAAA1/", crawler.LabelPost, nil))
	require.NoError(t, err)

	res, err := Discover(context.Background(), snap, q, 5)
	require.NoError(t, err)
	require.Equal(t, 1, res.Queued)

	res, err = Discover(context.Background(), snap, q, 5)
	require.NoError(t, err)
	require.Equal(t, Result{Queued: 0, Matched: 2, Layer: LayerAnchors}, res)
	require.False(t, res.Exhausted())
}

func TestDiscoverKnownAnchorsSkipRawMarkup(t *testing.T) {
	t.Parallel()

	snap := snapshot(t, `<body><a href="/p/AAAAA1/">1</a><a href="/p/AAAAA2/">2</a>
<script>{"code":"/p/ZZZZZ9/"}</script></body>`)
	q := memory.NewQueue()

	first, err := Discover(context.Background(), snap, q, 5)
	require.NoError(t, err)
	require.Equal(t, Result{Queued: 2, Matched: 2, Layer: LayerAnchors}, first)
	require.Len(t, urls(t, q), 2)

	again, err := Discover(context.Background(), snap, q, 5)
	require.NoError(t, err)
	require.Equal(t, LayerAnchors, again.Layer)
	require.Zero(t, again.Queued)
	require.False(t, again.Exhausted())
	pending, _ := q.Len()
	require.Zero(t, pending)
}

func TestDiscoverNothingFound(t *testing.T) {
	t.Parallel()

	snap := snapshot(t, `<body><p>nothing</p></body>`)
	res, err := Discover(context.Background(), snap, memory.NewQueue(), 5)
	require.NoError(t, err)
	require.Equal(t, Result{Layer: LayerNone}, res)
}

func TestDiscoverPropagatesQueueErrors(t *testing.T) {
	t.Parallel()

	snap := snapshot(t, `<body><a href="/p/AAAAA1/">1</a></body>`)
	_, err := Discover(context.Background(), snap, failingEnqueuer{}, 5)
	require.ErrorContains(t, err, "queue offline")
}
