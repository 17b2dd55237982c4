package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/gramcrawl/internal/crawler"
	"github.com/JakeFAU/gramcrawl/internal/publisher/memory"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteRecord(ctx context.Context, rec crawler.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func hashtag(url string) crawler.Record {
	return crawler.Record{Type: crawler.RecordHashtag, URL: url, Hashtag: &crawler.Hashtag{TagName: "#x"}}
}

func TestAppendMirrorsAndKeepsOrder(t *testing.T) {
	t.Parallel()

	w := &mockWriter{}
	w.On("WriteRecord", mock.Anything, mock.AnythingOfType("crawler.Record")).Return(nil).Twice()

	s := New(zap.NewNop(), w)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, hashtag("https://www.instagram.com/explore/tags/a/")))
	require.NoError(t, s.Append(ctx, hashtag("https://www.instagram.com/explore/tags/b/")))

	recs := s.Records()
	require.Len(t, recs, 2)
	require.Equal(t, "https://www.instagram.com/explore/tags/a/", recs[0].URL)
	require.Equal(t, "https://www.instagram.com/explore/tags/b/", recs[1].URL)
	w.AssertExpectations(t)
}

func TestAppendIgnoresMirrorFailure(t *testing.T) {
	t.Parallel()

	w := &mockWriter{}
	w.On("WriteRecord", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

	s := New(nil, w)
	require.NoError(t, s.Append(context.Background(), hashtag("https://www.instagram.com/explore/tags/a/")))
	require.Equal(t, 1, s.Len())
	w.AssertExpectations(t)
}

func TestAppendRejectsUntypedRecord(t *testing.T) {
	t.Parallel()

	s := New(nil)
	require.Error(t, s.Append(context.Background(), crawler.Record{URL: "x"}))
	require.Zero(t, s.Len())
}

func TestAppendConcurrent(t *testing.T) {
	t.Parallel()

	s := New(nil)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Append(context.Background(), hashtag(fmt.Sprintf("https://www.instagram.com/explore/tags/t%d/", i)))
		}()
	}
	wg.Wait()
	require.Equal(t, 50, s.Len())

	recs := s.Records()
	recs[0].URL = "mutated"
	require.NotEqual(t, "mutated", s.Records()[0].URL)
}

func TestPublishWriter(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	w := NewPublishWriter(pub, "gramcrawl-records")
	rec := hashtag("https://www.instagram.com/explore/tags/a/")
	require.NoError(t, w.WriteRecord(context.Background(), rec))

	msgs := pub.Messages("gramcrawl-records")
	require.Len(t, msgs, 1)
	require.Equal(t, rec, msgs[0].Payload)

	pub.FailWith(errors.New("quota"))
	require.ErrorContains(t, w.WriteRecord(context.Background(), rec), "publish record: quota")
}
