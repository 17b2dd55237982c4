package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/gramcrawl/internal/config"
	"github.com/JakeFAU/gramcrawl/internal/crawler"
	"github.com/JakeFAU/gramcrawl/internal/page/pagetest"
	"github.com/JakeFAU/gramcrawl/internal/report"
	"github.com/JakeFAU/gramcrawl/internal/router"
	storageMemory "github.com/JakeFAU/gramcrawl/internal/storage/memory"
)

var filler = strings.Repeat("National Geographic photographers share stories from the field. ", 4)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

type recordingWriter struct {
	mu      sync.Mutex
	records []crawler.Record
}

func (w *recordingWriter) WriteRecord(_ context.Context, rec crawler.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, rec)
	return nil
}

type recordingRuns struct {
	started  crawler.RunContext
	finished *crawler.Summary
}

func (r *recordingRuns) StartRun(_ context.Context, rc crawler.RunContext) error {
	r.started = rc
	return nil
}

func (r *recordingRuns) FinishRun(_ context.Context, _ time.Time, summary crawler.Summary) error {
	r.finished = &summary
	return nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Crawler.HostQPS = 0
	cfg.Crawler.MaxRetries = 0
	cfg.Crawler.TaskTimeout = 5 * time.Second
	cfg.Storage.Backend = "memory"
	return cfg
}

func testConfigFile(t *testing.T, body string) config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	cfg.Crawler.HostQPS = 0
	cfg.Crawler.TaskTimeout = 5 * time.Second
	cfg.Storage.Backend = "memory"
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config, driver crawler.Driver, deps Deps) (*App, *storageMemory.BlobStore) {
	t.Helper()
	store := storageMemory.NewBlobStore()
	deps.Driver = driver
	deps.Store = store
	deps.Clock = fixedClock{}
	deps.RunID = "run-1"
	a, err := NewWithDeps(cfg, deps, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, store
}

func TestRunWithoutInputWritesNoDataReport(t *testing.T) {
	t.Parallel()

	a, store := newTestApp(t, testConfig(t), pagetest.NewDriver(), Deps{})
	res, err := a.Run(context.Background())
	require.NoError(t, err)

	require.True(t, res.Summary.NoData)
	require.Zero(t, res.Summary.TotalRecords)

	html, ok := store.Get("runs/run-1/" + report.KeyHTML)
	require.True(t, ok)
	require.Contains(t, string(html.Data), "No data scraped")
	_, ok = store.Get("runs/run-1/" + report.KeyMarkdown)
	require.True(t, ok)

	dataset, ok := store.Get("runs/run-1/" + report.KeyDataset)
	require.True(t, ok)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(dataset.Data, &rows))
	require.Len(t, rows, 1)
	require.Equal(t, "summary", rows[0]["type"])
	require.Equal(t, true, rows[0]["noData"])
	require.Equal(t, store.URI("runs/run-1/"+report.KeyHTML), rows[0]["url"])
}

func TestRunProfileDiscoversPosts(t *testing.T) {
	t.Parallel()

	profileURL := "https://www.instagram.com/natgeo/"
	postURL := "https://www.instagram.com/p/AAAAA1/"
	driver := pagetest.NewDriver()
	driver.Add(pagetest.NewPage(profileURL, `<html><head>
<meta name="description" content="283M Followers, 190 Following, 29K Posts - See Instagram photos and videos from National Geographic (@natgeo)">
</head><body><header><h2>natgeo</h2></header><main><p>`+filler+`</p>
<a href="/p/AAAAA1/">1</a><a href="/p/AAAAA2/">2</a></main></body></html>`))
	driver.Add(pagetest.NewPage(postURL, `<html><body><article>
<header><a href="/natgeo/">natgeo</a></header>
<img src="https://cdn.example/photo1.jpg">
<section><span>1,234 likes</span></section>
<p>`+filler+`</p></article></body></html>`))

	cfg := testConfig(t)
	cfg.Input.StartURLs = []config.StartURL{
		{URL: profileURL, UserData: map[string]any{router.ParamMaxPosts: 1}},
		{URL: "natgeo"},
	}
	writer := &recordingWriter{}
	runs := &recordingRuns{}
	a, store := newTestApp(t, cfg, driver, Deps{Writers: []crawler.RecordWriter{writer}, Runs: runs})

	res, err := a.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, res.Summary.Profiles)
	require.Equal(t, 1, res.Summary.Posts)
	require.EqualValues(t, 283_000_000, res.Summary.TotalFollowers)
	require.EqualValues(t, 1234, res.Summary.TotalLikes)
	require.False(t, res.Summary.NoData)
	require.EqualValues(t, 2, res.Succeeded)
	require.Len(t, writer.records, 2)

	require.Equal(t, "run-1", runs.started.ID)
	require.NotNil(t, runs.finished)
	require.Equal(t, 2, runs.finished.TotalRecords)

	require.Equal(t, []string{profileURL, postURL}, driver.Opened())
	_, ok := store.Get("runs/run-1/" + report.KeyHTML)
	require.True(t, ok)
}

func TestRunLoginWallIsCountedAndReported(t *testing.T) {
	t.Parallel()

	url := "https://www.instagram.com/private_account/"
	driver := pagetest.NewDriver()
	driver.Add(pagetest.NewPage(url, `<html><body><h2>Log in to Instagram</h2><p>`+filler+`</p></body></html>`))

	cfg := testConfig(t)
	cfg.Input.StartURLs = []config.StartURL{{URL: url}}
	cfg.Report.Enabled = false
	a, store := newTestApp(t, cfg, driver, Deps{})

	res, err := a.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Failed)
	require.Equal(t, 1, res.Summary.FailedTasks)
	require.True(t, res.Summary.NoData)
	require.Empty(t, res.Artifacts.HTML)
	require.NotEmpty(t, res.Artifacts.Dataset)

	_, ok := store.Get("runs/run-1/LOGIN_WALL_SCREENSHOT")
	require.True(t, ok)
}

func TestRunCanceledStillWritesReport(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Input.StartURLs = []config.StartURL{{URL: "https://www.instagram.com/natgeo/"}}
	a, store := newTestApp(t, cfg, pagetest.NewDriver(), Deps{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Run(ctx)
	require.Error(t, err)

	_, ok := store.Get("runs/run-1/" + report.KeyDataset)
	require.True(t, ok)
}

func TestSeedTasks(t *testing.T) {
	t.Parallel()

	tasks := SeedTasks(config.InputConfig{
		StartURLs: []config.StartURL{
			{URL: "https://www.instagram.com/natgeo/"},
			{URL: "https://www.instagram.com/p/AAAAA1/", UserData: map[string]any{"source": "manual"}},
			{URL: "https://www.instagram.com/whatever/", Label: "location"},
		},
		Search:      "#sunset",
		SearchLimit: 7,
	})
	require.Len(t, tasks, 4)
	require.Equal(t, crawler.LabelProfile, tasks[0].Label)
	require.Equal(t, crawler.LabelPost, tasks[1].Label)
	require.Equal(t, "manual", tasks[1].UserData["source"])
	require.Equal(t, crawler.LabelLocation, tasks[2].Label)

	search := tasks[3]
	require.Equal(t, "https://www.instagram.com/explore/tags/sunset/", search.URL)
	require.Equal(t, crawler.LabelHashtag, search.Label)
	require.Equal(t, 7, search.IntParam(router.ParamLimit, 0))
}

func TestNewWithDepsRequiresDriver(t *testing.T) {
	t.Parallel()

	_, err := NewWithDeps(config.Config{}, Deps{}, nil)
	require.Error(t, err)
}

func TestRunHonorsMaxPostsFromConfigFile(t *testing.T) {
	t.Parallel()

	profileURL := "https://www.instagram.com/natgeo/"
	driver := pagetest.NewDriver()
	driver.Add(pagetest.NewPage(profileURL, `<html><head>
<meta name="description" content="283M Followers, 190 Following, 29K Posts - See Instagram photos and videos from National Geographic (@natgeo)">
</head><body><header><h2>natgeo</h2></header><main><p>`+filler+`</p>
<a href="/p/AAAAA1/">1</a><a href="/p/AAAAA2/">2</a><a href="/p/AAAAA3/">3</a></main></body></html>`))

	cfg := testConfigFile(t, `
input:
  max_posts_per_profile: 30
  start_urls:
    - url: https://www.instagram.com/natgeo/
      user_data:
        maxPosts: 1
crawler:
  max_retries: 0
`)
	tasks := SeedTasks(cfg.Input)
	require.Len(t, tasks, 1)
	require.Equal(t, 1, tasks[0].IntParam(router.ParamMaxPosts, cfg.Input.MaxPostsPerProfile))

	a, _ := newTestApp(t, cfg, driver, Deps{})
	_, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{profileURL, "https://www.instagram.com/p/AAAAA1/"}, driver.Opened())
}
