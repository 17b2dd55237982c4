// Package app assembles the services of one crawl run and executes it from
// seeding to the final report.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/gramcrawl/internal/api"
	"github.com/JakeFAU/gramcrawl/internal/clock/system"
	"github.com/JakeFAU/gramcrawl/internal/config"
	"github.com/JakeFAU/gramcrawl/internal/crawler"
	"github.com/JakeFAU/gramcrawl/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/gramcrawl/internal/fetcher/colly"
	"github.com/JakeFAU/gramcrawl/internal/fetcher/headless"
	"github.com/JakeFAU/gramcrawl/internal/gate"
	"github.com/JakeFAU/gramcrawl/internal/hash/sha256"
	"github.com/JakeFAU/gramcrawl/internal/id/uuid"
	"github.com/JakeFAU/gramcrawl/internal/metrics"
	"github.com/JakeFAU/gramcrawl/internal/policy/ratelimit"
	"github.com/JakeFAU/gramcrawl/internal/progress"
	"github.com/JakeFAU/gramcrawl/internal/progress/sinks"
	"github.com/JakeFAU/gramcrawl/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/gramcrawl/internal/queue/memory"
	"github.com/JakeFAU/gramcrawl/internal/report"
	"github.com/JakeFAU/gramcrawl/internal/router"
	"github.com/JakeFAU/gramcrawl/internal/sink"
	"github.com/JakeFAU/gramcrawl/internal/storage/gcs"
	"github.com/JakeFAU/gramcrawl/internal/storage/local"
	storageMemory "github.com/JakeFAU/gramcrawl/internal/storage/memory"
	"github.com/JakeFAU/gramcrawl/internal/storage/postgres"
	"github.com/JakeFAU/gramcrawl/internal/telemetry"
	"github.com/JakeFAU/gramcrawl/internal/worker"
)

const reportTimeout = 2 * time.Minute

// RunRecorder persists run lifecycle rows.
type RunRecorder interface {
	StartRun(ctx context.Context, rc crawler.RunContext) error
	FinishRun(ctx context.Context, finishedAt time.Time, summary crawler.Summary) error
}

// Deps are the replaceable services of a run. Nil fields get defaults:
// a memory blob store, the system clock, UUID run IDs and a private
// Prometheus registry. Driver is required.
type Deps struct {
	Driver   crawler.Driver
	Store    crawler.BlobStore
	Clock    crawler.Clock
	IDs      crawler.IDGenerator
	Hasher   crawler.Hasher
	Writers  []crawler.RecordWriter
	Runs     RunRecorder
	Registry prometheus.Registerer
	RunID    string
}

// Result describes a finished run.
type Result struct {
	Run       crawler.RunContext
	Summary   crawler.Summary
	Artifacts report.Artifacts
	Succeeded int64
	Failed    int64
	Retried   int64
}

// App holds the long-lived services of one run.
type App struct {
	cfg     config.Config
	deps    Deps
	run     crawler.RunContext
	logger  *zap.Logger
	closers []func() error
}

// New builds every service from cfg: the artifact store, the page driver,
// and the optional Postgres and Pub/Sub record mirrors.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	runID, err := uuid.NewUUIDGenerator().NewID()
	if err != nil {
		return nil, err
	}
	deps := Deps{RunID: runID, Registry: prometheus.DefaultRegisterer}
	var closers []func() error
	fail := func(err error) (*App, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName: cfg.Tracing.ServiceName,
			ProjectID:   cfg.Tracing.ProjectID,
		})
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() error { return tp.Shutdown(context.Background()) })
	}

	store, closeStore, err := newBlobStore(ctx, cfg.Storage)
	if err != nil {
		return fail(err)
	}
	deps.Store = store
	if closeStore != nil {
		closers = append(closers, closeStore)
	}

	driver, closeDriver, err := newDriver(cfg, logger)
	if err != nil {
		return fail(err)
	}
	deps.Driver = driver
	if closeDriver != nil {
		closers = append(closers, closeDriver)
	}

	if cfg.Records.Enabled {
		records, err := postgres.NewRecordStore(ctx, postgres.Config{
			DSN:         cfg.Records.DSN,
			RecordTable: cfg.Records.RecordTable,
			RunTable:    cfg.Records.RunTable,
			MaxConns:    cfg.Records.MaxConns,
		}, runID)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() error { records.Close(); return nil })
		if err := records.EnsureSchema(ctx); err != nil {
			return fail(err)
		}
		deps.Writers = append(deps.Writers, records)
		deps.Runs = records
	}

	if cfg.Publisher.Enabled {
		pub, err := pubsub.NewFromProject(ctx, cfg.Publisher.ProjectID)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, pub.Close)
		deps.Writers = append(deps.Writers, sink.NewPublishWriter(pub, cfg.Publisher.Topic))
	}

	a, err := NewWithDeps(cfg, deps, logger)
	if err != nil {
		return fail(err)
	}
	a.closers = closers
	return a, nil
}

// NewWithDeps builds an App around caller-supplied services.
func NewWithDeps(cfg config.Config, deps Deps, logger *zap.Logger) (*App, error) {
	if deps.Driver == nil {
		return nil, errors.New("page driver is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Store == nil {
		deps.Store = storageMemory.NewBlobStore()
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.IDs == nil {
		deps.IDs = uuid.NewUUIDGenerator()
	}
	if deps.Hasher == nil {
		deps.Hasher = sha256.New()
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}
	if deps.RunID == "" {
		id, err := deps.IDs.NewID()
		if err != nil {
			return nil, err
		}
		deps.RunID = id
	}
	run := crawler.RunContext{ID: deps.RunID, StartedAt: deps.Clock.Now()}
	run.ReportURL = deps.Store.URI(run.ArtifactPath(report.KeyHTML))

	return &App{
		cfg:    cfg,
		deps:   deps,
		run:    run,
		logger: logger.With(zap.String("run_id", run.ID)),
	}, nil
}

// RunContext returns the per-run values shared by every component.
func (a *App) RunContext() crawler.RunContext {
	return a.run
}

// Run seeds the queue, processes it until it drains, and writes the report.
// The report is written even when the crawl is interrupted.
func (a *App) Run(ctx context.Context) (Result, error) {
	metrics.Init()
	clock := a.deps.Clock
	res := Result{Run: a.run}

	promSink, err := sinks.NewPrometheusSink(a.deps.Registry)
	if err != nil {
		return res, err
	}
	tally := sinks.NewTallySink(50)
	hub := progress.NewHub(progress.Config{Logger: a.logger.Named("progress")},
		sinks.NewLogSink(a.logger.Named("progress")), promSink, tally)
	hub.Emit(progress.Event{RunID: a.run.ID, TS: clock.Now(), Stage: progress.StageRunStart})

	if a.deps.Runs != nil {
		if err := a.deps.Runs.StartRun(ctx, a.run); err != nil {
			a.logger.Warn("record run start failed", zap.Error(err))
		}
	}

	results := sink.New(a.logger.Named("sink"), a.deps.Writers...)

	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	if a.cfg.Server.Enabled {
		srv := api.NewServer(tally, results, a.run, clock, a.logger)
		go func() {
			if err := srv.Serve(serverCtx, a.cfg.Server.Addr); err != nil {
				a.logger.Warn("status server stopped", zap.Error(err))
			}
		}()
	}

	queue := queueMemory.NewQueue()
	defer queue.Close()
	stats := &worker.Stats{}
	d := a.buildDispatcher(queue, results, hub, stats)

	accepted, err := d.Seed(ctx, a.seeds())
	if err != nil {
		a.logger.Warn("seeding stopped early", zap.Error(err))
	}
	a.logger.Info("run started", zap.Int("seeds", accepted), zap.Int("workers", a.cfg.Crawler.MaxConcurrency))

	runErr := d.Run(ctx)
	if runErr != nil {
		a.logger.Warn("crawl interrupted, writing partial report", zap.Error(runErr))
	}

	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()
	records := results.Records()
	failed := int(stats.Failed.Load())
	gen := report.NewGenerator(a.deps.Store, a.run, clock, a.cfg.Report.Enabled, a.logger.Named("report"))
	artifacts, reportErr := gen.Generate(reportCtx, records, failed)

	res.Summary = report.Summarize(records, failed)
	res.Artifacts = artifacts
	res.Succeeded = stats.Succeeded.Load()
	res.Failed = stats.Failed.Load()
	res.Retried = stats.Retried.Load()

	if a.deps.Runs != nil {
		if err := a.deps.Runs.FinishRun(reportCtx, clock.Now(), res.Summary); err != nil {
			a.logger.Warn("record run finish failed", zap.Error(err))
		}
	}

	hub.Emit(progress.Event{
		RunID: a.run.ID,
		TS:    clock.Now(),
		Stage: progress.StageRunDone,
		Dur:   clock.Now().Sub(a.run.StartedAt),
		Note:  fmt.Sprintf("%d records, %d failed", res.Summary.TotalRecords, res.Failed),
	})
	if err := hub.Close(reportCtx); err != nil {
		a.logger.Warn("progress hub close failed", zap.Error(err))
	}

	if reportErr != nil {
		return res, fmt.Errorf("write report: %w", reportErr)
	}
	if runErr != nil {
		return res, runErr
	}
	return res, nil
}

func (a *App) buildDispatcher(queue *queueMemory.Queue, results *sink.Sink, hub *progress.Hub, stats *worker.Stats) *dispatcher.Dispatcher {
	cfg := a.cfg
	g := gate.New(gateConfig(cfg.Gate), a.deps.Store, a.run, a.logger.Named("gate"))
	limiter := ratelimit.New(ratelimit.Config{HostQPS: cfg.Crawler.HostQPS, Burst: cfg.Crawler.HostBurst})
	r := router.New(a.deps.Driver, g, queue, a.deps.Store, a.deps.Hasher, a.deps.Clock, limiter, a.run,
		routerConfig(cfg), a.logger.Named("router"))
	policy := crawler.NewExponentialRetryPolicy(cfg.Crawler.MaxRetries, cfg.Crawler.RetryBaseDelay, cfg.Crawler.RetryMaxDelay)

	n := cfg.Crawler.MaxConcurrency
	if n <= 0 {
		n = 1
	}
	workers := make([]*worker.Worker, 0, n)
	for i := range n {
		workers = append(workers, worker.New(i, queue, r, results, policy, a.deps.Clock, hub, stats, a.run,
			a.logger.Named("worker")))
	}
	return dispatcher.New(queue, workers)
}

// seeds turns the input section into tasks. Unusable URLs are logged and skipped.
func (a *App) seeds() []crawler.Task {
	tasks := SeedTasks(a.cfg.Input)
	out := tasks[:0]
	for _, t := range tasks {
		if _, err := crawler.NormalizeURL(t.URL); err != nil {
			a.logger.Warn("skipping start url", zap.String("url", t.URL), zap.Error(err))
			continue
		}
		out = append(out, t)
	}
	return out
}

// SeedTasks converts start URLs and the search term into tasks. The search
// term becomes a hashtag task limited to SearchLimit discovered posts.
func SeedTasks(in config.InputConfig) []crawler.Task {
	tasks := make([]crawler.Task, 0, len(in.StartURLs)+1)
	for _, u := range in.StartURLs {
		label := router.Route(u.URL)
		if u.Label != "" {
			label = crawler.ParseLabel(u.Label)
		}
		tasks = append(tasks, crawler.NewTask(u.URL, label, u.UserData))
	}
	if in.Search != "" {
		tasks = append(tasks, crawler.NewTask(crawler.HashtagURL(in.Search), crawler.LabelHashtag,
			map[string]any{router.ParamLimit: in.SearchLimit}))
	}
	return tasks
}

// Close releases drivers and connections in reverse construction order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close service failed", zap.Error(err))
		}
	}
	a.closers = nil
}

func newBlobStore(ctx context.Context, cfg config.StorageConfig) (crawler.BlobStore, func() error, error) {
	switch cfg.Backend {
	case "gcs":
		return gcs.NewFromConfig(ctx, gcs.Config{Bucket: cfg.GCSBucket, Prefix: cfg.Prefix})
	case "memory":
		return storageMemory.NewBlobStore(), nil, nil
	default:
		store, err := local.New(local.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, nil, fmt.Errorf("local storage: %w", err)
		}
		return store, nil, nil
	}
}

func newDriver(cfg config.Config, logger *zap.Logger) (crawler.Driver, func() error, error) {
	if cfg.Crawler.Driver == "colly" {
		d, err := collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Crawler.UserAgent,
			Timeout:   cfg.Browser.NavTimeout,
			Cookies:   cfg.Cookies(),
			ProxyURLs: cfg.Input.ProxyURLs,
		})
		if err != nil {
			return nil, nil, err
		}
		return d, nil, nil
	}
	d, err := headless.NewDriver(headless.Config{
		Sessions:          cfg.Crawler.MaxConcurrency,
		UserAgent:         cfg.Crawler.UserAgent,
		NavigationTimeout: cfg.Browser.NavTimeout,
		ViewportWidth:     cfg.Browser.ViewportWidth,
		ViewportHeight:    cfg.Browser.ViewportHeight,
		ProxyURLs:         cfg.Input.ProxyURLs,
		Cookies:           cfg.Cookies(),
	}, logger.Named("headless"))
	if err != nil {
		return nil, nil, err
	}
	return d, func() error { d.Close(); return nil }, nil
}

func gateConfig(cfg config.GateConfig) gate.Config {
	out := gate.DefaultConfig()
	if cfg.MinTextChars > 0 {
		out.MinTextChars = cfg.MinTextChars
	}
	if len(cfg.ConsentTexts) > 0 {
		out.ConsentTexts = cfg.ConsentTexts
	}
	return out
}

func routerConfig(cfg config.Config) router.Config {
	out := router.DefaultConfig()
	b := cfg.Browser
	if cfg.Crawler.TaskTimeout > 0 {
		out.TaskTimeout = cfg.Crawler.TaskTimeout
	}
	out.SettleDelay = b.SettleDelay
	out.SkeletonDelay = b.SkeletonDelay
	if b.WaitTimeout > 0 {
		out.WaitTimeout = b.WaitTimeout
	}
	out.ScrollPasses = b.ScrollPasses
	if b.ScrollStepPx > 0 {
		out.ScrollStepPx = b.ScrollStepPx
	}
	out.ScrollPause = b.ScrollPause
	out.MaxPostsPerProfile = cfg.Input.MaxPostsPerProfile
	out.ExploreLimit = cfg.Input.ExploreLimit
	return out
}
