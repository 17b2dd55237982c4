// Package router drives one task through open, classification, and
// extraction, and reports the attempt as a crawler.Outcome.
package router

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/gramcrawl/internal/crawler"
	"github.com/JakeFAU/gramcrawl/internal/extract"
	"github.com/JakeFAU/gramcrawl/internal/gate"
	"github.com/JakeFAU/gramcrawl/internal/harvest"
	"github.com/JakeFAU/gramcrawl/internal/metrics"
	"github.com/JakeFAU/gramcrawl/internal/page"
)

// Artifact key formats for profile diagnostics.
const (
	ProfileScreenshotKey = "PROFILE_%s_SCREENSHOT"
	RawHTMLDumpKey       = "RAW_HTML_DUMP_%s"
)

// User data keys that override discovery limits per task.
const (
	ParamMaxPosts = "maxPosts"
	ParamLimit    = "limit"
)

// Config tunes page preparation and discovery limits.
type Config struct {
	TaskTimeout        time.Duration
	SettleDelay        time.Duration
	SkeletonDelay      time.Duration
	WaitTimeout        time.Duration
	ScrollPasses       int
	ScrollStepPx       int
	ScrollPause        time.Duration
	MaxPostsPerProfile int
	// ExploreLimit caps discovery on hashtag and location pages whose task
	// carries no limit of its own.
	ExploreLimit int
}

// DefaultConfig returns the stock timings and limits.
func DefaultConfig() Config {
	return Config{
		TaskTimeout:        90 * time.Second,
		SettleDelay:        2 * time.Second,
		SkeletonDelay:      5 * time.Second,
		WaitTimeout:        10 * time.Second,
		ScrollPasses:       3,
		ScrollStepPx:       1200,
		ScrollPause:        1500 * time.Millisecond,
		MaxPostsPerProfile: 30,
		ExploreLimit:       20,
	}
}

// Pacer delays page opens, typically per host.
type Pacer interface {
	Wait(ctx context.Context, url string) error
}

// Route picks the extractor for a URL from its path shape alone.
func Route(rawURL string) crawler.Label {
	segs := crawler.PathSegments(rawURL)
	if len(segs) >= 2 && strings.EqualFold(segs[0], "explore") {
		switch strings.ToLower(segs[1]) {
		case "tags":
			return crawler.LabelHashtag
		case "locations":
			return crawler.LabelLocation
		}
	}
	for _, seg := range segs {
		switch strings.ToLower(seg) {
		case "p", "reel", "reels":
			return crawler.LabelPost
		}
	}
	return crawler.LabelProfile
}

// Router runs the per-task state machine.
type Router struct {
	driver   crawler.Driver
	gate     *gate.Gate
	queue    crawler.Enqueuer
	store    crawler.BlobStore
	hasher   crawler.Hasher
	clock    crawler.Clock
	pacer    Pacer
	run      crawler.RunContext
	cfg      Config
	profiles *extract.ProfileExtractor
	posts    *extract.PostExtractor
	logger   *zap.Logger
}

// New constructs a Router. store, hasher and pacer may be nil.
func New(
	driver crawler.Driver,
	g *gate.Gate,
	queue crawler.Enqueuer,
	store crawler.BlobStore,
	hasher crawler.Hasher,
	clock crawler.Clock,
	pacer Pacer,
	run crawler.RunContext,
	cfg Config,
	logger *zap.Logger,
) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		driver:   driver,
		gate:     g,
		queue:    queue,
		store:    store,
		hasher:   hasher,
		clock:    clock,
		pacer:    pacer,
		run:      run,
		cfg:      cfg,
		profiles: extract.NewProfileExtractor(nil, logger.Named("extract")),
		posts:    extract.NewPostExtractor(),
		logger:   logger,
	}
}

// Handle performs one attempt of task. It never panics on page content and
// never returns a Go error; every failure is folded into the Outcome.
func (r *Router) Handle(ctx context.Context, task crawler.Task) crawler.Outcome {
	if r.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.TaskTimeout)
		defer cancel()
	}
	label := Route(task.URL)
	logger := r.logger.With(
		zap.String("url", task.URL),
		zap.String("label", string(label)),
		zap.Int("attempt", task.Attempt),
	)

	if r.pacer != nil {
		if err := r.pacer.Wait(ctx, task.URL); err != nil {
			return driverRetry(err)
		}
	}
	p, err := r.driver.Open(ctx, task.URL)
	if err != nil {
		return driverRetry(err)
	}
	defer func() {
		if cerr := p.Close(); cerr != nil {
			logger.Debug("page close failed", zap.Error(cerr))
		}
	}()

	if err := p.Sleep(ctx, r.cfg.SettleDelay); err != nil {
		return driverRetry(err)
	}
	verdict, snap, err := r.gate.Inspect(ctx, p)
	if err != nil {
		return driverRetry(err)
	}
	metrics.ObserveVerdict(string(verdict))

	if verdict == crawler.VerdictSkeleton {
		logger.Info("page not hydrated, reloading once")
		if err := p.Sleep(ctx, r.cfg.SkeletonDelay); err != nil {
			return driverRetry(err)
		}
		if err := p.Reload(ctx); err != nil {
			return driverRetry(err)
		}
		if err := p.Sleep(ctx, r.cfg.SettleDelay); err != nil {
			return driverRetry(err)
		}
		verdict, snap, err = r.gate.Inspect(ctx, p)
		if err != nil {
			return driverRetry(err)
		}
		metrics.ObserveVerdict(string(verdict))
	}

	switch verdict {
	case crawler.VerdictLoginWall:
		logger.Warn("login wall, abandoning task")
		return crawler.Fatal(crawler.ReasonLoginRequired, crawler.ErrLoginRequired)
	case crawler.VerdictTransientError:
		logger.Warn("platform error page")
		return crawler.Retry(crawler.ReasonPlatformError, crawler.ErrPlatformError)
	case crawler.VerdictSkeleton:
		logger.Warn("page still skeletal after reload, extracting best effort")
	}

	r.gate.DismissConsent(ctx, p)
	if err := r.prepare(ctx, p, label); err != nil {
		return driverRetry(err)
	}
	if snap, err = page.Capture(ctx, p); err != nil {
		return driverRetry(err)
	}

	rec, err := r.extract(ctx, task, label, snap, p, logger)
	if err != nil {
		return driverRetry(err)
	}
	return crawler.Ok(rec)
}

// prepare waits for the content each page kind needs. Wait failures are
// ignored; the snapshot taken afterwards is extracted regardless.
func (r *Router) prepare(ctx context.Context, p crawler.Page, label crawler.Label) error {
	switch label {
	case crawler.LabelProfile:
		for i := 0; i < r.cfg.ScrollPasses; i++ {
			if err := p.Scroll(ctx, r.cfg.ScrollStepPx); err != nil {
				return fmt.Errorf("scroll: %w", err)
			}
			if err := p.Sleep(ctx, r.cfg.ScrollPause); err != nil {
				return err
			}
		}
	case crawler.LabelPost:
		_ = p.WaitFor(ctx, "article", r.cfg.WaitTimeout)
	case crawler.LabelHashtag, crawler.LabelLocation:
		_ = p.WaitFor(ctx, "header h1", r.cfg.WaitTimeout)
	}
	return ctx.Err()
}

func (r *Router) extract(
	ctx context.Context,
	task crawler.Task,
	label crawler.Label,
	snap *page.Snapshot,
	p crawler.Page,
	logger *zap.Logger,
) (crawler.Record, error) {
	now := r.clock.Now()
	switch label {
	case crawler.LabelPost:
		post := r.posts.Extract(snap)
		return extract.PostRecord(post, task.URL, r.run, now), nil
	case crawler.LabelHashtag:
		h := extract.HashtagExtractor{}.Extract(snap)
		r.discover(ctx, snap, task.IntParam(ParamLimit, r.cfg.ExploreLimit), logger)
		return extract.HashtagRecord(h, task.URL, r.run, now), nil
	case crawler.LabelLocation:
		l := extract.LocationExtractor{}.Extract(snap)
		r.discover(ctx, snap, task.IntParam(ParamLimit, r.cfg.ExploreLimit), logger)
		return extract.LocationRecord(l, task.URL, r.run, now), nil
	default:
		return r.profile(ctx, task, snap, p, now, logger)
	}
}

func (r *Router) profile(
	ctx context.Context,
	task crawler.Task,
	snap *page.Snapshot,
	p crawler.Page,
	now time.Time,
	logger *zap.Logger,
) (crawler.Record, error) {
	res := r.profiles.Extract(snap)
	for field, cand := range res.Resolved {
		metrics.ObserveStrategyHit(string(field), cand.Strategy, cand.Layer)
	}
	if res.Profile.IsPrivate {
		logger.Info("private profile, skipping post discovery", zap.String("username", res.Profile.Username))
		return res.Record(task.URL, r.run, now), nil
	}

	found := r.discover(ctx, snap, task.IntParam(ParamMaxPosts, r.cfg.MaxPostsPerProfile), logger)
	if !res.FollowersResolved() {
		slug := crawler.SafeKey(res.Profile.Username)
		if res.Profile.Username == "" {
			slug = crawler.URLSlug(task.URL)
		}
		r.diagnoseProfile(ctx, p, snap, slug, found, logger)
	}
	if err := ctx.Err(); err != nil {
		return crawler.Record{}, err
	}
	return res.Record(task.URL, r.run, now), nil
}

// discover runs link discovery. Queue failures are logged; a partial record
// is still better than none.
func (r *Router) discover(ctx context.Context, snap *page.Snapshot, limit int, logger *zap.Logger) harvest.Result {
	if r.queue == nil {
		return harvest.Result{Layer: harvest.LayerNone}
	}
	res, err := harvest.Discover(ctx, snap, r.queue, limit)
	if err != nil {
		logger.Warn("post discovery failed", zap.Error(err))
	}
	metrics.ObserveDiscovered(string(res.Layer), res.Queued)
	if res.Exhausted() {
		logger.Info("no post links found", zap.Int("limit", limit))
	} else {
		logger.Debug("post links found",
			zap.Int("queued", res.Queued),
			zap.Int("matched", res.Matched),
			zap.String("layer", string(res.Layer)),
		)
	}
	return res
}

func (r *Router) diagnoseProfile(
	ctx context.Context,
	p crawler.Page,
	snap *page.Snapshot,
	slug string,
	found harvest.Result,
	logger *zap.Logger,
) {
	logger.Warn("followers unresolved on public profile", zap.Int("matched", found.Matched))
	if r.store == nil {
		return
	}
	if shot, err := p.Screenshot(ctx, true); err != nil {
		logger.Warn("profile screenshot failed", zap.Error(err))
	} else {
		r.put(ctx, fmt.Sprintf(ProfileScreenshotKey, slug), "image/png", shot, logger)
	}
	if !found.Exhausted() {
		return
	}
	raw := []byte(snap.Raw)
	if r.hasher != nil {
		if digest, err := r.hasher.Hash(raw); err == nil {
			logger = logger.With(zap.String("sha256", digest))
		}
	}
	r.put(ctx, fmt.Sprintf(RawHTMLDumpKey, slug), "text/html; charset=utf-8", raw, logger)
}

func (r *Router) put(ctx context.Context, key, contentType string, data []byte, logger *zap.Logger) {
	uri, err := r.store.PutObject(ctx, r.run.ArtifactPath(key), contentType, bytes.NewReader(data))
	if err != nil {
		logger.Warn("store diagnostic failed", zap.String("key", key), zap.Error(err))
		return
	}
	logger.Info("diagnostic stored", zap.String("key", key), zap.String("uri", uri))
}

func driverRetry(err error) crawler.Outcome {
	if errors.Is(err, crawler.ErrDriver) {
		return crawler.Retry(crawler.ReasonDriverError, err)
	}
	return crawler.Retry(crawler.ReasonDriverError, fmt.Errorf("%w: %w", crawler.ErrDriver, err))
}
