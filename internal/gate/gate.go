// Package gate classifies rendered pages before extraction.
package gate

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/gramcrawl/internal/crawler"
	"github.com/JakeFAU/gramcrawl/internal/page"
)

// LoginWallScreenshotKey is the artifact key of the login-wall diagnostic.
const LoginWallScreenshotKey = "LOGIN_WALL_SCREENSHOT"

// Config holds the phrases and thresholds used for classification. All
// phrase matching is case-insensitive substring matching.
type Config struct {
	// HeadingLoginPhrases are matched against h1/h2 text first.
	HeadingLoginPhrases []string
	// BodyLoginPhrases are matched against the full visible text when no
	// heading matched. They are longer than the heading phrases because the
	// navigation bar of an anonymous session always offers "Log in".
	BodyLoginPhrases []string
	ErrorPhrases     []string
	LoadingSelectors []string
	LoadingPhrases   []string
	ConsentTexts     []string
	// MinTextChars is the visible-text length under which a page counts as
	// not yet hydrated.
	MinTextChars int
}

// DefaultConfig returns the stock classification rules.
func DefaultConfig() Config {
	return Config{
		HeadingLoginPhrases: []string{"log in", "sign up"},
		BodyLoginPhrases:    []string{"log in to see", "log in to continue", "sign up to see", "you must log in"},
		ErrorPhrases:        []string{"something went wrong", "link you followed may be broken"},
		LoadingSelectors:    []string{`svg[aria-label="Loading..."]`, `[data-visualcompletion="loading-state"]`},
		LoadingPhrases:      []string{"loading..."},
		ConsentTexts: []string{
			"allow all cookies",
			"accept all",
			"decline optional cookies",
			"only allow essential cookies",
		},
		MinTextChars: 120,
	}
}

// Gate classifies pages and performs the best-effort side effects around
// classification.
type Gate struct {
	cfg    Config
	store  crawler.BlobStore
	run    crawler.RunContext
	logger *zap.Logger
}

// New builds a Gate. store may be nil, in which case diagnostics are skipped.
func New(cfg Config, store crawler.BlobStore, run crawler.RunContext, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{cfg: cfg, store: store, run: run, logger: logger}
}

// Classify returns the verdict for snap. Login walls take precedence over
// error pages, which take precedence over skeletons.
func (g *Gate) Classify(snap *page.Snapshot) crawler.Verdict {
	text := strings.ToLower(snap.VisibleText())

	if g.headingMatches(snap.Doc, g.cfg.HeadingLoginPhrases) || containsAny(text, g.cfg.BodyLoginPhrases) {
		return crawler.VerdictLoginWall
	}
	if containsAny(text, g.cfg.ErrorPhrases) {
		return crawler.VerdictTransientError
	}
	if len([]rune(text)) < g.cfg.MinTextChars || g.loading(snap, text) {
		return crawler.VerdictSkeleton
	}
	return crawler.VerdictOK
}

// Inspect snapshots p, classifies it, and captures the login-wall screenshot
// when needed. The returned snapshot is the one the verdict was computed on.
func (g *Gate) Inspect(ctx context.Context, p crawler.Page) (crawler.Verdict, *page.Snapshot, error) {
	snap, err := page.Capture(ctx, p)
	if err != nil {
		return "", nil, err
	}
	verdict := g.Classify(snap)
	if verdict == crawler.VerdictLoginWall {
		g.captureLoginWall(ctx, p)
	}
	return verdict, snap, nil
}

// DismissConsent clicks a cookie-consent button when one is present. Any
// failure is logged and otherwise ignored.
func (g *Gate) DismissConsent(ctx context.Context, p crawler.Page) {
	clicked, err := p.ClickText(ctx, `button, [role="button"]`, g.cfg.ConsentTexts)
	if err != nil {
		g.logger.Debug("consent dismissal failed", zap.String("url", p.URL()), zap.Error(err))
		return
	}
	if clicked {
		g.logger.Debug("consent prompt dismissed", zap.String("url", p.URL()))
	}
}

func (g *Gate) captureLoginWall(ctx context.Context, p crawler.Page) {
	if g.store == nil {
		return
	}
	shot, err := p.Screenshot(ctx, false)
	if err != nil {
		g.logger.Warn("login wall screenshot failed", zap.String("url", p.URL()), zap.Error(err))
		return
	}
	uri, err := g.store.PutObject(ctx, g.run.ArtifactPath(LoginWallScreenshotKey), "image/png", bytes.NewReader(shot))
	if err != nil {
		g.logger.Warn("store login wall screenshot failed", zap.String("url", p.URL()), zap.Error(err))
		return
	}
	g.logger.Info("login wall screenshot stored", zap.String("url", p.URL()), zap.String("uri", uri))
}

func (g *Gate) headingMatches(doc *goquery.Document, phrases []string) bool {
	matched := false
	doc.Find("h1, h2").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		matched = containsAny(strings.ToLower(s.Text()), phrases)
		return !matched
	})
	return matched
}

func (g *Gate) loading(snap *page.Snapshot, lowerText string) bool {
	for _, sel := range g.cfg.LoadingSelectors {
		if snap.Doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return containsAny(lowerText, g.cfg.LoadingPhrases)
}

func containsAny(lowerText string, phrases []string) bool {
	for _, phrase := range phrases {
		if phrase != "" && strings.Contains(lowerText, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}
