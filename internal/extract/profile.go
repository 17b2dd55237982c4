package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/gramcrawl/internal/crawler"
	"github.com/JakeFAU/gramcrawl/internal/page"
)

var (
	titleHandle  = regexp.MustCompile(`\(@([A-Za-z0-9._]+)\)`)
	handlePrefix = regexp.MustCompile(`^@?([A-Za-z0-9._]{1,30})$`)
)

var profileCountFields = []Field{FieldFollowers, FieldFollowing, FieldPosts}

// ProfileResult is a profile plus how each count was resolved.
type ProfileResult struct {
	Profile  crawler.Profile
	Resolved map[Field]Candidate
}

// FollowersResolved reports whether any strategy produced a followers candidate.
func (r ProfileResult) FollowersResolved() bool {
	_, ok := r.Resolved[FieldFollowers]
	return ok
}

// ProfileExtractor reads account pages.
type ProfileExtractor struct {
	strategies []Strategy
	logger     *zap.Logger
}

// NewProfileExtractor builds an extractor. A nil strategies slice selects
// DefaultCountStrategies.
func NewProfileExtractor(strategies []Strategy, logger *zap.Logger) *ProfileExtractor {
	if strategies == nil {
		strategies = DefaultCountStrategies()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileExtractor{strategies: strategies, logger: logger}
}

// Extract reads every profile field from snap.
func (e *ProfileExtractor) Extract(snap *page.Snapshot) ProfileResult {
	doc := snap.Doc
	p := crawler.Profile{
		Username:    username(snap),
		FullName:    firstText(doc, "header section h1", "h1"),
		Biography:   biography(doc),
		ExternalURL: unwrapRedirect(firstAttr(doc, "href", `header a[role="link"][target="_blank"]`, `main a[role="link"][target="_blank"]`)),
		ProfilePic:  firstAttr(doc, "src", "header img", `img[alt*="profile"]`),
		IsPrivate:   isPrivate(snap),
		IsVerified:  doc.Find(`svg[aria-label="Verified"], [title="Verified"]`).Length() > 0,
	}
	if p.ProfilePic == "" {
		p.ProfilePic = metaContent(doc, `meta[property="og:image"]`)
	}

	resolved := ResolveAll(snap, profileCountFields, e.strategies)
	for field, cand := range resolved {
		n := ParseCount(cand.Raw)
		switch field {
		case FieldFollowers:
			p.FollowersCount = n
		case FieldFollowing:
			p.FollowingCount = n
		case FieldPosts:
			p.PostsCount = n
		}
		if cand.Degraded() {
			e.logger.Warn("count recovered in degraded mode",
				zap.String("url", snap.URL),
				zap.String("field", string(field)),
				zap.String("strategy", cand.Strategy),
			)
		} else {
			e.logger.Debug("count resolved",
				zap.String("url", snap.URL),
				zap.String("field", string(field)),
				zap.String("strategy", cand.Strategy),
				zap.Int("layer", cand.Layer),
			)
		}
	}

	return ProfileResult{Profile: p, Resolved: resolved}
}

// Record wraps the result in a crawler.Record.
func (r ProfileResult) Record(pageURL string, rc crawler.RunContext, now time.Time) crawler.Record {
	p := r.Profile
	return crawler.Record{
		Type:      crawler.RecordProfile,
		URL:       pageURL,
		ScrapedAt: now,
		ReportURL: rc.ReportURL,
		Profile:   &p,
	}
}

func username(snap *page.Snapshot) string {
	if name := firstText(snap.Doc, "header h2", "h2"); name != "" {
		if m := handlePrefix.FindStringSubmatch(name); m != nil {
			return m[1]
		}
	}
	title := page.Clean(snap.Doc.Find("title").First().Text())
	if m := titleHandle.FindStringSubmatch(title); m != nil {
		return m[1]
	}
	if head, _, ok := strings.Cut(title, "•"); ok {
		if m := handlePrefix.FindStringSubmatch(strings.TrimSpace(head)); m != nil {
			return m[1]
		}
	}
	return lastSegment(snap.URL)
}

func biography(doc *goquery.Document) string {
	var bio string
	doc.Find("header section div, main section div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Find("h1").Length() > 0 {
			return true
		}
		text := page.Clean(s.Text())
		if len(text) > 5 {
			bio = text
			return false
		}
		return true
	})
	return bio
}

func isPrivate(snap *page.Snapshot) bool {
	if containsFold(snap.VisibleText(), "this account is private") {
		return true
	}
	private := false
	snap.Doc.Find("h1, h2").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		private = containsFold(s.Text(), "private")
		return !private
	})
	return private
}
