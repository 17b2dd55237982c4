package extract

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/gramcrawl/internal/page"
)

// Field identifies a count resolved through the strategy chain.
type Field string

// Count fields.
const (
	FieldFollowers Field = "followers"
	FieldFollowing Field = "following"
	FieldPosts     Field = "posts"
	FieldLikes     Field = "likes"
)

// DegradedLayer is the layer number of last-resort strategies.
const DegradedLayer = 4

// Candidate is the raw text a strategy produced for a field.
type Candidate struct {
	Raw      string
	Strategy string
	Layer    int
}

// Degraded reports whether the candidate came from a last-resort strategy.
func (c Candidate) Degraded() bool { return c.Layer >= DegradedLayer }

// Strategy finds raw candidates for fields on a snapshot.
type Strategy interface {
	Name() string
	Layer() int
	Find(snap *page.Snapshot, field Field) (string, bool)
}

// Resolve runs strategies in order and returns the first non-empty candidate
// for field.
func Resolve(snap *page.Snapshot, field Field, strategies []Strategy) (Candidate, bool) {
	for _, s := range strategies {
		raw, ok := s.Find(snap, field)
		raw = strings.TrimSpace(raw)
		if ok && raw != "" {
			return Candidate{Raw: raw, Strategy: s.Name(), Layer: s.Layer()}, true
		}
	}
	return Candidate{}, false
}

// ResolveAll resolves several fields. A strategy only runs for fields that no
// earlier strategy resolved.
func ResolveAll(snap *page.Snapshot, fields []Field, strategies []Strategy) map[Field]Candidate {
	out := make(map[Field]Candidate, len(fields))
	for _, s := range strategies {
		for _, f := range fields {
			if _, done := out[f]; done {
				continue
			}
			raw, ok := s.Find(snap, f)
			raw = strings.TrimSpace(raw)
			if ok && raw != "" {
				out[f] = Candidate{Raw: raw, Strategy: s.Name(), Layer: s.Layer()}
			}
		}
		if len(out) == len(fields) {
			break
		}
	}
	return out
}

// DefaultCountStrategies is the profile count chain, most reliable first.
func DefaultCountStrategies() []Strategy {
	return []Strategy{
		StructuredMetadata{},
		MetaDescription{},
		InPageText{},
		RawMarkup{},
	}
}

// StructuredMetadata reads schema.org interaction counters from JSON-LD.
type StructuredMetadata struct{}

// Name implements Strategy.
func (StructuredMetadata) Name() string { return "structured-metadata" }

// Layer implements Strategy.
func (StructuredMetadata) Layer() int { return 1 }

// Find implements Strategy.
func (StructuredMetadata) Find(snap *page.Snapshot, field Field) (string, bool) {
	var found string
	snap.Doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var doc any
		if err := json.Unmarshal([]byte(s.Text()), &doc); err != nil {
			return true
		}
		found = findInteraction(doc, field)
		return found == ""
	})
	return found, found != ""
}

func findInteraction(node any, field Field) string {
	switch v := node.(type) {
	case []any:
		for _, item := range v {
			if got := findInteraction(item, field); got != "" {
				return got
			}
		}
	case map[string]any:
		for key, child := range v {
			role := ""
			switch key {
			case "interactionStatistic":
				role = "subject"
			case "agentInteractionStatistic":
				role = "agent"
			}
			if role != "" {
				if got := counterValue(child, field, role); got != "" {
					return got
				}
				continue
			}
			if got := findInteraction(child, field); got != "" {
				return got
			}
		}
	}
	return ""
}

func counterValue(node any, field Field, role string) string {
	switch v := node.(type) {
	case []any:
		for _, item := range v {
			if got := counterValue(item, field, role); got != "" {
				return got
			}
		}
	case map[string]any:
		action := strings.ToLower(interactionType(v["interactionType"]))
		want := ""
		switch {
		case field == FieldFollowers && role == "subject":
			want = "followaction"
		case field == FieldFollowing && role == "agent":
			want = "followaction"
		case field == FieldPosts && role == "subject":
			want = "writeaction"
		case field == FieldLikes && role == "subject":
			want = "likeaction"
		}
		if want == "" || !strings.HasSuffix(action, want) {
			return ""
		}
		switch count := v["userInteractionCount"].(type) {
		case float64:
			return strconv.FormatFloat(count, 'f', -1, 64)
		case string:
			return count
		}
	}
	return ""
}

func interactionType(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if s, ok := t["@type"].(string); ok {
			return s
		}
	}
	return ""
}

// countPattern matches "<number><unit> <label>" fragments.
var countPattern = regexp.MustCompile(`(?i)(\d[\d.,]*\s?[km]?)\s*(followers|following|posts|likes)\b`)

// MetaDescription parses the page description meta tags.
type MetaDescription struct{}

// Name implements Strategy.
func (MetaDescription) Name() string { return "meta-description" }

// Layer implements Strategy.
func (MetaDescription) Layer() int { return 2 }

// Find implements Strategy.
func (MetaDescription) Find(snap *page.Snapshot, field Field) (string, bool) {
	for _, sel := range []string{`meta[name="description"]`, `meta[property="og:description"]`} {
		content, ok := snap.Doc.Find(sel).First().Attr("content")
		if !ok {
			continue
		}
		if raw := matchCount(content, field); raw != "" {
			return raw, true
		}
	}
	return "", false
}

func matchCount(text string, field Field) string {
	for _, m := range countPattern.FindAllStringSubmatch(text, -1) {
		if strings.EqualFold(m[2], string(field)) {
			return strings.TrimRight(strings.TrimSpace(m[1]), ".,")
		}
	}
	return ""
}

var hasDigit = regexp.MustCompile(`\d`)

// InPageText scans text-bearing elements for a label and the number next to it.
type InPageText struct{}

// Name implements Strategy.
func (InPageText) Name() string { return "in-page-text" }

// Layer implements Strategy.
func (InPageText) Layer() int { return 3 }

// Find implements Strategy.
func (InPageText) Find(snap *page.Snapshot, field Field) (string, bool) {
	label := string(field)
	var found string
	snap.Doc.Find("span, li, a").EachWithBreak(
		func(_ int, s *goquery.Selection) bool {
			text := page.Clean(s.Text())
			if !strings.Contains(strings.ToLower(text), label) {
				return true
			}
			// A title attribute on a nested span carries the unabbreviated number.
			if title, ok := s.Find("span[title]").First().Attr("title"); ok && hasDigit.MatchString(title) {
				found = title
				return false
			}
			if raw := matchCount(text, field); raw != "" {
				found = raw
				return false
			}
			s.Find("span, b, strong").EachWithBreak(func(_ int, child *goquery.Selection) bool {
				if t := page.Clean(child.Text()); hasDigit.MatchString(t) {
					found = t
					return false
				}
				return true
			})
			return found == ""
		})
	return found, found != ""
}

// rawPatterns are known internal count fields embedded in page scripts.
// Quotes may be JSON-escaped when the payload sits inside a string literal.
var rawPatterns = map[Field][]*regexp.Regexp{
	FieldFollowers: {
		regexp.MustCompile(`\\?"edge_followed_by\\?"\s*:\s*\{\s*\\?"count\\?"\s*:\s*(\d+)`),
		regexp.MustCompile(`\\?"follower_count\\?"\s*:\s*(\d+)`),
	},
	FieldFollowing: {
		regexp.MustCompile(`\\?"edge_follow\\?"\s*:\s*\{\s*\\?"count\\?"\s*:\s*(\d+)`),
		regexp.MustCompile(`\\?"following_count\\?"\s*:\s*(\d+)`),
	},
	FieldPosts: {
		regexp.MustCompile(`\\?"edge_owner_to_timeline_media\\?"\s*:\s*\{\s*\\?"count\\?"\s*:\s*(\d+)`),
		regexp.MustCompile(`\\?"media_count\\?"\s*:\s*(\d+)`),
	},
	FieldLikes: {
		regexp.MustCompile(`\\?"edge_media_preview_like\\?"\s*:\s*\{\s*\\?"count\\?"\s*:\s*(\d+)`),
		regexp.MustCompile(`\\?"like_count\\?"\s*:\s*(\d+)`),
	},
}

// RawMarkup is the degraded last resort: regular expressions over the raw
// markup for internal count fields.
type RawMarkup struct{}

// Name implements Strategy.
func (RawMarkup) Name() string { return "raw-markup" }

// Layer implements Strategy.
func (RawMarkup) Layer() int { return DegradedLayer }

// Find implements Strategy.
func (RawMarkup) Find(snap *page.Snapshot, field Field) (string, bool) {
	for _, re := range rawPatterns[field] {
		if m := re.FindStringSubmatch(snap.Raw); m != nil {
			return m[1], true
		}
	}
	return "", false
}
