package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/gramcrawl/internal/crawler"
	"github.com/JakeFAU/gramcrawl/internal/page"
)

// MaxComments caps the comments kept per post.
const MaxComments = 10

var (
	thumbnailMarkers = []string{"profile", "150x150", "s150x150"}
	quotedCaption    = regexp.MustCompile(`:\s*["“](.+?)["”]\s*$`)
)

// PostExtractor reads single post pages.
type PostExtractor struct{}

// NewPostExtractor returns a PostExtractor.
func NewPostExtractor() *PostExtractor { return &PostExtractor{} }

// Extract reads every post field from snap.
func (PostExtractor) Extract(snap *page.Snapshot) crawler.Post {
	doc := snap.Doc
	container := doc.Find("article").First()
	if container.Length() == 0 {
		container = doc.Find("main").First()
	}

	p := crawler.Post{
		Caption:   caption(container),
		Timestamp: firstAttr(doc, "datetime", "article time[datetime]", "time[datetime]"),
		Images:    images(container),
		Owner:     firstText(doc, "article header a", "header a"),
		Comments:  comments(doc),
	}
	p.LikesCount = likes(snap)

	if p.Caption == "" {
		desc := metaContent(doc, `meta[property="og:description"]`, `meta[name="description"]`)
		if m := quotedCaption.FindStringSubmatch(desc); m != nil {
			p.Caption = strings.TrimSpace(m[1])
		}
	}
	return p
}

// PostRecord wraps a post in a crawler.Record.
func PostRecord(p crawler.Post, pageURL string, rc crawler.RunContext, now time.Time) crawler.Record {
	return crawler.Record{
		Type:      crawler.RecordPost,
		URL:       pageURL,
		ScrapedAt: now,
		ReportURL: rc.ReportURL,
		Post:      &p,
	}
}

func caption(container *goquery.Selection) string {
	var out string
	container.Find("span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.ParentsFiltered("header").Length() > 0 {
			return true
		}
		text := page.Clean(s.Text())
		if len(text) > 5 {
			out = text
			return false
		}
		return true
	})
	return out
}

func images(container *goquery.Selection) []string {
	seen := make(map[string]struct{})
	out := []string{}
	container.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" {
			return
		}
		for _, marker := range thumbnailMarkers {
			if strings.Contains(src, marker) {
				return
			}
		}
		if _, dup := seen[src]; dup {
			return
		}
		seen[src] = struct{}{}
		out = append(out, src)
	})
	return out
}

func comments(doc *goquery.Document) []crawler.Comment {
	out := []crawler.Comment{}
	// The first list item holds the caption and poster, not a comment.
	items := doc.Find("ul li")
	for i := 1; i < items.Length() && i <= MaxComments; i++ {
		li := items.Eq(i)
		user := page.Clean(li.Find("h3, a").First().Text())
		text := page.Clean(li.Find("span:not([role])").First().Text())
		if user == "" || text == "" {
			continue
		}
		out = append(out, crawler.Comment{User: user, Text: text})
	}
	return out
}

func likes(snap *page.Snapshot) int64 {
	for _, sel := range []string{"section span", "span"} {
		var raw string
		snap.Doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := page.Clean(s.Text())
			if containsFold(text, "likes") || containsFold(text, "views") {
				raw = text
				return false
			}
			return true
		})
		if raw != "" {
			return ParseCount(raw)
		}
	}
	if cand, ok := Resolve(snap, FieldLikes, []Strategy{StructuredMetadata{}, MetaDescription{}, RawMarkup{}}); ok {
		return ParseCount(cand.Raw)
	}
	return 0
}
