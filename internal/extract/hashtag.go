package extract

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/gramcrawl/internal/crawler"
	"github.com/JakeFAU/gramcrawl/internal/page"
)

// HashtagExtractor reads tag explore pages.
type HashtagExtractor struct{}

// Extract reads the tag name and post count.
func (HashtagExtractor) Extract(snap *page.Snapshot) crawler.Hashtag {
	doc := snap.Doc
	h := crawler.Hashtag{TagName: firstText(doc, "header h1")}
	if h.TagName == "" {
		if seg := lastSegment(snap.URL); seg != "" {
			h.TagName = "#" + strings.TrimPrefix(seg, "#")
		}
	}

	var raw string
	doc.Find("header span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := page.Clean(s.Text())
		if containsFold(text, "posts") {
			raw = text
			return false
		}
		return true
	})
	if raw == "" {
		if cand, ok := Resolve(snap, FieldPosts, []Strategy{MetaDescription{}}); ok {
			raw = cand.Raw
		}
	}
	h.PostsCount = ParseCount(raw)
	return h
}

// HashtagRecord wraps a hashtag in a crawler.Record.
func HashtagRecord(h crawler.Hashtag, pageURL string, rc crawler.RunContext, now time.Time) crawler.Record {
	return crawler.Record{
		Type:      crawler.RecordHashtag,
		URL:       pageURL,
		ScrapedAt: now,
		ReportURL: rc.ReportURL,
		Hashtag:   &h,
	}
}

// LocationExtractor reads location explore pages.
type LocationExtractor struct{}

// Extract reads the location name and address.
func (LocationExtractor) Extract(snap *page.Snapshot) crawler.Location {
	doc := snap.Doc
	loc := crawler.Location{
		LocationName: firstText(doc, "header h1"),
		Address:      firstText(doc, "header address"),
	}
	if loc.LocationName == "" {
		title := metaContent(doc, `meta[property="og:title"]`)
		if head, _, ok := strings.Cut(title, "•"); ok {
			title = head
		}
		loc.LocationName = strings.TrimSpace(title)
	}
	return loc
}

// LocationRecord wraps a location in a crawler.Record.
func LocationRecord(l crawler.Location, pageURL string, rc crawler.RunContext, now time.Time) crawler.Record {
	return crawler.Record{
		Type:      crawler.RecordLocation,
		URL:       pageURL,
		ScrapedAt: now,
		ReportURL: rc.ReportURL,
		Location:  &l,
	}
}
