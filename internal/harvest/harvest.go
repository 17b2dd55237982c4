// Package harvest discovers post links on profile, hashtag, and location pages
// and feeds them back into the work queue.
package harvest

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/gramcrawl/internal/crawler"
	"github.com/JakeFAU/gramcrawl/internal/page"
)

// Layer records which discovery method produced the queued links.
type Layer string

// Discovery layers.
const (
	LayerNone      Layer = "none"
	LayerAnchors   Layer = "anchors"
	LayerRawMarkup Layer = "raw_markup"
)

// PostSelector matches post and reel anchors in hydrated markup.
const PostSelector = `a[href*="/p/"], a[href*="/reel/"], a[href*="/reels/"]`

var shortcodePattern = regexp.MustCompile(`/(?:p|reels?|stories)/([A-Za-z0-9_-]{5,40})`)

// Result summarizes one discovery pass. Matched counts the links the
// winning layer found, including ones the queue already knew.
type Result struct {
	Queued  int
	Matched int
	Layer   Layer
}

// Exhausted reports that neither layer found any post link.
func (r Result) Exhausted() bool {
	return r.Matched == 0
}

// Discover enqueues up to limit POST tasks found on snap. The raw-markup
// fallback only runs when no post anchor is present. Links the queue
// already knows do not count toward the limit.
func Discover(ctx context.Context, snap *page.Snapshot, q crawler.Enqueuer, limit int) (Result, error) {
	if limit <= 0 {
		return Result{Layer: LayerNone}, nil
	}
	layer, links := LayerAnchors, anchorLinks(snap)
	if len(links) == 0 {
		layer, links = LayerRawMarkup, markupLinks(snap)
	}
	if len(links) == 0 {
		return Result{Layer: LayerNone}, nil
	}
	queued, err := enqueueAll(ctx, q, links, limit)
	return Result{Queued: queued, Matched: len(links), Layer: layer}, err
}

func anchorLinks(snap *page.Snapshot) []string {
	var links []string
	seen := make(map[string]struct{})
	snap.Doc.Find(PostSelector).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		abs, ok := snap.Resolve(href)
		if !ok {
			return
		}
		u, err := url.Parse(abs)
		if err != nil || u.Host == "" {
			return
		}
		u.RawQuery = ""
		u.Fragment = ""
		link := u.String()
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})
	return links
}

// markupLinks scans the raw markup for shortcodes and returns canonical post
// URLs in first-seen order.
func markupLinks(snap *page.Snapshot) []string {
	host := snap.Host()
	var links []string
	seen := make(map[string]struct{})
	for _, m := range shortcodePattern.FindAllStringSubmatch(snap.Raw, -1) {
		id := m[1]
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		links = append(links, crawler.PostURL(host, id))
	}
	return links
}

func enqueueAll(ctx context.Context, q crawler.Enqueuer, links []string, limit int) (int, error) {
	queued := 0
	for _, link := range links {
		if queued >= limit {
			break
		}
		added, err := q.Enqueue(ctx, crawler.NewTask(link, crawler.LabelPost, nil))
		if err != nil {
			return queued, fmt.Errorf("enqueue %s: %w", link, err)
		}
		if added {
			queued++
		}
	}
	return queued, nil
}
