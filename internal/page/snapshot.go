// Package page provides immutable DOM snapshots and a static, goquery-backed
// implementation of crawler.Page.
package page

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/gramcrawl/internal/crawler"
)

// Snapshot is a parsed copy of a page at one point in time. Extractors only
// read from snapshots, never from the live page.
type Snapshot struct {
	URL string
	Raw string
	Doc *goquery.Document

	visible string
}

// NewSnapshot parses html into a Snapshot.
func NewSnapshot(pageURL, html string) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	if u, err := url.Parse(pageURL); err == nil {
		doc.Url = u
	}
	return &Snapshot{URL: pageURL, Raw: html, Doc: doc}, nil
}

// Capture reads the current markup from p and parses it.
func Capture(ctx context.Context, p crawler.Page) (*Snapshot, error) {
	html, err := p.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read page html: %w", err)
	}
	return NewSnapshot(p.URL(), html)
}

// VisibleText returns the whitespace-collapsed body text without script,
// style, and template content.
func (s *Snapshot) VisibleText() string {
	if s.visible != "" {
		return s.visible
	}
	body := s.Doc.Find("body")
	if body.Length() == 0 {
		body = s.Doc.Selection
	}
	clone := body.Clone()
	clone.Find("script, style, noscript, template").Remove()
	s.visible = Clean(clone.Text())
	return s.visible
}

// Host returns the page host, or the default platform host when unknown.
func (s *Snapshot) Host() string {
	if s.Doc.Url != nil && s.Doc.Url.Host != "" {
		return s.Doc.Url.Host
	}
	return crawler.DefaultHost
}

// Resolve makes href absolute against the page URL.
func (s *Snapshot) Resolve(href string) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	if s.Doc.Url == nil {
		if !ref.IsAbs() {
			return "", false
		}
		return ref.String(), true
	}
	return s.Doc.Url.ResolveReference(ref).String(), true
}

// Clean collapses runs of whitespace and trims the result.
func Clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
