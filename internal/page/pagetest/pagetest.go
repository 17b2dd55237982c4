// Package pagetest provides scripted crawler.Page and crawler.Driver fakes.
package pagetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/gramcrawl/internal/crawler"
	"github.com/JakeFAU/gramcrawl/internal/page"
)

// Page serves a sequence of documents: the first on open, the next on each
// Reload. It records every interaction for assertions.
type Page struct {
	mu       sync.Mutex
	url      string
	versions []string
	current  int
	doc      *goquery.Document

	Shot    []byte
	ShotErr error
	HTMLErr error

	clicks  []string
	reloads int
	scrolls int
	waits   []string
	closed  bool
}

// NewPage returns a Page for url serving versions in order. The last version
// is repeated once the script runs out.
func NewPage(url string, versions ...string) *Page {
	if len(versions) == 0 {
		versions = []string{"<html><body></body></html>"}
	}
	p := &Page{url: url, versions: versions, Shot: []byte("\x89PNG")}
	p.parse()
	return p
}

func (p *Page) parse() {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.versions[p.current]))
	if err != nil {
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(""))
	}
	p.doc = doc
}

// URL returns the page URL.
func (p *Page) URL() string { return p.url }

// HTML returns the current document.
func (p *Page) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.HTMLErr != nil {
		return "", p.HTMLErr
	}
	return p.versions[p.current], nil
}

// Text returns the text of the first element matching selector.
func (p *Page) Text(_ context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", fmt.Errorf("%w: %s", page.ErrNotFound, selector)
	}
	return page.Clean(sel.Text()), nil
}

// Attr returns an attribute of the first element matching selector.
func (p *Page) Attr(_ context.Context, selector, name string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.doc.Find(selector).First().Attr(name)
	return v, ok, nil
}

// Evaluate is unsupported.
func (p *Page) Evaluate(context.Context, string, any) error { return page.ErrUnsupported }

// Screenshot returns Shot or ShotErr.
func (p *Page) Screenshot(context.Context, bool) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ShotErr != nil {
		return nil, p.ShotErr
	}
	return append([]byte(nil), p.Shot...), nil
}

// Reload advances to the next scripted document.
func (p *Page) Reload(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reloads++
	if p.current < len(p.versions)-1 {
		p.current++
		p.parse()
	}
	return nil
}

// WaitFor records the selector and succeeds when it is present.
func (p *Page) WaitFor(_ context.Context, selector string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waits = append(p.waits, selector)
	if p.doc.Find(selector).Length() == 0 {
		return fmt.Errorf("%w: %s", page.ErrNotFound, selector)
	}
	return nil
}

// Sleep returns immediately unless ctx is done.
func (p *Page) Sleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// ClickText "clicks" the first matching element whose text contains one of texts.
func (p *Page) ClickText(_ context.Context, selector string, texts []string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	clicked := false
	p.doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		label := strings.ToLower(page.Clean(s.Text()))
		for _, want := range texts {
			if want != "" && strings.Contains(label, strings.ToLower(want)) {
				p.clicks = append(p.clicks, label)
				clicked = true
				return false
			}
		}
		return true
	})
	return clicked, nil
}

// Scroll counts scroll calls.
func (p *Page) Scroll(context.Context, int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolls++
	return nil
}

// Close marks the page closed.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Clicks returns the labels of clicked elements.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// Reloads returns how many times Reload was called.
func (p *Page) Reloads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reloads
}

// Scrolls returns how many times Scroll was called.
func (p *Page) Scrolls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrolls
}

// Waits returns the selectors passed to WaitFor.
func (p *Page) Waits() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.waits...)
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// ErrNoPage is returned by Driver.Open for unknown URLs.
var ErrNoPage = errors.New("no scripted page")

// Driver hands out scripted pages by URL.
type Driver struct {
	mu     sync.Mutex
	pages  map[string]*Page
	errs   map[string]error
	opened []string
}

// NewDriver returns an empty Driver.
func NewDriver() *Driver {
	return &Driver{pages: make(map[string]*Page), errs: make(map[string]error)}
}

// Add registers p under its URL and returns it.
func (d *Driver) Add(p *Page) *Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages[p.URL()] = p
	return p
}

// Fail makes Open(url) return err.
func (d *Driver) Fail(url string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs[url] = err
}

// Open returns the scripted page for url.
func (d *Driver) Open(ctx context.Context, url string) (crawler.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = append(d.opened, url)
	if err, ok := d.errs[url]; ok {
		return nil, err
	}
	p, ok := d.pages[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPage, url)
	}
	return p, nil
}

// Opened lists every URL passed to Open, in order.
func (d *Driver) Opened() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.opened...)
}
