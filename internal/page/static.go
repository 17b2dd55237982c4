package page

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrUnsupported is returned for browser-only operations on a static page.
var ErrUnsupported = errors.New("operation not supported by static page")

// ErrNotFound is returned by WaitFor when the selector never matched.
var ErrNotFound = errors.New("selector not found")

// Fetch reloads the markup for a static page.
type Fetch func(ctx context.Context) (string, error)

// Static is a crawler.Page over a fixed HTML document. Reload re-runs the
// optional fetch function; everything else reads the current document.
type Static struct {
	url     string
	html    string
	doc     *goquery.Document
	fetch   Fetch
	onClose func()
}

// StaticOption configures a Static page.
type StaticOption func(*Static)

// WithFetch sets the function used by Reload.
func WithFetch(fetch Fetch) StaticOption {
	return func(s *Static) { s.fetch = fetch }
}

// WithOnClose registers a callback run once by Close.
func WithOnClose(fn func()) StaticOption {
	return func(s *Static) { s.onClose = fn }
}

// NewStatic parses html into a Static page.
func NewStatic(pageURL, html string, opts ...StaticOption) (*Static, error) {
	s := &Static{url: pageURL}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.load(html); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Static) load(html string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	s.html = html
	s.doc = doc
	return nil
}

// URL returns the page URL.
func (s *Static) URL() string { return s.url }

// HTML returns the document markup.
func (s *Static) HTML(context.Context) (string, error) { return s.html, nil }

// Text returns the text of the first element matching selector.
func (s *Static) Text(_ context.Context, selector string) (string, error) {
	sel := s.doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	return Clean(sel.Text()), nil
}

// Attr returns an attribute of the first element matching selector.
func (s *Static) Attr(_ context.Context, selector, name string) (string, bool, error) {
	value, ok := s.doc.Find(selector).First().Attr(name)
	return value, ok, nil
}

// Evaluate is unsupported without a JavaScript engine.
func (s *Static) Evaluate(context.Context, string, any) error { return ErrUnsupported }

// Screenshot is unsupported without a renderer.
func (s *Static) Screenshot(context.Context, bool) ([]byte, error) { return nil, ErrUnsupported }

// Reload re-fetches the document when a fetch function was configured.
func (s *Static) Reload(ctx context.Context) error {
	if s.fetch == nil {
		return nil
	}
	html, err := s.fetch(ctx)
	if err != nil {
		return fmt.Errorf("reload %s: %w", s.url, err)
	}
	return s.load(html)
}

// WaitFor succeeds immediately when selector is present; static markup never changes.
func (s *Static) WaitFor(_ context.Context, selector string, _ time.Duration) error {
	if s.doc.Find(selector).Length() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	return nil
}

// Sleep blocks for d or until ctx ends.
func (s *Static) Sleep(ctx context.Context, d time.Duration) error {
	return Sleep(ctx, d)
}

// ClickText never clicks on a static page.
func (s *Static) ClickText(context.Context, string, []string) (bool, error) { return false, nil }

// Scroll is a no-op on a static page.
func (s *Static) Scroll(context.Context, int) error { return nil }

// Close runs the close callback once.
func (s *Static) Close() error {
	if s.onClose != nil {
		fn := s.onClose
		s.onClose = nil
		fn()
	}
	return nil
}

// Sleep waits for d honoring ctx cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
