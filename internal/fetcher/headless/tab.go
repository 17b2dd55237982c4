package headless

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/gramcrawl/internal/metrics"
	"github.com/JakeFAU/gramcrawl/internal/page"
)

// Tab is a crawler.Page backed by one browser tab.
type Tab struct {
	url    string
	ctx    context.Context
	meta   *responseMeta
	logger *zap.Logger

	closeOnce sync.Once
	closeFn   func()
	observed  bool
}

type lookup struct {
	Found bool   `json:"found"`
	Value string `json:"value"`
}

// URL returns the navigated URL.
func (t *Tab) URL() string { return t.url }

// run executes actions on the tab, aborting when ctx ends. Contexts derived
// from the tab context share its target, so cancelling them leaves the tab open.
func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("chromedp run: %w", ctx.Err())
		}
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

// HTML returns the current outer HTML of the document.
func (t *Tab) HTML(ctx context.Context) (string, error) {
	var html string
	if err := t.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	if !t.observed {
		t.observed = true
		metrics.ObservePage(t.url, "chromedp", len(html))
	}
	return html, nil
}

// Text returns the innerText of the first element matching selector.
func (t *Tab) Text(ctx context.Context, selector string) (string, error) {
	var res lookup
	if err := t.run(ctx, chromedp.Evaluate(textScript(selector), &res)); err != nil {
		return "", err
	}
	if !res.Found {
		return "", fmt.Errorf("%w: %s", page.ErrNotFound, selector)
	}
	return page.Clean(res.Value), nil
}

// Attr returns an attribute of the first element matching selector.
func (t *Tab) Attr(ctx context.Context, selector, name string) (string, bool, error) {
	var res lookup
	if err := t.run(ctx, chromedp.Evaluate(attrScript(selector, name), &res)); err != nil {
		return "", false, err
	}
	return res.Value, res.Found, nil
}

// Evaluate runs expression in the page and decodes its result into out.
func (t *Tab) Evaluate(ctx context.Context, expression string, out any) error {
	return t.run(ctx, chromedp.Evaluate(expression, out))
}

// Screenshot captures the viewport, or the whole page when fullPage is set.
// Both variants are PNG encoded.
func (t *Tab) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	var buf []byte
	action := chromedp.CaptureScreenshot(&buf)
	if fullPage {
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := t.run(ctx, action); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

// Reload reloads the document and waits for the body.
func (t *Tab) Reload(ctx context.Context) error {
	return t.run(ctx, chromedp.Reload(), chromedp.WaitReady("body", chromedp.ByQuery))
}

// WaitFor blocks until selector is present or timeout elapses.
func (t *Tab) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := t.run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("%w: %s: %w", page.ErrNotFound, selector, err)
	}
	return nil
}

// Sleep waits for d honoring ctx.
func (t *Tab) Sleep(ctx context.Context, d time.Duration) error {
	return page.Sleep(ctx, d)
}

// ClickText clicks the first element matching selector whose text contains
// one of texts, compared case-insensitively.
func (t *Tab) ClickText(ctx context.Context, selector string, texts []string) (bool, error) {
	script, err := clickScript(selector, texts)
	if err != nil {
		return false, err
	}
	var clicked bool
	if err := t.run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return false, err
	}
	return clicked, nil
}

// Scroll scrolls the window down by px pixels.
func (t *Tab) Scroll(ctx context.Context, px int) error {
	return t.run(ctx, chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", px), nil))
}

// Close closes the tab and returns its session to the pool.
func (t *Tab) Close() error {
	t.closeOnce.Do(func() {
		if t.closeFn != nil {
			t.closeFn()
		}
	})
	return nil
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func textScript(selector string) string {
	return fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  return el ? {found: true, value: el.innerText || el.textContent || ""} : {found: false, value: ""};
})()`, jsString(selector))
}

func attrScript(selector, name string) string {
	return fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el || !el.hasAttribute(%s)) return {found: false, value: ""};
  return {found: true, value: el.getAttribute(%s)};
})()`, jsString(selector), jsString(name), jsString(name))
}

func clickScript(selector string, texts []string) (string, error) {
	lowered := make([]string, 0, len(texts))
	for _, t := range texts {
		lowered = append(lowered, strings.ToLower(t))
	}
	raw, err := json.Marshal(lowered)
	if err != nil {
		return "", fmt.Errorf("encode click texts: %w", err)
	}
	return fmt.Sprintf(`(() => {
  const wanted = %s;
  for (const el of document.querySelectorAll(%s)) {
    const text = (el.innerText || el.textContent || "").toLowerCase();
    if (wanted.some((w) => text.includes(w))) { el.click(); return true; }
  }
  return false;
})()`, raw, jsString(selector)), nil
}
