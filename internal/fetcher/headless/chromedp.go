// Package headless drives headless Chrome through chromedp. A fixed pool of
// browser sessions is shared by the workers; each Open borrows one session
// exclusively until the returned tab is closed.
package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/gramcrawl/internal/crawler"
)

// ErrClosed is returned by Open after Close.
var ErrClosed = errors.New("headless driver closed")

// Config controls the browser pool.
type Config struct {
	Sessions          int
	UserAgent         string
	NavigationTimeout time.Duration
	ViewportWidth     int
	ViewportHeight    int
	ProxyURLs         []string
	Cookies           []crawler.Cookie
}

func (c Config) withDefaults() Config {
	if c.Sessions <= 0 {
		c.Sessions = 2
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 45 * time.Second
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 1366
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 900
	}
	return c
}

// Driver implements crawler.Driver on top of a chromedp session pool.
type Driver struct {
	cfg    Config
	logger *zap.Logger

	slots chan *session
	all   []*session

	mu     sync.Mutex
	closed bool
}

type session struct {
	id    int
	proxy string

	once          sync.Once
	startErr      error
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

// NewDriver builds the pool. Browsers start lazily on first use. Proxies are
// assigned to sessions round-robin.
func NewDriver(cfg Config, logger *zap.Logger) (*Driver, error) {
	if cfg.Sessions < 0 {
		return nil, fmt.Errorf("sessions must be >= 0")
	}
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Driver{
		cfg:    cfg,
		logger: logger,
		slots:  make(chan *session, cfg.Sessions),
	}
	for i := range cfg.Sessions {
		s := &session{id: i}
		if len(cfg.ProxyURLs) > 0 {
			s.proxy = cfg.ProxyURLs[i%len(cfg.ProxyURLs)]
		}
		d.all = append(d.all, s)
		d.slots <- s
	}
	return d, nil
}

func (s *session) start(userAgent string) error {
	s.once.Do(func() {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", "new"),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("hide-scrollbars", true),
			chromedp.Flag("enable-automation", false),
		)
		if userAgent != "" {
			opts = append(opts, chromedp.UserAgent(userAgent))
		}
		if s.proxy != "" {
			opts = append(opts, chromedp.ProxyServer(s.proxy))
		}
		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx)
		if err := chromedp.Run(browserCtx); err != nil {
			browserCancel()
			allocCancel()
			s.startErr = fmt.Errorf("start browser session %d: %w", s.id, err)
			return
		}
		s.browserCtx = browserCtx
		s.allocCancel = allocCancel
		s.browserCancel = browserCancel
	})
	return s.startErr
}

func (s *session) stop() {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}

func (d *Driver) acquire(ctx context.Context) (*session, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	select {
	case s := <-d.slots:
		return s, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("browser session wait canceled: %w", ctx.Err())
	}
}

func (d *Driver) release(s *session) {
	select {
	case d.slots <- s:
	default:
	}
}

// Open borrows a session, opens a tab, injects cookies and navigates to url.
func (d *Driver) Open(ctx context.Context, url string) (crawler.Page, error) {
	s, err := d.acquire(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.start(d.cfg.UserAgent); err != nil {
		d.release(s)
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx)
	tab := &Tab{
		url:    url,
		ctx:    tabCtx,
		meta:   &responseMeta{},
		logger: d.logger.With(zap.Int("session", s.id), zap.String("url", url)),
	}
	tab.closeFn = func() {
		tabCancel()
		d.release(s)
	}
	// The first Run creates the target; it must not carry a deadline.
	if err := chromedp.Run(tabCtx); err != nil {
		_ = tab.Close()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	chromedp.ListenTarget(tabCtx, tab.meta.captureEvent)

	navCtx, cancel := context.WithTimeout(ctx, d.cfg.NavigationTimeout)
	defer cancel()
	err = tab.run(navCtx,
		d.setupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		_ = tab.Close()
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	tab.logger.Debug("page opened", zap.Int("status", tab.meta.Status()))
	return tab, nil
}

func (d *Driver) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := emulation.SetDeviceMetricsOverride(int64(d.cfg.ViewportWidth), int64(d.cfg.ViewportHeight), 1, false).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		for _, c := range d.cfg.Cookies {
			if err := cookieParams(c).Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	})
}

func cookieParams(c crawler.Cookie) *network.SetCookieParams {
	path := c.Path
	if path == "" {
		path = "/"
	}
	params := network.SetCookie(c.Name, c.Value).
		WithDomain(c.Domain).
		WithPath(path).
		WithSecure(true)
	if ss, ok := sameSite(c.SameSite); ok {
		params = params.WithSameSite(ss)
	}
	return params
}

func sameSite(raw string) (network.CookieSameSite, bool) {
	switch raw {
	case "Strict":
		return network.CookieSameSiteStrict, true
	case "Lax":
		return network.CookieSameSiteLax, true
	case "None":
		return network.CookieSameSiteNone, true
	default:
		return "", false
	}
}

// Close shuts down every started browser. Tabs still open are abandoned.
func (d *Driver) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	for _, s := range d.all {
		s.stop()
	}
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(resp.Response.Status)
	m.mu.Unlock()
}

// Status returns the last document response status, or 0 when none was seen.
func (m *responseMeta) Status() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}
