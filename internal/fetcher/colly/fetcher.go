// Package collyfetcher implements crawler.Driver with plain HTTP requests
// through gocolly. Pages are static: no scripts run, so scrolling and clicks
// are no-ops.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/proxy"

	"github.com/JakeFAU/gramcrawl/internal/crawler"
	"github.com/JakeFAU/gramcrawl/internal/metrics"
	"github.com/JakeFAU/gramcrawl/internal/page"
)

// ErrServerStatus is returned when the platform answers with a 5xx status.
var ErrServerStatus = errors.New("server error status")

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Cookies   []crawler.Cookie
	ProxyURLs []string
}

// Driver implements crawler.Driver using the Colly collector.
type Driver struct {
	cfg  Config
	base *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type result struct {
	status int
	body   string
	err    error
}

// New builds a Driver with login cookies loaded into the shared jar.
func New(cfg Config) (*Driver, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = true
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if len(cfg.ProxyURLs) > 0 {
		switcher, err := proxy.RoundRobinProxySwitcher(cfg.ProxyURLs...)
		if err != nil {
			return nil, fmt.Errorf("configure proxies: %w", err)
		}
		c.SetProxyFunc(switcher)
	}
	for domain, cookies := range httpCookies(cfg.Cookies) {
		if err := c.SetCookies("https://"+domain+"/", cookies); err != nil {
			return nil, fmt.Errorf("set cookies for %s: %w", domain, err)
		}
	}
	return &Driver{cfg: cfg, base: c}, nil
}

// Open fetches url and wraps the body in a static page whose Reload
// fetches it again.
func (d *Driver) Open(ctx context.Context, url string) (crawler.Page, error) {
	body, err := d.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	metrics.ObservePage(url, "colly", len(body))
	p, err := page.NewStatic(url, body, page.WithFetch(func(ctx context.Context) (string, error) {
		return d.fetch(ctx, url)
	}))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", url, err)
	}
	return p, nil
}

func (d *Driver) fetch(ctx context.Context, url string) (string, error) {
	collector := d.base.Clone()
	res := &result{}
	configureHooks(collector, res)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil && res.err == nil {
			return "", fmt.Errorf("colly visit failed: %w", err)
		}
		if res.err != nil {
			return "", fmt.Errorf("colly response failed: %w", res.err)
		}
		if res.status >= http.StatusInternalServerError {
			return "", fmt.Errorf("%w: %d", ErrServerStatus, res.status)
		}
		return res.body, nil
	}
}

func configureHooks(hooks collectorHooks, res *result) {
	hooks.OnResponse(func(r *colly.Response) {
		res.status = r.StatusCode
		res.body = string(r.Body)
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= http.StatusBadRequest && r.StatusCode < http.StatusInternalServerError {
			res.status = r.StatusCode
			res.body = string(r.Body)
			return
		}
		res.err = err
	})
}

func httpCookies(cookies []crawler.Cookie) map[string][]*http.Cookie {
	out := map[string][]*http.Cookie{}
	for _, c := range cookies {
		domain := strings.TrimPrefix(c.Domain, ".")
		if domain == "" {
			domain = crawler.DefaultHost
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		out[domain] = append(out[domain], &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     path,
			SameSite: sameSite(c.SameSite),
		})
	}
	return out
}

func sameSite(raw string) http.SameSite {
	switch raw {
	case "Strict":
		return http.SameSiteStrictMode
	case "Lax":
		return http.SameSiteLaxMode
	case "None":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
