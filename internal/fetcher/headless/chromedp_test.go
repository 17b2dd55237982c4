package headless

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gramcrawl/internal/crawler"
)

func TestNewDriverValidation(t *testing.T) {
	t.Parallel()

	_, err := NewDriver(Config{Sessions: -1}, nil)
	require.Error(t, err)

	d, err := NewDriver(Config{}, nil)
	require.NoError(t, err)
	require.Len(t, d.all, 2)
	require.Equal(t, 45*time.Second, d.cfg.NavigationTimeout)
	require.Equal(t, 1366, d.cfg.ViewportWidth)
}

func TestNewDriverAssignsProxiesRoundRobin(t *testing.T) {
	t.Parallel()

	d, err := NewDriver(Config{Sessions: 3, ProxyURLs: []string{"http://p1:8080", "http://p2:8080"}}, nil)
	require.NoError(t, err)
	got := []string{d.all[0].proxy, d.all[1].proxy, d.all[2].proxy}
	require.Equal(t, []string{"http://p1:8080", "http://p2:8080", "http://p1:8080"}, got)
}

func TestAcquireIsExclusive(t *testing.T) {
	t.Parallel()

	d, err := NewDriver(Config{Sessions: 1}, nil)
	require.NoError(t, err)

	s, err := d.acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = d.acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	d.release(s)
	again, err := d.acquire(context.Background())
	require.NoError(t, err)
	require.Same(t, s, again)
}

func TestOpenAfterCloseFails(t *testing.T) {
	t.Parallel()

	d, err := NewDriver(Config{Sessions: 1}, nil)
	require.NoError(t, err)
	d.Close()
	d.Close()
	_, err = d.Open(context.Background(), "https://www.instagram.com/natgeo/")
	require.ErrorIs(t, err, ErrClosed)
}

func TestCookieParams(t *testing.T) {
	t.Parallel()

	params := cookieParams(crawler.Cookie{Name: "sessionid", Value: "abc", Domain: ".instagram.com", SameSite: "Lax"})
	require.Equal(t, "sessionid", params.Name)
	require.Equal(t, "/", params.Path)
	require.Equal(t, network.CookieSameSiteLax, params.SameSite)
	require.True(t, params.Secure)

	params = cookieParams(crawler.Cookie{Name: "csrftoken", Value: "x", Domain: ".instagram.com", Path: "/accounts"})
	require.Equal(t, "/accounts", params.Path)
	require.Empty(t, params.SameSite)
}

func TestResponseMetaCapturesDocumentStatus(t *testing.T) {
	t.Parallel()

	meta := &responseMeta{}
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 404},
	})
	require.Zero(t, meta.Status())

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 429},
	})
	require.Equal(t, 429, meta.Status())
}

func TestScriptsQuoteInput(t *testing.T) {
	t.Parallel()

	require.Contains(t, textScript(`a[href="x"]`), `"a[href=\"x\"]"`)
	require.Contains(t, attrScript("meta", "content"), `getAttribute("content")`)

	script, err := clickScript("button", []string{"Allow ALL", "Accept"})
	require.NoError(t, err)
	require.Contains(t, script, `["allow all","accept"]`)
	require.Contains(t, script, `querySelectorAll("button")`)
}

func TestTabCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	calls := 0
	tab := &Tab{closeFn: func() { calls++ }}
	require.NoError(t, tab.Close())
	require.NoError(t, tab.Close())
	require.Equal(t, 1, calls)
}
