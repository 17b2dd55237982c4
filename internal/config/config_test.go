package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gramcrawl/internal/crawler"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Crawler.MaxConcurrency)
	require.Equal(t, 3, cfg.Crawler.MaxRetries)
	require.Equal(t, 90*time.Second, cfg.Crawler.TaskTimeout)
	require.Equal(t, 5, cfg.Input.SearchLimit)
	require.Equal(t, 30, cfg.Input.MaxPostsPerProfile)
	require.Equal(t, 20, cfg.Input.ExploreLimit)
	require.Equal(t, "chromedp", cfg.Crawler.Driver)
	require.Equal(t, 1500*time.Millisecond, cfg.Browser.ScrollPause)
	require.Equal(t, 120, cfg.Gate.MinTextChars)
	require.True(t, cfg.Report.Enabled)
	require.Empty(t, cfg.Input.StartURLs)
	require.False(t, cfg.Tracing.Enabled)
	require.Equal(t, "gramcrawl", cfg.Tracing.ServiceName)
}

func TestLoadMixedStartURLs(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yaml", `
input:
  start_urls:
    - https://www.instagram.com/natgeo/
    - url: https://www.instagram.com/explore/tags/sunset/
      id: abc123
      user_data:
        limit: 3
  search: "#travel"
  login_cookies:
    - name: sessionid
      value: s3cret
      domain: .instagram.com
      same_site: LAX
    - name: csrftoken
      value: tok
      domain: .instagram.com
      same_site: none
crawler:
  max_concurrency: 4
  driver: COLLY
browser:
  scroll_passes: 5
  settle_delay: 3s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Input.StartURLs, 2)
	require.Equal(t, "https://www.instagram.com/natgeo/", cfg.Input.StartURLs[0].URL)
	require.Empty(t, cfg.Input.StartURLs[0].UserData)
	require.Equal(t, "https://www.instagram.com/explore/tags/sunset/", cfg.Input.StartURLs[1].URL)
	require.EqualValues(t, 3, cfg.Input.StartURLs[1].UserData["limit"])
	require.NotContains(t, cfg.Input.StartURLs[1].UserData, "id")

	require.Equal(t, "#travel", cfg.Input.Search)
	require.Equal(t, "colly", cfg.Crawler.Driver)
	require.Equal(t, 4, cfg.Crawler.MaxConcurrency)
	require.Equal(t, 5, cfg.Browser.ScrollPasses)
	require.Equal(t, 3*time.Second, cfg.Browser.SettleDelay)

	require.Equal(t, []crawler.Cookie{
		{Name: "sessionid", Value: "s3cret", Domain: ".instagram.com", SameSite: "Lax"},
		{Name: "csrftoken", Value: "tok", Domain: ".instagram.com", SameSite: "None"},
	}, cfg.Cookies())
}

func TestLoadCamelCaseUserData(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yaml", `
input:
  start_urls:
    - url: https://www.instagram.com/natgeo/
      user_data:
        maxPosts: 3
    - url: https://www.instagram.com/nasa/
      userData:
        maxPosts: 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Input.StartURLs, 2)

	first := crawler.NewTask(cfg.Input.StartURLs[0].URL, crawler.LabelProfile, cfg.Input.StartURLs[0].UserData)
	require.Equal(t, 3, first.IntParam("maxPosts", 30))
	second := crawler.NewTask(cfg.Input.StartURLs[1].URL, crawler.LabelProfile, cfg.Input.StartURLs[1].UserData)
	require.Equal(t, 4, second.IntParam("maxPosts", 30))
}

func TestLoadRejectsDuplicateUserData(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yaml", `
input:
  start_urls:
    - url: https://www.instagram.com/natgeo/
      user_data: {limit: 1}
      userData: {limit: 2}
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "user_data and userData")
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "input.json", `{
  "input": {
    "start_urls": [{"url": "https://www.instagram.com/p/ABCDE1/", "id": "x"}],
    "search_limit": 7
  },
  "report": {"enabled": false}
}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://www.instagram.com/p/ABCDE1/", cfg.Input.StartURLs[0].URL)
	require.Equal(t, 7, cfg.Input.SearchLimit)
	require.False(t, cfg.Report.Enabled)
}

func TestLoadRejectsBadSameSite(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yaml", `
input:
  login_cookies:
    - name: sessionid
      value: x
      domain: .instagram.com
      same_site: sometimes
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "same_site")
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GRAMCRAWL_INPUT_SEARCH", "sunset")
	t.Setenv("GRAMCRAWL_CRAWLER_MAX_CONCURRENCY", "6")
	t.Setenv("GRAMCRAWL_BROWSER_NAV_TIMEOUT", "20s")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "sunset", cfg.Input.Search)
	require.Equal(t, 6, cfg.Crawler.MaxConcurrency)
	require.Equal(t, 20*time.Second, cfg.Browser.NavTimeout)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"concurrency", func(c *Config) { c.Crawler.MaxConcurrency = 0 }, "max_concurrency"},
		{"driver", func(c *Config) { c.Crawler.Driver = "playwright" }, "crawler.driver"},
		{"gcs bucket", func(c *Config) { c.Storage.Backend = "gcs" }, "gcs_bucket"},
		{"backend", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"records dsn", func(c *Config) { c.Records.Enabled = true }, "records.dsn"},
		{"publisher project", func(c *Config) { c.Publisher.Enabled = true }, "project_id"},
		{"empty start url", func(c *Config) { c.Input.StartURLs = []StartURL{{}} }, "start_urls[0]"},
		{"cookie domain", func(c *Config) { c.Input.LoginCookies = []Cookie{{Name: "a"}} }, "login_cookies[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
	require.NoError(t, base.Validate())
}
