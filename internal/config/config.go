// Package config loads and validates gramcrawl configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/JakeFAU/gramcrawl/internal/crawler"
)

// Config captures every knob of a run.
type Config struct {
	Input     InputConfig     `mapstructure:"input"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Gate      GateConfig      `mapstructure:"gate"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Records   RecordsConfig   `mapstructure:"records"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Report    ReportConfig    `mapstructure:"report"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// InputConfig describes what to crawl.
type InputConfig struct {
	StartURLs          []StartURL `mapstructure:"start_urls"`
	Search             string     `mapstructure:"search"`
	SearchLimit        int        `mapstructure:"search_limit"`
	MaxPostsPerProfile int        `mapstructure:"max_posts_per_profile"`
	ExploreLimit       int        `mapstructure:"explore_limit"`
	LoginCookies       []Cookie   `mapstructure:"login_cookies"`
	ProxyURLs          []string   `mapstructure:"proxy_urls"`
}

// StartURL is a seed. In files it may be a bare string or an object; any
// "id" key on the object is discarded.
type StartURL struct {
	URL      string         `mapstructure:"url"`
	Label    string         `mapstructure:"label"`
	UserData map[string]any `mapstructure:"user_data"`
}

// Cookie is a login cookie as written in configuration.
type Cookie struct {
	Name     string `mapstructure:"name"`
	Value    string `mapstructure:"value"`
	Domain   string `mapstructure:"domain"`
	Path     string `mapstructure:"path"`
	SameSite string `mapstructure:"same_site"`
}

// CrawlerConfig governs the worker pool and retry behavior.
type CrawlerConfig struct {
	Driver         string        `mapstructure:"driver"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"`
	TaskTimeout    time.Duration `mapstructure:"task_timeout"`
	HostQPS        float64       `mapstructure:"host_qps"`
	HostBurst      int           `mapstructure:"host_burst"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// BrowserConfig tunes navigation and page preparation.
type BrowserConfig struct {
	NavTimeout     time.Duration `mapstructure:"nav_timeout"`
	ViewportWidth  int           `mapstructure:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height"`
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
	SkeletonDelay  time.Duration `mapstructure:"skeleton_delay"`
	WaitTimeout    time.Duration `mapstructure:"wait_timeout"`
	ScrollPasses   int           `mapstructure:"scroll_passes"`
	ScrollStepPx   int           `mapstructure:"scroll_step_px"`
	ScrollPause    time.Duration `mapstructure:"scroll_pause"`
}

// GateConfig overrides page classification thresholds.
type GateConfig struct {
	MinTextChars int      `mapstructure:"min_text_chars"`
	ConsentTexts []string `mapstructure:"consent_texts"`
}

// StorageConfig selects the artifact store.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// RecordsConfig controls mirroring records into Postgres.
type RecordsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	DSN         string `mapstructure:"dsn"`
	RecordTable string `mapstructure:"record_table"`
	RunTable    string `mapstructure:"run_table"`
	MaxConns    int32  `mapstructure:"max_conns"`
}

// PublisherConfig controls Pub/Sub record fanout.
type PublisherConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ReportConfig toggles the human-readable report artifacts.
type ReportConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ServerConfig controls the optional status server.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TracingConfig enables OpenTelemetry task spans. ProjectID turns on
// export to Cloud Trace.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	ProjectID   string `mapstructure:"project_id"`
}

// Load builds a Config from disk and environment. path may be empty.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GRAMCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		startURLHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("input.start_urls", []string{})
	v.SetDefault("input.search", "")
	v.SetDefault("input.search_limit", 5)
	v.SetDefault("input.max_posts_per_profile", 30)
	v.SetDefault("input.explore_limit", 20)
	v.SetDefault("crawler.driver", "chromedp")
	v.SetDefault("crawler.max_concurrency", 2)
	v.SetDefault("crawler.max_retries", 3)
	v.SetDefault("crawler.retry_base_delay", "2s")
	v.SetDefault("crawler.retry_max_delay", "30s")
	v.SetDefault("crawler.task_timeout", "90s")
	v.SetDefault("crawler.host_qps", 0.5)
	v.SetDefault("crawler.host_burst", 1)
	v.SetDefault("crawler.user_agent", "")
	v.SetDefault("browser.nav_timeout", "45s")
	v.SetDefault("browser.viewport_width", 1366)
	v.SetDefault("browser.viewport_height", 900)
	v.SetDefault("browser.settle_delay", "2s")
	v.SetDefault("browser.skeleton_delay", "5s")
	v.SetDefault("browser.wait_timeout", "10s")
	v.SetDefault("browser.scroll_passes", 3)
	v.SetDefault("browser.scroll_step_px", 1200)
	v.SetDefault("browser.scroll_pause", "1500ms")
	v.SetDefault("gate.min_text_chars", 120)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "storage")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("records.enabled", false)
	v.SetDefault("records.dsn", "")
	v.SetDefault("records.record_table", "extraction_records")
	v.SetDefault("records.run_table", "crawl_runs")
	v.SetDefault("records.max_conns", 4)
	v.SetDefault("publisher.enabled", false)
	v.SetDefault("publisher.project_id", "")
	v.SetDefault("publisher.topic", "gramcrawl-records")
	v.SetDefault("report.enabled", true)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "gramcrawl")
	v.SetDefault("tracing.project_id", "")
}

var startURLType = reflect.TypeOf(StartURL{})

// startURLHook lets start_urls entries be bare strings or objects. The
// camelCase "userData" key is accepted as an alias of "user_data".
func startURLHook(from, to reflect.Type, data any) (any, error) {
	if to != startURLType {
		return data, nil
	}
	switch from.Kind() {
	case reflect.String:
		return map[string]any{"url": data}, nil
	case reflect.Map:
		m, ok := data.(map[string]any)
		if !ok {
			return data, nil
		}
		out := make(map[string]any, len(m))
		for k, val := range m {
			switch {
			case strings.EqualFold(k, "id"):
				continue
			case strings.EqualFold(k, "userData"):
				if _, dup := m["user_data"]; dup {
					return nil, errors.New("start url sets both user_data and userData")
				}
				out["user_data"] = val
			default:
				out[k] = val
			}
		}
		return out, nil
	default:
		return data, nil
	}
}

func (c *Config) normalize() error {
	for i := range c.Input.LoginCookies {
		ss, err := normalizeSameSite(c.Input.LoginCookies[i].SameSite)
		if err != nil {
			return fmt.Errorf("input.login_cookies[%d]: %w", i, err)
		}
		c.Input.LoginCookies[i].SameSite = ss
	}
	for i := range c.Input.StartURLs {
		c.Input.StartURLs[i].URL = strings.TrimSpace(c.Input.StartURLs[i].URL)
	}
	c.Input.Search = strings.TrimSpace(c.Input.Search)
	c.Crawler.Driver = strings.ToLower(strings.TrimSpace(c.Crawler.Driver))
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	return nil
}

func normalizeSameSite(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return "", nil
	case "strict":
		return "Strict", nil
	case "lax":
		return "Lax", nil
	case "none", "no_restriction":
		return "None", nil
	default:
		return "", fmt.Errorf("same_site %q must be strict, lax or none", raw)
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Crawler.MaxConcurrency <= 0 {
		errs = append(errs, errors.New("crawler.max_concurrency must be > 0"))
	}
	if c.Crawler.MaxRetries < 0 {
		errs = append(errs, errors.New("crawler.max_retries must be >= 0"))
	}
	if c.Crawler.Driver != "chromedp" && c.Crawler.Driver != "colly" {
		errs = append(errs, fmt.Errorf("crawler.driver %q must be chromedp or colly", c.Crawler.Driver))
	}
	if c.Input.SearchLimit < 0 || c.Input.MaxPostsPerProfile < 0 || c.Input.ExploreLimit < 0 {
		errs = append(errs, errors.New("input limits must be >= 0"))
	}
	for i, u := range c.Input.StartURLs {
		if u.URL == "" {
			errs = append(errs, fmt.Errorf("input.start_urls[%d] has no url", i))
		}
	}
	for i, ck := range c.Input.LoginCookies {
		if ck.Name == "" || ck.Domain == "" {
			errs = append(errs, fmt.Errorf("input.login_cookies[%d] needs name and domain", i))
		}
	}
	switch c.Storage.Backend {
	case "local", "memory":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			errs = append(errs, errors.New("storage.gcs_bucket must be set for the gcs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q must be local, gcs or memory", c.Storage.Backend))
	}
	if c.Records.Enabled && c.Records.DSN == "" {
		errs = append(errs, errors.New("records.dsn must be set when records are enabled"))
	}
	if c.Publisher.Enabled && c.Publisher.ProjectID == "" {
		errs = append(errs, errors.New("publisher.project_id must be set when the publisher is enabled"))
	}
	return errors.Join(errs...)
}

// Cookies converts the configured login cookies.
func (c Config) Cookies() []crawler.Cookie {
	out := make([]crawler.Cookie, 0, len(c.Input.LoginCookies))
	for _, ck := range c.Input.LoginCookies {
		out = append(out, crawler.Cookie(ck))
	}
	return out
}
