package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gramcrawl/internal/app"
	"github.com/JakeFAU/gramcrawl/internal/config"
	"github.com/JakeFAU/gramcrawl/internal/crawler"
	"github.com/JakeFAU/gramcrawl/internal/report"
)

func TestRootRegistersSubcommands(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	require.Contains(t, names, "run")
	require.Contains(t, names, "version")
	require.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestVersionOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cmd := newVersionCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	require.Contains(t, buf.String(), "gramcrawl version")
	require.Contains(t, buf.String(), "commit:")
}

func TestRunOptionsApply(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Input:   config.InputConfig{StartURLs: []config.StartURL{{URL: "https://www.instagram.com/old/"}}},
		Crawler: config.CrawlerConfig{Driver: "chromedp", MaxConcurrency: 1},
		Storage: config.StorageConfig{Backend: "memory"},
	}
	opts := runOptions{
		search:    "#sunset",
		startURLs: []string{"https://www.instagram.com/natgeo/", "https://www.instagram.com/p/AAAAA1/"},
		driver:    "COLLY",
	}
	require.NoError(t, opts.apply(&cfg))
	require.Equal(t, "#sunset", cfg.Input.Search)
	require.Equal(t, "colly", cfg.Crawler.Driver)
	require.Len(t, cfg.Input.StartURLs, 2)
	require.Equal(t, "https://www.instagram.com/natgeo/", cfg.Input.StartURLs[0].URL)
}

func TestRunOptionsRejectUnknownDriver(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Crawler: config.CrawlerConfig{Driver: "chromedp", MaxConcurrency: 1},
		Storage: config.StorageConfig{Backend: "memory"},
	}
	err := runOptions{driver: "lynx"}.apply(&cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "lynx")
}

func TestPrintResult(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printResult(&buf, app.Result{
		Run:       crawler.RunContext{ID: "run-1"},
		Summary:   crawler.Summary{NoData: true},
		Artifacts: report.Artifacts{Dataset: "mem://runs/run-1/DATASET"},
		Failed:    2,
	})
	out := buf.String()
	require.Contains(t, out, "run run-1")
	require.Contains(t, out, "no data was scraped")
	require.Contains(t, out, "2 failed")
	require.Contains(t, out, "dataset: mem://runs/run-1/DATASET")
	require.NotContains(t, out, "report:")
}
