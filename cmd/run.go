package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/gramcrawl/internal/app"
	"github.com/JakeFAU/gramcrawl/internal/config"
	"github.com/JakeFAU/gramcrawl/internal/logging"
)

type runOptions struct {
	search    string
	startURLs []string
	driver    string
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Crawl the configured start URLs and write the run report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if err := opts.apply(&cfg); err != nil {
				return err
			}
			return runCrawl(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.search, "search", "", "hashtag to search, with or without a leading #")
	cmd.Flags().StringSliceVar(&opts.startURLs, "start-url", nil, "start URL (repeatable); replaces configured start URLs")
	cmd.Flags().StringVar(&opts.driver, "driver", "", "page driver: chromedp or colly")
	return cmd
}

// apply layers command line overrides on top of the loaded configuration.
func (o runOptions) apply(cfg *config.Config) error {
	if o.search != "" {
		cfg.Input.Search = o.search
	}
	if len(o.startURLs) > 0 {
		cfg.Input.StartURLs = make([]config.StartURL, 0, len(o.startURLs))
		for _, u := range o.startURLs {
			cfg.Input.StartURLs = append(cfg.Input.StartURLs, config.StartURL{URL: u})
		}
	}
	if o.driver != "" {
		cfg.Crawler.Driver = strings.ToLower(o.driver)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func runCrawl(parent context.Context, cfg config.Config, out io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init run: %w", err)
	}
	defer a.Close()

	res, runErr := a.Run(ctx)
	printResult(out, res)
	if runErr != nil {
		logger.Error("run finished with errors", zap.Error(runErr))
		return runErr
	}
	return nil
}

func printResult(out io.Writer, res app.Result) {
	s := res.Summary
	fmt.Fprintf(out, "run %s\n", res.Run.ID)
	if s.NoData {
		fmt.Fprintln(out, "no data was scraped")
	}
	fmt.Fprintf(out, "records: %d (profiles %d, posts %d, hashtags %d, locations %d)\n",
		s.TotalRecords, s.Profiles, s.Posts, s.Hashtags, s.Locations)
	fmt.Fprintf(out, "tasks: %d ok, %d failed, %d retried\n", res.Succeeded, res.Failed, res.Retried)
	for _, a := range []struct{ name, uri string }{
		{"report", res.Artifacts.HTML},
		{"markdown", res.Artifacts.Markdown},
		{"dataset", res.Artifacts.Dataset},
	} {
		if a.uri != "" {
			fmt.Fprintf(out, "%s: %s\n", a.name, a.uri)
		}
	}
}
