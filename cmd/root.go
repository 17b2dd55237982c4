// Package cmd defines the gramcrawl command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates the root command and attaches its subcommands.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gramcrawl",
		Short: "Resilient extraction of public profile, post, hashtag and location pages.",
		Long: `gramcrawl crawls public social pages with a bounded worker pool,
classifies every rendered page before extraction, retries transient failures
and always writes a run report, even when nothing could be scraped.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML or JSON)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
