package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath string
	logLevel   string
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Resumable, rate-limited harvester for the Grateful Dead Archive Online",
		Long: `harvester collects the Grateful Dead Archive Online in two ways:

  crawl    maps the site's internal link graph breadth-first and exports it as CSV, DOT and SQLite
  harvest  walks the paginated item listing and appends one JSON record per item, downloading attachments

Harvests checkpoint after every listing page and item; "harvester resume" continues an interrupted run.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "",
		"Path to YAML config file (default: ./harvester.yaml, then the XDG config dir)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "loglevel", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newCrawlCmd(g))
	cmd.AddCommand(newHarvestCmd(g))
	cmd.AddCommand(newResumeCmd(g))
	cmd.AddCommand(newValidateCmd(g))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command and exits non-zero on error
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
