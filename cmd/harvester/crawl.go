package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Sriram-PR/gdao-harvester/pkg/config"
	"github.com/Sriram-PR/gdao-harvester/pkg/crawler"
	"github.com/Sriram-PR/gdao-harvester/pkg/report"
	"github.com/Sriram-PR/gdao-harvester/pkg/storage"
	"github.com/Sriram-PR/gdao-harvester/pkg/utils"
)

const visitedLogFilename = "graph_visited.txt"

type crawlOptions struct {
	startURL        string
	maxDepth        int
	maxPages        int
	delay           time.Duration
	outputDir       string
	respectRobots   bool
	writeVisitedLog bool
}

func newCrawlCmd(g *globalFlags) *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Map the site's internal link graph breadth-first",
		Long: `Crawl starts at the configured start URL, follows same-host links breadth-first up to
--max-depth and writes the graph as links/nodes CSV, Graphviz DOT, SQLite and a Markdown report.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := setupLogger(g.logLevel, cmd.ErrOrStderr())
			flags := cmd.Flags()
			cfg, err := loadAndValidateConfig(g.configPath, func(cfg *config.AppConfig) {
				if flags.Changed("start-url") {
					cfg.Graph.StartURL = opts.startURL
				}
				if flags.Changed("max-depth") {
					cfg.Graph.MaxDepth = opts.maxDepth
				}
				if flags.Changed("max-pages") {
					cfg.Graph.MaxPages = opts.maxPages
				}
				if flags.Changed("delay") {
					cfg.RequestDelay = opts.delay
				}
				if flags.Changed("output-dir") {
					cfg.OutputDir = opts.outputDir
				}
				if flags.Changed("respect-robots") {
					cfg.RespectRobots = opts.respectRobots
				}
			}, log)
			if err != nil {
				return err
			}

			ctx, stop := withSignals(cmd.Context(), log)
			defer stop()
			return runCrawl(ctx, cfg, opts.writeVisitedLog, log)
		},
	}

	cmd.Flags().StringVar(&opts.startURL, "start-url", "", "Seed URL (default: base_url)")
	cmd.Flags().IntVarP(&opts.maxDepth, "max-depth", "d", 0, "Maximum link depth from the seed (overrides config)")
	cmd.Flags().IntVar(&opts.maxPages, "max-pages", 0, "Stop after fetching this many pages, 0 = unlimited (overrides config)")
	cmd.Flags().DurationVar(&opts.delay, "delay", 0, "Delay between requests to the same host (overrides config)")
	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "o", "", "Directory for exports (overrides config)")
	cmd.Flags().BoolVar(&opts.respectRobots, "respect-robots", false, "Honour robots.txt (overrides config)")
	cmd.Flags().BoolVar(&opts.writeVisitedLog, "write-visited-log", false, "Write every visited URL to "+visitedLogFilename)

	return cmd
}

// runCrawl executes one graph crawl and writes its exports. Cancellation is not an error
func runCrawl(ctx context.Context, cfg *config.AppConfig, writeVisitedLog bool, log *logrus.Logger) error {
	runID := uuid.NewString()
	runLog := log.WithFields(logrus.Fields{"component": "crawl", "run_id": runID})

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("%w: create output dir '%s': %w", utils.ErrFilesystem, cfg.OutputDir, err)
	}

	// The graph ledger starts empty on every crawl
	store, err := storage.NewBadgerStore(ctx, cfg.StateDir, "graph", false, runLog.WithField("component", "ledger"))
	if err != nil {
		return err
	}
	defer store.Close()
	go store.RunGC(ctx, cfg.DBGCInterval)

	fetcher, robots := newFetchStack(cfg, runLog)
	var robotsChecker crawler.RobotsChecker
	if robots != nil {
		robotsChecker = robots
	}

	c, err := crawler.NewCrawler(cfg, fetcher, robotsChecker, store, runID, runLog)
	if err != nil {
		return err
	}
	res, runErr := c.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	// Exports must finish even after an interrupt
	exportCtx := context.WithoutCancel(ctx)
	_, exportErr := crawler.NewOutputManager(runLog.WithField("component", "output"), cfg.Graph, cfg.OutputDir).WriteAll(exportCtx, res)

	_, _, _, _, _, reportName := config.GetEffectiveGraphFilenames(cfg.Graph)
	reportPath := filepath.Join(cfg.OutputDir, reportName)
	if err := report.SaveFile(reportPath, func(w io.Writer) error { return report.WriteGraph(w, res) }); err != nil {
		runLog.Errorf("Failed to write graph report: %v", err)
		exportErr = errors.Join(exportErr, err)
	} else {
		runLog.Infof("Graph report written to %s", reportPath)
	}

	if n, err := store.GetVisitedCount(); err == nil {
		runLog.Infof("Graph ledger holds %d URLs", n)
	}

	if writeVisitedLog && ctx.Err() == nil {
		if err := store.WriteVisitedLog(filepath.Join(cfg.OutputDir, visitedLogFilename)); err != nil {
			runLog.Errorf("Failed to write visited log: %v", err)
		}
	}

	if errors.Is(runErr, context.Canceled) {
		runLog.Warn("Crawl cancelled gracefully; partial graph exported.")
		return nil
	}
	return exportErr
}
