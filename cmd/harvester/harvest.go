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
	"github.com/Sriram-PR/gdao-harvester/pkg/fetch"
	"github.com/Sriram-PR/gdao-harvester/pkg/harvest"
	"github.com/Sriram-PR/gdao-harvester/pkg/process"
	"github.com/Sriram-PR/gdao-harvester/pkg/report"
	"github.com/Sriram-PR/gdao-harvester/pkg/storage"
	"github.com/Sriram-PR/gdao-harvester/pkg/utils"
)

type harvestOptions struct {
	maxPages        int
	maxItems        int
	delay           time.Duration
	itemDelay       time.Duration
	outputDir       string
	respectRobots   bool
	skipAttachments bool
	resume          bool
}

func (o *harvestOptions) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&o.maxPages, "max-pages", 0, "Do not scan listing pages beyond this number, 0 = unlimited (overrides config)")
	cmd.Flags().IntVar(&o.maxItems, "max-items", 0, "Harvest at most this many items in this run, 0 = unlimited (overrides config)")
	cmd.Flags().DurationVar(&o.delay, "delay", 0, "Delay between requests to the same host (overrides config)")
	cmd.Flags().DurationVar(&o.itemDelay, "item-delay", 0, "Pause between item detail fetches (overrides config)")
	cmd.Flags().StringVarP(&o.outputDir, "output-dir", "o", "", "Directory for the item log, progress file and attachments (overrides config)")
	cmd.Flags().BoolVar(&o.respectRobots, "respect-robots", false, "Honour robots.txt (overrides config)")
	cmd.Flags().BoolVar(&o.skipAttachments, "skip-attachments", false, "Record attachments without downloading them")
}

// apply copies changed flags onto cfg
func (o *harvestOptions) apply(cmd *cobra.Command) func(*config.AppConfig) {
	flags := cmd.Flags()
	return func(cfg *config.AppConfig) {
		if flags.Changed("max-pages") {
			cfg.Harvest.MaxPages = o.maxPages
		}
		if flags.Changed("max-items") {
			cfg.Harvest.MaxItems = o.maxItems
		}
		if flags.Changed("delay") {
			cfg.RequestDelay = o.delay
		}
		if flags.Changed("item-delay") {
			cfg.Harvest.ItemDelay = o.itemDelay
		}
		if flags.Changed("output-dir") {
			cfg.OutputDir = o.outputDir
		}
		if flags.Changed("respect-robots") {
			cfg.RespectRobots = o.respectRobots
		}
		if flags.Changed("skip-attachments") {
			cfg.Harvest.SkipAttachments = o.skipAttachments
		}
	}
}

func (o *harvestOptions) run(cmd *cobra.Command, g *globalFlags) error {
	log := setupLogger(g.logLevel, cmd.ErrOrStderr())
	cfg, err := loadAndValidateConfig(g.configPath, o.apply(cmd), log)
	if err != nil {
		return err
	}

	ctx, stop := withSignals(cmd.Context(), log)
	defer stop()
	return runHarvest(ctx, cfg, o.resume, log)
}

func newHarvestCmd(g *globalFlags) *cobra.Command {
	opts := &harvestOptions{}
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Harvest item records and attachments from the paginated listing",
		Long: `Harvest walks the search listing page by page, fetches every item detail page, appends one
JSON record per item to the item log and downloads the item's attachments.

Progress is checkpointed after every listing page and item. By default an existing checkpoint is
continued; pass --resume=false to start over from page 1 (the item log is appended to, never truncated).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, g)
		},
	}
	opts.register(cmd)
	cmd.Flags().BoolVar(&opts.resume, "resume", true, "Continue from the saved checkpoint")
	return cmd
}

func newResumeCmd(g *globalFlags) *cobra.Command {
	opts := &harvestOptions{resume: true}
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Continue an interrupted harvest from its checkpoint",
		Long:  `Resume finishes the items left pending by the previous run, then continues with the next listing page.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, g)
		},
	}
	opts.register(cmd)
	return cmd
}

// runHarvest executes one harvest run and writes its report. Cancellation is not an error
func runHarvest(ctx context.Context, cfg *config.AppConfig, resume bool, log *logrus.Logger) error {
	runID := uuid.NewString()
	runLog := log.WithFields(logrus.Fields{"component": "harvest", "run_id": runID})

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("%w: create output dir '%s': %w", utils.ErrFilesystem, cfg.OutputDir, err)
	}

	progress := storage.NewProgressStore(filepath.Join(cfg.OutputDir, cfg.Harvest.ProgressFilename), runLog.WithField("component", "progress"))
	itemsPath := filepath.Join(cfg.OutputDir, cfg.Harvest.ItemsFilename)
	items, err := harvest.OpenItemLog(itemsPath)
	if err != nil {
		return err
	}
	defer items.Close()

	fetcher, robots := newFetchStack(cfg, runLog)

	var downloader harvest.AttachmentDownloader
	if !cfg.Harvest.SkipAttachments {
		// The ledger survives fresh runs; entries are checked against the files on disk
		ledger, err := storage.NewBadgerStore(ctx, cfg.StateDir, "attachments", true, runLog.WithField("component", "ledger"))
		if err != nil {
			return err
		}
		defer ledger.Close()
		go ledger.RunGC(ctx, cfg.DBGCInterval)

		hosts := fetch.NewHostSemaphorePool(cfg.Harvest.MaxDownloadsPerHost, runLog.WithField("component", "host_semaphore"))
		downloader = process.NewDownloader(fetcher, hosts, ledger, cfg, runLog.WithField("component", "downloader"))
	}

	h, err := harvest.New(cfg, fetcher, progress, downloader, items, runLog)
	if err != nil {
		return err
	}
	h.WithRunID(runID)
	if robots != nil {
		h.WithRobots(robots)
	}

	opts := harvest.Options{MaxPages: cfg.Harvest.MaxPages, MaxItems: cfg.Harvest.MaxItems, Resume: resume}
	sum, runErr := h.Run(ctx, opts)

	if sum != nil {
		reportPath := filepath.Join(cfg.OutputDir, cfg.Harvest.ReportFilename)
		if err := report.SaveFile(reportPath, func(w io.Writer) error { return report.WriteHarvest(w, sum, itemsPath) }); err != nil {
			runLog.Errorf("Failed to write harvest report: %v", err)
		} else {
			runLog.Infof("Harvest report written to %s", reportPath)
		}
	}

	attachmentsRoot := filepath.Join(cfg.OutputDir, cfg.Harvest.AttachmentsDir)
	if _, statErr := os.Stat(attachmentsRoot); statErr == nil {
		if err := utils.SaveTreeListing(attachmentsRoot, filepath.Join(cfg.OutputDir, cfg.Harvest.TreeFilename), runLog); err != nil {
			runLog.Errorf("Failed to write attachment tree: %v", err)
		}
	}

	if errors.Is(runErr, context.Canceled) {
		runLog.Warn("Harvest cancelled gracefully. Run `harvester resume` to continue.")
		return nil
	}
	if utils.IsPersistenceError(runErr) {
		runLog.Error("Harvest halted because progress could not be saved. Fix the output directory, then run `harvester resume`.")
	}
	return runErr
}
