package harvest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/gdao-harvester/pkg/config"
	"github.com/Sriram-PR/gdao-harvester/pkg/fetch"
	"github.com/Sriram-PR/gdao-harvester/pkg/models"
	"github.com/Sriram-PR/gdao-harvester/pkg/parse"
	"github.com/Sriram-PR/gdao-harvester/pkg/process"
	"github.com/Sriram-PR/gdao-harvester/pkg/storage"
	"github.com/Sriram-PR/gdao-harvester/pkg/utils"
)

// PageFetcher is the part of fetch.Fetcher the harvester needs
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Result, error)
}

// RobotsChecker is the part of fetch.RobotsHandler the harvester needs
type RobotsChecker interface {
	Allowed(ctx context.Context, target *url.URL) bool
}

// AttachmentDownloader is implemented by process.Downloader
type AttachmentDownloader interface {
	DownloadAll(ctx context.Context, itemID string, atts []models.Attachment) []models.Attachment
}

// ItemWriter persists harvested records. Implemented by ItemLog
type ItemWriter interface {
	Append(item models.HarvestedItem) error
}

// Options bound a single harvest run
type Options struct {
	MaxPages int  // Highest listing page number to scan; 0 = unlimited
	MaxItems int  // Detail pages to attempt in this run; 0 = unlimited
	Resume   bool // Continue from the saved progress instead of resetting it
}

// Harvester walks the paginated listing, fetches every item detail page and appends one record per item.
// Progress is checkpointed after every listing page and every item, so a rerun with Resume picks up where
// the last one stopped without duplicating log lines.
type Harvester struct {
	cfg         *config.AppConfig
	fetcher     PageFetcher
	robots      RobotsChecker // Optional
	progress    *storage.ProgressStore
	downloader  AttachmentDownloader // Optional; nil disables attachment downloads
	items       ItemWriter
	extractor   *process.MetadataExtractor
	itemPattern *regexp.Regexp
	runID       string
	log         *logrus.Entry

	fetchedItem bool                // Set after the first detail fetch so the item delay is skipped once
	attempted   int                 // Detail pages attempted this run, for max_items
	failed      map[string]struct{} // Items that failed this run; retried on the next resume, not again now
}

// New validates the item pattern from cfg and builds a harvester
func New(cfg *config.AppConfig, fetcher PageFetcher, progress *storage.ProgressStore, downloader AttachmentDownloader, items ItemWriter, log *logrus.Entry) (*Harvester, error) {
	pattern := process.DefaultItemPattern
	if cfg.Harvest.ItemPathPattern != "" {
		re, err := regexp.Compile(cfg.Harvest.ItemPathPattern)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid item_path_pattern %q: %w", utils.ErrConfigValidation, cfg.Harvest.ItemPathPattern, err)
		}
		pattern = re
	}

	return &Harvester{
		cfg:         cfg,
		fetcher:     fetcher,
		progress:    progress,
		downloader:  downloader,
		items:       items,
		extractor:   process.NewMetadataExtractor(cfg.Harvest.TitleSuffix, log.WithField("component", "metadata")),
		itemPattern: pattern,
		log:         log,
	}, nil
}

// WithRobots makes the harvester skip listing and detail pages robots.txt disallows
func (h *Harvester) WithRobots(robots RobotsChecker) *Harvester {
	h.robots = robots
	return h
}

// WithRunID tags the run's log lines and summary
func (h *Harvester) WithRunID(id string) *Harvester {
	h.runID = id
	return h
}

// Run resets or loads the checkpoint, finishes any items left pending by an earlier run, then scans listing
// pages from the resume page onwards. Per-item failures are counted and skipped; a persistence failure halts
// the run. On cancellation the summary is returned together with ctx.Err()
func (h *Harvester) Run(ctx context.Context, opts Options) (*Summary, error) {
	sum := newSummary(h.runID)
	h.fetchedItem = false
	h.attempted = 0
	h.failed = make(map[string]struct{})

	if opts.Resume {
		if _, err := h.progress.Load(); err != nil {
			return sum, err
		}
	} else if err := h.progress.Reset(); err != nil {
		return sum, err
	}
	sum.StartPage = h.progress.ResumePage()

	runLog := h.log.WithFields(logrus.Fields{"run_id": h.runID, "start_page": sum.StartPage, "resume": opts.Resume})
	runLog.Info("Harvest starting...")

	err := h.run(ctx, opts, sum, runLog)
	sum.Finished = time.Now()
	if ctx.Err() != nil {
		sum.Cancelled = true
		if sum.StopReason == "" {
			sum.StopReason = "cancelled"
		}
		if err == nil || errors.Is(err, ctx.Err()) {
			err = ctx.Err()
		}
	}
	if err != nil && !sum.Cancelled {
		sum.StopReason = fmt.Sprintf("halted: %v", err)
	}
	sum.Progress = h.progress.Snapshot()
	sum.log(runLog)
	return sum, err
}

func (h *Harvester) run(ctx context.Context, opts Options, sum *Summary, runLog *logrus.Entry) error {
	if pending := h.progress.PendingItems(); len(pending) > 0 {
		runLog.Infof("Resuming %d items left pending by a previous run", len(pending))
	}
	if stop, err := h.drainPending(ctx, opts, sum); stop || err != nil {
		return err
	}

	seen := make(map[string]struct{})
	for page := h.progress.ResumePage(); ; page++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if opts.MaxPages > 0 && page > opts.MaxPages {
			sum.StopReason = fmt.Sprintf("max_pages (%d) reached", opts.MaxPages)
			return nil
		}

		links, pag, err := h.scanListing(ctx, page, sum, runLog)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if page > 1 && page == h.progress.ResumePage() && isEndOfListing(err) {
				sum.StopReason = fmt.Sprintf("end of listing at page %d (%s)", page, utils.CategorizeError(err))
				runLog.WithField("page", page).Infof("Listing page past the last one, stopping pagination: %v", err)
				return nil
			}
			sum.recordError(err)
			sum.StopReason = fmt.Sprintf("listing page %d failed (%s)", page, utils.CategorizeError(err))
			runLog.WithField("page", page).Errorf("Listing page failed, stopping pagination: %v", err)
			return nil
		}

		var urls []string
		for _, link := range links {
			if _, dup := seen[link.URL]; dup {
				continue
			}
			seen[link.URL] = struct{}{}
			urls = append(urls, link.URL)
			if h.progress.IsItemDone(link.URL) {
				sum.ItemsSkipped++
			}
		}
		if len(urls) == 0 {
			sum.StopReason = fmt.Sprintf("no new item links on listing page %d", page)
			return nil
		}

		if err := h.progress.MarkPageCollected(page, urls); err != nil {
			return err
		}
		sum.LastPage = page
		sum.ItemsFound += len(urls)

		if stop, err := h.drainPending(ctx, opts, sum); stop || err != nil {
			return err
		}

		if pag.Disagree() {
			runLog.WithFields(logrus.Fields{
				"page":          page,
				"next_link":     pag.Next.String(),
				"results_count": pag.Count.String(),
			}).Warn("Pagination signals disagree, following the next link")
		}
		if pag.IsLast() {
			sum.StopReason = fmt.Sprintf("last listing page (%d) reached", page)
			return nil
		}
	}
}

// isEndOfListing reports whether a listing fetch failed because the page does not exist
func isEndOfListing(err error) bool {
	switch utils.CategorizeError(err) {
	case "HTTP_404", "HTTP_410":
		return true
	}
	return false
}

// scanListing fetches one listing page and extracts its item links in page order
func (h *Harvester) scanListing(ctx context.Context, page int, sum *Summary, runLog *logrus.Entry) ([]process.ItemLink, Pagination, error) {
	listingURL := h.cfg.ListingURL(page)
	pageLog := runLog.WithFields(logrus.Fields{"page": page, "url": listingURL})
	pageLog.Info("Scanning listing page")

	if err := h.checkRobots(ctx, listingURL); err != nil {
		return nil, Pagination{}, err
	}
	res, err := h.fetcher.Fetch(ctx, listingURL)
	if err != nil {
		return nil, Pagination{}, err
	}
	doc, err := parseResult(res)
	if err != nil {
		return nil, Pagination{}, err
	}
	sum.PagesCrawled++

	links := process.ExtractItemLinks(doc, h.itemPattern)
	pag := DetectPagination(doc, page, h.cfg.Harvest.ResultsPerPage)
	pageLog.WithFields(logrus.Fields{
		"item_links":    len(links),
		"total_results": pag.TotalResults,
	}).Debug("Listing page parsed")
	return links, pag, nil
}

// drainPending processes queued items in order. It reports stop when the item cap is reached
func (h *Harvester) drainPending(ctx context.Context, opts Options, sum *Summary) (stop bool, err error) {
	for _, itemURL := range h.progress.PendingItems() {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		if _, failed := h.failed[itemURL]; failed || h.progress.IsItemDone(itemURL) {
			continue
		}
		if opts.MaxItems > 0 && h.attempted >= opts.MaxItems {
			sum.StopReason = fmt.Sprintf("max_items (%d) reached", opts.MaxItems)
			return true, nil
		}
		h.attempted++
		if err := h.processItem(ctx, itemURL, sum); err != nil {
			return true, err
		}
	}
	return false, nil
}

// processItem harvests one detail page. Only persistence failures and cancellation are returned;
// anything else is counted and leaves the item pending for the next resume
func (h *Harvester) processItem(ctx context.Context, itemURL string, sum *Summary) error {
	itemID := process.ItemID(itemURL, h.itemPattern)
	if itemID == "" {
		itemID = utils.URLHashPrefix(itemURL, 8)
	}
	itemLog := h.log.WithFields(logrus.Fields{"item_id": itemID, "url": itemURL})

	if h.fetchedItem {
		if err := sleepCtx(ctx, h.cfg.Harvest.ItemDelay); err != nil {
			return err
		}
	}
	h.fetchedItem = true

	item, err := h.harvestItem(ctx, itemURL, itemID, itemLog)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h.failed[itemURL] = struct{}{}
		sum.recordError(err)
		itemLog.WithField("error_type", utils.CategorizeError(err)).Warnf("Item failed, will retry on resume: %v", err)
		return nil
	}

	for _, att := range item.Attachments {
		if att.Downloaded {
			sum.AttachmentsOK++
		} else if att.Error != "" {
			sum.AttachmentsFailed++
		}
	}

	if err := h.items.Append(item); err != nil {
		itemLog.Errorf("Failed to append item record: %v", err)
		return err
	}
	if err := h.progress.MarkItemDone(itemURL); err != nil {
		return err
	}
	sum.ItemsProcessed++

	itemLog.WithFields(logrus.Fields{
		"title":       item.Title,
		"attachments": len(item.Attachments),
	}).Info("Item harvested")
	return nil
}

// harvestItem fetches and extracts one detail page, downloading its attachments unless disabled
func (h *Harvester) harvestItem(ctx context.Context, itemURL, itemID string, itemLog *logrus.Entry) (models.HarvestedItem, error) {
	if err := h.checkRobots(ctx, itemURL); err != nil {
		return models.HarvestedItem{}, err
	}
	res, err := h.fetcher.Fetch(ctx, itemURL)
	if err != nil {
		return models.HarvestedItem{}, err
	}
	doc, err := parseResult(res)
	if err != nil {
		return models.HarvestedItem{}, err
	}

	item := models.HarvestedItem{
		URL:        itemURL,
		ItemID:     itemID,
		ItemFields: h.extractor.Extract(doc),
		ScrapedAt:  time.Now().UTC(),
	}
	atts := process.DiscoverAttachments(doc)
	if len(atts) > 0 {
		if h.downloader != nil && !h.cfg.Harvest.SkipAttachments {
			atts = h.downloader.DownloadAll(ctx, itemID, atts)
		} else {
			itemLog.Debugf("Skipping download of %d attachments", len(atts))
		}
	}
	item.Attachments = atts

	// Keep the JSON shape stable: empty lists rather than null
	if item.Tags == nil {
		item.Tags = []string{}
	}
	if item.Attachments == nil {
		item.Attachments = []models.Attachment{}
	}
	return item, nil
}

func (h *Harvester) checkRobots(ctx context.Context, rawURL string) error {
	if h.robots == nil {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", utils.ErrParsing, err)
	}
	if !h.robots.Allowed(ctx, u) {
		return fmt.Errorf("%w: %s", utils.ErrRobotsDisallowed, rawURL)
	}
	return nil
}

// parseResult builds a document whose relative links resolve against the post-redirect URL
func parseResult(res *fetch.Result) (*parse.Document, error) {
	raw := res.FinalURL
	if raw == "" {
		raw = res.URL
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrParsing, err)
	}
	return parse.NewDocument(res.Body, base)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
