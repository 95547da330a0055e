package crawler

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/gdao-harvester/pkg/config"
	"github.com/Sriram-PR/gdao-harvester/pkg/fetch"
	"github.com/Sriram-PR/gdao-harvester/pkg/models"
	"github.com/Sriram-PR/gdao-harvester/pkg/parse"
	"github.com/Sriram-PR/gdao-harvester/pkg/process"
	"github.com/Sriram-PR/gdao-harvester/pkg/queue"
	"github.com/Sriram-PR/gdao-harvester/pkg/storage"
	"github.com/Sriram-PR/gdao-harvester/pkg/utils"
)

// PageFetcher is the part of fetch.Fetcher the crawler needs
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Result, error)
}

// RobotsChecker is the part of fetch.RobotsHandler the crawler needs
type RobotsChecker interface {
	Allowed(ctx context.Context, target *url.URL) bool
}

// Crawler performs a breadth-first traversal from a seed URL and records the link graph.
// It runs on a single goroutine: the Fetcher's per-host delay already serializes requests to the target site.
type Crawler struct {
	fetcher  PageFetcher
	robots   RobotsChecker     // Optional
	store    storage.PageStore // Optional ledger of node outcomes
	scope    parse.Scope
	seed     string
	maxDepth int
	maxPages int
	runID    string

	graph    *LinkGraph
	frontier *queue.Frontier
	log      *logrus.Entry
}

// Result is the outcome of a crawl. It is returned even when the crawl was cancelled
type Result struct {
	Graph    *LinkGraph
	Stats    Stats
	Metadata models.CrawlMetadata
}

// NewCrawler validates the seed and scope from cfg.Graph. robots and store may be nil
func NewCrawler(cfg *config.AppConfig, fetcher PageFetcher, robots RobotsChecker, store storage.PageStore, runID string, log *logrus.Entry) (*Crawler, error) {
	seed, _, err := parse.ParseAndNormalize(config.GetEffectiveStartURL(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid start URL: %w", utils.ErrConfigValidation, err)
	}
	disallowed, err := utils.CompileRegexPatterns(cfg.Graph.DisallowedPathPatterns)
	if err != nil {
		return nil, err
	}

	return &Crawler{
		fetcher:  fetcher,
		robots:   robots,
		store:    store,
		scope:    parse.NewScope(config.GetEffectiveAllowedHost(cfg), disallowed),
		seed:     seed,
		maxDepth: cfg.Graph.MaxDepth,
		maxPages: cfg.Graph.MaxPages,
		runID:    runID,
		graph:    NewLinkGraph(),
		frontier: queue.NewFrontier(log.WithField("component", "frontier")),
		log:      log,
	}, nil
}

// Run crawls until the frontier is exhausted, every remaining entry is deeper than max depth,
// the page cap is hit or ctx is done. Single page failures never abort the run.
// On cancellation the partial result is returned together with ctx.Err()
func (c *Crawler) Run(ctx context.Context) (*Result, error) {
	started := time.Now()
	runLog := c.log.WithFields(logrus.Fields{"start_url": c.seed, "max_depth": c.maxDepth, "allowed_host": c.scope.Host})
	runLog.Info("Crawl starting...")

	c.enqueue(c.seed, 0, "")

	fetched := 0
	for c.frontier.Len() > 0 {
		if ctx.Err() != nil {
			runLog.Warnf("Crawl cancelled: %v", ctx.Err())
			break
		}
		if c.frontier.PeekDepth() > c.maxDepth {
			runLog.Debug("All remaining frontier entries exceed max depth")
			break
		}
		if c.maxPages > 0 && fetched >= c.maxPages {
			runLog.Infof("Reached max_pages (%d), stopping", c.maxPages)
			break
		}

		item, _ := c.frontier.Pop()
		node, ok := c.graph.Node(item.URL)
		if !ok || node.State != models.NodeStateQueued || item.Depth > c.maxDepth {
			continue
		}

		c.visit(ctx, item)
		fetched++

		if fetched%50 == 0 {
			runLog.WithFields(logrus.Fields{
				"fetched":   fetched,
				"queue_len": c.frontier.Len(),
				"enqueued":  c.frontier.Pushed(),
				"nodes":     c.graph.NodeCount(),
				"edges":     c.graph.EdgeCount(),
			}).Info("Crawl Progress")
		}
	}

	stats := c.graph.ComputeStats()
	meta := models.CrawlMetadata{
		RunID:          c.runID,
		StartURL:       c.seed,
		AllowedHost:    c.scope.Host,
		MaxDepth:       c.maxDepth,
		CrawlStartTime: started,
		CrawlEndTime:   time.Now(),
		PagesVisited:   stats.Visited,
		PagesFailed:    stats.Failed,
		Edges:          stats.Edges,
		PagesByDepth:   stats.PagesByDepth,
		Cancelled:      ctx.Err() != nil,
	}

	runLog.Info("========================================================================")
	runLog.Info("CRAWL FINISHED")
	runLog.Infof("Duration:         %v", meta.CrawlEndTime.Sub(started).Round(time.Millisecond))
	runLog.Infof("Pages visited:    %d (failed: %d, left in queue: %d)", stats.Visited, stats.Failed, stats.Unvisited)
	runLog.Infof("Links recorded:   %d", stats.Edges)
	runLog.Infof("URLs enqueued:    %d", c.frontier.Pushed())
	for _, d := range stats.SortedDepths() {
		runLog.Infof("  Depth %d: %d pages", d, stats.PagesByDepth[d])
	}
	for _, top := range stats.TopLinked {
		runLog.Infof("  %d links -> %s", top.InDegree, top.URL)
	}
	runLog.Info("========================================================================")

	return &Result{Graph: c.graph, Stats: stats, Metadata: meta}, ctx.Err()
}

// enqueue adds a newly discovered URL to the graph and the frontier. The caller guarantees it is unseen
func (c *Crawler) enqueue(u string, depth int, parent string) {
	c.graph.AddNode(u, depth)
	c.frontier.Push(models.WorkItem{URL: u, Depth: depth, Parent: parent})
	if c.store != nil {
		if _, err := c.store.MarkPageVisited(u); err != nil {
			c.log.WithField("url", u).Warnf("Ledger write failed: %v", err)
		}
	}
}

// visit fetches one page, records its outcome and expands its in-scope links
func (c *Crawler) visit(ctx context.Context, item models.WorkItem) {
	taskLog := c.log.WithFields(logrus.Fields{"url": item.URL, "depth": item.Depth})
	c.graph.MarkState(item.URL, models.NodeStateFetching, 0, "")

	target, err := url.Parse(item.URL)
	if err != nil {
		c.fail(item, 0, fmt.Errorf("%w: %w", utils.ErrParsing, err), taskLog)
		return
	}
	if c.robots != nil && !c.robots.Allowed(ctx, target) {
		c.fail(item, 0, fmt.Errorf("%w: %s", utils.ErrRobotsDisallowed, item.URL), taskLog)
		return
	}

	taskLog.Info("Crawling page")
	res, err := c.fetcher.Fetch(ctx, item.URL)
	if err != nil {
		status := 0
		if res != nil {
			status = res.StatusCode
		}
		c.fail(item, status, err, taskLog)
		return
	}

	if !isHTML(res.ContentType) {
		taskLog.Debugf("Non-HTML content (%s), recording as leaf", res.ContentType)
		c.succeed(item, res.StatusCode)
		return
	}

	base := target
	if final, perr := url.Parse(res.FinalURL); perr == nil && res.FinalURL != "" {
		base = final
	}
	doc, err := parse.NewDocument(res.Body, base)
	if err != nil {
		// Fetched but unreadable: keep it as a visited leaf rather than a failure
		taskLog.Warnf("Could not parse page: %v", err)
		c.succeed(item, res.StatusCode)
		return
	}

	links := process.ExtractLinks(doc, c.scope, taskLog)
	queued, edges := 0, 0
	for _, link := range links {
		if link == item.URL {
			continue
		}
		if !c.graph.Has(link) {
			if item.Depth+1 > c.maxDepth {
				continue
			}
			c.enqueue(link, item.Depth+1, item.URL)
			queued++
		} else {
			// Shorter path to a known node; BFS order makes this a no-op but the graph keeps the minimum
			c.graph.AddNode(link, item.Depth+1)
		}
		if c.graph.AddEdge(item.URL, link) {
			edges++
		}
	}
	taskLog.WithFields(logrus.Fields{"links": len(links), "queued": queued, "edges": edges}).Debug("Links processed")
	c.succeed(item, res.StatusCode)
}

func (c *Crawler) succeed(item models.WorkItem, statusCode int) {
	c.graph.MarkState(item.URL, models.NodeStateVisited, statusCode, "")
	c.record(item, models.NodeStateVisited, statusCode, "")
}

// fail records a node that could not be fetched; it keeps no outgoing edges and is never re-enqueued
func (c *Crawler) fail(item models.WorkItem, statusCode int, err error, taskLog *logrus.Entry) {
	category := utils.CategorizeError(err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// Interrupted, not failed: leave it queued so the export shows it was never fetched
		c.graph.MarkState(item.URL, models.NodeStateQueued, 0, "")
		return
	}
	taskLog.WithField("error_type", category).Warnf("Page failed: %v", err)
	c.graph.MarkState(item.URL, models.NodeStateFailed, statusCode, category)
	c.record(item, models.NodeStateFailed, statusCode, category)
}

func (c *Crawler) record(item models.WorkItem, state models.NodeState, statusCode int, errorType string) {
	if c.store == nil {
		return
	}
	now := time.Now()
	entry := &models.PageDBEntry{
		Status:      models.StateToPageStatus(state),
		ErrorType:   errorType,
		StatusCode:  statusCode,
		LastAttempt: now,
		Depth:       item.Depth,
	}
	if state == models.NodeStateVisited {
		entry.ProcessedAt = now
	}
	if err := c.store.UpdatePageStatus(item.URL, entry); err != nil {
		c.log.WithField("url", item.URL).Warnf("Ledger write failed: %v", err)
	}
}

// isHTML treats a missing content type as HTML
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
