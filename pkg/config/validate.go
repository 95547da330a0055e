package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/Sriram-PR/gdao-harvester/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// BaseURL
	base, parseErr := url.Parse(c.BaseURL)
	if c.BaseURL == "" || parseErr != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return warnings, fmt.Errorf("%w: base_url '%s' must be an absolute http(s) URL", utils.ErrConfigValidation, c.BaseURL)
	}

	if c.UserAgent == "" {
		warnings = append(warnings, "user_agent is empty, using the default harvester agent")
		c.UserAgent = DefaultUserAgent
	}

	// RequestDelay
	if c.RequestDelay < 0 {
		warnings = append(warnings, "request_delay cannot be negative, setting to 0 (no delay)")
		c.RequestDelay = 0
	}
	if c.RequestDelay == 0 {
		warnings = append(warnings, "request_delay is 0, requests will not be spaced out")
	}

	// MaxRetries
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 1 * time.Second
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 30 * time.Second
		}
	}
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	if c.MaxBodyBytes < 0 {
		warnings = append(warnings, "max_body_bytes cannot be negative, setting to 0 (unlimited)")
		c.MaxBodyBytes = 0
	}

	// OutputDir / StateDir
	if c.OutputDir == "" {
		warnings = append(warnings, "output_dir is empty, defaulting to './gdao_archive_data'")
		c.OutputDir = "./gdao_archive_data"
	}
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir()
	}
	if c.DBGCInterval <= 0 {
		c.DBGCInterval = 10 * time.Minute
	}

	c.validateHTTPClientSettings()

	graphWarnings, err := c.Graph.Validate()
	warnings = append(warnings, graphWarnings...)
	if err != nil {
		return warnings, err
	}
	harvestWarnings, err := c.Harvest.Validate()
	warnings = append(warnings, harvestWarnings...)
	if err != nil {
		return warnings, err
	}

	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 30 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 4
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}

// Validate checks GraphConfig fields and applies defaults.
func (g *GraphConfig) Validate() (warnings []string, err error) {
	if g.StartURL != "" {
		u, parseErr := url.Parse(g.StartURL)
		if parseErr != nil || u.Host == "" {
			return nil, fmt.Errorf("%w: graph.start_url '%s' must be an absolute URL", utils.ErrConfigValidation, g.StartURL)
		}
	}
	if g.MaxDepth < 0 {
		warnings = append(warnings, "graph.max_depth cannot be negative, defaulting to 10")
		g.MaxDepth = 10
	}
	if g.MaxPages < 0 {
		warnings = append(warnings, "graph.max_pages cannot be negative, setting to 0 (unlimited)")
		g.MaxPages = 0
	}
	if _, err := utils.CompileRegexPatterns(g.DisallowedPathPatterns); err != nil {
		return warnings, err
	}
	return warnings, nil
}

// Validate checks HarvestConfig fields and applies defaults.
func (h *HarvestConfig) Validate() (warnings []string, err error) {
	if strings.Count(h.ListingPath, "%d") != 1 {
		return nil, fmt.Errorf("%w: harvest.listing_path '%s' needs exactly one %%d placeholder", utils.ErrConfigValidation, h.ListingPath)
	}
	re, reErr := regexp.Compile(h.ItemPathPattern)
	if h.ItemPathPattern == "" || reErr != nil {
		return nil, fmt.Errorf("%w: harvest.item_path_pattern '%s' is not a valid regex", utils.ErrConfigValidation, h.ItemPathPattern)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("%w: harvest.item_path_pattern needs a capture group for the item id", utils.ErrConfigValidation)
	}

	if h.ResultsPerPage <= 0 {
		warnings = append(warnings, "harvest.results_per_page should be > 0, defaulting to 25")
		h.ResultsPerPage = 25
	}
	if h.MaxPages < 0 {
		warnings = append(warnings, "harvest.max_pages cannot be negative, setting to 0 (unlimited)")
		h.MaxPages = 0
	}
	if h.MaxItems < 0 {
		warnings = append(warnings, "harvest.max_items cannot be negative, setting to 0 (unlimited)")
		h.MaxItems = 0
	}
	if h.ItemDelay < 0 {
		warnings = append(warnings, "harvest.item_delay cannot be negative, setting to 0")
		h.ItemDelay = 0
	}
	if h.MaxConcurrentDownloads <= 0 {
		warnings = append(warnings, "harvest.max_concurrent_downloads should be > 0, defaulting to 4")
		h.MaxConcurrentDownloads = 4
	}
	if h.MaxDownloadsPerHost <= 0 {
		warnings = append(warnings, "harvest.max_downloads_per_host should be > 0, defaulting to 2")
		h.MaxDownloadsPerHost = 2
	}
	if h.MaxAttachmentBytes < 0 {
		warnings = append(warnings, "harvest.max_attachment_bytes cannot be negative, setting to 0 (unlimited)")
		h.MaxAttachmentBytes = 0
	}
	if h.ItemsFilename == "" {
		h.ItemsFilename = "gdao_archive_items.jsonl"
	}
	if h.ProgressFilename == "" {
		h.ProgressFilename = "progress.json"
	}
	if h.AttachmentsDir == "" {
		h.AttachmentsDir = "attachments"
	}
	if h.ReportFilename == "" {
		h.ReportFilename = "harvest_report.md"
	}
	if h.TreeFilename == "" {
		h.TreeFilename = "attachments_structure.txt"
	}
	return warnings, nil
}
