package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// AppName names the XDG subdirectories used for the default config and state locations.
const AppName = "gdao-harvester"

// Defaults for the Grateful Dead Archive Online deployment.
const (
	DefaultBaseURL   = "https://www.gdao.org"
	DefaultUserAgent = "Mozilla/5.0 (compatible; GDAO-Scraper/1.0; Cultural Preservation)"
)

// GraphConfig configures the link-graph crawl
type GraphConfig struct {
	StartURL               string   `yaml:"start_url,omitempty"`    // Defaults to base_url
	AllowedHost            string   `yaml:"allowed_host,omitempty"` // Defaults to the start URL's host
	MaxDepth               int      `yaml:"max_depth"`
	MaxPages               int      `yaml:"max_pages,omitempty"` // 0 = unlimited
	DisallowedPathPatterns []string `yaml:"disallowed_path_patterns,omitempty"`
	EnableSQLite           *bool    `yaml:"enable_sqlite,omitempty"`
	LinksFilename          string   `yaml:"links_filename,omitempty"`
	NodesFilename          string   `yaml:"nodes_filename,omitempty"`
	DOTFilename            string   `yaml:"dot_filename,omitempty"`
	SQLiteFilename         string   `yaml:"sqlite_filename,omitempty"`
	MetadataFilename       string   `yaml:"metadata_filename,omitempty"`
	ReportFilename         string   `yaml:"report_filename,omitempty"`
}

// HarvestConfig configures the paginated item harvest
type HarvestConfig struct {
	ListingPath            string        `yaml:"listing_path"`      // fmt template with one %d for the page number
	ItemPathPattern        string        `yaml:"item_path_pattern"` // Regex with one capture group for the item id
	ResultsPerPage         int           `yaml:"results_per_page"`
	MaxPages               int           `yaml:"max_pages,omitempty"` // 0 = unlimited
	MaxItems               int           `yaml:"max_items,omitempty"` // 0 = unlimited
	ItemDelay              time.Duration `yaml:"item_delay"`
	TitleSuffix            string        `yaml:"title_suffix,omitempty"`
	SkipAttachments        bool          `yaml:"skip_attachments,omitempty"`
	MaxConcurrentDownloads int           `yaml:"max_concurrent_downloads"`
	MaxDownloadsPerHost    int           `yaml:"max_downloads_per_host"`
	MaxAttachmentBytes     int64         `yaml:"max_attachment_bytes,omitempty"` // 0 = unlimited
	ItemsFilename          string        `yaml:"items_filename"`
	ProgressFilename       string        `yaml:"progress_filename"`
	AttachmentsDir         string        `yaml:"attachments_dir"`
	ReportFilename         string        `yaml:"report_filename,omitempty"`
	TreeFilename           string        `yaml:"tree_filename,omitempty"`
}

// AppConfig holds the global application configuration
type AppConfig struct {
	BaseURL            string           `yaml:"base_url"`
	UserAgent          string           `yaml:"user_agent"`
	RequestDelay       time.Duration    `yaml:"request_delay"` // Applied before every request to a host
	MaxRetries         int              `yaml:"max_retries"`
	InitialRetryDelay  time.Duration    `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay      time.Duration    `yaml:"max_retry_delay,omitempty"`
	MaxBodyBytes       int64            `yaml:"max_body_bytes,omitempty"`
	RespectRobots      bool             `yaml:"respect_robots,omitempty"`
	OutputDir          string           `yaml:"output_dir"`
	StateDir           string           `yaml:"state_dir,omitempty"`
	DBGCInterval       time.Duration    `yaml:"db_gc_interval,omitempty"`
	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
	Graph              GraphConfig      `yaml:"graph"`
	Harvest            HarvestConfig    `yaml:"harvest"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"`
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"`
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"` // nil = default, true = force, false = disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`
}

// Default returns the configuration used when no file is supplied.
// Loading a file starts from these values, so omitted keys keep their defaults.
func Default() *AppConfig {
	return &AppConfig{
		BaseURL:           DefaultBaseURL,
		UserAgent:         DefaultUserAgent,
		RequestDelay:      1 * time.Second,
		MaxRetries:        3,
		InitialRetryDelay: 1 * time.Second,
		MaxRetryDelay:     30 * time.Second,
		MaxBodyBytes:      20 << 20,
		OutputDir:         "gdao_archive_data",
		DBGCInterval:      10 * time.Minute,
		HTTPClientSettings: HTTPClientConfig{
			Timeout: 30 * time.Second,
		},
		Graph: GraphConfig{
			MaxDepth: 10,
		},
		Harvest: HarvestConfig{
			ListingPath:            "/solr-search?q=&page=%d",
			ItemPathPattern:        `^/items/show/(\d+)$`,
			ResultsPerPage:         25,
			ItemDelay:              1 * time.Second,
			TitleSuffix:            " · Grateful Dead Archive Online",
			MaxConcurrentDownloads: 4,
			MaxDownloadsPerHost:    2,
			ItemsFilename:          "gdao_archive_items.jsonl",
			ProgressFilename:       "progress.json",
			AttachmentsDir:         "attachments",
		},
	}
}

// Load reads a YAML config file on top of Default().
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ResolveConfigPath returns the explicit path if given, otherwise the first existing candidate
// (./harvester.yaml, then $XDG_CONFIG_HOME/gdao-harvester/config.yaml). Empty means "use defaults".
func ResolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, candidate := range []string{"harvester.yaml", filepath.Join(xdg.ConfigHome, AppName, "config.yaml")} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// DefaultStateDir is where the ledger lives when state_dir is not configured.
func DefaultStateDir() string {
	return filepath.Join(xdg.DataHome, AppName, "state")
}

// GetEffectiveStartURL returns the graph seed: graph.start_url, falling back to base_url
func GetEffectiveStartURL(cfg *AppConfig) string {
	if cfg.Graph.StartURL != "" {
		return cfg.Graph.StartURL
	}
	return cfg.BaseURL
}

// GetEffectiveAllowedHost returns graph.allowed_host, falling back to the seed's host
func GetEffectiveAllowedHost(cfg *AppConfig) string {
	if cfg.Graph.AllowedHost != "" {
		return strings.ToLower(cfg.Graph.AllowedHost)
	}
	u, err := url.Parse(GetEffectiveStartURL(cfg))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// GetEffectiveEnableSQLite reports whether the SQLite graph export is on (default true)
func GetEffectiveEnableSQLite(g GraphConfig) bool {
	if g.EnableSQLite != nil {
		return *g.EnableSQLite
	}
	return true
}

// GetEffectiveGraphFilenames returns links, nodes, dot, sqlite, metadata and report filenames with defaults applied
func GetEffectiveGraphFilenames(g GraphConfig) (links, nodes, dot, sqlite, metadata, report string) {
	return orDefault(g.LinksFilename, "gdao_links.csv"),
		orDefault(g.NodesFilename, "gdao_nodes.csv"),
		orDefault(g.DOTFilename, "gdao_graph.dot"),
		orDefault(g.SQLiteFilename, "gdao_graph.db"),
		orDefault(g.MetadataFilename, "crawl_metadata.yaml"),
		orDefault(g.ReportFilename, "graph_report.md")
}

// ListingURL builds the absolute URL of a listing page
func (c *AppConfig) ListingURL(page int) string {
	return strings.TrimRight(c.BaseURL, "/") + fmt.Sprintf(c.Harvest.ListingPath, page)
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
