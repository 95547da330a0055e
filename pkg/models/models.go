package models

import "time"

// WorkItem is a frontier entry: a canonical URL, the depth it was discovered at and the page that linked to it
type WorkItem struct {
	URL    string
	Depth  int
	Parent string // Empty for seeds
}

// PageNode is a vertex of the link graph, identified by its canonical URL
type PageNode struct {
	URL        string
	Depth      int // Minimum depth over all discovery paths; never increased
	State      NodeState
	StatusCode int    // Last HTTP status seen (0 if none)
	ErrorType  string // utils.CategorizeError label for failed nodes
}

// Visited reports whether the node was dequeued and fetched (successfully or not)
func (n PageNode) Visited() bool {
	return n.State == NodeStateVisited || n.State == NodeStateFailed
}

// LinkEdge records that Source contains a hyperlink to Target
type LinkEdge struct {
	Source string
	Target string
}

// PageDBEntry stores the outcome of a graph-crawl fetch in the ledger
type PageDBEntry struct {
	Status      PageStatus `json:"status"`
	ErrorType   string     `json:"error_type,omitempty"`
	StatusCode  int        `json:"status_code,omitempty"`
	ProcessedAt time.Time  `json:"processed_at,omitempty"`
	LastAttempt time.Time  `json:"last_attempt"`
	Depth       int        `json:"depth"`
}

// AttachmentDBEntry stores the outcome of an attachment download in the ledger
type AttachmentDBEntry struct {
	Status      AttachmentStatus `json:"status"`
	LocalPath   string           `json:"local_path,omitempty"` // Relative to the harvest output dir
	Bytes       int64            `json:"bytes,omitempty"`
	ErrorType   string           `json:"error_type,omitempty"`
	LastAttempt time.Time        `json:"last_attempt"`
}

// MediaClass classifies an attachment by extension
type MediaClass string

const (
	MediaImage    MediaClass = "image"
	MediaDocument MediaClass = "document"
)

// Attachment is a binary file linked from an item's detail page
type Attachment struct {
	URL        string     `json:"url"`
	Filename   string     `json:"filename"`
	Extension  string     `json:"extension"`
	Type       MediaClass `json:"type"`
	LocalPath  string     `json:"local_path,omitempty"`
	Downloaded bool       `json:"downloaded"`
	Size       int64      `json:"size,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// ItemFields is the partial record produced by one extraction strategy
type ItemFields struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Creator     string   `json:"creator"`
	Date        string   `json:"date"` // Best effort, not guaranteed parseable
	Type        string   `json:"type"`
	Tags        []string `json:"tags"`
}

// Merge fills every empty field of f from other and appends other's tags that f does not already hold.
func (f *ItemFields) Merge(other ItemFields) {
	if f.Title == "" {
		f.Title = other.Title
	}
	if f.Description == "" {
		f.Description = other.Description
	}
	if f.Creator == "" {
		f.Creator = other.Creator
	}
	if f.Date == "" {
		f.Date = other.Date
	}
	if f.Type == "" {
		f.Type = other.Type
	}
	for _, tag := range other.Tags {
		f.AddTag(tag)
	}
}

// AddTag appends tag unless it is empty or already present
func (f *ItemFields) AddTag(tag string) {
	if tag == "" {
		return
	}
	for _, existing := range f.Tags {
		if existing == tag {
			return
		}
	}
	f.Tags = append(f.Tags, tag)
}

// HarvestedItem is one line of the item log
type HarvestedItem struct {
	URL    string `json:"url"`
	ItemID string `json:"item_id"`
	ItemFields
	Attachments []Attachment `json:"attachments"`
	ScrapedAt   time.Time    `json:"scraped_at"`
}

// ProgressRecord is the persisted checkpoint of a harvest
type ProgressRecord struct {
	LastCompletedPage int       `json:"last_completed_page"`
	ScrapedItems      []string  `json:"scraped_items"`
	PendingItems      []string  `json:"pending_items,omitempty"` // Collected from completed pages but not yet in the item log
	TotalItemsFound   int       `json:"total_items_found"`
	ItemsScraped      int       `json:"items_scraped"`
	UpdatedAt         time.Time `json:"updated_at,omitempty"`
}

// CrawlMetadata summarizes one link-graph crawl; written as YAML next to the graph exports.
type CrawlMetadata struct {
	RunID          string      `yaml:"run_id"`
	StartURL       string      `yaml:"start_url"`
	AllowedHost    string      `yaml:"allowed_host"`
	MaxDepth       int         `yaml:"max_depth"`
	CrawlStartTime time.Time   `yaml:"crawl_start_time"`
	CrawlEndTime   time.Time   `yaml:"crawl_end_time"`
	PagesVisited   int         `yaml:"pages_visited"`
	PagesFailed    int         `yaml:"pages_failed"`
	Edges          int         `yaml:"edges"`
	PagesByDepth   map[int]int `yaml:"pages_by_depth"`
	Cancelled      bool        `yaml:"cancelled,omitempty"`
}
