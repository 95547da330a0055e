package storage

import (
	"context"
	"time"

	"github.com/Sriram-PR/gdao-harvester/pkg/models"
)

// PageStore records the outcome of every graph-crawl node
type PageStore interface {
	// MarkPageVisited marks a page URL as seen (pending state)
	// Returns true if the URL was newly added, false if it already existed
	MarkPageVisited(normalizedPageURL string) (bool, error)

	// UpdatePageStatus updates the status and details for a page URL
	UpdatePageStatus(normalizedPageURL string, entry *models.PageDBEntry) error
}

// AttachmentStore remembers finished attachment downloads so a re-processed item can skip them
type AttachmentStore interface {
	// CheckAttachmentStatus retrieves the status and details of an attachment URL
	CheckAttachmentStatus(attachmentURL string) (status models.AttachmentStatus, entry *models.AttachmentDBEntry, err error)

	// UpdateAttachmentStatus updates the status and details for an attachment URL
	UpdateAttachmentStatus(attachmentURL string, entry *models.AttachmentDBEntry) error
}

// StoreAdmin handles lifecycle and administrative operations
type StoreAdmin interface {
	// GetVisitedCount returns the number of keys written during this process lifetime plus those found on open
	GetVisitedCount() (int, error)

	// WriteVisitedLog writes all page and attachment keys (URLs) to the specified file path
	WriteVisitedLog(filePath string) error

	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database connection
	Close() error
}

// LedgerStore combines all store interfaces for components that need full access
type LedgerStore interface {
	PageStore
	AttachmentStore
	StoreAdmin
}
