package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/gdao-harvester/pkg/models"
	"github.com/Sriram-PR/gdao-harvester/pkg/utils"
)

// ProgressStore is the authoritative harvest checkpoint: the last fully scanned listing page, the set of
// item URLs whose records reached the item log and the items still queued from scanned pages.
// Every mark rewrites the whole record atomically (temp file, fsync, rename), so a crash leaves either the
// previous or the new snapshot on disk, never a torn one.
type ProgressStore struct {
	path   string
	record models.ProgressRecord
	done   map[string]struct{} // Mirrors record.ScrapedItems for O(1) lookups
	mu     sync.Mutex
	log    *logrus.Entry
}

// NewProgressStore creates a store backed by path. Call Load before use
func NewProgressStore(path string, log *logrus.Entry) *ProgressStore {
	return &ProgressStore{
		path: path,
		done: make(map[string]struct{}),
		log:  log,
	}
}

// Path returns the checkpoint file location
func (s *ProgressStore) Path() string {
	return s.path
}

// Load reads the checkpoint. A missing file yields an empty record (resume page 1);
// an unreadable or corrupt file is an ErrPersistence
func (s *ProgressStore) Load() (models.ProgressRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.log.WithField("path", s.path).Info("No progress file found, starting fresh")
			s.setRecord(models.ProgressRecord{})
			return s.snapshotLocked(), nil
		}
		return models.ProgressRecord{}, fmt.Errorf("%w: reading %s: %w", utils.ErrPersistence, s.path, err)
	}

	var rec models.ProgressRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.ProgressRecord{}, fmt.Errorf("%w: parsing %s: %w", utils.ErrPersistence, s.path, err)
	}
	s.setRecord(rec)

	s.log.WithFields(logrus.Fields{
		"last_completed_page": rec.LastCompletedPage,
		"items_done":          len(s.done),
	}).Info("Loaded harvest progress")
	return s.snapshotLocked(), nil
}

// MarkPageCollected records listing page n as scanned and queues the item URLs found on it in the same write,
// so items of a completed page are never lost when a run stops before reaching them.
// URLs already done or already pending are not queued twice
func (s *ProgressStore) MarkPageCollected(n int, itemURLs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snapshotLocked()
	if n > next.LastCompletedPage {
		next.LastCompletedPage = n
	}
	next.TotalItemsFound += len(itemURLs)
	for _, u := range itemURLs {
		if _, done := s.done[u]; done || slices.Contains(next.PendingItems, u) {
			continue
		}
		next.PendingItems = append(next.PendingItems, u)
	}
	return s.commit(next)
}

// MarkItemDone records url as persisted in the item log and drops it from the pending queue.
// Marking an item twice is a no-op
func (s *ProgressStore) MarkItemDone(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.done[url]; ok {
		return nil
	}
	next := s.snapshotLocked()
	next.ScrapedItems = append(next.ScrapedItems, url)
	next.ItemsScraped = len(next.ScrapedItems)
	next.PendingItems = slices.DeleteFunc(next.PendingItems, func(p string) bool { return p == url })
	if err := s.commit(next); err != nil {
		return err
	}
	s.done[url] = struct{}{}
	return nil
}

// PendingItems returns the queued item URLs in the order their pages listed them
func (s *ProgressStore) PendingItems() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.record.PendingItems)
}

// IsItemDone reports whether url was marked done
func (s *ProgressStore) IsItemDone(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.done[url]
	return ok
}

// ResumePage returns the first listing page still to scan
func (s *ProgressStore) ResumePage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.LastCompletedPage + 1
}

// Reset clears the checkpoint and persists the empty record
func (s *ProgressStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.commit(models.ProgressRecord{}); err != nil {
		return err
	}
	s.done = make(map[string]struct{})
	s.log.WithField("path", s.path).Info("Harvest progress reset")
	return nil
}

// Snapshot returns a copy of the current record
func (s *ProgressStore) Snapshot() models.ProgressRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *ProgressStore) setRecord(rec models.ProgressRecord) {
	s.done = make(map[string]struct{}, len(rec.ScrapedItems))
	deduped := rec.ScrapedItems[:0:0]
	for _, u := range rec.ScrapedItems {
		if _, ok := s.done[u]; ok {
			continue
		}
		s.done[u] = struct{}{}
		deduped = append(deduped, u)
	}
	rec.ScrapedItems = deduped
	rec.ItemsScraped = len(deduped)

	pending := rec.PendingItems[:0:0]
	for _, u := range rec.PendingItems {
		if _, ok := s.done[u]; ok || slices.Contains(pending, u) {
			continue
		}
		pending = append(pending, u)
	}
	rec.PendingItems = pending
	s.record = rec
}

func (s *ProgressStore) snapshotLocked() models.ProgressRecord {
	rec := s.record
	rec.ScrapedItems = slices.Clone(s.record.ScrapedItems)
	rec.PendingItems = slices.Clone(s.record.PendingItems)
	return rec
}

// commit persists rec and adopts it as the in-memory state only once it is durable
func (s *ProgressStore) commit(rec models.ProgressRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	if rec.ScrapedItems == nil {
		rec.ScrapedItems = []string{}
	}
	if err := writeFileAtomic(s.path, rec); err != nil {
		s.log.WithField("path", s.path).Errorf("Failed to persist progress: %v", err)
		return err
	}
	s.record = rec
	return nil
}

// writeFileAtomic marshals v and replaces path with it via a synced temp file and rename
func writeFileAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %w", utils.ErrPersistence, path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: create dir %s: %w", utils.ErrPersistence, dir, err)
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", utils.ErrPersistence, tmpPath, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: write %s: %w", utils.ErrPersistence, tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: sync %s: %w", utils.ErrPersistence, tmpPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: close %s: %w", utils.ErrPersistence, tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: rename %s: %w", utils.ErrPersistence, tmpPath, err)
	}

	// Make the rename itself durable; not all platforms support syncing a directory
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}
