package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/gdao-harvester/pkg/log"
	"github.com/Sriram-PR/gdao-harvester/pkg/models"
	"github.com/Sriram-PR/gdao-harvester/pkg/utils"
)

const (
	pageKeyPrefix       = "page:"     // Prefix for crawl node keys
	attachmentKeyPrefix = "att:"      // Prefix for attachment URL keys
	ledgerDBDir         = "ledger_db" // Subdirectory name within stateDir for Badger DB files
)

var _ LedgerStore = (*BadgerStore)(nil)

// BadgerStore implements LedgerStore on BadgerDB
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	ctx      context.Context // Parent context
	keyCount atomic.Int64    // Cached key count for O(1) GetVisitedCount
}

// NewBadgerStore opens the ledger for name (a host or job name) under stateDir.
// Without resume the previous ledger directory is removed first
func NewBadgerStore(ctx context.Context, stateDir, name string, resume bool, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{
		log: logger,
		ctx: ctx,
	}

	dbPath := filepath.Join(stateDir, utils.SanitizeFilename(name)+"_"+ledgerDBDir)

	if !resume {
		logger.Warnf("Resume flag is false. REMOVING existing ledger directory: %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			logger.Errorf("Failed to remove existing ledger directory %s: %v", dbPath, err)
		}
	}

	logger.Infof("Initializing ledger database at: %s (Resume: %v)", dbPath, resume)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create ledger directory %s: %w", utils.ErrDatabase, dbPath, err)
	}

	opts := badger.DefaultOptions(dbPath).
		WithLogger(log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))).
		WithNumVersionsToKeep(1)

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	if resume {
		count, err := store.countKeys()
		if err != nil {
			logger.Warnf("Failed to count existing keys on resume: %v", err)
		} else {
			store.keyCount.Store(int64(count))
			logger.Infof("Loaded existing ledger key count on resume: %d", count)
		}
	}

	return store, nil
}

// countKeys performs a one-time full key scan (used only during initialization on resume).
func (s *BadgerStore) countKeys() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent downloads touching the same key can return badger.ErrConflict; these resolve quickly.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// get loads key. found is false when the key is absent; raw is nil for an empty value
func (s *BadgerStore) get(key []byte) (raw []byte, found bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return errGet
		}
		found = true
		raw, errGet = item.ValueCopy(nil)
		return errGet
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: failed getting key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	return raw, found, nil
}

// putJSON stores v under key, counting newly created keys
func (s *BadgerStore) putJSON(key []byte, v any) error {
	if s.db == nil {
		return fmt.Errorf("%w: ledger not initialized", utils.ErrDatabase)
	}
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal entry for key '%s': %w", utils.ErrParsing, string(key), err)
	}

	isNew := false
	err = s.dbUpdate(func(txn *badger.Txn) error {
		if _, errGet := txn.Get(key); errors.Is(errGet, badger.ErrKeyNotFound) {
			isNew = true
		}
		return txn.SetEntry(badger.NewEntry(key, value))
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error: %v", err)
		return fmt.Errorf("%w: failed setting key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}
	return nil
}

// MarkPageVisited implements PageStore
func (s *BadgerStore) MarkPageVisited(normalizedPageURL string) (bool, error) {
	if s.db == nil {
		return false, fmt.Errorf("%w: ledger not initialized", utils.ErrDatabase)
	}
	added := false
	key := []byte(pageKeyPrefix + normalizedPageURL)

	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			if errSet := txn.SetEntry(badger.NewEntry(key, []byte{})); errSet != nil {
				return errSet
			}
			added = true
			return nil
		}
		return errGet
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in MarkPageVisited: %v", err)
		return false, fmt.Errorf("%w: marking page key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if added {
		s.keyCount.Add(1)
	}
	return added, nil
}

// UpdatePageStatus implements PageStore
func (s *BadgerStore) UpdatePageStatus(normalizedPageURL string, entry *models.PageDBEntry) error {
	if err := s.putJSON([]byte(pageKeyPrefix+normalizedPageURL), entry); err != nil {
		return err
	}
	s.log.Debugf("Updated page status for '%s' to '%s'", normalizedPageURL, entry.Status)
	return nil
}

// CheckAttachmentStatus implements AttachmentStore. Empty or undecodable values read as not found
func (s *BadgerStore) CheckAttachmentStatus(attachmentURL string) (models.AttachmentStatus, *models.AttachmentDBEntry, error) {
	key := []byte(attachmentKeyPrefix + attachmentURL)
	raw, found, err := s.get(key)
	if err != nil {
		s.log.Errorf("DB View error in CheckAttachmentStatus: %v", err)
		return models.AttachmentStatusDBError, nil, err
	}
	if !found || len(raw) == 0 {
		return models.AttachmentStatusNotFound, nil, nil
	}

	var entry models.AttachmentDBEntry
	if errJSON := json.Unmarshal(raw, &entry); errJSON != nil {
		s.log.Warnf("Failed to unmarshal AttachmentDBEntry for key '%s': %v. Treating as 'not_found'.", string(key), errJSON)
		return models.AttachmentStatusNotFound, nil, nil
	}
	return entry.Status, &entry, nil
}

// UpdateAttachmentStatus implements AttachmentStore
func (s *BadgerStore) UpdateAttachmentStatus(attachmentURL string, entry *models.AttachmentDBEntry) error {
	return s.putJSON([]byte(attachmentKeyPrefix+attachmentURL), entry)
}

// GetVisitedCount implements StoreAdmin
func (s *BadgerStore) GetVisitedCount() (int, error) {
	return int(s.keyCount.Load()), nil
}

// RunGC runs BadgerDB's value log garbage collection periodically until ctx is done
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Debug("BadgerDB GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				continue
			}
			var err error
			for err == nil {
				// Rewrite while at least half a value log file is reclaimable
				err = s.db.RunValueLogGC(0.5)
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}

		case <-ctx.Done():
			s.log.Debugf("Stopping BadgerDB garbage collection goroutine: %v", ctx.Err())
			return
		}
	}
}

// WriteVisitedLog implements StoreAdmin: one URL per line, pages first then attachments (key order)
func (s *BadgerStore) WriteVisitedLog(filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("%w: create visited log '%s': %w", utils.ErrFilesystem, filePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	var firstErr error
	writtenCount := 0

	iterErr := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for _, prefix := range [][]byte{[]byte(pageKeyPrefix), []byte(attachmentKeyPrefix)} {
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				if err := s.ctx.Err(); err != nil {
					return err
				}
				key := bytes.TrimPrefix(it.Item().KeyCopy(nil), prefix)
				if _, writeErr := writer.Write(append(key, '\n')); writeErr != nil && firstErr == nil {
					firstErr = writeErr
				}
				writtenCount++
			}
		}
		return nil
	})
	if iterErr != nil && firstErr == nil {
		firstErr = iterErr
	}
	if flushErr := writer.Flush(); flushErr != nil && firstErr == nil {
		firstErr = flushErr
	}
	if syncErr := file.Sync(); syncErr != nil && firstErr == nil {
		firstErr = syncErr
	}

	if firstErr != nil {
		s.log.Warnf("Finished writing visited log with errors. Wrote ~%d URLs to %s", writtenCount, filePath)
		if errors.Is(firstErr, context.Canceled) || errors.Is(firstErr, context.DeadlineExceeded) {
			return firstErr
		}
		return fmt.Errorf("%w: writing visited log '%s': %w", utils.ErrFilesystem, filePath, firstErr)
	}
	s.log.Infof("Finished writing %d URLs to visited log: %s", writtenCount, filePath)
	return nil
}

// Close implements StoreAdmin
func (s *BadgerStore) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	if err := s.db.Close(); err != nil {
		s.log.Errorf("Error closing ledger DB: %v", err)
		return err
	}
	s.log.Debug("Ledger DB closed.")
	return nil
}
