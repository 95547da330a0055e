package harvest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Sriram-PR/gdao-harvester/pkg/models"
	"github.com/Sriram-PR/gdao-harvester/pkg/utils"
)

// ItemLog appends one JSON object per line to the harvest's item file. Existing lines are never rewritten,
// so records from earlier runs survive a resume
type ItemLog struct {
	path string
	f    *os.File
	mu   sync.Mutex
}

// OpenItemLog opens (or creates) path for appending
func OpenItemLog(path string) (*ItemLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: create dir for %s: %w", utils.ErrPersistence, path, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", utils.ErrPersistence, path, err)
	}
	return &ItemLog{path: path, f: f}, nil
}

// Path returns the log file location
func (l *ItemLog) Path() string {
	return l.path
}

// Append writes item as a single line and syncs it to disk before returning
func (l *ItemLog) Append(item models.HarvestedItem) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(item); err != nil { // Encode terminates the line
		return fmt.Errorf("%w: encode item %s: %w", utils.ErrPersistence, item.URL, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return fmt.Errorf("%w: item log %s is closed", utils.ErrPersistence, l.path)
	}
	if _, err := l.f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("%w: write %s: %w", utils.ErrPersistence, l.path, err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %w", utils.ErrPersistence, l.path, err)
	}
	return nil
}

// Close closes the underlying file. Further appends fail
func (l *ItemLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
