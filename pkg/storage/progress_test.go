package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/gdao-harvester/pkg/models"
	"github.com/Sriram-PR/gdao-harvester/pkg/utils"
)

func newProgress(t *testing.T) (*ProgressStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "progress.json")
	store := NewProgressStore(path, testLogger())
	_, err := store.Load()
	require.NoError(t, err)
	return store, path
}

func TestProgressStore_MissingFileIsEmpty(t *testing.T) {
	store, path := newProgress(t)

	assert.Equal(t, 1, store.ResumePage())
	assert.False(t, store.IsItemDone("https://www.gdao.org/items/show/1"))
	assert.Empty(t, store.Snapshot().ScrapedItems)

	_, err := os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist), "Load must not create the file")
}

func TestProgressStore_MarksPersistImmediately(t *testing.T) {
	store, path := newProgress(t)

	require.NoError(t, store.MarkPageCollected(1, nil))
	require.NoError(t, store.MarkItemDone("https://www.gdao.org/items/show/1"))
	require.NoError(t, store.MarkItemDone("https://www.gdao.org/items/show/2"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var onDisk models.ProgressRecord
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, 1, onDisk.LastCompletedPage)
	assert.Equal(t, []string{
		"https://www.gdao.org/items/show/1",
		"https://www.gdao.org/items/show/2",
	}, onDisk.ScrapedItems)
	assert.Equal(t, 2, onDisk.ItemsScraped)
	assert.False(t, onDisk.UpdatedAt.IsZero())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, errors.Is(err, os.ErrNotExist), "temp file must be renamed away")
}

func TestProgressStore_CrashSafeReload(t *testing.T) {
	store, path := newProgress(t)
	require.NoError(t, store.MarkItemDone("https://www.gdao.org/items/show/7"))

	// A fresh process sees the item as done without any further writes
	reloaded := NewProgressStore(path, testLogger())
	_, err := reloaded.Load()
	require.NoError(t, err)
	assert.True(t, reloaded.IsItemDone("https://www.gdao.org/items/show/7"))
}

func TestProgressStore_LeftoverTempFileIgnored(t *testing.T) {
	store, path := newProgress(t)
	require.NoError(t, store.MarkPageCollected(3, nil))

	// Simulate a crash between writing the temp file and renaming it
	require.NoError(t, os.WriteFile(path+".tmp", []byte(`{"last_completed_page": 9`), 0644))

	reloaded := NewProgressStore(path, testLogger())
	_, err := reloaded.Load()
	require.NoError(t, err)
	assert.Equal(t, 4, reloaded.ResumePage())

	// The next mark overwrites the stale temp file
	require.NoError(t, reloaded.MarkPageCollected(4, nil))
	assert.Equal(t, 5, reloaded.ResumePage())
}

func TestProgressStore_PageCursorIsMonotonic(t *testing.T) {
	store, _ := newProgress(t)

	require.NoError(t, store.MarkPageCollected(4, nil))
	require.NoError(t, store.MarkPageCollected(2, nil))
	assert.Equal(t, 5, store.ResumePage())
}

func TestProgressStore_MarkItemTwice(t *testing.T) {
	store, _ := newProgress(t)

	require.NoError(t, store.MarkItemDone("https://www.gdao.org/items/show/1"))
	require.NoError(t, store.MarkItemDone("https://www.gdao.org/items/show/1"))
	assert.Len(t, store.Snapshot().ScrapedItems, 1)
}

func TestProgressStore_LoadDedupesItems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	raw := `{"last_completed_page": 2, "scraped_items": ["a", "b", "a"], "items_scraped": 3}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0644))

	store := NewProgressStore(path, testLogger())
	rec, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, rec.ScrapedItems)
	assert.Equal(t, 2, rec.ItemsScraped)
	assert.Equal(t, 3, store.ResumePage())
}

func TestProgressStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := NewProgressStore(path, testLogger()).Load()
	assert.True(t, errors.Is(err, utils.ErrPersistence))
}

func TestProgressStore_Reset(t *testing.T) {
	store, path := newProgress(t)
	require.NoError(t, store.MarkPageCollected(5, nil))
	require.NoError(t, store.MarkItemDone("https://www.gdao.org/items/show/1"))

	require.NoError(t, store.Reset())
	assert.Equal(t, 1, store.ResumePage())
	assert.False(t, store.IsItemDone("https://www.gdao.org/items/show/1"))

	reloaded := NewProgressStore(path, testLogger())
	rec, err := reloaded.Load()
	require.NoError(t, err)
	assert.Equal(t, 0, rec.LastCompletedPage)
	assert.Empty(t, rec.ScrapedItems)
	assert.Empty(t, rec.PendingItems)
}

func TestProgressStore_MarkPageCollectedQueuesItems(t *testing.T) {
	store, path := newProgress(t)
	one, two, three := "https://www.gdao.org/items/show/1", "https://www.gdao.org/items/show/2", "https://www.gdao.org/items/show/3"

	require.NoError(t, store.MarkItemDone(one))
	require.NoError(t, store.MarkPageCollected(1, []string{one, two, three, two}))

	assert.Equal(t, 2, store.ResumePage())
	assert.Equal(t, []string{two, three}, store.PendingItems())

	require.NoError(t, store.MarkItemDone(two))
	assert.Equal(t, []string{three}, store.PendingItems())

	reloaded := NewProgressStore(path, testLogger())
	rec, err := reloaded.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, rec.LastCompletedPage)
	assert.Equal(t, 4, rec.TotalItemsFound)
	assert.Equal(t, []string{three}, rec.PendingItems)
	assert.Equal(t, []string{three}, reloaded.PendingItems())
}

func TestProgressStore_MarkPageCollectedKeepsCursorMonotonic(t *testing.T) {
	store, _ := newProgress(t)
	require.NoError(t, store.MarkPageCollected(4, nil))
	require.NoError(t, store.MarkPageCollected(2, []string{"https://www.gdao.org/items/show/9"}))

	assert.Equal(t, 5, store.ResumePage())
	assert.Len(t, store.PendingItems(), 1)
}

func TestProgressStore_LoadDropsPendingThatAreDone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	raw := `{"last_completed_page": 2, "scraped_items": ["a"], "pending_items": ["a", "b", "b", "c"]}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0644))

	store := NewProgressStore(path, testLogger())
	_, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, store.PendingItems())
}

func TestProgressStore_WriteFailureIsPersistenceError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	// Parent "directory" is a regular file, so the write cannot succeed
	store := NewProgressStore(filepath.Join(blocker, "progress.json"), testLogger())
	err := store.MarkItemDone("https://www.gdao.org/items/show/1")
	assert.True(t, errors.Is(err, utils.ErrPersistence))
	assert.True(t, utils.IsPersistenceError(err))
	assert.False(t, store.IsItemDone("https://www.gdao.org/items/show/1"), "failed mark must not be visible")
}
