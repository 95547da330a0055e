package harvest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/gdao-harvester/pkg/models"
	"github.com/Sriram-PR/gdao-harvester/pkg/utils"
)

func TestItemLog_AppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "items.jsonl")

	first, err := OpenItemLog(path)
	require.NoError(t, err)
	require.NoError(t, first.Append(models.HarvestedItem{URL: "https://www.gdao.org/items/show/1", ItemID: "1"}))
	require.NoError(t, first.Close())

	second, err := OpenItemLog(path)
	require.NoError(t, err)
	item := models.HarvestedItem{
		URL:       "https://www.gdao.org/items/show/2",
		ItemID:    "2",
		ScrapedAt: time.Date(2026, 5, 8, 0, 0, 0, 0, time.UTC),
	}
	item.Title = "Barton Hall <Cornell> & more · 1977"
	require.NoError(t, second.Append(item))
	require.NoError(t, second.Close())

	items := readItems(t, path)
	require.Len(t, items, 2)
	assert.Equal(t, "1", items[0].ItemID)
	assert.Equal(t, item.Title, items[1].Title)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(raw), "\n"))
	assert.Contains(t, string(raw), "<Cornell> & more · 1977", "no HTML or unicode escaping")
}

func TestItemLog_AppendAfterClose(t *testing.T) {
	l, err := OpenItemLog(filepath.Join(t.TempDir(), "items.jsonl"))
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close(), "double close is harmless")

	err = l.Append(models.HarvestedItem{URL: "u"})
	assert.ErrorIs(t, err, utils.ErrPersistence)
}

func TestOpenItemLog_Unwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	_, err := OpenItemLog(filepath.Join(blocker, "items.jsonl"))
	assert.ErrorIs(t, err, utils.ErrPersistence)
}
