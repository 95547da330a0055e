package process

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/gdao-harvester/pkg/config"
	"github.com/Sriram-PR/gdao-harvester/pkg/fetch"
	"github.com/Sriram-PR/gdao-harvester/pkg/models"
	"github.com/Sriram-PR/gdao-harvester/pkg/storage"
	"github.com/Sriram-PR/gdao-harvester/pkg/utils"
)

func downloaderConfig(t *testing.T) *config.AppConfig {
	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	cfg.RequestDelay = 0
	cfg.MaxRetries = 0
	cfg.InitialRetryDelay = time.Millisecond
	cfg.Harvest.MaxConcurrentDownloads = 2
	return cfg
}

func fileServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/files/setlist.pdf", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.4 setlist")
	})
	mux.HandleFunc("/files/poster.jpg", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

func attachment(base, name string, class models.MediaClass) models.Attachment {
	return models.Attachment{URL: base + "/files/" + name, Filename: name, Extension: filepath.Ext(name), Type: class}
}

func TestDownloadAll_RecordsSuccessAndFailure(t *testing.T) {
	srv, _ := fileServer(t)
	cfg := downloaderConfig(t)
	log := testLogger()
	d := NewDownloader(fetch.NewFetcher(srv.Client(), cfg, nil, log), fetch.NewHostSemaphorePool(2, log), nil, cfg, log)

	in := []models.Attachment{
		attachment(srv.URL, "setlist.pdf", models.MediaDocument),
		attachment(srv.URL, "poster.jpg", models.MediaImage),
	}
	out := d.DownloadAll(context.Background(), "5", in)

	require.Len(t, out, 2)
	assert.False(t, in[0].Downloaded, "input slice must not be modified")

	pdf := out[0]
	assert.True(t, pdf.Downloaded)
	assert.Empty(t, pdf.Error)
	wantRel := "attachments/5/" + utils.URLHashPrefix(pdf.URL, 8) + "_setlist.pdf"
	assert.Equal(t, wantRel, pdf.LocalPath)
	assert.Equal(t, int64(len("%PDF-1.4 setlist")), pdf.Size)
	content, err := os.ReadFile(filepath.Join(cfg.OutputDir, filepath.FromSlash(wantRel)))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 setlist", string(content))

	jpg := out[1]
	assert.False(t, jpg.Downloaded)
	assert.Empty(t, jpg.LocalPath)
	assert.NotEmpty(t, jpg.Error)
	assert.Equal(t, models.MediaImage, jpg.Type, "failed attachments keep their record")

	entries, err := os.ReadDir(filepath.Join(cfg.OutputDir, "attachments", "5"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".part"), "temp file left behind: %s", e.Name())
	}
	assert.Len(t, entries, 1)
}

func TestDownloadAll_Empty(t *testing.T) {
	cfg := downloaderConfig(t)
	d := NewDownloader(nil, nil, nil, cfg, testLogger())
	assert.Empty(t, d.DownloadAll(context.Background(), "1", nil))
}

// slowFetcher records the peak number of concurrent Download calls
type slowFetcher struct {
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (f *slowFetcher) Download(ctx context.Context, rawURL string, dst io.Writer, maxBytes int64) (int64, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	n, err := io.WriteString(dst, rawURL)
	return int64(n), err
}

func TestDownloadAll_BoundedConcurrency(t *testing.T) {
	cfg := downloaderConfig(t)
	log := testLogger()
	f := &slowFetcher{}
	d := NewDownloader(f, fetch.NewHostSemaphorePool(10, log), nil, cfg, log)

	var in []models.Attachment
	for i := 0; i < 8; i++ {
		in = append(in, attachment("https://files.example.org", fmt.Sprintf("scan%d.png", i), models.MediaImage))
	}
	out := d.DownloadAll(context.Background(), "9", in)

	for i, a := range out {
		assert.True(t, a.Downloaded)
		assert.Equal(t, in[i].URL, a.URL, "order must be preserved")
	}
	assert.LessOrEqual(t, f.peak, 2)
	assert.GreaterOrEqual(t, f.peak, 1)
}

func TestDownloadAll_LedgerSkipsFilesOnDisk(t *testing.T) {
	srv, hits := fileServer(t)
	cfg := downloaderConfig(t)
	log := testLogger()
	ledger, err := storage.NewBadgerStore(context.Background(), t.TempDir(), "downloads", false, log)
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	d := NewDownloader(fetch.NewFetcher(srv.Client(), cfg, nil, log), fetch.NewHostSemaphorePool(2, log), ledger, cfg, log)
	in := []models.Attachment{attachment(srv.URL, "setlist.pdf", models.MediaDocument)}

	first := d.DownloadAll(context.Background(), "5", in)
	require.True(t, first[0].Downloaded)
	assert.Equal(t, int32(1), hits.Load())

	status, entry, err := ledger.CheckAttachmentStatus(in[0].URL)
	require.NoError(t, err)
	assert.Equal(t, models.AttachmentStatusSuccess, status)
	assert.Equal(t, first[0].LocalPath, entry.LocalPath)

	second := d.DownloadAll(context.Background(), "5", in)
	assert.True(t, second[0].Downloaded)
	assert.Equal(t, first[0].LocalPath, second[0].LocalPath)
	assert.Equal(t, int32(1), hits.Load(), "file on disk must not be fetched again")

	require.NoError(t, os.Remove(filepath.Join(cfg.OutputDir, filepath.FromSlash(first[0].LocalPath))))
	third := d.DownloadAll(context.Background(), "5", in)
	assert.True(t, third[0].Downloaded)
	assert.Equal(t, int32(2), hits.Load(), "missing file is downloaded again")
}

func TestDownloadAll_FailureRecordedInLedger(t *testing.T) {
	srv, _ := fileServer(t)
	cfg := downloaderConfig(t)
	log := testLogger()
	ledger, err := storage.NewBadgerStore(context.Background(), t.TempDir(), "downloads", false, log)
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	d := NewDownloader(fetch.NewFetcher(srv.Client(), cfg, nil, log), nil, ledger, cfg, log)
	in := []models.Attachment{attachment(srv.URL, "poster.jpg", models.MediaImage)}
	d.DownloadAll(context.Background(), "6", in)

	status, entry, err := ledger.CheckAttachmentStatus(in[0].URL)
	require.NoError(t, err)
	assert.Equal(t, models.AttachmentStatusFailure, status)
	assert.Equal(t, "HTTP_404", entry.ErrorType)
}

func TestLocalName(t *testing.T) {
	a := models.Attachment{URL: "https://www.gdao.org/files/a b?.pdf", Filename: "a b?.pdf"}
	name := LocalName(a)
	assert.True(t, strings.HasPrefix(name, utils.URLHashPrefix(a.URL, 8)+"_"))
	assert.NotContains(t, name, "?")
}
