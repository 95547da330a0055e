package process

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/gdao-harvester/pkg/config"
	"github.com/Sriram-PR/gdao-harvester/pkg/fetch"
	"github.com/Sriram-PR/gdao-harvester/pkg/models"
	"github.com/Sriram-PR/gdao-harvester/pkg/storage"
	"github.com/Sriram-PR/gdao-harvester/pkg/utils"
)

// AttachmentFetcher is the part of fetch.Fetcher the downloader needs
type AttachmentFetcher interface {
	Download(ctx context.Context, rawURL string, dst io.Writer, maxBytes int64) (int64, error)
}

// Downloader saves an item's attachments concurrently into attachments/<item id>/
type Downloader struct {
	fetcher        AttachmentFetcher
	hosts          *fetch.HostSemaphorePool // Per-host cap shared by all items
	ledger         storage.AttachmentStore  // Optional; lets a redone item skip files already on disk
	outputDir      string
	attachmentsDir string // Relative to outputDir
	maxConcurrent  int
	maxBytes       int64
	log            *logrus.Entry
}

// NewDownloader creates a Downloader from the harvest settings in cfg. ledger may be nil
func NewDownloader(fetcher AttachmentFetcher, hosts *fetch.HostSemaphorePool, ledger storage.AttachmentStore, cfg *config.AppConfig, log *logrus.Entry) *Downloader {
	maxConcurrent := cfg.Harvest.MaxConcurrentDownloads
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	attachmentsDir := cfg.Harvest.AttachmentsDir
	if attachmentsDir == "" {
		attachmentsDir = "attachments"
	}
	return &Downloader{
		fetcher:        fetcher,
		hosts:          hosts,
		ledger:         ledger,
		outputDir:      cfg.OutputDir,
		attachmentsDir: attachmentsDir,
		maxConcurrent:  maxConcurrent,
		maxBytes:       cfg.Harvest.MaxAttachmentBytes,
		log:            log,
	}
}

// LocalName returns the on-disk name for an attachment: md5(url)[:8] + "_" + sanitized filename
func LocalName(att models.Attachment) string {
	return utils.URLHashPrefix(att.URL, 8) + "_" + utils.SanitizeFilename(att.Filename)
}

// DownloadAll fetches every attachment with at most maxConcurrent in flight and returns the
// annotated copies in input order. Failures are recorded on the attachment, never returned
func (d *Downloader) DownloadAll(ctx context.Context, itemID string, atts []models.Attachment) []models.Attachment {
	out := make([]models.Attachment, len(atts))
	copy(out, atts)
	if len(out) == 0 {
		return out
	}

	itemDir := utils.SanitizeFilename(itemID)
	itemLog := d.log.WithFields(logrus.Fields{"item_id": itemID, "attachments": len(out)})
	itemLog.Debug("Downloading attachments")

	var g errgroup.Group
	g.SetLimit(d.maxConcurrent)
	for i := range out {
		g.Go(func() error {
			d.downloadOne(ctx, itemDir, &out[i], itemLog.WithField("attachment_url", out[i].URL))
			return nil
		})
	}
	_ = g.Wait()

	ok := 0
	for _, a := range out {
		if a.Downloaded {
			ok++
		}
	}
	itemLog.WithFields(logrus.Fields{"downloaded": ok, "failed": len(out) - ok}).Debug("Attachments finished")
	return out
}

// downloadOne fills in att's outcome. Each goroutine owns its own slice element
func (d *Downloader) downloadOne(ctx context.Context, itemDir string, att *models.Attachment, attLog *logrus.Entry) {
	name := LocalName(*att)
	relPath := filepath.ToSlash(filepath.Join(d.attachmentsDir, itemDir, name))
	absPath := filepath.Join(d.outputDir, d.attachmentsDir, itemDir, name)

	var taskErr error
	defer func() {
		if r := recover(); r != nil {
			taskErr = fmt.Errorf("panic downloading '%s': %v", att.URL, r)
			attLog.WithFields(logrus.Fields{"panic_info": r, "stack_trace": string(debug.Stack())}).Error("PANIC Recovered in downloadOne")
		}
		if taskErr != nil {
			att.Downloaded = false
			att.LocalPath = ""
			att.Error = taskErr.Error()
			attLog.WithField("error_type", utils.CategorizeError(taskErr)).Warnf("Attachment download failed: %v", taskErr)
		}
		d.record(att, taskErr, attLog)
	}()

	if d.alreadyDownloaded(att, relPath, absPath, attLog) {
		return
	}

	host := ""
	if u, err := url.Parse(att.URL); err == nil {
		host = u.Hostname()
	}
	if d.hosts != nil {
		if err := d.hosts.Acquire(ctx, host); err != nil {
			taskErr = fmt.Errorf("waiting for host slot: %w", err)
			return
		}
		defer d.hosts.Release(host)
	}

	size, err := d.saveAtomic(ctx, att.URL, absPath)
	if err != nil {
		taskErr = err
		return
	}
	att.Downloaded = true
	att.LocalPath = relPath
	att.Size = size
	att.Error = ""
	attLog.Debugf("Saved attachment (%d bytes) to %s", size, relPath)
}

// alreadyDownloaded consults the ledger and trusts it only when the recorded file is still on disk
func (d *Downloader) alreadyDownloaded(att *models.Attachment, relPath, absPath string, attLog *logrus.Entry) bool {
	if d.ledger == nil {
		return false
	}
	status, entry, err := d.ledger.CheckAttachmentStatus(att.URL)
	if err != nil || status != models.AttachmentStatusSuccess || entry == nil || entry.LocalPath != relPath {
		return false
	}
	info, err := os.Stat(absPath)
	if err != nil || info.Size() != entry.Bytes {
		return false
	}
	att.Downloaded = true
	att.LocalPath = relPath
	att.Size = entry.Bytes
	attLog.Debug("Attachment already on disk, skipping download")
	return true
}

// saveAtomic streams rawURL into a temp file beside dst and renames it into place, so a partial
// download never appears under the final name
func (d *Downloader) saveAtomic(ctx context.Context, rawURL, dst string) (int64, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("%w: creating attachment dir '%s': %w", utils.ErrFilesystem, dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(dst)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("%w: creating temp file in '%s': %w", utils.ErrFilesystem, dir, err)
	}
	tmpPath := tmp.Name()

	written, dlErr := d.fetcher.Download(ctx, rawURL, tmp, d.maxBytes)
	if dlErr == nil {
		if err := tmp.Sync(); err != nil {
			dlErr = fmt.Errorf("%w: syncing '%s': %w", utils.ErrFilesystem, tmpPath, err)
		}
	}
	if err := tmp.Close(); err != nil && dlErr == nil {
		dlErr = fmt.Errorf("%w: closing '%s': %w", utils.ErrFilesystem, tmpPath, err)
	}
	if dlErr != nil {
		os.Remove(tmpPath)
		return 0, dlErr
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: renaming '%s' to '%s': %w", utils.ErrFilesystem, tmpPath, dst, err)
	}
	return written, nil
}

func (d *Downloader) record(att *models.Attachment, taskErr error, attLog *logrus.Entry) {
	if d.ledger == nil {
		return
	}
	entry := &models.AttachmentDBEntry{LastAttempt: time.Now()}
	if taskErr == nil && att.Downloaded {
		entry.Status = models.AttachmentStatusSuccess
		entry.LocalPath = att.LocalPath
		entry.Bytes = att.Size
	} else {
		entry.Status = models.AttachmentStatusFailure
		entry.ErrorType = utils.CategorizeError(taskErr)
	}
	if err := d.ledger.UpdateAttachmentStatus(att.URL, entry); err != nil {
		attLog.Errorf("Failed to update attachment ledger: %v", err)
	}
}
