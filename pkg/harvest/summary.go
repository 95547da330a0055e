package harvest

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/gdao-harvester/pkg/models"
	"github.com/Sriram-PR/gdao-harvester/pkg/utils"
)

// Summary reports what one harvest run did
type Summary struct {
	RunID             string
	Started           time.Time
	Finished          time.Time
	StartPage         int // First listing page this run scanned
	LastPage          int // Last listing page checkpointed by this run; 0 if none
	PagesCrawled      int
	ItemsFound        int // Item links collected from listing pages this run
	ItemsProcessed    int // New records appended to the item log
	ItemsSkipped      int // Listed items already in the log from an earlier run
	Errors            int
	ErrorsByCategory  map[string]int
	AttachmentsOK     int
	AttachmentsFailed int
	StopReason        string
	Cancelled         bool
	Progress          models.ProgressRecord // Checkpoint as of the end of the run
}

func newSummary(runID string) *Summary {
	return &Summary{
		RunID:            runID,
		Started:          time.Now(),
		ErrorsByCategory: make(map[string]int),
	}
}

// Duration is the wall time of the run
func (s *Summary) Duration() time.Duration {
	if s.Finished.IsZero() {
		return time.Since(s.Started)
	}
	return s.Finished.Sub(s.Started)
}

// Categories returns the error categories seen, most frequent first
func (s *Summary) Categories() []string {
	cats := make([]string, 0, len(s.ErrorsByCategory))
	for c := range s.ErrorsByCategory {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool {
		if s.ErrorsByCategory[cats[i]] != s.ErrorsByCategory[cats[j]] {
			return s.ErrorsByCategory[cats[i]] > s.ErrorsByCategory[cats[j]]
		}
		return cats[i] < cats[j]
	})
	return cats
}

func (s *Summary) recordError(err error) {
	s.Errors++
	s.ErrorsByCategory[utils.CategorizeError(err)]++
}

func (s *Summary) log(runLog *logrus.Entry) {
	runLog.Info("========================================================================")
	runLog.Info("HARVEST FINISHED")
	runLog.Infof("Duration:         %v", s.Duration().Round(time.Millisecond))
	runLog.Infof("Stop reason:      %s", s.StopReason)
	runLog.Infof("Listing pages:    %d (resumed at page %d, checkpoint at page %d)", s.PagesCrawled, s.StartPage, s.Progress.LastCompletedPage)
	runLog.Infof("Items:            %d harvested, %d already done, %d errors", s.ItemsProcessed, s.ItemsSkipped, s.Errors)
	runLog.Infof("Attachments:      %d downloaded, %d failed", s.AttachmentsOK, s.AttachmentsFailed)
	runLog.Infof("Total in log:     %d (%d still pending)", s.Progress.ItemsScraped, len(s.Progress.PendingItems))
	for _, c := range s.Categories() {
		runLog.Infof("  %s: %d", c, s.ErrorsByCategory[c])
	}
	runLog.Info("========================================================================")
}
