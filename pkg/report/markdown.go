package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/Sriram-PR/gdao-harvester/pkg/crawler"
	"github.com/Sriram-PR/gdao-harvester/pkg/harvest"
	"github.com/Sriram-PR/gdao-harvester/pkg/utils"
)

const timeLayout = "2006-01-02 15:04:05 MST"

// WriteHarvest renders a harvest run summary. itemsPath is shown as the record location
func WriteHarvest(w io.Writer, s *harvest.Summary, itemsPath string) error {
	md := markdown.NewMarkdown(w)

	md.H1("GDAO Harvest Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + s.RunID + "`"},
			{"Started", s.Started.Format(timeLayout)},
			{"Finished", s.Finished.Format(timeLayout)},
			{"Duration", s.Duration().Round(time.Second).String()},
			{"Status", harvestStatus(s)},
			{"Stop reason", orDash(s.StopReason)},
			{"Item log", "`" + itemsPath + "`"},
		},
	})
	md.PlainText("")

	md.H2("Progress")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"Listing pages scanned", strconv.Itoa(s.PagesCrawled)},
			{"Resumed at page", strconv.Itoa(s.StartPage)},
			{"Last completed page", strconv.Itoa(s.Progress.LastCompletedPage)},
			{"Item links found", strconv.Itoa(s.ItemsFound)},
			{"Items harvested", strconv.Itoa(s.ItemsProcessed)},
			{"Items already done", strconv.Itoa(s.ItemsSkipped)},
			{"Items still pending", strconv.Itoa(len(s.Progress.PendingItems))},
			{"Total items in log", strconv.Itoa(s.Progress.ItemsScraped)},
			{"Attachments downloaded", strconv.Itoa(s.AttachmentsOK)},
			{"Attachments failed", strconv.Itoa(s.AttachmentsFailed)},
		},
	})
	md.PlainText("")

	writeErrors(md, s)
	writeFooter(md)
	return md.Build()
}

func harvestStatus(s *harvest.Summary) string {
	switch {
	case s.Cancelled:
		return "Cancelled (resume to continue)"
	case s.Errors > 0:
		return fmt.Sprintf("Complete with %d errors", s.Errors)
	}
	return "Complete"
}

func writeErrors(md *markdown.Markdown, s *harvest.Summary) {
	md.H2("Errors")
	md.PlainText("")

	if s.Errors == 0 {
		md.Tip("No errors during this run.")
		md.PlainText("")
		return
	}

	cats := s.Categories()
	rows := make([][]string, len(cats))
	chart := piechart.NewPieChart(io.Discard, piechart.WithTitle("Errors by category"), piechart.WithShowData(true))
	for i, c := range cats {
		rows[i] = []string{c, strconv.Itoa(s.ErrorsByCategory[c])}
		chart.LabelAndIntValue(c, uint64(s.ErrorsByCategory[c]))
	}
	md.Table(markdown.TableSet{Header: []string{"Category", "Count"}, Rows: rows})
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
	md.Warningf("%d errors during this run. %d items remain pending; run `harvester resume` to retry them.", s.Errors, len(s.Progress.PendingItems))
	md.PlainText("")
}

// WriteGraph renders the statistics of a link-graph crawl
func WriteGraph(w io.Writer, res *crawler.Result) error {
	md := markdown.NewMarkdown(w)
	meta, st := res.Metadata, res.Stats

	md.H1("GDAO Link Graph Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + meta.RunID + "`"},
			{"Start URL", meta.StartURL},
			{"Allowed host", meta.AllowedHost},
			{"Max depth", strconv.Itoa(meta.MaxDepth)},
			{"Started", meta.CrawlStartTime.Format(timeLayout)},
			{"Duration", meta.CrawlEndTime.Sub(meta.CrawlStartTime).Round(time.Second).String()},
		},
	})
	md.PlainText("")
	if meta.Cancelled {
		md.Note("The crawl was cancelled; the graph below is partial.")
		md.PlainText("")
	}

	md.H2("Totals")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"Pages", strconv.Itoa(st.Nodes)},
			{"Visited", strconv.Itoa(st.Visited)},
			{"Failed", strconv.Itoa(st.Failed)},
			{"Left in queue", strconv.Itoa(st.Unvisited)},
			{"Links", strconv.Itoa(st.Edges)},
		},
	})
	md.PlainText("")

	md.H2("Pages by Depth")
	md.PlainText("")
	depths := st.SortedDepths()
	if len(depths) == 0 {
		md.PlainText("No pages were visited.")
		md.PlainText("")
	} else {
		rows := make([][]string, len(depths))
		chart := piechart.NewPieChart(io.Discard, piechart.WithTitle("Visited pages by depth"), piechart.WithShowData(true))
		for i, d := range depths {
			rows[i] = []string{strconv.Itoa(d), strconv.Itoa(st.PagesByDepth[d])}
			chart.LabelAndIntValue("depth "+strconv.Itoa(d), uint64(st.PagesByDepth[d]))
		}
		md.Table(markdown.TableSet{Header: []string{"Depth", "Pages"}, Rows: rows})
		md.PlainText("")
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	md.H2("Most Linked Pages")
	md.PlainText("")
	if len(st.TopLinked) == 0 {
		md.PlainText("No links recorded.")
		md.PlainText("")
	} else {
		rows := make([][]string, len(st.TopLinked))
		for i, e := range st.TopLinked {
			rows[i] = []string{strconv.Itoa(i + 1), e.URL, strconv.Itoa(e.InDegree)}
		}
		md.Table(markdown.TableSet{Header: []string{"Rank", "URL", "Incoming links"}, Rows: rows})
		md.PlainText("")
	}

	writeFooter(md)
	return md.Build()
}

func writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Generated %s by gdao-harvester*", time.Now().UTC().Format(timeLayout))
}

// SaveFile renders a report into path, creating parent directories
func SaveFile(path string, render func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: create dir for %s: %w", utils.ErrFilesystem, path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", utils.ErrFilesystem, path, err)
	}
	bw := bufio.NewWriter(f)
	if err := render(bw); err != nil {
		f.Close()
		return fmt.Errorf("%w: render %s: %w", utils.ErrFilesystem, path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("%w: write %s: %w", utils.ErrFilesystem, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", utils.ErrFilesystem, path, err)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
