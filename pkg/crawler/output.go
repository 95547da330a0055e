package crawler

import (
	"context"
	"errors"
	"io"
	"net/url"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/gdao-harvester/pkg/config"
)

// Outputs lists the files written for a crawl; empty entries were disabled or failed
type Outputs struct {
	LinksCSV string
	NodesCSV string
	DOT      string
	SQLite   string
	Metadata string
}

// OutputManager writes every graph export once, after the crawl has finished
type OutputManager struct {
	log       *logrus.Entry
	graphCfg  config.GraphConfig
	outputDir string
}

// NewOutputManager creates an OutputManager writing under outputDir
func NewOutputManager(log *logrus.Entry, graphCfg config.GraphConfig, outputDir string) *OutputManager {
	return &OutputManager{log: log, graphCfg: graphCfg, outputDir: outputDir}
}

// WriteAll writes CSV, DOT, YAML metadata and (when enabled) SQLite exports for res.
// Each export is attempted even if an earlier one fails; the joined error is returned
func (om *OutputManager) WriteAll(ctx context.Context, res *Result) (Outputs, error) {
	linksName, nodesName, dotName, sqliteName, metaName, _ := config.GetEffectiveGraphFilenames(om.graphCfg)
	var out Outputs
	var errs []error

	write := func(label, name string, fn func(io.Writer) error) string {
		path := filepath.Join(om.outputDir, name)
		if err := writeFile(path, fn); err != nil {
			om.log.Errorf("Failed to write %s '%s': %v", label, path, err)
			errs = append(errs, err)
			return ""
		}
		om.log.Infof("%s exported to %s", label, path)
		return path
	}

	out.LinksCSV = write("Links CSV", linksName, func(w io.Writer) error { return WriteEdgesCSV(w, res.Graph) })
	out.NodesCSV = write("Nodes CSV", nodesName, func(w io.Writer) error { return WriteNodesCSV(w, res.Graph) })
	out.DOT = write("DOT graph", dotName, func(w io.Writer) error {
		return WriteDOT(w, res.Graph, sitePrefix(res.Metadata.StartURL))
	})
	out.Metadata = write("Crawl metadata", metaName, func(w io.Writer) error { return WriteMetadataYAML(w, res.Metadata) })

	if config.GetEffectiveEnableSQLite(om.graphCfg) {
		path := filepath.Join(om.outputDir, sqliteName)
		if err := NewSQLiteExporter(path, om.log).Export(ctx, res.Graph, res.Metadata); err != nil {
			om.log.Errorf("Failed to write SQLite graph '%s': %v", path, err)
			errs = append(errs, err)
		} else {
			out.SQLite = path
			om.log.Infof("SQLite graph exported to %s", path)
		}
	} else {
		om.log.Info("SQLite graph export is disabled.")
	}

	return out, errors.Join(errs...)
}

// sitePrefix returns scheme://host of u, which DOT labels strip
func sitePrefix(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}
