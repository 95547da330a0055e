package crawler

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Sriram-PR/gdao-harvester/pkg/models"
	"github.com/Sriram-PR/gdao-harvester/pkg/utils"
)

const graphSchema = `
CREATE TABLE IF NOT EXISTS crawl_runs (
	run_id TEXT PRIMARY KEY,
	start_url TEXT NOT NULL,
	allowed_host TEXT NOT NULL,
	max_depth INTEGER NOT NULL,
	started_at DATETIME,
	finished_at DATETIME,
	cancelled INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS nodes (
	url TEXT PRIMARY KEY,
	depth INTEGER NOT NULL,
	in_degree INTEGER NOT NULL,
	out_degree INTEGER NOT NULL,
	state TEXT NOT NULL,
	status_code INTEGER,
	error_type TEXT
);

CREATE INDEX IF NOT EXISTS idx_nodes_depth ON nodes(depth);

CREATE TABLE IF NOT EXISTS edges (
	source TEXT NOT NULL,
	target TEXT NOT NULL,
	source_depth INTEGER NOT NULL,
	target_depth INTEGER NOT NULL,
	PRIMARY KEY (source, target)
);

CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target);
`

// SQLiteExporter writes the link graph into a fresh SQLite database for ad-hoc queries
type SQLiteExporter struct {
	path string
	log  *logrus.Entry
}

// NewSQLiteExporter creates an exporter for the database file at path
func NewSQLiteExporter(path string, log *logrus.Entry) *SQLiteExporter {
	return &SQLiteExporter{path: path, log: log}
}

// Export replaces any previous database at the path with the nodes and edges of g
func (e *SQLiteExporter) Export(ctx context.Context, g *LinkGraph, meta models.CrawlMetadata) error {
	if err := os.MkdirAll(filepath.Dir(e.path), 0755); err != nil {
		return fmt.Errorf("%w: create dir for %s: %w", utils.ErrFilesystem, e.path, err)
	}
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(e.path + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: remove old %s: %w", utils.ErrFilesystem, e.path+suffix, err)
		}
	}

	db, err := sql.Open("sqlite", e.path+"?mode=rwc")
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", utils.ErrDatabase, e.path, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1) // SQLite only supports one writer

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("%w: enable WAL: %w", utils.ErrDatabase, err)
	}
	if _, err := db.ExecContext(ctx, graphSchema); err != nil {
		return fmt.Errorf("%w: create tables: %w", utils.ErrDatabase, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", utils.ErrDatabase, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO crawl_runs (run_id, start_url, allowed_host, max_depth, started_at, finished_at, cancelled) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		meta.RunID, meta.StartURL, meta.AllowedHost, meta.MaxDepth,
		meta.CrawlStartTime.UTC().Format(time.RFC3339), meta.CrawlEndTime.UTC().Format(time.RFC3339), meta.Cancelled,
	); err != nil {
		return fmt.Errorf("%w: insert run: %w", utils.ErrDatabase, err)
	}

	nodeStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO nodes (url, depth, in_degree, out_degree, state, status_code, error_type) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare nodes: %w", utils.ErrDatabase, err)
	}
	defer nodeStmt.Close()
	for _, n := range g.Nodes() {
		if _, err := nodeStmt.ExecContext(ctx, n.URL, n.Depth, g.InDegree(n.URL), g.OutDegree(n.URL), string(n.State), n.StatusCode, n.ErrorType); err != nil {
			return fmt.Errorf("%w: insert node %s: %w", utils.ErrDatabase, n.URL, err)
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO edges (source, target, source_depth, target_depth) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare edges: %w", utils.ErrDatabase, err)
	}
	defer edgeStmt.Close()
	for _, edge := range g.Edges() {
		src, _ := g.Node(edge.Source)
		dst, _ := g.Node(edge.Target)
		if _, err := edgeStmt.ExecContext(ctx, edge.Source, edge.Target, src.Depth, dst.Depth); err != nil {
			return fmt.Errorf("%w: insert edge %s -> %s: %w", utils.ErrDatabase, edge.Source, edge.Target, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", utils.ErrDatabase, err)
	}
	e.log.WithFields(logrus.Fields{"nodes": g.NodeCount(), "edges": g.EdgeCount()}).Debug("SQLite graph written")
	return nil
}
