package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "harvester.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
base_url: https://archive.example.org
graph:
  max_depth: 3
`)
	cfg, resolved, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
	assert.Equal(t, "https://archive.example.org", cfg.BaseURL)
	assert.Equal(t, 3, cfg.Graph.MaxDepth)
	assert.Equal(t, 25, cfg.Harvest.ResultsPerPage, "omitted keys keep defaults")
}

func TestLoadConfig_Errors(t *testing.T) {
	_, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")

	bad := writeConfig(t, "harvest: [unclosed")
	_, _, err = loadConfig(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestSetupLogger(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, setupLogger("debug", io.Discard).GetLevel())
	assert.Equal(t, logrus.ErrorLevel, setupLogger("error", io.Discard).GetLevel())

	var buf bytes.Buffer
	log := setupLogger("loud", &buf)
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	assert.Contains(t, buf.String(), "Invalid log level 'loud'")
}

func TestDoValidate(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		wantCode   int
		wantStdout []string
		wantStderr string
	}{
		{
			name: "valid",
			content: `
base_url: https://archive.example.org
output_dir: out
`,
			wantCode:   0,
			wantStdout: []string{"OK: base_url https://archive.example.org", "OK: first listing page https://archive.example.org/solr-search?q=&page=1", "Configuration valid."},
		},
		{
			name: "warnings",
			content: `
base_url: https://archive.example.org
request_delay: -1s
harvest:
  max_items: -5
`,
			wantCode:   0,
			wantStdout: []string{"WARN: request_delay cannot be negative", "WARN: harvest.max_items cannot be negative", "Configuration valid."},
		},
		{
			name: "bad listing path",
			content: `
base_url: https://archive.example.org
harvest:
  listing_path: /solr-search
`,
			wantCode:   1,
			wantStderr: "listing_path",
		},
		{
			name:       "relative base url",
			content:    "base_url: /archive\n",
			wantCode:   1,
			wantStderr: "base_url",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			var stdout, stderr bytes.Buffer
			code := doValidate(path, &stdout, &stderr)
			assert.Equal(t, tt.wantCode, code, "stderr: %s", stderr.String())
			for _, want := range tt.wantStdout {
				assert.Contains(t, stdout.String(), want)
			}
			if tt.wantStderr != "" {
				assert.Contains(t, stderr.String(), tt.wantStderr)
			}
		})
	}
}

func TestDoValidate_MissingFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := doValidate(filepath.Join(t.TempDir(), "nope.yaml"), &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Error:")
}

// execute runs the root command with args, returning stdout and the error
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"crawl", "harvest", "resume", "validate", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "harvester version ")
	assert.Contains(t, out, "commit:")
}

func TestHarvestCmd_FlagDefaults(t *testing.T) {
	root := NewRootCmd()
	harvestCmd, _, err := root.Find([]string{"harvest"})
	require.NoError(t, err)
	resumeFlag := harvestCmd.Flags().Lookup("resume")
	require.NotNil(t, resumeFlag)
	assert.Equal(t, "true", resumeFlag.DefValue)

	resumeCmd, _, err := root.Find([]string{"resume"})
	require.NoError(t, err)
	assert.Nil(t, resumeCmd.Flags().Lookup("resume"), "resume always continues the checkpoint")
	assert.NotNil(t, resumeCmd.Flags().Lookup("max-items"))
}

func TestValidateCmd_Invalid(t *testing.T) {
	path := writeConfig(t, "base_url: ftp://archive.example.org\n")
	_, err := execute(t, "--config", path, "validate")
	assert.ErrorIs(t, err, errInvalidConfig)
}

// site serves a tiny archive: a home page, a one-page listing and two items with a PDF each
type site struct {
	srv  *httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func newSite(t *testing.T) *site {
	s := &site{hits: make(map[string]int)}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *site) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	s.mu.Unlock()

	html := func(body string) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><head><title>GDAO</title></head><body>\n%s\n</body></html>", body)
	}
	switch {
	case r.URL.Path == "/":
		html(`<a href="/about">About</a> <a href="/solr-search?q=&page=1">Browse</a> <a href="https://elsewhere.example/">Out</a>`)
	case r.URL.Path == "/about":
		html(`<p>About the archive</p><a href="/">Home</a>`)
	case r.URL.Path == "/solr-search":
		if r.URL.Query().Get("page") != "1" {
			html("<p>No results</p>")
			return
		}
		html("<a href=\"/items/show/1\">One</a>\n<a href=\"/items/show/2\">Two</a>\n<p>\n1–2 of 2 results\n</p>")
	case strings.HasPrefix(r.URL.Path, "/items/show/"):
		id, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/items/show/"))
		html(fmt.Sprintf(`<h1>Show %[1]d</h1>
<dl><dt>Date</dt><dd>1977-05-0%[1]d</dd><dt>Type</dt><dd>Setlist</dd></dl>
<a href="/files/setlist-%[1]d.pdf">Setlist</a>`, id))
	case strings.HasPrefix(r.URL.Path, "/files/"):
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprintf(w, "%%PDF-1.4 %s", r.URL.Path)
	default:
		http.NotFound(w, r)
	}
}

func (s *site) hitsFor(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *site) config(t *testing.T, root string) string {
	return writeConfig(t, fmt.Sprintf(`
base_url: %s
request_delay: 0s
max_retries: 0
output_dir: %s
state_dir: %s
graph:
  max_depth: 1
harvest:
  results_per_page: 2
  item_delay: 0s
`, s.srv.URL, filepath.Join(root, "out"), filepath.Join(root, "state")))
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	require.NoError(t, sc.Err())
	return n
}

func TestHarvestThenResume_EndToEnd(t *testing.T) {
	s := newSite(t)
	root := t.TempDir()
	cfgPath := s.config(t, root)
	out := filepath.Join(root, "out")

	_, err := execute(t, "--config", cfgPath, "--loglevel", "error", "harvest", "--resume=false")
	require.NoError(t, err)

	assert.Equal(t, 2, countLines(t, filepath.Join(out, "gdao_archive_items.jsonl")))
	assert.FileExists(t, filepath.Join(out, "progress.json"))

	report, err := os.ReadFile(filepath.Join(out, "harvest_report.md"))
	require.NoError(t, err)
	assert.Contains(t, string(report), "GDAO Harvest Report")
	assert.Contains(t, string(report), "No errors during this run.")

	for _, id := range []string{"1", "2"} {
		entries, err := os.ReadDir(filepath.Join(out, "attachments", id))
		require.NoError(t, err, "item %s attachments", id)
		require.Len(t, entries, 1)
		assert.True(t, strings.HasSuffix(entries[0].Name(), "_setlist-"+id+".pdf"))
	}
	tree, err := os.ReadFile(filepath.Join(out, "attachments_structure.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(tree), "setlist-1.pdf")

	// Everything is done; resuming fetches no items and appends nothing
	_, err = execute(t, "--config", cfgPath, "--loglevel", "error", "resume")
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(t, filepath.Join(out, "gdao_archive_items.jsonl")))
	assert.Equal(t, 1, s.hitsFor("/items/show/1"))
	assert.Equal(t, 1, s.hitsFor("/files/setlist-2.pdf"))
}

func TestHarvestCmd_SkipAttachmentsAndMaxItems(t *testing.T) {
	s := newSite(t)
	root := t.TempDir()
	cfgPath := s.config(t, root)
	out := filepath.Join(root, "out")

	_, err := execute(t, "--config", cfgPath, "--loglevel", "error", "harvest", "--skip-attachments", "--max-items", "1")
	require.NoError(t, err)

	assert.Equal(t, 1, countLines(t, filepath.Join(out, "gdao_archive_items.jsonl")))
	assert.NoDirExists(t, filepath.Join(out, "attachments"))
	assert.Equal(t, 0, s.hitsFor("/files/setlist-1.pdf"))

	report, err := os.ReadFile(filepath.Join(out, "harvest_report.md"))
	require.NoError(t, err)
	assert.Contains(t, string(report), "max_items (1) reached")
}

func TestCrawlCmd_EndToEnd(t *testing.T) {
	s := newSite(t)
	root := t.TempDir()
	cfgPath := s.config(t, root)
	out := filepath.Join(root, "out")

	_, err := execute(t, "--config", cfgPath, "--loglevel", "error", "crawl", "--write-visited-log")
	require.NoError(t, err)

	for _, name := range []string{"gdao_links.csv", "gdao_nodes.csv", "gdao_graph.dot", "gdao_graph.db", "crawl_metadata.yaml", "graph_report.md", visitedLogFilename} {
		assert.FileExists(t, filepath.Join(out, name))
	}

	links, err := os.ReadFile(filepath.Join(out, "gdao_links.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(links), s.srv.URL+"/about")
	assert.NotContains(t, string(links), "elsewhere.example")

	report, err := os.ReadFile(filepath.Join(out, "graph_report.md"))
	require.NoError(t, err)
	assert.Contains(t, string(report), "GDAO Link Graph Report")
	assert.Contains(t, string(report), "## Pages by Depth")

	// max_depth 1 stops before the item pages
	assert.Equal(t, 0, s.hitsFor("/items/show/1"))
}

func TestCrawlCmd_MaxDepthFlagOverridesConfig(t *testing.T) {
	s := newSite(t)
	root := t.TempDir()
	cfgPath := s.config(t, root)

	_, err := execute(t, "--config", cfgPath, "--loglevel", "error", "crawl", "--max-depth", "0")
	require.NoError(t, err)
	assert.Equal(t, 1, s.hitsFor("/"))
	assert.Equal(t, 0, s.hitsFor("/about"))
}
