package crawler

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/gdao-harvester/pkg/models"
	"github.com/Sriram-PR/gdao-harvester/pkg/utils"
)

// depthColors fill DOT nodes by depth; depths past the end reuse the last colour
var depthColors = []string{
	"lightblue", "lightgreen", "lightyellow", "lightcoral", "lightpink",
	"lightgray", "lightsalmon", "lightseagreen", "lightsteelblue", "lightgoldenrodyellow",
}

// WriteEdgesCSV writes source,target,source_depth,target_depth rows in edge insertion order
func WriteEdgesCSV(w io.Writer, g *LinkGraph) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"source", "target", "source_depth", "target_depth"}); err != nil {
		return err
	}
	for _, e := range g.Edges() {
		src, _ := g.Node(e.Source)
		dst, _ := g.Node(e.Target)
		if err := cw.Write([]string{e.Source, e.Target, strconv.Itoa(src.Depth), strconv.Itoa(dst.Depth)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteNodesCSV writes url,depth,in_degree,out_degree rows in discovery order
func WriteNodesCSV(w io.Writer, g *LinkGraph) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"url", "depth", "in_degree", "out_degree"}); err != nil {
		return err
	}
	for _, n := range g.Nodes() {
		row := []string{n.URL, strconv.Itoa(n.Depth), strconv.Itoa(g.InDegree(n.URL)), strconv.Itoa(g.OutDegree(n.URL))}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDOT writes a Graphviz digraph with depth-coloured nodes. Labels drop the site prefix
// and break after every "/" so deep paths stay readable
func WriteDOT(w io.Writer, g *LinkGraph, sitePrefix string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "digraph GDAO {")
	fmt.Fprintln(bw, "  rankdir=TB;")
	fmt.Fprintln(bw, "  node [shape=box, style=filled];")

	for _, n := range g.Nodes() {
		color := depthColors[min(n.Depth, len(depthColors)-1)]
		fmt.Fprintf(bw, "  %s [label=%s, fillcolor=\"%s\"];\n", dotQuote(n.URL), dotQuote(dotLabel(n.URL, sitePrefix)), color)
	}
	for _, e := range g.Edges() {
		fmt.Fprintf(bw, "  %s -> %s;\n", dotQuote(e.Source), dotQuote(e.Target))
	}
	fmt.Fprint(bw, "}")
	return bw.Flush()
}

// dotLabel returns the path part of u with a line break after each slash; the root is "/"
func dotLabel(u, sitePrefix string) string {
	label := strings.TrimPrefix(u, strings.TrimRight(sitePrefix, "/"))
	if label == "" {
		return "/"
	}
	return strings.ReplaceAll(label, "/", "/\n")
}

// dotQuote renders s as a DOT string literal; newlines become the \n escape
func dotQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}

// WriteMetadataYAML writes the crawl summary as YAML
func WriteMetadataYAML(w io.Writer, meta models.CrawlMetadata) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&meta); err != nil {
		return err
	}
	return enc.Close()
}

// writeFile creates path and streams content into it through write
func writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: create dir for %s: %w", utils.ErrFilesystem, path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", utils.ErrFilesystem, path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("%w: write %s: %w", utils.ErrFilesystem, path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("%w: sync %s: %w", utils.ErrFilesystem, path, err)
	}
	return f.Close()
}
