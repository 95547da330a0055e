package process

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/gdao-harvester/pkg/parse"
)

// DefaultItemPattern matches item detail paths ending in the numeric item id and captures it
var DefaultItemPattern = regexp.MustCompile(`^/items/show/(\d+)$`)

// ItemLink is a candidate detail page found on a listing page
type ItemLink struct {
	URL    string // Canonical: absolute, no query or fragment
	ItemID string
}

// ExtractLinks resolves every anchor on the page and returns the canonical in-scope targets,
// deduplicated, in the order they first appear
func ExtractLinks(doc *parse.Document, scope parse.Scope, log *logrus.Entry) []string {
	hrefs := doc.Links()
	seen := make(map[string]struct{}, len(hrefs))
	links := make([]string, 0, len(hrefs))
	skipped := 0

	for _, href := range hrefs {
		canonical, resolved, err := parse.Normalize(href, doc.Base())
		if err != nil {
			skipped++
			continue
		}
		if !scope.InScope(resolved) {
			skipped++
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		links = append(links, canonical)
	}

	log.WithFields(logrus.Fields{"anchors": len(hrefs), "kept": len(links), "skipped": skipped}).Trace("Extracted links")
	return links
}

// ExtractItemLinks returns the item detail links on a listing page in discovery order.
// Only links on the listing page's own host are kept.
// pattern must capture the item id in its first group; nil uses DefaultItemPattern
func ExtractItemLinks(doc *parse.Document, pattern *regexp.Regexp) []ItemLink {
	if pattern == nil {
		pattern = DefaultItemPattern
	}
	host := ""
	if base := doc.Base(); base != nil {
		host = base.Hostname()
	}
	seen := make(map[string]struct{})
	var items []ItemLink

	for _, href := range doc.Links() {
		canonical, resolved, err := parse.Normalize(href, doc.Base())
		if err != nil {
			continue
		}
		if host != "" && !strings.EqualFold(resolved.Hostname(), host) {
			continue
		}
		m := pattern.FindStringSubmatch(resolved.Path)
		if m == nil {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}

		id := ""
		if len(m) > 1 {
			id = m[1]
		}
		items = append(items, ItemLink{URL: canonical, ItemID: id})
	}
	return items
}

// ItemID returns the id captured by pattern from rawURL's path, or "" when it does not match
func ItemID(rawURL string, pattern *regexp.Regexp) string {
	if pattern == nil {
		pattern = DefaultItemPattern
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	m := pattern.FindStringSubmatch(u.Path)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
