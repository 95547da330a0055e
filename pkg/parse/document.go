package parse

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"

	"github.com/Sriram-PR/gdao-harvester/pkg/utils"
)

// Document is a parsed HTML page that can be queried for links, elements and text
type Document struct {
	doc  *goquery.Document
	base *url.URL // Final URL of the page; relative references resolve against it
}

// NewDocument parses body as HTML. A <base href> element overrides base for link resolution
func NewDocument(body []byte, base *url.URL) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing HTML: %w", utils.ErrParsing, err)
	}

	d := &Document{doc: doc, base: base}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok && base != nil {
		if parsed, err := url.Parse(strings.TrimSpace(href)); err == nil {
			d.base = base.ResolveReference(parsed)
		}
	}
	return d, nil
}

// Base returns the URL relative links on this page resolve against
func (d *Document) Base() *url.URL {
	return d.base
}

// Links returns the raw href values of all anchors in document order
func (d *Document) Links() []string {
	return d.LinksWithin("body")
}

// LinksWithin returns raw href values of anchors under selector, in document order
func (d *Document) LinksWithin(selector string) []string {
	var hrefs []string
	d.doc.Find(selector).Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs
}

// Find exposes the underlying selection for callers that need more than text
func (d *Document) Find(selector string) *goquery.Selection {
	return d.doc.Find(selector)
}

// Text returns the cleaned text of the first element matching selector, or ""
func (d *Document) Text(selector string) string {
	return CleanText(d.doc.Find(selector).First().Text())
}

// Title returns the cleaned <title> text
func (d *Document) Title() string {
	return d.Text("title")
}

// CleanText collapses whitespace and applies NFC normalization so composed and decomposed forms compare equal
func CleanText(s string) string {
	return norm.NFC.String(utils.CollapseWhitespace(s))
}
