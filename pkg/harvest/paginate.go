package harvest

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sriram-PR/gdao-harvester/pkg/parse"
)

// Signal is one pagination indicator's verdict about the current listing page
type Signal int

const (
	SignalUnknown Signal = iota // Indicator not present on the page
	SignalMore                  // Another page follows
	SignalLast                  // This is the final page
)

func (s Signal) String() string {
	switch s {
	case SignalMore:
		return "more"
	case SignalLast:
		return "last"
	}
	return "unknown"
}

// resultsCountPattern matches footers like "1–25 of 37,279 results" or "26 to 50 of 300 results"
var resultsCountPattern = regexp.MustCompile(`(\d+)\s*(?:-|–|to)?\s*(\d+)?\s*of\s*([\d,]+)\s*results?`)

// Pagination combines the explicit "next" affordance (primary) with the results-count text (secondary)
type Pagination struct {
	Next         Signal
	Count        Signal
	TotalResults int // 0 when the count text was not found
}

// IsLast reports whether pagination should end after this page: the primary signal decides when present,
// otherwise the secondary. With neither, the next page is fetched and an empty listing ends the run
func (p Pagination) IsLast() bool {
	if p.Next != SignalUnknown {
		return p.Next == SignalLast
	}
	return p.Count == SignalLast
}

// Disagree reports whether both signals are present and contradict each other
func (p Pagination) Disagree() bool {
	return p.Next != SignalUnknown && p.Count != SignalUnknown && p.Next != p.Count
}

// DetectPagination inspects a listing page for the end-of-sequence signals
func DetectPagination(doc *parse.Document, page, perPage int) Pagination {
	p := Pagination{Next: nextSignal(doc, page)}
	p.Count, p.TotalResults = countSignal(doc, page, perPage)
	return p
}

// nextSignal looks for a link to the following page. A pagination widget without one means last page
func nextSignal(doc *parse.Document, page int) Signal {
	if doc.Find(`a[rel~="next"], link[rel~="next"], .pagination_next a, li.next a`).Length() > 0 {
		return SignalMore
	}

	nextNum := strconv.Itoa(page + 1)
	found := false
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		text := parse.CleanText(a.Text())
		lower := strings.ToLower(text)
		if lower == "next" || strings.HasPrefix(lower, "next ") || text == "›" || text == "»" || text == nextNum {
			found = true
			return false
		}
		return true
	})
	if found {
		return SignalMore
	}

	if doc.Find(`.pagination, nav.pagination, ul.pagination, [aria-label="Pagination"]`).Length() > 0 {
		return SignalLast
	}
	return SignalUnknown
}

// countSignal parses the "N–M of TOTAL results" text. The range end is used when shown, otherwise the page
// number is compared against ceil(TOTAL/perPage)
func countSignal(doc *parse.Document, page, perPage int) (Signal, int) {
	m := resultsCountPattern.FindStringSubmatch(parse.CleanText(doc.Find("body").Text()))
	if m == nil {
		return SignalUnknown, 0
	}
	total, err := strconv.Atoi(strings.ReplaceAll(m[3], ",", ""))
	if err != nil {
		return SignalUnknown, 0
	}

	if m[2] != "" {
		if end, err := strconv.Atoi(m[2]); err == nil {
			if end >= total {
				return SignalLast, total
			}
			return SignalMore, total
		}
	}

	if perPage <= 0 {
		return SignalUnknown, total
	}
	totalPages := (total + perPage - 1) / perPage
	if page >= totalPages {
		return SignalLast, total
	}
	return SignalMore, total
}
