package process

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/gdao-harvester/pkg/models"
	"github.com/Sriram-PR/gdao-harvester/pkg/parse"
	"github.com/Sriram-PR/gdao-harvester/pkg/utils"
)

// DefaultTitleSuffix is appended by the archive to every page title
const DefaultTitleSuffix = " · Grateful Dead Archive Online"

var (
	isoDatePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	venuePattern   = regexp.MustCompile(`Live at (.+?) on \d{4}-\d{2}-\d{2}`)
	tagSeparators  = regexp.MustCompile(`[,;]`)
)

// Extractor is one metadata strategy: a pure function from a parsed detail page to a partial record
type Extractor func(doc *parse.Document) models.ItemFields

// MetadataExtractor runs its strategies in order; earlier strategies win for every field they fill
type MetadataExtractor struct {
	strategies []Extractor
}

// NewMetadataExtractor returns the standard strategy list: embedded JSON-LD, then definition lists,
// then free-text patterns. JSON-LD syntax errors are logged at debug and otherwise ignored
func NewMetadataExtractor(titleSuffix string, log *logrus.Entry) *MetadataExtractor {
	jsonLD := func(doc *parse.Document) models.ItemFields {
		fields, err := ExtractJSONLD(doc)
		if err != nil {
			log.WithField("error_type", utils.CategorizeError(err)).Debugf("Ignoring structured data: %v", err)
		}
		return fields
	}
	textPatterns := func(doc *parse.Document) models.ItemFields {
		return ExtractTextPatterns(doc, titleSuffix)
	}
	return NewMetadataExtractorWith(jsonLD, ExtractDefinitionList, textPatterns)
}

// NewMetadataExtractorWith builds an extractor from an explicit strategy list
func NewMetadataExtractorWith(strategies ...Extractor) *MetadataExtractor {
	return &MetadataExtractor{strategies: strategies}
}

// Extract merges the output of every strategy left to right
func (m *MetadataExtractor) Extract(doc *parse.Document) models.ItemFields {
	parts := make([]models.ItemFields, 0, len(m.strategies))
	for _, strategy := range m.strategies {
		parts = append(parts, strategy(doc))
	}
	return MergeFields(parts...)
}

// MergeFields combines partial records: the first non-empty value wins per field, tags are unioned in order
func MergeFields(parts ...models.ItemFields) models.ItemFields {
	var merged models.ItemFields
	for _, p := range parts {
		merged.Merge(p)
	}
	return merged
}

// --- JSON-LD ---

// ExtractJSONLD reads every application/ld+json block on the page. Objects, arrays and @graph
// containers are all accepted. Blocks that fail to decode are skipped and reported as ErrParsing
func ExtractJSONLD(doc *parse.Document) (models.ItemFields, error) {
	var fields models.ItemFields
	var errs []error

	doc.Find(`script[type="application/ld+json"]`).Each(func(i int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			errs = append(errs, fmt.Errorf("%w: JSON-LD block %d: %w", utils.ErrParsing, i, err))
			return
		}
		for _, obj := range jsonLDObjects(data) {
			fields.Merge(fieldsFromJSONLD(obj))
		}
	})

	return fields, errors.Join(errs...)
}

// jsonLDObjects flattens a decoded block into its objects in document order
func jsonLDObjects(data any) []map[string]any {
	switch v := data.(type) {
	case map[string]any:
		if graph, ok := v["@graph"]; ok {
			objs := jsonLDObjects(graph)
			if len(v) > 1 { // Context or properties next to @graph
				objs = append([]map[string]any{v}, objs...)
			}
			return objs
		}
		return []map[string]any{v}
	case []any:
		var objs []map[string]any
		for _, elem := range v {
			objs = append(objs, jsonLDObjects(elem)...)
		}
		return objs
	}
	return nil
}

func fieldsFromJSONLD(obj map[string]any) models.ItemFields {
	f := models.ItemFields{
		Title:       firstString(obj, "name", "headline"),
		Description: firstString(obj, "description"),
		Creator:     firstString(obj, "creator", "author"),
		Date:        firstString(obj, "dateCreated", "datePublished"),
		Type:        firstString(obj, "genre", "@type"),
	}
	switch kw := obj["keywords"].(type) {
	case string:
		for _, tag := range tagSeparators.Split(kw, -1) {
			f.AddTag(parse.CleanText(tag))
		}
	case []any:
		for _, elem := range kw {
			f.AddTag(jsonLDString(elem))
		}
	}
	return f
}

// firstString returns the first key of obj that renders to a non-empty string
func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := jsonLDString(obj[k]); s != "" {
			return s
		}
	}
	return ""
}

// jsonLDString renders a JSON-LD value as text: strings as-is, numbers formatted, objects by
// their name, lists joined with "; "
func jsonLDString(v any) string {
	switch val := v.(type) {
	case string:
		return parse.CleanText(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case map[string]any:
		return jsonLDString(val["name"])
	case []any:
		parts := make([]string, 0, len(val))
		for _, elem := range val {
			if s := jsonLDString(elem); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}

// --- Definition lists ---

// ExtractDefinitionList maps dt/dd pairs by substring match on the lowercased key
func ExtractDefinitionList(doc *parse.Document) models.ItemFields {
	var f models.ItemFields
	setOnce := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}

	doc.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		dd := dt.NextAllFiltered("dd").First()
		if dd.Length() == 0 {
			return
		}
		key := strings.ToLower(parse.CleanText(dt.Text()))
		value := parse.CleanText(dd.Text())

		switch {
		case strings.Contains(key, "creator"):
			setOnce(&f.Creator, value)
		case strings.Contains(key, "date"):
			setOnce(&f.Date, value)
		case strings.Contains(key, "type"), strings.Contains(key, "format"):
			setOnce(&f.Type, value)
		case strings.Contains(key, "description"):
			setOnce(&f.Description, value)
		case strings.Contains(key, "tag"), strings.Contains(key, "subject"):
			anchors := dd.Find("a")
			if anchors.Length() > 0 {
				anchors.Each(func(_ int, a *goquery.Selection) {
					f.AddTag(parse.CleanText(a.Text()))
				})
				return
			}
			for _, tag := range tagSeparators.Split(value, -1) {
				f.AddTag(strings.TrimSpace(tag))
			}
		}
	})
	return f
}

// --- Free-text patterns ---

// ExtractTextPatterns takes the title from the first h1 (else <title>) without the site suffix,
// an ISO date found in that title, and a "Venue: X" tag from "Live at X on YYYY-MM-DD"
func ExtractTextPatterns(doc *parse.Document, titleSuffix string) models.ItemFields {
	title := doc.Text("h1")
	if title == "" {
		title = doc.Title()
	}
	title = StripTitleSuffix(title, titleSuffix)

	f := models.ItemFields{Title: title}
	if date := isoDatePattern.FindString(title); date != "" {
		f.Date = date
	}
	if m := venuePattern.FindStringSubmatch(title); m != nil {
		f.AddTag("Venue: " + strings.TrimSpace(m[1]))
	}
	return f
}

// StripTitleSuffix removes the archive's site name from a page title
func StripTitleSuffix(title, suffix string) string {
	suffix = strings.TrimSpace(suffix)
	if suffix == "" {
		return title
	}
	return strings.TrimSpace(strings.ReplaceAll(title, suffix, ""))
}
