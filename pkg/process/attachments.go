package process

import (
	"path"
	"strings"

	"github.com/Sriram-PR/gdao-harvester/pkg/models"
	"github.com/Sriram-PR/gdao-harvester/pkg/parse"
)

var (
	imageExtensions = map[string]bool{
		".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".tiff": true, ".webp": true,
	}
	documentExtensions = map[string]bool{
		".pdf": true, ".doc": true, ".docx": true, ".txt": true, ".rtf": true, ".odt": true,
	}
)

// ClassifyExtension returns the media class for a lowercase extension including the dot.
// ok is false for anything outside the allow-list
func ClassifyExtension(ext string) (class models.MediaClass, ok bool) {
	ext = strings.ToLower(ext)
	switch {
	case imageExtensions[ext]:
		return models.MediaImage, true
	case documentExtensions[ext]:
		return models.MediaDocument, true
	}
	return "", false
}

// DiscoverAttachments scans every hyperlink on the page and keeps those whose path extension is
// an allowed image or document type. Results are deduplicated by URL and keep page order
func DiscoverAttachments(doc *parse.Document) []models.Attachment {
	seen := make(map[string]struct{})
	var out []models.Attachment

	for _, href := range doc.Links() {
		resolved, err := parse.Resolve(href, doc.Base())
		if err != nil {
			continue
		}
		ext := strings.ToLower(path.Ext(resolved.Path))
		class, ok := ClassifyExtension(ext)
		if !ok {
			continue
		}

		u := *resolved
		u.Fragment, u.RawFragment = "", ""
		abs := u.String()
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}

		out = append(out, models.Attachment{
			URL:       abs,
			Filename:  path.Base(resolved.Path),
			Extension: ext,
			Type:      class,
		})
	}
	return out
}
