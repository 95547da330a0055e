package process

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sriram-PR/gdao-harvester/pkg/models"
)

func TestDiscoverAttachments_Classification(t *testing.T) {
	page := `<body>
		<a href="/files/original/setlist.pdf">Setlist</a>
		<a href="/files/original/poster.jpg">Poster</a>
		<a href="/files/original/show.mp3">Audio</a>
	</body>`
	doc := newDoc(t, page, "https://www.gdao.org/items/show/5")

	atts := DiscoverAttachments(doc)

	assert.Equal(t, []models.Attachment{
		{URL: "https://www.gdao.org/files/original/setlist.pdf", Filename: "setlist.pdf", Extension: ".pdf", Type: models.MediaDocument},
		{URL: "https://www.gdao.org/files/original/poster.jpg", Filename: "poster.jpg", Extension: ".jpg", Type: models.MediaImage},
	}, atts)
}

func TestDiscoverAttachments_DedupAndCase(t *testing.T) {
	page := `<body>
		<a href="scan.TIFF">Scan</a>
		<a href="scan.TIFF#p2">Scan page 2</a>
		<a href="https://cdn.gdao.org/letter.docx?v=2">Letter</a>
		<a href="/items/show/5">Self</a>
		<a href="mailto:x@y.org">Mail</a>
	</body>`
	doc := newDoc(t, page, "https://www.gdao.org/files/")

	atts := DiscoverAttachments(doc)

	assert.Len(t, atts, 2)
	assert.Equal(t, "https://www.gdao.org/files/scan.TIFF", atts[0].URL)
	assert.Equal(t, ".tiff", atts[0].Extension)
	assert.Equal(t, models.MediaImage, atts[0].Type)
	assert.Equal(t, "https://cdn.gdao.org/letter.docx?v=2", atts[1].URL)
	assert.Equal(t, "letter.docx", atts[1].Filename)
	assert.Equal(t, models.MediaDocument, atts[1].Type)
}

func TestClassifyExtension(t *testing.T) {
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".webp", ".JPG"} {
		class, ok := ClassifyExtension(ext)
		assert.True(t, ok, ext)
		assert.Equal(t, models.MediaImage, class, ext)
	}
	for _, ext := range []string{".pdf", ".doc", ".docx", ".txt", ".rtf", ".odt"} {
		class, ok := ClassifyExtension(ext)
		assert.True(t, ok, ext)
		assert.Equal(t, models.MediaDocument, class, ext)
	}
	for _, ext := range []string{".mp3", ".html", "", ".zip"} {
		_, ok := ClassifyExtension(ext)
		assert.False(t, ok, ext)
	}
}
