package utils

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func testTreeLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func TestWriteTree_DirectoriesFirst(t *testing.T) {
	root := filepath.Join(t.TempDir(), "attachments")
	for _, dir := range []string{"101", "7"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			t.Fatal(err)
		}
	}
	files := map[string]string{
		"101/abcd1234_poster.jpg": "x",
		"7/0f0f0f0f_setlist.pdf":  "y",
		"readme.txt":              "z",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	n, err := WriteTree(&buf, root)
	if err != nil {
		t.Fatalf("WriteTree() error = %v", err)
	}
	if n != 3 {
		t.Errorf("file count = %d, want 3", n)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{
		"attachments/",
		"├── 101",
		"│   └── abcd1234_poster.jpg",
		"├── 7",
		"│   └── 0f0f0f0f_setlist.pdf",
		"└── readme.txt",
	}
	if strings.Join(lines, "\n") != strings.Join(want, "\n") {
		t.Errorf("tree mismatch:\n%s\nwant:\n%s", buf.String(), strings.Join(want, "\n"))
	}
}

func TestSaveTreeListing_MissingRoot(t *testing.T) {
	tmp := t.TempDir()
	err := SaveTreeListing(filepath.Join(tmp, "nope"), filepath.Join(tmp, "out.txt"), testTreeLogger())
	if err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestSaveTreeListing_WritesFile(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "attachments")
	if err := os.MkdirAll(filepath.Join(root, "1"), 0755); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(tmp, "tree.txt")
	if err := SaveTreeListing(root, out, testTreeLogger()); err != nil {
		t.Fatalf("SaveTreeListing() error = %v", err)
	}
	content, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "└── 1") {
		t.Errorf("listing missing directory entry: %s", content)
	}
}
