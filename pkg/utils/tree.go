package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	indentPrefix    = "    "
	entryPrefix     = "├── "
	lastEntryPrefix = "└── "
	verticalLine    = "│   "
)

// SaveTreeListing writes a text tree of root (directories first, then files, case-insensitive order) to outputFilePath.
// The harvester uses it to leave an inventory of the downloaded attachments next to the item log.
func SaveTreeListing(root, outputFilePath string, log *logrus.Entry) error {
	if _, err := os.Stat(root); err != nil {
		return fmt.Errorf("%w: tree root '%s': %w", ErrFilesystem, root, err)
	}

	file, err := os.Create(outputFilePath)
	if err != nil {
		return fmt.Errorf("%w: create tree listing '%s': %w", ErrFilesystem, outputFilePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	files, err := WriteTree(writer, root)
	if err != nil {
		return fmt.Errorf("%w: writing tree for '%s': %w", ErrFilesystem, root, err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("%w: flush tree listing: %w", ErrFilesystem, err)
	}
	log.WithFields(logrus.Fields{"root": root, "files": files, "output": outputFilePath}).Info("Wrote attachment tree listing")
	return nil
}

// WriteTree renders root as a tree to w and returns the number of regular files listed.
func WriteTree(w io.Writer, root string) (int, error) {
	if _, err := fmt.Fprintf(w, "%s/\n", filepath.Base(root)); err != nil {
		return 0, err
	}
	return walkTree(w, root, "")
}

func walkTree(w io.Writer, dirPath, indent string) (int, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return 0, err
	}

	slices.SortFunc(entries, func(a, b os.DirEntry) int {
		if a.IsDir() != b.IsDir() {
			if a.IsDir() {
				return -1
			}
			return 1
		}
		return strings.Compare(strings.ToLower(a.Name()), strings.ToLower(b.Name()))
	})

	files := 0
	for i, entry := range entries {
		isLast := i == len(entries)-1
		connector, nextIndent := entryPrefix, indent+verticalLine
		if isLast {
			connector, nextIndent = lastEntryPrefix, indent+indentPrefix
		}

		if _, err := fmt.Fprintf(w, "%s%s%s\n", indent, connector, entry.Name()); err != nil {
			return files, err
		}
		if !entry.IsDir() {
			files++
			continue
		}
		n, err := walkTree(w, filepath.Join(dirPath, entry.Name()), nextIndent)
		files += n
		if err != nil {
			return files, err
		}
	}
	return files, nil
}
