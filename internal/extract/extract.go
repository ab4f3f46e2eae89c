package extract

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"speakdocs/internal/domain"
)

const (
	// MaxDocuments is the most documents accepted in one upload.
	MaxDocuments = 2
	// MaxLines is the largest accepted document, in lines.
	MaxLines = 50
)

var allowedExtensions = map[string]struct{}{
	".txt": {},
	".md":  {},
}

// FileExtractor reads plain-text files into documents. It enforces the
// upload limits (document count, file type, line count) so nothing past
// this point needs to validate input again.
type FileExtractor struct{}

func NewFileExtractor() *FileExtractor { return &FileExtractor{} }

// Extract expands globs, validates each match, and returns the documents
// in argument order.
func (e *FileExtractor) Extract(paths []string) ([]domain.Document, error) {
	var files []string
	for _, p := range paths {
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no documents given")
	}
	if len(files) > MaxDocuments {
		return nil, fmt.Errorf("you can only upload a maximum of %d documents, got %d", MaxDocuments, len(files))
	}
	var docs []domain.Document
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f))
		if _, ok := allowedExtensions[ext]; !ok {
			return nil, fmt.Errorf("%s is not a valid file type", filepath.Base(f))
		}
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		content := string(data)
		if n := lineCount(content); n > MaxLines {
			return nil, fmt.Errorf("%s exceeds the %d-line limit (has %d lines)", filepath.Base(f), MaxLines, n)
		}
		docs = append(docs, domain.Document{
			ID:      hashString(f),
			Name:    filepath.Base(f),
			Content: content,
		})
	}
	return docs, nil
}

func lineCount(s string) int {
	if s == "" {
		return 0
	}
	return len(strings.Split(strings.TrimRight(s, "\n"), "\n"))
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
