// Package export writes the transcript as a plain-text file.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const DefaultPrefix = "urdu-transcript"

// ErrEmptyTranscript is returned when there is nothing to export.
var ErrEmptyTranscript = errors.New("transcript is empty")

// FileName returns <prefix>-YYYY-MM-DD.txt for the UTC date of t.
func FileName(prefix string, t time.Time) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s-%s.txt", prefix, t.UTC().Format("2006-01-02"))
}

// Content returns the bytes to export. The text is written as is.
func Content(text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyTranscript
	}
	return []byte(text), nil
}

// Write saves text into dir and returns the written path.
func Write(dir, prefix, text string, t time.Time) (string, error) {
	data, err := Content(text)
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, FileName(prefix, t))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return path, nil
}
