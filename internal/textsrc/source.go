// Package textsrc reads the text to be spoken from files, standard input or
// the clipboard, and can strip markdown formatting from it.
package textsrc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/mitchellh/go-homedir"
)

// MaxInputSize bounds how much text is read from any source.
const MaxInputSize = 10 << 20

var (
	// ErrInputTooLarge is returned for input above MaxInputSize.
	ErrInputTooLarge = errors.New("input too large")

	// ErrClipboardUnavailable is returned when no clipboard utility exists.
	ErrClipboardUnavailable = errors.New("clipboard not available")
)

var markdownExtensions = []string{".md", ".mdown", ".mkdn", ".mkd", ".markdown"}

// FromReader reads all text from r.
func FromReader(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, MaxInputSize+1))
	if err != nil {
		return "", fmt.Errorf("unable to read from reader: %w", err)
	}
	if len(b) > MaxInputSize {
		return "", fmt.Errorf("%w: more than %s", ErrInputTooLarge, humanize.IBytes(MaxInputSize))
	}
	return string(b), nil
}

// FromFile reads the file at path. A leading ~ is expanded.
func FromFile(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("unable to expand path: %w", err)
	}

	f, err := os.Open(expanded)
	if err != nil {
		return "", fmt.Errorf("unable to open file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	text, err := FromReader(f)
	if err != nil {
		return "", err
	}
	log.Debug("Read file", "path", expanded, "size", humanize.Bytes(uint64(len(text))))
	return text, nil
}

// FromClipboard reads the system clipboard.
func FromClipboard() (string, error) {
	if clipboard.Unsupported {
		return "", ErrClipboardUnavailable
	}
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", fmt.Errorf("unable to read clipboard: %w", err)
	}
	if len(text) > MaxInputSize {
		return "", fmt.Errorf("%w: more than %s", ErrInputTooLarge, humanize.IBytes(MaxInputSize))
	}
	return text, nil
}

// IsMarkdownFile reports whether path has a markdown file extension.
func IsMarkdownFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, v := range markdownExtensions {
		if ext == v {
			return true
		}
	}
	return false
}
