// Package logfile is a size-rotated log file. Rotated files are compressed
// with zstd and only the newest few are kept.
package logfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const archiveTimeFormat = "20060102T150405.000000000"

// Options configure a Writer.
type Options struct {
	// MaxSize is the size in bytes at which the file is rotated - defaults to 10 MiB
	MaxSize int64
	// Keep is the number of compressed archives kept - defaults to 3
	Keep int
	// CompressionLevel is a zstd level (1-22) - defaults to 3
	CompressionLevel int
}

// Writer is an io.WriteCloser appending to a log file.
type Writer struct {
	path    string
	maxSize int64
	keep    int
	encoder *zstd.Encoder

	mu   sync.Mutex
	file *os.File
	size int64
}

// Open opens path for appending, creating it and its directory if needed.
func Open(path string, opts Options) (*Writer, error) {
	if opts.MaxSize <= 0 {
		opts.MaxSize = 10 << 20
	}
	if opts.Keep <= 0 {
		opts.Keep = 3
	}
	if opts.CompressionLevel <= 0 {
		opts.CompressionLevel = 3
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(opts.CompressionLevel)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	w := &Writer{
		path:    path,
		maxSize: opts.MaxSize,
		keep:    opts.Keep,
		encoder: encoder,
	}
	if err := w.open(); err != nil {
		_ = encoder.Close()
		return nil, err
	}
	if w.size >= w.maxSize {
		if err := w.rotate(); err != nil {
			_ = w.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Writer) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// Write implements io.Writer. The file is rotated before a write that would
// take it past the size limit.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// rotate compresses the current file into an archive and starts a new one.
// w.mu must be held.
func (w *Writer) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	w.file = nil

	data, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("failed to read log file: %w", err)
	}

	archive := fmt.Sprintf("%s.%s.zst", w.path, time.Now().UTC().Format(archiveTimeFormat))
	if err := os.WriteFile(archive, w.encoder.EncodeAll(data, nil), 0o600); err != nil {
		return fmt.Errorf("failed to write log archive: %w", err)
	}
	if err := os.Remove(w.path); err != nil {
		return fmt.Errorf("failed to remove rotated log: %w", err)
	}

	if err := w.open(); err != nil {
		return err
	}
	return w.prune()
}

// prune removes the oldest archives beyond the keep limit.
func (w *Writer) prune() error {
	archives, err := w.archives()
	if err != nil {
		return err
	}
	for len(archives) > w.keep {
		if err := os.Remove(archives[0]); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove old log archive: %w", err)
		}
		archives = archives[1:]
	}
	return nil
}

func (w *Writer) archives() ([]string, error) {
	matches, err := filepath.Glob(w.path + ".*.zst")
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// Archives returns the compressed archives, oldest first.
func (w *Writer) Archives() ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.archives()
}

// Close closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var err error
	if w.file != nil {
		err = w.file.Close()
		w.file = nil
	}
	if w.encoder != nil {
		_ = w.encoder.Close()
		w.encoder = nil
	}
	return err
}
