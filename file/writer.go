// Package file implements the on-disk side of a download.
//
// A Writer owns the destination file of one attempt: it is opened fresh
// (truncating) or in append mode for a resumed transfer, receives chunks in
// arrival order and tracks the write speed.
//
// Example:
//
//	w, err := file.Open(path, resume)
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//	err = w.WriteChunk(data)
package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrDirectoryTraversal indicates an attempt to access files outside allowed directories.
var ErrDirectoryTraversal = errors.New("path contains directory traversal")

// ErrWriterClosed indicates a write on a closed Writer.
var ErrWriterClosed = errors.New("writer is closed")

// Mode tells Open whether to start a file from scratch or continue it.
type Mode uint8

const (
	// ModeFresh creates or truncates the destination file.
	ModeFresh Mode = iota
	// ModeAppend appends to the existing destination file.
	ModeAppend
)

func (m Mode) String() string {
	if m == ModeAppend {
		return "append"
	}
	return "fresh"
}

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// Since returns the duration since t.
func (DefaultTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }

var defaultTimeProvider TimeProvider = DefaultTimeProvider{}

// Writer is the destination file of one download attempt.
type Writer struct {
	Path    string
	Mode    Mode
	Written uint64

	handle *os.File

	mu            sync.Mutex
	lastChunkTime time.Time
	speed         float64 // bytes per second
	timeProvider  TimeProvider
}

// ValidatePath checks if a file path is safe from directory traversal attacks.
// It returns the cleaned path or an error if the path contains traversal attempts.
func ValidatePath(path string) (string, error) {
	cleanedPath := filepath.Clean(path)

	for _, part := range strings.Split(filepath.ToSlash(cleanedPath), "/") {
		if part == ".." {
			return "", ErrDirectoryTraversal
		}
	}

	return cleanedPath, nil
}

// SafeJoin joins a peer-supplied file name onto dir. The name must be a plain
// file name: separators or traversal components are rejected.
func SafeJoin(dir, name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrDirectoryTraversal, name)
	}
	return ValidatePath(filepath.Join(dir, name))
}

// Open opens path for writing according to mode.
func Open(path string, mode Mode) (*Writer, error) {
	return OpenWithTimeProvider(path, mode, defaultTimeProvider)
}

// OpenWithTimeProvider is Open with an injected clock for deterministic speed tests.
func OpenWithTimeProvider(path string, mode Mode, tp TimeProvider) (*Writer, error) {
	safePath, err := ValidatePath(path)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Open",
			"path":     path,
			"error":    err.Error(),
		}).Error("File path validation failed")
		return nil, err
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if mode == ModeAppend {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}

	handle, err := os.OpenFile(safePath, flags, 0o644)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Open",
			"path":     safePath,
			"mode":     mode.String(),
			"error":    err.Error(),
		}).Error("Failed to open download target")
		return nil, fmt.Errorf("open %s: %w", safePath, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Open",
		"path":     safePath,
		"mode":     mode.String(),
	}).Debug("Download target opened")

	return &Writer{
		Path:          safePath,
		Mode:          mode,
		handle:        handle,
		lastChunkTime: tp.Now(),
		timeProvider:  tp,
	}, nil
}

// WriteChunk appends data to the file.
func (w *Writer) WriteChunk(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.handle == nil {
		return ErrWriterClosed
	}

	if _, err := w.handle.Write(data); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "WriteChunk",
			"path":       w.Path,
			"chunk_size": len(data),
			"error":      err.Error(),
		}).Error("Failed to write chunk")
		return fmt.Errorf("write %s: %w", w.Path, err)
	}

	w.Written += uint64(len(data))
	w.updateSpeed(uint64(len(data)))
	return nil
}

// updateSpeed folds one chunk into the exponential moving average.
func (w *Writer) updateSpeed(chunkSize uint64) {
	now := w.timeProvider.Now()
	duration := w.timeProvider.Since(w.lastChunkTime).Seconds()

	if duration > 0 {
		instant := float64(chunkSize) / duration

		// alpha = 0.3
		if w.speed == 0 {
			w.speed = instant
		} else {
			w.speed = 0.7*w.speed + 0.3*instant
		}
	}

	w.lastChunkTime = now
}

// Speed returns the smoothed write speed in bytes per second.
func (w *Writer) Speed() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.speed
}

// Close closes the file. Calling Close more than once is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.handle == nil {
		return nil
	}

	err := w.handle.Close()
	w.handle = nil
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Close",
			"path":     w.Path,
			"error":    err.Error(),
		}).Warn("Failed to close download target")
		return err
	}
	return nil
}

// Size returns the size of the file at path, or 0 and false if it does not exist.
func Size(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return 0, false
	}
	return info.Size(), true
}

// Truncate shrinks the file at path to size bytes so a resumed transfer
// appends at the offset the sender agreed to.
func Truncate(path string, size int64) error {
	if err := os.Truncate(path, size); err != nil {
		return fmt.Errorf("truncate %s: %w", path, err)
	}
	return nil
}
