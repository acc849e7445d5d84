package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RotatingWriter is an io.Writer over a single log file that rotates by
// size: engine.log becomes engine.log.1, .1 becomes .2, and so on up to
// a fixed count, after which the oldest file is dropped.
type RotatingWriter struct {
	path     string
	maxSize  int64
	maxFiles int

	mu            sync.Mutex
	file          *os.File
	written       int64
	immediateSync bool
}

// NewRotatingWriter opens (creating if needed) the log file at path,
// rotating once it exceeds maxSizeMB and keeping at most maxFiles
// rotated generations. Writes sync to disk immediately by default so a
// reader following the file sees records as they land.
func NewRotatingWriter(path string, maxSizeMB, maxFiles int) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	w := &RotatingWriter{
		path:          path,
		maxSize:       int64(maxSizeMB) << 20,
		maxFiles:      maxFiles,
		immediateSync: true,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// SetImmediateSync toggles the per-write fsync. Turning it off trades
// follow-the-file visibility for write throughput.
func (w *RotatingWriter) SetImmediateSync(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.immediateSync = enabled
}

// Write appends p, rotating first if the file would exceed its size
// budget. A failed rotation is reported to stderr and the record still
// goes to the current file: losing rotation is better than losing logs.
func (w *RotatingWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.written+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}

	n, err = w.file.Write(p)
	w.written += int64(n)

	if w.immediateSync && err == nil {
		_ = w.file.Sync()
	}
	return n, err
}

// Sync flushes the current file to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

// Close closes the current file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = f
	w.written = info.Size()
	return nil
}

// rotate shifts the generation chain one step: the highest-numbered file
// is removed, every lower generation moves up one, and the live file
// becomes generation 1.
func (w *RotatingWriter) rotate() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("close log file for rotation: %w", err)
		}
		w.file = nil
	}

	if w.maxFiles < 1 {
		_ = os.Remove(w.path)
	} else {
		_ = os.Remove(w.generation(w.maxFiles))
		for i := w.maxFiles - 1; i >= 1; i-- {
			_ = os.Rename(w.generation(i), w.generation(i+1))
		}
		if _, err := os.Stat(w.path); err == nil {
			if err := os.Rename(w.path, w.generation(1)); err != nil {
				return fmt.Errorf("rotate log file: %w", err)
			}
		}
	}

	w.written = 0
	return w.open()
}

func (w *RotatingWriter) generation(n int) string {
	return fmt.Sprintf("%s.%d", w.path, n)
}
