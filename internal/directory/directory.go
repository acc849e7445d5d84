// Package directory implements the minimal directory abstraction the
// engine needs: atomic write/read, file open, mmap, process-exclusive
// locks, a meta.json change watcher, and a managed-file registry used for
// garbage collection. Writes go through a temp-file-then-rename so a
// crash mid-write never leaves a partial file at the final path; locks
// wrap gofrs/flock; watching wraps fsnotify.
package directory

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/mmap-go"
	"github.com/gofrs/flock"

	"github.com/myscale/sparse-index/internal/sparseerr"
)

// Directory owns one index root: file I/O, locks, the watch subscription,
// and the managed-file registry GC consults.
type Directory struct {
	root string

	mu      sync.Mutex
	managed map[string]struct{}
}

// Open returns a Directory rooted at path, creating it if necessary.
func Open(path string) (*Directory, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, sparseerr.IOFailure("create index directory", err)
	}
	return &Directory{root: path, managed: make(map[string]struct{})}, nil
}

// Root returns the directory's absolute-or-as-given root path.
func (d *Directory) Root() string { return d.root }

func (d *Directory) path(name string) string {
	return filepath.Join(d.root, name)
}

// AtomicWrite writes bytes to name via a temp file followed by a rename,
// so a crash mid-write never leaves a partially-written file at the final
// path.
func (d *Directory) AtomicWrite(name string, data []byte) error {
	target := d.path(name)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return sparseerr.IOFailure(fmt.Sprintf("write temp file for %s", name), err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return sparseerr.IOFailure(fmt.Sprintf("rename temp file into place for %s", name), err)
	}
	return nil
}

// AtomicRead reads name's full contents.
func (d *Directory) AtomicRead(name string) ([]byte, error) {
	data, err := os.ReadFile(d.path(name))
	if err != nil {
		return nil, sparseerr.IOFailure(fmt.Sprintf("read %s", name), err)
	}
	return data, nil
}

// OpenRead opens name for reading.
func (d *Directory) OpenRead(name string) (*os.File, error) {
	f, err := os.Open(d.path(name))
	if err != nil {
		return nil, sparseerr.IOFailure(fmt.Sprintf("open %s for read", name), err)
	}
	return f, nil
}

// OpenWrite creates (or truncates) name for writing.
func (d *Directory) OpenWrite(name string) (*os.File, error) {
	f, err := os.Create(d.path(name))
	if err != nil {
		return nil, sparseerr.IOFailure(fmt.Sprintf("open %s for write", name), err)
	}
	return f, nil
}

// Mmap is a read-only memory-mapped file handle.
type Mmap struct {
	mmap.MMap
	file *os.File
}

// Close unmaps and closes the underlying file.
func (m *Mmap) Close() error {
	if err := m.MMap.Unmap(); err != nil {
		return err
	}
	return m.file.Close()
}

// MmapRead opens name and memory-maps it read-only. The POSIX madvise
// hint is informational and is left to mmap-go's default behavior.
func (d *Directory) MmapRead(name string) (*Mmap, error) {
	f, err := os.Open(d.path(name))
	if err != nil {
		return nil, sparseerr.IOFailure(fmt.Sprintf("open %s for mmap", name), err)
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, sparseerr.IOFailure(fmt.Sprintf("mmap %s", name), err)
	}
	return &Mmap{MMap: m, file: f}, nil
}

// LockHandle is a process-exclusive advisory lock acquired via
// AcquireLock.
type LockHandle struct {
	fl *flock.Flock
}

// Unlock releases the lock. Safe to call multiple times.
func (h *LockHandle) Unlock() error {
	return h.fl.Unlock()
}

// Name constants for the two locks the core requires.
const (
	WriterLockName = ".sparse-writer-lock"
	MetaLockName   = ".sparse-meta-lock"
)

// AcquireLock blocks until the named process-exclusive lock is held.
// name should be one of WriterLockName or MetaLockName.
func (d *Directory) AcquireLock(name string) (*LockHandle, error) {
	fl := flock.New(d.path(name))
	if err := fl.Lock(); err != nil {
		return nil, sparseerr.LockFailure(fmt.Sprintf("acquire lock %s", name), err)
	}
	return &LockHandle{fl: fl}, nil
}

// TryAcquireLock is the non-blocking variant, returning ok=false rather
// than an error when the lock is already held elsewhere.
func (d *Directory) TryAcquireLock(name string) (*LockHandle, bool, error) {
	fl := flock.New(d.path(name))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, false, sparseerr.LockFailure(fmt.Sprintf("try-acquire lock %s", name), err)
	}
	if !ok {
		return nil, false, nil
	}
	return &LockHandle{fl: fl}, true, nil
}

// RegisterFileAsManaged marks name as owned by the directory for GC
// purposes.
func (d *Directory) RegisterFileAsManaged(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.managed[name] = struct{}{}
}

// GarbageCollect deletes every managed file not present in live.
func (d *Directory) GarbageCollect(live map[string]struct{}) (deleted []string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for name := range d.managed {
		if _, ok := live[name]; ok {
			continue
		}
		if rmErr := os.Remove(d.path(name)); rmErr != nil && !os.IsNotExist(rmErr) {
			return deleted, sparseerr.IOFailure(fmt.Sprintf("gc remove %s", name), rmErr)
		}
		delete(d.managed, name)
		deleted = append(deleted, name)
	}
	return deleted, nil
}
