// Package segment implements segment identity and a census-style
// tracked-metadata inventory: a SegmentMeta handle is a reference-counted
// token whose existence forbids GC from deleting its files.
package segment

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Id is a segment's identity: a random 128-bit UUID.
type Id uuid.UUID

// NewId generates a fresh random segment id.
func NewId() Id {
	return Id(uuid.New())
}

func (id Id) String() string {
	return uuid.UUID(id).String()
}

// ParseId parses a segment id previously produced by Id.String(), as
// stored in meta.json segment records.
func ParseId(s string) (Id, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return Id{}, err
	}
	return Id(parsed), nil
}

// FileName derives one of the segment's on-disk file names. kind is one
// of "headers", "postings", "row_ids", "blocks", or "meta".
func (id Id) FileName(kind string) string {
	return fmt.Sprintf("%s.%s", id.String(), kind)
}

// Meta is the tracked metadata for one segment. Its lifetime — pinned by
// the refcount below — bounds the lifetime of the files it names.
type Meta struct {
	Directory   string
	SegmentId   Id
	RowsCount   uint32
	KeepTemp    bool

	refcount *int32
}

// NewMeta creates a Meta with an initial refcount of 1, registering it
// with the process-wide census so GC can discover it.
func NewMeta(dir string, id Id, rows uint32) *Meta {
	rc := int32(1)
	m := &Meta{Directory: dir, SegmentId: id, RowsCount: rows, refcount: &rc}
	defaultCensus.track(m)
	return m
}

// Clone increments the refcount and returns a new handle sharing the same
// underlying counter; both must be Released independently.
func (m *Meta) Clone() *Meta {
	atomic.AddInt32(m.refcount, 1)
	return &Meta{Directory: m.Directory, SegmentId: m.SegmentId, RowsCount: m.RowsCount, KeepTemp: m.KeepTemp, refcount: m.refcount}
}

// Release decrements the refcount. When it reaches zero the segment's
// files become eligible for garbage collection (the census no longer
// reports them as live).
func (m *Meta) Release() {
	if atomic.AddInt32(m.refcount, -1) == 0 {
		defaultCensus.untrack(m)
	}
}

// LiveFiles enumerates the on-disk files this segment owns.
func (m *Meta) LiveFiles(compressed bool) []string {
	if compressed {
		return []string{
			m.SegmentId.FileName("headers"),
			m.SegmentId.FileName("row_ids"),
			m.SegmentId.FileName("blocks"),
			m.SegmentId.FileName("meta"),
		}
	}
	return []string{
		m.SegmentId.FileName("headers"),
		m.SegmentId.FileName("postings"),
		m.SegmentId.FileName("meta"),
	}
}

// census is the process-wide tracked-object inventory: while a Meta's
// refcount is nonzero, its files are considered live for GC purposes.
type census struct {
	mu    sync.Mutex
	alive map[Id]*Meta
}

var defaultCensus = &census{alive: make(map[Id]*Meta)}

func (c *census) track(m *Meta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive[m.SegmentId] = m
}

func (c *census) untrack(m *Meta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.alive, m.SegmentId)
}

// LiveSegmentFiles returns the union of files referenced by every
// currently-tracked (nonzero-refcount) segment, compressed or not.
func LiveSegmentFiles(compressed bool) map[string]struct{} {
	defaultCensus.mu.Lock()
	defer defaultCensus.mu.Unlock()
	live := make(map[string]struct{})
	for _, m := range defaultCensus.alive {
		for _, f := range m.LiveFiles(compressed) {
			live[f] = struct{}{}
		}
	}
	return live
}
