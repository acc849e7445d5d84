package writer

import "sync/atomic"

// Stamper hands out monotonically increasing opstamps, one per commit.
type Stamper struct {
	next atomic.Uint64
}

// NewStamper creates a Stamper starting after start (e.g. the last
// opstamp recovered from an existing meta.json).
func NewStamper(start uint64) *Stamper {
	s := &Stamper{}
	s.next.Store(start)
	return s
}

// Advance returns the next opstamp and advances the counter.
func (s *Stamper) Advance() uint64 {
	return s.next.Add(1)
}
