// Package bitmap implements the alive-row bitmap: an external
// byte-packed boolean vector (LSB = row 0) filtering candidate rows at
// query time. An absent bitmap means every row is alive.
package bitmap

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/myscale/sparse-index/internal/types"
)

// Alive wraps the wire-format byte-packed bitmap with a roaring.Bitmap for
// fast membership queries during the query executor's main loop. Queries
// at high row cardinality are dominated by is_alive checks; roaring's
// compressed-container representation keeps those checks close to O(1)
// without materializing a full dense bit array per query.
type Alive struct {
	core *roaring.Bitmap
}

// FromBytes parses the external byte-packed wire bitmap. A nil or empty
// byte slice means "no bitmap": callers should treat that case as
// "everyone alive" rather than calling FromBytes at all.
func FromBytes(b []byte) *Alive {
	bm := roaring.New()
	for byteIdx, v := range b {
		if v == 0 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if v&(1<<uint(bit)) != 0 {
				bm.Add(uint32(byteIdx*8 + bit))
			}
		}
	}
	return &Alive{core: bm}
}

// IsAlive reports whether row is marked alive. A nil receiver stands for
// "no bitmap" and reports every row alive.
func (a *Alive) IsAlive(row types.RowId) bool {
	if a == nil {
		return true
	}
	return a.core.Contains(row)
}

// Cardinality returns the number of alive rows. Only meaningful on a
// non-nil Alive; callers holding a nil bitmap already know "everyone is
// alive" and should consult the segment's own row count instead.
func (a *Alive) Cardinality() uint64 {
	return a.core.GetCardinality()
}

// ForEach calls fn once per alive row, in ascending order.
func (a *Alive) ForEach(fn func(row types.RowId)) {
	it := a.core.Iterator()
	for it.HasNext() {
		fn(it.Next())
	}
}

// ToBytes re-serializes the bitmap to the external wire format, used by
// tests and by hosts constructing a bitmap incrementally.
func (a *Alive) ToBytes(maxRow types.RowId) []byte {
	out := make([]byte, maxRow/8+1)
	it := a.core.Iterator()
	for it.HasNext() {
		row := it.Next()
		out[row/8] |= 1 << (row % 8)
	}
	return out
}
