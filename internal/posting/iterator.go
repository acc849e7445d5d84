package posting

import "github.com/myscale/sparse-index/internal/types"

// Iterator is the uniform posting-traversal contract, implemented by both
// the in-memory List and the block-compressed reader in the compressed
// subpackage.
type Iterator interface {
	// Peek returns the current element in de-quantized form, or ok=false
	// at end.
	Peek() (Element, bool)
	// SkipTo advances the cursor to the first element with
	// row_id >= rowID. Returns the element iff it equals rowID exactly.
	SkipTo(rowID types.RowId) (Element, bool)
	// SkipToEnd advances past the last element.
	SkipToEnd()
	// Cursor returns the current zero-based position.
	Cursor() int
	// Remains returns the number of elements still ahead, including the
	// current one.
	Remains() int
	// LastRowId returns the row id of the posting's last element in
	// constant time.
	LastRowId() (types.RowId, bool)
	// ForEachUntil applies f to each element with row_id <= target in
	// ascending order, advancing the cursor past them.
	ForEachUntil(target types.RowId, f func(Element))
	// ReliableMaxNextWeight is true only for extended, non-quantized
	// postings; it gates pruning eligibility.
	ReliableMaxNextWeight() bool
}

// listIterator is the Iterator implementation over an in-memory List.
type listIterator struct {
	list *List
	pos  int
}

// NewIterator returns an Iterator over an in-memory posting list.
func NewIterator(l *List) Iterator {
	return &listIterator{list: l}
}

func (it *listIterator) Peek() (Element, bool) {
	if it.pos >= len(it.list.Elements) {
		return Element{}, false
	}
	return it.list.Elements[it.pos], true
}

func (it *listIterator) SkipTo(rowID types.RowId) (Element, bool) {
	for it.pos < len(it.list.Elements) && it.list.Elements[it.pos].RowId < rowID {
		it.pos++
	}
	if it.pos < len(it.list.Elements) && it.list.Elements[it.pos].RowId == rowID {
		return it.list.Elements[it.pos], true
	}
	return Element{}, false
}

func (it *listIterator) SkipToEnd() {
	it.pos = len(it.list.Elements)
}

func (it *listIterator) Cursor() int { return it.pos }

func (it *listIterator) Remains() int {
	return len(it.list.Elements) - it.pos
}

func (it *listIterator) LastRowId() (types.RowId, bool) {
	return it.list.LastRowId()
}

func (it *listIterator) ForEachUntil(target types.RowId, f func(Element)) {
	for it.pos < len(it.list.Elements) && it.list.Elements[it.pos].RowId <= target {
		f(it.list.Elements[it.pos])
		it.pos++
	}
}

func (it *listIterator) ReliableMaxNextWeight() bool {
	return it.list.Shape == Extended && it.list.Quant == nil
}
