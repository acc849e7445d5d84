package compressed

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/myscale/sparse-index/internal/posting"
	"github.com/myscale/sparse-index/internal/types"
)

// Iterator reads a compressed Posting, decompressing at most one block
// ahead lazily.
type Iterator struct {
	p   *Posting
	pos int // global element index across blocks + tail

	curBlock     int
	decodedBlock []posting.Element
	decodedIdx   int // block index decodedBlock corresponds to, -1 if none
}

// NewIterator returns a posting.Iterator over a compressed Posting.
func NewIterator(p *Posting) posting.Iterator {
	return &Iterator{p: p, decodedIdx: -1}
}

func (it *Iterator) total() int {
	return it.p.RowIdsCount
}

func (it *Iterator) blockElementCount() int {
	return len(it.p.Blocks) * BlockSize
}

// elementAt returns the element at global position pos (0-based),
// decoding its containing block on demand.
func (it *Iterator) elementAt(pos int) posting.Element {
	blockCount := it.blockElementCount()
	if pos < blockCount {
		blk := pos / BlockSize
		if it.decodedIdx != blk {
			it.decodeBlock(blk)
		}
		return it.decodedBlock[pos%BlockSize]
	}
	tailPos := pos - blockCount
	mnw := posting.NegInf
	if it.p.Shape == posting.Extended && tailPos < len(it.p.TailMaxNext) {
		mnw = it.p.TailMaxNext[tailPos]
	}
	return posting.Element{RowId: it.p.TailRowIds[tailPos], Weight: it.p.TailWeights[tailPos], MaxNextWeight: mnw}
}

func (it *Iterator) decodeBlock(blk int) {
	desc := it.p.Blocks[blk]
	var prevLast types.RowId
	first := blk == 0
	if !first {
		prevLast = blockLastRowId(it.p, blk-1)
	}

	packed := it.p.rowIdsBuffer[desc.Offset : desc.Offset+desc.ByteCount]
	deltas := bitUnpack(packed, desc.BitWidth, desc.ElementCount)

	out := make([]posting.Element, desc.ElementCount)
	prev := prevLast
	if first {
		prev = ^types.RowId(0)
	}
	width := it.p.WeightWidth
	for i, d := range deltas {
		rowID := prev + d + 1
		prev = rowID

		w := StoredWeight(desc.Weights[i*width:], width, it.p.Quant)

		mnw := posting.NegInf
		if it.p.Shape == posting.Extended && len(desc.MaxNext) > 0 {
			mnw = math.Float32frombits(binary.LittleEndian.Uint32(desc.MaxNext[i*4:]))
		}
		out[i] = posting.Element{RowId: rowID, Weight: w, MaxNextWeight: mnw}
	}

	it.decodedBlock = out
	it.decodedIdx = blk
}

// blockLastRowId returns the last row id of block blk by decoding its
// deltas. This is a helper used only during sequential decode chains;
// random access patterns (SkipTo via binary search) decode forward from
// the first block they land on, so this stays linear in practice.
func blockLastRowId(p *Posting, blk int) types.RowId {
	desc := p.Blocks[blk]
	var prevLast types.RowId
	first := blk == 0
	if !first {
		prevLast = blockLastRowId(p, blk-1)
	}
	packed := p.rowIdsBuffer[desc.Offset : desc.Offset+desc.ByteCount]
	deltas := bitUnpack(packed, desc.BitWidth, desc.ElementCount)
	prev := prevLast
	if first {
		prev = ^types.RowId(0)
	}
	for _, d := range deltas {
		prev = prev + d + 1
	}
	return prev
}

func (it *Iterator) Peek() (posting.Element, bool) {
	if it.pos >= it.total() {
		return posting.Element{}, false
	}
	return it.elementAt(it.pos), true
}

func (it *Iterator) SkipTo(rowID types.RowId) (posting.Element, bool) {
	// Binary search over block first-row-ids to find the candidate block,
	// then linear scan within it (and the tail).
	blockCount := it.blockElementCount()
	if it.pos < blockCount {
		blkIdx := sort.Search(len(it.p.Blocks), func(i int) bool {
			return it.p.Blocks[i].FirstRowId >= rowID
		})
		if blkIdx > 0 {
			blkIdx--
		}
		start := blkIdx * BlockSize
		if start > it.pos {
			it.pos = start
		}
	}
	for it.pos < it.total() {
		e := it.elementAt(it.pos)
		if e.RowId >= rowID {
			if e.RowId == rowID {
				return e, true
			}
			return posting.Element{}, false
		}
		it.pos++
	}
	return posting.Element{}, false
}

func (it *Iterator) SkipToEnd() {
	it.pos = it.total()
}

func (it *Iterator) Cursor() int { return it.pos }

func (it *Iterator) Remains() int { return it.total() - it.pos }

func (it *Iterator) LastRowId() (types.RowId, bool) {
	if it.total() == 0 {
		return 0, false
	}
	return it.p.MaxRowId, true
}

func (it *Iterator) ForEachUntil(target types.RowId, f func(posting.Element)) {
	for it.pos < it.total() {
		e := it.elementAt(it.pos)
		if e.RowId > target {
			break
		}
		f(e)
		it.pos++
	}
}

func (it *Iterator) ReliableMaxNextWeight() bool {
	return it.p.Shape == posting.Extended && it.p.Quant == nil
}
