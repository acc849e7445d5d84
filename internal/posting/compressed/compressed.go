// Package compressed implements the block-compressed posting list
// layout: row ids partitioned into 128-element blocks and bit-packed
// against the previous block's last row id, weights stored densely per
// block, and a variable-byte tail for the remainder.
package compressed

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"

	"github.com/myscale/sparse-index/internal/posting"
	"github.com/myscale/sparse-index/internal/quant"
	"github.com/myscale/sparse-index/internal/sparseerr"
	"github.com/myscale/sparse-index/internal/types"
)

// BlockSize is the fixed element count per compressed block.
const BlockSize = 128

// BlockDescriptor describes one full 128-element block.
type BlockDescriptor struct {
	FirstRowId   types.RowId
	Offset       int    // byte offset into the posting's compressed row-id buffer
	ByteCount    int    // compressed byte length of this block's row ids
	ElementCount int    // always BlockSize for full blocks
	BitWidth     uint8  // bits per delta
	Weights      []byte // BlockSize weights, WeightWidth bytes each
	MaxNext      []byte // BlockSize max_next_weight f32 values, only if Shape==Extended
}

// Posting is the compressed, in-memory representation of one dimension's
// posting: a sequence of full blocks plus a variable-byte tail. It is the
// pre-mmap staging form built by Builder; the mmap inverted index encodes
// this same content into the on-disk row_ids/blocks files (see
// internal/invindex).
type Posting struct {
	Shape        posting.Shape
	Quant        *quant.Param
	WeightWidth  int // bytes per stored block weight: 1 (u8/quantized), 2 (f16), 4 (f32)
	Blocks       []BlockDescriptor
	TailRowIds   []types.RowId
	TailWeights  []float32
	TailMaxNext  []float32
	RowIdsCount  int
	MaxRowId     types.RowId
	rowIdsBuffer []byte
	lastBlockRow types.RowId
}

// LastBlockRowId returns the final row id of the last full block, the
// reference point tail deltas are encoded against. ok=false when the
// posting holds no full blocks.
func (p *Posting) LastBlockRowId() (types.RowId, bool) {
	return p.lastBlockRow, len(p.Blocks) > 0
}

// WeightWidthFor maps a (quantized, element type) pair to the byte width
// block weights are stored at. Quantized postings always store one byte.
func WeightWidthFor(quantized bool, elementType string) int {
	switch {
	case quantized, elementType == "u8":
		return 1
	case elementType == "f16":
		return 2
	default:
		return 4
	}
}

// PutStoredWeight encodes w into dst at the given storage width. q is the
// posting's quantization parameter, nil when storage is not quantized.
func PutStoredWeight(dst []byte, width int, w float32, q *quant.Param) {
	switch {
	case q != nil:
		dst[0] = quant.Quantize(w, *q)
	case width == 1:
		dst[0] = byte(clamp255(w))
	case width == 2:
		binary.LittleEndian.PutUint16(dst, uint16(types.F16FromF32(w)))
	default:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(w))
	}
}

// StoredWeight is the inverse of PutStoredWeight, returning the weight in
// its original float32 domain.
func StoredWeight(src []byte, width int, q *quant.Param) float32 {
	switch {
	case q != nil:
		return quant.Dequantize(src[0], *q)
	case width == 1:
		return float32(src[0])
	case width == 2:
		return types.Float16(binary.LittleEndian.Uint16(src)).ToF32()
	default:
		return math.Float32frombits(binary.LittleEndian.Uint32(src))
	}
}

// RowIdsBytes returns the concatenated bit-packed delta bytes for every
// full block, in block order, as written into the mmap row_ids file.
func (p *Posting) RowIdsBytes() []byte { return p.rowIdsBuffer }

// Builder constructs a compressed Posting from the same upsert discipline
// as posting.Builder.
type Builder struct {
	shape       posting.Shape
	quantize    bool
	weightWidth int
	elems       []posting.Element
}

// NewBuilder creates a compressed posting builder storing block weights at
// weightWidth bytes each (see WeightWidthFor). Quantize+Extended is
// illegal for the same reason as the simple builder, and quantized storage
// is always one byte wide.
func NewBuilder(shape posting.Shape, quantize bool, weightWidth int) (*Builder, error) {
	if shape == posting.Extended && quantize {
		return nil, fmt.Errorf("compressed posting: extended postings cannot be quantized")
	}
	switch weightWidth {
	case 1, 2, 4:
	default:
		return nil, fmt.Errorf("compressed posting: unsupported weight width %d", weightWidth)
	}
	if quantize && weightWidth != 1 {
		return nil, fmt.Errorf("compressed posting: quantized weights are stored as one byte, got width %d", weightWidth)
	}
	return &Builder{shape: shape, quantize: quantize, weightWidth: weightWidth}, nil
}

// AddSorted appends elements that are already in strictly ascending
// row-id order and already carry their final MaxNextWeight (i.e. produced
// by posting.Builder.Build, having already gone through its
// upsert/propagate pipeline).
func (b *Builder) AddSorted(elems []posting.Element) {
	b.elems = append(b.elems, elems...)
}

// Build performs the block chunking, bit-packing, and tail encoding.
func (b *Builder) Build() (*Posting, error) {
	p := &Posting{Shape: b.shape, WeightWidth: b.weightWidth}
	if len(b.elems) == 0 {
		return p, nil
	}

	if sparseerr.DebugAssertions {
		for i := 1; i < len(b.elems); i++ {
			if b.elems[i-1].RowId >= b.elems[i].RowId {
				return nil, sparseerr.Violation("compressed posting input not strictly ascending")
			}
		}
	}

	if b.quantize {
		weights := make([]float32, len(b.elems))
		for i, e := range b.elems {
			weights[i] = e.Weight
		}
		_, param := quant.QuantizeSlice(weights)
		p.Quant = &param
	}

	p.RowIdsCount = len(b.elems)
	p.MaxRowId = b.elems[len(b.elems)-1].RowId

	full := len(b.elems) / BlockSize
	var rowIdBuf []byte
	var prevLast types.RowId

	for blk := 0; blk < full; blk++ {
		chunk := b.elems[blk*BlockSize : (blk+1)*BlockSize]
		desc, packed := packBlock(chunk, prevLast, blk == 0)
		desc.Offset = len(rowIdBuf)
		desc.ByteCount = len(packed)
		rowIdBuf = append(rowIdBuf, packed...)

		desc.Weights = make([]byte, BlockSize*b.weightWidth)
		for i, e := range chunk {
			PutStoredWeight(desc.Weights[i*b.weightWidth:], b.weightWidth, e.Weight, p.Quant)
		}
		if b.shape == posting.Extended {
			desc.MaxNext = make([]byte, BlockSize*4)
			for i, e := range chunk {
				binary.LittleEndian.PutUint32(desc.MaxNext[i*4:], math.Float32bits(e.MaxNextWeight))
			}
		}

		p.Blocks = append(p.Blocks, desc)
		prevLast = chunk[len(chunk)-1].RowId
	}
	p.rowIdsBuffer = rowIdBuf
	p.lastBlockRow = prevLast

	tail := b.elems[full*BlockSize:]
	for _, e := range tail {
		p.TailRowIds = append(p.TailRowIds, e.RowId)
		p.TailWeights = append(p.TailWeights, e.Weight)
		p.TailMaxNext = append(p.TailMaxNext, e.MaxNextWeight)
	}

	return p, nil
}

// packBlock computes the minimal bit width needed to represent the
// strictly-sorted deltas of chunk against prevLast (or against -1 for the
// first block, so the first row id's delta is itself), then bit-packs the
// 128 deltas into ceil(128*b/8) bytes.
func packBlock(chunk []posting.Element, prevLast types.RowId, first bool) (BlockDescriptor, []byte) {
	deltas := make([]uint32, len(chunk))
	prev := prevLast
	if first {
		prev = ^types.RowId(0) // so first delta = chunk[0].RowId - (-1) = chunk[0].RowId
	}
	maxDelta := uint32(0)
	for i, e := range chunk {
		d := e.RowId - prev - 1
		deltas[i] = d
		if d > maxDelta {
			maxDelta = d
		}
		prev = e.RowId
	}

	b := uint8(bits.Len32(maxDelta))
	packed := bitPack(deltas, b)

	return BlockDescriptor{
		FirstRowId:   chunk[0].RowId,
		ElementCount: len(chunk),
		BitWidth:     b,
	}, packed
}

// bitPack packs n values, each fitting in width bits, into a byte slice.
func bitPack(values []uint32, width uint8) []byte {
	if width == 0 {
		return nil
	}
	totalBits := int(width) * len(values)
	out := make([]byte, (totalBits+7)/8)
	bitPos := 0
	for _, v := range values {
		for b := 0; b < int(width); b++ {
			if v&(1<<uint(b)) != 0 {
				out[bitPos/8] |= 1 << uint(bitPos%8)
			}
			bitPos++
		}
	}
	return out
}

// bitUnpack is the inverse of bitPack, reconstructing n values of the
// given width.
func bitUnpack(data []byte, width uint8, n int) []uint32 {
	out := make([]uint32, n)
	if width == 0 {
		return out
	}
	bitPos := 0
	for i := 0; i < n; i++ {
		var v uint32
		for b := 0; b < int(width); b++ {
			if data[bitPos/8]&(1<<uint(bitPos%8)) != 0 {
				v |= 1 << uint(b)
			}
			bitPos++
		}
		out[i] = v
	}
	return out
}

func clamp255(w float32) float32 {
	if w < 0 {
		return 0
	}
	if w > 255 {
		return 255
	}
	return w
}
