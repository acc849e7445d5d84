package invindex

import (
	"encoding/binary"
	"math"

	"github.com/myscale/sparse-index/internal/directory"
	"github.com/myscale/sparse-index/internal/posting"
	"github.com/myscale/sparse-index/internal/posting/compressed"
	"github.com/myscale/sparse-index/internal/quant"
	"github.com/myscale/sparse-index/internal/segment"
	"github.com/myscale/sparse-index/internal/types"
)

// compressedHeaderSize mirrors header but adds the row_ids file range and
// block/tail counts needed to navigate the blocks file: compressed
// postings further split their payload into row_ids and blocks.
const compressedHeaderSize = 56

type compressedHeader struct {
	BlocksStart, BlocksEnd uint64
	RowIdsStart, RowIdsEnd uint64
	BlockCount, TailCount  uint32
	ElementCount           uint32
	Quantized              bool
	Shape                  posting.Shape
	WeightWidth            uint8
	Scale, Offset          float32
}

func encodeCompressedHeader(h compressedHeader) []byte {
	buf := make([]byte, compressedHeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.BlocksStart)
	binary.LittleEndian.PutUint64(buf[8:16], h.BlocksEnd)
	binary.LittleEndian.PutUint64(buf[16:24], h.RowIdsStart)
	binary.LittleEndian.PutUint64(buf[24:32], h.RowIdsEnd)
	binary.LittleEndian.PutUint32(buf[32:36], h.BlockCount)
	binary.LittleEndian.PutUint32(buf[36:40], h.TailCount)
	binary.LittleEndian.PutUint32(buf[40:44], h.ElementCount)
	if h.Quantized {
		buf[44] = 1
	}
	buf[45] = byte(h.Shape)
	buf[46] = h.WeightWidth
	binary.LittleEndian.PutUint32(buf[48:52], math.Float32bits(h.Scale))
	binary.LittleEndian.PutUint32(buf[52:56], math.Float32bits(h.Offset))
	return buf
}

func decodeCompressedHeader(buf []byte) compressedHeader {
	return compressedHeader{
		BlocksStart:  binary.LittleEndian.Uint64(buf[0:8]),
		BlocksEnd:    binary.LittleEndian.Uint64(buf[8:16]),
		RowIdsStart:  binary.LittleEndian.Uint64(buf[16:24]),
		RowIdsEnd:    binary.LittleEndian.Uint64(buf[24:32]),
		BlockCount:   binary.LittleEndian.Uint32(buf[32:36]),
		TailCount:    binary.LittleEndian.Uint32(buf[36:40]),
		ElementCount: binary.LittleEndian.Uint32(buf[40:44]),
		Quantized:    buf[44] == 1,
		Shape:        posting.Shape(buf[45]),
		WeightWidth:  buf[46],
		Scale:        math.Float32frombits(binary.LittleEndian.Uint32(buf[48:52])),
		Offset:       math.Float32frombits(binary.LittleEndian.Uint32(buf[52:56])),
	}
}

// blockRecordSize is a block's descriptor within the blocks file: FirstRowId
// (u32) + ByteCount (u32) + BitWidth (u8) + 3 bytes padding, followed
// immediately by BlockSize*WeightWidth weight bytes and, for extended
// postings, BlockSize*4 max-next-weight bytes.
const blockRecordSize = 12

func encodeBlockRecord(d compressed.BlockDescriptor) []byte {
	buf := make([]byte, blockRecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], d.FirstRowId)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(d.ByteCount))
	buf[8] = d.BitWidth
	return buf
}

func decodeBlockRecord(buf []byte) (firstRow types.RowId, byteCount int, bitWidth uint8) {
	firstRow = binary.LittleEndian.Uint32(buf[0:4])
	byteCount = int(binary.LittleEndian.Uint32(buf[4:8]))
	bitWidth = buf[8]
	return
}

// WriteCompressed serializes a RAM index to the block-compressed mmap
// layout: headers + row_ids + blocks + meta.json.
func WriteCompressed(dir *directory.Directory, segID segment.Id, ram *RAM, shape posting.Shape, quantize bool) (*SegmentMeta, error) {
	var headers, rowIds, blocks []byte
	postingCount := 0
	width := compressed.WeightWidthFor(quantize, ram.Metrics.ElementType)

	for _, list := range ram.Lists {
		ch := compressedHeader{
			RowIdsStart: uint64(len(rowIds)),
			BlocksStart: uint64(len(blocks)),
			WeightWidth: uint8(width),
		}
		if list != nil && len(list.Elements) > 0 {
			cb, err := compressed.NewBuilder(shape, quantize, width)
			if err != nil {
				return nil, err
			}
			cb.AddSorted(list.Elements)
			cp, err := cb.Build()
			if err != nil {
				return nil, err
			}

			ch.ElementCount = uint32(cp.RowIdsCount)
			ch.Shape = cp.Shape
			if cp.Quant != nil {
				ch.Quantized = true
				ch.Scale = cp.Quant.Scale
				ch.Offset = cp.Quant.Offset
			}
			rowIds = append(rowIds, cp.RowIdsBytes()...)

			ch.BlockCount = uint32(len(cp.Blocks))
			var prevRow types.RowId
			havePrev := false
			for _, bd := range cp.Blocks {
				blocks = append(blocks, encodeBlockRecord(bd)...)
				blocks = append(blocks, bd.Weights...)
				if cp.Shape == posting.Extended {
					blocks = append(blocks, bd.MaxNext...)
				}
			}
			if last, ok := cp.LastBlockRowId(); ok {
				prevRow = last
				havePrev = true
			}

			// Tail row ids are delta-encoded as uvarints against the last
			// full block's final row id; no fixed bit width applies.
			ch.TailCount = uint32(len(cp.TailRowIds))
			var varint [binary.MaxVarintLen32]byte
			for i, row := range cp.TailRowIds {
				delta := uint64(row)
				if havePrev {
					delta = uint64(row - prevRow - 1)
				}
				prevRow = row
				havePrev = true
				n := binary.PutUvarint(varint[:], delta)
				blocks = append(blocks, varint[:n]...)

				w := make([]byte, width)
				compressed.PutStoredWeight(w, width, cp.TailWeights[i], cp.Quant)
				blocks = append(blocks, w...)
				if cp.Shape == posting.Extended {
					m := make([]byte, 4)
					binary.LittleEndian.PutUint32(m, math.Float32bits(cp.TailMaxNext[i]))
					blocks = append(blocks, m...)
				}
			}
			postingCount++
		}
		ch.RowIdsEnd = uint64(len(rowIds))
		ch.BlocksEnd = uint64(len(blocks))
		headers = append(headers, encodeCompressedHeader(ch)...)
	}

	if err := dir.AtomicWrite(segID.FileName("headers"), headers); err != nil {
		return nil, err
	}
	if err := dir.AtomicWrite(segID.FileName("row_ids"), rowIds); err != nil {
		return nil, err
	}
	if err := dir.AtomicWrite(segID.FileName("blocks"), blocks); err != nil {
		return nil, err
	}
	for _, name := range []string{"headers", "row_ids", "blocks"} {
		dir.RegisterFileAsManaged(segID.FileName(name))
	}

	meta := &SegmentMeta{
		FormatVersion: FormatVersion,
		PostingCount:  postingCount,
		VectorCount:   ram.Metrics.VectorCount,
		MinRowId:      ram.Metrics.MinRowId,
		MaxRowId:      ram.Metrics.MaxRowId,
		MinDimId:      ram.Metrics.MinDimId,
		MaxDimId:      ram.Metrics.MaxDimId,
		Quantized:     quantize,
		ElementShape:  shapeName(shape),
		ElementType:   ram.Metrics.ElementType,
		Compressed:    true,
		HeadersBytes:  int64(len(headers)),
		RowIdsBytes:   int64(len(rowIds)),
		BlocksBytes:   int64(len(blocks)),
	}
	data, err := meta.Marshal()
	if err != nil {
		return nil, err
	}
	if err := dir.AtomicWrite(segID.FileName("meta"), data); err != nil {
		return nil, err
	}
	dir.RegisterFileAsManaged(segID.FileName("meta"))
	return meta, nil
}

// CompressedReader opens a segment's block-compressed mmap layout.
// Decoded postings are memoized in an LRU so repeated queries skip the
// bit-unpack/de-quantize work.
type CompressedReader struct {
	headers *directory.Mmap
	rowIds  *directory.Mmap
	blocks  *directory.Mmap
	meta    *SegmentMeta
	cache   *PostingCache
}

// OpenCompressed mmaps a segment's headers, row_ids, and blocks files.
func OpenCompressed(dir *directory.Directory, segID segment.Id) (*CompressedReader, error) {
	metaBytes, err := dir.AtomicRead(segID.FileName("meta"))
	if err != nil {
		return nil, err
	}
	meta, err := UnmarshalSegmentMeta(metaBytes)
	if err != nil {
		return nil, err
	}
	headers, err := dir.MmapRead(segID.FileName("headers"))
	if err != nil {
		return nil, err
	}
	rowIds, err := dir.MmapRead(segID.FileName("row_ids"))
	if err != nil {
		headers.Close()
		return nil, err
	}
	blocks, err := dir.MmapRead(segID.FileName("blocks"))
	if err != nil {
		headers.Close()
		rowIds.Close()
		return nil, err
	}
	cache, err := NewPostingCache(defaultPostingCacheSize)
	if err != nil {
		headers.Close()
		rowIds.Close()
		blocks.Close()
		return nil, err
	}
	return &CompressedReader{headers: headers, rowIds: rowIds, blocks: blocks, meta: meta, cache: cache}, nil
}

// Close unmaps the segment's files.
func (r *CompressedReader) Close() error {
	for _, err := range []error{r.headers.Close(), r.rowIds.Close(), r.blocks.Close()} {
		if err != nil {
			return err
		}
	}
	return nil
}

// Meta returns the segment's parsed meta.json.
func (r *CompressedReader) Meta() *SegmentMeta { return r.meta }

// Posting decodes dim's compressed posting into a posting.Iterator. It
// eagerly decodes every block into an in-memory list (kept in the cache)
// rather than walking blocks lazily; searches and merges both read
// compressed segments through this path.
func (r *CompressedReader) Posting(dim types.DimId) (posting.Iterator, bool) {
	if cached, ok := r.cache.Get(dim); ok {
		return posting.NewIterator(cached), true
	}

	off := int(dim) * compressedHeaderSize
	if off+compressedHeaderSize > len(r.headers.MMap) {
		return nil, false
	}
	h := decodeCompressedHeader(r.headers.MMap[off : off+compressedHeaderSize])
	if h.ElementCount == 0 {
		return nil, false
	}

	var q *quant.Param
	if h.Quantized {
		q = &quant.Param{Scale: h.Scale, Offset: h.Offset}
	}

	elems := make([]postingElement, 0, h.ElementCount)
	blockBuf := r.blocks.MMap[h.BlocksStart:h.BlocksEnd]
	rowIdBuf := r.rowIds.MMap[h.RowIdsStart:h.RowIdsEnd]
	width := int(h.WeightWidth)

	pos := 0
	var prevLast types.RowId
	for blk := 0; blk < int(h.BlockCount); blk++ {
		firstRow, byteCount, bitWidth := decodeBlockRecord(blockBuf[pos : pos+blockRecordSize])
		pos += blockRecordSize
		weights := blockBuf[pos : pos+compressed.BlockSize*width]
		pos += compressed.BlockSize * width
		var maxNext []byte
		if h.Shape == posting.Extended {
			maxNext = blockBuf[pos : pos+compressed.BlockSize*4]
			pos += compressed.BlockSize * 4
		}

		deltas := bitUnpackExported(rowIdBuf[:byteCount], bitWidth, compressed.BlockSize)
		rowIdBuf = rowIdBuf[byteCount:]

		prev := prevLast
		if blk == 0 {
			prev = ^types.RowId(0)
		}
		for i := 0; i < compressed.BlockSize; i++ {
			row := prev + deltas[i] + 1
			prev = row
			weight := compressed.StoredWeight(weights[i*width:], width, q)
			mnw := posting.NegInf
			if h.Shape == posting.Extended {
				mnw = math.Float32frombits(binary.LittleEndian.Uint32(maxNext[i*4:]))
			}
			elems = append(elems, postingElement{row, weight, mnw})
		}
		prevLast = prev
		_ = firstRow
	}

	tailBuf := blockBuf[pos:]
	prevRow := prevLast
	havePrev := h.BlockCount > 0
	for i := 0; i < int(h.TailCount); i++ {
		delta, n := binary.Uvarint(tailBuf)
		if n <= 0 {
			break
		}
		tailBuf = tailBuf[n:]
		var row types.RowId
		if havePrev {
			row = prevRow + types.RowId(delta) + 1
		} else {
			row = types.RowId(delta)
		}
		prevRow = row
		havePrev = true

		weight := compressed.StoredWeight(tailBuf, width, q)
		tailBuf = tailBuf[width:]
		mnw := posting.NegInf
		if h.Shape == posting.Extended {
			mnw = math.Float32frombits(binary.LittleEndian.Uint32(tailBuf))
			tailBuf = tailBuf[4:]
		}
		elems = append(elems, postingElement{row, weight, mnw})
	}

	list := &posting.List{Shape: h.Shape, Quant: q, Elements: make([]posting.Element, len(elems))}
	for i, e := range elems {
		list.Elements[i] = posting.Element{RowId: e.row, Weight: e.weight, MaxNextWeight: e.maxNext}
	}
	r.cache.Put(dim, list)
	return posting.NewIterator(list), true
}

type postingElement struct {
	row     types.RowId
	weight  float32
	maxNext float32
}

// bitUnpackExported re-implements compressed.bitUnpack's algorithm; the
// source function is unexported since it is an encoding/decoding pair
// local to the Builder, so the mmap reader restates the inverse here.
func bitUnpackExported(data []byte, width uint8, n int) []uint32 {
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
