package invindex

import (
	"encoding/binary"
	"log/slog"
	"math"

	"github.com/myscale/sparse-index/internal/directory"
	"github.com/myscale/sparse-index/internal/posting"
	"github.com/myscale/sparse-index/internal/posting/compressed"
	"github.com/myscale/sparse-index/internal/quant"
	"github.com/myscale/sparse-index/internal/segment"
	"github.com/myscale/sparse-index/internal/sparseerr"
	"github.com/myscale/sparse-index/internal/types"
)

// headerRecordSize is the fixed per-dimension header record size: Start
// (u64) + End (u64) + ElementCount (u32) + Quantized (u8) + Shape (u8) +
// 2 bytes padding + Scale (f32) + Offset (f32) = 32 bytes. A C-compatible
// fixed-size struct written as raw bytes.
const headerRecordSize = 32

// header is one dimension's entry in the headers file. Addressing:
// header h = dim_id * headerRecordSize; payload at [h.Start, h.End).
type header struct {
	Start, End   uint64
	ElementCount uint32
	Quantized    bool
	Shape        posting.Shape
	Scale        float32
	Offset       float32
}

func encodeHeader(h header) []byte {
	buf := make([]byte, headerRecordSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.Start)
	binary.LittleEndian.PutUint64(buf[8:16], h.End)
	binary.LittleEndian.PutUint32(buf[16:20], h.ElementCount)
	if h.Quantized {
		buf[20] = 1
	}
	buf[21] = byte(h.Shape)
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(h.Scale))
	binary.LittleEndian.PutUint32(buf[28:32], math.Float32bits(h.Offset))
	return buf
}

func decodeHeader(buf []byte) header {
	return header{
		Start:        binary.LittleEndian.Uint64(buf[0:8]),
		End:          binary.LittleEndian.Uint64(buf[8:16]),
		ElementCount: binary.LittleEndian.Uint32(buf[16:20]),
		Quantized:    buf[20] == 1,
		Shape:        posting.Shape(buf[21]),
		Scale:        math.Float32frombits(binary.LittleEndian.Uint32(buf[24:28])),
		Offset:       math.Float32frombits(binary.LittleEndian.Uint32(buf[28:32])),
	}
}

// A payload element record is RowId (u32) + Weight (WeightWidth bytes,
// one byte when quantized) [+ MaxNextWeight (f32) for extended postings].
func elementRecordSize(shape posting.Shape, width int) int {
	size := 4 + width
	if shape == posting.Extended {
		size += 4
	}
	return size
}

// WriteSimple serializes a RAM index to the uncompressed mmap layout:
// headers + postings + meta.json, registering each file with dir.
func WriteSimple(dir *directory.Directory, segID segment.Id, ram *RAM, shape posting.Shape, quantized bool) (*SegmentMeta, error) {
	var headers []byte
	var payload []byte
	width := compressed.WeightWidthFor(quantized, ram.Metrics.ElementType)
	elemSize := elementRecordSize(shape, width)

	postingCount := 0
	for _, list := range ram.Lists {
		h := header{Start: uint64(len(payload))}
		if list != nil {
			h.ElementCount = uint32(len(list.Elements))
			h.Shape = list.Shape
			if list.Quant != nil {
				h.Quantized = true
				h.Scale = list.Quant.Scale
				h.Offset = list.Quant.Offset
			}
			for _, e := range list.Elements {
				rec := make([]byte, elemSize)
				binary.LittleEndian.PutUint32(rec[0:4], e.RowId)
				compressed.PutStoredWeight(rec[4:], width, e.Weight, list.Quant)
				if shape == posting.Extended {
					binary.LittleEndian.PutUint32(rec[4+width:], math.Float32bits(e.MaxNextWeight))
				}
				payload = append(payload, rec...)
			}
			postingCount++
		}
		h.End = uint64(len(payload))
		headers = append(headers, encodeHeader(h)...)
	}

	if err := dir.AtomicWrite(segID.FileName("headers"), headers); err != nil {
		return nil, err
	}
	if err := dir.AtomicWrite(segID.FileName("postings"), payload); err != nil {
		return nil, err
	}
	dir.RegisterFileAsManaged(segID.FileName("headers"))
	dir.RegisterFileAsManaged(segID.FileName("postings"))

	meta := &SegmentMeta{
		FormatVersion: FormatVersion,
		PostingCount:  postingCount,
		VectorCount:   ram.Metrics.VectorCount,
		MinRowId:      ram.Metrics.MinRowId,
		MaxRowId:      ram.Metrics.MaxRowId,
		MinDimId:      ram.Metrics.MinDimId,
		MaxDimId:      ram.Metrics.MaxDimId,
		Quantized:     quantized,
		ElementShape:  shapeName(shape),
		ElementType:   ram.Metrics.ElementType,
		Compressed:    false,
		HeadersBytes:  int64(len(headers)),
		PostingsBytes: int64(len(payload)),
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

func shapeName(s posting.Shape) string {
	if s == posting.Extended {
		return "extended"
	}
	return "simple"
}

// SimpleReader opens a segment's uncompressed mmap layout for reading.
type SimpleReader struct {
	headers *directory.Mmap
	payload *directory.Mmap
	meta    *SegmentMeta
}

// OpenSimple mmaps a segment's headers and postings files.
func OpenSimple(dir *directory.Directory, segID segment.Id) (*SimpleReader, error) {
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
	payload, err := dir.MmapRead(segID.FileName("postings"))
	if err != nil {
		headers.Close()
		return nil, err
	}
	return &SimpleReader{headers: headers, payload: payload, meta: meta}, nil
}

// Close unmaps the segment's files.
func (r *SimpleReader) Close() error {
	err1 := r.headers.Close()
	err2 := r.payload.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Meta returns the segment's parsed meta.json.
func (r *SimpleReader) Meta() *SegmentMeta { return r.meta }

// Posting returns an iterator over dim's posting, or ok=false if dim has
// no elements in this segment.
func (r *SimpleReader) Posting(dim types.DimId) (posting.Iterator, bool) {
	off := int(dim) * headerRecordSize
	if off+headerRecordSize > len(r.headers.MMap) {
		return nil, false
	}
	h := decodeHeader(r.headers.MMap[off : off+headerRecordSize])
	if h.ElementCount == 0 {
		return nil, false
	}
	if err := validateHeaderRange(h, len(r.payload.MMap)); err != nil {
		slog.Error("corrupt posting header", "dim", dim, "err", err)
		return nil, false
	}

	width := compressed.WeightWidthFor(h.Quantized, r.meta.ElementType)
	elemSize := elementRecordSize(h.Shape, width)
	raw := r.payload.MMap[h.Start:h.End]

	list := &posting.List{Shape: h.Shape, Elements: make([]posting.Element, h.ElementCount)}
	if h.Quantized {
		list.Quant = &quant.Param{Scale: h.Scale, Offset: h.Offset}
	}
	for i := 0; i < int(h.ElementCount); i++ {
		rec := raw[i*elemSize : (i+1)*elemSize]
		rowID := binary.LittleEndian.Uint32(rec[0:4])
		weight := compressed.StoredWeight(rec[4:], width, list.Quant)
		mnw := posting.NegInf
		if h.Shape == posting.Extended {
			mnw = math.Float32frombits(binary.LittleEndian.Uint32(rec[4+width:]))
		}
		list.Elements[i] = posting.Element{RowId: rowID, Weight: weight, MaxNextWeight: mnw}
	}
	return posting.NewIterator(list), true
}

// validateHeaderRange is checked by Posting before it slices the payload,
// surfacing DataCorruption rather than letting a bad offset panic.
func validateHeaderRange(h header, payloadLen int) error {
	if h.Start > h.End || h.End > uint64(payloadLen) {
		return sparseerr.DataCorruption("posting header references out-of-range payload", nil)
	}
	return nil
}
