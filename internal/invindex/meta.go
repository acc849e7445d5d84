package invindex

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/myscale/sparse-index/internal/sparseerr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FormatVersion is the on-disk segment format tag; IncompatibleIndex is
// raised for any version this binary doesn't recognize.
const FormatVersion = 1

// SegmentMeta is the per-segment meta.json record: posting count, vector
// count, row/dim ranges, quantized flag, element shape, format version,
// and file-size sanity fields.
type SegmentMeta struct {
	FormatVersion int    `json:"format_version"`
	PostingCount  int    `json:"posting_count"`
	VectorCount   uint32 `json:"vector_count"`
	MinRowId      uint32 `json:"min_row_id"`
	MaxRowId      uint32 `json:"max_row_id"`
	MinDimId      uint32 `json:"min_dim_id"`
	MaxDimId      uint32 `json:"max_dim_id"`
	Quantized     bool   `json:"quantized"`
	ElementShape  string `json:"element_shape"` // "simple" | "extended"
	ElementType   string `json:"element_type"`  // "f32" | "f16" | "u8"
	Compressed    bool   `json:"compressed"`
	HeadersBytes  int64  `json:"headers_bytes"`
	PostingsBytes int64  `json:"postings_bytes"`
	RowIdsBytes   int64  `json:"row_ids_bytes"`
	BlocksBytes   int64  `json:"blocks_bytes"`
}

// Marshal encodes m as the on-disk meta.json payload.
func (m *SegmentMeta) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, sparseerr.SystemError("marshal segment meta", err)
	}
	return data, nil
}

// UnmarshalSegmentMeta parses a segment's meta.json payload, rejecting
// unknown format versions with IncompatibleIndex.
func UnmarshalSegmentMeta(data []byte) (*SegmentMeta, error) {
	var m SegmentMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, sparseerr.DataCorruption("parse segment meta.json", err)
	}
	if m.FormatVersion != FormatVersion {
		return nil, sparseerr.IncompatibleIndex("segment format version not supported by this binary", nil)
	}
	return &m, nil
}
