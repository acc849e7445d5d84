package invindex

import (
	"github.com/myscale/sparse-index/internal/sparseerr"
)

// SegmentRecord is one committed (or uncommitted) segment's entry in the
// index-level meta.json.
type SegmentRecord struct {
	SegmentId  string       `json:"segment_id"`
	Compressed bool         `json:"compressed"`
	Info       *SegmentMeta `json:"info"`
}

// IndexMeta is the process-wide, index-root meta.json: the committed
// segment set, the last-commit opstamp, and an optional caller-supplied
// commit payload string.
type IndexMeta struct {
	Segments []SegmentRecord `json:"segments"`
	Opstamp  uint64          `json:"opstamp"`
	Payload  string          `json:"payload,omitempty"`
}

// IndexMetaFileName is the process-wide commit-state file, distinct from
// each segment's own <uuid>.meta file.
const IndexMetaFileName = "meta.json"

// Marshal encodes m as the on-disk index meta.json payload.
func (m *IndexMeta) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, sparseerr.SystemError("marshal index meta", err)
	}
	return data, nil
}

// UnmarshalIndexMeta parses the index-root meta.json payload.
func UnmarshalIndexMeta(data []byte) (*IndexMeta, error) {
	var m IndexMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, sparseerr.DataCorruption("parse index meta.json", err)
	}
	return &m, nil
}
