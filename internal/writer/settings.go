// Package writer implements the index writer: an N-worker MPSC ingestion
// pool accumulating RAM segments, flushed by memory budget or explicit
// commit, handed to the updater for registration and merge scheduling.
// Each worker owns its own goroutine with a stop/done lifecycle, widened
// from a single worker to a pool.
package writer

import (
	"encoding/json"

	"github.com/myscale/sparse-index/internal/posting"
	"github.com/myscale/sparse-index/internal/sparseerr"
)

// StorageKind selects how finalized segments are persisted
// (`ram`/`mmap`/`compressed_mmap`).
type StorageKind string

const (
	StorageRAM            StorageKind = "ram"
	StorageMmap           StorageKind = "mmap"
	StorageCompressedMmap StorageKind = "compressed_mmap"
)

// WeightType names the logical numeric domain a segment's weights were
// authored in: a weight is logically a real number, physically one of
// f32, f16, or u8.
type WeightType string

const (
	WeightF32 WeightType = "f32"
	WeightF16 WeightType = "f16"
	WeightU8  WeightType = "u8"
)

// Settings is the per-index configuration chosen at create-index time and
// persisted as the index-root settings JSON.
type Settings struct {
	Storage    StorageKind   `json:"storage"`
	WeightType WeightType    `json:"weight_type"`
	Shape      posting.Shape `json:"-"`
	ShapeName  string        `json:"element_shape"`
	Quantized  bool          `json:"quantized"`
}

// SettingsFileName is the process-wide, index-root settings file, distinct
// from each segment's own meta.json and from the index-root commit-state
// meta.json (internal/invindex.IndexMetaFileName).
const SettingsFileName = "settings.json"

// Validate rejects illegal (storage, weight, shape, quantized)
// combinations: quantized+extended (would destroy max_next_weight
// semantics) and quantized+u8 (u8 is never re-quantized).
func (s *Settings) Validate() error {
	switch s.Storage {
	case StorageRAM, StorageMmap, StorageCompressedMmap:
	default:
		return sparseerr.InvalidArgument("unknown storage kind "+string(s.Storage), nil)
	}
	switch s.WeightType {
	case WeightF32, WeightF16, WeightU8:
	default:
		return sparseerr.InvalidArgument("unknown weight type "+string(s.WeightType), nil)
	}
	if s.Quantized && s.Shape == posting.Extended {
		return sparseerr.InvalidArgument("quantized extended postings are not supported: max_next_weight would lose meaning", nil)
	}
	if s.Quantized && s.WeightType == WeightU8 {
		return sparseerr.InvalidArgument("u8 weights are never re-quantized", nil)
	}
	return nil
}

// normalizeShapeName keeps ShapeName (the JSON-persisted form) and Shape
// (the in-memory posting.Shape) consistent before marshalling.
func (s *Settings) normalizeShapeName() {
	if s.Shape == posting.Extended {
		s.ShapeName = "extended"
	} else {
		s.ShapeName = "simple"
	}
}

// Marshal encodes s as the index-root settings.json payload.
func (s *Settings) Marshal() ([]byte, error) {
	s.normalizeShapeName()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, sparseerr.SystemError("marshal settings", err)
	}
	return data, nil
}

// UnmarshalSettings parses the index-root settings.json payload.
func UnmarshalSettings(data []byte) (*Settings, error) {
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, sparseerr.DataCorruption("parse settings.json", err)
	}
	if s.ShapeName == "extended" {
		s.Shape = posting.Extended
	} else {
		s.Shape = posting.Simple
	}
	return &s, nil
}
