package updater

import (
	"fmt"

	"github.com/myscale/sparse-index/internal/directory"
	"github.com/myscale/sparse-index/internal/invindex"
	"github.com/myscale/sparse-index/internal/posting"
	"github.com/myscale/sparse-index/internal/segment"
)

// MergeSegments physically merges entries into one new segment. It never
// tombstones rows (this engine has no delete operation), so every
// Source's Alive bitmap is nil (all rows alive).
func MergeSegments(dir *directory.Directory, entries []SegmentEntry) (SegmentEntry, error) {
	if len(entries) == 0 {
		return SegmentEntry{}, fmt.Errorf("updater: cannot merge zero segments")
	}

	shape := shapeFromName(entries[0].Info.ElementShape)
	quantized := entries[0].Info.Quantized
	compressed := entries[0].Compressed
	elementType := entries[0].Info.ElementType

	readers := make([]invindex.Reader, 0, len(entries))
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()

	var totalRows uint32
	sources := make([]invindex.Source, 0, len(entries))
	for _, e := range entries {
		r, err := invindex.Open(dir, e.Meta.SegmentId, e.Compressed)
		if err != nil {
			return SegmentEntry{}, fmt.Errorf("updater: open segment %s for merge: %w", e.Meta.SegmentId, err)
		}
		readers = append(readers, r)
		sources = append(sources, invindex.Source{
			PostingFn: r.Posting,
			MaxDim:    e.Info.MaxDimId,
			MinRowId:  e.Info.MinRowId,
			MaxRowId:  e.Info.MaxRowId,
			Alive:     nil,
		})
		totalRows += e.Info.VectorCount
	}

	ram, err := invindex.Merge(sources, shape, posting.FinalizeOnce, quantized, elementType)
	if err != nil {
		return SegmentEntry{}, fmt.Errorf("updater: merge postings: %w", err)
	}

	newID := segment.NewId()
	var info *invindex.SegmentMeta
	if compressed {
		info, err = invindex.WriteCompressed(dir, newID, ram, shape, quantized)
	} else {
		info, err = invindex.WriteSimple(dir, newID, ram, shape, quantized)
	}
	if err != nil {
		return SegmentEntry{}, fmt.Errorf("updater: write merged segment: %w", err)
	}

	meta := segment.NewMeta(dir.Root(), newID, info.VectorCount)
	return SegmentEntry{Meta: meta, Info: info, Compressed: compressed}, nil
}

func shapeFromName(name string) posting.Shape {
	if name == "extended" {
		return posting.Extended
	}
	return posting.Simple
}
