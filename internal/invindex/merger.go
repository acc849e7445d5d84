package invindex

import (
	"github.com/myscale/sparse-index/internal/bitmap"
	"github.com/myscale/sparse-index/internal/posting"
	"github.com/myscale/sparse-index/internal/types"
)

// Source is one input segment to Merge: its posting accessor, its row
// range, and the alive bitmap selecting which rows are kept (nil means
// every row the segment ever held is still alive).
type Source struct {
	PostingFn func(dim types.DimId) (posting.Iterator, bool)
	MaxDim    types.DimId
	MinRowId  types.RowId
	MaxRowId  types.RowId
	Alive     *bitmap.Alive
}

// Merge combines K input segments into a single RAM index, dropping
// rows a source's alive bitmap marks dead and re-deriving quantization parameters and
// max_next_weight over the merged value range rather than concatenating
// the inputs' stale per-list statistics.
func Merge(sources []Source, shape posting.Shape, policy posting.MaxNextWeightPolicy, quantize bool, elementType string) (*RAM, error) {
	maxDim := types.DimId(0)
	for _, s := range sources {
		if s.MaxDim > maxDim {
			maxDim = s.MaxDim
		}
	}

	builder := NewRAMBuilder(shape, policy, quantize, elementType)
	seenRows := make(map[types.RowId]struct{})

	for dim := types.DimId(0); dim <= maxDim; dim++ {
		for _, s := range sources {
			it, ok := s.PostingFn(dim)
			if !ok {
				continue
			}
			it.ForEachUntil(s.MaxRowId, func(e posting.Element) {
				if !s.Alive.IsAlive(e.RowId) {
					return
				}
				_, seen := seenRows[e.RowId]
				if !seen {
					seenRows[e.RowId] = struct{}{}
				}
				builder.Insert(e.RowId, dim, e.Weight, !seen)
			})
		}
	}

	return builder.Build()
}
