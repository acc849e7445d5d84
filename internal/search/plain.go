package search

import (
	"context"

	"github.com/viterin/vek/vek32"

	"github.com/myscale/sparse-index/internal/bitmap"
	"github.com/myscale/sparse-index/internal/types"
)

// Plain runs an unpruned brute-force search: for every row in
// [minRow, maxRow], gather each posting's weight at that row via SkipTo,
// reconstruct the row's dense weight vector against q's dimensions, and
// score by inner product. Used to validate the pruned path and to support
// scoring configurations pruning can't handle (negative query weights,
// quantized or non-extended postings). Cancellation is honored once per
// AdvanceBatchSize rows, mirroring the pruned path's batch boundaries.
func Plain(ctx context.Context, postingFn PostingSource, q *types.SparseVector[float32], alive *bitmap.Alive, k int) ([]ScoredRow, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	sources, minRow, maxRow, any := preSearch(postingFn, q)
	if !any {
		return nil, nil
	}

	topK := newTopKHeap(k)
	rowWeights := make([]float32, len(sources))
	qWeights := queryWeights(sources)

	for row := minRow; row <= maxRow; row++ {
		if (row-minRow)%AdvanceBatchSize == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if alive != nil && !alive.IsAlive(row) {
			continue
		}
		for i := range rowWeights {
			rowWeights[i] = 0
		}
		matched := false
		for i, s := range sources {
			e, ok := s.iter.SkipTo(row)
			if ok {
				rowWeights[i] = e.Weight
				matched = true
			}
		}
		if !matched {
			continue
		}
		score := vek32.Dot(qWeights, rowWeights)
		if score > 0 {
			topK.PushCandidate(row, score)
		}
	}

	return topK.Results(), nil
}

func queryWeights(sources []*source) []float32 {
	out := make([]float32, len(sources))
	for i, s := range sources {
		out[i] = s.qWeight
	}
	return out
}
