package search

import (
	"context"
	"math"

	"github.com/myscale/sparse-index/internal/bitmap"
	"github.com/myscale/sparse-index/internal/posting"
	"github.com/myscale/sparse-index/internal/types"
)

// AdvanceBatchSize is the default bound on how many row ids the main
// loop scores per pass; config.SearchConfig.AdvanceBatchSize overrides it
// per reader via SearchBatched.
const AdvanceBatchSize = 10_000

// PostingSource is an index's per-dimension posting accessor, satisfied by
// invindex.RAM.Posting / SimpleReader.Posting / CompressedReader.Posting.
type PostingSource func(dim types.DimId) (posting.Iterator, bool)

type source struct {
	iter    posting.Iterator
	qWeight float32
}

// Search runs the pruned WAND-style executor over q against the postings
// postingFn resolves, filtering by alive (nil means every row is alive),
// returning at most k results in descending-score order. Cancellation is
// honored only at batch boundaries, never mid-batch.
func Search(ctx context.Context, postingFn PostingSource, q *types.SparseVector[float32], alive *bitmap.Alive, k int) ([]ScoredRow, error) {
	return SearchBatched(ctx, postingFn, q, alive, k, AdvanceBatchSize)
}

// SearchBatched is Search with an explicit scoring batch size, for
// callers carrying a config.SearchConfig override. batchSize values
// below 1 fall back to AdvanceBatchSize.
func SearchBatched(ctx context.Context, postingFn PostingSource, q *types.SparseVector[float32], alive *bitmap.Alive, k, batchSize int) ([]ScoredRow, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	if batchSize < 1 {
		batchSize = AdvanceBatchSize
	}

	sources, minRow, maxRow, any := preSearch(postingFn, q)
	if !any {
		return nil, nil
	}

	usePruning := allNonNegative(q.Values)
	for _, s := range sources {
		if !s.iter.ReliableMaxNextWeight() {
			usePruning = false
			break
		}
	}

	topK := newTopKHeap(k)
	bestPrevThreshold := types.ScoreType(math.Inf(-1))
	haveBestPrev := false

	for len(sources) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batchEnd := minRow + types.RowId(batchSize) - 1
		if maxRow < batchEnd {
			batchEnd = maxRow
		}

		buf := make([]float32, batchEnd-minRow+1)
		for _, s := range sources {
			s.iter.ForEachUntil(batchEnd, func(e posting.Element) {
				local := e.RowId - minRow
				buf[local] += s.qWeight * e.Weight
			})
		}
		for local, score := range buf {
			if score <= 0 || score <= topK.Threshold() {
				continue
			}
			row := minRow + types.RowId(local)
			if alive == nil || alive.IsAlive(row) {
				topK.PushCandidate(row, score)
			}
		}

		sources = dropExhausted(sources)
		if len(sources) == 0 {
			break
		}

		next, ok := minPeekRow(sources)
		if !ok {
			break
		}
		minRow = next

		if len(sources) == 1 {
			processLastPosting(sources[0], maxRow, topK, alive)
			break
		}

		if usePruning && topK.Len() >= k {
			t := topK.Threshold()
			if haveBestPrev && t == bestPrevThreshold {
				continue
			}
			haveBestPrev = true
			bestPrevThreshold = t

			promoteLongestToFront(sources)
			if prunedLongestPosting(sources, t) {
				if newMin, ok := minPeekRow(sources); ok {
					minRow = newMin
				}
			}
		}
	}

	return topK.Results(), nil
}

func preSearch(postingFn PostingSource, q *types.SparseVector[float32]) ([]*source, types.RowId, types.RowId, bool) {
	var sources []*source
	var minRow, maxRow types.RowId
	any := false

	for i, dim := range q.Indices {
		it, ok := postingFn(dim)
		if !ok {
			continue
		}
		first, ok := it.Peek()
		if !ok {
			continue
		}
		last, _ := it.LastRowId()

		if !any {
			minRow, maxRow = first.RowId, last
		} else {
			if first.RowId < minRow {
				minRow = first.RowId
			}
			if last > maxRow {
				maxRow = last
			}
		}
		any = true
		sources = append(sources, &source{iter: it, qWeight: q.Values[i]})
	}
	return sources, minRow, maxRow, any
}

func dropExhausted(sources []*source) []*source {
	out := sources[:0]
	for _, s := range sources {
		if s.iter.Remains() > 0 {
			out = append(out, s)
		}
	}
	return out
}

func minPeekRow(sources []*source) (types.RowId, bool) {
	found := false
	var min types.RowId
	for _, s := range sources {
		e, ok := s.iter.Peek()
		if !ok {
			continue
		}
		if !found || e.RowId < min {
			min = e.RowId
			found = true
		}
	}
	return min, found
}

// promoteLongestToFront swaps the source with the largest Remains() into
// index 0, so pruning always tests the posting most likely to skip far.
func promoteLongestToFront(sources []*source) {
	longest := 0
	for i, s := range sources {
		if s.iter.Remains() > sources[longest].iter.Remains() {
			longest = i
		}
	}
	sources[0], sources[longest] = sources[longest], sources[0]
}

// prunedLongestPosting implements prune_longest_posting: decides whether
// L = sources[0] can safely skip ahead given the current threshold t.
func prunedLongestPosting(sources []*source, t types.ScoreType) bool {
	l := sources[0]
	e, ok := l.iter.Peek()
	if !ok {
		return false
	}

	var rest []*source
	if len(sources) > 1 {
		rest = sources[1:]
	}
	m, hasM := minPeekRow(rest)

	if hasM && m <= e.RowId {
		return false
	}

	bound := maxF32(e.Weight, e.MaxNextWeight) * l.qWeight
	if bound > t {
		return false
	}

	before := l.iter.Cursor()
	if hasM {
		l.iter.SkipTo(m)
	} else {
		l.iter.SkipToEnd()
	}
	return l.iter.Cursor() != before
}

func processLastPosting(s *source, maxRow types.RowId, topK *topKHeap, alive *bitmap.Alive) {
	s.iter.ForEachUntil(maxRow, func(e posting.Element) {
		score := s.qWeight * e.Weight
		if score <= 0 || score <= topK.Threshold() {
			return
		}
		if alive == nil || alive.IsAlive(e.RowId) {
			topK.PushCandidate(e.RowId, score)
		}
	})
}

func allNonNegative(values []float32) bool {
	for _, v := range values {
		if v < 0 {
			return false
		}
	}
	return true
}

func maxF32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
