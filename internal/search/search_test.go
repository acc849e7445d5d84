package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myscale/sparse-index/internal/bitmap"
	"github.com/myscale/sparse-index/internal/posting"
	"github.com/myscale/sparse-index/internal/types"
)

// buildIndex builds a tiny dense-by-dim index from (row, dim, weight)
// triples using the extended, propagate-on-upsert posting shape so
// max_next_weight is reliable and pruning is eligible.
func buildIndex(t *testing.T, triples [][3]float32) PostingSource {
	t.Helper()
	builders := make(map[types.DimId]*posting.Builder)
	for _, tr := range triples {
		row, dim, w := uint32(tr[0]), uint32(tr[1]), tr[2]
		b, ok := builders[dim]
		if !ok {
			var err error
			b, err = posting.NewBuilder(posting.Extended, posting.PropagateOnUpsert, false)
			require.NoError(t, err)
			builders[dim] = b
		}
		b.Upsert(row, w)
	}
	lists := make(map[types.DimId]*posting.List)
	for dim, b := range builders {
		l, err := b.Build()
		require.NoError(t, err)
		lists[dim] = l
	}
	return func(dim types.DimId) (posting.Iterator, bool) {
		l, ok := lists[dim]
		if !ok {
			return nil, false
		}
		return posting.NewIterator(l), true
	}
}

// Three rows sharing every queried dimension score exactly.
func TestTinyExactSearch(t *testing.T) {
	var triples [][3]float32
	for row := 1; row <= 3; row++ {
		for _, dim := range []uint32{1, 2, 3} {
			triples = append(triples, [3]float32{float32(row), float32(dim), float32(10 * row)})
		}
	}
	ps := buildIndex(t, triples)
	q := &types.SparseVector[float32]{Indices: []types.DimId{1, 2, 3}, Values: []float32{1, 1, 1}}

	results, err := Search(context.Background(), ps, q, nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []ScoredRow{
		{RowId: 3, Score: 90},
		{RowId: 2, Score: 60},
		{RowId: 1, Score: 30},
	}, results)
}

// Rows missing some queried dimensions still score on the overlap.
func TestGappedQueryPlainSearch(t *testing.T) {
	triples := [][3]float32{
		{1, 1, 10}, {1, 2, 10}, {1, 3, 10},
		{2, 1, 20}, {2, 3, 20},
		{3, 2, 30}, {3, 3, 30},
	}
	ps := buildIndex(t, triples)
	q := &types.SparseVector[float32]{Indices: []types.DimId{1, 3}, Values: []float32{1, 1}}

	results, err := Plain(context.Background(), ps, q, nil, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []ScoredRow{
		{RowId: 2, Score: 40},
		{RowId: 3, Score: 30},
		{RowId: 1, Score: 20},
	}, results)
}

func TestSearchRespectsAliveBitmap(t *testing.T) {
	triples := [][3]float32{{1, 1, 5}, {2, 1, 9}}
	ps := buildIndex(t, triples)
	q := &types.SparseVector[float32]{Indices: []types.DimId{1}, Values: []float32{1}}

	// LSB is row 0, so bit 1 (row 1) alive, bit 2 (row 2) dead.
	alive := bitmap.FromBytes([]byte{0b00000010})

	results, err := Search(context.Background(), ps, q, alive, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint32(1), results[0].RowId)
}

// hotDimensionIndex is rows 1-3 with dims {1,2,3} weighted 10/20/30 plus
// rows 4-9 each carrying only dim 1 with weight row-3, so dim 1's posting
// is much longer than the others and becomes the pruning target.
func hotDimensionIndex(t *testing.T) PostingSource {
	t.Helper()
	var triples [][3]float32
	for row := 1; row <= 3; row++ {
		for _, dim := range []uint32{1, 2, 3} {
			triples = append(triples, [3]float32{float32(row), float32(dim), float32(10 * row)})
		}
	}
	for row := 4; row <= 9; row++ {
		triples = append(triples, [3]float32{float32(row), 1, float32(row - 3)})
	}
	return buildIndex(t, triples)
}

// Pruning must not change results when one dimension dominates.
func TestPruningUnderHotDimension(t *testing.T) {
	ps := hotDimensionIndex(t)
	q := &types.SparseVector[float32]{Indices: []types.DimId{1, 2, 3}, Values: []float32{1, 1, 1}}

	results, err := Search(context.Background(), ps, q, nil, 3)
	require.NoError(t, err)
	assert.Equal(t, []ScoredRow{
		{RowId: 3, Score: 90},
		{RowId: 2, Score: 60},
		{RowId: 1, Score: 30},
	}, results)

	ps = hotDimensionIndex(t)
	results, err = Search(context.Background(), ps, q, nil, 4)
	require.NoError(t, err)
	assert.Equal(t, []ScoredRow{
		{RowId: 3, Score: 90},
		{RowId: 2, Score: 60},
		{RowId: 1, Score: 30},
		{RowId: 9, Score: 6},
	}, results)
}

// Pruned search must agree with plain search whenever query weights are
// non-negative and postings are extended, non-quantized.
func TestPrunedMatchesPlain(t *testing.T) {
	q := &types.SparseVector[float32]{Indices: []types.DimId{1, 2, 3}, Values: []float32{1, 1, 1}}
	for _, k := range []int{1, 2, 3, 5, 10, 20} {
		pruned, err := Search(context.Background(), hotDimensionIndex(t), q, nil, k)
		require.NoError(t, err)
		plain, err := Plain(context.Background(), hotDimensionIndex(t), q, nil, k)
		require.NoError(t, err)
		assert.Equal(t, plain, pruned, "k=%d", k)
	}
}

// Shrinking the scoring batch size changes only how much work happens
// per pass, never the results.
func TestSearchBatchedSmallBatches(t *testing.T) {
	q := &types.SparseVector[float32]{Indices: []types.DimId{1, 2, 3}, Values: []float32{1, 1, 1}}
	want, err := Search(context.Background(), hotDimensionIndex(t), q, nil, 4)
	require.NoError(t, err)

	for _, batch := range []int{1, 2, 7, 100} {
		got, err := SearchBatched(context.Background(), hotDimensionIndex(t), q, nil, 4, batch)
		require.NoError(t, err)
		assert.Equal(t, want, got, "batch=%d", batch)
	}
}

func TestSearchHonorsCancellation(t *testing.T) {
	ps := hotDimensionIndex(t)
	q := &types.SparseVector[float32]{Indices: []types.DimId{1, 2, 3}, Values: []float32{1, 1, 1}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Search(ctx, ps, q, nil, 3)
	assert.ErrorIs(t, err, context.Canceled)
}

// With a single posting left and a threshold its best remaining
// contribution cannot beat, pruning must skip to the end.
func TestPruneToEnd(t *testing.T) {
	triples := [][3]float32{{1, 1, 10}, {2, 1, 20}, {3, 1, 30}}
	ps := buildIndex(t, triples)

	it, ok := ps(1)
	require.True(t, ok)
	sources := []*source{{iter: it, qWeight: 1}}

	// Threshold 30 (as if the heap already holds a score-30 row): the
	// posting's max remaining contribution is 30*1, not above threshold.
	pruned := prunedLongestPosting(sources, 30)
	assert.True(t, pruned)
	assert.Equal(t, 0, it.Remains())
}
