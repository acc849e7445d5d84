package posting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myscale/sparse-index/internal/types"
)

func TestBuilderUpsertAscending(t *testing.T) {
	b, err := NewBuilder(Simple, PropagateOnUpsert, false)
	require.NoError(t, err)

	assert.True(t, b.Upsert(3, 30))
	assert.True(t, b.Upsert(1, 10))
	assert.True(t, b.Upsert(2, 20))
	assert.False(t, b.Upsert(2, 99)) // update, not insert

	list, err := b.Build()
	require.NoError(t, err)
	require.True(t, list.CheckAscending())
	assert.Equal(t, []types.RowId{1, 2, 3}, rowIDs(list))
	assert.Equal(t, float32(99), list.Elements[1].Weight)
}

func TestBuilderExtendedPropagateOnUpsert(t *testing.T) {
	b, err := NewBuilder(Extended, PropagateOnUpsert, false)
	require.NoError(t, err)
	b.Upsert(1, 10)
	b.Upsert(2, 20)
	b.Upsert(3, 30)

	list, err := b.Build()
	require.NoError(t, err)
	require.True(t, list.CheckMaxNextWeight())
	assert.Equal(t, float32(30), list.Elements[0].MaxNextWeight)
	assert.Equal(t, float32(30), list.Elements[1].MaxNextWeight)
	assert.Equal(t, NegInf, list.Elements[2].MaxNextWeight)
}

func TestBuilderExtendedFinalizeOnce(t *testing.T) {
	b, err := NewBuilder(Extended, FinalizeOnce, false)
	require.NoError(t, err)
	b.Upsert(3, 30)
	b.Upsert(1, 10)
	b.Upsert(2, 20)

	list, err := b.Build()
	require.NoError(t, err)
	require.True(t, list.CheckMaxNextWeight())
}

func TestExtendedQuantizeRejected(t *testing.T) {
	_, err := NewBuilder(Extended, FinalizeOnce, true)
	assert.Error(t, err)
}

func TestMergeDisjointSegments(t *testing.T) {
	b1, _ := NewBuilder(Simple, FinalizeOnce, false)
	b1.Upsert(1, 10)
	b1.Upsert(3, 30)
	l1, _ := b1.Build()

	b2, _ := NewBuilder(Simple, FinalizeOnce, false)
	b2.Upsert(2, 20)
	b2.Upsert(4, 40)
	l2, _ := b2.Build()

	merged, err := Merge(Simple, false, l1, l2)
	require.NoError(t, err)
	assert.True(t, merged.CheckAscending())
	assert.Equal(t, []types.RowId{1, 2, 3, 4}, rowIDs(merged))
}

func TestIteratorSkipTo(t *testing.T) {
	b, _ := NewBuilder(Simple, FinalizeOnce, false)
	b.Upsert(1, 10)
	b.Upsert(5, 50)
	b.Upsert(10, 100)
	list, _ := b.Build()

	it := NewIterator(list)
	e, ok := it.SkipTo(5)
	require.True(t, ok)
	assert.Equal(t, float32(50), e.Weight)

	_, ok = it.SkipTo(7)
	assert.False(t, ok)

	e, ok = it.SkipTo(10)
	require.True(t, ok)
	assert.Equal(t, float32(100), e.Weight)
	assert.Equal(t, 1, it.Remains())
}

func TestForEachUntil(t *testing.T) {
	b, _ := NewBuilder(Simple, FinalizeOnce, false)
	b.Upsert(1, 10)
	b.Upsert(2, 20)
	b.Upsert(3, 30)
	list, _ := b.Build()

	it := NewIterator(list)
	var seen []types.RowId
	it.ForEachUntil(2, func(e Element) { seen = append(seen, e.RowId) })
	assert.Equal(t, []types.RowId{1, 2}, seen)
	assert.Equal(t, 1, it.Remains())
}

func rowIDs(l *List) []types.RowId {
	out := make([]types.RowId, len(l.Elements))
	for i, e := range l.Elements {
		out[i] = e.RowId
	}
	return out
}
