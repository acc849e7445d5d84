package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSparseVectorValidate(t *testing.T) {
	empty := SparseVector[float32]{}
	require.NoError(t, empty.Validate())
	assert.True(t, empty.IsEmpty())

	mismatched := SparseVector[float32]{Indices: []DimId{1, 2, 3}, Values: []float32{1, 2}}
	assert.Error(t, mismatched.Validate())

	notSorted := SparseVector[float32]{Indices: []DimId{1, 3, 2}, Values: []float32{1, 2, 3}}
	require.NoError(t, notSorted.Validate())
	assert.False(t, notSorted.IsSorted())

	duplicate := SparseVector[float32]{Indices: []DimId{1, 2, 3, 2}, Values: []float32{1, 2, 3, 4}}
	assert.Error(t, duplicate.Validate())
}

func TestSparseVectorSortByIndices(t *testing.T) {
	v := SparseVector[float32]{Indices: []DimId{1, 3, 2}, Values: []float32{10, 30, 20}}
	v.SortByIndices()
	assert.True(t, v.IsSorted())
	assert.Equal(t, []DimId{1, 2, 3}, v.Indices)
	assert.Equal(t, []float32{10, 20, 30}, v.Values)
}

func TestScore(t *testing.T) {
	a := SparseVector[float32]{Indices: []DimId{1, 2, 3}, Values: []float32{10, 10, 10}}
	b := SparseVector[float32]{Indices: []DimId{1, 2, 3}, Values: []float32{1, 1, 1}}
	score, ok := Score(&a, &b)
	require.True(t, ok)
	assert.Equal(t, ScoreType(30), score)

	c := SparseVector[float32]{Indices: []DimId{4, 5}, Values: []float32{1, 1}}
	_, ok = Score(&a, &c)
	assert.False(t, ok)
}

func TestFloat16RoundTrip(t *testing.T) {
	for _, f := range []float32{0, 1, -1, 0.5, 3.14159, 65504, -65504} {
		h := F16FromF32(f)
		got := h.ToF32()
		assert.InDelta(t, f, got, 0.01, "round trip of %v", f)
	}
}
