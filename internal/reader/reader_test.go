package reader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/myscale/sparse-index/internal/config"
	"github.com/myscale/sparse-index/internal/posting"
	"github.com/myscale/sparse-index/internal/types"
	"github.com/myscale/sparse-index/internal/writer"
)

func TestReaderReloadsAfterCommitAndSearches(t *testing.T) {
	dir := t.TempDir()
	settings := writer.Settings{Storage: writer.StorageMmap, WeightType: writer.WeightF32, Shape: posting.Simple}
	w, err := writer.Open(dir, settings, config.Default(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.AddDocument(ctx, 0, &types.SparseVector[float32]{Indices: []types.DimId{0, 1}, Values: []float32{1.0, 1.0}}))
	require.NoError(t, w.AddDocument(ctx, 1, &types.SparseVector[float32]{Indices: []types.DimId{0, 1}, Values: []float32{0.2, 0.9}}))
	_, err = w.Commit(ctx, "")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := Open(dir, config.Default().Search)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, 1, r.SegmentCount())

	results, err := r.Search(ctx, &types.SparseVector[float32]{Indices: []types.DimId{0, 1}, Values: []float32{1.0, 1.0}}, nil, false, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, uint32(0), results[0].RowId)
}
