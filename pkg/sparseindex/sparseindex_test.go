package sparseindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/myscale/sparse-index/internal/config"
)

func TestEndToEndCreateInsertCommitSearch(t *testing.T) {
	dir := t.TempDir()
	settings := Settings{Storage: StorageMmap, Weight: WeightF32}

	w, err := CreateIndex(dir, settings, config.Default(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.InsertSparseVector(ctx, 0, []Element{{DimId: 0, Weight: 1.0}, {DimId: 5, Weight: 2.0}}))
	require.NoError(t, w.InsertSparseVector(ctx, 1, []Element{{DimId: 0, Weight: 0.1}, {DimId: 5, Weight: 0.2}}))

	opstamp, err := w.CommitIndex(ctx, "e2e")
	require.NoError(t, err)
	require.Equal(t, uint64(1), opstamp)
	require.NoError(t, w.FreeIndexWriter())

	r, err := LoadIndexReader(dir)
	require.NoError(t, err)
	defer r.FreeIndexReader()

	results, err := r.SparseSearch(ctx, []Element{{DimId: 0, Weight: 1.0}, {DimId: 5, Weight: 1.0}}, nil, false, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, uint32(0), results[0].RowId)
}

// Committed rows survive a writer restart; uncommitted rows do not.
func TestCommitDurabilityAndUncommittedDiscard(t *testing.T) {
	dir := t.TempDir()
	settings := Settings{Storage: StorageMmap, Weight: WeightF32}
	ctx := context.Background()

	w, err := CreateIndex(dir, settings, config.Default(), nil)
	require.NoError(t, err)
	for row := uint32(0); row < 5; row++ {
		require.NoError(t, w.InsertSparseVector(ctx, row, []Element{{DimId: 1, Weight: float32(row + 1)}}))
	}
	opstamp, err := w.CommitIndex(ctx, "")
	require.NoError(t, err)
	require.NoError(t, w.FreeIndexWriter())

	w, err = CreateIndex(dir, settings, config.Default(), nil)
	require.NoError(t, err)
	for row := uint32(5); row < 8; row++ {
		require.NoError(t, w.InsertSparseVector(ctx, row, []Element{{DimId: 1, Weight: float32(row + 1)}}))
	}
	// Dropped without commit: the three rows above must not be visible.
	require.NoError(t, w.FreeIndexWriter())

	r, err := LoadIndexReader(dir)
	require.NoError(t, err)
	defer r.FreeIndexReader()

	require.Equal(t, opstamp, r.Opstamp())
	require.Equal(t, uint64(5), r.VectorCount())

	results, err := r.SparseSearch(ctx, []Element{{DimId: 1, Weight: 1.0}}, nil, false, 10)
	require.NoError(t, err)
	require.Len(t, results, 5)
	require.Equal(t, uint32(4), results[0].RowId)
}
