package writer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/myscale/sparse-index/internal/config"
	"github.com/myscale/sparse-index/internal/invindex"
	"github.com/myscale/sparse-index/internal/posting"
	"github.com/myscale/sparse-index/internal/types"
)

func TestSettingsValidateRejectsIllegalCombinations(t *testing.T) {
	quantizedExtended := Settings{Storage: StorageRAM, WeightType: WeightF32, Shape: posting.Extended, Quantized: true}
	require.Error(t, quantizedExtended.Validate())

	quantizedU8 := Settings{Storage: StorageRAM, WeightType: WeightU8, Shape: posting.Simple, Quantized: true}
	require.Error(t, quantizedU8.Validate())

	ok := Settings{Storage: StorageRAM, WeightType: WeightF32, Shape: posting.Simple, Quantized: true}
	require.NoError(t, ok.Validate())
}

func TestIndexWriterAddAndCommit(t *testing.T) {
	dir := t.TempDir()
	settings := Settings{Storage: StorageMmap, WeightType: WeightF32, Shape: posting.Simple, Quantized: false}
	cfg := config.Default()
	cfg.Writer.NumThreads = 2

	w, err := Open(dir, settings, cfg, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.AddDocument(ctx, 0, &types.SparseVector[float32]{Indices: []types.DimId{0, 2}, Values: []float32{1.0, 2.0}}))
	require.NoError(t, w.AddDocument(ctx, 1, &types.SparseVector[float32]{Indices: []types.DimId{1, 2}, Values: []float32{0.5, 1.5}}))

	opstamp, err := w.Commit(ctx, "initial")
	require.NoError(t, err)
	require.Equal(t, uint64(1), opstamp)

	require.NoError(t, w.Close())

	data, err := w.Directory().AtomicRead(invindex.IndexMetaFileName)
	require.NoError(t, err)
	meta, err := invindex.UnmarshalIndexMeta(data)
	require.NoError(t, err)
	require.NotEmpty(t, meta.Segments)
	require.Equal(t, "initial", meta.Payload)
}
