package invindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myscale/sparse-index/internal/bitmap"
	"github.com/myscale/sparse-index/internal/directory"
	"github.com/myscale/sparse-index/internal/posting"
	"github.com/myscale/sparse-index/internal/segment"
)

func buildSampleRAM(t *testing.T, shape posting.Shape, quantize bool) *RAM {
	t.Helper()
	b := NewRAMBuilder(shape, posting.FinalizeOnce, quantize, "f32")
	require.NoError(t, b.Insert(1, 0, 0.5, true))
	require.NoError(t, b.Insert(3, 0, 0.25, true))
	require.NoError(t, b.Insert(3, 2, 0.75, false))
	require.NoError(t, b.Insert(7, 2, 0.1, true))
	ram, err := b.Build()
	require.NoError(t, err)
	return ram
}

func TestRAMBuilderBuild(t *testing.T) {
	ram := buildSampleRAM(t, posting.Simple, false)
	assert.Equal(t, uint32(3), ram.Metrics.VectorCount)
	assert.Equal(t, uint32(1), ram.Metrics.MinRowId)
	assert.Equal(t, uint32(7), ram.Metrics.MaxRowId)

	list := ram.Posting(0)
	require.NotNil(t, list)
	assert.Len(t, list.Elements, 2)
	assert.Nil(t, ram.Posting(1))
}

// Dimension and row id 0 are ordinary values; the metric ranges must not
// treat them as "unset" once other dimensions or rows arrive.
func TestRAMBuilderMetricsWithZeroIds(t *testing.T) {
	b := NewRAMBuilder(posting.Simple, posting.FinalizeOnce, false, "f32")
	require.NoError(t, b.Insert(0, 0, 1.0, true))
	require.NoError(t, b.Insert(5, 2, 2.0, true))
	require.NoError(t, b.Insert(5, 7, 3.0, false))
	ram, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, uint32(0), ram.Metrics.MinRowId)
	assert.Equal(t, uint32(5), ram.Metrics.MaxRowId)
	assert.Equal(t, uint32(0), ram.Metrics.MinDimId)
	assert.Equal(t, uint32(7), ram.Metrics.MaxDimId)

	// The sample fixture mixes dim 0 with dim 2; its range must hold too.
	sample := buildSampleRAM(t, posting.Simple, false)
	assert.Equal(t, uint32(0), sample.Metrics.MinDimId)
	assert.Equal(t, uint32(2), sample.Metrics.MaxDimId)
}

func TestSegmentMetaRoundTrip(t *testing.T) {
	m := &SegmentMeta{FormatVersion: FormatVersion, PostingCount: 3, VectorCount: 10}
	data, err := m.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalSegmentMeta(data)
	require.NoError(t, err)
	assert.Equal(t, m.PostingCount, got.PostingCount)
	assert.Equal(t, m.VectorCount, got.VectorCount)
}

func TestUnmarshalRejectsNewerFormat(t *testing.T) {
	m := &SegmentMeta{FormatVersion: FormatVersion + 1}
	data, err := m.Marshal()
	require.NoError(t, err)

	_, err = UnmarshalSegmentMeta(data)
	assert.Error(t, err)
}

func TestWriteAndOpenSimple(t *testing.T) {
	ram := buildSampleRAM(t, posting.Simple, false)
	dir, err := directory.Open(t.TempDir())
	require.NoError(t, err)
	segID := segment.NewId()

	meta, err := WriteSimple(dir, segID, ram, posting.Simple, false)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.PostingCount)

	reader, err := OpenSimple(dir, segID)
	require.NoError(t, err)
	defer reader.Close()

	it, ok := reader.Posting(0)
	require.True(t, ok)
	e, ok := it.Peek()
	require.True(t, ok)
	assert.Equal(t, uint32(1), e.RowId)
	assert.InDelta(t, 0.5, e.Weight, 1e-6)

	_, ok = reader.Posting(1)
	assert.False(t, ok)
}

func TestWriteAndOpenCompressed(t *testing.T) {
	ram := buildSampleRAM(t, posting.Simple, true)
	dir, err := directory.Open(t.TempDir())
	require.NoError(t, err)
	segID := segment.NewId()

	meta, err := WriteCompressed(dir, segID, ram, posting.Simple, true)
	require.NoError(t, err)
	assert.True(t, meta.Compressed)

	reader, err := OpenCompressed(dir, segID)
	require.NoError(t, err)
	defer reader.Close()

	it, ok := reader.Posting(2)
	require.True(t, ok)
	e, ok := it.Peek()
	require.True(t, ok)
	assert.Equal(t, uint32(3), e.RowId)
}

// Quantized weights must survive a write/reopen cycle within the
// (max-min)/255 round-trip bound, for both storage layouts.
func TestQuantizedWeightsRoundTripThroughStorage(t *testing.T) {
	weights := map[uint32]float32{1: 0.13, 3: 0.87, 5: 0.42, 9: 0.61}
	b := NewRAMBuilder(posting.Simple, posting.FinalizeOnce, true, "f32")
	for row, w := range weights {
		require.NoError(t, b.Insert(row, 0, w, true))
	}
	ram, err := b.Build()
	require.NoError(t, err)

	bound := (0.87 - 0.13) / 255

	dir, err := directory.Open(t.TempDir())
	require.NoError(t, err)

	simpleID := segment.NewId()
	_, err = WriteSimple(dir, simpleID, ram, posting.Simple, true)
	require.NoError(t, err)
	compressedID := segment.NewId()
	_, err = WriteCompressed(dir, compressedID, ram, posting.Simple, true)
	require.NoError(t, err)

	for _, id := range []segment.Id{simpleID, compressedID} {
		reader, err := Open(dir, id, id == compressedID)
		require.NoError(t, err)
		it, ok := reader.Posting(0)
		require.True(t, ok)
		seen := 0
		it.ForEachUntil(^uint32(0), func(e posting.Element) {
			assert.InDelta(t, weights[e.RowId], e.Weight, float64(bound)+1e-6)
			seen++
		})
		assert.Equal(t, len(weights), seen)
		require.NoError(t, reader.Close())
	}
}

// Fractional weights must round-trip exactly through non-quantized f32
// storage, including the compressed layout's full blocks and tail.
func TestFullPrecisionWeightsRoundTripCompressed(t *testing.T) {
	b := NewRAMBuilder(posting.Extended, posting.FinalizeOnce, false, "f32")
	for row := uint32(1); row <= 300; row++ {
		require.NoError(t, b.Insert(row, 0, float32(row)+0.5, true))
	}
	ram, err := b.Build()
	require.NoError(t, err)

	dir, err := directory.Open(t.TempDir())
	require.NoError(t, err)
	segID := segment.NewId()
	_, err = WriteCompressed(dir, segID, ram, posting.Extended, false)
	require.NoError(t, err)

	reader, err := OpenCompressed(dir, segID)
	require.NoError(t, err)
	defer reader.Close()

	it, ok := reader.Posting(0)
	require.True(t, ok)
	assert.True(t, it.ReliableMaxNextWeight())
	row := uint32(1)
	it.ForEachUntil(^uint32(0), func(e posting.Element) {
		assert.Equal(t, row, e.RowId)
		assert.Equal(t, float32(row)+0.5, e.Weight)
		row++
	})
	assert.Equal(t, uint32(301), row)
}

// Merging two segments with disjoint row ranges must yield, per dimension,
// the in-order concatenation of the inputs with max_next_weight
// re-propagated.
func TestMergeDisjointSegmentsConcatenates(t *testing.T) {
	build := func(rows []uint32, weightOf func(uint32) float32) *RAM {
		b := NewRAMBuilder(posting.Extended, posting.FinalizeOnce, false, "f32")
		for _, row := range rows {
			require.NoError(t, b.Insert(row, 0, weightOf(row), true))
		}
		ram, err := b.Build()
		require.NoError(t, err)
		return ram
	}
	ram1 := build([]uint32{1, 2, 3}, func(r uint32) float32 { return float32(10 * r) })
	ram2 := build([]uint32{10, 11, 12}, func(r uint32) float32 { return float32(r) })

	asSource := func(ram *RAM) Source {
		return Source{
			PostingFn: func(dim uint32) (posting.Iterator, bool) {
				l := ram.Posting(dim)
				if l == nil {
					return nil, false
				}
				return posting.NewIterator(l), true
			},
			MaxDim:   0,
			MinRowId: ram.Metrics.MinRowId,
			MaxRowId: ram.Metrics.MaxRowId,
		}
	}

	merged, err := Merge([]Source{asSource(ram1), asSource(ram2)}, posting.Extended, posting.FinalizeOnce, false, "f32")
	require.NoError(t, err)

	list := merged.Posting(0)
	require.NotNil(t, list)
	require.Len(t, list.Elements, 6)
	wantRows := []uint32{1, 2, 3, 10, 11, 12}
	wantWeights := []float32{10, 20, 30, 10, 11, 12}
	for i, e := range list.Elements {
		assert.Equal(t, wantRows[i], e.RowId)
		assert.Equal(t, wantWeights[i], e.Weight)
	}
	assert.True(t, list.CheckAscending())
	assert.True(t, list.CheckMaxNextWeight())
	// Row 3's max_next_weight must reflect the second segment's rows.
	assert.Equal(t, float32(12), list.Elements[2].MaxNextWeight)
}

func TestMergeDropsTombstones(t *testing.T) {
	ram1 := buildSampleRAM(t, posting.Simple, false)
	alive := bitmap.FromBytes([]byte{0b00000010}) // only row 1 alive

	sources := []Source{
		{
			PostingFn: func(dim uint32) (posting.Iterator, bool) {
				l := ram1.Posting(dim)
				if l == nil {
					return nil, false
				}
				return posting.NewIterator(l), true
			},
			MaxDim:   2,
			MinRowId: ram1.Metrics.MinRowId,
			MaxRowId: ram1.Metrics.MaxRowId,
			Alive:    alive,
		},
	}

	merged, err := Merge(sources, posting.Simple, posting.FinalizeOnce, false, "f32")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), merged.Metrics.VectorCount)
	list := merged.Posting(0)
	require.NotNil(t, list)
	for _, e := range list.Elements {
		assert.Equal(t, uint32(1), e.RowId)
	}
}
