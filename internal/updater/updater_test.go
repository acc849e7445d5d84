package updater

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/myscale/sparse-index/internal/config"
	"github.com/myscale/sparse-index/internal/directory"
	"github.com/myscale/sparse-index/internal/invindex"
	"github.com/myscale/sparse-index/internal/posting"
	"github.com/myscale/sparse-index/internal/segment"
	"github.com/myscale/sparse-index/internal/types"
)

type rowDimWeight struct {
	row    types.RowId
	dim    types.DimId
	weight float32
}

func buildSegment(t *testing.T, dir *directory.Directory, rows []rowDimWeight) SegmentEntry {
	t.Helper()
	b := invindex.NewRAMBuilder(posting.Simple, posting.PropagateOnUpsert, false, "f32")
	for _, r := range rows {
		require.NoError(t, b.Insert(r.row, r.dim, r.weight, true))
	}
	ram, err := b.Build()
	require.NoError(t, err)

	id := segment.NewId()
	info, err := invindex.WriteSimple(dir, id, ram, posting.Simple, false)
	require.NoError(t, err)

	meta := segment.NewMeta(dir.Root(), id, info.VectorCount)
	return SegmentEntry{Meta: meta, Info: info, Compressed: false}
}

func TestScheduleAddAndCommitWritesMeta(t *testing.T) {
	dir, err := directory.Open(t.TempDir())
	require.NoError(t, err)

	u := New(dir, config.Default().Merge, nil)
	defer func() {
		u.Kill()
		u.WaitMergingThread()
		u.Close()
	}()

	entry := buildSegment(t, dir, []rowDimWeight{{0, 0, 1.0}, {1, 1, 2.0}})
	require.NoError(t, u.ScheduleAddSegment(entry))
	require.NoError(t, u.ScheduleCommit(1, "first"))

	data, err := dir.AtomicRead(invindex.IndexMetaFileName)
	require.NoError(t, err)
	meta, err := invindex.UnmarshalIndexMeta(data)
	require.NoError(t, err)
	require.Len(t, meta.Segments, 1)
	require.Equal(t, uint64(1), meta.Opstamp)
	require.Equal(t, "first", meta.Payload)
}

func TestScheduleGarbageCollectRemovesOrphans(t *testing.T) {
	dir, err := directory.Open(t.TempDir())
	require.NoError(t, err)

	u := New(dir, config.Default().Merge, nil)
	defer func() {
		u.Kill()
		u.WaitMergingThread()
		u.Close()
	}()

	entry := buildSegment(t, dir, []rowDimWeight{{0, 0, 1.0}})
	require.NoError(t, u.ScheduleAddSegment(entry))
	require.NoError(t, u.ScheduleCommit(1, ""))

	orphan := buildSegment(t, dir, []rowDimWeight{{0, 0, 1.0}})
	orphan.Meta.Release()

	require.NoError(t, u.ScheduleGarbageCollect())
	time.Sleep(10 * time.Millisecond)

	_, err = dir.AtomicRead(orphan.Meta.SegmentId.FileName("headers"))
	require.Error(t, err)
	_, err = dir.AtomicRead(entry.Meta.SegmentId.FileName("headers"))
	require.NoError(t, err)
}
