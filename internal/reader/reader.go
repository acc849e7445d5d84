// Package reader implements the index reader: an atomic-pointer snapshot
// of every committed segment, reloaded whenever the index-root meta.json
// changes, searched by fanning a query out across segments and combining
// per-segment top-K results into one global top-K. Reloads are driven by
// internal/directory's fsnotify-backed Watch instead of polling.
package reader

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/myscale/sparse-index/internal/bitmap"
	"github.com/myscale/sparse-index/internal/config"
	"github.com/myscale/sparse-index/internal/directory"
	"github.com/myscale/sparse-index/internal/invindex"
	"github.com/myscale/sparse-index/internal/search"
	"github.com/myscale/sparse-index/internal/segment"
	"github.com/myscale/sparse-index/internal/sparseerr"
	"github.com/myscale/sparse-index/internal/types"
)

// Warmer runs once against every freshly loaded snapshot so a reader can
// pre-warm caches; e.g. a primer issuing queries so each compressed
// segment's decoded-posting cache fills before user traffic arrives.
type Warmer interface {
	Warm(r *Reader) error
}

// segmentHandle is one committed segment as seen by the reader: its
// opened mmap (or RAM) layout plus the row range needed to bound a scan.
type segmentHandle struct {
	id          segment.Id
	reader      invindex.Reader
	maxDim      types.DimId
	minRow      types.RowId
	maxRow      types.RowId
	vectorCount uint32
}

type snapshot struct {
	segments []segmentHandle
	opstamp  uint64

	// refs pins the snapshot's mmaps: one reference held by the Reader
	// while the snapshot is current, plus one per in-flight search.
	// Segments are unmapped only when the last reference drops.
	refs atomic.Int32
}

func (s *snapshot) release() {
	if s.refs.Add(-1) == 0 {
		closeAll(s.segments)
	}
}

// Reader holds the directory's most recently committed snapshot,
// refreshed on every meta.json change. Readers never surface writer-side
// errors; a failed reload leaves the previous reader snapshot in place.
type Reader struct {
	dir       *directory.Directory
	batchSize int
	mu        sync.Mutex // pairs current-swap with ref acquisition
	current   atomic.Pointer[snapshot]
	watch     *directory.WatchHandle
	warmers   []Warmer
}

// acquire returns the current snapshot with a reference held; callers
// must release() it when done.
func (r *Reader) acquire() *snapshot {
	r.mu.Lock()
	snap := r.current.Load()
	if snap != nil {
		snap.refs.Add(1)
	}
	r.mu.Unlock()
	return snap
}

// publish installs next as the current snapshot (with the Reader's own
// reference) and drops the Reader's reference on the one it replaces.
func (r *Reader) publish(next *snapshot) {
	next.refs.Store(1)
	r.mu.Lock()
	prev := r.current.Swap(next)
	r.mu.Unlock()
	if prev != nil {
		prev.release()
	}
}

// Open loads the index's current committed snapshot and subscribes to
// further commits. searchCfg supplies the executor's scoring batch size;
// a zero value falls back to the search package default.
func Open(path string, searchCfg config.SearchConfig, warmers ...Warmer) (*Reader, error) {
	dir, err := directory.Open(path)
	if err != nil {
		return nil, sparseerr.IOFailure("open index directory", err)
	}

	r := &Reader{dir: dir, batchSize: searchCfg.AdvanceBatchSize, warmers: warmers}
	if err := r.reload(); err != nil {
		return nil, err
	}

	watch, err := dir.Watch(invindex.IndexMetaFileName, func() {
		if err := r.reload(); err != nil {
			slog.Warn("reader reload failed, keeping previous snapshot", "err", err)
		}
	})
	if err != nil {
		return nil, sparseerr.IOFailure("watch meta.json", err)
	}
	r.watch = watch
	return r, nil
}

// reload re-opens every committed segment named in the current meta.json.
// It does not diff against the previous snapshot (reload only fires on
// commit, a low-frequency event, so correctness is favored over the
// complexity of an incremental open/close plan).
func (r *Reader) reload() error {
	data, err := r.dir.AtomicRead(invindex.IndexMetaFileName)
	if err != nil {
		// A brand-new index has no meta.json yet; treat as empty.
		r.publish(&snapshot{})
		return nil
	}
	meta, err := invindex.UnmarshalIndexMeta(data)
	if err != nil {
		return sparseerr.DataCorruption("parse meta.json on reload", err)
	}

	next := &snapshot{opstamp: meta.Opstamp}
	opened := make([]segmentHandle, 0, len(meta.Segments))
	for _, rec := range meta.Segments {
		id, err := segment.ParseId(rec.SegmentId)
		if err != nil {
			closeAll(opened)
			return sparseerr.DataCorruption("parse segment id in meta.json", err)
		}
		sr, err := invindex.Open(r.dir, id, rec.Compressed)
		if err != nil {
			closeAll(opened)
			return sparseerr.IOFailure(fmt.Sprintf("open segment %s", rec.SegmentId), err)
		}
		opened = append(opened, segmentHandle{
			id:          id,
			reader:      sr,
			maxDim:      rec.Info.MaxDimId,
			minRow:      rec.Info.MinRowId,
			maxRow:      rec.Info.MaxRowId,
			vectorCount: rec.Info.VectorCount,
		})
	}
	next.segments = opened

	r.publish(next)

	for _, w := range r.warmers {
		if err := w.Warm(r); err != nil {
			slog.Warn("warmer failed", "err", err)
		}
	}
	return nil
}

func closeAll(handles []segmentHandle) {
	for _, h := range handles {
		h.reader.Close()
	}
}

// Opstamp returns the opstamp of the currently loaded snapshot.
func (r *Reader) Opstamp() uint64 {
	snap := r.current.Load()
	if snap == nil {
		return 0
	}
	return snap.opstamp
}

// SegmentCount returns how many segments the current snapshot holds.
func (r *Reader) SegmentCount() int {
	snap := r.current.Load()
	if snap == nil {
		return 0
	}
	return len(snap.segments)
}

// VectorCount returns the total number of rows across every segment in the
// current snapshot.
func (r *Reader) VectorCount() uint64 {
	snap := r.current.Load()
	if snap == nil {
		return 0
	}
	var total uint64
	for _, seg := range snap.segments {
		total += uint64(seg.vectorCount)
	}
	return total
}

// Search runs a pruned top-K search over every segment in the current
// snapshot and merges their per-segment results into one global top-K.
// aliveBitmapBytes may be nil to search every row. Cancellation is honored
// between scoring batches.
func (r *Reader) Search(ctx context.Context, query *types.SparseVector[float32], aliveBitmapBytes []byte, enableFilter bool, topK int) ([]search.ScoredRow, error) {
	snap := r.acquire()
	if snap == nil {
		return nil, nil
	}
	defer snap.release()
	if len(snap.segments) == 0 {
		return nil, nil
	}

	var alive *bitmap.Alive
	if enableFilter && aliveBitmapBytes != nil {
		alive = bitmap.FromBytes(aliveBitmapBytes)
	}

	merged := make([]search.ScoredRow, 0, topK*len(snap.segments))
	for _, seg := range snap.segments {
		rows, err := search.SearchBatched(ctx, seg.reader.Posting, query, alive, topK, r.batchSize)
		if err != nil {
			return nil, sparseerr.SystemError(fmt.Sprintf("search segment %s", seg.id), err)
		}
		merged = append(merged, rows...)
	}

	return topKOf(merged, topK), nil
}

// topKOf keeps the topK highest-scoring rows across every segment's
// partial result, breaking ties by ascending row id to match the
// within-segment tie-break rule.
func topKOf(rows []search.ScoredRow, topK int) []search.ScoredRow {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].RowId < rows[j].RowId
	})
	if len(rows) > topK {
		rows = rows[:topK]
	}
	return rows
}

// Close stops the meta.json watch and drops the Reader's reference on the
// current snapshot; its segments unmap once the last in-flight search
// finishes.
func (r *Reader) Close() error {
	if r.watch != nil {
		r.watch.Stop()
	}
	r.mu.Lock()
	snap := r.current.Swap(nil)
	r.mu.Unlock()
	if snap != nil {
		snap.release()
	}
	return nil
}
