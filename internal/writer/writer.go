package writer

import (
	"context"
	"sync"

	"github.com/myscale/sparse-index/internal/config"
	"github.com/myscale/sparse-index/internal/directory"
	"github.com/myscale/sparse-index/internal/invindex"
	"github.com/myscale/sparse-index/internal/posting"
	"github.com/myscale/sparse-index/internal/segment"
	"github.com/myscale/sparse-index/internal/sparseerr"
	"github.com/myscale/sparse-index/internal/telemetry"
	"github.com/myscale/sparse-index/internal/types"
	"github.com/myscale/sparse-index/internal/updater"
)

// addTask is one row handed to the worker pool over the ingestion
// channel.
type addTask struct {
	row    types.RowId
	vector *types.SparseVector[float32]
	done   chan error
}

// IndexWriter is the sole writer for one index directory: it owns the
// writer-exclusion lock for its lifetime, fans ingested rows out across a
// worker pool, and hands finished segments to the updater for
// registration, commit, and background merge.
type IndexWriter struct {
	dir       *directory.Directory
	settings  Settings
	cfg       config.WriterConfig
	lock      *directory.LockHandle
	stamper   *Stamper
	updater   *updater.Updater
	telemetry *telemetry.Store

	rowCh chan addTask
	wg    sync.WaitGroup
}

// Open acquires the writer lock, writes settings.json from settings, and
// starts the worker pool and updater. It also opens an existing index for
// writing when one is already present at path.
func Open(path string, settings Settings, cfg config.EngineConfig, telemetryStore *telemetry.Store) (*IndexWriter, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	cfg.Normalize()

	dir, err := directory.Open(path)
	if err != nil {
		return nil, sparseerr.IOFailure("open index directory", err)
	}

	lock, err := dir.AcquireLock(directory.WriterLockName)
	if err != nil {
		return nil, sparseerr.LockFailure("acquire writer lock", err)
	}

	data, err := settings.Marshal()
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	if err := dir.AtomicWrite(SettingsFileName, data); err != nil {
		lock.Unlock()
		return nil, sparseerr.IOFailure("write settings.json", err)
	}

	var startOpstamp uint64
	if existing, err := dir.AtomicRead(invindex.IndexMetaFileName); err == nil {
		if meta, err := invindex.UnmarshalIndexMeta(existing); err == nil {
			startOpstamp = meta.Opstamp
		}
	}

	u := updater.New(dir, cfg.Merge, telemetryStore)

	w := &IndexWriter{
		dir:       dir,
		settings:  settings,
		cfg:       cfg.Writer,
		lock:      lock,
		stamper:   NewStamper(startOpstamp),
		updater:   u,
		telemetry: telemetryStore,
		rowCh:     make(chan addTask, cfg.Writer.PipelineMaxDocs),
	}

	for i := 0; i < cfg.Writer.NumThreads; i++ {
		w.wg.Add(1)
		go w.workerLoop()
	}
	return w, nil
}

// AddDocument enqueues one row for ingestion, blocking while the
// ingestion channel is full (applying backpressure) or until ctx is
// cancelled.
func (w *IndexWriter) AddDocument(ctx context.Context, row types.RowId, vector *types.SparseVector[float32]) error {
	if err := vector.Validate(); err != nil {
		return sparseerr.InvalidArgument("invalid sparse vector", err)
	}
	if !vector.IsSorted() {
		vector.SortByIndices()
	}

	task := addTask{row: row, vector: vector, done: make(chan error, 1)}
	select {
	case w.rowCh <- task:
	case <-ctx.Done():
		return sparseerr.InvalidArgument("add_document cancelled", ctx.Err())
	}

	select {
	case err := <-task.done:
		return err
	case <-ctx.Done():
		return sparseerr.InvalidArgument("add_document cancelled", ctx.Err())
	}
}

// workerLoop accumulates rows into a RAMBuilder, flushing to a finished
// segment whenever the per-worker memory budget is exceeded.
func (w *IndexWriter) workerLoop() {
	defer w.wg.Done()

	policy := posting.PropagateOnUpsert
	budget := int(w.cfg.MemoryBudgetBytes/int64(w.cfg.NumThreads) - config.MemoryMarginBytes)
	builder := invindex.NewRAMBuilder(w.settings.Shape, policy, w.settings.Quantized, string(w.settings.WeightType))

	flush := func() {
		if builder.MemoryUsage() == 0 {
			return
		}
		entry, err := w.finalizeSegment(builder)
		builder = invindex.NewRAMBuilder(w.settings.Shape, policy, w.settings.Quantized, string(w.settings.WeightType))
		if err != nil {
			return
		}
		w.updater.ScheduleAddSegment(entry)
	}

	for task := range w.rowCh {
		err := w.insertVector(builder, task.row, task.vector)
		task.done <- err
		if budget > 0 && builder.MemoryUsage() >= budget {
			flush()
		}
	}
	flush()
}

func (w *IndexWriter) insertVector(builder *invindex.RAMBuilder, row types.RowId, vector *types.SparseVector[float32]) error {
	for i, dim := range vector.Indices {
		if err := builder.Insert(row, dim, vector.Values[i], i == 0); err != nil {
			return sparseerr.SystemError("insert row into segment builder", err)
		}
	}
	return nil
}

func (w *IndexWriter) finalizeSegment(builder *invindex.RAMBuilder) (updater.SegmentEntry, error) {
	ram, err := builder.Build()
	if err != nil {
		return updater.SegmentEntry{}, sparseerr.SystemError("build ram segment", err)
	}

	id := segment.NewId()
	var info *invindex.SegmentMeta
	compressed := w.settings.Storage == StorageCompressedMmap
	if compressed {
		info, err = invindex.WriteCompressed(w.dir, id, ram, w.settings.Shape, w.settings.Quantized)
	} else {
		info, err = invindex.WriteSimple(w.dir, id, ram, w.settings.Shape, w.settings.Quantized)
	}
	if err != nil {
		return updater.SegmentEntry{}, sparseerr.IOFailure("write segment", err)
	}

	meta := segment.NewMeta(w.dir.Root(), id, info.VectorCount)
	return updater.SegmentEntry{Meta: meta, Info: info, Compressed: compressed}, nil
}

// Commit flushes every worker's pending rows into fresh segments, assigns
// the next opstamp, and atomically publishes the committed segment set.
// Once it returns, the published state survives a crash.
func (w *IndexWriter) Commit(ctx context.Context, payload string) (uint64, error) {
	if err := w.drainWorkers(ctx); err != nil {
		return 0, err
	}
	opstamp := w.stamper.Advance()
	if err := w.updater.ScheduleCommit(opstamp, payload); err != nil {
		return 0, err
	}
	return opstamp, nil
}

// drainWorkers stops the current worker goroutines (forcing their final
// flush) and restarts a fresh pool, so Commit observes every row added
// before it was called without tearing down the writer.
func (w *IndexWriter) drainWorkers(ctx context.Context) error {
	close(w.rowCh)
	w.wg.Wait()

	w.rowCh = make(chan addTask, w.cfg.PipelineMaxDocs)
	for i := 0; i < w.cfg.NumThreads; i++ {
		w.wg.Add(1)
		go w.workerLoop()
	}
	return ctx.Err()
}

// Rollback discards every uncommitted segment added since the last
// commit.
func (w *IndexWriter) Rollback(ctx context.Context) error {
	if err := w.drainWorkers(ctx); err != nil {
		return err
	}
	return w.updater.ScheduleRollback()
}

// Close releases the writer: it stops ingestion, waits for in-flight
// merges, and releases the directory lock. IndexWriter holds the
// directory lock for its lifetime; closing it releases the lock.
func (w *IndexWriter) Close() error {
	close(w.rowCh)
	w.wg.Wait()
	w.updater.WaitMergingThread()
	w.updater.Kill()
	w.updater.Close()
	return w.lock.Unlock()
}

// Directory exposes the writer's directory handle for callers that need
// to open a reader against the same root (pkg/sparseindex's facade).
func (w *IndexWriter) Directory() *directory.Directory { return w.dir }

// GarbageCollect requests an immediate GC pass over the directory,
// outside the normal post-commit/post-merge triggers.
func (w *IndexWriter) GarbageCollect() error {
	return w.updater.ScheduleGarbageCollect()
}
