// Package sparseindex is the public library surface over the sparse
// vector inverted-index engine: create/open an index for writing, insert
// rows, commit, and open a reader to run pruned top-K similarity search.
// The operation set a host would reach over an FFI boundary
// (create_index, insert_sparse_vector, commit_index, free_index_writer,
// load_index_reader, free_index_reader, sparse_search) is exposed as
// idiomatic Go handles instead of path-keyed function calls: every
// operation is a method on a *Writer or *Reader returned by Create/Open,
// and every error is a plain Go error rather than an
// {ok, is_error, message} record.
package sparseindex

import (
	"context"
	"os"
	"path/filepath"

	"github.com/myscale/sparse-index/internal/config"
	"github.com/myscale/sparse-index/internal/posting"
	"github.com/myscale/sparse-index/internal/reader"
	"github.com/myscale/sparse-index/internal/telemetry"
	"github.com/myscale/sparse-index/internal/types"
	"github.com/myscale/sparse-index/internal/writer"
)

// Re-exported so callers never need to import the internal packages
// directly.
type (
	StorageKind = writer.StorageKind
	WeightType  = writer.WeightType
	ScoredRow   = struct {
		RowId uint32
		Score float32
	}
)

const (
	StorageRAM            = writer.StorageRAM
	StorageMmap           = writer.StorageMmap
	StorageCompressedMmap = writer.StorageCompressedMmap

	WeightF32 = writer.WeightF32
	WeightF16 = writer.WeightF16
	WeightU8  = writer.WeightU8
)

// Settings is the create_index settings record: storage kind, weight
// type, element shape, and whether postings are quantized.
type Settings struct {
	Storage   StorageKind
	Weight    WeightType
	Extended  bool
	Quantized bool
}

func (s Settings) toWriterSettings() writer.Settings {
	shape := posting.Simple
	if s.Extended {
		shape = posting.Extended
	}
	return writer.Settings{Storage: s.Storage, WeightType: s.Weight, Shape: shape, Quantized: s.Quantized}
}

// Element is one (dimension, weight) pair of a row being inserted. The
// FFI triple's numeric-source tag has no Go counterpart: callers supply
// weights already decoded to float32 (the engine's scoring representation
// regardless of on-disk storage type), and the engine applies f32→u8 or
// f16→u8 storage quantization itself when the index's settings ask for
// it.
type Element struct {
	DimId  uint32
	Weight float32
}

// Writer is a handle to one index open for writing. create_index,
// insert_sparse_vector, commit_index, and free_index_writer are its
// constructor and three methods.
type Writer struct {
	inner *writer.IndexWriter
}

// CreateIndex (the create_index operation) prepares path as a fresh (or
// reopens an existing) index directory under settings and returns a
// writer handle. Engine-wide tunables (worker count, memory budget, merge
// policy) come from cfg; pass config.Default() for the standard
// configuration. telemetryStore may be nil to skip commit-history
// recording.
func CreateIndex(path string, settings Settings, cfg config.EngineConfig, telemetryStore *telemetry.Store) (*Writer, error) {
	w, err := writer.Open(path, settings.toWriterSettings(), cfg, telemetryStore)
	if err != nil {
		return nil, err
	}
	return &Writer{inner: w}, nil
}

// OpenIndex reopens an existing index for writing under the settings
// persisted at create time, so operator tooling never has to re-state
// (and risk clobbering) the storage/weight/shape configuration. A
// directory with no settings.json yet falls back to mmap/f32 defaults.
func OpenIndex(path string, cfg config.EngineConfig, telemetryStore *telemetry.Store) (*Writer, error) {
	s := Settings{Storage: StorageMmap, Weight: WeightF32}
	if data, err := os.ReadFile(filepath.Join(path, writer.SettingsFileName)); err == nil {
		ws, err := writer.UnmarshalSettings(data)
		if err != nil {
			return nil, err
		}
		s = Settings{
			Storage:   ws.Storage,
			Weight:    ws.WeightType,
			Extended:  ws.Shape == posting.Extended,
			Quantized: ws.Quantized,
		}
	}
	return CreateIndex(path, s, cfg, telemetryStore)
}

// InsertSparseVector (the insert_sparse_vector operation) adds one row's
// elements to the index. Blocks while the ingestion pipeline is full, or
// until ctx is cancelled.
func (w *Writer) InsertSparseVector(ctx context.Context, rowID uint32, elements []Element) error {
	vec := &types.SparseVector[float32]{
		Indices: make([]uint32, len(elements)),
		Values:  make([]float32, len(elements)),
	}
	for i, e := range elements {
		vec.Indices[i] = e.DimId
		vec.Values[i] = e.Weight
	}
	return w.inner.AddDocument(ctx, rowID, vec)
}

// CommitIndex (the commit_index operation) atomically publishes every
// row added since the last commit and returns the new opstamp.
func (w *Writer) CommitIndex(ctx context.Context, payload string) (uint64, error) {
	return w.inner.Commit(ctx, payload)
}

// Rollback discards every uncommitted row added since the last commit.
func (w *Writer) Rollback(ctx context.Context) error {
	return w.inner.Rollback(ctx)
}

// GarbageCollect deletes any directory-managed file no committed or
// uncommitted segment still references.
func (w *Writer) GarbageCollect() error {
	return w.inner.GarbageCollect()
}

// FreeIndexWriter (the free_index_writer operation) releases the writer,
// waiting for in-flight merges, and releases the directory lock.
func (w *Writer) FreeIndexWriter() error {
	return w.inner.Close()
}

// Reader is a handle to one index open for search. load_index_reader,
// sparse_search, and free_index_reader are its constructor and two
// methods.
type Reader struct {
	inner *reader.Reader
}

// LoadIndexReader (the load_index_reader operation) opens a reader over
// path's most recently committed state and subscribes to subsequent
// commits, under the default engine configuration.
func LoadIndexReader(path string) (*Reader, error) {
	return LoadIndexReaderWithConfig(path, config.Default())
}

// LoadIndexReaderWithConfig is LoadIndexReader with explicit engine-wide
// tunables, of which the reader honors the search settings (scoring
// batch size).
func LoadIndexReaderWithConfig(path string, cfg config.EngineConfig) (*Reader, error) {
	cfg.Normalize()
	r, err := reader.Open(path, cfg.Search)
	if err != nil {
		return nil, err
	}
	return &Reader{inner: r}, nil
}

// SparseSearch (the sparse_search operation) runs a pruned top-K
// inner-product search over the index's currently loaded snapshot.
// aliveBitmapBytes is a byte-packed row-alive bitmap (LSB = row 0); pass nil with
// enableFilter false to search every row. ctx cancellation takes effect
// between scoring batches, never mid-batch.
func (r *Reader) SparseSearch(ctx context.Context, queryElements []Element, aliveBitmapBytes []byte, enableFilter bool, topK int) ([]ScoredRow, error) {
	vec := &types.SparseVector[float32]{
		Indices: make([]uint32, len(queryElements)),
		Values:  make([]float32, len(queryElements)),
	}
	for i, e := range queryElements {
		vec.Indices[i] = e.DimId
		vec.Values[i] = e.Weight
	}

	rows, err := r.inner.Search(ctx, vec, aliveBitmapBytes, enableFilter, topK)
	if err != nil {
		return nil, err
	}
	out := make([]ScoredRow, len(rows))
	for i, row := range rows {
		out[i] = ScoredRow{RowId: row.RowId, Score: row.Score}
	}
	return out, nil
}

// Opstamp returns the opstamp of the reader's currently loaded snapshot.
func (r *Reader) Opstamp() uint64 { return r.inner.Opstamp() }

// SegmentCount returns how many segments the reader's current snapshot
// holds.
func (r *Reader) SegmentCount() int { return r.inner.SegmentCount() }

// VectorCount returns the total number of rows across every segment in the
// reader's current snapshot.
func (r *Reader) VectorCount() uint64 { return r.inner.VectorCount() }

// FreeIndexReader (the free_index_reader operation) releases the
// reader's watch subscription and every open segment.
func (r *Reader) FreeIndexReader() error {
	return r.inner.Close()
}
