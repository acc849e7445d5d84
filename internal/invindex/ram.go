// Package invindex implements the inverted-index RAM and mmap layouts: a
// dense per-dimension vector of posting lists, its on-disk three-file
// mmap form (headers/postings(+row_ids/blocks)/meta), and the merger that
// produces a new on-disk index from K input segments.
package invindex

import (
	"github.com/myscale/sparse-index/internal/posting"
	"github.com/myscale/sparse-index/internal/quant"
	"github.com/myscale/sparse-index/internal/types"
)

// Metrics aggregates index-wide statistics.
type Metrics struct {
	MinRowId, MaxRowId types.RowId
	MinDimId, MaxDimId types.DimId
	VectorCount        uint32
	ElementType        string // "f32", "f16", or "u8"
}

// RAM is a dense vector of posting lists keyed by DimId; gaps hold empty
// (nil) postings.
type RAM struct {
	Lists   []*posting.List
	Quants  []*quant.Param
	Metrics Metrics
}

// Posting returns the posting list for dim, or nil if dim was never
// observed.
func (r *RAM) Posting(dim types.DimId) *posting.List {
	if int(dim) >= len(r.Lists) {
		return nil
	}
	return r.Lists[dim]
}

// RAMBuilder accumulates (row_id, dim_id, weight) triples, grouping them
// by dimension into per-dimension posting.Builders.
type RAMBuilder struct {
	shape    posting.Shape
	policy   posting.MaxNextWeightPolicy
	quantize bool

	builders map[types.DimId]*posting.Builder
	metrics  Metrics
	seen     bool // any triple inserted yet; gates min/max initialization
	memBytes int
}

// NewRAMBuilder creates a RAM index builder for the given shape/policy/
// quantize configuration, shared uniformly across all dimensions.
func NewRAMBuilder(shape posting.Shape, policy posting.MaxNextWeightPolicy, quantize bool, elementType string) *RAMBuilder {
	return &RAMBuilder{
		shape:    shape,
		policy:   policy,
		quantize: quantize,
		builders: make(map[types.DimId]*posting.Builder),
		metrics:  Metrics{ElementType: elementType},
	}
}

// Insert adds one (row, dim, weight) triple. vectorBoundary should be true
// only on the first call for a given row, so VectorCount is counted once
// per row, not once per dimension.
func (b *RAMBuilder) Insert(row types.RowId, dim types.DimId, weight float32, vectorBoundary bool) error {
	bld, ok := b.builders[dim]
	if !ok {
		var err error
		bld, err = posting.NewBuilder(b.shape, b.policy, b.quantize)
		if err != nil {
			return err
		}
		b.builders[dim] = bld
	}
	bld.Upsert(row, weight)
	b.memBytes += 12

	// Row and dim ids legitimately take the value 0, so the first insert
	// seeds the ranges outright rather than comparing against zero-valued
	// fields.
	if !b.seen {
		b.seen = true
		b.metrics.MinRowId, b.metrics.MaxRowId = row, row
		b.metrics.MinDimId, b.metrics.MaxDimId = dim, dim
	} else {
		if row < b.metrics.MinRowId {
			b.metrics.MinRowId = row
		}
		if row > b.metrics.MaxRowId {
			b.metrics.MaxRowId = row
		}
		if dim < b.metrics.MinDimId {
			b.metrics.MinDimId = dim
		}
		if dim > b.metrics.MaxDimId {
			b.metrics.MaxDimId = dim
		}
	}
	if vectorBoundary {
		b.metrics.VectorCount++
	}
	return nil
}

// MemoryUsage approximates accumulated bytes across every per-dimension
// builder, consulted by the writer to decide when to flush.
func (b *RAMBuilder) MemoryUsage() int {
	return b.memBytes
}

// Build freezes every per-dimension builder into an immutable RAM index.
func (b *RAMBuilder) Build() (*RAM, error) {
	maxDim := types.DimId(0)
	for dim := range b.builders {
		if dim > maxDim {
			maxDim = dim
		}
	}

	ram := &RAM{
		Lists:   make([]*posting.List, maxDim+1),
		Quants:  make([]*quant.Param, maxDim+1),
		Metrics: b.metrics,
	}
	for dim, bld := range b.builders {
		list, err := bld.Build()
		if err != nil {
			return nil, err
		}
		ram.Lists[dim] = list
		ram.Quants[dim] = list.Quant
	}
	return ram, nil
}
