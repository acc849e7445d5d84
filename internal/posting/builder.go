package posting

import (
	"fmt"
	"sort"

	"github.com/myscale/sparse-index/internal/quant"
	"github.com/myscale/sparse-index/internal/sparseerr"
	"github.com/myscale/sparse-index/internal/types"
)

// MaxNextWeightPolicy selects how an extended posting's MaxNextWeight
// fields are computed. The two policies are mutually exclusive for a
// given Builder.
type MaxNextWeightPolicy int

const (
	// PropagateOnUpsert re-establishes the invariant leftward on every
	// mutation.
	PropagateOnUpsert MaxNextWeightPolicy = iota
	// FinalizeOnce defers the computation to a single right-to-left pass
	// at Build time.
	FinalizeOnce
)

// Builder accumulates (row_id, weight) upserts for one dimension's
// posting, in any insertion order, and produces an immutable List.
type Builder struct {
	shape    Shape
	policy   MaxNextWeightPolicy
	quantize bool

	byRow map[types.RowId]int
	rows  []types.RowId
	elems []Element

	memBytes int
}

// NewBuilder creates a posting builder for the given shape. quantize
// requests a QuantizedParam on Build; policy is ignored for Simple
// postings. quantize+Extended is illegal.
func NewBuilder(shape Shape, policy MaxNextWeightPolicy, quantize bool) (*Builder, error) {
	if shape == Extended && quantize {
		return nil, fmt.Errorf("posting: extended postings cannot be quantized (max_next_weight semantics would be lost)")
	}
	return &Builder{
		shape:    shape,
		policy:   policy,
		quantize: quantize,
		byRow:    make(map[types.RowId]int),
	}, nil
}

// Upsert inserts or updates the weight for rowID. Returns true if this was
// a new row, false if an existing row's weight was overwritten.
func (b *Builder) Upsert(rowID types.RowId, weight float32) bool {
	if idx, ok := b.byRow[rowID]; ok {
		b.elems[idx].Weight = weight
		if b.shape == Extended && b.policy == PropagateOnUpsert {
			b.propagateFrom(idx)
		}
		return false
	}

	// Insertion-sort position: callers may upsert out of row-id order.
	pos := sort.Search(len(b.rows), func(i int) bool { return b.rows[i] >= rowID })
	b.rows = append(b.rows, 0)
	copy(b.rows[pos+1:], b.rows[pos:])
	b.rows[pos] = rowID

	elem := Element{RowId: rowID, Weight: weight, MaxNextWeight: NegInf}
	b.elems = append(b.elems, Element{})
	copy(b.elems[pos+1:], b.elems[pos:])
	b.elems[pos] = elem

	for row, idx := range b.byRow {
		if idx >= pos {
			b.byRow[row] = idx + 1
		}
	}
	b.byRow[rowID] = pos

	if b.shape == Extended && b.policy == PropagateOnUpsert {
		b.propagateFrom(pos)
	}

	b.memBytes += 4 + 4 + 4
	return true
}

// propagateFrom re-establishes the max_next_weight invariant for every
// element at or before idx, since a mutation at idx can only affect
// elements strictly before it.
func (b *Builder) propagateFrom(idx int) {
	running := NegInf
	if idx+1 < len(b.elems) {
		running = b.elems[idx+1].MaxNextWeight
		if b.elems[idx+1].Weight > running {
			running = b.elems[idx+1].Weight
		}
	}
	for i := idx; i >= 0; i-- {
		b.elems[i].MaxNextWeight = running
		if b.elems[i].Weight > running {
			running = b.elems[i].Weight
		}
	}
}

// finalizeMaxNextWeight performs the single right-to-left pass used by the
// FinalizeOnce policy.
func (b *Builder) finalizeMaxNextWeight() {
	running := NegInf
	for i := len(b.elems) - 1; i >= 0; i-- {
		b.elems[i].MaxNextWeight = running
		if b.elems[i].Weight > running {
			running = b.elems[i].Weight
		}
	}
}

// MemoryUsage returns an approximate byte count of accumulated state,
// consulted by callers after each insert to drive flush decisions.
func (b *Builder) MemoryUsage() int {
	return b.memBytes
}

// Build freezes the accumulated upserts into an immutable List. Debug
// builds (the sparseindex_debug tag) re-verify strict row-id ascendingness
// and the max_next_weight invariant; release builds trust the upsert
// discipline.
func (b *Builder) Build() (*List, error) {
	if b.shape == Extended && b.policy == FinalizeOnce {
		b.finalizeMaxNextWeight()
	}

	list := &List{Shape: b.shape, Elements: b.elems}
	if sparseerr.DebugAssertions {
		if !list.CheckAscending() {
			return nil, sparseerr.Violation("posting row ids not strictly ascending")
		}
		if !list.CheckMaxNextWeight() {
			return nil, sparseerr.Violation("posting max_next_weight invariant violated")
		}
	}
	if b.quantize {
		weights := make([]float32, len(b.elems))
		for i, e := range b.elems {
			weights[i] = e.Weight
		}
		if len(weights) > 0 {
			_, p := quant.QuantizeSlice(weights)
			list.Quant = &p
		}
	}
	return list, nil
}
