// Package posting implements the posting-list family: simple and
// extended elements, sorted posting lists, builders with upsert and
// max_next_weight propagation, K-way mergers, and the uniform iterator
// contract. The block-compressed variant lives in the compressed
// subpackage.
package posting

import (
	"math"

	"github.com/myscale/sparse-index/internal/quant"
	"github.com/myscale/sparse-index/internal/types"
)

// Shape distinguishes simple from extended posting elements. It is a
// posting-level property, never per-element.
type Shape int

const (
	Simple Shape = iota
	Extended
)

// NegInf is the max_next_weight sentinel for the tail element of an
// extended posting.
var NegInf = float32(math.Inf(-1))

// Element is one entry of a posting list, already de-quantized to its
// original weight domain. MaxNextWeight is meaningful only when the
// owning list's Shape is Extended.
type Element struct {
	RowId         types.RowId
	Weight        float32
	MaxNextWeight float32
}

// List is an immutable, sorted-by-row-id sequence of elements held
// entirely in memory (as opposed to the block-compressed on-disk layout in
// the compressed subpackage).
type List struct {
	Shape    Shape
	Elements []Element
	Quant    *quant.Param // nil if this posting is not quantized
}

// LastRowId returns the row id of the last element, or false if the list
// is empty.
func (l *List) LastRowId() (types.RowId, bool) {
	if len(l.Elements) == 0 {
		return 0, false
	}
	return l.Elements[len(l.Elements)-1].RowId, true
}

// CheckAscending verifies that row ids are strictly ascending and
// duplicate-free. Used by debug assertions and tests, not on the hot
// path.
func (l *List) CheckAscending() bool {
	for i := 1; i < len(l.Elements); i++ {
		if l.Elements[i-1].RowId >= l.Elements[i].RowId {
			return false
		}
	}
	return true
}

// CheckMaxNextWeight verifies, for extended postings, that each
// element's MaxNextWeight is at least the max weight of all elements
// strictly after it, and that the tail sentinel is -Inf.
func (l *List) CheckMaxNextWeight() bool {
	if l.Shape != Extended || len(l.Elements) == 0 {
		return true
	}
	if l.Elements[len(l.Elements)-1].MaxNextWeight != NegInf {
		return false
	}
	runningMax := NegInf
	for i := len(l.Elements) - 1; i >= 0; i-- {
		if i < len(l.Elements)-1 && l.Elements[i].MaxNextWeight < runningMax {
			return false
		}
		if l.Elements[i].Weight > runningMax {
			runningMax = l.Elements[i].Weight
		}
	}
	return true
}
