// Package search implements the WAND-style pruned query executor: query
// setup, the batched main loop with longest-posting pruning, the
// single-posting tail fast path, and the plain brute-force search used
// to validate the pruned path.
package search

import (
	"container/heap"
	"math"
	"sort"

	"github.com/myscale/sparse-index/internal/types"
)

// ScoredRow is one query result: a row id and its inner-product score.
type ScoredRow struct {
	RowId types.RowId
	Score types.ScoreType
}

// topKHeap is a bounded min-heap over ScoredRow: the root is always the
// current lowest score, so Push-then-Pop-the-min keeps only the K best.
type topKHeap struct {
	items []ScoredRow
	cap   int
}

func newTopKHeap(k int) *topKHeap {
	h := &topKHeap{cap: k}
	heap.Init(h)
	return h
}

func (h *topKHeap) Len() int            { return len(h.items) }
func (h *topKHeap) Less(i, j int) bool  { return h.items[i].Score < h.items[j].Score }
func (h *topKHeap) Swap(i, j int)       { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *topKHeap) Push(x interface{})  { h.items = append(h.items, x.(ScoredRow)) }
func (h *topKHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// Threshold returns the current K-th best score, or -Inf if the heap has
// not yet filled to capacity (anything scores above -Inf, so every
// candidate is provisionally admitted until the heap fills).
func (h *topKHeap) Threshold() types.ScoreType {
	if h.cap == 0 || len(h.items) < h.cap {
		return types.ScoreType(math.Inf(-1))
	}
	return h.items[0].Score
}

// PushCandidate inserts row/score, evicting the current minimum if the
// heap is already at capacity.
func (h *topKHeap) PushCandidate(row types.RowId, score types.ScoreType) {
	if h.cap == 0 {
		return
	}
	if len(h.items) < h.cap {
		heap.Push(h, ScoredRow{RowId: row, Score: score})
		return
	}
	if score <= h.items[0].Score {
		return
	}
	heap.Pop(h)
	heap.Push(h, ScoredRow{RowId: row, Score: score})
}

// Results drains the heap into descending-score order, ties broken by
// ascending row id.
func (h *topKHeap) Results() []ScoredRow {
	out := make([]ScoredRow, len(h.items))
	copy(out, h.items)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].RowId < out[j].RowId
	})
	return out
}
