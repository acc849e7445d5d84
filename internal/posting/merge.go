package posting

// Merge performs a K-way merge of postings for the same dimension drawn
// from disjoint segments. Each row id lives in exactly one source segment,
// so this is a straightforward multi-way merge by ascending row id, never
// an upsert-with-conflict-resolution.
func Merge(shape Shape, quantize bool, lists ...*List) (*List, error) {
	positions := make([]int, len(lists))
	total := 0
	for _, l := range lists {
		total += len(l.Elements)
	}

	merged := make([]Element, 0, total)
	for {
		bestIdx := -1
		for i, l := range lists {
			if positions[i] >= len(l.Elements) {
				continue
			}
			if bestIdx == -1 || l.Elements[positions[i]].RowId < lists[bestIdx].Elements[positions[bestIdx]].RowId {
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			break
		}
		merged = append(merged, lists[bestIdx].Elements[positions[bestIdx]])
		positions[bestIdx]++
	}

	b, err := NewBuilder(shape, FinalizeOnce, quantize)
	if err != nil {
		return nil, err
	}
	for _, e := range merged {
		b.Upsert(e.RowId, e.Weight)
	}
	return b.Build()
}
