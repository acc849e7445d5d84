package updater

import (
	"sort"

	"github.com/myscale/sparse-index/internal/config"
	"github.com/myscale/sparse-index/internal/segment"
)

// MergePolicy decides which groups of same-register segments should be
// merged together. Plan may return zero or more disjoint groups; a group
// of fewer than two segments is a no-op.
type MergePolicy interface {
	Plan(candidates []SegmentEntry) [][]segment.Id
}

// LogSizePolicy buckets segments into size tiers where each tier spans a
// TierSizeRatio multiplicative band, then schedules a merge for any tier
// holding at least MinMergeSize segments — the log-scale tiering of
// Lucene-style log-merge policies, applied to row counts.
type LogSizePolicy struct {
	cfg config.MergePolicyConfig
}

func (p LogSizePolicy) Plan(candidates []SegmentEntry) [][]segment.Id {
	if len(candidates) < 2 {
		return nil
	}

	sorted := make([]SegmentEntry, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Info.VectorCount < sorted[j].Info.VectorCount
	})

	ratio := p.cfg.TierSizeRatio
	if ratio <= 1 {
		ratio = 2
	}
	minMerge := p.cfg.MinMergeSize
	if minMerge < 2 {
		minMerge = 2
	}
	maxMerge := p.cfg.MaxMergeSize
	if maxMerge < minMerge {
		maxMerge = minMerge
	}

	var groups [][]segment.Id
	var tier []segment.Id
	var tierFloor uint32

	flush := func() {
		if len(tier) >= minMerge {
			if len(tier) > maxMerge {
				groups = append(groups, tier[:maxMerge])
			} else {
				groups = append(groups, tier)
			}
		}
		tier = nil
	}

	for _, e := range sorted {
		rows := e.Info.VectorCount
		if len(tier) == 0 {
			tierFloor = rows
		} else if tierFloor > 0 && float64(rows) > float64(tierFloor)*ratio {
			flush()
			tierFloor = rows
		}
		tier = append(tier, e.Meta.SegmentId)
		if len(tier) == maxMerge {
			flush()
		}
	}
	flush()

	return groups
}
