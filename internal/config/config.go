// Package config implements engine-wide tunables distinct from the
// per-index JSON settings (writer.Settings, written to the index root's
// settings.json): a nested
// struct-with-defaults holding the handful of knobs that are tunable
// rather than contractual — memory budgets, worker counts, batch size,
// and merge policy thresholds.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// WriterConfig configures the index writer's worker pool and memory
// budget.
type WriterConfig struct {
	// NumThreads is the number of index worker goroutines. Clamped to
	// [1, 8].
	NumThreads int `yaml:"num_threads" json:"num_threads"`

	// MemoryBudgetBytes is the overall memory budget split evenly across
	// NumThreads. Clamped to [MemoryBudgetMin, MemoryBudgetMax].
	MemoryBudgetBytes int64 `yaml:"memory_budget_bytes" json:"memory_budget_bytes"`

	// PipelineMaxDocs bounds the ingestion channel's depth.
	PipelineMaxDocs int `yaml:"pipeline_max_docs" json:"pipeline_max_docs"`
}

// MergePolicyConfig configures the default log-size-tier merge policy.
type MergePolicyConfig struct {
	// MinMergeSize is the minimum number of segments a size tier needs
	// before a merge is scheduled.
	MinMergeSize int `yaml:"min_merge_size" json:"min_merge_size"`

	// MaxMergeSize caps how many segments one merge operation combines.
	MaxMergeSize int `yaml:"max_merge_size" json:"max_merge_size"`

	// TierSizeRatio is the multiplicative size-tier boundary: a segment
	// belongs to the same tier as another if their row counts are within
	// this ratio of each other.
	TierSizeRatio float64 `yaml:"tier_size_ratio" json:"tier_size_ratio"`
}

// SearchConfig configures the query executor's scoring batch size.
type SearchConfig struct {
	// AdvanceBatchSize overrides the executor's default batch size of
	// 10,000. Treated as a tunable, not a contract.
	AdvanceBatchSize int `yaml:"advance_batch_size" json:"advance_batch_size"`
}

// EngineConfig is the top-level engine-wide configuration, loaded from a
// YAML file distinct from any one index's settings JSON.
type EngineConfig struct {
	Writer WriterConfig      `yaml:"writer" json:"writer"`
	Merge  MergePolicyConfig `yaml:"merge" json:"merge"`
	Search SearchConfig      `yaml:"search" json:"search"`
}

const (
	// MemoryBudgetMin is the minimum overall writer memory budget.
	MemoryBudgetMin int64 = 15 << 20
	// MemoryBudgetMax is the maximum overall writer memory budget
	// (u32::MAX - 1 MiB).
	MemoryBudgetMax int64 = (1<<32 - 1) - (1 << 20)
	// MemoryMarginBytes is subtracted from the per-thread budget before
	// comparing against accumulated memory usage.
	MemoryMarginBytes int64 = 1 << 20
	// MaxWriterThreads caps the configurable worker count.
	MaxWriterThreads = 8
)

// Default returns the engine's default configuration.
func Default() EngineConfig {
	return EngineConfig{
		Writer: WriterConfig{
			NumThreads:        4,
			MemoryBudgetBytes: 256 << 20,
			PipelineMaxDocs:   10_000,
		},
		Merge: MergePolicyConfig{
			MinMergeSize:  3,
			MaxMergeSize:  10,
			TierSizeRatio: 2.0,
		},
		Search: SearchConfig{
			AdvanceBatchSize: 10_000,
		},
	}
}

// Normalize clamps out-of-range values to their documented bounds,
// mutating cfg in place.
func (cfg *EngineConfig) Normalize() {
	if cfg.Writer.NumThreads < 1 {
		cfg.Writer.NumThreads = 1
	}
	if cfg.Writer.NumThreads > MaxWriterThreads {
		cfg.Writer.NumThreads = MaxWriterThreads
	}
	if cfg.Writer.MemoryBudgetBytes < MemoryBudgetMin {
		cfg.Writer.MemoryBudgetBytes = MemoryBudgetMin
	}
	if cfg.Writer.MemoryBudgetBytes > MemoryBudgetMax {
		cfg.Writer.MemoryBudgetBytes = MemoryBudgetMax
	}
	if cfg.Writer.PipelineMaxDocs <= 0 {
		cfg.Writer.PipelineMaxDocs = 10_000
	}
	if cfg.Search.AdvanceBatchSize <= 0 {
		cfg.Search.AdvanceBatchSize = 10_000
	}
}

// Load reads and parses an EngineConfig from path, filling any
// zero-valued field from Default() first so a partial YAML file is valid.
func Load(path string) (EngineConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.Normalize()
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg EngineConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
