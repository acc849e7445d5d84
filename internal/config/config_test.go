package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsAlreadyNormalized(t *testing.T) {
	cfg := Default()
	normalized := cfg
	normalized.Normalize()
	assert.Equal(t, cfg, normalized)
}

func TestNormalizeClampsWriterThreads(t *testing.T) {
	cfg := EngineConfig{Writer: WriterConfig{NumThreads: 99, MemoryBudgetBytes: 1}}
	cfg.Normalize()
	assert.Equal(t, MaxWriterThreads, cfg.Writer.NumThreads)
	assert.Equal(t, MemoryBudgetMin, cfg.Writer.MemoryBudgetBytes)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")

	cfg := Default()
	cfg.Writer.NumThreads = 2
	cfg.Merge.MinMergeSize = 5
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Writer.NumThreads)
	assert.Equal(t, 5, loaded.Merge.MinMergeSize)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.Equal(t, Default(), cfg)
}
