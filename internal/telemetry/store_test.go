package telemetry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.db")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.RecordCommit(1, 1000, 2, 10, ""))
	require.NoError(t, store.RecordCommit(2, 2000, 3, 25, "payload"))

	history, err := store.History()
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, uint64(1), history[0].Opstamp)
	assert.Equal(t, uint64(2), history[1].Opstamp)
	assert.Equal(t, "payload", history[1].Payload)

	latest, ok, err := store.LatestOpstamp()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(2), latest)
}

func TestLatestOpstampEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.db")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.LatestOpstamp()
	require.NoError(t, err)
	assert.False(t, ok)
}
