package invindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexMetaRoundTrip(t *testing.T) {
	m := &IndexMeta{
		Opstamp: 7,
		Payload: "note",
		Segments: []SegmentRecord{
			{SegmentId: "abc", Compressed: true, Info: &SegmentMeta{FormatVersion: FormatVersion, VectorCount: 3}},
		},
	}
	data, err := m.Marshal()
	require.NoError(t, err)

	parsed, err := UnmarshalIndexMeta(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), parsed.Opstamp)
	assert.Equal(t, "note", parsed.Payload)
	require.Len(t, parsed.Segments, 1)
	assert.Equal(t, "abc", parsed.Segments[0].SegmentId)
	assert.True(t, parsed.Segments[0].Compressed)
	assert.Equal(t, uint32(3), parsed.Segments[0].Info.VectorCount)
}

func TestIncompatibleIndexRejected(t *testing.T) {
	m := &SegmentMeta{FormatVersion: FormatVersion + 1}
	data, err := m.Marshal()
	require.NoError(t, err)

	_, err = UnmarshalSegmentMeta(data)
	require.Error(t, err)
}
