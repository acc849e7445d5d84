package bitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromBytesLSBIsRowZero(t *testing.T) {
	// byte 0b00000101 -> rows 0 and 2 alive.
	a := FromBytes([]byte{0b00000101})
	assert.True(t, a.IsAlive(0))
	assert.False(t, a.IsAlive(1))
	assert.True(t, a.IsAlive(2))
	assert.False(t, a.IsAlive(3))
}

func TestNilAliveMeansEverAlive(t *testing.T) {
	var a *Alive
	assert.True(t, a.IsAlive(12345))
}

func TestRoundTrip(t *testing.T) {
	orig := []byte{0b10110001, 0b00000001}
	a := FromBytes(orig)
	got := a.ToBytes(15)
	assert.Equal(t, orig, got)
}
