package quant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuantizeRoundTrip(t *testing.T) {
	weights := []float32{1, 5, 10, 2, 8}
	encoded, p := QuantizeSlice(weights)
	bound := RoundTripErrorBound(1, 10)
	for i, w := range weights {
		got := Dequantize(encoded[i], p)
		assert.LessOrEqual(t, absF32(w-got), bound+1e-5)
	}
}

func TestQuantizeDegenerate(t *testing.T) {
	encoded, p := QuantizeSlice([]float32{7, 7, 7})
	assert.Equal(t, Param{Scale: 0, Offset: 7}, p)
	for _, q := range encoded {
		assert.Equal(t, float32(7), Dequantize(q, p))
	}
}

func TestLegalTransforms(t *testing.T) {
	assert.True(t, Legal("f32", "u8"))
	assert.True(t, Legal("f16", "u8"))
	assert.True(t, Legal("f32", "f32"))
	assert.False(t, Legal("u8", "u8_quantized_again"))
	assert.False(t, Legal("f32", "f16"))
}

func absF32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}
