// Package quant implements min-max linear quantization of posting
// weights to uint8 storage.
package quant

import "github.com/viterin/vek/vek32"

// Param recovers the original weight from a quantized u8 value:
// w ≈ Offset + Scale*u8, with Scale derived as (max-min)/255.
type Param struct {
	Scale  float32
	Offset float32
}

// ComputeParam derives the quantization parameter from the minimum and
// maximum finite weight observed in a posting. The degenerate case (empty
// or all-equal range) yields Scale=0, so Dequantize always returns Offset.
func ComputeParam(min, max float32) Param {
	return Param{Scale: (max - min) / 255, Offset: min}
}

// MinMax scans a weight slice for its minimum and maximum values using
// vek32's vectorized reduction. Panics if weights is empty; callers must
// special-case the empty posting themselves: the degenerate case this
// package handles is an empty *value range*, not an empty slice call
// here.
func MinMax(weights []float32) (min, max float32) {
	return vek32.Min(weights), vek32.Max(weights)
}

// Quantize encodes w into a u8 using p, clamping to [0, 255].
func Quantize(w float32, p Param) uint8 {
	if p.Scale == 0 {
		return 0
	}
	v := (w - p.Offset) / p.Scale
	if v < 0 {
		v = 0
	} else if v > 255 {
		v = 255
	}
	return uint8(v + 0.5)
}

// QuantizeSlice quantizes an entire weight slice, returning the derived
// parameter alongside the encoded bytes.
func QuantizeSlice(weights []float32) ([]uint8, Param) {
	if len(weights) == 0 {
		return nil, Param{}
	}
	min, max := MinMax(weights)
	p := ComputeParam(min, max)
	out := make([]uint8, len(weights))
	for i, w := range weights {
		out[i] = Quantize(w, p)
	}
	return out, p
}

// Dequantize decodes a u8 storage value back to float32 using p.
func Dequantize(q uint8, p Param) float32 {
	return p.Offset + p.Scale*float32(q)
}

// RoundTripErrorBound returns the maximum possible |w - dequantize(quantize(w))|
// for a posting whose weight range produced p.
func RoundTripErrorBound(min, max float32) float32 {
	return (max - min) / 255
}

// Legal reports whether quantizing from `original` storage to `stored`
// storage is a supported transform: only f32->u8 and f16->u8 perform
// real quantization; same-type pairs are a legal identity transform
// carrying no parameter; anything else (including quantizing *to*
// f32/f16, or *from* u8) is illegal.
func Legal(original, stored string) bool {
	if original == stored {
		return true
	}
	return stored == "u8" && (original == "f32" || original == "f16")
}
