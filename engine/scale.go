package engine

import "github.com/netaudio/netaudio/pcm"

// floatToWire converts one engine sample (always f32, per the external
// engine's port-view contract) into sampleSize bytes of t's wire
// representation, scaling into t's full integer range when t is not
// itself a float type.
func floatToWire(v float32, t pcm.SampleType, buf []byte) {
	if t.IsFloat() {
		pcm.ToBytesFloat(t, float64(v), buf)
		return
	}
	pcm.ToBytesInt64(t, scaleToInt(v, t), buf)
}

// wireToFloat is the inverse of floatToWire.
func wireToFloat(t pcm.SampleType, buf []byte) float32 {
	if t.IsFloat() {
		return float32(pcm.FromBytesFloat(t, buf))
	}
	return scaleToFloat(pcm.FromBytesInt64(t, buf), t)
}

func clamp32(v float32) float32 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return v
	}
}

func scaleToInt(v float32, t pcm.SampleType) int64 {
	v = clamp32(v)
	bits := uint(t.Size() * 8)
	if t.IsSigned() {
		max := float64(int64(1)<<(bits-1) - 1)
		return int64(float64(v) * max)
	}
	half := int64(1) << (bits - 1)
	return half + int64(float64(v)*float64(half-1))
}

func scaleToFloat(n int64, t pcm.SampleType) float32 {
	bits := uint(t.Size() * 8)
	if t.IsSigned() {
		max := float64(int64(1)<<(bits-1) - 1)
		return float32(float64(n) / max)
	}
	half := int64(1) << (bits - 1)
	return float32(float64(n-half) / float64(half-1))
}
