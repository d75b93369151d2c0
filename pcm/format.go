package pcm

import "math"

// SampleRate is a validated audio sample rate: guaranteed positive and
// normal (not zero, subnormal, infinite, or NaN).
type SampleRate struct{ hz float64 }

// NewSampleRate validates hz and returns a SampleRate, or an error if hz
// is not a positive normal float.
func NewSampleRate(hz float64) (SampleRate, error) {
	if !isNormalPositive(hz) {
		return SampleRate{}, ErrInvalidSampleRate
	}
	return SampleRate{hz: hz}, nil
}

// MustSampleRate panics if hz is invalid; for use with compile-time
// constants such as the standard 48 kHz rate.
func MustSampleRate(hz float64) SampleRate {
	sr, err := NewSampleRate(hz)
	if err != nil {
		panic(err)
	}
	return sr
}

// Hz returns the sample rate in Hertz.
func (s SampleRate) Hz() float64 { return s.hz }

// smallestNormalFloat64 is the smallest positive normal (non-subnormal)
// float64, 2^-1022.
var smallestNormalFloat64 = math.Ldexp(1, -1022)

func isNormalPositive(v float64) bool {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v >= smallestNormalFloat64
}

// ErrInvalidSampleRate is returned by NewSampleRate for non-normal or
// non-positive values.
var ErrInvalidSampleRate = errInvalidSampleRate{}

type errInvalidSampleRate struct{}

func (errInvalidSampleRate) Error() string {
	return "pcm: sample rate must be a positive, normal value"
}

// ChannelCount is the number of audio channels in a stream; must be >= 1.
type ChannelCount uint32

// BufferSize is an advisory buffer-size hint, in frames. Zero means
// unspecified; it never constrains datagram sizes.
type BufferSize uint32

// Format fully describes one audio stream's wire layout.
type Format struct {
	SampleRate   SampleRate
	ChannelCount ChannelCount
	BufferSize   BufferSize
	SampleType   SampleType
}

// StandardFormat returns the default format used when none is
// negotiated: 48 kHz, stereo, IEEF32, 32-frame buffering.
func StandardFormat() Format {
	return Format{
		SampleRate:   MustSampleRate(48000),
		ChannelCount: 2,
		BufferSize:   32,
		SampleType:   IEEF32,
	}
}

// ChunkSizeSamples returns channels*bufferSize samples per chunk, or 0 if
// BufferSize is unspecified.
func (f Format) ChunkSizeSamples() uint32 {
	if f.BufferSize == 0 {
		return 0
	}
	return uint32(f.BufferSize) * uint32(f.ChannelCount)
}

// ChunkSizeBytes returns the byte equivalent of ChunkSizeSamples, or 0 if
// unspecified.
func (f Format) ChunkSizeBytes() uint32 {
	n := f.ChunkSizeSamples()
	if n == 0 {
		return 0
	}
	return n * uint32(f.SampleType.Size())
}

// StreamFormats describes all input and output stream formats of a
// server. Counts and contents are fixed for the lifetime of a connection.
type StreamFormats struct {
	Inputs  []Format
	Outputs []Format
}
