package pcm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

var allSampleTypes = []SampleType{U8, U16, U24, U32, U64, I8, I16, I24, I32, I64, IEEF32, IEEF64}

func sampleTypeGen() *rapid.Generator[SampleType] {
	return rapid.SampledFrom(allSampleTypes)
}

// to_bytes(from_bytes(b)) == b for all sample types and all bit
// patterns of the type's width.
func TestRoundTripBytes(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		st := sampleTypeGen().Draw(t, "type")
		b := rapid.SliceOfN(rapid.Byte(), st.Size(), st.Size()).Draw(t, "bytes")

		out := make([]byte, st.Size())
		if st.IsFloat() {
			v := FromBytesFloat(st, b)
			ToBytesFloat(st, v, out)
		} else {
			v := FromBytesInt64(st, b)
			ToBytesInt64(st, v, out)
		}
		assert.Equal(t, b, out)
	})
}

func TestSizeTable(t *testing.T) {
	assert.Equal(t, 1, U8.Size())
	assert.Equal(t, 3, U24.Size())
	assert.Equal(t, 3, I24.Size())
	assert.Equal(t, 4, IEEF32.Size())
	assert.Equal(t, 8, IEEF64.Size())
}

func TestSilenceMidpointBiasForUnsigned(t *testing.T) {
	assert.Equal(t, []byte{0x80}, U8.Silence())
	assert.Equal(t, []byte{0, 0}, I16.Silence())
}

func TestI24SignExtension(t *testing.T) {
	buf := []byte{0xff, 0xff, 0xff}
	assert.Equal(t, int64(-1), FromBytesInt64(I24, buf))
}

func TestSampleRateRejectsNonNormal(t *testing.T) {
	for _, bad := range []float64{0, -1} {
		_, err := NewSampleRate(bad)
		assert.ErrorIs(t, err, ErrInvalidSampleRate)
	}
}

func TestSampleRateAccepts48kHz(t *testing.T) {
	sr, err := NewSampleRate(48000)
	assert.NoError(t, err)
	assert.Equal(t, 48000.0, sr.Hz())
}

func TestChunkSizeHelpers(t *testing.T) {
	f := Format{ChannelCount: 2, BufferSize: 32, SampleType: IEEF32}
	assert.Equal(t, uint32(64), f.ChunkSizeSamples())
	assert.Equal(t, uint32(256), f.ChunkSizeBytes())

	unspecified := Format{ChannelCount: 2, BufferSize: 0, SampleType: IEEF32}
	assert.Equal(t, uint32(0), unspecified.ChunkSizeSamples())
	assert.Equal(t, uint32(0), unspecified.ChunkSizeBytes())
}
