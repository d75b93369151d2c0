package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/netaudio/netaudio/pcm"
	"github.com/netaudio/netaudio/timing"
)

type fakePort struct{ samples []float32 }

func (p *fakePort) Samples() []float32 { return p.samples }

func testFormat() pcm.Format {
	return pcm.Format{
		SampleRate:   pcm.MustSampleRate(48000),
		ChannelCount: 2,
		BufferSize:   32,
		SampleType:   pcm.IEEF32,
	}
}

// One engine cycle's worth of input samples should reach the stream's
// consumer byte-for-byte, f32-encoded.
func TestInputStreamProcessEncodesBoundPorts(t *testing.T) {
	format := testFormat()
	in := NewInputStream(format, 32, timing.NopWaker{})
	left := &fakePort{samples: []float32{0.1, 0.2}}
	right := &fakePort{samples: []float32{-0.1, -0.2}}
	in.Bind([]PortBuffer{left, right})

	in.process(2, 0)

	avail := in.Consumer().AvailableRead()
	assert.Equal(t, 2*2*4, avail)
}

// Bytes written to an OutputStream's producer should scatter back into
// the bound ports in interleaved order.
func TestOutputStreamProcessDecodesIntoBoundPorts(t *testing.T) {
	format := testFormat()
	out := NewOutputStream(format, 32)
	left := &fakePort{samples: make([]float32, 2)}
	right := &fakePort{samples: make([]float32, 2)}
	out.Bind([]PortBuffer{left, right})

	var encoded []byte
	for _, v := range []float32{1, 10, 2, 20} {
		var buf [4]byte
		floatToWire(v, pcm.IEEF32, buf[:])
		encoded = append(encoded, buf[:]...)
	}
	written := out.producer.WriteAll(encoded)
	assert.Equal(t, len(encoded), written)

	out.process(2)

	assert.Equal(t, []float32{1, 2}, left.samples)
	assert.Equal(t, []float32{10, 20}, right.samples)
}

// Underrun pads with silence rather than stale data.
func TestOutputStreamProcessPadsSilenceOnUnderrun(t *testing.T) {
	format := testFormat()
	out := NewOutputStream(format, 32)
	left := &fakePort{samples: make([]float32, 2)}
	right := &fakePort{samples: make([]float32, 2)}
	out.Bind([]PortBuffer{left, right})

	out.process(2)

	assert.Equal(t, []float32{0, 0}, left.samples)
	assert.Equal(t, []float32{0, 0}, right.samples)
}

// The first cycle observed becomes frame zero, regardless of the raw
// counter value reported by the engine.
func TestReanchorCapturesFirstCycleAsFrameZero(t *testing.T) {
	h := &Handler{}
	assert.Equal(t, int64(0), h.reanchor(123456))
	assert.Equal(t, int64(10), h.reanchor(123466))
}

// A later cycle reporting an index before the current anchor (the
// engine's counter went backwards, e.g. it restarted) is treated as a
// fresh start rather than negative drift.
func TestReanchorRestartsOnNonMonotonicCounter(t *testing.T) {
	h := &Handler{}
	assert.Equal(t, int64(0), h.reanchor(1000))
	assert.Equal(t, int64(100), h.reanchor(1100))

	// counter jumped backwards below the anchor
	assert.Equal(t, int64(0), h.reanchor(500))
	assert.Equal(t, int64(5), h.reanchor(505))
}

type countingWaker struct{ signals int }

func (w *countingWaker) Signal() { w.signals++ }

// Process drives every bound stream and advances the waking clock by the
// total samples written across inputs, signalling once per boundary
// crossed.
func TestHandlerProcessAdvancesClock(t *testing.T) {
	format := testFormat()
	in := NewInputStream(format, 32, timing.NopWaker{})
	in.Bind([]PortBuffer{
		&fakePort{samples: []float32{0.1, 0.2}},
		&fakePort{samples: []float32{0.3, 0.4}},
	})
	out := NewOutputStream(format, 32)
	out.Bind([]PortBuffer{
		&fakePort{samples: make([]float32, 2)},
		&fakePort{samples: make([]float32, 2)},
	})

	waker := &countingWaker{}
	clock := timing.NewWakingClock(4, waker) // 2 frames * 2 channels == period
	h := NewHandler([]*InputStream{in}, []*OutputStream{out}, clock)

	h.Process(2, 42)
	assert.Equal(t, 1, waker.signals)
}
