// Package engine glues the external real-time audio engine's per-cycle
// callback to the ring-buffer bridge and byte framer. It defines only
// the narrow interface the core needs from that engine — frame-indexed
// port views — never a concrete audio backend; cmd/ binaries supply
// that by adapting a real engine's callback to Handler.Process.
package engine

import (
	"github.com/netaudio/netaudio/framing"
	"github.com/netaudio/netaudio/interleave"
	"github.com/netaudio/netaudio/pcm"
	"github.com/netaudio/netaudio/ring"
	"github.com/netaudio/netaudio/timing"
)

// PortBuffer is a single port's f32 sample view for the current cycle,
// as handed to the callback by the external engine: read-only for an
// input port, write-only for an output port. Its length must equal the
// cycle's frame count.
type PortBuffer interface {
	Samples() []float32
}

// RingCapacitySeconds sizes every ring buffer created by this package:
// capacity = int(seconds * sample_rate) * channels samples, so a
// fractional frame count is truncated, not rounded up (ring.NewBuffer
// then rounds the byte capacity up to a power of two).
const RingCapacitySeconds = 4.0

// InputStream captures one outbound audio stream: engine input ports,
// interleaved and byte-encoded on the audio thread, queued for the
// network thread to drain and send.
type InputStream struct {
	format   pcm.Format
	ports    []PortBuffer
	producer *framing.ByteProducer
	sender   *ring.Sender[byte]
	consumer *ring.Consumer[byte] // handed to the network thread

	scratchF []float32
	scratchB []byte
	portBufs [][]float32
}

// NewInputStream constructs an input stream for format, sized to never
// allocate in the hot path for cycles up to maxFrameCount frames.
func NewInputStream(format pcm.Format, maxFrameCount int, waker timing.Waker) *InputStream {
	channels := int(format.ChannelCount)
	sampleSize := format.SampleType.Size()
	capacitySamples := int(RingCapacitySeconds*format.SampleRate.Hz()) * channels
	buf := ring.NewBuffer[byte](capacitySamples * sampleSize)
	producer, consumer := buf.Split()
	sender := ring.NewSender[byte](producer, waker)
	sender.SetZeroTimestamp(0)

	return &InputStream{
		format:   format,
		producer: framing.NewByteProducer(sampleSize),
		sender:   sender,
		consumer: consumer,
		scratchF: make([]float32, maxFrameCount*channels),
		scratchB: make([]byte, maxFrameCount*channels*sampleSize),
		portBufs: make([][]float32, channels),
	}
}

// Consumer exposes the network-thread-facing read side: drained and
// packaged into AudioData datagrams.
func (s *InputStream) Consumer() *ring.Consumer[byte] { return s.consumer }

// Bind attaches the engine's live port views for this cycle.
func (s *InputStream) Bind(ports []PortBuffer) { s.ports = ports }

// process interleaves the bound ports, encodes the result into wire
// bytes, and pushes them into the ring buffer at byteIdx (the stream's
// global byte offset for the first sample of this cycle).
func (s *InputStream) process(frameCount int, byteIdx uint64) {
	channels := len(s.ports)
	if channels == 0 {
		return
	}
	for i, p := range s.ports {
		s.portBufs[i] = p.Samples()
	}
	n := frameCount * channels
	if err := interleave.Interleave(s.portBufs, s.scratchF[:n]); err != nil {
		return
	}

	sampleSize := s.format.SampleType.Size()
	out := s.scratchB[:0]
	var sampleBuf [8]byte
	i := 0
	pull := s.producer.FeedSamples(func() ([]byte, bool) {
		if i >= n {
			return nil, false
		}
		floatToWire(s.scratchF[i], s.format.SampleType, sampleBuf[:sampleSize])
		i++
		return sampleBuf[:sampleSize], true
	})
	for {
		b, ok := pull()
		if !ok {
			break
		}
		out = append(out, b)
	}

	drift, chunk := s.sender.Send(byteIdx, len(out))
	written := copy(chunk.First, out)
	written += copy(chunk.Second, out[written:])
	chunk.Commit()
	s.sender.Advance(written)
	_ = drift
}

// OutputStream delivers one inbound audio stream to the engine: bytes
// arriving over the network (already reconstructed by a
// framing.BytePadder on the network thread) are queued for the audio
// thread to decode and scatter into output ports, padding with silence
// on underrun.
type OutputStream struct {
	format   pcm.Format
	ports    []PortBuffer
	producer *ring.Producer[byte] // handed to the network thread
	consumer *ring.Consumer[byte]

	scratchF []float32
	scratchB []byte
	portBufs [][]float32
}

// NewOutputStream constructs an output stream for format.
func NewOutputStream(format pcm.Format, maxFrameCount int) *OutputStream {
	channels := int(format.ChannelCount)
	sampleSize := format.SampleType.Size()
	capacitySamples := int(RingCapacitySeconds*format.SampleRate.Hz()) * channels
	buf := ring.NewBuffer[byte](capacitySamples * sampleSize)
	producer, consumer := buf.Split()

	return &OutputStream{
		format:   format,
		producer: producer,
		consumer: consumer,
		scratchF: make([]float32, maxFrameCount*channels),
		scratchB: make([]byte, maxFrameCount*channels*sampleSize),
		portBufs: make([][]float32, channels),
	}
}

// Producer exposes the network-thread-facing write side: fed with the
// bytes a framing.BytePadder reconstructs from inbound datagrams.
func (s *OutputStream) Producer() *ring.Producer[byte] { return s.producer }

// Bind attaches the engine's live port views for this cycle.
func (s *OutputStream) Bind(ports []PortBuffer) { s.ports = ports }

func (s *OutputStream) process(frameCount int) {
	channels := len(s.ports)
	if channels == 0 {
		return
	}
	sampleSize := s.format.SampleType.Size()
	need := frameCount * channels * sampleSize

	chunk := s.consumer.ReadChunk(need)
	avail := chunk.Len()
	b := s.scratchB[:need]
	got := copy(b, chunk.First)
	got += copy(b[got:], chunk.Second)
	chunk.Commit()

	if got < need {
		silence := s.format.SampleType.Silence()
		for i := got; i+sampleSize <= need; i += sampleSize {
			copy(b[i:i+sampleSize], silence)
		}
	}
	_ = avail

	n := frameCount * channels
	for i := 0; i < n; i++ {
		s.scratchF[i] = wireToFloat(s.format.SampleType, b[i*sampleSize:(i+1)*sampleSize])
	}
	for i, p := range s.ports {
		s.portBufs[i] = p.Samples()
	}
	_ = interleave.Deinterleave(s.scratchF[:n], s.portBufs)
}

// Handler is the per-peer glue invoked once per audio-engine cycle: it
// re-anchors the engine's frame counter, then drives every input and
// output stream's ring-buffer traffic.
type Handler struct {
	channelsHint int
	haveStart    bool
	startFrame   int64

	inputs  []*InputStream
	outputs []*OutputStream
	clock   *timing.WakingClock
}

// NewHandler constructs a handler for the given input/output streams,
// paired with a waking clock whose period is the chunk size (channels *
// buffer_size_hint samples) the caller chose for this peer.
func NewHandler(inputs []*InputStream, outputs []*OutputStream, clock *timing.WakingClock) *Handler {
	return &Handler{inputs: inputs, outputs: outputs, clock: clock}
}

// Process runs one audio-engine cycle. It never fails: the audio
// callback always continues.
func (h *Handler) Process(frameCount int, cycleFrameIdx int64) {
	frameIdx := h.reanchor(cycleFrameIdx)

	var totalWritten uint64
	for _, in := range h.inputs {
		channels := len(in.ports)
		byteIdx := uint64(frameIdx) * uint64(channels) * uint64(in.format.SampleType.Size())
		in.process(frameCount, byteIdx)
		totalWritten += uint64(frameCount * channels)
	}
	for _, out := range h.outputs {
		out.process(frameCount)
	}
	if h.clock != nil {
		h.clock.Advance(totalWritten)
	}
}

// reanchor captures the first cycle's index as frame zero; a later
// cycle reporting an index before the current anchor (a non-monotonic
// engine counter) is treated as a fresh start rather than trusted as a
// drift signal.
func (h *Handler) reanchor(cycleFrameIdx int64) int64 {
	if !h.haveStart {
		h.startFrame = cycleFrameIdx
		h.haveStart = true
		return 0
	}
	frameIdx := cycleFrameIdx - h.startFrame
	if frameIdx < 0 {
		h.startFrame = cycleFrameIdx
		return 0
	}
	return frameIdx
}
