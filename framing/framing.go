// Package framing converts between a stream of fixed-size samples and an
// indexed byte stream, tolerating packet loss and reordering on the
// consuming side. The producer half turns samples into bytes lazily
// (preserving partial-sample state across calls so a packet boundary
// may split a sample); the padder half reconstructs samples from
// indexed byte packets, inserting caller-supplied padding for any gap
// and silently dropping reordered packets.
package framing

// ByteProducer lazily converts a sample stream into a byte stream,
// remembering the in-progress sample across calls so a caller may stop
// pulling bytes mid-sample (e.g. because a datagram is full) and resume
// later without losing alignment.
type ByteProducer struct {
	sampleSize     int
	currentByteIdx uint64
	scratch        []byte
}

// NewByteProducer creates a producer for samples of the given byte size.
func NewByteProducer(sampleSize int) *ByteProducer {
	if sampleSize <= 0 {
		panic("framing: sampleSize must be positive")
	}
	return &ByteProducer{
		sampleSize: sampleSize,
		scratch:    make([]byte, sampleSize),
	}
}

// CurrentByteIndex returns the global byte index at which the next emitted
// byte will lie.
func (p *ByteProducer) CurrentByteIndex() uint64 {
	return p.currentByteIdx
}

// FeedSamples returns a pull function that lazily emits the byte
// representation of samples, drawn from next as needed. next must return
// a slice of exactly sampleSize bytes and ok=true, or ok=false when
// exhausted. The returned function yields one byte per call until next is
// exhausted, advancing CurrentByteIndex by one byte per call.
func (p *ByteProducer) FeedSamples(next func() (sample []byte, ok bool)) func() (b byte, ok bool) {
	return func() (byte, bool) {
		pos := int(p.currentByteIdx % uint64(p.sampleSize))
		if pos == 0 {
			s, ok := next()
			if !ok {
				return 0, false
			}
			copy(p.scratch, s)
		}
		b := p.scratch[pos]
		p.currentByteIdx++
		return b, true
	}
}

// Drain eagerly feeds every sample in samples (each must be sampleSize
// bytes long) and returns every emitted byte. This is the common case
// where a caller wants a whole packet payload from currently available
// samples.
func (p *ByteProducer) Drain(samples [][]byte) []byte {
	i := 0
	next := func() ([]byte, bool) {
		if i >= len(samples) {
			return nil, false
		}
		s := samples[i]
		i++
		return s, true
	}
	pull := p.FeedSamples(next)
	out := make([]byte, 0, len(samples)*p.sampleSize)
	for {
		b, ok := pull()
		if !ok {
			break
		}
		out = append(out, b)
	}
	return out
}

// BytePadder reconstructs samples from indexed byte packets. byteIdx
// values that arrive out of order relative to the expected index are
// dropped; gaps are filled with caller-supplied padding samples.
type BytePadder struct {
	sampleSize int
	expected   uint64
	scratch    []byte
}

// NewBytePadder creates a padder for samples of the given byte size.
func NewBytePadder(sampleSize int) *BytePadder {
	if sampleSize <= 0 {
		panic("framing: sampleSize must be positive")
	}
	return &BytePadder{
		sampleSize: sampleSize,
		scratch:    make([]byte, sampleSize),
	}
}

// ExpectedByteIndex returns the byte index the padder next expects.
func (p *BytePadder) ExpectedByteIndex() uint64 {
	return p.expected
}

// FeedBytes consumes a packet starting at byteIdx and returns the full
// samples it reconstructs, in order: any padding samples first (each
// produced by calling pad), followed by samples completed from data.
// Partially-filled trailing samples are buffered internally and
// completed by a future call.
func (p *BytePadder) FeedBytes(byteIdx uint64, data []byte, pad func() []byte) [][]byte {
	bps := uint64(p.sampleSize)

	var nPaddingSamples int
	var nSkippedBytes int

	switch {
	case byteIdx < p.expected:
		// reordered packet: drop entirely, expected index unchanged.
		return nil
	case byteIdx == p.expected:
		nPaddingSamples, nSkippedBytes = 0, 0
	default:
		prevSampleIdx := p.expected / bps
		nextSampleIdx := (byteIdx + bps - 1) / bps
		nPaddingSamples = int(nextSampleIdx - prevSampleIdx)
		nextSampleByteIdx := nextSampleIdx * bps
		nSkippedBytes = int(nextSampleByteIdx - byteIdx)
		p.expected = nextSampleByteIdx
	}

	var out [][]byte
	for i := 0; i < nPaddingSamples; i++ {
		out = append(out, pad())
	}

	skip := nSkippedBytes
	if skip > len(data) {
		skip = len(data)
	}

	for _, b := range data[skip:] {
		pos := int(p.expected % bps)
		p.scratch[pos] = b
		p.expected++
		if p.expected%bps == 0 {
			full := make([]byte, p.sampleSize)
			copy(full, p.scratch)
			out = append(out, full)
		}
	}

	return out
}
