package ring

import "github.com/netaudio/netaudio/timing"

// Sender pairs a Producer with a zero timestamp and waker, computing
// drift directly from frame timestamps so the audio callback knows
// whether to pad with silence or skip ahead.
type Sender[T any] struct {
	p              *Producer[T]
	waker          timing.Waker
	zeroTimestamp  uint64
	haveZero       bool
	expectedWriten uint64 // samples written so far, for drift calc
}

// NewSender wraps a Producer with drift tracking. waker may be nil (no
// signalling).
func NewSender[T any](p *Producer[T], waker timing.Waker) *Sender[T] {
	if waker == nil {
		waker = timing.NopWaker{}
	}
	return &Sender[T]{p: p, waker: waker}
}

// SetZeroTimestamp anchors the sender's notion of "frame 0" to the given
// absolute frame timestamp. Subsequent drift calculations are relative
// to this.
func (s *Sender[T]) SetZeroTimestamp(timestamp uint64) {
	s.zeroTimestamp = timestamp
	s.haveZero = true
	s.expectedWriten = 0
}

// Drift returns the signed sample drift for the given absolute frame
// timestamp: how far ahead (positive) or behind (negative) the producer
// is relative to what should have been written by now, nil if no zero
// timestamp has been set yet.
func (s *Sender[T]) Drift(timestamp uint64) *timing.Drift {
	if !s.haveZero {
		return nil
	}
	expected := timestamp - s.zeroTimestamp
	d := timing.Drift{Samples: int64(s.expectedWriten) - int64(expected)}
	return &d
}

// Send reserves a write chunk sized according to nominalSamples adjusted
// for drift (see timing.Drift.TotalSamples), capped by available
// capacity. The caller writes into (and commits) the returned chunk, then
// calls Advance with however many samples were actually written.
func (s *Sender[T]) Send(timestamp uint64, nominalSamples int) (*timing.Drift, WriteChunk[T]) {
	drift := s.Drift(timestamp)
	n := nominalSamples
	if drift != nil {
		n = drift.TotalSamples(nominalSamples)
	}
	if avail := s.p.AvailableWrite(); n > avail {
		n = avail
	}
	return drift, s.p.WriteChunk(n)
}

// Advance records that nFrames samples were written (after committing
// the chunk from Send). It does not signal the waker; chunk-boundary
// wake-ups come from a timing.WakingClock driven by the caller.
func (s *Sender[T]) Advance(nFrames int) {
	s.expectedWriten += uint64(nFrames)
}

// Waker returns the sender's bound waker.
func (s *Sender[T]) Waker() timing.Waker { return s.waker }

// AvailableSamples returns a snapshot of writable capacity.
func (s *Sender[T]) AvailableSamples() int { return s.p.AvailableWrite() }

// CapacitySamples returns the underlying buffer's total capacity.
func (s *Sender[T]) CapacitySamples() int { return s.p.b.Capacity() }
