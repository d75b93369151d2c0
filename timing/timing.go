// Package timing provides the chunk-boundary counter and waker pairing that
// couples the audio-engine callback thread to the network thread, plus
// the frame-timestamp drift calculation used by the ring buffer bridge.
package timing

import "fmt"

// Counter tracks progress through a fixed period, reporting how many
// period boundaries have been crossed as it advances. current is
// always in [0, period).
type Counter struct {
	period  uint64
	current uint64
}

// NewCounter creates a Counter with the given period. period must be
// positive.
func NewCounter(period uint64) *Counter {
	if period == 0 {
		panic("timing: period must be positive")
	}
	return &Counter{period: period}
}

// Period returns the counter's period.
func (c *Counter) Period() uint64 { return c.period }

// Current returns the counter's current position, always < Period().
func (c *Counter) Current() uint64 { return c.current }

// Advance moves the counter forward by n and returns the number of period
// boundaries crossed, equal to (current+n)/period for all n.
func (c *Counter) Advance(n uint64) uint64 {
	total := c.current + n
	crossed := total / c.period
	c.current = total % c.period
	return crossed
}

// Waker signals a parked thread. Signal is called at most once per
// Advance call that crosses a boundary, and must not block the caller.
type Waker interface {
	Signal()
}

// NopWaker never signals; it lets the same code paths run when no
// wake-up is actually needed.
type NopWaker struct{}

// Signal implements Waker and does nothing.
func (NopWaker) Signal() {}

// ChanWaker is a Waker backed by a buffered channel, the idiomatic Go
// stand-in for an opaque parkable-thread handle: parking is blocking
// receive on the channel, waking is a non-blocking send.
type ChanWaker struct {
	ch chan struct{}
}

// NewChanWaker creates a ChanWaker with a 1-slot buffer, so at most one
// pending wake-up is coalesced.
func NewChanWaker() *ChanWaker {
	return &ChanWaker{ch: make(chan struct{}, 1)}
}

// Signal implements Waker. It never blocks: if a wake-up is already
// pending, this is a no-op.
func (w *ChanWaker) Signal() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// Park blocks until the next Signal call, or returns immediately if one
// is already pending.
func (w *ChanWaker) Park() {
	<-w.ch
}

// C exposes the underlying channel for use in a select statement
// alongside other wake sources (e.g. socket shutdown).
func (w *ChanWaker) C() <-chan struct{} {
	return w.ch
}

// WakingClock pairs a Counter with a Waker: each Advance that crosses at
// least one boundary signals the waker exactly once.
type WakingClock struct {
	counter *Counter
	waker   Waker
}

// NewWakingClock creates a WakingClock. If waker is nil, a NopWaker is
// used.
func NewWakingClock(period uint64, waker Waker) *WakingClock {
	if waker == nil {
		waker = NopWaker{}
	}
	return &WakingClock{counter: NewCounter(period), waker: waker}
}

// Advance moves the clock's counter forward by n samples/frames and
// signals the waker once if a boundary was crossed.
func (c *WakingClock) Advance(n uint64) {
	if c.counter.Advance(n) >= 1 {
		c.waker.Signal()
	}
}

// Drift is the signed difference, in samples, between a ring buffer's
// logical write position (derived from a frame timestamp) and its
// expected read position. Positive means the producer is ahead of
// schedule (consumer falling behind); negative means the producer is
// behind (consumer will see a gap).
type Drift struct {
	// Samples is the signed drift, in samples.
	Samples int64
}

func (d Drift) String() string {
	if d.Samples >= 0 {
		return fmt.Sprintf("+%d samples (producer ahead)", d.Samples)
	}
	return fmt.Sprintf("%d samples (producer behind)", d.Samples)
}

// TotalSamples returns the number of samples that should actually be
// requested for a write of nominal size, adjusted for drift: ahead-drift
// shrinks the request (some of it is redundant), behind-drift grows it
// (catch-up is needed). The result is never negative.
func (d Drift) TotalSamples(nominal int) int {
	total := int64(nominal) - d.Samples
	if total < 0 {
		return 0
	}
	return int(total)
}
