// Package ring implements a lock-free, bounded single-producer/single-consumer
// queue bridging the audio-engine callback thread and the network thread.
// Capacity is fixed at construction; slots are logically uninitialized
// until written, and a write only becomes visible to the reader once
// committed.
package ring

import "sync/atomic"

// Buffer is a fixed-capacity SPSC ring buffer of T. Exactly one goroutine
// may call the producer-side methods (via Producer) and exactly one may
// call the consumer-side methods (via Consumer); the two sides coordinate
// only through the atomic head/tail indices below.
type Buffer[T any] struct {
	data []T
	cap  uint64 // power of two, for cheap masking

	// head is the next slot index to be written (producer-owned).
	// tail is the next slot index to be read (consumer-owned).
	// Both increase monotonically; wrap is handled by masking with cap-1.
	head atomic.Uint64
	tail atomic.Uint64
}

// NewBuffer creates a ring buffer that holds at least capacity elements
// (rounded up to the next power of two for masking).
func NewBuffer[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	c := uint64(1)
	for c < uint64(capacity) {
		c <<= 1
	}
	return &Buffer[T]{data: make([]T, c), cap: c}
}

func (b *Buffer[T]) mask(i uint64) uint64 { return i & (b.cap - 1) }

// Capacity returns the number of elements the buffer can hold.
func (b *Buffer[T]) Capacity() int { return int(b.cap) }

// Split returns the Producer and Consumer halves. It is the caller's
// responsibility to hand each half to exactly one goroutine.
func (b *Buffer[T]) Split() (*Producer[T], *Consumer[T]) {
	return &Producer[T]{b: b}, &Consumer[T]{b: b}
}

// Producer is the write-only half of a Buffer.
type Producer[T any] struct {
	b *Buffer[T]
}

// Consumer is the read-only half of a Buffer.
type Consumer[T any] struct {
	b *Buffer[T]
}

// AvailableWrite returns a non-authoritative snapshot of how many slots
// can currently be written without overwriting unread data.
func (p *Producer[T]) AvailableWrite() int {
	head := p.b.head.Load()
	tail := p.b.tail.Load() // acquire: synchronizes with Consumer.Commit
	return int(p.b.cap - (head - tail))
}

// WriteChunk is a view over up to two contiguous spans of uninitialized
// buffer memory, ready to be populated by the caller and then committed.
type WriteChunk[T any] struct {
	First, Second []T
	p             *Producer[T]
	n             int
}

// Len returns the total number of slots across both spans.
func (w WriteChunk[T]) Len() int { return len(w.First) + len(w.Second) }

// WriteChunk reserves up to n contiguous-then-wrapped slots for writing.
// The caller must populate First (and Second, if non-empty) before
// calling Commit; until Commit, no data is visible to the consumer.
func (p *Producer[T]) WriteChunk(n int) WriteChunk[T] {
	avail := p.AvailableWrite()
	if n > avail {
		n = avail
	}
	head := p.b.head.Load()
	start := p.b.mask(head)
	end := start + uint64(n)

	if end <= p.b.cap {
		return WriteChunk[T]{First: p.b.data[start:end], p: p, n: n}
	}
	firstLen := p.b.cap - start
	return WriteChunk[T]{
		First:  p.b.data[start:p.b.cap],
		Second: p.b.data[0 : uint64(n)-firstLen],
		p:      p,
		n:      n,
	}
}

// Commit makes the chunk's contents visible to the consumer. It must be
// called with the same WriteChunk returned by WriteChunk, after
// populating it, and releases (in the memory-model sense) everything
// written to First/Second before a subsequent Consumer.Commit observes
// it.
func (w WriteChunk[T]) Commit() {
	w.p.b.head.Add(uint64(w.n)) // release: synchronizes with Consumer's acquire of head
}

// AvailableRead returns a non-authoritative snapshot of how many
// committed slots are ready to read.
func (c *Consumer[T]) AvailableRead() int {
	head := c.b.head.Load() // acquire: synchronizes with Producer.Commit
	tail := c.b.tail.Load()
	return int(head - tail)
}

// ReadChunk is a view over up to two contiguous spans of committed,
// readable buffer memory.
type ReadChunk[T any] struct {
	First, Second []T
	c             *Consumer[T]
	n             int
}

// Len returns the total number of slots across both spans.
func (r ReadChunk[T]) Len() int { return len(r.First) + len(r.Second) }

// ReadChunk returns up to n contiguous-then-wrapped readable slices. The
// caller must call Commit once done reading, to release the slots back
// to the producer.
func (c *Consumer[T]) ReadChunk(n int) ReadChunk[T] {
	avail := c.AvailableRead()
	if n > avail {
		n = avail
	}
	tail := c.b.tail.Load()
	start := c.b.mask(tail)
	end := start + uint64(n)

	if end <= c.b.cap {
		return ReadChunk[T]{First: c.b.data[start:end], c: c, n: n}
	}
	firstLen := c.b.cap - start
	return ReadChunk[T]{
		First:  c.b.data[start:c.b.cap],
		Second: c.b.data[0 : uint64(n)-firstLen],
		c:      c,
		n:      n,
	}
}

// Commit releases the chunk's slots back to the producer as free space.
func (r ReadChunk[T]) Commit() {
	r.c.b.tail.Add(uint64(r.n)) // release: synchronizes with Producer's acquire of tail
}

// ReadAll drains every currently available sample into a freshly
// allocated slice. Convenience wrapper around ReadChunk for callers that
// don't need to avoid the allocation (e.g. framing.ByteProducer.Drain
// input assembly).
func (c *Consumer[T]) ReadAll() []T {
	n := c.AvailableRead()
	if n == 0 {
		return nil
	}
	chunk := c.ReadChunk(n)
	out := make([]T, 0, n)
	out = append(out, chunk.First...)
	out = append(out, chunk.Second...)
	chunk.Commit()
	return out
}

// WriteAll writes every element of src, committing as it goes, and
// returns the number actually written (less than len(src) if the buffer
// is full).
func (p *Producer[T]) WriteAll(src []T) int {
	n := len(src)
	if avail := p.AvailableWrite(); n > avail {
		n = avail
	}
	if n == 0 {
		return 0
	}
	chunk := p.WriteChunk(n)
	copy(chunk.First, src[:len(chunk.First)])
	copy(chunk.Second, src[len(chunk.First):n])
	chunk.Commit()
	return n
}
