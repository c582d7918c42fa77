// Package ring implements the lock-free single-producer/single-consumer
// handoff between the capture callback and the worker loop.
//
// Design Principles:
//   - Wait-free on the hot path: neither Write nor Read ever blocks.
//   - One writer (the capture callback), one reader (the worker).
//   - Capacity is a power of two so index wraparound is a mask, not a mod.
package ring

import (
	"beatpulse/pkg/bitint"
	"sync/atomic"
)

// DefaultCapacity is the fixed ring size in samples.
const DefaultCapacity = 16384

// Ring is a fixed-size, power-of-two SPSC ring buffer of mono float32
// samples. The write and read cursors are free-running uint64 counters;
// the buffer index is derived by masking with capacity-1. Capacity is
// never exceeded: Write refuses to overrun unread data instead of
// wrapping over it.
type Ring struct {
	buf      []float32
	mask     uint64
	writePos atomic.Uint64 // advanced only by the producer
	readPos  atomic.Uint64 // advanced only by the consumer
}

// New creates a Ring with capacity rounded up to the next power of two.
func New(capacity int) *Ring {
	capacity = bitint.NextPowerOfTwo(capacity)
	return &Ring{
		buf:  make([]float32, capacity),
		mask: uint64(capacity - 1),
	}
}

// Capacity returns the ring's fixed capacity in samples.
func (r *Ring) Capacity() int {
	return len(r.buf)
}

// Used returns the number of samples currently buffered and not yet read.
func (r *Ring) Used() int {
	return int(r.writePos.Load() - r.readPos.Load())
}

// Free returns the number of samples that can be written before the ring
// is full.
func (r *Ring) Free() int {
	return len(r.buf) - r.Used()
}

// Write reserves space for samples and commits them in a single pass,
// splitting across the wrap point if necessary. It never blocks: if there
// is insufficient free space for the entire slice, it writes nothing and
// returns false so the caller (the capture bridge) can count an overrun
// and drop the packet rather than partially enqueue it.
func (r *Ring) Write(samples []float32) bool {
	n := len(samples)
	if n == 0 {
		return true
	}
	if n > r.Free() {
		return false
	}

	start := r.writePos.Load() & r.mask
	size := uint64(len(r.buf))
	firstLen := size - start
	if firstLen > uint64(n) {
		firstLen = uint64(n)
	}
	copy(r.buf[start:], samples[:firstLen])
	if firstLen < uint64(n) {
		copy(r.buf[0:], samples[firstLen:])
	}

	r.writePos.Add(uint64(n))
	return true
}

// Read copies up to len(dest) buffered samples into dest, in order, and
// advances the read cursor by the number actually copied. It returns
// immediately with 0 if the ring is empty; it never blocks or sleeps —
// sleep-on-empty is the worker loop's responsibility, not the ring's.
func (r *Ring) Read(dest []float32) int {
	available := r.Used()
	n := len(dest)
	if n > available {
		n = available
	}
	if n == 0 {
		return 0
	}

	start := r.readPos.Load() & r.mask
	size := uint64(len(r.buf))
	firstLen := size - start
	if firstLen > uint64(n) {
		firstLen = uint64(n)
	}
	copy(dest[:firstLen], r.buf[start:])
	if firstLen < uint64(n) {
		copy(dest[firstLen:], r.buf[:uint64(n)-firstLen])
	}

	r.readPos.Add(uint64(n))
	return n
}

// AudioClock is the authoritative, monotonic count of samples committed
// by the capture bridge. It is advanced only by the producer and read by
// any thread without locking.
type AudioClock struct {
	captured atomic.Uint64
}

// Advance increments the clock by frames and returns the new total.
func (c *AudioClock) Advance(frames int) uint64 {
	return c.captured.Add(uint64(frames))
}

// Samples returns the total number of samples captured since the clock
// was last reset.
func (c *AudioClock) Samples() uint64 {
	return c.captured.Load()
}

// Seconds converts the current clock value to audio-time seconds at the
// given sample rate.
func (c *AudioClock) Seconds(sampleRate float64) float64 {
	return float64(c.captured.Load()) / sampleRate
}

// Reset zeroes the clock. Called when the pipeline is (re)prepared, e.g.
// on a sample-rate change.
func (c *AudioClock) Reset() {
	c.captured.Store(0)
}
