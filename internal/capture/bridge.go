package capture

import (
	"sync/atomic"
	"time"

	"beatpulse/internal/ring"
)

// Bridge is the sole writer of the pipeline's ring buffer and the sole
// advancer of its audio clock, invoked directly from the PortAudio
// capture callback. It never blocks: on ring overrun it drops the packet
// and counts it.
type Bridge struct {
	ring  *ring.Ring
	clock *ring.AudioClock

	overruns atomic.Uint64
	mono     []float32 // scratch downmix buffer, grown as needed
}

// NewBridge creates a Bridge writing into ringBuf and advancing clock.
func NewBridge(ringBuf *ring.Ring, clock *ring.AudioClock) *Bridge {
	return &Bridge{ring: ringBuf, clock: clock}
}

// OnPacket downmixes an interleaved multi-channel packet to mono and
// writes it into the ring, advancing the audio clock regardless of
// whether the write succeeded (the clock tracks samples captured, not
// samples retained). arrivalClock and sampleRate are accepted for parity
// with the driver callback's signature but are not otherwise consulted;
// the pipeline derives all timing from the audio clock.
func (b *Bridge) OnPacket(interleaved []float32, frames, channels int, sampleRate float64, arrivalClock time.Time) {
	if cap(b.mono) < frames {
		b.mono = make([]float32, frames)
	}
	mono := b.mono[:frames]

	if channels <= 1 {
		copy(mono, interleaved[:frames])
	} else {
		for i := 0; i < frames; i++ {
			var sum float32
			base := i * channels
			for c := 0; c < channels; c++ {
				sum += interleaved[base+c]
			}
			mono[i] = sum / float32(channels)
		}
	}

	if !b.ring.Write(mono) {
		b.overruns.Add(1)
	}
	b.clock.Advance(frames)
}

// Overruns returns the number of packets dropped due to ring-full since
// the Bridge was created.
func (b *Bridge) Overruns() uint64 {
	return b.overruns.Load()
}
