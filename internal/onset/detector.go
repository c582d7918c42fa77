// SPDX-License-Identifier: MIT

// Package onset implements the per-band spectral-flux onset detector:
// complex-domain spectral flux, EWMA smoothing and normalization,
// median-absolute-deviation adaptive thresholding, and parabolic sub-hop
// peak interpolation. Five bands each run a high-resolution and a
// low-resolution instance in parallel, owned by the pipeline.
package onset

import (
	"beatpulse/pkg/bitint"
	"fmt"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	emaGamma         = 0.05
	fluxSmoothing    = 0.2
	thresholdK       = 3.0
	madScale         = 1.4826
	coldStartThresh  = 2.5
	minThrWindowSize = 9
	defaultThrWindowSeconds = 0.75

	minGuardMagnitude = 1e-9
	minGuardVariance  = 1e-12
)

// Detector converts a stream of audio samples confined to one frequency
// band into a lazy sequence of normalized flux z-scores and a lazy
// sequence of onset timestamps, per the algorithm's eleven steps. One
// Detector instance exists per (band, resolution) pair — ten in total
// across the pipeline.
type Detector struct {
	n, hop     int
	sampleRate float64
	bandLowHz  float64
	bandHighHz float64

	fft    *fourier.FFT
	win    []float64 // Hann coefficients, length n
	frame  []float64 // scratch windowed frame, length n
	spec   []complex128

	fifo    []float64 // circular overlap buffer, length n
	fifoPos int
	hopFill int // samples accumulated since the last hop boundary

	prevMag, prevRe, prevIm []float64 // previous frame's spectrum, full length
	havePrev                bool

	binLow, binHigh int // inclusive bin range selected by bandLowHz/bandHighHz

	smoothed      float64
	haveSmoothed  bool
	mean, variance float64
	haveEMA       bool

	thrWindow    []float64 // ring of recent z-scores
	thrWindowLen int

	zPrev2, zPrev1 float64
	haveZ1, haveZ2 bool

	framesProcessed int64 // 0-based index of the frame about to be processed

	lastOnsetTime float64
	haveOnset     bool
	refractory    float64 // seconds; 0.1 until SetRefractory clamps it to [0.04, 0.18]

	mu            sync.Mutex
	pendingFlux   []float64
	pendingOnsets []float64
}

// New creates a Detector for one band. n must be a power of two, hop must
// be positive and no larger than n, and thrWindowSeconds controls how many
// hops the adaptive-threshold window spans (defaulting to 0.75s if <= 0).
func New(n, hop int, sampleRate, bandLowHz, bandHighHz, thrWindowSeconds float64) (*Detector, error) {
	if !bitint.IsPowerOfTwo(n) {
		return nil, fmt.Errorf("onset: fft size must be a power of two, got %d", n)
	}
	if hop <= 0 || hop > n {
		return nil, fmt.Errorf("onset: hop must be in (0, %d], got %d", n, hop)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("onset: sample rate must be positive, got %f", sampleRate)
	}

	if thrWindowSeconds <= 0 {
		thrWindowSeconds = defaultThrWindowSeconds
	}
	fps := sampleRate / float64(hop)
	thrWindowLen := int(math.Round(thrWindowSeconds * fps))
	if thrWindowLen < minThrWindowSize {
		thrWindowLen = minThrWindowSize
	}

	winCoeffs := make([]float64, n)
	for i := range winCoeffs {
		winCoeffs[i] = 1.0
	}
	window.Hann(winCoeffs)

	specLen := n/2 + 1
	binHz := sampleRate / float64(n)
	binLow := int(math.Floor(bandLowHz / binHz))
	binHigh := int(math.Ceil(bandHighHz / binHz))
	if binLow < 0 {
		binLow = 0
	}
	if binHigh >= specLen {
		binHigh = specLen - 1
	}

	return &Detector{
		n:          n,
		hop:        hop,
		sampleRate: sampleRate,
		bandLowHz:  bandLowHz,
		bandHighHz: bandHighHz,

		fft:   fourier.NewFFT(n),
		win:   winCoeffs,
		frame: make([]float64, n),
		spec:  make([]complex128, specLen),

		fifo: make([]float64, n),

		prevMag: make([]float64, specLen),
		prevRe:  make([]float64, specLen),
		prevIm:  make([]float64, specLen),

		binLow:  binLow,
		binHigh: binHigh,

		thrWindow: make([]float64, 0, thrWindowLen),

		refractory: 0.1,
	}, nil
}

// Push feeds newly arrived band-filtered samples into the detector's
// overlap FIFO, running the per-hop algorithm every time hop samples have
// accumulated. Called only by the Worker thread.
func (d *Detector) Push(samples []float64) {
	for _, s := range samples {
		d.fifo[d.fifoPos] = s
		d.fifoPos++
		if d.fifoPos == d.n {
			d.fifoPos = 0
		}
		d.hopFill++
		if d.hopFill == d.hop {
			d.hopFill = 0
			d.processHop()
		}
	}
}

// extractFrame copies the most recent n samples from the circular FIFO
// into d.frame in chronological order (oldest first).
func (d *Detector) extractFrame() {
	n := copy(d.frame, d.fifo[d.fifoPos:])
	copy(d.frame[n:], d.fifo[:d.fifoPos])
}

func (d *Detector) processHop() {
	frameIdx := d.framesProcessed

	// 1-2. Framing and spectrum.
	d.extractFrame()
	for i := 0; i < d.n; i++ {
		d.frame[i] *= d.win[i]
	}
	d.fft.Coefficients(d.spec, d.frame)

	// 3-4. Bin selection and complex-domain flux.
	flux := 0.0
	for k := d.binLow; k <= d.binHigh; k++ {
		c := d.spec[k]
		re, im := real(c), imag(c)
		m := math.Hypot(re, im)

		var term float64
		if d.havePrev && d.prevMag[k] > minGuardMagnitude && m > minGuardMagnitude {
			cosDelta := (re*d.prevRe[k] + im*d.prevIm[k]) / (m * d.prevMag[k])
			cosDelta = clamp(cosDelta, -1, 1)
			term = m - d.prevMag[k]*cosDelta
		} else {
			term = m
		}
		if term > 0 {
			flux += term
		}

		d.prevMag[k], d.prevRe[k], d.prevIm[k] = m, re, im
	}
	d.havePrev = true

	// 5. Smoothing.
	if !d.haveSmoothed {
		d.smoothed = flux
		d.haveSmoothed = true
	} else {
		d.smoothed = fluxSmoothing*flux + (1-fluxSmoothing)*d.smoothed
	}

	// 6. Normalization.
	var z float64
	if !d.haveEMA {
		d.mean = d.smoothed
		d.variance = 0
		d.haveEMA = true
		z = 0
	} else {
		d.mean = (1-emaGamma)*d.mean + emaGamma*d.smoothed
		delta := d.smoothed - d.mean
		d.variance = (1-emaGamma)*d.variance + emaGamma*delta*delta
		z = delta / math.Sqrt(math.Max(d.variance, minGuardVariance))
	}

	// 7. Adaptive threshold.
	if len(d.thrWindow) == cap(d.thrWindow) && cap(d.thrWindow) > 0 {
		copy(d.thrWindow, d.thrWindow[1:])
		d.thrWindow[len(d.thrWindow)-1] = z
	} else {
		d.thrWindow = append(d.thrWindow, z)
	}
	theta := coldStartThresh
	if len(d.thrWindow) >= minThrWindowSize {
		med, mad := medianMAD(d.thrWindow)
		theta = med + thresholdK*madScale*(mad+1e-6)
	}

	// 8-9. Peak detection with sub-hop parabolic refinement.
	curr := z
	if d.haveZ1 && d.haveZ2 {
		prev1, prev2 := d.zPrev1, d.zPrev2
		if prev1 > prev2 && prev1 >= curr && prev1 > theta {
			denom := prev2 - 2*prev1 + curr
			delta := 0.0
			if denom != 0 {
				delta = clamp(0.5*(prev2-curr)/denom, -1, 1)
			}
			t := (float64(frameIdx-1)+delta)*float64(d.hop) + float64(d.n)/2
			t /= d.sampleRate

			// 10. Refractory.
			if !d.haveOnset || t-d.lastOnsetTime >= d.refractory {
				d.lastOnsetTime = t
				d.haveOnset = true
				d.mu.Lock()
				d.pendingOnsets = append(d.pendingOnsets, t)
				d.mu.Unlock()
			}
		}
	}
	d.zPrev2, d.zPrev1 = d.zPrev1, curr
	d.haveZ2, d.haveZ1 = d.haveZ1, true

	// 11. Publish flux.
	d.mu.Lock()
	d.pendingFlux = append(d.pendingFlux, z)
	d.mu.Unlock()

	d.framesProcessed++
}

// DrainFlux returns and clears the pending flux z-score queue. Called by
// the Emitter under the pipeline mutex.
func (d *Detector) DrainFlux() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pendingFlux) == 0 {
		return nil
	}
	out := d.pendingFlux
	d.pendingFlux = nil
	return out
}

// DrainOnsets returns and clears the pending onset-time queue.
func (d *Detector) DrainOnsets() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pendingOnsets) == 0 {
		return nil
	}
	out := d.pendingOnsets
	d.pendingOnsets = nil
	return out
}

// SetRefractory sets the minimum onset spacing to clamp(0.20*period,
// 0.04, 0.18) seconds, given the beat tracker's current period.
func (d *Detector) SetRefractory(period float64) {
	d.refractory = clamp(0.20*period, 0.04, 0.18)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// medianMAD returns the median and median-absolute-deviation of values.
// values is not mutated.
func medianMAD(values []float64) (median, mad float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	median = percentileSorted(sorted, 0.5)

	deviations := make([]float64, len(sorted))
	for i, v := range values {
		deviations[i] = math.Abs(v - median)
	}
	sort.Float64s(deviations)
	mad = percentileSorted(deviations, 0.5)
	return median, mad
}

func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	idx := p * float64(n-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
