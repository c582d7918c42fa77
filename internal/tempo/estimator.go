// SPDX-License-Identifier: MIT

// Package tempo estimates BPM and a confidence score from a fused flux
// stream via FFT-based autocorrelation, cross-checked against the
// inter-onset-interval statistics of recently ingested onset times.
package tempo

import (
	"math"
	"sort"

	"beatpulse/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	defaultMemoryFrames = 2048
	minMemoryFrames     = 512
	maxMemoryFrames     = 8192
	memorySeconds       = 10.0

	minBPM = 40.0
	maxBPM = 240.0

	priorCenterBPM = 120.0
	priorWidthBPM  = 80.0

	harmonicTolerance = 0.06

	maxOnsetHistory   = 64
	onsetHistorySecs  = 20.0
	minIOIDelta       = 0.02
	maxIOIDelta       = 3.0
	minIOIMatchWindow = 0.012
	maxIOIMatchWindow = 0.080
)

var harmonicRatios = []float64{0.5, 2.0 / 3.0, 0.75, 1.0, 4.0 / 3.0, 1.5, 2.0, 3.0}

// Candidate is one weighted BPM hypothesis surviving the peak scan, kept
// for diagnostic fan-out (sendTempoCandidates).
type Candidate struct {
	BPM   float64
	Score float64
	Total float64
}

// Estimator tracks BPM and confidence from a continuously appended flux
// stream and a sliding window of externally ingested onset times.
type Estimator struct {
	sampleRate float64
	hop        int
	fps        float64

	topK        int
	ioiWeight   float64
	slewPercent float64

	flux []float64

	onsets []float64 // sliding window, sorted ascending

	bpm        float64
	havePrior  bool
	confidence float64
	candidates []Candidate
}

// New creates an Estimator for a pipeline running at sampleRate Hz with
// hop H samples between flux frames. topK bounds how many autocorrelation
// peaks survive the scan, ioiWeight controls how strongly inter-onset
// agreement reinforces a candidate's score, and slewPercent bounds how far
// the BPM estimate may move per update relative to its previous value.
func New(sampleRate float64, hop int, topK int, ioiWeight, slewPercent float64) *Estimator {
	return &Estimator{
		sampleRate:  sampleRate,
		hop:         hop,
		fps:         sampleRate / float64(hop),
		topK:        topK,
		ioiWeight:   ioiWeight,
		slewPercent: slewPercent,
	}
}

// BPM returns the current BPM estimate (0 before the first update).
func (e *Estimator) BPM() float64 { return e.bpm }

// Confidence returns the current confidence in [0, 1].
func (e *Estimator) Confidence() float64 { return e.confidence }

// Candidates returns the last peak-scan candidate list, for diagnostic
// publication.
func (e *Estimator) Candidates() []Candidate { return e.candidates }

// IngestOnsets appends newly gated onset times to the sliding window,
// pruning both by count (64) and by age.
func (e *Estimator) IngestOnsets(times []float64) {
	if len(times) == 0 {
		return
	}
	e.onsets = append(e.onsets, times...)
	sort.Float64s(e.onsets)

	cutoff := e.onsets[len(e.onsets)-1] - onsetHistorySecs
	i := 0
	for i < len(e.onsets) && e.onsets[i] < cutoff {
		i++
	}
	e.onsets = e.onsets[i:]
	if len(e.onsets) > maxOnsetHistory {
		e.onsets = e.onsets[len(e.onsets)-maxOnsetHistory:]
	}
}

// Update appends newly fused flux frames and runs the full BPM/confidence
// re-estimation procedure.
func (e *Estimator) Update(frames []float64) {
	if len(frames) == 0 {
		return
	}
	e.flux = append(e.flux, frames...)

	memory := defaultMemoryFrames
	if e.havePrior {
		period := 60.0 / e.bpm
		memory = int(math.Round(10 * period * e.fps))
		memory = clampInt(memory, minMemoryFrames, maxMemoryFrames)
	}
	if len(e.flux) > memory {
		e.flux = e.flux[len(e.flux)-memory:]
	}

	window := append([]float64(nil), e.flux...)
	meanRemove(window)

	minLag := int(math.Floor(e.fps * 60 / maxBPM))
	maxLag := int(math.Ceil(e.fps * 60 / minBPM))
	if maxLag >= len(window) {
		return
	}

	acf, energy0 := autocorrelate(window)

	type peak struct {
		lag   int
		bpm   float64
		score float64
	}
	var peaks []peak
	for lag := minLag + 1; lag < maxLag; lag++ {
		if lag <= 0 || lag >= len(acf) {
			continue
		}
		if !(acf[lag] > acf[lag-1] && acf[lag] >= acf[lag+1]) {
			continue
		}
		bpm := 60 * e.fps / float64(lag)
		prior := bpmPrior(bpm)
		if prior == 0 {
			continue
		}
		peaks = append(peaks, peak{lag: lag, bpm: bpm, score: acf[lag] * prior})
	}
	if len(peaks) == 0 {
		return
	}
	sort.Slice(peaks, func(i, j int) bool { return peaks[i].score > peaks[j].score })
	if len(peaks) > e.topK {
		peaks = peaks[:e.topK]
	}

	prevBPM := e.bpm
	type total struct {
		bpm   float64
		score float64
		total float64
	}
	totals := make([]total, len(peaks))
	for i, p := range peaks {
		support := e.ioiSupport(p.bpm)
		continuity := 1.0
		if e.havePrior {
			continuity = math.Exp(-4 * math.Abs(p.bpm-prevBPM) / math.Max(1, prevBPM))
		}
		totals[i] = total{
			bpm:   p.bpm,
			score: p.score,
			total: p.score * (1 + e.ioiWeight*support) * continuity,
		}
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].total > totals[j].total })

	e.candidates = make([]Candidate, len(totals))
	for i, t := range totals {
		e.candidates[i] = Candidate{BPM: t.bpm, Score: t.score, Total: t.total}
	}

	used := make([]bool, len(totals))
	type group struct {
		repr  total
		score float64
	}
	var groups []group
	for i := range totals {
		if used[i] {
			continue
		}
		g := group{repr: totals[i], score: totals[i].total}
		used[i] = true
		for j := i + 1; j < len(totals); j++ {
			if used[j] {
				continue
			}
			if isHarmonic(totals[i].bpm, totals[j].bpm) {
				g.score += 0.75 * totals[j].total
				used[j] = true
			}
		}
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].score > groups[j].score })
	best := groups[0]

	rawBPM := best.repr.bpm
	var newBPM float64
	if !e.havePrior {
		newBPM = rawBPM
	} else {
		step := e.slewPercent * math.Max(1, prevBPM)
		newBPM = clampF(rawBPM, prevBPM-step, prevBPM+step)
	}
	e.bpm = newBPM
	e.havePrior = true

	support := e.ioiSupport(newBPM)
	scoreRepr := best.repr.score
	e.confidence = clampF(0.5*(scoreRepr/math.Max(energy0, 1e-12))+0.5*support, 0, 1)
}

func meanRemove(values []float64) {
	if len(values) == 0 {
		return
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for i := range values {
		values[i] -= mean
	}
}

// autocorrelate computes the biased-corrected autocorrelation of values
// via FFT (pad to next power of two >= 2*len(values), forward FFT,
// magnitude-squared, inverse FFT), returning acf and the zero-lag energy
// (sum of squares, equivalently acf[0] before bias correction).
func autocorrelate(values []float64) (acf []float64, energy0 float64) {
	n := len(values)
	for _, v := range values {
		energy0 += v * v
	}

	padded := bitint.NextPowerOfTwo(2 * n)
	padded = nextPow2AtLeast(padded, n)
	fft := fourier.NewFFT(padded)

	src := make([]float64, padded)
	copy(src, values)

	spec := fft.Coefficients(nil, src)
	for i, c := range spec {
		m := real(c)*real(c) + imag(c)*imag(c)
		spec[i] = complex(m, 0)
	}

	// gonum's inverse FFT is unnormalized: a Coefficients/Sequence round
	// trip scales the result by the transform length, so this must be
	// divided out before the lag-dependent bias correction below.
	inv := fft.Sequence(nil, spec)
	acf = make([]float64, n)
	for lag := 0; lag < n; lag++ {
		v := inv[lag] / float64(padded)
		if lag >= 1 {
			denom := float64(n - lag)
			if denom > 0 {
				v /= denom
			}
		}
		acf[lag] = v
	}
	return acf, energy0
}

func nextPow2AtLeast(candidate, n int) int {
	for candidate < 2*n {
		candidate *= 2
	}
	return candidate
}

func bpmPrior(bpm float64) float64 {
	if bpm < minBPM || bpm > maxBPM {
		return 0
	}
	d := (bpm - priorCenterBPM) / priorWidthBPM
	return 0.7 + 0.3*math.Exp(-d*d)
}

func isHarmonic(a, b float64) bool {
	if a == 0 || b == 0 {
		return false
	}
	ratio := a / b
	for _, target := range harmonicRatios {
		if math.Abs(ratio-target)/target <= harmonicTolerance {
			return true
		}
	}
	return false
}

// ioiSupport computes the fraction of inter-onset intervals consistent
// with period = 60/bpm, after trimming outliers with an IQR fence.
func (e *Estimator) ioiSupport(bpm float64) float64 {
	period := 60.0 / bpm
	var deltas []float64
	for i := 0; i < len(e.onsets); i++ {
		for j := i + 1; j < len(e.onsets); j++ {
			d := e.onsets[j] - e.onsets[i]
			if d <= minIOIDelta {
				continue
			}
			if d > maxIOIDelta {
				break
			}
			deltas = append(deltas, d)
		}
	}
	if len(deltas) == 0 {
		return 0
	}

	trimmed := iqrFence(deltas)
	if len(trimmed) == 0 {
		trimmed = deltas
	}

	hits := 0
	for _, d := range trimmed {
		k := clampInt(int(math.Round(d/period)), 1, 6)
		tolerance := clampF(0.12*period, minIOIMatchWindow, maxIOIMatchWindow)
		if math.Abs(d-float64(k)*period) <= tolerance {
			hits++
		}
	}
	return float64(hits) / float64(len(trimmed))
}

func iqrFence(values []float64) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	q1 := percentile(sorted, 0.25)
	q3 := percentile(sorted, 0.75)
	iqr := q3 - q1
	lo := q1 - 1.5*iqr
	hi := q3 + 1.5*iqr

	var kept []float64
	for _, v := range values {
		if v >= lo && v <= hi {
			kept = append(kept, v)
		}
	}
	if len(kept) < 3 {
		return nil
	}
	return kept
}

func percentile(sorted []float64, p float64) float64 {
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

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
