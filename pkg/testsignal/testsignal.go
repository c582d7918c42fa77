// Package testsignal generates synthetic audio fixtures (click tracks,
// impulse trains, tone bursts) used by the pipeline's package tests to
// exercise the onset, tempo, and beat-tracking algorithms without a real
// capture device.
package testsignal

import "math"

// GenerateSineWave returns size mono float32 samples of a pure sine tone at
// frequency Hz, sampled at sampleRate Hz, in [-1, 1].
func GenerateSineWave(size int, sampleRate, frequency float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(math.Sin(2 * math.Pi * frequency * t))
	}
	return buffer
}

// GenerateComplexTone returns size mono float32 samples of a 440Hz
// fundamental plus its second and third harmonics, at reduced amplitude.
func GenerateComplexTone(size int, sampleRate float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*t)*0.5 +
			math.Sin(2*math.Pi*880*t)*0.3 +
			math.Sin(2*math.Pi*1320*t)*0.2
		buffer[i] = float32(signal)
	}
	return buffer
}

// ClickTrack returns size mono float32 samples containing short decaying
// burst "clicks" at a fixed period (60/bpm seconds), each a brief burst of
// toneHz shaped by an exponential decay envelope — a standard synthetic
// stand-in for a metronome click or kick drum hit.
func ClickTrack(size int, sampleRate, bpm, toneHz float64) []float32 {
	buffer := make([]float32, size)
	period := 60.0 / bpm * sampleRate // samples between clicks
	const (
		burstSamples = 256
		decayRate    = 40.0 // higher = faster decay within the burst
	)

	for i := range buffer {
		phase := math.Mod(float64(i), period)
		if phase >= burstSamples {
			continue
		}
		t := phase / sampleRate
		envelope := math.Exp(-decayRate * t)
		buffer[i] = float32(math.Sin(2*math.Pi*toneHz*t) * envelope)
	}
	return buffer
}

// ImpulseTrain returns size mono float32 samples containing single-sample
// unit impulses spaced periodSamples apart, starting at offset. Used to
// probe onset-detector timing precision against a ground-truth period
// measured in exact samples rather than a tone-shaped burst.
func ImpulseTrain(size, periodSamples, offset int) []float32 {
	buffer := make([]float32, size)
	if periodSamples <= 0 {
		return buffer
	}
	for i := offset; i < size; i += periodSamples {
		buffer[i] = 1.0
	}
	return buffer
}

// TempoStep returns a click track whose tempo changes from bpmBefore to
// bpmAfter at stepSample, useful for exercising the tempo estimator's
// slew-limiting and harmonic-grouping behavior across a tempo change.
func TempoStep(size int, sampleRate, bpmBefore, bpmAfter, toneHz float64, stepSample int) []float32 {
	before := ClickTrack(size, sampleRate, bpmBefore, toneHz)
	after := ClickTrack(size, sampleRate, bpmAfter, toneHz)
	buffer := make([]float32, size)
	for i := range buffer {
		if i < stepSample {
			buffer[i] = before[i]
		} else {
			buffer[i] = after[i]
		}
	}
	return buffer
}

// FindPeakBin returns the index of the largest value in magnitudes within
// [startBin, endBin] inclusive, clamped to valid bounds.
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}
	return peakBin
}
