package onset

import (
	"math"
	"testing"

	"beatpulse/pkg/testsignal"
)

func TestNewRejectsNonPowerOfTwoFFTSize(t *testing.T) {
	if _, err := New(1000, 256, 44100, 20, 150, 0); err == nil {
		t.Fatal("expected error for non-power-of-two n")
	}
}

func TestNewRejectsHopLargerThanN(t *testing.T) {
	if _, err := New(1024, 2048, 44100, 20, 150, 0); err == nil {
		t.Fatal("expected error for hop > n")
	}
}

// pushInChunks feeds samples through the detector in chunk-sized pieces,
// the way the worker thread delivers fixed-size buffers rather than the
// whole signal at once.
func pushInChunks(d *Detector, samples []float32, chunkSize int) {
	buf := make([]float64, chunkSize)
	for i := 0; i < len(samples); i += chunkSize {
		end := i + chunkSize
		if end > len(samples) {
			end = len(samples)
		}
		buf = buf[:end-i]
		for j := range buf {
			buf[j] = float64(samples[i+j])
		}
		d.Push(buf)
	}
}

func TestOnsetsMonotonicAndRespectRefractory(t *testing.T) {
	const sr = 44100.0
	d, err := New(1024, 256, sr, 20, 6000, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	samples := testsignal.ClickTrack(int(sr*8), sr, 120, 1000)
	pushInChunks(d, samples, 512)

	onsets := d.DrainOnsets()
	if len(onsets) < 2 {
		t.Fatalf("expected multiple onsets on an 8s click track, got %d", len(onsets))
	}
	for i := 1; i < len(onsets); i++ {
		if onsets[i] < onsets[i-1] {
			t.Fatalf("onset sequence not monotonic: %v then %v", onsets[i-1], onsets[i])
		}
		if onsets[i]-onsets[i-1] < d.refractory {
			t.Fatalf("onsets %v and %v closer than refractory %v", onsets[i-1], onsets[i], d.refractory)
		}
	}
}

func TestImpulseTrainConvergesToPeriod(t *testing.T) {
	const sr = 44100.0
	const periodSamples = 22050 // 0.5s, well above any refractory
	d, err := New(512, 128, sr, 20, 6000, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	samples := testsignal.ImpulseTrain(periodSamples*6, periodSamples, 1000)
	pushInChunks(d, samples, 256)

	onsets := d.DrainOnsets()
	if len(onsets) < 3 {
		t.Fatalf("expected several onsets, got %d", len(onsets))
	}

	wantPeriod := float64(periodSamples) / sr
	hopSeconds := float64(d.hop) / sr
	// Skip the first interval: the detector's EWMA/threshold state is still
	// warming up and the refractory may suppress the very first repeat.
	for i := 2; i < len(onsets); i++ {
		got := onsets[i] - onsets[i-1]
		if math.Abs(got-wantPeriod) > hopSeconds {
			t.Errorf("interval %d: got %v want %v (+/- %v)", i, got, wantPeriod, hopSeconds)
		}
	}
}

func TestDrainFluxClearsQueue(t *testing.T) {
	d, err := New(512, 128, 44100, 20, 6000, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	samples := testsignal.GenerateSineWave(4096, 44100, 100)
	pushInChunks(d, samples, 512)

	first := d.DrainFlux()
	if len(first) == 0 {
		t.Fatal("expected non-empty flux queue after processing")
	}
	second := d.DrainFlux()
	if len(second) != 0 {
		t.Fatalf("expected drained queue to be empty, got %d entries", len(second))
	}
}

func TestSetRefractoryClampsToTempoAdaptiveRange(t *testing.T) {
	d, err := New(512, 128, 44100, 20, 6000, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	d.SetRefractory(0.01) // period implies a tiny refractory, must clamp up
	if d.refractory != 0.04 {
		t.Errorf("expected refractory clamped to 0.04, got %v", d.refractory)
	}

	d.SetRefractory(5.0) // period implies a huge refractory, must clamp down
	if d.refractory != 0.18 {
		t.Errorf("expected refractory clamped to 0.18, got %v", d.refractory)
	}
}

func TestMedianMADOnKnownValues(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	med, mad := medianMAD(values)
	if med != 3 {
		t.Errorf("expected median 3, got %v", med)
	}
	if mad != 1 {
		t.Errorf("expected MAD 1, got %v", mad)
	}
}

func TestPushKeepsScratchBuffersFixedSize(t *testing.T) {
	// The flux/onset queues are mutex-protected growable slices (see
	// DrainFlux/DrainOnsets), so Push itself is not zero-alloc end to end;
	// this only pins down that the FFT/windowing scratch buffers set up in
	// New are never resized on the steady-state path.
	d, err := New(512, 128, 44100, 20, 6000, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	chunk := make([]float64, 128)
	for i := range chunk {
		chunk[i] = math.Sin(float64(i) * 0.1)
	}
	for i := 0; i < 20; i++ {
		d.Push(chunk)
	}
	d.DrainFlux()
	d.DrainOnsets()

	frameLenBefore := len(d.frame)
	specLenBefore := len(d.spec)
	for i := 0; i < 50; i++ {
		d.Push(chunk)
	}
	if len(d.frame) != frameLenBefore || len(d.spec) != specLenBefore {
		t.Error("expected scratch buffers to remain fixed size across repeated Push calls")
	}
}
