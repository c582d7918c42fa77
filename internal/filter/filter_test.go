package filter

import (
	"math"
	"testing"
)

func TestLowPassAttenuatesHighFrequency(t *testing.T) {
	const sr = 44100.0
	lp := NewSection(LowPass(200, sr))

	n := 4096
	lowEnergy, highEnergy := 0.0, 0.0
	for i := 0; i < n; i++ {
		t := float64(i) / sr
		low := math.Sin(2 * math.Pi * 50 * t)
		yLow := lp.ProcessSample(low)
		lowEnergy += yLow * yLow
	}
	lp.Reset()
	for i := 0; i < n; i++ {
		t := float64(i) / sr
		high := math.Sin(2 * math.Pi * 8000 * t)
		yHigh := lp.ProcessSample(high)
		highEnergy += yHigh * yHigh
	}

	if highEnergy >= lowEnergy {
		t.Errorf("expected low-pass to attenuate 8kHz relative to 50Hz, got lowEnergy=%v highEnergy=%v", lowEnergy, highEnergy)
	}
}

func TestHighPassAttenuatesLowFrequency(t *testing.T) {
	const sr = 44100.0
	hp := NewSection(HighPass(500, sr))

	n := 4096
	lowEnergy := 0.0
	for i := 0; i < n; i++ {
		t := float64(i) / sr
		low := math.Sin(2 * math.Pi * 20 * t)
		y := hp.ProcessSample(low)
		lowEnergy += y * y
	}

	hp.Reset()
	highEnergy := 0.0
	for i := 0; i < n; i++ {
		t := float64(i) / sr
		high := math.Sin(2 * math.Pi * 5000 * t)
		y := hp.ProcessSample(high)
		highEnergy += y * y
	}

	if lowEnergy >= highEnergy {
		t.Errorf("expected high-pass to attenuate 20Hz relative to 5kHz, got lowEnergy=%v highEnergy=%v", lowEnergy, highEnergy)
	}
}

func TestProcessBlockMatchesProcessSample(t *testing.T) {
	coeffs := LowPass(1000, 44100)
	sequential := NewSection(coeffs)
	block := NewSection(coeffs)

	in := make([]float64, 64)
	for i := range in {
		in[i] = math.Sin(float64(i) * 0.3)
	}

	want := make([]float64, len(in))
	for i, x := range in {
		want[i] = sequential.ProcessSample(x)
	}

	got := append([]float64{}, in...)
	block.ProcessBlock(got)

	for i := range want {
		if math.Abs(want[i]-got[i]) > 1e-9 {
			t.Fatalf("sample %d: ProcessBlock diverged from ProcessSample: %v vs %v", i, got[i], want[i])
		}
	}
}

func TestBandSplitterProducesFiveBands(t *testing.T) {
	bs := NewBandSplitter(44100, 20, 6000)
	chunk := make([]float64, 512)
	for i := range chunk {
		chunk[i] = math.Sin(float64(i) * 0.1)
	}

	var dst [5][]float64
	for i := range dst {
		dst[i] = make([]float64, len(chunk))
	}

	bs.ProcessChunk(chunk, dst)

	for i, band := range dst {
		hasEnergy := false
		for _, v := range band {
			if v != 0 {
				hasEnergy = true
				break
			}
		}
		if !hasEnergy {
			t.Errorf("band %d produced all-zero output", i)
		}
	}
}

func TestSetPrefilterEdgesAppliesOnNextChunk(t *testing.T) {
	bs := NewBandSplitter(44100, 20, 6000)
	before := bs.hpfHz
	bs.SetPrefilterEdges(80, 5000)
	if bs.hpfHz != before {
		t.Errorf("expected edge change deferred until next chunk, hpfHz changed immediately")
	}

	chunk := make([]float64, 16)
	var dst [5][]float64
	for i := range dst {
		dst[i] = make([]float64, len(chunk))
	}
	bs.ProcessChunk(chunk, dst)

	if bs.hpfHz != 80 {
		t.Errorf("expected hpfHz applied after ProcessChunk, got %v", bs.hpfHz)
	}
}
