package beat

import (
	"math"
	"testing"
)

func TestUpdateBPMAdoptsFirstPeriodDirectly(t *testing.T) {
	tr := New()
	tr.UpdateBPM(120)
	want := 0.5
	if math.Abs(tr.Period()-want) > 1e-9 {
		t.Errorf("expected period %v, got %v", want, tr.Period())
	}
}

func TestUpdateBPMSlewLimitsSubsequentChanges(t *testing.T) {
	tr := New()
	tr.UpdateBPM(120) // period 0.5
	tr.UpdateBPM(240) // target period 0.25, should be step-limited

	step := math.Max(minPeriodStep, periodStepRatio*0.5)
	minAllowed := 0.5 - step
	if tr.Period() < minAllowed-1e-9 {
		t.Errorf("expected period to be slew-limited to >= %v, got %v", minAllowed, tr.Period())
	}
}

func TestOnOnsetsFirstCallAdoptsPhase(t *testing.T) {
	tr := New()
	tr.OnOnsets([]float64{1.0, 1.5, 2.0})
	if !tr.HasPhase() {
		t.Fatal("expected phase to be set after first OnOnsets call")
	}
	if tr.phaseOrig != 2.0 {
		t.Errorf("expected phase origin to be the last onset time, got %v", tr.phaseOrig)
	}
}

func TestOnOnsetsCorrectsTowardConsistentGrid(t *testing.T) {
	tr := New()
	tr.UpdateBPM(120) // period 0.5
	tr.OnOnsets([]float64{0.0})

	// Onsets consistently 0.05s late relative to the grid should nudge τ.
	tr.OnOnsets([]float64{0.55, 1.05, 1.55})
	if tr.phaseOrig <= 0.0 {
		t.Errorf("expected phase origin to advance toward the late onsets, got %v", tr.phaseOrig)
	}
}

func TestNextBeatUnsetWithoutPhaseLock(t *testing.T) {
	tr := New()
	tr.UpdateBPM(120)
	if _, ok := tr.NextBeat(10.0); ok {
		t.Error("expected NextBeat to report unset before phase lock")
	}
}

func TestNextBeatReturnsNextGridPoint(t *testing.T) {
	tr := New()
	tr.UpdateBPM(120) // period 0.5
	tr.OnOnsets([]float64{0.0})

	next, ok := tr.NextBeat(1.1)
	if !ok {
		t.Fatal("expected a phase-locked next beat")
	}
	if math.Abs(next-1.5) > 1e-9 {
		t.Errorf("expected next beat at 1.5, got %v", next)
	}
}
