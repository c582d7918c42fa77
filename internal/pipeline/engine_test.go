package pipeline

import (
	"testing"
	"time"

	"beatpulse/internal/config"
	"beatpulse/pkg/testsignal"
)

func newTestEngine() (*Engine, *config.Config) {
	cfg := config.NewConfig()
	cfg.SampleRate = 44100
	e := New(cfg)
	e.Prepare(cfg.SampleRate)
	return e, cfg
}

func TestTickBeforePrepareReturnsZeroValue(t *testing.T) {
	cfg := config.NewConfig()
	e := New(cfg)
	result := e.Tick(1.0)
	if result.BPM != 0 || len(result.Onsets) != 0 {
		t.Errorf("expected zero-value TickResult before Prepare, got %+v", result)
	}
}

func TestPrepareBuildsTenDetectors(t *testing.T) {
	e, _ := newTestEngine()
	for b := 0; b < numBands; b++ {
		for r := 0; r < numRes; r++ {
			if e.detectors[b][r] == nil {
				t.Errorf("expected detector[%d][%d] to be non-nil after Prepare", b, r)
			}
		}
	}
}

func TestWorkerDrainsRingIntoDetectors(t *testing.T) {
	e, cfg := newTestEngine()
	e.StartWorker()
	defer e.StopWorker()

	click := testsignal.ClickTrack(int(cfg.SampleRate*2), cfg.SampleRate, 120, 1000)
	for i := 0; i < len(click); i += workerHop {
		end := i + workerHop
		if end > len(click) {
			end = len(click)
		}
		for !e.ring.Write(click[i:end]) {
			time.Sleep(time.Millisecond)
		}
	}

	// Give the worker time to drain the ring.
	deadline := time.Now().Add(2 * time.Second)
	for e.ring.Used() > 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}

	if e.ring.Used() != 0 {
		t.Fatalf("expected worker to drain ring, %d samples remain", e.ring.Used())
	}
}

func TestApplyHysteresisRequiresConsecutiveGoodTicks(t *testing.T) {
	e, cfg := newTestEngine()
	cfg.MinConfidenceForUpdates = 0.20

	if e.applyHysteresis(120, 0.5) {
		t.Fatal("expected first good tick not to apply immediately")
	}
	if e.applyHysteresis(120, 0.5) {
		t.Fatal("expected second good tick not to apply immediately")
	}
	if !e.applyHysteresis(120, 0.5) {
		t.Fatal("expected third consecutive good tick to apply")
	}
	if got := e.beatTrack.Period(); got != 0.5 {
		t.Errorf("expected beat tracker period 0.5s for 120 BPM, got %v", got)
	}
}

func TestApplyHysteresisResetsOnLowConfidence(t *testing.T) {
	e, _ := newTestEngine()
	e.applyHysteresis(120, 0.5)
	e.applyHysteresis(120, 0.5)
	if e.applyHysteresis(120, 0.05) {
		t.Fatal("expected low-confidence tick to reset the streak and not apply")
	}
	// Streak restarted at zero; a single good tick after the reset must
	// not be enough to apply on its own.
	if e.applyHysteresis(120, 0.5) {
		t.Fatal("expected streak to require 3 fresh consecutive good ticks after a reset")
	}
}

func TestMergeSortedTimes(t *testing.T) {
	got := mergeSortedTimes([]float64{0.1, 0.3}, []float64{0.2, 0.4})
	want := []float64{0.1, 0.2, 0.3, 0.4}
	if len(got) != len(want) {
		t.Fatalf("expected %d elements, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestStatusReportsUnpreparedBeforePrepare(t *testing.T) {
	e := New(config.NewConfig())
	if got := e.Status(0); got != "pipeline: not prepared" {
		t.Errorf("expected unprepared status, got %q", got)
	}
}

func TestStatusReportsReadyAfterPrepare(t *testing.T) {
	e, _ := newTestEngine()
	got := e.Status(3)
	if got == "pipeline: not prepared" {
		t.Errorf("expected ready status after Prepare, got %q", got)
	}
}
