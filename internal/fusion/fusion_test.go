package fusion

import (
	"math"
	"testing"
)

func TestFuseReturnsMinLengthAcrossBands(t *testing.T) {
	f := NewFuser(3)
	f.AppendFlux(0, []float64{1, 2, 3, 4})
	f.AppendFlux(1, []float64{1, 2})
	f.AppendFlux(2, []float64{1, 2, 3})

	out := f.Fuse()
	if len(out) != 2 {
		t.Fatalf("expected 2 fused frames (min across bands), got %d", len(out))
	}
	if len(f.pending[0]) != 2 {
		t.Errorf("expected band 0 to retain 2 unconsumed frames, got %d", len(f.pending[0]))
	}
	if len(f.pending[1]) != 0 {
		t.Errorf("expected band 1 fully drained, got %d", len(f.pending[1]))
	}
}

func TestFuseWithNoPendingReturnsNil(t *testing.T) {
	f := NewFuser(2)
	if out := f.Fuse(); out != nil {
		t.Errorf("expected nil with no pending flux, got %v", out)
	}
}

func TestWeightsSumToOne(t *testing.T) {
	f := NewFuser(5)
	f.RecordOnsetTimes(0, []float64{1.0, 1.5, 2.0}, 4.0)
	f.RecordOnsetTimes(2, []float64{3.9}, 4.0)

	weights := f.Weights()
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("expected weights to sum to 1, got %v", sum)
	}
	if weights[0] <= weights[1] {
		t.Errorf("expected band 0 (more onsets) to outweigh band 1 (none), got %v vs %v", weights[0], weights[1])
	}
}

func TestRecordOnsetTimesPrunesOldEntries(t *testing.T) {
	f := NewFuser(1)
	f.RecordOnsetTimes(0, []float64{0.0, 1.0, 2.0}, 2.0)
	f.RecordOnsetTimes(0, []float64{10.0}, 10.0)

	for _, ts := range f.onsetTimes[0] {
		if ts < 10.0-onsetRateWindow {
			t.Errorf("expected entries older than the rate window to be pruned, found %v", ts)
		}
	}
}

func TestClusterInWindowMergesNearbyOnsets(t *testing.T) {
	merged := clusterInWindow([]float64{1.000, 1.005, 1.010, 2.000}, 0.015)
	if len(merged) != 2 {
		t.Fatalf("expected 2 clusters, got %d: %v", len(merged), merged)
	}
	want := (1.000 + 1.005 + 1.010) / 3
	if math.Abs(merged[0]-want) > 1e-9 {
		t.Errorf("expected cluster mean %v, got %v", want, merged[0])
	}
}

func TestGateDedupeRejectsWithinMergeWindow(t *testing.T) {
	g := NewGate(0.015, 2)
	kept := g.dedupe([]float64{1.0, 1.02, 1.5}, 0.06)
	if len(kept) != 2 {
		t.Fatalf("expected 2 surviving onsets after dedupe, got %d: %v", len(kept), kept)
	}
}

func TestCoincidenceGateRequiresMinBandsOrSupport(t *testing.T) {
	g := NewGate(0.015, 2)
	bands := []BandOnsets{
		{Band: 0, Times: []float64{1.000}},
		{Band: 1, Times: []float64{1.010}},
		{Band: 2, Times: []float64{5.000}}, // unrelated onset on a third band
	}
	weights := []float64{0.34, 0.33, 0.33}

	kept := g.Process(bands, weights, 0.5)
	found := false
	for _, t := range kept {
		if math.Abs(t-1.005) < 0.02 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the two-band-coincident cluster near t=1.005 to survive, got %v", kept)
	}
	for _, kt := range kept {
		if math.Abs(kt-5.0) < 0.1 {
			t.Errorf("expected the single-band onset at t=5.0 to be gated out, got %v", kept)
		}
	}
}

func TestHasNearbyBinarySearch(t *testing.T) {
	sorted := []float64{1.0, 2.0, 3.0, 4.0}
	if !hasNearby(sorted, 2.005, 0.01) {
		t.Error("expected 2.005 to be within window of 2.0")
	}
	if hasNearby(sorted, 2.5, 0.01) {
		t.Error("expected 2.5 to not be near any entry")
	}
}
