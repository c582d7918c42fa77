package fusion

import "sort"

const weightedSupportThreshold = 0.6

// BandOnsets holds one band's sorted onset timestamps, contributed by
// that band's two resolution detectors, used as the per-band lookup
// table for the coincidence gate.
type BandOnsets struct {
	Band  int
	Times []float64 // must be sorted ascending
}

// Gate merges onsets from all band/resolution detectors into a single
// deduplicated, coincidence-gated onset stream, per tick.
type Gate struct {
	coincidenceWindow float64
	minBandsForOnset  int

	lastKept     float64
	haveLastKept bool
}

// NewGate creates a Gate. coincidenceWindow must be in [0.008, 0.030]
// seconds and minBandsForOnset is typically 2.
func NewGate(coincidenceWindow float64, minBandsForOnset int) *Gate {
	return &Gate{
		coincidenceWindow: coincidenceWindow,
		minBandsForOnset:  minBandsForOnset,
	}
}

// Process runs the cluster-in-window, tempo-aware dedupe, and coincidence
// gate steps against the onsets collected on every band since the last
// tick, returning the surviving onset times in ascending order.
func (g *Gate) Process(bands []BandOnsets, weights []float64, currentPeriod float64) []float64 {
	merged := mergeSorted(bands)
	if len(merged) == 0 {
		return nil
	}

	clustered := clusterInWindow(merged, g.coincidenceWindow)
	mergeWindow := clamp(0.10*currentPeriod, 0.01, 0.06)
	deduped := g.dedupe(clustered, mergeWindow)

	kept := make([]float64, 0, len(deduped))
	weightSum := 0.0
	for _, w := range weights {
		weightSum += w
	}
	for _, t := range deduped {
		bandsHit, support := coincidenceSupport(t, bands, weights, weightSum, g.coincidenceWindow)
		if bandsHit >= g.minBandsForOnset || support >= weightedSupportThreshold {
			kept = append(kept, t)
		}
	}
	return kept
}

func mergeSorted(bands []BandOnsets) []float64 {
	total := 0
	for _, b := range bands {
		total += len(b.Times)
	}
	if total == 0 {
		return nil
	}
	all := make([]float64, 0, total)
	for _, b := range bands {
		all = append(all, b.Times...)
	}
	sort.Float64s(all)
	return all
}

func clusterInWindow(sorted []float64, window float64) []float64 {
	if len(sorted) == 0 {
		return nil
	}
	clustered := make([]float64, 0, len(sorted))
	groupSum := sorted[0]
	groupCount := 1
	groupLast := sorted[0]

	flush := func() {
		clustered = append(clustered, groupSum/float64(groupCount))
	}
	for i := 1; i < len(sorted); i++ {
		t := sorted[i]
		if t-groupLast <= window {
			groupSum += t
			groupCount++
			groupLast = t
			continue
		}
		flush()
		groupSum, groupCount, groupLast = t, 1, t
	}
	flush()
	return clustered
}

func (g *Gate) dedupe(clustered []float64, mergeWindow float64) []float64 {
	kept := make([]float64, 0, len(clustered))
	for _, t := range clustered {
		if g.haveLastKept && t-g.lastKept <= mergeWindow {
			continue
		}
		kept = append(kept, t)
		g.lastKept = t
		g.haveLastKept = true
	}
	return kept
}

// coincidenceSupport returns how many distinct bands have at least one
// onset within window of t, and the weighted support fraction.
func coincidenceSupport(t float64, bands []BandOnsets, weights []float64, weightSum, window float64) (int, float64) {
	bandsHit := 0
	hitWeight := 0.0
	for _, b := range bands {
		if hasNearby(b.Times, t, window) {
			bandsHit++
			if b.Band < len(weights) {
				hitWeight += weights[b.Band]
			}
		}
	}
	support := 0.0
	if weightSum > 0 {
		support = hitWeight / weightSum
	}
	return bandsHit, support
}

// hasNearby reports whether sorted contains a value within window of t,
// via binary search to the insertion point and checking its neighbors.
func hasNearby(sorted []float64, t, window float64) bool {
	idx := sort.Search(len(sorted), func(i int) bool { return sorted[i] >= t })
	if idx < len(sorted) && sorted[idx]-t <= window {
		return true
	}
	if idx > 0 && t-sorted[idx-1] <= window {
		return true
	}
	return false
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
