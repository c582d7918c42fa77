// SPDX-License-Identifier: MIT

// Package pipeline wires the capture-to-emitter chain together: the
// worker loop that drains the ring into band-split detectors, and the
// coarse mutex that the worker and the emitter both hold while touching
// filters, detectors, the tempo estimator, or the beat tracker.
package pipeline

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"beatpulse/internal/beat"
	"beatpulse/internal/config"
	"beatpulse/internal/filter"
	"beatpulse/internal/fusion"
	applog "beatpulse/internal/log"
	"beatpulse/internal/onset"
	"beatpulse/internal/ring"
	"beatpulse/internal/tempo"
)

const (
	numBands    = 5
	numRes      = 2
	workerHop   = 512 // samples read from the ring per worker iteration
	sleepOnIdle = 2 * time.Millisecond

	hiN, hiH = 1024, 256  // high-resolution detector: short FFT, short hop
	loN, loH = 4096, 1024 // low-resolution detector: long FFT, long hop

	thrWindowSeconds = 0.75

	consecutiveTicksForApply = 3
	minConfidenceFloor       = 0.25
	relativeBPMDeltaForApply = 0.04
)

// Engine owns every mutex-guarded DSP stage (filters, the ten onset
// detectors, fusion, gating, tempo, and beat tracking) plus the worker
// goroutine that feeds them from the ring. It does not own the capture
// stream or the emitter ticker; those are started and stopped around it
// by main/cmd.
type Engine struct {
	cfg *config.Config

	ring  *ring.Ring
	clock *ring.AudioClock

	mu         sync.Mutex
	sampleRate float64
	prepared   bool
	splitter   *filter.BandSplitter
	detectors  [numBands][numRes]*onset.Detector
	fuser      *fusion.Fuser
	gate       *fusion.Gate
	tempoEst   *tempo.Estimator
	beatTrack  *beat.Tracker

	lastApplied     float64
	haveApplied     bool
	consecutiveGood int

	workerRunning atomic.Bool
	workerDone    chan struct{}

	chunk   []float32
	chunk64 []float64
	bands   [numBands][]float64
}

// New creates an Engine backed by a fresh ring of ring.DefaultCapacity
// samples, not yet prepared for any sample rate.
func New(cfg *config.Config) *Engine {
	return &Engine{
		cfg:        cfg,
		ring:       ring.New(ring.DefaultCapacity),
		clock:      &ring.AudioClock{},
		chunk:      make([]float32, workerHop),
		chunk64:    make([]float64, workerHop),
		workerDone: make(chan struct{}),
	}
}

// Ring exposes the handoff ring so the capture bridge can be built
// against it.
func (e *Engine) Ring() *ring.Ring { return e.ring }

// Clock exposes the audio clock so the capture bridge can advance it.
func (e *Engine) Clock() *ring.AudioClock { return e.clock }

// Prepare (re)builds every mutex-guarded DSP object for sampleRate,
// discarding prior detector/filter/tempo/beat state and resetting the
// audio clock. main calls it once with the configured rate before the
// worker starts. The capture bridge does not call it: a packet arriving
// at a different rate does not re-prepare the pipeline.
func (e *Engine) Prepare(sampleRate float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sampleRate = sampleRate
	e.splitter = filter.NewBandSplitter(sampleRate, e.cfg.HpfHz, e.cfg.LpfHz)

	for b, edges := range filter.BandEdges {
		hi, err := onset.New(hiN, hiH, sampleRate, edges[0], edges[1], thrWindowSeconds)
		if err != nil {
			applog.Fatalf("pipeline: failed to build high-resolution detector for band %d: %v", b, err)
		}
		lo, err := onset.New(loN, loH, sampleRate, edges[0], edges[1], thrWindowSeconds)
		if err != nil {
			applog.Fatalf("pipeline: failed to build low-resolution detector for band %d: %v", b, err)
		}
		e.detectors[b][0] = hi
		e.detectors[b][1] = lo
	}

	e.fuser = fusion.NewFuser(numBands)
	e.gate = fusion.NewGate(e.cfg.CoincidenceWindowSec, e.cfg.MinBandsForOnset)
	e.tempoEst = tempo.New(sampleRate, hiH, e.cfg.TopKCandidates, e.cfg.IOIWeight, e.cfg.SlewPercent)
	e.beatTrack = beat.New()

	for b := range e.bands {
		e.bands[b] = make([]float64, workerHop)
	}

	e.lastApplied = 0
	e.haveApplied = false
	e.consecutiveGood = 0
	e.prepared = true

	e.clock.Reset()
	applog.Infof("pipeline: prepared for sample rate %.0f Hz", sampleRate)
}

// EnsurePrepared prepares the pipeline for sampleRate if it has not yet
// been prepared, or if the rate has changed since the last prepare,
// matching the RateChange recovery path: all detectors rebuilt, audio
// clock reset.
func (e *Engine) EnsurePrepared(sampleRate float64) {
	e.mu.Lock()
	needsPrepare := !e.prepared || e.sampleRate != sampleRate
	e.mu.Unlock()
	if needsPrepare {
		e.Prepare(sampleRate)
	}
}

// StartWorker launches the worker goroutine. It must only be called
// after the pipeline has been prepared at least once.
func (e *Engine) StartWorker() {
	e.workerRunning.Store(true)
	go e.workerLoop()
}

// StopWorker clears the running flag and blocks until the worker
// goroutine has observed it and returned.
func (e *Engine) StopWorker() {
	e.workerRunning.Store(false)
	<-e.workerDone
}

func (e *Engine) workerLoop() {
	defer close(e.workerDone)
	for e.workerRunning.Load() {
		n := e.ring.Read(e.chunk)
		if n == 0 {
			time.Sleep(sleepOnIdle)
			continue
		}
		for i := 0; i < n; i++ {
			e.chunk64[i] = float64(e.chunk[i])
		}

		e.mu.Lock()
		if !e.prepared {
			e.mu.Unlock()
			continue
		}
		var dst [numBands][]float64
		for b := range e.bands {
			dst[b] = e.bands[b][:n]
		}
		e.splitter.ProcessChunk(e.chunk64[:n], dst)
		for b := range dst {
			for r := 0; r < numRes; r++ {
				e.detectors[b][r].Push(dst[b])
			}
		}
		e.mu.Unlock()
	}
}

// TickResult carries everything an emitter tick needs to publish.
type TickResult struct {
	Onsets      []float64
	BPM         float64
	Confidence  float64
	NextBeat    float64
	HasNextBeat bool
	Applied     bool // true if this tick's BPM passed the hysteresis gate

	// Candidates holds the tempo estimator's last peak-scan candidates,
	// populated only when the pipeline was configured with
	// SendTempoCandidates — diagnostic fan-out, not used for gating.
	Candidates []tempo.Candidate
}

// Tick runs one full fusion/gating/tempo/beat update under the pipeline
// mutex and returns the results to publish. now is the current
// audio-time in seconds (AudioClock.Seconds).
func (e *Engine) Tick(now float64) TickResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.prepared {
		return TickResult{}
	}

	var bandOnsets [numBands]fusion.BandOnsets
	for b := 0; b < numBands; b++ {
		hi, lo := e.detectors[b][0], e.detectors[b][1]

		e.fuser.AppendFlux(b, hi.DrainFlux())
		lo.DrainFlux() // low-resolution flux is not fed to fusion; see DESIGN.md

		merged := mergeSortedTimes(hi.DrainOnsets(), lo.DrainOnsets())
		bandOnsets[b] = fusion.BandOnsets{Band: b, Times: merged}
		e.fuser.RecordOnsetTimes(b, merged, now)
	}

	fused := e.fuser.Fuse()
	weights := e.fuser.Weights()

	currentPeriod := e.beatTrack.Period()
	gated := e.gate.Process(bandOnsets[:], weights, currentPeriod)

	if len(fused) > 0 {
		e.tempoEst.Update(fused)
	}
	if len(gated) > 0 {
		e.tempoEst.IngestOnsets(gated)
		e.beatTrack.OnOnsets(gated)
	}

	bpm := e.tempoEst.BPM()
	conf := e.tempoEst.Confidence()

	applied := e.applyHysteresis(bpm, conf)

	result := TickResult{Onsets: gated, BPM: bpm, Confidence: conf, Applied: applied}
	if e.cfg.SendTempoCandidates {
		result.Candidates = e.tempoEst.Candidates()
	}
	result.NextBeat, result.HasNextBeat = e.beatTrack.NextBeat(now)
	return result
}

// applyHysteresis implements the 3-consecutive-good-ticks gate from
// §4.8: conf ≥ max(0.25, minConfidenceForUpdates) and a relative BPM
// delta below 4% of the last applied value, for 3 ticks running, before
// the BPM is pushed to the beat tracker and detector refractories are
// retuned.
func (e *Engine) applyHysteresis(bpm, conf float64) bool {
	if bpm <= 0 {
		e.consecutiveGood = 0
		return false
	}

	floor := e.cfg.MinConfidenceForUpdates
	if floor < minConfidenceFloor {
		floor = minConfidenceFloor
	}

	good := conf >= floor
	if good && e.haveApplied {
		delta := abs(bpm-e.lastApplied) / max1(e.lastApplied)
		good = delta < relativeBPMDeltaForApply
	}

	if !good {
		e.consecutiveGood = 0
		return false
	}

	e.consecutiveGood++
	if e.consecutiveGood < consecutiveTicksForApply {
		return false
	}

	e.beatTrack.UpdateBPM(bpm)
	period := e.beatTrack.Period()
	for b := 0; b < numBands; b++ {
		for r := 0; r < numRes; r++ {
			e.detectors[b][r].SetRefractory(period)
		}
	}

	e.lastApplied = bpm
	e.haveApplied = true
	return true
}

// Status returns a human-readable one-line snapshot of pipeline health.
// overruns is the capture bridge's drop counter, passed in rather than
// tracked redundantly here since the bridge is the sole writer of that
// count.
func (e *Engine) Status(overruns uint64) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.prepared {
		return "pipeline: not prepared"
	}
	return fmt.Sprintf("pipeline: ready sr=%.0fHz block=%d overruns=%d bpm=%.1f conf=%.2f",
		e.sampleRate, workerHop, overruns, e.tempoEst.BPM(), e.tempoEst.Confidence())
}

func mergeSortedTimes(a, b []float64) []float64 {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	merged := make([]float64, 0, len(a)+len(b))
	merged = append(merged, a...)
	merged = append(merged, b...)
	sort.Float64s(merged)
	return merged
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func max1(v float64) float64 {
	if v < 1 {
		return 1
	}
	return v
}
