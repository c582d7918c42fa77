// SPDX-License-Identifier: MIT

// Package emit runs the UI-rate publishing task: a fixed-frequency
// ticker that drives the pipeline's fusion/gating/tempo/beat update and
// fans the result out to every configured sink.
package emit

import (
	"sync"
	"time"

	applog "beatpulse/internal/log"
	"beatpulse/internal/pipeline"
	"beatpulse/internal/ring"
	"beatpulse/internal/tempo"
	"beatpulse/internal/transport"
	"beatpulse/internal/transport/midi"
	"beatpulse/internal/transport/monitor"
	"beatpulse/internal/transport/osc"
)

// Sinks bundles the external publish targets a Loop fans a tick out to.
// Any field may be nil; a nil sink is simply skipped.
type Sinks struct {
	Event   *osc.Publisher
	MIDI    *midi.Controller
	Monitor *monitor.Broadcaster

	// Debug, when set, receives every published event through the
	// generic transport.Transport interface — typically a
	// transport.LoggingTransport enabled by verbose mode, for tracing
	// what the real sinks received without attaching a client to any of
	// them.
	Debug transport.Transport
}

// Loop owns the 30 Hz emitter ticker, matching the Start/Stop/sync.Once
// lifecycle shape used throughout this module's transports.
type Loop struct {
	engine     *pipeline.Engine
	clock      *ring.AudioClock
	sampleRate float64
	sinks      Sinks

	ticker *time.Ticker
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// New creates a Loop that pulls audio-time from clock at sampleRate and
// drives engine.Tick once per tick after Start is called.
func New(engine *pipeline.Engine, clock *ring.AudioClock, sampleRate float64, sinks Sinks) *Loop {
	return &Loop{
		engine:     engine,
		clock:      clock,
		sampleRate: sampleRate,
		sinks:      sinks,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the ticker goroutine. Safe to call once; a second call
// is a no-op.
func (l *Loop) Start(hz float64) {
	l.once.Do(func() {
		l.ticker = time.NewTicker(time.Duration(float64(time.Second) / hz))
		go l.run()
	})
}

// Stop halts the ticker and blocks until the goroutine has returned.
func (l *Loop) Stop() {
	select {
	case <-l.stop:
		return // already stopped
	default:
		close(l.stop)
	}
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)
	defer l.ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-l.ticker.C:
			l.tick()
		}
	}
}

func (l *Loop) tick() {
	now := l.clock.Seconds(l.sampleRate)
	result := l.engine.Tick(now)

	for _, t := range result.Onsets {
		l.publishOnset(t)
	}

	if result.BPM > 0 {
		l.publishTempo(result.BPM, result.Confidence)
	}

	if len(result.Candidates) > 0 {
		l.publishCandidates(result.Candidates)
	}
}

func (l *Loop) publishOnset(onsetTime float64) {
	if l.sinks.Event != nil {
		if err := l.sinks.Event.PublishBeat(onsetTime); err != nil {
			applog.Errorf("emit: failed to publish beat over event transport: %v", err)
		}
	}
	if l.sinks.MIDI != nil {
		if err := l.sinks.MIDI.PublishBeat(); err != nil {
			applog.Errorf("emit: failed to publish beat over MIDI: %v", err)
		}
	}
	if l.sinks.Monitor != nil {
		if err := l.sinks.Monitor.Publish(monitor.Event{Kind: monitor.EventBeat, OnsetTime: onsetTime}); err != nil {
			applog.Errorf("emit: failed to publish beat to monitor: %v", err)
		}
	}
	if l.sinks.Debug != nil {
		_ = l.sinks.Debug.Send(monitor.Event{Kind: monitor.EventBeat, OnsetTime: onsetTime})
	}
}

// publishCandidates fans out the tempo estimator's last peak-scan
// candidates. These are diagnostic-only, so they go to the monitor and
// debug sinks, not the fixed-format OSC/MIDI control outputs.
func (l *Loop) publishCandidates(candidates []tempo.Candidate) {
	converted := make([]monitor.Candidate, len(candidates))
	for i, c := range candidates {
		converted[i] = monitor.Candidate{BPM: c.BPM, Score: c.Score, Total: c.Total}
	}
	event := monitor.Event{Kind: monitor.EventCandidates, Candidates: converted}

	if l.sinks.Monitor != nil {
		if err := l.sinks.Monitor.Publish(event); err != nil {
			applog.Errorf("emit: failed to publish tempo candidates to monitor: %v", err)
		}
	}
	if l.sinks.Debug != nil {
		_ = l.sinks.Debug.Send(event)
	}
}

func (l *Loop) publishTempo(bpm, confidence float64) {
	if l.sinks.Event != nil {
		if err := l.sinks.Event.PublishTempo(bpm, confidence); err != nil {
			applog.Errorf("emit: failed to publish tempo over event transport: %v", err)
		}
	}
	if l.sinks.MIDI != nil {
		if err := l.sinks.MIDI.PublishTempo(bpm); err != nil {
			applog.Errorf("emit: failed to publish tempo over MIDI: %v", err)
		}
	}
	if l.sinks.Monitor != nil {
		if err := l.sinks.Monitor.Publish(monitor.Event{Kind: monitor.EventTempo, BPM: bpm, Confidence: confidence}); err != nil {
			applog.Errorf("emit: failed to publish tempo to monitor: %v", err)
		}
	}
	if l.sinks.Debug != nil {
		_ = l.sinks.Debug.Send(monitor.Event{Kind: monitor.EventTempo, BPM: bpm, Confidence: confidence})
	}
}
