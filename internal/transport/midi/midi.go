// SPDX-License-Identifier: MIT

// Package midi drives a hardware or virtual MIDI output port: a
// note-on/note-off pulse per onset and a continuous-controller value per
// tempo tick, for feeding a DAW, lighting desk, or control surface.
package midi

import (
	"fmt"
	"sync"
	"time"

	applog "beatpulse/internal/log"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

const (
	beatChannel    = 0
	beatNote       = 60
	beatVelocity   = 100
	beatGateMillis = 60

	tempoController = 20
	tempoBPMFloor   = 60.0
	tempoBPMSpan    = 180.0
)

// Controller owns one open MIDI output port and publishes beat and tempo
// events onto it.
type Controller struct {
	driver *rtmididrv.Driver
	out    drivers.Out
	send   func(midi.Message) error

	mu           sync.Mutex
	noteOffTimer *time.Timer
}

// ListOutputs returns the names of every available MIDI output port.
func ListOutputs() ([]string, error) {
	driver, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("midi: failed to open driver: %w", err)
	}
	defer driver.Close()

	outs, err := driver.Outs()
	if err != nil {
		return nil, fmt.Errorf("midi: failed to list outputs: %w", err)
	}
	names := make([]string, len(outs))
	for i, out := range outs {
		names[i] = out.String()
	}
	return names, nil
}

// New opens a MIDI output port. If preferredName is empty, the first
// available output port is used.
func New(preferredName string) (*Controller, error) {
	driver, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("midi: failed to open driver: %w", err)
	}

	outs, err := driver.Outs()
	if err != nil {
		driver.Close()
		return nil, fmt.Errorf("midi: failed to list outputs: %w", err)
	}
	if len(outs) == 0 {
		driver.Close()
		return nil, fmt.Errorf("midi: no output ports available")
	}

	chosen := outs[0]
	if preferredName != "" {
		found := false
		for _, out := range outs {
			if out.String() == preferredName {
				chosen = out
				found = true
				break
			}
		}
		if !found {
			driver.Close()
			return nil, fmt.Errorf("midi: output port %q not found", preferredName)
		}
	}

	if err := chosen.Open(); err != nil {
		driver.Close()
		return nil, fmt.Errorf("midi: failed to open output %q: %w", chosen.String(), err)
	}

	send, err := midi.SendTo(chosen)
	if err != nil {
		chosen.Close()
		driver.Close()
		return nil, fmt.Errorf("midi: failed to bind sender: %w", err)
	}

	applog.Infof("midi: connected to output %q", chosen.String())
	return &Controller{driver: driver, out: chosen, send: send}, nil
}

// PublishBeat sends a note-on for the beat note and schedules the
// matching note-off after the fixed gate duration, replacing any
// previously pending note-off.
func (c *Controller) PublishBeat() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.noteOffTimer != nil {
		c.noteOffTimer.Stop()
		if err := c.send(midi.NoteOff(beatChannel, beatNote)); err != nil {
			applog.Errorf("midi: failed to send pending note-off: %v", err)
		}
	}

	if err := c.send(midi.NoteOn(beatChannel, beatNote, beatVelocity)); err != nil {
		return fmt.Errorf("midi: failed to send note-on: %w", err)
	}

	c.noteOffTimer = time.AfterFunc(beatGateMillis*time.Millisecond, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if err := c.send(midi.NoteOff(beatChannel, beatNote)); err != nil {
			applog.Errorf("midi: failed to send note-off: %v", err)
		}
		c.noteOffTimer = nil
	})
	return nil
}

// PublishTempo sends the current BPM as a control-change value on
// tempoController, mapped linearly from [60, 240] BPM to [0, 127].
func (c *Controller) PublishTempo(bpm float64) error {
	value := clamp((bpm-tempoBPMFloor)*127/tempoBPMSpan, 0, 127)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.send(midi.ControlChange(beatChannel, tempoController, uint8(value))); err != nil {
		return fmt.Errorf("midi: failed to send tempo CC: %w", err)
	}
	return nil
}

// Close releases the output port and driver.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.noteOffTimer != nil {
		c.noteOffTimer.Stop()
		c.noteOffTimer = nil
	}
	c.mu.Unlock()

	err := c.out.Close()
	c.driver.Close()
	return err
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
