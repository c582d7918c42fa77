// SPDX-License-Identifier: MIT

package capture

import (
	"fmt"
	"runtime"
	"time"

	"beatpulse/internal/config"

	"github.com/gordonklaus/portaudio"
)

// Stream owns one open PortAudio input stream, converting each captured
// int32 packet to float32 and handing it to a Bridge.
type Stream struct {
	cfg     *config.Config
	device  *portaudio.DeviceInfo
	latency time.Duration

	stream *portaudio.Stream
	bridge *Bridge

	floatBuffer []float32
}

// NewStream resolves cfg.DeviceID to a device and prepares (but does not
// open) a capture stream that will feed bridge.
func NewStream(cfg *config.Config, bridge *Bridge) (*Stream, error) {
	device, err := InputDevice(cfg.DeviceID)
	if err != nil {
		return nil, err
	}

	latency := device.DefaultHighInputLatency
	if cfg.LowLatency {
		latency = device.DefaultLowInputLatency
	}

	return &Stream{
		cfg:         cfg,
		device:      device,
		latency:     latency,
		bridge:      bridge,
		floatBuffer: make([]float32, cfg.FramesPerBuffer),
	}, nil
}

// DeviceName returns the resolved input device's name.
func (s *Stream) DeviceName() string { return s.device.Name }

// Start opens and starts the PortAudio input stream. The capture
// callback runs on a dedicated OS thread and never blocks: it converts,
// downmixes, and hands off to the Bridge, which itself never blocks.
func (s *Stream) Start() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 1,
			Device:   s.device,
			Latency:  s.latency,
		},
		Output:          portaudio.StreamDeviceParameters{Channels: 0, Device: nil},
		FramesPerBuffer: s.cfg.FramesPerBuffer,
		SampleRate:      s.cfg.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, s.onPacket)
	if err != nil {
		return fmt.Errorf("capture: failed to open input stream: %w", err)
	}
	s.stream = stream

	if err := s.stream.Start(); err != nil {
		s.stream.Close()
		s.stream = nil
		return fmt.Errorf("capture: failed to start input stream: %w", err)
	}
	return nil
}

// Stop stops and closes the PortAudio input stream. Safe to call even if
// Start was never called or already stopped.
func (s *Stream) Stop() error {
	if s.stream == nil {
		return nil
	}
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("capture: failed to stop input stream: %w", err)
	}
	if err := s.stream.Close(); err != nil {
		return fmt.Errorf("capture: failed to close input stream: %w", err)
	}
	s.stream = nil
	return nil
}

func (s *Stream) onPacket(in []int32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	floats := pcmToFloat32(in, s.floatBuffer)
	s.bridge.OnPacket(floats, len(floats), 1, s.cfg.SampleRate, time.Now())
}
