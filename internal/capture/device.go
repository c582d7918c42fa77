// SPDX-License-Identifier: MIT

// Package capture owns the PortAudio input device lifecycle and the
// lock-free handoff from the driver's capture thread into the pipeline's
// ring buffer.
package capture

import (
	"fmt"
	"strings"

	"beatpulse/internal/config"

	"github.com/gordonklaus/portaudio"
)

// Device describes one enumerated audio device.
type Device struct {
	ID                int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
}

// Initialize sets up the PortAudio subsystem. Must be called before any
// other capture operation and paired with a Terminate call.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("capture: failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate cleanly shuts down the PortAudio subsystem.
func Terminate() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("capture: failed to terminate PortAudio: %w", err)
	}
	return nil
}

// ListDevices returns every enumerated audio device.
func ListDevices() ([]Device, error) {
	infos, err := paDevices()
	if err != nil {
		return nil, err
	}
	devices := make([]Device, len(infos))
	for i, info := range infos {
		devices[i] = Device{
			ID:                i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
		}
	}
	return devices, nil
}

// InputDevice resolves deviceID to a PortAudio device descriptor.
// config.MinDeviceID (-1) selects the system default input device.
func InputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	if deviceID == config.MinDeviceID {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("capture: failed to resolve default input device: %w", err)
		}
		return device, nil
	}

	devices, err := paDevices()
	if err != nil {
		return nil, err
	}
	if deviceID < 0 || deviceID >= len(devices) {
		return nil, fmt.Errorf("capture: invalid device ID: %d", deviceID)
	}
	return devices[deviceID], nil
}

// OutputDevice resolves preferredName to the first PortAudio output
// device whose name contains it as a substring, or the system default if
// preferredName is empty.
func OutputDevice(preferredName string) (*portaudio.DeviceInfo, error) {
	if preferredName == "" {
		device, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, fmt.Errorf("capture: failed to resolve default output device: %w", err)
		}
		return device, nil
	}

	devices, err := paDevices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if strings.Contains(d.Name, preferredName) && d.MaxOutputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("capture: output device %q not found", preferredName)
}

func paDevices() ([]*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("capture: failed to enumerate devices: %w", err)
	}
	return devices, nil
}
