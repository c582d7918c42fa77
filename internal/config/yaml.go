// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// LoadOverlay reads a YAML file at path and merges its keys into cfg. Keys
// absent from the file leave the corresponding cfg field untouched, so a
// config file only needs to mention the options it wants to change from
// whatever cobra flags (or defaults) already populated. If path is empty,
// "config.yaml" is tried in the current directory and the absence of either
// is not an error.
func LoadOverlay(path string, cfg *Config) error {
	if path == "" {
		if _, err := os.Stat("config.yaml"); err != nil {
			return nil
		}
		path = "config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: failed to parse config file: %w", err)
	}

	return nil
}

// ApplyEnvOverrides applies a small set of BEATPULSE_-prefixed environment
// variable overrides on top of whatever flags and YAML overlay already set.
// Intended to be called last, immediately before Validate.
func (cfg *Config) ApplyEnvOverrides() {
	if val, ok := os.LookupEnv("BEATPULSE_VERBOSE"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Verbose = b
		}
	}
	if val, ok := os.LookupEnv("BEATPULSE_EVENT_ADDRESS"); ok {
		cfg.EventAddress = val
	}
	if val, ok := os.LookupEnv("BEATPULSE_MONITOR_ADDR"); ok {
		cfg.MonitorAddr = val
	}
	if val, ok := os.LookupEnv("BEATPULSE_MIDI_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.MIDIEnabled = b
		}
	}
	if val, ok := os.LookupEnv("BEATPULSE_MIDI_OUT_PORT"); ok {
		cfg.MIDIOutPortName = val
	}
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampI(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Validate clamps every range named by the external-interfaces config
// surface and rejects configuration that cannot produce a working pipeline.
func (cfg *Config) Validate() error {
	if cfg.SampleRate < MinSampleRate || cfg.SampleRate > MaxSampleRate {
		return fmt.Errorf("config: sample_rate %.0f out of range [%d, %d]", cfg.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if cfg.FramesPerBuffer <= 0 || cfg.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("config: frames_per_buffer %d out of range (0, %d]", cfg.FramesPerBuffer, MaxBufferFrames)
	}

	cfg.HpfHz = clampF(cfg.HpfHz, MinHpfHz, MaxHpfHz)
	cfg.LpfHz = clampF(cfg.LpfHz, MinLpfHz, MaxLpfHz)
	if cfg.LpfHz <= cfg.HpfHz {
		return fmt.Errorf("config: lpf_hz (%.1f) must exceed hpf_hz (%.1f)", cfg.LpfHz, cfg.HpfHz)
	}

	cfg.CoincidenceWindowSec = clampF(cfg.CoincidenceWindowSec, MinCoincidenceWindowSec, MaxCoincidenceWindowSec)
	if cfg.MinBandsForOnset < 1 {
		cfg.MinBandsForOnset = 1
	}

	cfg.TopKCandidates = clampI(cfg.TopKCandidates, MinTopKCandidates, MaxTopKCandidates)
	cfg.IOIWeight = clampF(cfg.IOIWeight, MinIOIWeight, MaxIOIWeight)
	cfg.SlewPercent = clampF(cfg.SlewPercent, MinSlewPercent, MaxSlewPercent)

	if cfg.EmitHz <= 0 {
		cfg.EmitHz = DefaultEmitHz
	}

	return nil
}
