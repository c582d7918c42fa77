// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadOverlay_EmptyPathNoFile(t *testing.T) {
	t.Parallel()
	cfg := NewConfig()
	if err := LoadOverlay("", cfg); err != nil {
		t.Errorf("expected nil error when no config.yaml present, got %v", err)
	}
	if cfg.SampleRate != DefaultSampleRate {
		t.Errorf("expected defaults untouched, got sample rate %v", cfg.SampleRate)
	}
}

func TestLoadOverlay_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg := NewConfig()
	if err := LoadOverlay("nonexistent.yaml", cfg); err == nil {
		t.Error("expected error for missing explicit file, got nil")
	}
}

func TestLoadOverlay_OnlyOverridesPresentKeys(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, "hpf_hz: 30\n")
	cfg := NewConfig()
	if err := LoadOverlay(path, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HpfHz != 30 {
		t.Errorf("expected hpf_hz overlay to apply, got %v", cfg.HpfHz)
	}
	if cfg.LpfHz != DefaultLpfHz {
		t.Errorf("expected lpf_hz to remain default, got %v", cfg.LpfHz)
	}
}

func TestValidate_ClampsRanges(t *testing.T) {
	t.Parallel()
	cfg := NewConfig()
	cfg.HpfHz = 1
	cfg.TopKCandidates = 50
	cfg.SlewPercent = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HpfHz != MinHpfHz {
		t.Errorf("expected hpf_hz clamped to %v, got %v", MinHpfHz, cfg.HpfHz)
	}
	if cfg.TopKCandidates != MaxTopKCandidates {
		t.Errorf("expected top_k_candidates clamped to %v, got %v", MaxTopKCandidates, cfg.TopKCandidates)
	}
	if cfg.SlewPercent != MinSlewPercent {
		t.Errorf("expected slew_percent clamped to %v, got %v", MinSlewPercent, cfg.SlewPercent)
	}
}

func TestValidate_RejectsBadSampleRate(t *testing.T) {
	t.Parallel()
	cfg := NewConfig()
	cfg.SampleRate = 1000
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for out-of-range sample rate, got nil")
	}
}
