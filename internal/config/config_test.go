package config

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Targets) != 1 || cfg.Targets[0].Name != "local" {
		t.Fatalf("Load(missing) = %+v, want default local target", cfg)
	}
	if cfg.Tuning.IdleHysteresis == 0 {
		t.Fatal("expected default tuning to be populated")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.Targets = append(cfg.Targets, TargetConfig{Name: "build-box", Kind: "ssh", ConnectionRef: "build-box"})

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Targets) != 2 || got.Targets[1].Name != "build-box" {
		t.Fatalf("round trip targets = %+v", got.Targets)
	}
}

func TestValidateConfigPathRejectsRelative(t *testing.T) {
	if err := validateConfigPath("relative/config.yaml"); err == nil {
		t.Fatal("expected error for relative config path")
	}
}

func TestValidateConfigPathRejectsEmpty(t *testing.T) {
	if err := validateConfigPath("   "); err == nil {
		t.Fatal("expected error for empty config path")
	}
}

func TestExpandEnvRejectsDisallowedVariable(t *testing.T) {
	t.Setenv("AGTMUX_DAEMON_BIN", "/usr/local/bin/agtmuxd")
	got, err := expandEnv("${AGTMUX_DAEMON_BIN}/sock")
	if err != nil {
		t.Fatalf("expandEnv: %v", err)
	}
	if got != "/usr/local/bin/agtmuxd/sock" {
		t.Fatalf("expandEnv = %q", got)
	}

	if _, err := expandEnv("${HOME}/sock"); err == nil {
		t.Fatal("expected expandEnv to reject $HOME")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.Targets[0].Name = "changed"
	if cfg.Targets[0].Name == "changed" {
		t.Fatal("Clone shares backing array with original")
	}
}
