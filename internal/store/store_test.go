package store

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUIKVRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.GetUI(ctx, "missing"); err != nil || ok {
		t.Fatalf("GetUI(missing) = (_, %v, %v), want (_, false, nil)", ok, err)
	}

	if err := s.SetUI(ctx, "ui.theme", "dark"); err != nil {
		t.Fatalf("SetUI: %v", err)
	}
	value, ok, err := s.GetUI(ctx, "ui.theme")
	if err != nil || !ok || value != "dark" {
		t.Fatalf("GetUI(ui.theme) = (%q, %v, %v), want (dark, true, nil)", value, ok, err)
	}

	if err := s.SetUI(ctx, "ui.theme", "light"); err != nil {
		t.Fatalf("SetUI overwrite: %v", err)
	}
	value, _, _ = s.GetUI(ctx, "ui.theme")
	if value != "light" {
		t.Fatalf("GetUI after overwrite = %q, want light", value)
	}
}

func TestPins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Pin(ctx, "local:%1"); err != nil {
		t.Fatalf("Pin: %v", err)
	}
	pins, err := s.Pins(ctx)
	if err != nil {
		t.Fatalf("Pins: %v", err)
	}
	if !pins["local:%1"] {
		t.Fatalf("expected local:%%1 to be pinned, got %+v", pins)
	}

	if err := s.Unpin(ctx, "local:%1"); err != nil {
		t.Fatalf("Unpin: %v", err)
	}
	pins, _ = s.Pins(ctx)
	if pins["local:%1"] {
		t.Fatal("expected local:%1 to be unpinned")
	}
}

func TestStableRankMonotonicAndSticky(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r1, err := s.StableRank(ctx, "local:s1")
	if err != nil {
		t.Fatalf("StableRank s1: %v", err)
	}
	r2, err := s.StableRank(ctx, "local:s2")
	if err != nil {
		t.Fatalf("StableRank s2: %v", err)
	}
	if r2 <= r1 {
		t.Fatalf("expected r2 (%d) > r1 (%d)", r2, r1)
	}

	r1Again, err := s.StableRank(ctx, "local:s1")
	if err != nil {
		t.Fatalf("StableRank s1 again: %v", err)
	}
	if r1Again != r1 {
		t.Fatalf("StableRank not sticky: first %d, second %d", r1, r1Again)
	}
}

func TestDisplayOverrides(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SetDisplayOverride(ctx, "local:%1", "build watcher"); err != nil {
		t.Fatalf("SetDisplayOverride: %v", err)
	}
	overrides, err := s.DisplayOverrides(ctx)
	if err != nil {
		t.Fatalf("DisplayOverrides: %v", err)
	}
	if overrides["local:%1"] != "build watcher" {
		t.Fatalf("DisplayOverrides = %+v, want local:%%1 -> build watcher", overrides)
	}
}
