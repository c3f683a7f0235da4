package target

import (
	"testing"

	"agtmuxd/internal/protocol"
	"agtmuxd/internal/tmuxadapter"
)

func TestAddTargetRejectsDuplicateName(t *testing.T) {
	m := New(nil)
	if _, err := m.AddTarget("local", protocol.TargetLocal, "", true); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := m.AddTarget("local", protocol.TargetLocal, "", false); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestAddTargetRequiresConnectionRefForSSH(t *testing.T) {
	m := New(nil)
	if _, err := m.AddTarget("box", protocol.TargetSSH, "", false); err != ErrInvalidArgs {
		t.Fatalf("expected ErrInvalidArgs, got %v", err)
	}
}

func TestLocalTargetStartsHealthy(t *testing.T) {
	m := New(nil)
	tgt, err := m.AddTarget("local", protocol.TargetLocal, "", true)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if tgt.Health != protocol.HealthOK {
		t.Fatalf("health = %q, want ok", tgt.Health)
	}
}

func TestRemoveTargetRejectsWhenReferenced(t *testing.T) {
	m := New(nil)
	m.AddTarget("local", protocol.TargetLocal, "", true)
	err := m.RemoveTarget("local", func(string) bool { return true })
	if err != ErrHasReferences {
		t.Fatalf("expected ErrHasReferences, got %v", err)
	}
}

func TestRemoveTargetSucceedsWhenUnreferenced(t *testing.T) {
	m := New(nil)
	m.AddTarget("local", protocol.TargetLocal, "", true)
	if err := m.RemoveTarget("local", func(string) bool { return false }); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := m.Get("local"); ok {
		t.Fatal("target should no longer exist after removal")
	}
}

func TestHealthReturnsNotFoundForUnknownTarget(t *testing.T) {
	m := New(nil)
	if _, err := m.Health("nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPushEventDropsOldestOnOverflowAndMarksPartial(t *testing.T) {
	m := New(nil)
	m.AddTarget("box", protocol.TargetSSH, "box-alias", false)

	for i := 0; i < maxEventBuffer+10; i++ {
		m.PushEvent("box", tmuxadapter.Notification{Type: "output", PaneID: "%1"})
	}
	events, partial := m.DrainEvents("box")
	if !partial {
		t.Fatal("expected partial_results after overflow")
	}
	if len(events) != maxEventBuffer {
		t.Fatalf("len(events) = %d, want %d", len(events), maxEventBuffer)
	}
	if health, _ := m.Health("box"); health != protocol.HealthDegraded {
		t.Fatalf("health = %q, want degraded after buffer overflow", health)
	}
}
