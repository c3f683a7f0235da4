package writeguard

import (
	"testing"
	"time"

	"agtmuxd/internal/protocol"
)

func observedPane(runtimeID string, state protocol.ActivityState, updatedAt time.Time) protocol.PaneItem {
	return protocol.PaneItem{PaneID: "%1", RuntimeID: runtimeID, ActivityState: state, UpdatedAt: updatedAt}
}

func TestCheckPassesWhenNoGuardsSet(t *testing.T) {
	g := New()
	now := time.Now()
	pane := observedPane("r1", protocol.ActivityRunning, now)
	applied := false

	wireErr, _, err := g.Check("%1", protocol.Guards{}, pane, now, func() error { applied = true; return nil })
	if wireErr != nil || err != nil {
		t.Fatalf("unexpected error: %v / %v", wireErr, err)
	}
	if !applied {
		t.Fatal("apply was not called")
	}
}

func TestCheckRejectsRuntimeMismatch(t *testing.T) {
	g := New()
	now := time.Now()
	pane := observedPane("r2", protocol.ActivityRunning, now)
	applied := false

	wireErr, observed, _ := g.Check("%1", protocol.Guards{IfRuntime: "r1"}, pane, now, func() error { applied = true; return nil })
	if wireErr == nil || wireErr.Code != protocol.ERuntimeStale {
		t.Fatalf("expected E_RUNTIME_STALE, got %v", wireErr)
	}
	if applied {
		t.Fatal("apply should not run on a failed precondition")
	}
	if observed.RuntimeID != "r2" {
		t.Fatalf("observed runtime = %q, want r2", observed.RuntimeID)
	}
}

func TestCheckRejectsStateMismatch(t *testing.T) {
	g := New()
	now := time.Now()
	pane := observedPane("r1", protocol.ActivityIdle, now)

	wireErr, _, _ := g.Check("%1", protocol.Guards{IfState: protocol.ActivityRunning}, pane, now, func() error { return nil })
	if wireErr == nil || wireErr.Code != protocol.EStateStale {
		t.Fatalf("expected E_STATE_STALE, got %v", wireErr)
	}
}

func TestCheckRejectsUpdateStale(t *testing.T) {
	g := New()
	now := time.Now()
	pane := observedPane("r1", protocol.ActivityRunning, now.Add(-10*time.Second))

	wireErr, _, _ := g.Check("%1", protocol.Guards{IfUpdatedWithin: 2 * time.Second}, pane, now, func() error { return nil })
	if wireErr == nil || wireErr.Code != protocol.EUpdateStale {
		t.Fatalf("expected E_UPDATE_STALE, got %v", wireErr)
	}
}

func TestForceStaleBypassesPreconditionsButStillApplies(t *testing.T) {
	g := New()
	now := time.Now()
	pane := observedPane("r2", protocol.ActivityIdle, now.Add(-1*time.Hour))
	applied := false

	wireErr, observed, err := g.Check("%1", protocol.Guards{IfRuntime: "r1", ForceStale: true}, pane, now, func() error { applied = true; return nil })
	if wireErr != nil || err != nil {
		t.Fatalf("unexpected error: %v / %v", wireErr, err)
	}
	if !applied {
		t.Fatal("expected apply to run under force_stale")
	}
	if observed.RuntimeID != "r2" {
		t.Fatal("force_stale must still report observed values")
	}
}

func TestDistinctPanesDoNotShareALock(t *testing.T) {
	g := New()
	now := time.Now()
	l1 := g.lockFor("%1")
	l2 := g.lockFor("%2")
	if l1 == l2 {
		t.Fatal("expected distinct panes to get distinct mutexes")
	}
	_ = now
}
