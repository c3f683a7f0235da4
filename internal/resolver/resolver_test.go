package resolver

import (
	"testing"
	"time"

	"agtmuxd/internal/protocol"
)

func tuning() Tuning {
	return Tuning{
		DetFreshWindow: 3 * time.Second,
		DownThreshold:  15 * time.Second,
		IdleHysteresis: 5 * time.Second,
	}
}

func TestInitialStateIsUnknown(t *testing.T) {
	r := New(tuning())
	res := r.Tick("%1", nil, nil, time.Now())
	if res.ActivityState != protocol.ActivityUnknown {
		t.Fatalf("activity = %q, want unknown", res.ActivityState)
	}
}

func TestDeterministicEventWinsOverHeuristic(t *testing.T) {
	r := New(tuning())
	now := time.Now()
	det := []Event{{Tier: TierDeterministic, ActivityState: protocol.ActivityRunning, ReceivedAt: now, RuntimeID: "r1"}}
	heur := []Event{{Tier: TierHeuristic, ActivityState: protocol.ActivityIdle, ReceivedAt: now}}

	res := r.Tick("%1", det, heur, now)
	if res.ActivityState != protocol.ActivityRunning {
		t.Fatalf("activity = %q, want running", res.ActivityState)
	}
	if res.EvidenceMode != protocol.EvidenceDeterministic {
		t.Fatalf("evidence = %q, want deterministic", res.EvidenceMode)
	}
	if res.RuntimeID != "r1" {
		t.Fatalf("runtime id = %q, want r1", res.RuntimeID)
	}
}

func TestErrorPrecedesWaitingWithinSameTier(t *testing.T) {
	r := New(tuning())
	now := time.Now()
	det := []Event{
		{ActivityState: protocol.ActivityWaitingApprove, ReceivedAt: now},
		{ActivityState: protocol.ActivityError, ReceivedAt: now},
	}
	res := r.Tick("%1", det, nil, now)
	if res.ActivityState != protocol.ActivityError {
		t.Fatalf("activity = %q, want error (precedence 5 beats waiting_approval 4)", res.ActivityState)
	}
}

func TestIdleHysteresisDelaysRunningToIdleTransition(t *testing.T) {
	r := New(tuning())
	t0 := time.Now()
	r.Tick("%1", []Event{{ActivityState: protocol.ActivityRunning, ReceivedAt: t0}}, nil, t0)

	t1 := t0.Add(1 * time.Second)
	res := r.Tick("%1", []Event{{ActivityState: protocol.ActivityIdle, ReceivedAt: t1}}, nil, t1)
	if res.ActivityState != protocol.ActivityRunning {
		t.Fatalf("activity = %q, want running (hysteresis window not yet elapsed)", res.ActivityState)
	}

	t2 := t0.Add(6 * time.Second)
	res = r.Tick("%1", []Event{{ActivityState: protocol.ActivityIdle, ReceivedAt: t2}}, nil, t2)
	if res.ActivityState != protocol.ActivityIdle {
		t.Fatalf("activity = %q, want idle after hysteresis window elapsed", res.ActivityState)
	}
}

func TestEvidenceDowngradesToHeuristicAfterDownThreshold(t *testing.T) {
	r := New(tuning())
	t0 := time.Now()
	r.Tick("%1", []Event{{ActivityState: protocol.ActivityRunning, ReceivedAt: t0}}, nil, t0)

	t1 := t0.Add(20 * time.Second)
	res := r.Tick("%1", nil, nil, t1)
	if res.EvidenceMode != protocol.EvidenceHeuristic {
		t.Fatalf("evidence = %q, want heuristic after down threshold with no new det events", res.EvidenceMode)
	}
	if res.ActivityState != protocol.ActivityRunning {
		t.Fatalf("activity = %q, want running to be preserved through decay", res.ActivityState)
	}
}

func TestAttentionDerivationForWaitingApproval(t *testing.T) {
	r := New(tuning())
	now := time.Now()
	res := r.Tick("%1", []Event{{ActivityState: protocol.ActivityWaitingApprove, ReceivedAt: now}}, nil, now)
	if res.AttentionState != protocol.AttentionActionApproval {
		t.Fatalf("attention = %q, want action_required_approval", res.AttentionState)
	}
}

func TestRuntimeReissueRecordsReasonCode(t *testing.T) {
	r := New(tuning())
	t0 := time.Now()
	r.Tick("%1", []Event{{ActivityState: protocol.ActivityRunning, ReceivedAt: t0, RuntimeID: "r1"}}, nil, t0)

	t1 := t0.Add(1 * time.Second)
	res := r.Tick("%1", []Event{{ActivityState: protocol.ActivityRunning, ReceivedAt: t1, RuntimeID: "r2"}}, nil, t1)
	if res.RuntimeID != "r2" {
		t.Fatalf("runtime id = %q, want r2", res.RuntimeID)
	}
	if res.ReasonCode != "runtime_reissued" {
		t.Fatalf("reason code = %q, want runtime_reissued", res.ReasonCode)
	}
}

func TestRemoveClearsPaneState(t *testing.T) {
	r := New(tuning())
	now := time.Now()
	r.Tick("%1", []Event{{ActivityState: protocol.ActivityRunning, ReceivedAt: now}}, nil, now)
	r.Remove("%1")

	res := r.Tick("%1", nil, nil, now)
	if res.ActivityState != protocol.ActivityUnknown {
		t.Fatalf("activity = %q, want unknown for a freshly re-created pane", res.ActivityState)
	}
}
