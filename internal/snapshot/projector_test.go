package snapshot

import (
	"testing"

	"agtmuxd/internal/protocol"
)

func TestProjectSortsPinnedSessionsFirst(t *testing.T) {
	sessions := []SessionInput{
		{Summary: protocol.SessionSummary{SessionID: "s1", Health: protocol.HealthOK}},
		{Summary: protocol.SessionSummary{SessionID: "s2", Pinned: true, Health: protocol.HealthOK}},
	}
	snap := Project(nil, sessions, nil, nil, SortStable)
	if snap.Sessions[0].SessionID != "s2" {
		t.Fatalf("sessions[0] = %q, want pinned session s2 first", snap.Sessions[0].SessionID)
	}
}

func TestProjectOrdersByHealthThenName(t *testing.T) {
	sessions := []SessionInput{
		{Summary: protocol.SessionSummary{SessionID: "s1", Name: "zeta", Health: protocol.HealthDown}},
		{Summary: protocol.SessionSummary{SessionID: "s2", Name: "alpha", Health: protocol.HealthOK}},
		{Summary: protocol.SessionSummary{SessionID: "s3", Name: "beta", Health: protocol.HealthOK}},
	}
	snap := Project(nil, sessions, nil, nil, SortName)
	got := []string{snap.Sessions[0].SessionID, snap.Sessions[1].SessionID, snap.Sessions[2].SessionID}
	want := []string{"s2", "s3", "s1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestProjectSortsPanesByWindowThenPaneNumericSuffix(t *testing.T) {
	panes := []protocol.PaneItem{
		{PaneID: "%10", WindowID: "@2"},
		{PaneID: "%2", WindowID: "@1"},
		{PaneID: "%1", WindowID: "@1"},
	}
	snap := Project(nil, nil, nil, panes, SortStable)
	if snap.Panes[0].PaneID != "%1" || snap.Panes[1].PaneID != "%2" || snap.Panes[2].PaneID != "%10" {
		t.Fatalf("unexpected pane order: %+v", snap.Panes)
	}
}

func TestProjectIsDeterministicAndIdempotent(t *testing.T) {
	sessions := []SessionInput{
		{Summary: protocol.SessionSummary{SessionID: "s1", Name: "a", Health: protocol.HealthOK}},
		{Summary: protocol.SessionSummary{SessionID: "s2", Name: "b", Health: protocol.HealthOK}},
	}
	panes := []protocol.PaneItem{{PaneID: "%1", WindowID: "@1"}}

	a := Project(nil, sessions, nil, panes, SortName)
	b := Project(nil, sessions, nil, panes, SortName)
	if !Equal(a, b) {
		t.Fatal("expected identical inputs to produce an equal snapshot")
	}
}

func TestDiffDetectsUpsertsAndRemovals(t *testing.T) {
	prev := protocol.Snapshot{Panes: []protocol.PaneItem{
		{PaneID: "%1", ActivityState: protocol.ActivityIdle},
		{PaneID: "%2", ActivityState: protocol.ActivityRunning},
	}}
	next := protocol.Snapshot{Panes: []protocol.PaneItem{
		{PaneID: "%1", ActivityState: protocol.ActivityRunning},
	}}

	d := Diff(prev, next)
	if len(d.UpsertedPanes) != 1 || d.UpsertedPanes[0].PaneID != "%1" {
		t.Fatalf("upserts = %+v, want one upsert for %%1", d.UpsertedPanes)
	}
	if len(d.RemovedPanes) != 1 || d.RemovedPanes[0] != "%2" {
		t.Fatalf("removed = %+v, want [%%2]", d.RemovedPanes)
	}
}

func TestNumericSuffixHandlesMalformedID(t *testing.T) {
	if numericSuffix("") != -1 {
		t.Fatal("empty id should sort first via -1")
	}
	if numericSuffix("nodigits") != -1 {
		t.Fatal("id with no trailing digits should sort first via -1")
	}
	if numericSuffix("%42") != 42 {
		t.Fatalf("numericSuffix(%%42) = %d, want 42", numericSuffix("%42"))
	}
}
