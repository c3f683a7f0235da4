// Package snapshot implements the Snapshot Projector (§4.8): a pure,
// deterministic assembly of {targets, sessions, windows, panes} from
// currently resolved state, plus equality-based diffing used to back off
// the client poll loop when nothing changed.
//
// Grounded on the teacher's now-superseded app_snapshot_delta.go, whose
// field-by-field equality check and Upserts/Removed delta shape this
// package generalizes from a single-desktop-session cache to the
// multi-target, multi-session AGTMUX model.
package snapshot

import (
	"sort"
	"strconv"

	"agtmuxd/internal/protocol"
)

// SessionSortMode is the user-selected tertiary sort key (§4.8).
type SessionSortMode string

const (
	SortStable         SessionSortMode = "stable"
	SortRecentActivity SessionSortMode = "recent_activity"
	SortName           SessionSortMode = "name"
)

// SessionInput is everything the projector needs about one session
// beyond what's already in protocol.SessionSummary, to compute its sort
// position.
type SessionInput struct {
	Summary         protocol.SessionSummary
	IsDefaultTarget bool
	LastActivityAt  int64 // unix nanos; higher sorts first under recent_activity
	StableRank      int64 // from store.StableRank, tie-break of last resort
}

// Healthrank orders Health for the "health (ok < degraded < down)" key;
// unknown sorts last, after down, since it carries the least information.
var healthRank = map[protocol.Health]int{
	protocol.HealthOK:       0,
	protocol.HealthDegraded: 1,
	protocol.HealthDown:     2,
	protocol.HealthUnknown:  3,
}

// Project assembles and sorts a Snapshot. targets is pre-sorted by the
// caller (Target Manager owns target ordering); sessions, windows, and
// panes are sorted here per §4.8.
func Project(targets []protocol.Target, sessions []SessionInput, windows []protocol.WindowSummary, panes []protocol.PaneItem, sortMode SessionSortMode) protocol.Snapshot {
	sessions = append([]SessionInput(nil), sessions...)
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessionLess(sessions[i], sessions[j], sortMode)
	})

	windows = append([]protocol.WindowSummary(nil), windows...)
	windowOrder := sessionOrderIndex(sessions)
	sort.SliceStable(windows, func(i, j int) bool {
		oi, oj := windowOrder[windows[i].SessionID], windowOrder[windows[j].SessionID]
		if oi != oj {
			return oi < oj
		}
		return windows[i].Index < windows[j].Index
	})

	panes = append([]protocol.PaneItem(nil), panes...)
	sort.SliceStable(panes, func(i, j int) bool {
		wi, wj := numericSuffix(panes[i].WindowID), numericSuffix(panes[j].WindowID)
		if wi != wj {
			return wi < wj
		}
		return numericSuffix(panes[i].PaneID) < numericSuffix(panes[j].PaneID)
	})

	summaries := make([]protocol.SessionSummary, len(sessions))
	for i, s := range sessions {
		summaries[i] = s.Summary
	}

	return protocol.Snapshot{
		Version:  1,
		Targets:  append([]protocol.Target(nil), targets...),
		Sessions: summaries,
		Windows:  windows,
		Panes:    panes,
	}
}

func sessionOrderIndex(sessions []SessionInput) map[string]int {
	m := make(map[string]int, len(sessions))
	for i, s := range sessions {
		m[s.Summary.SessionID] = i
	}
	return m
}

func sessionLess(a, b SessionInput, mode SessionSortMode) bool {
	if a.Summary.Pinned != b.Summary.Pinned {
		return a.Summary.Pinned
	}
	if a.IsDefaultTarget != b.IsDefaultTarget {
		return a.IsDefaultTarget
	}
	ha, hb := healthRank[a.Summary.Health], healthRank[b.Summary.Health]
	if ha != hb {
		return ha < hb
	}
	switch mode {
	case SortRecentActivity:
		if a.LastActivityAt != b.LastActivityAt {
			return a.LastActivityAt > b.LastActivityAt
		}
	case SortName:
		if a.Summary.Name != b.Summary.Name {
			return a.Summary.Name < b.Summary.Name
		}
	}
	return a.StableRank < b.StableRank
}

// numericSuffix extracts the trailing base-10 digits of a tmux-style id
// like "@3" or "%12", returning -1 if none are found so malformed ids
// sort first rather than panicking on a missing suffix.
func numericSuffix(id string) int {
	i := len(id)
	for i > 0 && id[i-1] >= '0' && id[i-1] <= '9' {
		i--
	}
	if i == len(id) {
		return -1
	}
	n, err := strconv.Atoi(id[i:])
	if err != nil {
		return -1
	}
	return n
}

// Equal reports whether two snapshots are field-for-field identical.
// The daemon's poll loop runs at a fixed interval and does not call it.
func Equal(a, b protocol.Snapshot) bool {
	if a.Version != b.Version || len(a.Targets) != len(b.Targets) || len(a.Sessions) != len(b.Sessions) ||
		len(a.Windows) != len(b.Windows) || len(a.Panes) != len(b.Panes) {
		return false
	}
	for i := range a.Targets {
		if a.Targets[i] != b.Targets[i] {
			return false
		}
	}
	for i := range a.Sessions {
		if a.Sessions[i] != b.Sessions[i] {
			return false
		}
	}
	for i := range a.Windows {
		if a.Windows[i] != b.Windows[i] {
			return false
		}
	}
	for i := range a.Panes {
		if !paneEqual(a.Panes[i], b.Panes[i]) {
			return false
		}
	}
	return true
}

func paneEqual(a, b protocol.PaneItem) bool {
	return a.PaneID == b.PaneID && a.SessionID == b.SessionID && a.WindowID == b.WindowID &&
		a.Target == b.Target && a.Presence == b.Presence && a.ActivityState == b.ActivityState &&
		a.AttentionState == b.AttentionState && a.EvidenceMode == b.EvidenceMode &&
		a.RuntimeID == b.RuntimeID && a.AgentType == b.AgentType && a.ReasonCode == b.ReasonCode &&
		a.LastEventType == b.LastEventType && a.LastEventAt.Equal(b.LastEventAt) &&
		a.SessionLabel == b.SessionLabel && a.SessionLabelSource == b.SessionLabelSource &&
		a.SessionLastActiveAt.Equal(b.SessionLastActiveAt) && a.SessionTimeConfidence == b.SessionTimeConfidence &&
		a.CurrentCmd == b.CurrentCmd && a.CurrentPath == b.CurrentPath && a.UpdatedAt.Equal(b.UpdatedAt)
}

// Delta is the upsert/remove view between two snapshots' panes, used to
// push incremental UI updates instead of a full re-render.
type Delta struct {
	UpsertedPanes []protocol.PaneItem
	RemovedPanes  []string
}

// Diff computes prev -> next's pane-level Delta.
func Diff(prev, next protocol.Snapshot) Delta {
	prevByID := make(map[string]protocol.PaneItem, len(prev.Panes))
	for _, p := range prev.Panes {
		prevByID[p.PaneID] = p
	}
	nextByID := make(map[string]bool, len(next.Panes))

	var d Delta
	for _, p := range next.Panes {
		nextByID[p.PaneID] = true
		if old, ok := prevByID[p.PaneID]; !ok || !paneEqual(old, p) {
			d.UpsertedPanes = append(d.UpsertedPanes, p)
		}
	}
	for _, p := range prev.Panes {
		if !nextByID[p.PaneID] {
			d.RemovedPanes = append(d.RemovedPanes, p.PaneID)
		}
	}
	return d
}
