// Package adapterregistry implements the Adapter Registry (§4.4): a
// process-local, map-backed registry of pure agent-type classifiers and
// event translators. Grounded on the teacher pack's backend registry
// (sns45-tickettok/backend.go — RegisterBackend/GetBackend/AllBackends),
// generalized from "spawn and manage one CLI backend" to "classify an
// externally-managed pane and translate its raw signals."
package adapterregistry

import (
	"sync"
)

// EventType enumerates the NormalizedEvent kinds an adapter can emit.
type EventType string

const (
	EventLifecycleRunning         EventType = "lifecycle.running"
	EventLifecycleIdle            EventType = "lifecycle.idle"
	EventLifecycleWaitingInput    EventType = "lifecycle.waiting_input"
	EventLifecycleWaitingApproval EventType = "lifecycle.waiting_approval"
	EventLifecycleError           EventType = "lifecycle.error"
	EventLifecycleCompleted       EventType = "lifecycle.completed"
	EventThreadActive             EventType = "thread.active"
	EventThreadIdle                EventType = "thread.idle"
	EventToolStart                EventType = "tool_start"
	EventToolEnd                   EventType = "tool_end"
)

// NormalizedEvent is the common shape every adapter translates its
// agent-specific signal into (§4.4).
type NormalizedEvent struct {
	EventType     EventType
	ThreadID      string
	CWD           string
	RuntimeIDHint string
}

// RawEvent is the adapter-specific signal translate() consumes: either a
// sidecar status read or a content-heuristic match, bundled with the
// context an adapter needs to fill in a NormalizedEvent.
type RawEvent struct {
	Source        string // "sidecar" or "heuristic"
	State         string // adapter-specific state label, e.g. "RUNNING", "WAITING"
	CWD           string
	RuntimeIDHint string
}

// Classification is classify()'s result (§4.4).
type Classification struct {
	AgentType     string
	Confidence    float64
	RuntimeIDHint string
}

// PaneInfo is the subset of pane identity classify() needs: the running
// command and its argv, available from tmux's #{pane_current_command}
// and a best-effort argv read.
type PaneInfo struct {
	CurrentCommand string
	Argv           []string
	CWD            string
}

// Adapter is the contract every agent-type plugin implements. Adapters
// are pure: Classify and Translate never perform I/O themselves (§4.4);
// any sidecar file read happens in the caller, which hands the adapter
// only the RawEvent it already fetched.
type Adapter interface {
	AgentType() string

	// Classify scores how likely pane is running this adapter's agent,
	// from its command/argv and recent captured bytes.
	Classify(pane PaneInfo, recentTapContent string) Classification

	// Translate converts one raw signal (sidecar read or regex match)
	// into a NormalizedEvent.
	Translate(raw RawEvent) NormalizedEvent

	// SidecarPath returns the status-sidecar file path for runtimeID, or
	// "" if this adapter has no sidecar convention.
	SidecarPath(runtimeID string) string
}

var (
	mu       sync.RWMutex
	adapters = map[string]Adapter{}
	order    []string
)

// Register adds adapter to the registry under its AgentType. Re-registering
// the same agent type replaces the previous adapter without disturbing
// registration order.
func Register(adapter Adapter) {
	mu.Lock()
	defer mu.Unlock()
	id := adapter.AgentType()
	if _, exists := adapters[id]; !exists {
		order = append(order, id)
	}
	adapters[id] = adapter
}

// Get returns the adapter registered for agentType, or nil.
func Get(agentType string) Adapter {
	mu.RLock()
	defer mu.RUnlock()
	return adapters[agentType]
}

// All returns every registered adapter in registration order.
func All() []Adapter {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Adapter, 0, len(order))
	for _, id := range order {
		out = append(out, adapters[id])
	}
	return out
}

// Classify runs every registered adapter against pane and returns the
// highest-confidence classification. Ties favor earlier registration
// order. Returns ok=false if no adapter reports positive confidence.
func Classify(pane PaneInfo, recentTapContent string) (Classification, bool) {
	mu.RLock()
	candidates := make([]Adapter, 0, len(order))
	for _, id := range order {
		candidates = append(candidates, adapters[id])
	}
	mu.RUnlock()

	var best Classification
	found := false
	for _, a := range candidates {
		c := a.Classify(pane, recentTapContent)
		if c.Confidence <= 0 {
			continue
		}
		if !found || c.Confidence > best.Confidence {
			best = c
			found = true
		}
	}
	return best, found
}
