// Package resolver implements the State Resolver (§4.5): per pane, it
// fuses deterministic adapter events and tap-derived heuristics into the
// authoritative (activity_state, attention_state, evidence_mode,
// runtime_id, last_event_type, last_event_at, reason_code) tuple.
//
// Grounded on the teacher's state-machine style in internal/panestate
// (now superseded) and on adapterregistry's NormalizedEvent as the
// deterministic-tier input; heuristics are supplied by callers (from
// classified tap content) as a second, lower-precedence event stream of
// the same shape.
package resolver

import (
	"sync"
	"time"

	"agtmuxd/internal/adapterregistry"
	"agtmuxd/internal/protocol"
)

// Tier is the provenance rank an event was produced at (§4.5 step 1).
type Tier int

const (
	TierHeuristic Tier = iota
	TierDeterministic
)

// Event is one classified signal feeding the resolver, either from an
// adapter's Translate (deterministic) or a tap-derived heuristic.
type Event struct {
	Tier          Tier
	ActivityState protocol.ActivityState
	EventType     string
	RuntimeID     string
	AgentType     string
	ReceivedAt    time.Time
}

// statePrecedence implements §4.5 step 2's ranking; higher wins.
var statePrecedence = map[protocol.ActivityState]int{
	protocol.ActivityError:          5,
	protocol.ActivityWaitingApprove: 4,
	protocol.ActivityWaitingInput:   3,
	protocol.ActivityRunning:        2,
	protocol.ActivityIdle:           1,
	protocol.ActivityUnknown:        0,
}

func activityFromNormalized(ev adapterregistry.NormalizedEvent) protocol.ActivityState {
	switch ev.EventType {
	case adapterregistry.EventLifecycleRunning, adapterregistry.EventToolStart, adapterregistry.EventThreadActive:
		return protocol.ActivityRunning
	case adapterregistry.EventLifecycleIdle, adapterregistry.EventToolEnd, adapterregistry.EventThreadIdle:
		return protocol.ActivityIdle
	case adapterregistry.EventLifecycleWaitingInput:
		return protocol.ActivityWaitingInput
	case adapterregistry.EventLifecycleWaitingApproval:
		return protocol.ActivityWaitingApprove
	case adapterregistry.EventLifecycleError:
		return protocol.ActivityError
	case adapterregistry.EventLifecycleCompleted:
		return protocol.ActivityIdle
	default:
		return protocol.ActivityUnknown
	}
}

// NewDeterministicEvent adapts an adapter's NormalizedEvent into the
// resolver's internal Event shape at TierDeterministic.
func NewDeterministicEvent(ev adapterregistry.NormalizedEvent, receivedAt time.Time) Event {
	return Event{
		Tier:          TierDeterministic,
		ActivityState: activityFromNormalized(ev),
		EventType:     string(ev.EventType),
		RuntimeID:     ev.RuntimeIDHint,
		ReceivedAt:    receivedAt,
	}
}

// NewHeuristicEvent adapts an adapter's content-based NormalizedEvent
// (produced from recently captured tap bytes rather than a sidecar
// read) into the resolver's Event shape at TierHeuristic.
func NewHeuristicEvent(ev adapterregistry.NormalizedEvent, agentType string, receivedAt time.Time) Event {
	return Event{
		Tier:          TierHeuristic,
		ActivityState: activityFromNormalized(ev),
		EventType:     string(ev.EventType),
		RuntimeID:     ev.RuntimeIDHint,
		AgentType:     agentType,
		ReceivedAt:    receivedAt,
	}
}

// paneState is the resolver's authoritative per-pane record.
type paneState struct {
	mu sync.Mutex

	activity  protocol.ActivityState
	attention protocol.AttentionState
	evidence  protocol.EvidenceMode
	runtimeID string
	agentType string

	lastEventType string
	lastEventAt   time.Time
	reasonCode    string

	lastDetEventAt time.Time

	// idleCandidateSince tracks how long a running→idle transition's
	// idle evidence has held continuously, for IDLE_HYSTERESIS (§4.5 step 4).
	idleCandidateSince time.Time
}

// Tuning is the subset of config.Tuning the resolver consumes.
type Tuning struct {
	DetFreshWindow  time.Duration
	DownThreshold   time.Duration
	IdleHysteresis  time.Duration
}

// Resolver owns every pane's authoritative state.
type Resolver struct {
	tuning Tuning

	mu    sync.RWMutex
	panes map[string]*paneState
}

func New(tuning Tuning) *Resolver {
	return &Resolver{tuning: tuning, panes: make(map[string]*paneState)}
}

func (r *Resolver) paneFor(paneID string) *paneState {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.panes[paneID]
	if !ok {
		ps = &paneState{activity: protocol.ActivityUnknown, evidence: protocol.EvidenceNone}
		r.panes[paneID] = ps
	}
	return ps
}

// Remove drops a pane's state, used on pane removal (terminal transition).
func (r *Resolver) Remove(paneID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.panes, paneID)
}

// Resolved is the snapshot of a pane's authoritative tuple (§4.5).
type Resolved struct {
	ActivityState  protocol.ActivityState
	AttentionState protocol.AttentionState
	EvidenceMode   protocol.EvidenceMode
	RuntimeID      string
	AgentType      string
	LastEventType  string
	LastEventAt    time.Time
	ReasonCode     string
}

// Tick evaluates paneID's next authoritative state from the events
// observed since the previous tick, plus the current wall-clock time.
// detEvents and heuristics may both be empty, in which case only
// freshness decay and hysteresis are re-evaluated.
func (r *Resolver) Tick(paneID string, detEvents, heuristics []Event, now time.Time) Resolved {
	ps := r.paneFor(paneID)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	for _, ev := range detEvents {
		if ev.ReceivedAt.After(ps.lastDetEventAt) {
			ps.lastDetEventAt = ev.ReceivedAt
		}
	}

	// Step 1: tier selection.
	fresh := false
	for _, ev := range detEvents {
		if now.Sub(ev.ReceivedAt) <= r.tuning.DetFreshWindow {
			fresh = true
			break
		}
	}

	var winnerTier Tier
	var pool []Event
	switch {
	case fresh:
		winnerTier = TierDeterministic
		pool = detEvents
	case !ps.lastDetEventAt.IsZero() && now.Sub(ps.lastDetEventAt) < r.tuning.DownThreshold:
		// Decaying deterministic signal: still report heuristic tier but
		// prefer heuristics since the last det event is going stale.
		winnerTier = TierHeuristic
		pool = heuristics
	default:
		winnerTier = TierHeuristic
		pool = heuristics
	}

	// Step 2: state selection by precedence, ties broken by recency.
	next := pickWinner(pool)

	if next == nil {
		// No events this tick: carry prior state forward, only re-evaluate
		// freshness decay (step 5 note) and hysteresis below.
		r.applyFreshnessDecay(ps, now)
		return r.snapshot(ps)
	}

	candidateActivity := next.ActivityState

	// Step 4: hysteresis on running -> idle.
	if ps.activity == protocol.ActivityRunning && candidateActivity == protocol.ActivityIdle {
		if ps.idleCandidateSince.IsZero() {
			ps.idleCandidateSince = now
		}
		if now.Sub(ps.idleCandidateSince) < r.tuning.IdleHysteresis {
			// Not held long enough yet; stay running.
			r.applyFreshnessDecay(ps, now)
			return r.snapshot(ps)
		}
	} else {
		ps.idleCandidateSince = time.Time{}
	}

	ps.activity = candidateActivity
	ps.lastEventType = next.EventType
	ps.lastEventAt = next.ReceivedAt
	if next.RuntimeID != "" && (ps.runtimeID == "" || next.RuntimeID != ps.runtimeID) {
		// Step 5: runtime identity reissue.
		ps.runtimeID = next.RuntimeID
		ps.reasonCode = "runtime_reissued"
	} else {
		ps.reasonCode = ""
	}
	if next.AgentType != "" {
		ps.agentType = next.AgentType
	}

	if winnerTier == TierDeterministic {
		ps.evidence = protocol.EvidenceDeterministic
	} else {
		ps.evidence = protocol.EvidenceHeuristic
	}

	ps.attention = deriveAttention(ps.activity, ps.lastEventType)

	return r.snapshot(ps)
}

// applyFreshnessDecay implements the standalone freshness-decay note:
// with no new deterministic event for DownThreshold, evidence_mode
// downgrades to heuristic, but presence (tracked elsewhere) is untouched
// and activity_state is left as-is.
func (r *Resolver) applyFreshnessDecay(ps *paneState, now time.Time) {
	if ps.lastDetEventAt.IsZero() {
		return
	}
	if now.Sub(ps.lastDetEventAt) >= r.tuning.DownThreshold && ps.evidence == protocol.EvidenceDeterministic {
		ps.evidence = protocol.EvidenceHeuristic
	}
}

func (r *Resolver) snapshot(ps *paneState) Resolved {
	return Resolved{
		ActivityState:  ps.activity,
		AttentionState: ps.attention,
		EvidenceMode:   ps.evidence,
		RuntimeID:      ps.runtimeID,
		AgentType:      ps.agentType,
		LastEventType:  ps.lastEventType,
		LastEventAt:    ps.lastEventAt,
		ReasonCode:     ps.reasonCode,
	}
}

// pickWinner applies §4.5 step 2 within one tier's event pool.
func pickWinner(pool []Event) *Event {
	var best *Event
	for i := range pool {
		ev := &pool[i]
		if best == nil {
			best = ev
			continue
		}
		bp := statePrecedence[best.ActivityState]
		ep := statePrecedence[ev.ActivityState]
		if ep > bp || (ep == bp && ev.ReceivedAt.After(best.ReceivedAt)) {
			best = ev
		}
	}
	return best
}

// deriveAttention implements §4.5 step 3.
func deriveAttention(activity protocol.ActivityState, lastEventType string) protocol.AttentionState {
	switch activity {
	case protocol.ActivityWaitingInput:
		return protocol.AttentionActionInput
	case protocol.ActivityWaitingApprove:
		return protocol.AttentionActionApproval
	case protocol.ActivityError:
		return protocol.AttentionActionError
	}
	switch lastEventType {
	case string(adapterregistry.EventLifecycleCompleted):
		return protocol.AttentionInformational
	}
	return protocol.AttentionNone
}
