// Package target implements the Target Manager (§4.1): the set of
// configured targets, one control connection per target, health
// tracking, and bounded reconnect backoff.
//
// Grounded on the teacher's workerutil.RunWithPanicRecovery for the
// per-target ingest task, and on tmuxadapter.Client/SSHArgv/LocalArgv for
// the control connection itself.
package target

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"agtmuxd/internal/protocol"
	"agtmuxd/internal/tmuxadapter"
	"agtmuxd/internal/workerutil"
)

// reconnectState tracks §4.1's per-target backoff.
type reconnectState struct {
	nextAttemptAt time.Time
	backoff       time.Duration
}

// entry is one configured target's live state.
type entry struct {
	mu sync.Mutex

	cfg    protocol.Target
	client *tmuxadapter.Client
	health protocol.Health

	reconnect reconnectState
	failures  int

	// eventBuf is the bounded, overflow-dropping event buffer named in
	// §4.1's failure semantics; it holds raw control-mode notifications
	// awaiting ingest-task processing.
	eventBuf        []tmuxadapter.Notification
	partialResults  bool
}

const maxEventBuffer = 2000

const (
	initialBackoff = 4 * time.Second
	maxBackoff     = 90 * time.Second
)

// Manager owns every configured target.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry
	log     *slog.Logger
}

func New(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{entries: make(map[string]*entry), log: logger}
}

var (
	// ErrDuplicate mirrors E_DUPLICATE for add_target name collisions.
	ErrDuplicate = fmt.Errorf("target: duplicate name")
	// ErrHasReferences mirrors E_HAS_REFERENCES for remove_target.
	ErrHasReferences = fmt.Errorf("target: has live pane references")
	// ErrNotFound mirrors E_NOT_FOUND.
	ErrNotFound = fmt.Errorf("target: not found")
	// ErrInvalidArgs mirrors E_INVALID_ARGS.
	ErrInvalidArgs = fmt.Errorf("target: invalid arguments")
)

// AddTarget validates and registers a new target (§4.1).
func (m *Manager) AddTarget(name string, kind protocol.TargetKind, connectionRef string, isDefault bool) (protocol.Target, error) {
	if kind == protocol.TargetSSH && connectionRef == "" {
		return protocol.Target{}, ErrInvalidArgs
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[name]; exists {
		return protocol.Target{}, ErrDuplicate
	}

	cfg := protocol.Target{Name: name, Kind: kind, ConnectionRef: connectionRef, IsDefault: isDefault, Health: protocol.HealthUnknown}
	if kind == protocol.TargetLocal {
		cfg.Health = protocol.HealthOK
	}
	m.entries[name] = &entry{cfg: cfg, health: cfg.Health}
	return cfg, nil
}

// HasReferencesFunc lets callers (the dispatcher, which knows about live
// panes) veto a removal; nil means "never veto," used by tests.
type HasReferencesFunc func(targetName string) bool

// RemoveTarget tears down name's control connection and drops it from
// the registry, unless hasReferences reports live panes still depend on
// it (§4.1).
func (m *Manager) RemoveTarget(name string, hasReferences HasReferencesFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	if !ok {
		return ErrNotFound
	}
	if hasReferences != nil && hasReferences(name) {
		return ErrHasReferences
	}

	e.mu.Lock()
	if e.client != nil {
		e.client.Close()
	}
	e.mu.Unlock()

	delete(m.entries, name)
	return nil
}

// Connect (re-)establishes name's control channel (§4.1). Local targets
// are a no-op marked ok; SSH targets dial through tmuxadapter using only
// the configured ~/.ssh/config alias.
func (m *Manager) Connect(ctx context.Context, name string) (protocol.Target, error) {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return protocol.Target{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cfg.Kind == protocol.TargetLocal {
		e.health = protocol.HealthOK
		e.cfg.Health = e.health
		return e.cfg, nil
	}

	if e.client != nil {
		e.client.Close()
		e.client = nil
	}

	argv := tmuxadapter.SSHArgv(e.cfg.ConnectionRef, "-u")
	client, err := tmuxadapter.Dial(ctx, argv)
	if err != nil {
		e.recordFailureLocked(err)
		return e.cfg, err
	}
	if err := client.Probe(ctx); err != nil {
		client.Close()
		e.recordFailureLocked(err)
		return e.cfg, err
	}

	e.client = client
	e.health = protocol.HealthOK
	e.cfg.Health = e.health
	e.failures = 0
	e.reconnect = reconnectState{backoff: initialBackoff}
	return e.cfg, nil
}

func (e *entry) recordFailureLocked(err error) {
	e.failures++
	e.health = protocol.HealthDown
	e.cfg.Health = e.health
	if e.reconnect.backoff == 0 {
		e.reconnect.backoff = initialBackoff
	} else {
		e.reconnect.backoff *= 2
		if e.reconnect.backoff > maxBackoff {
			e.reconnect.backoff = maxBackoff
		}
	}
	e.reconnect.nextAttemptAt = time.Now().Add(e.reconnect.backoff)
}

// Health reports name's current health (§4.1).
func (m *Manager) Health(name string) (protocol.Health, error) {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return protocol.HealthUnknown, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.health, nil
}

// Get returns name's current Target config, or ok=false.
func (m *Manager) Get(name string) (protocol.Target, bool) {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return protocol.Target{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg, true
}

// List returns every configured target, local targets first then SSH,
// each group ordered by name — Snapshot Projector treats this as pre-sorted.
func (m *Manager) List() []protocol.Target {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]protocol.Target, 0, len(m.entries))
	for _, e := range m.entries {
		e.mu.Lock()
		out = append(out, e.cfg)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if li, lj := out[i].Kind == protocol.TargetLocal, out[j].Kind == protocol.TargetLocal; li != lj {
			return li
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// PushEvent appends a raw control-mode notification to name's bounded
// event buffer, dropping the oldest entry and setting partial_results on
// overflow (§4.1 failure semantics).
func (m *Manager) PushEvent(name string, n tmuxadapter.Notification) {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.eventBuf = append(e.eventBuf, n)
	if len(e.eventBuf) > maxEventBuffer {
		e.eventBuf = e.eventBuf[len(e.eventBuf)-maxEventBuffer:]
		e.partialResults = true
		e.health = protocol.HealthDegraded
		e.cfg.Health = e.health
	}
}

// DrainEvents removes and returns name's buffered events.
func (m *Manager) DrainEvents(name string) ([]tmuxadapter.Notification, bool) {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.eventBuf
	e.eventBuf = nil
	partial := e.partialResults
	e.partialResults = false
	return out, partial
}

// ReconnectSweep opportunistically reconnects every SSH target whose
// backoff has elapsed. One target's failure never blocks another's
// attempt (§4.1); each reconnect runs under panic recovery so an
// unexpected tmuxadapter panic cannot take down the sweep task.
func (m *Manager) ReconnectSweep(ctx context.Context, now time.Time) {
	m.mu.RLock()
	names := make([]string, 0, len(m.entries))
	for name, e := range m.entries {
		e.mu.Lock()
		due := e.cfg.Kind == protocol.TargetSSH && e.health != protocol.HealthOK && !now.Before(e.reconnect.nextAttemptAt)
		e.mu.Unlock()
		if due {
			names = append(names, name)
		}
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, name := range names {
		name := name
		workerutil.RunWithPanicRecovery(ctx, "target-reconnect:"+name, &wg, func(ctx context.Context) {
			if _, err := m.Connect(ctx, name); err != nil {
				m.log.Debug("target reconnect failed", "target", name, "error", err)
			}
		}, workerutil.RecoveryOptions{MaxRetries: 1})
	}
	wg.Wait()
}

// Client returns name's live control client, or nil if not connected.
func (m *Manager) Client(name string) *tmuxadapter.Client {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client
}
