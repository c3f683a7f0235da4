// Package panetap implements the Pane Tap Manager (§4.2): exactly one
// capture stream per subscribed pane, fanned out to every subscriber
// whose next-cursor has not yet seen a given chunk. Grounded on the
// teacher's internal/panestate manager (replay ring + two-phase
// RLock/Lock locking) and on app_pane_feed.go's pooled-buffer worker
// channel, generalized from a single in-process ConPTY source to pane
// taps that may be fed by either pipe-pane capture or a PTY proxy.
package panetap

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// unsubscribeGrace absorbs rapid re-subscriptions before actually tearing
// a tap down (§4.2 step 3).
const unsubscribeGrace = 2 * time.Second

// CaptureCloser stops a tap's underlying capture (pipe-pane disable, or
// PTY proxy process kill).
type CaptureCloser interface {
	Close() error
}

type tapState struct {
	mu       sync.RWMutex
	paneID   string
	ring     *replayRing
	cols     int
	rows     int
	lastCaptureAt time.Time
	scrollbackLinesSeen int

	viewers      map[string]chan Frame
	closer       CaptureCloser
	grace        *time.Timer
}

// Frame mirrors protocol.Frame's shape without importing protocol, so
// panetap stays independent of the wire layer; the dispatcher adapts
// between the two.
type Frame struct {
	Kind    string
	Cursor  uint64
	Content []byte
}

// Manager owns every active tap, keyed by pane_id.
type Manager struct {
	mu   sync.RWMutex
	taps map[string]*tapState
}

func NewManager() *Manager {
	return &Manager{taps: make(map[string]*tapState)}
}

// Subscribe registers viewerID against paneID, opening a tap via openFn
// if this is the first subscriber. It returns a channel of Frames for
// this viewer and the initial `attached` frame's cursor/content.
func (m *Manager) Subscribe(ctx context.Context, paneID, viewerID string, openFn func(ctx context.Context, paneID string, feed func([]byte)) (CaptureCloser, error)) (<-chan Frame, uint64, []byte, error) {
	m.mu.Lock()
	ts, existed := m.taps[paneID]
	if !existed {
		ts = &tapState{paneID: paneID, ring: newReplayRing(defaultMaxBufferedLines), viewers: make(map[string]chan Frame)}
		m.taps[paneID] = ts
	}
	m.mu.Unlock()

	ts.mu.Lock()
	if ts.grace != nil {
		ts.grace.Stop()
		ts.grace = nil
	}
	if !existed {
		closer, err := openFn(ctx, paneID, func(b []byte) { m.Feed(paneID, b) })
		if err != nil {
			ts.mu.Unlock()
			m.mu.Lock()
			delete(m.taps, paneID)
			m.mu.Unlock()
			return nil, 0, nil, fmt.Errorf("open tap for %s: %w", paneID, err)
		}
		ts.closer = closer
	}
	ch := make(chan Frame, 64)
	ts.viewers[viewerID] = ch
	content, cursor := ts.ring.Snapshot()
	ts.mu.Unlock()

	return ch, cursor, content, nil
}

// Unsubscribe removes viewerID from paneID's tap. When the last
// subscriber leaves, the tap is closed after unsubscribeGrace to absorb
// rapid re-subscriptions.
func (m *Manager) Unsubscribe(paneID, viewerID string) {
	m.mu.RLock()
	ts, ok := m.taps[paneID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	ts.mu.Lock()
	if ch, ok := ts.viewers[viewerID]; ok {
		close(ch)
		delete(ts.viewers, viewerID)
	}
	remaining := len(ts.viewers)
	if remaining == 0 {
		ts.grace = time.AfterFunc(unsubscribeGrace, func() { m.closeIfStillIdle(paneID) })
	}
	ts.mu.Unlock()
}

func (m *Manager) closeIfStillIdle(paneID string) {
	m.mu.Lock()
	ts, ok := m.taps[paneID]
	if !ok {
		m.mu.Unlock()
		return
	}
	ts.mu.Lock()
	idle := len(ts.viewers) == 0
	if idle {
		delete(m.taps, paneID)
	}
	closer := ts.closer
	ts.mu.Unlock()
	m.mu.Unlock()

	if idle && closer != nil {
		closer.Close()
	}
}

// Feed appends a captured chunk to paneID's buffer and fans it out as a
// delta frame to every subscriber.
func (m *Manager) Feed(paneID string, data []byte) {
	m.mu.RLock()
	ts, ok := m.taps[paneID]
	m.mu.RUnlock()
	if !ok || len(data) == 0 {
		return
	}

	ts.mu.Lock()
	cursor := ts.ring.Append(data)
	ts.lastCaptureAt = time.Now()
	frame := Frame{Kind: "delta", Cursor: cursor, Content: data}
	viewers := make([]chan Frame, 0, len(ts.viewers))
	for _, ch := range ts.viewers {
		viewers = append(viewers, ch)
	}
	ts.mu.Unlock()

	for _, ch := range viewers {
		select {
		case ch <- frame:
		default:
			drainToReset(ch, frame.Cursor)
		}
	}
}

// drainToReset handles a viewer channel that is full (§5): rather than
// silently dropping this frame and leaving the viewer's queue full of
// content it will eventually fall further behind on, it empties the
// channel and leaves a single reset frame in its place, so the
// viewer's next read resynchronizes instead of missing bytes with no
// signal (§8, "the next frame after overflow has type reset").
func drainToReset(ch chan Frame, cursor uint64) {
	for {
		select {
		case <-ch:
		default:
			select {
			case ch <- Frame{Kind: "reset", Cursor: cursor}:
			default:
			}
			return
		}
	}
}

// Reset clears paneID's ring and sends a reset frame at the current
// cursor to every viewer of the pane, skipping viewers whose queue is full.
func (m *Manager) Reset(paneID string) {
	m.mu.RLock()
	ts, ok := m.taps[paneID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	ts.mu.Lock()
	ts.ring.Reset()
	frame := Frame{Kind: "reset", Cursor: ts.ring.nextCursor}
	viewers := make([]chan Frame, 0, len(ts.viewers))
	for _, ch := range ts.viewers {
		viewers = append(viewers, ch)
	}
	ts.mu.Unlock()
	for _, ch := range viewers {
		select {
		case ch <- frame:
		default:
		}
	}
}

// Since returns bytes since fromCursor for paneID, or ok=false if the
// cursor has fallen out of the retained window (caller must resync).
func (m *Manager) Since(paneID string, fromCursor uint64) (data []byte, ok bool) {
	m.mu.RLock()
	ts, exists := m.taps[paneID]
	m.mu.RUnlock()
	if !exists {
		return nil, false
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.ring.Since(fromCursor)
}

// Recent returns paneID's currently retained tap content, or nil if no
// tap is open for it. Used to give the Adapter Registry's content-based
// classification real bytes to scan instead of an empty string.
func (m *Manager) Recent(paneID string) []byte {
	m.mu.RLock()
	ts, ok := m.taps[paneID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	content, _ := ts.ring.Snapshot()
	return content
}

// SetSize records the pane's current cols/rows, used by resize().
func (m *Manager) SetSize(paneID string, cols, rows int) {
	m.mu.RLock()
	ts, ok := m.taps[paneID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	ts.mu.Lock()
	ts.cols, ts.rows = cols, rows
	ts.mu.Unlock()
}
