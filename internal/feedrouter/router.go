// Package feedrouter implements the Terminal Feed Router (§4.3): a
// per-viewer streaming endpoint layered over panetap's pane taps, adding
// viewer-session bookkeeping, Write Guard-gated attach/write, resize
// debouncing, and per-pane degradation after repeated failures.
//
// Grounded on the teacher's app_pane_feed.go worker-channel pattern
// (superseded) for the per-session outgoing queue, and on
// internal/panetap for the underlying capture stream.
package feedrouter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"agtmuxd/internal/panetap"
	"agtmuxd/internal/protocol"
	"agtmuxd/internal/writeguard"
)

// WriteFunc delivers bytes to a pane's input half (tmux send-keys, a raw
// write, etc.); supplied by the caller so feedrouter stays independent of
// the tmux adapter.
type WriteFunc func(ctx context.Context, target, paneID string, text string, key string, raw []byte, enter, paste bool) error

// ResizeFunc applies a resize to the underlying pane.
type ResizeFunc func(ctx context.Context, target, paneID string, cols, rows int) error

// ObserveFunc returns the pane's current resolved PaneItem, used both for
// Write Guard checks and to populate ActionResponse.Observed.
type ObserveFunc func(target, paneID string) (protocol.PaneItem, bool)

type session struct {
	mu sync.Mutex

	sessionID         string
	viewerID          string
	target            string
	paneID            string
	runtimeIDAtAttach string
	nextCursor        uint64
	cols, rows        int

	frames  <-chan panetap.Frame
	pending []panetap.Frame

	resizeTimer *time.Timer
}

type paneFailures struct {
	mu            sync.Mutex
	count         int
	windowStarted time.Time
	degradedUntil time.Time
}

// Router owns every active viewer session.
type Router struct {
	taps    *panetap.Manager
	guard   *writeguard.Guard
	write   WriteFunc
	resize  ResizeFunc
	observe ObserveFunc

	failureThreshold int
	degradeCooldown  time.Duration
	resizeDebounce   time.Duration

	mu       sync.RWMutex
	sessions map[string]*session
	failures map[string]*paneFailures // keyed by target+"\x00"+paneID
}

type Config struct {
	FailureThreshold int
	DegradeCooldown  time.Duration
	ResizeDebounce   time.Duration
}

func New(taps *panetap.Manager, guard *writeguard.Guard, write WriteFunc, resize ResizeFunc, observe ObserveFunc, cfg Config) *Router {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.DegradeCooldown <= 0 {
		cfg.DegradeCooldown = 8 * time.Second
	}
	if cfg.ResizeDebounce <= 0 {
		cfg.ResizeDebounce = 80 * time.Millisecond
	}
	return &Router{
		taps: taps, guard: guard, write: write, resize: resize, observe: observe,
		failureThreshold: cfg.FailureThreshold,
		degradeCooldown:  cfg.DegradeCooldown,
		resizeDebounce:   cfg.ResizeDebounce,
		sessions:         make(map[string]*session),
		failures:         make(map[string]*paneFailures),
	}
}

func failureKey(target, paneID string) string { return target + "\x00" + paneID }

func (r *Router) isDegraded(target, paneID string, now time.Time) bool {
	r.mu.Lock()
	f, ok := r.failures[failureKey(target, paneID)]
	r.mu.Unlock()
	if !ok {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return now.Before(f.degradedUntil)
}

func (r *Router) recordFailure(target, paneID string, now time.Time) {
	key := failureKey(target, paneID)
	r.mu.Lock()
	f, ok := r.failures[key]
	if !ok {
		f = &paneFailures{}
		r.failures[key] = f
	}
	r.mu.Unlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.windowStarted.IsZero() || now.Sub(f.windowStarted) > r.degradeCooldown {
		f.windowStarted = now
		f.count = 0
	}
	f.count++
	if f.count >= r.failureThreshold {
		f.degradedUntil = now.Add(r.degradeCooldown)
	}
}

func (r *Router) recordSuccess(target, paneID string) {
	r.mu.Lock()
	f, ok := r.failures[failureKey(target, paneID)]
	r.mu.Unlock()
	if !ok {
		return
	}
	f.mu.Lock()
	f.count = 0
	f.degradedUntil = time.Time{}
	f.mu.Unlock()
}

// OpenTapFunc opens the capture mechanism for target/paneID, selecting
// between capture strategies as the caller sees fit (§4.2).
type OpenTapFunc func(ctx context.Context, target, paneID string, feed func([]byte)) (panetap.CaptureCloser, error)

// Attach binds a new viewer session to target/paneID after a Write Guard
// check, opening the pane tap if needed (§4.3).
func (r *Router) Attach(ctx context.Context, target, paneID string, guards protocol.Guards, now time.Time, openTap OpenTapFunc) (string, *protocol.Error, error) {
	if r.isDegraded(target, paneID, now) {
		return "", protocol.NewError(protocol.EDegraded, "pane is degraded, refusing new proxy sessions"), nil
	}

	observed, ok := r.observe(target, paneID)
	if !ok {
		return "", protocol.NewError(protocol.ENotFound, "unknown pane"), nil
	}

	wireErr, _, applyErr := r.guard.Check(paneID, guards, observed, now, func() error { return nil })
	if wireErr != nil {
		return "", wireErr, nil
	}
	if applyErr != nil {
		return "", nil, applyErr
	}

	viewerID := uuid.NewString()
	frames, cursor, content, err := r.taps.Subscribe(ctx, paneID, viewerID, func(ctx context.Context, paneID string, feed func([]byte)) (panetap.CaptureCloser, error) {
		return openTap(ctx, target, paneID, feed)
	})
	if err != nil {
		r.recordFailure(target, paneID, now)
		return "", protocol.NewError(protocol.ETransport, err.Error()), nil
	}
	r.recordSuccess(target, paneID)

	sessionID := uuid.NewString()
	s := &session{
		sessionID:         sessionID,
		viewerID:          viewerID,
		target:            target,
		paneID:            paneID,
		runtimeIDAtAttach: observed.RuntimeID,
		nextCursor:        cursor,
		frames:            frames,
		pending:           []panetap.Frame{{Kind: "attached", Cursor: cursor, Content: content}},
	}
	r.mu.Lock()
	r.sessions[sessionID] = s
	r.mu.Unlock()
	return sessionID, nil, nil
}

// Stream returns the next frame for sessionID, implementing §4.3's
// stream() semantics. When cursor is non-zero and does not match the
// session's current position — the reconnect-after-disconnect case
// §4.3's "Cancellation" paragraph describes — the tap's retained ring
// is replayed directly from that cursor instead of reading the live
// channel, so no bytes are lost between the disconnect and the
// resuming call. A cursor that has fallen out of the ring's retained
// window comes back as a reset frame, telling the caller to discard
// and re-attach rather than silently missing bytes.
// Cancelling ctx is safe; the next call with the same cursor resumes.
func (r *Router) Stream(ctx context.Context, sessionID string, cursor uint64) (protocol.Frame, *protocol.Error) {
	r.mu.RLock()
	s, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return protocol.Frame{}, protocol.NewError(protocol.ERefNotFound, "unknown or expired session_id")
	}

	if cursor != 0 {
		s.mu.Lock()
		mismatch := cursor != s.nextCursor
		s.mu.Unlock()
		if mismatch {
			data, ok := r.taps.Since(s.paneID, cursor)
			if !ok {
				return protocol.Frame{Kind: protocol.FrameReset}, nil
			}
			next := cursor + uint64(len(data))
			s.mu.Lock()
			s.nextCursor = next
			s.mu.Unlock()
			return protocol.Frame{Kind: protocol.FrameDelta, Cursor: next, Content: data}, nil
		}
	}

	s.mu.Lock()
	if len(s.pending) > 0 {
		f := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()
		return toProtocolFrame(f), nil
	}
	s.mu.Unlock()

	select {
	case f, open := <-s.frames:
		if !open {
			return protocol.Frame{Kind: protocol.FrameError, Code: protocol.ERefNotFound, Message: "pane removed"}, nil
		}
		s.mu.Lock()
		s.nextCursor = f.Cursor
		s.mu.Unlock()
		return toProtocolFrame(f), nil
	case <-ctx.Done():
		return protocol.Frame{}, protocol.NewError(protocol.ETimeout, "stream deadline exceeded")
	}
}

func toProtocolFrame(f panetap.Frame) protocol.Frame {
	return protocol.Frame{Kind: protocol.FrameKind(f.Kind), Cursor: f.Cursor, Content: f.Content}
}

// Write delivers exactly one of text/key/bytes to sessionID's pane after
// a Write Guard re-check (§4.3).
func (r *Router) Write(ctx context.Context, sessionID string, guards protocol.Guards, now time.Time, text, key string, raw []byte, enter, paste bool) (*protocol.Error, error) {
	set := 0
	if text != "" {
		set++
	}
	if key != "" {
		set++
	}
	if raw != nil {
		set++
	}
	if set != 1 {
		return protocol.NewError(protocol.EInvalidArgs, "exactly one of text/key/bytes must be set"), nil
	}

	r.mu.RLock()
	s, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return protocol.NewError(protocol.ERefNotFound, "unknown or expired session_id"), nil
	}

	observed, ok := r.observe(s.target, s.paneID)
	if !ok {
		return protocol.NewError(protocol.ENotFound, "pane no longer exists"), nil
	}

	wireErr, _, applyErr := r.guard.Check(s.paneID, guards, observed, now, func() error {
		return r.write(ctx, s.target, s.paneID, text, key, raw, enter, paste)
	})
	if wireErr != nil {
		return wireErr, nil
	}
	if applyErr != nil {
		r.recordFailure(s.target, s.paneID, now)
		return nil, applyErr
	}
	r.recordSuccess(s.target, s.paneID)
	return nil, nil
}

// Resize debounces and coalesces resize requests for sessionID, applying
// only the final requested size once resizeDebounce elapses with no
// further request (§4.3).
func (r *Router) Resize(ctx context.Context, sessionID string, cols, rows int) error {
	r.mu.RLock()
	s, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("feedrouter: unknown session %s", sessionID)
	}

	s.mu.Lock()
	s.cols, s.rows = cols, rows
	if s.resizeTimer != nil {
		s.resizeTimer.Stop()
	}
	target, paneID := s.target, s.paneID
	s.resizeTimer = time.AfterFunc(r.resizeDebounce, func() {
		s.mu.Lock()
		c, rw := s.cols, s.rows
		s.mu.Unlock()
		r.taps.SetSize(paneID, c, rw)
		r.resize(context.Background(), target, paneID, c, rw)
	})
	s.mu.Unlock()
	return nil
}

// Detach tears down sessionID's viewer binding. Idempotent (§4.3).
func (r *Router) Detach(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	if s.resizeTimer != nil {
		s.resizeTimer.Stop()
	}
	s.mu.Unlock()
	r.taps.Unsubscribe(s.paneID, s.viewerID)
}

// RuntimeIDAtAttach returns the runtime_id observed when sessionID was
// attached, used by callers to detect a since-reissued runtime (§4.5).
func (r *Router) RuntimeIDAtAttach(sessionID string) (string, bool) {
	r.mu.RLock()
	s, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return "", false
	}
	return s.runtimeIDAtAttach, true
}
