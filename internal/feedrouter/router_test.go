package feedrouter

import (
	"context"
	"testing"
	"time"

	"agtmuxd/internal/panetap"
	"agtmuxd/internal/protocol"
	"agtmuxd/internal/writeguard"
)

type fakeTapCloser struct{}

func (fakeTapCloser) Close() error { return nil }

func newTestRouter(pane protocol.PaneItem) (*Router, *panetap.Manager) {
	taps := panetap.NewManager()
	observe := func(target, paneID string) (protocol.PaneItem, bool) {
		if paneID != pane.PaneID {
			return protocol.PaneItem{}, false
		}
		return pane, true
	}
	writeCalls := 0
	write := func(ctx context.Context, target, paneID, text, key string, raw []byte, enter, paste bool) error {
		writeCalls++
		return nil
	}
	resize := func(ctx context.Context, target, paneID string, cols, rows int) error { return nil }
	r := New(taps, writeguard.New(), write, resize, observe, Config{ResizeDebounce: 10 * time.Millisecond})
	return r, taps
}

func openNoop(ctx context.Context, target, paneID string, feed func([]byte)) (panetap.CaptureCloser, error) {
	return fakeTapCloser{}, nil
}

func TestAttachReturnsSessionIDAndAttachedFrame(t *testing.T) {
	pane := protocol.PaneItem{PaneID: "%1", RuntimeID: "r1"}
	r, _ := newTestRouter(pane)

	sid, wireErr, err := r.Attach(context.Background(), "local", "%1", protocol.Guards{}, time.Now(), openNoop)
	if wireErr != nil || err != nil {
		t.Fatalf("attach failed: %v / %v", wireErr, err)
	}
	if sid == "" {
		t.Fatal("expected non-empty session id")
	}

	frame, streamErr := r.Stream(context.Background(), sid, 0)
	if streamErr != nil {
		t.Fatalf("stream: %v", streamErr)
	}
	if frame.Kind != protocol.FrameAttached {
		t.Fatalf("frame kind = %q, want attached", frame.Kind)
	}
}

func TestAttachRejectsRuntimeMismatch(t *testing.T) {
	pane := protocol.PaneItem{PaneID: "%1", RuntimeID: "r2"}
	r, _ := newTestRouter(pane)

	_, wireErr, _ := r.Attach(context.Background(), "local", "%1", protocol.Guards{IfRuntime: "r1"}, time.Now(), openNoop)
	if wireErr == nil || wireErr.Code != protocol.ERuntimeStale {
		t.Fatalf("expected E_RUNTIME_STALE, got %v", wireErr)
	}
}

func TestWriteRejectsMultipleFieldsSet(t *testing.T) {
	pane := protocol.PaneItem{PaneID: "%1", RuntimeID: "r1"}
	r, _ := newTestRouter(pane)
	sid, _, _ := r.Attach(context.Background(), "local", "%1", protocol.Guards{}, time.Now(), openNoop)

	wireErr, _ := r.Write(context.Background(), sid, protocol.Guards{}, time.Now(), "hello", "Enter", nil, false, false)
	if wireErr == nil || wireErr.Code != protocol.EInvalidArgs {
		t.Fatalf("expected E_INVALID_ARGS, got %v", wireErr)
	}
}

func TestWriteDeliversAfterGuardPasses(t *testing.T) {
	pane := protocol.PaneItem{PaneID: "%1", RuntimeID: "r1"}
	r, _ := newTestRouter(pane)
	sid, _, _ := r.Attach(context.Background(), "local", "%1", protocol.Guards{}, time.Now(), openNoop)

	wireErr, err := r.Write(context.Background(), sid, protocol.Guards{IfRuntime: "r1"}, time.Now(), "hello", "", nil, true, false)
	if wireErr != nil || err != nil {
		t.Fatalf("write failed: %v / %v", wireErr, err)
	}
}

func TestDetachIsIdempotent(t *testing.T) {
	pane := protocol.PaneItem{PaneID: "%1", RuntimeID: "r1"}
	r, _ := newTestRouter(pane)
	sid, _, _ := r.Attach(context.Background(), "local", "%1", protocol.Guards{}, time.Now(), openNoop)

	r.Detach(sid)
	r.Detach(sid) // must not panic

	if _, err := r.Stream(context.Background(), sid, 0); err == nil {
		t.Fatal("expected stream on a detached session to fail")
	}
}

func TestStreamOnUnknownSessionReturnsRefNotFound(t *testing.T) {
	pane := protocol.PaneItem{PaneID: "%1", RuntimeID: "r1"}
	r, _ := newTestRouter(pane)
	_, err := r.Stream(context.Background(), "no-such-session", 0)
	if err == nil || err.Code != protocol.ERefNotFound {
		t.Fatalf("expected E_REF_NOT_FOUND, got %v", err)
	}
}
