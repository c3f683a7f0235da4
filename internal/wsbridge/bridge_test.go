package wsbridge

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"agtmuxd/internal/feedrouter"
	"agtmuxd/internal/panetap"
	"agtmuxd/internal/protocol"
	"agtmuxd/internal/writeguard"
)

func newTestRouterWithSession(t *testing.T) (*feedrouter.Router, string) {
	t.Helper()
	taps := panetap.NewManager()
	pane := protocol.PaneItem{PaneID: "%1", RuntimeID: "r1"}
	observe := func(target, paneID string) (protocol.PaneItem, bool) {
		if paneID != pane.PaneID {
			return protocol.PaneItem{}, false
		}
		return pane, true
	}
	write := func(ctx context.Context, target, paneID, text, key string, raw []byte, enter, paste bool) error { return nil }
	resize := func(ctx context.Context, target, paneID string, cols, rows int) error { return nil }
	r := feedrouter.New(taps, writeguard.New(), write, resize, observe, feedrouter.Config{})

	open := func(ctx context.Context, paneID string, feed func([]byte)) (panetap.CaptureCloser, error) {
		return fakeCloser{}, nil
	}
	sid, wireErr, err := r.Attach(context.Background(), "local", "%1", protocol.Guards{}, time.Now(), open)
	if wireErr != nil || err != nil {
		t.Fatalf("attach: %v / %v", wireErr, err)
	}
	return r, sid
}

type fakeCloser struct{}

func (fakeCloser) Close() error { return nil }

func TestBridgeRelaysAttachedFrameOverWebSocket(t *testing.T) {
	router, sid := newTestRouterWithSession(t)
	b := New(router, Options{Addr: "127.0.0.1:0"}, nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer b.Stop()

	wsURL := b.URL()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := subscribeMsg{Action: actionSubscribe, SessionIDs: []string{sid}}
	payload, _ := json.Marshal(sub)
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if msgType != websocket.BinaryMessage {
		t.Fatalf("msgType = %d, want binary", msgType)
	}
	var got wireFrame
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if got.SessionID != sid || got.Kind != protocol.FrameAttached {
		t.Fatalf("got frame %+v", got)
	}
}

func TestBridgeRejectsUnknownAction(t *testing.T) {
	router, sid := newTestRouterWithSession(t)
	b := New(router, Options{Addr: "127.0.0.1:0"}, nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer b.Stop()

	conn, _, err := websocket.DefaultDialer.Dial(b.URL(), http.Header{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	payload := []byte(`{"action":"bogus","sessionIds":["x"]}`)
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	// The connection must stay open; send a valid message afterward to prove it.
	if !strings.Contains(b.URL(), "127.0.0.1") {
		t.Fatal("unexpected bridge URL")
	}
	valid, _ := json.Marshal(subscribeMsg{Action: actionSubscribe, SessionIDs: []string{sid}})
	if err := conn.WriteMessage(websocket.TextMessage, valid); err != nil {
		t.Fatalf("write subscribe after unknown action: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read after unknown action: %v", err)
	}
}
