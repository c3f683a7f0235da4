// Package wsbridge implements the loopback WebSocket re-publisher named in
// §4.3: a thin, 127.0.0.1-only endpoint that mirrors Terminal Feed Router
// viewer sessions as a socket-per-session stream, for frontends that
// prefer that shape over multiplexed Unix-socket RPC frames. It is never
// a second source of truth — every frame it emits comes from the same
// feedrouter.Router.Stream call the dispatcher's terminal_stream RPC
// uses.
//
// Grounded on the teacher's internal/wsserver Hub: write-deadline
// discipline, ping/pong keepalive, and write-failure-closes-connection
// policy are carried over near verbatim, generalized from the teacher's
// single fixed client / single implicit pane set to many concurrent
// clients each subscribed to an explicit set of session IDs.
package wsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"agtmuxd/internal/feedrouter"
	"agtmuxd/internal/protocol"
)

const (
	writeDeadline      = 5 * time.Second
	readDeadline       = 90 * time.Second
	pingInterval       = 30 * time.Second
	maxReadMessageSize = 32 * 1024
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true }, // bound to 127.0.0.1 only
	ReadBufferSize:  1024,
	WriteBufferSize: 32 * 1024,
}

// Options configures the Bridge's listen address.
type Options struct {
	// Addr is the listen address; "127.0.0.1:0" picks an OS-assigned port.
	Addr string
}

// Bridge re-publishes feedrouter sessions over WebSocket.
type Bridge struct {
	router *feedrouter.Router
	log    *slog.Logger
	opts   Options

	listener net.Listener
	server   *http.Server
	url      string

	closeOnce sync.Once
}

func New(router *feedrouter.Router, opts Options, logger *slog.Logger) *Bridge {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{router: router, opts: opts, log: logger}
}

// Start binds the listener and begins serving WebSocket upgrades. ctx is
// used only as the server's BaseContext; call Stop to shut down.
func (b *Bridge) Start(ctx context.Context) error {
	if b.server != nil {
		return fmt.Errorf("wsbridge: already started")
	}
	ln, err := net.Listen("tcp", b.opts.Addr)
	if err != nil {
		return fmt.Errorf("wsbridge: listen: %w", err)
	}
	b.listener = ln
	port := ln.Addr().(*net.TCPAddr).Port
	b.url = fmt.Sprintf("ws://127.0.0.1:%d/ws", port)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.handleWS)
	b.server = &http.Server{
		Handler:     mux,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if serveErr := b.server.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			b.log.Error("wsbridge: server error", "error", serveErr)
		}
	}()
	b.log.Info("wsbridge: started", "url", b.url)
	return nil
}

func (b *Bridge) Stop() error {
	var stopErr error
	b.closeOnce.Do(func() {
		if b.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := b.server.Shutdown(shutdownCtx); err != nil {
				stopErr = fmt.Errorf("wsbridge: shutdown: %w", err)
			}
		}
		b.log.Info("wsbridge: stopped")
	})
	return stopErr
}

// URL returns the bridge's ws:// URL, empty until Start succeeds.
func (b *Bridge) URL() string { return b.url }

// subscribeMsg is the client's JSON control message for subscribing or
// unsubscribing from session IDs.
type subscribeMsg struct {
	Action     string   `json:"action"`
	SessionIDs []string `json:"sessionIds"`
}

const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
)

// clientConn tracks one upgraded connection's active per-session relay
// goroutines, so unsubscribe (or disconnect) can cancel them cleanly.
type clientConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu       sync.Mutex
	sessions map[string]context.CancelFunc
}

func (b *Bridge) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("wsbridge: upgrade failed", "error", err)
		return
	}

	ws.SetReadLimit(maxReadMessageSize)
	if err := ws.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		ws.Close()
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readDeadline))
	})

	c := &clientConn{ws: ws, sessions: make(map[string]context.CancelFunc)}

	pingDone := make(chan struct{})
	go b.pingLoop(c, pingDone)

	defer func() {
		if rec := recover(); rec != nil {
			b.log.Error("wsbridge: handleWS recovered", "panic", rec, "stack", string(debug.Stack()))
		}
		close(pingDone)
		c.mu.Lock()
		for _, cancel := range c.sessions {
			cancel()
		}
		c.mu.Unlock()
		ws.Close()
	}()

	for {
		msgType, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var sub subscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			b.log.Debug("wsbridge: invalid JSON from client", "error", err)
			continue
		}
		b.handleSubscription(c, sub)
	}
}

func (b *Bridge) handleSubscription(c *clientConn, msg subscribeMsg) {
	switch msg.Action {
	case actionSubscribe:
		for _, sid := range msg.SessionIDs {
			if sid == "" {
				continue
			}
			c.mu.Lock()
			if _, exists := c.sessions[sid]; exists {
				c.mu.Unlock()
				continue
			}
			ctx, cancel := context.WithCancel(context.Background())
			c.sessions[sid] = cancel
			c.mu.Unlock()
			go b.relay(ctx, c, sid)
		}
	case actionUnsubscribe:
		for _, sid := range msg.SessionIDs {
			c.mu.Lock()
			if cancel, ok := c.sessions[sid]; ok {
				cancel()
				delete(c.sessions, sid)
			}
			c.mu.Unlock()
		}
	default:
		b.log.Debug("wsbridge: unknown action", "action", msg.Action)
	}
}

// relay pulls frames for sessionID from the shared router and forwards
// them as binary WebSocket messages until ctx is cancelled or a write
// fails, per the teacher's write-failure-closes-connection policy
// (generalized here to close only this session's relay, not the whole
// connection, since one socket now serves many sessions).
func (b *Bridge) relay(ctx context.Context, c *clientConn, sessionID string) {
	for {
		frame, wireErr := b.router.Stream(ctx, sessionID, 0)
		if ctx.Err() != nil {
			return
		}
		if wireErr != nil {
			b.writeError(c, sessionID, wireErr)
			return
		}
		if err := b.writeFrame(c, sessionID, frame); err != nil {
			b.log.Debug("wsbridge: write failed, stopping relay", "session_id", sessionID, "error", err)
			return
		}
	}
}

type wireFrame struct {
	SessionID string             `json:"sessionId"`
	Kind      protocol.FrameKind `json:"kind"`
	Cursor    uint64             `json:"cursor"`
	Content   []byte             `json:"content,omitempty"`
}

func (b *Bridge) writeFrame(c *clientConn, sessionID string, frame protocol.Frame) error {
	payload, err := json.Marshal(wireFrame{SessionID: sessionID, Kind: frame.Kind, Cursor: frame.Cursor, Content: frame.Content})
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		return err
	}
	err = c.ws.WriteMessage(websocket.BinaryMessage, payload)
	c.ws.SetWriteDeadline(time.Time{})
	return err
}

type errorMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

func (b *Bridge) writeError(c *clientConn, sessionID string, wireErr *protocol.Error) {
	payload, err := json.Marshal(errorMsg{Type: "error", SessionID: sessionID, Message: wireErr.Message})
	if err != nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		return
	}
	c.ws.WriteMessage(websocket.TextMessage, payload)
	c.ws.SetWriteDeadline(time.Time{})
}

func (b *Bridge) pingLoop(c *clientConn, done <-chan struct{}) {
	defer func() {
		if rec := recover(); rec != nil {
			b.log.Error("wsbridge: pingLoop recovered", "panic", rec, "stack", string(debug.Stack()))
		}
	}()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				c.writeMu.Unlock()
				return
			}
			err := c.ws.WriteMessage(websocket.PingMessage, nil)
			c.ws.SetWriteDeadline(time.Time{})
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
