package dispatcher

import (
	"context"
	"time"

	"agtmuxd/internal/attention"
	"agtmuxd/internal/feedrouter"
	"agtmuxd/internal/protocol"
	"agtmuxd/internal/store"
	"agtmuxd/internal/target"
	"agtmuxd/internal/writeguard"
)

// SnapshotSource assembles the current Snapshot on demand; the daemon
// wires this to the live target/resolver/store state (§4.8).
type SnapshotSource func() protocol.Snapshot

// Services bundles every component the dispatcher's RPC surface routes
// into. Exported as a flat struct per the design notes' guidance to treat
// the registry/target-manager singletons as explicit injected
// dependencies rather than ambient globals (§9).
type Services struct {
	Targets     *target.Manager
	Router      *feedrouter.Router
	Attention   *attention.Queue
	Guard       *writeguard.Guard
	Observe     feedrouter.ObserveFunc
	Store       *store.Store
	Snapshot    SnapshotSource
	OpenTap     feedrouter.OpenTapFunc
	CapturePane CapturePaneFunc
}

// CapturePaneFunc captures a pane's visible scrollback, grounding
// view_output and terminal_read's one-shot read path (§6) in the tmux
// adapter's capture-pane wrapper rather than the streaming tap.
type CapturePaneFunc func(ctx context.Context, target, paneID string, lines int) ([]byte, error)

// BuildHandler returns the Handler RPC method dispatch table, grounded on
// the spec's §6 method list.
func BuildHandler(svc *Services) Handler {
	return func(ctx context.Context, req protocol.Request) protocol.Response {
		switch req.Method {
		case "fetch_snapshot":
			return handleFetchSnapshot(svc)
		case "fetch_capabilities":
			return handleFetchCapabilities()
		case "add_target":
			return handleAddTarget(svc, req)
		case "remove_target":
			return handleRemoveTarget(svc, req)
		case "connect_target":
			return handleConnectTarget(ctx, svc, req)
		case "terminal_attach":
			return handleTerminalAttach(ctx, svc, req)
		case "terminal_write":
			return handleTerminalWrite(ctx, svc, req)
		case "terminal_stream":
			return handleTerminalStream(ctx, svc, req)
		case "terminal_read":
			return handleTerminalRead(ctx, svc, req)
		case "view_output":
			return handleViewOutput(ctx, svc, req)
		case "terminal_resize":
			return handleTerminalResize(ctx, svc, req)
		case "terminal_detach":
			return handleTerminalDetach(svc, req)
		case "send_text":
			return handleSendText(ctx, svc, req)
		case "kill":
			return handleKill(ctx, svc, req)
		case "rename_session":
			return handleRenameSession(ctx, svc, req)
		case "rename_pane":
			return handleRenamePane(ctx, svc, req)
		case "create_pane":
			return handleCreatePane(ctx, svc, req)
		case "kill_pane":
			return handleKillPane(ctx, svc, req)
		case "kill_session":
			return handleKillSession(ctx, svc, req)
		case "pin_session":
			return handlePinSession(ctx, svc, req, true)
		case "unpin_session":
			return handlePinSession(ctx, svc, req, false)
		case "attention_list":
			return handleAttentionList(svc, req)
		case "attention_acknowledge":
			return handleAttentionAcknowledge(svc, req)
		case "attention_acknowledge_all":
			return handleAttentionAcknowledgeAll(svc, req)
		default:
			resp := protocol.Response{Error: protocol.NewError(protocol.EUnsupported, "unknown method: "+req.Method)}
			return resp
		}
	}
}

func errorResponse(code protocol.Code, msg string) protocol.Response {
	return protocol.Response{Error: protocol.NewError(code, msg)}
}

func handleFetchSnapshot(svc *Services) protocol.Response {
	var resp protocol.Response
	snap := svc.Snapshot()
	if err := resp.EncodeResult(snap); err != nil {
		return errorResponse(protocol.ETransport, err.Error())
	}
	return resp
}

func handleFetchCapabilities() protocol.Response {
	env := protocol.CapabilityEnvelope{
		EmbeddedTerminal:      true,
		TerminalAttach:        true,
		TerminalWrite:         true,
		TerminalStream:        true,
		TerminalRead:          true,
		TerminalProxyMode:     "daemon-proxy-pty-poc",
		TerminalFrameProtocol: "terminal-stream-v1",
	}
	var resp protocol.Response
	resp.EncodeResult(env)
	return resp
}

type addTargetArgs struct {
	Name          string `msgpack:"name"`
	Kind          string `msgpack:"kind"`
	ConnectionRef string `msgpack:"connection_ref,omitempty"`
	IsDefault     bool   `msgpack:"is_default"`
}

func handleAddTarget(svc *Services, req protocol.Request) protocol.Response {
	var args addTargetArgs
	if err := req.DecodeArgs(&args); err != nil {
		return errorResponse(protocol.EInvalidArgs, err.Error())
	}
	tgt, err := svc.Targets.AddTarget(args.Name, protocol.TargetKind(args.Kind), args.ConnectionRef, args.IsDefault)
	if err != nil {
		return mapTargetError(err)
	}
	var resp protocol.Response
	resp.EncodeResult(tgt)
	return resp
}

type removeTargetArgs struct {
	Name string `msgpack:"name"`
}

func handleRemoveTarget(svc *Services, req protocol.Request) protocol.Response {
	var args removeTargetArgs
	if err := req.DecodeArgs(&args); err != nil {
		return errorResponse(protocol.EInvalidArgs, err.Error())
	}
	if err := svc.Targets.RemoveTarget(args.Name, nil); err != nil {
		return mapTargetError(err)
	}
	return protocol.Response{}
}

func handleConnectTarget(ctx context.Context, svc *Services, req protocol.Request) protocol.Response {
	var args removeTargetArgs
	if err := req.DecodeArgs(&args); err != nil {
		return errorResponse(protocol.EInvalidArgs, err.Error())
	}
	tgt, err := svc.Targets.Connect(ctx, args.Name)
	if err != nil {
		return errorResponse(protocol.ETransport, err.Error())
	}
	var resp protocol.Response
	resp.EncodeResult(tgt)
	return resp
}

func mapTargetError(err error) protocol.Response {
	switch err {
	case target.ErrDuplicate:
		return errorResponse(protocol.EDuplicate, err.Error())
	case target.ErrHasReferences:
		return errorResponse(protocol.EHasReferences, err.Error())
	case target.ErrNotFound:
		return errorResponse(protocol.ENotFound, err.Error())
	case target.ErrInvalidArgs:
		return errorResponse(protocol.EInvalidArgs, err.Error())
	default:
		return errorResponse(protocol.ETransport, err.Error())
	}
}

type terminalAttachArgs struct {
	Target string          `msgpack:"target"`
	PaneID string          `msgpack:"pane_id"`
	Guards protocol.Guards `msgpack:"guards"`
}

func handleTerminalAttach(ctx context.Context, svc *Services, req protocol.Request) protocol.Response {
	var args terminalAttachArgs
	if err := req.DecodeArgs(&args); err != nil {
		return errorResponse(protocol.EInvalidArgs, err.Error())
	}
	sessionID, wireErr, err := svc.Router.Attach(ctx, args.Target, args.PaneID, args.Guards, time.Now(), svc.OpenTap)
	if wireErr != nil {
		return protocol.Response{Error: wireErr}
	}
	if err != nil {
		return errorResponse(protocol.ETransport, err.Error())
	}
	var resp protocol.Response
	resp.EncodeResult(struct {
		SessionID string `msgpack:"session_id"`
	}{sessionID})
	return resp
}

type terminalWriteArgs struct {
	SessionID string          `msgpack:"session_id"`
	Text      string          `msgpack:"text,omitempty"`
	Key       string          `msgpack:"key,omitempty"`
	Bytes     []byte          `msgpack:"bytes,omitempty"`
	Enter     bool            `msgpack:"enter"`
	Paste     bool            `msgpack:"paste"`
	Guards    protocol.Guards `msgpack:"guards"`
}

func handleTerminalWrite(ctx context.Context, svc *Services, req protocol.Request) protocol.Response {
	var args terminalWriteArgs
	if err := req.DecodeArgs(&args); err != nil {
		return errorResponse(protocol.EInvalidArgs, err.Error())
	}
	wireErr, err := svc.Router.Write(ctx, args.SessionID, args.Guards, time.Now(), args.Text, args.Key, args.Bytes, args.Enter, args.Paste)
	if wireErr != nil {
		return protocol.Response{Error: wireErr}
	}
	if err != nil {
		return errorResponse(protocol.ETransport, err.Error())
	}
	return protocol.Response{}
}

type terminalStreamArgs struct {
	SessionID string `msgpack:"session_id"`
	Cursor    uint64 `msgpack:"cursor,omitempty"`
	Lines     int    `msgpack:"lines,omitempty"`
}

func handleTerminalStream(ctx context.Context, svc *Services, req protocol.Request) protocol.Response {
	var args terminalStreamArgs
	if err := req.DecodeArgs(&args); err != nil {
		return errorResponse(protocol.EInvalidArgs, err.Error())
	}
	frame, wireErr := svc.Router.Stream(ctx, args.SessionID, args.Cursor)
	if wireErr != nil {
		return protocol.Response{Error: wireErr}
	}
	var resp protocol.Response
	resp.EncodeResult(frame)
	return resp
}

type terminalReadArgs struct {
	Target string `msgpack:"target"`
	PaneID string `msgpack:"pane_id"`
	Cursor uint64 `msgpack:"cursor,omitempty"`
	Lines  int    `msgpack:"lines,omitempty"`
}

// handleTerminalRead serves §6's terminal_read: a one-shot capture of a
// pane's current scrollback, independent of any terminal_attach session.
// Unlike terminal_stream it never blocks waiting for new bytes.
func handleTerminalRead(ctx context.Context, svc *Services, req protocol.Request) protocol.Response {
	var args terminalReadArgs
	if err := req.DecodeArgs(&args); err != nil {
		return errorResponse(protocol.EInvalidArgs, err.Error())
	}
	if svc.CapturePane == nil {
		return errorResponse(protocol.EUnsupported, "terminal_read is not available")
	}
	content, err := svc.CapturePane(ctx, args.Target, args.PaneID, args.Lines)
	if err != nil {
		return errorResponse(protocol.ETransport, err.Error())
	}
	var resp protocol.Response
	resp.EncodeResult(protocol.Frame{Kind: protocol.FrameOutput, Content: content})
	return resp
}

type viewOutputArgs struct {
	Target     string `msgpack:"target"`
	PaneID     string `msgpack:"pane_id"`
	RequestRef string `msgpack:"request_ref"`
	Lines      int    `msgpack:"lines,omitempty"`
}

// handleViewOutput serves §6's view_output: a guard-free, read-only peek
// at a pane's recent output for callers that only need the text (no
// streaming session), returned as an ActionResponse for parity with the
// other request_ref-bearing action methods.
func handleViewOutput(ctx context.Context, svc *Services, req protocol.Request) protocol.Response {
	var args viewOutputArgs
	if err := req.DecodeArgs(&args); err != nil {
		return errorResponse(protocol.EInvalidArgs, err.Error())
	}
	if svc.CapturePane == nil {
		return errorResponse(protocol.EUnsupported, "view_output is not available")
	}
	content, err := svc.CapturePane(ctx, args.Target, args.PaneID, args.Lines)
	if err != nil {
		var resp protocol.Response
		resp.EncodeResult(struct {
			protocol.ActionResponse
			Output string `msgpack:"output,omitempty"`
		}{
			ActionResponse: protocol.ActionResponse{
				ResultCode: "failed",
				ActionID:   args.RequestRef,
				Error:      protocol.NewError(protocol.ETransport, err.Error()),
			},
		})
		return resp
	}
	observed, ok := svc.Observe(args.Target, args.PaneID)
	var observedPtr *protocol.PaneItem
	if ok {
		observedPtr = &observed
	}
	var resp protocol.Response
	resp.EncodeResult(struct {
		protocol.ActionResponse
		Output string `msgpack:"output,omitempty"`
	}{
		ActionResponse: protocol.ActionResponse{ResultCode: "applied", ActionID: args.RequestRef, Observed: observedPtr},
		Output:         string(content),
	})
	return resp
}

type terminalResizeArgs struct {
	SessionID string `msgpack:"session_id"`
	Cols      int    `msgpack:"cols"`
	Rows      int    `msgpack:"rows"`
}

func handleTerminalResize(ctx context.Context, svc *Services, req protocol.Request) protocol.Response {
	var args terminalResizeArgs
	if err := req.DecodeArgs(&args); err != nil {
		return errorResponse(protocol.EInvalidArgs, err.Error())
	}
	if err := svc.Router.Resize(ctx, args.SessionID, args.Cols, args.Rows); err != nil {
		return errorResponse(protocol.ENotFound, err.Error())
	}
	return protocol.Response{}
}

func handleTerminalDetach(svc *Services, req protocol.Request) protocol.Response {
	var args terminalStreamArgs
	if err := req.DecodeArgs(&args); err != nil {
		return errorResponse(protocol.EInvalidArgs, err.Error())
	}
	svc.Router.Detach(args.SessionID)
	return protocol.Response{}
}
