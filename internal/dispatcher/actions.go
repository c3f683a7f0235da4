package dispatcher

import (
	"context"
	"time"

	"agtmuxd/internal/attention"
	"agtmuxd/internal/protocol"
	"agtmuxd/internal/shell"
)

// guardedMutate re-checks guards against the pane's currently observed
// state and runs apply under the Write Guard's per-pane lock (§4.7),
// packaging the result into an ActionResponse the way every mutating RPC
// in §6 replies.
func guardedMutate(svc *Services, target, paneID string, guards protocol.Guards, now time.Time, apply func() error) protocol.Response {
	observed, ok := svc.Observe(target, paneID)
	if !ok {
		return errorResponse(protocol.ENotFound, "unknown pane")
	}
	wireErr, obs, applyErr := svc.Guard.Check(paneID, guards, observed, now, apply)
	action := protocol.ActionResponse{Observed: obs}
	if wireErr != nil {
		action.ResultCode = "rejected"
		action.Error = wireErr
	} else if applyErr != nil {
		action.ResultCode = "failed"
		action.Error = protocol.NewError(protocol.ETransport, applyErr.Error())
	} else {
		action.ResultCode = "applied"
	}
	var resp protocol.Response
	resp.EncodeResult(action)
	return resp
}

type sendTextArgs struct {
	Target string          `msgpack:"target"`
	PaneID string          `msgpack:"pane_id"`
	Text   string          `msgpack:"text,omitempty"`
	Key    string          `msgpack:"key,omitempty"`
	Enter  bool            `msgpack:"enter"`
	Paste  bool            `msgpack:"paste"`
	Guards protocol.Guards `msgpack:"guards"`
}

func handleSendText(ctx context.Context, svc *Services, req protocol.Request) protocol.Response {
	var args sendTextArgs
	if err := req.DecodeArgs(&args); err != nil {
		return errorResponse(protocol.EInvalidArgs, err.Error())
	}
	if (args.Text == "") == (args.Key == "") {
		return errorResponse(protocol.EInvalidArgs, "exactly one of text/key must be set")
	}
	client := svc.Targets.Client(args.Target)
	if client == nil {
		return errorResponse(protocol.ENotFound, "target has no live control connection")
	}
	return guardedMutate(svc, args.Target, args.PaneID, args.Guards, time.Now(), func() error {
		text := args.Text
		literal := text != ""
		if !literal {
			text = args.Key
		}
		return client.SendKeys(ctx, args.PaneID, text, literal, args.Enter)
	})
}

type killArgs struct {
	Target string          `msgpack:"target"`
	PaneID string          `msgpack:"pane_id"`
	Mode   string          `msgpack:"mode"`
	Signal string          `msgpack:"signal,omitempty"`
	Guards protocol.Guards `msgpack:"guards"`
}

// handleKill implements §6's kill RPC for mode in {key, signal}. mode
// "key" sends Ctrl-C (the interrupt key sequence); mode "signal" is not
// meaningfully distinct over a tmux control connection (tmux itself owns
// the child process group), so it is mapped to the same interrupt
// send-keys; the requested signal name is accepted but not used.
func handleKill(ctx context.Context, svc *Services, req protocol.Request) protocol.Response {
	var args killArgs
	if err := req.DecodeArgs(&args); err != nil {
		return errorResponse(protocol.EInvalidArgs, err.Error())
	}
	if args.Mode != "key" && args.Mode != "signal" {
		return errorResponse(protocol.EInvalidArgs, "mode must be key or signal")
	}
	client := svc.Targets.Client(args.Target)
	if client == nil {
		return errorResponse(protocol.ENotFound, "target has no live control connection")
	}
	resp := guardedMutate(svc, args.Target, args.PaneID, args.Guards, time.Now(), func() error {
		return client.SendKeys(ctx, args.PaneID, "C-c", false, false)
	})
	return resp
}

type renameSessionArgs struct {
	Target    string `msgpack:"target"`
	SessionID string `msgpack:"session_id"`
	Name      string `msgpack:"name"`
}

func handleRenameSession(ctx context.Context, svc *Services, req protocol.Request) protocol.Response {
	var args renameSessionArgs
	if err := req.DecodeArgs(&args); err != nil {
		return errorResponse(protocol.EInvalidArgs, err.Error())
	}
	client := svc.Targets.Client(args.Target)
	if client == nil {
		return errorResponse(protocol.ENotFound, "target has no live control connection")
	}
	if err := client.RenameSession(ctx, args.SessionID, args.Name); err != nil {
		return errorResponse(protocol.ETransport, err.Error())
	}
	return protocol.Response{}
}

type renamePaneArgs struct {
	Target string `msgpack:"target"`
	PaneID string `msgpack:"pane_id"`
	Title  string `msgpack:"title"`
}

func handleRenamePane(ctx context.Context, svc *Services, req protocol.Request) protocol.Response {
	var args renamePaneArgs
	if err := req.DecodeArgs(&args); err != nil {
		return errorResponse(protocol.EInvalidArgs, err.Error())
	}
	client := svc.Targets.Client(args.Target)
	if client == nil {
		return errorResponse(protocol.ENotFound, "target has no live control connection")
	}
	if err := client.RenamePane(ctx, args.PaneID, args.Title); err != nil {
		return errorResponse(protocol.ETransport, err.Error())
	}
	return protocol.Response{}
}

type createPaneArgs struct {
	Target   string `msgpack:"target"`
	WindowID string `msgpack:"window_id"`
	ShellCmd string `msgpack:"shell_cmd,omitempty"`
}

func handleCreatePane(ctx context.Context, svc *Services, req protocol.Request) protocol.Response {
	var args createPaneArgs
	if err := req.DecodeArgs(&args); err != nil {
		return errorResponse(protocol.EInvalidArgs, err.Error())
	}
	client := svc.Targets.Client(args.Target)
	if client == nil {
		return errorResponse(protocol.ENotFound, "target has no live control connection")
	}
	shellCmd := args.ShellCmd
	if shellCmd == "" {
		shellCmd = shell.Default()
	}
	paneID, err := client.CreatePane(ctx, args.WindowID, shellCmd)
	if err != nil {
		return errorResponse(protocol.ETransport, err.Error())
	}
	var resp protocol.Response
	resp.EncodeResult(struct {
		PaneID string `msgpack:"pane_id"`
	}{paneID})
	return resp
}

type killPaneArgs struct {
	Target string          `msgpack:"target"`
	PaneID string          `msgpack:"pane_id"`
	Guards protocol.Guards `msgpack:"guards"`
}

func handleKillPane(ctx context.Context, svc *Services, req protocol.Request) protocol.Response {
	var args killPaneArgs
	if err := req.DecodeArgs(&args); err != nil {
		return errorResponse(protocol.EInvalidArgs, err.Error())
	}
	client := svc.Targets.Client(args.Target)
	if client == nil {
		return errorResponse(protocol.ENotFound, "target has no live control connection")
	}
	resp := guardedMutate(svc, args.Target, args.PaneID, args.Guards, time.Now(), func() error {
		return client.KillPane(ctx, args.PaneID)
	})
	// No explicit feedrouter detach here: Detach takes a viewer session_id,
	// not a pane_id, and any feedrouter sessions attached to this pane will
	// observe the killed pane through their own tap's natural EOF/error
	// path rather than through this handler reaching into router internals.
	return resp
}

type killSessionArgs struct {
	Target    string `msgpack:"target"`
	SessionID string `msgpack:"session_id"`
}

func handleKillSession(ctx context.Context, svc *Services, req protocol.Request) protocol.Response {
	var args killSessionArgs
	if err := req.DecodeArgs(&args); err != nil {
		return errorResponse(protocol.EInvalidArgs, err.Error())
	}
	client := svc.Targets.Client(args.Target)
	if client == nil {
		return errorResponse(protocol.ENotFound, "target has no live control connection")
	}
	if err := client.KillSession(ctx, args.SessionID); err != nil {
		return errorResponse(protocol.ETransport, err.Error())
	}
	return protocol.Response{}
}

type pinSessionArgs struct {
	Target    string `msgpack:"target"`
	SessionID string `msgpack:"session_id"`
}

func handlePinSession(ctx context.Context, svc *Services, req protocol.Request, pin bool) protocol.Response {
	var args pinSessionArgs
	if err := req.DecodeArgs(&args); err != nil {
		return errorResponse(protocol.EInvalidArgs, err.Error())
	}
	key := args.Target + "\x00" + args.SessionID
	var err error
	if pin {
		err = svc.Store.Pin(ctx, key)
	} else {
		err = svc.Store.Unpin(ctx, key)
	}
	if err != nil {
		return errorResponse(protocol.ETransport, err.Error())
	}
	return protocol.Response{}
}

type attentionListArgs struct {
	Stream string `msgpack:"stream"`
}

func handleAttentionList(svc *Services, req protocol.Request) protocol.Response {
	var args attentionListArgs
	if err := req.DecodeArgs(&args); err != nil {
		return errorResponse(protocol.EInvalidArgs, err.Error())
	}
	stream := attention.StreamReview
	if args.Stream == string(attention.StreamInformational) {
		stream = attention.StreamInformational
	}
	items := svc.Attention.List(stream)
	var resp protocol.Response
	resp.EncodeResult(items)
	return resp
}

type attentionAckArgs struct {
	ID string `msgpack:"id"`
}

func handleAttentionAcknowledge(svc *Services, req protocol.Request) protocol.Response {
	var args attentionAckArgs
	if err := req.DecodeArgs(&args); err != nil {
		return errorResponse(protocol.EInvalidArgs, err.Error())
	}
	if !svc.Attention.Acknowledge(args.ID, time.Now()) {
		return errorResponse(protocol.ENotFound, "unknown attention item id")
	}
	return protocol.Response{}
}

type attentionAckAllArgs struct {
	Stream string `msgpack:"stream"`
}

func handleAttentionAcknowledgeAll(svc *Services, req protocol.Request) protocol.Response {
	var args attentionAckAllArgs
	if err := req.DecodeArgs(&args); err != nil {
		return errorResponse(protocol.EInvalidArgs, err.Error())
	}
	stream := attention.StreamReview
	if args.Stream == string(attention.StreamInformational) {
		stream = attention.StreamInformational
	}
	n := svc.Attention.AcknowledgeAll(stream, time.Now())
	var resp protocol.Response
	resp.EncodeResult(struct {
		Acknowledged int `msgpack:"acknowledged"`
	}{n})
	return resp
}
