// Command agtmuxctl is a thin Unix-socket RPC client for agtmuxd,
// letting scripts and operators drive every method in the dispatcher's
// surface (§6) without a UI.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"agtmuxd/internal/config"
	"agtmuxd/internal/protocol"
)

// exitForCode maps a wire error Code to a process exit status, grouped
// the way §7 categorizes errors: stale-precondition rejections exit
// distinctly from not-found/invalid-args from transport failures, so a
// calling script can branch on $? without parsing JSON.
func exitForCode(code protocol.Code) int {
	switch code {
	case protocol.ENotFound, protocol.ERefNotFound:
		return 2
	case protocol.ERuntimeStale, protocol.EStateStale, protocol.EUpdateStale:
		return 3
	case protocol.EInvalidArgs:
		return 4
	case protocol.EDuplicate, protocol.EHasReferences:
		return 5
	case protocol.EDegraded, protocol.ECapacity, protocol.ETimeout:
		return 6
	default:
		return 1
	}
}

func defaultSocketPath() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); dir != "" {
		return filepath.Join(dir, "agtmux", "agtmuxd.sock")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "agtmux", "agtmuxd.sock")
	}
	return filepath.Join(os.TempDir(), "agtmux", "agtmuxd.sock")
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("agtmuxctl", flag.ContinueOnError)
	socketPath := fs.String("socket", "", "override the daemon's Unix socket path")
	argsJSON := fs.String("args", "{}", "method arguments as a JSON object")
	timeout := fs.Duration("timeout", 10*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: agtmuxctl [-socket path] [-args '{...}'] <method>")
		return 1
	}
	method := fs.Arg(0)

	path := *socketPath
	if path == "" {
		if cfgPath, err := config.DefaultPath(); err == nil {
			if cfg, err := config.Load(cfgPath); err == nil && cfg.SocketPath != "" {
				path = cfg.SocketPath
			}
		}
	}
	if path == "" {
		path = defaultSocketPath()
	}

	var argsMap map[string]any
	if err := json.Unmarshal([]byte(*argsJSON), &argsMap); err != nil {
		fmt.Fprintf(os.Stderr, "agtmuxctl: invalid -args JSON: %v\n", err)
		return 1
	}

	resp, err := call(path, method, argsMap, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agtmuxctl: %v\n", err)
		return 1
	}
	if resp.Error != nil {
		fmt.Fprintf(os.Stderr, "agtmuxctl: %s: %s\n", resp.Error.Code, resp.Error.Message)
		return exitForCode(resp.Error.Code)
	}

	if len(resp.Result) > 0 {
		var pretty any
		if err := resp.DecodeResult(&pretty); err != nil {
			fmt.Fprintf(os.Stderr, "agtmuxctl: decode result: %v\n", err)
			return 1
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(pretty); err != nil {
			fmt.Fprintf(os.Stderr, "agtmuxctl: encode result: %v\n", err)
			return 1
		}
	}
	return 0
}

// call opens a fresh connection, sends one request with a freshly minted
// request_ref, and reads one reply. agtmuxctl never needs the dispatcher's
// idempotency cache itself (each invocation is a distinct operator action),
// but setting request_ref regardless matches how every RPC client connects.
func call(socketPath, method string, argsMap map[string]any, timeout time.Duration) (protocol.Response, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	conn.SetDeadline(deadline)

	req := protocol.Request{Method: method, RequestRef: uuid.NewString()}
	if len(argsMap) > 0 {
		if err := req.EncodeArgs(argsMap); err != nil {
			return protocol.Response{}, fmt.Errorf("encode args: %w", err)
		}
	}
	if err := protocol.WriteFrame(conn, req); err != nil {
		return protocol.Response{}, fmt.Errorf("send request: %w", err)
	}

	var resp protocol.Response
	if err := protocol.ReadFrame(conn, &resp); err != nil {
		return protocol.Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}
