package panetap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

// ptyProxyTap is the fallback capture mechanism advertised by the
// capability envelope as terminal_proxy_mode = "daemon-proxy-pty-poc"
// (§4.2, §6): instead of relying on tmux's own pipe-pane, the daemon
// forks `tmux attach -t <pane>` inside a PTY it owns directly and
// mirrors raw bytes. Grounded on the teacher's internal/terminal PTY
// spawning (creack/pty.StartWithSize), used there as the *only* capture
// path since the teacher's tmux is an in-process reimplementation; here
// it is the fallback tap, used for SSH targets and for local panes whose
// pipe-pane tap could not be set up.
type ptyProxyTap struct {
	cmd    *exec.Cmd
	ptmx   *os.File
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// OpenPTYProxyTap attaches to paneID through a real PTY and streams raw
// bytes to feed.
func OpenPTYProxyTap(ctx context.Context, tmuxArgvPrefix []string, paneID string, feed func([]byte)) (CaptureCloser, error) {
	argv := append(append([]string(nil), tmuxArgvPrefix...), "attach-session", "-r", "-t", paneID)
	cmd := exec.Command(argv[0], argv[1:]...)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("start pty proxy for %s: %w", paneID, err)
	}

	tapCtx, cancel := context.WithCancel(ctx)
	t := &ptyProxyTap{cmd: cmd, ptmx: ptmx, cancel: cancel}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		buf := make([]byte, 32*1024)
		for {
			n, err := ptmx.Read(buf)
			if n > 0 {
				feed(append([]byte(nil), buf[:n]...))
			}
			if err != nil {
				if tapCtx.Err() == nil && err != io.EOF {
					slog.Debug("panetap: pty proxy read error", "pane", paneID, "error", err)
				}
				return
			}
		}
	}()

	return t, nil
}

func (t *ptyProxyTap) Close() error {
	t.cancel()
	t.ptmx.Close()
	if t.cmd.Process != nil {
		t.cmd.Process.Kill()
	}
	t.wg.Wait()
	return t.cmd.Wait()
}

// Resize applies a new terminal size to the proxy PTY.
func (t *ptyProxyTap) Resize(cols, rows int) error {
	return pty.Setsize(t.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}
