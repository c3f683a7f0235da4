package panetap

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// PaneCommander is the subset of tmuxadapter.Client a tap needs to enable
// and disable pipe-pane capture, kept as an interface so tests can supply
// a fake without spinning up a real tmux control connection.
type PaneCommander interface {
	EnablePipePane(ctx context.Context, paneID, path string) error
	DisablePipePane(ctx context.Context, paneID string) error
}

// fifoTap is the primary capture mechanism named in §4.2: tmux's own
// `pipe-pane -O` appends raw pane bytes to a named pipe, which a
// background reader feeds into the tap's ring buffer. Grounded on the
// pack's own EnablePipePaneAppend/DisablePipePane pattern
// (mpecarina-tmux-ssh-manager/pkg/manager/tmuxwrap.go).
type fifoTap struct {
	path   string
	file   *os.File
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// OpenFIFOTap creates a named pipe under dir, enables pipe-pane on
// paneID via cmd, and starts a reader goroutine that calls feed for
// every chunk read. The returned CaptureCloser disables pipe-pane and
// removes the FIFO.
func OpenFIFOTap(ctx context.Context, cmd PaneCommander, dir, paneID string, feed func([]byte)) (CaptureCloser, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create tap dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("pane-%s.fifo", sanitizePaneID(paneID)))
	os.Remove(path)
	if err := unix.Mkfifo(path, 0o600); err != nil {
		return nil, fmt.Errorf("mkfifo: %w", err)
	}

	tapCtx, cancel := context.WithCancel(ctx)
	t := &fifoTap{path: path, cancel: cancel}

	// Open for read+write so the reader does not see EOF between writer
	// opens/closes (tmux's `cat` pipe-pane command exits and restarts on
	// some reconnects); this mirrors the usual long-lived-FIFO-reader idiom.
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		cancel()
		os.Remove(path)
		return nil, fmt.Errorf("open fifo: %w", err)
	}
	t.file = f

	if err := cmd.EnablePipePane(ctx, paneID, path); err != nil {
		f.Close()
		os.Remove(path)
		cancel()
		return nil, fmt.Errorf("enable pipe-pane: %w", err)
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		reader := bufio.NewReaderSize(f, 64*1024)
		buf := make([]byte, 32*1024)
		for {
			select {
			case <-tapCtx.Done():
				return
			default:
			}
			n, err := reader.Read(buf)
			if n > 0 {
				feed(append([]byte(nil), buf[:n]...))
			}
			if err != nil {
				if tapCtx.Err() != nil {
					return
				}
				slog.Debug("panetap: fifo read error", "pane", paneID, "error", err)
				return
			}
		}
	}()

	return &fifoCloser{cmd: cmd, paneID: paneID, tap: t}, nil
}

type fifoCloser struct {
	cmd    PaneCommander
	paneID string
	tap    *fifoTap
}

func (c *fifoCloser) Close() error {
	c.tap.cancel()
	c.tap.file.Close()
	c.tap.wg.Wait()
	os.Remove(c.tap.path)
	return c.cmd.DisablePipePane(context.Background(), c.paneID)
}

func sanitizePaneID(paneID string) string {
	out := make([]byte, 0, len(paneID))
	for _, b := range []byte(paneID) {
		if (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') {
			out = append(out, b)
		}
	}
	return string(out)
}
