package tmuxadapter

import (
	"bufio"
	"context"
	"io"
	"testing"
	"time"
)

// newTestClient builds a Client around an in-process pipe instead of a
// real tmux subprocess, letting the demux logic in readLoop be exercised
// without spawning tmux.
func newTestClient(serverOut io.Reader) (*Client, io.Writer) {
	stdinR, stdinW := io.Pipe()
	c := &Client{
		stdin:  stdinW,
		notify: make(chan Notification, 16),
	}
	go c.readLoop(bufio.NewReader(serverOut))
	go io.Copy(io.Discard, stdinR)
	return c, stdinW
}

func TestCommandReturnsReplyLines(t *testing.T) {
	r, w := io.Pipe()
	c, _ := newTestClient(r)

	go func() {
		io.WriteString(w, "%begin 1 1 0\n")
		io.WriteString(w, "$1\x1fmain\x1f1\x1f100\x1f200\n")
		io.WriteString(w, "%end 1 1 0\n")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	lines, err := c.Command(ctx, "list-sessions")
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if len(lines) != 1 || lines[0] != "$1\x1fmain\x1f1\x1f100\x1f200" {
		t.Fatalf("Command lines = %+v", lines)
	}
}

func TestCommandSurfacesTmuxError(t *testing.T) {
	r, w := io.Pipe()
	c, _ := newTestClient(r)

	go func() {
		io.WriteString(w, "%begin 1 1 0\n")
		io.WriteString(w, "no such session\n")
		io.WriteString(w, "%error 1 1 0\n")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := c.Command(ctx, "kill-session -t bogus")
	if err == nil {
		t.Fatal("expected error from %error block")
	}
}

func TestNotificationsDeliveredOutsideReplyBlocks(t *testing.T) {
	r, w := io.Pipe()
	c, _ := newTestClient(r)

	go func() {
		io.WriteString(w, "%window-add @9\n")
	}()

	select {
	case n := <-c.Notifications():
		if n.Type != "window-add" {
			t.Fatalf("got notification %+v", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestCommandContextCancellation(t *testing.T) {
	r, _ := io.Pipe()
	c, _ := newTestClient(r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Command(ctx, "list-sessions"); err == nil {
		t.Fatal("expected context cancellation error")
	}
}
