package tmuxadapter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// field delimiter used in -F format strings; chosen because it cannot
// appear in any tmux-reported field (pane titles, paths, commands).
const fieldSep = "\x1f"

// ListSessions runs list-sessions with a fixed -F format and parses it.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	format := strings.Join([]string{
		"#{session_id}", "#{session_name}", "#{session_attached}",
		"#{session_created}", "#{session_activity}",
	}, fieldSep)
	lines, err := c.Command(ctx, fmt.Sprintf("list-sessions -F %q", format))
	if err != nil {
		return nil, fmt.Errorf("list-sessions: %w", err)
	}
	return parseSessions(lines), nil
}

func parseSessions(lines []string) []Session {
	out := make([]Session, 0, len(lines))
	for _, line := range lines {
		f := strings.Split(line, fieldSep)
		if len(f) != 5 {
			continue
		}
		out = append(out, Session{
			ID:           f[0],
			Name:         f[1],
			Attached:     f[2] != "0",
			Created:      parseInt64(f[3]),
			LastActivity: parseInt64(f[4]),
		})
	}
	return out
}

// ListWindows runs list-windows -a and parses it.
func (c *Client) ListWindows(ctx context.Context) ([]Window, error) {
	format := strings.Join([]string{
		"#{window_id}", "#{session_id}", "#{window_index}",
		"#{window_name}", "#{window_active}", "#{window_layout}",
	}, fieldSep)
	lines, err := c.Command(ctx, fmt.Sprintf("list-windows -a -F %q", format))
	if err != nil {
		return nil, fmt.Errorf("list-windows: %w", err)
	}
	return parseWindows(lines), nil
}

func parseWindows(lines []string) []Window {
	out := make([]Window, 0, len(lines))
	for _, line := range lines {
		f := strings.Split(line, fieldSep)
		if len(f) != 6 {
			continue
		}
		out = append(out, Window{
			ID:        f[0],
			SessionID: f[1],
			Index:     int(parseInt64(f[2])),
			Name:      f[3],
			Active:    f[4] != "0",
			Layout:    f[5],
		})
	}
	return out
}

// ListPanes runs list-panes -a and parses it.
func (c *Client) ListPanes(ctx context.Context) ([]Pane, error) {
	format := strings.Join([]string{
		"#{pane_id}", "#{window_id}", "#{session_id}", "#{pane_index}",
		"#{pane_active}", "#{pane_current_command}", "#{pane_current_path}",
		"#{pane_title}", "#{pane_width}", "#{pane_height}", "#{pane_dead}",
	}, fieldSep)
	lines, err := c.Command(ctx, fmt.Sprintf("list-panes -a -F %q", format))
	if err != nil {
		return nil, fmt.Errorf("list-panes: %w", err)
	}
	return parsePanes(lines), nil
}

func parsePanes(lines []string) []Pane {
	out := make([]Pane, 0, len(lines))
	for _, line := range lines {
		f := strings.Split(line, fieldSep)
		if len(f) != 11 {
			continue
		}
		out = append(out, Pane{
			ID:          f[0],
			WindowID:    f[1],
			SessionID:   f[2],
			Index:       int(parseInt64(f[3])),
			Active:      f[4] != "0",
			CurrentCmd:  f[5],
			CurrentPath: f[6],
			Title:       f[7],
			Width:       int(parseInt64(f[8])),
			Height:      int(parseInt64(f[9])),
			Dead:        f[10] != "0",
		})
	}
	return out
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

// SendKeys translates a logical key/text payload into `send-keys`
// arguments. text is sent as a key name, or as literal text when literal
// is set; enter appends a trailing Enter keypress.
func (c *Client) SendKeys(ctx context.Context, paneID string, text string, literal bool, enter bool) error {
	args := []string{"send-keys", "-t", shellQuote(paneID)}
	if literal {
		args = append(args, "-l")
	}
	args = append(args, shellQuote(text))
	if enter {
		args = append(args, "Enter")
	}
	_, err := c.Command(ctx, strings.Join(args, " "))
	if err != nil {
		return fmt.Errorf("send-keys: %w", err)
	}
	return nil
}

// KillPane issues kill-pane for paneID.
func (c *Client) KillPane(ctx context.Context, paneID string) error {
	_, err := c.Command(ctx, fmt.Sprintf("kill-pane -t %s", shellQuote(paneID)))
	if err != nil {
		return fmt.Errorf("kill-pane: %w", err)
	}
	return nil
}

// KillSession issues kill-session for sessionID.
func (c *Client) KillSession(ctx context.Context, sessionID string) error {
	_, err := c.Command(ctx, fmt.Sprintf("kill-session -t %s", shellQuote(sessionID)))
	if err != nil {
		return fmt.Errorf("kill-session: %w", err)
	}
	return nil
}

// RenameSession issues rename-session.
func (c *Client) RenameSession(ctx context.Context, sessionID, newName string) error {
	_, err := c.Command(ctx, fmt.Sprintf("rename-session -t %s %s", shellQuote(sessionID), shellQuote(newName)))
	if err != nil {
		return fmt.Errorf("rename-session: %w", err)
	}
	return nil
}

// RenamePane sets the pane's title via select-pane -T (tmux has no
// dedicated rename-pane command; title is the closest per-pane label).
func (c *Client) RenamePane(ctx context.Context, paneID, newTitle string) error {
	_, err := c.Command(ctx, fmt.Sprintf("select-pane -t %s -T %s", shellQuote(paneID), shellQuote(newTitle)))
	if err != nil {
		return fmt.Errorf("rename-pane: %w", err)
	}
	return nil
}

// CreatePane splits windowID and starts shellCmd (empty means the
// target's default shell) in the new pane, returning its pane_id.
func (c *Client) CreatePane(ctx context.Context, windowID, shellCmd string) (string, error) {
	cmd := fmt.Sprintf("split-window -t %s -P -F #{pane_id}", shellQuote(windowID))
	if shellCmd != "" {
		cmd += " " + shellQuote(shellCmd)
	}
	lines, err := c.Command(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("split-window: %w", err)
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("split-window: no pane_id returned")
	}
	return strings.TrimSpace(lines[0]), nil
}

// ResizePane applies the debounced, coalesced size chosen by the
// Terminal Feed Router (§4.3).
func (c *Client) ResizePane(ctx context.Context, paneID string, cols, rows int) error {
	_, err := c.Command(ctx, fmt.Sprintf("resize-pane -t %s -x %d -y %d", shellQuote(paneID), cols, rows))
	if err != nil {
		return fmt.Errorf("resize-pane: %w", err)
	}
	return nil
}

// EnablePipePane enables `pipe-pane -O`, appending pane output to path —
// the Pane Tap Manager's primary capture mechanism (§4.2), grounded
// directly on the pack's own tmux-over-SSH pipe-pane usage.
func (c *Client) EnablePipePane(ctx context.Context, paneID, path string) error {
	pipeCmd := fmt.Sprintf("cat >> %s", shellQuote(path))
	_, err := c.Command(ctx, fmt.Sprintf("pipe-pane -t %s -O %s", shellQuote(paneID), shellQuote(pipeCmd)))
	if err != nil {
		return fmt.Errorf("pipe-pane enable: %w", err)
	}
	return nil
}

// DisablePipePane disables a previously enabled pipe-pane.
func (c *Client) DisablePipePane(ctx context.Context, paneID string) error {
	_, err := c.Command(ctx, fmt.Sprintf("pipe-pane -t %s", shellQuote(paneID)))
	if err != nil {
		return fmt.Errorf("pipe-pane disable: %w", err)
	}
	return nil
}

// CapturePane returns the last `lines` lines of paneID's visible output
// via tmux capture-pane, the one-shot read path behind view_output and
// terminal_read (§6) — independent of the pipe-pane/PTY-proxy streaming
// taps panetap owns.
func (c *Client) CapturePane(ctx context.Context, paneID string, lines int) ([]byte, error) {
	if lines <= 0 {
		lines = 200
	}
	out, err := c.Command(ctx, fmt.Sprintf("capture-pane -p -t %s -S -%d", shellQuote(paneID), lines))
	if err != nil {
		return nil, fmt.Errorf("capture-pane: %w", err)
	}
	return []byte(strings.Join(out, "\n")), nil
}

// shellQuote wraps s in single quotes for safe interpolation into a
// tmux control-mode command line, escaping embedded single quotes.
// tmux's own command parser, not a shell, evaluates this line, but the
// same quoting discipline avoids argument-splitting on embedded spaces.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
