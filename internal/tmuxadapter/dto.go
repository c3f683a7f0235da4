// Package tmuxadapter is the real tmux control-mode client behind Target
// Manager's per-target ingest task (§4.1). Struct naming follows the
// teacher's internal/tmux session manager (TmuxSession/TmuxWindow/TmuxPane);
// the mechanism underneath is rebuilt from scratch to drive a real tmux
// binary over `tmux -C` control mode plus `pipe-pane` capture, since the
// teacher's own implementation is an in-process ConPTY reimplementation of
// tmux for a platform where tmux does not exist.
package tmuxadapter

// Session is one tmux session as reported by list-sessions.
type Session struct {
	ID           string // e.g. "$3"
	Name         string
	Attached     bool
	Created      int64
	LastActivity int64
}

// Window is one tmux window as reported by list-windows.
type Window struct {
	ID        string // e.g. "@7"
	SessionID string
	Index     int
	Name      string
	Active    bool
	Layout    string
}

// Pane is one tmux pane as reported by list-panes.
type Pane struct {
	ID          string // e.g. "%12"
	WindowID    string
	SessionID   string
	Index       int
	Active      bool
	CurrentCmd  string
	CurrentPath string
	Title       string
	Width       int
	Height      int
	Dead        bool
}
