package adapterregistry

import (
	"os"
	"path/filepath"
	"strings"
)

// claudeAdapter classifies Claude Code panes, grounded on the pack's
// ClaudeBackend (backend_claude.go): same bottom-of-pane scan order
// (RUNNING spinner/interrupt hint, then WAITING approval phrases, then
// IDLE prompt glyphs), generalized from a status-detector called by an
// owning process into a pure classify/translate pair over externally
// captured tap bytes.
type claudeAdapter struct{}

func init() { Register(&claudeAdapter{}) }

func (claudeAdapter) AgentType() string { return "claude" }

func (claudeAdapter) Classify(pane PaneInfo, recentTapContent string) Classification {
	cmd := strings.ToLower(pane.CurrentCommand)
	if strings.Contains(cmd, "claude") {
		return Classification{AgentType: "claude", Confidence: 0.95}
	}
	for _, a := range pane.Argv {
		if strings.Contains(strings.ToLower(a), "claude") {
			return Classification{AgentType: "claude", Confidence: 0.9}
		}
	}

	lower := strings.ToLower(stripANSI(recentTapContent))
	for _, sig := range []string{"claude code", "anthropic"} {
		if strings.Contains(lower, sig) {
			return Classification{AgentType: "claude", Confidence: 0.85}
		}
	}
	for _, sig := range []string{"❯", "? for shortcuts", "esc to interrupt", "allow once", "allow always"} {
		if strings.Contains(lower, sig) {
			return Classification{AgentType: "claude", Confidence: 0.55}
		}
	}
	return Classification{}
}

func (claudeAdapter) Translate(raw RawEvent) NormalizedEvent {
	ev := NormalizedEvent{CWD: raw.CWD, RuntimeIDHint: raw.RuntimeIDHint}
	if raw.Source == "sidecar" {
		ev.EventType = claudeSidecarEventType(raw.State)
		return ev
	}
	ev.EventType = claudeClassifyContent(raw.State)
	return ev
}

// claudeSidecarEventType maps the hook script's state vocabulary
// (RUNNING/WAITING/IDLE/DONE, §4.4 "deterministic signal") to a
// NormalizedEvent type. Grounded on backend_claude.go's claudeHookStatus
// JSON payload and the inline hook script's State values.
func claudeSidecarEventType(state string) EventType {
	switch strings.ToUpper(state) {
	case "RUNNING":
		return EventLifecycleRunning
	case "WAITING":
		return EventLifecycleWaitingApproval
	case "IDLE":
		return EventLifecycleIdle
	case "DONE":
		return EventLifecycleCompleted
	default:
		return EventLifecycleRunning
	}
}

// claudeClassifyContent is the heuristic fallback (§4.4 "heuristic
// signal"): same phrase lists as ClaudeBackend.DetectStatus.
func claudeClassifyContent(content string) EventType {
	recent := recentNonBlankLines(content, 15)
	running := func(line, lower string) bool {
		if strings.Contains(lower, "esc to interrupt") {
			return true
		}
		if strings.Contains(lower, "running…") || strings.Contains(lower, "running...") {
			return true
		}
		hasEllipsis := strings.Contains(line, "…") || strings.Contains(line, "...")
		return hasEllipsis && hasDingbat(line)
	}
	waiting := []string{
		"allow once", "allow always",
		"enter to select", "space to select",
		"yes/no/always allow",
		"do you want to proceed",
		"shall i proceed", "should i proceed",
		"approve", "deny", "reject",
		"(y)es", "(n)o", "y/n", "yes/no",
		"ctrl+g to edit",
	}
	idle := []string{"? for shortcuts", "has completed", "anything else", "can i help"}
	if ev := classifyContent(recent, running, waiting, idle); ev != EventLifecycleRunning {
		return ev
	}
	for _, line := range recent {
		if running(line, strings.ToLower(line)) {
			return EventLifecycleRunning
		}
	}
	for _, line := range recent {
		if line == ">" || line == "$" || strings.HasSuffix(line, "> ") || strings.HasSuffix(line, "$ ") || strings.Contains(line, "❯") {
			return EventLifecycleIdle
		}
	}
	return EventLifecycleRunning
}

// SidecarPath returns the hook-written status file for runtimeID, under
// the daemon's state directory (XDG_STATE_HOME-aware, falling back to
// ~/.local/state/agtmux). Grounded on claudeStatusDir's
// ~/.tickettok/status convention.
func (claudeAdapter) SidecarPath(runtimeID string) string {
	return filepath.Join(stateDir(), "claude", runtimeID+".json")
}

func stateDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "agtmux")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "agtmux-state")
	}
	return filepath.Join(home, ".local", "state", "agtmux")
}
