package adapterregistry

import (
	"path/filepath"
	"strings"
)

// codexAdapter classifies Codex CLI panes, grounded on the pack's
// CodexBackend (backend_codex.go): its status bar is always visible, so
// RUNNING's "esc to interrupt" must be checked ahead of the IDLE phrases.
type codexAdapter struct{}

func init() { Register(&codexAdapter{}) }

func (codexAdapter) AgentType() string { return "codex" }

func (codexAdapter) Classify(pane PaneInfo, recentTapContent string) Classification {
	cmd := strings.ToLower(pane.CurrentCommand)
	if strings.Contains(cmd, "codex") {
		return Classification{AgentType: "codex", Confidence: 0.95}
	}
	for _, a := range pane.Argv {
		if strings.Contains(strings.ToLower(a), "codex") {
			return Classification{AgentType: "codex", Confidence: 0.9}
		}
	}

	lower := strings.ToLower(stripANSI(recentTapContent))
	for _, sig := range []string{"codex", "openai"} {
		if strings.Contains(lower, sig) {
			return Classification{AgentType: "codex", Confidence: 0.6}
		}
	}
	return Classification{}
}

func (codexAdapter) Translate(raw RawEvent) NormalizedEvent {
	ev := NormalizedEvent{CWD: raw.CWD, RuntimeIDHint: raw.RuntimeIDHint}
	if raw.Source == "sidecar" {
		ev.EventType = codexSidecarEventType(raw.State)
		return ev
	}
	ev.EventType = codexClassifyContent(raw.State)
	return ev
}

func codexSidecarEventType(state string) EventType {
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

// codexClassifyContent mirrors CodexBackend.DetectStatus's phrase lists.
func codexClassifyContent(content string) EventType {
	recent := recentNonBlankLines(content, 20)
	running := func(_, lower string) bool {
		return strings.Contains(lower, "esc to interrupt")
	}
	waiting := []string{
		"approve", "deny", "allow",
		"yes/no", "y/n", "(y)es", "(n)o",
		"do you want to proceed",
		"permission", "/permissions",
	}
	idle := []string{
		"tokens used", "what would you like", "how can i help",
	}
	for _, line := range recent {
		if line == ">" || line == "$" || strings.HasSuffix(line, "> ") || strings.HasSuffix(line, "$ ") {
			return EventLifecycleIdle
		}
	}
	return classifyContent(recent, running, waiting, idle)
}

// SidecarPath follows the same per-agent-type state directory
// convention as claude, though no Codex hook writes to it yet in this
// corpus — classify falls back to the heuristic signal (§4.4) when
// nothing is ever written there.
func (codexAdapter) SidecarPath(runtimeID string) string {
	return filepath.Join(stateDir(), "codex", runtimeID+".json")
}
