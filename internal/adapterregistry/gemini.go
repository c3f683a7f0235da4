package adapterregistry

import (
	"path/filepath"
	"strings"
)

// geminiAdapter classifies Gemini CLI panes, grounded on the pack's
// GeminiBackend (backend_gemini.go): like Codex, its input box text is
// always visible, so "esc to cancel" must be checked ahead of IDLE.
type geminiAdapter struct{}

func init() { Register(&geminiAdapter{}) }

func (geminiAdapter) AgentType() string { return "gemini" }

func (geminiAdapter) Classify(pane PaneInfo, recentTapContent string) Classification {
	cmd := strings.ToLower(pane.CurrentCommand)
	if strings.Contains(cmd, "gemini") {
		return Classification{AgentType: "gemini", Confidence: 0.95}
	}
	for _, a := range pane.Argv {
		if strings.Contains(strings.ToLower(a), "gemini") {
			return Classification{AgentType: "gemini", Confidence: 0.9}
		}
	}

	lower := strings.ToLower(stripANSI(recentTapContent))
	for _, sig := range []string{"gemini", "google"} {
		if strings.Contains(lower, sig) {
			return Classification{AgentType: "gemini", Confidence: 0.6}
		}
	}
	return Classification{}
}

func (geminiAdapter) Translate(raw RawEvent) NormalizedEvent {
	ev := NormalizedEvent{CWD: raw.CWD, RuntimeIDHint: raw.RuntimeIDHint}
	if raw.Source == "sidecar" {
		ev.EventType = geminiSidecarEventType(raw.State)
		return ev
	}
	ev.EventType = geminiClassifyContent(raw.State)
	return ev
}

func geminiSidecarEventType(state string) EventType {
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

// geminiClassifyContent mirrors GeminiBackend.DetectStatus's phrase lists.
func geminiClassifyContent(content string) EventType {
	recent := recentNonBlankLines(content, 20)
	running := func(_, lower string) bool {
		return strings.Contains(lower, "esc to cancel")
	}
	waiting := []string{
		"approve", "deny", "allow",
		"yes/no", "y/n", "(y)es", "(n)o",
		"do you want to proceed",
		"shall i proceed", "should i proceed",
	}
	idle := []string{
		"type your message", "what would you like", "how can i help", "let me know what",
	}
	return classifyContent(recent, running, waiting, idle)
}

// SidecarPath follows the shared per-agent-type state directory
// convention; no Gemini hook writes to it in this corpus.
func (geminiAdapter) SidecarPath(runtimeID string) string {
	return filepath.Join(stateDir(), "gemini", runtimeID+".json")
}
