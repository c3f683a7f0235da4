package adapterregistry

import (
	"regexp"
	"strings"
)

// ansiRe and stripANSI mirror the teacher pack's tmux.go ANSI-stripping
// helper, needed here because classify() and translate() both work
// against raw captured pane bytes.
var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func stripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

// hasDingbat reports whether s contains one of Claude Code's rotating
// spinner glyphs (U+2700-U+27BF), grounded on the pack's hasDingbat.
func hasDingbat(s string) bool {
	for _, r := range s {
		if r >= '✀' && r <= '➿' {
			return true
		}
	}
	return false
}

// recentNonBlankLines returns the last n non-blank, ANSI-stripped,
// trimmed lines of content, bottom-up (index 0 is the last line).
func recentNonBlankLines(content string, n int) []string {
	lines := strings.Split(content, "\n")
	var recent []string
	for i := len(lines) - 1; i >= 0 && len(recent) < n; i-- {
		line := strings.TrimSpace(stripANSI(lines[i]))
		if line != "" {
			recent = append(recent, line)
		}
	}
	return recent
}

func containsAny(lower string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

// classifyContent applies the three-tier scan shared
// by every adapter here: DONE markers first on the bottommost line, then
// a WAITING phrase list, then an IDLE phrase list, defaulting to RUNNING.
// runningCheck lets each adapter inject its own highest-priority signal
// (e.g. "esc to interrupt") ahead of WAITING.
func classifyContent(recent []string, runningCheck func(line, lower string) bool, waitingPhrases, idlePhrases []string) EventType {
	if len(recent) == 0 {
		return EventLifecycleRunning
	}

	bottomLower := strings.ToLower(recent[0])
	for _, p := range []string{"exited", "goodbye", "session ended", "bye"} {
		if strings.Contains(bottomLower, p) {
			return EventLifecycleCompleted
		}
	}

	for _, line := range recent {
		lower := strings.ToLower(line)
		if runningCheck != nil && runningCheck(line, lower) {
			return EventLifecycleRunning
		}
	}

	for _, line := range recent {
		lower := strings.ToLower(line)
		if containsAny(lower, waitingPhrases) {
			return EventLifecycleWaitingApproval
		}
	}

	for _, line := range recent {
		lower := strings.ToLower(line)
		if containsAny(lower, idlePhrases) {
			return EventLifecycleIdle
		}
	}

	return EventLifecycleRunning
}
