package adapterregistry

import "testing"

func TestClassifyPrefersCommandNameOverContent(t *testing.T) {
	c, ok := Classify(PaneInfo{CurrentCommand: "claude"}, "some unrelated text")
	if !ok {
		t.Fatal("expected a classification")
	}
	if c.AgentType != "claude" {
		t.Fatalf("agent type = %q, want claude", c.AgentType)
	}
	if c.Confidence < 0.9 {
		t.Fatalf("confidence = %v, want >= 0.9 for a direct command match", c.Confidence)
	}
}

func TestClassifyFallsBackToContentHeuristic(t *testing.T) {
	c, ok := Classify(PaneInfo{CurrentCommand: "node"}, "Gemini\nType your message")
	if !ok {
		t.Fatal("expected a classification from content alone")
	}
	if c.AgentType != "gemini" {
		t.Fatalf("agent type = %q, want gemini", c.AgentType)
	}
}

func TestClassifyReturnsNotOKWhenNothingMatches(t *testing.T) {
	_, ok := Classify(PaneInfo{CurrentCommand: "bash"}, "just a shell prompt\n$ ")
	if ok {
		t.Fatal("expected no classification for plain shell content")
	}
}

func TestGetReturnsRegisteredAdapters(t *testing.T) {
	for _, id := range []string{"claude", "codex", "gemini"} {
		if Get(id) == nil {
			t.Fatalf("Get(%q) returned nil, want a registered adapter", id)
		}
	}
	if Get("nonexistent") != nil {
		t.Fatal("Get(nonexistent) should return nil")
	}
}

func TestAllReturnsEveryRegisteredAdapter(t *testing.T) {
	all := All()
	if len(all) < 3 {
		t.Fatalf("All() returned %d adapters, want at least 3", len(all))
	}
}

func TestClaudeTranslateSidecar(t *testing.T) {
	a := Get("claude")
	ev := a.Translate(RawEvent{Source: "sidecar", State: "WAITING", RuntimeIDHint: "r1"})
	if ev.EventType != EventLifecycleWaitingApproval {
		t.Fatalf("event type = %q, want %q", ev.EventType, EventLifecycleWaitingApproval)
	}
	if ev.RuntimeIDHint != "r1" {
		t.Fatalf("runtime id hint = %q, want r1", ev.RuntimeIDHint)
	}
}

func TestClaudeTranslateHeuristicIdle(t *testing.T) {
	a := Get("claude")
	ev := a.Translate(RawEvent{Source: "heuristic", State: "❯ "})
	if ev.EventType != EventLifecycleIdle {
		t.Fatalf("event type = %q, want idle", ev.EventType)
	}
}

func TestCodexTranslateHeuristicRunningBeforeIdle(t *testing.T) {
	a := Get("codex")
	content := "tokens used: 100\nesc to interrupt"
	ev := a.Translate(RawEvent{Source: "heuristic", State: content})
	if ev.EventType != EventLifecycleRunning {
		t.Fatalf("event type = %q, want running (status bar must not shadow esc-to-interrupt)", ev.EventType)
	}
}

func TestGeminiTranslateHeuristicWaiting(t *testing.T) {
	a := Get("gemini")
	ev := a.Translate(RawEvent{Source: "heuristic", State: "Do you want to proceed?"})
	if ev.EventType != EventLifecycleWaitingApproval {
		t.Fatalf("event type = %q, want waiting_approval", ev.EventType)
	}
}

func TestSidecarPathsAreDistinctPerAgent(t *testing.T) {
	seen := map[string]bool{}
	for _, id := range []string{"claude", "codex", "gemini"} {
		p := Get(id).SidecarPath("abc")
		if seen[p] {
			t.Fatalf("duplicate sidecar path %q for agent %q", p, id)
		}
		seen[p] = true
	}
}
