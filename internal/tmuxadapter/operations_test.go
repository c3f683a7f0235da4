package tmuxadapter

import "testing"

func TestParsePanes(t *testing.T) {
	line := []string{
		"%1\x1f@1\x1f$1\x1f0\x1f1\x1fclaude\x1f/home/dev/proj\x1ftitle\x1f80\x1f24\x1f0",
	}
	panes := parsePanes(line)
	if len(panes) != 1 {
		t.Fatalf("got %d panes, want 1", len(panes))
	}
	p := panes[0]
	if p.ID != "%1" || p.WindowID != "@1" || p.SessionID != "$1" || p.Index != 0 ||
		!p.Active || p.CurrentCmd != "claude" || p.CurrentPath != "/home/dev/proj" ||
		p.Width != 80 || p.Height != 24 || p.Dead {
		t.Fatalf("parsePanes mismatch: %+v", p)
	}
}

func TestParseSessionsSkipsMalformedLines(t *testing.T) {
	lines := []string{
		"$1\x1fmain\x1f1\x1f100\x1f200",
		"not-enough-fields",
	}
	sessions := parseSessions(lines)
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	if sessions[0].ID != "$1" || !sessions[0].Attached {
		t.Fatalf("parseSessions mismatch: %+v", sessions[0])
	}
}

func TestParseWindows(t *testing.T) {
	lines := []string{"@2\x1f$1\x1f1\x1fagent\x1f0\x1feven-horizontal"}
	windows := parseWindows(lines)
	if len(windows) != 1 {
		t.Fatalf("got %d windows, want 1", len(windows))
	}
	w := windows[0]
	if w.ID != "@2" || w.Index != 1 || w.Name != "agent" || w.Active {
		t.Fatalf("parseWindows mismatch: %+v", w)
	}
}

func TestParseNotificationOutput(t *testing.T) {
	n := parseNotification("%output %3 68656c6c6f")
	if n.Type != "output" || n.PaneID != "%3" {
		t.Fatalf("parseNotification mismatch: %+v", n)
	}
}

func TestParseNotificationWindowAdd(t *testing.T) {
	n := parseNotification("%window-add @9")
	if n.Type != "window-add" || n.PaneID != "" || len(n.Fields) != 1 || n.Fields[0] != "@9" {
		t.Fatalf("parseNotification mismatch: %+v", n)
	}
}

func TestShellQuoteEscapesEmbeddedQuote(t *testing.T) {
	got := shellQuote("it's here")
	want := `'it'\''s here'`
	if got != want {
		t.Fatalf("shellQuote = %q, want %q", got, want)
	}
}

func TestParseInt64Invalid(t *testing.T) {
	if parseInt64("not-a-number") != 0 {
		t.Fatal("parseInt64 should default to 0 on invalid input")
	}
}
