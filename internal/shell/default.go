// Package shell resolves the default shell command create_pane falls
// back to when a caller omits shell_cmd, carrying forward the teacher's
// internal/shell concern (translating a caller-supplied command into
// something the target's shell will run correctly) without its
// PowerShell-specific translation logic, which had no Unix counterpart.
package shell

import (
	"os"
	"os/user"
	"strings"
)

var fallbackShells = []string{"/bin/bash", "/bin/zsh", "/bin/sh"}

// Default returns the shell command a new pane should run when the
// caller did not specify one: $SHELL if set and present on disk,
// otherwise the passwd-entry shell for the current user, otherwise the
// first of a fixed fallback list that exists.
func Default() string {
	if s := strings.TrimSpace(os.Getenv("SHELL")); s != "" {
		if _, err := os.Stat(s); err == nil {
			return s
		}
	}
	if u, err := user.Current(); err == nil {
		if s := passwdShell(u.Username); s != "" {
			return s
		}
	}
	for _, s := range fallbackShells {
		if _, err := os.Stat(s); err == nil {
			return s
		}
	}
	return "/bin/sh"
}

// passwdShell reads /etc/passwd for username's login shell. Returns ""
// on any parse failure or if the user has no entry; callers fall
// through to the fixed shell list.
func passwdShell(username string) string {
	data, err := os.ReadFile("/etc/passwd")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Split(line, ":")
		if len(fields) < 7 {
			continue
		}
		if fields[0] == username {
			return strings.TrimSpace(fields[6])
		}
	}
	return ""
}
