package git

// SessionLabelForDir derives a PaneItem session_label from a pane's
// current working directory, when that directory sits inside a git
// worktree. It returns ok=false when dir is not part of a repository,
// letting the caller fall back to a tmux-window-name or derived label
// instead of a git branch name.
func SessionLabelForDir(dir string) (label string, ok bool) {
	if dir == "" || !IsGitRepository(dir) {
		return "", false
	}
	repo, err := Open(dir)
	if err != nil {
		return "", false
	}
	branch, err := repo.CurrentBranch()
	if err != nil || branch == "" {
		return "", false
	}
	return branch, true
}
