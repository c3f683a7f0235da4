package git

import (
	"os"
	"path/filepath"
	"testing"

	"agtmuxd/internal/testutil"
)

func TestIsGitRepository(t *testing.T) {
	testutil.SkipIfNoGit(t)

	t.Run("valid git repo", func(t *testing.T) {
		dir := testutil.CreateTempGitRepo(t)
		if !IsGitRepository(dir) {
			t.Error("expected IsGitRepository to return true for a git repo")
		}
	})

	t.Run("non-git directory", func(t *testing.T) {
		dir := t.TempDir()
		if IsGitRepository(dir) {
			t.Error("expected IsGitRepository to return false for a non-git directory")
		}
	})

	t.Run("nonexistent directory", func(t *testing.T) {
		if IsGitRepository("/nonexistent/path/12345") {
			t.Error("expected IsGitRepository to return false for nonexistent path")
		}
	})
}

func TestOpen(t *testing.T) {
	testutil.SkipIfNoGit(t)

	t.Run("valid repo", func(t *testing.T) {
		dir := testutil.CreateTempGitRepo(t)
		repo, err := Open(dir)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if repo.GetPath() != dir {
			t.Errorf("GetPath() = %q, want %q", repo.GetPath(), dir)
		}
	})

	t.Run("non-git directory", func(t *testing.T) {
		dir := t.TempDir()
		_, err := Open(dir)
		if err == nil {
			t.Error("expected Open() to return error for non-git directory")
		}
	})

	t.Run("trims and cleans path", func(t *testing.T) {
		dir := testutil.CreateTempGitRepo(t)
		nested := filepath.Join(dir, "nested")
		if err := os.MkdirAll(nested, 0o755); err != nil {
			t.Fatalf("MkdirAll() error = %v", err)
		}

		dirtyPath := "   " + nested + string(os.PathSeparator) + "..   "
		repo, err := Open(dirtyPath)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}

		want := filepath.Clean(dir)
		if repo.GetPath() != want {
			t.Fatalf("GetPath() = %q, want %q", repo.GetPath(), want)
		}
	})

	t.Run("stores absolute path for relative input", func(t *testing.T) {
		dir := testutil.CreateTempGitRepo(t)
		cwd, err := os.Getwd()
		if err != nil {
			t.Fatalf("Getwd() error = %v", err)
		}
		relDir, err := filepath.Rel(cwd, dir)
		if err != nil {
			t.Skipf("skipping relative-path assertion: %v", err)
		}
		repo, err := Open(relDir)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		want, err := filepath.Abs(relDir)
		if err != nil {
			t.Fatalf("Abs() error = %v", err)
		}
		if repo.GetPath() != filepath.Clean(want) {
			t.Fatalf("GetPath() = %q, want %q", repo.GetPath(), filepath.Clean(want))
		}
	})
}

func TestCurrentBranch(t *testing.T) {
	testutil.SkipIfNoGit(t)

	dir := testutil.CreateTempGitRepo(t)
	repo, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	branch, err := repo.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch() error = %v", err)
	}
	// Default branch could be "main" or "master" depending on git config.
	if branch == "" {
		t.Error("expected non-empty branch name")
	}
}
