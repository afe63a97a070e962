// Package gitfixture builds throwaway upstream/clone repository pairs for
// tests. Upstream history is written with go-git; clones use the git CLI so
// they carry a real origin remote.
package gitfixture

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const Branch = "main"

var signature = object.Signature{Name: "fixture", Email: "fixture@example.com"}

// RequireGit skips the test when the git binary is not installed.
func RequireGit(t testing.TB) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

type Repo struct {
	Dir  string
	repo *git.Repository
	tick int
}

// NewUpstream creates a repository on branch main with one commit holding
// files.
func NewUpstream(t testing.TB, files map[string]string) *Repo {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "upstream")
	repo, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(Branch)},
	})
	if err != nil {
		t.Fatalf("init upstream: %v", err)
	}
	r := &Repo{Dir: dir, repo: repo}
	r.Commit(t, "initial", files)
	return r
}

// Open wraps an existing working tree, e.g. a clone.
func Open(t testing.TB, dir string) *Repo {
	t.Helper()
	repo, err := git.PlainOpen(dir)
	if err != nil {
		t.Fatalf("open %s: %v", dir, err)
	}
	return &Repo{Dir: dir, repo: repo}
}

// Commit writes files (an empty value deletes the path) and commits them.
func (r *Repo) Commit(t testing.TB, msg string, files map[string]string) string {
	t.Helper()
	wt, err := r.repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	for name, content := range files {
		path := filepath.Join(r.Dir, filepath.FromSlash(name))
		if content == "" {
			if _, err := wt.Remove(name); err != nil {
				t.Fatalf("remove %s: %v", name, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if _, err := wt.Add(name); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	// Distinct, increasing timestamps keep log ordering stable.
	r.tick++
	sig := signature
	sig.When = time.Date(2024, 1, 1, 0, 0, r.tick, 0, time.UTC)
	hash, err := wt.Commit(msg, &git.CommitOptions{Author: &sig, Committer: &sig, AllowEmptyCommits: true})
	if err != nil {
		t.Fatalf("commit %q: %v", msg, err)
	}
	return hash.String()
}

func (r *Repo) Head(t testing.TB) string {
	t.Helper()
	ref, err := r.repo.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	return ref.Hash().String()
}

// Clone clones the repository with the git CLI and returns the new working
// tree path.
func (r *Repo) Clone(t testing.TB) string {
	t.Helper()
	RequireGit(t)
	dir := filepath.Join(t.TempDir(), "work")
	Git(t, "", "clone", "--quiet", "--branch", Branch, r.Dir, dir)
	return dir
}

// Git runs the git CLI in dir and returns its stdout.
func Git(t testing.TB, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"GIT_AUTHOR_NAME=fixture", "GIT_AUTHOR_EMAIL=fixture@example.com",
		"GIT_COMMITTER_NAME=fixture", "GIT_COMMITTER_EMAIL=fixture@example.com",
	)
	out, err := cmd.Output()
	if err != nil {
		stderr := ""
		if ee, ok := err.(*exec.ExitError); ok {
			stderr = string(ee.Stderr)
		}
		t.Fatalf("git %v: %v\n%s", args, err, stderr)
	}
	return string(out)
}
