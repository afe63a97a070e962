// Package git is a fixed vocabulary over the git CLI used to inspect and move
// the deployed working tree. Every command goes through a command.Runner.
package git

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/yz4230/selfupdate/internal/command"
	"github.com/yz4230/selfupdate/internal/entity"
)

const (
	DefaultRemote = "origin"

	// fieldSep separates commit fields in --format output. Subjects cannot
	// contain it, so punctuation in messages never shifts field boundaries.
	fieldSep     = "\x1f"
	commitFormat = "--format=%H%x1f%h%x1f%an%x1f%cI%x1f%s"
)

// fallbackBranches are tried after the configured and current branch.
var fallbackBranches = []string{"main", "master"}

type Inspector struct {
	runner     command.Runner
	dir        string
	remote     string
	transcript command.Transcript
}

// NewInspector creates an Inspector for the working tree at dir. Fetch, pull
// and reset are written to transcript when it is non-nil.
func NewInspector(runner command.Runner, dir, remote string, transcript command.Transcript) *Inspector {
	if remote == "" {
		remote = DefaultRemote
	}
	return &Inspector{runner: runner, dir: dir, remote: remote, transcript: transcript}
}

func (i *Inspector) Dir() string    { return i.dir }
func (i *Inspector) Remote() string { return i.remote }

// RemoteRef is the remote-tracking name of branch, e.g. origin/main.
func (i *Inspector) RemoteRef(branch string) string {
	return i.remote + "/" + branch
}

func (i *Inspector) git(ctx context.Context, args []string, opts ...command.Option) (*command.Result, error) {
	return i.runner.Run(ctx, i.dir, append([]string{"git"}, args...), opts...)
}

func (i *Inspector) logged() command.Option {
	return command.WithTranscript(i.transcript)
}

// probe runs a read-only command and returns its trimmed stdout, or false
// when it did not succeed.
func (i *Inspector) probe(ctx context.Context, args ...string) (string, bool) {
	res, err := i.git(ctx, args, command.NonStrict())
	if err != nil || res == nil || !res.Success() {
		return "", false
	}
	return strings.TrimSpace(res.Stdout), true
}

func (i *Inspector) IsWorkTree(ctx context.Context) bool {
	out, ok := i.probe(ctx, "rev-parse", "--is-inside-work-tree")
	return ok && strings.EqualFold(out, "true")
}

// CurrentBranch returns "" when HEAD is detached or unreadable.
func (i *Inspector) CurrentBranch(ctx context.Context) string {
	out, ok := i.probe(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if !ok || out == "HEAD" {
		return ""
	}
	return out
}

// Fetch updates the remote-tracking ref of branch. It reports success
// instead of failing so callers can carry on with stale data.
func (i *Inspector) Fetch(ctx context.Context, branch string) bool {
	res, err := i.git(ctx, []string{"fetch", "--prune", i.remote, branch}, command.NonStrict(), i.logged())
	return err == nil && res.Success()
}

func (i *Inspector) RemoteBranchExists(ctx context.Context, branch string) bool {
	_, ok := i.probe(ctx, "rev-parse", "--verify", "--quiet", "refs/remotes/"+i.RemoteRef(branch))
	return ok
}

// ResolveBranch picks the branch to track: the first of the preferred
// branch, the current branch, main and master that exists on the remote.
func (i *Inspector) ResolveBranch(ctx context.Context, preferred string) string {
	preferred = strings.TrimSpace(preferred)
	current := i.CurrentBranch(ctx)
	candidates := lo.Uniq(lo.Compact(append([]string{preferred, current}, fallbackBranches...)))
	for _, candidate := range candidates {
		if i.RemoteBranchExists(ctx, candidate) {
			return candidate
		}
	}
	return lo.CoalesceOrEmpty(preferred, current, fallbackBranches[0])
}

// Resolve returns the commit rev points at, or nil.
func (i *Inspector) Resolve(ctx context.Context, rev string) *entity.CommitRef {
	res, err := i.git(ctx, []string{"show", "-s", commitFormat, rev, "--"}, command.NonStrict())
	if err != nil || !res.Success() {
		return nil
	}
	return ParseCommitLine(res.Stdout)
}

// CommitsBetween lists commits reachable from end but not from start, oldest
// first. At most limit commits (the newest ones) are returned.
func (i *Inspector) CommitsBetween(ctx context.Context, start, end string, limit int) []*entity.CommitRef {
	args := []string{"log", "--reverse", "--max-count=" + strconv.Itoa(max(1, limit)), commitFormat, start + ".." + end, "--"}
	res, err := i.git(ctx, args, command.NonStrict())
	if err != nil || !res.Success() {
		return nil
	}
	var commits []*entity.CommitRef
	for _, line := range strings.Split(res.Stdout, "\n") {
		if c := ParseCommitLine(line); c != nil {
			commits = append(commits, c)
		}
	}
	return commits
}

func (i *Inspector) ChangedFiles(ctx context.Context, start, end string) []string {
	res, err := i.git(ctx, []string{"diff", "--name-only", start + ".." + end, "--"}, command.NonStrict())
	if err != nil || !res.Success() {
		return nil
	}
	return splitLines(res.Stdout)
}

// DirtyFiles lists tracked paths whose content differs from HEAD, staged or
// not. These are the changes a hard reset discards.
func (i *Inspector) DirtyFiles(ctx context.Context) []string {
	res, err := i.git(ctx, []string{"diff", "--name-only", "HEAD", "--"}, command.NonStrict())
	if err != nil || !res.Success() {
		return nil
	}
	return splitLines(res.Stdout)
}

// PullFastForward advances the current branch to the remote branch. It never
// merges or rebases: diverged history fails with entity.ErrNonFastForward.
func (i *Inspector) PullFastForward(ctx context.Context, branch string) error {
	_, err := i.git(ctx, []string{"pull", "--ff-only", i.remote, branch}, i.logged())
	if err == nil {
		return nil
	}
	if isNonFastForward(err) {
		return fmt.Errorf("%w: %w", entity.ErrNonFastForward, err)
	}
	return err
}

func (i *Inspector) ResetHard(ctx context.Context, rev string) error {
	_, err := i.git(ctx, []string{"reset", "--hard", rev}, i.logged())
	return err
}

func isNonFastForward(err error) bool {
	var cmdErr *command.Error
	if !errors.As(err, &cmdErr) || cmdErr.Result == nil {
		return false
	}
	out := strings.ToLower(cmdErr.Result.Stderr + cmdErr.Result.Stdout)
	return strings.Contains(out, "not possible to fast-forward") ||
		strings.Contains(out, "diverging branches") ||
		strings.Contains(out, "non-fast-forward")
}

// ParseCommitLine parses one line of commitFormat output.
func ParseCommitLine(raw string) *entity.CommitRef {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}
	parts := strings.SplitN(text, fieldSep, 5)
	if len(parts) < 5 {
		return nil
	}
	return &entity.CommitRef{
		FullHash:   strings.TrimSpace(parts[0]),
		ShortHash:  strings.TrimSpace(parts[1]),
		Author:     strings.TrimSpace(parts[2]),
		CommitDate: strings.TrimSpace(parts[3]),
		Subject:    strings.TrimSpace(parts[4]),
	}
}

func splitLines(s string) []string {
	return lo.Compact(lo.Map(strings.Split(s, "\n"), func(line string, _ int) string {
		return strings.TrimSpace(line)
	}))
}
