package updater

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yz4230/selfupdate/internal/command"
	"github.com/yz4230/selfupdate/internal/config"
	"github.com/yz4230/selfupdate/internal/entity"
	"github.com/yz4230/selfupdate/internal/gitfixture"
	"github.com/yz4230/selfupdate/internal/restart"
)

// hostRunner runs git for real and records every other command instead of
// executing it.
type hostRunner struct {
	git    command.Runner
	mu     sync.Mutex
	calls  []string
	fail   map[string]bool
	panics bool
}

func newHostRunner() *hostRunner {
	return &hostRunner{git: command.NewExecRunner(time.Minute, zerolog.Nop()), fail: map[string]bool{}}
}

func (r *hostRunner) Run(ctx context.Context, dir string, args []string, opts ...command.Option) (*command.Result, error) {
	if len(args) > 0 && args[0] == "git" {
		return r.git.Run(ctx, dir, args, opts...)
	}
	line := strings.Join(args, " ")
	r.mu.Lock()
	r.calls = append(r.calls, line)
	r.mu.Unlock()
	if r.panics {
		panic("host command exploded")
	}
	if r.fail[line] {
		res := &command.Result{Args: args, ExitCode: 1, Stderr: "boom"}
		return res, &command.Error{Kind: entity.ErrCommandFailed, Args: args, Result: res}
	}
	return &command.Result{Args: args}, nil
}

func (r *hostRunner) host() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.calls...)
}

// refusingRunner fails the test if any command is executed.
type refusingRunner struct{ t *testing.T }

func (r refusingRunner) Run(_ context.Context, _ string, args []string, _ ...command.Option) (*command.Result, error) {
	r.t.Fatalf("unexpected command: %v", args)
	return nil, nil
}

func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	data := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.RepoRoot = dir
	cfg.StatePath = filepath.Join(data, "update_state.json")
	cfg.LogPath = filepath.Join(data, "logs", "update.log")
	cfg.SnapshotDir = filepath.Join(data, "snapshots")
	cfg.Changelog.Path = filepath.Join(dir, "CHANGELOG.md")
	return cfg
}

func newController(t *testing.T, cfg *config.Config, runner command.Runner) *Controller {
	t.Helper()
	c, err := New(cfg, runner, zerolog.Nop(), WithClock(func() time.Time {
		return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	}))
	require.NoError(t, err)
	return c
}

type scenario struct {
	upstream *gitfixture.Repo
	work     string
	base     string
}

func newScenario(t *testing.T) scenario {
	t.Helper()
	gitfixture.RequireGit(t)
	upstream := gitfixture.NewUpstream(t, map[string]string{
		"README.md":    "hello\n",
		"CHANGELOG.md": "# Changelog\n\n## 1.0.0\n- first\n",
	})
	work := upstream.Clone(t)
	return scenario{upstream: upstream, work: work, base: upstream.Head(t)}
}

func readLog(t *testing.T, c *Controller) string {
	t.Helper()
	return c.LogTail(0)
}

func TestNewRejectsBadRestartConfig(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Restart.Mode = "systemd"
	_, err := New(cfg, newHostRunner(), zerolog.Nop())
	assert.ErrorIs(t, err, entity.ErrConfiguration)
}

func TestStatusNotAWorkTree(t *testing.T) {
	gitfixture.RequireGit(t)
	cfg := testConfig(t, t.TempDir())
	c := newController(t, cfg, newHostRunner())

	status := c.Status(context.Background())
	assert.Equal(t, "main", status.Branch)
	assert.False(t, status.HasUpdates)
	assert.Nil(t, status.Current)
	assert.Nil(t, status.Remote)
	assert.Equal(t, []string{entity.ErrNotVersionControlled.Error()}, status.Errors)
}

func TestStatusReportsPendingCommits(t *testing.T) {
	s := newScenario(t)
	tip := s.upstream.Commit(t, "pin flask", map[string]string{"requirements.txt": "flask==3.0\n"})

	c := newController(t, testConfig(t, s.work), newHostRunner())
	status := c.Status(context.Background())

	assert.Empty(t, status.Errors)
	assert.Equal(t, "main", status.Branch)
	require.NotNil(t, status.Current)
	require.NotNil(t, status.Remote)
	assert.Equal(t, s.base, status.Current.FullHash)
	assert.Equal(t, tip, status.Remote.FullHash)
	assert.True(t, status.HasUpdates)
	require.Len(t, status.Commits, 1)
	assert.Equal(t, "pin flask", status.Commits[0].Subject)
	assert.Nil(t, status.Release)
	assert.Contains(t, status.ChangelogExcerpt, "## 1.0.0")

	// Status is read-only.
	assert.Empty(t, readLog(t, c))
}

func TestStatusFetchFailureUsesLastFetchedRefs(t *testing.T) {
	s := newScenario(t)
	tip := s.upstream.Commit(t, "next", map[string]string{"README.md": "v2\n"})
	gitfixture.Git(t, s.work, "fetch", "--quiet", "origin")
	gitfixture.Git(t, s.work, "remote", "set-url", "origin", filepath.Join(t.TempDir(), "gone.git"))

	c := newController(t, testConfig(t, s.work), newHostRunner())
	status := c.Status(context.Background())

	assert.Equal(t, []string{"git fetch origin main failed"}, status.Errors)
	assert.Equal(t, "main", status.Branch)
	require.NotNil(t, status.Current)
	require.NotNil(t, status.Remote)
	assert.Equal(t, s.base, status.Current.FullHash)
	assert.Equal(t, tip, status.Remote.FullHash)
	assert.True(t, status.HasUpdates)
	assert.Len(t, status.Commits, 1)
}

func TestUpdateAppliesManifestChange(t *testing.T) {
	s := newScenario(t)
	tip := s.upstream.Commit(t, "pin flask", map[string]string{"requirements.txt": "flask==3.0\n"})

	runner := newHostRunner()
	cfg := testConfig(t, s.work)
	c := newController(t, cfg, runner)

	result := c.Update(context.Background(), true)
	require.True(t, result.OK, result.Error)
	assert.Equal(t, "main", result.Branch)
	assert.Equal(t, s.base, result.Before.FullHash)
	assert.Equal(t, tip, result.After.FullHash)
	assert.Equal(t, tip, result.Remote.FullHash)
	assert.Equal(t, []string{"requirements.txt"}, result.ChangedFiles)
	assert.Equal(t, []string{"python -m pip install -r requirements.txt"}, result.Steps)
	assert.False(t, result.RestartRequired)
	assert.False(t, result.RestartPerformed)
	assert.Equal(t, []string{"python -m pip install -r requirements.txt"}, runner.host())

	state := c.State().Load()
	assert.Equal(t, s.base, state.PreviousHead())
	assert.Equal(t, tip, state.LastKnownGood())
	assert.Equal(t, "main", state.String(entity.StateBranch))
	assert.Equal(t, "2024-06-01T12:00:00Z", state.String(entity.StateUpdatedAt))

	log := readLog(t, c)
	assert.Contains(t, log, "=== update start ===")
	assert.Contains(t, log, "$ git pull --ff-only origin main")
	assert.Contains(t, log, "=== update success ===")
}

func TestUpdateIsIdempotent(t *testing.T) {
	s := newScenario(t)
	tip := s.upstream.Commit(t, "next", map[string]string{"README.md": "v2\n"})
	c := newController(t, testConfig(t, s.work), newHostRunner())

	require.True(t, c.Update(context.Background(), true).OK)
	stateAfterFirst := c.State().Load()

	second := c.Update(context.Background(), true)
	require.True(t, second.OK, second.Error)
	assert.Equal(t, []string{entity.StepNoUpdates}, second.Steps)
	assert.Equal(t, tip, second.Before.FullHash)
	assert.Equal(t, tip, second.After.FullHash)
	assert.Empty(t, second.ChangedFiles)
	assert.Equal(t, stateAfterFirst, c.State().Load(), "a no-op run leaves the state alone")
	assert.Contains(t, readLog(t, c), "No updates available")
}

func TestUpdateKeepsUntrackedFiles(t *testing.T) {
	s := newScenario(t)
	tip := s.upstream.Commit(t, "next", map[string]string{"app/main.py": "print(1)\n"})
	uploads := filepath.Join(s.work, "uploads")
	require.NoError(t, os.MkdirAll(uploads, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(uploads, "a.bin"), []byte("data"), 0o644))

	c := newController(t, testConfig(t, s.work), newHostRunner())
	result := c.Update(context.Background(), true)
	require.True(t, result.OK, result.Error)
	assert.Equal(t, tip, result.After.FullHash)
	assert.FileExists(t, filepath.Join(uploads, "a.bin"))
}

func TestUpdateRestart(t *testing.T) {
	for _, execute := range []bool{false, true} {
		t.Run(map[bool]string{false: "deferred", true: "performed"}[execute], func(t *testing.T) {
			s := newScenario(t)
			s.upstream.Commit(t, "next", map[string]string{"README.md": "v2\n"})
			runner := newHostRunner()
			cfg := testConfig(t, s.work)
			cfg.Restart.Mode = restart.ModePM2
			c := newController(t, cfg, runner)

			result := c.Update(context.Background(), execute)
			require.True(t, result.OK, result.Error)
			assert.True(t, result.RestartRequired)
			assert.Equal(t, execute, result.RestartPerformed)
			if execute {
				assert.Equal(t, []string{"pm2 restart all"}, result.Steps)
				assert.Equal(t, []string{"pm2 restart all"}, runner.host())
			} else {
				assert.Equal(t, []string{entity.StepRestartDeferred}, result.Steps)
				assert.Empty(t, runner.host())
			}
		})
	}
}

func TestUpdateFailsOnDivergedHistory(t *testing.T) {
	s := newScenario(t)
	s.upstream.Commit(t, "upstream", map[string]string{"a.txt": "a\n"})
	local := gitfixture.Open(t, s.work).Commit(t, "local", map[string]string{"b.txt": "b\n"})

	c := newController(t, testConfig(t, s.work), newHostRunner())
	result := c.Update(context.Background(), true)
	assert.False(t, result.OK)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, local, result.Before.FullHash)
	assert.Equal(t, local, result.After.FullHash)
	assert.Empty(t, c.State().Load(), "failed runs do not touch the state")
	assert.Contains(t, readLog(t, c), "=== update failed: ")
}

func TestUpdatePostStepFailureStopsRun(t *testing.T) {
	s := newScenario(t)
	tip := s.upstream.Commit(t, "deps", map[string]string{"requirements.txt": "flask\n"})
	runner := newHostRunner()
	runner.fail["python -m pip install -r requirements.txt"] = true
	cfg := testConfig(t, s.work)
	cfg.Restart.Mode = restart.ModePM2
	c := newController(t, cfg, runner)

	result := c.Update(context.Background(), true)
	assert.False(t, result.OK)
	assert.Contains(t, result.Error, "python dependencies")
	assert.Equal(t, tip, result.After.FullHash, "the pull is not undone")
	assert.False(t, result.RestartPerformed)
	assert.Equal(t, []string{"python -m pip install -r requirements.txt"}, runner.host())
	assert.Empty(t, c.State().Load())
}

// cancelAfterRunner cancels the caller's context once a command starting
// with prefix has run.
type cancelAfterRunner struct {
	*hostRunner
	prefix string
	cancel context.CancelFunc
}

func (r cancelAfterRunner) Run(ctx context.Context, dir string, args []string, opts ...command.Option) (*command.Result, error) {
	res, err := r.hostRunner.Run(ctx, dir, args, opts...)
	if strings.HasPrefix(strings.Join(args, " "), r.prefix) {
		r.cancel()
	}
	return res, err
}

func TestUpdateCompletesAfterCallerCancels(t *testing.T) {
	s := newScenario(t)
	tip := s.upstream.Commit(t, "deps", map[string]string{"requirements.txt": "flask\n"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := cancelAfterRunner{hostRunner: newHostRunner(), prefix: "git pull", cancel: cancel}
	c := newController(t, testConfig(t, s.work), runner)

	result := c.Update(ctx, true)
	require.True(t, result.OK, result.Error)
	require.Error(t, ctx.Err())
	assert.Equal(t, tip, result.After.FullHash)
	assert.Equal(t, []string{"python -m pip install -r requirements.txt"}, runner.host())
	assert.Equal(t, tip, c.State().Load().LastKnownGood())
}

func TestMutationsIgnoreCancelledContext(t *testing.T) {
	s := newScenario(t)
	tip := s.upstream.Commit(t, "next", map[string]string{"README.md": "v2\n"})
	c := newController(t, testConfig(t, s.work), newHostRunner())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	updated := c.Update(ctx, true)
	require.True(t, updated.OK, updated.Error)
	assert.Equal(t, tip, updated.After.FullHash)

	rolled := c.Rollback(ctx, "", true)
	require.True(t, rolled.OK, rolled.Error)
	assert.Equal(t, s.base, rolled.After.FullHash)
}

func TestUpdateRecoversFromPanic(t *testing.T) {
	s := newScenario(t)
	s.upstream.Commit(t, "deps", map[string]string{"requirements.txt": "flask\n"})
	runner := newHostRunner()
	runner.panics = true
	c := newController(t, testConfig(t, s.work), runner)

	result := c.Update(context.Background(), true)
	assert.False(t, result.OK)
	assert.Contains(t, result.Error, "host command exploded")
	assert.Contains(t, readLog(t, c), "=== update failed: ")
}

func TestUpdateNotAWorkTree(t *testing.T) {
	gitfixture.RequireGit(t)
	c := newController(t, testConfig(t, t.TempDir()), newHostRunner())
	result := c.Update(context.Background(), true)
	assert.False(t, result.OK)
	assert.Equal(t, entity.ErrNotVersionControlled.Error(), result.Error)
	assert.Nil(t, result.Before)
	assert.Contains(t, readLog(t, c), "=== update skipped: ")
}

func TestRollbackWithoutTargetRunsNothing(t *testing.T) {
	c := newController(t, testConfig(t, t.TempDir()), refusingRunner{t})
	result := c.Rollback(context.Background(), "  ", true)
	assert.False(t, result.OK)
	assert.Equal(t, "rollback commit is not known", result.Error)
	assert.Nil(t, result.Before)
	assert.Nil(t, result.After)
	assert.Empty(t, result.Target)
}

func TestRollbackRejectsOptionLikeTarget(t *testing.T) {
	c := newController(t, testConfig(t, t.TempDir()), refusingRunner{t})
	result := c.Rollback(context.Background(), "--hard", true)
	assert.False(t, result.OK)
	assert.Contains(t, result.Error, entity.ErrInvalid.Error())
}

func TestRollbackTargetPrecedence(t *testing.T) {
	s := newScenario(t)
	second := s.upstream.Commit(t, "second", map[string]string{"README.md": "v2\n"})
	third := s.upstream.Commit(t, "third", map[string]string{"README.md": "v3\n"})

	c := newController(t, testConfig(t, s.work), newHostRunner())
	require.True(t, c.Update(context.Background(), true).OK)

	// previous_head wins over last_known_good.
	result := c.Rollback(context.Background(), "", true)
	require.True(t, result.OK, result.Error)
	assert.Equal(t, s.base, result.Target)
	assert.Equal(t, third, result.Before.FullHash)
	assert.Equal(t, s.base, result.After.FullHash)
	assert.Equal(t, []string{"git reset --hard " + s.base}, result.Steps)
	assert.ElementsMatch(t, []string{"README.md"}, result.ChangedFiles)

	state := c.State().Load()
	assert.Equal(t, s.base, state.String(entity.StateRolledBackTo))
	assert.Equal(t, s.base, state.LastKnownGood())
	assert.Equal(t, "2024-06-01T12:00:00Z", state.String(entity.StateRolledBackAt))

	// An explicit target wins over everything.
	result = c.Rollback(context.Background(), second, true)
	require.True(t, result.OK, result.Error)
	assert.Equal(t, second, result.After.FullHash)

	// Without previous_head, last_known_good is used.
	require.NoError(t, c.State().Save(entity.PersistentState{entity.StatePreviousHead: ""}))
	require.NoError(t, c.State().Save(entity.PersistentState{entity.StateLastKnownGood: third}))
	result = c.Rollback(context.Background(), "", true)
	require.True(t, result.OK, result.Error)
	assert.Equal(t, third, result.Target)
	assert.Equal(t, third, result.After.FullHash)

	log := readLog(t, c)
	assert.Contains(t, log, "=== rollback start -> "+s.base+" ===")
	assert.Contains(t, log, "=== rollback success ===")
}

func TestRollbackSnapshotsLocalChanges(t *testing.T) {
	s := newScenario(t)
	s.upstream.Commit(t, "second", map[string]string{"README.md": "v2\n"})
	c := newController(t, testConfig(t, s.work), newHostRunner())
	require.True(t, c.Update(context.Background(), true).OK)

	require.NoError(t, os.WriteFile(filepath.Join(s.work, "README.md"), []byte("hotfix\n"), 0o644))
	result := c.Rollback(context.Background(), "", false)
	require.True(t, result.OK, result.Error)
	require.NotEmpty(t, result.Snapshot)
	assert.FileExists(t, result.Snapshot)
	assert.True(t, strings.HasPrefix(filepath.Base(result.Snapshot), "rollback-"))
	assert.Equal(t, "snapshot "+result.Snapshot, result.Steps[0])

	data, err := os.ReadFile(filepath.Join(s.work, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestRollbackUnknownRevision(t *testing.T) {
	s := newScenario(t)
	c := newController(t, testConfig(t, s.work), newHostRunner())
	result := c.Rollback(context.Background(), "0000000000000000000000000000000000000000", true)
	assert.False(t, result.OK)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, s.base, result.Before.FullHash)
	assert.Equal(t, s.base, result.After.FullHash)
	assert.Contains(t, readLog(t, c), "=== rollback failed: ")
}

func TestLogTail(t *testing.T) {
	c := newController(t, testConfig(t, t.TempDir()), refusingRunner{t})
	assert.Empty(t, c.LogTail(40))
	for i := range 5 {
		c.updateLog.Append(strings.Repeat("line", i+1))
	}
	tail := c.LogTail(2)
	lines := strings.Split(tail, "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[1], "linelinelinelineline"))
}
