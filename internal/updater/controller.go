// Package updater moves the deployed working tree between revisions: it
// reports pending updates, fast-forwards to the remote branch, rolls back to
// a known-good commit and restarts the service.
package updater

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/yz4230/selfupdate/internal/command"
	"github.com/yz4230/selfupdate/internal/config"
	"github.com/yz4230/selfupdate/internal/entity"
	"github.com/yz4230/selfupdate/internal/git"
	"github.com/yz4230/selfupdate/internal/poststep"
	"github.com/yz4230/selfupdate/internal/release"
	"github.com/yz4230/selfupdate/internal/restart"
	"github.com/yz4230/selfupdate/internal/storage"
	"github.com/yz4230/selfupdate/internal/updatelog"
)

// Controller holds no lock. Callers must not run Update and Rollback
// concurrently on the same working tree.
type Controller struct {
	dir            string
	remote         string
	branch         string
	changelogPath  string
	changelogLines int

	runner    command.Runner
	strategy  restart.Strategy
	restarter *restart.Dispatcher
	releases  *release.Fetcher
	state     storage.StateStore
	snapshots storage.Snapshotter
	probe     poststep.Probe
	updateLog *updatelog.Log
	log       zerolog.Logger
	now       func() time.Time
}

type Option func(*Controller)

func WithRestarter(d *restart.Dispatcher) Option {
	return func(c *Controller) { c.restarter = d }
}

func WithReleaseFetcher(f *release.Fetcher) Option {
	return func(c *Controller) { c.releases = f }
}

func WithProbe(p poststep.Probe) Option {
	return func(c *Controller) { c.probe = p }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New builds a Controller from cfg. An invalid restart configuration fails
// here rather than at the first update.
func New(cfg *config.Config, runner command.Runner, log zerolog.Logger, opts ...Option) (*Controller, error) {
	strategy, err := restart.Parse(cfg.Restart)
	if err != nil {
		return nil, err
	}
	c := &Controller{
		dir:            cfg.RepoRoot,
		remote:         cfg.Remote,
		branch:         strings.TrimSpace(cfg.Branch),
		changelogPath:  cfg.Changelog.Path,
		changelogLines: cfg.Changelog.MaxLines,
		runner:         runner,
		strategy:       strategy,
		restarter:      restart.NewDispatcher(runner, cfg.RepoRoot, restart.WithLogger(log)),
		releases: release.NewFetcher(cfg.Release.Repo,
			release.WithToken(cfg.Release.Token),
			release.WithBaseURL(cfg.Release.APIURL),
			release.WithTimeout(cfg.Release.Timeout),
			release.WithLogger(log),
		),
		state:     storage.NewStateStore(cfg.StatePath, log),
		probe:     poststep.NewDirProbe(cfg.RepoRoot),
		updateLog: updatelog.New(cfg.LogPath),
		log:       log,
		now:       time.Now,
	}
	if cfg.SnapshotDir != "" {
		c.snapshots = storage.NewSnapshotter(cfg.SnapshotDir, log)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Controller) State() storage.StateStore { return c.state }

// inspector returns a git inspector whose mutating commands are written to
// transcript (nil for read-only use).
func (c *Controller) inspector(transcript command.Transcript) *git.Inspector {
	return git.NewInspector(c.runner, c.dir, c.remote, transcript)
}

func (c *Controller) timestamp() string {
	return c.now().UTC().Format(time.RFC3339)
}

// Status reports whether the remote branch is ahead of the working tree. It
// never fails: problems are listed in Errors.
func (c *Controller) Status(ctx context.Context) *entity.UpdateStatus {
	status := &entity.UpdateStatus{Commits: []*entity.CommitRef{}, Errors: []string{}}
	status.Release = c.releases.Latest(ctx)
	if status.Release == nil {
		status.ChangelogExcerpt = release.ReadChangelogExcerpt(c.changelogPath, c.changelogLines)
	}

	insp := c.inspector(nil)
	if !insp.IsWorkTree(ctx) {
		status.Branch = lo.CoalesceOrEmpty(c.branch, "main")
		status.Errors = append(status.Errors, entity.ErrNotVersionControlled.Error())
		return status
	}

	status.Branch = insp.ResolveBranch(ctx, c.branch)
	remoteRef := insp.RemoteRef(status.Branch)
	if !insp.Fetch(ctx, status.Branch) {
		status.Errors = append(status.Errors, fmt.Sprintf("git fetch %s %s failed", c.remote, status.Branch))
	}
	status.Current = insp.Resolve(ctx, "HEAD")
	status.Remote = insp.Resolve(ctx, remoteRef)
	if status.Current == nil {
		status.Errors = append(status.Errors, "cannot resolve current commit (HEAD)")
	}
	if status.Remote == nil {
		status.Errors = append(status.Errors, "cannot resolve commit "+remoteRef)
	}
	status.HasUpdates = status.Current != nil && status.Remote != nil && !entity.SameRevision(status.Current, status.Remote)
	if status.HasUpdates {
		status.Commits = append(status.Commits, insp.CommitsBetween(ctx, "HEAD", status.Remote.FullHash, entity.MaxStatusCommits)...)
	}
	return status
}

// Update fast-forwards the working tree to the remote branch, runs the
// post-update steps and, when executeRestart is set and a restart mode is
// configured, restarts the service. Failures are reported in the result.
// Cancelling ctx does not interrupt a run; its values are kept.
func (c *Controller) Update(ctx context.Context, executeRestart bool) (result *entity.UpdateRunResult) {
	// A started run completes even if the caller goes away. Only the per-command
	// timeout can stop an external command.
	ctx = context.WithoutCancel(ctx)
	insp := c.inspector(c.updateLog)
	result = &entity.UpdateRunResult{
		Branch:       c.branch,
		ChangedFiles: []string{},
		Steps:        []string{},
	}

	if !insp.IsWorkTree(ctx) {
		result.Branch = lo.CoalesceOrEmpty(c.branch, "main")
		result.Error = entity.ErrNotVersionControlled.Error()
		c.updateLog.Marker("update skipped: " + result.Error)
		c.log.Warn().Str("dir", c.dir).Msg("update skipped: not a git working tree")
		return result
	}

	c.updateLog.Marker("update start")
	c.log.Info().Str("dir", c.dir).Msg("update started")
	result.Before = insp.Resolve(ctx, "HEAD")

	defer func() {
		if r := recover(); r != nil {
			c.failUpdate(ctx, insp, result, fmt.Errorf("%w: panic: %v", entity.ErrInternal, r))
		}
	}()

	if err := c.update(ctx, insp, result, executeRestart); err != nil {
		c.failUpdate(ctx, insp, result, err)
		return result
	}
	return result
}

func (c *Controller) update(ctx context.Context, insp *git.Inspector, result *entity.UpdateRunResult, executeRestart bool) error {
	result.Branch = insp.ResolveBranch(ctx, c.branch)
	if !insp.Fetch(ctx, result.Branch) {
		c.updateLog.Append("fetch failed, comparing against the last fetched state")
	}
	result.Remote = insp.Resolve(ctx, insp.RemoteRef(result.Branch))
	if result.Before == nil || result.Remote == nil {
		result.After = result.Before
		return entity.ErrUnresolvableRevision
	}
	if entity.SameRevision(result.Before, result.Remote) {
		result.OK = true
		result.After = result.Before
		result.Steps = []string{entity.StepNoUpdates}
		c.updateLog.Append("No updates available")
		c.log.Info().Str("head", result.Before.ShortHash).Msg("already up to date")
		return nil
	}

	result.ChangedFiles = orEmpty(insp.ChangedFiles(ctx, "HEAD", result.Remote.FullHash))
	if err := insp.PullFastForward(ctx, result.Branch); err != nil {
		return err
	}
	for _, step := range poststep.Select(result.ChangedFiles, c.probe) {
		if _, err := c.runner.Run(ctx, c.dir, step.Args, command.WithTranscript(c.updateLog)); err != nil {
			return fmt.Errorf("%s: %w", step.Name, err)
		}
		result.Steps = append(result.Steps, step.String())
	}

	if err := c.restartIfRequested(ctx, executeRestart, &result.Steps, &result.RestartRequired, &result.RestartPerformed); err != nil {
		return err
	}

	result.After = insp.Resolve(ctx, "HEAD")
	if err := c.state.Save(entity.PersistentState{
		entity.StateUpdatedAt:     c.timestamp(),
		entity.StateBranch:        result.Branch,
		entity.StatePreviousHead:  result.Before.FullHash,
		entity.StateLastKnownGood: lo.CoalesceOrEmpty(result.After.Hash(), result.Before.FullHash),
	}); err != nil {
		return err
	}

	result.OK = true
	c.updateLog.Marker("update success")
	c.log.Info().
		Str("before", result.Before.ShortHash).
		Str("after", result.After.Hash()).
		Strs("steps", result.Steps).
		Msg("update finished")
	return nil
}

func (c *Controller) failUpdate(ctx context.Context, insp *git.Inspector, result *entity.UpdateRunResult, err error) {
	result.OK = false
	result.Error = err.Error()
	if after := insp.Resolve(ctx, "HEAD"); after != nil {
		result.After = after
	}
	c.updateLog.Marker("update failed: " + result.Error)
	c.log.Error().Err(err).Str("branch", result.Branch).Msg("update failed")
}

// restartIfRequested runs the configured restart, or records that it was
// deferred when executeRestart is false.
func (c *Controller) restartIfRequested(ctx context.Context, executeRestart bool, steps *[]string, required, performed *bool) error {
	*required = restart.Enabled(c.strategy)
	if !*required {
		return nil
	}
	if !executeRestart {
		*steps = append(*steps, entity.StepRestartDeferred)
		return nil
	}
	note, err := c.restarter.Restart(ctx, c.strategy, command.WithTranscript(c.updateLog))
	if err != nil {
		return fmt.Errorf("restart (%s): %w", c.strategy.Mode(), err)
	}
	*steps = append(*steps, note)
	*performed = true
	return nil
}

// Rollback hard-resets the working tree to target, or to the recorded
// previous head or last known good commit when target is empty. Like Update
// it ignores cancellation of ctx.
func (c *Controller) Rollback(ctx context.Context, target string, executeRestart bool) (result *entity.RollbackResult) {
	ctx = context.WithoutCancel(ctx)
	result = &entity.RollbackResult{
		Branch:       c.branch,
		ChangedFiles: []string{},
		Steps:        []string{},
	}

	state := c.state.Load()
	candidate := lo.CoalesceOrEmpty(strings.TrimSpace(target), strings.TrimSpace(state.PreviousHead()), strings.TrimSpace(state.LastKnownGood()))
	if candidate == "" {
		result.Error = entity.ErrRollbackTargetUnknown.Error()
		c.updateLog.Marker("rollback skipped: " + result.Error)
		c.log.Warn().Msg("rollback skipped: no target")
		return result
	}
	result.Target = candidate
	if strings.HasPrefix(candidate, "-") {
		result.Error = fmt.Errorf("%w: revision %q", entity.ErrInvalid, candidate).Error()
		c.updateLog.Marker("rollback skipped: " + result.Error)
		return result
	}

	insp := c.inspector(c.updateLog)
	if !insp.IsWorkTree(ctx) {
		result.Error = entity.ErrNotVersionControlled.Error()
		c.updateLog.Marker("rollback skipped: " + result.Error)
		c.log.Warn().Str("dir", c.dir).Msg("rollback skipped: not a git working tree")
		return result
	}

	result.Branch = lo.CoalesceOrEmpty(insp.CurrentBranch(ctx), c.branch)
	result.Before = insp.Resolve(ctx, "HEAD")
	result.RestartRequired = restart.Enabled(c.strategy)
	c.updateLog.Marker("rollback start -> " + candidate)
	c.log.Info().Str("target", candidate).Msg("rollback started")

	defer func() {
		if r := recover(); r != nil {
			c.failRollback(ctx, insp, result, fmt.Errorf("%w: panic: %v", entity.ErrInternal, r))
		}
	}()

	if err := c.rollback(ctx, insp, result, executeRestart); err != nil {
		c.failRollback(ctx, insp, result, err)
	}
	return result
}

func (c *Controller) rollback(ctx context.Context, insp *git.Inspector, result *entity.RollbackResult, executeRestart bool) error {
	if result.Before != nil {
		result.ChangedFiles = orEmpty(insp.ChangedFiles(ctx, result.Before.FullHash, result.Target))
	}

	if c.snapshots != nil {
		if dirty := insp.DirtyFiles(ctx); len(dirty) > 0 {
			path, err := c.snapshots.Snapshot(c.dir, dirty, "rollback")
			if err != nil {
				return fmt.Errorf("snapshot local changes: %w", err)
			}
			if path != "" {
				result.Snapshot = path
				result.Steps = append(result.Steps, "snapshot "+path)
				c.updateLog.Append("local changes saved to " + path)
			}
		}
	}

	if err := insp.ResetHard(ctx, result.Target); err != nil {
		return err
	}
	result.Steps = append(result.Steps, "git reset --hard "+result.Target)

	if err := c.restartIfRequested(ctx, executeRestart, &result.Steps, &result.RestartRequired, &result.RestartPerformed); err != nil {
		return err
	}

	result.After = insp.Resolve(ctx, "HEAD")
	if result.After != nil {
		if err := c.state.Save(entity.PersistentState{
			entity.StateRolledBackAt:  c.timestamp(),
			entity.StateRolledBackTo:  result.After.FullHash,
			entity.StateLastKnownGood: result.After.FullHash,
		}); err != nil {
			return err
		}
	}

	result.OK = true
	c.updateLog.Marker("rollback success")
	c.log.Info().
		Str("before", result.Before.Hash()).
		Str("after", result.After.Hash()).
		Msg("rollback finished")
	return nil
}

func (c *Controller) failRollback(ctx context.Context, insp *git.Inspector, result *entity.RollbackResult, err error) {
	result.OK = false
	result.Error = err.Error()
	result.After = insp.Resolve(ctx, "HEAD")
	c.updateLog.Marker("rollback failed: " + result.Error)
	c.log.Error().Err(err).Str("target", result.Target).Msg("rollback failed")
}

// LogTail returns the last n lines of the update log, or every line when
// n <= 0.
func (c *Controller) LogTail(n int) string {
	tail, err := c.updateLog.Tail(n)
	if err != nil {
		c.log.Warn().Err(err).Msg("read update log")
		return ""
	}
	return tail
}

// FollowLog streams new update log lines to w until ctx is done.
func (c *Controller) FollowLog(ctx context.Context, w io.Writer) error {
	return c.updateLog.Follow(ctx, w)
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
