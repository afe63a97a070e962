package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/samber/do"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yz4230/selfupdate/internal/config"
	"github.com/yz4230/selfupdate/internal/entity"
	"github.com/yz4230/selfupdate/internal/repository"
)

type fakeController struct {
	mu       sync.Mutex
	updates  int
	block    chan struct{}
	started  chan struct{}
	rollback *entity.RollbackResult
	update   *entity.UpdateRunResult
	lastTail int
}

func (f *fakeController) Status(ctx context.Context) *entity.UpdateStatus {
	return &entity.UpdateStatus{Branch: "main", Commits: []*entity.CommitRef{}, Errors: []string{}}
}

func (f *fakeController) Update(ctx context.Context, executeRestart bool) *entity.UpdateRunResult {
	f.mu.Lock()
	f.updates++
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	return f.update
}

func (f *fakeController) Rollback(ctx context.Context, target string, executeRestart bool) *entity.RollbackResult {
	return f.rollback
}

func (f *fakeController) LogTail(n int) string {
	f.lastTail = n
	return "tail"
}

func newInjector(t *testing.T, ctrl *fakeController) *do.Injector {
	t.Helper()
	db, err := repository.NewSQLiteDB(repository.InMemory)
	require.NoError(t, err)

	injector := do.New()
	cfg := config.DefaultConfig()
	do.ProvideValue(injector, cfg)
	do.ProvideValue[UpdateController](injector, ctrl)
	do.ProvideValue(injector, repository.NewDeploymentRepository(db))
	do.Provide(injector, NewMutationGuard)
	do.Provide(injector, NewGetUpdateStatusUsecase)
	do.Provide(injector, NewRunUpdateUsecase)
	do.Provide(injector, NewRollbackUsecase)
	do.Provide(injector, NewReadLogTailUsecase)
	do.Provide(injector, NewListDeploymentsUsecase)
	do.Provide(injector, NewGetDeploymentUsecase)
	do.Provide(injector, NewGetActiveDeploymentUsecase)
	return injector
}

func TestRunUpdateRecordsHistory(t *testing.T) {
	ctx := context.Background()
	ctrl := &fakeController{update: &entity.UpdateRunResult{
		OK: true, Branch: "main",
		Before: &entity.CommitRef{FullHash: "aaa"}, After: &entity.CommitRef{FullHash: "bbb"}, Remote: &entity.CommitRef{FullHash: "bbb"},
		Steps: []string{"npm ci"},
	}}
	injector := newInjector(t, ctrl)

	result, err := do.MustInvoke[RunUpdateUsecase](injector).Execute(ctx, true)
	require.NoError(t, err)
	assert.True(t, result.OK)

	deps, err := do.MustInvoke[ListDeploymentsUsecase](injector).Execute(ctx, 0)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, entity.DeploymentKindUpdate, deps[0].Kind)
	assert.Equal(t, entity.DeploymentStatusSuccess, deps[0].Status)
	assert.True(t, deps[0].IsActive)
	assert.Equal(t, "aaa", deps[0].BeforeSHA)
	assert.Equal(t, "bbb", deps[0].AfterSHA)

	active, err := do.MustInvoke[GetActiveDeploymentUsecase](injector).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, deps[0].ID, active.ID)

	got, err := do.MustInvoke[GetDeploymentUsecase](injector).Execute(ctx, deps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, deps[0].ID, got.ID)

	_, err = do.MustInvoke[GetDeploymentUsecase](injector).Execute(ctx, 999)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestRunUpdateNoopAndFailure(t *testing.T) {
	ctx := context.Background()
	ctrl := &fakeController{update: &entity.UpdateRunResult{
		OK: true, Before: &entity.CommitRef{FullHash: "aaa"}, After: &entity.CommitRef{FullHash: "aaa"},
		Steps: []string{entity.StepNoUpdates},
	}}
	injector := newInjector(t, ctrl)
	_, err := do.MustInvoke[RunUpdateUsecase](injector).Execute(ctx, true)
	require.NoError(t, err)

	ctrl.update = &entity.UpdateRunResult{OK: false, Error: "boom", Steps: []string{}}
	_, err = do.MustInvoke[RunUpdateUsecase](injector).Execute(ctx, true)
	require.NoError(t, err)

	deps, err := do.MustInvoke[ListDeploymentsUsecase](injector).Execute(ctx, 10)
	require.NoError(t, err)
	require.Len(t, deps, 2)
	assert.Equal(t, entity.DeploymentStatusFailed, deps[0].Status)
	assert.Equal(t, "boom", deps[0].Error)
	assert.Equal(t, entity.DeploymentStatusNoop, deps[1].Status)
	assert.False(t, deps[0].IsActive)
	assert.False(t, deps[1].IsActive)

	_, err = do.MustInvoke[GetActiveDeploymentUsecase](injector).Execute(ctx)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestMutationsAreExclusive(t *testing.T) {
	ctx := context.Background()
	ctrl := &fakeController{
		update:   &entity.UpdateRunResult{OK: true, Steps: []string{entity.StepNoUpdates}},
		rollback: &entity.RollbackResult{OK: true, Target: "aaa", Steps: []string{}},
		block:    make(chan struct{}),
		started:  make(chan struct{}),
	}
	injector := newInjector(t, ctrl)
	runUpdate := do.MustInvoke[RunUpdateUsecase](injector)
	rollback := do.MustInvoke[RollbackUsecase](injector)

	done := make(chan error, 1)
	go func() {
		_, err := runUpdate.Execute(ctx, true)
		done <- err
	}()
	<-ctrl.started

	_, err := runUpdate.Execute(ctx, true)
	assert.True(t, errors.Is(err, entity.ErrBusy))
	_, err = rollback.Execute(ctx, "", true)
	assert.True(t, errors.Is(err, entity.ErrBusy))

	close(ctrl.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, ctrl.updates)

	ctrl.started, ctrl.block = nil, nil
	res, err := rollback.Execute(ctx, "", true)
	require.NoError(t, err)
	assert.True(t, res.OK)

	deps, err := do.MustInvoke[ListDeploymentsUsecase](injector).Execute(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, deps, 2, "busy rejections are not recorded")
	assert.Equal(t, entity.DeploymentKindRollback, deps[0].Kind)
}

func TestReadLogTailDefaults(t *testing.T) {
	ctrl := &fakeController{}
	injector := newInjector(t, ctrl)
	uc := do.MustInvoke[ReadLogTailUsecase](injector)

	out, err := uc.Execute(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "tail", out)
	assert.Equal(t, config.DefaultLogTailLines, ctrl.lastTail)

	_, err = uc.Execute(context.Background(), -1)
	require.NoError(t, err)
	assert.Equal(t, -1, ctrl.lastTail)
}

func TestGetUpdateStatus(t *testing.T) {
	injector := newInjector(t, &fakeController{})
	status, err := do.MustInvoke[GetUpdateStatusUsecase](injector).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "main", status.Branch)
}
