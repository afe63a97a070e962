package usecase

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/samber/do"
	"github.com/yz4230/selfupdate/internal/entity"
	"github.com/yz4230/selfupdate/internal/repository"
)

type RunUpdateUsecase interface {
	Execute(ctx context.Context, executeRestart bool) (*entity.UpdateRunResult, error)
}

type runUpdateUsecaseImpl struct {
	controller  UpdateController
	guard       *MutationGuard
	deployments repository.DeploymentRepository
}

// Execute implements RunUpdateUsecase. It fails only with entity.ErrBusy;
// update failures are part of the result.
func (r *runUpdateUsecaseImpl) Execute(ctx context.Context, executeRestart bool) (*entity.UpdateRunResult, error) {
	var result *entity.UpdateRunResult
	if err := r.guard.Run(func() {
		result = r.controller.Update(ctx, executeRestart)
	}); err != nil {
		return nil, err
	}
	recordDeployment(ctx, r.deployments, entity.DeploymentFromUpdate(result))
	return result, nil
}

// recordDeployment stores a history row. History is best effort and never
// changes the outcome of the run.
func recordDeployment(ctx context.Context, repo repository.DeploymentRepository, dep *entity.Deployment) {
	if _, err := repo.Record(ctx, dep); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("kind", string(dep.Kind)).Msg("failed to record deployment")
	}
}

func NewRunUpdateUsecase(injector *do.Injector) (RunUpdateUsecase, error) {
	return &runUpdateUsecaseImpl{
		controller:  do.MustInvoke[UpdateController](injector),
		guard:       do.MustInvoke[*MutationGuard](injector),
		deployments: do.MustInvoke[repository.DeploymentRepository](injector),
	}, nil
}
