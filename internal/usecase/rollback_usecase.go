package usecase

import (
	"context"

	"github.com/samber/do"
	"github.com/yz4230/selfupdate/internal/entity"
	"github.com/yz4230/selfupdate/internal/repository"
)

type RollbackUsecase interface {
	Execute(ctx context.Context, target string, executeRestart bool) (*entity.RollbackResult, error)
}

type rollbackUsecaseImpl struct {
	controller  UpdateController
	guard       *MutationGuard
	deployments repository.DeploymentRepository
}

// Execute implements RollbackUsecase.
func (r *rollbackUsecaseImpl) Execute(ctx context.Context, target string, executeRestart bool) (*entity.RollbackResult, error) {
	var result *entity.RollbackResult
	if err := r.guard.Run(func() {
		result = r.controller.Rollback(ctx, target, executeRestart)
	}); err != nil {
		return nil, err
	}
	recordDeployment(ctx, r.deployments, entity.DeploymentFromRollback(result))
	return result, nil
}

func NewRollbackUsecase(injector *do.Injector) (RollbackUsecase, error) {
	return &rollbackUsecaseImpl{
		controller:  do.MustInvoke[UpdateController](injector),
		guard:       do.MustInvoke[*MutationGuard](injector),
		deployments: do.MustInvoke[repository.DeploymentRepository](injector),
	}, nil
}
