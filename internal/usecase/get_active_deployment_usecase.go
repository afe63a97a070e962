package usecase

import (
	"context"

	"github.com/samber/do"
	"github.com/yz4230/selfupdate/internal/entity"
	"github.com/yz4230/selfupdate/internal/repository"
)

// GetActiveDeploymentUsecase returns the last successful update or rollback.
type GetActiveDeploymentUsecase interface {
	Execute(ctx context.Context) (*entity.Deployment, error)
}

type getActiveDeploymentUsecaseImpl struct {
	deployments repository.DeploymentRepository
}

// Execute implements GetActiveDeploymentUsecase.
func (g *getActiveDeploymentUsecaseImpl) Execute(ctx context.Context) (*entity.Deployment, error) {
	dep, err := g.deployments.GetActive(ctx)
	if err != nil {
		return nil, repository.MapError(err)
	}
	return dep, nil
}

func NewGetActiveDeploymentUsecase(injector *do.Injector) (GetActiveDeploymentUsecase, error) {
	return &getActiveDeploymentUsecaseImpl{
		deployments: do.MustInvoke[repository.DeploymentRepository](injector),
	}, nil
}
