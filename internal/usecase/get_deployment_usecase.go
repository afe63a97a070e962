package usecase

import (
	"context"

	"github.com/samber/do"
	"github.com/yz4230/selfupdate/internal/entity"
	"github.com/yz4230/selfupdate/internal/repository"
)

type GetDeploymentUsecase interface {
	Execute(ctx context.Context, id uint) (*entity.Deployment, error)
}

type getDeploymentUsecaseImpl struct {
	deployments repository.DeploymentRepository
}

// Execute implements GetDeploymentUsecase.
func (g *getDeploymentUsecaseImpl) Execute(ctx context.Context, id uint) (*entity.Deployment, error) {
	dep, err := g.deployments.GetByID(ctx, id)
	if err != nil {
		return nil, repository.MapError(err)
	}
	return dep, nil
}

func NewGetDeploymentUsecase(injector *do.Injector) (GetDeploymentUsecase, error) {
	return &getDeploymentUsecaseImpl{
		deployments: do.MustInvoke[repository.DeploymentRepository](injector),
	}, nil
}
