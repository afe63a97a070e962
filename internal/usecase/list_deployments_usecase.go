package usecase

import (
	"context"

	"github.com/samber/do"
	"github.com/yz4230/selfupdate/internal/entity"
	"github.com/yz4230/selfupdate/internal/repository"
)

const DefaultDeploymentsLimit = 20

type ListDeploymentsUsecase interface {
	Execute(ctx context.Context, limit int) ([]*entity.Deployment, error)
}

type listDeploymentsUsecaseImpl struct {
	deployments repository.DeploymentRepository
}

// Execute implements ListDeploymentsUsecase.
func (l *listDeploymentsUsecaseImpl) Execute(ctx context.Context, limit int) ([]*entity.Deployment, error) {
	if limit <= 0 {
		limit = DefaultDeploymentsLimit
	}
	return l.deployments.List(ctx, limit)
}

func NewListDeploymentsUsecase(injector *do.Injector) (ListDeploymentsUsecase, error) {
	return &listDeploymentsUsecaseImpl{
		deployments: do.MustInvoke[repository.DeploymentRepository](injector),
	}, nil
}
