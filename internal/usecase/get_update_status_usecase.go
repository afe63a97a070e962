package usecase

import (
	"context"

	"github.com/samber/do"
	"github.com/yz4230/selfupdate/internal/entity"
)

type GetUpdateStatusUsecase interface {
	Execute(ctx context.Context) (*entity.UpdateStatus, error)
}

type getUpdateStatusUsecaseImpl struct {
	controller UpdateController
}

// Execute implements GetUpdateStatusUsecase.
func (g *getUpdateStatusUsecaseImpl) Execute(ctx context.Context) (*entity.UpdateStatus, error) {
	return g.controller.Status(ctx), nil
}

func NewGetUpdateStatusUsecase(injector *do.Injector) (GetUpdateStatusUsecase, error) {
	return &getUpdateStatusUsecaseImpl{
		controller: do.MustInvoke[UpdateController](injector),
	}, nil
}
