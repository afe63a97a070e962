package usecase

import (
	"context"

	"github.com/samber/do"
	"github.com/yz4230/selfupdate/internal/config"
)

type ReadLogTailUsecase interface {
	// Execute returns the last lines of the update log. lines == 0 uses the
	// configured default; lines < 0 returns the whole log.
	Execute(ctx context.Context, lines int) (string, error)
}

type readLogTailUsecaseImpl struct {
	controller   UpdateController
	defaultLines int
}

// Execute implements ReadLogTailUsecase.
func (r *readLogTailUsecaseImpl) Execute(ctx context.Context, lines int) (string, error) {
	if lines == 0 {
		lines = r.defaultLines
	}
	return r.controller.LogTail(lines), nil
}

func NewReadLogTailUsecase(injector *do.Injector) (ReadLogTailUsecase, error) {
	cfg := do.MustInvoke[*config.Config](injector)
	return &readLogTailUsecaseImpl{
		controller:   do.MustInvoke[UpdateController](injector),
		defaultLines: cfg.LogTailLines,
	}, nil
}
