package usecase

import (
	"context"

	"github.com/yz4230/selfupdate/internal/entity"
)

// UpdateController is the part of updater.Controller the use cases drive.
type UpdateController interface {
	Status(ctx context.Context) *entity.UpdateStatus
	Update(ctx context.Context, executeRestart bool) *entity.UpdateRunResult
	Rollback(ctx context.Context, target string, executeRestart bool) *entity.RollbackResult
	LogTail(n int) string
}
