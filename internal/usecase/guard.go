package usecase

import (
	"github.com/samber/do"
	"github.com/yz4230/selfupdate/internal/entity"
	"golang.org/x/sync/semaphore"
)

// MutationGuard lets at most one update or rollback run at a time within
// the process.
type MutationGuard struct {
	sem *semaphore.Weighted
}

// Run calls fn while holding the guard, or returns entity.ErrBusy without
// calling it.
func (g *MutationGuard) Run(fn func()) error {
	if !g.sem.TryAcquire(1) {
		return entity.ErrBusy
	}
	defer g.sem.Release(1)
	fn()
	return nil
}

func NewMutationGuard(injector *do.Injector) (*MutationGuard, error) {
	return &MutationGuard{sem: semaphore.NewWeighted(1)}, nil
}
