// Package app wires the controller, its storage and the use cases into a
// samber/do injector shared by the HTTP server and the CLI.
package app

import (
	"github.com/rs/zerolog"
	"github.com/samber/do"
	"github.com/yz4230/selfupdate/internal/command"
	"github.com/yz4230/selfupdate/internal/config"
	"github.com/yz4230/selfupdate/internal/repository"
	"github.com/yz4230/selfupdate/internal/updater"
	"github.com/yz4230/selfupdate/internal/usecase"
	"gorm.io/gorm"
)

// NewInjector registers every service lazily; nothing touches the disk or
// the network until a use case is invoked.
func NewInjector(cfg *config.Config, log zerolog.Logger) *do.Injector {
	injector := do.New()
	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, log)

	do.Provide(injector, func(i *do.Injector) (command.Runner, error) {
		return command.NewExecRunner(cfg.CommandTimeout, log), nil
	})
	do.Provide(injector, func(i *do.Injector) (*updater.Controller, error) {
		return updater.New(cfg, do.MustInvoke[command.Runner](i), log)
	})
	do.Provide(injector, func(i *do.Injector) (usecase.UpdateController, error) {
		return do.MustInvoke[*updater.Controller](i), nil
	})
	do.Provide(injector, func(i *do.Injector) (*gorm.DB, error) {
		return repository.NewSQLiteDB(cfg.HistoryPath)
	})
	do.Provide(injector, func(i *do.Injector) (repository.DeploymentRepository, error) {
		return repository.NewDeploymentRepository(do.MustInvoke[*gorm.DB](i)), nil
	})
	do.Provide(injector, usecase.NewMutationGuard)
	do.Provide(injector, usecase.NewGetUpdateStatusUsecase)
	do.Provide(injector, usecase.NewRunUpdateUsecase)
	do.Provide(injector, usecase.NewRollbackUsecase)
	do.Provide(injector, usecase.NewReadLogTailUsecase)
	do.Provide(injector, usecase.NewListDeploymentsUsecase)
	do.Provide(injector, usecase.NewGetDeploymentUsecase)
	do.Provide(injector, usecase.NewGetActiveDeploymentUsecase)
	return injector
}
