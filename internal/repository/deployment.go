package repository

import (
	"context"

	"github.com/yz4230/selfupdate/internal/entity"
	"gorm.io/gorm"
)

type DeploymentRepository interface {
	// Record stores dep. A successful deployment becomes the only active one.
	Record(ctx context.Context, dep *entity.Deployment) (*entity.Deployment, error)
	GetByID(ctx context.Context, id uint) (*entity.Deployment, error)
	GetActive(ctx context.Context) (*entity.Deployment, error)
	// List returns the newest deployments first. limit <= 0 returns all.
	List(ctx context.Context, limit int) ([]*entity.Deployment, error)
}

type deploymentRepositoryImpl struct {
	db *gorm.DB
}

func NewDeploymentRepository(db *gorm.DB) DeploymentRepository {
	return &deploymentRepositoryImpl{db: db}
}

// Record creates dep and, when it succeeded, clears the active flag of every
// other deployment in the same transaction.
func (r *deploymentRepositoryImpl) Record(ctx context.Context, dep *entity.Deployment) (*entity.Deployment, error) {
	var model Deployment
	model.FromEntity(dep)
	model.IsActive = dep.Status == entity.DeploymentStatusSuccess
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if model.IsActive {
			if _, err := gorm.G[Deployment](tx).Where("is_active = ?", true).Update(ctx, "is_active", false); err != nil {
				return err
			}
		}
		return gorm.G[Deployment](tx).Create(ctx, &model)
	})
	if err != nil {
		return nil, err
	}
	return model.ToEntity(), nil
}

// GetByID finds deployment by id.
func (r *deploymentRepositoryImpl) GetByID(ctx context.Context, id uint) (*entity.Deployment, error) {
	found, err := gorm.G[Deployment](r.db).Where("id = ?", id).First(ctx)
	if err != nil {
		return nil, err
	}
	return found.ToEntity(), nil
}

// GetActive finds the deployment currently running.
func (r *deploymentRepositoryImpl) GetActive(ctx context.Context) (*entity.Deployment, error) {
	found, err := gorm.G[Deployment](r.db).Where("is_active = ?", true).Order("id desc").First(ctx)
	if err != nil {
		return nil, err
	}
	return found.ToEntity(), nil
}

// List returns deployments, newest first.
func (r *deploymentRepositoryImpl) List(ctx context.Context, limit int) ([]*entity.Deployment, error) {
	q := gorm.G[Deployment](r.db).Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	founds, err := q.Find(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]*entity.Deployment, len(founds))
	for i, f := range founds {
		res[i] = f.ToEntity()
	}
	return res, nil
}
