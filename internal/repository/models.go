package repository

import (
	"github.com/yz4230/selfupdate/internal/entity"
	"gorm.io/gorm"
)

type Deployment struct {
	gorm.Model
	Kind      string `gorm:"index"`
	Branch    string
	BeforeSHA string
	AfterSHA  string
	Target    string
	Status    string
	IsActive  bool     `gorm:"index"`
	Steps     []string `gorm:"serializer:json"`
	Error     string
}

func (d *Deployment) ToEntity() *entity.Deployment {
	steps := d.Steps
	if steps == nil {
		steps = []string{}
	}
	return &entity.Deployment{
		ID:        d.ID,
		Kind:      entity.DeploymentKind(d.Kind),
		Branch:    d.Branch,
		BeforeSHA: d.BeforeSHA,
		AfterSHA:  d.AfterSHA,
		Target:    d.Target,
		Status:    entity.DeploymentStatus(d.Status),
		IsActive:  d.IsActive,
		Steps:     steps,
		Error:     d.Error,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func (d *Deployment) FromEntity(e *entity.Deployment) {
	d.ID = e.ID
	d.Kind = string(e.Kind)
	d.Branch = e.Branch
	d.BeforeSHA = e.BeforeSHA
	d.AfterSHA = e.AfterSHA
	d.Target = e.Target
	d.Status = string(e.Status)
	d.IsActive = e.IsActive
	d.Steps = e.Steps
	d.Error = e.Error
}
