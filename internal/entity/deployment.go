package entity

import "time"

type DeploymentKind string

const (
	DeploymentKindUpdate   DeploymentKind = "update"
	DeploymentKindRollback DeploymentKind = "rollback"
)

type DeploymentStatus string

const (
	DeploymentStatusSuccess DeploymentStatus = "success"
	DeploymentStatusNoop    DeploymentStatus = "noop"
	DeploymentStatusFailed  DeploymentStatus = "failed"
)

type Deployment struct {
	ID        uint             `json:"id"`
	Kind      DeploymentKind   `json:"kind"`
	Branch    string           `json:"branch"`
	BeforeSHA string           `json:"before_sha"`
	AfterSHA  string           `json:"after_sha"`
	Target    string           `json:"target,omitempty"`
	Status    DeploymentStatus `json:"status"`
	IsActive  bool             `json:"is_active"`
	Steps     []string         `json:"steps"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// DeploymentFromUpdate converts a run result into a history entry.
func DeploymentFromUpdate(r *UpdateRunResult) *Deployment {
	d := &Deployment{
		Kind:      DeploymentKindUpdate,
		Branch:    r.Branch,
		BeforeSHA: r.Before.Hash(),
		AfterSHA:  r.After.Hash(),
		Target:    r.Remote.Hash(),
		Steps:     r.Steps,
		Error:     r.Error,
	}
	switch {
	case !r.OK:
		d.Status = DeploymentStatusFailed
	case len(r.Steps) == 1 && r.Steps[0] == StepNoUpdates:
		d.Status = DeploymentStatusNoop
	default:
		d.Status = DeploymentStatusSuccess
	}
	return d
}

// DeploymentFromRollback converts a rollback result into a history entry.
func DeploymentFromRollback(r *RollbackResult) *Deployment {
	d := &Deployment{
		Kind:      DeploymentKindRollback,
		Branch:    r.Branch,
		BeforeSHA: r.Before.Hash(),
		AfterSHA:  r.After.Hash(),
		Target:    r.Target,
		Steps:     r.Steps,
		Error:     r.Error,
		Status:    DeploymentStatusSuccess,
	}
	if !r.OK {
		d.Status = DeploymentStatusFailed
	}
	return d
}
