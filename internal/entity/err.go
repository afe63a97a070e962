package entity

import "errors"

var (
	ErrNotFound  = errors.New("not found")
	ErrInvalid   = errors.New("invalid request")
	ErrConflict  = errors.New("conflict")
	ErrForbidden = errors.New("forbidden")
	ErrInternal  = errors.New("internal error")

	ErrBusy                  = errors.New("another update or rollback is in progress")
	ErrConfiguration         = errors.New("configuration error")
	ErrNotVersionControlled  = errors.New("application directory is not a git working tree")
	ErrUnresolvableRevision  = errors.New("cannot resolve current/remote commit")
	ErrNonFastForward        = errors.New("not possible to fast-forward")
	ErrCommandFailed         = errors.New("command failed")
	ErrTimedOut              = errors.New("command timed out")
	ErrRollbackTargetUnknown = errors.New("rollback commit is not known")
)
