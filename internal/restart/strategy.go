// Package restart parses the configured restart mode and performs it after a
// successful update or rollback.
package restart

import (
	"fmt"
	"strings"

	"github.com/yz4230/selfupdate/internal/config"
	"github.com/yz4230/selfupdate/internal/entity"
	"mvdan.cc/sh/v3/shell"
)

const (
	ModeNone          = "none"
	ModeSystemd       = "systemd"
	ModeDockerCompose = "docker_compose"
	ModePM2           = "pm2"
	ModeCustom        = "custom"
)

// Strategy is one of None, ManagedService, ContainerOrchestration,
// ProcessManager or Custom.
type Strategy interface {
	Mode() string
	strategy()
}

type None struct{}

// ManagedService restarts a systemd unit.
type ManagedService struct {
	Unit string
}

// ContainerOrchestration rebuilds and restarts a docker compose project.
type ContainerOrchestration struct {
	ComposeFile string
	Service     string
	// Verify checks through the Docker API that the project's containers
	// are running afterwards.
	Verify bool
}

type ProcessManager struct {
	Process string
}

type Custom struct {
	Command string
	Args    []string
}

func (None) Mode() string                   { return ModeNone }
func (ManagedService) Mode() string         { return ModeSystemd }
func (ContainerOrchestration) Mode() string { return ModeDockerCompose }
func (ProcessManager) Mode() string         { return ModePM2 }
func (Custom) Mode() string                 { return ModeCustom }

func (None) strategy()                   {}
func (ManagedService) strategy()         {}
func (ContainerOrchestration) strategy() {}
func (ProcessManager) strategy()         {}
func (Custom) strategy()                 {}

// Enabled reports whether s actually restarts anything.
func Enabled(s Strategy) bool {
	if s == nil {
		return false
	}
	_, none := s.(None)
	return !none
}

// Parse converts the restart configuration into a Strategy. Every invalid
// combination is an entity.ErrConfiguration.
func Parse(cfg config.RestartConfig) (Strategy, error) {
	switch mode := strings.ToLower(strings.TrimSpace(cfg.Mode)); mode {
	case "", ModeNone:
		return None{}, nil
	case ModeSystemd:
		unit := strings.TrimSpace(cfg.Unit)
		if unit == "" {
			return nil, fmt.Errorf("%w: restart.unit is required for systemd mode", entity.ErrConfiguration)
		}
		return ManagedService{Unit: unit}, nil
	case ModeDockerCompose:
		return ContainerOrchestration{
			ComposeFile: strings.TrimSpace(cfg.ComposeFile),
			Service:     strings.TrimSpace(cfg.ComposeService),
			Verify:      cfg.ComposeVerify,
		}, nil
	case ModePM2:
		process := strings.TrimSpace(cfg.Process)
		if process == "" {
			process = "all"
		}
		return ProcessManager{Process: process}, nil
	case ModeCustom:
		command := strings.TrimSpace(cfg.CustomCommand)
		if command == "" {
			return nil, fmt.Errorf("%w: restart.custom_command is empty", entity.ErrConfiguration)
		}
		args, err := shell.Fields(command, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: restart.custom_command: %v", entity.ErrConfiguration, err)
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("%w: restart.custom_command is invalid", entity.ErrConfiguration)
		}
		return Custom{Command: command, Args: args}, nil
	default:
		return nil, fmt.Errorf("%w: unknown restart mode %q", entity.ErrConfiguration, mode)
	}
}
