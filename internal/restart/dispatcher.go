package restart

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/yz4230/selfupdate/internal/command"
	"github.com/yz4230/selfupdate/internal/entity"
)

const (
	labelWorkingDir = "com.docker.compose.project.working_dir"
	labelService    = "com.docker.compose.service"
)

// ContainerLister is the part of the Docker client used to verify a compose
// restart.
type ContainerLister interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	Close() error
}

type Dispatcher struct {
	runner     command.Runner
	dir        string
	log        zerolog.Logger
	lookPath   func(string) (string, error)
	containers func() (ContainerLister, error)
}

type DispatcherOption func(*Dispatcher)

func WithLookPath(fn func(string) (string, error)) DispatcherOption {
	return func(d *Dispatcher) { d.lookPath = fn }
}

func WithContainerLister(fn func() (ContainerLister, error)) DispatcherOption {
	return func(d *Dispatcher) { d.containers = fn }
}

func WithLogger(log zerolog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = log }
}

// NewDispatcher creates a Dispatcher that runs restart commands in dir.
func NewDispatcher(runner command.Runner, dir string, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		runner:   runner,
		dir:      dir,
		log:      zerolog.Nop(),
		lookPath: exec.LookPath,
		containers: func() (ContainerLister, error) {
			return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Restart performs s and returns a short description of what was done.
func (d *Dispatcher) Restart(ctx context.Context, s Strategy, opts ...command.Option) (string, error) {
	run := func(args ...string) (*command.Result, error) {
		return d.runner.Run(ctx, d.dir, args, opts...)
	}

	switch s := s.(type) {
	case None:
		return "restart skipped", nil
	case ManagedService:
		if _, err := d.lookPath("sudo"); err == nil {
			res, err := d.runner.Run(ctx, d.dir, []string{"sudo", "-n", "systemctl", "restart", s.Unit}, append(opts, command.NonStrict())...)
			if err == nil && res.Success() {
				return "systemd restart: " + s.Unit, nil
			}
		}
		if _, err := run("systemctl", "restart", s.Unit); err != nil {
			return "", err
		}
		return "systemd restart: " + s.Unit, nil
	case ContainerOrchestration:
		args := []string{"docker", "compose"}
		if s.ComposeFile != "" {
			args = append(args, "-f", s.ComposeFile)
		}
		args = append(args, "up", "-d", "--build")
		if s.Service != "" {
			args = append(args, s.Service)
		}
		if _, err := run(args...); err != nil {
			return "", err
		}
		if s.Verify {
			if err := d.verifyCompose(ctx, s); err != nil {
				return "", err
			}
			return "docker compose up -d --build (verified)", nil
		}
		return "docker compose up -d --build", nil
	case ProcessManager:
		if _, err := run("pm2", "restart", s.Process); err != nil {
			return "", err
		}
		return "pm2 restart " + s.Process, nil
	case Custom:
		if _, err := run(s.Args...); err != nil {
			return "", err
		}
		return "custom restart: " + s.Command, nil
	default:
		return "", fmt.Errorf("%w: unsupported restart strategy %T", entity.ErrConfiguration, s)
	}
}

// projectDir is the directory docker compose records as the project's
// working directory.
func (d *Dispatcher) projectDir(s ContainerOrchestration) string {
	if s.ComposeFile == "" {
		return d.dir
	}
	file := s.ComposeFile
	if !filepath.IsAbs(file) {
		file = filepath.Join(d.dir, file)
	}
	return filepath.Dir(file)
}

func (d *Dispatcher) verifyCompose(ctx context.Context, s ContainerOrchestration) error {
	cli, err := d.containers()
	if err != nil {
		return fmt.Errorf("docker client: %w", err)
	}
	defer cli.Close()

	args := filters.NewArgs(filters.Arg("label", labelWorkingDir+"="+d.projectDir(s)))
	if s.Service != "" {
		args.Add("label", labelService+"="+s.Service)
	}
	list, err := cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return fmt.Errorf("list containers: %w", err)
	}
	if len(list) == 0 {
		return fmt.Errorf("%w: no containers found for compose project %s", entity.ErrCommandFailed, d.projectDir(s))
	}
	stopped := lo.FilterMap(list, func(c container.Summary, _ int) (string, bool) {
		return lo.FirstOr(c.Names, c.ID), string(c.State) != "running"
	})
	if len(stopped) > 0 {
		return fmt.Errorf("%w: containers not running after restart: %v", entity.ErrCommandFailed, stopped)
	}
	d.log.Info().Int("containers", len(list)).Msg("compose containers running")
	return nil
}
