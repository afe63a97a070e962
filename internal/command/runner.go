// Package command runs external programs for the update controller with a
// bounded timeout, captured output and an optional transcript.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/yz4230/selfupdate/internal/entity"
)

const (
	DefaultTimeout = 300 * time.Second

	// waitDelay bounds how long Wait blocks on pipes still held open by
	// descendants after the process itself has exited or been killed.
	waitDelay = 5 * time.Second
)

// Transcript receives the command line and captured output of every run.
type Transcript interface {
	Append(text string)
}

type Result struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (r *Result) Success() bool { return r.ExitCode == 0 }

// Error is returned for a failed or timed out command. It unwraps to
// entity.ErrCommandFailed or entity.ErrTimedOut.
type Error struct {
	Kind    error
	Args    []string
	Result  *Result
	Timeout time.Duration
	cause   error
}

func (e *Error) Error() string {
	if e.Kind == entity.ErrTimedOut {
		return fmt.Sprintf("command timed out after %s: %s", e.Timeout, strings.Join(e.Args, " "))
	}
	if e.Result != nil {
		if s := strings.TrimSpace(e.Result.Stderr); s != "" {
			return s
		}
		if s := strings.TrimSpace(e.Result.Stdout); s != "" {
			return s
		}
	}
	if e.cause != nil {
		return e.cause.Error()
	}
	return "command failed"
}

func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Kind, e.cause}
	}
	return []error{e.Kind}
}

type Runner interface {
	Run(ctx context.Context, dir string, args []string, opts ...Option) (*Result, error)
}

type options struct {
	strict     bool
	timeout    time.Duration
	transcript Transcript
	env        []string
}

type Option func(*options)

// NonStrict returns the result even when the command exits non-zero.
func NonStrict() Option {
	return func(o *options) { o.strict = false }
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithTranscript(t Transcript) Option {
	return func(o *options) { o.transcript = t }
}

// WithEnv adds KEY=VALUE pairs on top of the default environment.
func WithEnv(kv ...string) Option {
	return func(o *options) { o.env = append(o.env, kv...) }
}

type ExecRunner struct {
	timeout time.Duration
	log     zerolog.Logger
}

// NewExecRunner creates a Runner backed by os/exec. A zero timeout means
// DefaultTimeout.
func NewExecRunner(timeout time.Duration, log zerolog.Logger) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ExecRunner{timeout: timeout, log: log}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, dir string, args []string, opts ...Option) (*Result, error) {
	o := options{strict: true, timeout: r.timeout}
	for _, opt := range opts {
		opt(&o)
	}
	if len(args) == 0 {
		return nil, &Error{Kind: entity.ErrCommandFailed, cause: errors.New("empty command")}
	}

	line := strings.Join(args, " ")
	if o.transcript != nil {
		o.transcript.Append("$ " + line)
	}

	runCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Env = commandEnv(o.env)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	killProcessGroupOnCancel(cmd)

	r.log.Debug().Strs("command", args).Str("dir", dir).Msg("executing command")
	start := time.Now()
	err := cmd.Run()

	res := &Result{Args: args, Stdout: stdout.String(), Stderr: stderr.String()}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res.ExitCode = -1
		cmdErr := &Error{Kind: entity.ErrTimedOut, Args: args, Result: res, Timeout: o.timeout}
		if o.transcript != nil {
			o.transcript.Append(cmdErr.Error())
		}
		r.log.Warn().Strs("command", args).Dur("timeout", o.timeout).Msg("command timed out")
		return res, cmdErr
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		// The process could not be started (missing binary, bad dir) or
		// the caller's context ended.
		res.ExitCode = -1
		if res.Stderr == "" {
			res.Stderr = err.Error()
		}
	}

	if o.transcript != nil {
		if s := strings.TrimSpace(res.Stdout); s != "" {
			o.transcript.Append(s)
		}
		if s := strings.TrimSpace(res.Stderr); s != "" {
			o.transcript.Append(s)
		}
	}
	r.log.Debug().Strs("command", args).Int("exit_code", res.ExitCode).
		Int64("elapsed_ms", time.Since(start).Milliseconds()).Msg("command finished")

	if o.strict && res.ExitCode != 0 {
		return res, &Error{Kind: entity.ErrCommandFailed, Args: args, Result: res, cause: ctx.Err()}
	}
	return res, nil
}

// commandEnv disables interactive credential prompts unless the caller's
// environment already decided otherwise.
func commandEnv(extra []string) []string {
	env := os.Environ()
	for _, kv := range []string{"GIT_TERMINAL_PROMPT=0", "PIP_DISABLE_PIP_VERSION_CHECK=1"} {
		key := kv[:strings.IndexByte(kv, '=')]
		if _, ok := os.LookupEnv(key); !ok {
			env = append(env, kv)
		}
	}
	return append(env, extra...)
}
