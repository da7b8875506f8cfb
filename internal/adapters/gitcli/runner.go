// Package gitcli runs network-bound and commit subcommands through the git binary.
// go-git does not reuse the user's credential helpers and SSH agent setup, so
// fetch, push, pull and commit go through the same binary the user runs by hand.
package gitcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/MyCarrier-DevOps/trailsync/internal/domain"
)

// Logger defines the logging interface for the command runner.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
}

// DefaultBinary is the git executable looked up on PATH.
const DefaultBinary = "git"

// Runner implements domain.CommandRunner with os/exec.
type Runner struct {
	binary  string
	timeout time.Duration
	env     []string
	logger  Logger
}

// Option customizes a Runner.
type Option func(*Runner)

// WithBinary sets the git executable.
func WithBinary(binary string) Option {
	return func(r *Runner) {
		if binary != "" {
			r.binary = binary
		}
	}
}

// WithTimeout bounds every invocation. Non-positive values keep the default.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func WithEnv(env ...string) Option {
	return func(r *Runner) {
		r.env = append(r.env, env...)
	}
}

// NewRunner creates a Runner. Credential prompts are disabled so a network
// command can never wait on a terminal that nobody is watching.
func NewRunner(log Logger, opts ...Option) *Runner {
	r := &Runner{
		binary:  DefaultBinary,
		timeout: domain.DefaultCommandTimeout,
		env:     []string{"GIT_TERMINAL_PROMPT=0"},
		logger:  log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fetch runs `git fetch <remote>`.
func (r *Runner) Fetch(ctx context.Context, dir, remote string) (*domain.CommandResult, error) {
	return r.run(ctx, dir, "fetch", remote)
}

// Push runs `git push <remote> <branch>`.
func (r *Runner) Push(ctx context.Context, dir, remote, branch string) (*domain.CommandResult, error) {
	return r.run(ctx, dir, "push", remote, branch)
}

// Pull runs `git pull <remote> <branch> -X theirs`, resolving conflicting hunks
// in favor of the incoming side.
func (r *Runner) Pull(ctx context.Context, dir, remote, branch string) (*domain.CommandResult, error) {
	return r.run(ctx, dir, "pull", remote, branch, "-X", "theirs")
}

// Commit runs `git commit -m <message>`.
func (r *Runner) Commit(ctx context.Context, dir, message string) (*domain.CommandResult, error) {
	return r.run(ctx, dir, "commit", "-m", message)
}

// run executes the binary in dir and captures both output streams.
// Returns domain.ErrCommandTimeout when the time bound expires and
// domain.ErrCommandFailed on a non-zero exit.
func (r *Runner) run(ctx context.Context, dir string, args ...string) (*domain.CommandResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), r.env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	result := &domain.CommandResult{
		Args:     args,
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	fields := map[string]interface{}{
		"dir":         dir,
		"args":        strings.Join(args, " "),
		"exit_code":   result.ExitCode,
		"duration_ms": result.Duration.Milliseconds(),
		"stdout":      result.Stdout,
		"stderr":      result.Stderr,
	}

	if err == nil {
		r.logger.Debug(ctx, "git command finished", fields)
		return result, nil
	}

	r.logger.Warn(ctx, "git command failed", fields)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return result, fmt.Errorf("%w after %s: git %s", domain.ErrCommandTimeout, r.timeout, args[0])
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return result, fmt.Errorf("%w: git %s exited with status %d: %s",
			domain.ErrCommandFailed, args[0], result.ExitCode, strings.TrimSpace(result.Stderr))
	}

	return result, fmt.Errorf("%w: git %s: %w", domain.ErrCommandFailed, args[0], err)
}
