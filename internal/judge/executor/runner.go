// Package executor runs external commands and captures their output.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"hsoj/pkg/utils/logger"

	"github.com/google/shlex"
	"go.uber.org/zap"
)

const (
	// ExitSignaled is reported when the process ended without an exit code.
	ExitSignaled = -1
	// ExitSpawnFailed is reported when the process could not be started.
	ExitSpawnFailed = -2
)

// ExecResult holds what a finished command produced.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner runs one command line to completion.
type Runner interface {
	Run(ctx context.Context, command string) ExecResult
}

// ProcessRunner spawns commands as child processes. Commands are split with
// shell quoting rules but are not interpreted by a shell. No timeout is applied.
type ProcessRunner struct {
	dir string
	env []string
}

// Option configures a ProcessRunner.
type Option func(*ProcessRunner)

// WithDir sets the working directory of spawned processes.
func WithDir(dir string) Option {
	return func(r *ProcessRunner) { r.dir = dir }
}

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func WithEnv(env ...string) Option {
	return func(r *ProcessRunner) { r.env = append(r.env, env...) }
}

// NewProcessRunner creates a runner.
func NewProcessRunner(opts ...Option) *ProcessRunner {
	r := &ProcessRunner{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes command and waits until it exits and both output streams are drained.
func (r *ProcessRunner) Run(ctx context.Context, command string) ExecResult {
	args, err := shlex.Split(command)
	if err != nil {
		return spawnFailure(ctx, command, fmt.Errorf("split command failed: %w", err))
	}
	if len(args) == 0 {
		return spawnFailure(ctx, command, errors.New("empty command"))
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = r.dir
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug(ctx, "exec command", zap.String("command", command))
	err = cmd.Run()
	res := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// ExitCode is -1 when the process was terminated by a signal
		res.ExitCode = exitErr.ExitCode()
		return res
	}
	return spawnFailure(ctx, command, err)
}

func spawnFailure(ctx context.Context, command string, err error) ExecResult {
	logger.Warn(ctx, "spawn command failed", zap.String("command", command), zap.Error(err))
	return ExecResult{ExitCode: ExitSpawnFailed, Stderr: err.Error()}
}
