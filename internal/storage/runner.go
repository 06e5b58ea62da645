package storage

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"os/exec"
	"time"

	"github.com/paveg/ecomlake/internal/errors"
)

// CommandResult records one finished external command.
type CommandResult struct {
	Args     []string
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Err returns a CommandError when the command exited unsuccessfully.
func (r *CommandResult) Err() error {
	if r.ExitCode == 0 {
		return nil
	}
	return &errors.CommandError{
		Args:     r.Args,
		ExitCode: r.ExitCode,
		Stderr:   string(bytes.TrimSpace(r.Stderr)),
	}
}

// Runner executes external commands. A non-zero exit is reported through
// CommandResult.ExitCode, not as an error; the error is for commands that
// could not run at all.
type Runner interface {
	Run(ctx context.Context, stdin io.Reader, name string, args ...string) (*CommandResult, error)
}

// ExecRunner runs commands as child processes.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, stdin io.Reader, name string, args ...string) (*CommandResult, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := &CommandResult{
		Args:     append([]string{name}, args...),
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return result, nil
	case stderrors.As(err, &exitErr) && ctx.Err() == nil:
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	default:
		return result, &errors.CommandError{Args: result.Args, ExitCode: -1, Cause: err}
	}
}
