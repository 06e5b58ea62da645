package errors

import (
	"fmt"
	"strings"
)

// StageError tags a failure with the pipeline stage that produced it.
type StageError struct {
	Stage string
	Cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// NewStageError wraps err with the stage name. A nil err yields nil.
func NewStageError(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Cause: err}
}

// CommandError reports an external command that exited unsuccessfully.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Cause    error // start/wait error, nil when the command ran and exited non-zero
}

func (e *CommandError) Error() string {
	cmd := strings.Join(e.Args, " ")
	if e.Cause != nil {
		return fmt.Sprintf("command %q failed: %v", cmd, e.Cause)
	}
	stderr := strings.TrimSpace(e.Stderr)
	if stderr == "" {
		return fmt.Sprintf("command %q exited with status %d", cmd, e.ExitCode)
	}
	return fmt.Sprintf("command %q exited with status %d: %s", cmd, e.ExitCode, stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Cause
}
