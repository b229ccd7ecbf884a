// Package runner executes external programs as argument vectors. No code
// path in this package hands a string to a shell: the program is a fixed
// literal and every caller-supplied value travels as a discrete argument.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single invocation when the command sets none.
const DefaultTimeout = 5 * time.Minute

// ErrEmptyProgram is returned when a Command names no program.
var ErrEmptyProgram = errors.New("runner: program must not be empty")

// Command is one argv invocation.
type Command struct {
	// Program is the executable, resolved through PATH when not absolute.
	Program string

	// Args are passed verbatim as separate argv entries.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env replaces the process environment when non-nil.
	Env []string

	// Timeout overrides the runner default when positive.
	Timeout time.Duration
}

// String renders the command for logs. It is never executed.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Program)
	for _, a := range c.Args {
		parts = append(parts, fmt.Sprintf("%q", a))
	}
	return strings.Join(parts, " ")
}

// Result carries the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// ExitError reports a command that ran but did not succeed.
type ExitError struct {
	Program  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("runner: %s exited with %d: %s", e.Program, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("runner: %s: %v", e.Program, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Runner executes argv commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecRunner creates a runner. A zero timeout selects DefaultTimeout.
func NewExecRunner(timeout time.Duration, logger *slog.Logger) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{timeout: timeout, logger: logger}
}

// Compile-time interface check.
var _ Runner = (*ExecRunner)(nil)

// Run implements Runner. A non-zero exit returns the captured Result
// together with an *ExitError.
func (r *ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	if strings.TrimSpace(c.Program) == "" {
		return Result{}, ErrEmptyProgram
	}

	timeout := r.timeout
	if c.Timeout > 0 {
		timeout = c.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Program, c.Args...)
	cmd.Dir = c.Dir
	if c.Env != nil {
		cmd.Env = c.Env
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   strings.TrimSpace(stderr.String()),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	r.logger.Debug("runner: command finished",
		"command", c.String(),
		"exit_code", res.ExitCode,
		"duration", res.Duration,
	)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", timeout, ctx.Err())
		}
		return res, &ExitError{
			Program:  c.Program,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Err:      err,
		}
	}
	return res, nil
}

// Diagnostic extracts the most useful text from a failed invocation:
// captured stderr, then the error message, then "Unknown error".
func Diagnostic(err error) string {
	if err == nil {
		return ""
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Stderr != "" {
			return exitErr.Stderr
		}
		if exitErr.Err != nil {
			return exitErr.Err.Error()
		}
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Unknown error"
}
