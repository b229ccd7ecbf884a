// Package runnertest provides test doubles for the runner package.
package runnertest

import (
	"context"
	"sync"

	"github.com/flemzord/snapkeep/internal/runner"
)

// Recorder is a runner.Runner that records every command and answers with
// RunFunc, or an empty successful Result when RunFunc is nil.
type Recorder struct {
	RunFunc func(cmd runner.Command) (runner.Result, error)

	mu       sync.Mutex
	commands []runner.Command
}

// Compile-time interface check.
var _ runner.Runner = (*Recorder)(nil)

// Run implements runner.Runner.
func (r *Recorder) Run(_ context.Context, cmd runner.Command) (runner.Result, error) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	r.mu.Unlock()

	if r.RunFunc != nil {
		return r.RunFunc(cmd)
	}
	return runner.Result{}, nil
}

// Commands returns a copy of the recorded commands.
func (r *Recorder) Commands() []runner.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]runner.Command, len(r.commands))
	copy(out, r.commands)
	return out
}

// Fail builds the error a failed command would return.
func Fail(program, stderr string, code int) error {
	return &runner.ExitError{Program: program, ExitCode: code, Stderr: stderr}
}
