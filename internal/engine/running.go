package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/flemzord/snapkeep/internal/action"
	"github.com/flemzord/snapkeep/internal/runner"
)

// isRunning runs the target's running check. Exit zero means running and
// a non-zero exit means stopped. A check that cannot run at all is an
// error.
func (e *Engine) isRunning(ctx context.Context, t action.Target) (bool, error) {
	if len(t.RunningCheck) == 0 {
		return false, nil
	}
	_, err := e.runner.Run(ctx, runner.Command{
		Program: t.RunningCheck[0],
		Args:    t.RunningCheck[1:],
	})
	if err == nil {
		return true, nil
	}
	var exitErr *runner.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode > 0 {
		return false, nil
	}
	return false, fmt.Errorf("engine: running check for %s: %w", t.Name, err)
}
