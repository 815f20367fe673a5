package plugins

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/desertthunder/curator/internal/shared"
)

// Executor runs an external command in dir and returns its combined output.
type Executor interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// CommandExecutor runs real processes, each bounded by Timeout.
type CommandExecutor struct {
	Timeout time.Duration
}

// Run implements [Executor].
func (e CommandExecutor) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return output, fmt.Errorf("%w: %s %s", shared.ErrTimeout, name, strings.Join(args, " "))
		}
		return output, fmt.Errorf("%w: %s %s: %v, output: %s",
			shared.ErrCommandFailed, name, strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return output, nil
}
