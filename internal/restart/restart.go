// Package restart performs the supervisory restart requested when the
// scheduler fails unrecoverably.
package restart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Restarter restarts the device (or process) after a fatal failure.
type Restarter interface {
	Restart(ctx context.Context, reason error) error
}

// RunFunc runs argv and returns its combined output.
type RunFunc func(ctx context.Context, argv []string) ([]byte, error)

func runExec(ctx context.Context, argv []string) ([]byte, error) {
	return exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
}

// Command restarts by running a configured command such as "sudo reboot".
type Command struct {
	Argv   []string
	Logger *slog.Logger
	Run    RunFunc
}

// Restart logs reason and runs the command.
func (c *Command) Restart(ctx context.Context, reason error) error {
	if len(c.Argv) == 0 {
		return errors.New("restart command is empty")
	}
	if c.Logger != nil {
		c.Logger.Error("fatal failure, restarting device", "command", strings.Join(c.Argv, " "), "reason", reason)
	}
	run := c.Run
	if run == nil {
		run = runExec
	}
	out, err := run(ctx, c.Argv)
	if err != nil {
		return fmt.Errorf("running %s: %w: %s", c.Argv[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Noop only logs. It is used when restarts are disabled.
type Noop struct {
	Logger *slog.Logger
}

func (n Noop) Restart(_ context.Context, reason error) error {
	if n.Logger != nil {
		n.Logger.Warn("fatal failure, restart disabled", "reason", reason)
	}
	return nil
}
