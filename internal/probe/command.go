package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/bluelock/internal/logic"
)

// Command probes by running a shell command with the target id as $1.
//
//	exit 0  present; an integer as the first stdout field is the signal in dBm
//	exit 1  absent
//	other   probe error
type Command struct {
	Shell   string
	Command string
	// Timeout bounds one run. Zero means DefaultTimeout.
	Timeout time.Duration
}

// NewCommand creates a command probe run through /bin/sh.
func NewCommand(command string, timeout time.Duration) *Command {
	return &Command{Shell: "/bin/sh", Command: command, Timeout: timeout}
}

// Preflight checks the command is configured and the shell exists.
func (c *Command) Preflight(ctx context.Context) error {
	if strings.TrimSpace(c.Command) == "" {
		return errors.New("probe command is empty")
	}
	if _, err := exec.LookPath(c.shell()); err != nil {
		return fmt.Errorf("probe shell: %w", err)
	}
	return nil
}

// Probe runs the command once.
func (c *Command) Probe(ctx context.Context, targetID string) logic.Result {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.shell(), "-c", c.Command, "bluelock-probe", targetID)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children holding stdout open must not outlive the timeout.
	cmd.WaitDelay = 500 * time.Millisecond

	err := cmd.Run()
	if ctx.Err() != nil {
		return logic.Failed(fmt.Errorf("probe command: %w", ctx.Err()))
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return logic.Absent()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return logic.Failed(fmt.Errorf("probe command: %w: %s", err, msg))
		}
		return logic.Failed(fmt.Errorf("probe command: %w", err))
	}

	if fields := strings.Fields(stdout.String()); len(fields) > 0 {
		if dbm, err := strconv.Atoi(fields[0]); err == nil {
			return logic.Present(dbm)
		}
	}
	return logic.PresentNoSignal()
}

func (c *Command) shell() string {
	if c.Shell == "" {
		return "/bin/sh"
	}
	return c.Shell
}
