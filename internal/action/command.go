package action

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Command runs a shell command per direction, e.g. "xset dpms force off"
// on absent. An empty command is a no-op.
type Command struct {
	Shell   string
	Absent  string
	Present string
}

// NewCommand creates a command action run through /bin/sh.
func NewCommand(absent, present string) *Command {
	return &Command{Shell: "/bin/sh", Absent: absent, Present: present}
}

func (c *Command) ApplyAbsent(ctx context.Context) error {
	return c.run(ctx, c.Absent)
}

func (c *Command) ApplyPresent(ctx context.Context) error {
	return c.run(ctx, c.Present)
}

func (c *Command) run(ctx context.Context, command string) error {
	if strings.TrimSpace(command) == "" {
		return nil
	}
	shell := c.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	cmd := exec.CommandContext(ctx, shell, "-c", command)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = time.Second
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(out.String()); msg != "" {
			return fmt.Errorf("run %q: %w: %s", command, err, msg)
		}
		return fmt.Errorf("run %q: %w", command, err)
	}
	return nil
}
