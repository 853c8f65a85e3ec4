// Package pipe passes each log line through an external shell command.
package pipe

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/modoterra/klogs/pkg/core"
)

// Command runs a shell command once per entry, feeding the raw line on stdin
// and replacing the line with the command's stdout.
type Command struct {
	command string
	shell   string
	logger  *slog.Logger
}

// New creates a pipe stage for command, run with `sh -c`.
func New(command string, logger *slog.Logger) *Command {
	return &Command{command: command, shell: "sh", logger: logger}
}

// String returns the command text.
func (c *Command) String() string { return c.command }

// Process runs the command for e. A trailing newline in the output is
// removed. A non-zero exit is an error and the entry is dropped by the
// caller.
func (c *Command) Process(ctx context.Context, e core.LogEntry) (core.LogEntry, error) {
	cmd := exec.CommandContext(ctx, c.shell, "-c", c.command)
	cmd.Stdin = strings.NewReader(e.RawLine)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		c.logger.Debug("pipe command failed", "command", c.command, "source", e.SourceID, "stderr", msg)
		if msg != "" {
			return core.LogEntry{}, fmt.Errorf("pipe %q: %w: %s", c.command, err, msg)
		}
		return core.LogEntry{}, fmt.Errorf("pipe %q: %w", c.command, err)
	}

	out := strings.TrimSuffix(stdout.String(), "\n")
	return core.LogEntry{SourceID: e.SourceID, RawLine: out, Message: out}, nil
}
