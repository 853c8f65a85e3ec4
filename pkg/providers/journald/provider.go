// Package journald streams systemd unit logs by running journalctl.
package journald

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/modoterra/klogs/pkg/core"
	"github.com/modoterra/klogs/pkg/proc"
)

// Provider streams journal entries for units discovered by the systemd
// package.
type Provider struct {
	sup    *proc.Supervisor
	binary string
	logger *slog.Logger
}

// New creates a journald provider.
func New(logger *slog.Logger) *Provider {
	return &Provider{
		sup:    proc.NewSupervisor(logger),
		binary: "journalctl",
		logger: logger,
	}
}

// Stream runs journalctl for the unit named by src.ID. short-iso output
// starts each line with a timestamp token, like kubectl --timestamps.
func (p *Provider) Stream(ctx context.Context, src core.Source, opts core.StreamOptions) (core.LineStream, error) {
	p.logger.Debug("streaming journal", "unit", src.ID, "follow", opts.Follow, "tail", opts.Tail)
	return p.sup.Spawn(ctx, proc.Spec{
		Label: src.ID,
		Name:  p.binary,
		Args:  Args(src, opts),
	})
}

// Wait blocks until every journalctl process has been reaped.
func (p *Provider) Wait() { p.sup.Wait() }

// Args builds the journalctl argument list.
func Args(src core.Source, opts core.StreamOptions) []string {
	args := []string{"-u", src.ID, "-o", "short-iso", "--no-pager"}
	if opts.Follow {
		args = append(args, "-f")
	}
	if opts.Tail >= 0 {
		args = append(args, "-n", strconv.Itoa(opts.Tail))
	}
	return args
}
