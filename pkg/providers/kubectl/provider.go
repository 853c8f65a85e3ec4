// Package kubectl streams pod logs by running `kubectl logs`.
package kubectl

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/modoterra/klogs/pkg/core"
	"github.com/modoterra/klogs/pkg/proc"
)

// Provider runs one kubectl process per pod.
type Provider struct {
	sup        *proc.Supervisor
	binary     string
	kubeconfig string
	logger     *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithBinary overrides the kubectl executable.
func WithBinary(path string) Option {
	return func(p *Provider) { p.binary = path }
}

// WithKubeconfig passes --kubeconfig to every invocation.
func WithKubeconfig(path string) Option {
	return func(p *Provider) { p.kubeconfig = path }
}

// New creates a kubectl provider.
func New(logger *slog.Logger, opts ...Option) *Provider {
	p := &Provider{binary: "kubectl", logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	p.sup = proc.NewSupervisor(logger)
	return p
}

// Stream starts `kubectl logs` for the pod. A non-zero exit is logged
// together with the first line kubectl wrote to stderr.
func (p *Provider) Stream(ctx context.Context, src core.Source, opts core.StreamOptions) (core.LineStream, error) {
	args := p.Args(src, opts)
	p.logger.Debug("running kubectl", "pod", src.ID, "args", args)
	return p.sup.Spawn(ctx, proc.Spec{Label: src.ID, Name: p.binary, Args: args})
}

// Wait blocks until every kubectl process has been reaped.
func (p *Provider) Wait() { p.sup.Wait() }

// Args builds the kubectl argument list for src.
func (p *Provider) Args(src core.Source, opts core.StreamOptions) []string {
	args := []string{"logs", src.ID, "-n", src.Namespace}
	if src.Container != "" {
		args = append(args, "-c", src.Container)
	}
	args = append(args, "--timestamps=true")
	if opts.Follow {
		args = append(args, "-f")
	}
	if opts.Tail >= 0 {
		args = append(args, "--tail="+strconv.Itoa(opts.Tail))
	}
	if p.kubeconfig != "" {
		args = append(args, "--kubeconfig", p.kubeconfig)
	}
	return args
}
