package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/modoterra/klogs/internal/buildinfo"
	"github.com/modoterra/klogs/pkg/config"
	"github.com/modoterra/klogs/pkg/core"
	"github.com/modoterra/klogs/pkg/filter"
	"github.com/modoterra/klogs/pkg/pipe"
	"github.com/modoterra/klogs/pkg/providers/docker"
	"github.com/modoterra/klogs/pkg/providers/filetail"
	"github.com/modoterra/klogs/pkg/providers/journald"
	"github.com/modoterra/klogs/pkg/providers/kube"
	"github.com/modoterra/klogs/pkg/providers/kubectl"
	"github.com/modoterra/klogs/pkg/providers/systemd"
	"github.com/modoterra/klogs/pkg/render"
	"github.com/modoterra/klogs/pkg/runner"
	tuimodel "github.com/modoterra/klogs/pkg/tui/model"
)

type options struct {
	namespace   string
	deployment  string
	follow      bool
	grep        string
	tail        int
	level       string
	and         bool
	noHighlight bool
	prefix      string
	noPrefix    bool
	pipe        string
	backend     string
	kubeconfig  string
	kubectl     string
	color       string
	configPath  string
	logLevel    string
	tui         bool
}

func newRootCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "klogs -d NAME [flags]",
		Short: "Aggregate, filter and highlight logs from every pod of a deployment",
		Long: "klogs streams logs from all pods of a Kubernetes deployment (or systemd units, or local files)\n" +
			"into one terminal, with a coloured prefix per source, grep and level filters, and match highlighting.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.namespace, "namespace", "n", "default", "namespace of the deployment")
	f.StringVarP(&o.deployment, "deployment", "d", "", "deployment name (unit, compose service or file glob for other backends)")
	f.BoolVarP(&o.follow, "follow", "f", false, "keep streaming new lines")
	f.StringVarP(&o.grep, "grep", "g", "", "patterns to match: 'a,b' matches either, 'a&b' requires both")
	f.IntVarP(&o.tail, "tail", "t", core.NoTail, "show only the last N lines of each source")
	f.StringVarP(&o.level, "level", "l", "", "log levels to show, comma separated (TRACE, DEBUG, INFO, WARN, ERROR, FATAL...)")
	f.BoolVar(&o.and, "and", false, "combine grep and level filters with AND (always on)")
	f.BoolVar(&o.noHighlight, "no-highlight", false, "disable grep match highlighting")
	f.StringVar(&o.prefix, "prefix", "", "prefix format: %n source name, %s short name (default \"[%n]\")")
	f.BoolVar(&o.noPrefix, "no-prefix", false, "print messages without a source prefix")
	f.StringVar(&o.pipe, "pipe", "", "shell command each line is piped through before printing")
	f.StringVar(&o.backend, "backend", config.BackendKubectl, "log backend: kubernetes, kubectl, systemd, docker or file")
	f.StringVar(&o.kubeconfig, "kubeconfig", "", "path to kubeconfig")
	f.StringVar(&o.kubectl, "kubectl", "kubectl", "kubectl binary for the kubectl backend")
	f.StringVar(&o.color, "color", "auto", "colour output: auto, always or never")
	f.StringVar(&o.configPath, "config", config.DefaultPath(), "config file")
	f.StringVar(&o.logLevel, "log-level", "", "diagnostic log level: debug, info, warn or error (env KLOGS_LOG)")
	f.BoolVar(&o.tui, "tui", false, "browse the stream in an interactive viewer")
	cmd.MarkFlagRequired("deployment")
	f.MarkDeprecated("and", "grep and level filters are always combined with AND")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newConfigCmd())
	return cmd
}

// --- Version ---

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "klogs %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
		},
	}
}

// --- Root: stream logs ---

func run(cmd *cobra.Command, o *options) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return fmt.Errorf("%s: %w", o.configPath, errors.Join(errs...))
	}
	o.applyConfig(cmd.Flags(), cfg)

	logOut := cmd.ErrOrStderr()
	if o.tui {
		logOut = io.Discard
	}
	logger, err := newLogger(logOut, o.logLevel)
	if err != nil {
		return err
	}

	if o.tail < core.NoTail {
		return fmt.Errorf("invalid --tail %d: must be 0 or more", o.tail)
	}
	if o.tui && !o.follow {
		return errors.New("--tui requires --follow")
	}

	// Filter errors are fatal before any source is touched.
	f, err := filter.Build(o.grep, o.level)
	if err != nil {
		return err
	}
	colorMode, err := render.ParseColorMode(o.color)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	discoverer, provider, err := o.openBackend(logger)
	if err != nil {
		return err
	}
	sources, err := discoverer.Discover(ctx, o.namespace, o.deployment)
	if err != nil {
		return err
	}
	eligible := core.Eligible(sources)
	logger.Info("discovered sources", "total", len(sources), "eligible", len(eligible))
	if len(eligible) == 0 {
		return fmt.Errorf("no active sources for deployment %q in namespace %q", o.deployment, o.namespace)
	}

	renderOpts := []render.Option{render.WithPrefixFormat(o.prefix), render.WithColorMode(colorMode)}
	if o.noPrefix {
		renderOpts = append(renderOpts, render.WithoutPrefix())
	}
	if !o.noHighlight {
		renderOpts = append(renderOpts, render.WithHighlights(f.Patterns()))
	}

	var runOpts []runner.Option
	if o.pipe != "" {
		runOpts = append(runOpts, runner.WithStage(pipe.New(o.pipe, logger).Process))
	}
	opts := runner.Options{Follow: o.follow, Tail: o.tail}

	if o.tui {
		// The renderer writes into the viewport, not a terminal.
		if colorMode == render.ColorAuto {
			renderOpts = append(renderOpts, render.WithColorMode(render.ColorAlways))
		}
		return runTUI(ctx, o, eligible, f, provider, render.New(io.Discard, renderOpts...), logger, runOpts, opts)
	}

	r := runner.New(provider, render.New(cmd.OutOrStdout(), renderOpts...), logger, runOpts...)
	return r.Run(ctx, eligible, f, opts)
}

func runTUI(ctx context.Context, o *options, sources []core.Source, f *filter.Filter, provider core.StreamProvider,
	renderer *render.Renderer, logger *slog.Logger, runOpts []runner.Option, opts runner.Options) error {
	app := tuimodel.New(o.deployment, f.Description(), sources, renderer)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r := runner.New(provider, tuimodel.NewSink(p.Send), logger, runOpts...)
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := r.Run(runCtx, sources, f, opts)
		p.Send(tuimodel.StreamEndedMsg{Err: err})
	}()

	_, err := p.Run()
	cancel()
	<-done
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// applyConfig fills every option whose flag was not set explicitly from the
// config file.
func (o *options) applyConfig(flags *pflag.FlagSet, cfg *config.Config) {
	set := func(name string, dst *string, val string) {
		if !flags.Changed(name) && val != "" {
			*dst = val
		}
	}
	set("namespace", &o.namespace, cfg.Namespace)
	set("backend", &o.backend, cfg.Backend)
	set("kubeconfig", &o.kubeconfig, cfg.Kubeconfig)
	set("kubectl", &o.kubectl, cfg.Kubectl)
	set("prefix", &o.prefix, cfg.Prefix)
	set("color", &o.color, cfg.Color)
	set("pipe", &o.pipe, cfg.Pipe)
	if !flags.Changed("no-highlight") && !cfg.HighlightEnabled() {
		o.noHighlight = true
	}
	if o.logLevel == "" {
		o.logLevel = os.Getenv("KLOGS_LOG")
	}
	if o.logLevel == "" {
		o.logLevel = cfg.LogLevel
	}
}

func (o *options) openBackend(logger *slog.Logger) (core.Discoverer, core.StreamProvider, error) {
	switch o.backend {
	case config.BackendKubernetes:
		cs, err := kube.NewClientset(o.kubeconfig)
		if err != nil {
			return nil, nil, err
		}
		c := kube.New(cs, logger)
		return c, c, nil
	case config.BackendKubectl:
		cs, err := kube.NewClientset(o.kubeconfig)
		if err != nil {
			return nil, nil, err
		}
		p := kubectl.New(logger, kubectl.WithBinary(o.kubectl), kubectl.WithKubeconfig(o.kubeconfig))
		return kube.New(cs, logger), p, nil
	case config.BackendSystemd:
		return systemd.New(logger), journald.New(logger), nil
	case config.BackendDocker:
		p := docker.New(logger)
		return p, p, nil
	case config.BackendFile:
		p := filetail.New(logger)
		return p, p, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", o.backend)
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}
