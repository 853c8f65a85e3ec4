// Package runner ties discovery output, providers, the aggregator, filtering
// and rendering into a single run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/modoterra/klogs/pkg/aggregator"
	"github.com/modoterra/klogs/pkg/core"
	"github.com/modoterra/klogs/pkg/filter"
)

// ErrNoSources is returned when Run is given nothing to stream.
var ErrNoSources = errors.New("no sources to stream")

// tailPrealloc bounds the initial capacity of each tail buffer.
const tailPrealloc = 1024

// Sink receives rendered output. render.Renderer implements it.
type Sink interface {
	Write(e core.LogEntry) error
	Header(sourceID string) error
}

// Options selects between streaming and tail mode.
type Options struct {
	Follow bool
	Tail   int // core.NoTail when unset
}

// tailMode buffers per source and prints the last Tail lines of each.
func (o Options) tailMode() bool { return !o.Follow && o.Tail >= 0 }

// Option configures a Runner.
type Option func(*Runner)

// WithStage installs a per-entry transform, such as a pipe command.
func WithStage(s aggregator.Stage) Option {
	return func(r *Runner) { r.stage = s }
}

// Runner streams logs from a provider to a sink.
type Runner struct {
	provider core.StreamProvider
	sink     Sink
	logger   *slog.Logger
	stage    aggregator.Stage
}

// New creates a runner.
func New(provider core.StreamProvider, sink Sink, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{provider: provider, sink: sink, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run streams every source until the streams end or ctx is cancelled. A
// source whose stream cannot be opened is logged and skipped, as is an entry
// the sink fails to write. Run returns only after every ingestor and provider
// process has exited.
func (r *Runner) Run(ctx context.Context, sources []core.Source, f *filter.Filter, opts Options) error {
	if len(sources) == 0 {
		return ErrNoSources
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	aggOpts := []aggregator.Option{aggregator.WithLogger(r.logger)}
	if r.stage != nil {
		aggOpts = append(aggOpts, aggregator.WithStage(r.stage))
	}
	agg := aggregator.New(ctx, aggOpts...)
	defer r.shutdown(cancel, agg)

	r.logger.Info("streaming logs", "sources", len(sources), "filter", f.Description(), "follow", opts.Follow, "tail", opts.Tail)

	streamOpts := core.StreamOptions{Follow: opts.Follow, Tail: opts.Tail}
	var g errgroup.Group
	for _, src := range sources {
		g.Go(func() error {
			stream, err := r.provider.Stream(ctx, src, streamOpts)
			if err != nil {
				r.logger.Error("open log stream", "source", src.ID, "err", err)
				return nil
			}
			return agg.AddSource(src.ID, stream)
		})
	}
	err := g.Wait()
	agg.Close()
	if err != nil {
		return fmt.Errorf("start ingestors: %w", err)
	}

	if opts.tailMode() {
		return r.tail(ctx, agg.Stream(), sources, f, opts.Tail)
	}
	return r.stream(ctx, agg.Stream(), f)
}

func (r *Runner) shutdown(cancel context.CancelFunc, agg *aggregator.Aggregator) {
	cancel()
	agg.Wait()
	if s, ok := r.provider.(core.Supervised); ok {
		s.Wait()
	}
}

func (r *Runner) stream(ctx context.Context, results <-chan aggregator.Result, f *filter.Filter) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case res, ok := <-results:
			if !ok {
				return nil
			}
			if res.Err != nil {
				r.logger.Error("log stream", "err", res.Err)
				continue
			}
			if !f.Match(res.Entry) {
				continue
			}
			if err := r.sink.Write(res.Entry); err != nil {
				r.logger.Error("write entry", "source", res.Entry.SourceID, "err", err)
			}
		}
	}
}

// tail drains results to the end, then prints a header and the last n
// matching entries for each source in discovery order.
func (r *Runner) tail(ctx context.Context, results <-chan aggregator.Result, sources []core.Source, f *filter.Filter, n int) error {
	buffers := make(map[string][]core.LogEntry, len(sources))
	for _, src := range sources {
		buffers[src.ID] = make([]core.LogEntry, 0, min(n, tailPrealloc))
	}

drain:
	for {
		select {
		case <-ctx.Done():
			return nil
		case res, ok := <-results:
			if !ok {
				break drain
			}
			if res.Err != nil {
				r.logger.Error("log stream", "err", res.Err)
				continue
			}
			if n == 0 || !f.Match(res.Entry) {
				continue
			}
			buf, known := buffers[res.Entry.SourceID]
			if !known {
				continue
			}
			buf = append(buf, res.Entry)
			if len(buf) >= 2*n {
				buf = append(buf[:0], buf[len(buf)-n:]...)
			}
			buffers[res.Entry.SourceID] = buf
		}
	}

	seen := make(map[string]bool, len(sources))
	for _, src := range sources {
		if seen[src.ID] {
			continue
		}
		seen[src.ID] = true
		buf := buffers[src.ID]
		if len(buf) == 0 {
			continue
		}
		if err := r.sink.Header(src.ID); err != nil {
			r.logger.Error("write header", "source", src.ID, "err", err)
		}
		for _, e := range buf[max(0, len(buf)-n):] {
			if err := r.sink.Write(e); err != nil {
				r.logger.Error("write entry", "source", src.ID, "err", err)
			}
		}
	}
	return nil
}
