// Package aggregator merges the line streams of many sources into a single
// bounded channel of parsed entries.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modoterra/klogs/pkg/core"
)

const (
	// QueueSize bounds the merged channel. Ingestors block when it is full.
	QueueSize = 100
	// RetryDelay is how long an ingestor pauses after a read error.
	RetryDelay = 500 * time.Millisecond
)

// ErrClosed is returned by AddSource after Close.
var ErrClosed = errors.New("aggregator closed")

// Result is either a parsed entry or an error attributed to one source.
type Result struct {
	Entry core.LogEntry
	Err   error
}

// Stage transforms an entry before it is queued. A returned error is
// delivered as a Result and the entry is dropped.
type Stage func(ctx context.Context, e core.LogEntry) (core.LogEntry, error)

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithStage runs s on every entry inside the ingestor that produced it, so
// per-source order is kept.
func WithStage(s Stage) Option {
	return func(a *Aggregator) { a.stage = s }
}

// WithRetryDelay overrides RetryDelay.
func WithRetryDelay(d time.Duration) Option {
	return func(a *Aggregator) { a.retry = d }
}

// WithLogger sets the logger used for ingestor diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// Aggregator runs one ingestor goroutine per source. The merged channel
// closes once Close has been called and every ingestor has finished.
type Aggregator struct {
	ctx    context.Context
	out    chan Result
	done   chan struct{}
	stage  Stage
	retry  time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	handles sync.WaitGroup
}

// New starts an empty aggregator bound to ctx. Cancelling ctx stops every
// ingestor.
func New(ctx context.Context, opts ...Option) *Aggregator {
	a := &Aggregator{
		ctx:    ctx,
		out:    make(chan Result, QueueSize),
		done:   make(chan struct{}),
		retry:  RetryDelay,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	// Held until Close so the channel stays open while sources are added.
	a.handles.Add(1)
	go func() {
		a.handles.Wait()
		close(a.out)
		close(a.done)
	}()
	return a
}

// AddSource starts an ingestor for stream.
func (a *Aggregator) AddSource(id string, stream core.LineStream) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("add source %s: %w", id, ErrClosed)
	}
	a.handles.Add(1)
	go func() {
		defer a.handles.Done()
		a.ingest(id, stream)
	}()
	return nil
}

// Close stops accepting sources. It is safe to call more than once.
func (a *Aggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	a.handles.Done()
}

// Stream returns the merged channel. There must be a single consumer.
func (a *Aggregator) Stream() <-chan Result { return a.out }

// Wait closes the aggregator and blocks until every ingestor has exited.
// Ingestors blocked on a full channel only exit once the consumer drains it
// or ctx is cancelled.
func (a *Aggregator) Wait() {
	a.Close()
	<-a.done
}

func (a *Aggregator) ingest(id string, stream core.LineStream) {
	a.logger.Debug("ingestor started", "source", id)
	defer a.logger.Debug("ingestor stopped", "source", id)

	for {
		var raw core.RawLine
		var ok bool
		select {
		case raw, ok = <-stream:
		case <-a.ctx.Done():
			return
		}
		if !ok {
			return
		}

		if raw.Err != nil {
			a.logger.Warn("read log stream", "source", id, "err", raw.Err)
			if !a.send(Result{Err: fmt.Errorf("read %s: %w", id, raw.Err)}) {
				return
			}
			select {
			case <-time.After(a.retry):
			case <-a.ctx.Done():
				return
			}
			continue
		}

		entry := core.ParseEntry(id, strings.ToValidUTF8(string(raw.Line), "�"))
		if a.stage != nil {
			processed, err := a.stage(a.ctx, entry)
			if err != nil {
				if !a.send(Result{Err: fmt.Errorf("process %s: %w", id, err)}) {
					return
				}
				continue
			}
			entry = processed
		}
		if !a.send(Result{Entry: entry}) {
			return
		}
	}
}

func (a *Aggregator) send(r Result) bool {
	select {
	case a.out <- r:
		return true
	case <-a.ctx.Done():
		return false
	}
}
