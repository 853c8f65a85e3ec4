// Package filetail treats local log files as sources. It is useful for
// replaying captured pod logs and for hosts without a cluster.
package filetail

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/modoterra/klogs/pkg/core"
)

// PollInterval is how often a followed file is checked for new data.
const PollInterval = 250 * time.Millisecond

// Provider discovers files by glob and streams their lines.
type Provider struct {
	logger *slog.Logger
	poll   time.Duration
}

// New creates a file provider.
func New(logger *slog.Logger) *Provider {
	return &Provider{logger: logger, poll: PollInterval}
}

// Discover expands the glob pattern name into one source per regular file.
// Namespace is not used.
func (p *Provider) Discover(ctx context.Context, namespace, name string) ([]core.Source, error) {
	matches, err := filepath.Glob(name)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", name, err)
	}
	slices.Sort(matches)

	var sources []core.Source
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			p.logger.Warn("stat log file", "path", m, "err", err)
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		sources = append(sources, core.Source{
			ID:        m,
			Namespace: filepath.Dir(m),
			Status:    core.StatusRunning,
		})
	}
	return sources, nil
}

// Stream reads the file named by src.ID. With a tail only the last lines
// present at open time are delivered. In follow mode the file is polled for
// appended data and reread from the start if it is truncated.
func (p *Provider) Stream(ctx context.Context, src core.Source, opts core.StreamOptions) (core.LineStream, error) {
	f, err := os.Open(src.ID)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src.ID, err)
	}
	out := make(chan core.RawLine, 100)
	go func() {
		defer close(out)
		defer f.Close()
		p.tail(ctx, f, opts, out)
	}()
	p.logger.Debug("tailing file", "path", src.ID, "follow", opts.Follow)
	return out, nil
}

func (p *Provider) tail(ctx context.Context, f *os.File, opts core.StreamOptions, out chan<- core.RawLine) {
	reader := bufio.NewReader(f)
	var pending []byte
	var backlog [][]byte
	initial := true

	emit := func(line []byte) bool {
		if initial && opts.Tail >= 0 {
			backlog = append(backlog, line)
			if len(backlog) > opts.Tail {
				backlog = backlog[1:]
			}
			return true
		}
		select {
		case out <- core.RawLine{Line: line}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		chunk, err := reader.ReadSlice('\n')
		pending = append(pending, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			if len(pending) >= core.MaxLineSize {
				if !emit(pending) {
					return
				}
				pending = nil
			}
			continue
		}
		if err == nil {
			if !emit(bytes.TrimSuffix(pending, []byte{'\n'})) {
				return
			}
			pending = nil
			continue
		}
		if !errors.Is(err, io.EOF) {
			select {
			case out <- core.RawLine{Err: err}:
			case <-ctx.Done():
			}
			return
		}

		if !opts.Follow && len(pending) > 0 {
			if !emit(pending) {
				return
			}
			pending = nil
		}
		if initial {
			initial = false
			for _, l := range backlog {
				if !emit(l) {
					return
				}
			}
			backlog = nil
		}
		if !opts.Follow {
			return
		}

		select {
		case <-time.After(p.poll):
		case <-ctx.Done():
			return
		}
		info, serr := f.Stat()
		if serr != nil {
			continue
		}
		pos, _ := f.Seek(0, io.SeekCurrent)
		if info.Size() < pos {
			p.logger.Info("file truncated, rereading", "path", f.Name())
			f.Seek(0, io.SeekStart)
			reader.Reset(f)
			pending = nil
		}
	}
}
