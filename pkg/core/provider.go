package core

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
)

// RawLine is one undecoded line from a source, or a read error. A closed
// LineStream means end of stream.
type RawLine struct {
	Line []byte
	Err  error
}

// LineStream delivers raw lines from a single source.
type LineStream <-chan RawLine

// NoTail requests the full log rather than a trailing window.
const NoTail = -1

// StreamOptions controls how a provider opens a source.
type StreamOptions struct {
	Follow bool
	Tail   int // trailing lines to request; NoTail for all
}

// StreamProvider opens a line stream for a source.
type StreamProvider interface {
	Stream(ctx context.Context, src Source, opts StreamOptions) (LineStream, error)
}

// Discoverer resolves a named workload into its log sources.
type Discoverer interface {
	Discover(ctx context.Context, namespace, name string) ([]Source, error)
}

// Supervised is implemented by providers that own background work which
// outlives the streams they return. Wait blocks until that work has exited.
type Supervised interface {
	Wait()
}

// MaxLineSize caps a delivered line. Longer lines are split into chunks of
// this size.
const MaxLineSize = 1024 * 1024

// maxReadErrors is how many failed reads in a row, with no data between
// them, end a copy.
const maxReadErrors = 10

// ReadLines copies newline-delimited lines from r into out until EOF, ctx
// cancellation, or a terminal read error. A final unterminated line is
// delivered. Read errors are forwarded as a RawLine with Err set; reading
// then resumes unless the reader is closed or keeps failing. out is not
// closed.
func ReadLines(ctx context.Context, r io.Reader, out chan<- RawLine) {
	br := bufio.NewReaderSize(r, 64*1024)
	var line []byte
	failures := 0
	for {
		chunk, err := br.ReadSlice('\n')
		if len(chunk) > 0 {
			failures = 0
			line = append(line, chunk...)
		}

		switch {
		case err == nil:
			if !send(ctx, out, RawLine{Line: bytes.TrimSuffix(line, []byte{'\n'})}) {
				return
			}
			line = nil
			continue
		case errors.Is(err, bufio.ErrBufferFull):
			if len(line) >= MaxLineSize {
				if !send(ctx, out, RawLine{Line: line}) {
					return
				}
				line = nil
			}
			continue
		case errors.Is(err, io.EOF):
			if len(line) > 0 {
				send(ctx, out, RawLine{Line: line})
			}
			return
		}

		if ctx.Err() != nil {
			return
		}
		if !send(ctx, out, RawLine{Err: err}) {
			return
		}
		failures++
		if terminalReadError(err) || failures >= maxReadErrors {
			return
		}
	}
}

func terminalReadError(err error) bool {
	return errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed)
}

func send(ctx context.Context, out chan<- RawLine, l RawLine) bool {
	select {
	case out <- l:
		return true
	case <-ctx.Done():
		return false
	}
}
