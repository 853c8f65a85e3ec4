// Package render writes log entries to a terminal with a coloured per-source
// prefix and highlighted pattern matches.
package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/modoterra/klogs/pkg/core"
	"github.com/modoterra/klogs/pkg/filter"
	"github.com/modoterra/klogs/pkg/highlight"
)

// ColorMode selects when ANSI colours are emitted.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

// ParseColorMode validates a --color value.
func ParseColorMode(s string) (ColorMode, error) {
	switch m := ColorMode(strings.ToLower(s)); m {
	case ColorAuto, ColorAlways, ColorNever:
		return m, nil
	case "":
		return ColorAuto, nil
	}
	return "", fmt.Errorf("invalid color mode %q: want auto, always or never", s)
}

// palette is assigned to sources in first-seen order and wraps around.
var palette = []lipgloss.Color{
	"1", // red
	"2", // green
	"4", // blue
	"6", // cyan
	"5", // magenta
	"3", // yellow
	"7", // white
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithPrefixFormat sets the prefix template. %n expands to the source ID and
// %s to its first 8 characters. Other text is kept literally.
func WithPrefixFormat(format string) Option {
	return func(r *Renderer) {
		if format != "" {
			r.format = format
		}
	}
}

// WithoutPrefix prints bare messages.
func WithoutPrefix() Option {
	return func(r *Renderer) { r.prefix = false }
}

// WithHighlights enables highlighting of the given pattern filters' matches.
// Non-pattern filters are ignored.
func WithHighlights(patterns []*filter.Filter) Option {
	return func(r *Renderer) {
		for _, p := range patterns {
			if p != nil && p.Kind() == filter.KindPattern {
				r.patterns = append(r.patterns, p)
			}
		}
	}
}

// WithColorMode overrides terminal detection.
func WithColorMode(mode ColorMode) Option {
	return func(r *Renderer) { r.mode = mode }
}

// Renderer formats entries and writes one line per Write call. It is safe
// for concurrent use.
type Renderer struct {
	mu       sync.Mutex
	w        io.Writer
	lg       *lipgloss.Renderer
	mode     ColorMode
	format   string
	prefix   bool
	patterns []*filter.Filter

	colors    map[string]lipgloss.Style
	next      int
	highlight lipgloss.Style
}

// DefaultPrefixFormat renders as "[source-id]".
const DefaultPrefixFormat = "[%n]"

// New creates a renderer writing to w.
func New(w io.Writer, opts ...Option) *Renderer {
	r := &Renderer{
		w:      w,
		mode:   ColorAuto,
		format: DefaultPrefixFormat,
		prefix: true,
		colors: make(map[string]lipgloss.Style),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.lg = lipgloss.NewRenderer(w)
	switch r.mode {
	case ColorAlways:
		r.lg.SetColorProfile(termenv.ANSI)
	case ColorNever:
		r.lg.SetColorProfile(termenv.Ascii)
	}
	r.highlight = r.style().Foreground(lipgloss.Color("11"))
	return r
}

func (r *Renderer) style() lipgloss.Style {
	return r.lg.NewStyle().TabWidth(lipgloss.NoTabConversion)
}

// Prefix expands the prefix template for src without colour.
func (r *Renderer) Prefix(sourceID string) string {
	short := sourceID
	if len(short) > 8 {
		short = short[:8]
	}
	return strings.NewReplacer("%n", sourceID, "%s", short).Replace(r.format)
}

// Format renders e as a single line without the trailing newline.
func (r *Renderer) Format(e core.LogEntry) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.formatLocked(e)
}

func (r *Renderer) formatLocked(e core.LogEntry) string {
	msg := e.Message
	if len(r.patterns) > 0 {
		var spans []highlight.Span
		for _, p := range r.patterns {
			spans = append(spans, p.FindMatches(msg)...)
		}
		msg = highlight.Apply(msg, spans, func(s string) string { return r.highlight.Render(s) })
	}
	if !r.prefix {
		return msg
	}
	return r.sourceStyle(e.SourceID).Render(r.Prefix(e.SourceID)) + " " + msg
}

// sourceStyle returns the colour assigned to id, assigning the next palette
// entry on first use.
func (r *Renderer) sourceStyle(id string) lipgloss.Style {
	if s, ok := r.colors[id]; ok {
		return s
	}
	s := r.style().Foreground(palette[r.next%len(palette)])
	r.next++
	r.colors[id] = s
	return s
}

// Write prints e followed by a newline.
func (r *Renderer) Write(e core.LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := io.WriteString(r.w, r.formatLocked(e)+"\n")
	return err
}

// Header prints the separator that precedes a source's lines in tail mode.
func (r *Renderer) Header(sourceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	line := r.sourceStyle(sourceID).Bold(true).Render("==> " + sourceID + " <==")
	_, err := io.WriteString(r.w, line+"\n")
	return err
}
