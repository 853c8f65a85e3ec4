// Package filter decides which log entries are shown. A Filter is a small
// tree of pattern, level, AND and OR nodes built from command-line
// expressions.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/modoterra/klogs/pkg/core"
	"github.com/modoterra/klogs/pkg/highlight"
)

// Kind identifies the node type of a Filter.
type Kind int

const (
	KindPattern Kind = iota
	KindLevel
	KindAnd
	KindOr
)

func (k Kind) String() string {
	switch k {
	case KindPattern:
		return "pattern"
	case KindLevel:
		return "level"
	case KindAnd:
		return "and"
	case KindOr:
		return "or"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

var (
	ErrInvalidLevel   = errors.New("invalid log level")
	ErrEmptyComposite = errors.New("composite filter needs at least one child")
)

// Filter is an immutable predicate over log entries. A nil *Filter matches
// everything.
type Filter struct {
	kind     Kind
	expr     string
	re       *regexp.Regexp
	children []*Filter
}

// NewPattern returns a filter matching raw lines against pattern. A pattern
// that is not a valid regular expression is matched literally.
func NewPattern(pattern string) *Filter {
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = regexp.MustCompile(regexp.QuoteMeta(pattern))
	}
	return &Filter{kind: KindPattern, expr: pattern, re: re}
}

var levelAliases = map[string]string{
	"TRACE":    "TRACE",
	"DEBUG":    "DEBUG",
	"INFO":     "INFO",
	"WARN":     "WARN(?:ING)?",
	"WARNING":  "WARN(?:ING)?",
	"ERROR":    "ERROR",
	"ERR":      "ERR",
	"FATAL":    "FATAL",
	"CRITICAL": "CRITICAL",
}

// NewLevel returns a filter matching lines that carry the named severity
// marker, e.g. "[ERROR]", "ERROR:" or a bare ERROR word. The name is case
// insensitive.
func NewLevel(level string) (*Filter, error) {
	name := strings.ToUpper(strings.TrimSpace(level))
	l, ok := levelAliases[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLevel, level)
	}
	re := regexp.MustCompile(fmt.Sprintf(`(?i)(\[%[1]s\])|(\b%[1]s:)|(\d{4}[-/]\d{2}[-/]\d{2}.*?\b%[1]s:)|(\b%[1]s\b)`, l))
	return &Filter{kind: KindLevel, expr: name, re: re}, nil
}

// And returns a filter matching when every child matches.
func And(children ...*Filter) (*Filter, error) {
	return composite(KindAnd, children)
}

// Or returns a filter matching when any child matches.
func Or(children ...*Filter) (*Filter, error) {
	return composite(KindOr, children)
}

func composite(kind Kind, children []*Filter) (*Filter, error) {
	var kept []*Filter
	for _, c := range children {
		if c != nil {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%s: %w", kind, ErrEmptyComposite)
	}
	return &Filter{kind: kind, children: kept}, nil
}

// Kind returns the node type.
func (f *Filter) Kind() Kind { return f.kind }

// Children returns the direct children of an AND or OR node.
func (f *Filter) Children() []*Filter { return f.children }

// Match reports whether e passes the filter. Only RawLine is inspected.
func (f *Filter) Match(e core.LogEntry) bool {
	if f == nil {
		return true
	}
	switch f.kind {
	case KindPattern:
		return f.re.MatchString(e.RawLine)
	case KindLevel:
		// Kubernetes apiserver traces contain "error:" without being errors.
		if f.expr == "ERROR" && strings.Contains(e.RawLine, "Trace[") && strings.Contains(e.RawLine, "error:") {
			return false
		}
		return f.re.MatchString(e.RawLine)
	case KindAnd:
		for _, c := range f.children {
			if !c.Match(e) {
				return false
			}
		}
		return true
	case KindOr:
		for _, c := range f.children {
			if c.Match(e) {
				return true
			}
		}
		return false
	}
	return false
}

// Description renders the filter for logs and diagnostics.
func (f *Filter) Description() string {
	if f == nil {
		return "all"
	}
	switch f.kind {
	case KindPattern:
		return fmt.Sprintf("grep(%q)", f.expr)
	case KindLevel:
		return fmt.Sprintf("level(%s)", f.expr)
	}
	parts := make([]string, len(f.children))
	for i, c := range f.children {
		parts[i] = c.Description()
	}
	op := " AND "
	if f.kind == KindOr {
		op = " OR "
	}
	return "(" + strings.Join(parts, op) + ")"
}

// Patterns returns every pattern leaf in the tree, depth first.
func (f *Filter) Patterns() []*Filter {
	if f == nil {
		return nil
	}
	switch f.kind {
	case KindPattern:
		return []*Filter{f}
	case KindAnd, KindOr:
		var out []*Filter
		for _, c := range f.children {
			out = append(out, c.Patterns()...)
		}
		return out
	}
	return nil
}

// FindMatches returns the byte ranges of every non-overlapping match of a
// pattern filter in text. Other kinds return nil.
func (f *Filter) FindMatches(text string) []highlight.Span {
	if f == nil || f.kind != KindPattern {
		return nil
	}
	locs := f.re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	spans := make([]highlight.Span, 0, len(locs))
	for _, l := range locs {
		spans = append(spans, highlight.Span{Start: l[0], End: l[1]})
	}
	return spans
}
