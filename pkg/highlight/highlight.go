// Package highlight merges match ranges and decorates the covered text.
package highlight

import (
	"cmp"
	"slices"
	"strings"
)

// Span is a half-open byte range [Start, End) within a line.
type Span struct {
	Start int
	End   int
}

// Merge sorts spans by start and coalesces overlapping or touching ranges.
// The input slice is not modified.
func Merge(spans []Span) []Span {
	if len(spans) == 0 {
		return nil
	}
	sorted := slices.Clone(spans)
	slices.SortStableFunc(sorted, func(a, b Span) int { return cmp.Compare(a.Start, b.Start) })

	merged := []Span{sorted[0]}
	for _, s := range sorted[1:] {
		last := &merged[len(merged)-1]
		if s.Start <= last.End {
			last.End = max(last.End, s.End)
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// Apply merges spans and returns text with each covered range passed through
// style. Spans outside text are clamped; empty spans are ignored.
func Apply(text string, spans []Span, style func(string) string) string {
	merged := Merge(spans)
	if len(merged) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	pos := 0
	for _, s := range merged {
		start := min(max(s.Start, pos), len(text))
		end := min(s.End, len(text))
		if end <= start {
			continue
		}
		b.WriteString(text[pos:start])
		b.WriteString(style(text[start:end]))
		pos = end
	}
	b.WriteString(text[pos:])
	return b.String()
}
