package filter

import (
	"fmt"
	"strings"
)

// Build turns the grep and level expressions into a single filter. Blank
// fragments are skipped and an expression with none left is ignored; when
// nothing remains Build returns a nil filter that matches everything.
//
// A grep expression containing '&' is split on '&' into an AND of patterns,
// otherwise it is split on ',' into an OR. A level expression is split on
// ',' into an OR. When both are given they are combined with AND.
func Build(patternExpr, levelExpr string) (*Filter, error) {
	var parts []*Filter

	if patternExpr != "" {
		sep, combine := ",", Or
		if strings.Contains(patternExpr, "&") {
			sep, combine = "&", And
		}
		var leaves []*Filter
		for _, p := range split(patternExpr, sep) {
			leaves = append(leaves, NewPattern(p))
		}
		f, err := single(leaves, combine)
		if err != nil {
			return nil, fmt.Errorf("grep expression %q: %w", patternExpr, err)
		}
		if f != nil {
			parts = append(parts, f)
		}
	}

	if levelExpr != "" {
		var leaves []*Filter
		for _, l := range split(levelExpr, ",") {
			f, err := NewLevel(l)
			if err != nil {
				return nil, fmt.Errorf("level expression %q: %w", levelExpr, err)
			}
			leaves = append(leaves, f)
		}
		f, err := single(leaves, Or)
		if err != nil {
			return nil, fmt.Errorf("level expression %q: %w", levelExpr, err)
		}
		if f != nil {
			parts = append(parts, f)
		}
	}

	switch len(parts) {
	case 0:
		return nil, nil
	case 1:
		return parts[0], nil
	}
	return And(parts...)
}

func split(expr, sep string) []string {
	var out []string
	for _, p := range strings.Split(expr, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func single(leaves []*Filter, combine func(...*Filter) (*Filter, error)) (*Filter, error) {
	switch len(leaves) {
	case 0:
		return nil, nil
	case 1:
		return leaves[0], nil
	}
	return combine(leaves...)
}
