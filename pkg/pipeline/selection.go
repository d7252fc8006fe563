package pipeline

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// normalizeSelection validates 0-based indices into n commands and returns
// them sorted and without repeats, so generation follows document order.
func normalizeSelection(selection []int, n int) ([]int, error) {
	if len(selection) == 0 {
		return nil, ErrEmptySelection
	}
	out := make([]int, 0, len(selection))
	for _, idx := range selection {
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("%w: %d not in 1-%d", ErrInvalidSelection, idx+1, n)
		}
		out = append(out, idx)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// All returns the selection of every command index in [0, n).
func All(n int) []int {
	sel := make([]int, n)
	for i := range sel {
		sel[i] = i
	}
	return sel
}

// ParseSelection parses a user selection such as "all", "3" or "1,4-6" with
// 1-based positions into 0-based indices for n commands.
func ParseSelection(s string, n int) ([]int, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return nil, ErrEmptySelection
	}
	if s == "all" || s == "*" {
		return All(n), nil
	}

	var sel []int
	for _, field := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		lo, hi, isRange := strings.Cut(field, "-")
		from, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSelection, field)
		}
		to := from
		if isRange {
			if to, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidSelection, field)
			}
		}
		if from > to {
			from, to = to, from
		}
		if from < 1 || to > n {
			return nil, fmt.Errorf("%w: %q not in 1-%d", ErrInvalidSelection, field, n)
		}
		for i := from; i <= to; i++ {
			sel = append(sel, i-1)
		}
	}
	return normalizeSelection(sel, n)
}
