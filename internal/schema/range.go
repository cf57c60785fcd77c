package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Range is a closed interval of 1-based units. Immutable value object.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of units in r, or 0 for an empty/inverted range.
func (r Range) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Within reports whether 1 <= Start <= End <= total.
func (r Range) Within(total int) bool {
	return r.Start >= 1 && r.Start <= r.End && r.End <= total
}

// Contains reports whether unit u lies in r.
func (r Range) Contains(u int) bool {
	return u >= r.Start && u <= r.End
}

// Overlaps reports whether r and o share at least one unit.
func (r Range) Overlaps(o Range) bool {
	return r.Start <= o.End && o.Start <= r.End
}

// String renders "a-b", or "a" for a single unit.
func (r Range) String() string {
	if r.Start == r.End {
		return strconv.Itoa(r.Start)
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// ParseRange parses "a-b" or "a" into a Range.
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Range{}, fmt.Errorf("schema: empty range")
	}
	lo, hi, found := strings.Cut(s, "-")
	a, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return Range{}, fmt.Errorf("schema: range %q: %w", s, err)
	}
	b := a
	if found {
		b, err = strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return Range{}, fmt.Errorf("schema: range %q: %w", s, err)
		}
	}
	if a < 1 || b < a {
		return Range{}, fmt.Errorf("schema: range %q is not a valid closed interval", s)
	}
	return Range{Start: a, End: b}, nil
}

// ParseRanges parses a comma-separated list such as "1-10,50-60,99".
func ParseRanges(s string) ([]Range, error) {
	var out []Range
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		r, err := ParseRange(part)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
