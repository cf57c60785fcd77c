// Package coverage maintains the authoritative partition of a document's
// unit range into examination statuses. A Ledger is owned by one session;
// Apply is serialized by a mutex so executors may report from several
// goroutines, and every mutation re-checks the partition invariant.
package coverage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dshills/skim/internal/schema"
)

// ErrIllegalTransition is returned when Apply would move a unit out of a
// terminal status.
var ErrIllegalTransition = errors.New("coverage: illegal status transition")

// ParseCoverageStatus converts a string to a CoverageStatus constant.
// Returns an error for unrecognized values.
func ParseCoverageStatus(s string) (schema.CoverageStatus, error) {
	switch schema.CoverageStatus(s) {
	case schema.StatusExamined, schema.StatusSampled,
		schema.StatusNotRead, schema.StatusPending:
		return schema.CoverageStatus(s), nil
	}
	return "", fmt.Errorf("coverage: unknown status %q", s)
}

// Observed reports whether s means the unit's text was actually read.
func Observed(s schema.CoverageStatus) bool {
	return s == schema.StatusExamined || s == schema.StatusSampled
}

// allowed lists legal transitions; a same-status Apply is always a no-op.
var allowed = map[schema.CoverageStatus][]schema.CoverageStatus{
	schema.StatusNotRead: {schema.StatusPending, schema.StatusExamined, schema.StatusSampled},
	schema.StatusPending: {schema.StatusExamined, schema.StatusSampled, schema.StatusNotRead},
}

func legal(from, to schema.CoverageStatus) bool {
	if from == to {
		return true
	}
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Ledger is a versioned, gap-free partition of [1, Total].
type Ledger struct {
	mu      sync.Mutex
	total   int
	segs    []schema.Segment
	version uint64
}

// NewLedger returns a ledger with every unit of [1, total] NOT_READ.
func NewLedger(total int) (*Ledger, error) {
	if total < 1 {
		return nil, fmt.Errorf("coverage: total units must be positive, got %d", total)
	}
	return &Ledger{
		total: total,
		segs:  []schema.Segment{{Range: schema.Range{Start: 1, End: total}, Status: schema.StatusNotRead}},
	}, nil
}

// FromPlan returns the initial ledger derived from a plan: planned ranges
// PENDING, everything else NOT_READ.
func FromPlan(sp schema.SamplePlan) (*Ledger, error) {
	l, err := NewLedger(sp.Total)
	if err != nil {
		return nil, err
	}
	for _, pr := range sp.Ranges {
		if err := l.Apply(pr.Range, schema.StatusPending); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Total returns N.
func (l *Ledger) Total() int { return l.total }

// Version returns the number of mutations applied so far.
func (l *Ledger) Version() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version
}

// Apply sets every unit of r to status. The enclosing segments are split
// around r, equal neighbours are merged, and the partition invariant is
// checked before the new state is published. On error the ledger is left
// unchanged.
func (l *Ledger) Apply(r schema.Range, status schema.CoverageStatus) error {
	if _, err := ParseCoverageStatus(string(status)); err != nil {
		return err
	}
	if !r.Within(l.total) {
		return fmt.Errorf("coverage: range %s outside [1,%d]", r, l.total)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := make([]schema.Segment, 0, len(l.segs)+2)
	for _, s := range l.segs {
		if !s.Range.Overlaps(r) {
			next = append(next, s)
			continue
		}
		if !legal(s.Status, status) {
			return fmt.Errorf("%w: %s -> %s at %s", ErrIllegalTransition, s.Status, status, s.Range)
		}
		if s.Range.Start < r.Start {
			next = append(next, schema.Segment{Range: schema.Range{Start: s.Range.Start, End: r.Start - 1}, Status: s.Status})
		}
		lo, hi := max(s.Range.Start, r.Start), min(s.Range.End, r.End)
		next = append(next, schema.Segment{Range: schema.Range{Start: lo, End: hi}, Status: status})
		if s.Range.End > r.End {
			next = append(next, schema.Segment{Range: schema.Range{Start: r.End + 1, End: s.Range.End}, Status: s.Status})
		}
	}
	next = compact(next)
	if err := Check(next, l.total); err != nil {
		return err
	}
	l.segs = next
	l.version++
	return nil
}

// compact merges adjacent segments with the same status.
func compact(segs []schema.Segment) []schema.Segment {
	out := segs[:0:0]
	for _, s := range segs {
		if n := len(out); n > 0 && out[n-1].Status == s.Status && out[n-1].Range.End+1 == s.Range.Start {
			out[n-1].Range.End = s.Range.End
			continue
		}
		out = append(out, s)
	}
	return out
}

// Check verifies that segs are sorted, contiguous, non-overlapping, minimal
// and jointly cover exactly [1, total].
func Check(segs []schema.Segment, total int) error {
	if len(segs) == 0 {
		return fmt.Errorf("coverage: empty partition")
	}
	expect := 1
	for i, s := range segs {
		if s.Range.Start != expect {
			return fmt.Errorf("coverage: segment %d starts at %d, want %d", i, s.Range.Start, expect)
		}
		if s.Range.End < s.Range.Start {
			return fmt.Errorf("coverage: segment %d is inverted (%d-%d)", i, s.Range.Start, s.Range.End)
		}
		if i > 0 && segs[i-1].Status == s.Status {
			return fmt.Errorf("coverage: segments %d and %d share status %s", i-1, i, s.Status)
		}
		expect = s.Range.End + 1
	}
	if expect != total+1 {
		return fmt.Errorf("coverage: partition ends at %d, want %d", expect-1, total)
	}
	return nil
}

// Render returns the ordered (range, status) rows of the partition. It is a
// pure projection; the returned slice is a copy.
func (l *Ledger) Render() []schema.Segment {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]schema.Segment(nil), l.segs...)
}

// Covers reports whether every unit of r has one of the given statuses.
func (l *Ledger) Covers(r schema.Range, statuses ...schema.CoverageStatus) bool {
	if !r.Within(l.total) {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.segs {
		if !s.Range.Overlaps(r) {
			continue
		}
		ok := false
		for _, want := range statuses {
			if s.Status == want {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Units returns the number of units currently in status.
func (l *Ledger) Units(status schema.CoverageStatus) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, s := range l.segs {
		if s.Status == status {
			n += s.Range.Len()
		}
	}
	return n
}

// Segments returns the segments currently in status, in order.
func (l *Ledger) Segments(status schema.CoverageStatus) []schema.Segment {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []schema.Segment
	for _, s := range l.segs {
		if s.Status == status {
			out = append(out, s)
		}
	}
	return out
}

// Percent returns (EXAMINED + SAMPLED) / N as a percentage rounded to one
// decimal place.
func (l *Ledger) Percent() float64 {
	read := l.Units(schema.StatusExamined) + l.Units(schema.StatusSampled)
	return float64(int(float64(read)*1000/float64(l.total)+0.5)) / 10
}

// Summarize counts units by status across a rendered map.
func Summarize(segs []schema.Segment) (examined, sampled, notRead, pending int) {
	for _, s := range segs {
		switch s.Status {
		case schema.StatusExamined:
			examined += s.Range.Len()
		case schema.StatusSampled:
			sampled += s.Range.Len()
		case schema.StatusNotRead:
			notRead += s.Range.Len()
		case schema.StatusPending:
			pending += s.Range.Len()
		}
	}
	return
}
