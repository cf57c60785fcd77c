// Package budget meters report output in word units against a per-step cap
// and a session-wide total cap.
package budget

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrStepBudgetExceeded means the charge would overflow the current step.
	// The caller should compress the pending output and try again.
	ErrStepBudgetExceeded = errors.New("budget: step budget exceeded")
	// ErrTotalBudgetExceeded means the charge would overflow the session
	// total. The caller should elide the pending output.
	ErrTotalBudgetExceeded = errors.New("budget: total budget exceeded")
)

// Caps are the two limits of a meter.
type Caps struct {
	StepCap  int `mapstructure:"step_cap" yaml:"step_cap" json:"step_cap"`
	TotalCap int `mapstructure:"total_cap" yaml:"total_cap" json:"total_cap"`
}

// DefaultCaps returns the default caps: 100 word units per step, 2000 total.
func DefaultCaps() Caps {
	return Caps{StepCap: 100, TotalCap: 2000}
}

// Validate checks that both caps are positive and the step cap fits the
// total.
func (c Caps) Validate() error {
	if c.StepCap < 1 || c.TotalCap < 1 {
		return fmt.Errorf("budget: caps must be positive (step %d, total %d)", c.StepCap, c.TotalCap)
	}
	if c.StepCap > c.TotalCap {
		return fmt.Errorf("budget: step cap %d exceeds total cap %d", c.StepCap, c.TotalCap)
	}
	return nil
}

// State is a snapshot of a meter.
type State struct {
	Used     int
	StepUsed int
	StepCap  int
	TotalCap int
}

// Meter is a session-scoped budget. Counters only increase, except that
// BeginStep resets the per-step counter.
type Meter struct {
	mu       sync.Mutex
	caps     Caps
	used     int
	stepUsed int
}

// NewMeter returns a meter with zero usage.
func NewMeter(c Caps) (*Meter, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &Meter{caps: c}, nil
}

// BeginStep starts a new reporting step.
func (m *Meter) BeginStep() {
	m.mu.Lock()
	m.stepUsed = 0
	m.mu.Unlock()
}

// Charge records n word units. It fails without charging anything if the
// step or the total cap would be exceeded; the total cap is checked first
// so that an overflowing charge is never retried as a compression.
func (m *Meter) Charge(n int) error {
	if n < 0 {
		return fmt.Errorf("budget: negative charge %d", n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.used+n > m.caps.TotalCap {
		return fmt.Errorf("%w: %d used + %d > %d", ErrTotalBudgetExceeded, m.used, n, m.caps.TotalCap)
	}
	if m.stepUsed+n > m.caps.StepCap {
		return fmt.Errorf("%w: %d used in step + %d > %d", ErrStepBudgetExceeded, m.stepUsed, n, m.caps.StepCap)
	}
	m.used += n
	m.stepUsed += n
	return nil
}

// ChargeText charges the word count of s.
func (m *Meter) ChargeText(s string) error {
	return m.Charge(Words(s))
}

// State returns a snapshot of the counters.
func (m *Meter) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{Used: m.used, StepUsed: m.stepUsed, StepCap: m.caps.StepCap, TotalCap: m.caps.TotalCap}
}

// Used returns total usage.
func (m *Meter) Used() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}

// Remaining returns the units left in the total budget.
func (m *Meter) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.caps.TotalCap - m.used
}

// Caps returns the configured caps.
func (m *Meter) Caps() Caps { return m.caps }

// Words counts whitespace-separated words in the given strings.
func Words(parts ...string) int {
	n := 0
	for _, p := range parts {
		n += len(strings.Fields(p))
	}
	return n
}

// Truncate returns the first limit words of s. When anything was cut the
// last kept word gets an ellipsis, so Words(Truncate(s, k)) <= k.
func Truncate(s string, limit int) string {
	fields := strings.Fields(s)
	if len(fields) <= limit {
		return s
	}
	if limit <= 0 {
		return ""
	}
	return strings.Join(fields[:limit], " ") + "…"
}
