// Package policy defines the immutable sampling policy record consumed by the
// planner and the label engine, together with a small registry of named
// built-in profiles.
package policy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrExhaustiveRequested is returned when a caller asks for a complete read of
// a document. Skimming always under-reads; exhaustive analysis is refused at
// the top level instead of being attempted silently.
var ErrExhaustiveRequested = errors.New("policy: exhaustive analysis requested")

// Policy is the sampling configuration for one skim session. Pass it by
// value; Clone before mutating MarkFractions.
type Policy struct {
	Name               string    `mapstructure:"name" yaml:"name" json:"name"`
	Description        string    `mapstructure:"description" yaml:"description,omitempty" json:"description,omitempty"`
	BeginningFraction  float64   `mapstructure:"beginning_fraction" yaml:"beginning_fraction" json:"beginning_fraction"`
	EndFraction        float64   `mapstructure:"end_fraction" yaml:"end_fraction" json:"end_fraction"`
	MarkFractions      []float64 `mapstructure:"mark_fractions" yaml:"mark_fractions" json:"mark_fractions"`
	MarkWindowFraction float64   `mapstructure:"mark_window_fraction" yaml:"mark_window_fraction" json:"mark_window_fraction"`
	// PeriodicStride is the distance between periodic sample points. Zero
	// derives it as N/PeriodicDivisor.
	PeriodicStride    int `mapstructure:"periodic_stride" yaml:"periodic_stride" json:"periodic_stride"`
	PeriodicDivisor   int `mapstructure:"periodic_divisor" yaml:"periodic_divisor" json:"periodic_divisor"`
	MaxGap            int `mapstructure:"max_gap" yaml:"max_gap" json:"max_gap"`
	MaxGapIterations  int `mapstructure:"max_gap_iterations" yaml:"max_gap_iterations" json:"max_gap_iterations"`
	MinPlanUnits      int `mapstructure:"min_plan_units" yaml:"min_plan_units" json:"min_plan_units"`
	MaxHeadingSamples int `mapstructure:"max_heading_samples" yaml:"max_heading_samples" json:"max_heading_samples"`
	FallbackUnits     int `mapstructure:"fallback_units" yaml:"fallback_units" json:"fallback_units"`
	VerifiedMaxSpan   int `mapstructure:"verified_max_span" yaml:"verified_max_span" json:"verified_max_span"`
	UnknownMinUnits   int `mapstructure:"unknown_min_units" yaml:"unknown_min_units" json:"unknown_min_units"`
	// PromptAddendum is appended to the system prompt when an LLM summarizer
	// is in use.
	PromptAddendum string `mapstructure:"prompt_addendum" yaml:"prompt_addendum,omitempty" json:"prompt_addendum,omitempty"`
	// Exhaustive records a request for complete analysis. It is never
	// honored; CheckScope rejects it.
	Exhaustive bool `mapstructure:"exhaustive" yaml:"exhaustive,omitempty" json:"exhaustive,omitempty"`
}

// Default returns the general-purpose policy.
func Default() Policy {
	return Policy{
		Name:               "general",
		Description:        "Default profile; 10% head and tail, quartile marks, periodic points every N/40 units.",
		BeginningFraction:  0.10,
		EndFraction:        0.10,
		MarkFractions:      []float64{0.25, 0.50, 0.75},
		MarkWindowFraction: 0.03,
		PeriodicDivisor:    40,
		MaxGap:             30,
		MaxGapIterations:   4096,
		MinPlanUnits:       20,
		MaxHeadingSamples:  12,
		FallbackUnits:      200,
		VerifiedMaxSpan:    3,
		UnknownMinUnits:    10,
		PromptAddendum: "Treat every sample as a fragment of a larger document. Do not describe " +
			"the whole document from a single sample; prefer INFERRED with a stated basis.",
	}
}

// Clone returns a deep copy of p.
func (p Policy) Clone() Policy {
	c := p
	c.MarkFractions = append([]float64(nil), p.MarkFractions...)
	return c
}

// Stride returns the periodic stride to use for a document of n units.
func (p Policy) Stride(n int) int {
	if p.PeriodicStride > 0 {
		return p.PeriodicStride
	}
	div := p.PeriodicDivisor
	if div <= 0 {
		div = 40
	}
	if s := n / div; s > 1 {
		return s
	}
	return 1
}

// Validate returns an error describing every out-of-range field.
func (p Policy) Validate() error {
	var errs []string
	frac := func(name string, v float64) {
		if v <= 0 || v >= 1 {
			errs = append(errs, fmt.Sprintf("%s must be in (0,1), got %v", name, v))
		}
	}
	frac("beginning_fraction", p.BeginningFraction)
	frac("end_fraction", p.EndFraction)
	for i, f := range p.MarkFractions {
		frac(fmt.Sprintf("mark_fractions[%d]", i), f)
	}
	if p.MarkWindowFraction < 0 || p.MarkWindowFraction >= 1 {
		errs = append(errs, fmt.Sprintf("mark_window_fraction must be in [0,1), got %v", p.MarkWindowFraction))
	}
	if p.PeriodicStride < 0 {
		errs = append(errs, "periodic_stride must not be negative")
	}
	if p.MaxGap < 0 {
		errs = append(errs, "max_gap must not be negative")
	}
	if p.MaxGapIterations < 1 {
		errs = append(errs, "max_gap_iterations must be at least 1")
	}
	if p.MinPlanUnits < 0 {
		errs = append(errs, "min_plan_units must not be negative")
	}
	if p.FallbackUnits < 1 {
		errs = append(errs, "fallback_units must be at least 1")
	}
	if p.VerifiedMaxSpan < 1 {
		errs = append(errs, "verified_max_span must be at least 1")
	}
	if p.UnknownMinUnits < 1 {
		errs = append(errs, "unknown_min_units must be at least 1")
	}
	if len(errs) > 0 {
		return fmt.Errorf("policy %q: %s", p.Name, strings.Join(errs, "; "))
	}
	return nil
}

// CheckScope rejects requests that fall outside what skimming can honestly
// deliver.
func CheckScope(p Policy) error {
	if p.Exhaustive {
		return fmt.Errorf("%w: skim samples a bounded subset of units and never guarantees completeness; "+
			"read the document directly or narrow the question to specific ranges", ErrExhaustiveRequested)
	}
	return nil
}

// builtins is the registry of built-in profiles keyed by name.
var builtins = map[string]func() Policy{
	"general": Default,
	"paged": func() Policy {
		p := Default()
		p.Name = "paged"
		p.Description = "Paginated documents; wider quartile windows, gaps of at most 15 pages."
		p.MarkWindowFraction = 0.05
		p.MaxGap = 15
		p.MinPlanUnits = 10
		p.PromptAddendum = "Units are pages. Page furniture such as running heads and page numbers " +
			"is not content; never cite it as evidence."
		return p
	},
	"log": func() Policy {
		p := Default()
		p.Name = "log"
		p.Description = "Long line-oriented logs; thin head, heavy tail, tolerant gaps."
		p.BeginningFraction = 0.02
		p.EndFraction = 0.05
		p.MarkWindowFraction = 0.01
		p.PeriodicDivisor = 100
		p.MaxGap = 500
		p.PromptAddendum = "Units are log lines. Report timestamps, error bursts and component names " +
			"only as they appear in samples; never extrapolate rates over unread spans."
		return p
	},
	"brief": func() Policy {
		p := Default()
		p.Name = "brief"
		p.Description = "Quick look; 5% head and tail, gaps of up to 60 units."
		p.BeginningFraction = 0.05
		p.EndFraction = 0.05
		p.MarkWindowFraction = 0.02
		p.PeriodicDivisor = 20
		p.MaxGap = 60
		p.UnknownMinUnits = 30
		p.PromptAddendum = "Report at most five findings. Prefer VERIFIED quotations over inference."
		return p
	},
}

// Names returns the built-in profile names in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Load returns the named built-in profile or an error if the name is unknown.
func Load(name string) (Policy, error) {
	mk, ok := builtins[name]
	if !ok {
		return Policy{}, fmt.Errorf("policy: unknown profile %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return mk(), nil
}
