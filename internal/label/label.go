// Package label turns candidate findings into labeled findings. A Finding
// can only be constructed by an Engine, which checks each label's
// evidentiary requirements against the coverage ledger and the text that
// was actually observed. Violations are rejected, never reclassified.
package label

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/skim/internal/coverage"
	"github.com/dshills/skim/internal/schema"
)

// ErrInvalidLabel is returned when a candidate does not meet the
// requirements of the label it claims.
var ErrInvalidLabel = errors.New("label: invalid label")

// Finding is one of Verified, Sampled, Inferred or Unknown.
type Finding interface {
	Label() schema.Label
	Content() string
	sealed()
}

// Verified quotes observed text exactly.
type Verified struct {
	content  string
	excerpt  string
	evidence schema.Range
}

func (Verified) Label() schema.Label      { return schema.LabelVerified }
func (v Verified) Content() string        { return v.content }
func (v Verified) Excerpt() string        { return v.excerpt }
func (v Verified) Evidence() schema.Range { return v.evidence }
func (Verified) sealed()                  {}

// Sampled paraphrases observed text.
type Sampled struct {
	content  string
	evidence schema.Range
}

func (Sampled) Label() schema.Label      { return schema.LabelSampled }
func (s Sampled) Content() string        { return s.content }
func (s Sampled) Evidence() schema.Range { return s.evidence }
func (Sampled) sealed()                  {}

// Inferred states a conclusion drawn by a named rule or pattern. Its
// optional evidence range is always observed text.
type Inferred struct {
	content  string
	basis    string
	evidence *schema.Range
}

func (Inferred) Label() schema.Label { return schema.LabelInferred }
func (i Inferred) Content() string   { return i.content }
func (i Inferred) Basis() string     { return i.basis }

// Evidence returns the supporting range, if any.
func (i Inferred) Evidence() (schema.Range, bool) {
	if i.evidence == nil {
		return schema.Range{}, false
	}
	return *i.evidence, true
}
func (Inferred) sealed() {}

// Unknown describes a range that was not read.
type Unknown struct {
	content  string
	evidence schema.Range
}

func (Unknown) Label() schema.Label      { return schema.LabelUnknown }
func (u Unknown) Content() string        { return u.content }
func (u Unknown) Evidence() schema.Range { return u.evidence }
func (Unknown) sealed()                  {}

// ToReport converts f into its serialized form.
func ToReport(f Finding) schema.ReportFinding {
	rf := schema.ReportFinding{Label: f.Label(), Content: f.Content()}
	switch v := f.(type) {
	case Verified:
		ev := v.evidence
		rf.Excerpt, rf.Evidence = v.excerpt, &ev
	case Sampled:
		ev := v.evidence
		rf.Evidence = &ev
	case Inferred:
		rf.Basis = v.basis
		if v.evidence != nil {
			ev := *v.evidence
			rf.Evidence = &ev
		}
	case Unknown:
		ev := v.evidence
		rf.Evidence = &ev
	}
	return rf
}

// TextSource returns the observed text of a range; ok is false unless every
// unit of the range was read.
type TextSource interface {
	Text(r schema.Range) (string, bool)
}

// Options are the label engine's thresholds.
type Options struct {
	VerifiedMaxSpan int
	UnknownMinUnits int
}

// Engine validates findings against one session's ledger.
type Engine struct {
	ledger *coverage.Ledger
	texts  TextSource
	opts   Options
}

// NewEngine returns an Engine. texts may be nil, in which case no VERIFIED
// finding can be accepted.
func NewEngine(ledger *coverage.Ledger, texts TextSource, opts Options) *Engine {
	if opts.VerifiedMaxSpan < 1 {
		opts.VerifiedMaxSpan = 3
	}
	if opts.UnknownMinUnits < 1 {
		opts.UnknownMinUnits = 10
	}
	return &Engine{ledger: ledger, texts: texts, opts: opts}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidLabel, fmt.Sprintf(format, args...))
}

// Classify validates c and returns the finding for its claimed label.
func (e *Engine) Classify(c schema.Candidate) (Finding, error) {
	content := strings.TrimSpace(c.Content)
	if content == "" {
		return nil, invalid("%s finding has no content", c.Label)
	}
	switch c.Label {
	case schema.LabelVerified:
		return e.verified(content, c)
	case schema.LabelSampled:
		ev, err := e.observedEvidence(c)
		if err != nil {
			return nil, err
		}
		return Sampled{content: content, evidence: ev}, nil
	case schema.LabelInferred:
		basis := strings.TrimSpace(c.Basis)
		if basis == "" {
			return nil, invalid("INFERRED finding requires a basis")
		}
		inf := Inferred{content: content, basis: basis}
		if c.Evidence != nil {
			ev, err := e.observedEvidence(c)
			if err != nil {
				return nil, err
			}
			inf.evidence = &ev
		}
		return inf, nil
	case schema.LabelUnknown:
		if c.Evidence == nil {
			return nil, invalid("UNKNOWN finding requires an evidence range")
		}
		ev := *c.Evidence
		if !ev.Within(e.ledger.Total()) {
			return nil, invalid("UNKNOWN evidence %s lies outside [1,%d]", ev, e.ledger.Total())
		}
		if !e.ledger.Covers(ev, schema.StatusNotRead, schema.StatusPending) {
			return nil, invalid("UNKNOWN evidence %s includes units that were read", ev)
		}
		return Unknown{content: content, evidence: ev}, nil
	}
	return nil, invalid("unrecognized label %q", c.Label)
}

func (e *Engine) observedEvidence(c schema.Candidate) (schema.Range, error) {
	if c.Evidence == nil {
		return schema.Range{}, invalid("%s finding requires an evidence range", c.Label)
	}
	ev := *c.Evidence
	if !ev.Within(e.ledger.Total()) {
		return schema.Range{}, invalid("%s evidence %s lies outside [1,%d]", c.Label, ev, e.ledger.Total())
	}
	if !e.ledger.Covers(ev, schema.StatusExamined, schema.StatusSampled) {
		return schema.Range{}, invalid("%s evidence %s includes units that were not read", c.Label, ev)
	}
	return ev, nil
}

func (e *Engine) verified(content string, c schema.Candidate) (Finding, error) {
	excerpt := strings.TrimSpace(c.Excerpt)
	if excerpt == "" {
		return nil, invalid("VERIFIED finding requires an exact excerpt")
	}
	ev, err := e.observedEvidence(c)
	if err != nil {
		return nil, err
	}
	if ev.Len() > e.opts.VerifiedMaxSpan {
		return nil, invalid("VERIFIED evidence %s spans %d units, limit %d", ev, ev.Len(), e.opts.VerifiedMaxSpan)
	}
	if e.texts == nil {
		return nil, invalid("VERIFIED excerpt cannot be checked without observed text")
	}
	text, ok := e.texts.Text(ev)
	if !ok {
		return nil, invalid("VERIFIED evidence %s has no observed text", ev)
	}
	if !strings.Contains(normalize(text), normalize(excerpt)) {
		return nil, invalid("VERIFIED excerpt %q does not occur in units %s", excerpt, ev)
	}
	return Verified{content: content, excerpt: excerpt, evidence: ev}, nil
}

// normalize collapses runs of whitespace so that line breaks inside an
// evidence range do not defeat an otherwise exact quotation.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Unknowns returns one UNKNOWN finding for every NOT_READ segment of at
// least UnknownMinUnits units, in document order.
func (e *Engine) Unknowns() []Finding {
	var out []Finding
	for _, s := range e.ledger.Segments(schema.StatusNotRead) {
		if s.Range.Len() < e.opts.UnknownMinUnits {
			continue
		}
		out = append(out, Unknown{
			content:  fmt.Sprintf("Units %s (%d units) were not read; nothing is known about their content.", s.Range, s.Range.Len()),
			evidence: s.Range,
		})
	}
	return out
}

// ClassifyAll classifies every candidate and appends the auto-generated
// UNKNOWN findings. Each rejected candidate becomes a FINDING_REJECTED
// limitation so that it is reported rather than silently lost.
func (e *Engine) ClassifyAll(cands []schema.Candidate) ([]Finding, []schema.Limitation) {
	var (
		findings []Finding
		lims     []schema.Limitation
	)
	for _, c := range cands {
		f, err := e.Classify(c)
		if err != nil {
			lim := schema.Limitation{Kind: schema.LimitFindingRejected, Message: err.Error()}
			if c.Evidence != nil {
				ev := *c.Evidence
				lim.Range = &ev
			}
			lims = append(lims, lim)
			continue
		}
		findings = append(findings, f)
	}
	for _, u := range e.Unknowns() {
		if !hasUnknown(findings, u.(Unknown).evidence) {
			findings = append(findings, u)
		}
	}
	return findings, lims
}

func hasUnknown(fs []Finding, r schema.Range) bool {
	for _, f := range fs {
		if u, ok := f.(Unknown); ok && u.evidence == r {
			return true
		}
	}
	return false
}
