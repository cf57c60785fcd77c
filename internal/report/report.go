// Package report assembles the final skim report under a word budget. The
// coverage map and at least one limitation statement are mandatory; the
// builder fails closed with ErrBudgetInsufficient when they do not fit.
// Findings are admitted by label priority and anything that does not fit is
// counted in the elision note rather than dropped silently.
package report

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/skim/internal/budget"
	"github.com/dshills/skim/internal/coverage"
	"github.com/dshills/skim/internal/label"
	"github.com/dshills/skim/internal/schema"
)

// ErrBudgetInsufficient means the budget cannot hold even the minimum
// report. It is surfaced to the caller verbatim; no report is produced.
var ErrBudgetInsufficient = errors.New("report: budget insufficient")

// Priority is the admission order of findings. INFERRED goes last so that
// it is the first to be elided; UNKNOWN entries outrank it because they
// disclose what was not read.
var Priority = []schema.Label{
	schema.LabelVerified,
	schema.LabelSampled,
	schema.LabelUnknown,
	schema.LabelInferred,
}

func priorityOf(l schema.Label) int {
	for i, p := range Priority {
		if p == l {
			return i
		}
	}
	return len(Priority)
}

// Input is everything the builder needs from a finished run.
type Input struct {
	Source        schema.Source
	CoverageMap   []schema.Segment
	Findings      []label.Finding
	Limitations   []schema.Limitation
	PlannedRanges int
	CharsRead     int
}

// Build assembles the report, charging meter as it goes.
func Build(in Input, meter *budget.Meter) (*schema.Report, error) {
	if in.Source.Total < 1 {
		return nil, fmt.Errorf("report: source has no units")
	}
	if err := coverage.Check(in.CoverageMap, in.Source.Total); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}

	summary := Summarize(in)
	lims := Limitations(in, summary)

	if err := chargeMinimum(meter, Headline(summary, in.Source), in.CoverageMap, lims[0]); err != nil {
		return nil, err
	}

	rep := &schema.Report{
		Source:      in.Source,
		Summary:     summary,
		CoverageMap: append([]schema.Segment(nil), in.CoverageMap...),
		Limitations: []schema.Limitation{lims[0]},
	}

	for _, l := range lims[1:] {
		meter.BeginStep()
		kept, ok := chargeLimitation(meter, l)
		if !ok {
			rep.Elided.Limitations++
			continue
		}
		rep.Limitations = append(rep.Limitations, kept)
	}

	findings, elided := AdmitFindings(meter, in.Findings)
	rep.Findings = findings
	rep.Elided.Findings = elided.Findings
	rep.Elided.ByLabel = elided.ByLabel
	rep.Elided.Note = elisionNote(rep.Elided, meter.Caps().TotalCap)

	st := meter.State()
	rep.Budget = schema.BudgetUsage{Used: st.Used, Total: st.TotalCap, StepCap: st.StepCap}
	return rep, nil
}

// Summarize computes the coverage figures of in.
func Summarize(in Input) schema.Summary {
	ex, sa, nr, pe := coverage.Summarize(in.CoverageMap)
	failed := 0
	for _, l := range in.Limitations {
		if l.Kind == schema.LimitExtractionFailed {
			failed++
		}
	}
	return schema.Summary{
		CoveragePercent: Percent(ex+sa, in.Source.Total),
		ExaminedUnits:   ex,
		SampledUnits:    sa,
		NotReadUnits:    nr + pe,
		PlannedRanges:   in.PlannedRanges,
		FailedRanges:    failed,
		CharsRead:       in.CharsRead,
	}
}

// Percent returns read/total as a percentage rounded to one decimal place.
func Percent(read, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(int(float64(read)*1000/float64(total)+0.5)) / 10
}

// Headline is the one-line coverage statement that opens every report.
func Headline(s schema.Summary, src schema.Source) string {
	return fmt.Sprintf("coverage %.1f%% of %d %ss", s.CoveragePercent, src.Total, src.Units)
}

// row is how a coverage map entry is counted against the budget.
func row(s schema.Segment) string {
	return string(s.Status) + " " + s.Range.String()
}

func chargeMinimum(meter *budget.Meter, head string, segs []schema.Segment, first schema.Limitation) error {
	charge := func(what, text string) error {
		meter.BeginStep()
		if err := meter.ChargeText(text); err != nil {
			return fmt.Errorf("%w: %s does not fit: %v", ErrBudgetInsufficient, what, err)
		}
		return nil
	}
	if err := charge("headline", head); err != nil {
		return err
	}
	for _, seg := range segs {
		if err := charge("coverage map row "+seg.Range.String(), row(seg)); err != nil {
			return err
		}
	}
	meter.BeginStep()
	if _, ok := chargeLimitation(meter, first); !ok {
		return fmt.Errorf("%w: no limitation statement fits", ErrBudgetInsufficient)
	}
	return nil
}

func limitationText(l schema.Limitation) string {
	t := string(l.Kind) + " " + l.Message
	if l.Range != nil {
		t += " " + l.Range.String()
	}
	return t
}

// chargeLimitation charges l, shortening its message to the step cap when it
// overflows the step. It reports false when l cannot be charged at all.
func chargeLimitation(meter *budget.Meter, l schema.Limitation) (schema.Limitation, bool) {
	err := meter.ChargeText(limitationText(l))
	if err == nil {
		return l, true
	}
	if !errors.Is(err, budget.ErrStepBudgetExceeded) {
		return l, false
	}
	overhead := budget.Words(limitationText(schema.Limitation{Kind: l.Kind, Range: l.Range}))
	room := meter.Caps().StepCap - meter.State().StepUsed - overhead
	if room < 1 {
		return l, false
	}
	l.Message = budget.Truncate(l.Message, room)
	if err := meter.ChargeText(limitationText(l)); err != nil {
		return l, false
	}
	return l, true
}

// findingWords is the word cost of a finding: its label, its text fields and
// one word for the evidence range when present.
func findingWords(rf schema.ReportFinding) int {
	n := 1 + budget.Words(rf.Content, rf.Excerpt, rf.Basis)
	if rf.Evidence != nil {
		n++
	}
	return n
}

// AdmitFindings charges findings one step each in Priority order. A finding
// that overflows its step is compressed (content shortened, excerpt kept
// verbatim) and charged again; one that overflows the total budget is
// elided and counted. Once a finding is elided every later finding of lower
// priority is elided too, so a lower label never survives a higher one.
func AdmitFindings(meter *budget.Meter, findings []label.Finding) (schema.Findings, schema.Elision) {
	ordered := append([]label.Finding(nil), findings...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return priorityOf(ordered[i].Label()) < priorityOf(ordered[j].Label())
	})

	var (
		out schema.Findings
		el  schema.Elision
	)
	elide := func(l schema.Label) {
		el.Findings++
		if el.ByLabel == nil {
			el.ByLabel = make(map[schema.Label]int)
		}
		el.ByLabel[l]++
	}

	cutoff := len(Priority)
	for _, f := range ordered {
		rf := label.ToReport(f)
		if priorityOf(rf.Label) > cutoff {
			elide(rf.Label)
			continue
		}
		meter.BeginStep()
		err := meter.Charge(findingWords(rf))
		if errors.Is(err, budget.ErrStepBudgetExceeded) {
			rf, err = compress(meter, rf)
		}
		if err != nil {
			elide(rf.Label)
			cutoff = min(cutoff, priorityOf(rf.Label))
			continue
		}
		switch rf.Label {
		case schema.LabelVerified:
			out.Verified = append(out.Verified, rf)
		case schema.LabelSampled:
			out.Sampled = append(out.Sampled, rf)
		case schema.LabelInferred:
			out.Inferred = append(out.Inferred, rf)
		case schema.LabelUnknown:
			out.Unknown = append(out.Unknown, rf)
		}
	}
	for _, fs := range []*[]schema.ReportFinding{&out.Verified, &out.Sampled, &out.Inferred, &out.Unknown} {
		if *fs == nil {
			*fs = []schema.ReportFinding{}
		}
	}
	return out, el
}

func compress(meter *budget.Meter, rf schema.ReportFinding) (schema.ReportFinding, error) {
	fixed := findingWords(schema.ReportFinding{Excerpt: rf.Excerpt, Basis: budget.Truncate(rf.Basis, 8), Evidence: rf.Evidence})
	room := meter.Caps().StepCap - fixed
	if room < 1 {
		return rf, fmt.Errorf("%w: finding cannot be compressed below %d words", budget.ErrStepBudgetExceeded, fixed)
	}
	rf.Basis = budget.Truncate(rf.Basis, 8)
	rf.Content = budget.Truncate(rf.Content, room)
	rf.Compressed = true
	return rf, meter.Charge(findingWords(rf))
}

func elisionNote(el schema.Elision, total int) string {
	if el.Findings == 0 && el.Limitations == 0 {
		return ""
	}
	var parts []string
	if el.Findings > 0 {
		var by []string
		for _, l := range Priority {
			if n := el.ByLabel[l]; n > 0 {
				by = append(by, fmt.Sprintf("%s: %d", l, n))
			}
		}
		parts = append(parts, fmt.Sprintf("%d finding(s) elided (%s)", el.Findings, strings.Join(by, ", ")))
	}
	if el.Limitations > 0 {
		parts = append(parts, fmt.Sprintf("%d limitation statement(s) elided", el.Limitations))
	}
	return strings.Join(parts, "; ") + fmt.Sprintf(" to stay within the %d-word budget", total)
}
