package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/skim/internal/budget"
	"github.com/dshills/skim/internal/coverage"
	"github.com/dshills/skim/internal/label"
	"github.com/dshills/skim/internal/schema"
)

type texts map[int]string

func (t texts) Text(r schema.Range) (string, bool) {
	var parts []string
	for u := r.Start; u <= r.End; u++ {
		s, ok := t[u]
		if !ok {
			return "", false
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n"), true
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func rp(a, b int) *schema.Range { return &schema.Range{Start: a, End: b} }

type fixture struct {
	ledger *coverage.Ledger
	engine *label.Engine
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	l, err := coverage.NewLedger(180)
	require.NoError(t, err)
	require.NoError(t, l.Apply(schema.Range{Start: 1, End: 18}, schema.StatusExamined))
	require.NoError(t, l.Apply(schema.Range{Start: 43, End: 48}, schema.StatusSampled))
	require.NoError(t, l.Apply(schema.Range{Start: 163, End: 180}, schema.StatusExamined))
	tx := texts{1: "Quarterly Operations Review", 44: "Revenue grew in the second quarter."}
	return fixture{ledger: l, engine: label.NewEngine(l, tx, label.Options{})}
}

func (f fixture) finding(t *testing.T, c schema.Candidate) label.Finding {
	t.Helper()
	got, err := f.engine.Classify(c)
	require.NoError(t, err)
	return got
}

func (f fixture) input() Input {
	return Input{
		Source:        schema.Source{Locator: "review.txt", Units: schema.UnitLine, Total: 180},
		CoverageMap:   f.ledger.Render(),
		PlannedRanges: 3,
		CharsRead:     1234,
	}
}

func TestAdmitFindings_ElidesInferredAtTotalCap(t *testing.T) {
	fx := newFixture(t)
	meter, err := budget.NewMeter(budget.DefaultCaps())
	require.NoError(t, err)
	for i := 0; i < 19; i++ {
		meter.BeginStep()
		require.NoError(t, meter.Charge(100))
	}
	meter.BeginStep()
	require.NoError(t, meter.Charge(90))
	require.Equal(t, 1990, meter.Used())

	inf := fx.finding(t, schema.Candidate{Label: schema.LabelInferred, Content: words(27), Basis: "section pattern"})
	require.Equal(t, 30, findingWords(label.ToReport(inf)))

	got, el := AdmitFindings(meter, []label.Finding{inf})
	assert.Equal(t, 0, got.Count())
	assert.Equal(t, 1, el.Findings)
	assert.Equal(t, 1, el.ByLabel[schema.LabelInferred])
	assert.Equal(t, 1990, meter.Used(), "elided finding must not be charged")
	assert.Contains(t, elisionNote(el, 2000), "INFERRED: 1")
}

func TestAdmitFindings_LowerLabelNeverOutlivesHigher(t *testing.T) {
	fx := newFixture(t)
	meter, err := budget.NewMeter(budget.DefaultCaps())
	require.NoError(t, err)
	for i := 0; i < 19; i++ {
		meter.BeginStep()
		require.NoError(t, meter.Charge(100))
	}
	meter.BeginStep()
	require.NoError(t, meter.Charge(90))

	sampled := fx.finding(t, schema.Candidate{Label: schema.LabelSampled, Content: words(26), Evidence: rp(44, 44)})
	require.Equal(t, 28, findingWords(label.ToReport(sampled)))
	inferred := fx.finding(t, schema.Candidate{Label: schema.LabelInferred, Content: words(1), Basis: "headings"})
	require.Equal(t, 3, findingWords(label.ToReport(inferred)))

	got, el := AdmitFindings(meter, []label.Finding{inferred, sampled})
	assert.Equal(t, 0, got.Count())
	assert.Equal(t, map[schema.Label]int{schema.LabelSampled: 1, schema.LabelInferred: 1}, el.ByLabel)
	assert.Equal(t, 1990, meter.Used())
}

func TestAdmitFindings_SameLabelStillFits(t *testing.T) {
	fx := newFixture(t)
	meter, err := budget.NewMeter(budget.Caps{StepCap: 30, TotalCap: 30})
	require.NoError(t, err)

	long := fx.finding(t, schema.Candidate{Label: schema.LabelSampled, Content: words(40), Evidence: rp(44, 44)})
	short := fx.finding(t, schema.Candidate{Label: schema.LabelSampled, Content: words(5), Evidence: rp(44, 44)})
	inferred := fx.finding(t, schema.Candidate{Label: schema.LabelInferred, Content: words(1), Basis: "headings"})

	got, el := AdmitFindings(meter, []label.Finding{long, short, inferred})
	assert.Len(t, got.Sampled, 1)
	assert.Empty(t, got.Inferred)
	assert.Equal(t, map[schema.Label]int{schema.LabelSampled: 1, schema.LabelInferred: 1}, el.ByLabel)
}

func TestAdmitFindings_PriorityOrder(t *testing.T) {
	fx := newFixture(t)
	meter, err := budget.NewMeter(budget.Caps{StepCap: 50, TotalCap: 60})
	require.NoError(t, err)

	inferred := fx.finding(t, schema.Candidate{Label: schema.LabelInferred, Content: words(20), Basis: "rule"})
	verified := fx.finding(t, schema.Candidate{Label: schema.LabelVerified, Content: words(20), Excerpt: "Quarterly Operations Review", Evidence: rp(1, 1)})
	sampled := fx.finding(t, schema.Candidate{Label: schema.LabelSampled, Content: words(20), Evidence: rp(44, 44)})

	got, el := AdmitFindings(meter, []label.Finding{inferred, sampled, verified})
	assert.Len(t, got.Verified, 1)
	assert.Len(t, got.Sampled, 1)
	assert.Empty(t, got.Inferred)
	assert.Equal(t, map[schema.Label]int{schema.LabelInferred: 1}, el.ByLabel)
}

func TestAdmitFindings_CompressesOverStep(t *testing.T) {
	fx := newFixture(t)
	meter, err := budget.NewMeter(budget.DefaultCaps())
	require.NoError(t, err)

	long := fx.finding(t, schema.Candidate{Label: schema.LabelVerified, Content: words(150), Excerpt: "Revenue grew", Evidence: rp(44, 44)})
	got, el := AdmitFindings(meter, []label.Finding{long})
	require.Len(t, got.Verified, 1)
	rf := got.Verified[0]
	assert.True(t, rf.Compressed)
	assert.Equal(t, "Revenue grew", rf.Excerpt, "excerpt must stay verbatim")
	assert.LessOrEqual(t, findingWords(rf), 100)
	assert.Equal(t, 0, el.Findings)
}

func TestBuild_Report(t *testing.T) {
	fx := newFixture(t)
	in := fx.input()
	in.Limitations = []schema.Limitation{{Kind: schema.LimitExtractionFailed, Range: rp(88, 92), Message: "units 88-92 could not be extracted"}}
	findings, rejected := fx.engine.ClassifyAll([]schema.Candidate{
		{Label: schema.LabelVerified, Content: "title", Excerpt: "Quarterly Operations Review", Evidence: rp(1, 1)},
		{Label: schema.LabelVerified, Content: "fabricated", Excerpt: "Loss", Evidence: rp(1, 1)},
	})
	in.Findings = findings
	in.Limitations = append(in.Limitations, rejected...)

	meter, err := budget.NewMeter(budget.DefaultCaps())
	require.NoError(t, err)
	rep, err := Build(in, meter)
	require.NoError(t, err)

	assert.Equal(t, 23.3, rep.Summary.CoveragePercent)
	assert.Equal(t, 36, rep.Summary.ExaminedUnits)
	assert.Equal(t, 6, rep.Summary.SampledUnits)
	assert.Equal(t, 138, rep.Summary.NotReadUnits)
	assert.Equal(t, 1, rep.Summary.FailedRanges)
	assert.Len(t, rep.Findings.Verified, 1)
	assert.NotEmpty(t, rep.Findings.Unknown, "unread gaps are reported as UNKNOWN")
	assert.Equal(t, fx.ledger.Render(), rep.CoverageMap)

	var kinds []schema.LimitationKind
	for _, l := range rep.Limitations {
		kinds = append(kinds, l.Kind)
	}
	assert.Equal(t, []schema.LimitationKind{
		schema.LimitExtractionFailed,
		schema.LimitNotRead,
		schema.LimitFindingRejected,
		schema.LimitIncomplete,
	}, kinds)
	assert.LessOrEqual(t, rep.Budget.Used, rep.Budget.Total)
	assert.Equal(t, meter.Used(), rep.Budget.Used)
	assert.Empty(t, rep.Elided.Note)
}

func TestBuild_WholeDocument(t *testing.T) {
	l, err := coverage.NewLedger(12)
	require.NoError(t, err)
	require.NoError(t, l.Apply(schema.Range{Start: 1, End: 12}, schema.StatusExamined))
	meter, _ := budget.NewMeter(budget.DefaultCaps())

	rep, err := Build(Input{
		Source:      schema.Source{Locator: "short.txt", Units: schema.UnitLine, Total: 12},
		CoverageMap: l.Render(),
	}, meter)
	require.NoError(t, err)
	assert.Equal(t, 100.0, rep.Summary.CoveragePercent)
	require.Len(t, rep.Limitations, 1)
	assert.Equal(t, schema.LimitIncomplete, rep.Limitations[0].Kind)
}

func TestBuild_BudgetInsufficient(t *testing.T) {
	fx := newFixture(t)
	meter, err := budget.NewMeter(budget.Caps{StepCap: 6, TotalCap: 10})
	require.NoError(t, err)
	_, err = Build(fx.input(), meter)
	assert.ErrorIs(t, err, ErrBudgetInsufficient)
}

func TestBuild_RejectsBrokenPartition(t *testing.T) {
	meter, _ := budget.NewMeter(budget.DefaultCaps())
	_, err := Build(Input{
		Source:      schema.Source{Total: 10},
		CoverageMap: []schema.Segment{{Range: schema.Range{Start: 1, End: 5}, Status: schema.StatusExamined}},
	}, meter)
	assert.Error(t, err)
}

func TestBuild_ElidesLimitationsWhenTight(t *testing.T) {
	fx := newFixture(t)
	in := fx.input()
	for a := 50; a < 160; a += 10 {
		in.Limitations = append(in.Limitations, schema.Limitation{
			Kind: schema.LimitFindingRejected, Range: rp(a, a), Message: words(40),
		})
	}
	// headline 5 + 5 rows of 2 + first limitation.
	meter, err := budget.NewMeter(budget.Caps{StepCap: 100, TotalCap: 120})
	require.NoError(t, err)
	rep, err := Build(in, meter)
	require.NoError(t, err)
	assert.Greater(t, rep.Elided.Limitations, 0)
	assert.Contains(t, rep.Elided.Note, "limitation statement(s) elided")
	assert.LessOrEqual(t, rep.Budget.Used, 120)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, Percent(0, 0))
	assert.Equal(t, 33.3, Percent(1, 3))
	assert.Equal(t, 66.7, Percent(2, 3))
	assert.Equal(t, 100.0, Percent(12, 12))
}
