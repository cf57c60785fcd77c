// Package skim wires the sampling pipeline into one session: measure, plan,
// execute, summarize, label and report. A Session is single-use state for
// one document; collaborators are supplied by the caller.
package skim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/skim/internal/budget"
	"github.com/dshills/skim/internal/coverage"
	"github.com/dshills/skim/internal/executor"
	"github.com/dshills/skim/internal/label"
	"github.com/dshills/skim/internal/plan"
	"github.com/dshills/skim/internal/policy"
	"github.com/dshills/skim/internal/probe"
	"github.com/dshills/skim/internal/report"
	"github.com/dshills/skim/internal/schema"
)

// ErrEmptyDocument is returned when a document measures zero units.
var ErrEmptyDocument = errors.New("skim: document has no units")

// Source measures and extracts one kind of document.
type Source interface {
	probe.Measurer
	executor.Extractor
	Units() schema.UnitKind
}

// Structurer optionally reports headings. A Source that also implements it
// is used automatically; failures only cost plan quality.
type Structurer interface {
	Structure(ctx context.Context, locator string) ([]schema.Heading, error)
}

// Clipper is implemented by sources that may stop reading a document before
// its end, such as a capped download. Clipped is only meaningful after
// Measure.
type Clipper interface {
	Clipped(ctx context.Context, locator string) bool
}

// Summarizer proposes candidate findings from observed text.
type Summarizer interface {
	Summarize(ctx context.Context, in schema.SummaryInput) ([]schema.Candidate, error)
}

// AbortError reports a structural failure together with the coverage map
// gathered before it happened.
type AbortError struct {
	Stage string
	Err   error
	Map   []schema.Segment
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("skim: %s aborted: %v", e.Stage, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

// Options configures a Session.
type Options struct {
	Executor executor.Options
	Version  string
	Logger   *zap.Logger
}

// Run is the outcome of executing a plan.
type Run struct {
	Plan         schema.SamplePlan
	Ledger       *coverage.Ledger
	Findings     []label.Finding
	Limitations  []schema.Limitation
	Samples      []schema.Sample
	Observations *executor.Observations
	Headings     []schema.Heading
}

// Session is one skim of one document.
type Session struct {
	ID string

	src      Source
	summ     Summarizer
	opts     Options
	log      *zap.Logger
	pol      policy.Policy
	headings []schema.Heading
	now      func() time.Time
}

// NewSession returns a session. summ may be nil, in which case the report
// holds only the automatically generated UNKNOWN findings.
func NewSession(src Source, summ Summarizer, opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.NewString()
	return &Session{
		ID:   id,
		src:  src,
		summ: summ,
		opts: opts,
		log:  log.With(zap.String("session", id)),
		pol:  policy.Default(),
		now:  time.Now,
	}
}

// Plan measures locator and computes its sample plan under pol. A failed
// measurement degrades to the conservative plan; an exhaustive request or
// an unsatisfiable gap policy is an error.
func (s *Session) Plan(ctx context.Context, locator string, pol policy.Policy) (schema.SamplePlan, error) {
	if err := policy.CheckScope(pol); err != nil {
		return schema.SamplePlan{}, err
	}
	if err := pol.Validate(); err != nil {
		return schema.SamplePlan{}, fmt.Errorf("skim: %w", err)
	}
	s.pol = pol

	n, err := probe.Measure(ctx, s.src, locator)
	if errors.Is(err, probe.ErrSizeUnavailable) {
		s.log.Warn("size probe failed, using conservative plan",
			zap.String("locator", locator),
			zap.Int("assumed_units", pol.FallbackUnits),
			zap.Error(err))
		sp := plan.Conservative(pol)
		sp.Locator, sp.Units = locator, s.src.Units()
		return sp, nil
	}
	if err != nil {
		return schema.SamplePlan{}, err
	}
	if n == 0 {
		return schema.SamplePlan{}, fmt.Errorf("%w: %s", ErrEmptyDocument, locator)
	}

	var units []int
	if st, ok := s.src.(Structurer); ok {
		hs, err := st.Structure(ctx, locator)
		if err != nil {
			s.log.Debug("structure unavailable", zap.Error(err))
		}
		s.headings = hs
		for _, h := range hs {
			units = append(units, h.Unit)
		}
	}

	sp, err := plan.Build(n, pol, units)
	if err != nil {
		return schema.SamplePlan{}, &AbortError{
			Stage: "plan",
			Err:   err,
			Map:   []schema.Segment{{Range: schema.Range{Start: 1, End: n}, Status: schema.StatusNotRead}},
		}
	}
	sp.Locator, sp.Units = locator, s.src.Units()
	if c, ok := s.src.(Clipper); ok && c.Clipped(ctx, locator) {
		s.log.Warn("document clipped; size is a lower bound", zap.String("locator", locator), zap.Int("units", n))
		sp.Clipped, sp.SizeEstimated = true, true
	}
	s.log.Info("plan computed",
		zap.String("locator", locator),
		zap.Int("units", n),
		zap.Int("ranges", len(sp.Ranges)),
		zap.Int("planned_units", sp.PlannedUnits()),
		zap.Bool("whole", sp.Whole))
	return sp, nil
}

// Run executes sp, summarizes what was observed and labels the candidates.
func (s *Session) Run(ctx context.Context, sp schema.SamplePlan) (*Run, error) {
	ledger, err := coverage.FromPlan(sp)
	if err != nil {
		return nil, fmt.Errorf("skim: %w", err)
	}
	ex := executor.New(s.src, s.opts.Executor, s.log)
	res, err := ex.Run(ctx, sp, ledger)
	if err != nil {
		return nil, &AbortError{Stage: "execute", Err: err, Map: ledger.Render()}
	}
	s.log.Info("plan executed",
		zap.Int("calls", res.Calls),
		zap.Int("failed_ranges", len(res.Failed)),
		zap.Float64("coverage_percent", ledger.Percent()))

	var cands []schema.Candidate
	if s.summ != nil {
		in := schema.SummaryInput{
			Locator:     sp.Locator,
			Units:       sp.Units,
			Total:       sp.Total,
			CoverageMap: ledger.Render(),
			Samples:     res.Samples,
			Headings:    observedHeadings(s.headings, res.Observations),
		}
		cands, err = s.summ.Summarize(ctx, in)
		if err != nil {
			return nil, &AbortError{Stage: "summarize", Err: err, Map: ledger.Render()}
		}
	}

	engine := label.NewEngine(ledger, res.Observations, label.Options{
		VerifiedMaxSpan: s.pol.VerifiedMaxSpan,
		UnknownMinUnits: s.pol.UnknownMinUnits,
	})
	findings, rejected := engine.ClassifyAll(cands)
	if len(rejected) > 0 {
		s.log.Warn("candidate findings rejected", zap.Int("count", len(rejected)))
	}
	return &Run{
		Plan:         sp,
		Ledger:       ledger,
		Findings:     findings,
		Limitations:  append(res.Limitations, rejected...),
		Samples:      res.Samples,
		Observations: res.Observations,
		Headings:     s.headings,
	}, nil
}

// observedHeadings keeps only headings whose unit was actually read, so a
// summarizer never sees text from unread units.
func observedHeadings(hs []schema.Heading, obs *executor.Observations) []schema.Heading {
	var out []schema.Heading
	for _, h := range hs {
		if _, ok := obs.Text(schema.Range{Start: h.Unit, End: h.Unit}); ok {
			out = append(out, h)
		}
	}
	return out
}

// Report assembles the budgeted report for run.
func (s *Session) Report(run *Run, caps budget.Caps) (*schema.Report, error) {
	meter, err := budget.NewMeter(caps)
	if err != nil {
		return nil, err
	}
	in := report.Input{
		Source: schema.Source{
			Locator:       run.Plan.Locator,
			Units:         run.Plan.Units,
			Total:         run.Plan.Total,
			SizeEstimated: run.Plan.SizeEstimated,
			Clipped:       run.Plan.Clipped,
			Profile:       run.Plan.Profile,
		},
		CoverageMap:   run.Ledger.Render(),
		Findings:      run.Findings,
		Limitations:   run.Limitations,
		PlannedRanges: len(run.Plan.Ranges),
		CharsRead:     run.Observations.Chars(),
	}
	rep, err := report.Build(in, meter)
	if err != nil {
		return nil, &AbortError{Stage: "report", Err: err, Map: run.Ledger.Render()}
	}
	rep.Tool = "skim"
	rep.Version = s.opts.Version
	rep.SessionID = s.ID
	rep.GeneratedAt = s.now().UTC()
	return rep, nil
}
