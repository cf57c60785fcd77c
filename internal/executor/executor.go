// Package executor runs a sample plan against an extraction collaborator.
// Each planned range is requested under a per-call character ceiling and a
// per-call timeout; ledger updates are applied in plan order by a single
// coordinator even when fetches run in parallel.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/skim/internal/coverage"
	"github.com/dshills/skim/internal/schema"
)

// ErrExtractionFailed wraps every per-range extraction failure, including
// timeouts. It is recorded as a limitation and never aborts a session.
var ErrExtractionFailed = errors.New("executor: extraction failed")

// Extractor returns the text of a unit range. Implementations must be
// idempotent and must return at most maxChars characters; when they stop
// early they return a contiguous prefix of the range with Truncated set.
type Extractor interface {
	Extract(ctx context.Context, locator string, r schema.Range, maxChars int) (schema.Content, error)
}

// Options configures an Executor.
type Options struct {
	CeilingChars int           `mapstructure:"ceiling_chars" yaml:"ceiling_chars" json:"ceiling_chars"`
	Timeout      time.Duration `mapstructure:"extract_timeout" yaml:"extract_timeout" json:"extract_timeout"`
	Parallelism  int           `mapstructure:"parallelism" yaml:"parallelism" json:"parallelism"`
}

// DefaultOptions returns a 10000-character ceiling, a 30s timeout and
// sequential fetching.
func DefaultOptions() Options {
	return Options{CeilingChars: 10000, Timeout: 30 * time.Second, Parallelism: 1}
}

// Result is what one plan execution produced.
type Result struct {
	Samples      []schema.Sample
	Limitations  []schema.Limitation
	Failed       []schema.Range
	Observations *Observations
	Calls        int
}

// Executor runs plans. It holds no per-session state and may be reused.
type Executor struct {
	ext  Extractor
	opts Options
	log  *zap.Logger
}

// New returns an Executor. A nil logger disables logging.
func New(ext Extractor, opts Options, log *zap.Logger) *Executor {
	def := DefaultOptions()
	if opts.CeilingChars <= 0 {
		opts.CeilingChars = def.CeilingChars
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = def.Parallelism
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{ext: ext, opts: opts, log: log}
}

// piece is one contiguous outcome of fetching part of a planned range.
type piece struct {
	r       schema.Range
	units   []schema.UnitText
	partial bool
	err     error
}

type fetched struct {
	pieces []piece
	calls  int
}

// Run executes every planned range of sp and records outcomes in ledger.
// Extraction failures are isolated per range. Run returns an error only for
// ledger corruption or when ctx is cancelled; the result gathered so far is
// returned in both cases.
func (e *Executor) Run(ctx context.Context, sp schema.SamplePlan, ledger *coverage.Ledger) (*Result, error) {
	results := make([]fetched, len(sp.Ranges))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallelism)
	for i, pr := range sp.Ranges {
		g.Go(func() error {
			results[i] = e.fetch(gctx, sp.Locator, pr.Range)
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{Observations: NewObservations()}
	for i, pr := range sp.Ranges {
		res.Calls += results[i].calls
		for _, p := range results[i].pieces {
			if err := e.apply(sp, pr, p, ledger, res); err != nil {
				return res, err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("executor: %w", err)
	}
	return res, nil
}

// fetch requests r, re-requesting the remainder whenever the collaborator
// stops short. A truncated reply with no units splits the range in halves.
func (e *Executor) fetch(ctx context.Context, locator string, r schema.Range) fetched {
	var out fetched
	var walk func(r schema.Range)
	walk = func(r schema.Range) {
		out.calls++
		c, err := e.extractOnce(ctx, locator, r)
		if err != nil {
			out.pieces = append(out.pieces, piece{r: r, err: err})
			return
		}
		units := prefix(c.Units, r)
		if len(units) == 0 {
			if c.Truncated && r.Len() > 1 {
				mid := r.Start + r.Len()/2 - 1
				walk(schema.Range{Start: r.Start, End: mid})
				walk(schema.Range{Start: mid + 1, End: r.End})
				return
			}
			out.pieces = append(out.pieces, piece{r: r, err: fmt.Errorf("%w: %s: collaborator returned no text", ErrExtractionFailed, r)})
			return
		}
		last := units[len(units)-1].Index
		if c.Partial {
			if last > r.Start {
				out.pieces = append(out.pieces, piece{r: schema.Range{Start: r.Start, End: last - 1}, units: units[:len(units)-1]})
			}
			out.pieces = append(out.pieces, piece{r: schema.Range{Start: last, End: last}, units: units[len(units)-1:], partial: true})
		} else {
			out.pieces = append(out.pieces, piece{r: schema.Range{Start: r.Start, End: last}, units: units})
		}
		if last < r.End {
			if !c.Truncated {
				out.pieces = append(out.pieces, piece{
					r:   schema.Range{Start: last + 1, End: r.End},
					err: fmt.Errorf("%w: collaborator returned units %d-%d only", ErrExtractionFailed, r.Start, last),
				})
				return
			}
			walk(schema.Range{Start: last + 1, End: r.End})
		}
	}
	walk(r)
	return out
}

// extractOnce performs one collaborator call bounded by the per-call
// timeout. The call runs in its own goroutine so that a collaborator which
// ignores ctx cannot hang the session.
func (e *Executor) extractOnce(ctx context.Context, locator string, r schema.Range) (schema.Content, error) {
	cctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	type reply struct {
		c   schema.Content
		err error
	}
	ch := make(chan reply, 1)
	go func() {
		c, err := e.ext.Extract(cctx, locator, r, e.opts.CeilingChars)
		ch <- reply{c, err}
	}()

	select {
	case rep := <-ch:
		if rep.err != nil {
			return schema.Content{}, fmt.Errorf("%w: %s: %v", ErrExtractionFailed, r, rep.err)
		}
		return rep.c, nil
	case <-cctx.Done():
		return schema.Content{}, fmt.Errorf("%w: %s: %v", ErrExtractionFailed, r, cctx.Err())
	}
}

// prefix returns the units of us that form a contiguous run starting at
// r.Start and lying inside r.
func prefix(us []schema.UnitText, r schema.Range) []schema.UnitText {
	want := r.Start
	var out []schema.UnitText
	for _, u := range us {
		if u.Index != want || u.Index > r.End {
			break
		}
		out = append(out, u)
		want++
	}
	return out
}

// observedStatus is EXAMINED for head, tail, requested and whole-document
// directives and SAMPLED for everything else.
func observedStatus(sp schema.SamplePlan, p schema.Purpose) schema.CoverageStatus {
	if sp.Whole || p == schema.PurposeBeginning || p == schema.PurposeEnd || p == schema.PurposeRequested {
		return schema.StatusExamined
	}
	return schema.StatusSampled
}

func (e *Executor) apply(sp schema.SamplePlan, pr schema.PlannedRange, p piece, ledger *coverage.Ledger, res *Result) error {
	if p.err != nil {
		e.log.Warn("range extraction failed",
			zap.String("locator", sp.Locator),
			zap.Stringer("range", p.r),
			zap.Error(p.err))
		if err := ledger.Apply(p.r, schema.StatusNotRead); err != nil {
			return fmt.Errorf("executor: %w", err)
		}
		r := p.r
		res.Failed = append(res.Failed, r)
		res.Limitations = append(res.Limitations, schema.Limitation{
			Kind:    schema.LimitExtractionFailed,
			Range:   &r,
			Message: fmt.Sprintf("units %s could not be extracted and were not read: %v", r, p.err),
		})
		return nil
	}

	status := observedStatus(sp, pr.Purpose)
	if p.partial {
		status = schema.StatusSampled
	}
	if err := ledger.Apply(p.r, status); err != nil {
		return fmt.Errorf("executor: %w", err)
	}
	res.Observations.Record(p.units)
	res.Samples = append(res.Samples, schema.Sample{
		Range:   p.r,
		Purpose: pr.Purpose,
		Status:  status,
		Partial: p.partial,
		Units:   p.units,
	})
	if p.partial {
		r := p.r
		res.Limitations = append(res.Limitations, schema.Limitation{
			Kind:    schema.LimitPartialRead,
			Range:   &r,
			Message: fmt.Sprintf("unit %s exceeds the %d-character ceiling and was read only in part", r, e.opts.CeilingChars),
		})
	}
	e.log.Debug("range extracted",
		zap.Stringer("range", p.r),
		zap.String("purpose", string(pr.Purpose)),
		zap.String("status", string(status)),
		zap.Bool("partial", p.partial))
	return nil
}
