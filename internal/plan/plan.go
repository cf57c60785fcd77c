// Package plan computes the deterministic stratified sample plan for a
// document of N units: a head and a tail, windows around fixed relative
// marks, periodic single-unit points, and synthetic points wherever the
// unread gap between two planned ranges would exceed the policy's max gap.
package plan

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/dshills/skim/internal/policy"
	"github.com/dshills/skim/internal/schema"
)

// ErrCoverageGapUnsatisfiable is returned when gap filling needs more
// synthetic points than the policy's iteration ceiling allows. The caller
// must relax the policy (larger max_gap or iteration ceiling).
var ErrCoverageGapUnsatisfiable = errors.New("plan: coverage gap unsatisfiable")

// ErrRequestOutOfRange is returned when a requested range does not lie
// inside the document.
var ErrRequestOutOfRange = errors.New("plan: requested range outside the document")

// candidate is a range awaiting merge. rank is the listing position of the
// step that produced it; lower ranks win the purpose tag on merge.
type candidate struct {
	r       schema.Range
	purpose schema.Purpose
	rank    int
}

// Build computes the sample plan for a document of total units. headings are
// optional unit indexes reported by a structure collaborator; each one that
// is not already covered becomes a PERIODIC point.
func Build(total int, pol policy.Policy, headings []int) (schema.SamplePlan, error) {
	if total < 1 {
		return schema.SamplePlan{}, fmt.Errorf("plan: total units must be positive, got %d", total)
	}
	if err := pol.Validate(); err != nil {
		return schema.SamplePlan{}, fmt.Errorf("plan: %w", err)
	}
	sp := schema.SamplePlan{Total: total, Profile: pol.Name}

	if total <= pol.MinPlanUnits {
		sp.Whole = true
		sp.Ranges = []schema.PlannedRange{{Range: schema.Range{Start: 1, End: total}, Purpose: schema.PurposeBeginning}}
		return sp, nil
	}

	var cands []candidate
	rank := 0
	cands = append(cands, candidate{r: head(total, pol.BeginningFraction), purpose: schema.PurposeBeginning, rank: rank})
	rank++
	for _, f := range pol.MarkFractions {
		cands = append(cands, candidate{r: markWindow(total, f, pol.MarkWindowFraction), purpose: markPurpose(f), rank: rank})
		rank++
	}
	cands = append(cands, candidate{r: tail(total, pol.EndFraction), purpose: schema.PurposeEnd, rank: rank})
	rank++
	periodicRank := rank

	fixed := append([]candidate(nil), cands...)
	stride := pol.Stride(total)
	for u := stride; u <= total; u += stride {
		if !covered(fixed, u) {
			cands = append(cands, point(u, periodicRank))
		}
	}

	added := 0
	for _, h := range headings {
		if added >= pol.MaxHeadingSamples {
			break
		}
		if h < 1 || h > total || covered(cands, h) {
			continue
		}
		cands = append(cands, point(h, periodicRank))
		added++
	}

	merged, err := fillGaps(merge(cands), pol.MaxGap, pol.MaxGapIterations, periodicRank)
	if err != nil {
		return schema.SamplePlan{}, err
	}
	sp.Ranges = toPlanned(merged)
	return sp, nil
}

// Conservative returns the degraded plan used when the size probe fails:
// the document is assumed to hold pol.FallbackUnits units and only its
// beginning and end are sampled.
func Conservative(pol policy.Policy) schema.SamplePlan {
	total := pol.FallbackUnits
	if total < 1 {
		total = policy.Default().FallbackUnits
	}
	cands := []candidate{
		{r: head(total, pol.BeginningFraction), purpose: schema.PurposeBeginning, rank: 0},
		{r: tail(total, pol.EndFraction), purpose: schema.PurposeEnd, rank: 1},
	}
	return schema.SamplePlan{
		Total:         total,
		Profile:       pol.Name,
		Ranges:        toPlanned(merge(cands)),
		SizeEstimated: true,
	}
}

// Require adds caller-requested ranges to sp. A requested range that
// overlaps or touches a planned one is merged with it and the result takes
// the REQUESTED purpose. A whole-document plan already reads everything and
// is returned unchanged once the requests are checked.
func Require(sp schema.SamplePlan, reqs []schema.Range) (schema.SamplePlan, error) {
	for _, r := range reqs {
		if !r.Within(sp.Total) {
			return schema.SamplePlan{}, fmt.Errorf("%w: %s of %d", ErrRequestOutOfRange, r, sp.Total)
		}
	}
	if len(reqs) == 0 || sp.Whole {
		return sp, nil
	}
	cands := make([]candidate, 0, len(reqs)+len(sp.Ranges))
	for _, r := range reqs {
		cands = append(cands, candidate{r: r, purpose: schema.PurposeRequested, rank: -1})
	}
	for i, p := range sp.Ranges {
		cands = append(cands, candidate{r: p.Range, purpose: p.Purpose, rank: i})
	}
	sp.Ranges = toPlanned(merge(cands))
	return sp, nil
}

// MaxGap returns the largest run of unplanned units between two consecutive
// planned ranges.
func MaxGap(sp schema.SamplePlan) int {
	maxGap := 0
	for i := 1; i < len(sp.Ranges); i++ {
		if g := sp.Ranges[i].Range.Start - sp.Ranges[i-1].Range.End - 1; g > maxGap {
			maxGap = g
		}
	}
	return maxGap
}

// ceilFrac returns ceil(n*f) with a small tolerance so that exact products
// such as 180*0.10 are not pushed up by float error.
func ceilFrac(n int, f float64) int {
	v := int(math.Ceil(float64(n)*f - 1e-9))
	if v < 1 {
		v = 1
	}
	if v > n {
		v = n
	}
	return v
}

func head(n int, f float64) schema.Range {
	return schema.Range{Start: 1, End: ceilFrac(n, f)}
}

func tail(n int, f float64) schema.Range {
	return schema.Range{Start: n - ceilFrac(n, f) + 1, End: n}
}

func markWindow(n int, f, windowFrac float64) schema.Range {
	center := int(math.Round(float64(n) * f))
	window := int(math.Round(float64(n) * windowFrac))
	if window < 1 {
		window = 1
	}
	lo, hi := center-window/2, center+window/2
	if lo < 1 {
		lo = 1
	}
	if hi > n {
		hi = n
	}
	if lo > hi {
		lo = hi
	}
	return schema.Range{Start: lo, End: hi}
}

// markPurpose tags a mark by the quartile it sits nearest to.
func markPurpose(f float64) schema.Purpose {
	switch {
	case f < 0.375:
		return schema.PurposeQuarter
	case f < 0.625:
		return schema.PurposeHalf
	default:
		return schema.PurposeThreeQuarter
	}
}

func point(u, rank int) candidate {
	return candidate{r: schema.Range{Start: u, End: u}, purpose: schema.PurposePeriodic, rank: rank}
}

func covered(cands []candidate, u int) bool {
	for _, c := range cands {
		if c.r.Contains(u) {
			return true
		}
	}
	return false
}

// merge sorts candidates by start and folds overlapping or adjacent ranges.
func merge(cands []candidate) []candidate {
	if len(cands) == 0 {
		return nil
	}
	sorted := append([]candidate(nil), cands...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].r.Start != sorted[j].r.Start {
			return sorted[i].r.Start < sorted[j].r.Start
		}
		return sorted[i].rank < sorted[j].rank
	})
	out := []candidate{sorted[0]}
	for _, c := range sorted[1:] {
		last := &out[len(out)-1]
		if c.r.Start > last.r.End+1 {
			out = append(out, c)
			continue
		}
		if c.r.End > last.r.End {
			last.r.End = c.r.End
		}
		if c.rank < last.rank {
			last.rank = c.rank
			last.purpose = c.purpose
		}
	}
	return out
}

// fillGaps inserts a PERIODIC point at the midpoint of every gap wider than
// maxGap and re-validates until no such gap remains. More than maxIter
// insertions fails the plan.
func fillGaps(ranges []candidate, maxGap, maxIter, rank int) ([]candidate, error) {
	inserted := 0
	for {
		var next []candidate
		widened := false
		for i, c := range ranges {
			next = append(next, c)
			if i+1 == len(ranges) {
				break
			}
			gapStart, gapEnd := c.r.End+1, ranges[i+1].r.Start-1
			if gapEnd-gapStart+1 <= maxGap {
				continue
			}
			if inserted >= maxIter {
				return nil, fmt.Errorf("%w: gap %d-%d exceeds max_gap %d after %d insertions",
					ErrCoverageGapUnsatisfiable, gapStart, gapEnd, maxGap, inserted)
			}
			next = append(next, point((gapStart+gapEnd)/2, rank))
			inserted++
			widened = true
		}
		ranges = merge(next)
		if !widened {
			return ranges, nil
		}
	}
}

func toPlanned(cands []candidate) []schema.PlannedRange {
	out := make([]schema.PlannedRange, len(cands))
	for i, c := range cands {
		out[i] = schema.PlannedRange{Range: c.r, Purpose: c.purpose}
	}
	return out
}
