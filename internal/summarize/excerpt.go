// Package summarize holds the offline summarizer. It proposes findings
// straight from observed text with no model involved, so its output is
// deterministic and every VERIFIED finding quotes the text it cites.
package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/skim/internal/schema"
)

// Excerpt proposes, for every sample, a VERIFIED quote of its first
// substantive unit and a SAMPLED description of the range. When observed
// headings exist it adds one INFERRED finding about the document's layout.
type Excerpt struct {
	// QuoteWords caps the length of each quote. Zero means 20.
	QuoteWords int
}

// Summarize implements the session's Summarizer.
func (e Excerpt) Summarize(ctx context.Context, in schema.SummaryInput) ([]schema.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := e.QuoteWords
	if limit <= 0 {
		limit = 20
	}

	var out []schema.Candidate
	for _, s := range in.Samples {
		ev := s.Range
		words := 0
		for _, u := range s.Units {
			words += len(strings.Fields(u.Text))
		}
		desc := fmt.Sprintf("%s %s (%s sample) holds %d words of text", unitTitle(in.Units, ev), ev, purpose(s.Purpose), words)
		if s.Partial {
			desc += "; the unit was only partly read"
		}
		out = append(out, schema.Candidate{Label: schema.LabelSampled, Content: desc, Evidence: &ev})

		u, ok := firstSubstantive(s.Units)
		if !ok {
			continue
		}
		quote := strings.Join(firstWords(u.Text, limit), " ")
		one := schema.Range{Start: u.Index, End: u.Index}
		out = append(out, schema.Candidate{
			Label:    schema.LabelVerified,
			Content:  fmt.Sprintf("%s %d opens with the quoted text", unitTitle(in.Units, one), u.Index),
			Excerpt:  quote,
			Evidence: &one,
		})
	}

	if len(in.Headings) > 0 {
		var names []string
		for i, h := range in.Headings {
			if i == 3 {
				break
			}
			names = append(names, fmt.Sprintf("%q", h.Text))
		}
		first := schema.Range{Start: in.Headings[0].Unit, End: in.Headings[0].Unit}
		out = append(out, schema.Candidate{
			Label:    schema.LabelInferred,
			Content:  "The document is organised into headed sections, including " + strings.Join(names, ", "),
			Basis:    fmt.Sprintf("%d heading(s) found in the units that were read", len(in.Headings)),
			Evidence: &first,
		})
	}
	return out, nil
}

func unitTitle(k schema.UnitKind, r schema.Range) string {
	name := string(k)
	if name == "" {
		name = "unit"
	}
	name = strings.ToUpper(name[:1]) + name[1:]
	if r.Len() > 1 {
		name += "s"
	}
	return name
}

func purpose(p schema.Purpose) string {
	return strings.ToLower(strings.ReplaceAll(string(p), "_", "-"))
}

// firstSubstantive returns the first unit with at least three words,
// falling back to the first non-blank one.
func firstSubstantive(us []schema.UnitText) (schema.UnitText, bool) {
	var fallback *schema.UnitText
	for i := range us {
		n := len(strings.Fields(us[i].Text))
		if n >= 3 {
			return us[i], true
		}
		if n > 0 && fallback == nil {
			fallback = &us[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return schema.UnitText{}, false
}

func firstWords(s string, n int) []string {
	f := strings.Fields(s)
	if len(f) > n {
		f = f[:n]
	}
	return f
}
