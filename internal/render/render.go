// Package render produces output from reports, plans and document outlines.
package render

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/skim/internal/archive"
	"github.com/dshills/skim/internal/report"
	"github.com/dshills/skim/internal/schema"
	"github.com/dshills/skim/internal/source"
	"github.com/dshills/skim/internal/structure"
)

// JSON produces a pretty-printed JSON representation of v. For a report the
// output round-trips through json.Unmarshal back to an equal Report.
func JSON(v any) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("render: nil value")
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render: json marshal: %w", err)
	}
	return b, nil
}

// labelBadge is the marker put in front of each finding.
var labelBadge = map[schema.Label]string{
	schema.LabelVerified: "`VERIFIED`",
	schema.LabelSampled:  "`SAMPLED`",
	schema.LabelInferred: "`INFERRED`",
	schema.LabelUnknown:  "`UNKNOWN`",
}

// Markdown produces a GitHub-flavoured Markdown rendering of the report.
// Every finding, coverage map row and limitation in the report appears in
// the output, so rendering the same report twice gives identical text.
func Markdown(rep *schema.Report) string {
	if rep == nil {
		return ""
	}
	var sb strings.Builder

	fmt.Fprintf(&sb, "## skim: %s\n\n", mdEscape(rep.Source.Locator))
	fmt.Fprintf(&sb, "**%s**", report.Headline(rep.Summary, rep.Source))
	switch {
	case rep.Source.Clipped:
		sb.WriteString(" (document clipped at the download limit)")
	case rep.Source.SizeEstimated:
		sb.WriteString(" (size estimated)")
	}
	sb.WriteString("  \n")
	if rep.Source.Profile != "" {
		fmt.Fprintf(&sb, "**Profile:** %s  \n", rep.Source.Profile)
	}
	fmt.Fprintf(&sb, "**Session:** %s  \n", rep.SessionID)
	fmt.Fprintf(&sb, "**Generated:** %s\n\n", rep.GeneratedAt.UTC().Format(time.RFC3339))

	s := rep.Summary
	fmt.Fprintf(&sb, "Extracted %d of %d %ss (%d examined, %d sampled) from %d planned ranges, %d failed; %d characters read.\n\n",
		s.ExaminedUnits+s.SampledUnits, rep.Source.Total, rep.Source.Units,
		s.ExaminedUnits, s.SampledUnits, s.PlannedRanges, s.FailedRanges, s.CharsRead)

	sb.WriteString("### Coverage Map\n\n")
	sb.WriteString("| Range | Units | Status |\n")
	sb.WriteString("|---|---|---|\n")
	for _, seg := range rep.CoverageMap {
		fmt.Fprintf(&sb, "| %s | %d | %s |\n", seg.Range, seg.Range.Len(), seg.Status)
	}
	sb.WriteString("\n")

	groups := []struct {
		title string
		items []schema.ReportFinding
	}{
		{"Verified", rep.Findings.Verified},
		{"Sampled", rep.Findings.Sampled},
		{"Inferred", rep.Findings.Inferred},
		{"Unknown", rep.Findings.Unknown},
	}
	for _, g := range groups {
		if len(g.items) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "### %s\n\n", g.title)
		for _, f := range g.items {
			writeFinding(&sb, f, rep.Source.Units)
		}
		sb.WriteString("\n")
	}

	if len(rep.Limitations) > 0 {
		sb.WriteString("### Limitations\n\n")
		for _, l := range rep.Limitations {
			fmt.Fprintf(&sb, "- **%s**", l.Kind)
			if l.Range != nil {
				fmt.Fprintf(&sb, " (%ss %s)", rep.Source.Units, l.Range)
			}
			fmt.Fprintf(&sb, ": %s\n", mdEscape(l.Message))
		}
		sb.WriteString("\n")
	}

	if rep.Elided.Note != "" {
		fmt.Fprintf(&sb, "> %s\n\n", mdEscape(rep.Elided.Note))
	}

	fmt.Fprintf(&sb, "_Budget: %d/%d word units (step cap %d)._\n",
		rep.Budget.Used, rep.Budget.Total, rep.Budget.StepCap)
	return sb.String()
}

func writeFinding(sb *strings.Builder, f schema.ReportFinding, units schema.UnitKind) {
	fmt.Fprintf(sb, "- %s %s", labelBadge[f.Label], mdEscape(f.Content))
	if f.Evidence != nil {
		fmt.Fprintf(sb, " (%ss %s)", units, f.Evidence)
	}
	if f.Compressed {
		sb.WriteString(" _(shortened)_")
	}
	sb.WriteString("\n")
	if f.Excerpt != "" {
		fmt.Fprintf(sb, "  > %s\n", mdEscape(f.Excerpt))
	}
	if f.Basis != "" {
		fmt.Fprintf(sb, "  Basis: %s\n", mdEscape(f.Basis))
	}
}

// PlanMarkdown renders a sample plan as a table of ranges.
func PlanMarkdown(sp schema.SamplePlan) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Sample plan: %s\n\n", mdEscape(sp.Locator))
	fmt.Fprintf(&sb, "%d %ss", sp.Total, sp.Units)
	if sp.SizeEstimated {
		sb.WriteString(" (estimated)")
	}
	if sp.Profile != "" {
		fmt.Fprintf(&sb, ", profile %s", sp.Profile)
	}
	planned := sp.PlannedUnits()
	fmt.Fprintf(&sb, ". %d ranges cover %d units (%.1f%%)", len(sp.Ranges), planned, report.Percent(planned, sp.Total))
	if sp.Whole {
		sb.WriteString("; the document is read whole")
	}
	sb.WriteString(".\n\n")

	sb.WriteString("| # | Range | Units | Purpose |\n")
	sb.WriteString("|---|---|---|---|\n")
	for i, pr := range sp.Ranges {
		fmt.Fprintf(&sb, "| %d | %s | %d | %s |\n", i+1, pr.Range, pr.Range.Len(), pr.Purpose)
	}
	return sb.String()
}

// Info is what `skim info` shows about a document.
type Info struct {
	Source source.Info `json:"source"`
	// Outline is present for line-addressed text documents.
	Outline *structure.Outline `json:"outline,omitempty"`
	Plan    schema.SamplePlan  `json:"plan"`
}

// InfoMarkdown renders document metadata, its outline and the recommended
// sample plan.
func InfoMarkdown(in Info) string {
	var sb strings.Builder
	src := in.Source
	fmt.Fprintf(&sb, "## Document: %s\n\n", mdEscape(src.Locator))
	fmt.Fprintf(&sb, "- **Kind:** %s\n", src.Kind)
	fmt.Fprintf(&sb, "- **Size:** %d %ss\n", src.Total, src.Units)
	if src.Title != "" {
		fmt.Fprintf(&sb, "- **Title:** %s\n", mdEscape(src.Title))
	}
	if src.Author != "" {
		fmt.Fprintf(&sb, "- **Author:** %s\n", mdEscape(src.Author))
	}
	if src.ContentType != "" {
		fmt.Fprintf(&sb, "- **Content type:** %s\n", src.ContentType)
	}
	if src.Clipped {
		fmt.Fprintf(&sb, "- **Clipped:** only the first %d %ss were fetched\n", src.Total, src.Units)
	}

	if o := in.Outline; o != nil {
		fmt.Fprintf(&sb, "- **Format:** %s\n", o.Format)
		if o.Format != structure.FormatOutline {
			fmt.Fprintf(&sb, "- **Words:** %d, **characters:** %d\n", o.Words, o.Chars)
		}
		sb.WriteString("\n### Sections\n\n")
		if len(o.Sections) == 0 {
			sb.WriteString("No headings detected.\n")
		} else {
			fmt.Fprintf(&sb, "| Level | Heading | %ss |\n", src.Units)
			sb.WriteString("|---|---|---|\n")
			for _, s := range o.Sections {
				fmt.Fprintf(&sb, "| %d | %s%s | %s |\n", s.Level, strings.Repeat("&nbsp;&nbsp;", s.Level-1), mdEscape(s.Name), s.Range)
			}
		}
	}
	sb.WriteString("\n")
	sb.WriteString(PlanMarkdown(in.Plan))
	return sb.String()
}

// HistoryMarkdown renders archived report entries.
func HistoryMarkdown(entries []archive.Entry) string {
	if len(entries) == 0 {
		return "No archived reports.\n"
	}
	var sb strings.Builder
	sb.WriteString("| Session | Generated | Source | Coverage | Findings | Limitations |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "| %s | %s | %s | %.1f%% of %d %ss | %d | %d |\n",
			e.SessionID, e.GeneratedAt.UTC().Format(time.RFC3339), mdEscape(e.Locator),
			e.CoveragePercent, e.Total, e.Units, e.Findings, e.Limitations)
	}
	return sb.String()
}

// mdEscape replaces characters that would break Markdown table cells.
func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	return s
}
