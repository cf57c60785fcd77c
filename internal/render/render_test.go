package render

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/skim/internal/archive"
	"github.com/dshills/skim/internal/schema"
	"github.com/dshills/skim/internal/source"
	"github.com/dshills/skim/internal/structure"
)

func rp(a, b int) *schema.Range { return &schema.Range{Start: a, End: b} }

func sampleReport() *schema.Report {
	return &schema.Report{
		Tool:        "skim",
		Version:     "test",
		SessionID:   "5f0c8a7e-0000-4000-8000-000000000001",
		GeneratedAt: time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC),
		Source: schema.Source{
			Locator: "notes|draft.md",
			Units:   schema.UnitLine,
			Total:   200,
			Profile: "general",
		},
		Summary: schema.Summary{
			CoveragePercent: 12.5,
			SampledUnits:    25,
			NotReadUnits:    175,
			PlannedRanges:   4,
			FailedRanges:    1,
			CharsRead:       1234,
		},
		Findings: schema.Findings{
			Verified: []schema.ReportFinding{{
				Label: schema.LabelVerified, Content: "Line 3 opens with the quoted text",
				Excerpt: "The survey covered twelve sites.", Evidence: rp(3, 3),
			}},
			Sampled: []schema.ReportFinding{{
				Label: schema.LabelSampled, Content: "Lines 1-10 hold the introduction", Evidence: rp(1, 10), Compressed: true,
			}},
			Inferred: []schema.ReportFinding{{
				Label: schema.LabelInferred, Content: "The document is a field report", Basis: "headings name sites",
			}},
			Unknown: []schema.ReportFinding{{
				Label: schema.LabelUnknown, Content: "Lines 11-99 were not read", Evidence: rp(11, 99),
			}},
		},
		CoverageMap: []schema.Segment{
			{Range: schema.Range{Start: 1, End: 10}, Status: schema.StatusSampled},
			{Range: schema.Range{Start: 11, End: 99}, Status: schema.StatusNotRead},
			{Range: schema.Range{Start: 100, End: 114}, Status: schema.StatusSampled},
			{Range: schema.Range{Start: 115, End: 200}, Status: schema.StatusNotRead},
		},
		Limitations: []schema.Limitation{
			{Kind: schema.LimitIncomplete, Message: "sampled, not read in full"},
			{Kind: schema.LimitExtractionFailed, Range: rp(150, 155), Message: "timeout"},
		},
		Elided: schema.Elision{
			Findings: 2,
			ByLabel:  map[schema.Label]int{schema.LabelInferred: 2},
			Note:     "2 findings elided (INFERRED 2) to stay within the 300 word budget",
		},
		Budget: schema.BudgetUsage{Used: 287, Total: 300, StepCap: 100},
	}
}

func TestJSON_RoundTrip(t *testing.T) {
	want := sampleReport()
	b, err := JSON(want)
	if err != nil {
		t.Fatalf("JSON error: %v", err)
	}
	var got schema.Report
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}
	if diff := cmp.Diff(want, &got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestJSON_PrettyPrinted(t *testing.T) {
	b, err := JSON(sampleReport())
	if err != nil {
		t.Fatalf("JSON error: %v", err)
	}
	if !strings.Contains(string(b), "\n  \"tool\": \"skim\"") {
		t.Errorf("expected indented output, got:\n%s", b)
	}
}

func TestJSON_Nil(t *testing.T) {
	if _, err := JSON(nil); err == nil {
		t.Error("expected error for nil value")
	}
}

func TestMarkdown_Idempotent(t *testing.T) {
	rep := sampleReport()
	first := Markdown(rep)
	if diff := cmp.Diff(first, Markdown(rep)); diff != "" {
		t.Errorf("second render differs:\n%s", diff)
	}
}

func TestMarkdown_Sections(t *testing.T) {
	md := Markdown(sampleReport())
	want := []string{
		"## skim: notes\\|draft.md",
		"**coverage 12.5% of 200 lines**",
		"**Session:** 5f0c8a7e-0000-4000-8000-000000000001",
		"**Generated:** 2026-05-04T10:30:00Z",
		"Extracted 25 of 200 lines (0 examined, 25 sampled) from 4 planned ranges, 1 failed; 1234 characters read.",
		"| 11-99 | 89 | NOT_READ |",
		"| 100-114 | 15 | SAMPLED |",
		"### Verified",
		"- `VERIFIED` Line 3 opens with the quoted text (lines 3)",
		"  > The survey covered twelve sites.",
		"- `SAMPLED` Lines 1-10 hold the introduction (lines 1-10) _(shortened)_",
		"  Basis: headings name sites",
		"- `UNKNOWN` Lines 11-99 were not read (lines 11-99)",
		"- **INCOMPLETE_BY_DESIGN**: sampled, not read in full",
		"- **EXTRACTION_FAILED** (lines 150-155): timeout",
		"> 2 findings elided (INFERRED 2) to stay within the 300 word budget",
		"_Budget: 287/300 word units (step cap 100)._",
	}
	for _, w := range want {
		if !strings.Contains(md, w) {
			t.Errorf("markdown missing %q", w)
		}
	}
}

func TestMarkdown_Clipped(t *testing.T) {
	rep := sampleReport()
	rep.Source.SizeEstimated, rep.Source.Clipped = true, true
	md := Markdown(rep)
	if !strings.Contains(md, "(document clipped at the download limit)") {
		t.Errorf("clipped source not flagged:\n%s", md)
	}
	if strings.Contains(md, "(size estimated)") {
		t.Error("clipped source should not also read as estimated")
	}
}

func TestMarkdown_LabelOrder(t *testing.T) {
	md := Markdown(sampleReport())
	order := []string{"### Verified", "### Sampled", "### Inferred", "### Unknown", "### Limitations"}
	last := -1
	for _, h := range order {
		i := strings.Index(md, h)
		if i < 0 {
			t.Fatalf("missing %q", h)
		}
		if i < last {
			t.Errorf("%q out of order", h)
		}
		last = i
	}
}

func TestMarkdown_EmptyGroupsOmitted(t *testing.T) {
	rep := sampleReport()
	rep.Findings = schema.Findings{}
	rep.Elided = schema.Elision{}
	md := Markdown(rep)
	for _, h := range []string{"### Verified", "### Inferred", "> "} {
		if strings.Contains(md, h) {
			t.Errorf("unexpected %q in output", h)
		}
	}
	if !strings.Contains(md, "### Coverage Map") {
		t.Error("coverage map must always be rendered")
	}
}

func TestMarkdown_Nil(t *testing.T) {
	if got := Markdown(nil); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestPlanMarkdown(t *testing.T) {
	sp := schema.SamplePlan{
		Locator: "big.log",
		Units:   schema.UnitLine,
		Total:   1000,
		Profile: "log",
		Ranges: []schema.PlannedRange{
			{Range: schema.Range{Start: 1, End: 50}, Purpose: schema.PurposeBeginning},
			{Range: schema.Range{Start: 951, End: 1000}, Purpose: schema.PurposeEnd},
		},
	}
	md := PlanMarkdown(sp)
	for _, w := range []string{
		"1000 lines, profile log. 2 ranges cover 100 units (10.0%).",
		"| 1 | 1-50 | 50 | BEGINNING |",
		"| 2 | 951-1000 | 50 | END |",
	} {
		if !strings.Contains(md, w) {
			t.Errorf("plan missing %q\n%s", w, md)
		}
	}

	sp.Whole = true
	if !strings.Contains(PlanMarkdown(sp), "the document is read whole") {
		t.Error("whole plan not marked")
	}
}

func TestInfoMarkdown(t *testing.T) {
	in := Info{
		Source: source.Info{Locator: "book.txt", Kind: "text", Units: schema.UnitLine, Total: 40, Title: "Storms"},
		Outline: &structure.Outline{
			Format: structure.FormatBook,
			Words:  300,
			Chars:  1800,
			Sections: []structure.Section{
				{Name: "Chapter 1 The Calm", Level: 1, Range: schema.Range{Start: 1, End: 19}},
				{Name: "1.1 Morning", Level: 3, Range: schema.Range{Start: 5, End: 19}},
			},
		},
		Plan: schema.SamplePlan{Locator: "book.txt", Units: schema.UnitLine, Total: 40, Whole: true,
			Ranges: []schema.PlannedRange{{Range: schema.Range{Start: 1, End: 40}, Purpose: schema.PurposeBeginning}}},
	}
	md := InfoMarkdown(in)
	for _, w := range []string{
		"- **Size:** 40 lines",
		"- **Title:** Storms",
		"- **Format:** book",
		"| 1 | Chapter 1 The Calm | 1-19 |",
		"| 3 | &nbsp;&nbsp;&nbsp;&nbsp;1.1 Morning | 5-19 |",
		"## Sample plan: book.txt",
	} {
		if !strings.Contains(md, w) {
			t.Errorf("info missing %q\n%s", w, md)
		}
	}

	in.Outline.Sections = nil
	if !strings.Contains(InfoMarkdown(in), "No headings detected.") {
		t.Error("expected no-headings note")
	}

	in.Source.Clipped = true
	if !strings.Contains(InfoMarkdown(in), "- **Clipped:** only the first 40 lines were fetched") {
		t.Error("expected clipped note")
	}
}

func TestHistoryMarkdown(t *testing.T) {
	if got := HistoryMarkdown(nil); got != "No archived reports.\n" {
		t.Errorf("empty history: got %q", got)
	}
	md := HistoryMarkdown([]archive.Entry{{
		SessionID: "abc", Locator: "a.md", Units: schema.UnitPage, Total: 12,
		CoveragePercent: 50, Findings: 3, Limitations: 1,
		GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}})
	want := "| abc | 2026-01-02T03:04:05Z | a.md | 50.0% of 12 pages | 3 | 1 |"
	if !strings.Contains(md, want) {
		t.Errorf("history missing %q\n%s", want, md)
	}
}

func TestMdEscape(t *testing.T) {
	cases := []struct{ in, want string }{
		{"a|b", `a\|b`},
		{"line1\nline2", "line1 line2"},
		{"cr\r\nlf", "cr lf"},
	}
	for _, c := range cases {
		if got := mdEscape(c.in); got != c.want {
			t.Errorf("mdEscape(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
