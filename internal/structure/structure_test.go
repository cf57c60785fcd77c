package structure

import (
	"reflect"
	"strings"
	"testing"

	"github.com/dshills/skim/internal/schema"
)

func lines(s string) []string {
	return strings.Split(strings.TrimPrefix(s, "\n"), "\n")
}

func TestIsHeading(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"# H1", true},
		{"## H2", true},
		{"###### H6", true},
		{"####### too many hashes", false},
		{"#nospace", false},
		{"not a heading", false},
		{"    # indented code block", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsHeading(c.line); got != c.want {
			t.Errorf("IsHeading(%q) = %v, want %v", c.line, got, c.want)
		}
	}
}

func TestFencePrefix(t *testing.T) {
	cases := []struct {
		line string
		want string
	}{
		{"```", "```"},
		{"```go", "```"},
		{"````", "````"},
		{"~~~", "~~~"},
		{"~~~~bash", "~~~~"},
		{"    ```", ""},
		{"   ```", "```"},
		{"``", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := fencePrefix(c.line); got != c.want {
			t.Errorf("fencePrefix(%q) = %q, want %q", c.line, got, c.want)
		}
	}
}

func TestIsClosingFence(t *testing.T) {
	cases := []struct {
		line, open string
		want       bool
	}{
		{"```", "```", true},
		{"```  ", "```", true},
		{"````", "```", true},
		{"```go", "```", false},
		{"~~~", "```", false},
		{"~~", "~~~", false},
		{"", "```", false},
		{"```", "", false},
	}
	for _, c := range cases {
		if got := isClosingFence(c.line, c.open); got != c.want {
			t.Errorf("isClosingFence(%q, %q) = %v, want %v", c.line, c.open, got, c.want)
		}
	}
}

func TestDetect(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want Format
	}{
		{"markdown", "intro\n## Usage\ntext", FormatMarkdown},
		{"latex", "\\title{Paper}\n\\section{Intro}", FormatLatex},
		{"book", "Preface\nChapter 1 The Start\nIt began.", FormatBook},
		{"numbered book", "1. Introduction\nbody", FormatBook},
		{"plain", "just some prose\nand more prose", FormatPlain},
		{"markdown wins over book", "Chapter 1 x\n# Title", FormatMarkdown},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Detect(lines(c.doc)); got != c.want {
				t.Errorf("Detect = %q, want %q", got, c.want)
			}
		})
	}
}

func TestHeadings_MarkdownSkipsFences(t *testing.T) {
	doc := lines(`
# Guide
text
` + "```" + `
# not a heading
` + "```" + `
## Install ##
more
### C#`)
	got := Headings(doc, FormatMarkdown)
	want := []schema.Heading{
		{Unit: 1, Level: 1, Text: "Guide"},
		{Unit: 6, Level: 2, Text: "Install"},
		{Unit: 8, Level: 3, Text: "C#"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Headings = %+v, want %+v", got, want)
	}
}

func TestHeadings_Latex(t *testing.T) {
	doc := lines(`
\chapter{Background}
\section{Related Work}
text \subsection{Details}`)
	got := Headings(doc, FormatLatex)
	want := []schema.Heading{
		{Unit: 1, Level: 1, Text: "Background"},
		{Unit: 2, Level: 2, Text: "Related Work"},
		{Unit: 3, Level: 3, Text: "Details"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Headings = %+v, want %+v", got, want)
	}
}

func TestHeadings_Book(t *testing.T) {
	doc := lines(`
CHAPTER IV: The Storm
prose.
2. Harbour Lights
2.1 At Anchor`)
	got := Headings(doc, FormatBook)
	want := []schema.Heading{
		{Unit: 1, Level: 1, Text: "CHAPTER IV The Storm"},
		{Unit: 3, Level: 2, Text: "Harbour Lights"},
		{Unit: 4, Level: 3, Text: "At Anchor"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Headings = %+v, want %+v", got, want)
	}
}

func TestHeadings_Plain(t *testing.T) {
	doc := lines(`
EXECUTIVE SUMMARY
Revenue grew.
Key Risks:
Note: this is prose, not a heading:
ABC`)
	got := Headings(doc, FormatPlain)
	want := []schema.Heading{
		{Unit: 1, Level: 1, Text: "EXECUTIVE SUMMARY"},
		{Unit: 3, Level: 2, Text: "Key Risks"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Headings = %+v, want %+v", got, want)
	}
}

func TestSections(t *testing.T) {
	hs := []schema.Heading{{Unit: 1, Level: 1, Text: "A"}, {Unit: 5, Level: 2, Text: "B"}, {Unit: 6, Level: 2, Text: "C"}}
	got := Sections(hs, 20)
	want := []Section{
		{Name: "A", Level: 1, Range: schema.Range{Start: 1, End: 4}},
		{Name: "B", Level: 2, Range: schema.Range{Start: 5, End: 5}},
		{Name: "C", Level: 2, Range: schema.Range{Start: 6, End: 20}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Sections = %+v, want %+v", got, want)
	}
	if Sections(nil, 20) != nil {
		t.Error("no headings should give no sections")
	}
}

func TestAnalyze(t *testing.T) {
	doc := lines("# Title\none two\nthree")
	o := Analyze(doc, "")
	if o.Format != FormatMarkdown {
		t.Errorf("Format = %q", o.Format)
	}
	if o.Lines != 3 || o.Words != 5 || o.Chars != len("# Title\none two\nthree") {
		t.Errorf("counts = %d lines %d words %d chars", o.Lines, o.Words, o.Chars)
	}
	if len(o.Sections) != 1 || o.Sections[0].Range != (schema.Range{Start: 1, End: 3}) {
		t.Errorf("Sections = %+v", o.Sections)
	}

	forced := Analyze(doc, FormatPlain)
	if forced.Format != FormatPlain || len(forced.Headings) != 0 {
		t.Errorf("forced plain = %+v", forced)
	}
}

func TestFromHeadings(t *testing.T) {
	hs := []schema.Heading{
		{Unit: 1, Level: 1, Text: "Introduction"},
		{Unit: 2, Level: 2, Text: "Method"},
		{Unit: 3, Level: 1, Text: "Results"},
	}
	o := FromHeadings(hs, 5)
	if o.Format != FormatOutline {
		t.Errorf("Format = %q", o.Format)
	}
	want := []Section{
		{Name: "Introduction", Level: 1, Range: schema.Range{Start: 1, End: 1}},
		{Name: "Method", Level: 2, Range: schema.Range{Start: 2, End: 2}},
		{Name: "Results", Level: 1, Range: schema.Range{Start: 3, End: 5}},
	}
	if !reflect.DeepEqual(o.Sections, want) {
		t.Errorf("Sections = %+v, want %+v", o.Sections, want)
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("auto"); err != nil || f != "" {
		t.Errorf("auto = %q, %v", f, err)
	}
	if f, err := ParseFormat("LaTeX"); err != nil || f != FormatLatex {
		t.Errorf("LaTeX = %q, %v", f, err)
	}
	if _, err := ParseFormat("rtf"); err == nil {
		t.Error("expected error for rtf")
	}
}
