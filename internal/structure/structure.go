// Package structure detects the layout of a line-oriented document: its
// format, its headings and the sections those headings delimit. Headings
// feed the planner as extra sample points and the info command as an
// outline.
package structure

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/dshills/skim/internal/schema"
)

// Format is a detected document layout.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatLatex    Format = "latex"
	FormatBook     Format = "book"
	FormatPlain    Format = "plain"
	// FormatOutline is an embedded table of contents, such as PDF bookmarks.
	FormatOutline Format = "outline"
)

// ParseFormat converts a flag value to a Format. "auto" and "" return
// the empty Format, which asks Analyze to detect.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", "auto":
		return "", nil
	case FormatMarkdown, FormatLatex, FormatBook, FormatPlain:
		return f, nil
	default:
		return "", fmt.Errorf("structure: unknown format %q", s)
	}
}

// Section is the span from one heading to the line before the next.
type Section struct {
	Name  string       `json:"name"`
	Level int          `json:"level"`
	Range schema.Range `json:"range"`
}

// Outline is the structural summary of a document.
type Outline struct {
	Format   Format           `json:"format"`
	Lines    int              `json:"lines"`
	Words    int              `json:"words"`
	Chars    int              `json:"chars"`
	Headings []schema.Heading `json:"headings"`
	Sections []Section        `json:"sections"`
}

var (
	mdHeadingRe   = regexp.MustCompile(`^#{1,6}\s`)
	latexDetectRe = regexp.MustCompile(`^\\(section|chapter|title)\{`)
	bookDetectRe  = regexp.MustCompile(`^(Chapter \d|CHAPTER \d|\d+\.\s+[A-Z])`)

	latexPatterns = []struct {
		re    *regexp.Regexp
		level int
	}{
		{regexp.MustCompile(`\\chapter\{([^}]+)\}`), 1},
		{regexp.MustCompile(`\\section\{([^}]+)\}`), 2},
		{regexp.MustCompile(`\\subsection\{([^}]+)\}`), 3},
	}

	bookChapterRe = regexp.MustCompile(`^(Chapter|CHAPTER)\s+(\d+|[IVXLC]+)[:.]?\s*(.*)$`)
	bookNumberRe  = regexp.MustCompile(`^(\d+)\.\s+([A-Z][^.]+)$`)
	bookSubRe     = regexp.MustCompile(`^(\d+\.\d+)\s+(.+)$`)
)

// FromHeadings builds the outline of a document whose headings come from
// its own table of contents rather than from scanning text.
func FromHeadings(hs []schema.Heading, total int) Outline {
	return Outline{Format: FormatOutline, Headings: hs, Sections: Sections(hs, total)}
}

// Detect picks a format from the first signal found: Markdown ATX headings,
// then LaTeX sectioning commands, then book-style chapters.
func Detect(lines []string) Format {
	var latex, book bool
	for _, l := range lines {
		switch {
		case mdHeadingRe.MatchString(l):
			return FormatMarkdown
		case latexDetectRe.MatchString(l):
			latex = true
		case bookDetectRe.MatchString(l):
			book = true
		}
	}
	if latex {
		return FormatLatex
	}
	if book {
		return FormatBook
	}
	return FormatPlain
}

// Analyze detects the format of lines (unless f is set) and returns the
// outline.
func Analyze(lines []string, f Format) Outline {
	if f == "" {
		f = Detect(lines)
	}
	o := Outline{Format: f, Lines: len(lines), Headings: Headings(lines, f)}
	for _, l := range lines {
		o.Words += len(strings.Fields(l))
		o.Chars += len([]rune(l))
	}
	// newlines between lines
	if len(lines) > 1 {
		o.Chars += len(lines) - 1
	}
	o.Sections = Sections(o.Headings, len(lines))
	return o
}

// Headings returns the headings of lines under format f, in document order.
// Unit indexes are 1-based line numbers.
func Headings(lines []string, f Format) []schema.Heading {
	switch f {
	case FormatMarkdown:
		return markdownHeadings(lines)
	case FormatLatex:
		return latexHeadings(lines)
	case FormatBook:
		return bookHeadings(lines)
	default:
		return plainHeadings(lines)
	}
}

// Sections turns headings into spans ending at the line before the next
// heading, the last one running to total.
func Sections(hs []schema.Heading, total int) []Section {
	var out []Section
	for i, h := range hs {
		end := total
		if i+1 < len(hs) {
			end = hs[i+1].Unit - 1
		}
		if end < h.Unit {
			end = h.Unit
		}
		out = append(out, Section{Name: h.Text, Level: h.Level, Range: schema.Range{Start: h.Unit, End: end}})
	}
	return out
}

// markdownHeadings finds ATX headings outside fenced code blocks.
func markdownHeadings(lines []string) []schema.Heading {
	var out []schema.Heading
	var openFence string
	for i, line := range lines {
		if openFence != "" {
			if isClosingFence(line, openFence) {
				openFence = ""
			}
			continue
		}
		if fp := fencePrefix(line); fp != "" {
			openFence = fp
			continue
		}
		if !IsHeading(line) {
			continue
		}
		t := strings.TrimSpace(line)
		level := strings.IndexFunc(t, func(r rune) bool { return r != '#' })
		out = append(out, schema.Heading{Unit: i + 1, Level: level, Text: headingText(t[level:])})
	}
	return out
}

// headingText drops an optional closing sequence of hashes ("## Title ##").
func headingText(s string) string {
	s = strings.TrimSpace(s)
	if j := strings.LastIndex(s, " #"); j >= 0 && strings.Trim(s[j+1:], "#") == "" {
		s = strings.TrimSpace(s[:j])
	}
	return s
}

func latexHeadings(lines []string) []schema.Heading {
	var out []schema.Heading
	for i, line := range lines {
		for _, p := range latexPatterns {
			if m := p.re.FindStringSubmatch(line); m != nil {
				out = append(out, schema.Heading{Unit: i + 1, Level: p.level, Text: strings.TrimSpace(m[1])})
				break
			}
		}
	}
	return out
}

func bookHeadings(lines []string) []schema.Heading {
	var out []schema.Heading
	for i, line := range lines {
		t := strings.TrimSpace(line)
		if m := bookChapterRe.FindStringSubmatch(t); m != nil {
			text := strings.TrimSpace(m[1] + " " + m[2] + " " + m[3])
			out = append(out, schema.Heading{Unit: i + 1, Level: 1, Text: text})
			continue
		}
		if m := bookNumberRe.FindStringSubmatch(t); m != nil {
			out = append(out, schema.Heading{Unit: i + 1, Level: 2, Text: strings.TrimSpace(m[2])})
			continue
		}
		if m := bookSubRe.FindStringSubmatch(t); m != nil {
			out = append(out, schema.Heading{Unit: i + 1, Level: 3, Text: strings.TrimSpace(m[2])})
		}
	}
	return out
}

// plainHeadings treats short all-caps lines as level 1 and short
// letters-only lines ending in a colon as level 2.
func plainHeadings(lines []string) []schema.Heading {
	var out []schema.Heading
	for i, line := range lines {
		t := strings.TrimSpace(line)
		n := len([]rune(t))
		switch {
		case t == "":
		case isUpper(t) && n > 3 && n < 100:
			out = append(out, schema.Heading{Unit: i + 1, Level: 1, Text: strings.TrimSuffix(t, ":")})
		case strings.HasSuffix(t, ":") && n < 80 && isLabel(strings.TrimSuffix(t, ":")):
			out = append(out, schema.Heading{Unit: i + 1, Level: 2, Text: strings.TrimSuffix(t, ":")})
		}
	}
	return out
}

// isUpper reports whether s has at least one cased letter and no lowercase
// ones.
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}

func isLabel(s string) bool {
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// fencePrefix returns the opening fence ("```" or "~~~", possibly longer)
// if line starts a fenced code block, otherwise "". Up to 3 leading spaces
// are allowed; 4 or more make an indented code block.
func fencePrefix(line string) string {
	leading := 0
	for leading < len(line) && line[leading] == ' ' {
		leading++
	}
	if leading >= 4 {
		return ""
	}
	stripped := line[leading:]
	for _, marker := range []byte{'`', '~'} {
		if len(stripped) < 3 || stripped[0] != marker {
			continue
		}
		count := 0
		for count < len(stripped) && stripped[count] == marker {
			count++
		}
		if count >= 3 {
			return stripped[:count]
		}
	}
	return ""
}

// isClosingFence reports whether line closes openFence: same marker, at
// least as long, nothing but spaces after it.
func isClosingFence(line, openFence string) bool {
	if openFence == "" {
		return false
	}
	fp := fencePrefix(line)
	if fp == "" || fp[0] != openFence[0] || len(fp) < len(openFence) {
		return false
	}
	leading := 0
	for leading < len(line) && line[leading] == ' ' {
		leading++
	}
	return strings.TrimLeft(line[leading+len(fp):], " ") == ""
}

// IsHeading returns true for ATX Markdown headings (# through ######) with
// a space after the hashes and fewer than 4 leading spaces.
func IsHeading(line string) bool {
	leading := 0
	for leading < len(line) && line[leading] == ' ' {
		leading++
	}
	if leading >= 4 {
		return false
	}
	t := strings.TrimSpace(line)
	hashes := strings.IndexFunc(t, func(r rune) bool { return r != '#' })
	return hashes > 0 && hashes <= 6 && len(t) > hashes && t[hashes] == ' '
}
