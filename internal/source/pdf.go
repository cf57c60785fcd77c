package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/dshills/skim/internal/schema"
)

// PDF reads PDF files page by page. Page text is recovered from the page
// content stream; glyphs drawn through custom encodings come out as-is.
type PDF struct {
	mu   sync.Mutex
	docs map[string]*pdfDoc
}

type pdfDoc struct {
	mu    sync.Mutex
	ctx   *model.Context
	pages map[int]string
}

// NewPDF returns a PDF source.
func NewPDF() *PDF {
	return &PDF{docs: make(map[string]*pdfDoc)}
}

// Units reports page units.
func (p *PDF) Units() schema.UnitKind { return schema.UnitPage }

// Measure counts pages without loading the whole document.
func (p *PDF) Measure(_ context.Context, locator string) (int, error) {
	f, err := os.Open(locator)
	if err != nil {
		return 0, fmt.Errorf("source: open %s: %w", locator, err)
	}
	defer f.Close()
	n, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("source: page count %s: %w", locator, err)
	}
	return n, nil
}

func (p *PDF) load(locator string) (*pdfDoc, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d, ok := p.docs[locator]; ok {
		return d, nil
	}
	f, err := os.Open(locator)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", locator, err)
	}
	defer f.Close()
	ctx, err := api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("source: read %s: %w", locator, err)
	}
	d := &pdfDoc{ctx: ctx, pages: make(map[int]string)}
	p.docs[locator] = d
	return d, nil
}

// page returns the text of page nr, caching it.
func (d *pdfDoc) page(nr int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.pages[nr]; ok {
		return t, nil
	}
	r, err := pdfcpu.ExtractPageContent(d.ctx, nr)
	if err != nil {
		return "", fmt.Errorf("source: page %d content: %w", nr, err)
	}
	var text string
	if r != nil {
		data, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("source: page %d content: %w", nr, err)
		}
		text = streamText(data)
	}
	d.pages[nr] = text
	return text, nil
}

// Extract returns the text of the pages in r, stopping at maxChars.
func (p *PDF) Extract(ctx context.Context, locator string, r schema.Range, maxChars int) (schema.Content, error) {
	d, err := p.load(locator)
	if err != nil {
		return schema.Content{}, err
	}
	return window(ctx, d.ctx.PageCount, r, maxChars, d.page)
}

// Structure reports the document outline. Each bookmark becomes a heading
// at the page it points to; nesting depth is the heading level. A PDF
// without an outline has no headings.
func (p *PDF) Structure(_ context.Context, locator string) ([]schema.Heading, error) {
	d, err := p.load(locator)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	bms, err := pdfcpu.Bookmarks(d.ctx)
	if err != nil {
		return nil, fmt.Errorf("source: outline %s: %w", locator, err)
	}

	var out []schema.Heading
	var walk func(bs []pdfcpu.Bookmark, level int)
	walk = func(bs []pdfcpu.Bookmark, level int) {
		for _, b := range bs {
			if b.PageFrom >= 1 && b.PageFrom <= d.ctx.PageCount {
				out = append(out, schema.Heading{Unit: b.PageFrom, Level: level, Text: strings.TrimSpace(b.Title)})
			}
			walk(b.Kids, level+1)
		}
	}
	walk(bms, 1)
	return out, nil
}

// Describe reports page count and document metadata.
func (p *PDF) Describe(_ context.Context, locator string) (Info, error) {
	d, err := p.load(locator)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Locator:     locator,
		Kind:        "pdf",
		Units:       schema.UnitPage,
		Total:       d.ctx.PageCount,
		Title:       d.ctx.Title,
		Author:      d.ctx.Author,
		ContentType: "application/pdf",
	}, nil
}

// streamText pulls the shown text out of a page content stream. Strings
// passed to Tj, TJ, ' and " are emitted; positioning operators start a new
// line. Hex strings are skipped because they need the font's encoding.
func streamText(data []byte) string {
	var (
		sb      strings.Builder
		pending []string
	)
	newline := func() {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}
	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case c == '(':
			s, next := literalString(data, i)
			pending = append(pending, s)
			i = next
		case c == '<' && i+1 < len(data) && data[i+1] != '<':
			for i < len(data) && data[i] != '>' {
				i++
			}
			i++
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case isOperatorStart(c):
			j := i
			for j < len(data) && isOperatorByte(data[j]) {
				j++
			}
			switch op := string(data[i:j]); op {
			case "Tj", "TJ":
				sb.WriteString(strings.Join(pending, ""))
			case "'", `"`:
				newline()
				sb.WriteString(strings.Join(pending, ""))
			case "Td", "TD", "T*", "Tm", "ET":
				newline()
			}
			pending = pending[:0]
			i = j
		default:
			i++
		}
	}
	return cleanLines(sb.String())
}

func isOperatorStart(c byte) bool {
	return c == '\'' || c == '"' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func isOperatorByte(c byte) bool {
	return isOperatorStart(c) || c == '*' || (c >= '0' && c <= '9')
}

// literalString decodes the PDF string literal starting at data[start]
// (an opening parenthesis), honouring nested parentheses and escapes. It
// returns the text and the index after the closing parenthesis.
func literalString(data []byte, start int) (string, int) {
	var sb strings.Builder
	depth := 0
	i := start
	for ; i < len(data); i++ {
		c := data[i]
		switch {
		case c == '(':
			if depth > 0 {
				sb.WriteByte(c)
			}
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return sb.String(), i + 1
			}
			sb.WriteByte(c)
		case c == '\\' && i+1 < len(data):
			i++
			switch e := data[i]; e {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case 'b', 'f':
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for k := 0; k < 2 && i+1 < len(data) && data[i+1] >= '0' && data[i+1] <= '7'; k++ {
						i++
						val = val*8 + int(data[i]-'0')
					}
					sb.WriteByte(byte(val))
				} else {
					sb.WriteByte(e)
				}
			}
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String(), i
}

// cleanLines collapses runs of whitespace inside each line, drops
// unprintable characters and empty lines.
func cleanLines(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		var sb strings.Builder
		space := false
		for _, r := range line {
			switch {
			case unicode.IsSpace(r):
				space = sb.Len() > 0
			case unicode.IsPrint(r):
				if space {
					sb.WriteByte(' ')
					space = false
				}
				sb.WriteRune(r)
			}
		}
		if sb.Len() > 0 {
			out = append(out, sb.String())
		}
	}
	return strings.Join(out, "\n")
}
