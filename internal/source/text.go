package source

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dshills/skim/internal/schema"
	"github.com/dshills/skim/internal/structure"
)

// Text reads local text files. Line units are the file's lines; block units
// are fixed-size runs of BlockChars characters and stand in for character
// offsets.
type Text struct {
	unit       schema.UnitKind
	blockChars int

	mu    sync.Mutex
	files map[string]*textFile
}

type textFile struct {
	lines  []string
	blocks []string
}

// NewText returns a text source. blockChars is only used for block units
// and defaults to 1000.
func NewText(unit schema.UnitKind, blockChars int) *Text {
	if unit != schema.UnitBlock {
		unit = schema.UnitLine
	}
	if blockChars <= 0 {
		blockChars = DefaultConfig().BlockChars
	}
	return &Text{unit: unit, blockChars: blockChars, files: make(map[string]*textFile)}
}

// Units reports the unit kind the source addresses.
func (t *Text) Units() schema.UnitKind { return t.unit }

func (t *Text) load(locator string) (*textFile, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f, ok := t.files[locator]; ok {
		return f, nil
	}
	data, err := os.ReadFile(locator)
	if err != nil {
		return nil, fmt.Errorf("source: read %s: %w", locator, err)
	}
	content := strings.ToValidUTF8(string(data), "\uFFFD")
	f := &textFile{lines: splitLines(content)}
	if t.unit == schema.UnitBlock {
		f.blocks = splitBlocks(strings.Join(f.lines, "\n"), t.blockChars)
	}
	t.files[locator] = f
	return f, nil
}

func (f *textFile) units(kind schema.UnitKind) []string {
	if kind == schema.UnitBlock {
		return f.blocks
	}
	return f.lines
}

// Measure returns the number of lines or blocks in the file.
func (t *Text) Measure(_ context.Context, locator string) (int, error) {
	f, err := t.load(locator)
	if err != nil {
		return 0, err
	}
	return len(f.units(t.unit)), nil
}

// Extract returns the units of r, stopping at maxChars characters.
func (t *Text) Extract(ctx context.Context, locator string, r schema.Range, maxChars int) (schema.Content, error) {
	f, err := t.load(locator)
	if err != nil {
		return schema.Content{}, err
	}
	us := f.units(t.unit)
	return window(ctx, len(us), r, maxChars, func(i int) (string, error) { return us[i-1], nil })
}

// Structure detects headings. For block units each heading is reported at
// the block holding its first character.
func (t *Text) Structure(_ context.Context, locator string) ([]schema.Heading, error) {
	f, err := t.load(locator)
	if err != nil {
		return nil, err
	}
	hs := structure.Headings(f.lines, structure.Detect(f.lines))
	if t.unit != schema.UnitBlock {
		return hs, nil
	}
	offsets := make([]int, len(f.lines)+1)
	for i, l := range f.lines {
		offsets[i+1] = offsets[i] + len([]rune(l)) + 1
	}
	out := make([]schema.Heading, 0, len(hs))
	for _, h := range hs {
		b := offsets[h.Unit-1]/t.blockChars + 1
		if n := len(out); n > 0 && out[n-1].Unit == b {
			continue
		}
		h.Unit = b
		out = append(out, h)
	}
	return out, nil
}

// Describe reports the file's size in units. Lines are included for line
// units so the info command can outline them.
func (t *Text) Describe(_ context.Context, locator string) (Info, error) {
	f, err := t.load(locator)
	if err != nil {
		return Info{}, err
	}
	info := Info{Locator: locator, Kind: "text", Units: t.unit, Total: len(f.units(t.unit))}
	if t.unit == schema.UnitLine {
		info.Lines = f.lines
	}
	return info, nil
}

// splitBlocks cuts s into runs of size characters; the last may be shorter.
func splitBlocks(s string, size int) []string {
	rs := []rune(s)
	var out []string
	for start := 0; start < len(rs); start += size {
		end := min(start+size, len(rs))
		out = append(out, string(rs[start:end]))
	}
	return out
}
