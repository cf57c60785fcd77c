// Package source provides the extraction collaborators: local text files
// (line or block units), PDF files (page units) and web pages (line units of
// the page converted to Markdown). Every source caches what it loads so that
// repeated Extract calls for the same range return the same text.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/skim/internal/schema"
)

// ErrOutOfRange is returned when a requested range does not lie inside the
// document.
var ErrOutOfRange = errors.New("source: range outside document")

// Source is what the session needs from a collaborator.
type Source interface {
	Units() schema.UnitKind
	Measure(ctx context.Context, locator string) (int, error)
	Extract(ctx context.Context, locator string, r schema.Range, maxChars int) (schema.Content, error)
}

// Info is what the info command reports about a document.
type Info struct {
	Locator     string          `json:"locator"`
	Kind        string          `json:"kind"`
	Units       schema.UnitKind `json:"units"`
	Total       int             `json:"total"`
	Title       string          `json:"title,omitempty"`
	Author      string          `json:"author,omitempty"`
	ContentType string          `json:"content_type,omitempty"`
	// Clipped is set when only a prefix of the document was fetched.
	Clipped bool     `json:"clipped,omitempty"`
	Lines   []string `json:"-"`
}

// Describer is implemented by sources that can report document metadata.
// Lines is populated only for line-addressed documents.
type Describer interface {
	Describe(ctx context.Context, locator string) (Info, error)
}

// Config configures the sources built by Open.
type Config struct {
	// Unit is "line" or "block" for local text files.
	Unit         string        `mapstructure:"unit" yaml:"unit" json:"unit"`
	BlockChars   int           `mapstructure:"block_chars" yaml:"block_chars" json:"block_chars"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout" json:"fetch_timeout"`
	UserAgent    string        `mapstructure:"user_agent" yaml:"user_agent" json:"user_agent"`
	MaxBytes     int64         `mapstructure:"max_bytes" yaml:"max_bytes" json:"max_bytes"`
}

// DefaultConfig returns line units, 1000-character blocks, a 30s fetch
// timeout and a 20 MiB download cap.
func DefaultConfig() Config {
	return Config{
		Unit:         string(schema.UnitLine),
		BlockChars:   1000,
		FetchTimeout: 30 * time.Second,
		UserAgent:    "Mozilla/5.0 (compatible; DocumentSkimmer/1.0)",
		MaxBytes:     20 << 20,
	}
}

// Open picks the source for locator: http(s) URLs go to the web source,
// .pdf files to the PDF source, everything else is read as text.
func Open(locator string, cfg Config) (Source, error) {
	if locator == "" {
		return nil, fmt.Errorf("source: empty locator")
	}
	if u, err := url.Parse(locator); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		if u.Host == "" {
			return nil, fmt.Errorf("source: %s: missing host", locator)
		}
		return NewURL(cfg), nil
	}
	if strings.EqualFold(filepath.Ext(locator), ".pdf") {
		return NewPDF(), nil
	}
	switch schema.UnitKind(strings.ToLower(cfg.Unit)) {
	case "", schema.UnitLine:
		return NewText(schema.UnitLine, 0), nil
	case schema.UnitBlock:
		return NewText(schema.UnitBlock, cfg.BlockChars), nil
	default:
		return nil, fmt.Errorf("source: unknown text unit %q", cfg.Unit)
	}
}

// window returns the text of r under a maxChars ceiling. unit is called for
// each index in order until the ceiling is reached. A first unit that alone
// exceeds the ceiling is cut and marked Partial; stopping before r.End sets
// Truncated.
func window(ctx context.Context, total int, r schema.Range, maxChars int, unit func(int) (string, error)) (schema.Content, error) {
	if !r.Within(total) {
		return schema.Content{}, fmt.Errorf("%w: %s of %d", ErrOutOfRange, r, total)
	}
	c := schema.Content{Range: r}
	used := 0
	for i := r.Start; i <= r.End; i++ {
		if err := ctx.Err(); err != nil {
			return schema.Content{}, err
		}
		text, err := unit(i)
		if err != nil {
			return schema.Content{}, err
		}
		n := len([]rune(text))
		if maxChars > 0 && used+n > maxChars {
			if len(c.Units) == 0 {
				c.Units = append(c.Units, schema.UnitText{Index: i, Text: string([]rune(text)[:maxChars])})
				c.Partial = true
			}
			c.Truncated = true
			return c, nil
		}
		used += n
		c.Units = append(c.Units, schema.UnitText{Index: i, Text: text})
	}
	return c, nil
}

// splitLines splits s into lines, dropping one trailing newline and any
// carriage returns.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
