package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dshills/skim/internal/schema"
	"github.com/dshills/skim/internal/structure"
)

// URL fetches web pages once per locator. HTML is sanitised and converted
// to Markdown; units are the lines of the result. Other text content types
// are used as served.
type URL struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	conv      *converter.Converter
	policy    *bluemonday.Policy

	mu    sync.Mutex
	pages map[string]*webPage
}

type webPage struct {
	title       string
	contentType string
	lines       []string
	clipped     bool
}

// NewURL returns a web source configured from cfg.
func NewURL(cfg Config) *URL {
	def := DefaultConfig()
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	return &URL{
		client:    &http.Client{Timeout: cfg.FetchTimeout},
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxBytes,
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		policy: bluemonday.UGCPolicy(),
		pages:  make(map[string]*webPage),
	}
}

// Units reports line units.
func (u *URL) Units() schema.UnitKind { return schema.UnitLine }

func (u *URL) load(ctx context.Context, locator string) (*webPage, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if p, ok := u.pages[locator]; ok {
		return p, nil
	}
	p, err := u.fetch(ctx, locator)
	if err != nil {
		return nil, err
	}
	u.pages[locator] = p
	return p, nil
}

func (u *URL) fetch(ctx context.Context, locator string) (*webPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("source: request %s: %w", locator, err)
	}
	req.Header.Set("User-Agent", u.userAgent)
	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: fetch %s: %w", locator, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("source: fetch %s: status %d", locator, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, u.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("source: read %s: %w", locator, err)
	}

	ct := resp.Header.Get("Content-Type")
	p := &webPage{contentType: ct}
	if int64(len(body)) > u.maxBytes {
		p.clipped = true
		body = body[:u.maxBytes]
	}
	raw := strings.ToValidUTF8(string(body), "\uFFFD")
	if !isHTML(ct, body) {
		if p.clipped {
			// drop the line cut by the limit
			if i := strings.LastIndexByte(raw, '\n'); i >= 0 {
				raw = raw[:i+1]
			}
		}
		p.lines = splitLines(raw)
		return p, nil
	}

	if doc, err := html.Parse(bytes.NewReader(body)); err == nil {
		p.title = findTitle(doc)
	}
	md, err := u.conv.ConvertString(u.policy.Sanitize(raw), converter.WithDomain(locator))
	if err != nil {
		return nil, fmt.Errorf("source: convert %s: %w", locator, err)
	}
	p.lines = splitLines(strings.TrimSpace(md))
	return p, nil
}

// isHTML trusts the content type when present and otherwise sniffs the
// first kilobyte.
func isHTML(contentType string, body []byte) bool {
	if contentType != "" {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	head := body[:min(len(body), 1024)]
	return strings.Contains(strings.ToLower(string(head)), "<html")
}

// findTitle returns the text of the first <title> element.
func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		if n.FirstChild != nil {
			return strings.TrimSpace(n.FirstChild.Data)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

// Measure fetches the page and counts its lines.
func (u *URL) Measure(ctx context.Context, locator string) (int, error) {
	p, err := u.load(ctx, locator)
	if err != nil {
		return 0, err
	}
	return len(p.lines), nil
}

// Clipped reports whether the page was larger than the download limit. It
// fetches the page if it is not cached yet; a failed fetch is not clipped.
func (u *URL) Clipped(ctx context.Context, locator string) bool {
	p, err := u.load(ctx, locator)
	return err == nil && p.clipped
}

// Extract returns lines of the converted page, stopping at maxChars.
func (u *URL) Extract(ctx context.Context, locator string, r schema.Range, maxChars int) (schema.Content, error) {
	p, err := u.load(ctx, locator)
	if err != nil {
		return schema.Content{}, err
	}
	return window(ctx, len(p.lines), r, maxChars, func(i int) (string, error) { return p.lines[i-1], nil })
}

// Structure reports the Markdown headings of the converted page.
func (u *URL) Structure(ctx context.Context, locator string) ([]schema.Heading, error) {
	p, err := u.load(ctx, locator)
	if err != nil {
		return nil, err
	}
	return structure.Headings(p.lines, structure.Detect(p.lines)), nil
}

// Describe reports the page title, content type and line count.
func (u *URL) Describe(ctx context.Context, locator string) (Info, error) {
	p, err := u.load(ctx, locator)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Locator:     locator,
		Kind:        "url",
		Units:       schema.UnitLine,
		Total:       len(p.lines),
		Title:       p.title,
		ContentType: p.contentType,
		Clipped:     p.clipped,
		Lines:       p.lines,
	}, nil
}
