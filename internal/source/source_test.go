package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/skim/internal/schema"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func rng(a, b int) schema.Range { return schema.Range{Start: a, End: b} }

func texts(c schema.Content) []string {
	var out []string
	for _, u := range c.Units {
		out = append(out, u.Text)
	}
	return out
}

func TestWindow(t *testing.T) {
	us := []string{"alpha", "beta", "gamma", "delta"}
	get := func(i int) (string, error) { return us[i-1], nil }
	ctx := context.Background()

	t.Run("fits", func(t *testing.T) {
		c, err := window(ctx, 4, rng(2, 3), 100, get)
		require.NoError(t, err)
		assert.Equal(t, []string{"beta", "gamma"}, texts(c))
		assert.False(t, c.Truncated)
		assert.Equal(t, 2, c.Units[0].Index)
	})
	t.Run("ceiling stops early", func(t *testing.T) {
		c, err := window(ctx, 4, rng(1, 4), 9, get)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "beta"}, texts(c))
		assert.True(t, c.Truncated)
		assert.False(t, c.Partial)
	})
	t.Run("oversized first unit is cut", func(t *testing.T) {
		c, err := window(ctx, 4, rng(3, 4), 3, get)
		require.NoError(t, err)
		assert.Equal(t, []string{"gam"}, texts(c))
		assert.True(t, c.Partial)
		assert.True(t, c.Truncated)
	})
	t.Run("out of range", func(t *testing.T) {
		_, err := window(ctx, 4, rng(3, 5), 100, get)
		assert.ErrorIs(t, err, ErrOutOfRange)
	})
	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := window(cctx, 4, rng(1, 1), 100, get)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestText_Lines(t *testing.T) {
	p := writeFile(t, "doc.md", "# Report\r\nfirst line\n\n## Details\nlast line\n")
	src := NewText(schema.UnitLine, 0)
	ctx := context.Background()

	n, err := src.Measure(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, schema.UnitLine, src.Units())

	c, err := src.Extract(ctx, p, rng(1, 2), 1000)
	require.NoError(t, err)
	assert.Equal(t, []string{"# Report", "first line"}, texts(c))

	again, err := src.Extract(ctx, p, rng(1, 2), 1000)
	require.NoError(t, err)
	assert.Equal(t, c, again)

	hs, err := src.Structure(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []schema.Heading{
		{Unit: 1, Level: 1, Text: "Report"},
		{Unit: 4, Level: 2, Text: "Details"},
	}, hs)

	info, err := src.Describe(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "text", info.Kind)
	assert.Equal(t, 5, info.Total)
	assert.Len(t, info.Lines, 5)
}

func TestText_Blocks(t *testing.T) {
	body := strings.Repeat("a", 25) + "\n# Heading\n" + strings.Repeat("b", 20)
	p := writeFile(t, "doc.txt", body)
	src := NewText(schema.UnitBlock, 10)
	ctx := context.Background()

	n, err := src.Measure(ctx, p)
	require.NoError(t, err)
	// 25 + 1 + 9 + 1 + 20 characters
	assert.Equal(t, 6, n)

	c, err := src.Extract(ctx, p, rng(6, 6), 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"bbbbbb"}, texts(c))

	hs, err := src.Structure(ctx, p)
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, 3, hs[0].Unit, "heading starts at character 26, in block 3")
}

func TestText_Errors(t *testing.T) {
	src := NewText(schema.UnitLine, 0)
	_, err := src.Measure(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)

	empty := writeFile(t, "empty.txt", "")
	n, err := src.Measure(context.Background(), empty)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStreamText(t *testing.T) {
	cases := []struct {
		name   string
		stream string
		want   string
	}{
		{"tj lines", "BT /F1 12 Tf 72 700 Td (Hello) Tj 0 -14 Td (World) Tj ET", "Hello\nWorld"},
		{"tj array", "BT [(Clo) -120 (sing)] TJ ET", "Closing"},
		{"quote operator", "BT (one) Tj (two) ' ET", "one\ntwo"},
		{"escapes", `BT (a \(b\) \\ c\101) Tj ET`, `a (b) \ cA`},
		{"nested parens", "BT (f(x) = y) Tj ET", "f(x) = y"},
		{"hex skipped", "BT <48656c6c6f> Tj (plain) Tj ET", "plain"},
		{"whitespace collapsed", "BT (  spaced    out  ) Tj ET", "spaced out"},
		{"no text", "q 1 0 0 1 0 0 cm Q", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, streamText([]byte(c.stream)))
		})
	}
}

func TestPDF(t *testing.T) {
	p := filepath.Join("testdata", "two_pages.pdf")
	src := NewPDF()
	ctx := context.Background()

	n, err := src.Measure(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, schema.UnitPage, src.Units())

	c, err := src.Extract(ctx, p, rng(1, 2), 10000)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Quarterly Review\nRevenue grew (again).",
		"Closing remarks\nSee appendix.",
	}, texts(c))

	_, err = src.Extract(ctx, p, rng(2, 3), 10000)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestPDF_Structure(t *testing.T) {
	src := NewPDF()
	ctx := context.Background()

	hs, err := src.Structure(ctx, filepath.Join("testdata", "outlined.pdf"))
	require.NoError(t, err)
	assert.Equal(t, []schema.Heading{
		{Unit: 1, Level: 1, Text: "Introduction"},
		{Unit: 2, Level: 2, Text: "Method"},
		{Unit: 3, Level: 1, Text: "Results"},
	}, hs)

	hs, err = src.Structure(ctx, filepath.Join("testdata", "two_pages.pdf"))
	require.NoError(t, err)
	assert.Empty(t, hs)
}

func TestURL(t *testing.T) {
	var (
		mu     sync.Mutex
		agents []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agents = append(agents, r.UserAgent())
		mu.Unlock()
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<html><head><title>Field Notes</title><script>alert(1)</script></head>
<body><h1>Findings</h1><p>The survey covered <b>twelve</b> sites.</p><h2>Method</h2><p>Random walk.</p></body></html>`))
		case "/plain":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("one\ntwo\nthree\n"))
		case "/long":
			w.Header().Set("Content-Type", "text/plain")
			for i := 1; i <= 1000; i++ {
				_, _ = fmt.Fprintf(w, "line %04d\n", i)
			}
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := NewURL(DefaultConfig())
	ctx := context.Background()

	t.Run("html", func(t *testing.T) {
		loc := srv.URL + "/page"
		n, err := src.Measure(ctx, loc)
		require.NoError(t, err)
		require.Positive(t, n)

		c, err := src.Extract(ctx, loc, rng(1, n), 10000)
		require.NoError(t, err)
		all := strings.Join(texts(c), "\n")
		assert.Contains(t, all, "# Findings")
		assert.Contains(t, all, "**twelve**")
		assert.NotContains(t, all, "alert")

		hs, err := src.Structure(ctx, loc)
		require.NoError(t, err)
		var names []string
		for _, h := range hs {
			names = append(names, h.Text)
		}
		assert.Equal(t, []string{"Findings", "Method"}, names)

		info, err := src.Describe(ctx, loc)
		require.NoError(t, err)
		assert.Equal(t, "Field Notes", info.Title)
		assert.Equal(t, "url", info.Kind)
	})

	t.Run("plain", func(t *testing.T) {
		loc := srv.URL + "/plain"
		n, err := src.Measure(ctx, loc)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		c, err := src.Extract(ctx, loc, rng(2, 3), 100)
		require.NoError(t, err)
		assert.Equal(t, []string{"two", "three"}, texts(c))
	})

	t.Run("plain not clipped", func(t *testing.T) {
		assert.False(t, src.Clipped(ctx, srv.URL+"/plain"))
	})

	t.Run("clipped", func(t *testing.T) {
		small := NewURL(Config{MaxBytes: 1305})
		loc := srv.URL + "/long"
		n, err := small.Measure(ctx, loc)
		require.NoError(t, err)
		assert.Equal(t, 130, n, "the line cut by the limit is dropped")
		assert.True(t, small.Clipped(ctx, loc))

		c, err := small.Extract(ctx, loc, rng(130, 130), 100)
		require.NoError(t, err)
		assert.Equal(t, []string{"line 0130"}, texts(c))

		info, err := small.Describe(ctx, loc)
		require.NoError(t, err)
		assert.True(t, info.Clipped)
		assert.Equal(t, 130, info.Total)
	})

	t.Run("status", func(t *testing.T) {
		_, err := src.Measure(ctx, srv.URL+"/missing")
		assert.ErrorContains(t, err, "status 404")
	})

	mu.Lock()
	defer mu.Unlock()
	for _, a := range agents {
		assert.Contains(t, a, "DocumentSkimmer/1.0")
	}
}

func TestOpen(t *testing.T) {
	cases := []struct {
		locator string
		cfg     Config
		want    any
		units   schema.UnitKind
	}{
		{"https://example.com/a", DefaultConfig(), &URL{}, schema.UnitLine},
		{"report.PDF", DefaultConfig(), &PDF{}, schema.UnitPage},
		{"notes.txt", DefaultConfig(), &Text{}, schema.UnitLine},
		{"notes.txt", Config{Unit: "block", BlockChars: 500}, &Text{}, schema.UnitBlock},
	}
	for _, c := range cases {
		src, err := Open(c.locator, c.cfg)
		require.NoError(t, err, c.locator)
		assert.IsType(t, c.want, src)
		assert.Equal(t, c.units, src.Units())
	}

	_, err := Open("", DefaultConfig())
	assert.Error(t, err)
	_, err = Open("notes.txt", Config{Unit: "word"})
	assert.Error(t, err)
	_, err = Open("http:///nohost", DefaultConfig())
	assert.Error(t, err)
}
