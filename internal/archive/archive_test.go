package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/skim/internal/schema"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "skim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func report(id, locator string, at time.Time) *schema.Report {
	ev := schema.Range{Start: 1, End: 1}
	return &schema.Report{
		Tool:        "skim",
		SessionID:   id,
		GeneratedAt: at,
		Source:      schema.Source{Locator: locator, Units: schema.UnitLine, Total: 200, Profile: "default"},
		Summary:     schema.Summary{CoveragePercent: 12.5},
		Findings: schema.Findings{
			Verified: []schema.ReportFinding{{Label: schema.LabelVerified, Content: "opens", Excerpt: "# Title", Evidence: &ev}},
			Unknown:  []schema.ReportFinding{{Label: schema.LabelUnknown, Content: "middle unread"}},
		},
		Limitations: []schema.Limitation{{Kind: schema.LimitIncomplete, Message: "sampled"}},
	}
}

func TestStore_SaveGet(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, report("a1", "notes.md", at)))
	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "notes.md", got.Source.Locator)
	assert.True(t, at.Equal(got.GeneratedAt))
	require.Len(t, got.Findings.Verified, 1)
	assert.Equal(t, "# Title", got.Findings.Verified[0].Excerpt)
}

func TestStore_GetMissing(t *testing.T) {
	s := openTemp(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, report("old", "a.md", base)))
	require.NoError(t, s.Save(ctx, report("new", "b.md", base.Add(time.Hour))))
	require.NoError(t, s.Save(ctx, report("mid", "c.md", base.Add(time.Minute))))

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{all[0].SessionID, all[1].SessionID, all[2].SessionID})
	assert.Equal(t, 2, all[0].Findings)
	assert.Equal(t, 1, all[0].Limitations)
	assert.Equal(t, schema.UnitLine, all[0].Units)
	assert.InDelta(t, 12.5, all[0].CoveragePercent, 1e-9)

	two, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestStore_SaveReplaces(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, report("x", "first.md", at)))
	require.NoError(t, s.Save(ctx, report("x", "second.md", at)))

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "second.md", all[0].Locator)
}

func TestStore_SaveRequiresID(t *testing.T) {
	s := openTemp(t)
	err := s.Save(context.Background(), &schema.Report{})
	assert.ErrorContains(t, err, "no session id")
}

func TestStore_ListEmpty(t *testing.T) {
	s := openTemp(t)
	all, err := s.List(context.Background(), 5)
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}
