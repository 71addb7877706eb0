package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramlabs/engramd/internal/vectorstore"
	v1 "github.com/engramlabs/engramd/pkg/api/v1"
)

func TestSearchRanksBySimilarity(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := scopedCtx(testScope)

	target, err := mgr.Add(ctx, &v1.Fragment{
		Content: "rotate the tls certificates before october", MemoryType: v1.MemoryTypeFactual,
	})
	require.NoError(t, err)
	_, err = mgr.Add(ctx, &v1.Fragment{
		Content: "team offsite agenda and travel notes", MemoryType: v1.MemoryTypeFactual,
	})
	require.NoError(t, err)

	hits, err := mgr.Search(ctx, "rotate the tls certificates before october", SearchOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, target.ID, hits[0].Fragment.ID)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	_, err := mgr.Search(scopedCtx(testScope), "", SearchOptions{})
	assert.True(t, v1.IsValidationError(err))
}

func TestSearchUnknownScopeIsEmpty(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	// No fragment was ever added for this scope, so no collection exists.
	hits, err := mgr.Search(scopedCtx(testScope), "anything", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchRespectsUserIsolation(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	_, err := mgr.Add(scopedCtx(testScope), &v1.Fragment{
		Content: "alice secret launch plan", MemoryType: v1.MemoryTypeFactual,
	})
	require.NoError(t, err)

	bob := vectorstore.Scope{TenantID: "acme", ProjectID: "support", UserID: "bob"}
	hits, err := mgr.Search(scopedCtx(bob), "alice secret launch plan", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchRequiresScope(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	_, err := mgr.Search(context.Background(), "anything", SearchOptions{})
	assert.ErrorIs(t, err, vectorstore.ErrMissingScope)
}

func TestSearchFiltersByType(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := scopedCtx(testScope)

	_, err := mgr.Add(ctx, &v1.Fragment{
		Content: "database connection pool sizing notes", MemoryType: v1.MemoryTypeFactual,
	})
	require.NoError(t, err)
	summary, err := mgr.Add(ctx, &v1.Fragment{
		Content: "database connection pool sizing notes", MemoryType: v1.MemoryTypeEpisodic,
	})
	require.NoError(t, err)

	hits, err := mgr.Search(ctx, "database connection pool sizing notes", SearchOptions{
		MemoryType: v1.MemoryTypeEpisodic,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, summary.ID, hits[0].Fragment.ID)

	_, err = mgr.Search(ctx, "anything", SearchOptions{MemoryType: "bogus"})
	assert.True(t, v1.IsValidationError(err))
}

func TestSearchFiltersByTagAndImportance(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := scopedCtx(testScope)

	tagged, err := mgr.Add(ctx, &v1.Fragment{
		Content:    "incident retro for the payments outage",
		MemoryType: v1.MemoryTypeFactual,
		Tags:       []string{"incident", "payments"},
		Importance: 0.9,
	})
	require.NoError(t, err)
	_, err = mgr.Add(ctx, &v1.Fragment{
		Content:    "incident retro for the payments outage",
		MemoryType: v1.MemoryTypeFactual,
		Tags:       []string{"incident"},
		Importance: 0.2,
	})
	require.NoError(t, err)

	hits, err := mgr.Search(ctx, "incident retro for the payments outage", SearchOptions{
		Tags: []string{"incident", "payments"},
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, tagged.ID, hits[0].Fragment.ID)

	hits, err = mgr.Search(ctx, "incident retro for the payments outage", SearchOptions{
		MinImportance: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, tagged.ID, hits[0].Fragment.ID)
}

func TestSearchMinScoreDropsWeakHits(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := scopedCtx(testScope)

	_, err := mgr.Add(ctx, &v1.Fragment{
		Content: "completely unrelated cafeteria menu", MemoryType: v1.MemoryTypeFactual,
	})
	require.NoError(t, err)

	hits, err := mgr.Search(ctx, "kubernetes ingress controller upgrade", SearchOptions{
		MinScore: 0.99,
	})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchIncrementsHitCounts(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := scopedCtx(testScope)

	f, err := mgr.Add(ctx, &v1.Fragment{
		Content: "incident runbook for pager escalations", MemoryType: v1.MemoryTypeFactual,
	})
	require.NoError(t, err)

	_, err = mgr.Search(ctx, "incident runbook for pager escalations", SearchOptions{})
	require.NoError(t, err)
	_, err = mgr.Search(ctx, "incident runbook for pager escalations", SearchOptions{})
	require.NoError(t, err)

	got, err := mgr.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.HitCount)
}

func TestSearchTombstonesOrphanVectors(t *testing.T) {
	mgr, meta, _ := newTestManager(t)
	ctx := scopedCtx(testScope)

	f, err := mgr.Add(ctx, &v1.Fragment{
		Content: "row that will vanish from sqlite", MemoryType: v1.MemoryTypeFactual,
	})
	require.NoError(t, err)

	// Remove the metadata row behind the manager's back.
	require.NoError(t, meta.DeleteFragment(ctx, testScope, f.ID))

	hits, err := mgr.Search(ctx, "row that will vanish from sqlite", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, hits)

	tombs, err := meta.ListTombstones(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, tombs, 1)
	assert.Equal(t, f.ID, tombs[0].FragmentID)

	// Reconcile purges the orphan and the next search is clean.
	resolved, err := mgr.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)
}
