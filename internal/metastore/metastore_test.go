package metastore

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramlabs/engramd/internal/vectorstore"
	v1 "github.com/engramlabs/engramd/pkg/api/v1"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{Path: filepath.Join(t.TempDir(), "meta.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var testScope = vectorstore.Scope{TenantID: "acme", ProjectID: "support", UserID: "alice"}

func testFragment(content string) *v1.Fragment {
	return &v1.Fragment{
		TenantID:   testScope.TenantID,
		ProjectID:  testScope.ProjectID,
		UserID:     testScope.UserID,
		Content:    content,
		MemoryType: v1.MemoryTypeFactual,
		Importance: 0.5,
		Tags:       []string{"test"},
	}
}

func TestFragmentCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f := testFragment("the deploy window is friday")
	f.Metadata = map[string]interface{}{"source": "slack"}
	require.NoError(t, s.InsertFragment(ctx, f))
	require.NotEmpty(t, f.ID)
	require.False(t, f.CreatedAt.IsZero())

	got, err := s.GetFragment(ctx, testScope, f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.Content, got.Content)
	assert.Equal(t, v1.MemoryTypeFactual, got.MemoryType)
	assert.Equal(t, []string{"test"}, got.Tags)
	assert.Equal(t, "slack", got.Metadata["source"])

	got.Content = "the deploy window moved to thursday"
	got.Importance = 0.9
	require.NoError(t, s.UpdateFragment(ctx, testScope, got))

	got2, err := s.GetFragment(ctx, testScope, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "the deploy window moved to thursday", got2.Content)
	assert.InDelta(t, 0.9, got2.Importance, 1e-9)
	assert.False(t, got2.UpdatedAt.Before(got2.CreatedAt))

	require.NoError(t, s.DeleteFragment(ctx, testScope, f.ID))
	_, err = s.GetFragment(ctx, testScope, f.ID)
	assert.ErrorIs(t, err, v1.ErrNotFound)
}

func TestFragmentScopeFencing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f := testFragment("alice private note")
	require.NoError(t, s.InsertFragment(ctx, f))

	bob := vectorstore.Scope{TenantID: "acme", ProjectID: "support", UserID: "bob"}

	_, err := s.GetFragment(ctx, bob, f.ID)
	assert.ErrorIs(t, err, v1.ErrNotFound)

	foreign := *f
	foreign.Content = "overwritten"
	assert.ErrorIs(t, s.UpdateFragment(ctx, bob, &foreign), v1.ErrNotFound)
	assert.ErrorIs(t, s.DeleteFragment(ctx, bob, f.ID), v1.ErrNotFound)

	// Still intact for the owner.
	got, err := s.GetFragment(ctx, testScope, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice private note", got.Content)
}

func TestListFragments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.InsertFragment(ctx, testFragment("fact")))
	}
	doc := testFragment("doc")
	doc.MemoryType = v1.MemoryTypePreference
	require.NoError(t, s.InsertFragment(ctx, doc))

	all, err := s.ListFragments(ctx, testScope, "", 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	docs, err := s.ListFragments(ctx, testScope, string(v1.MemoryTypePreference), 10, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)

	page, err := s.ListFragments(ctx, testScope, "", 2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestHitCountsAndStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f1 := testFragment("one")
	f2 := testFragment("two")
	require.NoError(t, s.InsertFragment(ctx, f1))
	require.NoError(t, s.InsertFragment(ctx, f2))

	require.NoError(t, s.IncrementHitCounts(ctx, testScope, []string{f1.ID, f2.ID}))
	require.NoError(t, s.IncrementHitCounts(ctx, testScope, []string{f1.ID}))

	got, err := s.GetFragment(ctx, testScope, f1.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.HitCount)

	require.NoError(t, s.AppendMessage(ctx, &v1.ChannelMessage{
		ChannelID: "ch", TenantID: testScope.TenantID, ProjectID: testScope.ProjectID,
		UserID: testScope.UserID, Role: v1.RoleUser, Content: "hi",
	}))

	stats, err := s.Stats(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalFragments)
	assert.Equal(t, int64(2), stats.ByType[string(v1.MemoryTypeFactual)])
	assert.Equal(t, int64(1), stats.TotalMessages)
}

func TestChannelSequencing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, content := range []string{"first", "second", "third"} {
		m := &v1.ChannelMessage{
			ChannelID: "planning", TenantID: testScope.TenantID,
			ProjectID: testScope.ProjectID, UserID: testScope.UserID,
			Role: v1.RoleUser, Content: content,
		}
		require.NoError(t, s.AppendMessage(ctx, m))
		assert.Equal(t, int64(i+1), m.Seq)
	}

	// Separate channels sequence independently.
	other := &v1.ChannelMessage{
		ChannelID: "random", TenantID: testScope.TenantID,
		ProjectID: testScope.ProjectID, UserID: testScope.UserID,
		Role: v1.RoleUser, Content: "aside",
	}
	require.NoError(t, s.AppendMessage(ctx, other))
	assert.Equal(t, int64(1), other.Seq)

	history, err := s.ChannelHistory(ctx, testScope, "planning", 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "third", history[0].Content)
	assert.Equal(t, "first", history[2].Content)

	// Cursor pages backwards from seq 3.
	page, err := s.ChannelHistory(ctx, testScope, "planning", 10, 3)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "second", page[0].Content)
}

func TestConcurrentAppendsSequenceGaplessly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const writers = 16
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.AppendMessage(ctx, &v1.ChannelMessage{
				ChannelID: "busy", TenantID: testScope.TenantID,
				ProjectID: testScope.ProjectID, UserID: testScope.UserID,
				Role: v1.RoleUser, Content: fmt.Sprintf("msg %d", i),
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// All writers landed with distinct, gapless sequence numbers.
	history, err := s.ChannelHistory(ctx, testScope, "busy", writers, 0)
	require.NoError(t, err)
	require.Len(t, history, writers)
	for i, m := range history {
		assert.Equal(t, int64(writers-i), m.Seq)
	}
}

func TestTenantProjectLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tenant, err := s.CreateTenant(ctx, "acme")
	require.NoError(t, err)
	assert.NotEmpty(t, tenant.ID)

	_, err = s.CreateTenant(ctx, "acme")
	assert.ErrorIs(t, err, v1.ErrDuplicate)

	_, err = s.CreateProject(ctx, "acme", "support")
	require.NoError(t, err)
	_, err = s.CreateProject(ctx, "acme", "support")
	assert.ErrorIs(t, err, v1.ErrDuplicate)
	_, err = s.CreateProject(ctx, "ghost", "x")
	assert.ErrorIs(t, err, v1.ErrNotFound)

	projects, err := s.ListProjects(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "support", projects[0].Name)

	require.NoError(t, s.InsertFragment(ctx, testFragment("to be cascaded")))

	deleted, err := s.DeleteTenant(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"support"}, deleted)

	_, err = s.GetTenant(ctx, "acme")
	assert.ErrorIs(t, err, v1.ErrNotFound)
	rest, err := s.ListFragments(ctx, testScope, "", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

func TestAPIKeyLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateTenant(ctx, "acme")
	require.NoError(t, err)
	_, err = s.CreateProject(ctx, "acme", "support")
	require.NoError(t, err)

	plaintext, key, err := s.CreateAPIKey(ctx, "acme", "support", "alice", "ci")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plaintext, APIKeyPrefix))

	scope, err := s.VerifyAPIKey(ctx, plaintext)
	require.NoError(t, err)
	assert.Equal(t, testScope, scope)

	_, err = s.VerifyAPIKey(ctx, "eg_bogus")
	assert.ErrorIs(t, err, v1.ErrUnauthorized)

	require.NoError(t, s.RevokeAPIKey(ctx, key.ID))
	_, err = s.VerifyAPIKey(ctx, plaintext)
	assert.ErrorIs(t, err, v1.ErrUnauthorized)

	keys, err := s.ListAPIKeys(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.True(t, keys[0].Revoked)
}

func TestTombstones(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ts := Tombstone{
		FragmentID: "01ABC", Collection: "acme__support",
		Scope: testScope, Reason: "delete failed",
	}
	require.NoError(t, s.AddTombstone(ctx, ts))
	// Upsert on the same key keeps a single row.
	ts.Reason = "retry"
	require.NoError(t, s.AddTombstone(ctx, ts))

	list, err := s.ListTombstones(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "retry", list[0].Reason)
	assert.Equal(t, testScope, list[0].Scope)

	require.NoError(t, s.RemoveTombstone(ctx, "01ABC", "acme__support"))
	list, err = s.ListTombstones(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}
