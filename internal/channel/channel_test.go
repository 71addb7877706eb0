package channel

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramlabs/engramd/internal/logging"
	"github.com/engramlabs/engramd/internal/metastore"
	"github.com/engramlabs/engramd/internal/vectorstore"
	v1 "github.com/engramlabs/engramd/pkg/api/v1"
)

var testScope = vectorstore.Scope{TenantID: "acme", ProjectID: "support", UserID: "alice"}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	meta, err := metastore.New(metastore.Config{Path: filepath.Join(t.TempDir(), "meta.db")})
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })
	return NewManager(meta, logging.NewNop())
}

func scopedCtx(scope vectorstore.Scope) context.Context {
	return vectorstore.ContextWithScope(context.Background(), &scope)
}

func TestAppendAssignsSequence(t *testing.T) {
	mgr := newTestManager(t)
	ctx := scopedCtx(testScope)

	first, err := mgr.Append(ctx, "standup", v1.RoleUser, "yesterday I fixed the flaky test")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, "acme", first.TenantID)

	second, err := mgr.Append(ctx, "standup", v1.RoleAssistant, "noted, anything blocking?")
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Seq)
}

func TestAppendValidation(t *testing.T) {
	mgr := newTestManager(t)
	ctx := scopedCtx(testScope)

	_, err := mgr.Append(ctx, "", v1.RoleUser, "hi")
	assert.True(t, v1.IsValidationError(err))

	_, err = mgr.Append(ctx, "ch", v1.RoleUser, "   ")
	assert.True(t, v1.IsValidationError(err))

	_, err = mgr.Append(ctx, "ch", "robot", "hi")
	assert.True(t, v1.IsValidationError(err))

	_, err = mgr.Append(ctx, "ch", "", "hi")
	assert.True(t, v1.IsValidationError(err))

	_, err = mgr.Append(context.Background(), "ch", v1.RoleUser, "hi")
	assert.ErrorIs(t, err, vectorstore.ErrMissingScope)
}

func TestHistoryNewestFirstWithCursor(t *testing.T) {
	mgr := newTestManager(t)
	ctx := scopedCtx(testScope)

	for _, content := range []string{"one", "two", "three", "four"} {
		_, err := mgr.Append(ctx, "log", v1.RoleUser, content)
		require.NoError(t, err)
	}

	page, err := mgr.History(ctx, "log", 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "four", page[0].Content)
	assert.Equal(t, "three", page[1].Content)

	next, err := mgr.History(ctx, "log", 2, page[1].Seq)
	require.NoError(t, err)
	require.Len(t, next, 2)
	assert.Equal(t, "two", next[0].Content)
	assert.Equal(t, "one", next[1].Content)
}

func TestHistoryScopeIsolation(t *testing.T) {
	mgr := newTestManager(t)

	_, err := mgr.Append(scopedCtx(testScope), "log", v1.RoleUser, "alice message")
	require.NoError(t, err)

	bob := vectorstore.Scope{TenantID: "acme", ProjectID: "support", UserID: "bob"}
	msgs, err := mgr.History(scopedCtx(bob), "log", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestHistoryForLLM(t *testing.T) {
	mgr := newTestManager(t)
	ctx := scopedCtx(testScope)

	_, err := mgr.Append(ctx, "chat", v1.RoleUser, "what broke the deploy?")
	require.NoError(t, err)
	_, err = mgr.Append(ctx, "chat", v1.RoleAssistant, "a missing migration")
	require.NoError(t, err)

	out, err := mgr.HistoryForLLM(ctx, "chat", 10)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "user: what broke the deploy?", lines[0])
	assert.Equal(t, "assistant: a missing migration", lines[1])
}
