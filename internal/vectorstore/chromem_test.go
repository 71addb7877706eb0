package vectorstore

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"testing"
)

// hashEmbedder produces deterministic normalized vectors from token hashes.
// Identical texts embed identically; overlapping texts land nearby.
type hashEmbedder struct {
	dim int
}

func (e *hashEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%e.dim] += 1
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func (e *hashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func newTestStore(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore(ChromemConfig{Path: t.TempDir()}, &hashEmbedder{dim: 16}, nil)
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	return store
}

func ctxFor(tenant, project, user string) context.Context {
	return ContextWithScope(context.Background(), &Scope{
		TenantID:  tenant,
		ProjectID: project,
		UserID:    user,
	})
}

const testColl = "acme__support"

func addDoc(t *testing.T, store *ChromemStore, ctx context.Context, id, content string) {
	t.Helper()
	_, err := store.AddDocuments(ctx, []Document{{ID: id, Content: content, Collection: testColl}})
	if err != nil {
		t.Fatalf("AddDocuments(%s): %v", id, err)
	}
}

func TestChromemAddAndSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := ctxFor("acme", "support", "u1")

	addDoc(t, store, ctx, "m1", "the user prefers dark mode")
	addDoc(t, store, ctx, "m2", "shipping address is in berlin")

	results, err := store.Search(ctx, testColl, "the user prefers dark mode", 2, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if results[0].ID != "m1" {
		t.Errorf("expected m1 first, got %s", results[0].ID)
	}
	if results[0].Metadata["user_id"] != "u1" {
		t.Errorf("ownership metadata missing: %v", results[0].Metadata)
	}
}

func TestChromemSearchFailsClosed(t *testing.T) {
	store := newTestStore(t)
	addDoc(t, store, ctxFor("acme", "support", "u1"), "m1", "something")

	_, err := store.Search(context.Background(), testColl, "something", 1, nil)
	if !errors.Is(err, ErrMissingScope) {
		t.Errorf("expected ErrMissingScope, got %v", err)
	}
}

func TestChromemUserIsolation(t *testing.T) {
	store := newTestStore(t)
	alice := ctxFor("acme", "support", "alice")
	bob := ctxFor("acme", "support", "bob")

	addDoc(t, store, alice, "a1", "alice secret phrase about penguins")
	addDoc(t, store, bob, "b1", "bob note about invoices")

	results, err := store.Search(bob, testColl, "alice secret phrase about penguins", 5, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.ID == "a1" {
			t.Fatal("bob must never see alice's documents")
		}
	}

	// Direct-by-ID reads are equally fenced.
	if _, err := store.GetDocument(bob, testColl, "a1"); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound for foreign document, got %v", err)
	}
}

func TestChromemSearchMissingCollection(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Search(ctxFor("acme", "support", "u1"), "ghost__coll", "anything", 1, nil)
	if !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("expected ErrCollectionNotFound, got %v", err)
	}
}

func TestChromemUpdateMetadata(t *testing.T) {
	store := newTestStore(t)
	ctx := ctxFor("acme", "support", "u1")
	addDoc(t, store, ctx, "m1", "remember the milk")

	err := store.UpdateMetadata(ctx, testColl, "m1", map[string]interface{}{
		"importance": "0.900000",
		"user_id":    "attacker", // must be overwritten by scope injection
	})
	if err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}

	doc, err := store.GetDocument(ctx, testColl, "m1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Content != "remember the milk" {
		t.Errorf("content changed: %q", doc.Content)
	}
	if doc.Metadata["importance"] != "0.900000" {
		t.Errorf("metadata not updated: %v", doc.Metadata)
	}
	if doc.Metadata["user_id"] != "u1" {
		t.Errorf("ownership not re-injected: %v", doc.Metadata["user_id"])
	}
}

func TestChromemDeleteDocuments(t *testing.T) {
	store := newTestStore(t)
	ctx := ctxFor("acme", "support", "u1")
	addDoc(t, store, ctx, "m1", "delete me please")

	if err := store.DeleteDocuments(ctx, testColl, []string{"m1"}); err != nil {
		t.Fatalf("DeleteDocuments: %v", err)
	}
	if _, err := store.GetDocument(ctx, testColl, "m1"); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("expected document gone, got %v", err)
	}

	// Deleting a foreign document is a silent no-op.
	other := ctxFor("acme", "support", "u2")
	addDoc(t, store, ctx, "m2", "still mine")
	if err := store.DeleteDocuments(other, testColl, []string{"m2"}); err != nil {
		t.Fatalf("DeleteDocuments foreign: %v", err)
	}
	if _, err := store.GetDocument(ctx, testColl, "m2"); err != nil {
		t.Errorf("m2 should survive foreign delete: %v", err)
	}
}

func TestChromemDeleteByFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := ctxFor("acme", "support", "u1")

	_, err := store.AddDocuments(ctx, []Document{
		{ID: "f1", Content: "one", Collection: testColl, Metadata: map[string]interface{}{"memory_type": "session"}},
		{ID: "f2", Content: "two", Collection: testColl, Metadata: map[string]interface{}{"memory_type": "factual"}},
	})
	if err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}

	if err := store.DeleteByFilter(ctx, testColl, map[string]interface{}{"memory_type": "session"}); err != nil {
		t.Fatalf("DeleteByFilter: %v", err)
	}

	if _, err := store.GetDocument(ctx, testColl, "f1"); !errors.Is(err, ErrDocumentNotFound) {
		t.Error("session document should be deleted")
	}
	if _, err := store.GetDocument(ctx, testColl, "f2"); err != nil {
		t.Errorf("factual document should survive: %v", err)
	}
}

func TestChromemCollectionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := ctxFor("acme", "support", "u1")
	addDoc(t, store, ctx, "m1", "content")

	exists, err := store.CollectionExists(ctx, testColl)
	if err != nil || !exists {
		t.Fatalf("CollectionExists = %v, %v", exists, err)
	}

	info, err := store.GetCollectionInfo(ctx, testColl)
	if err != nil {
		t.Fatalf("GetCollectionInfo: %v", err)
	}
	if info.PointCount != 1 {
		t.Errorf("expected 1 point, got %d", info.PointCount)
	}

	if err := store.DeleteCollection(ctx, testColl); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}
	exists, _ = store.CollectionExists(ctx, testColl)
	if exists {
		t.Error("collection should be gone")
	}
}

func TestValidateCollectionNameRules(t *testing.T) {
	valid := []string{"acme__support", "a", "t_1__p_2"}
	for _, name := range valid {
		if err := ValidateCollectionName(name); err != nil {
			t.Errorf("%q should be valid: %v", name, err)
		}
	}
	invalid := []string{"", "UPPER", "has space", "dots.bad", "../traversal", strings.Repeat("a", 65)}
	for _, name := range invalid {
		if err := ValidateCollectionName(name); err == nil {
			t.Errorf("%q should be invalid", name)
		}
	}
}
