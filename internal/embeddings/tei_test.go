package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTEITestServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embed", r.URL.Path)

		var req struct {
			Inputs interface{} `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		count := 1
		if list, ok := req.Inputs.([]interface{}); ok {
			count = len(list)
		}
		vectors := make([][]float32, count)
		for i := range vectors {
			vectors[i] = make([]float32, dim)
			vectors[i][0] = 1
		}
		require.NoError(t, json.NewEncoder(w).Encode(vectors))
	}))
}

func TestTEIProviderEmbed(t *testing.T) {
	srv := newTEITestServer(t, 8)
	defer srv.Close()

	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	defer p.Close()

	t.Run("documents", func(t *testing.T) {
		vecs, err := p.EmbedDocuments(context.Background(), []string{"a", "b"})
		require.NoError(t, err)
		assert.Len(t, vecs, 2)
		assert.Len(t, vecs[0], 8)
	})

	t.Run("query", func(t *testing.T) {
		vec, err := p.EmbedQuery(context.Background(), "hello")
		require.NoError(t, err)
		assert.Len(t, vec, 8)
	})

	t.Run("dimension learned from response", func(t *testing.T) {
		assert.Equal(t, 8, p.Dimension())
	})

	t.Run("empty input rejected", func(t *testing.T) {
		_, err := p.EmbedDocuments(context.Background(), nil)
		assert.ErrorIs(t, err, ErrEmptyInput)
		_, err = p.EmbedQuery(context.Background(), "")
		assert.ErrorIs(t, err, ErrEmptyInput)
	})
}

func TestTEIProviderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestTEIProviderConfigValidation(t *testing.T) {
	_, err := NewTEIProvider(TEIConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestHashProvider(t *testing.T) {
	p := NewHashProvider(16)

	a, err := p.EmbedQuery(context.Background(), "the quick brown fox")
	require.NoError(t, err)
	b, err := p.EmbedQuery(context.Background(), "the quick brown fox")
	require.NoError(t, err)
	assert.Equal(t, a, b, "hash embeddings must be deterministic")

	vecs, err := p.EmbedDocuments(context.Background(), []string{"x", "y"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, 16, p.Dimension())

	// Vectors are unit length.
	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}
