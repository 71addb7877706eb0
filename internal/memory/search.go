package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/engramlabs/engramd/internal/vectorstore"
	v1 "github.com/engramlabs/engramd/pkg/api/v1"
)

// SearchOptions narrows a semantic search. Zero values fall back to
// manager defaults.
type SearchOptions struct {
	Limit      int
	MinScore   float32
	MemoryType v1.MemoryType
	SessionID  string
	Role       v1.Role
	// Tags keeps only fragments carrying every listed tag.
	Tags []string
	// MinImportance drops fragments below this importance.
	MinImportance float64
}

// Search embeds the query, ranks the scope's fragments by similarity,
// and enriches hits from the metadata store. Hit counters are bumped
// best effort; a counter failure never fails the search. A timed-out
// attempt is repeated once, since search never mutates fragments.
func (m *Manager) Search(ctx context.Context, query string, opts SearchOptions) ([]v1.SearchHit, error) {
	hits, err := m.searchOnce(ctx, query, opts)
	if retryableTimeout(ctx, err) {
		time.Sleep(readRetryBackoff)
		hits, err = m.searchOnce(ctx, query, opts)
	}
	return hits, err
}

func (m *Manager) searchOnce(ctx context.Context, query string, opts SearchOptions) ([]v1.SearchHit, error) {
	ctx, span := tracer.Start(ctx, "Manager.Search")
	defer span.End()
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	if query == "" {
		return nil, v1.NewValidationError("query", "must not be empty")
	}
	scope, err := vectorstore.ScopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = m.opts.SearchLimit
	}
	minScore := opts.MinScore
	if minScore <= 0 {
		minScore = m.opts.MinScore
	}

	collection, err := m.resolver.Resolve(scope.TenantID, scope.ProjectID)
	if err != nil {
		return nil, err
	}

	filters := map[string]interface{}{}
	if opts.MemoryType != "" {
		if !v1.ValidMemoryType(opts.MemoryType) {
			return nil, v1.NewValidationError("memory_type", "unknown type")
		}
		filters["memory_type"] = string(opts.MemoryType)
	}
	if opts.SessionID != "" {
		filters["session_id"] = opts.SessionID
	}
	if opts.Role != "" {
		filters["role"] = string(opts.Role)
	}

	results, err := m.vectors.Search(ctx, collection, query, limit, filters)
	if err != nil {
		// A scope that never stored anything has no collection yet.
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			return nil, nil
		}
		return nil, mapTimeout(fmt.Errorf("vector search: %w", err))
	}

	ids := make([]string, 0, len(results))
	for _, r := range results {
		if r.Score < minScore {
			continue
		}
		ids = append(ids, r.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	fragments, err := m.meta.GetFragments(ctx, *scope, ids)
	if err != nil {
		return nil, mapTimeout(err)
	}

	hits := make([]v1.SearchHit, 0, len(ids))
	for _, r := range results {
		f, ok := fragments[r.ID]
		if !ok {
			if r.Score < minScore {
				continue
			}
			// Vector entry with no metadata row: an orphan. Tombstone
			// it so reconciliation purges it.
			m.logger.Warn(ctx, "search hit missing metadata row",
				zap.String("fragment_id", r.ID))
			m.tombstone(ctx, *scope, collection, r.ID, "orphan vector entry")
			continue
		}
		// Tag and importance constraints live on the metadata row, so
		// they are applied after enrichment.
		if f.Importance < opts.MinImportance || !hasAllTags(f.Tags, opts.Tags) {
			continue
		}
		hits = append(hits, v1.SearchHit{Fragment: *f, Score: r.Score})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Fragment.CreatedAt.After(hits[j].Fragment.CreatedAt)
	})

	hitIDs := make([]string, len(hits))
	for i, h := range hits {
		hitIDs[i] = h.Fragment.ID
	}
	if err := m.meta.IncrementHitCounts(ctx, *scope, hitIDs); err != nil {
		m.logger.Warn(ctx, "hit count update failed", zap.Error(err))
	}
	return hits, nil
}

func hasAllTags(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
