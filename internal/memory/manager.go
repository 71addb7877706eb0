// Package memory coordinates the two stores behind a fragment: the
// SQLite metadata store, which is authoritative, and the vector store,
// which holds a derived searchable copy. Writes go metadata first;
// a failed vector write is compensated, and anything that cannot be
// compensated is tombstoned so Reconcile can purge it later.
package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/engramlabs/engramd/internal/collections"
	"github.com/engramlabs/engramd/internal/logging"
	"github.com/engramlabs/engramd/internal/metastore"
	"github.com/engramlabs/engramd/internal/vectorstore"
	v1 "github.com/engramlabs/engramd/pkg/api/v1"
)

var tracer = otel.Tracer("engramd.memory")

// Options tunes manager behavior.
type Options struct {
	// SearchLimit is the default result count when a caller passes 0.
	SearchLimit int
	// MinScore drops search hits below this similarity.
	MinScore float32
	// OperationTimeout bounds each public operation. Zero disables it.
	OperationTimeout time.Duration
}

// Manager owns fragment lifecycle across both stores.
type Manager struct {
	meta     *metastore.Store
	vectors  vectorstore.Store
	resolver *collections.Resolver
	opts     Options
	logger   *logging.Logger
}

// NewManager wires the two stores together.
func NewManager(meta *metastore.Store, vectors vectorstore.Store, logger *logging.Logger, opts Options) *Manager {
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 10
	}
	return &Manager{
		meta:     meta,
		vectors:  vectors,
		resolver: collections.NewResolver(),
		opts:     opts,
		logger:   logger.Named("memory"),
	}
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.opts.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.opts.OperationTimeout)
}

// readRetryBackoff is the pause before a timed-out idempotent read is
// attempted a second time. Writes are never retried.
const readRetryBackoff = 100 * time.Millisecond

// compensationTimeout bounds cleanup that runs after the request is
// already failing, typically because its deadline fired.
const compensationTimeout = 5 * time.Second

// compensationContext detaches from ctx's cancellation so a
// compensating write or tombstone still runs when the request deadline
// is the reason the vector write failed. Trace and scope values carry
// over.
func compensationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
}

// retryableTimeout reports whether a failed attempt may be repeated:
// the attempt's own deadline fired, not the caller's.
func retryableTimeout(ctx context.Context, err error) bool {
	return errors.Is(err, v1.ErrTimeout) && ctx.Err() == nil
}

// mapTimeout converts a context deadline into the API timeout error so
// surfaces can map it to a gateway timeout.
func mapTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", v1.ErrTimeout, err)
	}
	return err
}

// Add validates and stores a new fragment in both stores. Ownership
// comes from the request scope, never from the payload.
func (m *Manager) Add(ctx context.Context, f *v1.Fragment) (*v1.Fragment, error) {
	ctx, span := tracer.Start(ctx, "Manager.Add")
	defer span.End()
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	scope, err := vectorstore.ScopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	f.TenantID = scope.TenantID
	f.ProjectID = scope.ProjectID
	f.UserID = scope.UserID
	if f.MemoryType == "" {
		f.MemoryType = v1.MemoryTypeFactual
	}
	if err := v1.ValidateFragment(f); err != nil {
		return nil, err
	}

	collection, err := m.resolver.Resolve(scope.TenantID, scope.ProjectID)
	if err != nil {
		return nil, err
	}

	// Metadata first: it is the record of truth.
	if err := m.meta.InsertFragment(ctx, f); err != nil {
		return nil, mapTimeout(err)
	}

	doc := m.vectorDoc(f, collection)
	_, err = m.vectors.AddDocuments(ctx, []vectorstore.Document{doc})
	if err != nil && ctx.Err() == nil {
		// Retry the missing side once before tearing the write down.
		_, err = m.vectors.AddDocuments(ctx, []vectorstore.Document{doc})
	}
	if err != nil {
		// Compensate so the fragment does not exist half-written.
		cctx, ccancel := compensationContext(ctx)
		defer ccancel()
		if delErr := m.meta.DeleteFragment(cctx, *scope, f.ID); delErr != nil && !errors.Is(delErr, v1.ErrNotFound) {
			m.tombstone(cctx, *scope, collection, f.ID, "add compensation failed")
			m.logger.Error(cctx, "add left stores inconsistent",
				zap.String("fragment_id", f.ID), zap.Error(delErr))
			return nil, fmt.Errorf("%w: vector add failed and compensation failed: %v", v1.ErrStoreInconsistency, err)
		}
		return nil, mapTimeout(fmt.Errorf("vector store add: %w", err))
	}
	return f, nil
}

// AddMessage stores a conversational turn as a session fragment so it
// becomes searchable alongside durable memories.
func (m *Manager) AddMessage(ctx context.Context, sessionID string, role v1.Role, content string) (*v1.Fragment, error) {
	return m.Add(ctx, &v1.Fragment{
		Content:    content,
		MemoryType: v1.MemoryTypeSession,
		Role:       role,
		SessionID:  sessionID,
		Importance: v1.DefaultImportance,
	})
}

// Get loads a fragment by ID from the metadata store.
func (m *Manager) Get(ctx context.Context, id string) (*v1.Fragment, error) {
	scope, err := vectorstore.ScopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	f, err := m.getOnce(ctx, *scope, id)
	if retryableTimeout(ctx, err) {
		time.Sleep(readRetryBackoff)
		f, err = m.getOnce(ctx, *scope, id)
	}
	return f, err
}

func (m *Manager) getOnce(ctx context.Context, scope vectorstore.Scope, id string) (*v1.Fragment, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	f, err := m.meta.GetFragment(ctx, scope, id)
	if err != nil {
		return nil, mapTimeout(err)
	}
	return f, nil
}

// UpdateRequest carries partial fragment changes. Nil fields are left
// untouched.
type UpdateRequest struct {
	ID         string
	Content    *string
	MemoryType *v1.MemoryType
	Role       *v1.Role
	SessionID  *string
	Tags       *[]string
	Importance *float64
	Metadata   map[string]interface{}
}

// Update applies a partial update to both stores. A content change
// forces re-embedding; otherwise only the vector payload is rewritten.
// On a vector failure the metadata row is restored to its prior state.
func (m *Manager) Update(ctx context.Context, req UpdateRequest) (*v1.Fragment, error) {
	ctx, span := tracer.Start(ctx, "Manager.Update")
	defer span.End()
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	scope, err := vectorstore.ScopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	prev, err := m.meta.GetFragment(ctx, *scope, req.ID)
	if err != nil {
		return nil, mapTimeout(err)
	}

	next := *prev
	contentChanged := false
	if req.Content != nil && *req.Content != prev.Content {
		next.Content = *req.Content
		contentChanged = true
	}
	if req.MemoryType != nil {
		next.MemoryType = *req.MemoryType
	}
	if req.Role != nil {
		next.Role = *req.Role
	}
	if req.SessionID != nil {
		next.SessionID = *req.SessionID
	}
	if req.Tags != nil {
		next.Tags = *req.Tags
	}
	if req.Importance != nil {
		next.Importance = *req.Importance
	}
	if req.Metadata != nil {
		next.Metadata = req.Metadata
	}
	if err := v1.ValidateFragment(&next); err != nil {
		return nil, err
	}

	collection, err := m.resolver.Resolve(scope.TenantID, scope.ProjectID)
	if err != nil {
		return nil, err
	}

	if err := m.meta.UpdateFragment(ctx, *scope, &next); err != nil {
		return nil, mapTimeout(err)
	}

	vectorWrite := func() error {
		if contentChanged {
			// AddDocuments with the same ID replaces the old vector entry.
			_, werr := m.vectors.AddDocuments(ctx, []vectorstore.Document{m.vectorDoc(&next, collection)})
			return werr
		}
		return m.vectors.UpdateMetadata(ctx, collection, next.ID, m.vectorPayload(&next))
	}
	err = vectorWrite()
	if err != nil && ctx.Err() == nil {
		err = vectorWrite()
	}
	if err != nil {
		cctx, ccancel := compensationContext(ctx)
		defer ccancel()
		if restoreErr := m.meta.UpdateFragment(cctx, *scope, prev); restoreErr != nil {
			m.tombstone(cctx, *scope, collection, next.ID, "update restore failed")
			m.logger.Error(cctx, "update left stores inconsistent",
				zap.String("fragment_id", next.ID), zap.Error(restoreErr))
			return nil, fmt.Errorf("%w: vector update failed and restore failed: %v", v1.ErrStoreInconsistency, err)
		}
		return nil, mapTimeout(fmt.Errorf("vector store update: %w", err))
	}
	return &next, nil
}

// Delete removes a fragment. The metadata row goes first; if the
// vector side then fails, the fragment is tombstoned and the delete
// still succeeds, since the record of truth no longer holds it.
func (m *Manager) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Manager.Delete")
	defer span.End()
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	scope, err := vectorstore.ScopeFromContext(ctx)
	if err != nil {
		return err
	}
	collection, err := m.resolver.Resolve(scope.TenantID, scope.ProjectID)
	if err != nil {
		return err
	}

	if err := m.meta.DeleteFragment(ctx, *scope, id); err != nil {
		return mapTimeout(err)
	}
	err = m.vectors.DeleteDocuments(ctx, collection, []string{id})
	if err != nil && ctx.Err() == nil {
		err = m.vectors.DeleteDocuments(ctx, collection, []string{id})
	}
	if err != nil {
		cctx, ccancel := compensationContext(ctx)
		defer ccancel()
		m.tombstone(cctx, *scope, collection, id, "vector delete failed")
		m.logger.Warn(cctx, "vector delete deferred to reconciliation",
			zap.String("fragment_id", id), zap.Error(err))
	}
	return nil
}

// List returns the scope's fragments newest first.
func (m *Manager) List(ctx context.Context, memoryType string, limit, offset int) ([]*v1.Fragment, error) {
	scope, err := vectorstore.ScopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if memoryType != "" && !v1.ValidMemoryType(v1.MemoryType(memoryType)) {
		return nil, v1.NewValidationError("memory_type", "unknown type")
	}
	if limit <= 0 {
		limit = m.opts.SearchLimit
	}
	out, err := m.listOnce(ctx, *scope, memoryType, limit, offset)
	if retryableTimeout(ctx, err) {
		time.Sleep(readRetryBackoff)
		out, err = m.listOnce(ctx, *scope, memoryType, limit, offset)
	}
	return out, err
}

func (m *Manager) listOnce(ctx context.Context, scope vectorstore.Scope, memoryType string, limit, offset int) ([]*v1.Fragment, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	out, err := m.meta.ListFragments(ctx, scope, memoryType, limit, offset)
	if err != nil {
		return nil, mapTimeout(err)
	}
	return out, nil
}

// Stats summarizes the scope's stored data.
func (m *Manager) Stats(ctx context.Context) (*v1.Stats, error) {
	scope, err := vectorstore.ScopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := m.statsOnce(ctx, *scope)
	if retryableTimeout(ctx, err) {
		time.Sleep(readRetryBackoff)
		stats, err = m.statsOnce(ctx, *scope)
	}
	return stats, err
}

func (m *Manager) statsOnce(ctx context.Context, scope vectorstore.Scope) (*v1.Stats, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	stats, err := m.meta.Stats(ctx, scope)
	if err != nil {
		return nil, mapTimeout(err)
	}
	return stats, nil
}

// Reconcile replays tombstones: every tombstoned fragment is purged
// from both stores, then the tombstone is cleared. After a clean pass
// neither store holds data the other disowns.
func (m *Manager) Reconcile(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "Manager.Reconcile")
	defer span.End()

	tombstones, err := m.meta.ListTombstones(ctx, 500)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, t := range tombstones {
		sc := t.Scope
		tctx := vectorstore.ContextWithScope(ctx, &sc)
		if err := m.vectors.DeleteDocuments(tctx, t.Collection, []string{t.FragmentID}); err != nil {
			if !errors.Is(err, vectorstore.ErrCollectionNotFound) {
				m.logger.Warn(ctx, "reconcile: vector delete still failing",
					zap.String("fragment_id", t.FragmentID), zap.Error(err))
				continue
			}
		}
		if err := m.meta.DeleteFragment(tctx, sc, t.FragmentID); err != nil && !errors.Is(err, v1.ErrNotFound) {
			m.logger.Warn(ctx, "reconcile: metadata delete failed",
				zap.String("fragment_id", t.FragmentID), zap.Error(err))
			continue
		}
		if err := m.meta.RemoveTombstone(ctx, t.FragmentID, t.Collection); err != nil {
			m.logger.Warn(ctx, "reconcile: tombstone removal failed",
				zap.String("fragment_id", t.FragmentID), zap.Error(err))
			continue
		}
		resolved++
	}
	return resolved, nil
}

// tombstone records a fragment for later purge. Best effort: a failure
// here is logged, not returned, because the caller is already on an
// error path.
func (m *Manager) tombstone(ctx context.Context, scope vectorstore.Scope, collection, id, reason string) {
	err := m.meta.AddTombstone(ctx, metastore.Tombstone{
		FragmentID: id,
		Collection: collection,
		Scope:      scope,
		Reason:     reason,
	})
	if err != nil {
		m.logger.Error(ctx, "failed to record tombstone",
			zap.String("fragment_id", id), zap.Error(err))
	}
}

func (m *Manager) vectorDoc(f *v1.Fragment, collection string) vectorstore.Document {
	return vectorstore.Document{
		ID:         f.ID,
		Content:    f.Content,
		Metadata:   m.vectorPayload(f),
		Collection: collection,
	}
}

// vectorPayload is the filterable subset of a fragment carried in the
// vector store. Ownership keys are injected by the isolation layer.
func (m *Manager) vectorPayload(f *v1.Fragment) map[string]interface{} {
	payload := map[string]interface{}{
		"memory_type": string(f.MemoryType),
	}
	if f.Role != "" {
		payload["role"] = string(f.Role)
	}
	if f.SessionID != "" {
		payload["session_id"] = f.SessionID
	}
	return payload
}
