// Package vectorstore defines the interface for vector index operations.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrDocumentNotFound is returned when a document does not exist.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// CollectionInfo contains metadata about a vector collection.
type CollectionInfo struct {
	// Name is the collection name.
	Name string `json:"name"`

	// PointCount is the number of vectors in the collection.
	PointCount int `json:"point_count"`

	// VectorSize is the dimensionality of vectors in this collection.
	VectorSize int `json:"vector_size"`
}

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	// Returns a slice of embeddings (one per input text) or an error.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	// Some models optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the interface for vector index operations.
//
// Each (tenant, project) pair maps to one collection; the collection name is
// produced by the collections package. User-level isolation happens inside
// the collection via metadata filtering.
//
// Ownership Isolation:
//
// Stores enforce fail-closed scope isolation. Callers MUST provide scope
// context before any read or write:
//
//	ctx = vectorstore.ContextWithScope(ctx, &vectorstore.Scope{
//	    TenantID:  "acme",
//	    ProjectID: "support",
//	    UserID:    "user-1",
//	})
//	results, err := store.Search(ctx, coll, query, k, nil)
//
// Missing scope returns ErrMissingScope; there is no public path that reads
// or writes a collection without scope filters applied.
//
// Implementations:
//   - ChromemStore: embedded chromem-go (default)
//   - QdrantStore: external Qdrant gRPC client
type Store interface {
	// AddDocuments upserts documents into their target collections.
	//
	// Ownership metadata from the scope in ctx is injected into every
	// document. Documents carrying a precomputed Embedding are stored as-is;
	// others are embedded from Content.
	//
	// Returns the IDs of added documents.
	AddDocuments(ctx context.Context, docs []Document) ([]string, error)

	// Search performs similarity search in a collection.
	//
	// Scope filters from ctx are always injected; the optional filters
	// argument narrows results further and must not contain ownership keys.
	// A missing collection yields ErrCollectionNotFound.
	//
	// Results are ordered by similarity score, highest first.
	Search(ctx context.Context, collection string, query string, k int, filters map[string]interface{}) ([]SearchResult, error)

	// GetDocument fetches a single document by ID.
	//
	// Returns ErrDocumentNotFound if absent or owned by a different scope.
	GetDocument(ctx context.Context, collection string, id string) (*Document, error)

	// UpdateMetadata replaces mutable metadata on a stored document without
	// re-embedding. Ownership keys are re-injected from ctx and cannot be
	// overridden by the caller.
	UpdateMetadata(ctx context.Context, collection string, id string, metadata map[string]interface{}) error

	// DeleteDocuments deletes documents by ID from a collection.
	DeleteDocuments(ctx context.Context, collection string, ids []string) error

	// DeleteByFilter deletes all documents matching the filters plus the
	// scope filters from ctx. Used by cascade deletes and reconciliation.
	DeleteByFilter(ctx context.Context, collection string, filters map[string]interface{}) error

	// DeleteCollection deletes a collection and all its documents.
	// Unlike document operations this does not require scope in ctx; the
	// caller (admin path) is responsible for resolving the right name.
	DeleteCollection(ctx context.Context, collection string) error

	// CollectionExists checks if a collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// ListCollections returns all collection names.
	ListCollections(ctx context.Context) ([]string, error)

	// GetCollectionInfo returns metadata about a collection.
	// Returns ErrCollectionNotFound if the collection doesn't exist.
	GetCollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error)

	// IsolationMode returns the active isolation mode.
	IsolationMode() IsolationMode

	// Close releases resources held by the store.
	Close() error
}
