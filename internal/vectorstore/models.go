package vectorstore

// Document represents a document to be stored in the vector index.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// Content is the text content of the document.
	Content string

	// Metadata contains additional key-value pairs for filtering.
	// Ownership fields (tenant_id, project_id, user_id) are injected by the
	// isolation layer and must not be set by callers.
	Metadata map[string]interface{}

	// Embedding is the precomputed vector. If nil the store embeds Content.
	Embedding []float32

	// Collection is the target collection name for this document.
	Collection string
}

// SearchResult represents a search result from the vector index.
type SearchResult struct {
	// ID is the document identifier.
	ID string

	// Content is the document text content.
	Content string

	// Score is the similarity score (higher = more similar).
	Score float32

	// Metadata contains the document metadata.
	Metadata map[string]interface{}
}
