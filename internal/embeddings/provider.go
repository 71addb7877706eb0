// Package embeddings provides embedding generation for memory content.
package embeddings

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/engramlabs/engramd/internal/vectorstore"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider is the interface for embedding providers.
type Provider interface {
	vectorstore.Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is the provider type: "tei" or "hash".
	Provider string
	// Model is the embedding model name.
	Model string
	// BaseURL is the TEI URL (tei only).
	BaseURL string
	// APIKey authenticates against a secured TEI deployment (tei only).
	APIKey string
	// RequestsPerSecond throttles outbound calls. 0 disables (tei only).
	RequestsPerSecond float64
	// Burst is the throttle burst size (tei only).
	Burst int
	// Timeout bounds each outbound HTTP request (tei only).
	Timeout time.Duration
}

// NewProvider creates an embedding provider from config.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "tei", "":
		return NewTEIProvider(TEIConfig{
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			APIKey:            cfg.APIKey,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Burst:             cfg.Burst,
			Timeout:           cfg.Timeout,
		})
	case "hash":
		return NewHashProvider(detectDimensionFromModel(cfg.Model)), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// detectDimensionFromModel returns the embedding dimension for a model name.
// Falls back to 384 (bge-small) if the model is unknown.
func detectDimensionFromModel(model string) int {
	switch {
	case strings.Contains(model, "large"):
		return 1024
	case strings.Contains(model, "base"):
		return 768
	case strings.Contains(model, "small"), strings.Contains(model, "mini"):
		return 384
	default:
		return 384
	}
}
