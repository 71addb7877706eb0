package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/engramlabs/engramd/internal/admin"
	"github.com/engramlabs/engramd/internal/channel"
	"github.com/engramlabs/engramd/internal/config"
	"github.com/engramlabs/engramd/internal/embeddings"
	"github.com/engramlabs/engramd/internal/logging"
	"github.com/engramlabs/engramd/internal/memory"
	"github.com/engramlabs/engramd/internal/metastore"
	"github.com/engramlabs/engramd/internal/ratelimit"
	"github.com/engramlabs/engramd/internal/services"
	"github.com/engramlabs/engramd/internal/vectorstore"
)

// app holds everything a subcommand needs: configuration, the two
// stores, and the service registry wired on top of them.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	meta     *metastore.Store
	vectors  vectorstore.Store
	embedder embeddings.Provider
	registry services.Registry
}

// buildApp loads configuration and wires the full service stack.
//
// Initialization order matters: the metadata store opens first because
// it is authoritative, then the embedder, then the vector store that
// depends on it. Failures unwind whatever was already opened.
func buildApp() (*app, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if cfg.MetaStore.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.MetaStore.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	meta, err := metastore.New(metastore.Config{
		Path:         cfg.MetaStore.Path,
		BusyTimeout:  cfg.MetaStore.BusyTimeout.Duration(),
		MaxOpenConns: cfg.MetaStore.MaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}

	embedder, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:          cfg.Embeddings.Provider,
		Model:             cfg.Embeddings.Model,
		BaseURL:           cfg.Embeddings.BaseURL,
		APIKey:            cfg.Embeddings.APIKey.Value(),
		RequestsPerSecond: cfg.Embeddings.RequestsPerSecond,
		Burst:             cfg.Embeddings.Burst,
		Timeout:           cfg.Embeddings.Timeout.Duration(),
	})
	if err != nil {
		_ = meta.Close()
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}

	vectors, err := vectorstore.NewStore(vectorstore.Config{
		Provider: cfg.VectorStore.Provider,
		Chromem: vectorstore.ChromemConfig{
			Path:     cfg.VectorStore.Chromem.Path,
			Compress: cfg.VectorStore.Chromem.Compress,
		},
		Qdrant: vectorstore.QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey.Value(),
			UseTLS:     cfg.Qdrant.UseTLS,
			VectorSize: uint64(cfg.Qdrant.VectorSize),
		},
	}, embedder, logger.Underlying())
	if err != nil {
		_ = embedder.Close()
		_ = meta.Close()
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}

	memoryMgr := memory.NewManager(meta, vectors, logger, memory.Options{
		SearchLimit:      cfg.Memory.SearchLimit,
		MinScore:         float32(cfg.Memory.MinScore),
		OperationTimeout: cfg.Memory.OperationTimeout.Duration(),
	})
	channelMgr := channel.NewManager(meta, logger)
	adminSvc := admin.NewService(meta, vectors, logger)

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window.Duration())
	}

	registry := services.NewRegistry(services.Options{
		Memory:      memoryMgr,
		Channel:     channelMgr,
		Admin:       adminSvc,
		Limiter:     limiter,
		MetaStore:   meta,
		VectorStore: vectors,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		meta:     meta,
		vectors:  vectors,
		embedder: embedder,
		registry: registry,
	}, nil
}

// Close releases both stores and flushes the logger.
func (a *app) Close() {
	if a.vectors != nil {
		_ = a.vectors.Close()
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.meta != nil {
		_ = a.meta.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
