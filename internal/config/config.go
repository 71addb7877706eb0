package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for engramd.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	MetaStore   MetaStoreConfig   `koanf:"metastore"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Qdrant      QdrantConfig      `koanf:"qdrant"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	RateLimit   RateLimitConfig   `koanf:"ratelimit"`
	Memory      MemoryConfig      `koanf:"memory"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// TelemetryConfig controls OTLP trace export. The telemetry package
// holds the full config; this mirrors the user-facing knobs.
type TelemetryConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`
	// Protocol is the OTLP transport: "grpc" or "http/protobuf".
	Protocol string  `koanf:"protocol"`
	Insecure bool    `koanf:"insecure"`
	Sampling float64 `koanf:"sampling"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// AdminToken guards the /admin/v1 routes. Empty disables them;
	// admin operations remain available through the CLI.
	AdminToken Secret `koanf:"admin_token"`
	// CORSOrigins enables CORS for the listed origins. Empty leaves
	// cross-origin requests blocked.
	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetaStoreConfig controls the SQLite metadata store.
type MetaStoreConfig struct {
	// Path is the database file. ":memory:" opens an in-process database.
	Path string `koanf:"path"`
	// BusyTimeout bounds how long a writer waits on a locked database.
	BusyTimeout Duration `koanf:"busy_timeout"`
	// MaxOpenConns caps the connection pool shared by workers.
	MaxOpenConns int `koanf:"max_open_conns"`
}

// VectorStoreConfig selects and configures the vector index backend.
type VectorStoreConfig struct {
	// Provider selects the backend: "chromem" (embedded, default) or "qdrant".
	Provider string        `koanf:"provider"`
	Chromem  ChromemConfig `koanf:"chromem"`
}

// ChromemConfig configures the embedded chromem backend.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig configures the qdrant gRPC backend.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	APIKey     Secret `koanf:"api_key"`
	UseTLS     bool   `koanf:"use_tls"`
	VectorSize int    `koanf:"vector_size"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the backend: "tei" (default) or "hash" (local, no model).
	Provider string   `koanf:"provider"`
	BaseURL  string   `koanf:"base_url"`
	Model    string   `koanf:"model"`
	APIKey   Secret   `koanf:"api_key"`
	Timeout  Duration `koanf:"timeout"`
	// RequestsPerSecond throttles outbound embedding calls. 0 disables.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// RateLimitConfig controls the per-caller admission window.
type RateLimitConfig struct {
	Enabled bool `koanf:"enabled"`
	// Requests allowed per window per caller key.
	Requests int      `koanf:"requests"`
	Window   Duration `koanf:"window"`
}

// MemoryConfig bounds memory operations.
type MemoryConfig struct {
	// OperationTimeout bounds embedding plus vector calls per operation.
	OperationTimeout Duration `koanf:"operation_timeout"`
	// SearchLimit is the default result count for semantic search.
	SearchLimit int `koanf:"search_limit"`
	// MinScore drops search results below this similarity. 0 keeps all.
	MinScore float64 `koanf:"min_score"`
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("vectorstore.provider must be chromem or qdrant, got %q", c.VectorStore.Provider)
	}
	if c.VectorStore.Provider == "qdrant" {
		if c.Qdrant.Host == "" {
			return fmt.Errorf("qdrant.host required when provider is qdrant")
		}
		if c.Qdrant.VectorSize <= 0 {
			return fmt.Errorf("qdrant.vector_size must be positive")
		}
	}
	if c.MetaStore.Path == "" {
		return fmt.Errorf("metastore.path required")
	}
	switch c.Embeddings.Provider {
	case "tei", "hash":
	default:
		return fmt.Errorf("embeddings.provider must be tei or hash, got %q", c.Embeddings.Provider)
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Requests <= 0 {
			return fmt.Errorf("ratelimit.requests must be positive")
		}
		if c.RateLimit.Window.Duration() <= 0 {
			return fmt.Errorf("ratelimit.window must be positive")
		}
	}
	if c.Memory.SearchLimit <= 0 {
		return fmt.Errorf("memory.search_limit must be positive")
	}
	if c.Memory.MinScore < 0 || c.Memory.MinScore > 1 {
		return fmt.Errorf("memory.min_score must be in [0,1]")
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8765
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.MetaStore.Path == "" {
		cfg.MetaStore.Path = "~/.local/share/engramd/meta.db"
	}
	if cfg.MetaStore.BusyTimeout == 0 {
		cfg.MetaStore.BusyTimeout = Duration(5 * time.Second)
	}
	if cfg.MetaStore.MaxOpenConns == 0 {
		cfg.MetaStore.MaxOpenConns = 8
	}

	// chromem is the default backend (embedded, no external deps)
	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = "~/.local/share/engramd/vectors"
	}

	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.VectorSize == 0 {
		cfg.Qdrant.VectorSize = 384 // bge-small-en-v1.5 dimensions
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "tei"
	}
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = Duration(30 * time.Second)
	}
	if cfg.Embeddings.Burst == 0 {
		cfg.Embeddings.Burst = 4
	}

	if cfg.RateLimit.Requests == 0 {
		cfg.RateLimit.Requests = 120
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = Duration(time.Minute)
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.Sampling == 0 {
		cfg.Telemetry.Sampling = 1.0
	}

	if cfg.Memory.OperationTimeout == 0 {
		cfg.Memory.OperationTimeout = Duration(30 * time.Second)
	}
	if cfg.Memory.SearchLimit == 0 {
		cfg.Memory.SearchLimit = 10
	}
}
