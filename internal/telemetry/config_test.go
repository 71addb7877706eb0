package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.False(t, cfg.Enabled) // off until a collector exists
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, "engramd", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.Sampling.Rate)
	assert.True(t, cfg.Shutdown.Timeout.Duration() > 0)
}

func TestConfigValidate(t *testing.T) {
	t.Run("disabled skips validation", func(t *testing.T) {
		cfg := &Config{Enabled: false}
		require.NoError(t, cfg.Validate())
	})

	t.Run("defaults enabled are valid", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Enabled = true
		require.NoError(t, cfg.Validate())
	})

	t.Run("missing endpoint", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Enabled = true
		cfg.Endpoint = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad protocol", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Enabled = true
		cfg.Protocol = "thrift"
		assert.Error(t, cfg.Validate())
	})

	t.Run("insecure remote endpoint rejected", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Enabled = true
		cfg.Endpoint = "collector.example.com:4317"
		cfg.Insecure = true
		assert.Error(t, cfg.Validate())
	})

	t.Run("secure remote endpoint allowed", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Enabled = true
		cfg.Endpoint = "collector.example.com:4317"
		cfg.Insecure = false
		require.NoError(t, cfg.Validate())
	})

	t.Run("sampling rate bounds", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Enabled = true
		cfg.Sampling.Rate = 1.5
		assert.Error(t, cfg.Validate())
	})
}

func TestIsLocalEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		local    bool
	}{
		{"localhost:4317", true},
		{"127.0.0.1:4317", true},
		{"127.0.0.53:4317", true},
		{"[::1]:4317", true},
		{"::1", true},
		{"collector.example.com:4317", false},
		{"10.0.0.5:4317", false},
	}
	for _, tt := range tests {
		cfg := &Config{Endpoint: tt.endpoint}
		assert.Equal(t, tt.local, cfg.isLocalEndpoint(), "endpoint %s", tt.endpoint)
	}
}
