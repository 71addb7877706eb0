package services

import (
	"testing"

	"github.com/engramlabs/engramd/internal/admin"
	"github.com/engramlabs/engramd/internal/channel"
	"github.com/engramlabs/engramd/internal/memory"
	"github.com/engramlabs/engramd/internal/ratelimit"
)

func TestNewRegistry(t *testing.T) {
	var _ Registry = (*registry)(nil)
}

func TestRegistryAccessors(t *testing.T) {
	reg := NewRegistry(Options{})

	if reg.Memory() != nil {
		t.Error("expected nil memory manager")
	}
	if reg.Channel() != nil {
		t.Error("expected nil channel manager")
	}
	if reg.Admin() != nil {
		t.Error("expected nil admin service")
	}
	if reg.Limiter() != nil {
		t.Error("expected nil limiter")
	}
	if reg.MetaStore() != nil {
		t.Error("expected nil metadata store")
	}
	if reg.VectorStore() != nil {
		t.Error("expected nil vector store")
	}
}

func TestRegistryWithServices(t *testing.T) {
	mockMemory := &memory.Manager{}
	mockChannel := &channel.Manager{}
	mockAdmin := &admin.Service{}
	mockLimiter := ratelimit.New(10, 0)

	reg := NewRegistry(Options{
		Memory:  mockMemory,
		Channel: mockChannel,
		Admin:   mockAdmin,
		Limiter: mockLimiter,
	})

	if reg.Memory() != mockMemory {
		t.Error("memory manager mismatch")
	}
	if reg.Channel() != mockChannel {
		t.Error("channel manager mismatch")
	}
	if reg.Admin() != mockAdmin {
		t.Error("admin service mismatch")
	}
	if reg.Limiter() != mockLimiter {
		t.Error("limiter mismatch")
	}
}
