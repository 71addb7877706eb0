package services

import (
	"github.com/engramlabs/engramd/internal/admin"
	"github.com/engramlabs/engramd/internal/channel"
	"github.com/engramlabs/engramd/internal/memory"
	"github.com/engramlabs/engramd/internal/metastore"
	"github.com/engramlabs/engramd/internal/ratelimit"
	"github.com/engramlabs/engramd/internal/vectorstore"
)

// Registry provides access to all engramd services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	Memory() *memory.Manager
	Channel() *channel.Manager
	Admin() *admin.Service
	Limiter() *ratelimit.Limiter
	MetaStore() *metastore.Store
	VectorStore() vectorstore.Store
}

// Options configures the registry with service instances.
type Options struct {
	Memory      *memory.Manager
	Channel     *channel.Manager
	Admin       *admin.Service
	Limiter     *ratelimit.Limiter
	MetaStore   *metastore.Store
	VectorStore vectorstore.Store
}

// registry is the concrete implementation of Registry.
type registry struct {
	memory      *memory.Manager
	channel     *channel.Manager
	admin       *admin.Service
	limiter     *ratelimit.Limiter
	metaStore   *metastore.Store
	vectorStore vectorstore.Store
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		memory:      opts.Memory,
		channel:     opts.Channel,
		admin:       opts.Admin,
		limiter:     opts.Limiter,
		metaStore:   opts.MetaStore,
		vectorStore: opts.VectorStore,
	}
}

func (r *registry) Memory() *memory.Manager       { return r.memory }
func (r *registry) Channel() *channel.Manager     { return r.channel }
func (r *registry) Admin() *admin.Service         { return r.admin }
func (r *registry) Limiter() *ratelimit.Limiter   { return r.limiter }
func (r *registry) MetaStore() *metastore.Store   { return r.metaStore }
func (r *registry) VectorStore() vectorstore.Store { return r.vectorStore }
