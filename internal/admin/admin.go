// Package admin manages tenants, projects, and API keys, including the
// vector-store cleanup that goes with removing them.
package admin

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/engramlabs/engramd/internal/collections"
	"github.com/engramlabs/engramd/internal/logging"
	"github.com/engramlabs/engramd/internal/metastore"
	"github.com/engramlabs/engramd/internal/vectorstore"
	v1 "github.com/engramlabs/engramd/pkg/api/v1"
)

const maxNameLength = 64

// Service performs administrative operations. These are trusted: they
// run from the CLI or an operator surface, never behind a tenant key.
type Service struct {
	meta     *metastore.Store
	vectors  vectorstore.Store
	resolver *collections.Resolver
	logger   *logging.Logger
}

// NewService wires the admin surface.
func NewService(meta *metastore.Store, vectors vectorstore.Store, logger *logging.Logger) *Service {
	return &Service{
		meta:     meta,
		vectors:  vectors,
		resolver: collections.NewResolver(),
		logger:   logger.Named("admin"),
	}
}

// CreateTenant registers a tenant name.
func (s *Service) CreateTenant(ctx context.Context, name string) (*v1.Tenant, error) {
	if err := validateName("tenant", name); err != nil {
		return nil, err
	}
	return s.meta.CreateTenant(ctx, name)
}

// ListTenants returns all tenants.
func (s *Service) ListTenants(ctx context.Context) ([]*v1.Tenant, error) {
	return s.meta.ListTenants(ctx)
}

// DeleteTenant removes a tenant, all metadata under it, and every
// vector collection its projects used. Collection drops are best
// effort; a failed drop is logged and the delete still succeeds,
// since the metadata store no longer references the data.
func (s *Service) DeleteTenant(ctx context.Context, name string) error {
	projects, err := s.meta.DeleteTenant(ctx, name)
	if err != nil {
		return err
	}
	for _, project := range projects {
		s.dropCollection(ctx, name, project)
	}
	return nil
}

// CreateProject registers a project under a tenant.
func (s *Service) CreateProject(ctx context.Context, tenant, name string) (*v1.Project, error) {
	if err := validateName("project", name); err != nil {
		return nil, err
	}
	return s.meta.CreateProject(ctx, tenant, name)
}

// ListProjects returns a tenant's projects.
func (s *Service) ListProjects(ctx context.Context, tenant string) ([]*v1.Project, error) {
	return s.meta.ListProjects(ctx, tenant)
}

// DeleteProject removes a project's metadata and its vector
// collection.
func (s *Service) DeleteProject(ctx context.Context, tenant, name string) error {
	if err := s.meta.DeleteProject(ctx, tenant, name); err != nil {
		return err
	}
	s.dropCollection(ctx, tenant, name)
	return nil
}

// CreateAPIKey mints a key scoped to tenant, project, and user. The
// plaintext is returned once and never stored.
func (s *Service) CreateAPIKey(ctx context.Context, tenant, project, userID, keyName string) (string, *v1.APIKey, error) {
	if strings.TrimSpace(userID) == "" {
		return "", nil, v1.NewValidationError("user_id", "must not be empty")
	}
	return s.meta.CreateAPIKey(ctx, tenant, project, userID, keyName)
}

// RevokeAPIKey permanently disables a key.
func (s *Service) RevokeAPIKey(ctx context.Context, id string) error {
	return s.meta.RevokeAPIKey(ctx, id)
}

// ListAPIKeys returns a tenant's keys without hashes.
func (s *Service) ListAPIKeys(ctx context.Context, tenant string) ([]*v1.APIKey, error) {
	return s.meta.ListAPIKeys(ctx, tenant)
}

func (s *Service) dropCollection(ctx context.Context, tenant, project string) {
	name, err := s.resolver.Resolve(tenant, project)
	if err != nil {
		s.logger.Warn(ctx, "cannot resolve collection for drop",
			zap.String("tenant", tenant), zap.String("project", project), zap.Error(err))
		return
	}
	if err := s.vectors.DeleteCollection(ctx, name); err != nil &&
		!errors.Is(err, vectorstore.ErrCollectionNotFound) {
		s.logger.Warn(ctx, "vector collection drop failed",
			zap.String("collection", name), zap.Error(err))
	}
}

func validateName(field, name string) error {
	if strings.TrimSpace(name) == "" {
		return v1.NewValidationError(field, "must not be empty")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return v1.NewValidationError(field, "exceeds maximum length")
	}
	return nil
}
