package httpapi

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"

	v1 "github.com/engramlabs/engramd/pkg/api/v1"
)

const adminTokenHeader = "X-Admin-Token"

// adminAuth guards the admin group with a constant-time token check.
// Admin requests never carry a tenant scope; handlers act across
// tenants by name.
func (s *Server) adminAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := c.Request().Header.Get(adminTokenHeader)
			if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.config.AdminToken)) != 1 {
				return errorResponse(c, v1.ErrUnauthorized)
			}
			return next(c)
		}
	}
}

// CreateTenantRequest is the request body for POST /admin/v1/tenants.
type CreateTenantRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateTenant(c echo.Context) error {
	var req CreateTenantRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, v1.NewValidationError("body", "malformed JSON"))
	}
	tenant, err := s.registry.Admin().CreateTenant(c.Request().Context(), req.Name)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, tenant)
}

// ListTenantsResponse is the response body for GET /admin/v1/tenants.
type ListTenantsResponse struct {
	Tenants []*v1.Tenant `json:"tenants"`
}

func (s *Server) handleListTenants(c echo.Context) error {
	tenants, err := s.registry.Admin().ListTenants(c.Request().Context())
	if err != nil {
		return errorResponse(c, err)
	}
	if tenants == nil {
		tenants = []*v1.Tenant{}
	}
	return c.JSON(http.StatusOK, ListTenantsResponse{Tenants: tenants})
}

func (s *Server) handleDeleteTenant(c echo.Context) error {
	if err := s.registry.Admin().DeleteTenant(c.Request().Context(), c.Param("tenant")); err != nil {
		return errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// CreateProjectRequest is the request body for
// POST /admin/v1/tenants/:tenant/projects.
type CreateProjectRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateProject(c echo.Context) error {
	var req CreateProjectRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, v1.NewValidationError("body", "malformed JSON"))
	}
	project, err := s.registry.Admin().CreateProject(c.Request().Context(), c.Param("tenant"), req.Name)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, project)
}

// ListProjectsResponse is the response body for
// GET /admin/v1/tenants/:tenant/projects.
type ListProjectsResponse struct {
	Projects []*v1.Project `json:"projects"`
}

func (s *Server) handleListProjects(c echo.Context) error {
	projects, err := s.registry.Admin().ListProjects(c.Request().Context(), c.Param("tenant"))
	if err != nil {
		return errorResponse(c, err)
	}
	if projects == nil {
		projects = []*v1.Project{}
	}
	return c.JSON(http.StatusOK, ListProjectsResponse{Projects: projects})
}

func (s *Server) handleDeleteProject(c echo.Context) error {
	err := s.registry.Admin().DeleteProject(c.Request().Context(), c.Param("tenant"), c.Param("project"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// CreateAPIKeyRequest is the request body for
// POST /admin/v1/tenants/:tenant/apikeys.
type CreateAPIKeyRequest struct {
	Project string `json:"project"`
	UserID  string `json:"user_id"`
	Name    string `json:"name,omitempty"`
}

// CreateAPIKeyResponse carries the plaintext key. It is returned
// exactly once; only the hash is stored.
type CreateAPIKeyResponse struct {
	Key    string     `json:"key"`
	APIKey *v1.APIKey `json:"api_key"`
}

func (s *Server) handleCreateAPIKey(c echo.Context) error {
	var req CreateAPIKeyRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, v1.NewValidationError("body", "malformed JSON"))
	}
	plaintext, key, err := s.registry.Admin().CreateAPIKey(
		c.Request().Context(), c.Param("tenant"), req.Project, req.UserID, req.Name)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, CreateAPIKeyResponse{Key: plaintext, APIKey: key})
}

// ListAPIKeysResponse is the response body for
// GET /admin/v1/tenants/:tenant/apikeys.
type ListAPIKeysResponse struct {
	Keys []*v1.APIKey `json:"keys"`
}

func (s *Server) handleListAPIKeys(c echo.Context) error {
	keys, err := s.registry.Admin().ListAPIKeys(c.Request().Context(), c.Param("tenant"))
	if err != nil {
		return errorResponse(c, err)
	}
	if keys == nil {
		keys = []*v1.APIKey{}
	}
	return c.JSON(http.StatusOK, ListAPIKeysResponse{Keys: keys})
}

func (s *Server) handleRevokeAPIKey(c echo.Context) error {
	if err := s.registry.Admin().RevokeAPIKey(c.Request().Context(), c.Param("id")); err != nil {
		return errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
