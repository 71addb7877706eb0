package httpapi

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/engramlabs/engramd/internal/logging"
	"github.com/engramlabs/engramd/internal/metastore"
	"github.com/engramlabs/engramd/internal/vectorstore"
	v1 "github.com/engramlabs/engramd/pkg/api/v1"
)

const apiKeyHeader = "X-API-Key"

// contextKey under which the verified key hash is stored for the rate
// limiter.
type keyHashContextKey struct{}

// apiKeyAuth verifies the X-API-Key header and injects the resolved
// ownership scope into the request context. Requests without a valid
// key never reach a handler.
func (s *Server) apiKeyAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(apiKeyHeader)
			if key == "" {
				return errorResponse(c, v1.ErrUnauthorized)
			}

			ctx := c.Request().Context()
			scope, err := s.registry.MetaStore().VerifyAPIKey(ctx, key)
			if err != nil {
				return errorResponse(c, err)
			}

			ctx = vectorstore.ContextWithScope(ctx, &scope)
			ctx = logging.WithScope(ctx, &logging.Scope{
				TenantID:  scope.TenantID,
				ProjectID: scope.ProjectID,
				UserID:    scope.UserID,
			})
			// Rate limiting keys off the hash so the plaintext never
			// leaves this middleware.
			ctx = contextWithKeyHash(ctx, metastore.HashAPIKey(key))
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// rateLimit enforces the per-key fixed-window budget. Rejections get a
// Retry-After header in whole seconds, rounded up.
func (s *Server) rateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			limiter := s.registry.Limiter()
			if limiter == nil {
				return next(c)
			}
			hash, ok := keyHashFromContext(c.Request().Context())
			if !ok {
				return errorResponse(c, v1.ErrUnauthorized)
			}
			allowed, retryAfter := limiter.Allow(hash)
			if !allowed {
				seconds := int64(retryAfter.Seconds())
				if retryAfter.Truncate(time.Second) != retryAfter {
					seconds++
				}
				c.Response().Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
				return errorResponse(c, v1.ErrRateLimited)
			}
			return next(c)
		}
	}
}

func contextWithKeyHash(ctx context.Context, hash string) context.Context {
	return context.WithValue(ctx, keyHashContextKey{}, hash)
}

func keyHashFromContext(ctx context.Context) (string, bool) {
	hash, ok := ctx.Value(keyHashContextKey{}).(string)
	return hash, ok
}
