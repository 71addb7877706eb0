package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/engramlabs/engramd/internal/vectorstore"
	v1 "github.com/engramlabs/engramd/pkg/api/v1"
)

// ErrorResponse is the uniform error body for every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// errorResponse maps domain errors onto HTTP statuses. Anything
// unmapped is a 500 with no internal detail leaked.
func errorResponse(c echo.Context, err error) error {
	var ve *v1.ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation_failed", Detail: ve.Error()})
	}

	switch {
	case errors.Is(err, vectorstore.ErrScopeFilterInUserFilters):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation_failed", Detail: "filters cannot contain ownership fields"})
	case errors.Is(err, v1.ErrUnauthorized),
		errors.Is(err, vectorstore.ErrMissingScope),
		errors.Is(err, vectorstore.ErrInvalidScope):
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Detail: "invalid or missing API key"})
	case errors.Is(err, v1.ErrNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Detail: "resource not found"})
	case errors.Is(err, v1.ErrDuplicate):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "conflict", Detail: "resource already exists"})
	case errors.Is(err, v1.ErrRateLimited):
		return c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate_limited", Detail: "rate limit exceeded"})
	case errors.Is(err, v1.ErrStoreInconsistency):
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "store_inconsistency", Detail: "stores disagree, retry after reconciliation"})
	case errors.Is(err, v1.ErrTimeout):
		return c.JSON(http.StatusGatewayTimeout, ErrorResponse{Error: "timeout", Detail: "operation timed out"})
	default:
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal", Detail: "internal server error"})
	}
}
