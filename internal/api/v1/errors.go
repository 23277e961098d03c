package v1

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/pulse/internal/domain"
)

// apiError maps service errors onto problem responses. msg describes the
// failed operation for the 5xx cases.
func apiError(err error, msg string) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return huma.Error404NotFound("not found")
	case errors.Is(err, domain.ErrInvalidRoles):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, domain.ErrConflict):
		return huma.Error409Conflict("column roles changed concurrently")
	case errors.Is(err, domain.ErrUnauthorized):
		return huma.Error502BadGateway("task backend rejected the configured credentials")
	default:
		return huma.Error500InternalServerError(msg, err)
	}
}
