package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/plansync-backend/internal/platform/apierr"
	"github.com/yungbote/plansync-backend/internal/services"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	respond(c, apierr.New(status, code, err))
}

// RespondServiceError maps a service failure onto the status and code the
// API documents for it.
func RespondServiceError(c *gin.Context, err error) {
	respond(c, FromError(err))
}

func respond(c *gin.Context, e *apierr.Error) {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	_ = c.Error(e)
	c.AbortWithStatusJSON(e.Status, ErrorEnvelope{
		Error: APIError{Message: msg, Code: e.Code, Details: e.Details},
	})
}

func FromError(err error) *apierr.Error {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae
	}
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		return apierr.New(http.StatusBadRequest, "invalid_shape", err).WithDetails(ve.Fields)
	case errors.Is(err, services.ErrInvalidShape):
		return apierr.New(http.StatusBadRequest, "invalid_shape", err)
	case errors.Is(err, services.ErrPreconditionMissing):
		return apierr.New(http.StatusBadRequest, "precondition_missing", err)
	case errors.Is(err, services.ErrNotFound):
		return apierr.New(http.StatusNotFound, "not_found", err)
	case errors.Is(err, services.ErrDuplicateContent):
		return apierr.New(http.StatusConflict, "duplicate_content", err)
	case errors.Is(err, services.ErrPreconditionFailed):
		return apierr.New(http.StatusPreconditionFailed, "precondition_failed", err)
	case errors.Is(err, services.ErrStoreUnavailable):
		return apierr.Opaque(http.StatusServiceUnavailable, "store_unavailable", services.ErrStoreUnavailable.Error(), err)
	case errors.Is(err, services.ErrQueueUnavailable):
		return apierr.Opaque(http.StatusServiceUnavailable, "queue_unavailable", services.ErrQueueUnavailable.Error(), err)
	case errors.Is(err, services.ErrIndexUnavailable):
		return apierr.Opaque(http.StatusServiceUnavailable, "index_unavailable", services.ErrIndexUnavailable.Error(), err)
	case errors.Is(err, services.ErrTokenMissing):
		return apierr.New(http.StatusUnauthorized, "unauthorized", err)
	case errors.Is(err, services.ErrTokenFormat):
		return apierr.New(http.StatusBadRequest, "invalid_token_format", err)
	case errors.Is(err, services.ErrTokenInvalid):
		return apierr.Opaque(http.StatusForbidden, "invalid_token", services.ErrTokenInvalid.Error(), err)
	default:
		return apierr.Opaque(http.StatusInternalServerError, "internal", "internal error", err)
	}
}
