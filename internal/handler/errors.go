package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rallyup/activityhub/internal/service"
	"rallyup/activityhub/pkg/response"
)

func statusOf(kind service.Kind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindUnauthenticated:
		return http.StatusUnauthorized
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the envelope for a service error. Internal errors are
// attached to the context for the request logger and answered generically.
func respondError(c *gin.Context, err error) {
	kind := service.KindOf(err)
	if kind == service.KindInternal {
		_ = c.Error(err)
		response.InternalError(c, "internal server error")
		return
	}
	response.Fail(c, statusOf(kind), service.CodeOf(err), err.Error())
}
