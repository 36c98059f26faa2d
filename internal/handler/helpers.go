package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rallyup/activityhub/internal/handler/middleware"
	"rallyup/activityhub/internal/model"
	"rallyup/activityhub/internal/service"
)

// callerFromContext reads the identity JWTAuth stored on the request.
func callerFromContext(c *gin.Context) (service.Caller, error) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		return service.Caller{}, service.ErrUnauthenticated
	}
	id, err := claims.UserID()
	if err != nil {
		return service.Caller{}, service.ErrUnauthenticated
	}
	return service.Caller{ID: id, Role: model.Role(claims.Role)}, nil
}

// uuidParam parses the named path parameter. An id that cannot exist is
// answered with notFound, the same as a well-formed id with no row.
func uuidParam(c *gin.Context, name string, notFound error) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, notFound)
		return uuid.Nil, false
	}
	return id, true
}
