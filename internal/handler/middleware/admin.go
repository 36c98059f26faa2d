package middleware

import (
	"github.com/gin-gonic/gin"

	"rallyup/activityhub/internal/model"
	"rallyup/activityhub/pkg/response"
)

// RequireRole admits callers whose role is one of roles.
// Must be used after JWTAuth middleware.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	allowed := make(map[model.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			response.Unauthorized(c, "missing authentication")
			c.Abort()
			return
		}

		if _, permitted := allowed[model.Role(claims.Role)]; !permitted {
			response.Forbidden(c, "insufficient role")
			c.Abort()
			return
		}

		c.Next()
	}
}
