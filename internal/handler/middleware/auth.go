package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"rallyup/activityhub/internal/model"
	jwtpkg "rallyup/activityhub/pkg/jwt"
	"rallyup/activityhub/pkg/response"
)

const ContextKeyUserClaims = "user_claims"

// UserLookup resolves the account behind a token subject.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// JWTAuth verifies the bearer access token. When users is non-nil the subject
// must still exist, and the role stored on the account replaces the one in the token.
func JWTAuth(jwtManager *jwtpkg.Manager, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization format")
			c.Abort()
			return
		}

		claims, err := jwtManager.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		if claims.TokenType != jwtpkg.TokenTypeAccess {
			response.Unauthorized(c, "invalid token type")
			c.Abort()
			return
		}

		userID, err := claims.UserID()
		if err != nil {
			response.Unauthorized(c, "invalid user id")
			c.Abort()
			return
		}

		if users != nil {
			user, err := users.GetByID(c.Request.Context(), userID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					response.Unauthorized(c, "user no longer exists")
				} else {
					_ = c.Error(err)
					response.InternalError(c, "internal server error")
				}
				c.Abort()
				return
			}
			claims.Role = string(user.Role)
		}

		c.Set(ContextKeyUserClaims, claims)
		c.Next()
	}
}

// ClaimsFrom returns the claims stored by JWTAuth.
func ClaimsFrom(c *gin.Context) (*jwtpkg.Claims, bool) {
	v, exists := c.Get(ContextKeyUserClaims)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*jwtpkg.Claims)
	return claims, ok
}
