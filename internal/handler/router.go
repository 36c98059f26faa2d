package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"rallyup/activityhub/internal/config"
	"rallyup/activityhub/internal/handler/middleware"
	"rallyup/activityhub/internal/model"
	jwtpkg "rallyup/activityhub/pkg/jwt"
)

// SetupRouter mounts every route. users re-checks token subjects on each
// request and may be nil; assetFS serves locally stored banners and may be nil.
func SetupRouter(
	cfg *config.Config,
	logger *zap.Logger,
	jwtManager *jwtpkg.Manager,
	users middleware.UserLookup,
	authHandler *AuthHandler,
	activityHandler *ActivityHandler,
	userHandler *UserHandler,
	adminHandler *AdminHandler,
	assetFS afero.Fs,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.CORS))
	if cfg.Metrics.Enabled {
		r.Use(middleware.Metrics())
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	// Health check
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Locally stored banners
	if assetFS != nil {
		r.StaticFS(cfg.Assets.Local.MountPath, afero.NewHttpFs(assetFS))
	}

	// Public auth routes
	auth := r.Group("/api/v1/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	// Protected routes
	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth(jwtManager, users))
	{
		protected.POST("/auth/logout", authHandler.Logout)

		activities := protected.Group("/activities")
		activities.POST("", activityHandler.Create)
		activities.GET("", activityHandler.List)
		activities.POST("/join/:referralCode", activityHandler.Join)
		activities.GET("/:id", activityHandler.Get)
		activities.PUT("/:id", activityHandler.Update)
		activities.DELETE("/:id", activityHandler.Delete)
		activities.PUT("/:id/banner", activityHandler.SetBanner)
		activities.DELETE("/:id/invitees/:userId", activityHandler.RemoveInvitee)

		usersGroup := protected.Group("/users")
		usersGroup.GET("", userHandler.List)
		usersGroup.GET("/username/:username", userHandler.GetByUsername)
		usersGroup.GET("/:id", userHandler.Get)
		usersGroup.PUT("/:id", userHandler.Update)
		usersGroup.DELETE("/:id", middleware.RequireRole(model.RoleAdmin), adminHandler.DeleteUser)
	}

	return r
}
