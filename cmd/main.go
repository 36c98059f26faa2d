package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"rallyup/activityhub/internal/assets"
	"rallyup/activityhub/internal/config"
	"rallyup/activityhub/internal/handler"
	"rallyup/activityhub/internal/model"
	"rallyup/activityhub/internal/repository"
	"rallyup/activityhub/internal/service"
	jwtpkg "rallyup/activityhub/pkg/jwt"
)

func main() {
	configPath := "config.yaml"
	if p := os.Getenv("ACTIVITYHUB_CONFIG"); p != "" {
		configPath = p
	}

	// 1. Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Initialize logger
	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// 3. Connect to PostgreSQL
	db, err := config.NewPostgresDB(cfg.Database.Postgres)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}

	// 4. Auto-migrate if enabled
	if cfg.Database.Postgres.AutoMigrate {
		if err := model.AutoMigrate(db); err != nil {
			logger.Fatal("failed to auto-migrate", zap.Error(err))
		}
		logger.Info("database migration completed")
	}

	// 5. Initialize session store (Redis or in-memory)
	var sessionStore repository.SessionStore
	switch cfg.State.Backend {
	case "redis":
		redisClient, err := config.NewRedisClient(cfg.Database.Redis)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
		sessionStore = repository.NewRedisSessionStore(redisClient)
		logger.Info("using Redis session store")
	case "memory":
		sessionStore = repository.NewMemorySessionStore()
		logger.Info("using in-memory session store")
	default:
		logger.Fatal("unknown state backend", zap.String("backend", cfg.State.Backend))
	}

	// 6. Initialize repositories
	userRepo := repository.NewPGUserRepository(db)
	activityRepo := repository.NewPGActivityRepository(db)

	// 7. Initialize JWT manager
	jwtManager := jwtpkg.NewManager(
		cfg.JWT.SigningKey,
		cfg.JWT.Issuer,
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
	)

	// 8. Initialize asset store (S3 or local filesystem)
	var (
		assetStore assets.Store
		assetFS    afero.Fs
	)
	switch cfg.Assets.Backend {
	case "s3":
		s3Store, err := assets.NewS3Store(context.Background(), cfg.Assets.S3)
		if err != nil {
			logger.Fatal("failed to init s3 asset store", zap.Error(err))
		}
		assetStore = s3Store
		logger.Info("using S3 asset store", zap.String("bucket", cfg.Assets.S3.Bucket))
	case "local":
		local := assets.NewLocalStore(afero.NewOsFs(), cfg.Assets.Local.Dir, cfg.Assets.Local.PublicBaseURL)
		assetStore = local
		assetFS = local.FS()
		logger.Info("using local asset store", zap.String("dir", cfg.Assets.Local.Dir))
	default:
		logger.Fatal("unknown assets backend", zap.String("backend", cfg.Assets.Backend))
	}

	// 9. Initialize services
	authService := service.NewAuthService(userRepo, sessionStore, jwtManager, logger)
	userService := service.NewUserService(userRepo, logger)
	activityService := service.NewActivityService(activityRepo, assetStore, service.ActivityServiceConfig{
		ReferralAttempts: cfg.Activity.ReferralAttempts,
		BannerMaxWidth:   cfg.Assets.MaxWidth,
		AllowOwnerJoin:   cfg.Activity.AllowOwnerJoin,
	}, logger)

	// 10. Bootstrap admin account
	if cfg.Admin.Email != "" {
		if err := authService.EnsureAdmin(context.Background(), service.RegisterInput{
			Username: cfg.Admin.Username,
			Email:    cfg.Admin.Email,
			Password: cfg.Admin.Password,
		}); err != nil {
			logger.Fatal("failed to bootstrap admin", zap.Error(err))
		}
	}

	// 11. Initialize handlers
	authHandler := handler.NewAuthHandler(authService)
	activityHandler := handler.NewActivityHandler(activityService, cfg.Assets.MaxUploadBytes)
	userHandler := handler.NewUserHandler(userService)
	adminHandler := handler.NewAdminHandler(userService)

	// 12. Setup router
	router := handler.SetupRouter(cfg, logger, jwtManager, userRepo,
		authHandler, activityHandler, userHandler, adminHandler, assetFS)

	// 13. Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 14. Start server with graceful shutdown
	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exited gracefully")
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewDevelopmentConfig()
	if cfg.Format == "json" {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = level
	return zcfg.Build()
}
