package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deliverytech-api/internal/config"
	"deliverytech-api/internal/database"
	"deliverytech-api/internal/event"
	"deliverytech-api/internal/handler"
	"deliverytech-api/internal/metrics"
	"deliverytech-api/internal/middleware"
	"deliverytech-api/internal/repository"
	"deliverytech-api/internal/router"
	"deliverytech-api/internal/service"
)

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

func New(cfg *config.Config) (*App, error) {
	app := &App{}
	ctx := context.Background()

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	app.cleanupFuncs = append(app.cleanupFuncs, db.Close)

	if err := db.EnsureSchema(ctx); err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	pool := db.Pool
	userRepo := repository.NewUserRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)

	tokenStore, err := app.refreshTokenStore(ctx, cfg, db)
	if err != nil {
		app.cleanup()
		return nil, err
	}
	slog.Info("database ready", "refresh_store", cfg.RefreshStore)

	m := metrics.New()
	bus := event.NewBus()

	hasher := service.NewBcryptHasher(cfg.BcryptCost)
	codec := service.NewTokenCodec(cfg.JWTSecret)
	refreshService := service.NewRefreshTokenService(tokenStore, cfg.JWTRefreshTTL, m)
	resolver := service.NewIdentityResolver(userRepo)
	authService := service.NewAuthService(userRepo, hasher, codec, refreshService, bus)
	userService := service.NewUserService(userRepo, hasher, refreshService, bus)
	auditService := service.NewAuditService(auditRepo)
	catalogService := service.NewCatalogService(
		repository.NewProductRepository(pool),
		repository.NewRestaurantRepository(pool),
		repository.NewOrderRepository(pool),
	)

	if err := userService.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to bootstrap admin: %w", err)
	}

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	app.cleanupFuncs = append(app.cleanupFuncs, backgroundCancel)
	go auditService.Run(backgroundCtx, bus)
	go refreshService.StartCleanupTicker(backgroundCtx, cfg.RefreshCleanupInterval)

	appRouter := router.New(
		cfg,
		middleware.NewAuthMiddleware(codec, resolver, m),
		middleware.DefaultPolicy(m),
		m,
		router.Handlers{
			Auth:    handler.NewAuthHandler(authService),
			Admin:   handler.NewAdminHandler(userService),
			Audit:   handler.NewAuditHandler(auditService),
			Catalog: handler.NewCatalogHandler(catalogService),
			Debug:   handler.NewDebugHandler(db),
		},
	)

	app.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return app, nil
}

func (a *App) refreshTokenStore(ctx context.Context, cfg *config.Config, db *database.DB) (service.RefreshTokenStore, error) {
	if cfg.RefreshStore != config.RefreshStoreRedis {
		return repository.NewTokenRepository(db.Pool), nil
	}

	client, err := database.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.cleanupFuncs = append(a.cleanupFuncs, func() {
		_ = client.Close()
	})

	return repository.NewRedisTokenRepository(client), nil
}

// Handler exposes the fully wired router, for tests that drive the app
// without a listener.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) Close() {
	a.cleanup()
}

// cleanup releases resources in reverse acquisition order.
func (a *App) cleanup() {
	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}
	a.cleanupFuncs = nil
}

func (a *App) Run() error {
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		a.cleanup()
		return fmt.Errorf("server failed: %w", err)
	case <-stop:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)
	a.cleanup()
	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}
