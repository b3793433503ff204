package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	internalhttp "github.com/forgeflow/forgeflow/internal/api/http"
	"github.com/forgeflow/forgeflow/internal/audit"
	"github.com/forgeflow/forgeflow/internal/credstore"
	"github.com/forgeflow/forgeflow/internal/db"
	"github.com/forgeflow/forgeflow/internal/metrics"
	"github.com/forgeflow/forgeflow/internal/oauth"
	"github.com/forgeflow/forgeflow/internal/orchestrator"
	"github.com/forgeflow/forgeflow/internal/provider"
	"github.com/forgeflow/forgeflow/internal/ticket"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Forgeflow Server", "version", AppVersion)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tokens, err := buildTokenStore(ctx)
	if err != nil {
		slog.Error("Failed to initialize token store", "error", err)
		os.Exit(1)
	}

	tickets := buildTicketStore(ctx)

	auditPublisher, err := audit.NewPublisher(config.Audit)
	if err != nil {
		slog.Error("Failed to initialize audit publisher", "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	sourceControl := provider.NewSourceControlAdapter(config.Providers.TemplateOwner, config.Providers.TemplateRepo)
	adapters := provider.Registry{
		provider.SourceControl: sourceControl,
		provider.Database:      provider.NewDatabaseAdapter(config.Providers.DatabaseAPIURL, config.Providers.DatabaseRegion),
		provider.Hosting:       provider.NewHostingAdapter(config.Providers.HostingAPIURL),
	}

	services := &internalhttp.Services{
		Orchestrator: orchestrator.New(adapters, sourceControl, auditPublisher, m),
		Exchanger:    oauth.NewExchanger(config.OAuth),
		Tokens:       tokens,
		Tickets:      tickets,
		Auth:         config.Auth,
		Metrics:      m,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"PUT", "PATCH", "GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(gin.Recovery())
	internalhttp.SetupRoute(engine, config.Http, services)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Http.Port),
		Handler: engine,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	if closer, ok := auditPublisher.(interface{ Close() }); ok {
		closer.Close()
	}
	slog.Info("Shutdown complete")
}

// buildTokenStore prefers the encrypted Postgres store and falls back to
// process memory when no database is configured.
func buildTokenStore(ctx context.Context) (credstore.Store, error) {
	if config.Db.Url == "" {
		slog.Warn("No database configured, storing tokens in memory")
		return credstore.NewMemoryStore(), nil
	}

	if err := db.RunMigrations(config.Db.Url); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	pool, err := db.InitDB(ctx, config.Db.Url)
	if err != nil {
		return nil, err
	}

	return credstore.NewPostgresStore(pool, config.Providers.TokenCipherKey)
}

// buildTicketStore uses Redis when configured so several server instances
// can share one-time tickets; otherwise an in-memory store with a janitor.
func buildTicketStore(ctx context.Context) ticket.Store {
	if config.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
		})
		return ticket.NewRedisStore(client, config.Tickets.TTL)
	}

	store := ticket.NewMemoryStore(config.Tickets.TTL)
	go store.StartCleanup(ctx, 5*time.Minute)
	return store
}
