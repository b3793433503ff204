package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/forgeflow/forgeflow/internal/audit"
	"github.com/forgeflow/forgeflow/internal/credstore"
	"github.com/forgeflow/forgeflow/internal/db"
	"github.com/forgeflow/forgeflow/internal/egress"
	"github.com/forgeflow/forgeflow/internal/metrics"
)

var AppVersion string

func main() {
	if len(os.Args) > 1 && os.Args[1] == "redeem" {
		if err := runRedeem(os.Args[2:]); err != nil {
			slog.Error("Redeem failed", "error", err)
			os.Exit(1)
		}
		return
	}

	InitConfig()

	slog.Info("Forgeflow Egress Proxy", "version", AppVersion)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	credentials, err := buildCredentialStore(ctx)
	if err != nil {
		slog.Error("Failed to initialize credential store", "error", err)
		os.Exit(1)
	}

	auditPublisher, err := audit.NewPublisher(config.Audit)
	if err != nil {
		slog.Error("Failed to initialize audit publisher", "error", err)
		os.Exit(1)
	}

	server := egress.NewServer(egress.Allowlist(config.Egress.Allowlist), credentials, auditPublisher, metrics.New())

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		sig := <-sigChan
		slog.Info("Received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := server.Serve(ctx, config.Egress.SocketPath); err != nil {
		slog.Error("Egress proxy error", "error", err)
		os.Exit(1)
	}

	if closer, ok := auditPublisher.(interface{ Close() }); ok {
		closer.Close()
	}
	slog.Info("Shutdown complete")
}

func buildCredentialStore(ctx context.Context) (credstore.Store, error) {
	if config.Db.Url == "" {
		slog.Warn("No database configured, egress credential store is empty memory")
		return credstore.NewMemoryStore(), nil
	}

	pool, err := db.InitDB(ctx, config.Db.Url)
	if err != nil {
		return nil, err
	}
	return credstore.NewPostgresStore(pool, config.TokenCipherKey)
}
