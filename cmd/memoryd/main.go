// Command memoryd runs the memory service: two gin HTTP routers (production
// and admin), a background ingestion worker, and an hourly TTL daemon,
// all sharing one connection pool.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/isaacriehm/memory-mcp/pkg/api"
	"github.com/isaacriehm/memory-mcp/pkg/config"
	"github.com/isaacriehm/memory-mcp/pkg/llmgateway"
	"github.com/isaacriehm/memory-mcp/pkg/pipeline"
	"github.com/isaacriehm/memory-mcp/pkg/primer"
	"github.com/isaacriehm/memory-mcp/pkg/queue"
	"github.com/isaacriehm/memory-mcp/pkg/retrieval"
	"github.com/isaacriehm/memory-mcp/pkg/store"
	"github.com/isaacriehm/memory-mcp/pkg/ttl"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// configureLogging installs a text slog handler at the configured level,
// defaulting to INFO for anything unrecognized.
func configureLogging(level string) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN", "WARNING":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

func main() {
	envPath := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: could not load %s: %v (continuing with existing environment)", envPath, err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	configureLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()
	slog.Info("Connected to PostgreSQL and applied schema migrations.")

	llm := llmgateway.New(cfg)
	retr := retrieval.New(st)
	pr := primer.New(st, llm)
	pipe := pipeline.New(st, llm, pr, cfg)

	worker := queue.NewWorker(st, pipe)
	if err := worker.Start(ctx); err != nil {
		log.Fatalf("Failed to start ingestion worker: %v", err)
	}
	defer worker.Stop()

	ttlDaemon := ttl.New(st, pr, cfg)
	ttlDaemon.Start(ctx)
	defer ttlDaemon.Stop()

	go func() {
		if err := pr.Synthesize(ctx, false); err != nil {
			slog.Warn("Startup primer synthesis failed; it will retry on the next ingestion or TTL sweep.", "error", err)
		}
	}()

	srv := api.NewServer(st, retr, llm, pr, cfg)

	prodServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.ProductionPort), Handler: srv.ProductionRouter()}
	adminServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.AdminPort), Handler: srv.AdminRouter()}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("Production server listening.", "addr", prodServer.Addr)
		if err := prodServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("production server: %w", err)
		}
	}()
	go func() {
		slog.Info("Admin server listening.", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("admin server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received.")
	case err := <-errCh:
		slog.Error("Server error, shutting down.", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = prodServer.Shutdown(shutdownCtx)
	_ = adminServer.Shutdown(shutdownCtx)
}
