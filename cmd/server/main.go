// Package main runs the fair-launch trading service:
// - HTTP API for token registration, quotes, trades and graduation
// - WebSocket event stream
// - Background graduation watchers and session sweeping
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fairlaunch/internal/config"
)

func main() {
	// Load .env file if exists
	config.LoadEnvFile(".env")

	// Parse flags (env vars as defaults)
	configPath := flag.String("config", os.Getenv("FAIRLAUNCH_CONFIG"), "Path to YAML config file")
	listenAddr := flag.String("listen", "", "HTTP listen address (overrides config)")
	verbose := flag.Bool("verbose", false, "Enable verbose component logging")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	if *verbose {
		cfg.Logging.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := createStores(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	a, err := newApp(ctx, cfg, stores, logger)
	if err != nil {
		logger.Fatalf("Failed to start: %v", err)
	}
	defer a.close()

	go a.runSweeper(ctx, cfg.Coordinator.SweepInterval)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to signal completion
	done := make(chan struct{})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer stop()
		go func() {
			// Wait for second signal for immediate shutdown
			select {
			case sig := <-sigCh:
				logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
				os.Exit(1)
			case <-done:
			}
		}()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("Graceful shutdown failed after %v: %v", cfg.Server.ShutdownTimeout, err)
		}
	}()

	logger.Printf("Listening on %s (storage: %s)", cfg.Server.ListenAddr, cfg.Storage.Backend)
	err = srv.ListenAndServe()
	close(done)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("HTTP server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// runSweeper evicts idle trading sessions on every tick.
func (a *app) runSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := a.coord.SweepSessions(now.UTC()); n > 0 && a.cfg.Logging.Verbose {
				a.logger.Printf("Swept %d idle sessions", n)
			}
		}
	}
}
