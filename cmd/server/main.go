package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GriffinCanCode/scribe/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/scribe/backend/internal/infrastructure/server"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override environment
	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "Server port")
	flag.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "Server host")
	flag.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level (debug, info, warn, error)")
	flag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development logging")
	flag.IntVar(&cfg.Sandbox.PoolSize, "pool", cfg.Sandbox.PoolSize, "Number of pooled realms")
	flag.DurationVar(&cfg.Sandbox.Timeout, "timeout", cfg.Sandbox.Timeout, "Default execution timeout")
	flag.StringVar(&cfg.Functions.Backend, "functions", cfg.Functions.Backend, "Function store backend (memory, dir, sqlite, remote)")
	flag.StringVar(&cfg.Functions.Dir, "functions-dir", cfg.Functions.Dir, "Function directory for the dir backend")
	flag.BoolVar(&cfg.Functions.Watch, "watch", cfg.Functions.Watch, "Reload the function directory on change")
	flag.StringVar(&cfg.Functions.SQLitePath, "sqlite", cfg.Functions.SQLitePath, "Database path for the sqlite backend")
	flag.StringVar(&cfg.Functions.RemoteURL, "remote", cfg.Functions.RemoteURL, "Registry URL for the remote backend")
	flag.Parse()

	if cfg.Logging.Development && cfg.Logging.Level == "info" {
		cfg.Logging.Level = "debug"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	select {
	case <-ctx.Done():
		log.Println("Shutting down gracefully...")
	case err := <-errChan:
		if err != nil {
			log.Printf("Server error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Error during shutdown: %v", err)
	}
}
