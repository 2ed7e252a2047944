// Package main is the entry point for the quoteboard server.
//
// The main package stays minimal. Its job is to:
//  1. Read configuration (defaults, config file, .env, environment)
//  2. Create the logger
//  3. Build the server, prepare the store and start listening
//
// All actual logic lives in internal/.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/quoteboard/internal/config"
	"github.com/sakif/quoteboard/internal/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("QUOTEBOARD_CONFIG"), "path to a YAML config file")
	flag.Parse()

	// === 1. READ CONFIGURATION ===
	// A missing or short session secret is fatal: the server would otherwise
	// hand out cookies nobody can verify.
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	logger, err := newLogger(cfg.Log)
	if err != nil {
		slog.Error("invalid log configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 3. DATABASE DIRECTORY ===
	if cfg.DB.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.DB.Path)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// === 4. CREATE, PREPARE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Bootstrap(context.Background()); err != nil {
		logger.Error("startup preparation failed", slog.String("error", err.Error()))
		srv.Close()
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// newLogger builds the process logger: text for terminals, JSON for log
// shippers.
func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
}
