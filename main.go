// localchat - chat with local LLMs from the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeranaias/localchat/internal/chat"
	"github.com/jeranaias/localchat/internal/cli"
	"github.com/jeranaias/localchat/internal/config"
	"github.com/jeranaias/localchat/internal/ollama"
	"github.com/jeranaias/localchat/internal/storage"
	"github.com/jeranaias/localchat/internal/telemetry"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file (default ~/.localchat/config.toml)")
		model       = flag.String("model", "", "model for new chats (overrides config)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("localchat %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if err := run(*configPath, *model); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, modelOverride string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if modelOverride != "" {
		cfg.DefaultModel = modelOverride
	}

	if err := config.EnsureDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	logger.Info("starting localchat", "version", Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL: cfg.Server.URL,
		Timeout: time.Duration(cfg.Server.TimeoutSecs) * time.Second,
		Logger:  logger,
	})

	ensureServer(ctx, client, cfg, logger)

	persister, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer persister.Close()

	store := chat.NewStore(client, persister, logger)
	if err := store.Load(); err != nil {
		// Unreadable state is not fatal; start fresh and say so.
		logger.Error("failed to load saved chats", "error", err)
		fmt.Fprintf(os.Stderr, "Warning: could not load saved chats: %v\n", err)
	}
	store.FetchAvailableModels(ctx)

	repl := cli.New(cli.Options{
		Store:  store,
		Config: cfg,
		Logger: logger,
	})

	watcher := watchConfig(configPath, cfg, logger)
	if watcher != nil {
		defer watcher.Close()
	}

	return repl.Run(ctx)
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	logFile, err := cfg.LogFile()
	if err != nil {
		return nil, err
	}
	return telemetry.NewLogger(telemetry.Options{
		File:       logFile,
		Level:      cfg.Logging.Level,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	}), nil
}

// ensureServer pings the inference server and, when configured, launches it.
// Failure is not fatal: the REPL surfaces connection errors per request.
func ensureServer(ctx context.Context, client *ollama.Client, cfg *config.Config, logger *slog.Logger) {
	if client.Ping(ctx) == nil {
		return
	}
	if !cfg.Server.AutoStart {
		fmt.Fprintf(os.Stderr, "Warning: no server at %s\n", cfg.Server.URL)
		return
	}

	fmt.Println("Server not running, starting it...")
	status, err := client.StartServer(ctx)
	if err != nil {
		logger.Warn("failed to start server", "error", err)
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		return
	}
	logger.Info("server started", "status", status)
	fmt.Println(status)
}

func openStorage(cfg *config.Config) (storage.Store, error) {
	path, err := cfg.StoragePath()
	if err != nil {
		return nil, err
	}
	switch cfg.Storage.Driver {
	case "file":
		return storage.NewFileStore(path)
	default:
		return storage.NewSQLiteStore(path)
	}
}

// watchConfig hot-reloads the mutable settings. Returns nil when watching
// cannot be set up; the session then runs on the startup config.
func watchConfig(configPath string, cfg *config.Config, logger *slog.Logger) *config.Watcher {
	path := configPath
	if path == "" {
		var err error
		path, err = config.Path()
		if err != nil {
			return nil
		}
	}

	watcher, err := config.NewWatcher(path, func(next *config.Config) {
		cfg.DefaultModel = next.DefaultModel
		cfg.Logging.Level = next.Logging.Level
	}, logger)
	if err != nil {
		logger.Warn("config watching unavailable", "error", err)
		return nil
	}
	if err := watcher.Watch(); err != nil {
		logger.Warn("config watching unavailable", "error", err)
		watcher.Close()
		return nil
	}
	return watcher
}
