package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/flowcache/flowcache"
	"github.com/flowcache/flowcache/config"
	"github.com/flowcache/flowcache/dashboard"
	"github.com/flowcache/flowcache/internal/server"
)

// newLogger creates a JSON logger for CLI use.
func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// serveCmd starts the FlowCache entry server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the entry server",
	Long: `Start the FlowCache entry server.

The server will:
  - Load configuration from the specified YAML file
  - Store any configured seed entries
  - Serve the REST API, SSE streams, and live view on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  flowcache serve -c config.yaml
  flowcache serve --config /etc/flowcache/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"seed_entries", len(cfg.Seed),
		"port", cfg.Port,
	)

	// the cache collaborator is shared between the store (reactive writes)
	// and the server (snapshot reads)
	cache := flowcache.NewMemoryCache(server.EntryKey)
	store, err := flowcache.New(server.EntryKey,
		flowcache.WithCache[string, server.Entry](cache),
		flowcache.WithLogger[string, server.Entry](logger),
		flowcache.WithSubscriptionBuffer[string, server.Entry](cfg.Buffer),
	)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	if entries := buildSeedEntries(cfg.Seed); len(entries) > 0 {
		store.StoreAll(entries)
		logger.Info("seed entries stored", "count", len(entries))
	}

	srv := server.NewServer(store, cache, cfg.Port, dashboard.Assets, cfg.Title, logger)

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("flowcache starting", "url", fmt.Sprintf("http://localhost:%d", cfg.Port))

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// buildSeedEntries converts config seeds into stamped store entries.
func buildSeedEntries(seeds []config.SeedEntry) []server.Entry {
	entries := make([]server.Entry, 0, len(seeds))
	for _, seed := range seeds {
		data := make(map[string]any, len(seed.Data))
		for k, v := range seed.Data {
			data[k] = v
		}
		entries = append(entries, server.Entry{
			ID:        uuid.NewString(),
			Key:       seed.Key,
			Data:      data,
			UpdatedAt: time.Now().UTC(),
		})
	}
	return entries
}
