package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/skillindex/internal/config"
	"github.com/dshills/skillindex/internal/dense"
	"github.com/dshills/skillindex/internal/embedder"
	"github.com/dshills/skillindex/internal/index"
	"github.com/dshills/skillindex/internal/indexer"
	"github.com/dshills/skillindex/internal/searcher"
	"github.com/dshills/skillindex/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "skillindex",
		Short:         "Hybrid sparse and dense document search service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(os.Stdout)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: ./skillindex.yaml if present)")

	rootCmd.AddCommand(
		serveCmd(),
		mcpCmd(),
		buildCmd(),
		updateCmd(),
		searchCmd(),
		statusCmd(),
		probeCmd(),
		versionCmd(),
	)

	// Set up graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("skillindex %s\n", version)
			cmd.Printf("Build Time: %s\n", buildTime)
			cmd.Printf("Build Mode: %s\n", storage.BuildMode)
			cmd.Printf("SQLite Driver: %s\n", storage.DriverName)
		},
	}
}

// app holds the wired service components shared by every command
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *storage.SQLiteStorage
	dense    *dense.Builder
	manager  *index.Manager
	searcher *searcher.Searcher
}

// openApp loads configuration, opens the index store and publishes any
// existing index. Logs always go to stderr; stdout belongs to command output
// or, in mcp mode, to the protocol.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	for _, warning := range cfg.Validate() {
		logger.Warn("configuration warning", "warning", warning)
	}

	store, err := storage.Open(cfg.Storage.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to open index store: %w", err)
	}

	builder := dense.NewBuilder(newEmbedder(cfg, logger), logger)

	idx := indexer.New(store, builder, &indexer.Config{
		StorageRoot:  cfg.Storage.Root,
		Database:     cfg.DatabasePath(),
		HybridWeight: cfg.Search.HybridWeight,
		Logger:       logger,
	})
	manager := index.NewManager(store, idx, &index.Config{
		CorpusSource:   cfg.Corpus.Source,
		CorpusDatabase: cfg.Corpus.Database,
		FieldWeights:   cfg.Search.FieldWeights,
		Logger:         logger,
	})
	if err := manager.Reload(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load index: %w", err)
	}

	srch := searcher.NewSearcher(manager, builder, &searcher.Config{
		QueryTimeout: cfg.Embedding.Timeout,
		CacheTTL:     cfg.Search.CacheTTL,
		Logger:       logger,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		dense:    builder,
		manager:  manager,
		searcher: srch,
	}, nil
}

// newEmbedder returns the configured provider, or nil when dense search has
// to be disabled
func newEmbedder(cfg *config.Config, logger *slog.Logger) embedder.Embedder {
	emb, err := embedder.New(cfg.EmbedderConfig())
	switch {
	case errors.Is(err, embedder.ErrNoProviderEnabled):
		logger.Info("no embedding provider configured, dense search disabled", "provider", cfg.Embedding.Provider, "error", err)
		return nil
	case err != nil:
		logger.Warn("embedding provider unavailable, dense search disabled", "provider", cfg.Embedding.Provider, "error", err)
		return nil
	}
	return emb
}

func (a *app) Close() {
	if emb := a.dense.Embedder(); emb != nil {
		_ = emb.Close()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close index store", "error", err)
	}
}
