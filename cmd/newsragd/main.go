// Newsragd serves question answering over ingested news articles and
// uploaded PDFs.
//
// Usage:
//
//	# Start the HTTP server
//	newsragd serve
//
//	# Embed every stored document that is still pending
//	newsragd ingest
//
//	# Show version information
//	newsragd version
//
// Configuration is loaded from a YAML file with NEWSRAGD_* environment
// overrides. See internal/config for details.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsragd/internal/chunker"
	"github.com/fyrsmithlabs/newsragd/internal/config"
	"github.com/fyrsmithlabs/newsragd/internal/embeddings"
	"github.com/fyrsmithlabs/newsragd/internal/extract"
	"github.com/fyrsmithlabs/newsragd/internal/httpapi"
	"github.com/fyrsmithlabs/newsragd/internal/ingest"
	"github.com/fyrsmithlabs/newsragd/internal/logging"
	"github.com/fyrsmithlabs/newsragd/internal/rag"
	"github.com/fyrsmithlabs/newsragd/internal/records"
	"github.com/fyrsmithlabs/newsragd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "newsragd",
	Short:         "News RAG service: ingest documents, answer questions",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Embed every stored document whose embeddings are pending",
	RunE:  runIngest,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("newsragd %s (commit %s, built %s)\n", version, gitCommit, buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.AddCommand(serveCmd, ingestCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// services holds the wired application components.
type services struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *records.PostgresStore
	index    vectorstore.Index
	pipeline *ingest.Pipeline
}

// buildServices wires configuration, storage, embeddings, the vector
// index, and the ingestion pipeline.
func buildServices(ctx context.Context) (*services, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	pool, err := records.Connect(ctx, cfg.Database.URL.Value())
	if err != nil {
		return nil, fmt.Errorf("connecting to record store: %w", err)
	}
	store := records.NewPostgresStore(pool, logger)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("applying record store schema: %w", err)
	}

	embedder, err := embeddings.NewService(cfg.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("creating embeddings service: %w", err)
	}

	index, err := vectorstore.New(cfg.VectorStore, embedder.Dimension(), embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("creating vector index: %w", err)
	}
	if err := index.EnsureReady(ctx); err != nil {
		return nil, fmt.Errorf("provisioning vector index: %w", err)
	}

	ch, err := chunker.New(embedder, chunker.Config{})
	if err != nil {
		return nil, fmt.Errorf("creating chunker: %w", err)
	}

	pipeline, err := ingest.New(store, index, ch, ingest.Config{
		Namespace: cfg.VectorStore.Namespace,
		Dimension: embedder.Dimension(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating ingestion pipeline: %w", err)
	}

	return &services{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		index:    index,
		pipeline: pipeline,
	}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svcs, err := buildServices(ctx)
	if err != nil {
		return err
	}
	logger := svcs.logger
	defer func() { _ = logging.Sync(logger) }()
	defer svcs.index.Close()

	// An unreachable LLM backend degrades answering instead of
	// blocking startup; ingestion keeps working.
	var answerer httpapi.Answerer
	generator, err := rag.NewGoogleAIGenerator(ctx, svcs.cfg.LLM)
	if err != nil {
		logger.Error("answering service initialization failed", zap.Error(err))
		answerer = rag.NewUnavailable(err, logger)
	} else {
		answerer, err = rag.New(svcs.index, generator, rag.Config{
			Namespace: svcs.cfg.VectorStore.Namespace,
			TopK:      svcs.cfg.Answer.TopK,
		}, logger)
		if err != nil {
			return fmt.Errorf("creating answering service: %w", err)
		}
	}

	server, err := httpapi.NewServer(svcs.pipeline, answerer, extract.NewPDFExtractor(), logger, &httpapi.Config{
		Host:        svcs.cfg.Server.Host,
		Port:        svcs.cfg.Server.Port,
		CORSOrigins: svcs.cfg.Server.CORSOrigins,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	logger.Info("newsragd started",
		zap.String("version", version),
		zap.String("host", svcs.cfg.Server.Host),
		zap.Int("port", svcs.cfg.Server.Port),
	)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), svcs.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	logger.Info("newsragd stopped")
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svcs, err := buildServices(ctx)
	if err != nil {
		return err
	}
	logger := svcs.logger
	defer func() { _ = logging.Sync(logger) }()
	defer svcs.index.Close()

	summary, err := svcs.pipeline.IngestPending(ctx)
	if err != nil {
		return fmt.Errorf("ingestion run: %w", err)
	}

	fmt.Printf("processed %d documents: %d embedded, %d skipped, %d failed\n",
		summary.Processed, summary.Succeeded, summary.Skipped, summary.Failed)
	for _, failure := range summary.Failures {
		fmt.Printf("  failed %s: %v\n", failure.ID, failure.Err)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d documents failed", summary.Failed)
	}
	return nil
}
