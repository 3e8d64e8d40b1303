package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/legalsift/legalsift/internal/advisory"
	"github.com/legalsift/legalsift/internal/artifact"
	"github.com/legalsift/legalsift/internal/chat"
	"github.com/legalsift/legalsift/internal/classify"
	"github.com/legalsift/legalsift/internal/common"
	"github.com/legalsift/legalsift/internal/export"
	"github.com/legalsift/legalsift/internal/index"
	"github.com/legalsift/legalsift/internal/ingest"
	"github.com/legalsift/legalsift/internal/job"
	"github.com/legalsift/legalsift/internal/llm"
	"github.com/legalsift/legalsift/internal/pipeline"
	"github.com/legalsift/legalsift/internal/server"
	"github.com/legalsift/legalsift/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	artifacts, err := artifact.NewStore(cfg.Storage.ArtifactDir, logger)
	if err != nil {
		logger.Error("artifact store init failed", "error", err)
		os.Exit(1)
	}

	gateway, err := buildGateway(ctx, cfg, logger)
	if err != nil {
		logger.Error("persistence gateway init failed", "error", err)
		os.Exit(1)
	}
	if gateway != nil {
		defer gateway.Close()
	}

	embedder := index.NewHTTPEmbedder(index.HTTPEmbedderConfig{
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Embedding.Model,
		APIKey:  cfg.Embedding.APIKey,
		Timeout: cfg.Embedding.Timeout,
	}, logger)

	classifier := classify.NewHTTPClassifier(classify.HTTPClassifierConfig{
		BaseURL: cfg.Classifier.BaseURL,
		Model:   cfg.Classifier.Model,
		APIKey:  cfg.Classifier.APIKey,
		Timeout: cfg.Classifier.Timeout,
	}, logger)
	partitioner := classify.NewPartitioner(classifier, classify.Policy{
		RiskyThreshold: cfg.Classifier.RiskyThreshold,
		SafeLabelID:    cfg.Classifier.SafeLabelID,
	}, logger)

	chatClient := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	extractor := ingest.NewExtractor(ingest.ExtractorConfig{}, logger)
	chunker := ingest.NewChunker(cfg.Pipeline.ChunkSize, cfg.Pipeline.ChunkOverlap)
	ingestPipeline := ingest.NewPipeline(extractor, chunker, embedder, cfg.Embedding.Model, artifacts, logger)

	registry := job.NewRegistry()
	advisor := advisory.NewAdvisor(chatClient, logger)
	coordinator := pipeline.NewCoordinator(ingestPipeline, partitioner, advisor, artifacts, registry, gateway, logger)
	queue := pipeline.NewQueue(coordinator, logger,
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithBuffer(cfg.Pipeline.QueueSize),
	)
	queue.Start(ctx)

	rag := chat.NewRAG(chatClient, logger)
	assistant := chat.NewAssistant(chatClient, logger)

	var exporter *export.Service
	if gateway != nil {
		exporter = export.NewService(gateway, logger)
	}

	srv := server.New(cfg.Server, registry, queue, artifacts, gateway, embedder, rag, assistant, exporter, logger)
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router(),
	}

	go func() {
		logger.Info("http.serving", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", "error", err)
	}
	queue.Shutdown()
	logger.Info("stopped")
}

// buildGateway picks the persistence backend: Postgres when a DSN is set, the
// local single-file database when only a local path is set, none otherwise.
func buildGateway(ctx context.Context, cfg *common.Config, logger *slog.Logger) (store.Gateway, error) {
	if cfg.Database.DSN == "" && cfg.Database.LocalPath == "" {
		logger.Warn("no durable store configured; analysis results live in memory only")
		return nil, nil
	}

	blobs, err := store.NewBlobs(cfg.Storage.BlobDir, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Database.DSN != "" {
		return store.NewPostgresGateway(ctx, cfg.Database, blobs, logger)
	}
	return store.NewSQLiteGateway(ctx, cfg.Database.LocalPath, blobs, logger)
}
