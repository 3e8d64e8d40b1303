package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/legalsift/legalsift/internal/artifact"
	"github.com/legalsift/legalsift/internal/contract"
	"github.com/legalsift/legalsift/internal/index"
)

// Result carries the Stage 1 artifact references downstream.
type Result struct {
	Chunks      []contract.Chunk
	ChunksPath  string
	IndexPath   string
	TotalChunks int
	Pages       int
}

// Pipeline is the extraction and chunking stage: PDF -> text -> chunks ->
// search index, with the chunk list and index written as artifacts.
type Pipeline struct {
	extractor *Extractor
	chunker   *Chunker
	embedder  index.Embedder
	model     string
	artifacts *artifact.Store
	logger    *slog.Logger
}

func NewPipeline(extractor *Extractor, chunker *Chunker, embedder index.Embedder, model string, artifacts *artifact.Store, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		model:     model,
		artifacts: artifacts,
		logger:    logger,
	}
}

// Ingest processes the uploaded document: extract, clean, chunk, embed,
// persist the chunk list and index artifacts.
func (p *Pipeline) Ingest(ctx context.Context, jobID, pdfPath string) (Result, error) {
	start := time.Now()

	ext, err := p.extractor.Extract(ctx, pdfPath)
	if err != nil {
		return Result{}, fmt.Errorf("extract text: %w", err)
	}

	chunks := p.chunker.Chunk(Clean(ext.Text))
	if len(chunks) == 0 {
		return Result{}, fmt.Errorf("document produced no chunks")
	}

	ix, err := index.Build(ctx, p.embedder, p.model, chunks)
	if err != nil {
		return Result{}, fmt.Errorf("build index: %w", err)
	}
	indexPath := p.artifacts.IndexPath(jobID)
	if err := ix.Save(indexPath); err != nil {
		return Result{}, fmt.Errorf("save index: %w", err)
	}

	chunksPath := p.artifacts.ChunksPath(jobID)
	if err := p.artifacts.WriteJSON(chunksPath, chunks); err != nil {
		return Result{}, fmt.Errorf("save chunk list: %w", err)
	}

	p.logger.Info("ingest.ok",
		"job_id", jobID,
		"pages", ext.Pages,
		"chunks", len(chunks),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Result{
		Chunks:      chunks,
		ChunksPath:  chunksPath,
		IndexPath:   indexPath,
		TotalChunks: len(chunks),
		Pages:       ext.Pages,
	}, nil
}
