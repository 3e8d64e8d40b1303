// Package pipeline drives the end-to-end analysis of one uploaded contract:
// extraction, risk detection, advisory generation, best-effort persistence,
// and artifact cleanup, with job progress published before every blocking
// stage.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/legalsift/legalsift/constants"
	"github.com/legalsift/legalsift/internal/advisory"
	"github.com/legalsift/legalsift/internal/artifact"
	"github.com/legalsift/legalsift/internal/classify"
	"github.com/legalsift/legalsift/internal/contract"
	"github.com/legalsift/legalsift/internal/ingest"
	"github.com/legalsift/legalsift/internal/job"
	"github.com/legalsift/legalsift/internal/store"
)

// Coordinator owns the stage sequencing for analysis jobs. Failures in the
// first two stages are fatal for the job; everything after risk detection
// degrades instead of failing.
type Coordinator struct {
	ingest      *ingest.Pipeline
	partitioner *classify.Partitioner
	advisor     *advisory.Advisor
	artifacts   *artifact.Store
	registry    *job.Registry
	gateway     store.Gateway
	logger      *slog.Logger
}

func NewCoordinator(
	ingestPipeline *ingest.Pipeline,
	partitioner *classify.Partitioner,
	advisor *advisory.Advisor,
	artifacts *artifact.Store,
	registry *job.Registry,
	gateway store.Gateway,
	logger *slog.Logger,
) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		ingest:      ingestPipeline,
		partitioner: partitioner,
		advisor:     advisor,
		artifacts:   artifacts,
		registry:    registry,
		gateway:     gateway,
		logger:      logger,
	}
}

// Run executes the full pipeline for one job. It is called exactly once per
// job, from a worker goroutine.
func (c *Coordinator) Run(ctx context.Context, j *job.Job) {
	start := time.Now()
	log := c.logger.With("job_id", j.ID, "owner_id", j.OwnerID)
	log.Info("pipeline.start", "file_name", j.FileName)

	// Scratch space goes away on every exit path.
	defer c.artifacts.RemoveScratch(j.ID)

	// Stage 1: extraction, chunking, indexing.
	c.checkpoint(j.ID, constants.ProgressExtracting, constants.StageExtracting)
	uploadPath := c.artifacts.UploadPath(j.ID)
	ingested, err := c.ingest.Ingest(ctx, j.ID, uploadPath)
	if err != nil {
		c.fail(ctx, j, "extraction failed: "+err.Error(), log)
		return
	}

	// Stage 2: risk detection.
	c.checkpoint(j.ID, constants.ProgressDetecting, constants.StageDetecting)
	risky, safe, err := c.partitioner.Partition(ctx, ingested.Chunks)
	if err != nil {
		c.fail(ctx, j, "risk detection failed: "+err.Error(), log)
		return
	}
	riskyPath := c.artifacts.RiskyPath(j.ID)
	safePath := c.artifacts.SafePath(j.ID)
	if err := c.artifacts.WriteJSON(riskyPath, risky); err != nil {
		log.Warn("pipeline.artifact_write_failed", "path", riskyPath, "error", err)
	}
	if err := c.artifacts.WriteJSON(safePath, safe); err != nil {
		log.Warn("pipeline.artifact_write_failed", "path", safePath, "error", err)
	}

	// Stage 3: advisory and report. Per-clause failures degrade, never fail.
	c.checkpoint(j.ID, constants.ProgressAdvisory, constants.StageAdvisory)
	var advisories []contract.Advisory
	if len(risky) > 0 {
		advisories = c.advisor.Generate(ctx, risky)
	}
	report := advisory.RenderReport(advisories, len(ingested.Chunks), time.Now())
	reportPath := c.artifacts.ReportPath(j.ID)
	if err := c.artifacts.WriteFile(reportPath, []byte(report)); err != nil {
		log.Warn("pipeline.artifact_write_failed", "path", reportPath, "error", err)
	}

	result := &job.Result{
		DocumentID:    j.ID,
		OwnerID:       j.OwnerID,
		FileName:      j.FileName,
		UploadDate:    j.CreatedAt,
		RiskScore:     contract.RiskScore(len(risky), len(ingested.Chunks)),
		TotalChunks:   len(ingested.Chunks),
		RiskyChunks:   len(risky),
		SafeChunks:    len(safe),
		ReportContent: report,
		RiskyData:     risky,
		SafeData:      safe,
		Advisories:    advisories,
		IndexPath:     ingested.IndexPath,
	}

	// Stage 4: blob upload, best-effort.
	c.checkpoint(j.ID, constants.ProgressSaving, constants.StageSaving)
	c.persistBlobs(ctx, j, result, log)

	// Stage 5: metadata persistence, best-effort.
	c.checkpoint(j.ID, constants.ProgressPreserving, constants.StagePreserving)
	c.persistMetadata(ctx, j, result, risky, advisories, log)

	// Stage 6: cleanup. The index artifact stays for conversational access.
	c.checkpoint(j.ID, constants.ProgressCleanup, constants.StageCleanup)
	c.artifacts.Remove(j.ID, uploadPath, ingested.ChunksPath, riskyPath, safePath, reportPath)

	c.registry.Update(j.ID, func(next *job.Job) {
		next.Status = constants.JobStatusCompleted
		next.Progress = constants.ProgressDone
		next.Stage = constants.StageDone
		next.Result = result
	})
	log.Info("pipeline.done",
		"risk_score", result.RiskScore,
		"risky_chunks", result.RiskyChunks,
		"total_chunks", result.TotalChunks,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

// checkpoint publishes the stage about to run, so a concurrent poll always
// sees the current step.
func (c *Coordinator) checkpoint(jobID string, progress int, stage string) {
	c.registry.Update(jobID, func(next *job.Job) {
		next.Status = constants.JobStatusProcessing
		next.Progress = progress
		next.Stage = stage
	})
}

func (c *Coordinator) fail(ctx context.Context, j *job.Job, msg string, log *slog.Logger) {
	log.Error("pipeline.failed", "error", msg)

	c.registry.Update(j.ID, func(next *job.Job) {
		next.Status = constants.JobStatusFailed
		next.Error = msg
	})
	if c.gateway != nil {
		if err := c.gateway.UpdateDocumentStatus(ctx, j.ID, string(constants.JobStatusFailed), msg); err != nil {
			log.Warn("pipeline.status_persist_failed", "error", err)
		}
	}
	// Failed jobs leave nothing staged behind.
	c.artifacts.Remove(j.ID,
		c.artifacts.UploadPath(j.ID),
		c.artifacts.ChunksPath(j.ID),
		c.artifacts.RiskyPath(j.ID),
		c.artifacts.SafePath(j.ID),
		c.artifacts.ReportPath(j.ID),
	)
}

// persistBlobs ships the index and report to the durable store. Every call is
// independently best-effort.
func (c *Coordinator) persistBlobs(ctx context.Context, j *job.Job, result *job.Result, log *slog.Logger) {
	if c.gateway == nil {
		return
	}
	if _, err := c.gateway.UploadIndex(ctx, j.OwnerID, j.ID, result.IndexPath); err != nil {
		log.Warn("pipeline.index_upload_failed", "error", err)
	}
	if _, err := c.gateway.UploadReport(ctx, j.OwnerID, j.ID, result.ReportContent); err != nil {
		log.Warn("pipeline.report_upload_failed", "error", err)
	}
}

// persistMetadata records the document row and flagged clauses. Every call is
// independently best-effort.
func (c *Coordinator) persistMetadata(ctx context.Context, j *job.Job, result *job.Result, risky []contract.Chunk, advisories []contract.Advisory, log *slog.Logger) {
	if c.gateway == nil {
		return
	}
	doc := store.DocumentRecord{
		ID:               j.ID,
		OwnerID:          j.OwnerID,
		FileName:         j.FileName,
		RiskScore:        result.RiskScore,
		RiskyChunksCount: result.RiskyChunks,
		TotalChunks:      result.TotalChunks,
		Status:           string(constants.JobStatusCompleted),
		UploadDate:       j.CreatedAt,
	}
	if err := c.gateway.SaveDocument(ctx, doc); err != nil {
		log.Warn("pipeline.document_persist_failed", "error", err)
	}
	if n, err := c.gateway.SaveRiskyChunks(ctx, j.ID, risky, advisories); err != nil {
		log.Warn("pipeline.risky_persist_failed", "error", err)
	} else if n > 0 {
		log.Info("pipeline.risky_persisted", "rows", n)
	}
}
