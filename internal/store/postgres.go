package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/legalsift/legalsift/internal/common"
	"github.com/legalsift/legalsift/internal/contract"
)

const postgresDDL = `
CREATE TABLE IF NOT EXISTS documents (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT NOT NULL,
	filename           TEXT NOT NULL,
	risk_score         INTEGER NOT NULL DEFAULT 0,
	risky_chunks_count INTEGER NOT NULL DEFAULT 0,
	total_chunks       INTEGER NOT NULL DEFAULT 0,
	status             TEXT NOT NULL,
	error_message      TEXT,
	upload_date        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_documents_user ON documents (user_id, upload_date DESC);

CREATE TABLE IF NOT EXISTS risky_chunks (
	id               BIGSERIAL PRIMARY KEY,
	document_id      TEXT NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
	chunk_id         INTEGER NOT NULL,
	chunk_text       TEXT NOT NULL,
	risk_label       TEXT NOT NULL,
	confidence_score REAL NOT NULL,
	severity         TEXT NOT NULL,
	llm_analysis     TEXT
);
CREATE INDEX IF NOT EXISTS idx_risky_chunks_document ON risky_chunks (document_id);

CREATE TABLE IF NOT EXISTS chat_history (
	id            BIGSERIAL PRIMARY KEY,
	user_id       TEXT NOT NULL,
	document_id   TEXT NOT NULL,
	role          TEXT NOT NULL,
	content       TEXT NOT NULL,
	message_index INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_history_doc ON chat_history (user_id, document_id, message_index);
`

// PostgresGateway persists analysis data in Postgres via pgxpool, with blob
// artifacts on the filesystem.
type PostgresGateway struct {
	pool   *pgxpool.Pool
	blobs  *Blobs
	logger *slog.Logger
}

// NewPostgresGateway connects, tunes the pool, pings, and bootstraps the
// schema.
func NewPostgresGateway(ctx context.Context, cfg common.DatabaseConfig, blobs *Blobs, logger *slog.Logger) (*PostgresGateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.ConnConfig.ConnectTimeout = cfg.DialTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresDDL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	logger.Info("store.postgres.ready",
		"max_conns", cfg.MaxConns,
		"min_conns", cfg.MinConns,
	)
	return &PostgresGateway{pool: pool, blobs: blobs, logger: logger}, nil
}

func (g *PostgresGateway) SaveDocument(ctx context.Context, doc DocumentRecord) error {
	_, err := g.pool.Exec(ctx, `
		INSERT INTO documents (id, user_id, filename, risk_score, risky_chunks_count, total_chunks, status, upload_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			risk_score = EXCLUDED.risk_score,
			risky_chunks_count = EXCLUDED.risky_chunks_count,
			total_chunks = EXCLUDED.total_chunks,
			status = EXCLUDED.status`,
		doc.ID, doc.OwnerID, doc.FileName, doc.RiskScore,
		doc.RiskyChunksCount, doc.TotalChunks, doc.Status, doc.UploadDate,
	)
	if err != nil {
		return common.NewAppError("DB_ERROR", "failed to save document", err)
	}
	return nil
}

func (g *PostgresGateway) UpdateDocumentStatus(ctx context.Context, documentID, status, errorMessage string) error {
	var err error
	if errorMessage != "" {
		_, err = g.pool.Exec(ctx,
			`UPDATE documents SET status = $2, error_message = $3 WHERE id = $1`,
			documentID, status, errorMessage)
	} else {
		_, err = g.pool.Exec(ctx,
			`UPDATE documents SET status = $2 WHERE id = $1`,
			documentID, status)
	}
	if err != nil {
		return common.NewAppError("DB_ERROR", "failed to update document status", err)
	}
	return nil
}

func (g *PostgresGateway) GetDocument(ctx context.Context, documentID string) (*DocumentRecord, error) {
	var doc DocumentRecord
	var errMsg *string
	err := g.pool.QueryRow(ctx, `
		SELECT id, user_id, filename, risk_score, risky_chunks_count, total_chunks, status, error_message, upload_date
		FROM documents WHERE id = $1`, documentID).
		Scan(&doc.ID, &doc.OwnerID, &doc.FileName, &doc.RiskScore,
			&doc.RiskyChunksCount, &doc.TotalChunks, &doc.Status, &errMsg, &doc.UploadDate)
	if err == pgx.ErrNoRows {
		return nil, common.NotFoundError("document not found")
	}
	if err != nil {
		return nil, common.NewAppError("DB_ERROR", "failed to load document", err)
	}
	if errMsg != nil {
		doc.ErrorMessage = *errMsg
	}
	return &doc, nil
}

func (g *PostgresGateway) ListDocuments(ctx context.Context, ownerID string) ([]DocumentRecord, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT id, user_id, filename, risk_score, risky_chunks_count, total_chunks, status, error_message, upload_date
		FROM documents WHERE user_id = $1 ORDER BY upload_date DESC`, ownerID)
	if err != nil {
		return nil, common.NewAppError("DB_ERROR", "failed to list documents", err)
	}
	defer rows.Close()

	var docs []DocumentRecord
	for rows.Next() {
		var doc DocumentRecord
		var errMsg *string
		if err := rows.Scan(&doc.ID, &doc.OwnerID, &doc.FileName, &doc.RiskScore,
			&doc.RiskyChunksCount, &doc.TotalChunks, &doc.Status, &errMsg, &doc.UploadDate); err != nil {
			return nil, common.NewAppError("DB_ERROR", "failed to scan document", err)
		}
		if errMsg != nil {
			doc.ErrorMessage = *errMsg
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (g *PostgresGateway) SaveRiskyChunks(ctx context.Context, documentID string, risky []contract.Chunk, advisories []contract.Advisory) (int, error) {
	records := riskyRecords(documentID, risky, advisories)
	if len(records) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`
			INSERT INTO risky_chunks (document_id, chunk_id, chunk_text, risk_label, confidence_score, severity, llm_analysis)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))`,
			r.DocumentID, r.ChunkID, r.ChunkText, r.RiskLabel, r.Confidence, r.Severity, r.LLMAnalysis)
	}
	br := g.pool.SendBatch(ctx, batch)
	defer func() {
		if cErr := br.Close(); cErr != nil {
			g.logger.Warn("store.batch_close_error", "error", cErr)
		}
	}()
	for range records {
		if _, err := br.Exec(); err != nil {
			return 0, common.NewAppError("DB_ERROR", "failed to save risky chunks", err)
		}
	}
	return len(records), nil
}

func (g *PostgresGateway) GetRiskyChunks(ctx context.Context, documentID string) ([]RiskyChunkRecord, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT document_id, chunk_id, chunk_text, risk_label, confidence_score, severity, COALESCE(llm_analysis, '')
		FROM risky_chunks WHERE document_id = $1 ORDER BY chunk_id`, documentID)
	if err != nil {
		return nil, common.NewAppError("DB_ERROR", "failed to load risky chunks", err)
	}
	defer rows.Close()

	var records []RiskyChunkRecord
	for rows.Next() {
		var r RiskyChunkRecord
		if err := rows.Scan(&r.DocumentID, &r.ChunkID, &r.ChunkText, &r.RiskLabel,
			&r.Confidence, &r.Severity, &r.LLMAnalysis); err != nil {
			return nil, common.NewAppError("DB_ERROR", "failed to scan risky chunk", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (g *PostgresGateway) ReplaceChatHistory(ctx context.Context, ownerID, documentID string, messages []ChatMessage) (int, error) {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return 0, common.NewAppError("DB_ERROR", "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM chat_history WHERE user_id = $1 AND document_id = $2`,
		ownerID, documentID); err != nil {
		return 0, common.NewAppError("DB_ERROR", "failed to clear chat history", err)
	}
	for i, msg := range messages {
		if _, err := tx.Exec(ctx, `
			INSERT INTO chat_history (user_id, document_id, role, content, message_index)
			VALUES ($1, $2, $3, $4, $5)`,
			ownerID, documentID, msg.Role, msg.Content, i); err != nil {
			return 0, common.NewAppError("DB_ERROR", "failed to save chat message", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, common.NewAppError("DB_ERROR", "failed to commit chat history", err)
	}
	return len(messages), nil
}

func (g *PostgresGateway) GetChatHistory(ctx context.Context, ownerID, documentID string) ([]ChatMessage, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT role, content, message_index FROM chat_history
		WHERE user_id = $1 AND document_id = $2 ORDER BY message_index`, ownerID, documentID)
	if err != nil {
		return nil, common.NewAppError("DB_ERROR", "failed to load chat history", err)
	}
	defer rows.Close()

	var messages []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.Role, &m.Content, &m.MessageIndex); err != nil {
			return nil, common.NewAppError("DB_ERROR", "failed to scan chat message", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (g *PostgresGateway) DeleteChatHistory(ctx context.Context, ownerID, documentID string) error {
	if _, err := g.pool.Exec(ctx,
		`DELETE FROM chat_history WHERE user_id = $1 AND document_id = $2`,
		ownerID, documentID); err != nil {
		return common.NewAppError("DB_ERROR", "failed to delete chat history", err)
	}
	return nil
}

func (g *PostgresGateway) UploadIndex(ctx context.Context, ownerID, documentID, localPath string) (string, error) {
	return g.blobs.PutFile(ownerID, documentID, BlobIndex, localPath)
}

func (g *PostgresGateway) UploadReport(ctx context.Context, ownerID, documentID, content string) (string, error) {
	return g.blobs.PutBytes(ownerID, documentID, BlobReport, []byte(content))
}

func (g *PostgresGateway) GetReport(ctx context.Context, ownerID, documentID string) (string, error) {
	data, err := g.blobs.Get(ownerID, documentID, BlobReport)
	if err != nil {
		return "", common.NotFoundError("report not found")
	}
	return string(data), nil
}

func (g *PostgresGateway) DeleteOwnerData(ctx context.Context, ownerID string) (int, error) {
	start := time.Now()

	if _, err := g.pool.Exec(ctx,
		`DELETE FROM chat_history WHERE user_id = $1`, ownerID); err != nil {
		return 0, common.NewAppError("DB_ERROR", "failed to delete chat history", err)
	}
	tag, err := g.pool.Exec(ctx, `DELETE FROM documents WHERE user_id = $1`, ownerID)
	if err != nil {
		return 0, common.NewAppError("DB_ERROR", "failed to delete documents", err)
	}
	if err := g.blobs.DeleteOwner(ownerID); err != nil {
		g.logger.Warn("store.blob_purge_error", "owner_id", ownerID, "error", err)
	}

	purged := int(tag.RowsAffected())
	g.logger.Info("store.owner_purged",
		"owner_id", ownerID,
		"documents", purged,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return purged, nil
}

func (g *PostgresGateway) Close() {
	g.pool.Close()
}
