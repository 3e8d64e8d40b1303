package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/legalsift/legalsift/internal/common"
	"github.com/legalsift/legalsift/internal/contract"
)

const sqliteDDL = `
CREATE TABLE IF NOT EXISTS documents (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT NOT NULL,
	filename           TEXT NOT NULL,
	risk_score         INTEGER NOT NULL DEFAULT 0,
	risky_chunks_count INTEGER NOT NULL DEFAULT 0,
	total_chunks       INTEGER NOT NULL DEFAULT 0,
	status             TEXT NOT NULL,
	error_message      TEXT,
	upload_date        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_user ON documents (user_id, upload_date);

CREATE TABLE IF NOT EXISTS risky_chunks (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id      TEXT NOT NULL,
	chunk_id         INTEGER NOT NULL,
	chunk_text       TEXT NOT NULL,
	risk_label       TEXT NOT NULL,
	confidence_score REAL NOT NULL,
	severity         TEXT NOT NULL,
	llm_analysis     TEXT
);
CREATE INDEX IF NOT EXISTS idx_risky_chunks_document ON risky_chunks (document_id);

CREATE TABLE IF NOT EXISTS chat_history (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id       TEXT NOT NULL,
	document_id   TEXT NOT NULL,
	role          TEXT NOT NULL,
	content       TEXT NOT NULL,
	message_index INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_history_doc ON chat_history (user_id, document_id, message_index);
`

// SQLiteGateway is the local-mode persistence backend: a single-file database
// next to the blob tree, used when no Postgres DSN is configured.
type SQLiteGateway struct {
	db     *sql.DB
	blobs  *Blobs
	logger *slog.Logger
}

func NewSQLiteGateway(ctx context.Context, path string, blobs *Blobs, logger *slog.Logger) (*SQLiteGateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent pipeline saves.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	logger.Info("store.sqlite.ready", "path", filepath.Clean(path))
	return &SQLiteGateway{db: db, blobs: blobs, logger: logger}, nil
}

func (g *SQLiteGateway) SaveDocument(ctx context.Context, doc DocumentRecord) error {
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO documents (id, user_id, filename, risk_score, risky_chunks_count, total_chunks, status, upload_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			risk_score = excluded.risk_score,
			risky_chunks_count = excluded.risky_chunks_count,
			total_chunks = excluded.total_chunks,
			status = excluded.status`,
		doc.ID, doc.OwnerID, doc.FileName, doc.RiskScore,
		doc.RiskyChunksCount, doc.TotalChunks, doc.Status, doc.UploadDate.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return common.NewAppError("DB_ERROR", "failed to save document", err)
	}
	return nil
}

func (g *SQLiteGateway) UpdateDocumentStatus(ctx context.Context, documentID, status, errorMessage string) error {
	var err error
	if errorMessage != "" {
		_, err = g.db.ExecContext(ctx,
			`UPDATE documents SET status = ?, error_message = ? WHERE id = ?`,
			status, errorMessage, documentID)
	} else {
		_, err = g.db.ExecContext(ctx,
			`UPDATE documents SET status = ? WHERE id = ?`,
			status, documentID)
	}
	if err != nil {
		return common.NewAppError("DB_ERROR", "failed to update document status", err)
	}
	return nil
}

func (g *SQLiteGateway) GetDocument(ctx context.Context, documentID string) (*DocumentRecord, error) {
	row := g.db.QueryRowContext(ctx, `
		SELECT id, user_id, filename, risk_score, risky_chunks_count, total_chunks, status, COALESCE(error_message, ''), upload_date
		FROM documents WHERE id = ?`, documentID)

	doc, err := scanDocument(row.Scan)
	if err == sql.ErrNoRows {
		return nil, common.NotFoundError("document not found")
	}
	if err != nil {
		return nil, common.NewAppError("DB_ERROR", "failed to load document", err)
	}
	return doc, nil
}

func (g *SQLiteGateway) ListDocuments(ctx context.Context, ownerID string) ([]DocumentRecord, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT id, user_id, filename, risk_score, risky_chunks_count, total_chunks, status, COALESCE(error_message, ''), upload_date
		FROM documents WHERE user_id = ? ORDER BY upload_date DESC`, ownerID)
	if err != nil {
		return nil, common.NewAppError("DB_ERROR", "failed to list documents", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []DocumentRecord
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, common.NewAppError("DB_ERROR", "failed to scan document", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func scanDocument(scan func(...any) error) (*DocumentRecord, error) {
	var doc DocumentRecord
	var uploaded string
	if err := scan(&doc.ID, &doc.OwnerID, &doc.FileName, &doc.RiskScore,
		&doc.RiskyChunksCount, &doc.TotalChunks, &doc.Status, &doc.ErrorMessage, &uploaded); err != nil {
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339, uploaded); err == nil {
		doc.UploadDate = t
	}
	return &doc, nil
}

func (g *SQLiteGateway) SaveRiskyChunks(ctx context.Context, documentID string, risky []contract.Chunk, advisories []contract.Advisory) (int, error) {
	records := riskyRecords(documentID, risky, advisories)
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, common.NewAppError("DB_ERROR", "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range records {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO risky_chunks (document_id, chunk_id, chunk_text, risk_label, confidence_score, severity, llm_analysis)
			VALUES (?, ?, ?, ?, ?, ?, NULLIF(?, ''))`,
			r.DocumentID, r.ChunkID, r.ChunkText, r.RiskLabel, r.Confidence, r.Severity, r.LLMAnalysis); err != nil {
			return 0, common.NewAppError("DB_ERROR", "failed to save risky chunk", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, common.NewAppError("DB_ERROR", "failed to commit risky chunks", err)
	}
	return len(records), nil
}

func (g *SQLiteGateway) GetRiskyChunks(ctx context.Context, documentID string) ([]RiskyChunkRecord, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT document_id, chunk_id, chunk_text, risk_label, confidence_score, severity, COALESCE(llm_analysis, '')
		FROM risky_chunks WHERE document_id = ? ORDER BY chunk_id`, documentID)
	if err != nil {
		return nil, common.NewAppError("DB_ERROR", "failed to load risky chunks", err)
	}
	defer func() { _ = rows.Close() }()

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

func (g *SQLiteGateway) ReplaceChatHistory(ctx context.Context, ownerID, documentID string, messages []ChatMessage) (int, error) {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, common.NewAppError("DB_ERROR", "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chat_history WHERE user_id = ? AND document_id = ?`,
		ownerID, documentID); err != nil {
		return 0, common.NewAppError("DB_ERROR", "failed to clear chat history", err)
	}
	for i, msg := range messages {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chat_history (user_id, document_id, role, content, message_index)
			VALUES (?, ?, ?, ?, ?)`,
			ownerID, documentID, msg.Role, msg.Content, i); err != nil {
			return 0, common.NewAppError("DB_ERROR", "failed to save chat message", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, common.NewAppError("DB_ERROR", "failed to commit chat history", err)
	}
	return len(messages), nil
}

func (g *SQLiteGateway) GetChatHistory(ctx context.Context, ownerID, documentID string) ([]ChatMessage, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT role, content, message_index FROM chat_history
		WHERE user_id = ? AND document_id = ? ORDER BY message_index`, ownerID, documentID)
	if err != nil {
		return nil, common.NewAppError("DB_ERROR", "failed to load chat history", err)
	}
	defer func() { _ = rows.Close() }()

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

func (g *SQLiteGateway) DeleteChatHistory(ctx context.Context, ownerID, documentID string) error {
	if _, err := g.db.ExecContext(ctx,
		`DELETE FROM chat_history WHERE user_id = ? AND document_id = ?`,
		ownerID, documentID); err != nil {
		return common.NewAppError("DB_ERROR", "failed to delete chat history", err)
	}
	return nil
}

func (g *SQLiteGateway) UploadIndex(ctx context.Context, ownerID, documentID, localPath string) (string, error) {
	return g.blobs.PutFile(ownerID, documentID, BlobIndex, localPath)
}

func (g *SQLiteGateway) UploadReport(ctx context.Context, ownerID, documentID, content string) (string, error) {
	return g.blobs.PutBytes(ownerID, documentID, BlobReport, []byte(content))
}

func (g *SQLiteGateway) GetReport(ctx context.Context, ownerID, documentID string) (string, error) {
	data, err := g.blobs.Get(ownerID, documentID, BlobReport)
	if err != nil {
		return "", common.NotFoundError("report not found")
	}
	return string(data), nil
}

func (g *SQLiteGateway) DeleteOwnerData(ctx context.Context, ownerID string) (int, error) {
	if _, err := g.db.ExecContext(ctx,
		`DELETE FROM chat_history WHERE user_id = ?`, ownerID); err != nil {
		return 0, common.NewAppError("DB_ERROR", "failed to delete chat history", err)
	}
	if _, err := g.db.ExecContext(ctx, `
		DELETE FROM risky_chunks WHERE document_id IN
			(SELECT id FROM documents WHERE user_id = ?)`, ownerID); err != nil {
		return 0, common.NewAppError("DB_ERROR", "failed to delete risky chunks", err)
	}
	res, err := g.db.ExecContext(ctx, `DELETE FROM documents WHERE user_id = ?`, ownerID)
	if err != nil {
		return 0, common.NewAppError("DB_ERROR", "failed to delete documents", err)
	}
	if err := g.blobs.DeleteOwner(ownerID); err != nil {
		g.logger.Warn("store.blob_purge_error", "owner_id", ownerID, "error", err)
	}

	purged64, _ := res.RowsAffected()
	purged := int(purged64)
	g.logger.Info("store.owner_purged", "owner_id", ownerID, "documents", purged)
	return purged, nil
}

func (g *SQLiteGateway) Close() {
	if err := g.db.Close(); err != nil {
		g.logger.Warn("store.sqlite.close_error", "error", err)
	}
}
