// Package store is the persistence gateway: document metadata, risky-chunk
// records, and chat history in a relational store, with the search index and
// report kept as blobs. The pipeline treats every gateway call as
// best-effort; the gateway itself reports errors and lets callers decide.
package store

import (
	"context"
	"time"

	"github.com/legalsift/legalsift/constants"
	"github.com/legalsift/legalsift/internal/contract"
)

// DocumentRecord is the durable metadata row for one analyzed document.
type DocumentRecord struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"user_id"`
	FileName         string    `json:"filename"`
	RiskScore        int       `json:"risk_score"`
	RiskyChunksCount int       `json:"risky_chunks_count"`
	TotalChunks      int       `json:"total_chunks"`
	Status           string    `json:"status"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	UploadDate       time.Time `json:"upload_date"`
}

// RiskyChunkRecord is the durable row for one flagged clause.
type RiskyChunkRecord struct {
	DocumentID  string  `json:"document_id"`
	ChunkID     int     `json:"chunk_id"`
	ChunkText   string  `json:"chunk_text"`
	RiskLabel   string  `json:"risk_label"`
	Confidence  float32 `json:"confidence_score"`
	Severity    string  `json:"severity"`
	LLMAnalysis string  `json:"llm_analysis,omitempty"`
}

// ChatMessage is one persisted conversation turn, ordered by MessageIndex.
type ChatMessage struct {
	Role         string `json:"role"`
	Content      string `json:"content"`
	MessageIndex int    `json:"message_index"`
}

// Gateway is the persistence surface the pipeline and HTTP handlers depend
// on. Implementations must be safe for concurrent use.
type Gateway interface {
	SaveDocument(ctx context.Context, doc DocumentRecord) error
	UpdateDocumentStatus(ctx context.Context, documentID, status, errorMessage string) error
	GetDocument(ctx context.Context, documentID string) (*DocumentRecord, error)
	ListDocuments(ctx context.Context, ownerID string) ([]DocumentRecord, error)

	SaveRiskyChunks(ctx context.Context, documentID string, risky []contract.Chunk, advisories []contract.Advisory) (int, error)
	GetRiskyChunks(ctx context.Context, documentID string) ([]RiskyChunkRecord, error)

	ReplaceChatHistory(ctx context.Context, ownerID, documentID string, messages []ChatMessage) (int, error)
	GetChatHistory(ctx context.Context, ownerID, documentID string) ([]ChatMessage, error)
	DeleteChatHistory(ctx context.Context, ownerID, documentID string) error

	UploadIndex(ctx context.Context, ownerID, documentID, localPath string) (string, error)
	UploadReport(ctx context.Context, ownerID, documentID, content string) (string, error)
	GetReport(ctx context.Context, ownerID, documentID string) (string, error)

	// DeleteOwnerData purges every row and blob belonging to the owner and
	// returns how many documents were removed.
	DeleteOwnerData(ctx context.Context, ownerID string) (int, error)

	Close()
}

// riskyRecords derives severity-annotated rows from the classified chunks,
// folding in stored analyses where an advisory exists for the chunk.
func riskyRecords(documentID string, risky []contract.Chunk, advisories []contract.Advisory) []RiskyChunkRecord {
	analyses := make(map[int]string, len(advisories))
	for _, adv := range advisories {
		if !adv.Degraded() {
			analyses[adv.ChunkID] = adv.Analysis
		}
	}

	records := make([]RiskyChunkRecord, 0, len(risky))
	for _, c := range risky {
		label := "Unknown"
		var confidence float32 = 0.5
		if c.Prediction != nil {
			label = c.Prediction.Label
			confidence = c.Prediction.Confidence
		}
		records = append(records, RiskyChunkRecord{
			DocumentID:  documentID,
			ChunkID:     c.ID,
			ChunkText:   c.Text,
			RiskLabel:   label,
			Confidence:  confidence,
			Severity:    constants.SeverityForConfidence(confidence),
			LLMAnalysis: analyses[c.ID],
		})
	}
	return records
}
