package job

import (
	"time"

	"github.com/legalsift/legalsift/constants"
	"github.com/legalsift/legalsift/internal/contract"
)

// Job is the unit of work tracked by the coordinator. A job record is mutated
// only by the single background task running its pipeline; readers always get
// a snapshot copy from the registry.
type Job struct {
	ID        string
	OwnerID   string
	FileName  string
	CreatedAt time.Time

	Status   constants.JobStatus
	Progress int
	Stage    string

	// Result is set exactly when Status is completed; Error exactly when failed.
	Result *Result
	Error  string
}

// Result is the immutable snapshot of a completed analysis. Chunk data is
// kept in memory for conversational follow-up after the on-disk artifacts
// have been deleted.
type Result struct {
	DocumentID    string               `json:"document_id"`
	OwnerID       string               `json:"user_id,omitempty"`
	FileName      string               `json:"file_name"`
	UploadDate    time.Time            `json:"upload_date"`
	RiskScore     int                  `json:"risk_score"`
	TotalChunks   int                  `json:"total_chunks"`
	RiskyChunks   int                  `json:"risky_chunks"`
	SafeChunks    int                  `json:"safe_chunks"`
	ReportContent string               `json:"report_content"`
	RiskyData     []contract.Chunk     `json:"risky_chunks_data"`
	SafeData      []contract.Chunk     `json:"safe_chunks_data"`
	Advisories    []contract.Advisory  `json:"advisories,omitempty"`
	IndexPath     string               `json:"index_path,omitempty"`
}

// IsDone reports whether the job reached a terminal state.
func (j *Job) IsDone() bool {
	return j.Status.IsTerminal()
}

// clone returns a deep-enough copy for snapshot reads. Result is immutable
// once set, so sharing the pointer is safe.
func (j *Job) clone() *Job {
	cp := *j
	return &cp
}
