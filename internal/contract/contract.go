// Package contract holds the domain types shared across pipeline stages:
// document chunks, classifier predictions, and advisory records.
package contract

import "math"

// Prediction is the classifier's verdict for a single chunk.
type Prediction struct {
	Label      string  `json:"label"`
	LabelID    int     `json:"label_id"`
	Confidence float32 `json:"confidence"`
}

// Chunk is a contiguous span of extracted document text. The ordinal ID is
// assigned once at chunking time and never reused; the Classification Stage
// enriches the chunk in place with its prediction.
type Chunk struct {
	ID         int         `json:"chunk_id"`
	Text       string      `json:"text"`
	Prediction *Prediction `json:"prediction,omitempty"`
}

// Advisory is the per-risky-chunk output of the Advisory Stage. Err is set
// when the model call for this chunk failed; such entries carry only the
// detection fields and clause.
type Advisory struct {
	ChunkID    int     `json:"chunk_id"`
	Clause     string  `json:"original_clause"`
	RiskType   string  `json:"risk_type"`
	Confidence float32 `json:"confidence"`
	Analysis   string  `json:"llm_analysis,omitempty"`
	Err        string  `json:"error,omitempty"`
}

// Degraded reports whether the advisory carries an error marker instead of
// model analysis.
func (a Advisory) Degraded() bool {
	return a.Err != ""
}

// RiskScore derives the document risk score as a rounded percentage of risky
// chunks. Zero when the document produced no chunks at all.
func RiskScore(riskyCount, totalCount int) int {
	if totalCount == 0 {
		return 0
	}
	return int(math.Round(100 * float64(riskyCount) / float64(totalCount)))
}
