package classify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/legalsift/legalsift/internal/contract"
)

// Policy decides which predictions count as risky.
type Policy struct {
	// RiskyThreshold is the minimum confidence for a non-safe label to be
	// treated as a finding.
	RiskyThreshold float32
	// SafeLabelID is the label the model assigns to unremarkable clauses.
	SafeLabelID int
}

// Partitioner runs the classifier over a chunk set and splits it by the
// policy. Chunks are enriched in place with their predictions.
type Partitioner struct {
	classifier Classifier
	policy     Policy
	logger     *slog.Logger
}

func NewPartitioner(classifier Classifier, policy Policy, logger *slog.Logger) *Partitioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Partitioner{classifier: classifier, policy: policy, logger: logger}
}

// Partition classifies every chunk and splits the set into risky and safe.
// Every input chunk lands in exactly one of the two outputs.
func (p *Partitioner) Partition(ctx context.Context, chunks []contract.Chunk) (risky, safe []contract.Chunk, err error) {
	if len(chunks) == 0 {
		return nil, nil, nil
	}
	start := time.Now()

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	preds, err := p.classifier.Classify(ctx, texts)
	if err != nil {
		return nil, nil, fmt.Errorf("classify chunks: %w", err)
	}

	for i := range chunks {
		pred := preds[i]
		chunks[i].Prediction = &pred
		if p.IsRisky(pred) {
			risky = append(risky, chunks[i])
		} else {
			safe = append(safe, chunks[i])
		}
	}

	p.logger.Info("classify.partition.ok",
		"chunks", len(chunks),
		"risky", len(risky),
		"safe", len(safe),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return risky, safe, nil
}

// IsRisky applies the partition policy: a finding needs both a non-safe label
// and confidence at or above the threshold.
func (p *Partitioner) IsRisky(pred contract.Prediction) bool {
	return pred.LabelID != p.policy.SafeLabelID && pred.Confidence >= p.policy.RiskyThreshold
}
