// Package advisory is the advisory stage: each risky clause goes to the chat
// model for a structured analysis, and the results render into the final
// markdown report.
package advisory

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/legalsift/legalsift/internal/contract"
	"github.com/legalsift/legalsift/internal/llm"
)

// maxClauseChars caps how much of a clause goes into the model prompt.
const maxClauseChars = 1000

// Advisor generates per-clause analyses through a chat model.
type Advisor struct {
	client llm.ChatClient
	logger *slog.Logger
}

func NewAdvisor(client llm.ChatClient, logger *slog.Logger) *Advisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Advisor{client: client, logger: logger}
}

// Generate produces one advisory per risky chunk, in input order. A failed
// model call degrades that chunk's advisory to detection fields plus an error
// marker; it never fails the batch.
func (a *Advisor) Generate(ctx context.Context, risky []contract.Chunk) []contract.Advisory {
	advisories := make([]contract.Advisory, 0, len(risky))
	for i, chunk := range risky {
		adv := a.analyze(ctx, chunk)
		advisories = append(advisories, adv)
		if adv.Degraded() {
			a.logger.Warn("advisory.degraded",
				"chunk_id", chunk.ID,
				"position", fmt.Sprintf("%d/%d", i+1, len(risky)),
				"error", adv.Err,
			)
		}
	}
	return advisories
}

func (a *Advisor) analyze(ctx context.Context, chunk contract.Chunk) contract.Advisory {
	riskType := "Unknown"
	var confidence float32
	if chunk.Prediction != nil {
		riskType = chunk.Prediction.Label
		confidence = chunk.Prediction.Confidence
	}
	clause := TruncateClause(chunk.Text)

	adv := contract.Advisory{
		ChunkID:    chunk.ID,
		Clause:     clause,
		RiskType:   riskType,
		Confidence: confidence,
	}

	start := time.Now()
	analysis, err := a.client.Chat(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: clausePrompt(riskType, confidence, clause)},
	})
	if err != nil {
		adv.Err = err.Error()
		return adv
	}

	adv.Analysis = analysis
	a.logger.Debug("advisory.ok",
		"chunk_id", chunk.ID,
		"risk_type", riskType,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return adv
}

// TruncateClause limits clause text sent to the model and rendered in
// advisories. The cut backs up to a rune boundary so multibyte characters
// common in legal text, section signs and curly quotes, are never split.
func TruncateClause(text string) string {
	if len(text) <= maxClauseChars {
		return text
	}
	cut := maxClauseChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

func clausePrompt(riskType string, confidence float32, clause string) string {
	return fmt.Sprintf(`You are an expert legal advisor. Analyze this risky contract clause.

**Risk Type:** %s
**Confidence:** %.1f%%

**Clause:**
%s

Provide analysis using ONLY bullet points (no long sentences):

**1. WHY this clause is risky**
• (Brief bullet point 1)
• (Brief bullet point 2)
• (Brief bullet point 3 - if applicable)

**2. WHAT problems it could cause**
• (Risk consequence 1)
• (Risk consequence 2)
• (Risk consequence 3 - if applicable)

**3. WHO is disadvantaged**
• (Party affected 1 and why)
• (Party affected 2 and why - if applicable)

**4. SUGGESTED redlined version**
[Provide concise redline changes with bullet points explaining each change]

**5. ALTERNATIVE approach**
• Replace with approach 1
• Implement alternative 2
• Consider option 3`, riskType, confidence*100, clause)
}
