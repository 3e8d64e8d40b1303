// Package chat implements the conversational surfaces: per-document RAG chat
// grounded in the search index and stored advisories, and the general
// application assistant.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/legalsift/legalsift/internal/contract"
	"github.com/legalsift/legalsift/internal/index"
	"github.com/legalsift/legalsift/internal/llm"
)

const (
	// retrievalK is how many index entries ground every answer.
	retrievalK = 4
	// historyWindow is how many prior turns are replayed to the model.
	historyWindow = 6
)

// riskKeywords trigger the risk-first prompt when any appears in the query.
var riskKeywords = []string{"risk", "risky", "danger", "problem", "issue", "concern", "warning"}

// IsRiskQuery reports whether the query asks about risks.
func IsRiskQuery(query string) bool {
	q := strings.ToLower(query)
	for _, kw := range riskKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// Turn is one prior exchange turn in a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RAG answers questions about one analyzed document. It always retrieves
// contract context from the index; when the query is about risks and stored
// advisories exist, those are surfaced ahead of everything else.
type RAG struct {
	client llm.ChatClient
	logger *slog.Logger
}

func NewRAG(client llm.ChatClient, logger *slog.Logger) *RAG {
	if logger == nil {
		logger = slog.Default()
	}
	return &RAG{client: client, logger: logger}
}

// Answer runs one chat turn against the document.
func (r *RAG) Answer(ctx context.Context, ix *index.Index, advisories []contract.Advisory, query string, history []Turn) (string, error) {
	start := time.Now()

	retrieved, err := ix.Search(ctx, query, retrievalK)
	if err != nil {
		return "", fmt.Errorf("retrieve context: %w", err)
	}
	contextTexts := make([]string, 0, len(retrieved))
	for _, c := range retrieved {
		contextTexts = append(contextTexts, c.Text)
	}
	contractContext := strings.Join(contextTexts, "\n\n")

	riskQuery := IsRiskQuery(query)
	var system string
	if riskQuery && len(advisories) > 0 {
		system = riskSystemPrompt(advisories, contractContext)
	} else {
		system = plainSystemPrompt(contractContext)
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, t := range clampHistory(history) {
		messages = append(messages, llm.Message{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: query})

	answer, err := r.client.Chat(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("chat model: %w", err)
	}

	r.logger.Info("chat.answer.ok",
		"risk_query", riskQuery,
		"retrieved", len(retrieved),
		"history_turns", len(history),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return answer, nil
}

func clampHistory(history []Turn) []Turn {
	if len(history) <= historyWindow {
		return history
	}
	return history[len(history)-historyWindow:]
}

func plainSystemPrompt(contractContext string) string {
	return fmt.Sprintf(`You are an expert legal advisor analyzing a contract.

Contract Context:
%s

Answer the user's question based on this context:`, contractContext)
}

func riskSystemPrompt(advisories []contract.Advisory, contractContext string) string {
	sep := strings.Repeat("=", 70)
	line := strings.Repeat("─", 71)
	thick := strings.Repeat("═", 71)

	var risks []string
	for n, adv := range advisories {
		// A failed advisory call still leaves a detected risk; present it
		// with the fallback instruction instead of dropping it.
		analysis := adv.Analysis
		if adv.Degraded() || analysis == "" {
			analysis = "No stored detailed advisory for this clause. Summarize why this clause is risky and what the parties should negotiate."
		}
		risks = append(risks, fmt.Sprintf(`
%s
MAJOR RISK #%d (AI-DETECTED)
%s

Risk Type: %s
Confidence: %.1f%%
Chunk ID: %d

ORIGINAL RISKY CLAUSE:
%s
%s
%s

DETAILED ANALYSIS:
%s
`, thick, n+1, thick, adv.RiskType, adv.Confidence*100, adv.ChunkID, line, adv.Clause, line, analysis))
	}

	return fmt.Sprintf(`You are an expert legal advisor analyzing a contract.

%s
AI-DETECTED MAJOR RISKS (THESE MUST BE MENTIONED FIRST!)
%s

%s

%s
ADDITIONAL CONTRACT CONTEXT (For finding other potential risks)
%s
%s

%s
INSTRUCTIONS FOR YOUR RESPONSE:
%s

When the user asks about risks, you MUST:

1. **FIRST:** List ALL the MAJOR RISKS detected by the AI model above
   - Include the risk type, confidence, and chunk ID
   - Show the original risky clause
   - Explain the analysis

2. **THEN:** Analyze the additional contract context for any OTHER risks not detected by AI
   - Clearly label these as "Additional Potential Risks (Not AI-Detected)"
   - Explain why these might also be concerning

3. **FORMAT:** Use clear sections:
   - "🚨 MAJOR RISKS DETECTED BY AI MODEL"
   - "⚠️ ADDITIONAL POTENTIAL RISKS"

Answer the user's question following these instructions:`,
		sep, sep, strings.Join(risks, "\n"), sep, sep, contractContext, sep, sep)
}
