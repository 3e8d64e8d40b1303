package chat

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legalsift/legalsift/internal/contract"
	"github.com/legalsift/legalsift/internal/index"
	"github.com/legalsift/legalsift/internal/llm"
)

type stubEmbedder struct{}

// Embed maps each text onto a unit vector keyed by its first byte, so texts
// sharing a first letter rank as similar.
func (stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, txt := range texts {
		v := make([]float32, 4)
		if len(txt) > 0 {
			v[int(txt[0])%4] = 1
		}
		out[i] = v
	}
	return out, nil
}

type captureChat struct {
	messages []llm.Message
	reply    string
}

func (c *captureChat) Chat(_ context.Context, messages []llm.Message) (string, error) {
	c.messages = messages
	return c.reply, nil
}

func buildIndex(t *testing.T, texts ...string) *index.Index {
	t.Helper()
	chunks := make([]contract.Chunk, len(texts))
	for i, txt := range texts {
		chunks[i] = contract.Chunk{ID: i, Text: txt}
	}
	ix, err := index.Build(context.Background(), stubEmbedder{}, "test-model", chunks)
	require.NoError(t, err)
	return ix
}

func TestIsRiskQuery(t *testing.T) {
	assert.True(t, IsRiskQuery("What are the risks here?"))
	assert.True(t, IsRiskQuery("any DANGER in clause 3?"))
	assert.True(t, IsRiskQuery("is this a problem?"))
	assert.False(t, IsRiskQuery("summarize the payment terms"))
	assert.False(t, IsRiskQuery(""))
}

func TestClampHistory(t *testing.T) {
	var history []Turn
	for i := 0; i < 10; i++ {
		history = append(history, Turn{Role: "user", Content: fmt.Sprintf("turn %d", i)})
	}

	clamped := clampHistory(history)
	require.Len(t, clamped, 6)
	assert.Equal(t, "turn 4", clamped[0].Content)
	assert.Equal(t, "turn 9", clamped[5].Content)

	short := history[:3]
	assert.Len(t, clampHistory(short), 3)
}

func TestRAG_PlainQueryUsesContextPrompt(t *testing.T) {
	client := &captureChat{reply: "the term is 12 months"}
	r := NewRAG(client, nil)
	ix := buildIndex(t, "term clause", "payment clause", "notice clause")

	answer, err := r.Answer(context.Background(), ix, nil, "what is the term?", nil)
	require.NoError(t, err)
	assert.Equal(t, "the term is 12 months", answer)

	require.NotEmpty(t, client.messages)
	system := client.messages[0]
	assert.Equal(t, llm.RoleSystem, system.Role)
	assert.Contains(t, system.Content, "Contract Context:")
	assert.NotContains(t, system.Content, "AI-DETECTED MAJOR RISKS")

	last := client.messages[len(client.messages)-1]
	assert.Equal(t, llm.RoleUser, last.Role)
	assert.Equal(t, "what is the term?", last.Content)
}

func TestRAG_RiskQuerySurfacesAdvisoriesFirst(t *testing.T) {
	client := &captureChat{reply: "risk summary"}
	r := NewRAG(client, nil)
	ix := buildIndex(t, "termination clause", "liability clause")

	advisories := []contract.Advisory{
		{
			ChunkID:    1,
			Clause:     "Company may terminate at will.",
			RiskType:   "unilateral_termination",
			Confidence: 0.9,
			Analysis:   "one-sided termination right",
		},
		{ChunkID: 2, RiskType: "liability", Confidence: 0.8, Err: "model timeout"},
	}

	_, err := r.Answer(context.Background(), ix, advisories, "what risks does this have?", nil)
	require.NoError(t, err)

	system := client.messages[0].Content
	assert.Contains(t, system, "AI-DETECTED MAJOR RISKS")
	assert.Contains(t, system, "MAJOR RISK #1 (AI-DETECTED)")
	assert.Contains(t, system, "unilateral_termination")
	assert.Contains(t, system, "Company may terminate at will.")
	assert.Contains(t, system, "one-sided termination right")
	// A degraded advisory still gets its own entry, minus the error text.
	assert.Contains(t, system, "MAJOR RISK #2")
	assert.NotContains(t, system, "model timeout")

	// Detected risks come before the retrieved contract context.
	risksAt := strings.Index(system, "AI-DETECTED MAJOR RISKS")
	contextAt := strings.Index(system, "ADDITIONAL CONTRACT CONTEXT")
	assert.Less(t, risksAt, contextAt)
	assert.Contains(t, system, "Additional Potential Risks (Not AI-Detected)")
}

func TestRAG_DegradedAdvisoryStillSurfacesRisk(t *testing.T) {
	client := &captureChat{reply: "risk summary"}
	r := NewRAG(client, nil)
	ix := buildIndex(t, "liability clause", "payment clause")

	advisories := []contract.Advisory{
		{
			ChunkID:    0,
			Clause:     "Supplier bears unlimited liability.",
			RiskType:   "unlimited_liability",
			Confidence: 0.85,
			Err:        "model timeout",
		},
	}

	_, err := r.Answer(context.Background(), ix, advisories, "what are the risks?", nil)
	require.NoError(t, err)

	system := client.messages[0].Content
	assert.Contains(t, system, "MAJOR RISK #1 (AI-DETECTED)")
	assert.Contains(t, system, "unlimited_liability")
	assert.Contains(t, system, "Supplier bears unlimited liability.")
	assert.Contains(t, system, "No stored detailed advisory for this clause.")
	assert.NotContains(t, system, "model timeout")
}

func TestRAG_RiskQueryWithoutAdvisoriesStaysPlain(t *testing.T) {
	client := &captureChat{reply: "ok"}
	r := NewRAG(client, nil)
	ix := buildIndex(t, "a clause")

	_, err := r.Answer(context.Background(), ix, nil, "any risks?", nil)
	require.NoError(t, err)
	assert.NotContains(t, client.messages[0].Content, "AI-DETECTED MAJOR RISKS")
}

func TestRAG_HistoryIsClamped(t *testing.T) {
	client := &captureChat{reply: "ok"}
	r := NewRAG(client, nil)
	ix := buildIndex(t, "a clause")

	var history []Turn
	for i := 0; i < 9; i++ {
		role := llm.RoleUser
		if i%2 == 1 {
			role = llm.RoleAssistant
		}
		history = append(history, Turn{Role: role, Content: fmt.Sprintf("turn %d", i)})
	}

	_, err := r.Answer(context.Background(), ix, nil, "next question", history)
	require.NoError(t, err)

	// system + 6 history turns + current question
	require.Len(t, client.messages, 8)
	assert.Equal(t, "turn 3", client.messages[1].Content)
	assert.Equal(t, "next question", client.messages[7].Content)
}

func TestAssistant_SystemPromptAndContext(t *testing.T) {
	client := &captureChat{reply: "hello"}
	a := NewAssistant(client, nil)

	_, err := a.Chat(context.Background(), "help me", nil, "Document: nda.pdf\nRisk Score: 40%")
	require.NoError(t, err)

	system := client.messages[0].Content
	assert.Contains(t, system, "LegalSift's AI Assistant")
	assert.Contains(t, system, "CURRENT DOCUMENT CONTEXT:")
	assert.Contains(t, system, "Document: nda.pdf")
}

func TestAssistant_NoContextOmitsBlock(t *testing.T) {
	client := &captureChat{reply: "hello"}
	a := NewAssistant(client, nil)

	_, err := a.Chat(context.Background(), "help me", nil, "")
	require.NoError(t, err)
	assert.NotContains(t, client.messages[0].Content, "CURRENT DOCUMENT CONTEXT:")
}

func TestSuggestedQuestions(t *testing.T) {
	qs := SuggestedQuestions()
	require.NotEmpty(t, qs)
	assert.Contains(t, qs, "What are the key risks in this contract?")
}
