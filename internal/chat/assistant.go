package chat

import (
	"context"
	"log/slog"

	"github.com/legalsift/legalsift/internal/llm"
)

const assistantSystemPrompt = `You are LegalSift's AI Assistant, an expert legal advisor specialized in contract analysis.

Your key capabilities:
1. **Contract Analysis**: Help users understand contract clauses, identify risks, and suggest negotiations
2. **App Guidance**: Guide users through LegalSift features (document upload, risk analysis, chat)
3. **Legal Advice**: Provide general legal insights (not replacing professional lawyers)
4. **Risk Assessment**: Explain detected risks and their implications

Important Guidelines:
- Be concise but thorough in explanations
- Use simple language to explain legal concepts
- Always remind users that AI analysis complements human review
- Guide users to professional lawyers for critical decisions
- Focus on the document context when available
- Help users navigate LegalSift features

Current LegalSift Features Available:
- Upload & analyze PDF contracts
- Get AI-powered risk scores and risk detection
- Chat about specific clauses and negotiate terms
- Download detailed analysis reports
- Access dashboard with document history

When discussing risks:
- Explain severity levels (low, medium, high)
- Suggest negotiation points
- Recommend professional review for high-risk items
- Provide context on why something is flagged

Remember: You're here to empower users with information, not to replace legal professionals.`

// Assistant is the general application chatbot: no retrieval, optional
// document context appended to the system prompt.
type Assistant struct {
	client llm.ChatClient
	logger *slog.Logger
}

func NewAssistant(client llm.ChatClient, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{client: client, logger: logger}
}

// Chat runs one assistant turn. documentContext, when non-empty, is appended
// to the system prompt so the assistant can ground answers in the user's
// current document.
func (a *Assistant) Chat(ctx context.Context, message string, history []Turn, documentContext string) (string, error) {
	system := assistantSystemPrompt
	if documentContext != "" {
		system += "\n\nCURRENT DOCUMENT CONTEXT:\n" + documentContext
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, t := range history {
		messages = append(messages, llm.Message{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: message})

	answer, err := a.client.Chat(ctx, messages)
	if err != nil {
		a.logger.Error("assistant.chat_error", "error", err)
		return "", err
	}
	return answer, nil
}

// SuggestedQuestions returns starter questions for a document conversation.
func SuggestedQuestions() []string {
	return []string{
		"What are the key risks in this contract?",
		"Explain the liability clause",
		"Is the termination clause fair?",
		"What should I negotiate?",
		"What are my obligations under this contract?",
		"Are there any hidden fees or charges?",
		"What happens if I want to cancel?",
		"Is this contract favorable to both parties?",
	}
}
