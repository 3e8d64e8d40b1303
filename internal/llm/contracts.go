package llm

import "context"

// Message roles matching the chat-completions convention.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat-completions conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatClient is the interface the advisory and conversational stages depend
// on. Implementations must be safe for concurrent use across jobs.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}
