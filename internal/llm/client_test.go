package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, status int, response string, captured *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
}

func testClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:     baseURL,
		Model:       "gpt-4o-mini",
		APIKey:      "test-key",
		Temperature: 0.7,
		MaxTokens:   800,
	}, nil)
}

func TestClient_Chat(t *testing.T) {
	var captured map[string]any
	srv := chatServer(t, http.StatusOK,
		`{"choices":[{"message":{"content":"  the answer  "}}]}`, &captured)
	defer srv.Close()

	answer, err := testClient(srv.URL).Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "question"},
	})
	require.NoError(t, err)
	assert.Equal(t, "the answer", answer)

	assert.Equal(t, "gpt-4o-mini", captured["model"])
	assert.InDelta(t, 0.7, captured["temperature"], 1e-6)
	assert.EqualValues(t, 800, captured["max_tokens"])
	messages := captured["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
}

func TestClient_ChatOmitsMaxTokensWhenUnset(t *testing.T) {
	var captured map[string]any
	srv := chatServer(t, http.StatusOK, `{"choices":[{"message":{"content":"ok"}}]}`, &captured)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Model: "m", APIKey: "test-key"}, nil)
	_, err := c.Chat(context.Background(), []Message{{Role: RoleUser, Content: "q"}})
	require.NoError(t, err)
	assert.NotContains(t, captured, "max_tokens")
}

func TestClient_ChatBadStatus(t *testing.T) {
	srv := chatServer(t, http.StatusTooManyRequests, `{"error":"rate limited"}`, nil)
	defer srv.Close()

	_, err := testClient(srv.URL).Chat(context.Background(), []Message{{Role: RoleUser, Content: "q"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestClient_ChatNoChoices(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"choices":[]}`, nil)
	defer srv.Close()

	_, err := testClient(srv.URL).Chat(context.Background(), []Message{{Role: RoleUser, Content: "q"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestClient_ChatMalformedBody(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `not json`, nil)
	defer srv.Close()

	_, err := testClient(srv.URL).Chat(context.Background(), []Message{{Role: RoleUser, Content: "q"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode chat response")
}
