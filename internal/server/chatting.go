package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/legalsift/legalsift/constants"
	"github.com/legalsift/legalsift/internal/chat"
	"github.com/legalsift/legalsift/internal/common"
	"github.com/legalsift/legalsift/internal/index"
	"github.com/legalsift/legalsift/internal/store"
)

type chatRequest struct {
	DocumentID  string      `json:"document_id"`
	Message     string      `json:"message"`
	ChatHistory []chat.Turn `json:"chat_history,omitempty"`
}

type chatResponse struct {
	Response  string `json:"response"`
	Timestamp string `json:"timestamp"`
}

type chatbotRequest struct {
	Message     string      `json:"message"`
	ChatHistory []chat.Turn `json:"chat_history,omitempty"`
	DocumentID  string      `json:"document_id,omitempty"`
}

type chatbotResponse struct {
	Response    string   `json:"response"`
	Timestamp   string   `json:"timestamp"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// handleChat answers a question about one analyzed document via RAG.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, common.InvalidArgumentError("invalid request body"))
		return
	}
	if req.DocumentID == "" || strings.TrimSpace(req.Message) == "" {
		writeError(w, common.InvalidArgumentError("document_id and message are required"))
		return
	}
	ownerID := ownerFromRequest(r)

	if j := s.registry.Get(req.DocumentID); j != nil {
		if j.Status != constants.JobStatusCompleted {
			writeError(w, common.InvalidArgumentError("Document not processed yet"))
			return
		}
		if err := checkOwner(ownerID, j.OwnerID); err != nil {
			writeError(w, err)
			return
		}
		if j.Result == nil || j.Result.IndexPath == "" || !s.artifacts.Exists(j.Result.IndexPath) {
			writeError(w, common.InvalidArgumentError("Vector database not available for this document"))
			return
		}

		ix, err := index.Load(j.Result.IndexPath, s.embedder)
		if err != nil {
			s.logger.Error("server.index_load_error", "document_id", req.DocumentID, "error", err)
			writeError(w, common.InternalError("Failed to load document index"))
			return
		}
		answer, err := s.rag.Answer(r.Context(), ix, j.Result.Advisories, req.Message, req.ChatHistory)
		if err != nil {
			s.logger.Error("server.chat_error", "document_id", req.DocumentID, "error", err)
			writeError(w, common.InternalError("Chat failed"))
			return
		}
		writeJSON(w, http.StatusOK, chatResponse{
			Response:  answer,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	if s.gateway == nil {
		writeError(w, common.NotFoundError("Document not found"))
		return
	}
	doc, err := s.gateway.GetDocument(r.Context(), req.DocumentID)
	if err != nil {
		writeError(w, common.NotFoundError("Document not found"))
		return
	}
	if err := checkOwner(ownerID, doc.OwnerID); err != nil {
		writeError(w, err)
		return
	}
	// The staged index is gone once the job record is evicted; the durable
	// copy is served for download, not query.
	writeError(w, common.InvalidArgumentError("Document vector store not available. This document needs to be reprocessed."))
}

// handleChatbot runs the general assistant, optionally grounded in a resident
// document's risk summary.
func (s *Server) handleChatbot(w http.ResponseWriter, r *http.Request) {
	var req chatbotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, common.InvalidArgumentError("invalid request body"))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, common.InvalidArgumentError("message is required"))
		return
	}

	documentContext := ""
	if req.DocumentID != "" {
		documentContext = s.residentRiskSummary(req.DocumentID)
	}

	answer, err := s.assistant.Chat(r.Context(), req.Message, req.ChatHistory, documentContext)
	if err != nil {
		writeError(w, common.InternalErrorf("Chatbot error: %v", err))
		return
	}

	resp := chatbotResponse{
		Response:  answer,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if req.DocumentID == "" {
		resp.Suggestions = chat.SuggestedQuestions()
	}
	writeJSON(w, http.StatusOK, resp)
}

// residentRiskSummary builds a short context block from a completed resident
// job, or returns "" when none is available.
func (s *Server) residentRiskSummary(documentID string) string {
	j := s.registry.Get(documentID)
	if j == nil || j.Status != constants.JobStatusCompleted || j.Result == nil {
		return ""
	}
	res := j.Result

	var b strings.Builder
	b.WriteString("Document: " + res.FileName + "\n")
	b.WriteString("Risk Score: ")
	b.WriteString(strconv.Itoa(res.RiskScore))
	b.WriteString("%\n")
	b.WriteString("Risky Clauses: " + strconv.Itoa(res.RiskyChunks) + " / " + strconv.Itoa(res.TotalChunks) + "\n")

	var labels []string
	for _, c := range res.RiskyData {
		if len(labels) == 3 {
			break
		}
		if c.Prediction != nil {
			labels = append(labels, c.Prediction.Label)
		}
	}
	if len(labels) > 0 {
		b.WriteString("Key Risks: " + strings.Join(labels, ", "))
	}
	return b.String()
}

func (s *Server) handleChatbotSuggestions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": chat.SuggestedQuestions()})
}

func (s *Server) handleChatbotHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "ready": true})
}

type saveChatRequest struct {
	UserID     string      `json:"user_id"`
	DocumentID string      `json:"document_id"`
	Messages   []chat.Turn `json:"messages"`
}

// handleSaveChatHistory replaces the persisted conversation for a document.
func (s *Server) handleSaveChatHistory(w http.ResponseWriter, r *http.Request) {
	var req saveChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, common.InvalidArgumentError("invalid request body"))
		return
	}
	if req.UserID == "" || req.DocumentID == "" {
		writeError(w, common.InvalidArgumentError("user_id and document_id are required"))
		return
	}
	if tokenOwner := ownerFromRequest(r); tokenOwner != "" && tokenOwner != req.UserID {
		writeError(w, common.ForbiddenError("Unauthorized: Can only save chat history for own documents"))
		return
	}
	if s.gateway == nil {
		writeError(w, common.InternalError("Persistence is not configured"))
		return
	}

	messages := make([]store.ChatMessage, 0, len(req.Messages))
	for i, m := range req.Messages {
		messages = append(messages, store.ChatMessage{Role: m.Role, Content: m.Content, MessageIndex: i})
	}
	count, err := s.gateway.ReplaceChatHistory(r.Context(), req.UserID, req.DocumentID, messages)
	if err != nil {
		writeError(w, common.InternalErrorf("Error saving chat history: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Saved " + strconv.Itoa(count) + " messages",
		"count":   count,
	})
}

func (s *Server) handleGetChatHistory(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	documentID := chi.URLParam(r, "documentID")

	if tokenOwner := ownerFromRequest(r); tokenOwner != "" && tokenOwner != ownerID {
		writeError(w, common.ForbiddenError("Unauthorized: Can only retrieve own chat history"))
		return
	}
	if s.gateway == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "messages": []any{}, "total": 0})
		return
	}

	messages, err := s.gateway.GetChatHistory(r.Context(), ownerID, documentID)
	if err != nil {
		writeError(w, common.InternalErrorf("Error retrieving chat history: %v", err))
		return
	}
	if messages == nil {
		messages = []store.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"messages": messages,
		"total":    len(messages),
	})
}

func (s *Server) handleDeleteChatHistory(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	documentID := chi.URLParam(r, "documentID")

	if tokenOwner := ownerFromRequest(r); tokenOwner != "" && tokenOwner != ownerID {
		writeError(w, common.ForbiddenError("Unauthorized: Can only delete own chat history"))
		return
	}
	if s.gateway == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": "Chat history deleted"})
		return
	}

	if err := s.gateway.DeleteChatHistory(r.Context(), ownerID, documentID); err != nil {
		writeError(w, common.InternalErrorf("Error deleting chat history: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": "Chat history deleted"})
}
