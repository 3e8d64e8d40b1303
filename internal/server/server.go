// Package server is the HTTP surface: upload intake, job polling, document
// queries, conversational endpoints, and account management, routed with chi.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/legalsift/legalsift/internal/artifact"
	"github.com/legalsift/legalsift/internal/chat"
	"github.com/legalsift/legalsift/internal/common"
	"github.com/legalsift/legalsift/internal/export"
	"github.com/legalsift/legalsift/internal/index"
	"github.com/legalsift/legalsift/internal/job"
	"github.com/legalsift/legalsift/internal/pipeline"
	"github.com/legalsift/legalsift/internal/store"
)

// Server bundles the handler dependencies. Gateway may be nil when no durable
// store is configured; handlers then serve resident jobs only.
type Server struct {
	cfg       common.ServerConfig
	registry  *job.Registry
	queue     *pipeline.Queue
	artifacts *artifact.Store
	gateway   store.Gateway
	embedder  index.Embedder
	rag       *chat.RAG
	assistant *chat.Assistant
	exporter  *export.Service
	logger    *slog.Logger
}

func New(
	cfg common.ServerConfig,
	registry *job.Registry,
	queue *pipeline.Queue,
	artifacts *artifact.Store,
	gateway store.Gateway,
	embedder index.Embedder,
	rag *chat.RAG,
	assistant *chat.Assistant,
	exporter *export.Service,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		registry:  registry,
		queue:     queue,
		artifacts: artifacts,
		gateway:   gateway,
		embedder:  embedder,
		rag:       rag,
		assistant: assistant,
		exporter:  exporter,
		logger:    logger,
	}
}

// Router assembles the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/health", s.handleHealth)
	r.Get("/", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Get("/job/{jobID}", s.handleJobStatus)

		r.Get("/documents", s.handleListDocuments)
		r.Get("/document-exists/{documentID}", s.handleDocumentExists)
		r.Get("/document/{documentID}", s.handleDocumentDetails)
		r.Get("/report/{documentID}", s.handleReport)
		r.Get("/export/{documentID}", s.handleExport)

		r.Post("/chat", s.handleChat)
		r.Post("/chatbot", s.handleChatbot)
		r.Get("/chatbot/suggestions", s.handleChatbotSuggestions)
		r.Get("/chatbot/health", s.handleChatbotHealth)

		r.Post("/chat/history/save", s.handleSaveChatHistory)
		r.Get("/chat/history/{ownerID}/{documentID}", s.handleGetChatHistory)
		r.Delete("/chat/history/{ownerID}/{documentID}", s.handleDeleteChatHistory)

		r.Delete("/auth/delete-account", s.handleDeleteAccount)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "LegalSift Backend",
		"version": "1.0.0",
	})
}
