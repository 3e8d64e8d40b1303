package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legalsift/legalsift/constants"
	"github.com/legalsift/legalsift/internal/artifact"
	"github.com/legalsift/legalsift/internal/chat"
	"github.com/legalsift/legalsift/internal/common"
	"github.com/legalsift/legalsift/internal/contract"
	"github.com/legalsift/legalsift/internal/export"
	"github.com/legalsift/legalsift/internal/job"
	"github.com/legalsift/legalsift/internal/llm"
	"github.com/legalsift/legalsift/internal/pipeline"
	"github.com/legalsift/legalsift/internal/store"
)

type stubEmbed struct{}

func (stubEmbed) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type cannedChat struct{ reply string }

func (c cannedChat) Chat(_ context.Context, _ []llm.Message) (string, error) {
	return c.reply, nil
}

// memGateway is an in-memory store.Gateway for handler tests.
type memGateway struct {
	mu      sync.Mutex
	docs    map[string]store.DocumentRecord
	risky   map[string][]store.RiskyChunkRecord
	history map[string][]store.ChatMessage
	reports map[string]string
	purged  []string
}

func newMemGateway() *memGateway {
	return &memGateway{
		docs:    make(map[string]store.DocumentRecord),
		risky:   make(map[string][]store.RiskyChunkRecord),
		history: make(map[string][]store.ChatMessage),
		reports: make(map[string]string),
	}
}

func (g *memGateway) SaveDocument(_ context.Context, doc store.DocumentRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.docs[doc.ID] = doc
	return nil
}

func (g *memGateway) UpdateDocumentStatus(_ context.Context, documentID, status, errorMessage string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	doc := g.docs[documentID]
	doc.Status = status
	doc.ErrorMessage = errorMessage
	g.docs[documentID] = doc
	return nil
}

func (g *memGateway) GetDocument(_ context.Context, documentID string) (*store.DocumentRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	doc, ok := g.docs[documentID]
	if !ok {
		return nil, errors.New("document not found")
	}
	return &doc, nil
}

func (g *memGateway) ListDocuments(_ context.Context, ownerID string) ([]store.DocumentRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []store.DocumentRecord
	for _, doc := range g.docs {
		if doc.OwnerID == ownerID {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (g *memGateway) SaveRiskyChunks(_ context.Context, documentID string, risky []contract.Chunk, _ []contract.Advisory) (int, error) {
	return len(risky), nil
}

func (g *memGateway) GetRiskyChunks(_ context.Context, documentID string) ([]store.RiskyChunkRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.risky[documentID], nil
}

func (g *memGateway) ReplaceChatHistory(_ context.Context, ownerID, documentID string, messages []store.ChatMessage) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.history[ownerID+"/"+documentID] = messages
	return len(messages), nil
}

func (g *memGateway) GetChatHistory(_ context.Context, ownerID, documentID string) ([]store.ChatMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.history[ownerID+"/"+documentID], nil
}

func (g *memGateway) DeleteChatHistory(_ context.Context, ownerID, documentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.history, ownerID+"/"+documentID)
	return nil
}

func (g *memGateway) UploadIndex(_ context.Context, ownerID, documentID, _ string) (string, error) {
	return ownerID + "/" + documentID + "/" + store.BlobIndex, nil
}

func (g *memGateway) UploadReport(_ context.Context, ownerID, documentID, content string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reports[ownerID+"/"+documentID] = content
	return ownerID + "/" + documentID + "/" + store.BlobReport, nil
}

func (g *memGateway) GetReport(_ context.Context, ownerID, documentID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reports[ownerID+"/"+documentID], nil
}

func (g *memGateway) DeleteOwnerData(_ context.Context, ownerID string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.purged = append(g.purged, ownerID)
	n := 0
	for id, doc := range g.docs {
		if doc.OwnerID == ownerID {
			delete(g.docs, id)
			n++
		}
	}
	return n, nil
}

func (g *memGateway) Close() {}

type serverHarness struct {
	srv       *Server
	handler   http.Handler
	registry  *job.Registry
	artifacts *artifact.Store
	gateway   *memGateway
}

// newServerHarness wires a Server with stubbed model clients and an optional
// in-memory gateway. Queue workers are never started, so submitted uploads
// stay pending.
func newServerHarness(t *testing.T, gw *memGateway, queueOpts ...pipeline.QueueOption) *serverHarness {
	t.Helper()

	artifacts, err := artifact.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	registry := job.NewRegistry()
	coordinator := pipeline.NewCoordinator(nil, nil, nil, artifacts, registry, nil, nil)
	queue := pipeline.NewQueue(coordinator, nil, queueOpts...)

	var gateway store.Gateway
	var exporter *export.Service
	if gw != nil {
		gateway = gw
		exporter = export.NewService(gw, nil)
	}

	cfg := common.ServerConfig{Addr: ":0", MaxUploadBytes: 1 << 20}
	srv := New(cfg, registry, queue, artifacts, gateway,
		stubEmbed{},
		chat.NewRAG(cannedChat{reply: "rag answer"}, nil),
		chat.NewAssistant(cannedChat{reply: "assistant answer"}, nil),
		exporter, nil)

	return &serverHarness{
		srv:       srv,
		handler:   srv.Router(),
		registry:  registry,
		artifacts: artifacts,
		gateway:   gw,
	}
}

func (h *serverHarness) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

// bearer forges a token for the given subject. The server only reads the
// subject claim; signature verification happens upstream.
func bearer(t *testing.T, sub string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub}).
		SignedString([]byte("test-key"))
	require.NoError(t, err)
	return "Bearer " + signed
}

// completeJob plants a completed resident job for ownerID and returns its
// snapshot.
func completeJob(t *testing.T, h *serverHarness, ownerID string) *job.Job {
	t.Helper()
	j := h.registry.Create(ownerID, "contract.pdf")
	h.registry.Update(j.ID, func(next *job.Job) {
		next.Status = constants.JobStatusCompleted
		next.Progress = constants.ProgressDone
		next.Stage = constants.StageDone
		next.Result = &job.Result{
			DocumentID:    j.ID,
			OwnerID:       ownerID,
			FileName:      "contract.pdf",
			UploadDate:    j.CreatedAt,
			RiskScore:     50,
			TotalChunks:   4,
			RiskyChunks:   2,
			SafeChunks:    2,
			ReportContent: "## CONTRACT RISK ANALYSIS REPORT",
			RiskyData: []contract.Chunk{
				{ID: 1, Text: "risky clause one", Prediction: &contract.Prediction{Label: "liability", LabelID: 2, Confidence: 0.9}},
				{ID: 3, Text: "risky clause two", Prediction: &contract.Prediction{Label: "non_compete", LabelID: 4, Confidence: 0.8}},
			},
		}
	})
	return h.registry.Get(j.ID)
}

func multipartPDF(t *testing.T, filename string, content []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHealth(t *testing.T) {
	h := newServerHarness(t, nil)
	rec := h.do(t, http.MethodGet, "/health", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "LegalSift Backend", body["service"])
}

func TestJobStatus_Unknown(t *testing.T) {
	h := newServerHarness(t, nil)
	rec := h.do(t, http.MethodGet, "/api/v1/job/nope", nil, nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Job not found", decodeJSON(t, rec)["detail"])
}

func TestJobStatus_Pending(t *testing.T) {
	h := newServerHarness(t, nil)
	j := h.registry.Create("alice", "contract.pdf")

	rec := h.do(t, http.MethodGet, "/api/v1/job/"+j.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, j.ID, body["job_id"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, constants.StageQueued, body["stage"])
	assert.NotContains(t, body, "result")
}

func TestJobStatus_CompletedCarriesResult(t *testing.T) {
	h := newServerHarness(t, nil)
	j := completeJob(t, h, "alice")

	rec := h.do(t, http.MethodGet, "/api/v1/job/"+j.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "completed", body["status"])
	assert.EqualValues(t, 100, body["progress"])
	require.Contains(t, body, "result")
	result := body["result"].(map[string]any)
	assert.EqualValues(t, 50, result["risk_score"])
}

func TestUpload_NoFile(t *testing.T) {
	h := newServerHarness(t, nil)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.Close())

	rec := h.do(t, http.MethodPost, "/api/v1/upload", &buf, map[string]string{
		"Content-Type": mw.FormDataContentType(),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file provided", decodeJSON(t, rec)["detail"])
}

func TestUpload_RejectsNonPDF(t *testing.T) {
	h := newServerHarness(t, nil)
	body, ct := multipartPDF(t, "notes.txt", []byte("plain text"))

	rec := h.do(t, http.MethodPost, "/api/v1/upload", body, map[string]string{"Content-Type": ct})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Only PDF files allowed. File must end with .pdf", decodeJSON(t, rec)["detail"])
}

func TestUpload_RejectsEmptyFile(t *testing.T) {
	h := newServerHarness(t, nil)
	body, ct := multipartPDF(t, "contract.pdf", nil)

	rec := h.do(t, http.MethodPost, "/api/v1/upload", body, map[string]string{"Content-Type": ct})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "File is empty. Please upload a valid PDF", decodeJSON(t, rec)["detail"])
}

func TestUpload_AcceptsAndStagesPDF(t *testing.T) {
	h := newServerHarness(t, nil)
	body, ct := multipartPDF(t, "contract.pdf", []byte("%PDF-1.4 content"))

	rec := h.do(t, http.MethodPost, "/api/v1/upload", body, map[string]string{
		"Content-Type": ct,
		"user-id":      "alice",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON(t, rec)
	assert.Equal(t, "pending", resp["status"])
	assert.Equal(t, "Document uploaded successfully. Processing started.", resp["message"])

	jobID := resp["job_id"].(string)
	require.NotEmpty(t, jobID)
	j := h.registry.Get(jobID)
	require.NotNil(t, j)
	assert.Equal(t, "alice", j.OwnerID)
	assert.FileExists(t, h.artifacts.UploadPath(jobID))
}

func TestUpload_FullQueueAnswers503(t *testing.T) {
	h := newServerHarness(t, nil, pipeline.WithBuffer(1))

	first, ct := multipartPDF(t, "a.pdf", []byte("%PDF-1.4"))
	rec := h.do(t, http.MethodPost, "/api/v1/upload", first, map[string]string{"Content-Type": ct})
	require.Equal(t, http.StatusOK, rec.Code)

	second, ct2 := multipartPDF(t, "b.pdf", []byte("%PDF-1.4"))
	rec = h.do(t, http.MethodPost, "/api/v1/upload", second, map[string]string{"Content-Type": ct2})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Server busy. Please retry shortly.", decodeJSON(t, rec)["detail"])

	// The rejected upload must not leave a pending job behind.
	assert.Equal(t, 1, h.registry.Len())
}

func TestUpload_OwnerFromBearerToken(t *testing.T) {
	h := newServerHarness(t, nil)
	body, ct := multipartPDF(t, "contract.pdf", []byte("%PDF-1.4"))

	rec := h.do(t, http.MethodPost, "/api/v1/upload", body, map[string]string{
		"Content-Type":  ct,
		"Authorization": bearer(t, "carol"),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	jobID := decodeJSON(t, rec)["job_id"].(string)
	j := h.registry.Get(jobID)
	require.NotNil(t, j)
	assert.Equal(t, "carol", j.OwnerID)
}
