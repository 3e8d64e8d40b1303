package server

import (
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/legalsift/legalsift/constants"
	"github.com/legalsift/legalsift/internal/common"
	"github.com/legalsift/legalsift/internal/job"
	"github.com/legalsift/legalsift/internal/store"
)

type finding struct {
	ID         int     `json:"id"`
	Type       string  `json:"type"`
	Severity   string  `json:"severity"`
	Clause     string  `json:"clause"`
	Confidence float32 `json:"confidence"`
}

type documentDetails struct {
	DocumentID  string    `json:"document_id"`
	FileName    string    `json:"file_name"`
	UploadDate  string    `json:"upload_date"`
	Status      string    `json:"status"`
	RiskScore   int       `json:"risk_score"`
	TotalChunks int       `json:"total_chunks"`
	RiskyChunks int       `json:"risky_chunks"`
	SafeChunks  int       `json:"safe_chunks"`
	Findings    []finding `json:"findings"`
}

const (
	maxFindings      = 10
	maxClausePreview = 500
)

// clausePreview clamps clause text for API responses, cutting on a rune
// boundary so multibyte characters survive intact.
func clausePreview(text string) string {
	if len(text) <= maxClausePreview {
		return text
	}
	cut := maxClausePreview
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// handleListDocuments returns the caller's completed documents from the
// durable store. Anonymous callers get an empty list.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromRequest(r)
	if ownerID == "" || s.gateway == nil {
		writeJSON(w, http.StatusOK, map[string]any{"documents": []any{}})
		return
	}

	docs, err := s.gateway.ListDocuments(r.Context(), ownerID)
	if err != nil {
		s.logger.Error("server.list_documents_error", "owner_id", ownerID, "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"documents": []any{}})
		return
	}

	formatted := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		if doc.Status != string(constants.JobStatusCompleted) {
			continue
		}
		formatted = append(formatted, map[string]any{
			"document_id":  doc.ID,
			"id":           doc.ID,
			"file_name":    doc.FileName,
			"risk_score":   doc.RiskScore,
			"risky_chunks": doc.RiskyChunksCount,
			"total_chunks": doc.TotalChunks,
			"upload_date":  doc.UploadDate.Format(time.RFC3339),
			"status":       doc.Status,
			"user_id":      doc.OwnerID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": formatted})
}

// handleDocumentExists probes document availability with a uniform negative:
// missing, failed, and foreign documents all answer exists=false, so the
// endpoint never leaks which of those it was.
func (s *Server) handleDocumentExists(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	ownerID := ownerFromRequest(r)

	negative := func(msg string) {
		writeJSON(w, http.StatusOK, map[string]any{"exists": false, "message": msg})
	}

	if s.gateway == nil {
		if j := s.registry.Get(documentID); j != nil && j.Status == constants.JobStatusCompleted {
			if ownerID != "" && j.OwnerID != "" && j.OwnerID != ownerID {
				negative("Unauthorized")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"exists": true, "status": string(j.Status), "message": "Document available",
			})
			return
		}
		negative("Document not found")
		return
	}

	doc, err := s.gateway.GetDocument(r.Context(), documentID)
	if err != nil {
		negative("Document not found")
		return
	}
	if ownerID != "" && doc.OwnerID != ownerID {
		negative("Unauthorized")
		return
	}
	if doc.Status == "deleted" || doc.Status == string(constants.JobStatusFailed) {
		negative("Document unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"exists": true, "status": doc.Status, "message": "Document available",
	})
}

// handleDocumentDetails serves the analysis summary, preferring the resident
// job record and falling back to the durable store.
func (s *Server) handleDocumentDetails(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	ownerID := ownerFromRequest(r)

	if j := s.registry.Get(documentID); j != nil {
		if j.Status != constants.JobStatusCompleted {
			writeError(w, common.InvalidArgumentError("Document not fully processed yet"))
			return
		}
		if err := checkOwner(ownerID, j.OwnerID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detailsFromResult(j.Result))
		return
	}

	if s.gateway == nil {
		writeError(w, common.NotFoundError("Document not found"))
		return
	}
	doc, err := s.gateway.GetDocument(r.Context(), documentID)
	if err != nil {
		writeError(w, common.NotFoundError("Document not found"))
		return
	}
	if err := checkOwner(ownerID, doc.OwnerID); err != nil {
		writeError(w, err)
		return
	}

	details := documentDetails{
		DocumentID:  doc.ID,
		FileName:    doc.FileName,
		UploadDate:  doc.UploadDate.Format(time.RFC3339),
		Status:      doc.Status,
		RiskScore:   doc.RiskScore,
		TotalChunks: doc.TotalChunks,
		RiskyChunks: doc.RiskyChunksCount,
		SafeChunks:  doc.TotalChunks - doc.RiskyChunksCount,
		Findings:    []finding{},
	}
	if records, err := s.gateway.GetRiskyChunks(r.Context(), documentID); err == nil {
		details.Findings = findingsFromRecords(records)
	}
	writeJSON(w, http.StatusOK, details)
}

// handleReport serves the markdown analysis report.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	ownerID := ownerFromRequest(r)

	if j := s.registry.Get(documentID); j != nil {
		if j.Status != constants.JobStatusCompleted {
			writeError(w, common.InvalidArgumentError("Document not processed yet"))
			return
		}
		if err := checkOwner(ownerID, j.OwnerID); err != nil {
			writeError(w, err)
			return
		}
		if j.Result == nil || j.Result.ReportContent == "" {
			writeError(w, common.InvalidArgumentError("Report not available for this document"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"report": j.Result.ReportContent})
		return
	}

	if s.gateway == nil {
		writeError(w, common.NotFoundError("Report not found"))
		return
	}
	doc, err := s.gateway.GetDocument(r.Context(), documentID)
	if err != nil {
		writeError(w, common.NotFoundError("Report not found"))
		return
	}
	if err := checkOwner(ownerID, doc.OwnerID); err != nil {
		writeError(w, err)
		return
	}
	report, err := s.gateway.GetReport(r.Context(), doc.OwnerID, documentID)
	if err != nil || report == "" {
		writeError(w, common.InvalidArgumentError("Report not available for this document"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": report})
}

// handleExport streams an XLSX workbook of the document's findings.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	ownerID := ownerFromRequest(r)

	if s.gateway == nil {
		writeError(w, common.NotFoundError("Document not found"))
		return
	}
	doc, err := s.gateway.GetDocument(r.Context(), documentID)
	if err != nil {
		writeError(w, common.NotFoundError("Document not found"))
		return
	}
	if err := checkOwner(ownerID, doc.OwnerID); err != nil {
		writeError(w, err)
		return
	}

	data, err := s.exporter.ExportFindingsXLSX(r.Context(), documentID)
	if err != nil {
		writeError(w, common.InternalError("Export failed"))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_findings.xlsx"`, documentID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleDeleteAccount purges every trace of the authenticated user.
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromRequest(r)
	if ownerID == "" {
		writeError(w, common.UnauthorizedError("Unauthorized: No valid token provided"))
		return
	}

	purged := s.registry.PurgeOwner(ownerID)
	if s.gateway != nil {
		if n, err := s.gateway.DeleteOwnerData(r.Context(), ownerID); err != nil {
			s.logger.Warn("server.account_purge_incomplete", "owner_id", ownerID, "error", err)
		} else if n > purged {
			purged = n
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "success",
		"message":           "Account deleted successfully",
		"documents_deleted": purged,
	})
}

// checkOwner enforces ownership when both sides carry an identity. Anonymous
// callers and unowned documents pass through, matching the upload contract.
func checkOwner(callerID, ownerID string) error {
	if callerID != "" && ownerID != "" && callerID != ownerID {
		return common.ForbiddenError("Unauthorized: Document belongs to another user")
	}
	return nil
}

func detailsFromResult(res *job.Result) documentDetails {
	details := documentDetails{
		DocumentID:  res.DocumentID,
		FileName:    res.FileName,
		UploadDate:  res.UploadDate.Format(time.RFC3339),
		Status:      string(constants.JobStatusCompleted),
		RiskScore:   res.RiskScore,
		TotalChunks: res.TotalChunks,
		RiskyChunks: res.RiskyChunks,
		SafeChunks:  res.SafeChunks,
		Findings:    []finding{},
	}
	for _, chunk := range res.RiskyData {
		if len(details.Findings) == maxFindings {
			break
		}
		f := finding{ID: chunk.ID, Type: "unknown", Severity: constants.SeverityMedium}
		if chunk.Prediction != nil {
			f.Type = chunk.Prediction.Label
			f.Confidence = chunk.Prediction.Confidence
			if chunk.Prediction.Confidence > 0.85 {
				f.Severity = constants.SeverityHigh
			}
		}
		f.Clause = clausePreview(chunk.Text)
		details.Findings = append(details.Findings, f)
	}
	return details
}

func findingsFromRecords(records []store.RiskyChunkRecord) []finding {
	findings := make([]finding, 0, maxFindings)
	for _, rec := range records {
		if len(findings) == maxFindings {
			break
		}
		findings = append(findings, finding{
			ID:         rec.ChunkID,
			Type:       rec.RiskLabel,
			Severity:   rec.Severity,
			Clause:     clausePreview(rec.ChunkText),
			Confidence: rec.Confidence,
		})
	}
	return findings
}
