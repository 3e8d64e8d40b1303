package server

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/legalsift/legalsift/constants"
	"github.com/legalsift/legalsift/internal/common"
	"github.com/legalsift/legalsift/internal/pipeline"
)

type uploadResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type jobStatusResponse struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Stage    string `json:"stage"`
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
}

// handleUpload accepts a contract PDF and enqueues its analysis.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, common.InvalidArgumentError("No file provided"))
		return
	}
	defer func() { _ = file.Close() }()

	if header.Filename == "" {
		writeError(w, common.InvalidArgumentError("No file provided"))
		return
	}
	if !constants.IsAllowedExt(filepath.Ext(header.Filename)) {
		writeError(w, common.InvalidArgumentError("Only PDF files allowed. File must end with .pdf"))
		return
	}
	if header.Size == 0 {
		writeError(w, common.InvalidArgumentError("File is empty. Please upload a valid PDF"))
		return
	}
	if header.Size > s.cfg.MaxUploadBytes {
		maxMB := s.cfg.MaxUploadBytes / 1024 / 1024
		writeError(w, common.InvalidArgumentErrorf("File too large. Max %dMB allowed", maxMB))
		return
	}

	ownerID := r.Header.Get("user-id")
	if ownerID == "" {
		ownerID = ownerFromRequest(r)
	}

	j := s.registry.Create(ownerID, header.Filename)
	if err := s.saveUpload(j.ID, file); err != nil {
		s.registry.Delete(j.ID)
		writeError(w, common.InvalidArgumentErrorf("Failed to save file: %v", err))
		return
	}

	if err := s.queue.Submit(j); err != nil {
		// The job never reached a worker; drop its record so it cannot sit
		// in the registry polling as pending forever.
		s.registry.Delete(j.ID)
		s.artifacts.Remove(j.ID, s.artifacts.UploadPath(j.ID))
		if err == pipeline.ErrQueueFull {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"detail": "Server busy. Please retry shortly.",
			})
			return
		}
		writeError(w, common.InternalError("Upload failed"))
		return
	}

	s.logger.Info("server.upload_accepted",
		"job_id", j.ID,
		"owner_id", ownerID,
		"file_name", header.Filename,
		"bytes", header.Size,
	)
	writeJSON(w, http.StatusOK, uploadResponse{
		JobID:   j.ID,
		Status:  string(constants.JobStatusPending),
		Message: "Document uploaded successfully. Processing started.",
	})
}

func (s *Server) saveUpload(jobID string, src io.Reader) error {
	path := s.artifacts.UploadPath(jobID)
	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write upload file: %w", err)
	}
	return dst.Close()
}

// handleJobStatus serves the polling endpoint.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	j := s.registry.Get(jobID)
	if j == nil {
		writeError(w, common.NotFoundError("Job not found"))
		return
	}

	resp := jobStatusResponse{
		JobID:    j.ID,
		Status:   string(j.Status),
		Progress: j.Progress,
		Stage:    j.Stage,
		Error:    j.Error,
	}
	if j.Result != nil {
		resp.Result = j.Result
	}
	writeJSON(w, http.StatusOK, resp)
}
