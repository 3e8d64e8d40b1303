// Package artifact manages the filesystem staging area for intermediate
// pipeline outputs. Every artifact is written atomically (temp file + rename)
// so a crashed stage never leaves a half-written file for the next one.
package artifact

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Store is the staging area rooted at a single directory. Paths are
// deterministic per job so stages can hand each other references.
type Store struct {
	root   string
	logger *slog.Logger
}

func NewStore(root string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, dir := range []string{"uploads", "chunks", "risk", "reports", "index", "scratch"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("creating artifact directory: %w", err)
		}
	}
	return &Store{root: root, logger: logger}, nil
}

// Path layout per job. The index artifact lives apart from the deletion
// candidates because cleanup never touches it.
func (s *Store) UploadPath(jobID string) string {
	return filepath.Join(s.root, "uploads", jobID+".pdf")
}

func (s *Store) ChunksPath(jobID string) string {
	return filepath.Join(s.root, "chunks", jobID+"_chunks.json")
}

func (s *Store) RiskyPath(jobID string) string {
	return filepath.Join(s.root, "risk", jobID+"_risky.json")
}

func (s *Store) SafePath(jobID string) string {
	return filepath.Join(s.root, "risk", jobID+"_safe.json")
}

func (s *Store) ReportPath(jobID string) string {
	return filepath.Join(s.root, "reports", jobID+"_report.md")
}

func (s *Store) IndexPath(jobID string) string {
	return filepath.Join(s.root, "index", jobID+"_index.json")
}

// ScratchDir creates and returns a per-job scratch directory. The caller owns
// its removal (on all exit paths).
func (s *Store) ScratchDir(jobID string) (string, error) {
	dir := filepath.Join(s.root, "scratch", jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating scratch directory: %w", err)
	}
	return dir, nil
}

// WriteJSON serialises v atomically into path.
func (s *Store) WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling artifact: %w", err)
	}
	return s.WriteFile(path, data)
}

// WriteFile writes data atomically into path.
func (s *Store) WriteFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing artifact temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("persisting artifact: %w", err)
	}
	return nil
}

// ReadJSON loads a JSON artifact into v.
func (s *Store) ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading artifact: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshalling artifact: %w", err)
	}
	return nil
}

// Remove deletes the given artifacts best-effort, logging each failure
// independently. Missing files are not failures.
func (s *Store) Remove(jobID string, paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := os.Remove(p)
		switch {
		case err == nil:
			s.logger.Info("artifact.removed", "job_id", jobID, "path", p)
		case os.IsNotExist(err):
			// already gone
		default:
			s.logger.Warn("artifact.remove_failed", "job_id", jobID, "path", p, "error", err)
		}
	}
}

// RemoveScratch removes the whole scratch tree for a job.
func (s *Store) RemoveScratch(jobID string) {
	dir := filepath.Join(s.root, "scratch", jobID)
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Warn("artifact.scratch_remove_failed", "job_id", jobID, "dir", dir, "error", err)
		return
	}
	s.logger.Info("artifact.scratch_removed", "job_id", jobID, "dir", dir)
}

// Exists reports whether an artifact file is present.
func (s *Store) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
