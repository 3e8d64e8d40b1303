package store

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Blobs keeps the large per-document artifacts (search index, report) on a
// filesystem tree laid out as {owner}/{document}/{artifact}. Both gateway
// backends share it.
type Blobs struct {
	root   string
	logger *slog.Logger
}

func NewBlobs(root string, logger *slog.Logger) (*Blobs, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Blobs{root: root, logger: logger}, nil
}

func (b *Blobs) documentDir(ownerID, documentID string) string {
	return filepath.Join(b.root, ownerID, documentID)
}

// PutFile copies a local file into the blob tree and returns the remote path.
func (b *Blobs) PutFile(ownerID, documentID, name, localPath string) (string, error) {
	dir := b.documentDir(ownerID, documentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer func() {
		if cErr := src.Close(); cErr != nil {
			b.logger.Warn("blobs.source_close_error", "path", localPath, "error", cErr)
		}
	}()

	dest := filepath.Join(dir, name)
	tmp := dest + ".tmp"
	dst, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("copy blob: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return "", fmt.Errorf("persist blob: %w", err)
	}
	return filepath.Join(ownerID, documentID, name), nil
}

// PutBytes writes content into the blob tree and returns the remote path.
func (b *Blobs) PutBytes(ownerID, documentID, name string, content []byte) (string, error) {
	dir := b.documentDir(ownerID, documentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	dest := filepath.Join(dir, name)
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return "", fmt.Errorf("persist blob: %w", err)
	}
	return filepath.Join(ownerID, documentID, name), nil
}

// Get reads a blob back.
func (b *Blobs) Get(ownerID, documentID, name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(b.documentDir(ownerID, documentID), name))
}

// LocalPath resolves a blob to its on-disk location.
func (b *Blobs) LocalPath(ownerID, documentID, name string) string {
	return filepath.Join(b.documentDir(ownerID, documentID), name)
}

// DeleteDocument removes every blob for one document.
func (b *Blobs) DeleteDocument(ownerID, documentID string) error {
	return os.RemoveAll(b.documentDir(ownerID, documentID))
}

// DeleteOwner removes every blob belonging to one owner.
func (b *Blobs) DeleteOwner(ownerID string) error {
	return os.RemoveAll(filepath.Join(b.root, ownerID))
}

// Blob artifact names inside a document directory.
const (
	BlobIndex  = "index.json"
	BlobReport = "report.txt"
)
