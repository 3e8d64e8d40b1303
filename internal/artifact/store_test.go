package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func TestStore_PathsAreDistinctPerJob(t *testing.T) {
	s := newTestStore(t)

	paths := []string{
		s.UploadPath("job-1"),
		s.ChunksPath("job-1"),
		s.RiskyPath("job-1"),
		s.SafePath("job-1"),
		s.ReportPath("job-1"),
		s.IndexPath("job-1"),
	}
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		_, dup := seen[p]
		assert.False(t, dup, p)
		seen[p] = struct{}{}
	}
	assert.NotEqual(t, s.UploadPath("job-1"), s.UploadPath("job-2"))
}

func TestStore_WriteReadJSONRoundTrip(t *testing.T) {
	s := newTestStore(t)
	path := s.ChunksPath("job-1")

	in := []map[string]any{{"id": float64(1), "text": "clause"}}
	require.NoError(t, s.WriteJSON(path, in))

	var out []map[string]any
	require.NoError(t, s.ReadJSON(path, &out))
	assert.Equal(t, in, out)

	// No temp file is left behind.
	assert.NoFileExists(t, path+".tmp")
}

func TestStore_WriteFileReplacesExisting(t *testing.T) {
	s := newTestStore(t)
	path := s.ReportPath("job-1")

	require.NoError(t, s.WriteFile(path, []byte("first")))
	require.NoError(t, s.WriteFile(path, []byte("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestStore_RemoveToleratesMissing(t *testing.T) {
	s := newTestStore(t)
	path := s.UploadPath("job-1")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	s.Remove("job-1", path, s.ReportPath("job-1"), "")
	assert.NoFileExists(t, path)
}

func TestStore_ScratchLifecycle(t *testing.T) {
	s := newTestStore(t)

	dir, err := s.ScratchDir("job-1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page-1.png"), []byte("png"), 0o644))

	s.RemoveScratch("job-1")
	assert.NoDirExists(t, dir)

	// Removing again is harmless.
	s.RemoveScratch("job-1")
}

func TestStore_Exists(t *testing.T) {
	s := newTestStore(t)
	path := s.IndexPath("job-1")

	assert.False(t, s.Exists(path))
	require.NoError(t, s.WriteFile(path, []byte("{}")))
	assert.True(t, s.Exists(path))
}
