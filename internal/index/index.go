package index

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/legalsift/legalsift/internal/contract"
)

// Entry pairs a chunk with its embedding vector.
type Entry struct {
	ChunkID int       `json:"chunk_id"`
	Text    string    `json:"text"`
	Vector  []float32 `json:"vector"`
}

// Index is the searchable representation of one document. It is read-only
// after Build/Load and safe to share across concurrent chat requests.
type Index struct {
	Model   string  `json:"model"`
	Entries []Entry `json:"entries"`

	embedder Embedder
}

// Build embeds every chunk and assembles the index.
func Build(ctx context.Context, embedder Embedder, model string, chunks []contract.Chunk) (*Index, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	ix := &Index{Model: model, embedder: embedder}
	ix.Entries = make([]Entry, len(chunks))
	for i, c := range chunks {
		ix.Entries[i] = Entry{ChunkID: c.ID, Text: c.Text, Vector: vectors[i]}
	}
	return ix, nil
}

// Save writes the index artifact atomically.
func (ix *Index) Save(path string) error {
	data, err := json.Marshal(ix)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	return nil
}

// Load reads an index artifact and attaches the embedder used for queries.
func Load(path string, embedder Embedder) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	var ix Index
	if err := json.Unmarshal(data, &ix); err != nil {
		return nil, fmt.Errorf("unmarshal index: %w", err)
	}
	ix.embedder = embedder
	return &ix, nil
}

// Search returns the k entries most similar to the query, best first.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]contract.Chunk, error) {
	if len(ix.Entries) == 0 || k <= 0 {
		return nil, nil
	}
	vectors, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	qv := vectors[0]

	type scored struct {
		entry Entry
		score float64
	}
	ranked := make([]scored, 0, len(ix.Entries))
	for _, e := range ix.Entries {
		ranked = append(ranked, scored{entry: e, score: cosine(qv, e.Vector)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]contract.Chunk, 0, k)
	for _, r := range ranked[:k] {
		out = append(out, contract.Chunk{ID: r.entry.ChunkID, Text: r.entry.Text})
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
