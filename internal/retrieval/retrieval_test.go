package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code-doc-assistant/internal/config"
	"code-doc-assistant/internal/vectorstore"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return len(f.vector) }

type fakeStore struct {
	hits []vectorstore.Hit
	err  error
}

func (f *fakeStore) Upsert(context.Context, []vectorstore.Record) error { return nil }
func (f *fakeStore) Query(context.Context, []float32, int, vectorstore.Where) ([]vectorstore.Hit, error) {
	return f.hits, f.err
}
func (f *fakeStore) DeleteByCodebase(context.Context, string) error { return nil }
func (f *fakeStore) Count(context.Context, vectorstore.Where) (int, error) {
	return len(f.hits), nil
}

func TestQuery_FusesDenseAndSparseScores(t *testing.T) {
	store := &fakeStore{hits: []vectorstore.Hit{
		{ID: "a", Score: 0.9, Document: "function parseConfig reads yaml configuration", FilePath: "a.go", LineStart: 1},
		{ID: "b", Score: 0.5, Document: "function renderTemplate writes html output", FilePath: "b.go", LineStart: 1},
	}}
	embedder := &fakeEmbedder{vector: []float32{0.1, 0.2, 0.3}}
	engine := New(store, embedder, config.RetrievalConfig{})

	results, err := engine.Query(context.Background(), "codebase-1", "parseConfig configuration", Filters{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestQuery_EmptyCandidatePoolReturnsNilNotError(t *testing.T) {
	store := &fakeStore{hits: nil}
	embedder := &fakeEmbedder{vector: []float32{0.1}}
	engine := New(store, embedder, config.RetrievalConfig{})

	results, err := engine.Query(context.Background(), "codebase-1", "anything", Filters{})
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestQuery_TruncatesToKFinal(t *testing.T) {
	hits := make([]vectorstore.Hit, 0, 10)
	for i := 0; i < 10; i++ {
		hits = append(hits, vectorstore.Hit{
			ID: string(rune('a' + i)), Score: 0.5, Document: "shared content here",
			FilePath: string(rune('a' + i)) + ".go", LineStart: 1,
		})
	}
	store := &fakeStore{hits: hits}
	embedder := &fakeEmbedder{vector: []float32{0.1}}
	engine := New(store, embedder, config.RetrievalConfig{KFinal: 3})

	results, err := engine.Query(context.Background(), "codebase-1", "shared", Filters{})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestQuery_TieBreaksOnFilePathThenLineStart(t *testing.T) {
	store := &fakeStore{hits: []vectorstore.Hit{
		{ID: "z", Score: 0.5, Document: "identical text", FilePath: "z.go", LineStart: 5},
		{ID: "a", Score: 0.5, Document: "identical text", FilePath: "a.go", LineStart: 1},
	}}
	embedder := &fakeEmbedder{vector: []float32{0.1}}
	engine := New(store, embedder, config.RetrievalConfig{})

	results, err := engine.Query(context.Background(), "codebase-1", "identical", Filters{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a.go", results[0].FilePath)
}

func TestQuery_TieBreaksOnDenseSimilarityBeforeFilePath(t *testing.T) {
	// Dense weight pinned to 0 so the fused score ties regardless of the
	// underlying vector similarity, isolating the dense-similarity tier
	// (spec §4.6 step 5) from the file-path tier beneath it.
	store := &fakeStore{hits: []vectorstore.Hit{
		{ID: "low", Score: 0.2, Document: "identical text", FilePath: "a.go", LineStart: 1},
		{ID: "high", Score: 0.8, Document: "identical text", FilePath: "b.go", LineStart: 1},
	}}
	embedder := &fakeEmbedder{vector: []float32{0.1}}
	engine := New(store, embedder, config.RetrievalConfig{DenseWeight: 0, SparseWeight: 1})

	results, err := engine.Query(context.Background(), "codebase-1", "identical", Filters{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.InDelta(t, results[0].Score, results[1].Score, 1e-9, "fused scores should tie with dense weight zeroed out")
	assert.Equal(t, "high", results[0].ChunkID, "higher dense similarity must win the tie ahead of file path order")
}

func TestSnippet_TruncatesAtWholeLine(t *testing.T) {
	doc := "line one\nline two\nline three"
	out := snippet(doc, 15)
	assert.Equal(t, "line one", out)
}

func TestSnippet_ShortDocUnchanged(t *testing.T) {
	doc := "short"
	assert.Equal(t, doc, snippet(doc, 100))
}
