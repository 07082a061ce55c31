// Package retrieval implements the hybrid dense+sparse retrieval engine
// (spec §4.6): a dense arm over the vector store fused with a BM25 sparse
// arm re-scored over the same candidate pool, combined by a fixed linear
// weight rather than reciprocal rank fusion.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"code-doc-assistant/internal/config"
	"code-doc-assistant/internal/depgraph"
	"code-doc-assistant/internal/embedding"
	"code-doc-assistant/internal/vectorstore"
)

// dependencyBoost is the additive score nudge applied to a candidate that
// other candidates in the same pool depend on (Supplemented Features,
// "dependency-edge graph projection").
const dependencyBoost = 0.02

// Filters narrows the dense query to a subset of a codebase's chunks (spec
// §4.6 step 4, sourced from the agent's Analyse stage).
type Filters struct {
	Language       string
	FilePathPrefix string
	ChunkKind      string
}

// Result is one ranked chunk returned to the caller, carrying its fused
// score and a bounded, whole-line-aligned snippet (spec §4.6 step 6).
type Result struct {
	ChunkID     string
	FilePath    string
	LineStart   int
	LineEnd     int
	Language    string
	ChunkType   string
	Name        string
	ParentClass string
	Snippet     string
	Score       float64
}

// Engine ties an embedding client to a vector store under the configured
// fusion weights and candidate pool sizes.
type Engine struct {
	store    vectorstore.VectorStore
	embedder embedding.Client
	cfg      config.RetrievalConfig
}

func New(store vectorstore.VectorStore, embedder embedding.Client, cfg config.RetrievalConfig) *Engine {
	return &Engine{store: store, embedder: embedder, cfg: cfg}
}

// Query runs the full hybrid algorithm for one natural-language query
// against one codebase (spec §4.6).
func (e *Engine) Query(ctx context.Context, codebaseID, query string, filters Filters) ([]Result, error) {
	kDense := e.cfg.KDense
	if kDense <= 0 {
		kDense = 20
	}
	kFinal := e.cfg.KFinal
	if kFinal <= 0 {
		kFinal = 5
	}

	vectors, err := e.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("retrieval: embedding client returned no vector for query")
	}

	where := vectorstore.Where{
		CodebaseID: codebaseID,
		Language:   filters.Language,
		ChunkType:  filters.ChunkKind,
		FilePath:   filters.FilePathPrefix,
	}
	hits, err := e.store.Query(ctx, vectors[0], kDense, where)
	if err != nil {
		return nil, fmt.Errorf("retrieval: dense query: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil // empty candidate pool is not an error (spec §4.6 edge case)
	}

	docs := make([]string, len(hits))
	for i, h := range hits {
		docs[i] = h.Document
	}
	scorer := newBM25(docs)
	queryTokens := tokenize(query)

	denseSims := make([]float64, len(hits))
	sparseRaw := make([]float64, len(hits))
	for i, h := range hits {
		denseSims[i] = normalizedSimilarity(h.Score)
		sparseRaw[i] = scorer.score(i, queryTokens)
	}
	sparseNorm := minMaxNormalize(sparseRaw)

	ids := make([]string, len(hits))
	names := make([]string, len(hits))
	deps := make([][]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		names[i] = h.Name
		deps[i] = h.Dependencies
	}
	dependedOn := depgraph.DependedOnCounts(depgraph.Build(ids, names, deps))

	denseWeight := e.cfg.DenseWeight
	sparseWeight := e.cfg.SparseWeight
	if denseWeight == 0 && sparseWeight == 0 {
		denseWeight, sparseWeight = 0.7, 0.3
	}

	results := make([]Result, len(hits))
	allZero := true
	for i, h := range hits {
		base := denseWeight*denseSims[i] + sparseWeight*sparseNorm[i]
		if base != 0 {
			allZero = false
		}
		fused := base + dependencyBoost*float64(dependedOn[h.ID])
		snippetMax := e.cfg.SnippetMaxLen
		if snippetMax <= 0 {
			snippetMax = 400
		}
		results[i] = Result{
			ChunkID:     h.ID,
			FilePath:    h.FilePath,
			LineStart:   h.LineStart,
			LineEnd:     h.LineEnd,
			Language:    h.Language,
			ChunkType:   h.ChunkType,
			Name:        h.Name,
			ParentClass: h.ParentClass,
			Snippet:     snippet(h.Document, snippetMax),
			Score:       fused,
		}
	}
	if allZero {
		return nil, nil // all-zero similarities → empty result (spec §4.6 edge case)
	}

	// Tie-break order per spec §4.6 step 5: fused score, then dense
	// similarity, then file path, then line start. denseSims is indexed by
	// the pre-sort hit order, so the sort permutes an index slice rather
	// than results directly to keep the two aligned.
	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		i, j := order[a], order[b]
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if denseSims[i] != denseSims[j] {
			return denseSims[i] > denseSims[j]
		}
		if results[i].FilePath != results[j].FilePath {
			return results[i].FilePath < results[j].FilePath
		}
		return results[i].LineStart < results[j].LineStart
	})
	sorted := make([]Result, len(results))
	for idx, orig := range order {
		sorted[idx] = results[orig]
	}
	results = sorted

	if len(results) > kFinal {
		results = results[:kFinal]
	}
	return results, nil
}

// normalizedSimilarity maps a vector store's raw score into [0,1]. The
// memory/qdrant/pgvector backends already return cosine similarity
// directly (higher is closer), so this clamps rather than inverts; a
// backend reporting raw cosine distance would instead compute 1-d before
// calling into this package.
func normalizedSimilarity(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// snippet truncates doc to at most maxLen characters, aligned to whole
// lines (spec §4.6 step 6).
func snippet(doc string, maxLen int) string {
	if len(doc) <= maxLen {
		return doc
	}
	cut := doc[:maxLen]
	if idx := lastNewline(cut); idx > 0 {
		return cut[:idx]
	}
	return cut
}

func lastNewline(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '\n' {
			return i
		}
	}
	return -1
}
