package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
)

type entry struct {
	rec Record
}

// memoryStore is the in-process fallback backend, adapted from this
// codebase's in-memory similarity-search pattern for development and unit
// tests where no external vector database is configured.
type memoryStore struct {
	mu        sync.RWMutex
	entries   map[string]entry
	dimension int
}

// NewMemory constructs an in-memory VectorStore.
func NewMemory() VectorStore {
	return &memoryStore{entries: make(map[string]entry)}
}

func (m *memoryStore) Upsert(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if m.dimension == 0 {
			m.dimension = len(r.Vector)
		} else if len(r.Vector) != m.dimension {
			return ErrDimensionMismatch
		}
		v := make([]float32, len(r.Vector))
		copy(v, r.Vector)
		r.Vector = v
		m.entries[r.ID] = entry{rec: r}
	}
	return nil
}

func (m *memoryStore) Query(_ context.Context, vector []float32, k int, where Where) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 {
		k = 10
	}
	filter := where.toMap()
	qnorm := norm(vector)

	hits := make([]Hit, 0, len(m.entries))
	for _, e := range m.entries {
		if !matches(e.rec, filter) {
			continue
		}
		score := cosine(vector, e.rec.Vector, qnorm)
		hits = append(hits, toHit(e.rec, score))
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].FilePath != hits[j].FilePath {
			return hits[i].FilePath < hits[j].FilePath
		}
		return hits[i].LineStart < hits[j].LineStart
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *memoryStore) DeleteByCodebase(_ context.Context, codebaseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if e.rec.CodebaseID == codebaseID {
			delete(m.entries, id)
		}
	}
	return nil
}

func (m *memoryStore) Count(_ context.Context, where Where) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	filter := where.toMap()
	n := 0
	for _, e := range m.entries {
		if matches(e.rec, filter) {
			n++
		}
	}
	return n, nil
}

func matches(r Record, filter map[string]string) bool {
	for k, v := range filter {
		switch k {
		case "codebase_id":
			if r.CodebaseID != v {
				return false
			}
		case "language":
			if r.Language != v {
				return false
			}
		case "chunk_type":
			if r.ChunkType != v {
				return false
			}
		case "file_path":
			if r.FilePath != v {
				return false
			}
		}
	}
	return true
}

func toHit(r Record, score float64) Hit {
	return Hit{
		ID:          r.ID,
		Score:       score,
		Document:    r.Document,
		CodebaseID:  r.CodebaseID,
		FilePath:    r.FilePath,
		LineStart:   r.LineStart,
		LineEnd:     r.LineEnd,
		Language:    r.Language,
		ChunkType:   r.ChunkType,
		Name:        r.Name,
		ParentClass: r.ParentClass,
		Dependencies: append([]string(nil), r.Dependencies...),
	}
}

func norm(a []float32) float64 {
	var s float64
	for _, x := range a {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func cosine(a, b []float32, anorm float64) float64 {
	if anorm == 0 {
		anorm = norm(a)
	}
	bnorm := norm(b)
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	return dot(a, b) / (anorm * bnorm)
}
