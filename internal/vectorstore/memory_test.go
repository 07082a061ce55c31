package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_UpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	err := s.Upsert(ctx, []Record{
		{ID: "a", Vector: []float32{1, 0, 0}, CodebaseID: "cb1", FilePath: "a.go", Document: "foo"},
		{ID: "b", Vector: []float32{0, 1, 0}, CodebaseID: "cb1", FilePath: "b.go", Document: "bar"},
		{ID: "c", Vector: []float32{1, 0, 0}, CodebaseID: "cb2", FilePath: "c.go", Document: "baz"},
	})
	require.NoError(t, err)

	hits, err := s.Query(ctx, []float32{1, 0, 0}, 10, Where{CodebaseID: "cb1"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID, "closest vector to query should rank first")
	for _, h := range hits {
		assert.Equal(t, "cb1", h.CodebaseID, "codebase filtering must not leak across codebases")
	}
}

func TestMemory_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Upsert(ctx, []Record{{ID: "a", Vector: []float32{1, 2, 3}}}))
	err := s.Upsert(ctx, []Record{{ID: "b", Vector: []float32{1, 2}}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemory_DeleteByCodebase(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Upsert(ctx, []Record{
		{ID: "a", Vector: []float32{1, 0}, CodebaseID: "cb1"},
		{ID: "b", Vector: []float32{0, 1}, CodebaseID: "cb2"},
	}))

	require.NoError(t, s.DeleteByCodebase(ctx, "cb1"))

	n, err := s.Count(ctx, Where{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.Count(ctx, Where{CodebaseID: "cb1"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMemory_Count(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Upsert(ctx, []Record{
		{ID: "a", Vector: []float32{1, 0}, CodebaseID: "cb1", Language: "go"},
		{ID: "b", Vector: []float32{0, 1}, CodebaseID: "cb1", Language: "python"},
	}))

	n, err := s.Count(ctx, Where{CodebaseID: "cb1", Language: "go"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemory_QueryEmptyPoolReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	hits, err := s.Query(ctx, []float32{1, 0}, 5, Where{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}
