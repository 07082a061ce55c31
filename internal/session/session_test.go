package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndAppend(t *testing.T) {
	s := New(time.Hour, time.Second)
	id := s.Create("codebase-1")

	err := s.Append(context.Background(), id, Message{Role: "user", Content: "hello"})
	require.NoError(t, err)

	msgs, err := s.Recent(context.Background(), id, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.NotEmpty(t, msgs[0].ID)
}

func TestRecent_ReturnsLastNInInsertionOrder(t *testing.T) {
	s := New(time.Hour, time.Second)
	id := s.Create("codebase-1")
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(context.Background(), id, Message{Role: "user", Content: string(rune('a' + i))}))
	}

	msgs, err := s.Recent(context.Background(), id, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "d", msgs[0].Content)
	assert.Equal(t, "e", msgs[1].Content)
}

func TestAppend_UnknownSessionReturnsNotFound(t *testing.T) {
	s := New(time.Hour, time.Second)
	err := s.Append(context.Background(), "missing", Message{Role: "user"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppend_ExpiredSessionReturnsExpired(t *testing.T) {
	s := New(time.Millisecond, time.Second)
	id := s.Create("codebase-1")
	time.Sleep(5 * time.Millisecond)

	err := s.Append(context.Background(), id, Message{Role: "user", Content: "x"})
	assert.ErrorIs(t, err, ErrExpired)
}

func TestNoMessageLeaksAcrossSessions(t *testing.T) {
	s := New(time.Hour, time.Second)
	a := s.Create("codebase-1")
	b := s.Create("codebase-1")

	require.NoError(t, s.Append(context.Background(), a, Message{Role: "user", Content: "only in a"}))

	msgsB, err := s.Recent(context.Background(), b, 10)
	require.NoError(t, err)
	assert.Empty(t, msgsB)
}

func TestDeleteByCodebase_CascadesAllSessions(t *testing.T) {
	s := New(time.Hour, time.Second)
	a := s.Create("codebase-1")
	b := s.Create("codebase-2")

	s.DeleteByCodebase("codebase-1")

	_, errA := s.Get(a)
	assert.ErrorIs(t, errA, ErrNotFound)
	_, errB := s.Get(b)
	assert.NoError(t, errB)
}

func TestCleanupExpired_RemovesOnlyExpiredSessions(t *testing.T) {
	s := New(10*time.Millisecond, time.Second)
	stale := s.Create("codebase-1")
	time.Sleep(20 * time.Millisecond)
	fresh := s.Create("codebase-1")

	s.CleanupExpired(context.Background())

	_, errStale := s.Get(stale)
	assert.ErrorIs(t, errStale, ErrNotFound)
	_, errFresh := s.Get(fresh)
	assert.NoError(t, errFresh)
}
