package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_StartsQueued(t *testing.T) {
	r := New()
	cb := r.Create("cb-1", "demo", "", OriginArchive, "")
	assert.Equal(t, StatusQueued, cb.Status)
}

func TestAdvance_EnforcesMonotonicTransitions(t *testing.T) {
	r := New()
	r.Create("cb-1", "demo", "", OriginArchive, "")

	require.NoError(t, r.Advance("cb-1", StatusProcessing))
	require.NoError(t, r.Advance("cb-1", StatusCompleted))

	err := r.Advance("cb-1", StatusProcessing)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAdvance_QueuedCanFailDirectly(t *testing.T) {
	r := New()
	r.Create("cb-1", "demo", "", OriginArchive, "")
	assert.NoError(t, r.Advance("cb-1", StatusFailed))
}

func TestUpdateProgress_RejectsProcessedExceedingTotal(t *testing.T) {
	r := New()
	r.Create("cb-1", "demo", "", OriginArchive, "")
	require.NoError(t, r.UpdateProgress("cb-1", 3, 2, StepChunking))

	err := r.UpdateProgress("cb-1", 3, 4, StepChunking)
	assert.ErrorIs(t, err, ErrProcessedExceedsTotal)
}

func TestRecordSecrets_AggregatesAcrossFiles(t *testing.T) {
	r := New()
	r.Create("cb-1", "demo", "", OriginArchive, "")

	require.NoError(t, r.RecordSecrets("cb-1", "config.py", map[string]int{"AWS_ACCESS_KEY": 1}))
	require.NoError(t, r.RecordSecrets("cb-1", "other.py", map[string]int{"JWT": 2}))

	cb, err := r.Get("cb-1")
	require.NoError(t, err)
	assert.Equal(t, 3, cb.SecretsDetected)
	assert.Equal(t, 1, cb.SecretSummary["config.py"].Count)
	assert.Equal(t, 2, cb.SecretSummary["other.py"].Count)
}

func TestFail_PreservesErrorString(t *testing.T) {
	r := New()
	r.Create("cb-1", "demo", "", OriginArchive, "")
	require.NoError(t, r.Advance("cb-1", StatusProcessing))

	require.NoError(t, r.Fail("cb-1", "staging corrupted"))

	cb, err := r.Get("cb-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, cb.Status)
	assert.Equal(t, "staging corrupted", cb.Error)
}

func TestDelete_RemovesFromRegistry(t *testing.T) {
	r := New()
	r.Create("cb-1", "demo", "", OriginArchive, "")
	r.Delete("cb-1")

	_, err := r.Get("cb-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_UnknownReturnsNotFound(t *testing.T) {
	r := New()
	_, err := r.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnchangedCompletedHash_MatchesOnlyWhenCompletedAndHashEqual(t *testing.T) {
	r := New()
	r.Create("cb-1", "demo", "", OriginArchive, "")

	assert.False(t, r.UnchangedCompletedHash("cb-1", "abc"), "still queued, not completed")

	require.NoError(t, r.Advance("cb-1", StatusProcessing))
	require.NoError(t, r.Advance("cb-1", StatusCompleted))
	require.NoError(t, r.SetContentHash("cb-1", "abc"))

	assert.True(t, r.UnchangedCompletedHash("cb-1", "abc"))
	assert.False(t, r.UnchangedCompletedHash("cb-1", "xyz"))
	assert.False(t, r.UnchangedCompletedHash("cb-1", ""))
	assert.False(t, r.UnchangedCompletedHash("missing", "abc"))
}
