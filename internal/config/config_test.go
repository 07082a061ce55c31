package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 100, cfg.Embedding.Batch)
	assert.Equal(t, "memory", cfg.Vector.Backend)
	assert.Equal(t, "cosine", cfg.Vector.Metric)
	assert.Equal(t, 0.7, cfg.Retrieval.DenseWeight)
	assert.Equal(t, 0.3, cfg.Retrieval.SparseWeight)
	assert.Equal(t, 800, cfg.Chunking.TokenTarget)
	assert.Equal(t, 604800, cfg.Session.TTLSeconds)
}

func TestLoad_FromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
log_level: debug
vector_store:
  backend: qdrant
  dsn: localhost:6334
retrieval:
  k_dense: 50
  dense_weight: 0.6
  sparse_weight: 0.4
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "qdrant", cfg.Vector.Backend)
	assert.Equal(t, "localhost:6334", cfg.Vector.DSN)
	assert.Equal(t, 50, cfg.Retrieval.KDense)
	assert.Equal(t, 0.6, cfg.Retrieval.DenseWeight)
	// unset fields still get defaults
	assert.Equal(t, 5, cfg.Retrieval.KFinal)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Vector.Backend)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("LLM_API_KEY", "env-secret-key")
	t.Setenv("VECTOR_STORE_DSN", "postgres://env")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-secret-key", cfg.LLM.Anthropic.APIKey)
	assert.Equal(t, "postgres://env", cfg.Vector.DSN)
}

func TestRetryPolicy(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	rp := cfg.RetryPolicy()
	assert.Equal(t, 2000, int(rp.Initial.Milliseconds()))
	assert.Equal(t, 2.0, rp.Multiplier)
	assert.Equal(t, 60000, int(rp.Cap.Milliseconds()))
	assert.Equal(t, 1800000, int(rp.Budget.Milliseconds()))
}
