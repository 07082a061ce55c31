package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize_LowercasesStripsPunctuationDropsStopwords(t *testing.T) {
	toks := tokenize("The Quick-Brown Fox, jumps over the lazy dog!")
	assert.NotContains(t, toks, "the")
	assert.Contains(t, toks, "quick")
	assert.Contains(t, toks, "brown")
	assert.Contains(t, toks, "fox")
}

func TestBM25_RanksExactMatchHigherThanNoMatch(t *testing.T) {
	docs := []string{
		"function parseConfig reads yaml configuration",
		"function renderTemplate writes html output",
	}
	scorer := newBM25(docs)
	query := tokenize("parseConfig configuration")

	s0 := scorer.score(0, query)
	s1 := scorer.score(1, query)
	assert.Greater(t, s0, s1)
}

func TestBM25_TermAbsentFromPoolScoresZero(t *testing.T) {
	docs := []string{"alpha beta gamma"}
	scorer := newBM25(docs)
	score := scorer.score(0, tokenize("delta"))
	assert.Zero(t, score)
}

func TestBM25_EmptyPoolScoresZero(t *testing.T) {
	scorer := newBM25(nil)
	assert.Equal(t, 0.0, scorer.score(0, tokenize("anything")))
}

func TestMinMaxNormalize_ScalesIntoZeroOne(t *testing.T) {
	out := minMaxNormalize([]float64{1, 2, 3, 4})
	assert.Equal(t, 0.0, out[0])
	assert.Equal(t, 1.0, out[3])
	assert.InDelta(t, 0.333, out[1], 0.01)
}

func TestMinMaxNormalize_AllEqualScoresYieldZero(t *testing.T) {
	out := minMaxNormalize([]float64{5, 5, 5})
	for _, v := range out {
		assert.Equal(t, 0.0, v)
	}
}

func TestMinMaxNormalize_EmptyInput(t *testing.T) {
	out := minMaxNormalize(nil)
	assert.Empty(t, out)
}
