package retrieval

import (
	"math"
	"regexp"
	"strings"
)

// tokenRe splits on anything that is not a letter, digit, or underscore,
// matching this codebase's tokenization convention (lowercase, strip
// punctuation, split on non-identifier characters).
var tokenRe = regexp.MustCompile(`[^\w]+`)

var stopwords = map[string]bool{
	"the": true, "is": true, "at": true, "of": true, "on": true, "and": true,
	"a": true, "an": true, "to": true, "in": true, "for": true, "it": true,
	"this": true, "that": true, "with": true, "as": true, "be": true,
}

// tokenize lowercases text, splits on non-identifier boundaries, and drops
// stopwords (spec §4.6 step 2).
func tokenize(text string) []string {
	lower := strings.ToLower(text)
	fields := tokenRe.Split(lower, -1)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == "" || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// bm25 scores a fixed candidate pool against a query using the classic
// Okapi BM25 formula (k1=1.2, b=0.75), computing IDF and document-length
// normalization over the pool itself — spec §4.6 explicitly scopes the
// sparse arm to re-scoring the dense candidate pool rather than maintaining
// a separate inverted index (see §9 Open Questions).
type bm25 struct {
	k1, b  float64
	docs   [][]string
	tf     []map[string]int
	df     map[string]int
	avgLen float64
}

func newBM25(documents []string) *bm25 {
	m := &bm25{k1: 1.2, b: 0.75, df: make(map[string]int)}
	m.docs = make([][]string, len(documents))
	m.tf = make([]map[string]int, len(documents))

	var totalLen int
	for i, d := range documents {
		toks := tokenize(d)
		m.docs[i] = toks
		totalLen += len(toks)
		counts := make(map[string]int, len(toks))
		for _, t := range toks {
			counts[t]++
		}
		m.tf[i] = counts
		for t := range counts {
			m.df[t]++
		}
	}
	if len(documents) > 0 {
		m.avgLen = float64(totalLen) / float64(len(documents))
	}
	return m
}

// score returns the raw BM25 score of document i against the query.
func (m *bm25) score(i int, queryTokens []string) float64 {
	n := float64(len(m.docs))
	if n == 0 {
		return 0
	}
	docLen := float64(len(m.docs[i]))
	var total float64
	for _, qt := range queryTokens {
		f := float64(m.tf[i][qt])
		if f == 0 {
			continue
		}
		df := float64(m.df[qt])
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		denom := f + m.k1*(1-m.b+m.b*(docLen/maxFloat(m.avgLen, 1)))
		total += idf * (f * (m.k1 + 1) / denom)
	}
	return total
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// minMaxNormalize scales scores into [0,1] across the full slice, matching
// spec §4.6's "sparse is min-max normalised across the candidate pool". A
// pool with a single score, or with all-equal scores, normalizes to zero
// (no signal to distinguish candidates).
func minMaxNormalize(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	min, max := scores[0], scores[0]
	for _, s := range scores {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	if max == min {
		return out // all zero
	}
	for i, s := range scores {
		out[i] = (s - min) / (max - min)
	}
	return out
}
