// Package chunk transforms codeparse.Region output (and, for unstructured
// files, raw text) into the Chunk records the embedding client and vector
// store adapter consume (spec §3 Chunk, §4.3).
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"code-doc-assistant/internal/codeparse"
	"code-doc-assistant/internal/config"
	"code-doc-assistant/internal/util"
)

// Kind mirrors codeparse.Kind plus the two chunker-only categories (module
// preamble, fallback "other") spec §3 enumerates for Chunk.kind.
type Kind string

const (
	KindFunction Kind = "function"
	KindMethod   Kind = "method"
	KindClass    Kind = "class"
	KindModule   Kind = "module"
	KindImport   Kind = "import-block"
	KindOther    Kind = "other"
)

// Chunk is an indexed unit of code, pre-embedding (spec §3).
type Chunk struct {
	ID             string
	CodebaseID     string
	FilePath       string
	LineStart      int
	LineEnd        int
	Kind           Kind
	Name           string
	Language       string
	Content        string
	Dependencies   []string
	Docstring      string
	EnclosingClass string
}

// ID computes the deterministic chunk id required for idempotent re-ingestion
// (spec §4.9, §8): hash(codebase_id, file_path, line_start, line_end, kind).
func ID(codebaseID, filePath string, lineStart, lineEnd int, kind Kind) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%d\x00%s", codebaseID, filePath, lineStart, lineEnd, kind)
	return hex.EncodeToString(h.Sum(nil))
}

// Chunker turns a file's parsed regions (or, for files codeparse could not
// parse, its raw text) into Chunks, honoring the priority policy of §4.3:
// function/method level first, then class level (splitting by method
// groups when a class exceeds the token cap), then one module-preamble
// chunk per file, then a sliding-window fallback for unstructured content.
type Chunker struct {
	cfg config.ChunkingConfig
}

func New(cfg config.ChunkingConfig) *Chunker {
	return &Chunker{cfg: cfg}
}

// approxTokens estimates token count via the word/punctuation counter used
// throughout this codebase's text-processing helpers when no tokenizer is
// wired for the target language.
func approxTokens(s string) int {
	return util.CountTokens(s)
}

// ChunkFile produces chunks for one file given its parsed regions. language
// is the detected language tag (spec §3 Chunk.language); codebaseID/filePath
// identify the owning codebase and file.
func (c *Chunker) ChunkFile(codebaseID, filePath, language string, fullText string, regions []codeparse.Region) []Chunk {
	if len(regions) == 0 {
		return c.fallbackWindow(codebaseID, filePath, language, fullText)
	}

	var out []Chunk
	var importLines []codeparse.Region
	handledClass := make(map[string]bool)

	for _, r := range regions {
		switch r.Kind {
		case codeparse.KindImport:
			importLines = append(importLines, r)
		case codeparse.KindFunction, codeparse.KindMethod:
			out = append(out, c.fromRegion(codebaseID, filePath, language, r, kindFor(r.Kind)))
		case codeparse.KindClass:
			if handledClass[r.Name] {
				continue
			}
			handledClass[r.Name] = true
			if approxTokens(r.Text) <= c.cfg.TokenCap {
				out = append(out, c.fromRegion(codebaseID, filePath, language, r, KindClass))
			}
			// Oversized classes are NOT emitted whole; their methods were
			// already captured individually above via KindMethod regions,
			// satisfying "split by method groups" without double-counting.
		}
	}

	if len(importLines) > 0 {
		out = append(out, c.modulePreamble(codebaseID, filePath, language, importLines))
	}

	if len(out) == 0 {
		return c.fallbackWindow(codebaseID, filePath, language, fullText)
	}
	return out
}

func kindFor(k codeparse.Kind) Kind {
	switch k {
	case codeparse.KindMethod:
		return KindMethod
	default:
		return KindFunction
	}
}

func (c *Chunker) fromRegion(codebaseID, filePath, language string, r codeparse.Region, kind Kind) Chunk {
	return Chunk{
		ID:             ID(codebaseID, filePath, r.StartLine, r.EndLine, kind),
		CodebaseID:     codebaseID,
		FilePath:       filePath,
		LineStart:      r.StartLine,
		LineEnd:        r.EndLine,
		Kind:           kind,
		Name:           r.Name,
		Language:       language,
		Content:        r.Text,
		Dependencies:   r.Dependencies,
		EnclosingClass: r.EnclosingClass,
	}
}

// modulePreamble merges every import region of a file into one chunk (spec
// §4.3 policy step 3), since imports scattered across a file still describe
// a single module-level concern.
func (c *Chunker) modulePreamble(codebaseID, filePath, language string, imports []codeparse.Region) Chunk {
	lineStart := imports[0].StartLine
	lineEnd := imports[0].EndLine
	var texts []string
	var deps []string
	for _, r := range imports {
		if r.StartLine < lineStart {
			lineStart = r.StartLine
		}
		if r.EndLine > lineEnd {
			lineEnd = r.EndLine
		}
		texts = append(texts, r.Text)
		deps = append(deps, r.Dependencies...)
	}
	content := strings.Join(texts, "\n")
	return Chunk{
		ID:           ID(codebaseID, filePath, lineStart, lineEnd, KindImport),
		CodebaseID:   codebaseID,
		FilePath:     filePath,
		LineStart:    lineStart,
		LineEnd:      lineEnd,
		Kind:         KindImport,
		Name:         "imports",
		Language:     language,
		Content:      content,
		Dependencies: dedupe(deps),
	}
}

// fallbackWindow handles files codeparse could not structurally parse
// (unsupported language, README, plain text): a sliding window sized to
// TokenTarget with Overlap tokens of repetition between adjacent windows
// (spec §4.3 policy step 4).
func (c *Chunker) fallbackWindow(codebaseID, filePath, language, text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	targetChars := c.cfg.TokenTarget * 4
	overlapChars := c.cfg.Overlap * 4
	if targetChars <= 0 {
		targetChars = 3200
	}

	var out []Chunk
	start := 0
	for start < len(lines) {
		charCount := 0
		end := start
		for end < len(lines) && charCount < targetChars {
			charCount += len(lines[end]) + 1
			end++
		}
		if end == start {
			end = start + 1
		}
		content := strings.Join(lines[start:end], "\n")
		out = append(out, Chunk{
			ID:         ID(codebaseID, filePath, start+1, end, KindOther),
			CodebaseID: codebaseID,
			FilePath:   filePath,
			LineStart:  start + 1,
			LineEnd:    end,
			Kind:       KindOther,
			Name:       "",
			Language:   language,
			Content:    content,
		})
		if end >= len(lines) {
			break
		}
		overlapLines := overlapChars / 20 // rough chars-per-line estimate
		if overlapLines < 1 {
			overlapLines = 1
		}
		next := end - overlapLines
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
