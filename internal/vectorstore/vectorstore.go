// Package vectorstore adapts a single logical chunk collection across three
// backends (in-memory, Qdrant, pgvector/Postgres), all satisfying the same
// VectorStore contract (spec §4.5).
package vectorstore

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned by Upsert when a vector's length does
// not match the collection's committed dimension (spec §4.4, §9 Open
// Question: fallback provider must match dimension or the codebase fails).
var ErrDimensionMismatch = errors.New("vectorstore: vector dimension does not match collection dimension")

// Record is one chunk ready for indexing: its vector plus the metadata
// projection spec §6 requires on every hit.
type Record struct {
	ID           string
	Vector       []float32
	Document     string // redacted code body
	CodebaseID   string
	FilePath     string
	LineStart    int
	LineEnd      int
	Language     string
	ChunkType    string
	Name         string
	ParentClass  string
	Dependencies []string
}

// Where is the conjunction of metadata-key filters the adapter guarantees
// exact matching on (spec §4.5); zero-value fields are omitted from the
// conjunction.
type Where struct {
	CodebaseID string
	Language   string
	ChunkType  string
	FilePath   string
}

// toMap renders the non-empty fields as an AND'd key/value filter, the
// common shape every backend below ultimately applies.
func (w Where) toMap() map[string]string {
	m := make(map[string]string, 4)
	if w.CodebaseID != "" {
		m["codebase_id"] = w.CodebaseID
	}
	if w.Language != "" {
		m["language"] = w.Language
	}
	if w.ChunkType != "" {
		m["chunk_type"] = w.ChunkType
	}
	if w.FilePath != "" {
		m["file_path"] = w.FilePath
	}
	return m
}

// Hit is one ranked result from Query, with its similarity score (higher is
// closer) and the full metadata projection.
type Hit struct {
	ID          string
	Score       float64
	Document    string
	CodebaseID  string
	FilePath    string
	LineStart   int
	LineEnd     int
	Language    string
	ChunkType   string
	Name        string
	ParentClass string
	Dependencies []string
}

// VectorStore is the single-collection contract every backend implements
// (spec §4.5). codebase_id filtering must never leak across codebases, and
// every hit carries its full metadata projection.
type VectorStore interface {
	// Upsert writes records atomically per call.
	Upsert(ctx context.Context, records []Record) error
	// Query returns the k nearest records to vector, optionally narrowed by where.
	Query(ctx context.Context, vector []float32, k int, where Where) ([]Hit, error)
	// DeleteByCodebase removes every record tagged with codebaseID.
	DeleteByCodebase(ctx context.Context, codebaseID string) error
	// Count returns the number of records matching where (zero-value Where counts everything).
	Count(ctx context.Context, where Where) (int, error)
}
