package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type pgvectorStore struct {
	pool      *pgxpool.Pool
	dimension int
	metric    string
}

// NewPgvector connects to a Postgres instance with the pgvector extension
// and ensures the chunks table exists, sized to dimension.
func NewPgvector(ctx context.Context, pool *pgxpool.Pool, dimension int, metric string) (VectorStore, error) {
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return nil, fmt.Errorf("vectorstore: create vector extension: %w", err)
	}
	vecType := "vector"
	if dimension > 0 {
		vecType = fmt.Sprintf("vector(%d)", dimension)
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS chunks (
  id TEXT PRIMARY KEY,
  vec %s,
  codebase_id TEXT NOT NULL,
  file_path TEXT NOT NULL,
  line_start INT NOT NULL,
  line_end INT NOT NULL,
  language TEXT,
  chunk_type TEXT,
  name TEXT,
  parent_class TEXT,
  document TEXT,
  dependencies TEXT
);
CREATE INDEX IF NOT EXISTS chunks_codebase_id_idx ON chunks(codebase_id);
`, vecType)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("vectorstore: create chunks table: %w", err)
	}
	return &pgvectorStore{pool: pool, dimension: dimension, metric: strings.ToLower(strings.TrimSpace(metric))}, nil
}

func (p *pgvectorStore) Upsert(ctx context.Context, records []Record) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range records {
		if p.dimension != 0 && len(r.Vector) != p.dimension {
			return ErrDimensionMismatch
		}
		_, err := tx.Exec(ctx, `
INSERT INTO chunks(id, vec, codebase_id, file_path, line_start, line_end, language, chunk_type, name, parent_class, document, dependencies)
VALUES ($1, $2::vector, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE SET
  vec=EXCLUDED.vec, codebase_id=EXCLUDED.codebase_id, file_path=EXCLUDED.file_path,
  line_start=EXCLUDED.line_start, line_end=EXCLUDED.line_end, language=EXCLUDED.language,
  chunk_type=EXCLUDED.chunk_type, name=EXCLUDED.name, parent_class=EXCLUDED.parent_class,
  document=EXCLUDED.document, dependencies=EXCLUDED.dependencies
`, r.ID, toVectorLiteral(r.Vector), r.CodebaseID, r.FilePath, r.LineStart, r.LineEnd,
			r.Language, r.ChunkType, r.Name, r.ParentClass, r.Document, strings.Join(r.Dependencies, ","))
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", r.ID, err)
		}
	}
	return tx.Commit(ctx)
}

func (p *pgvectorStore) Query(ctx context.Context, vector []float32, k int, where Where) ([]Hit, error) {
	if k <= 0 {
		k = 10
	}
	op, scoreExpr := "<=>", "1 - (vec <=> $1::vector)"
	switch p.metric {
	case "l2", "euclidean":
		op, scoreExpr = "<->", "-(vec <-> $1::vector)"
	case "ip", "dot":
		op, scoreExpr = "<#>", "-(vec <#> $1::vector)"
	}

	clauses, args := []string{}, []any{toVectorLiteral(vector)}
	addClause := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	addClause("codebase_id", where.CodebaseID)
	addClause("language", where.Language)
	addClause("chunk_type", where.ChunkType)
	addClause("file_path", where.FilePath)

	whereSQL := ""
	if len(clauses) > 0 {
		whereSQL = "WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, k)
	query := fmt.Sprintf(`
SELECT id, %s AS score, codebase_id, file_path, line_start, line_end, language, chunk_type, name, parent_class, document, dependencies
FROM chunks %s ORDER BY vec %s $1::vector LIMIT $%d`, scoreExpr, whereSQL, op, len(args))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var deps string
		if err := rows.Scan(&h.ID, &h.Score, &h.CodebaseID, &h.FilePath, &h.LineStart, &h.LineEnd,
			&h.Language, &h.ChunkType, &h.Name, &h.ParentClass, &h.Document, &deps); err != nil {
			return nil, err
		}
		if deps != "" {
			h.Dependencies = strings.Split(deps, ",")
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (p *pgvectorStore) DeleteByCodebase(ctx context.Context, codebaseID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM chunks WHERE codebase_id=$1`, codebaseID)
	return err
}

func (p *pgvectorStore) Count(ctx context.Context, where Where) (int, error) {
	clauses, args := []string{}, []any{}
	addClause := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	addClause("codebase_id", where.CodebaseID)
	addClause("language", where.Language)
	addClause("chunk_type", where.ChunkType)
	addClause("file_path", where.FilePath)

	whereSQL := ""
	if len(clauses) > 0 {
		whereSQL = "WHERE " + strings.Join(clauses, " AND ")
	}
	var n int
	err := p.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM chunks %s`, whereSQL), args...).Scan(&n)
	return n, err
}

// toVectorLiteral renders v as the text form pgvector's input function
// expects, using the pgvector-go client library's own encoding instead of
// hand-rolled formatting so the wire representation matches what its Scan
// side would decode.
func toVectorLiteral(v []float32) string {
	return pgvector.NewVector(v).String()
}
