package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"code-doc-assistant/internal/config"
)

// New resolves the configured backend into a VectorStore, matching the
// backend-switch pattern used throughout this codebase's persistence layer.
func New(ctx context.Context, cfg config.VectorStoreConfig) (VectorStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "qdrant":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("vectorstore: qdrant backend requires a dsn")
		}
		return NewQdrant(cfg.DSN, cfg.Collection, cfg.Dimension, cfg.Metric)
	case "pgvector", "postgres", "pg":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("vectorstore: pgvector backend requires a dsn")
		}
		pool, err := newPool(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: connect postgres: %w", err)
		}
		return NewPgvector(ctx, pool, cfg.Dimension, cfg.Metric)
	default:
		return nil, fmt.Errorf("vectorstore: unsupported backend %q", cfg.Backend)
	}
}

func newPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pcfg.MaxConns = 8
	pcfg.MinConns = 0
	pcfg.MaxConnLifetime = time.Hour
	pcfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
