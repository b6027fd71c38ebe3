package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/mrag/internal/models"
	"github.com/xhad/mrag/internal/types"
)

// undefinedTable is the Postgres error code for a missing relation.
const undefinedTable = "42P01"

type PgVectorConfig struct {
	ConnString string
	// HNSW build parameters
	M              int
	EfConstruction int
}

// PgVectorStore maps every collection to its own table.
type PgVectorStore struct {
	config PgVectorConfig
	pool   *pgxpool.Pool
}

func NewPgVectorWithConfig(ctx context.Context, config PgVectorConfig) (*PgVectorStore, error) {
	if config.ConnString == "" {
		return nil, fmt.Errorf("%w: pgvector connection string is empty", types.ErrInvalidInput)
	}
	if config.M == 0 {
		config.M = 16
	}
	if config.EfConstruction == 0 {
		config.EfConstruction = 64
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &PgVectorStore{
		config: config,
		pool:   pool,
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *PgVectorStore) initialize(ctx context.Context) error {
	if _, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	return nil
}

func (vs *PgVectorStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := vs.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	return exists, nil
}

func (vs *PgVectorStore) CreateCollection(ctx context.Context, name string, dim int, metric types.Metric) error {
	if dim <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", types.ErrInvalidInput, dim)
	}
	if err := checkMetric(metric); err != nil {
		return err
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	createTable := fmt.Sprintf(`
		CREATE TABLE %s (
			id BIGINT PRIMARY KEY,
			page INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, table(name), dim)
	if _, err := tx.Exec(ctx, createTable); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "42P07" {
			return fmt.Errorf("collection %s: %w", name, types.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX %s ON %s
		USING hnsw (embedding vector_cosine_ops)
		WITH (m = %d, ef_construction = %d)`,
		pgx.Identifier{name + "_embedding_idx"}.Sanitize(), table(name),
		vs.config.M, vs.config.EfConstruction)
	if _, err := tx.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Upsert writes all vectors in one transaction and returns once it commits.
func (vs *PgVectorStore) Upsert(ctx context.Context, name string, vectors []models.StoredVector) error {
	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, page, content, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			page = EXCLUDED.page,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding`,
		table(name))

	for _, v := range vectors {
		_, err := tx.Exec(ctx, stmt, v.ID, v.Payload.Page, v.Payload.Text, pgvector.NewVector(v.Embedding))
		if err != nil {
			return fmt.Errorf("failed to insert vector %d: %w", v.ID, mapError(name, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (vs *PgVectorStore) Search(ctx context.Context, name string, vector []float32, k int) ([]models.RetrievalHit, error) {
	if k <= 0 {
		return []models.RetrievalHit{}, nil
	}

	query := fmt.Sprintf(`
		SELECT id, page, content, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1, id
		LIMIT $2`,
		table(name))

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", mapError(name, err))
	}
	defer rows.Close()

	hits := make([]models.RetrievalHit, 0, k)
	for rows.Next() {
		var hit models.RetrievalHit
		if err := rows.Scan(&hit.ID, &hit.Page, &hit.Text, &hit.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", mapError(name, err))
	}

	// float rounding in the distance can reorder near-ties
	SortHits(hits)
	return hits, nil
}

func (vs *PgVectorStore) DropCollection(ctx context.Context, name string) error {
	if _, err := vs.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table(name))); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", name, err)
	}
	return nil
}

func (vs *PgVectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

func table(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func mapError(name string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case undefinedTable:
			return fmt.Errorf("collection %s: %w", name, types.ErrCollectionNotFound)
		case "22000":
			// "expected N dimensions, not M"
			return fmt.Errorf("%w: %s", types.ErrDimensionMismatch, pgErr.Message)
		}
	}
	return err
}
