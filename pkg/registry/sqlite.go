package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xhad/mrag/internal/models"
	"github.com/xhad/mrag/internal/types"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	filename     TEXT NOT NULL,
	path         TEXT NOT NULL,
	collection   TEXT NOT NULL,
	visual_cache TEXT NOT NULL DEFAULT '{}',
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at);
`

// SQLite persists the registry so documents survive a restart when the
// vector store is durable too.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create registry directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	// one connection keeps writes serialized and ":memory:" databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure registry: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create registry schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Put(ctx context.Context, doc models.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("%w: document id is empty", types.ErrInvalidInput)
	}
	cache, err := json.Marshal(doc.VisualCache)
	if err != nil {
		return fmt.Errorf("failed to encode visual cache: %w", err)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, filename, path, collection, visual_cache, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.Path, doc.Collection, string(cache), doc.CreatedAt.UnixNano())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("document %s: %w", doc.ID, types.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (models.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, filename, path, collection, visual_cache, created_at
		FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Document{}, fmt.Errorf("%w: %s", types.ErrDocumentNotFound, id)
	}
	return doc, err
}

func (s *SQLite) List(ctx context.Context) ([]models.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, path, collection, visual_cache, created_at
		FROM documents ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (models.Document, error) {
	var (
		doc     models.Document
		cache   string
		created int64
	)
	if err := row.Scan(&doc.ID, &doc.Filename, &doc.Path, &doc.Collection, &cache, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return doc, err
		}
		return doc, fmt.Errorf("failed to scan document: %w", err)
	}
	if err := json.Unmarshal([]byte(cache), &doc.VisualCache); err != nil {
		return doc, fmt.Errorf("failed to decode visual cache: %w", err)
	}
	doc.CreatedAt = time.Unix(0, created)
	return doc, nil
}
