package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres stores documents as jsonb rows keyed by path. Merge and field
// updates are read-modify-write inside a transaction with a row lock, so
// concurrent writers to the same document serialize instead of clobbering.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a Postgres-backed store with sane pool defaults.
func NewPostgres(connString string) (*Postgres, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the documents table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			path       TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			doc        JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS documents_collection_idx ON documents (collection, path);
	`)
	return err
}

// Close closes the underlying connection pool.
func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Get returns the document at path.
func (p *Postgres) Get(ctx context.Context, path string) (map[string]any, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx, `SELECT doc FROM documents WHERE path = $1`, path).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeDoc(raw)
}

// SetMerge merges fields into the document at path, creating it if absent.
func (p *Postgres) SetMerge(ctx context.Context, path string, fields map[string]any) error {
	if !validDocPath(path) {
		return fmt.Errorf("docstore: invalid document path %q", path)
	}
	return p.withDoc(ctx, path, true, func(doc map[string]any) error {
		mergeTopLevel(doc, fields)
		return nil
	})
}

// UpdateFields applies dotted-field-path updates to an existing document.
func (p *Postgres) UpdateFields(ctx context.Context, path string, updates map[string]any) error {
	return p.withDoc(ctx, path, false, func(doc map[string]any) error {
		for fp, v := range updates {
			if err := applyFieldPath(doc, fp, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// CollectionGroup returns all documents in collections of the given name.
func (p *Postgres) CollectionGroup(ctx context.Context, collection string) ([]Snapshot, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT path, doc FROM documents WHERE collection = $1 ORDER BY path
	`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Snapshot
	for rows.Next() {
		var path string
		var raw []byte
		if err := rows.Scan(&path, &raw); err != nil {
			return nil, err
		}
		doc, err := decodeDoc(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, Snapshot{Path: path, Data: doc})
	}
	return out, rows.Err()
}

// withDoc runs mutate against the locked current document and writes it back.
func (p *Postgres) withDoc(ctx context.Context, path string, createIfMissing bool, mutate func(map[string]any) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw []byte
	err = tx.QueryRowContext(ctx, `SELECT doc FROM documents WHERE path = $1 FOR UPDATE`, path).Scan(&raw)
	doc := map[string]any{}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if !createIfMissing {
			return ErrNotFound
		}
	case err != nil:
		return err
	default:
		if doc, err = decodeDoc(raw); err != nil {
			return err
		}
	}

	if err := mutate(doc); err != nil {
		return err
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (path, collection, doc)
		VALUES ($1, $2, $3)
		ON CONFLICT (path) DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()
	`, path, collectionOf(path), encoded)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func decodeDoc(raw []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("docstore: corrupt document payload: %w", err)
	}
	return doc, nil
}
