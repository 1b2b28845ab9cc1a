package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spirit-led-software/theaistudybible-sub004/core/errors"
	"github.com/spirit-led-software/theaistudybible-sub004/core/sqlite"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/logging"
)

const service = "vector"

const docsSchema = `
CREATE TABLE IF NOT EXISTS docs (
    id        TEXT PRIMARY KEY,
    content   TEXT NOT NULL,
    meta      TEXT NOT NULL DEFAULT '{}',
    embedding BLOB,
    model     TEXT NOT NULL DEFAULT '',
    added_at  TEXT NOT NULL
);
`

// deleteChunk bounds the number of ids bound to one DELETE statement.
const deleteChunk = 500

// SQLiteStore keeps documents in a docs table on SQLite.
type SQLiteStore struct {
	db *sql.DB

	// Model is recorded with every stored document.
	Model string
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens the document database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, errors.NewUpstream(service, "open", err)
	}
	s, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps db and ensures the docs table exists.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("vector: db is nil")
	}
	if _, err := db.Exec(docsSchema); err != nil {
		return nil, errors.NewUpstream(service, "ensure_schema", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AddDocuments inserts or replaces documents in one transaction.
func (s *SQLiteStore) AddDocuments(ctx context.Context, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	start := time.Now()
	defer func() { logging.StoreCall(ctx, service, "add_documents", time.Since(start), "count", len(docs)) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewUpstream(service, "add_documents", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO docs (id, content, meta, embedding, model, added_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, errors.NewUpstream(service, "add_documents", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.ID == "" {
			return nil, errors.NewValidation("document.id", "must be set")
		}
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return nil, fmt.Errorf("vector: encode metadata of %s: %w", d.ID, err)
		}
		if d.Metadata == nil {
			meta = []byte("{}")
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Content, string(meta), EncodeEmbedding(d.Embedding), s.Model, now); err != nil {
			return nil, errors.NewUpstream(service, "add_documents", err)
		}
		ids = append(ids, d.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewUpstream(service, "add_documents", err)
	}
	return ids, nil
}

// DeleteDocuments removes documents by id.
func (s *SQLiteStore) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { logging.StoreCall(ctx, service, "delete_documents", time.Since(start), "count", len(ids)) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewUpstream(service, "delete_documents", err)
	}
	defer func() { _ = tx.Rollback() }()

	for startIdx := 0; startIdx < len(ids); startIdx += deleteChunk {
		chunk := ids[startIdx:min(startIdx+deleteChunk, len(ids))]
		args := make([]any, len(chunk))
		marks := make([]byte, 0, len(chunk)*2)
		for i, id := range chunk {
			args[i] = id
			if i > 0 {
				marks = append(marks, ',')
			}
			marks = append(marks, '?')
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM docs WHERE id IN (`+string(marks)+`)`, args...); err != nil {
			return errors.NewUpstream(service, "delete_documents", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.NewUpstream(service, "delete_documents", err)
	}
	return nil
}

// Get returns one stored document with its embedding.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Document, error) {
	var (
		d    Document
		meta string
		emb  []byte
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, content, meta, embedding FROM docs WHERE id = ?`, id).
		Scan(&d.ID, &d.Content, &meta, &emb)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("document", id)
	}
	if err != nil {
		return nil, errors.NewUpstream(service, "get_document", err)
	}
	if err := json.Unmarshal([]byte(meta), &d.Metadata); err != nil {
		return nil, fmt.Errorf("vector: decode metadata of %s: %w", id, err)
	}
	if d.Embedding, err = DecodeEmbedding(emb); err != nil {
		return nil, err
	}
	return &d, nil
}

// Count returns the number of stored documents.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM docs`).Scan(&n); err != nil {
		return 0, errors.NewUpstream(service, "count_documents", err)
	}
	return n, nil
}
