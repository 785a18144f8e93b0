package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alta-ny/chatbot/internal/models"
)

// DocumentStore is the registry of ingested knowledge documents. The vector
// index holds the chunks; this table remembers which chunk ids belong to
// which upload so they can be listed and deleted together.
type DocumentStore struct {
	db *DB
}

func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// Upsert records a document, replacing any previous entry with the same id.
func (s *DocumentStore) Upsert(rec *models.DocumentRecord) error {
	idsJSON, err := json.Marshal(rec.ChunkIDs)
	if err != nil {
		return fmt.Errorf("marshal chunk ids: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO documents (id, filename, source, chunk_ids, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename = excluded.filename,
			source = excluded.source,
			chunk_ids = excluded.chunk_ids,
			created_at = excluded.created_at
	`, rec.ID, rec.Filename, rec.Source, string(idsJSON), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// GetByID returns a document by id, or nil if not found.
func (s *DocumentStore) GetByID(id string) (*models.DocumentRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, filename, source, chunk_ids, created_at
		FROM documents WHERE id = ?
	`, id)
	rec, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return rec, nil
}

// List returns documents newest first.
func (s *DocumentStore) List(limit int) ([]*models.DocumentRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, filename, source, chunk_ids, created_at
		FROM documents
		ORDER BY created_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.DocumentRecord
	for rows.Next() {
		rec, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, rec)
	}
	return docs, rows.Err()
}

// Delete removes a document entry. Deleting an unknown id is not an error.
func (s *DocumentStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.DocumentRecord, error) {
	var rec models.DocumentRecord
	var source sql.NullString
	var idsJSON string
	if err := row.Scan(&rec.ID, &rec.Filename, &source, &idsJSON, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Source = source.String
	if err := json.Unmarshal([]byte(idsJSON), &rec.ChunkIDs); err != nil {
		return nil, fmt.Errorf("decode chunk ids: %w", err)
	}
	rec.ChunkCount = len(rec.ChunkIDs)
	return &rec, nil
}
