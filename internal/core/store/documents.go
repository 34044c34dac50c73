package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stevedore/stevedore/internal/core"
)

// CreateDocument inserts the record for a freshly uploaded object. A
// duplicate (backend_id, name) pair is rejected.
func (s *Store) CreateDocument(ctx context.Context, doc *core.Document) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if doc == nil {
		return errors.New("document is required")
	}
	if strings.TrimSpace(doc.ID) == "" || strings.TrimSpace(doc.Name) == "" {
		return errors.New("document id and name are required")
	}

	tags, err := encodeJSON(doc.Tags)
	if err != nil {
		return fmt.Errorf("encode document tags: %w", err)
	}
	metadata, err := encodeJSON(doc.Metadata)
	if err != nil {
		return fmt.Errorf("encode document metadata: %w", err)
	}

	uploadedAt := doc.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now().UTC()
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO documents (id, name, backend_id, size, content_type, tags, metadata, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.Name, doc.BackendID, doc.Size, doc.ContentType, tags, metadata, uploadedAt.Unix())
	if err != nil {
		return fmt.Errorf("store document: %w", err)
	}
	return nil
}

// GetDocument fetches one document by ID. Returns nil when not found.
func (s *Store) GetDocument(ctx context.Context, id string) (*core.Document, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT id, name, backend_id, size, content_type, tags, metadata, uploaded_at
		FROM documents
		WHERE id = ?
	`, id)

	doc, err := scanDocument(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns documents for a backend, newest first. A
// non-positive limit returns all.
func (s *Store) ListDocuments(ctx context.Context, backendID string, limit int) ([]*core.Document, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	query := `
		SELECT id, name, backend_id, size, content_type, tags, metadata, uploaded_at
		FROM documents
		WHERE backend_id = ?
		ORDER BY uploaded_at DESC
	`
	args := []any{backendID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	docs := []*core.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan documents: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

func scanDocument(scan func(...any) error) (*core.Document, error) {
	var (
		doc         core.Document
		contentType sql.NullString
		tags        sql.NullString
		metadata    sql.NullString
		uploadedAt  int64
	)
	if err := scan(&doc.ID, &doc.Name, &doc.BackendID, &doc.Size, &contentType, &tags, &metadata, &uploadedAt); err != nil {
		return nil, err
	}

	doc.ContentType = contentType.String
	doc.UploadedAt = time.Unix(uploadedAt, 0).UTC()
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &doc.Tags); err != nil {
			return nil, fmt.Errorf("decode document tags: %w", err)
		}
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decode document metadata: %w", err)
		}
	}
	return &doc, nil
}

func encodeJSON(value any) (sql.NullString, error) {
	switch v := value.(type) {
	case []string:
		if len(v) == 0 {
			return sql.NullString{}, nil
		}
	case map[string]string:
		if len(v) == 0 {
			return sql.NullString{}, nil
		}
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}
