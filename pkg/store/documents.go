package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpsertParams holds the write-path parameters for one document.
type UpsertParams struct {
	ProjectID  string
	MemoryName string
	Class      string // ClassCore or ClassEphemeral
	Content    string
	ExpiresAt  *time.Time // ephemeral documents only
	// Vector is the regenerated content embedding. nil clears the stored
	// vector: a write whose embedding step failed still persists content.
	Vector []float32
}

// UpsertDocument creates or updates the single live document for
// (projectID, memoryName). Version increments by exactly 1 on update.
// The previous embedding is always invalidated: replaced when a vector is
// supplied, cleared otherwise.
func (s *Store) UpsertDocument(ctx context.Context, p UpsertParams) (*Document, error) {
	if p.Content == "" {
		return nil, fmt.Errorf("store: content must be non-empty")
	}
	if p.Vector != nil && len(p.Vector) != s.dimension {
		return nil, fmt.Errorf("%w: got %d, store requires %d", ErrDimensionMismatch, len(p.Vector), s.dimension)
	}
	if p.Class == "" {
		p.Class = ClassCore
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var id string
	var version int
	err = tx.QueryRowContext(ctx,
		`SELECT id, version FROM memory_documents WHERE project_id = ? AND memory_name = ?`,
		p.ProjectID, p.MemoryName,
	).Scan(&id, &version)

	switch {
	case err == sql.ErrNoRows:
		id = uuid.NewString()
		var expires interface{}
		if p.ExpiresAt != nil {
			expires = p.ExpiresAt.Unix()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO memory_documents
				(id, project_id, memory_name, class, content, version, last_modified, expires_at, has_vector, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?, ?, ?)`,
			id, p.ProjectID, p.MemoryName, p.Class, p.Content, now.Unix(), expires,
			boolToInt(p.Vector != nil), now.Unix(), now.Unix(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert document: %w", err)
		}
		version = 1
	case err != nil:
		return nil, fmt.Errorf("failed to look up document: %w", err)
	default:
		version++
		var expires interface{}
		if p.ExpiresAt != nil {
			expires = p.ExpiresAt.Unix()
		}
		// Class and expiry follow the write: re-creating a name whose
		// previous note expired gets a fresh horizon, not the stale one.
		_, err = tx.ExecContext(ctx, `
			UPDATE memory_documents
			SET content = ?, class = ?, version = ?, last_modified = ?, expires_at = ?, has_vector = ?, updated_at = ?
			WHERE id = ?`,
			p.Content, p.Class, version, now.Unix(), expires, boolToInt(p.Vector != nil), now.Unix(), id,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update document: %w", err)
		}
	}

	// Rebuild the lexical index row.
	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_fts WHERE doc_id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to clear lexical index: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO memory_fts (doc_id, project_id, content) VALUES (?, ?, ?)`,
		id, p.ProjectID, p.Content,
	); err != nil {
		return nil, fmt.Errorf("failed to write lexical index: %w", err)
	}

	// Content changed, so the old vector is stale either way.
	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_vectors WHERE doc_id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to clear vector index: %w", err)
	}
	if p.Vector != nil {
		embeddingJSON, err := json.Marshal(p.Vector)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal embedding: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memory_vectors (doc_id, embedding) VALUES (?, ?)`,
			id, string(embeddingJSON),
		); err != nil {
			return nil, fmt.Errorf("failed to write vector index: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	// Read back by id: the write succeeded even when it carried an
	// already-past expiry, so the expiry filter must not apply here.
	return s.GetDocumentByID(ctx, id)
}

const documentColumns = `id, project_id, memory_name, class, content, version,
	access_count, last_modified, last_accessed_at, expires_at, has_vector, created_at, updated_at`

// GetDocument fetches the live document for (projectID, memoryName).
// Expired ephemeral documents are treated as not found.
func (s *Store) GetDocument(ctx context.Context, projectID, memoryName string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM memory_documents
		WHERE project_id = ? AND memory_name = ?
		  AND (expires_at IS NULL OR expires_at > ?)`, documentColumns),
		projectID, memoryName, time.Now().Unix(),
	)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, projectID, memoryName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return doc, nil
}

// GetDocumentByID fetches a document by its store ID. Unlike the
// name-based lookups it does not apply the expiry filter: callers
// holding an id want the row as written.
func (s *Store) GetDocumentByID(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM memory_documents
		WHERE id = ?`, documentColumns),
		id,
	)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns all live documents for a project.
func (s *Store) ListDocuments(ctx context.Context, projectID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM memory_documents
		WHERE project_id = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY memory_name`, documentColumns),
		projectID, time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// ExistingNames returns the set of live memory names for a project. Used
// by the dependency gate.
func (s *Store) ExistingNames(ctx context.Context, projectID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_name FROM memory_documents
		WHERE project_id = ? AND (expires_at IS NULL OR expires_at > ?)`,
		projectID, time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list memory names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names[name] = true
	}
	return names, rows.Err()
}

// TouchAccess increments access counters and refreshes the freshness
// timestamp for the given documents, as a side effect of a read.
func (s *Store) TouchAccess(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}
	now := time.Now().Unix()
	for _, id := range docIDs {
		if _, err := s.db.ExecContext(ctx, `
			UPDATE memory_documents
			SET access_count = access_count + 1, last_accessed_at = ?
			WHERE id = ?`, now, id,
		); err != nil {
			return fmt.Errorf("failed to touch document %s: %w", id, err)
		}
	}
	return nil
}

// HasEmbeddings reports whether any document or chunk vector exists for
// the project. Hybrid search degrades to text-only when false.
func (s *Store) HasEmbeddings(ctx context.Context, projectID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM memory_documents WHERE project_id = ? AND has_vector = 1) +
			(SELECT COUNT(*) FROM code_chunks c WHERE c.project_id = ?
				AND EXISTS (SELECT 1 FROM chunk_vectors v WHERE v.chunk_id = c.id))`,
		projectID, projectID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return count > 0, nil
}

// PurgeExpiredDocuments hard-deletes ephemeral documents past their
// expiry, including their index rows. Core memories never expire.
func (s *Store) PurgeExpiredDocuments(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM memory_documents WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		time.Now().Unix(),
	)
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM memory_documents WHERE id = ?`, id); err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM memory_fts WHERE doc_id = ?`, id); err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM memory_vectors WHERE doc_id = ?`, id); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(ids), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var d Document
	var lastModified, createdAt, updatedAt int64
	var lastAccessed, expires sql.NullInt64
	var hasVector int

	err := row.Scan(
		&d.ID, &d.ProjectID, &d.MemoryName, &d.Class, &d.Content, &d.Version,
		&d.AccessCount, &lastModified, &lastAccessed, &expires, &hasVector,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.LastModified = time.Unix(lastModified, 0).UTC()
	d.LastAccessedAt = nullableTime(lastAccessed)
	d.ExpiresAt = nullableTime(expires)
	d.HasVector = hasVector == 1
	d.CreatedAt = time.Unix(createdAt, 0).UTC()
	d.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
