package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// ChunkWithVector pairs a chunk with its optional content vector.
type ChunkWithVector struct {
	Chunk  CodeChunk
	Vector []float32 // nil when the embedding step failed for this chunk
}

// ReplaceChunks swaps the full chunk set for a project in one
// transaction: delete by project, then insert the new set. The chunk set
// is never incrementally patched.
func (s *Store) ReplaceChunks(ctx context.Context, projectID string, chunks []ChunkWithVector) error {
	for _, c := range chunks {
		if c.Vector != nil && len(c.Vector) != s.dimension {
			return fmt.Errorf("%w: chunk %s has %d, store requires %d",
				ErrDimensionMismatch, c.Chunk.ID, len(c.Vector), s.dimension)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Existing chunk ids, so vector/fts rows can be removed with them.
	rows, err := tx.QueryContext(ctx, `SELECT id FROM code_chunks WHERE project_id = ?`, projectID)
	if err != nil {
		return fmt.Errorf("failed to list existing chunks: %w", err)
	}
	var oldIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		oldIDs = append(oldIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM code_chunks WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	for _, id := range oldIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_fts WHERE chunk_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete chunk lexical rows: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_vectors WHERE chunk_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete chunk vectors: %w", err)
		}
	}

	for _, c := range chunks {
		deps, _ := json.Marshal(c.Chunk.Dependencies)
		exports, _ := json.Marshal(c.Chunk.Exports)
		patterns, _ := json.Marshal(c.Chunk.Patterns)

		_, err := tx.ExecContext(ctx, `
			INSERT INTO code_chunks
				(id, project_id, codebase_map_id, file_path, chunk_type, name, signature,
				 content, context, start_line, end_line, searchable_text,
				 dependencies, exports, patterns, size_bytes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.Chunk.ID, projectID, c.Chunk.CodebaseMapID, c.Chunk.FilePath,
			c.Chunk.ChunkType, c.Chunk.Name, c.Chunk.Signature,
			c.Chunk.Content, c.Chunk.Context, c.Chunk.StartLine, c.Chunk.EndLine,
			c.Chunk.SearchableText, string(deps), string(exports), string(patterns), c.Chunk.Size,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.Chunk.ID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunk_fts (chunk_id, project_id, searchable_text) VALUES (?, ?, ?)`,
			c.Chunk.ID, projectID, c.Chunk.SearchableText,
		); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", c.Chunk.ID, err)
		}

		if c.Vector != nil {
			embeddingJSON, err := json.Marshal(c.Vector)
			if err != nil {
				return fmt.Errorf("failed to marshal chunk embedding: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO chunk_vectors (chunk_id, embedding) VALUES (?, ?)`,
				c.Chunk.ID, string(embeddingJSON),
			); err != nil {
				return fmt.Errorf("failed to store chunk vector: %w", err)
			}
		}
	}

	return tx.Commit()
}

// ChunksByFile returns the chunks indexed for one file, ordered by start
// line.
func (s *Store) ChunksByFile(ctx context.Context, projectID, filePath string) ([]CodeChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, codebase_map_id, file_path, chunk_type, name, signature,
		       content, context, start_line, end_line, searchable_text,
		       dependencies, exports, patterns, size_bytes
		FROM code_chunks
		WHERE project_id = ? AND file_path = ?
		ORDER BY start_line`,
		projectID, filePath,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []CodeChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *c)
	}
	return chunks, rows.Err()
}

// CountChunks returns the chunk count for a project.
func (s *Store) CountChunks(ctx context.Context, projectID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM code_chunks WHERE project_id = ?`, projectID,
	).Scan(&count)
	return count, err
}

func scanChunk(row rowScanner) (*CodeChunk, error) {
	var c CodeChunk
	var deps, exports, patterns string
	err := row.Scan(
		&c.ID, &c.ProjectID, &c.CodebaseMapID, &c.FilePath, &c.ChunkType,
		&c.Name, &c.Signature, &c.Content, &c.Context, &c.StartLine, &c.EndLine,
		&c.SearchableText, &deps, &exports, &patterns, &c.Size,
	)
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(deps), &c.Dependencies)
	json.Unmarshal([]byte(exports), &c.Exports)
	json.Unmarshal([]byte(patterns), &c.Patterns)
	return &c, nil
}
