package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

var ftsTokenizer = regexp.MustCompile(`[A-Za-z0-9_]+`)

// ftsQuery converts free text into a safe FTS5 MATCH expression: quoted
// tokens joined with OR. Returns "" when no tokens survive.
func ftsQuery(query string) string {
	tokens := ftsTokenizer.FindAllString(query, -1)
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = `"` + tok + `"`
	}
	return strings.Join(quoted, " OR ")
}

// VectorCandidates retrieves the nearest documents and chunks by cosine
// similarity, filtered by project. limit applies per index leg; the
// combined list is sorted by similarity.
func (s *Store) VectorCandidates(ctx context.Context, projectID string, vector []float32, limit int, filePathFilter string) ([]Candidate, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: got %d, store requires %d", ErrDimensionMismatch, len(vector), s.dimension)
	}
	embeddingJSON, err := json.Marshal(vector)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query embedding: %w", err)
	}
	query := string(embeddingJSON)

	var candidates []Candidate

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.memory_name, d.content, vec_distance_cosine(v.embedding, ?) AS distance
		FROM memory_vectors v
		JOIN memory_documents d ON d.id = v.doc_id
		WHERE d.project_id = ? AND (d.expires_at IS NULL OR d.expires_at > ?)
		ORDER BY distance ASC
		LIMIT ?`,
		query, projectID, time.Now().Unix(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("memory vector search failed: %w", err)
	}
	for rows.Next() {
		var c Candidate
		var distance float64
		if err := rows.Scan(&c.ID, &c.Title, &c.Content, &distance); err != nil {
			rows.Close()
			return nil, err
		}
		c.Source = SourceMemory
		c.Score = 1.0 - distance
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chunkSQL := `
		SELECT c.id, c.name, c.file_path, c.content, vec_distance_cosine(v.embedding, ?) AS distance
		FROM chunk_vectors v
		JOIN code_chunks c ON c.id = v.chunk_id
		WHERE c.project_id = ?`
	args := []interface{}{query, projectID}
	if filePathFilter != "" {
		chunkSQL += ` AND c.file_path LIKE ?`
		args = append(args, "%"+filePathFilter+"%")
	}
	chunkSQL += ` ORDER BY distance ASC LIMIT ?`
	args = append(args, limit)

	rows, err = s.db.QueryContext(ctx, chunkSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("chunk vector search failed: %w", err)
	}
	for rows.Next() {
		var c Candidate
		var distance float64
		if err := rows.Scan(&c.ID, &c.Title, &c.FilePath, &c.Content, &distance); err != nil {
			rows.Close()
			return nil, err
		}
		c.Source = SourceCode
		c.Score = 1.0 - distance
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates, nil
}

// LexicalCandidates retrieves documents and chunks matching the query
// terms via the FTS5 inverted index, filtered by project. BM25 scores are
// negated so that higher is better.
func (s *Store) LexicalCandidates(ctx context.Context, projectID, query string, limit int, filePathFilter string) ([]Candidate, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	var candidates []Candidate

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.doc_id, d.memory_name, d.content, bm25(memory_fts) AS score
		FROM memory_fts f
		JOIN memory_documents d ON d.id = f.doc_id
		WHERE memory_fts MATCH ? AND f.project_id = ?
		  AND (d.expires_at IS NULL OR d.expires_at > ?)
		ORDER BY score
		LIMIT ?`,
		match, projectID, time.Now().Unix(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("memory lexical search failed: %w", err)
	}
	for rows.Next() {
		var c Candidate
		var score float64
		if err := rows.Scan(&c.ID, &c.Title, &c.Content, &score); err != nil {
			rows.Close()
			return nil, err
		}
		c.Source = SourceMemory
		c.Score = -score
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chunkSQL := `
		SELECT f.chunk_id, c.name, c.file_path, c.content, bm25(chunk_fts) AS score
		FROM chunk_fts f
		JOIN code_chunks c ON c.id = f.chunk_id
		WHERE chunk_fts MATCH ? AND f.project_id = ?`
	args := []interface{}{match, projectID}
	if filePathFilter != "" {
		chunkSQL += ` AND c.file_path LIKE ?`
		args = append(args, "%"+filePathFilter+"%")
	}
	chunkSQL += ` ORDER BY score LIMIT ?`
	args = append(args, limit)

	rows, err = s.db.QueryContext(ctx, chunkSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("chunk lexical search failed: %w", err)
	}
	for rows.Next() {
		var c Candidate
		var score float64
		if err := rows.Scan(&c.ID, &c.Title, &c.FilePath, &c.Content, &score); err != nil {
			rows.Close()
			return nil, err
		}
		c.Source = SourceCode
		c.Score = -score
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates, nil
}
