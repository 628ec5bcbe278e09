// Package search runs hybrid retrieval over memory documents and indexed
// code chunks: an ANN leg over content vectors fused with a lexical FTS
// leg, degrading to lexical-only when vectors are unavailable.
package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/romiluz13/memory-engineering/internal/observability"
	"github.com/romiluz13/memory-engineering/pkg/embedding"
	"github.com/romiluz13/memory-engineering/pkg/store"
)

// Mode selects the retrieval strategy.
type Mode string

const (
	ModeText   Mode = "text"
	ModeVector Mode = "vector"
	ModeHybrid Mode = "hybrid"
)

const (
	// DefaultLimit applies when the request leaves the limit unset.
	DefaultLimit = 10
	// MaxLimit caps the result count.
	MaxLimit = 50

	// vectorOversample widens the ANN pool before fusion so lexical
	// re-ranking has candidates to promote.
	vectorOversample = 10

	vectorWeight  = 0.7
	lexicalWeight = 0.3
)

// Request describes one search.
type Request struct {
	ProjectID string
	Query     string
	Mode      Mode   // empty means hybrid
	Limit     int    // 0 means DefaultLimit, clamped to [1, MaxLimit]
	FilePath  string // optional substring filter on code paths
}

// Result is one fused, ranked hit.
type Result struct {
	Source   store.Source `json:"source"`
	ID       string       `json:"id"`
	Title    string       `json:"title"`
	FilePath string       `json:"filePath,omitempty"`
	Score    float64      `json:"score"`
	Preview  string       `json:"preview"`
}

// Response is the ranked result set plus degradation signals.
type Response struct {
	Results  []Result `json:"results"`
	Mode     Mode     `json:"mode"`
	Fallback bool     `json:"fallback"` // true when a vector mode degraded to text
	Elapsed  time.Duration
}

// Engine executes searches against one store.
type Engine struct {
	store    *store.Store
	provider embedding.Provider // nil disables vector legs
	logger   zerolog.Logger
}

// NewEngine creates a search engine.
func NewEngine(st *store.Store, provider embedding.Provider, logger zerolog.Logger) *Engine {
	observability.EnsureRegistered()
	return &Engine{store: st, provider: provider, logger: logger}
}

// Search runs one query. Vector and hybrid modes degrade to text search,
// with the Fallback flag set, whenever no embeddings exist for the
// project or the query embedding cannot be produced; degradation is
// never an error.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	mode := req.Mode
	if mode == "" {
		mode = ModeHybrid
	}
	limit := clampLimit(req.Limit)

	resp, err := e.search(ctx, req, mode, limit)
	elapsed := time.Since(start)
	observability.RecordSearch(string(mode), elapsed, err == nil)
	if err != nil {
		return nil, err
	}
	resp.Elapsed = elapsed

	if err := e.touchMemoryHits(ctx, resp.Results); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to record memory access")
	}

	e.logger.Debug().
		Str("project", req.ProjectID).
		Str("mode", string(resp.Mode)).
		Bool("fallback", resp.Fallback).
		Int("results", len(resp.Results)).
		Dur("elapsed", elapsed).
		Msg("Search completed")
	return resp, nil
}

func (e *Engine) search(ctx context.Context, req Request, mode Mode, limit int) (*Response, error) {
	switch mode {
	case ModeText:
		results, err := e.lexical(ctx, req, limit)
		if err != nil {
			return nil, err
		}
		return &Response{Results: results, Mode: ModeText}, nil

	case ModeVector, ModeHybrid:
		queryVec, ok := e.queryVector(ctx, req)
		if !ok {
			results, err := e.lexical(ctx, req, limit)
			if err != nil {
				return nil, err
			}
			return &Response{Results: results, Mode: ModeText, Fallback: true}, nil
		}
		if mode == ModeVector {
			results, err := e.vector(ctx, req, queryVec, limit)
			if err != nil {
				return nil, err
			}
			return &Response{Results: results, Mode: ModeVector}, nil
		}
		results, err := e.hybrid(ctx, req, queryVec, limit)
		if err != nil {
			return nil, err
		}
		return &Response{Results: results, Mode: ModeHybrid}, nil

	default:
		return nil, fmt.Errorf("search: unknown mode %q", mode)
	}
}

// queryVector decides whether a vector leg can run and produces the query
// embedding. Any obstacle disables the leg instead of failing the search.
func (e *Engine) queryVector(ctx context.Context, req Request) ([]float32, bool) {
	if e.provider == nil {
		return nil, false
	}
	embedded, err := e.store.HasEmbeddings(ctx, req.ProjectID)
	if err != nil || !embedded {
		return nil, false
	}
	vec, err := e.provider.EmbedQuery(ctx, req.Query)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Query embedding failed, falling back to text search")
		return nil, false
	}
	return vec, true
}

func (e *Engine) lexical(ctx context.Context, req Request, limit int) ([]Result, error) {
	candidates, err := e.store.LexicalCandidates(ctx, req.ProjectID, req.Query, limit, req.FilePath)
	if err != nil {
		return nil, err
	}
	normalize(candidates)
	return e.toResults(req.Query, candidates, limit), nil
}

func (e *Engine) vector(ctx context.Context, req Request, queryVec []float32, limit int) ([]Result, error) {
	candidates, err := e.store.VectorCandidates(ctx, req.ProjectID, queryVec, limit, req.FilePath)
	if err != nil {
		return nil, err
	}
	normalize(candidates)
	return e.toResults(req.Query, candidates, limit), nil
}

// hybrid fuses an oversampled vector pool with an independent lexical
// pool. Each leg's scores are normalized to [0, 1] before the weighted
// sum so neither leg's native scale dominates.
func (e *Engine) hybrid(ctx context.Context, req Request, queryVec []float32, limit int) ([]Result, error) {
	vecPool, err := e.store.VectorCandidates(ctx, req.ProjectID, queryVec, limit*vectorOversample, req.FilePath)
	if err != nil {
		return nil, err
	}
	lexPool, err := e.store.LexicalCandidates(ctx, req.ProjectID, req.Query, limit*vectorOversample, req.FilePath)
	if err != nil {
		return nil, err
	}
	normalize(vecPool)
	normalize(lexPool)

	type fused struct {
		candidate store.Candidate
		score     float64
		order     int
	}
	merged := make(map[string]*fused)
	order := 0
	for _, c := range vecPool {
		merged[string(c.Source)+":"+c.ID] = &fused{candidate: c, score: vectorWeight * c.Score, order: order}
		order++
	}
	for _, c := range lexPool {
		key := string(c.Source) + ":" + c.ID
		if f, ok := merged[key]; ok {
			f.score += lexicalWeight * c.Score
			continue
		}
		merged[key] = &fused{candidate: c, score: lexicalWeight * c.Score, order: order}
		order++
	}

	all := make([]*fused, 0, len(merged))
	for _, f := range merged {
		all = append(all, f)
	}
	// Ties break on first-seen order so repeated searches rank
	// identically.
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].order < all[j].order
	})

	candidates := make([]store.Candidate, 0, len(all))
	for _, f := range all {
		c := f.candidate
		c.Score = f.score
		candidates = append(candidates, c)
	}
	return e.toResults(req.Query, candidates, limit), nil
}

func (e *Engine) toResults(query string, candidates []store.Candidate, limit int) []Result {
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, Result{
			Source:   c.Source,
			ID:       c.ID,
			Title:    c.Title,
			FilePath: c.FilePath,
			Score:    c.Score,
			Preview:  preview(c.Content, query),
		})
	}
	return results
}

// touchMemoryHits records access on every memory document that made the
// final result set.
func (e *Engine) touchMemoryHits(ctx context.Context, results []Result) error {
	var ids []string
	for _, r := range results {
		if r.Source == store.SourceMemory {
			ids = append(ids, r.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return e.store.TouchAccess(ctx, ids)
}

// normalize rescales one leg's scores to [0, 1] in place. A single
// candidate, or a flat pool, maps to 1.
func normalize(candidates []store.Candidate) {
	if len(candidates) == 0 {
		return
	}
	lo, hi := candidates[0].Score, candidates[0].Score
	for _, c := range candidates[1:] {
		if c.Score < lo {
			lo = c.Score
		}
		if c.Score > hi {
			hi = c.Score
		}
	}
	span := hi - lo
	for i := range candidates {
		if span == 0 {
			candidates[i].Score = 1
		} else {
			candidates[i].Score = (candidates[i].Score - lo) / span
		}
	}
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
