package search

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romiluz13/memory-engineering/pkg/store"
)

const testDimension = 4

type queryProvider struct {
	vector   []float32
	failWith error
}

func (p *queryProvider) EmbedDocument(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = p.vector
	}
	return out, nil
}

func (p *queryProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if p.failWith != nil {
		return nil, p.failWith
	}
	return p.vector, nil
}

func (p *queryProvider) Dimension() int { return testDimension }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(store.Config{
		Path:      filepath.Join(t.TempDir(), "search.db"),
		Dimension: testDimension,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedDoc(t *testing.T, st *store.Store, projectID, name, content string, vector []float32) *store.Document {
	t.Helper()
	doc, err := st.UpsertDocument(context.Background(), store.UpsertParams{
		ProjectID:  projectID,
		MemoryName: name,
		Class:      store.ClassCore,
		Content:    content,
		Vector:     vector,
	})
	require.NoError(t, err)
	return doc
}

func TestSearchTextMode(t *testing.T) {
	st := newTestStore(t)
	seedDoc(t, st, "proj", "techContext", "The service uses SQLite with WAL journaling.", nil)
	seedDoc(t, st, "proj", "progress", "Shipped the importer last week.", nil)

	engine := NewEngine(st, nil, zerolog.Nop())
	resp, err := engine.Search(context.Background(), Request{
		ProjectID: "proj",
		Query:     "sqlite journaling",
		Mode:      ModeText,
	})
	require.NoError(t, err)
	assert.Equal(t, ModeText, resp.Mode)
	assert.False(t, resp.Fallback)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "techContext", resp.Results[0].Title)
}

func TestHybridFallsBackWithoutEmbeddings(t *testing.T) {
	st := newTestStore(t)
	// Content only, no vectors anywhere in the project.
	seedDoc(t, st, "proj", "projectbrief", "A scheduler for batch jobs.", nil)

	provider := &queryProvider{vector: []float32{1, 0, 0, 0}}
	engine := NewEngine(st, provider, zerolog.Nop())

	resp, err := engine.Search(context.Background(), Request{ProjectID: "proj", Query: "scheduler"})
	require.NoError(t, err)
	assert.True(t, resp.Fallback)
	assert.Equal(t, ModeText, resp.Mode)
	require.Len(t, resp.Results, 1)
}

func TestHybridFallsBackOnQueryEmbeddingFailure(t *testing.T) {
	st := newTestStore(t)
	seedDoc(t, st, "proj", "projectbrief", "A scheduler for batch jobs.", []float32{1, 0, 0, 0})

	provider := &queryProvider{vector: []float32{1, 0, 0, 0}, failWith: errors.New("provider down")}
	engine := NewEngine(st, provider, zerolog.Nop())

	resp, err := engine.Search(context.Background(), Request{ProjectID: "proj", Query: "scheduler"})
	require.NoError(t, err)
	assert.True(t, resp.Fallback)
	assert.Equal(t, ModeText, resp.Mode)
}

func TestHybridFusesBothLegs(t *testing.T) {
	st := newTestStore(t)
	// Close to the query vector but lexically unrelated.
	seedDoc(t, st, "proj", "systemPatterns", "Components communicate over a message bus.", []float32{0.9, 0.1, 0, 0})
	// Lexically on target but far in vector space.
	seedDoc(t, st, "proj", "techContext", "Retry policy uses exponential backoff with jitter.", []float32{0, 0, 0.9, 0.1})

	provider := &queryProvider{vector: []float32{1, 0, 0, 0}}
	engine := NewEngine(st, provider, zerolog.Nop())

	resp, err := engine.Search(context.Background(), Request{
		ProjectID: "proj",
		Query:     "exponential backoff jitter",
	})
	require.NoError(t, err)
	assert.Equal(t, ModeHybrid, resp.Mode)
	assert.False(t, resp.Fallback)
	require.Len(t, resp.Results, 2)

	titles := []string{resp.Results[0].Title, resp.Results[1].Title}
	assert.ElementsMatch(t, []string{"systemPatterns", "techContext"}, titles)
	// Vector weight dominates: the near neighbor outranks the lexical hit.
	assert.Equal(t, "systemPatterns", resp.Results[0].Title)
}

func TestHybridDeterministicWithLimit(t *testing.T) {
	st := newTestStore(t)
	for i := 0; i < 12; i++ {
		vec := []float32{float32(i+1) / 12, 1 - float32(i+1)/12, 0, 0}
		seedDoc(t, st, "proj", fmt.Sprintf("note-%02d", i), fmt.Sprintf("indexing pipeline stage %d", i), vec)
	}

	provider := &queryProvider{vector: []float32{1, 0, 0, 0}}
	engine := NewEngine(st, provider, zerolog.Nop())

	req := Request{ProjectID: "proj", Query: "indexing pipeline", Limit: 5}
	first, err := engine.Search(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, first.Results, 5)

	for i := 0; i < 3; i++ {
		again, err := engine.Search(context.Background(), req)
		require.NoError(t, err)
		require.Len(t, again.Results, 5)
		for j := range first.Results {
			assert.Equal(t, first.Results[j].ID, again.Results[j].ID)
		}
	}
}

func TestSearchTouchesMemoryHits(t *testing.T) {
	st := newTestStore(t)
	seedDoc(t, st, "proj", "activeContext", "Currently migrating the ingest path.", nil)

	engine := NewEngine(st, nil, zerolog.Nop())
	_, err := engine.Search(context.Background(), Request{ProjectID: "proj", Query: "ingest", Mode: ModeText})
	require.NoError(t, err)

	doc, err := st.GetDocument(context.Background(), "proj", "activeContext")
	require.NoError(t, err)
	assert.Equal(t, 1, doc.AccessCount)
}

func TestSearchProjectIsolation(t *testing.T) {
	st := newTestStore(t)
	seedDoc(t, st, "alpha", "projectbrief", "payment gateway integration", nil)
	seedDoc(t, st, "beta", "projectbrief", "payment gateway integration", nil)

	engine := NewEngine(st, nil, zerolog.Nop())
	resp, err := engine.Search(context.Background(), Request{ProjectID: "alpha", Query: "payment", Mode: ModeText})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
}

func TestSearchUnknownMode(t *testing.T) {
	engine := NewEngine(newTestStore(t), nil, zerolog.Nop())
	_, err := engine.Search(context.Background(), Request{ProjectID: "proj", Query: "x", Mode: "fuzzy"})
	require.Error(t, err)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, clampLimit(0))
	assert.Equal(t, DefaultLimit, clampLimit(-3))
	assert.Equal(t, 1, clampLimit(1))
	assert.Equal(t, MaxLimit, clampLimit(500))
}

func TestNormalize(t *testing.T) {
	pool := []store.Candidate{{Score: 2}, {Score: 6}, {Score: 4}}
	normalize(pool)
	assert.Equal(t, 0.0, pool[0].Score)
	assert.Equal(t, 1.0, pool[1].Score)
	assert.Equal(t, 0.5, pool[2].Score)

	flat := []store.Candidate{{Score: 3}, {Score: 3}}
	normalize(flat)
	assert.Equal(t, 1.0, flat[0].Score)
	assert.Equal(t, 1.0, flat[1].Score)
}
