package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romiluz13/memory-engineering/pkg/store"
)

const testDimension = 4

// staticProvider returns the same vector for every input, or a fixed
// error when failWith is set.
type staticProvider struct {
	vector   []float32
	failWith error
	calls    int
}

func (p *staticProvider) EmbedDocument(ctx context.Context, texts []string) ([][]float32, error) {
	p.calls++
	if p.failWith != nil {
		return nil, p.failWith
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = p.vector
	}
	return out, nil
}

func (p *staticProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if p.failWith != nil {
		return nil, p.failWith
	}
	return p.vector, nil
}

func (p *staticProvider) Dimension() int { return testDimension }

func newTestService(t *testing.T, provider *staticProvider) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(store.Config{
		Path:      filepath.Join(t.TempDir(), "memory.db"),
		Dimension: testDimension,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := Config{Store: st, Logger: zerolog.Nop()}
	if provider != nil {
		cfg.Provider = provider
	}
	svc, err := NewService(cfg)
	require.NoError(t, err)
	return svc, st
}

func seedFoundation(t *testing.T, svc *Service, projectID string) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.Update(ctx, projectID, NameProjectBrief, passingBrief())
	require.NoError(t, err)
	for name, sections := range map[string][]string{
		NameProductContext: {"Problem", "Users", "Experience"},
		NameSystemPatterns: {"Architecture", "Patterns", "Decisions"},
		NameTechContext:    {"Technologies", "Setup", "Constraints"},
	} {
		_, err := svc.Update(ctx, projectID, name, sectionedContent(name, sections))
		require.NoError(t, err)
	}
}

func sectionedContent(title string, sections []string) string {
	content := "# " + title + "\n"
	for _, s := range sections {
		content += "\n## " + s + "\n\nEnough prose here to carry the section past the length floor.\n"
	}
	return content
}

func TestUpdateRejectsUnknownName(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.Update(context.Background(), "proj", "roadmap", passingBrief())
	var unknownErr *UnknownNameError
	require.ErrorAs(t, err, &unknownErr)
}

func TestUpdateRejectsMissingDependencies(t *testing.T) {
	svc, st := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Update(ctx, "proj", NameProjectBrief, passingBrief())
	require.NoError(t, err)

	// Only the brief exists, so the active memory names all three gaps.
	_, err = svc.Update(ctx, "proj", NameActiveContext, sectionedContent("Active",
		[]string{"Current Focus", "Recent Changes", "Next Steps"}))
	var depErr *DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, []string{NameProductContext, NameSystemPatterns, NameTechContext}, depErr.Missing)

	// Nothing was persisted for the rejected write.
	_, err = st.GetDocument(ctx, "proj", NameActiveContext)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateRejectsLowQuality(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.Update(context.Background(), "proj", NameProjectBrief, "tiny")
	var qualityErr *QualityError
	require.ErrorAs(t, err, &qualityErr)
	assert.NotEmpty(t, qualityErr.Guidance)
}

func TestUpdateVersionsAndEmbeds(t *testing.T) {
	provider := &staticProvider{vector: []float32{1, 0, 0, 0}}
	svc, _ := newTestService(t, provider)
	ctx := context.Background()

	doc, err := svc.Update(ctx, "proj", NameProjectBrief, passingBrief())
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Version)
	assert.True(t, doc.HasVector)

	doc, err = svc.Update(ctx, "proj", NameProjectBrief, passingBrief()+"\nRevised.\n")
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Version)
	assert.Equal(t, 2, provider.calls)
}

func TestUpdateSurvivesEmbeddingFailure(t *testing.T) {
	provider := &staticProvider{failWith: errors.New("provider down")}
	svc, st := newTestService(t, provider)
	ctx := context.Background()

	doc, err := svc.Update(ctx, "proj", NameProjectBrief, passingBrief())
	require.NoError(t, err)
	assert.False(t, doc.HasVector)

	stored, err := st.GetDocument(ctx, "proj", NameProjectBrief)
	require.NoError(t, err)
	assert.Equal(t, passingBrief(), stored.Content)
}

func TestUpdateFullHierarchy(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	seedFoundation(t, svc, "proj")

	_, err := svc.Update(ctx, "proj", NameActiveContext, sectionedContent("Active",
		[]string{"Current Focus", "Recent Changes", "Next Steps"}))
	require.NoError(t, err)

	_, err = svc.Update(ctx, "proj", NameProgress, sectionedContent("Progress",
		[]string{"Completed", "In Progress", "Known Issues"}))
	require.NoError(t, err)
}

func TestReadTouchesAccess(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Update(ctx, "proj", NameProjectBrief, passingBrief())
	require.NoError(t, err)

	first, err := svc.Read(ctx, "proj", NameProjectBrief)
	require.NoError(t, err)
	assert.Equal(t, 1, first.AccessCount)

	second, err := svc.Read(ctx, "proj", NameProjectBrief)
	require.NoError(t, err)
	assert.Equal(t, 2, second.AccessCount)
	assert.NotNil(t, second.LastAccessedAt)
}

func TestReadAll(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	seedFoundation(t, svc, "proj")

	docs, err := svc.ReadAll(ctx, "proj")
	require.NoError(t, err)
	assert.Len(t, docs, 4)
	for _, doc := range docs {
		assert.Equal(t, 1, doc.AccessCount)
	}
}

func TestSaveNoteBypassesHierarchy(t *testing.T) {
	svc, st := newTestService(t, nil)
	ctx := context.Background()

	doc, err := svc.SaveNote(ctx, "proj", "debug-session", "tried WAL checkpoint, no change")
	require.NoError(t, err)
	assert.Equal(t, store.ClassEphemeral, doc.Class)
	require.NotNil(t, doc.ExpiresAt)

	stored, err := st.GetDocument(ctx, "proj", "debug-session")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, stored.ID)

	_, err = svc.SaveNote(ctx, "proj", "empty", "")
	require.Error(t, err)
}

func TestSaveNoteRejectsManagedNames(t *testing.T) {
	svc, st := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Update(ctx, "proj", NameProjectBrief, passingBrief())
	require.NoError(t, err)

	// The ungated note path must not reach gated documents.
	_, err = svc.SaveNote(ctx, "proj", NameProjectBrief, "lol")
	require.Error(t, err)
	_, err = svc.SaveNote(ctx, "proj", NameProgress, "also reserved")
	require.Error(t, err)

	doc, err := st.GetDocument(ctx, "proj", NameProjectBrief)
	require.NoError(t, err)
	assert.Equal(t, passingBrief(), doc.Content)
	assert.Equal(t, 1, doc.Version)
}

func TestSaveNoteReplacesExpiredPredecessor(t *testing.T) {
	svc, st := newTestService(t, nil)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	_, err := st.UpsertDocument(ctx, store.UpsertParams{
		ProjectID: "proj", MemoryName: "debug-session", Class: store.ClassEphemeral,
		Content: "stale attempt", ExpiresAt: &past,
	})
	require.NoError(t, err)
	_, err = st.GetDocument(ctx, "proj", "debug-session")
	require.ErrorIs(t, err, store.ErrNotFound)

	doc, err := svc.SaveNote(ctx, "proj", "debug-session", "fresh attempt")
	require.NoError(t, err)
	require.NotNil(t, doc.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(EphemeralTTL), *doc.ExpiresAt, time.Minute)

	got, err := st.GetDocument(ctx, "proj", "debug-session")
	require.NoError(t, err)
	assert.Equal(t, "fresh attempt", got.Content)
}
