package codeindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romiluz13/memory-engineering/pkg/embedding"
	"github.com/romiluz13/memory-engineering/pkg/memory"
	"github.com/romiluz13/memory-engineering/pkg/store"
)

const testDimension = 4

type countingProvider struct {
	batches int
	inputs  int
}

func (p *countingProvider) EmbedDocument(ctx context.Context, texts []string) ([][]float32, error) {
	p.batches++
	p.inputs += len(texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

func (p *countingProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

func (p *countingProvider) Dimension() int { return testDimension }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(store.Config{
		Path:      filepath.Join(t.TempDir(), "index.db"),
		Dimension: testDimension,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

const goSource = `package billing

import "errors"

func ChargeCard(amount int) error {
	if amount <= 0 {
		return errors.New("invalid amount")
	}
	return nil
}

func RefundCard(amount int) error {
	return nil
}
`

func TestIndexBuildsChunksAndMap(t *testing.T) {
	st := newTestStore(t)
	root := writeTree(t, map[string]string{
		"billing/charge.go": goSource,
		"README.md":         "# readme, not source",
		"node_modules/pkg/index.js": "function skipped() {}",
	})

	provider := &countingProvider{}
	ix := NewIndexer(st, nil, provider, zerolog.Nop())

	summary, err := ix.Index(context.Background(), "proj", root)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Files)
	assert.Equal(t, 2, summary.Chunks)
	assert.Equal(t, summary.Chunks, summary.Embedded)
	assert.NotEmpty(t, summary.CodebaseMapID)

	chunks, err := st.ChunksByFile(context.Background(), "proj", "billing/charge.go")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "ChargeCard", chunks[0].Name)
	assert.Equal(t, "RefundCard", chunks[1].Name)
	assert.Contains(t, chunks[0].SearchableText, "billing/charge.go")

	mapDoc, err := st.GetDocument(context.Background(), "proj", memory.NameCodebaseMap)
	require.NoError(t, err)
	assert.Contains(t, mapDoc.Content, "billing: 2 chunks")
}

func TestReindexIsDeterministic(t *testing.T) {
	st := newTestStore(t)
	root := writeTree(t, map[string]string{"billing/charge.go": goSource})
	ix := NewIndexer(st, nil, nil, zerolog.Nop())
	ctx := context.Background()

	_, err := ix.Index(ctx, "proj", root)
	require.NoError(t, err)
	first, err := st.ChunksByFile(ctx, "proj", "billing/charge.go")
	require.NoError(t, err)

	_, err = ix.Index(ctx, "proj", root)
	require.NoError(t, err)
	second, err := st.ChunksByFile(ctx, "proj", "billing/charge.go")
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].StartLine, second[i].StartLine)
		assert.Equal(t, first[i].EndLine, second[i].EndLine)
		assert.Equal(t, first[i].Name, second[i].Name)
	}
}

func TestReindexReplacesStaleChunks(t *testing.T) {
	st := newTestStore(t)
	root := writeTree(t, map[string]string{
		"a.go": "package a\n\nfunc A() {}\n",
		"b.go": "package a\n\nfunc B() {}\n",
	})
	ix := NewIndexer(st, nil, nil, zerolog.Nop())
	ctx := context.Background()

	_, err := ix.Index(ctx, "proj", root)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "b.go")))
	summary, err := ix.Index(ctx, "proj", root)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Chunks)

	count, err := st.CountChunks(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIndexWithoutProviderSkipsEmbedding(t *testing.T) {
	st := newTestStore(t)
	root := writeTree(t, map[string]string{"a.go": "package a\n\nfunc A() {}\n"})
	ix := NewIndexer(st, nil, nil, zerolog.Nop())

	summary, err := ix.Index(context.Background(), "proj", root)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Embedded)
}

func TestEmbedChunksBatches(t *testing.T) {
	st := newTestStore(t)
	provider := &countingProvider{}
	ix := NewIndexer(st, nil, provider, zerolog.Nop())

	chunks := make([]store.ChunkWithVector, embedding.MaxBatchSize+5)
	for i := range chunks {
		chunks[i].Chunk.SearchableText = "text"
	}
	embedded := ix.embedChunks(context.Background(), chunks)
	assert.Equal(t, len(chunks), embedded)
	assert.Equal(t, 2, provider.batches)
	assert.Equal(t, len(chunks), provider.inputs)
}

func TestWatcherDebouncesSourceChanges(t *testing.T) {
	root := t.TempDir()
	fired := make(chan struct{}, 1)

	w, err := NewWatcher(zerolog.Nop(), func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Stop()
	require.NoError(t, w.Watch(root))

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("ignored"), 0o644))

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher callback never fired")
	}
}
