// Package codeindex walks a source tree, chunks files into semantic
// units, embeds the chunks, and replaces the project's indexed chunk set
// wholesale. A filesystem watcher re-triggers indexing on change.
package codeindex

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/romiluz13/memory-engineering/internal/observability"
	"github.com/romiluz13/memory-engineering/pkg/chunker"
	"github.com/romiluz13/memory-engineering/pkg/embedding"
	"github.com/romiluz13/memory-engineering/pkg/memory"
	"github.com/romiluz13/memory-engineering/pkg/store"
)

// maxFileSize skips generated bundles and vendored blobs.
const maxFileSize = 1 << 20

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	".idea":        true,
	".vscode":      true,
}

var sourceExtensions = map[string]bool{
	".go": true, ".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".py": true, ".rb": true, ".rs": true, ".java": true, ".cs": true,
	".c": true, ".h": true, ".cpp": true, ".hpp": true, ".kt": true,
	".swift": true, ".php": true, ".scala": true,
}

// Summary reports one indexing run.
type Summary struct {
	CodebaseMapID string
	Files         int
	Chunks        int
	Embedded      int
	Elapsed       time.Duration
}

// Indexer builds the code index for one project root.
type Indexer struct {
	store    *store.Store
	chunker  chunker.Chunker
	provider embedding.Provider // nil indexes without vectors
	logger   zerolog.Logger
}

// NewIndexer creates an indexer.
func NewIndexer(st *store.Store, ch chunker.Chunker, provider embedding.Provider, logger zerolog.Logger) *Indexer {
	observability.EnsureRegistered()
	if ch == nil {
		ch = chunker.NewPatternChunker()
	}
	return &Indexer{store: st, chunker: ch, provider: provider, logger: logger}
}

// Index walks root, chunks every recognized source file, embeds the
// chunks in batches, and swaps the project's chunk set in one shot. Each
// run mints a fresh codebase map id; the previous index is fully
// replaced, never patched.
func (ix *Indexer) Index(ctx context.Context, projectID, root string) (*Summary, error) {
	start := time.Now()
	mapID := uuid.NewString()

	files, err := ix.collectFiles(root)
	if err != nil {
		return nil, err
	}

	var chunks []store.ChunkWithVector
	for _, path := range files {
		fileChunks, err := ix.chunkFile(projectID, mapID, root, path)
		if err != nil {
			ix.logger.Warn().Err(err).Str("file", path).Msg("Skipping unreadable file")
			continue
		}
		chunks = append(chunks, fileChunks...)
	}

	embedded := ix.embedChunks(ctx, chunks)

	if err := ix.store.ReplaceChunks(ctx, projectID, chunks); err != nil {
		return nil, fmt.Errorf("failed to replace chunk set: %w", err)
	}
	if err := ix.writeCodebaseMap(ctx, projectID, root, chunks); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	observability.RecordIndexSync(elapsed)
	observability.SetIndexedChunks(len(chunks))

	summary := &Summary{
		CodebaseMapID: mapID,
		Files:         len(files),
		Chunks:        len(chunks),
		Embedded:      embedded,
		Elapsed:       elapsed,
	}
	ix.logger.Info().
		Str("project", projectID).
		Int("files", summary.Files).
		Int("chunks", summary.Chunks).
		Int("embedded", summary.Embedded).
		Dur("elapsed", elapsed).
		Msg("Code index rebuilt")
	return summary, nil
}

func (ix *Indexer) collectFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !sourceExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > maxFileSize {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

func (ix *Indexer) chunkFile(projectID, mapID, root, path string) ([]store.ChunkWithVector, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	var out []store.ChunkWithVector
	for _, c := range ix.chunker.Chunk(rel, string(source)) {
		out = append(out, store.ChunkWithVector{Chunk: store.CodeChunk{
			ID:             uuid.NewString(),
			ProjectID:      projectID,
			CodebaseMapID:  mapID,
			FilePath:       rel,
			ChunkType:      string(c.Type),
			Name:           c.Name,
			Signature:      c.Signature,
			Content:        c.Content,
			Context:        c.Context,
			StartLine:      c.StartLine,
			EndLine:        c.EndLine,
			SearchableText: searchableText(rel, c),
			Dependencies:   c.Dependencies,
			Exports:        c.Exports,
			Patterns:       c.Patterns,
			Size:           len(c.Content),
		}})
	}
	return out, nil
}

// searchableText flattens the chunk's identity and body into the lexical
// index payload so queries match on names and paths, not just content.
func searchableText(filePath string, c chunker.Chunk) string {
	parts := []string{c.Name, c.Signature, filePath}
	parts = append(parts, c.Patterns...)
	parts = append(parts, c.Content)
	return strings.Join(parts, "\n")
}

// embedChunks fills in vectors batch by batch. A failed batch leaves its
// chunks vectorless; indexing never aborts on embedding errors.
func (ix *Indexer) embedChunks(ctx context.Context, chunks []store.ChunkWithVector) int {
	if ix.provider == nil || len(chunks) == 0 {
		return 0
	}

	embedded := 0
	for lo := 0; lo < len(chunks); lo += embedding.MaxBatchSize {
		hi := lo + embedding.MaxBatchSize
		if hi > len(chunks) {
			hi = len(chunks)
		}
		texts := make([]string, 0, hi-lo)
		for _, c := range chunks[lo:hi] {
			texts = append(texts, c.Chunk.SearchableText)
		}

		vectors, err := ix.provider.EmbedDocument(ctx, texts)
		if err != nil {
			ix.logger.Warn().Err(err).Int("from", lo).Int("to", hi).Msg("Chunk embedding batch failed")
			continue
		}
		observability.RecordEmbeddingBatch(len(texts))
		for i, vec := range vectors {
			chunks[lo+i].Vector = vec
			embedded++
		}
	}
	return embedded
}

// writeCodebaseMap refreshes the generated codebase map memory with a
// per-directory chunk census.
func (ix *Indexer) writeCodebaseMap(ctx context.Context, projectID, root string, chunks []store.ChunkWithVector) error {
	byDir := map[string]int{}
	for _, c := range chunks {
		dir := filepath.ToSlash(filepath.Dir(c.Chunk.FilePath))
		byDir[dir]++
	}
	dirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Codebase Map\n\nRoot: %s\nIndexed chunks: %d\n\n", root, len(chunks))
	for _, dir := range dirs {
		fmt.Fprintf(&sb, "- %s: %d chunks\n", dir, byDir[dir])
	}

	_, err := ix.store.UpsertDocument(ctx, store.UpsertParams{
		ProjectID:  projectID,
		MemoryName: memory.NameCodebaseMap,
		Class:      store.ClassCore,
		Content:    sb.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to write codebase map: %w", err)
	}
	return nil
}
