package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/romiluz13/memory-engineering/internal/observability"
	"github.com/romiluz13/memory-engineering/pkg/embedding"
	"github.com/romiluz13/memory-engineering/pkg/store"
)

// EphemeralTTL is the fixed expiry horizon for ephemeral notes, set at
// creation. Core memories never expire.
const EphemeralTTL = 30 * 24 * time.Hour

// Service is the memory-document write and read path. Writes run the
// dependency gate and quality gate before anything is persisted, then
// regenerate the embedding synchronously. An embedding failure does not
// fail the write: content persists without a vector so durability wins
// over search completeness.
type Service struct {
	store     *store.Store
	provider  embedding.Provider // nil disables vectors
	validator *Validator
	logger    zerolog.Logger
}

// Config holds memory service configuration.
type Config struct {
	Store    *store.Store
	Provider embedding.Provider
	Rules    Rules // nil means DefaultRules
	Logger   zerolog.Logger
}

// NewService creates the memory service.
func NewService(cfg Config) (*Service, error) {
	observability.EnsureRegistered()

	if cfg.Store == nil {
		return nil, fmt.Errorf("memory: store is required")
	}
	rules := cfg.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("memory: %w", err)
	}

	return &Service{
		store:     cfg.Store,
		provider:  cfg.Provider,
		validator: NewValidator(rules),
		logger:    cfg.Logger,
	}, nil
}

// Update writes a core memory document. The write is rejected — with the
// stored state untouched — when the name is unknown, a declared
// dependency is missing, or the content grades below the quality
// threshold.
func (s *Service) Update(ctx context.Context, projectID, memoryName, content string) (*store.Document, error) {
	start := time.Now()
	defer func() { observability.RecordMemoryWrite(time.Since(start)) }()

	if err := s.validator.CheckName(memoryName); err != nil {
		return nil, err
	}

	existing, err := s.store.ExistingNames(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.validator.CheckDependencies(memoryName, existing); err != nil {
		return nil, err
	}
	if err := s.validator.CheckQuality(memoryName, content); err != nil {
		return nil, err
	}

	doc, err := s.store.UpsertDocument(ctx, store.UpsertParams{
		ProjectID:  projectID,
		MemoryName: memoryName,
		Class:      store.ClassCore,
		Content:    content,
		Vector:     s.embedContent(ctx, memoryName, content),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("project", projectID).
		Str("memory", memoryName).
		Int("version", doc.Version).
		Bool("has_vector", doc.HasVector).
		Msg("Memory updated")
	return doc, nil
}

// SaveNote writes an ephemeral note. Notes sit outside the dependency
// hierarchy and only require non-empty content; they expire EphemeralTTL
// after creation. Names from the core rule set are reserved: those
// documents are only reachable through the gated Update path.
func (s *Service) SaveNote(ctx context.Context, projectID, noteName, content string) (*store.Document, error) {
	if content == "" {
		return nil, fmt.Errorf("memory: note content must be non-empty")
	}
	if _, reserved := s.validator.Rule(noteName); reserved {
		return nil, fmt.Errorf("memory: %q is a managed memory name, write it with Update", noteName)
	}
	expires := time.Now().Add(EphemeralTTL)

	return s.store.UpsertDocument(ctx, store.UpsertParams{
		ProjectID:  projectID,
		MemoryName: noteName,
		Class:      store.ClassEphemeral,
		Content:    content,
		ExpiresAt:  &expires,
		Vector:     s.embedContent(ctx, noteName, content),
	})
}

// Read fetches one memory document. Access count and freshness are
// updated as a side effect of the read.
func (s *Service) Read(ctx context.Context, projectID, memoryName string) (*store.Document, error) {
	doc, err := s.store.GetDocument(ctx, projectID, memoryName)
	if err != nil {
		return nil, err
	}
	if err := s.store.TouchAccess(ctx, []string{doc.ID}); err != nil {
		return nil, err
	}
	doc.AccessCount++
	return doc, nil
}

// ReadAll returns every live document for a project, touching each one.
func (s *Service) ReadAll(ctx context.Context, projectID string) ([]store.Document, error) {
	docs, err := s.store.ListDocuments(ctx, projectID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(docs))
	for i := range docs {
		ids[i] = docs[i].ID
		docs[i].AccessCount++
	}
	if err := s.store.TouchAccess(ctx, ids); err != nil {
		return nil, err
	}
	observability.SetMemoryDocuments(len(docs))
	return docs, nil
}

// embedContent regenerates the content embedding synchronously. Returns
// nil when no provider is configured or the provider fails; failures are
// logged, never defaulted to zero vectors.
func (s *Service) embedContent(ctx context.Context, memoryName, content string) []float32 {
	if s.provider == nil {
		return nil
	}
	vectors, err := s.provider.EmbedDocument(ctx, []string{content})
	if err != nil {
		s.logger.Warn().Err(err).
			Str("memory", memoryName).
			Msg("Embedding failed, persisting content without vector")
		return nil
	}
	observability.RecordEmbeddingBatch(1)
	return vectors[0]
}
