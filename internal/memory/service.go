// Package memory implements the memory engine: storing and recalling
// memories, forgetting-curve decay, and the persona/reflection model. It sits
// on top of the pluggable store, embedder, and cache backends.
package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/memkeep/memkeep/internal/config"
	"github.com/memkeep/memkeep/internal/metrics"
	"github.com/memkeep/memkeep/internal/model"
	metricsstore "github.com/memkeep/memkeep/internal/plugin/store/metrics"
	registrycache "github.com/memkeep/memkeep/internal/registry/cache"
	registryembed "github.com/memkeep/memkeep/internal/registry/embed"
	registrystore "github.com/memkeep/memkeep/internal/registry/store"
)

// Service is the memory engine facade. All operations are safe for concurrent
// use; consistency guarantees come from the underlying store.
type Service struct {
	cfg      *config.Config
	store    registrystore.MemoryStore
	embedder registryembed.Embedder
	cache    registrycache.MemoryCache
}

// New builds a Service from the config carried in ctx. When the configured
// postgres store is unreachable it degrades to the in-process store with a
// warning instead of failing, so the assistant keeps a working (if
// non-persistent) memory.
func New(ctx context.Context) (*Service, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("no config in context")
	}
	metrics.Init()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	embedder, err := openEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cacheLoader, err := registrycache.Select(cfg.CacheType)
	if err != nil {
		return nil, err
	}
	cache, err := cacheLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	return &Service{
		cfg:      cfg,
		store:    metricsstore.Wrap(st),
		embedder: embedder,
		cache:    cache,
	}, nil
}

// NewWithBackends wires a Service directly onto the given backends. Tests use
// this to pair the in-process store with a deterministic embedder.
func NewWithBackends(cfg *config.Config, st registrystore.MemoryStore, embedder registryembed.Embedder, cache registrycache.MemoryCache) *Service {
	return &Service{cfg: cfg, store: st, embedder: embedder, cache: cache}
}

func openStore(ctx context.Context, cfg *config.Config) (registrystore.MemoryStore, error) {
	storeType := cfg.ResolvedStoreType()
	loader, err := registrystore.Select(storeType)
	if err != nil {
		return nil, err
	}
	st, err := loader(ctx)
	if err == nil {
		log.Info("Memory store ready", "store", st.Name())
		return st, nil
	}

	var unavailable *registrystore.StorageUnavailableError
	if storeType == "postgres" && errors.As(err, &unavailable) {
		log.Warn("Database unreachable, falling back to in-process store; memories will not persist", "error", err)
		fallback, ferr := registrystore.Select("memory")
		if ferr != nil {
			return nil, ferr
		}
		return fallback(ctx)
	}
	return nil, err
}

func openEmbedder(ctx context.Context, cfg *config.Config) (registryembed.Embedder, error) {
	loader, err := registryembed.Select(cfg.EmbedType)
	if err != nil {
		return nil, err
	}
	embedder, err := loader(ctx)
	if err != nil {
		// A broken embedder disables semantic search but never the engine.
		log.Warn("Embedding provider unavailable, semantic search disabled", "embed", cfg.EmbedType, "error", err)
		fallback, ferr := registryembed.Select("none")
		if ferr != nil {
			return nil, ferr
		}
		return fallback(ctx)
	}
	return embedder, nil
}

// Store returns the underlying store. Exposed for the CLI and tests.
func (s *Service) Store() registrystore.MemoryStore { return s.store }

// Close releases the underlying store.
func (s *Service) Close() error { return s.store.Close() }

// StoreInput describes a new memory. Content may be a plain string (stored as
// {"text": ...}) or a structured document.
type StoreInput struct {
	MemoryType       string
	Content          interface{}
	Title            *string
	Importance       *float64
	EmotionalContext model.Document
	Tags             []string
	ExpiresAt        *time.Time
	// SessionID overrides the config session when set.
	SessionID string
	// CreatedAt overrides the insertion time when set. Tests age memories
	// this way; normal callers leave it zero.
	CreatedAt time.Time
}

// StoreResult reports what StoreMemory persisted.
type StoreResult struct {
	MemoryID     int64     `json:"memoryId"`
	HasEmbedding bool      `json:"hasEmbedding"`
	CreatedAt    time.Time `json:"createdAt"`
}

// StoreMemory persists a new memory. The embedding is computed before any
// store call so no database connection is held during inference; when the
// embedder is unavailable the memory is stored without a vector.
func (s *Service) StoreMemory(ctx context.Context, in StoreInput) (*StoreResult, error) {
	content, err := normalizeContent(in.Content)
	if err != nil {
		return nil, err
	}
	memoryType := in.MemoryType
	if memoryType == "" {
		memoryType = "note"
	}
	importance := 0.5
	if in.Importance != nil {
		importance = clamp01(*in.Importance)
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(time.Now()) {
		return nil, &registrystore.ValidationError{Field: "expiresAt", Message: "must be in the future"}
	}

	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = s.cfg.SessionID
	}

	m := &model.Memory{
		ProjectID:        s.cfg.ProjectID,
		SessionID:        sessionID,
		MemoryType:       memoryType,
		Title:            in.Title,
		Content:          content,
		ImportanceScore:  importance,
		EmotionalContext: in.EmotionalContext,
		Tags:             in.Tags,
		ExpiresAt:        in.ExpiresAt,
		CreatedAt:        in.CreatedAt,
	}
	if m.EmotionalContext == nil {
		m.EmotionalContext = model.Document{}
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}

	if vec := s.embedText(ctx, embeddingText(in.Title, content)); vec != nil {
		m.Embedding = vec
	}

	if err := s.store.Insert(ctx, m); err != nil {
		return nil, err
	}
	log.Debug("Stored memory", "id", m.ID, "type", m.MemoryType, "hasEmbedding", m.Embedding != nil)
	return &StoreResult{
		MemoryID:     m.ID,
		HasEmbedding: m.Embedding != nil,
		CreatedAt:    m.CreatedAt,
	}, nil
}

// GetMemory returns a memory by id, reading through the cache when one is
// configured.
func (s *Service) GetMemory(ctx context.Context, id int64) (*model.Memory, error) {
	if s.cache.Available() {
		if m, err := s.cache.Get(ctx, id); err == nil && m != nil && !m.Expired(time.Now()) {
			return m, nil
		}
	}
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache.Available() {
		if cerr := s.cache.Set(ctx, m, s.cfg.CacheTTL); cerr != nil {
			log.Warn("Cache set failed", "id", id, "error", cerr)
		}
	}
	return m, nil
}

// UpdateInput describes a partial memory update.
type UpdateInput struct {
	Content          interface{}
	Title            *string
	Importance       *float64
	EmotionalContext model.Document
	AddTags          []string
}

// UpdateMemory applies a partial update. Content or title changes recompute
// the embedding (before the store call); the cache entry is invalidated.
func (s *Service) UpdateMemory(ctx context.Context, id int64, in UpdateInput) (*model.Memory, error) {
	u := registrystore.MemoryUpdate{
		Title:            in.Title,
		EmotionalContext: in.EmotionalContext,
		AddTags:          in.AddTags,
	}
	if in.Content != nil {
		content, err := normalizeContent(in.Content)
		if err != nil {
			return nil, err
		}
		u.Content = content
	}
	if in.Importance != nil {
		v := clamp01(*in.Importance)
		u.ImportanceScore = &v
	}
	if u.IsZero() {
		return s.store.Get(ctx, id)
	}

	if u.Content != nil || u.Title != nil {
		current, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		title := current.Title
		if u.Title != nil {
			title = u.Title
		}
		content := current.Content
		if u.Content != nil {
			content = u.Content
		}
		if vec := s.embedText(ctx, embeddingText(title, content)); vec != nil {
			u.Embedding = vec.Slice()
		}
	}

	m, err := s.store.Update(ctx, id, u)
	if err != nil {
		return nil, err
	}
	if s.cache.Available() {
		if cerr := s.cache.Remove(ctx, id); cerr != nil {
			log.Warn("Cache invalidation failed", "id", id, "error", cerr)
		}
	}
	return m, nil
}

// Cleanup removes expired memories and reports how many were deleted.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Info("Cleaned up expired memories", "deleted", n)
	}
	return n, nil
}

// Summarize aggregates the project's live memories per type.
func (s *Service) Summarize(ctx context.Context) (*registrystore.MemorySummary, error) {
	return s.store.Summarize(ctx, s.cfg.ProjectID)
}

// ReindexEmbeddings backfills vectors for memories stored while the embedder
// was unavailable. Returns the number of memories reindexed.
func (s *Service) ReindexEmbeddings(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 10
	}
	if s.embedder.Dimension() == 0 {
		return 0, registryembed.ErrUnavailable
	}

	mems, err := s.store.MissingEmbeddings(ctx, batchSize)
	if err != nil {
		return 0, err
	}
	if len(mems) == 0 {
		return 0, nil
	}

	texts := make([]string, len(mems))
	for i, m := range mems {
		texts[i] = embeddingText(m.Title, m.Content)
	}
	start := time.Now()
	vecs, err := s.embedder.EmbedTexts(ctx, texts)
	if metrics.EmbeddingLatency != nil {
		metrics.EmbeddingLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return 0, fmt.Errorf("reindex: embed batch: %w", err)
	}

	reindexed := 0
	for i, m := range mems {
		if err := s.store.SetEmbedding(ctx, m.ID, vecs[i]); err != nil {
			return reindexed, err
		}
		reindexed++
	}
	log.Info("Reindexed embeddings", "count", reindexed, "model", s.embedder.ModelName())
	return reindexed, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// normalizeContent coerces caller content into a Document. Plain strings
// become {"text": ...} so every stored memory has a uniform shape.
func normalizeContent(content interface{}) (model.Document, error) {
	switch c := content.(type) {
	case nil:
		return nil, &registrystore.ValidationError{Field: "content", Message: "is required"}
	case string:
		if c == "" {
			return nil, &registrystore.ValidationError{Field: "content", Message: "is required"}
		}
		return model.Document{"text": c}, nil
	case model.Document:
		if len(c) == 0 {
			return nil, &registrystore.ValidationError{Field: "content", Message: "is required"}
		}
		return c, nil
	case map[string]interface{}:
		if len(c) == 0 {
			return nil, &registrystore.ValidationError{Field: "content", Message: "is required"}
		}
		return model.Document(c), nil
	default:
		return nil, &registrystore.ValidationError{Field: "content", Message: fmt.Sprintf("unsupported type %T", content)}
	}
}
