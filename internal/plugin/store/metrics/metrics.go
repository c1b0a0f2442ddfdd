// Package metrics wraps a MemoryStore with Prometheus latency instrumentation.
package metrics

import (
	"context"
	"time"

	"github.com/memkeep/memkeep/internal/metrics"
	"github.com/memkeep/memkeep/internal/model"
	registrystore "github.com/memkeep/memkeep/internal/registry/store"
)

// Wrap returns a MemoryStore that records per-operation latency around next.
func Wrap(next registrystore.MemoryStore) registrystore.MemoryStore {
	return &instrumentedStore{next: next}
}

type instrumentedStore struct {
	next registrystore.MemoryStore
}

func observe(operation string, start time.Time) {
	if metrics.StoreLatency != nil {
		metrics.StoreLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

func (s *instrumentedStore) Name() string { return s.next.Name() }

func (s *instrumentedStore) Insert(ctx context.Context, m *model.Memory) error {
	defer observe("insert", time.Now())
	return s.next.Insert(ctx, m)
}

func (s *instrumentedStore) Get(ctx context.Context, id int64) (*model.Memory, error) {
	defer observe("get", time.Now())
	return s.next.Get(ctx, id)
}

func (s *instrumentedStore) Update(ctx context.Context, id int64, u registrystore.MemoryUpdate) (*model.Memory, error) {
	defer observe("update", time.Now())
	return s.next.Update(ctx, id, u)
}

func (s *instrumentedStore) DeleteExpired(ctx context.Context) (int64, error) {
	defer observe("delete_expired", time.Now())
	return s.next.DeleteExpired(ctx)
}

func (s *instrumentedStore) Summarize(ctx context.Context, projectID string) (*registrystore.MemorySummary, error) {
	defer observe("summarize", time.Now())
	return s.next.Summarize(ctx, projectID)
}

func (s *instrumentedStore) Search(ctx context.Context, q registrystore.SearchQuery) ([]registrystore.SearchResult, error) {
	defer observe("search", time.Now())
	return s.next.Search(ctx, q)
}

func (s *instrumentedStore) LogAccess(ctx context.Context, ids []int64, accessContext string, relevance float64) error {
	defer observe("log_access", time.Now())
	return s.next.LogAccess(ctx, ids, accessContext, relevance)
}

func (s *instrumentedStore) DecayCandidates(ctx context.Context, olderThan time.Time, accessThreshold int64) ([]registrystore.DecayCandidate, error) {
	defer observe("decay_candidates", time.Now())
	return s.next.DecayCandidates(ctx, olderThan, accessThreshold)
}

func (s *instrumentedStore) ApplyImportance(ctx context.Context, updates []registrystore.ImportanceUpdate) error {
	defer observe("apply_importance", time.Now())
	return s.next.ApplyImportance(ctx, updates)
}

func (s *instrumentedStore) MissingEmbeddings(ctx context.Context, limit int) ([]model.Memory, error) {
	defer observe("missing_embeddings", time.Now())
	return s.next.MissingEmbeddings(ctx, limit)
}

func (s *instrumentedStore) SetEmbedding(ctx context.Context, id int64, embedding []float32) error {
	defer observe("set_embedding", time.Now())
	return s.next.SetEmbedding(ctx, id, embedding)
}

func (s *instrumentedStore) UpsertPersonaAttribute(ctx context.Context, aiInstanceID, personaType, attributeName string, value model.Document, confidence float64) (*registrystore.PersonaUpsertResult, error) {
	defer observe("upsert_persona", time.Now())
	return s.next.UpsertPersonaAttribute(ctx, aiInstanceID, personaType, attributeName, value, confidence)
}

func (s *instrumentedStore) ListPersonaAttributes(ctx context.Context, q registrystore.PersonaQuery) ([]model.PersonaAttribute, error) {
	defer observe("list_personas", time.Now())
	return s.next.ListPersonaAttributes(ctx, q)
}

func (s *instrumentedStore) InsertSelfReflection(ctx context.Context, r *model.SelfReflection) error {
	defer observe("insert_self_reflection", time.Now())
	return s.next.InsertSelfReflection(ctx, r)
}

func (s *instrumentedStore) InsertEmotionalReflection(ctx context.Context, r *model.EmotionalReflection) error {
	defer observe("insert_emotional_reflection", time.Now())
	return s.next.InsertEmotionalReflection(ctx, r)
}

func (s *instrumentedStore) ListEmotionalReflections(ctx context.Context, projectID string, since time.Time) ([]model.EmotionalReflection, error) {
	defer observe("list_emotional_reflections", time.Now())
	return s.next.ListEmotionalReflections(ctx, projectID, since)
}

func (s *instrumentedStore) Close() error { return s.next.Close() }

var _ registrystore.MemoryStore = (*instrumentedStore)(nil)
