// Package memory provides an in-process MemoryStore used when no database is
// configured and as the fallback when postgres is unreachable. It mirrors the
// postgres backend's semantics closely enough that the service layer does not
// care which one it is talking to, including cosine-similarity semantic search
// over in-memory vectors.
package memory

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/memkeep/memkeep/internal/model"
	registrystore "github.com/memkeep/memkeep/internal/registry/store"
	pgvec "github.com/pgvector/pgvector-go"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "memory",
		Loader: func(ctx context.Context) (registrystore.MemoryStore, error) {
			return New(), nil
		},
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// Store is a mutex-guarded in-process MemoryStore.
type Store struct {
	mu sync.Mutex

	nextMemoryID     int64
	nextAccessID     int64
	nextPersonaID    int64
	nextReflectionID int64
	nextEmotionalID  int64

	memories  map[int64]*model.Memory
	accessLog []model.AccessLogEntry
	personas  map[personaKey]*model.PersonaAttribute
	selfRefl  []model.SelfReflection
	emotional []model.EmotionalReflection
}

type personaKey struct {
	aiInstanceID  string
	personaType   string
	attributeName string
}

// New returns an empty in-process store.
func New() *Store {
	return &Store{
		memories: make(map[int64]*model.Memory),
		personas: make(map[personaKey]*model.PersonaAttribute),
	}
}

func (s *Store) Name() string { return "memory" }

func (s *Store) Insert(ctx context.Context, m *model.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextMemoryID++
	m.ID = s.nextMemoryID
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}
	cp := cloneMemory(m)
	s.memories[m.ID] = cp
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (*model.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memories[id]
	if !ok || m.Expired(time.Now()) {
		return nil, &registrystore.NotFoundError{Resource: "memory", ID: id}
	}
	return cloneMemory(m), nil
}

func (s *Store) Update(ctx context.Context, id int64, u registrystore.MemoryUpdate) (*model.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memories[id]
	if !ok || m.Expired(time.Now()) {
		return nil, &registrystore.NotFoundError{Resource: "memory", ID: id}
	}

	if u.Content != nil {
		m.Content = u.Content
	}
	if u.Title != nil {
		m.Title = u.Title
	}
	if u.ImportanceScore != nil {
		m.ImportanceScore = *u.ImportanceScore
	}
	if u.EmotionalContext != nil {
		m.EmotionalContext = u.EmotionalContext
	}
	if len(u.AddTags) > 0 {
		seen := make(map[string]bool, len(m.Tags))
		for _, t := range m.Tags {
			seen[t] = true
		}
		for _, t := range u.AddTags {
			if !seen[t] {
				seen[t] = true
				m.Tags = append(m.Tags, t)
			}
		}
	}
	if u.Embedding != nil {
		vec := pgvec.NewVector(u.Embedding)
		m.Embedding = &vec
	}
	m.UpdatedAt = time.Now()
	return cloneMemory(m), nil
}

func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var removed int64
	for id, m := range s.memories {
		if m.Expired(now) {
			delete(s.memories, id)
			removed++
		}
	}
	if removed > 0 {
		// Access-log rows cascade with their memory, same as the FK does.
		kept := s.accessLog[:0]
		for _, e := range s.accessLog {
			if _, ok := s.memories[e.MemoryID]; ok {
				kept = append(kept, e)
			}
		}
		s.accessLog = kept
	}
	return removed, nil
}

func (s *Store) Summarize(ctx context.Context, projectID string) (*registrystore.MemorySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	type agg struct {
		count  int64
		sum    float64
		latest time.Time
	}
	byType := make(map[string]*agg)
	for _, m := range s.memories {
		if m.ProjectID != projectID || m.Expired(now) {
			continue
		}
		a := byType[m.MemoryType]
		if a == nil {
			a = &agg{}
			byType[m.MemoryType] = a
		}
		a.count++
		a.sum += m.ImportanceScore
		if m.CreatedAt.After(a.latest) {
			a.latest = m.CreatedAt
		}
	}

	summary := &registrystore.MemorySummary{ProjectID: projectID}
	for t, a := range byType {
		summary.Types = append(summary.Types, registrystore.TypeSummary{
			MemoryType:    t,
			Count:         a.count,
			AvgImportance: a.sum / float64(a.count),
			Latest:        a.latest,
		})
		summary.TotalMemories += a.count
	}
	sort.Slice(summary.Types, func(i, j int) bool {
		if summary.Types[i].Count != summary.Types[j].Count {
			return summary.Types[i].Count > summary.Types[j].Count
		}
		return summary.Types[i].MemoryType < summary.Types[j].MemoryType
	})
	return summary, nil
}

func (s *Store) Search(ctx context.Context, q registrystore.SearchQuery) ([]registrystore.SearchResult, error) {
	if q.Limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var results []registrystore.SearchResult
	for _, m := range s.memories {
		if m.Expired(now) {
			continue
		}
		if !q.IncludeOtherProjects && m.ProjectID != q.ProjectID {
			continue
		}
		if q.MemoryType != "" && m.MemoryType != q.MemoryType {
			continue
		}
		if m.ImportanceScore < q.ImportanceThreshold {
			continue
		}

		if q.Embedding != nil {
			if m.Embedding == nil {
				continue
			}
			sim := cosineSimilarity(q.Embedding, m.Embedding.Slice())
			relevance := sim * m.ImportanceScore
			results = append(results, registrystore.SearchResult{
				Memory:         *cloneMemory(m),
				RelevanceScore: &relevance,
			})
			continue
		}

		if q.Text != "" && !textMatches(m, q.Text) {
			continue
		}
		results = append(results, registrystore.SearchResult{Memory: *cloneMemory(m)})
	}

	if q.Embedding != nil {
		sort.Slice(results, func(i, j int) bool {
			if *results[i].RelevanceScore != *results[j].RelevanceScore {
				return *results[i].RelevanceScore > *results[j].RelevanceScore
			}
			return results[i].Memory.CreatedAt.After(results[j].Memory.CreatedAt)
		})
	} else {
		sort.Slice(results, func(i, j int) bool {
			if results[i].Memory.ImportanceScore != results[j].Memory.ImportanceScore {
				return results[i].Memory.ImportanceScore > results[j].Memory.ImportanceScore
			}
			return results[i].Memory.CreatedAt.After(results[j].Memory.CreatedAt)
		})
	}

	if len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

// textMatches mirrors the postgres ILIKE over content::text and title.
func textMatches(m *model.Memory, text string) bool {
	needle := strings.ToLower(text)
	if m.Title != nil && strings.Contains(strings.ToLower(*m.Title), needle) {
		return true
	}
	raw, err := json.Marshal(m.Content)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(raw)), needle)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (s *Store) LogAccess(ctx context.Context, ids []int64, accessContext string, relevance float64) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, id := range ids {
		s.nextAccessID++
		s.accessLog = append(s.accessLog, model.AccessLogEntry{
			ID:             s.nextAccessID,
			MemoryID:       id,
			AccessedAt:     now,
			AccessContext:  accessContext,
			RelevanceScore: relevance,
		})
	}
	return nil
}

func (s *Store) DecayCandidates(ctx context.Context, olderThan time.Time, accessThreshold int64) ([]registrystore.DecayCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[int64]int64)
	for _, e := range s.accessLog {
		counts[e.MemoryID]++
	}

	var candidates []registrystore.DecayCandidate
	for _, m := range s.memories {
		if !m.CreatedAt.Before(olderThan) {
			continue
		}
		if counts[m.ID] > accessThreshold {
			continue
		}
		if m.ImportanceScore <= 0.1 {
			continue
		}
		candidates = append(candidates, registrystore.DecayCandidate{
			ID:              m.ID,
			Title:           m.Title,
			ImportanceScore: m.ImportanceScore,
			CreatedAt:       m.CreatedAt,
			AccessCount:     counts[m.ID],
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].ImportanceScore != candidates[j].ImportanceScore {
			return candidates[i].ImportanceScore < candidates[j].ImportanceScore
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	return candidates, nil
}

func (s *Store) ApplyImportance(ctx context.Context, updates []registrystore.ImportanceUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, u := range updates {
		if m, ok := s.memories[u.ID]; ok {
			m.ImportanceScore = u.NewImportance
			m.UpdatedAt = now
		}
	}
	return nil
}

func (s *Store) MissingEmbeddings(ctx context.Context, limit int) ([]model.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var mems []model.Memory
	for _, m := range s.memories {
		if m.Embedding == nil && !m.Expired(now) {
			mems = append(mems, *cloneMemory(m))
		}
	}
	sort.Slice(mems, func(i, j int) bool {
		return mems[i].CreatedAt.After(mems[j].CreatedAt)
	})
	if limit > 0 && len(mems) > limit {
		mems = mems[:limit]
	}
	return mems, nil
}

func (s *Store) SetEmbedding(ctx context.Context, id int64, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memories[id]
	if !ok {
		return &registrystore.NotFoundError{Resource: "memory", ID: id}
	}
	vec := pgvec.NewVector(embedding)
	m.Embedding = &vec
	m.UpdatedAt = time.Now()
	return nil
}

func (s *Store) UpsertPersonaAttribute(ctx context.Context, aiInstanceID, personaType, attributeName string, value model.Document, confidence float64) (*registrystore.PersonaUpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := personaKey{aiInstanceID, personaType, attributeName}
	now := time.Now()
	if existing, ok := s.personas[key]; ok {
		existing.GrowthTrajectory = append(existing.GrowthTrajectory, model.TrajectoryStep{
			Timestamp:       now,
			PreviousValue:   existing.CurrentValue,
			NewValue:        value,
			ConfidenceDelta: confidence - existing.ConfidenceScore,
		})
		existing.CurrentValue = value
		existing.ConfidenceScore = confidence
		existing.EvidenceCount++
		existing.LastUpdated = now
		return &registrystore.PersonaUpsertResult{ID: existing.ID, Action: "updated"}, nil
	}

	s.nextPersonaID++
	attr := &model.PersonaAttribute{
		ID:              s.nextPersonaID,
		AIInstanceID:    aiInstanceID,
		PersonaType:     personaType,
		AttributeName:   attributeName,
		CurrentValue:    value,
		ConfidenceScore: confidence,
		EvidenceCount:   1,
		FirstObserved:   now,
		LastUpdated:     now,
	}
	s.personas[key] = attr
	return &registrystore.PersonaUpsertResult{ID: attr.ID, Action: "created", Created: true}, nil
}

func (s *Store) ListPersonaAttributes(ctx context.Context, q registrystore.PersonaQuery) ([]model.PersonaAttribute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var attrs []model.PersonaAttribute
	for _, a := range s.personas {
		if a.AIInstanceID != q.AIInstanceID {
			continue
		}
		if q.PersonaType != "" && a.PersonaType != q.PersonaType {
			continue
		}
		if q.MinConfidence > 0 && a.ConfidenceScore < q.MinConfidence {
			continue
		}
		if q.ObservedAfter != nil && a.FirstObserved.Before(*q.ObservedAfter) {
			continue
		}
		attrs = append(attrs, *a)
	}
	sort.Slice(attrs, func(i, j int) bool {
		if attrs[i].PersonaType != attrs[j].PersonaType {
			return attrs[i].PersonaType < attrs[j].PersonaType
		}
		return attrs[i].ConfidenceScore > attrs[j].ConfidenceScore
	})
	return attrs, nil
}

func (s *Store) InsertSelfReflection(ctx context.Context, r *model.SelfReflection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextReflectionID++
	r.ID = s.nextReflectionID
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.selfRefl = append(s.selfRefl, *r)
	return nil
}

func (s *Store) InsertEmotionalReflection(ctx context.Context, r *model.EmotionalReflection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextEmotionalID++
	r.ID = s.nextEmotionalID
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.emotional = append(s.emotional, *r)
	return nil
}

func (s *Store) ListEmotionalReflections(ctx context.Context, projectID string, since time.Time) ([]model.EmotionalReflection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.EmotionalReflection
	for _, r := range s.emotional {
		if r.ProjectID == projectID && !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) Close() error { return nil }

// cloneMemory copies a memory so callers never share mutable state with the
// store's internal map.
func cloneMemory(m *model.Memory) *model.Memory {
	cp := *m
	if m.Tags != nil {
		cp.Tags = append([]string(nil), m.Tags...)
	}
	return &cp
}

var _ registrystore.MemoryStore = (*Store)(nil)
