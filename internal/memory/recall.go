package memory

import (
	"context"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/memkeep/memkeep/internal/model"
	registrystore "github.com/memkeep/memkeep/internal/registry/store"
)

// Access contexts recorded in the access log, one per retrieval path.
const (
	accessContextRecall   = "recall"
	accessContextSemantic = "semantic_search"
	accessContextWeighted = "weighted_retrieval"
)

// RecallQuery selects memories to retrieve.
type RecallQuery struct {
	// Query is the search text. Empty means filter-only recall.
	Query                string
	MemoryType           string
	Limit                int
	ImportanceThreshold  float64
	IncludeOtherProjects bool
}

// RecallResult is one recalled memory. RelevanceScore is set only when the
// semantic path produced the result.
type RecallResult struct {
	Memory         model.Memory `json:"memory"`
	RelevanceScore *float64     `json:"relevanceScore,omitempty"`
}

// Recall retrieves memories. With a query and a working embedder it runs
// semantic search (cosine similarity weighted by importance); otherwise it
// falls back to substring matching, and an empty query returns the most
// important recent memories matching the filters. Every hit is recorded in
// the access log.
func (s *Service) Recall(ctx context.Context, q RecallQuery) ([]RecallResult, error) {
	if q.Limit <= 0 {
		return []RecallResult{}, nil
	}

	sq := registrystore.SearchQuery{
		ProjectID:            s.cfg.ProjectID,
		IncludeOtherProjects: q.IncludeOtherProjects,
		MemoryType:           q.MemoryType,
		ImportanceThreshold:  q.ImportanceThreshold,
		Limit:                q.Limit,
	}

	accessContext := accessContextRecall
	if q.Query != "" {
		if vec := s.embedText(ctx, q.Query); vec != nil {
			sq.Embedding = vec.Slice()
			accessContext = accessContextSemantic
		} else {
			sq.Text = q.Query
		}
	}

	found, err := s.store.Search(ctx, sq)
	if err != nil {
		return nil, err
	}

	results := make([]RecallResult, len(found))
	for i, r := range found {
		results[i] = RecallResult{Memory: r.Memory, RelevanceScore: r.RelevanceScore}
	}
	s.logAccess(ctx, results, accessContext)
	return results, nil
}

// Weights controls the composite score in RecallWeighted. Zero value means
// use the defaults (0.4 importance, 0.3 recency, 0.3 relevance).
type Weights struct {
	Importance float64
	Recency    float64
	Relevance  float64
}

func (w Weights) orDefaults() Weights {
	if w.Importance == 0 && w.Recency == 0 && w.Relevance == 0 {
		return Weights{Importance: 0.4, Recency: 0.3, Relevance: 0.3}
	}
	return w
}

// WeightedResult is one memory with its composite retrieval score.
type WeightedResult struct {
	Memory         model.Memory `json:"memory"`
	CompositeScore float64      `json:"compositeScore"`
	RelevanceScore *float64     `json:"relevanceScore,omitempty"`
}

// RecallWeighted retrieves memories re-ranked by a weighted blend of
// importance, recency, and semantic relevance. It over-fetches candidates
// first, then scores and truncates, so a highly relevant but old memory can
// still beat a recent unimportant one.
func (s *Service) RecallWeighted(ctx context.Context, q RecallQuery, w Weights) ([]WeightedResult, error) {
	if q.Limit <= 0 {
		return []WeightedResult{}, nil
	}
	w = w.orDefaults()

	sq := registrystore.SearchQuery{
		ProjectID:            s.cfg.ProjectID,
		IncludeOtherProjects: q.IncludeOtherProjects,
		MemoryType:           q.MemoryType,
		ImportanceThreshold:  q.ImportanceThreshold,
		Limit:                q.Limit * 3,
	}
	if q.Query != "" {
		if vec := s.embedText(ctx, q.Query); vec != nil {
			sq.Embedding = vec.Slice()
		} else {
			sq.Text = q.Query
		}
	}

	candidates, err := s.store.Search(ctx, sq)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	results := make([]WeightedResult, len(candidates))
	for i, c := range candidates {
		results[i] = WeightedResult{
			Memory:         c.Memory,
			CompositeScore: compositeScore(c, w, now),
			RelevanceScore: c.RelevanceScore,
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CompositeScore > results[j].CompositeScore
	})
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}

	recalls := make([]RecallResult, len(results))
	for i, r := range results {
		recalls[i] = RecallResult{Memory: r.Memory, RelevanceScore: r.RelevanceScore}
	}
	s.logAccess(ctx, recalls, accessContextWeighted)
	return results, nil
}

// compositeScore blends importance, recency (linear decay to zero over a
// year), and semantic relevance. A result without a relevance score gets the
// neutral 0.5 so textual-path results still rank.
func compositeScore(c registrystore.SearchResult, w Weights, now time.Time) float64 {
	ageDays := now.Sub(c.Memory.CreatedAt).Hours() / 24
	recency := 1 - ageDays/365
	if recency < 0 {
		recency = 0
	}
	relevance := 0.5
	if c.RelevanceScore != nil {
		relevance = *c.RelevanceScore
	}
	return w.Importance*c.Memory.ImportanceScore + w.Recency*recency + w.Relevance*relevance
}

// logAccess records the retrieval in the access log. Best-effort: failures
// are logged and swallowed so telemetry never breaks a read.
func (s *Service) logAccess(ctx context.Context, results []RecallResult, accessContext string) {
	if len(results) == 0 {
		return
	}
	ids := make([]int64, len(results))
	sum := 0.0
	scored := 0
	for i, r := range results {
		ids[i] = r.Memory.ID
		if r.RelevanceScore != nil {
			sum += *r.RelevanceScore
			scored++
		}
	}
	relevance := 0.5
	if scored > 0 {
		relevance = sum / float64(scored)
	}
	if err := s.store.LogAccess(ctx, ids, accessContext, relevance); err != nil {
		log.Warn("Failed to log memory access", "context", accessContext, "error", err)
	}
}
