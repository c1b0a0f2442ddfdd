package store

import (
	"context"
	"fmt"
	"time"

	"github.com/memkeep/memkeep/internal/model"
)

// MemoryUpdate describes a partial update of a memory. Nil fields are left
// unchanged. AddTags is a union with the existing tag set, never a replace.
type MemoryUpdate struct {
	Content          model.Document
	Title            *string
	ImportanceScore  *float64
	EmotionalContext model.Document
	AddTags          []string
	// Embedding replaces the stored vector when non-nil. The caller computes
	// it before the store call so no connection is held during inference.
	Embedding []float32
}

// IsZero reports whether the update would change nothing.
func (u MemoryUpdate) IsZero() bool {
	return u.Content == nil && u.Title == nil && u.ImportanceScore == nil &&
		u.EmotionalContext == nil && len(u.AddTags) == 0 && u.Embedding == nil
}

// SearchQuery selects memories for recall. When Embedding is non-nil the
// store runs the semantic path; otherwise Text (when set) selects substring
// matching, and an empty query returns filter-only results.
type SearchQuery struct {
	ProjectID            string
	IncludeOtherProjects bool
	MemoryType           string
	ImportanceThreshold  float64
	Limit                int
	Text                 string
	Embedding            []float32
}

// SearchResult pairs a memory with its relevance score. RelevanceScore is set
// only by the semantic path.
type SearchResult struct {
	Memory         model.Memory
	RelevanceScore *float64
}

// TypeSummary aggregates one memory type within a project.
type TypeSummary struct {
	MemoryType    string    `json:"memoryType"`
	Count         int64     `json:"count"`
	AvgImportance float64   `json:"avgImportance"`
	Latest        time.Time `json:"latest"`
}

// MemorySummary is the per-project aggregate returned by Summarize.
type MemorySummary struct {
	ProjectID     string        `json:"projectId"`
	TotalMemories int64         `json:"totalMemories"`
	Types         []TypeSummary `json:"types"`
}

// DecayCandidate is one memory eligible for forgetting-curve decay.
type DecayCandidate struct {
	ID              int64
	Title           *string
	ImportanceScore float64
	CreatedAt       time.Time
	AccessCount     int64
}

// ImportanceUpdate sets a memory's importance to a new, lower value.
type ImportanceUpdate struct {
	ID            int64
	NewImportance float64
}

// PersonaQuery filters persona attributes.
type PersonaQuery struct {
	AIInstanceID  string
	PersonaType   string
	MinConfidence float64
	// ObservedAfter restricts to attributes first observed after this time.
	ObservedAfter *time.Time
}

// PersonaUpsertResult reports what an upsert did.
type PersonaUpsertResult struct {
	ID      int64  `json:"id"`
	Action  string `json:"action"` // "created" or "updated"
	Created bool   `json:"-"`
}

// MemoryStore is the persistence interface shared by the postgres and
// in-process backends. All methods return typed errors from this package;
// database faults never escape as raw driver errors.
type MemoryStore interface {
	Name() string

	// Insert stores a new memory and fills ID and CreatedAt. A caller-set
	// CreatedAt is respected (tests age memories this way).
	Insert(ctx context.Context, m *model.Memory) error
	// Get returns the memory with the given id, excluding expired rows.
	Get(ctx context.Context, id int64) (*model.Memory, error)
	// Update applies a partial update and touches updated_at.
	Update(ctx context.Context, id int64, u MemoryUpdate) (*model.Memory, error)
	// DeleteExpired removes rows whose expires_at has passed, cascading to
	// their access-log entries. Idempotent.
	DeleteExpired(ctx context.Context) (int64, error)
	// Summarize aggregates live memories per type for a project.
	Summarize(ctx context.Context, projectID string) (*MemorySummary, error)

	// Search runs one recall query. Ordering: semantic by relevance then
	// recency; otherwise importance then recency. Limit <= 0 yields nothing.
	Search(ctx context.Context, q SearchQuery) ([]SearchResult, error)
	// LogAccess appends one access-log row per id. Best-effort telemetry.
	LogAccess(ctx context.Context, ids []int64, accessContext string, relevance float64) error

	// DecayCandidates lists memories older than olderThan with at most
	// accessThreshold logged accesses and importance above the decay floor.
	DecayCandidates(ctx context.Context, olderThan time.Time, accessThreshold int64) ([]DecayCandidate, error)
	// ApplyImportance writes the given importance values in one transaction.
	ApplyImportance(ctx context.Context, updates []ImportanceUpdate) error

	// MissingEmbeddings lists memories without a stored vector, newest first.
	MissingEmbeddings(ctx context.Context, limit int) ([]model.Memory, error)
	// SetEmbedding backfills the vector for a single memory.
	SetEmbedding(ctx context.Context, id int64, embedding []float32) error

	// UpsertPersonaAttribute inserts or updates the row keyed by
	// (aiInstanceID, personaType, attributeName). Updates append a trajectory
	// step and increment evidence_count atomically.
	UpsertPersonaAttribute(ctx context.Context, aiInstanceID, personaType, attributeName string, value model.Document, confidence float64) (*PersonaUpsertResult, error)
	// ListPersonaAttributes returns attributes matching the query, ordered by
	// persona type then confidence descending.
	ListPersonaAttributes(ctx context.Context, q PersonaQuery) ([]model.PersonaAttribute, error)

	InsertSelfReflection(ctx context.Context, r *model.SelfReflection) error
	InsertEmotionalReflection(ctx context.Context, r *model.EmotionalReflection) error
	// ListEmotionalReflections returns reflections for a project since the
	// given time, newest first.
	ListEmotionalReflections(ctx context.Context, projectID string, since time.Time) ([]model.EmotionalReflection, error)

	Close() error
}

// Loader creates a MemoryStore from config.
type Loader func(ctx context.Context) (MemoryStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
