package model

import (
	"time"

	pgvec "github.com/pgvector/pgvector-go"
)

// Document is an arbitrary structured JSON document stored in a jsonb column.
type Document map[string]interface{}

// Memory is a single stored fact or insight, scoped to a project and session.
// ImportanceScore is always kept in [0,1]; the decay job only ever lowers it.
type Memory struct {
	// ID is the primary key, assigned monotonically by the store.
	ID int64 `json:"id" gorm:"primaryKey;autoIncrement"`

	// ProjectID scopes the memory to a project. Recall never crosses projects
	// unless explicitly asked to.
	ProjectID string `json:"projectId" gorm:"not null;column:project_id"`

	// SessionID records the conversation the memory originated from.
	SessionID string `json:"sessionId" gorm:"not null;column:session_id"`

	// MemoryType is a free-form category tag ("note", "decision", "solution", ...).
	MemoryType string `json:"memoryType" gorm:"not null;column:memory_type"`

	// Title is an optional short label.
	Title *string `json:"title,omitempty"`

	// Content is the memory body. Plain-text input is normalized to {"text": ...}.
	Content Document `json:"content" gorm:"type:jsonb;serializer:json;not null"`

	// ImportanceScore drives ranking and decay. Clamped to [0,1] on every write.
	ImportanceScore float64 `json:"importanceScore" gorm:"not null;default:0.5;column:importance_score"`

	// EmotionalContext is an optional structured annotation of the moment.
	EmotionalContext Document `json:"emotionalContext" gorm:"type:jsonb;serializer:json;column:emotional_context"`

	// Tags is a set of labels; updates union with existing tags rather than replace.
	Tags []string `json:"tags" gorm:"type:jsonb;serializer:json"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;default:now();column:created_at"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;default:now();column:updated_at"`

	// ExpiresAt is the optional TTL. NULL means the memory never expires.
	// Expired rows are invisible to reads and removed by Cleanup.
	ExpiresAt *time.Time `json:"expiresAt,omitempty" gorm:"column:expires_at"`

	// Embedding is the content vector, NULL when no embedder was available at
	// write time. Dimension is fixed per deployment by the configured embedder.
	Embedding *pgvec.Vector `json:"-" gorm:"type:vector(384)"`
}

// TableName implements gorm.Tabler.
func (Memory) TableName() string { return "memories" }

// Expired reports whether the memory's TTL has passed at the given instant.
func (m *Memory) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// AccessLogEntry records one retrieval that touched a memory. Append-only;
// the decay job reads access counts from here. Losing entries degrades decay
// quality but never corrupts memories.
type AccessLogEntry struct {
	ID int64 `json:"id" gorm:"primaryKey;autoIncrement"`

	// MemoryID references memories.id; rows cascade-delete with their memory.
	MemoryID int64 `json:"memoryId" gorm:"not null;column:memory_id"`

	AccessedAt time.Time `json:"accessedAt" gorm:"not null;default:now();column:accessed_at"`

	// AccessContext names the retrieval path: "recall", "semantic_search",
	// or "weighted_retrieval".
	AccessContext string `json:"accessContext" gorm:"column:access_context"`

	// RelevanceScore is the score the memory had in the retrieval, in [0,1].
	RelevanceScore float64 `json:"relevanceScore" gorm:"default:0.5;column:relevance_score"`
}

// TableName implements gorm.Tabler.
func (AccessLogEntry) TableName() string { return "memory_access_log" }

// Persona types tracked for the assistant's self-model.
const (
	PersonaCoreTrait  = "core_trait"
	PersonaPreference = "preference"
	PersonaSkill      = "skill"
	PersonaWeakness   = "weakness"
	PersonaGoal       = "goal"
)

// ValidPersonaType reports whether t is one of the tracked persona types.
func ValidPersonaType(t string) bool {
	switch t {
	case PersonaCoreTrait, PersonaPreference, PersonaSkill, PersonaWeakness, PersonaGoal:
		return true
	}
	return false
}

// TrajectoryStep is one recorded change of a persona attribute.
type TrajectoryStep struct {
	Timestamp       time.Time `json:"timestamp"`
	PreviousValue   Document  `json:"previousValue"`
	NewValue        Document  `json:"newValue"`
	ConfidenceDelta float64   `json:"confidenceDelta"`
}

// PersonaAttribute is one trait of the assistant's evolving self-model.
// At most one row exists per (ai_instance_id, persona_type, attribute_name);
// repeat writes append to GrowthTrajectory instead of overwriting history.
type PersonaAttribute struct {
	ID int64 `json:"id" gorm:"primaryKey;autoIncrement"`

	AIInstanceID string `json:"aiInstanceId" gorm:"not null;default:'default';column:ai_instance_id"`

	// PersonaType is one of core_trait, preference, skill, weakness, goal.
	PersonaType   string `json:"personaType" gorm:"not null;column:persona_type"`
	AttributeName string `json:"attributeName" gorm:"not null;column:attribute_name"`

	CurrentValue    Document `json:"currentValue" gorm:"type:jsonb;serializer:json;not null;column:current_value"`
	ConfidenceScore float64  `json:"confidenceScore" gorm:"not null;default:0.5;column:confidence_score"`

	// EvidenceCount is how many observations support the current value. >= 1.
	EvidenceCount int `json:"evidenceCount" gorm:"not null;default:1;column:evidence_count"`

	// GrowthTrajectory is the append-only history of changes. Unbounded; see
	// the retention note in DESIGN.md.
	GrowthTrajectory []TrajectoryStep `json:"growthTrajectory" gorm:"type:jsonb;serializer:json;column:growth_trajectory"`

	FirstObserved time.Time `json:"firstObserved" gorm:"not null;default:now();column:first_observed"`
	LastUpdated   time.Time `json:"lastUpdated" gorm:"not null;default:now();column:last_updated"`
}

// TableName implements gorm.Tabler.
func (PersonaAttribute) TableName() string { return "persona_memories" }

// SelfReflection is one reflective episode. Immutable once created.
type SelfReflection struct {
	ID int64 `json:"id" gorm:"primaryKey;autoIncrement"`

	SessionID string `json:"sessionId" gorm:"not null;column:session_id"`
	ProjectID string `json:"projectId" gorm:"not null;column:project_id"`

	// ReflectionTrigger names what prompted the reflection:
	// "task_completion", "error", "feedback", "periodic", "manual".
	ReflectionTrigger string `json:"reflectionTrigger" gorm:"column:reflection_trigger"`

	SituationSummary string `json:"situationSummary" gorm:"column:situation_summary"`
	WhatWentWell     string `json:"whatWentWell" gorm:"column:what_went_well"`
	WhatCouldImprove string `json:"whatCouldImprove" gorm:"column:what_could_improve"`
	LessonsLearned   string `json:"lessonsLearned" gorm:"column:lessons_learned"`

	ConfidenceInAnalysis float64 `json:"confidenceInAnalysis" gorm:"default:0.5;column:confidence_in_analysis"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;default:now();column:created_at"`
}

// TableName implements gorm.Tabler.
func (SelfReflection) TableName() string { return "self_reflections" }

// EmotionalReflection records mood and context for one interaction. Append-only.
type EmotionalReflection struct {
	ID int64 `json:"id" gorm:"primaryKey;autoIncrement"`

	SessionID string `json:"sessionId" gorm:"not null;column:session_id"`
	ProjectID string `json:"projectId" gorm:"not null;column:project_id"`

	ReflectionType string   `json:"reflectionType" gorm:"column:reflection_type"`
	Content        Document `json:"content" gorm:"type:jsonb;serializer:json;not null"`

	// MoodScore is in [-1,1]; NULL when the caller did not rate the mood.
	MoodScore *float64 `json:"moodScore,omitempty" gorm:"column:mood_score"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;default:now();column:created_at"`
}

// TableName implements gorm.Tabler.
func (EmotionalReflection) TableName() string { return "emotional_reflections" }
