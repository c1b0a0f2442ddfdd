package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/memkeep/memkeep/internal/model"
	registrystore "github.com/memkeep/memkeep/internal/registry/store"
)

// StorePersonaAttribute records an observation about the assistant's own
// traits. Repeat observations of the same attribute update the row in place
// and append the old value to the growth trajectory, so the history of how a
// trait evolved is never lost.
func (s *Service) StorePersonaAttribute(ctx context.Context, personaType, attributeName string, value interface{}, confidence float64) (*registrystore.PersonaUpsertResult, error) {
	if !model.ValidPersonaType(personaType) {
		return nil, &registrystore.ValidationError{
			Field:   "personaType",
			Message: fmt.Sprintf("%q is not a tracked persona type", personaType),
		}
	}
	if attributeName == "" {
		return nil, &registrystore.ValidationError{Field: "attributeName", Message: "is required"}
	}
	doc, err := normalizeAttributeValue(value)
	if err != nil {
		return nil, err
	}
	confidence = clamp01(confidence)

	result, err := s.store.UpsertPersonaAttribute(ctx, s.cfg.AIInstanceID, personaType, attributeName, doc, confidence)
	if err != nil {
		return nil, err
	}
	log.Debug("Persona attribute recorded", "type", personaType, "attribute", attributeName, "action", result.Action)
	return result, nil
}

func normalizeAttributeValue(value interface{}) (model.Document, error) {
	switch v := value.(type) {
	case nil:
		return nil, &registrystore.ValidationError{Field: "value", Message: "is required"}
	case string:
		if v == "" {
			return nil, &registrystore.ValidationError{Field: "value", Message: "is required"}
		}
		return model.Document{"value": v}, nil
	case model.Document:
		return v, nil
	case map[string]interface{}:
		return model.Document(v), nil
	default:
		return nil, &registrystore.ValidationError{Field: "value", Message: fmt.Sprintf("unsupported type %T", value)}
	}
}

// pluralizePersonaType maps the stored type names to the grouping keys used
// in persona snapshots.
func pluralizePersonaType(t string) string {
	switch t {
	case model.PersonaCoreTrait:
		return "core_traits"
	case model.PersonaPreference:
		return "preferences"
	case model.PersonaSkill:
		return "skills"
	case model.PersonaWeakness:
		return "weaknesses"
	case model.PersonaGoal:
		return "goals"
	}
	return t + "s"
}

// GetPersona returns the current self-model grouped by persona type, most
// confident attributes first within each group.
func (s *Service) GetPersona(ctx context.Context, personaType string, minConfidence float64) (map[string][]model.PersonaAttribute, error) {
	attrs, err := s.store.ListPersonaAttributes(ctx, registrystore.PersonaQuery{
		AIInstanceID:  s.cfg.AIInstanceID,
		PersonaType:   personaType,
		MinConfidence: minConfidence,
	})
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]model.PersonaAttribute)
	for _, a := range attrs {
		key := pluralizePersonaType(a.PersonaType)
		grouped[key] = append(grouped[key], a)
	}
	return grouped, nil
}

// AttributeChange is one growth-trajectory step surfaced by GetPersonaEvolution.
type AttributeChange struct {
	PersonaType   string               `json:"personaType"`
	AttributeName string               `json:"attributeName"`
	Step          model.TrajectoryStep `json:"step"`
}

// PersonaTypeEvolution aggregates one persona type within the window.
type PersonaTypeEvolution struct {
	Attributes    []model.PersonaAttribute `json:"attributes"`
	AvgConfidence float64                  `json:"avgConfidence"`
}

// PersonaEvolution summarizes how the self-model changed over a window.
type PersonaEvolution struct {
	DaysBack        int                             `json:"daysBack"`
	TotalAttributes int                             `json:"totalAttributes"`
	PerType         map[string]PersonaTypeEvolution `json:"perType"`
	// RecentChanges holds the trajectory steps from the last 7 days,
	// independent of the window.
	RecentChanges []AttributeChange `json:"recentChanges"`
}

// GetPersonaEvolution aggregates attributes updated in the last daysBack days
// (grouped per type with average confidence) plus the trajectory steps of the
// last week.
func (s *Service) GetPersonaEvolution(ctx context.Context, daysBack int, personaType string) (*PersonaEvolution, error) {
	if daysBack <= 0 {
		daysBack = 30
	}
	windowCutoff := time.Now().AddDate(0, 0, -daysBack)
	changeCutoff := time.Now().AddDate(0, 0, -7)

	attrs, err := s.store.ListPersonaAttributes(ctx, registrystore.PersonaQuery{
		AIInstanceID: s.cfg.AIInstanceID,
		PersonaType:  personaType,
	})
	if err != nil {
		return nil, err
	}

	evolution := &PersonaEvolution{
		DaysBack:        daysBack,
		TotalAttributes: len(attrs),
		PerType:         make(map[string]PersonaTypeEvolution),
	}
	confidenceSums := make(map[string]float64)
	for _, a := range attrs {
		if a.LastUpdated.Before(windowCutoff) {
			continue
		}
		key := pluralizePersonaType(a.PersonaType)
		agg := evolution.PerType[key]
		agg.Attributes = append(agg.Attributes, a)
		confidenceSums[key] += a.ConfidenceScore
		evolution.PerType[key] = agg

		for _, step := range a.GrowthTrajectory {
			if !step.Timestamp.Before(changeCutoff) {
				evolution.RecentChanges = append(evolution.RecentChanges, AttributeChange{
					PersonaType:   a.PersonaType,
					AttributeName: a.AttributeName,
					Step:          step,
				})
			}
		}
	}
	for key, agg := range evolution.PerType {
		agg.AvgConfidence = confidenceSums[key] / float64(len(agg.Attributes))
		evolution.PerType[key] = agg
	}
	return evolution, nil
}

// SelfReflectionInput describes one reflective episode. Analysis fields left
// empty are filled with a placeholder; a future analysis pass replaces them.
type SelfReflectionInput struct {
	Trigger          string
	SituationSummary string
	WhatWentWell     string
	WhatCouldImprove string
	LessonsLearned   string
}

const reflectionPlaceholder = "Framework ready for AI analysis"

// GenerateSelfReflection records a reflection on a recent situation. The
// structured analysis is stored as provided; missing fields get the
// placeholder so consumers can tell recorded episodes from analyzed ones.
func (s *Service) GenerateSelfReflection(ctx context.Context, in SelfReflectionInput) (*model.SelfReflection, error) {
	if in.Trigger == "" {
		in.Trigger = "manual"
	}
	r := &model.SelfReflection{
		SessionID:            s.cfg.SessionID,
		ProjectID:            s.cfg.ProjectID,
		ReflectionTrigger:    in.Trigger,
		SituationSummary:     in.SituationSummary,
		WhatWentWell:         orPlaceholder(in.WhatWentWell),
		WhatCouldImprove:     orPlaceholder(in.WhatCouldImprove),
		LessonsLearned:       orPlaceholder(in.LessonsLearned),
		ConfidenceInAnalysis: 0.5,
	}
	if err := s.store.InsertSelfReflection(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func orPlaceholder(v string) string {
	if v == "" {
		return reflectionPlaceholder
	}
	return v
}

// ReflectOnInteraction records the emotional texture of one interaction.
// MoodScore, when given, must be in [-1, 1].
func (s *Service) ReflectOnInteraction(ctx context.Context, reflectionType string, content interface{}, moodScore *float64) (*model.EmotionalReflection, error) {
	doc, err := normalizeContent(content)
	if err != nil {
		return nil, err
	}
	if moodScore != nil && (*moodScore < -1 || *moodScore > 1) {
		return nil, &registrystore.ValidationError{Field: "moodScore", Message: "must be between -1 and 1"}
	}
	if reflectionType == "" {
		reflectionType = "interaction"
	}

	r := &model.EmotionalReflection{
		SessionID:      s.cfg.SessionID,
		ProjectID:      s.cfg.ProjectID,
		ReflectionType: reflectionType,
		Content:        doc,
		MoodScore:      moodScore,
	}
	if err := s.store.InsertEmotionalReflection(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// MoodRange is the observed min and max mood score within the window.
type MoodRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// EmotionalInsights aggregates recent emotional reflections.
type EmotionalInsights struct {
	DaysBack         int `json:"daysBack"`
	TotalReflections int `json:"totalReflections"`
	// AverageMood and MoodRange are nil when no reflection in the window
	// carried a mood score.
	AverageMood   *float64                    `json:"averageMood,omitempty"`
	MoodRange     *MoodRange                  `json:"moodRange,omitempty"`
	CountsByType  map[string]int              `json:"countsByType"`
	RecentSamples []model.EmotionalReflection `json:"recentSamples"`
}

// GetEmotionalInsights summarizes the project's emotional reflections over
// the last daysBack days: counts per type, average and range of mood, and the
// five most recent entries.
func (s *Service) GetEmotionalInsights(ctx context.Context, daysBack int) (*EmotionalInsights, error) {
	if daysBack <= 0 {
		daysBack = 30
	}
	since := time.Now().AddDate(0, 0, -daysBack)
	reflections, err := s.store.ListEmotionalReflections(ctx, s.cfg.ProjectID, since)
	if err != nil {
		return nil, err
	}

	insights := &EmotionalInsights{
		DaysBack:         daysBack,
		TotalReflections: len(reflections),
		CountsByType:     make(map[string]int),
	}
	moodSum := 0.0
	moodCount := 0
	for _, r := range reflections {
		insights.CountsByType[r.ReflectionType]++
		if r.MoodScore == nil {
			continue
		}
		moodSum += *r.MoodScore
		if moodCount == 0 {
			insights.MoodRange = &MoodRange{Min: *r.MoodScore, Max: *r.MoodScore}
		} else {
			if *r.MoodScore < insights.MoodRange.Min {
				insights.MoodRange.Min = *r.MoodScore
			}
			if *r.MoodScore > insights.MoodRange.Max {
				insights.MoodRange.Max = *r.MoodScore
			}
		}
		moodCount++
	}
	if moodCount > 0 {
		avg := moodSum / float64(moodCount)
		insights.AverageMood = &avg
	}
	if len(reflections) > 5 {
		reflections = reflections[:5]
	}
	insights.RecentSamples = reflections
	return insights, nil
}
