package memory_test

import (
	"context"
	"testing"

	"github.com/memkeep/memkeep/internal/memory"
	"github.com/memkeep/memkeep/internal/model"
	registrystore "github.com/memkeep/memkeep/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePersonaAttributeValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var validationErr *registrystore.ValidationError
	_, err := svc.StorePersonaAttribute(ctx, "mood", "patience", "high", 0.5)
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "personaType", validationErr.Field)

	_, err = svc.StorePersonaAttribute(ctx, model.PersonaSkill, "", "x", 0.5)
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "attributeName", validationErr.Field)

	_, err = svc.StorePersonaAttribute(ctx, model.PersonaSkill, "go", nil, 0.5)
	require.ErrorAs(t, err, &validationErr)
}

func TestStorePersonaAttributeUpsertsSingleRow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.StorePersonaAttribute(ctx, model.PersonaSkill, "go", "intermediate", 0.4)
	require.NoError(t, err)
	assert.Equal(t, "created", first.Action)

	second, err := svc.StorePersonaAttribute(ctx, model.PersonaSkill, "go", "advanced", 0.7)
	require.NoError(t, err)
	assert.Equal(t, "updated", second.Action)
	assert.Equal(t, first.ID, second.ID)

	grouped, err := svc.GetPersona(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, grouped["skills"], 1)

	attr := grouped["skills"][0]
	assert.Equal(t, model.Document{"value": "advanced"}, attr.CurrentValue)
	assert.Equal(t, 0.7, attr.ConfidenceScore)
	assert.Equal(t, 2, attr.EvidenceCount)
	require.Len(t, attr.GrowthTrajectory, 1)
	assert.Equal(t, model.Document{"value": "intermediate"}, attr.GrowthTrajectory[0].PreviousValue)
	assert.Equal(t, model.Document{"value": "advanced"}, attr.GrowthTrajectory[0].NewValue)
	assert.InDelta(t, 0.3, attr.GrowthTrajectory[0].ConfidenceDelta, 1e-9)
}

func TestStorePersonaAttributeClampsConfidence(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.StorePersonaAttribute(ctx, model.PersonaGoal, "ship", "the release", 1.8)
	require.NoError(t, err)

	grouped, err := svc.GetPersona(ctx, model.PersonaGoal, 0)
	require.NoError(t, err)
	require.Len(t, grouped["goals"], 1)
	assert.Equal(t, 1.0, grouped["goals"][0].ConfidenceScore)
}

func TestGetPersonaGroupsAndFilters(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.StorePersonaAttribute(ctx, model.PersonaCoreTrait, "curiosity", "asks questions", 0.9)
	require.NoError(t, err)
	_, err = svc.StorePersonaAttribute(ctx, model.PersonaWeakness, "verbosity", "over-explains", 0.3)
	require.NoError(t, err)

	grouped, err := svc.GetPersona(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, grouped["core_traits"], 1)
	assert.Len(t, grouped["weaknesses"], 1)

	confident, err := svc.GetPersona(ctx, "", 0.5)
	require.NoError(t, err)
	assert.Len(t, confident["core_traits"], 1)
	assert.Empty(t, confident["weaknesses"])
}

func TestGetPersonaEvolution(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.StorePersonaAttribute(ctx, model.PersonaSkill, "sql", "basic", 0.3)
	require.NoError(t, err)
	_, err = svc.StorePersonaAttribute(ctx, model.PersonaSkill, "sql", "joins and windows", 0.6)
	require.NoError(t, err)

	evolution, err := svc.GetPersonaEvolution(ctx, 30, "")
	require.NoError(t, err)
	assert.Equal(t, 30, evolution.DaysBack)
	assert.Equal(t, 1, evolution.TotalAttributes)
	require.Contains(t, evolution.PerType, "skills")
	assert.Len(t, evolution.PerType["skills"].Attributes, 1)
	assert.InDelta(t, 0.6, evolution.PerType["skills"].AvgConfidence, 1e-9)
	require.Len(t, evolution.RecentChanges, 1)
	assert.Equal(t, "sql", evolution.RecentChanges[0].AttributeName)
}

func TestGenerateSelfReflection(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	r, err := svc.GenerateSelfReflection(ctx, memory.SelfReflectionInput{
		Trigger:          "task_completion",
		SituationSummary: "migrated the billing schema",
		WhatWentWell:     "zero downtime",
	})
	require.NoError(t, err)
	assert.Positive(t, r.ID)
	assert.Equal(t, "task_completion", r.ReflectionTrigger)
	assert.Equal(t, "zero downtime", r.WhatWentWell)
	assert.Equal(t, "Framework ready for AI analysis", r.WhatCouldImprove)
	assert.Equal(t, "Framework ready for AI analysis", r.LessonsLearned)
	assert.Equal(t, 0.5, r.ConfidenceInAnalysis)
}

func TestReflectOnInteractionValidatesMood(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var validationErr *registrystore.ValidationError
	_, err := svc.ReflectOnInteraction(ctx, "interaction", "went badly", ptr(-1.5))
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "moodScore", validationErr.Field)

	r, err := svc.ReflectOnInteraction(ctx, "", "went fine", ptr(0.4))
	require.NoError(t, err)
	assert.Equal(t, "interaction", r.ReflectionType)
	require.NotNil(t, r.MoodScore)
	assert.Equal(t, 0.4, *r.MoodScore)
}

func TestGetEmotionalInsights(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ReflectOnInteraction(ctx, "interaction", "smooth session", ptr(0.8))
	require.NoError(t, err)
	_, err = svc.ReflectOnInteraction(ctx, "frustration", "flaky tests", ptr(-0.4))
	require.NoError(t, err)
	_, err = svc.ReflectOnInteraction(ctx, "interaction", "no mood recorded", nil)
	require.NoError(t, err)

	insights, err := svc.GetEmotionalInsights(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 3, insights.TotalReflections)
	assert.Equal(t, 2, insights.CountsByType["interaction"])
	assert.Equal(t, 1, insights.CountsByType["frustration"])
	require.NotNil(t, insights.AverageMood)
	assert.InDelta(t, 0.2, *insights.AverageMood, 1e-9)
	require.NotNil(t, insights.MoodRange)
	assert.Equal(t, -0.4, insights.MoodRange.Min)
	assert.Equal(t, 0.8, insights.MoodRange.Max)
	assert.Len(t, insights.RecentSamples, 3)
}
