package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/memkeep/memkeep/internal/config"
	"github.com/memkeep/memkeep/internal/model"
	"github.com/memkeep/memkeep/internal/plugin/embed/local"
	registrymigrate "github.com/memkeep/memkeep/internal/registry/migrate"
	registrystore "github.com/memkeep/memkeep/internal/registry/store"
	"github.com/memkeep/memkeep/internal/testutil/testpg"
	pgvec "github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startStore(t *testing.T) (context.Context, registrystore.MemoryStore) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	cfg := config.DefaultConfig()
	cfg.DBURL = testpg.Start(t)
	cfg.ProjectID = "itest"
	cfg.SessionID = "itest-session"
	ctx := config.WithContext(context.Background(), &cfg)

	require.NoError(t, registrymigrate.RunAll(ctx))

	loader, err := registrystore.Select("postgres")
	require.NoError(t, err)
	st, err := loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return ctx, st
}

func embedText(t *testing.T, text string) []float32 {
	t.Helper()
	vecs, err := (&local.LocalEmbedder{}).EmbedTexts(context.Background(), []string{text})
	require.NoError(t, err)
	return vecs[0]
}

func newMemory(t *testing.T, text string, importance float64) *model.Memory {
	t.Helper()
	vec := pgvec.NewVector(embedText(t, text))
	return &model.Memory{
		ProjectID:        "itest",
		SessionID:        "itest-session",
		MemoryType:       "note",
		Content:          model.Document{"text": text},
		ImportanceScore:  importance,
		EmotionalContext: model.Document{},
		Tags:             []string{},
		Embedding:        &vec,
	}
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	ctx, st := startStore(t)

	m := newMemory(t, "the sky is blue today", 0.7)
	require.NoError(t, st.Insert(ctx, m))
	require.Positive(t, m.ID)

	got, err := st.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Document{"text": "the sky is blue today"}, got.Content)
	assert.Equal(t, 0.7, got.ImportanceScore)
	assert.NotNil(t, got.Embedding)

	var notFound *registrystore.NotFoundError
	_, err = st.Get(ctx, m.ID+100)
	require.ErrorAs(t, err, &notFound)
}

func TestPostgresStoreUpdate(t *testing.T) {
	ctx, st := startStore(t)

	m := newMemory(t, "original", 0.5)
	m.Tags = []string{"a", "b"}
	require.NoError(t, st.Insert(ctx, m))

	title := "renamed"
	imp := 0.9
	updated, err := st.Update(ctx, m.ID, registrystore.MemoryUpdate{
		Title:           &title,
		ImportanceScore: &imp,
		AddTags:         []string{"b", "c"},
	})
	require.NoError(t, err)
	require.NotNil(t, updated.Title)
	assert.Equal(t, "renamed", *updated.Title)
	assert.Equal(t, 0.9, updated.ImportanceScore)
	assert.Equal(t, []string{"a", "b", "c"}, updated.Tags)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt) || updated.UpdatedAt.Equal(updated.CreatedAt))
}

func TestPostgresStoreSearch(t *testing.T) {
	ctx, st := startStore(t)

	blue := newMemory(t, "the sky is blue today", 0.6)
	require.NoError(t, st.Insert(ctx, blue))
	require.NoError(t, st.Insert(ctx, newMemory(t, "grass grows green in spring", 0.6)))

	// Semantic path.
	results, err := st.Search(ctx, registrystore.SearchQuery{
		ProjectID: "itest",
		Limit:     10,
		Embedding: embedText(t, "blue sky"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, blue.ID, results[0].Memory.ID)
	require.NotNil(t, results[0].RelevanceScore)
	assert.Greater(t, *results[0].RelevanceScore, 0.0)

	// Textual fallback, case-insensitive.
	results, err = st.Search(ctx, registrystore.SearchQuery{
		ProjectID: "itest",
		Limit:     10,
		Text:      "BLUE",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, blue.ID, results[0].Memory.ID)
	assert.Nil(t, results[0].RelevanceScore)
}

func TestPostgresStoreExpiry(t *testing.T) {
	ctx, st := startStore(t)

	m := newMemory(t, "short lived", 0.5)
	expires := time.Now().Add(200 * time.Millisecond)
	m.ExpiresAt = &expires
	require.NoError(t, st.Insert(ctx, m))

	time.Sleep(300 * time.Millisecond)

	var notFound *registrystore.NotFoundError
	_, err := st.Get(ctx, m.ID)
	require.ErrorAs(t, err, &notFound)

	deleted, err := st.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	deleted, err = st.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestPostgresStoreDecayPipeline(t *testing.T) {
	ctx, st := startStore(t)

	old := newMemory(t, "old and unvisited", 0.5)
	old.CreatedAt = time.Now().AddDate(0, 0, -60)
	require.NoError(t, st.Insert(ctx, old))

	visited := newMemory(t, "old but visited", 0.5)
	visited.CreatedAt = time.Now().AddDate(0, 0, -60)
	require.NoError(t, st.Insert(ctx, visited))
	require.NoError(t, st.LogAccess(ctx, []int64{visited.ID, visited.ID, visited.ID}, "recall", 0.5))

	candidates, err := st.DecayCandidates(ctx, time.Now().AddDate(0, 0, -30), 2)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, old.ID, candidates[0].ID)

	require.NoError(t, st.ApplyImportance(ctx, []registrystore.ImportanceUpdate{{ID: old.ID, NewImportance: 0.21}}))
	got, err := st.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.21, got.ImportanceScore, 1e-9)
}

func TestPostgresStorePersona(t *testing.T) {
	ctx, st := startStore(t)

	first, err := st.UpsertPersonaAttribute(ctx, "default", model.PersonaSkill, "go", model.Document{"value": "intermediate"}, 0.4)
	require.NoError(t, err)
	assert.Equal(t, "created", first.Action)

	second, err := st.UpsertPersonaAttribute(ctx, "default", model.PersonaSkill, "go", model.Document{"value": "advanced"}, 0.7)
	require.NoError(t, err)
	assert.Equal(t, "updated", second.Action)
	assert.Equal(t, first.ID, second.ID)

	attrs, err := st.ListPersonaAttributes(ctx, registrystore.PersonaQuery{AIInstanceID: "default"})
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	assert.Equal(t, 2, attrs[0].EvidenceCount)
	require.Len(t, attrs[0].GrowthTrajectory, 1)
	assert.Equal(t, model.Document{"value": "intermediate"}, attrs[0].GrowthTrajectory[0].PreviousValue)
}

func TestPostgresStoreReflections(t *testing.T) {
	ctx, st := startStore(t)

	require.NoError(t, st.InsertSelfReflection(ctx, &model.SelfReflection{
		SessionID:            "itest-session",
		ProjectID:            "itest",
		ReflectionTrigger:    "manual",
		SituationSummary:     "ran the suite",
		ConfidenceInAnalysis: 0.5,
	}))

	mood := 0.6
	require.NoError(t, st.InsertEmotionalReflection(ctx, &model.EmotionalReflection{
		SessionID:      "itest-session",
		ProjectID:      "itest",
		ReflectionType: "interaction",
		Content:        model.Document{"text": "all green"},
		MoodScore:      &mood,
	}))

	reflections, err := st.ListEmotionalReflections(ctx, "itest", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, reflections, 1)
	require.NotNil(t, reflections[0].MoodScore)
	assert.Equal(t, 0.6, *reflections[0].MoodScore)
}

func TestPostgresStoreEmbeddingBackfill(t *testing.T) {
	ctx, st := startStore(t)

	m := newMemory(t, "no vector yet", 0.5)
	m.Embedding = nil
	require.NoError(t, st.Insert(ctx, m))

	missing, err := st.MissingEmbeddings(ctx, 10)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, m.ID, missing[0].ID)

	require.NoError(t, st.SetEmbedding(ctx, m.ID, embedText(t, "no vector yet")))
	missing, err = st.MissingEmbeddings(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, missing)

	var notFound *registrystore.NotFoundError
	err = st.SetEmbedding(ctx, m.ID+100, embedText(t, "x"))
	require.ErrorAs(t, err, &notFound)
}
