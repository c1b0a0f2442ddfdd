package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/memkeep/memkeep/internal/config"
	"github.com/memkeep/memkeep/internal/memory"
	"github.com/memkeep/memkeep/internal/model"
	"github.com/memkeep/memkeep/internal/plugin/cache/noop"
	"github.com/memkeep/memkeep/internal/plugin/embed/disabled"
	"github.com/memkeep/memkeep/internal/plugin/embed/local"
	memstore "github.com/memkeep/memkeep/internal/plugin/store/memory"
	registryembed "github.com/memkeep/memkeep/internal/registry/embed"
	registrystore "github.com/memkeep/memkeep/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*memory.Service, *memstore.Store) {
	t.Helper()
	return newTestServiceWithEmbedder(t, &local.LocalEmbedder{})
}

func newTestServiceWithEmbedder(t *testing.T, embedder registryembed.Embedder) (*memory.Service, *memstore.Store) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ProjectID = "test-project"
	cfg.SessionID = "test-session"
	st := memstore.New()
	svc := memory.NewWithBackends(&cfg, st, embedder, noop.Cache{})
	return svc, st
}

func ptr[T any](v T) *T { return &v }

func TestStoreMemoryNormalizesPlainText(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.StoreMemory(ctx, memory.StoreInput{Content: "the deploy uses blue-green"})
	require.NoError(t, err)
	assert.True(t, result.HasEmbedding)
	assert.Positive(t, result.MemoryID)

	m, err := svc.GetMemory(ctx, result.MemoryID)
	require.NoError(t, err)
	assert.Equal(t, model.Document{"text": "the deploy uses blue-green"}, m.Content)
	assert.Equal(t, "note", m.MemoryType)
	assert.Equal(t, 0.5, m.ImportanceScore)
	assert.Equal(t, "test-project", m.ProjectID)
	assert.Equal(t, "test-session", m.SessionID)
}

func TestStoreMemoryKeepsStructuredContent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	doc := model.Document{"text": "db password rotated", "system": "vaulted"}
	result, err := svc.StoreMemory(ctx, memory.StoreInput{
		MemoryType: "decision",
		Content:    doc,
		Title:      ptr("rotation"),
		Tags:       []string{"security"},
	})
	require.NoError(t, err)

	m, err := svc.GetMemory(ctx, result.MemoryID)
	require.NoError(t, err)
	assert.Equal(t, doc, m.Content)
	assert.Equal(t, "decision", m.MemoryType)
	assert.Equal(t, []string{"security"}, m.Tags)
}

func TestStoreMemoryClampsImportance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	high, err := svc.StoreMemory(ctx, memory.StoreInput{Content: "a", Importance: ptr(1.7)})
	require.NoError(t, err)
	low, err := svc.StoreMemory(ctx, memory.StoreInput{Content: "b", Importance: ptr(-0.2)})
	require.NoError(t, err)

	m, err := svc.GetMemory(ctx, high.MemoryID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.ImportanceScore)

	m, err = svc.GetMemory(ctx, low.MemoryID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.ImportanceScore)
}

func TestStoreMemoryRejectsEmptyContent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var validationErr *registrystore.ValidationError
	_, err := svc.StoreMemory(ctx, memory.StoreInput{Content: ""})
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "content", validationErr.Field)

	_, err = svc.StoreMemory(ctx, memory.StoreInput{})
	require.ErrorAs(t, err, &validationErr)
}

func TestStoreMemoryRejectsPastExpiry(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	var validationErr *registrystore.ValidationError
	_, err := svc.StoreMemory(ctx, memory.StoreInput{Content: "x", ExpiresAt: &past})
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "expiresAt", validationErr.Field)
}

func TestStoreMemoryWithoutEmbedder(t *testing.T) {
	svc, _ := newTestServiceWithEmbedder(t, disabled.New())
	ctx := context.Background()

	result, err := svc.StoreMemory(ctx, memory.StoreInput{Content: "no vector"})
	require.NoError(t, err)
	assert.False(t, result.HasEmbedding)
}

func TestGetMemoryNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	var notFound *registrystore.NotFoundError
	_, err := svc.GetMemory(context.Background(), 999)
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, int64(999), notFound.ID)
}

func TestGetMemoryExcludesExpired(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	expired := time.Now().Add(-time.Minute)
	m := &model.Memory{
		ProjectID:  "test-project",
		SessionID:  "test-session",
		MemoryType: "note",
		Content:    model.Document{"text": "gone"},
		CreatedAt:  time.Now().Add(-time.Hour),
		ExpiresAt:  &expired,
	}
	require.NoError(t, st.Insert(ctx, m))

	var notFound *registrystore.NotFoundError
	_, err := svc.GetMemory(ctx, m.ID)
	require.ErrorAs(t, err, &notFound)
}

func TestUpdateMemoryUnionsTags(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.StoreMemory(ctx, memory.StoreInput{Content: "tagged", Tags: []string{"a", "b"}})
	require.NoError(t, err)

	m, err := svc.UpdateMemory(ctx, result.MemoryID, memory.UpdateInput{AddTags: []string{"b", "c"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, m.Tags)
}

func TestUpdateMemoryClampsImportance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.StoreMemory(ctx, memory.StoreInput{Content: "x"})
	require.NoError(t, err)

	m, err := svc.UpdateMemory(ctx, result.MemoryID, memory.UpdateInput{Importance: ptr(4.2)})
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.ImportanceScore)
}

func TestUpdateMemoryContent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.StoreMemory(ctx, memory.StoreInput{Content: "old text"})
	require.NoError(t, err)

	m, err := svc.UpdateMemory(ctx, result.MemoryID, memory.UpdateInput{Content: "new text"})
	require.NoError(t, err)
	assert.Equal(t, model.Document{"text": "new text"}, m.Content)
	assert.NotNil(t, m.Embedding)
}

func TestCleanupRemovesOnlyExpired(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	keep, err := svc.StoreMemory(ctx, memory.StoreInput{Content: "keep me"})
	require.NoError(t, err)

	expired := time.Now().Add(-time.Minute)
	gone := &model.Memory{
		ProjectID:  "test-project",
		SessionID:  "test-session",
		MemoryType: "note",
		Content:    model.Document{"text": "drop me"},
		CreatedAt:  time.Now().Add(-time.Hour),
		ExpiresAt:  &expired,
	}
	require.NoError(t, st.Insert(ctx, gone))

	deleted, err := svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = svc.GetMemory(ctx, keep.MemoryID)
	assert.NoError(t, err)

	// Idempotent.
	deleted, err = svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestSummarize(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, in := range []memory.StoreInput{
		{Content: "n1", MemoryType: "note", Importance: ptr(0.4)},
		{Content: "n2", MemoryType: "note", Importance: ptr(0.6)},
		{Content: "d1", MemoryType: "decision", Importance: ptr(0.8)},
	} {
		_, err := svc.StoreMemory(ctx, in)
		require.NoError(t, err)
	}

	s, err := svc.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), s.TotalMemories)
	require.Len(t, s.Types, 2)
	assert.Equal(t, "note", s.Types[0].MemoryType)
	assert.Equal(t, int64(2), s.Types[0].Count)
	assert.InDelta(t, 0.5, s.Types[0].AvgImportance, 1e-9)
}

func TestReindexEmbeddings(t *testing.T) {
	svc, st := newTestServiceWithEmbedder(t, &local.LocalEmbedder{})
	ctx := context.Background()

	// Inserted directly without a vector, as if the embedder had been down.
	m := &model.Memory{
		ProjectID:  "test-project",
		SessionID:  "test-session",
		MemoryType: "note",
		Content:    model.Document{"text": "backfill me"},
	}
	require.NoError(t, st.Insert(ctx, m))

	n, err := svc.ReindexEmbeddings(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := st.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.Embedding)
}
