package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/memkeep/memkeep/internal/memory"
	"github.com/memkeep/memkeep/internal/model"
	"github.com/memkeep/memkeep/internal/plugin/embed/disabled"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecallSemanticFindsRelatedMemory(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	blue, err := svc.StoreMemory(ctx, memory.StoreInput{Content: "the sky is blue today"})
	require.NoError(t, err)
	_, err = svc.StoreMemory(ctx, memory.StoreInput{Content: "grass grows green in spring"})
	require.NoError(t, err)

	results, err := svc.Recall(ctx, memory.RecallQuery{Query: "blue sky", Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, blue.MemoryID, results[0].Memory.ID)
	require.NotNil(t, results[0].RelevanceScore)
	assert.Greater(t, *results[0].RelevanceScore, 0.0)
}

func TestRecallLimitZeroReturnsEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.StoreMemory(ctx, memory.StoreInput{Content: "something"})
	require.NoError(t, err)

	results, err := svc.Recall(ctx, memory.RecallQuery{Query: "something"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRecallProjectScoping(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	_, err := svc.StoreMemory(ctx, memory.StoreInput{Content: "ours"})
	require.NoError(t, err)
	require.NoError(t, st.Insert(ctx, &model.Memory{
		ProjectID:  "other-project",
		SessionID:  "s",
		MemoryType: "note",
		Content:    model.Document{"text": "theirs"},
	}))

	results, err := svc.Recall(ctx, memory.RecallQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "test-project", results[0].Memory.ProjectID)

	results, err = svc.Recall(ctx, memory.RecallQuery{Limit: 10, IncludeOtherProjects: true})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestRecallTextFallbackWithoutEmbedder(t *testing.T) {
	svc, _ := newTestServiceWithEmbedder(t, disabled.New())
	ctx := context.Background()

	hit, err := svc.StoreMemory(ctx, memory.StoreInput{Content: "redis cache invalidation bug"})
	require.NoError(t, err)
	_, err = svc.StoreMemory(ctx, memory.StoreInput{Content: "unrelated note"})
	require.NoError(t, err)

	results, err := svc.Recall(ctx, memory.RecallQuery{Query: "Redis", Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, hit.MemoryID, results[0].Memory.ID)
	assert.Nil(t, results[0].RelevanceScore)
}

func TestRecallFilterOnlyOrdersByImportance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	low, err := svc.StoreMemory(ctx, memory.StoreInput{Content: "low", Importance: ptr(0.2)})
	require.NoError(t, err)
	high, err := svc.StoreMemory(ctx, memory.StoreInput{Content: "high", Importance: ptr(0.9)})
	require.NoError(t, err)

	results, err := svc.Recall(ctx, memory.RecallQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, high.MemoryID, results[0].Memory.ID)
	assert.Equal(t, low.MemoryID, results[1].Memory.ID)
}

func TestRecallHonorsTypeAndThresholdFilters(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.StoreMemory(ctx, memory.StoreInput{Content: "a note", MemoryType: "note", Importance: ptr(0.3)})
	require.NoError(t, err)
	decision, err := svc.StoreMemory(ctx, memory.StoreInput{Content: "a decision", MemoryType: "decision", Importance: ptr(0.8)})
	require.NoError(t, err)

	results, err := svc.Recall(ctx, memory.RecallQuery{Limit: 10, MemoryType: "decision"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, decision.MemoryID, results[0].Memory.ID)

	results, err = svc.Recall(ctx, memory.RecallQuery{Limit: 10, ImportanceThreshold: 0.5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, decision.MemoryID, results[0].Memory.ID)
}

func TestRecallLogsAccess(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	old, err := svc.StoreMemory(ctx, memory.StoreInput{
		Content:   "old but retrieved",
		CreatedAt: time.Now().AddDate(0, 0, -40),
	})
	require.NoError(t, err)

	_, err = svc.Recall(ctx, memory.RecallQuery{Limit: 10})
	require.NoError(t, err)

	// The retrieval protected the memory: with an access threshold of zero
	// it is no longer a decay candidate.
	candidates, err := st.DecayCandidates(ctx, time.Now(), 0)
	require.NoError(t, err)
	for _, c := range candidates {
		assert.NotEqual(t, old.MemoryID, c.ID)
	}
}

func TestRecallWeightedRanking(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	oldImportant, err := svc.StoreMemory(ctx, memory.StoreInput{
		Content:    "old architecture decision",
		Importance: ptr(0.9),
		CreatedAt:  time.Now().AddDate(0, 0, -300),
	})
	require.NoError(t, err)
	newMinor, err := svc.StoreMemory(ctx, memory.StoreInput{
		Content:    "fresh scratch note",
		Importance: ptr(0.3),
	})
	require.NoError(t, err)

	results, err := svc.RecallWeighted(ctx, memory.RecallQuery{Limit: 10}, memory.Weights{Importance: 1})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, oldImportant.MemoryID, results[0].Memory.ID)

	results, err = svc.RecallWeighted(ctx, memory.RecallQuery{Limit: 10}, memory.Weights{Recency: 1})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, newMinor.MemoryID, results[0].Memory.ID)
}

func TestRecallWeightedDefaultsAndTruncation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.StoreMemory(ctx, memory.StoreInput{Content: "note", Importance: ptr(0.5)})
		require.NoError(t, err)
	}

	results, err := svc.RecallWeighted(ctx, memory.RecallQuery{Limit: 2}, memory.Weights{})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	for _, r := range results {
		assert.Greater(t, r.CompositeScore, 0.0)
	}
}
