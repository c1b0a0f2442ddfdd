package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "local", cfg.EmbedType)
	assert.Equal(t, "none", cfg.CacheType)
	assert.True(t, cfg.MigrateAtStart)
	assert.Equal(t, 20, cfg.DBMaxOpenConns)
	assert.Equal(t, 10*time.Second, cfg.DBPoolAcquireTimeout)
	assert.Equal(t, "default", cfg.AIInstanceID)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MEMKEEP_DB_URL", "postgres://localhost/test")
	t.Setenv("MEMKEEP_EMBED", "none")
	t.Setenv("MEMKEEP_DB_MAX_OPEN_CONNS", "7")
	t.Setenv("MEMKEEP_MIGRATE_AT_START", "false")
	t.Setenv("MEMKEEP_PROJECT_ID", "acme")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, "postgres://localhost/test", cfg.DBURL)
	assert.Equal(t, "none", cfg.EmbedType)
	assert.Equal(t, 7, cfg.DBMaxOpenConns)
	assert.False(t, cfg.MigrateAtStart)
	assert.Equal(t, "acme", cfg.ProjectID)
}

func TestResolvedStoreType(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "memory", cfg.ResolvedStoreType())

	cfg.DBURL = "postgres://localhost/test"
	assert.Equal(t, "postgres", cfg.ResolvedStoreType())

	cfg.StoreType = "memory"
	assert.Equal(t, "memory", cfg.ResolvedStoreType())
}

func TestEmbeddingDimension(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 384, cfg.EmbeddingDimension())

	cfg.EmbedType = "openai"
	assert.Equal(t, 1536, cfg.EmbeddingDimension())

	cfg.OpenAIDimensions = 768
	assert.Equal(t, 768, cfg.EmbeddingDimension())
}

func TestDetectProjectIDFallsBackToDirName(t *testing.T) {
	dir := t.TempDir()
	got := DetectProjectID(dir)
	require.NotEmpty(t, got)
	assert.True(t, strings.HasSuffix(dir, got))
}

func TestNewSessionID(t *testing.T) {
	a := NewSessionID("acme")
	b := NewSessionID("acme")
	assert.True(t, strings.HasPrefix(a, "acme-"))
	assert.NotEqual(t, a, b)
}

func TestResolveScopeFillsSession(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProjectID = "acme"
	cfg.ResolveScope()
	assert.Equal(t, "acme", cfg.ProjectID)
	assert.NotEmpty(t, cfg.SessionID)
}
