package config

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// Config holds all configuration for the memory engine. Project and session
// scope are explicit here so multiple stores can coexist (e.g. in tests)
// without sharing ambient state.
type Config struct {
	// Database. Empty selects the in-process fallback store.
	DBURL string

	// Store backend type: "postgres" or "memory". Empty picks postgres when
	// DBURL is set, memory otherwise.
	StoreType string

	// Run schema migrations on startup.
	MigrateAtStart bool

	// DB pool bounds. Callers block on an exhausted pool only up to
	// DBPoolAcquireTimeout before failing with a typed error.
	DBMaxOpenConns       int
	DBMaxIdleConns       int
	DBPoolAcquireTimeout time.Duration

	// Embedding provider: "local", "openai", or "none".
	EmbedType string

	// OpenAI-compatible embedding endpoint.
	OpenAIAPIKey     string
	OpenAIModelName  string
	OpenAIBaseURL    string
	OpenAIDimensions int

	// Cache backend: "ristretto", "redis", or "none".
	CacheType string
	RedisURL  string
	CacheTTL  time.Duration

	// Scope identity. ProjectID defaults to the detected git repository name,
	// SessionID to a fresh generated id per process.
	ProjectID    string
	SessionID    string
	AIInstanceID string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		StoreType:            "",
		MigrateAtStart:       true,
		DBMaxOpenConns:       20,
		DBMaxIdleConns:       5,
		DBPoolAcquireTimeout: 10 * time.Second,
		EmbedType:            "local",
		OpenAIModelName:      "text-embedding-3-small",
		OpenAIBaseURL:        "https://api.openai.com/v1",
		CacheType:            "none",
		CacheTTL:             10 * time.Minute,
		AIInstanceID:         "default",
	}
}

// LoadFromEnv overlays MEMKEEP_* environment variables onto the config.
func (c *Config) LoadFromEnv() {
	setString(&c.DBURL, "MEMKEEP_DB_URL")
	setString(&c.StoreType, "MEMKEEP_STORE", "MEMKEEP_STORE_TYPE")
	setBool(&c.MigrateAtStart, "MEMKEEP_MIGRATE_AT_START")
	setInt(&c.DBMaxOpenConns, "MEMKEEP_DB_MAX_OPEN_CONNS")
	setInt(&c.DBMaxIdleConns, "MEMKEEP_DB_MAX_IDLE_CONNS")
	setString(&c.EmbedType, "MEMKEEP_EMBED")
	setString(&c.OpenAIAPIKey, "MEMKEEP_OPENAI_API_KEY", "OPENAI_API_KEY")
	setString(&c.OpenAIModelName, "MEMKEEP_OPENAI_MODEL")
	setString(&c.OpenAIBaseURL, "MEMKEEP_OPENAI_BASE_URL")
	setInt(&c.OpenAIDimensions, "MEMKEEP_OPENAI_DIMENSIONS")
	setString(&c.CacheType, "MEMKEEP_CACHE")
	setString(&c.RedisURL, "MEMKEEP_REDIS_URL")
	setString(&c.ProjectID, "MEMKEEP_PROJECT_ID")
	setString(&c.SessionID, "MEMKEEP_SESSION_ID")
	setString(&c.AIInstanceID, "MEMKEEP_AI_INSTANCE_ID")
}

// ResolvedStoreType returns the effective store backend.
func (c *Config) ResolvedStoreType() string {
	if c.StoreType != "" {
		return c.StoreType
	}
	if c.DBURL != "" {
		return "postgres"
	}
	return "memory"
}

// EmbeddingDimension returns the vector dimension the schema must use for the
// configured embedding provider. The dimension is fixed for the lifetime of a
// store; changing providers requires a fresh schema.
func (c *Config) EmbeddingDimension() int {
	switch c.EmbedType {
	case "openai":
		if c.OpenAIDimensions > 0 {
			return c.OpenAIDimensions
		}
		return 1536
	default:
		return 384
	}
}

// ResolveScope fills ProjectID and SessionID when unset: the project from git
// or the working directory name, the session from a fresh id.
func (c *Config) ResolveScope() {
	if c.ProjectID == "" {
		wd, err := os.Getwd()
		if err != nil {
			wd = "."
		}
		c.ProjectID = DetectProjectID(wd)
	}
	if c.SessionID == "" {
		c.SessionID = NewSessionID(c.ProjectID)
	}
}

// DetectProjectID derives a project identifier from the git origin remote of
// root, falling back to the directory name.
func DetectProjectID(root string) string {
	cmd := exec.Command("git", "remote", "get-url", "origin")
	cmd.Dir = root
	if out, err := cmd.Output(); err == nil {
		url := strings.TrimSpace(string(out))
		if url != "" {
			name := url[strings.LastIndexByte(url, '/')+1:]
			name = strings.TrimSuffix(name, ".git")
			if name != "" {
				return name
			}
		}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return filepath.Base(root)
	}
	return filepath.Base(abs)
}

// NewSessionID generates a unique session identifier scoped to a project.
func NewSessionID(projectID string) string {
	return projectID + "-" + time.Now().UTC().Format("20060102T150405") + "-" + uuid.NewString()[:8]
}

func setString(dst *string, keys ...string) {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			*dst = v
			return
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
