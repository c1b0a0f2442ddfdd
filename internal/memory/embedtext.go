package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/memkeep/memkeep/internal/metrics"
	"github.com/memkeep/memkeep/internal/model"
	registryembed "github.com/memkeep/memkeep/internal/registry/embed"
	pgvec "github.com/pgvector/pgvector-go"
)

// preferredTextKeys are content fields used for embedding text, in priority
// order. Remaining string fields are appended in key order for determinism.
var preferredTextKeys = []string{"text", "description", "summary", "title"}

// embeddingText builds the text the vector is computed from: the title (when
// set) prefixed to the content's textual fields.
func embeddingText(title *string, content model.Document) string {
	body := contentText(content)
	if title != nil && *title != "" {
		if body == "" {
			return *title
		}
		return *title + ": " + body
	}
	return body
}

func contentText(content model.Document) string {
	var parts []string
	used := make(map[string]bool)
	for _, k := range preferredTextKeys {
		if v, ok := content[k].(string); ok && v != "" {
			parts = append(parts, v)
			used[k] = true
		}
	}

	var rest []string
	for k, raw := range content {
		if used[k] {
			continue
		}
		if v, ok := raw.(string); ok && v != "" {
			rest = append(rest, k+": "+v)
		}
	}
	sort.Strings(rest)
	parts = append(parts, rest...)
	return strings.Join(parts, " ")
}

// embedText computes one embedding, returning nil when the provider is
// unavailable or fails. Failures downgrade to the textual search path rather
// than failing the operation.
func (s *Service) embedText(ctx context.Context, text string) *pgvec.Vector {
	if text == "" || s.embedder.Dimension() == 0 {
		return nil
	}
	start := time.Now()
	vecs, err := s.embedder.EmbedTexts(ctx, []string{text})
	if metrics.EmbeddingLatency != nil {
		metrics.EmbeddingLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if !errors.Is(err, registryembed.ErrUnavailable) {
			log.Warn("Embedding failed, storing without vector", "model", s.embedder.ModelName(), "error", err)
		}
		if metrics.EmbeddingFailuresTotal != nil {
			metrics.EmbeddingFailuresTotal.Inc()
		}
		return nil
	}
	if len(vecs) != 1 {
		return nil
	}
	vec := pgvec.NewVector(vecs[0])
	return &vec
}
