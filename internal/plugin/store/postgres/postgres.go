package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/memkeep/memkeep/internal/config"
	"github.com/memkeep/memkeep/internal/metrics"
	"github.com/memkeep/memkeep/internal/model"
	registrymigrate "github.com/memkeep/memkeep/internal/registry/migrate"
	registrystore "github.com/memkeep/memkeep/internal/registry/store"
	pgvec "github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "postgres",
		Loader: func(ctx context.Context) (registrystore.MemoryStore, error) {
			cfg := config.FromContext(ctx)
			if cfg == nil || cfg.DBURL == "" {
				return nil, fmt.Errorf("postgres store: MEMKEEP_DB_URL is required")
			}
			db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
			if err != nil {
				return nil, classify(fmt.Errorf("failed to connect to postgres: %w", err))
			}
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get underlying db: %w", err)
			}
			sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
			sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
			if metrics.DBPoolMaxConnections != nil {
				metrics.DBPoolMaxConnections.Set(float64(cfg.DBMaxOpenConns))
			}

			// Periodically update the open connections gauge.
			go func() {
				ticker := time.NewTicker(15 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if metrics.DBPoolOpenConnections != nil {
							metrics.DBPoolOpenConnections.Set(float64(sqlDB.Stats().OpenConnections))
						}
					}
				}
			}()

			return &PostgresStore{db: db, acquireTimeout: cfg.DBPoolAcquireTimeout}, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &postgresMigrator{}})
}

type postgresMigrator struct{}

func (m *postgresMigrator) Name() string { return "postgres-schema" }

func (m *postgresMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.MigrateAtStart || cfg.ResolvedStoreType() != "postgres" {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
	if err != nil {
		return classify(fmt.Errorf("migration: failed to connect: %w", err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	sql := strings.ReplaceAll(schemaSQL, "{{EMBEDDING_DIM}}", strconv.Itoa(cfg.EmbeddingDimension()))
	if _, err := sqlDB.ExecContext(ctx, sql); err != nil {
		return classify(fmt.Errorf("migration: failed to execute schema: %w", err))
	}
	log.Info("Postgres schema migration complete")
	return nil
}

// PostgresStore implements MemoryStore using GORM + PostgreSQL with pgvector.
type PostgresStore struct {
	db             *gorm.DB
	acquireTimeout time.Duration
}

func (s *PostgresStore) Name() string { return "postgres" }

// opContext bounds each operation so a caller blocked on an exhausted pool
// times out instead of hanging. An earlier caller deadline still wins.
func (s *PostgresStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.acquireTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.acquireTimeout)
}

func (s *PostgresStore) Insert(ctx context.Context, m *model.Memory) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return classify(fmt.Errorf("insert memory: %w", err))
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*model.Memory, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var m model.Memory
	err := s.db.WithContext(ctx).
		Where("id = ? AND (expires_at IS NULL OR expires_at > now())", id).
		First(&m).Error
	if err != nil {
		return nil, notFound(err, "memory", id)
	}
	return &m, nil
}

func (s *PostgresStore) Update(ctx context.Context, id int64, u registrystore.MemoryUpdate) (*model.Memory, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var updated model.Memory
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.Memory
		if err := tx.Where("id = ? AND (expires_at IS NULL OR expires_at > now())", id).First(&m).Error; err != nil {
			return notFound(err, "memory", id)
		}

		if u.Content != nil {
			m.Content = u.Content
		}
		if u.Title != nil {
			m.Title = u.Title
		}
		if u.ImportanceScore != nil {
			m.ImportanceScore = *u.ImportanceScore
		}
		if u.EmotionalContext != nil {
			m.EmotionalContext = u.EmotionalContext
		}
		if len(u.AddTags) > 0 {
			m.Tags = unionTags(m.Tags, u.AddTags)
		}
		if u.Embedding != nil {
			vec := pgvec.NewVector(u.Embedding)
			m.Embedding = &vec
		}
		m.UpdatedAt = time.Now()

		if err := tx.Save(&m).Error; err != nil {
			return classify(fmt.Errorf("update memory %d: %w", id, err))
		}
		updated = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func unionTags(existing, add []string) []string {
	seen := make(map[string]bool, len(existing)+len(add))
	out := make([]string, 0, len(existing)+len(add))
	for _, t := range existing {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range add {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	res := s.db.WithContext(ctx).
		Exec("DELETE FROM memories WHERE expires_at IS NOT NULL AND expires_at <= now()")
	if res.Error != nil {
		return 0, classify(fmt.Errorf("delete expired memories: %w", res.Error))
	}
	return res.RowsAffected, nil
}

func (s *PostgresStore) Summarize(ctx context.Context, projectID string) (*registrystore.MemorySummary, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var types []registrystore.TypeSummary
	err := s.db.WithContext(ctx).Raw(`
		SELECT memory_type,
		       COUNT(*) AS count,
		       AVG(importance_score) AS avg_importance,
		       MAX(created_at) AS latest
		FROM memories
		WHERE project_id = ?
		  AND (expires_at IS NULL OR expires_at > now())
		GROUP BY memory_type
		ORDER BY count DESC`, projectID).Scan(&types).Error
	if err != nil {
		return nil, classify(fmt.Errorf("summarize project %s: %w", projectID, err))
	}

	summary := &registrystore.MemorySummary{ProjectID: projectID, Types: types}
	for _, t := range types {
		summary.TotalMemories += t.Count
	}
	return summary, nil
}

func (s *PostgresStore) Search(ctx context.Context, q registrystore.SearchQuery) ([]registrystore.SearchResult, error) {
	if q.Limit <= 0 {
		return nil, nil
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	where := []string{
		"importance_score >= ?",
		"(expires_at IS NULL OR expires_at > now())",
	}
	args := []interface{}{q.ImportanceThreshold}

	if !q.IncludeOtherProjects {
		where = append(where, "project_id = ?")
		args = append(args, q.ProjectID)
	}
	if q.MemoryType != "" {
		where = append(where, "memory_type = ?")
		args = append(args, q.MemoryType)
	}

	if q.Embedding != nil {
		return s.semanticSearch(ctx, where, args, q)
	}

	db := s.db.WithContext(ctx).Where(strings.Join(where, " AND "), args...)
	if q.Text != "" {
		pattern := "%" + q.Text + "%"
		db = db.Where("(content::text ILIKE ? OR title ILIKE ?)", pattern, pattern)
	}

	var mems []model.Memory
	if err := db.Order("importance_score DESC, created_at DESC").Limit(q.Limit).Find(&mems).Error; err != nil {
		return nil, classify(fmt.Errorf("search memories: %w", err))
	}

	results := make([]registrystore.SearchResult, len(mems))
	for i, m := range mems {
		results[i] = registrystore.SearchResult{Memory: m}
	}
	return results, nil
}

// semanticSearch ranks rows by cosine similarity weighted by importance, then
// loads the full rows preserving score order. Only rows with a stored
// embedding participate.
func (s *PostgresStore) semanticSearch(ctx context.Context, where []string, args []interface{}, q registrystore.SearchQuery) ([]registrystore.SearchResult, error) {
	vec := pgvec.NewVector(q.Embedding)

	type scoredRow struct {
		ID        int64
		Relevance float64
	}
	var scored []scoredRow

	sql := fmt.Sprintf(`
		SELECT id, (1 - (embedding <=> ?::vector)) * importance_score AS relevance
		FROM memories
		WHERE %s AND embedding IS NOT NULL
		ORDER BY relevance DESC, created_at DESC
		LIMIT ?`, strings.Join(where, " AND "))

	queryArgs := append([]interface{}{vec}, args...)
	queryArgs = append(queryArgs, q.Limit)
	if err := s.db.WithContext(ctx).Raw(sql, queryArgs...).Scan(&scored).Error; err != nil {
		return nil, classify(fmt.Errorf("semantic search: %w", err))
	}
	if len(scored) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(scored))
	for i, r := range scored {
		ids[i] = r.ID
	}
	var mems []model.Memory
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&mems).Error; err != nil {
		return nil, classify(fmt.Errorf("semantic search: load rows: %w", err))
	}
	byID := make(map[int64]model.Memory, len(mems))
	for _, m := range mems {
		byID[m.ID] = m
	}

	results := make([]registrystore.SearchResult, 0, len(scored))
	for _, r := range scored {
		m, ok := byID[r.ID]
		if !ok {
			continue
		}
		relevance := r.Relevance
		results = append(results, registrystore.SearchResult{Memory: m, RelevanceScore: &relevance})
	}
	return results, nil
}

func (s *PostgresStore) LogAccess(ctx context.Context, ids []int64, accessContext string, relevance float64) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	entries := make([]model.AccessLogEntry, len(ids))
	for i, id := range ids {
		entries[i] = model.AccessLogEntry{
			MemoryID:       id,
			AccessedAt:     time.Now(),
			AccessContext:  accessContext,
			RelevanceScore: relevance,
		}
	}
	if err := s.db.WithContext(ctx).Create(&entries).Error; err != nil {
		return classify(fmt.Errorf("log memory access: %w", err))
	}
	return nil
}

func (s *PostgresStore) DecayCandidates(ctx context.Context, olderThan time.Time, accessThreshold int64) ([]registrystore.DecayCandidate, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var candidates []registrystore.DecayCandidate
	err := s.db.WithContext(ctx).Raw(`
		SELECT m.id,
		       m.title,
		       m.importance_score,
		       m.created_at,
		       COALESCE(a.access_count, 0) AS access_count
		FROM memories m
		LEFT JOIN (
			SELECT memory_id, COUNT(*) AS access_count
			FROM memory_access_log
			GROUP BY memory_id
		) a ON a.memory_id = m.id
		WHERE m.created_at < ?
		  AND COALESCE(a.access_count, 0) <= ?
		  AND m.importance_score > 0.1
		ORDER BY m.importance_score ASC, m.created_at ASC`,
		olderThan, accessThreshold).Scan(&candidates).Error
	if err != nil {
		return nil, classify(fmt.Errorf("decay candidates: %w", err))
	}
	return candidates, nil
}

func (s *PostgresStore) ApplyImportance(ctx context.Context, updates []registrystore.ImportanceUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	// One transaction so a partial failure never leaves scores half-updated.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			if err := tx.Exec(
				"UPDATE memories SET importance_score = ?, updated_at = now() WHERE id = ?",
				u.NewImportance, u.ID,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return classify(fmt.Errorf("apply importance updates: %w", err))
	}
	return nil
}

func (s *PostgresStore) MissingEmbeddings(ctx context.Context, limit int) ([]model.Memory, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var mems []model.Memory
	err := s.db.WithContext(ctx).
		Where("embedding IS NULL AND (expires_at IS NULL OR expires_at > now())").
		Order("created_at DESC").
		Limit(limit).
		Find(&mems).Error
	if err != nil {
		return nil, classify(fmt.Errorf("list memories missing embeddings: %w", err))
	}
	return mems, nil
}

func (s *PostgresStore) SetEmbedding(ctx context.Context, id int64, embedding []float32) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	vec := pgvec.NewVector(embedding)
	res := s.db.WithContext(ctx).Exec(
		"UPDATE memories SET embedding = ?, updated_at = now() WHERE id = ?", vec, id)
	if res.Error != nil {
		return classify(fmt.Errorf("set embedding for memory %d: %w", id, res.Error))
	}
	if res.RowsAffected == 0 {
		return &registrystore.NotFoundError{Resource: "memory", ID: id}
	}
	return nil
}

func (s *PostgresStore) UpsertPersonaAttribute(ctx context.Context, aiInstanceID, personaType, attributeName string, value model.Document, confidence float64) (*registrystore.PersonaUpsertResult, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var result registrystore.PersonaUpsertResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.PersonaAttribute
		err := tx.Where(
			"ai_instance_id = ? AND persona_type = ? AND attribute_name = ?",
			aiInstanceID, personaType, attributeName,
		).First(&existing).Error

		now := time.Now()
		switch {
		case err == nil:
			step := model.TrajectoryStep{
				Timestamp:       now,
				PreviousValue:   existing.CurrentValue,
				NewValue:        value,
				ConfidenceDelta: confidence - existing.ConfidenceScore,
			}
			existing.GrowthTrajectory = append(existing.GrowthTrajectory, step)
			existing.CurrentValue = value
			existing.ConfidenceScore = confidence
			existing.EvidenceCount++
			existing.LastUpdated = now
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			result = registrystore.PersonaUpsertResult{ID: existing.ID, Action: "updated"}
			return nil

		case err == gorm.ErrRecordNotFound:
			attr := model.PersonaAttribute{
				AIInstanceID:    aiInstanceID,
				PersonaType:     personaType,
				AttributeName:   attributeName,
				CurrentValue:    value,
				ConfidenceScore: confidence,
				EvidenceCount:   1,
				FirstObserved:   now,
				LastUpdated:     now,
			}
			if err := tx.Create(&attr).Error; err != nil {
				return err
			}
			result = registrystore.PersonaUpsertResult{ID: attr.ID, Action: "created", Created: true}
			return nil

		default:
			return err
		}
	})
	if err != nil {
		return nil, classify(fmt.Errorf("upsert persona attribute %s.%s: %w", personaType, attributeName, err))
	}
	return &result, nil
}

func (s *PostgresStore) ListPersonaAttributes(ctx context.Context, q registrystore.PersonaQuery) ([]model.PersonaAttribute, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	db := s.db.WithContext(ctx).Where("ai_instance_id = ?", q.AIInstanceID)
	if q.PersonaType != "" {
		db = db.Where("persona_type = ?", q.PersonaType)
	}
	if q.MinConfidence > 0 {
		db = db.Where("confidence_score >= ?", q.MinConfidence)
	}
	if q.ObservedAfter != nil {
		db = db.Where("first_observed >= ?", *q.ObservedAfter)
	}

	var attrs []model.PersonaAttribute
	if err := db.Order("persona_type, confidence_score DESC").Find(&attrs).Error; err != nil {
		return nil, classify(fmt.Errorf("list persona attributes: %w", err))
	}
	return attrs, nil
}

func (s *PostgresStore) InsertSelfReflection(ctx context.Context, r *model.SelfReflection) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return classify(fmt.Errorf("insert self reflection: %w", err))
	}
	return nil
}

func (s *PostgresStore) InsertEmotionalReflection(ctx context.Context, r *model.EmotionalReflection) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return classify(fmt.Errorf("insert emotional reflection: %w", err))
	}
	return nil
}

func (s *PostgresStore) ListEmotionalReflections(ctx context.Context, projectID string, since time.Time) ([]model.EmotionalReflection, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var reflections []model.EmotionalReflection
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND created_at >= ?", projectID, since).
		Order("created_at DESC").
		Find(&reflections).Error
	if err != nil {
		return nil, classify(fmt.Errorf("list emotional reflections: %w", err))
	}
	return reflections, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ registrystore.MemoryStore = (*PostgresStore)(nil)
