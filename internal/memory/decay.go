package memory

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/memkeep/memkeep/internal/metrics"
	registrystore "github.com/memkeep/memkeep/internal/registry/store"
)

// DecayOptions tunes the forgetting-curve pass. Zero values take the
// defaults: memories older than 7 days with at most 1 logged access.
type DecayOptions struct {
	DaysThreshold   int
	AccessThreshold int64
	// DryRun computes the new scores without writing them.
	DryRun bool
}

// DecayedMemory reports one memory the pass lowered (or would lower).
type DecayedMemory struct {
	ID            int64   `json:"id"`
	Title         *string `json:"title,omitempty"`
	OldImportance float64 `json:"oldImportance"`
	NewImportance float64 `json:"newImportance"`
	AccessCount   int64   `json:"accessCount"`
	AgeDays       float64 `json:"ageDays"`
}

// DecayReport summarizes a forgetting-curve pass.
type DecayReport struct {
	Candidates int             `json:"candidates"`
	Decayed    int             `json:"decayed"`
	DryRun     bool            `json:"dryRun"`
	Memories   []DecayedMemory `json:"memories"`
}

// ApplyForgettingCurve lowers the importance of old, rarely accessed
// memories. Each access protects against decay, importance never falls below
// the 0.05 floor, and memories at or below 0.1 importance are never touched.
// All writes happen in one transaction.
func (s *Service) ApplyForgettingCurve(ctx context.Context, opts DecayOptions) (*DecayReport, error) {
	if opts.DaysThreshold <= 0 {
		opts.DaysThreshold = 7
	}
	if opts.AccessThreshold <= 0 {
		opts.AccessThreshold = 1
	}

	now := time.Now()
	olderThan := now.AddDate(0, 0, -opts.DaysThreshold)
	candidates, err := s.store.DecayCandidates(ctx, olderThan, opts.AccessThreshold)
	if err != nil {
		return nil, err
	}

	report := &DecayReport{Candidates: len(candidates), DryRun: opts.DryRun}
	var updates []registrystore.ImportanceUpdate
	for _, c := range candidates {
		ageDays := now.Sub(c.CreatedAt).Hours() / 24
		newScore := decayedImportance(c.ImportanceScore, ageDays, c.AccessCount)
		if newScore >= c.ImportanceScore {
			continue
		}
		report.Memories = append(report.Memories, DecayedMemory{
			ID:            c.ID,
			Title:         c.Title,
			OldImportance: c.ImportanceScore,
			NewImportance: newScore,
			AccessCount:   c.AccessCount,
			AgeDays:       ageDays,
		})
		updates = append(updates, registrystore.ImportanceUpdate{ID: c.ID, NewImportance: newScore})
	}
	report.Decayed = len(updates)

	if opts.DryRun || len(updates) == 0 {
		return report, nil
	}
	if err := s.store.ApplyImportance(ctx, updates); err != nil {
		return nil, err
	}
	if metrics.MemoriesDecayedTotal != nil {
		metrics.MemoriesDecayedTotal.Add(float64(len(updates)))
	}
	log.Info("Applied forgetting curve", "candidates", report.Candidates, "decayed", report.Decayed)
	return report, nil
}

// decayedImportance implements the forgetting curve. Base decay grows with
// age (10% per week, capped at 80%); each logged access protects 20%, up to
// 50%. The result never drops below the 0.05 floor so a memory stays
// findable by an explicit search.
func decayedImportance(importance, ageDays float64, accessCount int64) float64 {
	baseDecay := 0.1 * (ageDays / 7)
	if baseDecay > 0.8 {
		baseDecay = 0.8
	}
	protection := 0.2 * float64(accessCount)
	if protection > 0.5 {
		protection = 0.5
	}
	decay := baseDecay - protection
	if decay < 0 {
		decay = 0
	}
	newScore := importance * (1 - decay)
	if newScore < 0.05 {
		newScore = 0.05
	}
	return newScore
}
