package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/memkeep/memkeep/internal/model"
)

// MemoryCache is a read-through cache of memories by id, used to cheapen
// repeated Get calls. Entries are invalidated on update and expire by TTL,
// so a stale read is bounded by the configured TTL.
type MemoryCache interface {
	Available() bool
	Get(ctx context.Context, id int64) (*model.Memory, error)
	Set(ctx context.Context, m *model.Memory, ttl time.Duration) error
	Remove(ctx context.Context, id int64) error
}

// Loader creates a cache from config.
type Loader func(ctx context.Context) (MemoryCache, error)

// Plugin represents a cache plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a cache plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}
