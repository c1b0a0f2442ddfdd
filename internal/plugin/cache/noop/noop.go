// Package noop registers the "none" cache plugin, which caches nothing.
package noop

import (
	"context"
	"time"

	"github.com/memkeep/memkeep/internal/model"
	registrycache "github.com/memkeep/memkeep/internal/registry/cache"
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (registrycache.MemoryCache, error) {
			return Cache{}, nil
		},
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// Cache never stores anything.
type Cache struct{}

func (Cache) Available() bool { return false }

func (Cache) Get(ctx context.Context, id int64) (*model.Memory, error) { return nil, nil }

func (Cache) Set(ctx context.Context, m *model.Memory, ttl time.Duration) error { return nil }

func (Cache) Remove(ctx context.Context, id int64) error { return nil }
