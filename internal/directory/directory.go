// Package directory answers whether equipment and companies referenced by
// occurrences exist. Positive answers are cached; misses always go to the
// backing lookup so freshly registered records are seen immediately.
package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

// Lookup is the uncached source of truth, normally the store.
type Lookup interface {
	EquipmentExists(ctx context.Context, id string) (bool, error)
	CompanyExists(ctx context.Context, id string) (bool, error)
}

// Directory is a read-through existence cache.
type Directory struct {
	lookup Lookup
	cache  *cache.Cache
}

// New creates a Directory whose cached entries expire after ttl.
func New(lookup Lookup, ttl time.Duration) *Directory {
	return &Directory{
		lookup: lookup,
		cache:  cache.New(ttl, 2*ttl),
	}
}

func (d *Directory) EquipmentExists(ctx context.Context, id string) (bool, error) {
	return d.check(ctx, "equipment", id, d.lookup.EquipmentExists)
}

func (d *Directory) CompanyExists(ctx context.Context, id string) (bool, error) {
	return d.check(ctx, "company", id, d.lookup.CompanyExists)
}

func (d *Directory) check(ctx context.Context, kind, id string, fn func(context.Context, string) (bool, error)) (bool, error) {
	if id == "" {
		return false, nil
	}
	key := kind + ":" + id
	if _, found := d.cache.Get(key); found {
		return true, nil
	}
	ok, err := fn(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to look up %s %s: %w", kind, id, err)
	}
	if ok {
		d.cache.SetDefault(key, struct{}{})
	}
	return ok, nil
}
