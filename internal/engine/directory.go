package engine

import (
	"context"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"
)

// UserDirectory resolves the full set of known users for global fan-out.
type UserDirectory interface {
	AllUserIDs(ctx context.Context) ([]string, error)
}

// StaticDirectory is a fixed user list.
type StaticDirectory []string

// AllUserIDs returns a copy of the list.
func (d StaticDirectory) AllUserIDs(context.Context) ([]string, error) {
	return slices.Clone([]string(d)), nil
}

const allUsersKey = "all-user-ids"

// CachedDirectory caches another directory's answer for a fixed TTL.
//
// Global fan-out asks for every user once per global notification per cycle;
// the cache keeps that to one directory lookup per TTL.
type CachedDirectory struct {
	next  UserDirectory
	cache *cache.Cache
}

// NewCachedDirectory wraps next with a TTL cache. A non-positive ttl
// disables caching.
func NewCachedDirectory(next UserDirectory, ttl time.Duration) *CachedDirectory {
	d := &CachedDirectory{next: next}
	if ttl > 0 {
		d.cache = cache.New(ttl, 2*ttl)
	}
	return d
}

// AllUserIDs returns the cached list, refreshing it from the wrapped
// directory when missing or expired. Errors are not cached.
func (d *CachedDirectory) AllUserIDs(ctx context.Context) ([]string, error) {
	if d.cache != nil {
		if v, ok := d.cache.Get(allUsersKey); ok {
			return slices.Clone(v.([]string)), nil
		}
	}

	ids, err := d.next.AllUserIDs(ctx)
	if err != nil {
		return nil, err
	}
	if d.cache != nil {
		d.cache.SetDefault(allUsersKey, slices.Clone(ids))
	}
	return ids, nil
}

// Invalidate drops the cached list so the next lookup hits the wrapped
// directory. Call after adding users.
func (d *CachedDirectory) Invalidate() {
	if d.cache != nil {
		d.cache.Delete(allUsersKey)
	}
}
