// Package cache provides the key-value store backing the identity plugin's
// transient state: in-flight authentication attempts and per-user session
// credentials. Entry lifetimes are owned here, by the configured backend,
// not by the callers storing values.
package cache

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no live entry exists for a key.
var ErrNotFound = errors.New("cache: entry not found")

// Cache is the store facade. Values are serialized as JSON, so anything
// stored must round-trip through encoding/json.
//
// Get unmarshals the entry for key into v, returning ErrNotFound when the
// key is absent or its entry has expired. Set overwrites any existing
// entry, applying the backend's configured TTL. Drop removes an entry;
// dropping an absent key is not an error.
type Cache interface {
	Get(ctx context.Context, key string, v any) error
	Set(ctx context.Context, key string, v any) error
	Drop(ctx context.Context, key string) error
}

// Sweeper is implemented by backends that can purge expired entries in
// bulk. The Janitor drives it on an interval.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}
