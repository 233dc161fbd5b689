// Package tier defines the key/value storage a session caches into.
//
// A Tier mirrors the Web Storage API a page script would otherwise use
// directly: string keys, string values, a flat key listing. Two tiers back a
// session: a durable one for small preference values and an ephemeral one,
// scoped to the session, for rendered section HTML.
package tier

import (
	"context"
)

// Kind names a tier in logs and metrics.
type Kind string

const (
	Durable   Kind = "durable"
	Ephemeral Kind = "ephemeral"
)

// Tier is a flat string key/value store.
//
// Implementations must be safe for concurrent use.
type Tier interface {
	// Get returns the value for key. ok is false when the key is absent; err is
	// reserved for failures of the store itself.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Keys lists every key currently held, in no particular order.
	Keys(ctx context.Context) ([]string, error)
}

// Pair bundles the two tiers of a session.
type Pair struct {
	Durable   Tier
	Ephemeral Tier
}
