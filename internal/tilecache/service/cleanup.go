package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"tilecache/internal/tilecache/metrics"
	"tilecache/internal/tilecache/models"
	"tilecache/internal/tilecache/tier"
)

// Cleaner evicts section content and purges namespaced keys. It works on raw
// tiers so it can run for a Session as well as from the admin CLI.
//
// Cleanup is best-effort: a failed delete is logged and the pass continues.
// Re-running converges on the bound since every pass rescans the tier.
type Cleaner struct {
	Tiers tier.Pair
	// Scope limits a full purge to the keys it accepts. Nil means every
	// namespaced key.
	Scope func(key string) bool
	// Preserve reports durable keys a full purge must keep.
	Preserve func(key string) bool
	Now      func() time.Time
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// StoredEntry is one content entry found in the ephemeral tier. Valid is
// false when its timestamp is unparsable; Stamp is then zero.
type StoredEntry struct {
	Key   models.EntryKey
	Stamp int64
	Valid bool
}

// Run performs a full purge when opts.ClearAll is set, and a bounded cleanup
// (stale pass, then capacity pass) otherwise.
func (c *Cleaner) Run(ctx context.Context, opts models.CleanupOptions) (models.CleanupResult, error) {
	if err := opts.Validate(); err != nil {
		return models.CleanupResult{}, err
	}
	var res models.CleanupResult
	if opts.ClearAll {
		res.DurableRemoved = c.purgeDurable(ctx)
		res.Removed = c.purgeEphemeral(ctx)
		c.Metrics.IncrementPurges()
		c.Metrics.AddEvictions("purge", res.Removed)
	} else {
		stale := c.evictStale(ctx, opts.MaxAgeMinutes)
		over := c.evictOverCapacity(ctx, opts.MaxItemsToKeep)
		c.Metrics.AddEvictions("stale", stale)
		c.Metrics.AddEvictions("capacity", over)
		res.Removed = stale + over
	}
	res.Remaining = len(c.Entries(ctx))
	return res, nil
}

// Count returns the number of content entries in the ephemeral tier.
func (c *Cleaner) Count(ctx context.Context) int {
	if c.Tiers.Ephemeral == nil {
		return 0
	}
	keys, err := c.Tiers.Ephemeral.Keys(ctx)
	if err != nil {
		c.logger().WarnContext(ctx, "list ephemeral keys failed", "error", err)
		return 0
	}
	n := 0
	for _, k := range keys {
		if models.IsTimestampKey(k) {
			n++
		}
	}
	return n
}

// RemoveEntry deletes the content key and then its timestamp sibling. The
// timestamp key goes last so a partial failure leaves a marker the next
// cleanup pass will find.
func (c *Cleaner) RemoveEntry(ctx context.Context, k models.EntryKey) bool {
	eph := c.Tiers.Ephemeral
	if eph == nil {
		return false
	}
	if err := eph.Remove(ctx, models.ContentKey(k)); err != nil {
		c.removeFailed(ctx, tier.Ephemeral, models.ContentKey(k), err)
		return false
	}
	if err := eph.Remove(ctx, models.TimestampKey(k)); err != nil {
		c.removeFailed(ctx, tier.Ephemeral, models.TimestampKey(k), err)
		return false
	}
	return true
}

func (c *Cleaner) purgeDurable(ctx context.Context) int {
	dur := c.Tiers.Durable
	if dur == nil {
		return 0
	}
	keys, err := dur.Keys(ctx)
	if err != nil {
		c.logger().WarnContext(ctx, "list durable keys failed", "error", err)
		return 0
	}
	removed := 0
	for _, k := range keys {
		if !c.inScope(k) || (c.Preserve != nil && c.Preserve(k)) {
			continue
		}
		if err := dur.Remove(ctx, k); err != nil {
			c.removeFailed(ctx, tier.Durable, k, err)
			continue
		}
		removed++
	}
	return removed
}

func (c *Cleaner) inScope(key string) bool {
	return models.IsNamespaced(key) && (c.Scope == nil || c.Scope(key))
}

func (c *Cleaner) purgeEphemeral(ctx context.Context) int {
	eph := c.Tiers.Ephemeral
	if eph == nil {
		return 0
	}
	keys, err := eph.Keys(ctx)
	if err != nil {
		c.logger().WarnContext(ctx, "list ephemeral keys failed", "error", err)
		return 0
	}
	removed := 0
	for _, k := range keys {
		if !c.inScope(k) {
			continue
		}
		switch {
		case models.IsTimestampKey(k):
			entry, err := models.DecodeTimestampKey(k)
			if err != nil {
				c.logger().DebugContext(ctx, "skipping malformed key", "key", k, "error", err)
				continue
			}
			if c.RemoveEntry(ctx, entry) {
				removed++
			}
		case models.IsContentKey(k):
			// Orphaned content without a timestamp sibling.
			if err := eph.Remove(ctx, k); err != nil {
				c.removeFailed(ctx, tier.Ephemeral, k, err)
			}
		}
	}
	return removed
}

func (c *Cleaner) evictStale(ctx context.Context, maxAgeMinutes int) int {
	now := c.now().Unix()
	limit := int64(maxAgeMinutes) * 60
	removed := 0
	for _, e := range c.Entries(ctx) {
		if maxAgeMinutes != 0 && e.Valid && now-e.Stamp <= limit {
			continue
		}
		if c.RemoveEntry(ctx, e.Key) {
			removed++
		}
	}
	return removed
}

// evictOverCapacity deletes entries strictly older than the cutoff, the
// timestamp at index count-keep of the ascending sort. Entries sharing the
// cutoff timestamp all survive, so more than keep entries can remain when
// timestamps collide at the cutoff.
func (c *Cleaner) evictOverCapacity(ctx context.Context, keep int) int {
	entries := c.Entries(ctx)
	if len(entries) <= keep {
		return 0
	}
	removed := 0
	if keep == 0 {
		for _, e := range entries {
			if c.RemoveEntry(ctx, e.Key) {
				removed++
			}
		}
		return removed
	}
	stamps := make([]int64, len(entries))
	for i, e := range entries {
		stamps[i] = e.Stamp
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })
	cutoff := stamps[len(stamps)-keep]
	for _, e := range entries {
		if e.Stamp < cutoff && c.RemoveEntry(ctx, e.Key) {
			removed++
		}
	}
	return removed
}

// Entries scans the ephemeral tier for timestamp keys. Malformed keys are
// skipped.
func (c *Cleaner) Entries(ctx context.Context) []StoredEntry {
	eph := c.Tiers.Ephemeral
	if eph == nil {
		return nil
	}
	keys, err := eph.Keys(ctx)
	if err != nil {
		c.logger().WarnContext(ctx, "list ephemeral keys failed", "error", err)
		return nil
	}
	var out []StoredEntry
	for _, k := range keys {
		if !models.IsTimestampKey(k) {
			continue
		}
		entry, err := models.DecodeTimestampKey(k)
		if err != nil {
			c.logger().DebugContext(ctx, "skipping malformed key", "key", k, "error", err)
			continue
		}
		v, ok, err := eph.Get(ctx, k)
		if err != nil || !ok {
			continue
		}
		stamp, valid := models.ParseTimestamp(v)
		out = append(out, StoredEntry{Key: entry, Stamp: stamp, Valid: valid})
	}
	return out
}

func (c *Cleaner) removeFailed(ctx context.Context, kind tier.Kind, key string, err error) {
	c.Metrics.IncrementTierErrors(string(kind), "remove")
	level := slog.LevelWarn
	if errors.Is(err, context.Canceled) {
		level = slog.LevelDebug
	}
	c.logger().Log(ctx, level, "cleanup delete failed", "tier", kind, "key", key, "error", err)
}

func (c *Cleaner) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Cleaner) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
