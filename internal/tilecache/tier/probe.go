package tier

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tilecache/pkg/platform/sentinel"
)

const (
	probeKeyPrefix = "testItem-"
	probeValue     = "testValue"
)

// Check performs a write/read/delete round trip of a sentinel value under a
// key unique to the call, so probes of a shared tier never overlap. It returns
// an error wrapping sentinel.ErrUnavailable when the tier is unusable, either
// because maxItems disables it or because any step of the round trip failed.
func Check(ctx context.Context, t Tier, maxItems int) error {
	if maxItems <= 0 {
		return fmt.Errorf("%w: storage disabled by settings", sentinel.ErrUnavailable)
	}
	if t == nil {
		return fmt.Errorf("%w: no tier configured", sentinel.ErrUnavailable)
	}
	probeKey := probeKeyPrefix + uuid.NewString()
	if err := t.Set(ctx, probeKey, probeValue); err != nil {
		return fmt.Errorf("%w: probe write: %v", sentinel.ErrUnavailable, err)
	}
	got, ok, err := t.Get(ctx, probeKey)
	if err != nil {
		return fmt.Errorf("%w: probe read: %v", sentinel.ErrUnavailable, err)
	}
	if !ok || got != probeValue {
		return fmt.Errorf("%w: probe value did not round-trip", sentinel.ErrUnavailable)
	}
	if err := t.Remove(ctx, probeKey); err != nil {
		return fmt.Errorf("%w: probe delete: %v", sentinel.ErrUnavailable, err)
	}
	return nil
}

// Probe reports whether t is usable. Failures are never propagated.
func Probe(ctx context.Context, t Tier, maxItems int) bool {
	return Check(ctx, t, maxItems) == nil
}

// ProbeResult is the outcome of probing both tiers.
type ProbeResult struct {
	Durable      bool
	Ephemeral    bool
	DurableErr   error
	EphemeralErr error
}

// ProbePair probes both tiers concurrently.
func ProbePair(ctx context.Context, p Pair, maxItems int) ProbeResult {
	var res ProbeResult
	var g errgroup.Group
	g.Go(func() error {
		res.DurableErr = Check(ctx, p.Durable, maxItems)
		return nil
	})
	g.Go(func() error {
		res.EphemeralErr = Check(ctx, p.Ephemeral, maxItems)
		return nil
	})
	_ = g.Wait()
	res.Durable = res.DurableErr == nil
	res.Ephemeral = res.EphemeralErr == nil
	return res
}
