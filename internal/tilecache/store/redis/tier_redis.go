package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	pstrings "tilecache/pkg/platform/strings"
)

var (
	tierOpDurationMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tilecache_redis_tier_op_duration_ms",
		Help:    "Latency of redis tier operations in milliseconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 100},
	}, []string{"op"})
)

const (
	// DurableNamespace holds preference keys shared by every session.
	DurableNamespace = "tilecache:durable:"
	// ephemeralNamespace is suffixed with the session id.
	ephemeralNamespace = "tilecache:session:"

	scanBatch = 256
)

// EphemeralNamespace returns the namespace of one session's ephemeral tier.
func EphemeralNamespace(sessionID string) string {
	return ephemeralNamespace + sessionID + ":"
}

// RedisTier implements tier.Tier over a key namespace in Redis. Tier keys are
// stored as namespace+key; Keys strips the namespace again.
type RedisTier struct {
	client    redis.UniversalClient
	namespace string
	ttl       time.Duration
}

// RedisTierOption configures a RedisTier.
type RedisTierOption func(*RedisTier)

// WithTTL expires every key ttl after its last write. The whole namespace
// is refreshed on each write so an active session keeps its entries together.
func WithTTL(ttl time.Duration) RedisTierOption {
	return func(t *RedisTier) {
		t.ttl = ttl
	}
}

// NewRedisTier constructs a tier rooted at namespace.
func NewRedisTier(client redis.UniversalClient, namespace string, opts ...RedisTierOption) *RedisTier {
	t := &RedisTier{
		client:    client,
		namespace: namespace,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Namespace returns the key prefix of this tier.
func (t *RedisTier) Namespace() string {
	return t.namespace
}

func (t *RedisTier) Get(ctx context.Context, key string) (string, bool, error) {
	defer observe("get", time.Now())
	v, err := t.client.Get(ctx, t.namespace+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return v, true, nil
}

func (t *RedisTier) Set(ctx context.Context, key, value string) error {
	defer observe("set", time.Now())
	if t.ttl <= 0 {
		if err := t.client.Set(ctx, t.namespace+key, value, 0).Err(); err != nil {
			return fmt.Errorf("redis set: %w", err)
		}
		return nil
	}
	keys, err := t.scan(ctx)
	if err != nil {
		return err
	}
	pipe := t.client.TxPipeline()
	pipe.Set(ctx, t.namespace+key, value, t.ttl)
	for _, k := range keys {
		if k != t.namespace+key {
			pipe.Expire(ctx, k, t.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (t *RedisTier) Remove(ctx context.Context, key string) error {
	defer observe("remove", time.Now())
	if err := t.client.Del(ctx, t.namespace+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (t *RedisTier) Keys(ctx context.Context) ([]string, error) {
	defer observe("keys", time.Now())
	full, err := t.scan(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(full))
	for _, k := range full {
		keys = append(keys, strings.TrimPrefix(k, t.namespace))
	}
	return keys, nil
}

// Drop deletes every key in the namespace. Used when a session closes.
func (t *RedisTier) Drop(ctx context.Context) error {
	keys, err := t.scan(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := t.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis drop namespace: %w", err)
	}
	return nil
}

func (t *RedisTier) scan(ctx context.Context) ([]string, error) {
	var keys []string
	iter := t.client.Scan(ctx, 0, escapeGlob(t.namespace)+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	// SCAN may return a key more than once across cursor steps.
	return pstrings.Dedupe(keys), nil
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func observe(op string, start time.Time) {
	tierOpDurationMs.WithLabelValues(op).Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}
