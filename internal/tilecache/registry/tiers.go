package registry

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"tilecache/internal/tilecache/store/memory"
	redistier "tilecache/internal/tilecache/store/redis"
	"tilecache/internal/tilecache/tier"
	"tilecache/pkg/domain"
)

// TierSource hands out the tier pair of a session. The durable tier is shared
// by every session; the ephemeral tier belongs to one session and is dropped
// by Release.
type TierSource interface {
	Pair(id domain.SessionID) tier.Pair
	Release(ctx context.Context, id domain.SessionID) error
}

// MemoryTiers keeps both tiers in process memory.
type MemoryTiers struct {
	durable *memory.InMemoryTier

	mu        sync.Mutex
	ephemeral map[domain.SessionID]*memory.InMemoryTier
}

func NewMemoryTiers() *MemoryTiers {
	return &MemoryTiers{
		durable:   memory.NewInMemoryTier(),
		ephemeral: make(map[domain.SessionID]*memory.InMemoryTier),
	}
}

func (m *MemoryTiers) Pair(id domain.SessionID) tier.Pair {
	m.mu.Lock()
	defer m.mu.Unlock()
	eph, ok := m.ephemeral[id]
	if !ok {
		eph = memory.NewInMemoryTier()
		m.ephemeral[id] = eph
	}
	return tier.Pair{Durable: m.durable, Ephemeral: eph}
}

func (m *MemoryTiers) Release(_ context.Context, id domain.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ephemeral, id)
	return nil
}

// Durable exposes the shared durable tier.
func (m *MemoryTiers) Durable() *memory.InMemoryTier {
	return m.durable
}

// RedisTiers maps the durable tier to one shared namespace and each ephemeral
// tier to a per-session namespace that expires after ttl of inactivity.
type RedisTiers struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisTiers(client redis.UniversalClient, ttl time.Duration) *RedisTiers {
	return &RedisTiers{client: client, ttl: ttl}
}

func (r *RedisTiers) Pair(id domain.SessionID) tier.Pair {
	return tier.Pair{
		Durable:   redistier.NewRedisTier(r.client, redistier.DurableNamespace),
		Ephemeral: r.ephemeral(id),
	}
}

func (r *RedisTiers) Release(ctx context.Context, id domain.SessionID) error {
	return r.ephemeral(id).Drop(ctx)
}

func (r *RedisTiers) ephemeral(id domain.SessionID) *redistier.RedisTier {
	return redistier.NewRedisTier(r.client, redistier.EphemeralNamespace(id.String()), redistier.WithTTL(r.ttl))
}
