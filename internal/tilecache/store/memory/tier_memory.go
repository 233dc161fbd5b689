package memory

import (
	"context"
	"fmt"
	"sync"

	"tilecache/pkg/platform/sentinel"
)

// InMemoryTier implements tier.Tier over a map. It backs the durable tier in
// single-node deployments, every ephemeral tier of the memory backend, and the
// tests. Capacity and failure knobs emulate a browser that refuses storage.
type InMemoryTier struct {
	mu         sync.RWMutex
	items      map[string]string
	maxKeys    int
	failWrites bool
	failReads  bool
}

// Option configures an InMemoryTier.
type Option func(*InMemoryTier)

// WithMaxKeys bounds the number of keys; a write of a new key beyond the
// bound fails as a quota error would. Zero means unbounded.
func WithMaxKeys(n int) Option {
	return func(t *InMemoryTier) {
		t.maxKeys = n
	}
}

// WithFailingWrites makes every Set and Remove fail.
func WithFailingWrites() Option {
	return func(t *InMemoryTier) {
		t.failWrites = true
	}
}

// WithFailingReads makes every Get and Keys fail.
func WithFailingReads() Option {
	return func(t *InMemoryTier) {
		t.failReads = true
	}
}

// NewInMemoryTier creates an empty tier.
func NewInMemoryTier(opts ...Option) *InMemoryTier {
	t := &InMemoryTier{items: make(map[string]string)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *InMemoryTier) Get(_ context.Context, key string) (string, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.failReads {
		return "", false, fmt.Errorf("read %q: %w", key, sentinel.ErrUnavailable)
	}
	v, ok := t.items[key]
	return v, ok, nil
}

func (t *InMemoryTier) Set(_ context.Context, key, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failWrites {
		return fmt.Errorf("write %q: %w", key, sentinel.ErrUnavailable)
	}
	if _, exists := t.items[key]; !exists && t.maxKeys > 0 && len(t.items) >= t.maxKeys {
		return fmt.Errorf("write %q: quota of %d keys exceeded: %w", key, t.maxKeys, sentinel.ErrUnavailable)
	}
	t.items[key] = value
	return nil
}

func (t *InMemoryTier) Remove(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failWrites {
		return fmt.Errorf("remove %q: %w", key, sentinel.ErrUnavailable)
	}
	delete(t.items, key)
	return nil
}

func (t *InMemoryTier) Keys(_ context.Context) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.failReads {
		return nil, fmt.Errorf("list keys: %w", sentinel.ErrUnavailable)
	}
	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	return keys, nil
}

// Len returns the number of keys held.
func (t *InMemoryTier) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}
