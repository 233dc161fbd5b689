// Package registry keeps the live cache sessions of the HTTP surface. Sessions
// idle for longer than the configured TTL, or pushed out by capacity, are
// closed and their ephemeral tier is dropped.
package registry

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"tilecache/internal/tilecache/metrics"
	"tilecache/internal/tilecache/models"
	"tilecache/internal/tilecache/service"
	"tilecache/pkg/domain"
	dErrors "tilecache/pkg/domain-errors"
)

const (
	DefaultCapacity = 10_000
	DefaultIdleTTL  = 30 * time.Minute

	releaseTimeout = 5 * time.Second
)

type Registry struct {
	sessions *expirable.LRU[domain.SessionID, *service.Session]
	tiers    TierSource
	logger   *slog.Logger
	metrics  *metrics.Metrics
	opts     []service.Option
	active   atomic.Int64
	capacity int
	ttl      time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger for registry events. A nil logger is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records the active session count.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithCapacity bounds the number of live sessions; the least recently used
// session is closed to make room.
func WithCapacity(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// WithIdleTTL sets how long a session survives without being used.
func WithIdleTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithSessionOptions appends options applied to every session the registry
// creates.
func WithSessionOptions(opts ...service.Option) Option {
	return func(r *Registry) {
		r.opts = append(r.opts, opts...)
	}
}

// New creates an empty registry whose sessions draw their tiers from tiers.
func New(tiers TierSource, opts ...Option) *Registry {
	r := &Registry{
		tiers:    tiers,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		capacity: DefaultCapacity,
		ttl:      DefaultIdleTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.sessions = expirable.NewLRU[domain.SessionID, *service.Session](r.capacity, r.onEvict, r.ttl)
	return r
}

// Create initialises a session for a page load and registers it.
func (r *Registry) Create(ctx context.Context, params models.Params) (domain.SessionID, *service.Session, error) {
	id := domain.NewSessionID()
	opts := append([]service.Option{
		service.WithLogger(r.logger.With("session_id", id.String())),
		service.WithMetrics(r.metrics),
	}, r.opts...)

	sess, err := service.Init(ctx, params, r.tiers.Pair(id), opts...)
	if err != nil {
		r.release(id)
		return domain.SessionID{}, nil, err
	}
	r.active.Add(1)
	r.sessions.Add(id, sess)
	r.metrics.SetActiveSessions(int(r.active.Load()))
	r.logger.InfoContext(ctx, "session created",
		"session_id", id.String(),
		"course_id", params.CourseID,
		"user_id", params.UserID,
	)
	return id, sess, nil
}

// Get returns a live session and refreshes its idle deadline.
func (r *Registry) Get(id domain.SessionID) (*service.Session, error) {
	sess, ok := r.sessions.Get(id)
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
	}
	r.sessions.Add(id, sess)
	return sess, nil
}

// Delete closes a session and drops its ephemeral tier. It reports whether the
// session was live.
func (r *Registry) Delete(id domain.SessionID) bool {
	return r.sessions.Remove(id)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return r.sessions.Len()
}

// Close closes every live session.
func (r *Registry) Close() {
	r.sessions.Purge()
}

// onEvict runs under the LRU lock, so it must not call back into r.sessions.
func (r *Registry) onEvict(id domain.SessionID, sess *service.Session) {
	sess.Close()
	r.release(id)
	r.metrics.SetActiveSessions(int(r.active.Add(-1)))
	r.logger.Debug("session closed", "session_id", id.String())
}

func (r *Registry) release(id domain.SessionID) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := r.tiers.Release(ctx, id); err != nil {
		r.logger.WarnContext(ctx, "drop ephemeral tier failed", "session_id", id.String(), "error", err)
	}
}
