// Package service holds the per-page cache session: consent, tier capability,
// section content, preferences and the deferred work triggered by page events.
package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"tilecache/internal/tilecache/metrics"
	"tilecache/internal/tilecache/models"
	"tilecache/internal/tilecache/tier"
)

// Default delays for deferred work.
const (
	DefaultPromptDelay  = 500 * time.Millisecond
	DefaultRestoreDelay = time.Second
	DefaultEvictDelay   = 2 * time.Second

	callbackTimeout = 10 * time.Second
)

// Delays configures when deferred callbacks run.
type Delays struct {
	// Prompt is the wait after page ready before the consent dialog appears.
	Prompt time.Duration
	// Restore is the wait after a completion toggle before re-reading the section.
	Restore time.Duration
	// Evict is the wait after a tile click before over-capacity cleanup.
	Evict time.Duration
}

// DefaultDelays returns the delays used when none are configured.
func DefaultDelays() Delays {
	return Delays{Prompt: DefaultPromptDelay, Restore: DefaultRestoreDelay, Evict: DefaultEvictDelay}
}

// Session is the cache state of one page session. Its methods are safe for
// concurrent use and serialised, so an HTTP request and a deferred callback
// for the same session never interleave.
//
// Tier failures never surface from the query and mutation methods; they are
// logged and the operation behaves as if caching were disabled.
type Session struct {
	mu sync.Mutex

	params      models.Params
	tiers       tier.Pair
	durableOK   bool
	ephemeralOK bool
	consent     models.ConsentState

	cleaner   *Cleaner
	logger    *slog.Logger
	metrics   *metrics.Metrics
	prompter  Prompter
	renderer  SectionRenderer
	scheduler Scheduler
	now       func() time.Time
	delays    Delays

	timers  map[int]Timer
	timerID int
	closed  bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. A nil logger is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records cache activity into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithPrompter sets who asks the user for consent. Without one the page
// ready hook never schedules a prompt.
func WithPrompter(p Prompter) Option {
	return func(s *Session) {
		s.prompter = p
	}
}

// WithRenderer sets the source of fresh section HTML after a completion
// toggle.
func WithRenderer(r SectionRenderer) Option {
	return func(s *Session) {
		s.renderer = r
	}
}

// WithScheduler replaces the time.AfterFunc scheduler.
func WithScheduler(sch Scheduler) Option {
	return func(s *Session) {
		if sch != nil {
			s.scheduler = sch
		}
	}
}

// WithClock replaces time.Now for content timestamps and ages.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDelays overrides DefaultDelays.
func WithDelays(d Delays) Option {
	return func(s *Session) {
		s.delays = d
	}
}

// Init builds the session for a page load: it resolves consent (the
// assume-consent override first, then the stored record), probes both tiers
// unless consent is denied, and applies editing mode.
func Init(ctx context.Context, params models.Params, tiers tier.Pair, opts ...Option) (*Session, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		params:    params,
		tiers:     tiers,
		consent:   models.ConsentUnset,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		scheduler: RealScheduler{},
		now:       time.Now,
		delays:    DefaultDelays(),
		timers:    make(map[int]Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("course_id", params.CourseID, "user_id", params.UserID)
	s.cleaner = &Cleaner{
		Tiers:    tiers,
		Scope:    func(key string) bool { return models.OwnedBy(key, params.UserID) },
		Preserve: func(key string) bool { return key == models.ConsentKey(params.UserID) },
		Now:      s.now,
		Logger:   s.logger,
		Metrics:  s.metrics,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if params.AssumeConsent {
		s.consent = models.ConsentGiven
	} else {
		s.consent = s.readConsentLocked(ctx)
	}

	if s.consent == models.ConsentDenied {
		s.durableOK, s.ephemeralOK = false, false
		s.purgeLocked(ctx)
	} else {
		s.probeLocked(ctx)
	}

	if params.IsEditing {
		// The editor may have just changed what sections render, so nothing
		// cached for this course can be trusted.
		s.purgeLocked(ctx)
		s.setLastVisitedSectionLocked(ctx, params.CurrentSection)
	}

	s.logger.DebugContext(ctx, "cache session initialised",
		"consent", s.consent,
		"durable", s.durableOK,
		"ephemeral", s.ephemeralOK,
		"editing", params.IsEditing,
	)
	return s, nil
}

// Params returns the page parameters the session was built from.
func (s *Session) Params() models.Params {
	return s.params
}

// Snapshot returns tier capability and consent.
func (s *Session) Snapshot() models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.Snapshot{
		DurableEnabled:   s.durableOK,
		EphemeralEnabled: s.ephemeralOK,
		Consent:          s.consent,
	}
}

// DurableEnabled reports whether the durable tier passed its probe.
func (s *Session) DurableEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durableOK
}

// EphemeralEnabled reports whether the ephemeral tier passed its probe.
func (s *Session) EphemeralEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ephemeralOK
}

// Cleanup runs a purge or a bounded cleanup; see Cleaner.Run.
func (s *Session) Cleanup(ctx context.Context, opts models.CleanupOptions) (models.CleanupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleaner.Run(ctx, opts)
}

// Close stops pending deferred callbacks. Later events schedule nothing.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Session) probeLocked(ctx context.Context) {
	res := tier.ProbePair(ctx, s.tiers, s.params.MaxSectionsToStore)
	s.durableOK, s.ephemeralOK = res.Durable, res.Ephemeral
	if res.DurableErr != nil {
		s.metrics.IncrementProbeFailures(string(tier.Durable))
		s.logger.DebugContext(ctx, "durable tier unusable", "error", res.DurableErr)
	}
	if res.EphemeralErr != nil {
		s.metrics.IncrementProbeFailures(string(tier.Ephemeral))
		s.logger.DebugContext(ctx, "ephemeral tier unusable", "error", res.EphemeralErr)
	}
}

func (s *Session) purgeLocked(ctx context.Context) {
	res, err := s.cleaner.Run(ctx, models.CleanupOptions{ClearAll: true})
	if err != nil {
		s.logger.WarnContext(ctx, "purge failed", "error", err)
		return
	}
	s.logger.DebugContext(ctx, "purged cache",
		"content_removed", res.Removed,
		"durable_removed", res.DurableRemoved,
	)
}

// schedule runs f after d on a context detached from the triggering request.
// Must be called while holding s.mu.
func (s *Session) scheduleLocked(ctx context.Context, d time.Duration, name string, f func(ctx context.Context)) {
	if s.closed {
		return
	}
	s.timerID++
	id := s.timerID
	base := context.WithoutCancel(ctx)
	s.timers[id] = s.scheduler.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, id)
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		cctx, cancel := context.WithTimeout(base, callbackTimeout)
		defer cancel()
		s.logger.DebugContext(cctx, "running deferred callback", "callback", name)
		f(cctx)
	})
}

func (s *Session) tierFailed(ctx context.Context, kind tier.Kind, op string, err error) {
	s.metrics.IncrementTierErrors(string(kind), op)
	s.logger.WarnContext(ctx, "tier operation failed", "tier", kind, "op", op, "error", err)
}
