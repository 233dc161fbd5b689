package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the cache manager's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	ContentLookups *prometheus.CounterVec
	ContentWrites  prometheus.Counter
	Evictions      *prometheus.CounterVec
	Purges         prometheus.Counter
	ProbeFailures  *prometheus.CounterVec
	ConsentChanges *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	TierErrors     *prometheus.CounterVec
}

// New creates and registers the collectors with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the collectors with reg, so tests can use a fresh registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ContentLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tilecache_content_lookups_total",
			Help: "Section content lookups by result",
		}, []string{"result"}),
		ContentWrites: f.NewCounter(prometheus.CounterOpts{
			Name: "tilecache_content_writes_total",
			Help: "Section content entries stored",
		}),
		Evictions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tilecache_evictions_total",
			Help: "Section content entries evicted by cleanup, by reason",
		}, []string{"reason"}),
		Purges: f.NewCounter(prometheus.CounterOpts{
			Name: "tilecache_purges_total",
			Help: "Full purges of both tiers",
		}),
		ProbeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tilecache_probe_failures_total",
			Help: "Capability probes that found a tier unusable",
		}, []string{"tier"}),
		ConsentChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tilecache_consent_changes_total",
			Help: "Consent decisions recorded, by resulting state",
		}, []string{"state"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "tilecache_active_sessions",
			Help: "Sessions currently held by the registry",
		}),
		TierErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tilecache_tier_errors_total",
			Help: "Tier operations that failed and were degraded to a no-op",
		}, []string{"tier", "op"}),
	}
}

func (m *Metrics) ObserveLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ContentLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementContentWrites() {
	if m == nil {
		return
	}
	m.ContentWrites.Inc()
}

func (m *Metrics) AddEvictions(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Evictions.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) IncrementPurges() {
	if m == nil {
		return
	}
	m.Purges.Inc()
}

func (m *Metrics) IncrementProbeFailures(tier string) {
	if m == nil {
		return
	}
	m.ProbeFailures.WithLabelValues(tier).Inc()
}

func (m *Metrics) IncrementConsentChanges(state string) {
	if m == nil {
		return
	}
	m.ConsentChanges.WithLabelValues(state).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) IncrementTierErrors(tier, op string) {
	if m == nil {
		return
	}
	m.TierErrors.WithLabelValues(tier, op).Inc()
}
