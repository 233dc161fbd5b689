package service

import (
	"context"

	"tilecache/internal/tilecache/models"
	"tilecache/internal/tilecache/tier"
	"tilecache/pkg/domain"
)

func (s *Session) entry(section domain.SectionNum) models.EntryKey {
	return models.EntryKey{CourseID: s.params.CourseID, Section: section, UserID: s.params.UserID}
}

// PutContent stores a section's rendered HTML with the current time. Empty
// html, or an unusable ephemeral tier, removes any stored entry instead.
// Without consent nothing is written.
func (s *Session) PutContent(ctx context.Context, section domain.SectionNum, html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putContentLocked(ctx, section, html)
}

func (s *Session) putContentLocked(ctx context.Context, section domain.SectionNum, html string) {
	if s.consent != models.ConsentGiven {
		return
	}
	k := s.entry(section)
	if html == "" || !s.ephemeralOK {
		s.cleaner.RemoveEntry(ctx, k)
		return
	}
	eph := s.tiers.Ephemeral
	if err := eph.Set(ctx, models.ContentKey(k), html); err != nil {
		s.tierFailed(ctx, tier.Ephemeral, "set", err)
		s.cleaner.RemoveEntry(ctx, k)
		return
	}
	stamp := models.FormatTimestamp(s.now().Unix())
	if err := eph.Set(ctx, models.TimestampKey(k), stamp); err != nil {
		s.tierFailed(ctx, tier.Ephemeral, "set", err)
		s.cleaner.RemoveEntry(ctx, k)
		return
	}
	s.metrics.IncrementContentWrites()
}

// InvalidateContent removes a section's stored HTML. Without consent the
// tiers are left alone.
func (s *Session) InvalidateContent(ctx context.Context, section domain.SectionNum) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consent != models.ConsentGiven {
		return
	}
	s.cleaner.RemoveEntry(ctx, s.entry(section))
}

// Content returns a section's stored HTML. It reports absent unless consent
// is given and the ephemeral tier is usable.
func (s *Session) Content(ctx context.Context, section domain.SectionNum) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.contentReadable() {
		return "", false
	}
	html, ok, err := s.tiers.Ephemeral.Get(ctx, models.ContentKey(s.entry(section)))
	if err != nil {
		s.tierFailed(ctx, tier.Ephemeral, "get", err)
		return "", false
	}
	hit := ok && html != ""
	s.metrics.ObserveLookup(hit)
	return html, hit
}

// ContentAge returns the seconds since a section's HTML was stored. It
// reports absent when no usable timestamp is recorded.
func (s *Session) ContentAge(ctx context.Context, section domain.SectionNum) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.contentReadable() {
		return 0, false
	}
	v, ok, err := s.tiers.Ephemeral.Get(ctx, models.TimestampKey(s.entry(section)))
	if err != nil {
		s.tierFailed(ctx, tier.Ephemeral, "get", err)
		return 0, false
	}
	if !ok {
		return 0, false
	}
	stamp, ok := models.ParseTimestamp(v)
	if !ok {
		return 0, false
	}
	return s.now().Unix() - stamp, true
}

// ContentCount returns the number of section entries in the ephemeral tier,
// across every course and user sharing it.
func (s *Session) ContentCount(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleaner.Count(ctx)
}

func (s *Session) contentReadable() bool {
	return s.consent == models.ConsentGiven && s.ephemeralOK && s.tiers.Ephemeral != nil
}
