package service

import (
	"context"
	"strconv"

	"tilecache/internal/tilecache/models"
	"tilecache/internal/tilecache/tier"
	"tilecache/pkg/domain"
)

const expandedMarker = "1"

// LastVisitedSection returns the section the user last opened in this course.
// The durable tier is read regardless of consent.
func (s *Session) LastVisitedSection(ctx context.Context) (domain.SectionNum, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.readDurableLocked(ctx, models.LastSectionKey(s.params.CourseID, s.params.UserID))
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return domain.SectionNum(n), true
}

// SetLastVisitedSection records section as last visited. Section zero is
// never a valid answer, so it removes the record instead.
func (s *Session) SetLastVisitedSection(ctx context.Context, section domain.SectionNum) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLastVisitedSectionLocked(ctx, section)
}

func (s *Session) setLastVisitedSectionLocked(ctx context.Context, section domain.SectionNum) {
	if s.consent != models.ConsentGiven || s.tiers.Durable == nil {
		return
	}
	key := models.LastSectionKey(s.params.CourseID, s.params.UserID)
	if section > 0 && s.durableOK {
		if err := s.tiers.Durable.Set(ctx, key, section.String()); err != nil {
			s.tierFailed(ctx, tier.Durable, "set", err)
		}
		return
	}
	if err := s.tiers.Durable.Remove(ctx, key); err != nil {
		s.tierFailed(ctx, tier.Durable, "remove", err)
	}
}

// SectionZeroExpanded reports whether the user left section zero expanded in
// this course. Collapsed is the default and is stored as the absence of the
// record.
func (s *Session) SectionZeroExpanded(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.readDurableLocked(ctx, models.CollapseKey(s.params.CourseID, s.params.UserID))
	return ok
}

// SetSectionZeroCollapsed records the user's collapse choice for section zero.
func (s *Session) SetSectionZeroCollapsed(ctx context.Context, collapsed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consent != models.ConsentGiven || !s.durableOK {
		return
	}
	key := models.CollapseKey(s.params.CourseID, s.params.UserID)
	if collapsed {
		if err := s.tiers.Durable.Remove(ctx, key); err != nil {
			s.tierFailed(ctx, tier.Durable, "remove", err)
		}
		return
	}
	if err := s.tiers.Durable.Set(ctx, key, expandedMarker); err != nil {
		s.tierFailed(ctx, tier.Durable, "set", err)
	}
}

func (s *Session) readDurableLocked(ctx context.Context, key string) (string, bool) {
	if s.tiers.Durable == nil {
		return "", false
	}
	v, ok, err := s.tiers.Durable.Get(ctx, key)
	if err != nil {
		s.tierFailed(ctx, tier.Durable, "get", err)
		return "", false
	}
	return v, ok && v != ""
}
