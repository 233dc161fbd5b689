package service

import (
	"context"

	"tilecache/internal/tilecache/models"
	"tilecache/pkg/domain"
)

// OnPageReady schedules the consent prompt when storage is usable but the
// user has not yet answered. It reports whether a prompt was scheduled.
func (s *Session) OnPageReady(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prompter == nil || s.consent != models.ConsentUnset || !(s.durableOK || s.ephemeralOK) {
		return false
	}
	s.scheduleLocked(ctx, s.delays.Prompt, "consent-prompt", func(ctx context.Context) {
		if s.Consent() != models.ConsentUnset {
			return
		}
		if err := s.OpenConsentPrompt(ctx); err != nil {
			s.logger.WarnContext(ctx, "deferred consent prompt failed", "error", err)
		}
	})
	return true
}

// OnTileClick schedules an over-capacity cleanup when the ephemeral tier holds
// more sections than the page allows. It reports whether one was scheduled.
func (s *Session) OnTileClick(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ephemeralOK || s.cleaner.Count(ctx) <= s.params.MaxSectionsToStore {
		return false
	}
	opts := models.CleanupOptions{
		MaxAgeMinutes:  s.params.StaleMinutes,
		MaxItemsToKeep: s.params.MaxSectionsToStore,
	}
	s.scheduleLocked(ctx, s.delays.Evict, "evict", func(ctx context.Context) {
		res, err := s.Cleanup(ctx, opts)
		if err != nil {
			s.logger.WarnContext(ctx, "deferred eviction failed", "error", err)
			return
		}
		s.logger.DebugContext(ctx, "evicted section content", "removed", res.Removed, "remaining", res.Remaining)
	})
	return true
}

// OnCompletionToggle handles an activity completion checkbox change in a
// section. The landing section shows overall progress and the toggled section
// shows the tick, so both stored copies are stale: section zero is dropped at
// once and the toggled section is re-read once the page has redrawn it.
func (s *Session) OnCompletionToggle(ctx context.Context, section domain.SectionNum) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consent != models.ConsentGiven || !s.ephemeralOK {
		return
	}
	s.cleaner.RemoveEntry(ctx, s.entry(0))
	if s.renderer == nil {
		s.cleaner.RemoveEntry(ctx, s.entry(section))
		return
	}
	renderer := s.renderer
	course := s.params.CourseID
	s.scheduleLocked(ctx, s.delays.Restore, "restore-section", func(ctx context.Context) {
		html, err := renderer.RenderSection(ctx, course, section)
		if err != nil {
			s.logger.WarnContext(ctx, "re-render after completion toggle failed", "section", section, "error", err)
			html = ""
		}
		s.PutContent(ctx, section, html)
	})
}
