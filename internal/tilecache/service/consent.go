package service

import (
	"context"
	"errors"
	"fmt"

	"tilecache/internal/tilecache/models"
	"tilecache/internal/tilecache/tier"
)

// ErrNoPrompter is returned by OpenConsentPrompt when the session has no way
// to ask the user.
var ErrNoPrompter = errors.New("no consent prompter configured")

// Consent returns the current consent state.
func (s *Session) Consent() models.ConsentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consent
}

// ConsentGiven reports whether caching is allowed.
func (s *Session) ConsentGiven() bool {
	return s.Consent() == models.ConsentGiven
}

// SetConsent records the user's answer to the data-preference prompt.
//
// Denying disables both tiers and purges everything but the consent record.
// Giving consent re-probes both tiers, which may only now become usable.
func (s *Session) SetConsent(ctx context.Context, given bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := models.ConsentFromDecision(given)
	prev := s.consent
	s.consent = state
	s.persistConsentLocked(ctx, state)

	if state == models.ConsentDenied {
		s.durableOK, s.ephemeralOK = false, false
		s.purgeLocked(ctx)
	} else {
		s.probeLocked(ctx)
	}
	s.metrics.IncrementConsentChanges(state.String())
	s.logger.InfoContext(ctx, "consent recorded", "from", prev, "to", state)
}

// OpenConsentPrompt asks the user through the Prompter and applies the
// answer. A prompter failure leaves consent unchanged.
func (s *Session) OpenConsentPrompt(ctx context.Context) error {
	s.mu.Lock()
	prompter := s.prompter
	user := s.params.UserID
	s.mu.Unlock()

	if prompter == nil {
		return ErrNoPrompter
	}
	given, err := prompter.RequestConsent(ctx, user)
	if err != nil {
		s.logger.WarnContext(ctx, "consent prompt failed", "error", err)
		return fmt.Errorf("consent prompt: %w", err)
	}
	s.SetConsent(ctx, given)
	return nil
}

func (s *Session) readConsentLocked(ctx context.Context) models.ConsentState {
	if s.tiers.Durable == nil {
		return models.ConsentUnset
	}
	v, ok, err := s.tiers.Durable.Get(ctx, models.ConsentKey(s.params.UserID))
	if err != nil {
		s.tierFailed(ctx, tier.Durable, "get", err)
		return models.ConsentUnset
	}
	return models.ParseStoredConsent(v, ok)
}

// persistConsentLocked writes the consent record. It is the one write that
// does not wait for consent, since it is the consent.
func (s *Session) persistConsentLocked(ctx context.Context, state models.ConsentState) {
	v, ok := state.StoredValue()
	if !ok || s.tiers.Durable == nil {
		return
	}
	if err := s.tiers.Durable.Set(ctx, models.ConsentKey(s.params.UserID), v); err != nil {
		s.tierFailed(ctx, tier.Durable, "set", err)
	}
}

// NeedsConsentPrompt reports whether the page should ask the user: storage is
// usable and no decision is recorded.
func (s *Session) NeedsConsentPrompt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consent == models.ConsentUnset && (s.durableOK || s.ephemeralOK)
}
