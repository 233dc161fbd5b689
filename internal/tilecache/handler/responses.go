package handler

import (
	"tilecache/internal/tilecache/models"
	"tilecache/pkg/domain"
)

// SessionResponse is the capability and consent snapshot of a session.
type SessionResponse struct {
	SessionID          string `json:"session_id"`
	Durable            bool   `json:"durable"`
	Ephemeral          bool   `json:"ephemeral"`
	Consent            string `json:"consent"`
	NeedsConsentPrompt bool   `json:"needs_consent_prompt"`
	ContentCount       int    `json:"content_count"`
}

func fromSnapshot(id domain.SessionID, snap models.Snapshot, needsPrompt bool, count int) *SessionResponse {
	return &SessionResponse{
		SessionID:          id.String(),
		Durable:            snap.DurableEnabled,
		Ephemeral:          snap.EphemeralEnabled,
		Consent:            snap.Consent.String(),
		NeedsConsentPrompt: needsPrompt,
		ContentCount:       count,
	}
}

type LastSectionResponse struct {
	Section int `json:"section"`
}

type SectionZeroResponse struct {
	Expanded bool `json:"expanded"`
}

// ContentResponse carries stored section HTML. AgeSeconds is omitted when no
// usable timestamp is recorded.
type ContentResponse struct {
	Section    int    `json:"section"`
	HTML       string `json:"html"`
	AgeSeconds *int64 `json:"age_seconds,omitempty"`
}

type CleanupResponse struct {
	Removed        int `json:"removed"`
	DurableRemoved int `json:"durable_removed"`
	Remaining      int `json:"remaining"`
}

func fromCleanupResult(res models.CleanupResult) *CleanupResponse {
	return &CleanupResponse{
		Removed:        res.Removed,
		DurableRemoved: res.DurableRemoved,
		Remaining:      res.Remaining,
	}
}

// EventResponse reports whether the event scheduled deferred work.
type EventResponse struct {
	Scheduled bool `json:"scheduled"`
}
