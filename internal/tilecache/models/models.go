package models

import (
	"tilecache/pkg/domain"
	dErrors "tilecache/pkg/domain-errors"
)

// Params is what the host page passes when a course page loads.
type Params struct {
	CourseID domain.CourseID
	UserID   domain.UserID
	// MaxSectionsToStore caps stored section HTML. Zero disables both tiers.
	MaxSectionsToStore int
	IsEditing          bool
	CurrentSection     domain.SectionNum
	// StaleMinutes is the content age after which tile-click cleanup evicts.
	StaleMinutes int
	// AssumeConsent is the site-level override that skips the consent prompt.
	AssumeConsent bool
}

// Validate rejects values that cannot come from a well-formed page.
func (p Params) Validate() error {
	if p.CourseID < 0 || p.UserID < 0 || p.CurrentSection < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "ids must be non-negative")
	}
	if p.MaxSectionsToStore < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "max sections to store must be non-negative")
	}
	if p.StaleMinutes < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "stale minutes must be non-negative")
	}
	return nil
}

// CleanupOptions selects between a full purge and a bounded cleanup.
type CleanupOptions struct {
	// MaxAgeMinutes evicts content older than this; zero evicts all content.
	MaxAgeMinutes int
	// ClearAll purges every namespaced key except the consent record.
	ClearAll bool
	// MaxItemsToKeep bounds the content entries left after a bounded cleanup.
	MaxItemsToKeep int
}

// Validate rejects negative bounds.
func (o CleanupOptions) Validate() error {
	if o.MaxAgeMinutes < 0 || o.MaxItemsToKeep < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "cleanup bounds must be non-negative")
	}
	return nil
}

// CleanupResult reports what a cleanup pass did.
type CleanupResult struct {
	// Removed counts content entries (content+timestamp pairs) deleted.
	Removed int
	// DurableRemoved counts durable-tier keys deleted by a full purge.
	DurableRemoved int
	// Remaining is the content entry count after the pass.
	Remaining int
}

// Snapshot is the capability and consent state of a session.
type Snapshot struct {
	DurableEnabled   bool
	EphemeralEnabled bool
	Consent          ConsentState
}
