package handler

import (
	"tilecache/internal/tilecache/models"
	"tilecache/pkg/domain"
	dErrors "tilecache/pkg/domain-errors"
)

// maxSectionNum bounds section numbers accepted in bodies.
const maxSectionNum = 1<<31 - 1

// CreateSessionRequest carries the page parameters of a course page load.
// Omitted limits fall back to the server defaults.
type CreateSessionRequest struct {
	CourseID           int64 `json:"course_id"`
	UserID             int64 `json:"user_id"`
	MaxSectionsToStore *int  `json:"max_sections_to_store,omitempty"`
	IsEditing          bool  `json:"is_editing"`
	CurrentSection     int   `json:"current_section"`
	StaleMinutes       *int  `json:"stale_minutes,omitempty"`
	AssumeConsent      *bool `json:"assume_consent,omitempty"`
}

// Validate implements httputil.Validatable.
func (r *CreateSessionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.CourseID < 0 || r.UserID < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "course_id and user_id must be non-negative")
	}
	if r.CurrentSection < 0 || r.CurrentSection > maxSectionNum {
		return dErrors.New(dErrors.CodeInvalidInput, "current_section out of range")
	}
	if r.MaxSectionsToStore != nil && *r.MaxSectionsToStore < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "max_sections_to_store must be non-negative")
	}
	if r.StaleMinutes != nil && *r.StaleMinutes < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "stale_minutes must be non-negative")
	}
	return nil
}

// Params builds session parameters, filling omitted limits from d.
func (r *CreateSessionRequest) Params(d Defaults) models.Params {
	p := models.Params{
		CourseID:           domain.CourseID(r.CourseID),
		UserID:             domain.UserID(r.UserID),
		MaxSectionsToStore: d.MaxSectionsToStore,
		IsEditing:          r.IsEditing,
		CurrentSection:     domain.SectionNum(r.CurrentSection),
		StaleMinutes:       d.StaleMinutes,
		AssumeConsent:      d.AssumeConsent,
	}
	if r.MaxSectionsToStore != nil {
		p.MaxSectionsToStore = *r.MaxSectionsToStore
	}
	if r.StaleMinutes != nil {
		p.StaleMinutes = *r.StaleMinutes
	}
	if r.AssumeConsent != nil {
		p.AssumeConsent = *r.AssumeConsent
	}
	return p
}

// ConsentRequest records the answer to the data-preference prompt.
type ConsentRequest struct {
	Given *bool `json:"given"`
}

func (r *ConsentRequest) Validate() error {
	if r == nil || r.Given == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "given is required")
	}
	return nil
}

// LastSectionRequest records the section the user opened. Zero clears it.
type LastSectionRequest struct {
	Section *int `json:"section"`
}

func (r *LastSectionRequest) Validate() error {
	if r == nil || r.Section == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "section is required")
	}
	if *r.Section < 0 || *r.Section > maxSectionNum {
		return dErrors.New(dErrors.CodeInvalidInput, "section out of range")
	}
	return nil
}

// SectionZeroRequest records whether section zero is expanded.
type SectionZeroRequest struct {
	Expanded *bool `json:"expanded"`
}

func (r *SectionZeroRequest) Validate() error {
	if r == nil || r.Expanded == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "expanded is required")
	}
	return nil
}

// ContentRequest stores section HTML. An empty html removes the entry.
type ContentRequest struct {
	HTML string `json:"html"`
}

func (r *ContentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}

// CleanupRequest mirrors models.CleanupOptions.
type CleanupRequest struct {
	MaxAgeMinutes  int  `json:"max_age_minutes"`
	ClearAll       bool `json:"clear_all"`
	MaxItemsToKeep int  `json:"max_items_to_keep"`
}

func (r *CleanupRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return r.Options().Validate()
}

func (r *CleanupRequest) Options() models.CleanupOptions {
	return models.CleanupOptions{
		MaxAgeMinutes:  r.MaxAgeMinutes,
		ClearAll:       r.ClearAll,
		MaxItemsToKeep: r.MaxItemsToKeep,
	}
}

// CompletionToggleRequest names the section whose completion changed.
type CompletionToggleRequest struct {
	Section *int `json:"section"`
}

func (r *CompletionToggleRequest) Validate() error {
	if r == nil || r.Section == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "section is required")
	}
	if *r.Section < 0 || *r.Section > maxSectionNum {
		return dErrors.New(dErrors.CodeInvalidInput, "section out of range")
	}
	return nil
}
