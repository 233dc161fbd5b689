package service

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks Prompter,SectionRenderer

import (
	"context"
	"time"

	"tilecache/pkg/domain"
)

// Prompter shows the data-preference dialog to the user.
type Prompter interface {
	// RequestConsent blocks until the user answers; given reports acceptance.
	RequestConsent(ctx context.Context, user domain.UserID) (given bool, err error)
}

// SectionRenderer returns the HTML currently displayed for a section. It is
// consulted after a completion toggle, once the page has redrawn the section.
type SectionRenderer interface {
	RenderSection(ctx context.Context, course domain.CourseID, section domain.SectionNum) (string, error)
}

// Timer is a scheduled callback that can still be stopped.
type Timer interface {
	Stop() bool
}

// Scheduler runs deferred callbacks.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}
