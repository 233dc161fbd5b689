package domain

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	dErrors "tilecache/pkg/domain-errors"
)

// CourseID identifies a course on the host LMS.
// Invariant: non-negative. Construct via ParseCourseID at trust boundaries.
type CourseID int64

// UserID identifies the user viewing the course.
// Invariant: non-negative. Construct via ParseUserID at trust boundaries.
type UserID int64

// SectionNum is the index of a section within a course. Zero is the landing
// section; it is a valid content section but never a valid "last visited" value.
type SectionNum int

// SessionID identifies one page session held by the registry.
type SessionID uuid.UUID

// maxIDLen bounds numeric input before parsing.
const maxIDLen = 19

func (c CourseID) String() string   { return strconv.FormatInt(int64(c), 10) }
func (u UserID) String() string     { return strconv.FormatInt(int64(u), 10) }
func (s SectionNum) String() string { return strconv.Itoa(int(s)) }
func (s SessionID) String() string  { return uuid.UUID(s).String() }

// ParseCourseID parses a decimal course id.
func ParseCourseID(s string) (CourseID, error) {
	n, err := parseNonNegative(s, "course id")
	return CourseID(n), err
}

// ParseUserID parses a decimal user id.
func ParseUserID(s string) (UserID, error) {
	n, err := parseNonNegative(s, "user id")
	return UserID(n), err
}

// ParseSectionNum parses a decimal section number.
func ParseSectionNum(s string) (SectionNum, error) {
	n, err := parseNonNegative(s, "section number")
	if err != nil {
		return 0, err
	}
	if n > int64(^uint32(0)>>1) {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "section number out of range")
	}
	return SectionNum(n), nil
}

// ParseSessionID parses a session id; the nil UUID is rejected.
func ParseSessionID(s string) (SessionID, error) {
	if s == "" {
		return SessionID{}, dErrors.New(dErrors.CodeInvalidInput, "session id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return SessionID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid session id format")
	}
	if u == uuid.Nil {
		return SessionID{}, dErrors.New(dErrors.CodeInvalidInput, "session id cannot be nil")
	}
	return SessionID(u), nil
}

// NewSessionID returns a random session id.
func NewSessionID() SessionID {
	return SessionID(uuid.New())
}

func parseNonNegative(s, what string) (int64, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be empty")
	}
	if len(s) > maxIDLen || strings.TrimLeft(s, "0123456789") != "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+what)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+what)
	}
	return n, nil
}
