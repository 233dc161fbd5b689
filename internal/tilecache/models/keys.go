package models

import (
	"fmt"
	"strconv"
	"strings"

	"tilecache/pkg/domain"
	"tilecache/pkg/platform/sentinel"
)

// Key layout. These strings are a persisted contract: pages that already wrote
// entries under them keep finding them, and any change orphans that data.
const (
	KeyPrefix        = "mdl-"
	courseSegment    = "mdl-course-"
	sectionSegment   = "-sec-"
	userSegment      = "-user-"
	lastSectionTail  = "-lastSecId"
	contentTail      = "-content"
	timestampTail    = "-lastUpdated"
	collapseTail     = "-collapsesec0"
	consentKeyPrefix = "mdl-tiles-userPrefStorage"
)

// timestampKeyParts is the segment count of
// mdl-course-<c>-sec-<s>-user-<u>-lastUpdated split on "-".
const timestampKeyParts = 8

// EntryKey addresses one cached section for one user.
type EntryKey struct {
	CourseID domain.CourseID
	Section  domain.SectionNum
	UserID   domain.UserID
}

// LastSectionKey is mdl-course-<c>-user-<u>-lastSecId.
func LastSectionKey(course domain.CourseID, user domain.UserID) string {
	return courseSegment + course.String() + userSegment + user.String() + lastSectionTail
}

// CollapseKey is mdl-course-<c>-user-<u>-collapsesec0.
func CollapseKey(course domain.CourseID, user domain.UserID) string {
	return courseSegment + course.String() + userSegment + user.String() + collapseTail
}

// ConsentKey is mdl-tiles-userPrefStorage-user-<u>.
func ConsentKey(user domain.UserID) string {
	return consentKeyPrefix + userSegment + user.String()
}

// ContentKey is mdl-course-<c>-sec-<s>-user-<u>-content.
func ContentKey(k EntryKey) string {
	return k.base() + contentTail
}

// TimestampKey is mdl-course-<c>-sec-<s>-user-<u>-lastUpdated.
func TimestampKey(k EntryKey) string {
	return k.base() + timestampTail
}

func (k EntryKey) base() string {
	return courseSegment + k.CourseID.String() +
		sectionSegment + k.Section.String() +
		userSegment + k.UserID.String()
}

func (k EntryKey) String() string {
	return fmt.Sprintf("course=%d section=%d user=%d", k.CourseID, k.Section, k.UserID)
}

// IsNamespaced reports whether key belongs to this application.
func IsNamespaced(key string) bool {
	return strings.HasPrefix(key, KeyPrefix)
}

// IsTimestampKey reports whether key has the timestamp-key prefix and suffix.
// It does not validate the middle segments; DecodeTimestampKey does.
func IsTimestampKey(key string) bool {
	return IsNamespaced(key) && strings.HasSuffix(key, timestampTail)
}

// IsContentKey reports whether key has the content-key prefix and suffix.
func IsContentKey(key string) bool {
	return strings.HasPrefix(key, courseSegment) && strings.HasSuffix(key, contentTail)
}

// DecodeTimestampKey parses mdl-course-<c>-sec-<s>-user-<u>-lastUpdated.
// Any other shape yields an error wrapping sentinel.ErrMalformedKey.
func DecodeTimestampKey(key string) (EntryKey, error) {
	if !IsTimestampKey(key) {
		return EntryKey{}, fmt.Errorf("%w: %q is not a timestamp key", sentinel.ErrMalformedKey, key)
	}
	parts := strings.Split(key, "-")
	if len(parts) != timestampKeyParts ||
		parts[1] != "course" || parts[3] != "sec" || parts[5] != "user" {
		return EntryKey{}, fmt.Errorf("%w: %q", sentinel.ErrMalformedKey, key)
	}
	course, err := domain.ParseCourseID(parts[2])
	if err != nil {
		return EntryKey{}, fmt.Errorf("%w: course segment of %q", sentinel.ErrMalformedKey, key)
	}
	section, err := domain.ParseSectionNum(parts[4])
	if err != nil {
		return EntryKey{}, fmt.Errorf("%w: section segment of %q", sentinel.ErrMalformedKey, key)
	}
	user, err := domain.ParseUserID(parts[6])
	if err != nil {
		return EntryKey{}, fmt.Errorf("%w: user segment of %q", sentinel.ErrMalformedKey, key)
	}
	return EntryKey{CourseID: course, Section: section, UserID: user}, nil
}

// FormatTimestamp renders Unix seconds the way timestamp values are stored.
func FormatTimestamp(unix int64) string {
	return strconv.FormatInt(unix, 10)
}

// ParseTimestamp reads a stored timestamp value. Zero, negative and unparsable
// values report ok=false, matching "no timestamp recorded".
func ParseTimestamp(v string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// IsConsentKey reports whether key is any user's consent record.
func IsConsentKey(key string) bool {
	return strings.HasPrefix(key, consentKeyPrefix+userSegment)
}

// OwnedBy reports whether key is one of user's records: a preference, a
// cached section or the consent record.
func OwnedBy(key string, user domain.UserID) bool {
	if !IsNamespaced(key) {
		return false
	}
	seg := userSegment + user.String()
	return strings.Contains(key, seg+"-") || strings.HasSuffix(key, seg)
}
