package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "tilecache/pkg/domain-errors"
)

func TestParseNumericIDs(t *testing.T) {
	t.Run("accepts decimal ids", func(t *testing.T) {
		c, err := ParseCourseID("42")
		require.NoError(t, err)
		assert.Equal(t, CourseID(42), c)

		u, err := ParseUserID("0")
		require.NoError(t, err)
		assert.Equal(t, UserID(0), u)

		s, err := ParseSectionNum("7")
		require.NoError(t, err)
		assert.Equal(t, SectionNum(7), s)
	})

	tests := []struct {
		name  string
		input string
	}{
		{"empty string", ""},
		{"negative", "-1"},
		{"sign prefix", "+3"},
		{"hyphen injection", "2-sec-3"},
		{"whitespace", " 12"},
		{"hex", "0x10"},
		{"oversized input", strings.Repeat("9", 40)},
		{"overflow", "9999999999999999999"},
	}
	for _, tt := range tests {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			_, err := ParseCourseID(tt.input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}

	t.Run("section number range", func(t *testing.T) {
		_, err := ParseSectionNum("99999999999")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestParseSessionID(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseSessionID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseSessionID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("round trips a generated id", func(t *testing.T) {
		id := NewSessionID()
		parsed, err := ParseSessionID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	})
}
