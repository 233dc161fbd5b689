package models

// ConsentState is the user's decision about client-side caching.
type ConsentState string

const (
	ConsentUnset  ConsentState = "unset"
	ConsentGiven  ConsentState = "given"
	ConsentDenied ConsentState = "denied"
)

// Stored consent values.
const (
	consentGivenValue  = "yes"
	consentDeniedValue = "no"
)

// ParseStoredConsent maps a consent-record value to a state. Anything other
// than the two recorded values, including a missing record, is unset.
func ParseStoredConsent(v string, ok bool) ConsentState {
	if !ok {
		return ConsentUnset
	}
	switch v {
	case consentGivenValue:
		return ConsentGiven
	case consentDeniedValue:
		return ConsentDenied
	default:
		return ConsentUnset
	}
}

// StoredValue is the value persisted for a decided state. Unset has none.
func (c ConsentState) StoredValue() (string, bool) {
	switch c {
	case ConsentGiven:
		return consentGivenValue, true
	case ConsentDenied:
		return consentDeniedValue, true
	default:
		return "", false
	}
}

// ConsentFromDecision maps a yes/no answer to a state.
func ConsentFromDecision(given bool) ConsentState {
	if given {
		return ConsentGiven
	}
	return ConsentDenied
}

// IsDecided reports whether the user has answered.
func (c ConsentState) IsDecided() bool {
	return c == ConsentGiven || c == ConsentDenied
}

func (c ConsentState) String() string {
	return string(c)
}
