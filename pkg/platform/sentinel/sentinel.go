package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Tiers and the registry return these
// (optionally wrapped) so callers can translate them into domain errors.
//
// - ErrNotFound: key or session does not exist
// - ErrUnavailable: backing store cannot be reached or refused the operation
// - ErrInvalidState: entity in wrong state for the requested operation
// - ErrMalformedKey: a stored key does not have the expected shape
var (
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("unavailable")
	ErrInvalidState = errors.New("invalid state")
	ErrMalformedKey = errors.New("malformed key")
)
