package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to callers through the service layer.
var (
	// ErrNotFound is returned for unknown jobs or version numbers.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a ledger write targets a parent version
	// that is no longer the head. Never auto-resolved; the caller decides
	// whether to retry against the new head.
	ErrConflict = errors.New("version conflict")
)

// DecodeError is fatal at stage level: the source video cannot be decoded.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// LowYieldWarning is non-fatal: too few frames survived filtering. The
// pipeline widens sampling once before falling back to a reduced document.
type LowYieldWarning struct {
	Survived int
	Minimum  int
}

func (e *LowYieldWarning) Error() string {
	return fmt.Sprintf("low frame yield: %d survived, minimum %d", e.Survived, e.Minimum)
}

// GroundingViolation means generated content referenced terms absent from
// the verifier's visible-content description. One stricter regeneration is
// attempted before the frame is excluded.
type GroundingViolation struct {
	Terms []string
}

func (e *GroundingViolation) Error() string {
	return fmt.Sprintf("ungrounded terms in generated content: %v", e.Terms)
}

// RateLimitedError is a retryable external-call failure.
type RateLimitedError struct {
	Err error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// ServiceError is an external-call failure that remains after the retry
// budget is exhausted.
type ServiceError struct {
	Service string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}
