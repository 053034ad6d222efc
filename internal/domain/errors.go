package domain

import "errors"

// Domain errors
var (
	ErrNotFound         = errors.New("not found")
	ErrUpdateFailed     = errors.New("update failed")
	ErrQueryFailed      = errors.New("query failed")
	ErrUnavailable      = errors.New("progress store unavailable")
	ErrAlreadyCompleted = errors.New("activity already completed by profile")
	ErrBadgeEvaluation  = errors.New("badge evaluation failed")
	ErrCreditUncertain  = errors.New("xp credit outcome unknown")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInternalError    = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable reports whether the caller may retry the operation as-is.
// The core never retries on its own.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) && !IsCreditUncertain(err)
}

// IsXPPersisted reports whether a failed completion had already credited XP.
// Badge evaluation runs after the profile update, so its failures leave XP in place.
func IsXPPersisted(err error) bool {
	return errors.Is(err, ErrBadgeEvaluation)
}

// IsCreditUncertain reports whether the profile write was cut off after it was
// sent, so XP may or may not have been credited.
func IsCreditUncertain(err error) bool {
	return errors.Is(err, ErrCreditUncertain)
}
