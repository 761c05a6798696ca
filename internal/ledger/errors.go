package ledger

import "errors"

// ErrNotFound is returned when the sentinel rule matches: the designated
// field of the decoded entity equals its zero value, meaning the id is
// unallocated. Expected and terminal, not a failure.
var ErrNotFound = errors.New("ledger entity not found")

// ErrUnavailable is returned on transport or timeout failure reaching the
// ledger. Transient; retryable by the caller's policy, never retried here.
var ErrUnavailable = errors.New("ledger unavailable")

// IsNotFound reports whether err signals an unallocated id.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnavailable reports whether err signals a transient transport failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
