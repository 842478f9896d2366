package cache

import (
	"errors"
	"fmt"

	"opencli/internal/integrity"
)

var (
	// ErrFetch matches any *FetchError.
	ErrFetch = errors.New("fetch failed")
	// ErrIntegrity matches any *IntegrityError.
	ErrIntegrity = errors.New("integrity check failed")
)

// FetchErrorKind separates exhausted retries from hard failures.
type FetchErrorKind int

const (
	// FetchFailed is a non-transient failure such as a 404 or a bad archive.
	FetchFailed FetchErrorKind = iota
	// FetchUnreachable means every retry hit a transient network error.
	FetchUnreachable
)

func (k FetchErrorKind) String() string {
	if k == FetchUnreachable {
		return "unreachable"
	}
	return "failed"
}

// FetchError reports a download that did not produce a cache slot.
type FetchError struct {
	Kind FetchErrorKind
	Key  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.Key, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// IntegrityError reports content whose digest disagrees with the one the
// caller expected. It is never retried. The corrupt copy is not repaired:
// at most its slot is invalidated, and a fresh fetch is required.
type IntegrityError struct {
	Key      string
	Expected integrity.Digest
	// Invalidated is set when the slot was deleted after the mismatch.
	Invalidated bool
}

func (e *IntegrityError) Error() string {
	action := "the cached copy was left untouched"
	if e.Invalidated {
		action = "the cached copy was invalidated and nothing else was done to it"
	}
	return fmt.Sprintf("integrity mismatch for %s: content does not match recorded digest; %s, a re-fetch is required (opencli install --force)", e.Key, action)
}

func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }
