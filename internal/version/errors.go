package version

import (
	"errors"
	"fmt"
)

// ParseErrorKind distinguishes malformed text from a well-formed but empty
// range.
type ParseErrorKind int

const (
	Malformed ParseErrorKind = iota
	InvalidRange
)

func (k ParseErrorKind) String() string {
	switch k {
	case InvalidRange:
		return "invalid range"
	default:
		return "malformed"
	}
}

var (
	// ErrMalformed matches any *ParseError of kind Malformed.
	ErrMalformed = errors.New("malformed version constraint")
	// ErrInvalidRange matches any *ParseError of kind InvalidRange.
	ErrInvalidRange = errors.New("invalid version range")
	// ErrNoMatch matches any *NoMatchError.
	ErrNoMatch = errors.New("no matching version")
)

// ParseError reports constraint text that could not be parsed.
type ParseError struct {
	Kind   ParseErrorKind
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("version constraint %q: %s", e.Input, e.Kind)
	}
	return fmt.Sprintf("version constraint %q: %s: %s", e.Input, e.Kind, e.Reason)
}

func (e *ParseError) Is(target error) bool {
	switch target {
	case ErrMalformed:
		return e.Kind == Malformed
	case ErrInvalidRange:
		return e.Kind == InvalidRange
	}
	return false
}

// NoMatchError is returned by SelectBest when no candidate satisfies the
// constraint.
type NoMatchError struct {
	Constraint string
	Candidates int
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no version satisfies %s (checked %d candidates)", e.Constraint, e.Candidates)
}

func (e *NoMatchError) Is(target error) bool {
	return target == ErrNoMatch
}
