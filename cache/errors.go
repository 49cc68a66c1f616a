package cache

import "errors"

// Programming errors: callers are expected never to trigger these in
// production. debugAssertions panics instead of merely returning the error,
// matching the teacher's "fail loudly in debug builds" discipline (see §7 of
// the design doc) — toggle it off for a release build that prefers returning
// errors to crashing.
var debugAssertions = true

var (
	// ErrEmptyKey is returned when a key is the empty string.
	ErrEmptyKey = errors.New("cache: key must not be empty")
	// ErrInvalidPolicy is returned by policy validation (see policy.go).
	ErrInvalidPolicy = errors.New("cache: invalid policy")
	// ErrClosed is returned by operations attempted after Close.
	ErrClosed = errors.New("cache: closed")
	// ErrAlreadySet is returned when a write-once global is set twice.
	ErrAlreadySet = errors.New("cache: already set")
	// ErrNilHook is returned when RegisterSizeHook is called with nil.
	ErrNilHook = errors.New("cache: size hook must not be nil")
)

// assertOrPanic enforces a programming-error contract: in debug builds it
// panics (so the violation surfaces immediately in tests and local runs);
// otherwise it returns err unchanged for the caller to propagate.
func assertOrPanic(err error) error {
	if err == nil {
		return nil
	}
	if debugAssertions {
		panic(err)
	}
	return err
}
