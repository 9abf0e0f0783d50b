package redproxy

import (
	"errors"
	"fmt"
)

// Error classes. Specific errors wrap one of these so callers can match a
// whole class with errors.Is without enumerating every failure mode.
var (
	// ErrConfiguration is the class for invalid construction-time parameters.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrMisuse is the class for API contract violations, such as acquiring
	// a lock that this instance already holds.
	ErrMisuse = errors.New("api misuse")
)

// Common errors returned by redproxy operations.
var (
	// ErrInvalidTTL is returned when a TTL option is negative.
	ErrInvalidTTL = fmt.Errorf("%w: TTL must not be negative", ErrConfiguration)

	// ErrMissingKey is returned when a required key or name is empty.
	ErrMissingKey = fmt.Errorf("%w: key must not be empty", ErrConfiguration)

	// ErrNoKeys is returned when a batch operation is called with an empty key list.
	ErrNoKeys = errors.New("no keys provided")

	// ErrLockHeld is returned by Acquire when the lock instance is already
	// held. Re-entrant acquisition is not supported; a second acquisition
	// through the store would deadlock against the first.
	ErrLockHeld = fmt.Errorf("%w: lock already held by this instance", ErrMisuse)

	// ErrLockWaitTimeout is returned by Acquire when MaxWait elapses before
	// the lock becomes free. Only possible when a MaxWait bound is configured;
	// the default is to wait indefinitely.
	ErrLockWaitTimeout = errors.New("timed out waiting for lock")
)

// StoreError reports a connectivity or protocol failure from the underlying
// key-value store. A missing key is not a StoreError; absence is reported
// through found flags.
type StoreError struct {
	// Op is the store operation that failed (e.g. "get", "hset").
	Op string
	// Key is the key the operation targeted, if any.
	Key string
	// Err is the underlying client error.
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// SerializationError reports a value that could not be encoded or decoded in
// the coordinator's codec. Under SerializationOpaque policy these are not
// returned; the value is handled as opaque text instead.
type SerializationError struct {
	// Codec is the name of the codec that failed.
	Codec string
	// Key is the cache key involved.
	Key string
	// Err is the underlying encode/decode error.
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization (%s) for key %q: %v", e.Codec, e.Key, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }
