// Package redproxy is a convenience layer over Redis that provides three
// reusable patterns on top of a plain key-value store:
//
//   - Scoped cache entries: a cache-aside transaction against one key that
//     loads an existing value on open and persists the caller's value on
//     scope exit (WithCache / OpenCache).
//   - Distributed locks: polling-based mutual exclusion keyed by name,
//     built on SETNX + EXPIRE (WithLock / NewLock).
//   - Memoization: caching the result of an arbitrary computation under a
//     key derived from a content digest of its arguments (NewMemoizer).
//
// A secondary unit wraps Redis HyperLogLog with content-addressed
// deduplication of inputs (NewPFCache).
//
// # Basic Usage
//
//	coord, err := redproxy.New(
//	    rueidis.ClientOption{InitAddress: []string{"localhost:6379"}},
//	    redproxy.Options{},
//	)
//	if err != nil {
//	    return err
//	}
//	defer coord.Client().Close()
//
//	err = coord.WithCache(ctx, "report:today", redproxy.CacheOptions{TTL: time.Minute},
//	    func(e *redproxy.ScopedCacheEntry) error {
//	        if _, ok := e.Value(); ok {
//	            return nil // already cached
//	        }
//	        report, err := buildReport(ctx)
//	        if err != nil {
//	            return err
//	        }
//	        e.SetValue(report) // persisted automatically on scope exit
//	        return nil
//	    })
//
// # Distributed Locking
//
// Locks serialize a critical section across processes. Acquisition polls at
// a fixed interval until the lock key is free, then claims it with SETNX and
// arms a TTL so a crashed holder cannot block others forever:
//
//	err = coord.WithLock(ctx, "nightly-report", redproxy.LockOptions{TTL: 30 * time.Second},
//	    func(ctx context.Context) error {
//	        return runExclusiveWork(ctx)
//	    })
//
// The SETNX and EXPIRE steps are not atomic as a pair; a crash between them
// leaves a lock key with no expiry. This gap is documented rather than
// papered over.
//
// # Context and Cancellation
//
// All operations take a context and stop promptly when it is cancelled.
// Scope-exit work (flushing an entry, releasing a lock) runs on a cleanup
// context that survives the caller's cancellation, bounded by
// Options.CleanupTimeout.
package redproxy

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/rueidis"

	"github.com/wanredis/redproxy/codec"
	"github.com/wanredis/redproxy/internal/sentinel"
)

// Logger defines the logging interface used by the coordinator.
// Implementations must be safe for concurrent use and should handle log
// levels internally.
type Logger interface {
	// Error logs error messages. Used for unexpected failures, including
	// suppressed flush errors and best-effort cleanup failures.
	Error(msg string, args ...any)
	// Debug logs detailed diagnostic information about cache hits, misses
	// and lock handling.
	Debug(msg string, args ...any)
}

// SerializationPolicy decides, once at construction time, how encode and
// decode failures are handled. There is deliberately no per-call override.
type SerializationPolicy int

const (
	// SerializationStrict surfaces encode/decode failures as
	// *SerializationError.
	SerializationStrict SerializationPolicy = iota
	// SerializationOpaque falls back to opaque text: values that fail to
	// encode are stored in their fmt.Sprint form, and stored bytes that fail
	// to decode are returned as the raw string.
	SerializationOpaque
)

// DefaultTTL is the value lifetime used when an operation's TTL option is
// left zero and Options.DefaultTTL is unset.
const DefaultTTL = 30 * time.Second

// DefaultCleanupTimeout bounds scope-exit work (entry flush, lock release)
// so a dead store cannot block scope exit indefinitely.
const DefaultCleanupTimeout = 5 * time.Second

// Options configures a CacheCoordinator. All fields are optional.
type Options struct {
	// Codec serializes cache values. Defaults to codec.JSON{}.
	Codec codec.Codec

	// Policy decides how serialization failures are handled.
	// Defaults to SerializationStrict.
	Policy SerializationPolicy

	// Logger for errors and debug information. Defaults to slog.Default().
	Logger Logger

	// DefaultTTL applies when an operation's TTL option is zero.
	// Defaults to DefaultTTL (30 seconds). Must not be negative.
	DefaultTTL time.Duration

	// CleanupTimeout bounds scope-exit flush and lock release.
	// Defaults to DefaultCleanupTimeout (5 seconds). Must not be negative.
	CleanupTimeout time.Duration

	// ClientBuilder allows customizing the Redis client creation in New.
	// If nil, rueidis.NewClient is used with the provided options.
	// Useful for injecting mock clients in tests or adding middleware.
	ClientBuilder func(option rueidis.ClientOption) (rueidis.Client, error)
}

// CacheCoordinator binds one store handle and manufactures scoped cache
// entries, distributed locks, memoizers and HyperLogLog wrappers. It also
// exposes direct passthrough operations on the store.
//
// The coordinator itself holds no in-process locks: a single instance may be
// shared by any number of goroutines, and concurrency safety across
// participants is delegated to the store's atomicity of SETNX, EXPIRE and
// pipelined batches.
type CacheCoordinator struct {
	client         rueidis.Client
	store          Store
	codec          codec.Codec
	policy         SerializationPolicy
	logger         Logger
	defaultTTL     time.Duration
	cleanupTimeout time.Duration
	sentinels      *sentinel.Generator
}

// New creates a CacheCoordinator with its own Redis client.
//
// The function validates all options and sets defaults:
//   - Codec defaults to codec.JSON{}
//   - Logger defaults to slog.Default()
//   - DefaultTTL defaults to 30 seconds
//   - CleanupTimeout defaults to 5 seconds
//
// Returns an error if no Redis address is provided in InitAddress, an option
// is invalid, or client creation fails. The caller owns the client's
// lifecycle: defer coord.Client().Close().
func New(clientOption rueidis.ClientOption, opt Options) (*CacheCoordinator, error) {
	if len(clientOption.InitAddress) == 0 {
		return nil, fmt.Errorf("%w: at least one Redis address must be provided in InitAddress", ErrConfiguration)
	}

	var client rueidis.Client
	var err error
	if opt.ClientBuilder != nil {
		client, err = opt.ClientBuilder(clientOption)
	} else {
		client, err = rueidis.NewClient(clientOption)
	}
	if err != nil {
		return nil, err
	}
	return NewWithClient(client, opt)
}

// NewWithClient creates a CacheCoordinator around an existing client.
// The caller owns the client's lifecycle.
func NewWithClient(client rueidis.Client, opt Options) (*CacheCoordinator, error) {
	if opt.DefaultTTL < 0 {
		return nil, ErrInvalidTTL
	}
	if opt.CleanupTimeout < 0 {
		return nil, fmt.Errorf("%w: CleanupTimeout must not be negative", ErrConfiguration)
	}
	if opt.DefaultTTL == 0 {
		opt.DefaultTTL = DefaultTTL
	}
	if opt.CleanupTimeout == 0 {
		opt.CleanupTimeout = DefaultCleanupTimeout
	}
	if opt.Codec == nil {
		opt.Codec = codec.JSON{}
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}

	return &CacheCoordinator{
		client:         client,
		store:          newRedisStore(client),
		codec:          opt.Codec,
		policy:         opt.Policy,
		logger:         opt.Logger,
		defaultTTL:     opt.DefaultTTL,
		cleanupTimeout: opt.CleanupTimeout,
		sentinels:      sentinel.NewGenerator(),
	}, nil
}

// Client returns the underlying rueidis.Client for advanced operations.
// Direct operations bypass the scoped-entry and lock protocols.
func (c *CacheCoordinator) Client() rueidis.Client {
	return c.client
}

// Store returns the key-value capability surface the coordinator operates on.
func (c *CacheCoordinator) Store() Store {
	return c.store
}

// encodeValue serializes v for storage under key, applying the coordinator's
// serialization policy.
func (c *CacheCoordinator) encodeValue(key string, v any) (string, error) {
	data, err := c.codec.Marshal(v)
	if err != nil {
		if c.policy == SerializationOpaque {
			return fmt.Sprint(v), nil
		}
		return "", &SerializationError{Codec: c.codec.Name(), Key: key, Err: err}
	}
	return string(data), nil
}

// decodeValue deserializes a stored value, applying the coordinator's
// serialization policy.
func (c *CacheCoordinator) decodeValue(key, raw string) (any, error) {
	var v any
	if err := c.codec.Unmarshal([]byte(raw), &v); err != nil {
		if c.policy == SerializationOpaque {
			return raw, nil
		}
		return nil, &SerializationError{Codec: c.codec.Name(), Key: key, Err: err}
	}
	return v, nil
}

// encodeFields serializes each field of a structured-map value independently.
func (c *CacheCoordinator) encodeFields(key string, fields map[string]any) (map[string]string, error) {
	encoded := make(map[string]string, len(fields))
	for f, v := range fields {
		raw, err := c.encodeValue(key, v)
		if err != nil {
			return nil, err
		}
		encoded[f] = raw
	}
	return encoded, nil
}

// decodeFields deserializes each field of a stored structured-map record.
func (c *CacheCoordinator) decodeFields(key string, raw map[string]string) (map[string]any, error) {
	decoded := make(map[string]any, len(raw))
	for f, rv := range raw {
		v, err := c.decodeValue(key, rv)
		if err != nil {
			return nil, err
		}
		decoded[f] = v
	}
	return decoded, nil
}

// resolveTTL applies the coordinator default and rejects negative TTLs.
func (c *CacheCoordinator) resolveTTL(ttl time.Duration) (time.Duration, error) {
	if ttl < 0 {
		return 0, ErrInvalidTTL
	}
	if ttl == 0 {
		return c.defaultTTL, nil
	}
	return ttl, nil
}
