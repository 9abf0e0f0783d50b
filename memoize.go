package redproxy

import (
	"context"
	"fmt"
	"time"

	"github.com/wanredis/redproxy/internal/keyhash"
)

// MemoizeOptions configures a Memoizer.
type MemoizeOptions struct {
	// Key is the base cache key. Required.
	Key string

	// Namespace is prepended to Key, separating memoized entries from
	// application data.
	Namespace string

	// TTL applied when a computed result is written.
	// Defaults to the coordinator's DefaultTTL. Must not be negative.
	TTL time.Duration

	// Encoding selects the storage layout for results handled by Do.
	// Defaults to Scalar. The typed helpers Cached and Wrap require Scalar.
	Encoding Encoding

	// RefreshOnHit re-writes a read value with a fresh TTL, keeping hot
	// entries warm. The refresh only happens when a non-empty value was
	// actually read; a miss is never written back.
	RefreshOnHit bool

	// RaiseOnCacheError surfaces read-path store failures to the caller.
	// When false (the default), a failing cache read falls back to invoking
	// the computation and returning its result uncached.
	RaiseOnCacheError bool
}

// Memoizer caches the result of an arbitrary computation under a key derived
// from a content digest of its arguments. It holds its configuration
// explicitly: construct one per memoized operation and invoke it per call.
// There is no process-local cache layer; every call is observable through
// store reads and writes.
//
// Only scalar arguments (non-empty strings, non-zero integers) participate
// in the cache key. Calls that differ only in other argument types share a
// key.
type Memoizer struct {
	coord *CacheCoordinator

	key               string
	namespace         string
	ttl               time.Duration
	encoding          Encoding
	refreshOnHit      bool
	raiseOnCacheError bool
}

// NewMemoizer creates a Memoizer bound to this coordinator.
func (c *CacheCoordinator) NewMemoizer(opts MemoizeOptions) (*Memoizer, error) {
	if opts.Key == "" {
		return nil, ErrMissingKey
	}
	ttl, err := c.resolveTTL(opts.TTL)
	if err != nil {
		return nil, err
	}
	return &Memoizer{
		coord:             c,
		key:               opts.Key,
		namespace:         opts.Namespace,
		ttl:               ttl,
		encoding:          opts.Encoding,
		refreshOnHit:      opts.RefreshOnHit,
		raiseOnCacheError: opts.RaiseOnCacheError,
	}, nil
}

// CacheKey returns the store key a call with args maps to:
// namespace + key + ":" + digest(scalar args). The digest is order-independent.
func (m *Memoizer) CacheKey(args ...any) string {
	return m.namespace + m.key + ":" + keyhash.Digest(args...)
}

// Do returns the cached result for args, or invokes compute, caches its
// result with the configured TTL, and returns it.
//
// A read-path failure (store or decode) is handled per RaiseOnCacheError:
// surfaced, or logged and bypassed by invoking compute and returning its
// result uncached. Write-path failures always propagate.
func (m *Memoizer) Do(ctx context.Context, compute func(ctx context.Context) (any, error), args ...any) (any, error) {
	cacheKey := m.CacheKey(args...)

	val, found, err := m.read(ctx, cacheKey)
	if err != nil {
		if m.raiseOnCacheError {
			return nil, err
		}
		m.coord.logger.Debug("memoize read failed, bypassing cache", "key", cacheKey, "error", err)
		return compute(ctx)
	}
	if found {
		m.coord.logger.Debug("memoize hit", "key", cacheKey)
		return val, nil
	}

	result, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.write(ctx, cacheKey, result); err != nil {
		return nil, err
	}
	m.coord.logger.Debug("memoize miss, result cached", "key", cacheKey)
	return result, nil
}

// read loads and decodes the entry at cacheKey, refreshing its TTL when
// RefreshOnHit is set and a non-empty value was read.
func (m *Memoizer) read(ctx context.Context, cacheKey string) (any, bool, error) {
	switch m.encoding {
	case StructuredMap:
		raw, err := m.coord.store.HashGetAll(ctx, cacheKey)
		if err != nil {
			return nil, false, err
		}
		if len(raw) == 0 {
			return nil, false, nil
		}
		if m.refreshOnHit {
			if err := m.coord.store.HashSetAll(ctx, cacheKey, raw, m.ttl); err != nil {
				return nil, false, err
			}
		}
		decoded, err := m.coord.decodeFields(cacheKey, raw)
		if err != nil {
			return nil, false, err
		}
		return decoded, true, nil
	default:
		raw, found, err := m.coord.store.Get(ctx, cacheKey)
		if err != nil {
			return nil, false, err
		}
		if !found || raw == "" {
			return nil, false, nil
		}
		if m.refreshOnHit {
			if err := m.coord.store.Set(ctx, cacheKey, raw, m.ttl); err != nil {
				return nil, false, err
			}
		}
		decoded, err := m.coord.decodeValue(cacheKey, raw)
		if err != nil {
			return nil, false, err
		}
		return decoded, true, nil
	}
}

// write encodes and stores a computed result under cacheKey.
func (m *Memoizer) write(ctx context.Context, cacheKey string, result any) error {
	switch m.encoding {
	case StructuredMap:
		fields, ok := result.(map[string]any)
		if !ok {
			return &SerializationError{
				Codec: m.coord.codec.Name(),
				Key:   cacheKey,
				Err:   fmt.Errorf("structured-map result must be map[string]any, got %T", result),
			}
		}
		encoded, err := m.coord.encodeFields(cacheKey, fields)
		if err != nil {
			return err
		}
		return m.coord.store.HashSetAll(ctx, cacheKey, encoded, m.ttl)
	default:
		raw, err := m.coord.encodeValue(cacheKey, result)
		if err != nil {
			return err
		}
		return m.coord.store.Set(ctx, cacheKey, raw, m.ttl)
	}
}

// Forget clears the cached result for args by marking it immediately
// expired (the safe-clear path; tolerates the key being absent).
func (m *Memoizer) Forget(ctx context.Context, args ...any) error {
	_, err := m.coord.store.Expire(ctx, m.CacheKey(args...), 0)
	return err
}

// Purge removes the cached result for args with a hard delete.
func (m *Memoizer) Purge(ctx context.Context, args ...any) error {
	return m.coord.store.Delete(ctx, m.CacheKey(args...))
}

// Cached is the typed face of Memoizer.Do for Scalar-encoded results: it
// decodes hits directly into T and encodes computed results from T.
// StructuredMap memoizers must use Do.
//
// The coordinator's serialization policy applies here as on the untyped path.
// Under SerializationOpaque a value that fails to encode is stored as opaque
// text, and a stored value that fails to decode is returned as-is when T is
// string; for any other T the decode failure is handled like a cache read
// error (bypass or raise per RaiseOnCacheError).
func Cached[T any](ctx context.Context, m *Memoizer, compute func(ctx context.Context) (T, error), args ...any) (T, error) {
	var zero T
	if m.encoding != Scalar {
		return zero, fmt.Errorf("%w: typed memoization requires Scalar encoding", ErrMisuse)
	}
	cacheKey := m.CacheKey(args...)

	out, found, err := readTyped[T](ctx, m, cacheKey)
	if err != nil {
		if m.raiseOnCacheError {
			return zero, err
		}
		m.coord.logger.Debug("memoize read failed, bypassing cache", "key", cacheKey, "error", err)
		return compute(ctx)
	}
	if found {
		return out, nil
	}

	result, err := compute(ctx)
	if err != nil {
		return zero, err
	}
	raw, err := m.coord.encodeValue(cacheKey, result)
	if err != nil {
		return zero, err
	}
	if err := m.coord.store.Set(ctx, cacheKey, raw, m.ttl); err != nil {
		return zero, err
	}
	return result, nil
}

func readTyped[T any](ctx context.Context, m *Memoizer, cacheKey string) (T, bool, error) {
	var zero T
	raw, found, err := m.coord.store.Get(ctx, cacheKey)
	if err != nil {
		return zero, false, err
	}
	if !found || raw == "" {
		return zero, false, nil
	}
	if m.refreshOnHit {
		if err := m.coord.store.Set(ctx, cacheKey, raw, m.ttl); err != nil {
			return zero, false, err
		}
	}
	var out T
	if err := m.coord.codec.Unmarshal([]byte(raw), &out); err != nil {
		if m.coord.policy == SerializationOpaque {
			// Opaque fallback: the raw text is representable only when T is
			// string; otherwise the failure follows the read-error policy.
			if s, ok := any(&out).(*string); ok {
				*s = raw
				return out, true, nil
			}
		}
		return zero, false, &SerializationError{Codec: m.coord.codec.Name(), Key: cacheKey, Err: err}
	}
	return out, true, nil
}

// Wrap turns fn into a memoized function: each call derives the cache key
// from its arguments and goes through Cached. The wrapped function and the
// original have the same signature.
func Wrap[T any](m *Memoizer, fn func(ctx context.Context, args ...any) (T, error)) func(ctx context.Context, args ...any) (T, error) {
	return func(ctx context.Context, args ...any) (T, error) {
		return Cached(ctx, m, func(ctx context.Context) (T, error) {
			return fn(ctx, args...)
		}, args...)
	}
}
