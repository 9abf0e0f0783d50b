package redproxy

import (
	"context"
	"fmt"
	"time"

	"github.com/wanredis/redproxy/internal/contextx"
)

// Encoding selects how a cache value is laid out in the store.
type Encoding int

const (
	// Scalar stores one serialized value under a plain key.
	Scalar Encoding = iota
	// StructuredMap stores a mapping of fields under a hash-typed key,
	// each field value independently serialized. In-memory values for this
	// encoding are map[string]any.
	StructuredMap
)

func (e Encoding) String() string {
	switch e {
	case Scalar:
		return "scalar"
	case StructuredMap:
		return "structured-map"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// CacheOptions configures one scoped cache entry.
type CacheOptions struct {
	// TTL applied when the entry is persisted on scope exit.
	// Defaults to the coordinator's DefaultTTL. Must not be negative.
	TTL time.Duration

	// Encoding selects the storage layout. Defaults to Scalar.
	Encoding Encoding

	// SuppressErrors controls whether a failure during the implicit flush on
	// scope exit is raised to the caller or swallowed (logged at error
	// level). Errors from the caller's own block are never swallowed.
	SuppressErrors bool

	// NoWriteBack disables the flush on scope exit entirely. The entry then
	// only serves as a read.
	NoWriteBack bool
}

// ScopedCacheEntry represents one cache-aside transaction against a single
// key. It is created by OpenCache or WithCache, owned exclusively by the
// calling scope, and must not be retained beyond it. It is not safe for
// concurrent use.
type ScopedCacheEntry struct {
	coord    *CacheCoordinator
	key      string
	ttl      time.Duration
	encoding Encoding
	suppress bool

	value   any
	present bool
	dirty   bool
	loaded  bool
	closed  bool
}

// OpenCache opens a scoped cache entry for key and attempts to load an
// existing value: a plain GET for Scalar, an HGETALL with every field decoded
// for StructuredMap. When a non-empty value is found the entry exposes it and
// no write will happen on Close unless the caller overwrites it. On a miss
// the entry exposes an absent value and Close will persist whatever the
// caller sets.
//
// The typical shape is:
//
//	e, err := coord.OpenCache(ctx, key, opts)
//	if err != nil {
//	    return err
//	}
//	defer e.Close(ctx)
//	if v, ok := e.Value(); ok {
//	    return use(v)
//	}
//	e.SetValue(compute())
//
// Prefer WithCache, which manages the scope for you.
func (c *CacheCoordinator) OpenCache(ctx context.Context, key string, opts CacheOptions) (*ScopedCacheEntry, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	ttl, err := c.resolveTTL(opts.TTL)
	if err != nil {
		return nil, err
	}

	e := &ScopedCacheEntry{
		coord:    c,
		key:      key,
		ttl:      ttl,
		encoding: opts.Encoding,
		suppress: opts.SuppressErrors,
		dirty:    !opts.NoWriteBack,
	}

	switch opts.Encoding {
	case StructuredMap:
		raw, err := c.store.HashGetAll(ctx, key)
		if err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			decoded, err := c.decodeFields(key, raw)
			if err != nil {
				return nil, err
			}
			e.value = decoded
			e.markLoaded()
		}
	default:
		raw, found, err := c.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if found && raw != "" {
			decoded, err := c.decodeValue(key, raw)
			if err != nil {
				return nil, err
			}
			e.value = decoded
			e.markLoaded()
		}
	}

	if e.loaded {
		c.logger.Debug("cache hit", "key", key)
	} else {
		c.logger.Debug("cache miss", "key", key)
	}
	return e, nil
}

func (e *ScopedCacheEntry) markLoaded() {
	e.present = true
	e.loaded = true
	// A pre-existing value needs no write unless the caller overwrites it.
	e.dirty = false
}

// Key returns the entry's key in the store's namespace.
func (e *ScopedCacheEntry) Key() string { return e.key }

// Loaded reports whether a pre-existing value was found in the store when
// the entry was opened.
func (e *ScopedCacheEntry) Loaded() bool { return e.loaded }

// Dirty reports whether Close will persist the entry's value.
func (e *ScopedCacheEntry) Dirty() bool { return e.dirty }

// Value returns the entry's in-memory payload. ok is false when the value is
// absent, which is not the same as present but empty. For StructuredMap
// entries the payload is a map[string]any.
func (e *ScopedCacheEntry) Value() (v any, ok bool) {
	return e.value, e.present
}

// SetValue overwrites the entry's payload. Every explicit set re-marks the
// entry dirty, even when the new value equals the loaded one, so the value
// is flushed on scope exit.
func (e *ScopedCacheEntry) SetValue(v any) {
	e.value = v
	e.present = true
	e.dirty = true
}

// Close flushes the entry if it is dirty and holds a value: a SET with
// expiry for Scalar, a pipelined field-set-all plus EXPIRE batch for
// StructuredMap. It runs on a cleanup context that survives cancellation of
// ctx, bounded by the coordinator's CleanupTimeout.
//
// When SuppressErrors is set, a flush failure is logged and Close returns
// nil; the value is then simply not persisted. Close is idempotent.
func (e *ScopedCacheEntry) Close(ctx context.Context) error {
	if e.closed {
		return nil
	}
	e.closed = true

	if !e.dirty || !e.present {
		return nil
	}

	cctx, cancel := contextx.WithCleanupTimeout(ctx, e.coord.cleanupTimeout)
	defer cancel()

	err := e.flush(cctx)
	if err != nil {
		if e.suppress {
			e.coord.logger.Error("cache flush failed; value not persisted", "key", e.key, "error", err)
			return nil
		}
		return err
	}
	e.coord.logger.Debug("cache entry flushed", "key", e.key, "encoding", e.encoding.String())
	return nil
}

func (e *ScopedCacheEntry) flush(ctx context.Context) error {
	switch e.encoding {
	case StructuredMap:
		fields, ok := e.value.(map[string]any)
		if !ok {
			return &SerializationError{
				Codec: e.coord.codec.Name(),
				Key:   e.key,
				Err:   fmt.Errorf("structured-map value must be map[string]any, got %T", e.value),
			}
		}
		encoded, err := e.coord.encodeFields(e.key, fields)
		if err != nil {
			return err
		}
		return e.coord.store.HashSetAll(ctx, e.key, encoded, e.ttl)
	default:
		raw, err := e.coord.encodeValue(e.key, e.value)
		if err != nil {
			return err
		}
		return e.coord.store.Set(ctx, e.key, raw, e.ttl)
	}
}

// WithCache runs fn inside a scoped cache entry for key. The entry is opened
// before fn runs and closed on every exit path, so a value set by fn is
// persisted even when fn returns an error. fn's error is never swallowed; a
// flush error never masks it and is itself subject to SuppressErrors.
func (c *CacheCoordinator) WithCache(ctx context.Context, key string, opts CacheOptions, fn func(e *ScopedCacheEntry) error) error {
	e, err := c.OpenCache(ctx, key, opts)
	if err != nil {
		return err
	}

	fnErr := fn(e)
	closeErr := e.Close(ctx)

	if fnErr != nil {
		if closeErr != nil {
			c.logger.Error("cache flush failed after block error", "key", key, "error", closeErr)
		}
		return fnErr
	}
	return closeErr
}
