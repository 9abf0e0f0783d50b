package redproxy

import (
	"context"
	"time"
)

// Direct passthrough operations on the store. These add no protocol of their
// own; they exist so callers holding a coordinator do not need a second
// handle for plain reads and writes. The *Data and *Record variants run
// values through the coordinator's codec.

// Get returns the raw string value under key.
func (c *CacheCoordinator) Get(ctx context.Context, key string) (string, bool, error) {
	return c.store.Get(ctx, key)
}

// Set writes a raw string value under key with an expiry. A ttl <= 0 writes
// without expiry.
func (c *CacheCoordinator) Set(ctx context.Context, key, val string, ttl time.Duration) error {
	return c.store.Set(ctx, key, val, ttl)
}

// GetMany returns the raw values for keys in order, "" for absent keys.
func (c *CacheCoordinator) GetMany(ctx context.Context, keys []string) ([]string, error) {
	return c.store.GetMany(ctx, keys)
}

// SetMany writes all pairs in one batch, without expiry.
func (c *CacheCoordinator) SetMany(ctx context.Context, values map[string]string) error {
	return c.store.SetMany(ctx, values)
}

// Delete removes the keys.
func (c *CacheCoordinator) Delete(ctx context.Context, keys ...string) error {
	return c.store.Delete(ctx, keys...)
}

// Exists reports whether key is present.
func (c *CacheCoordinator) Exists(ctx context.Context, key string) (bool, error) {
	return c.store.Exists(ctx, key)
}

// GetData reads the value under key and decodes it with the coordinator's
// codec.
func (c *CacheCoordinator) GetData(ctx context.Context, key string) (any, bool, error) {
	raw, found, err := c.store.Get(ctx, key)
	if err != nil || !found || raw == "" {
		return nil, false, err
	}
	v, err := c.decodeValue(key, raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// SetData encodes v with the coordinator's codec and writes it under key.
func (c *CacheCoordinator) SetData(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := c.encodeValue(key, v)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, key, raw, ttl)
}

// HashGet returns one raw field of a hash-typed record.
func (c *CacheCoordinator) HashGet(ctx context.Context, key, field string) (string, bool, error) {
	return c.store.HashGet(ctx, key, field)
}

// HashGetMulti returns the requested raw fields that are present.
func (c *CacheCoordinator) HashGetMulti(ctx context.Context, key string, fields []string) (map[string]string, error) {
	return c.store.HashGetMulti(ctx, key, fields)
}

// HashGetAll returns every raw field of a record.
func (c *CacheCoordinator) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.store.HashGetAll(ctx, key)
}

// HashSet writes one raw field, refreshing the record's expiry in the same
// batch when ttl > 0.
func (c *CacheCoordinator) HashSet(ctx context.Context, key, field, val string, ttl time.Duration) error {
	return c.store.HashSet(ctx, key, field, val, ttl)
}

// HashSetAll writes all raw fields and the record's expiry as one batch.
func (c *CacheCoordinator) HashSetAll(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	return c.store.HashSetAll(ctx, key, fields, ttl)
}

// HashDelete removes fields from a record.
func (c *CacheCoordinator) HashDelete(ctx context.Context, key string, fields ...string) error {
	return c.store.HashDelete(ctx, key, fields...)
}

// HashExists reports whether the record has the field.
func (c *CacheCoordinator) HashExists(ctx context.Context, key, field string) (bool, error) {
	return c.store.HashExists(ctx, key, field)
}

// HashKeys returns the record's field names.
func (c *CacheCoordinator) HashKeys(ctx context.Context, key string) ([]string, error) {
	return c.store.HashKeys(ctx, key)
}

// HashValues returns the record's raw field values.
func (c *CacheCoordinator) HashValues(ctx context.Context, key string) ([]string, error) {
	return c.store.HashValues(ctx, key)
}

// GetRecord reads a structured-map record and decodes every field. An empty
// result means the record is absent.
func (c *CacheCoordinator) GetRecord(ctx context.Context, key string) (map[string]any, error) {
	raw, err := c.store.HashGetAll(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	return c.decodeFields(key, raw)
}

// SetRecord encodes each field of value independently and writes the record
// plus its expiry as one batch.
func (c *CacheCoordinator) SetRecord(ctx context.Context, key string, value map[string]any, ttl time.Duration) error {
	encoded, err := c.encodeFields(key, value)
	if err != nil {
		return err
	}
	return c.store.HashSetAll(ctx, key, encoded, ttl)
}
