package redproxy

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/wanredis/redproxy/internal/mapsx"
)

// Store is the key-value capability surface the cache layer depends on.
// The coordinator, scoped entries, locks, memoizers and the HyperLogLog
// wrapper all speak to the store through this interface; atomicity of the
// individual operations and of pipelined batches is the store's guarantee,
// not re-implemented here.
//
// Absence is reported through found flags or empty maps, never as an error.
// All other failures are returned as *StoreError.
type Store interface {
	// Get returns the value under key. found is false when the key is absent.
	Get(ctx context.Context, key string) (val string, found bool, err error)
	// GetMany returns the values for keys in order, with "" for absent keys.
	GetMany(ctx context.Context, keys []string) ([]string, error)
	// Set writes val under key. A positive ttl bounds the value's lifetime,
	// rounded up to whole seconds; ttl <= 0 writes without expiry.
	Set(ctx context.Context, key, val string, ttl time.Duration) error
	// SetMany writes all key-value pairs in one MSET.
	SetMany(ctx context.Context, values map[string]string) error
	// SetIfNotExists writes val under key only if the key is absent and
	// reports whether the write happened.
	SetIfNotExists(ctx context.Context, key, val string) (bool, error)
	// Expire sets the key's lifetime, rounded up to whole seconds. A ttl <= 0
	// is the designated expire-immediately signal (safe-clear). Reports
	// whether the key existed.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Delete removes the keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// HashGet returns one field of a hash-typed record.
	HashGet(ctx context.Context, key, field string) (val string, found bool, err error)
	// HashGetMulti returns the requested fields that are present.
	HashGetMulti(ctx context.Context, key string, fields []string) (map[string]string, error)
	// HashGetAll returns every field of a hash-typed record; an empty map
	// means the record is absent.
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	// HashSet writes one field, with the record's expiry refreshed in the
	// same pipelined batch when ttl > 0.
	HashSet(ctx context.Context, key, field, val string, ttl time.Duration) error
	// HashSetAll writes every field and then the record's expiry as one
	// pipelined batch. Fields are written in sorted order.
	HashSetAll(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	// HashDelete removes fields from a record.
	HashDelete(ctx context.Context, key string, fields ...string) error
	// HashExists reports whether the record has the field.
	HashExists(ctx context.Context, key, field string) (bool, error)
	// HashKeys returns the record's field names.
	HashKeys(ctx context.Context, key string) ([]string, error)
	// HashValues returns the record's field values.
	HashValues(ctx context.Context, key string) ([]string, error)

	// PFAdd adds elements to a HyperLogLog and reports whether the
	// estimate changed.
	PFAdd(ctx context.Context, key string, elements []string) (bool, error)
	// PFCount returns the estimated cardinality of the union of the keys.
	PFCount(ctx context.Context, keys ...string) (int64, error)
	// PFMerge merges sources into dst.
	PFMerge(ctx context.Context, dst string, sources ...string) error
}

// redisStore implements Store over a rueidis client.
type redisStore struct {
	client rueidis.Client
}

var _ Store = (*redisStore)(nil)

func newRedisStore(client rueidis.Client) *redisStore {
	return &redisStore{client: client}
}

// ttlSeconds converts a positive ttl to whole seconds, rounding up so a
// sub-second ttl never truncates to zero. EXPIRE 0 deletes the key, which
// would silently destroy a value (or a just-acquired lock) the caller asked
// to keep.
func ttlSeconds(ttl time.Duration) int64 {
	return int64((ttl + time.Second - 1) / time.Second)
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if rueidis.IsRedisNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &StoreError{Op: "get", Key: key, Err: err}
	}
	return val, true, nil
}

func (s *redisStore) GetMany(ctx context.Context, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	msgs, err := s.client.Do(ctx, s.client.B().Mget().Key(keys...).Build()).ToArray()
	if err != nil {
		return nil, &StoreError{Op: "mget", Err: err}
	}
	vals := make([]string, len(keys))
	for i, msg := range msgs {
		val, err := msg.ToString()
		if rueidis.IsRedisNil(err) {
			continue
		}
		if err != nil {
			return nil, &StoreError{Op: "mget", Key: keys[i], Err: err}
		}
		vals[i] = val
	}
	return vals, nil
}

func (s *redisStore) Set(ctx context.Context, key, val string, ttl time.Duration) error {
	var cmd rueidis.Completed
	if ttl > 0 {
		cmd = s.client.B().Set().Key(key).Value(val).Ex(time.Duration(ttlSeconds(ttl)) * time.Second).Build()
	} else {
		cmd = s.client.B().Set().Key(key).Value(val).Build()
	}
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return &StoreError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (s *redisStore) SetMany(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return ErrNoKeys
	}
	kv := s.client.B().Mset().KeyValue()
	for _, k := range mapsx.SortedKeys(values) {
		kv = kv.KeyValue(k, values[k])
	}
	if err := s.client.Do(ctx, kv.Build()).Error(); err != nil {
		return &StoreError{Op: "mset", Err: err}
	}
	return nil
}

func (s *redisStore) SetIfNotExists(ctx context.Context, key, val string) (bool, error) {
	err := s.client.Do(ctx, s.client.B().Set().Key(key).Value(val).Nx().Build()).Error()
	if rueidis.IsRedisNil(err) {
		// Key already exists; SET NX returned no reply.
		return false, nil
	}
	if err != nil {
		return false, &StoreError{Op: "setnx", Key: key, Err: err}
	}
	return true, nil
}

func (s *redisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	secs := ttlSeconds(ttl)
	if ttl <= 0 {
		// Expire-immediately signal: the store removes the key right away.
		secs = -1
	}
	n, err := s.client.Do(ctx, s.client.B().Expire().Key(key).Seconds(secs).Build()).AsInt64()
	if err != nil {
		return false, &StoreError{Op: "expire", Key: key, Err: err}
	}
	return n > 0, nil
}

func (s *redisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return ErrNoKeys
	}
	if err := s.client.Do(ctx, s.client.B().Del().Key(keys...).Build()).Error(); err != nil {
		return &StoreError{Op: "del", Err: err}
	}
	return nil
}

func (s *redisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Do(ctx, s.client.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return false, &StoreError{Op: "exists", Key: key, Err: err}
	}
	return n > 0, nil
}

func (s *redisStore) HashGet(ctx context.Context, key, field string) (string, bool, error) {
	val, err := s.client.Do(ctx, s.client.B().Hget().Key(key).Field(field).Build()).ToString()
	if rueidis.IsRedisNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &StoreError{Op: "hget", Key: key, Err: err}
	}
	return val, true, nil
}

func (s *redisStore) HashGetMulti(ctx context.Context, key string, fields []string) (map[string]string, error) {
	if len(fields) == 0 {
		return nil, ErrNoKeys
	}
	msgs, err := s.client.Do(ctx, s.client.B().Hmget().Key(key).Field(fields...).Build()).ToArray()
	if err != nil {
		return nil, &StoreError{Op: "hmget", Key: key, Err: err}
	}
	res := make(map[string]string, len(fields))
	for i, msg := range msgs {
		val, err := msg.ToString()
		if rueidis.IsRedisNil(err) {
			continue
		}
		if err != nil {
			return nil, &StoreError{Op: "hmget", Key: key, Err: err}
		}
		res[fields[i]] = val
	}
	return res, nil
}

func (s *redisStore) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	res, err := s.client.Do(ctx, s.client.B().Hgetall().Key(key).Build()).AsStrMap()
	if err != nil {
		return nil, &StoreError{Op: "hgetall", Key: key, Err: err}
	}
	return res, nil
}

func (s *redisStore) HashSet(ctx context.Context, key, field, val string, ttl time.Duration) error {
	return s.HashSetAll(ctx, key, map[string]string{field: val}, ttl)
}

func (s *redisStore) HashSetAll(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if len(fields) == 0 {
		return ErrNoKeys
	}
	fv := s.client.B().Hset().Key(key).FieldValue()
	for _, f := range mapsx.SortedKeys(fields) {
		fv = fv.FieldValue(f, fields[f])
	}
	cmds := rueidis.Commands{fv.Build()}
	if ttl > 0 {
		cmds = append(cmds, s.client.B().Expire().Key(key).Seconds(ttlSeconds(ttl)).Build())
	}
	// One pipelined batch: all fields, then the record-level expiry.
	for _, resp := range s.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return &StoreError{Op: "hset", Key: key, Err: err}
		}
	}
	return nil
}

func (s *redisStore) HashDelete(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return ErrNoKeys
	}
	if err := s.client.Do(ctx, s.client.B().Hdel().Key(key).Field(fields...).Build()).Error(); err != nil {
		return &StoreError{Op: "hdel", Key: key, Err: err}
	}
	return nil
}

func (s *redisStore) HashExists(ctx context.Context, key, field string) (bool, error) {
	n, err := s.client.Do(ctx, s.client.B().Hexists().Key(key).Field(field).Build()).AsInt64()
	if err != nil {
		return false, &StoreError{Op: "hexists", Key: key, Err: err}
	}
	return n > 0, nil
}

func (s *redisStore) HashKeys(ctx context.Context, key string) ([]string, error) {
	res, err := s.client.Do(ctx, s.client.B().Hkeys().Key(key).Build()).AsStrSlice()
	if err != nil {
		return nil, &StoreError{Op: "hkeys", Key: key, Err: err}
	}
	return res, nil
}

func (s *redisStore) HashValues(ctx context.Context, key string) ([]string, error) {
	res, err := s.client.Do(ctx, s.client.B().Hvals().Key(key).Build()).AsStrSlice()
	if err != nil {
		return nil, &StoreError{Op: "hvals", Key: key, Err: err}
	}
	return res, nil
}

func (s *redisStore) PFAdd(ctx context.Context, key string, elements []string) (bool, error) {
	n, err := s.client.Do(ctx, s.client.B().Pfadd().Key(key).Element(elements...).Build()).AsInt64()
	if err != nil {
		return false, &StoreError{Op: "pfadd", Key: key, Err: err}
	}
	return n > 0, nil
}

func (s *redisStore) PFCount(ctx context.Context, keys ...string) (int64, error) {
	n, err := s.client.Do(ctx, s.client.B().Pfcount().Key(keys...).Build()).AsInt64()
	if err != nil {
		return 0, &StoreError{Op: "pfcount", Err: err}
	}
	return n, nil
}

func (s *redisStore) PFMerge(ctx context.Context, dst string, sources ...string) error {
	if err := s.client.Do(ctx, s.client.B().Pfmerge().Destkey(dst).Sourcekey(sources...).Build()).Error(); err != nil {
		return &StoreError{Op: "pfmerge", Key: dst, Err: err}
	}
	return nil
}
