package redproxy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wanredis/redproxy/codec"
	"github.com/wanredis/redproxy/internal/sentinel"
)

// testLogger routes coordinator logs through the test log and optionally
// fails the test on unexpected error-level output.
type testLogger struct {
	t           *testing.T
	allowErrors bool
}

func (l *testLogger) Error(msg string, args ...any) {
	l.t.Helper()
	if l.allowErrors {
		l.t.Logf("ERROR: %s %v", msg, args)
		return
	}
	l.t.Errorf("unexpected error log: %s %v", msg, args)
}

func (l *testLogger) Debug(msg string, args ...any) {
	l.t.Helper()
	l.t.Logf("DEBUG: %s %v", msg, args)
}

// newTestCoordinator builds a coordinator directly around a Store, bypassing
// the client layer. Used by protocol tests that script the store.
func newTestCoordinator(t *testing.T, s Store) *CacheCoordinator {
	return &CacheCoordinator{
		store:          s,
		codec:          codec.JSON{},
		policy:         SerializationStrict,
		logger:         &testLogger{t: t},
		defaultTTL:     DefaultTTL,
		cleanupTimeout: time.Second,
		sentinels:      sentinel.NewGenerator(),
	}
}

// memStore is an in-memory Store used for concurrency tests, where scripting
// a mock per round trip is impractical. Only the operations the lock
// protocol and scoped entries touch are implemented; the embedded nil Store
// panics on anything else, which is the point.
type memStore struct {
	Store

	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (s *memStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.data[key]
	return val, ok, nil
}

func (s *memStore) Set(_ context.Context, key, val string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = val
	return nil
}

func (s *memStore) SetIfNotExists(_ context.Context, key, val string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = val
	return true, nil
}

func (s *memStore) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	if ttl <= 0 {
		delete(s.data, key)
	}
	// Positive TTLs are accepted but not enforced; these tests release
	// explicitly rather than waiting out expiries.
	return ok, nil
}
