package redproxy

import (
	"context"
	"fmt"
	"time"

	"github.com/wanredis/redproxy/internal/contextx"
)

// LockKeyPrefix is prepended to every lock name to form its store key.
const LockKeyPrefix = "lock:"

// DefaultLockPollInterval is the fixed delay between acquisition attempts
// while another holder has the lock.
const DefaultLockPollInterval = 30 * time.Millisecond

// LockOptions configures a DistributedLock. All fields are optional.
type LockOptions struct {
	// TTL is the lock's auto-expiry, bounding how long a crashed holder can
	// block others. Defaults to the coordinator's DefaultTTL. If the
	// critical section outlives the TTL, a second holder can enter; size it
	// above the section's worst case.
	TTL time.Duration

	// PollInterval is the fixed delay between acquisition attempts.
	// Fixed-interval polling is deliberate: no backoff, predictable load.
	// Defaults to DefaultLockPollInterval (30ms).
	PollInterval time.Duration

	// MaxWait bounds how long Acquire waits for the lock to become free.
	// Zero means wait indefinitely, which is the default and matches the
	// protocol's original behavior; bound it to trade starvation for
	// ErrLockWaitTimeout under contention.
	MaxWait time.Duration
}

// DistributedLock is a polling-based mutual-exclusion lock keyed by name.
// At most one in-flight holder per name holds the lock at any point,
// provided all participants honor the acquire/release protocol and the
// store is linearizable for SETNX/EXPIRE.
//
// A DistributedLock is created per critical section and owned by one
// goroutine; it is not safe for concurrent use, and re-entrant acquisition
// is not supported.
type DistributedLock struct {
	coord *CacheCoordinator
	name  string
	key   string

	ttl     time.Duration
	poll    time.Duration
	maxWait time.Duration

	sentinelVal string
	held        bool
}

// NewLock creates a lock for name. The store key is LockKeyPrefix + name.
func (c *CacheCoordinator) NewLock(name string, opts LockOptions) (*DistributedLock, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: lock name must not be empty", ErrConfiguration)
	}
	ttl, err := c.resolveTTL(opts.TTL)
	if err != nil {
		return nil, err
	}
	if opts.PollInterval < 0 {
		return nil, fmt.Errorf("%w: PollInterval must not be negative", ErrConfiguration)
	}
	if opts.MaxWait < 0 {
		return nil, fmt.Errorf("%w: MaxWait must not be negative", ErrConfiguration)
	}
	poll := opts.PollInterval
	if poll == 0 {
		poll = DefaultLockPollInterval
	}
	return &DistributedLock{
		coord:   c,
		name:    name,
		key:     LockKeyPrefix + name,
		ttl:     ttl,
		poll:    poll,
		maxWait: opts.MaxWait,
	}, nil
}

// Acquire blocks until the lock is held, the context is cancelled, or
// MaxWait elapses. The protocol is: read the key; if present, sleep one
// PollInterval and retry; if absent, claim it with a set-if-not-exists and
// arm the TTL. Losing the SETNX race retries immediately without sleeping.
//
// Store errors abort the attempt without internal retry. Cancellation while
// polling leaves no side effect. A crash (or cancellation) between the
// winning SETNX and the EXPIRE leaves a lock key with no expiry, which never
// self-heals; this pair is deliberately not atomic.
func (l *DistributedLock) Acquire(ctx context.Context) error {
	if l.held {
		return fmt.Errorf("lock %q: %w", l.name, ErrLockHeld)
	}

	var maxWaitC <-chan time.Time
	if l.maxWait > 0 {
		waitTimer := time.NewTimer(l.maxWait)
		defer waitTimer.Stop()
		maxWaitC = waitTimer.C
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		val, found, err := l.coord.store.Get(ctx, l.key)
		if err != nil {
			return err
		}
		if found && val != "" {
			// Someone holds it; fixed-interval poll, no attempt bound.
			l.coord.logger.Debug("lock busy, polling", "name", l.name)
			poll := time.NewTimer(l.poll)
			select {
			case <-poll.C:
				continue
			case <-maxWaitC:
				poll.Stop()
				return fmt.Errorf("lock %q after %s: %w", l.name, l.maxWait, ErrLockWaitTimeout)
			case <-ctx.Done():
				poll.Stop()
				return ctx.Err()
			}
		}

		sent := l.coord.sentinels.Next()
		won, err := l.coord.store.SetIfNotExists(ctx, l.key, sent)
		if err != nil {
			return err
		}
		if !won {
			// A racing acquirer got there first; re-read without sleeping.
			l.coord.logger.Debug("lock race lost, retrying", "name", l.name)
			continue
		}

		if _, err := l.coord.store.Expire(ctx, l.key, l.ttl); err != nil {
			// The key is set but unexpiring now; same gap as a crash here.
			l.coord.logger.Error("failed to arm lock TTL", "name", l.name, "error", err)
			return err
		}

		l.sentinelVal = sent
		l.held = true
		l.coord.logger.Debug("lock acquired", "name", l.name, "sentinel", sent)
		return nil
	}
}

// Release clears the lock by marking the key immediately expired rather than
// deleting it: the safe-clear path tolerates the key having already vanished,
// so releasing an already-released or never-acquired lock is not an error.
// Release runs on a cleanup context that survives cancellation of ctx.
func (l *DistributedLock) Release(ctx context.Context) error {
	cctx, cancel := contextx.WithCleanupTimeout(ctx, l.coord.cleanupTimeout)
	defer cancel()

	_, err := l.coord.store.Expire(cctx, l.key, 0)
	l.held = false
	l.sentinelVal = ""
	if err != nil {
		return err
	}
	l.coord.logger.Debug("lock released", "name", l.name)
	return nil
}

// Held reports whether this instance currently holds the lock. It turns true
// on successful Acquire and false on Release; it does not observe expiry by
// the store.
func (l *DistributedLock) Held() bool { return l.held }

// Name returns the lock's name (without the store key prefix).
func (l *DistributedLock) Name() string { return l.name }

// WithLock acquires the named lock, runs fn, and releases the lock on every
// exit path. A release failure is logged, not returned; the TTL is the
// backstop.
func (c *CacheCoordinator) WithLock(ctx context.Context, name string, opts LockOptions, fn func(ctx context.Context) error) error {
	l, err := c.NewLock(name, opts)
	if err != nil {
		return err
	}
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		if rerr := l.Release(ctx); rerr != nil {
			c.logger.Error("failed to release lock", "name", name, "error", rerr)
		}
	}()
	return fn(ctx)
}

// CheckLock reports whether any holder currently has the named lock.
func (c *CacheCoordinator) CheckLock(ctx context.Context, name string) (bool, error) {
	val, found, err := c.store.Get(ctx, LockKeyPrefix+name)
	if err != nil {
		return false, err
	}
	return found && val != "", nil
}
