// Package lock keeps two sync runs from working on the same store at once.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Name is the lock key shared by all sync runs.
const Name = "newssync:sync"

var (
	// ErrHeld is returned when another run owns the lock.
	ErrHeld = errors.New("another sync run holds the lock")
	// ErrLost is returned when a lease was taken over or expired before renewal.
	ErrLost = errors.New("run lock lost")
	// ErrEmptyAddress is returned when Redis address is not configured.
	ErrEmptyAddress = errors.New("redis address is required")
)

const (
	// connectionTimeout is the timeout for verifying Redis connection.
	connectionTimeout = 5 * time.Second
	// minRenewInterval bounds how often Keep renews a lease.
	minRenewInterval = 10 * time.Millisecond
)

// Locker is a single-holder lease. Acquire returns ErrHeld when another
// owner holds an unexpired lease; Release only drops the caller's own lease.
// Refresh extends the caller's lease by TTL and returns ErrLost when the
// caller no longer holds it.
type Locker interface {
	Acquire(ctx context.Context, owner string) error
	Refresh(ctx context.Context, owner string) error
	Release(ctx context.Context, owner string) error
	TTL() time.Duration
}

// Keep renews owner's lease every third of its TTL until stop is called.
// The returned context is cancelled with cause ErrLost once the lease is
// gone. Other renewal errors go to onError and renewal continues.
func Keep(ctx context.Context, l Locker, owner string, onError func(error)) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	if l.TTL() <= 0 {
		return ctx, func() { cancel(nil) }
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(max(l.TTL()/3, minRenewInterval))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			err := l.Refresh(ctx, owner)
			switch {
			case err == nil:
			case errors.Is(err, ErrLost):
				cancel(ErrLost)
				return
			case ctx.Err() != nil:
				return
			case onError != nil:
				onError(err)
			}
		}
	}()

	return ctx, func() {
		cancel(nil)
		<-done
	}
}

// releaseScript deletes the key only if it still carries the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// refreshScript extends the key's expiry only if it still carries the
// caller's token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// RedisLocker leases a key with SET NX PX.
type RedisLocker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(address, password string) (*redis.Client, error) {
	if address == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// NewRedisLocker creates a locker on key with the given lease duration.
func NewRedisLocker(client *redis.Client, key string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, owner string) error {
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquiring redis lock: %w", err)
	}
	if !ok {
		return ErrHeld
	}
	return nil
}

func (l *RedisLocker) Refresh(ctx context.Context, owner string) error {
	n, err := refreshScript.Run(ctx, l.client, []string{l.key}, owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refreshing redis lock: %w", err)
	}
	if n == 0 {
		return ErrLost
	}
	return nil
}

func (l *RedisLocker) TTL() time.Duration { return l.ttl }

func (l *RedisLocker) Release(ctx context.Context, owner string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, owner).Err(); err != nil {
		return fmt.Errorf("releasing redis lock: %w", err)
	}
	return nil
}

// Store is the lock table of the article database.
type Store interface {
	TryAcquireRunLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	RefreshRunLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseRunLock(ctx context.Context, name, owner string) error
}

// DBLocker leases a row in the run_locks table.
type DBLocker struct {
	store Store
	name  string
	ttl   time.Duration
}

// NewDBLocker creates a locker backed by the article store.
func NewDBLocker(store Store, name string, ttl time.Duration) *DBLocker {
	return &DBLocker{store: store, name: name, ttl: ttl}
}

func (l *DBLocker) Acquire(ctx context.Context, owner string) error {
	ok, err := l.store.TryAcquireRunLock(ctx, l.name, owner, l.ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrHeld
	}
	return nil
}

func (l *DBLocker) Refresh(ctx context.Context, owner string) error {
	ok, err := l.store.RefreshRunLock(ctx, l.name, owner, l.ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLost
	}
	return nil
}

func (l *DBLocker) TTL() time.Duration { return l.ttl }

func (l *DBLocker) Release(ctx context.Context, owner string) error {
	return l.store.ReleaseRunLock(ctx, l.name, owner)
}
