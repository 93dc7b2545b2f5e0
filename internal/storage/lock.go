package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisLockPrefix = redisKeyPrefix + "lock:"

	DefaultLockTTL       = 2 * time.Minute
	DefaultLockHeartbeat = 20 * time.Second
)

// ErrLockNotAcquired is returned by Locker.Lock while another owner holds the lock
var ErrLockNotAcquired = errors.New("storage: lock held by another process")

// Locker is a named mutex shared by every process using the same store
type Locker interface {
	// Lock takes the lock or fails fast with ErrLockNotAcquired. The returned
	// unlock func is safe to call more than once.
	Lock(ctx context.Context, name string) (unlock func(context.Context) error, err error)
}

// NewLocker returns a cross-process locker for store. Stores that a single
// process owns exclusively return nil.
func NewLocker(store Store) Locker {
	if rs, ok := store.(*RedisStore); ok {
		return NewRedisLocker(rs.client, DefaultLockTTL, DefaultLockHeartbeat)
	}
	return nil
}

// Lua: only the owner may extend or delete its lock
const (
	extendScript = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0
	`
	releaseScript = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`
)

// RedisLocker implements Locker with SET NX plus a heartbeat that keeps the
// key alive while the holder runs. A crashed holder's lock expires after ttl.
type RedisLocker struct {
	client    *redis.Client
	owner     string
	ttl       time.Duration
	heartbeat time.Duration
}

// NewRedisLocker creates a locker. heartbeat should be well below ttl.
func NewRedisLocker(client *redis.Client, ttl, heartbeat time.Duration) *RedisLocker {
	return &RedisLocker{
		client:    client,
		owner:     uuid.NewString(),
		ttl:       ttl,
		heartbeat: heartbeat,
	}
}

// Lock implements Locker
func (l *RedisLocker) Lock(ctx context.Context, name string) (func(context.Context) error, error) {
	key := redisLockPrefix + name
	token := fmt.Sprintf("%s:%d", l.owner, time.Now().UnixNano())

	acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lock %q: %w", name, err)
	}
	if !acquired {
		return nil, ErrLockNotAcquired
	}

	hbCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.keepAlive(hbCtx, key, token)
	}()

	var once sync.Once
	var releaseErr error
	unlock := func(ctx context.Context) error {
		once.Do(func() {
			cancel()
			<-done
			err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err()
			if err != nil && !errors.Is(err, redis.Nil) {
				releaseErr = fmt.Errorf("redis unlock %q: %w", name, err)
			}
		})
		return releaseErr
	}
	return unlock, nil
}

func (l *RedisLocker) keepAlive(ctx context.Context, key, token string) {
	ticker := time.NewTicker(l.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.client.Eval(ctx, extendScript, []string{key}, token, l.ttl.Milliseconds()).Int()
			if err != nil || n == 0 {
				// lost the key; the next holder owns it now
				return
			}
		}
	}
}
