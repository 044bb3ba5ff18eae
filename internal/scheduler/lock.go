package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultLockKey guards the worker of daemons sharing one Redis state
const DefaultLockKey = "autoplay:instance_lock"

// ErrLockLost is reported when the lock expired or was taken over
var ErrLockLost = errors.New("instance lock no longer owned")

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// InstanceLock makes sure only one daemon runs a worker against a shared
// Redis state at a time
type InstanceLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// AcquireLock tries to take the lock. It returns nil and no error when
// another instance holds it.
func AcquireLock(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*InstanceLock, error) {
	if key == "" {
		key = DefaultLockKey
	}
	token := uuid.New().String()

	acquired, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return nil, nil
	}

	return &InstanceLock{
		client: client,
		key:    key,
		token:  token,
		ttl:    ttl,
	}, nil
}

// Release deletes the lock if this instance still owns it
func (l *InstanceLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

// Extend resets the lock TTL. It returns ErrLockLost when the lock is owned
// by someone else or has expired.
func (l *InstanceLock) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}
	if n == 0 {
		return ErrLockLost
	}
	l.ttl = ttl
	return nil
}

// KeepAlive extends the lock every third of its TTL until ctx is done. If an
// extension fails, onLost is called once and KeepAlive returns. Run it in its
// own goroutine.
func (l *InstanceLock) KeepAlive(ctx context.Context, onLost func(error)) {
	interval := l.ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Extend(ctx, l.ttl); err != nil {
				if ctx.Err() != nil {
					return
				}
				if onLost != nil {
					onLost(err)
				}
				return
			}
		}
	}
}

// Key returns the Redis key for this lock
func (l *InstanceLock) Key() string {
	return l.key
}

// Token returns the lock token
func (l *InstanceLock) Token() string {
	return l.token
}

// TTL returns the lock time-to-live
func (l *InstanceLock) TTL() time.Duration {
	return l.ttl
}
