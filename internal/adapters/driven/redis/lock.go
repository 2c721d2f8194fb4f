package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DistributedLock = (*Lock)(nil)

// DefaultLockPrefix namespaces lock keys in a shared Redis.
const DefaultLockPrefix = "sercha-sync:lock:"

// Lock implements DistributedLock with SET NX and a TTL. Each Lock has an
// owner ID so one instance can never release or extend another's lock.
// The scheduler takes the "scheduler" lock per cycle and the worker takes
// "job:<id>" for each invocation.
type Lock struct {
	client  redis.UniversalClient
	prefix  string
	ownerID string
}

// LockOption configures a Lock
type LockOption func(*Lock)

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) LockOption {
	return func(l *Lock) { l.prefix = prefix }
}

// WithOwnerID overrides the generated owner ID.
func WithOwnerID(ownerID string) LockOption {
	return func(l *Lock) { l.ownerID = ownerID }
}

// NewLock creates a Redis-backed distributed lock.
func NewLock(client redis.UniversalClient, opts ...LockOption) *Lock {
	l := &Lock{
		client:  client,
		prefix:  DefaultLockPrefix,
		ownerID: generateOwnerID(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// generateOwnerID identifies this process: hostname:pid:uuid
func generateOwnerID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), uuid.NewString())
}

// Acquire takes the lock for ttl. It returns false when someone else,
// including this same instance, already holds it.
func (l *Lock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	acquired, err := l.client.SetNX(ctx, l.prefix+name, l.ownerID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return acquired, nil
}

// releaseScript deletes the key only if this owner still holds it.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Release drops the lock if this instance holds it. Releasing an expired or
// foreign lock is a no-op.
func (l *Lock) Release(ctx context.Context, name string) error {
	_, err := releaseScript.Run(ctx, l.client, []string{l.prefix + name}, l.ownerID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

// extendScript resets the TTL only if this owner still holds the key.
var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Extend pushes out the expiry of a lock this instance holds.
func (l *Lock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	result, err := extendScript.Run(ctx, l.client, []string{l.prefix + name}, l.ownerID, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", name, err)
	}
	if result == 0 {
		return fmt.Errorf("lock %s not held by this instance", name)
	}
	return nil
}

// Ping checks if the Redis backend is healthy.
func (l *Lock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// OwnerID returns the identifier stored in held lock keys.
func (l *Lock) OwnerID() string {
	return l.ownerID
}
