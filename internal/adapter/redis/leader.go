package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var renewLease = goredis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	end
	return 0
`)

var releaseLease = goredis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// LeaderLease is a single-key lease: the instance that set the key leads
// until it stops renewing and the key expires.
type LeaderLease struct {
	rdb        goredis.Cmdable
	key        string
	instanceID string
	ttl        time.Duration
}

// NewLeaderLease returns a lease named job. instanceID must be unique per
// process (e.g. hostname-pid).
func NewLeaderLease(rdb goredis.Cmdable, job, instanceID string, ttl time.Duration) *LeaderLease {
	return &LeaderLease{rdb: rdb, key: "leader:" + job, instanceID: instanceID, ttl: ttl}
}

// Acquire takes the lease if it is free and renews it if this instance
// already holds it.
func (l *LeaderLease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.instanceID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire leader lease: %w", err)
	}
	if ok {
		return true, nil
	}

	renewed, err := renewLease.Run(ctx, l.rdb, []string{l.key}, l.instanceID, l.ttl.Milliseconds()).Int()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return false, fmt.Errorf("failed to renew leader lease: %w", err)
	}
	return renewed == 1, nil
}

// Release drops the lease if this instance still holds it.
func (l *LeaderLease) Release(ctx context.Context) error {
	if err := releaseLease.Run(ctx, l.rdb, []string{l.key}, l.instanceID).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("failed to release leader lease: %w", err)
	}
	return nil
}
