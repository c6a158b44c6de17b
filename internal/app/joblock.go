/**
 * @description
 * Best-effort distributed lock for scheduled jobs, backed by Redis SET NX.
 * The jobs themselves are idempotent (conditional claims, resolved rows are
 * never re-selected), so the lock only exists to avoid wasted overlapping
 * work; when Redis is unavailable the job runs anyway.
 */
package app

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// JobLock guards a named job against overlapping runs.
type JobLock interface {
	// Acquire returns a release func and whether the lock was obtained.
	Acquire(ctx context.Context, job string, ttl time.Duration) (func(), bool)
}

// RedisJobLock implements JobLock with SET NX PX and a compare-and-delete
// release.
type RedisJobLock struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisJobLock creates a Redis-backed job lock.
func NewRedisJobLock(client redis.UniversalClient, prefix string) *RedisJobLock {
	if prefix == "" {
		prefix = "koji:payout:job_lock"
	}
	return &RedisJobLock{client: client, prefix: prefix}
}

// Acquire attempts to take the lock for a job. Errors degrade to acquired:
// the lock is an optimization, not a correctness requirement.
func (l *RedisJobLock) Acquire(ctx context.Context, job string, ttl time.Duration) (func(), bool) {
	if l == nil || l.client == nil {
		return func() {}, true
	}

	key := l.prefix + ":" + job
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		log.Printf("WARN: job lock unavailable for %s, running unguarded: %v", job, err)
		return func() {}, true
	}
	if !ok {
		return func() {}, false
	}

	release := func() {
		if _, err := releaseLockScript.Run(ctx, l.client, []string{key}, token).Result(); err != nil {
			log.Printf("WARN: failed to release job lock %s: %v", job, err)
		}
	}
	return release, true
}
