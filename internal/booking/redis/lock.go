// Package redis holds the per-event admission lock. Booking creation
// serializes admission-check plus commit for the same event through this
// lock, which closes the read-then-write capacity race across service
// instances.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Lock struct {
	Client *redis.Client
	// TTL bounds how long a crashed holder can block an event.
	TTL time.Duration
	// Wait bounds how long an acquirer polls before giving up.
	Wait time.Duration
}

func NewLock(client *redis.Client, ttl, wait time.Duration) *Lock {
	return &Lock{Client: client, TTL: ttl, Wait: wait}
}

func lockKey(eventID string) string {
	return "registration_lock:event:" + eventID
}

// AcquireEventLock tries once to take the event lock. The token identifies
// the holder so only the owner can release it.
func (l *Lock) AcquireEventLock(ctx context.Context, eventID, token string) (bool, error) {
	return l.Client.SetNX(ctx, lockKey(eventID), token, l.TTL).Result()
}

// WaitEventLock polls AcquireEventLock until it succeeds or the wait budget
// runs out.
func (l *Lock) WaitEventLock(ctx context.Context, eventID, token string) (bool, error) {
	deadline := time.Now().Add(l.Wait)
	for {
		ok, err := l.AcquireEventLock(ctx, eventID, token)
		if err != nil {
			return false, fmt.Errorf("acquire event lock: %w", err)
		}
		if ok {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
}

// ReleaseEventLock deletes the lock only if the caller still owns it; an
// expired-and-reacquired lock is left alone.
func (l *Lock) ReleaseEventLock(ctx context.Context, eventID, token string) error {
	key := lockKey(eventID)
	val, err := l.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val == token {
		_, err = l.Client.Del(ctx, key).Result()
	}
	return err
}
