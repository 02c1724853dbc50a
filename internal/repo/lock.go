package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dealerhub/dealer-pricing/internal/validity"
	"github.com/google/uuid"
)

const (
	defaultLockTTL   = 10 * time.Second
	defaultLockRetry = 25 * time.Millisecond
)

// ErrScopeBusy is returned when a scope lock could not be taken within the lock TTL.
var ErrScopeBusy = errors.New("scope is locked by another writer")

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	LockKey(name string) string
}

// RedisLocker serializes scope writers across API instances with SETNX + TTL.
type RedisLocker struct {
	client lockStore
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker builds a locker whose keys are namespaced by prefix (the rule kind).
func NewRedisLocker(client lockStore, prefix string, ttl time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client required for scope lock")
	}
	if prefix == "" {
		return nil, errors.New("lock prefix is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl, retry: defaultLockRetry}, nil
}

func (l *RedisLocker) Lock(ctx context.Context, scope validity.ScopeKey) (func(), error) {
	key := l.client.LockKey(l.prefix + ":" + scope.Key())
	owner := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	for {
		ok, err := l.client.SetNX(waitCtx, key, owner, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("setnx %s: %w", key, err)
		}
		if ok {
			return func() { l.release(context.WithoutCancel(ctx), key, owner) }, nil
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrScopeBusy
		case <-time.After(l.retry):
		}
	}
}

// release deletes the key only while it still holds our owner token.
func (l *RedisLocker) release(ctx context.Context, key, owner string) {
	value, err := l.client.Get(ctx, key)
	if err != nil || value != owner {
		return
	}
	_ = l.client.Del(ctx, key)
}
