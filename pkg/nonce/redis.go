package nonce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
)

// releaseLockScript deletes the lock only if it is still held by the caller.
// KEYS[1] = lock key
// ARGV[1] = owner token
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// commitScript advances the next-nonce key and drops the lock in one step,
// provided the caller still owns the lock.
// KEYS[1] = lock key, KEYS[2] = next nonce key
// ARGV[1] = owner token, ARGV[2] = next nonce, ARGV[3] = next nonce ttl (ms)
var commitScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
    return 0
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
redis.call("DEL", KEYS[1])
return 1
`)

// ErrLockLost is returned by Commit when the lock expired before the lease ended.
var ErrLockLost = errors.New("nonce lock expired before commit")

// Redis is a Manager shared by every process pointed at the same Redis.
type Redis struct {
	client  redis.UniversalClient
	source  Source
	prefix  string
	lockTTL time.Duration
	nextTTL time.Duration
	poll    time.Duration
}

var _ Manager = (*Redis)(nil)

type RedisOption func(*Redis)

// WithLockTTL bounds how long a crashed holder can block other processes.
// It must exceed the time needed to sign and broadcast.
func WithLockTTL(d time.Duration) RedisOption { return func(r *Redis) { r.lockTTL = d } }

// WithKeyPrefix namespaces the keys.
func WithKeyPrefix(p string) RedisOption { return func(r *Redis) { r.prefix = p } }

func NewRedis(client redis.UniversalClient, source Source, opts ...RedisOption) *Redis {
	r := &Redis{
		client:  client,
		source:  source,
		prefix:  "anchorchain:nonce",
		lockTTL: 2 * time.Minute,
		nextTTL: 24 * time.Hour,
		poll:    50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRedisClient creates a client for addr.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (r *Redis) keys(sender common.Address) (lock, next string) {
	return fmt.Sprintf("%s:lock:%s", r.prefix, sender.Hex()), fmt.Sprintf("%s:next:%s", r.prefix, sender.Hex())
}

func (r *Redis) Acquire(ctx context.Context, sender common.Address) (*Lease, error) {
	const op = "nonce.acquire"
	lockKey, nextKey := r.keys(sender)
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, lockKey, token, r.lockTTL).Result()
		if err != nil {
			return nil, contracts.E(contracts.KindNetworkUnavailable, op, fmt.Errorf("redis nonce lock: %w", err))
		}
		if ok {
			break
		}
		t := time.NewTimer(r.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, contracts.E(contracts.KindNetworkUnavailable, op, ctx.Err())
		case <-t.C:
		}
	}

	unlock := func() error {
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return releaseLockScript.Run(bg, r.client, []string{lockKey}, token).Err()
	}

	n, err := lookup(ctx, r.source, sender)
	if err != nil {
		_ = unlock()
		return nil, err
	}
	cached, err := r.client.Get(ctx, nextKey).Uint64()
	switch {
	case err == nil:
		if cached > n {
			n = cached
		}
	case errors.Is(err, redis.Nil):
	default:
		_ = unlock()
		return nil, contracts.E(contracts.KindNetworkUnavailable, op, fmt.Errorf("redis nonce read: %w", err))
	}

	return &Lease{
		sender: sender,
		nonce:  n,
		commit: func() error {
			bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			res, err := commitScript.Run(bg, r.client, []string{lockKey, nextKey}, token, n+1, r.nextTTL.Milliseconds()).Int64()
			if err != nil {
				return fmt.Errorf("redis nonce commit: %w", err)
			}
			if res != 1 {
				return ErrLockLost
			}
			return nil
		},
		release: func() error {
			bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := r.client.Del(bg, nextKey).Err(); err != nil {
				_ = unlock()
				return fmt.Errorf("redis nonce reset: %w", err)
			}
			return unlock()
		},
	}, nil
}
