// Package lock serializes scheduling passes within one process or across
// every instance sharing a Redis server.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrHeld is returned when another holder owns the lock.
var ErrHeld = errors.New("lock is held by another pass")

// Release gives the lock back. It is safe to call more than once.
type Release func(ctx context.Context) error

// Locker hands out a single exclusive lock without waiting for it.
type Locker interface {
	TryAcquire(ctx context.Context) (Release, error)
}

// Local is an in-process Locker.
type Local struct {
	ch chan struct{}
}

func NewLocal() *Local {
	return &Local{ch: make(chan struct{}, 1)}
}

func (l *Local) TryAcquire(ctx context.Context) (Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case l.ch <- struct{}{}:
	default:
		return nil, ErrHeld
	}
	released := false
	return func(context.Context) error {
		if !released {
			released = true
			<-l.ch
		}
		return nil
	}, nil
}

// RedisConfig configures a Redis-backed Locker.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
	Lease    time.Duration
}

// Redis is a Locker backed by a Redis key holding the owner's token. The
// key expires after the lease so a crashed holder cannot block passes
// forever.
type Redis struct {
	client *redis.Client
	key    string
	lease  time.Duration
	logger zerolog.Logger
}

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

// NewRedis connects to Redis and verifies the connection.
func NewRedis(cfg RedisConfig, logger zerolog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info().Str("redis_addr", cfg.Addr).Str("key", cfg.Key).Msg("connected to Redis for pass locking")
	return newRedis(client, cfg, logger), nil
}

func newRedis(client *redis.Client, cfg RedisConfig, logger zerolog.Logger) *Redis {
	return &Redis{
		client: client,
		key:    cfg.Key,
		lease:  cfg.Lease,
		logger: logger.With().Str("component", "pass_lock").Logger(),
	}
}

func (r *Redis) TryAcquire(ctx context.Context) (Release, error) {
	token := uuid.New().String()
	ok, err := r.client.SetNX(ctx, r.key, token, r.lease).Result()
	if err != nil {
		return nil, fmt.Errorf("set lock: %w", err)
	}
	if !ok {
		holder, err := r.client.Get(ctx, r.key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("get lock holder: %w", err)
		}
		r.logger.Debug().Str("holder", holder).Msg("pass lock busy")
		return nil, ErrHeld
	}

	released := false
	return func(ctx context.Context) error {
		if released {
			return nil
		}
		released = true
		if err := r.client.Eval(ctx, releaseScript, []string{r.key}, token).Err(); err != nil {
			return fmt.Errorf("release lock: %w", err)
		}
		return nil
	}, nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
