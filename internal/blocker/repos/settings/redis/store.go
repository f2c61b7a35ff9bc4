// Package redis keeps the settings record in a Redis hash so that several
// daemons can share one synced copy.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/haukened/distraction-block/internal/blocker/common/clock"
	"github.com/haukened/distraction-block/internal/blocker/domain"
	"github.com/haukened/distraction-block/internal/blocker/repos/settings"
)

const defaultPrefix = "distraction-block"

// Options configure the Redis store.
type Options struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces the hash key: <prefix>:settings.
	Prefix string
	Clock  clock.Clock
}

type redisStore struct {
	client *goredis.Client
	key    string
	clock  clock.Clock
}

// Key returns the hash key used for prefix.
func Key(prefix string) string {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return prefix + ":settings"
}

// New connects to Redis and verifies the server answers.
func New(ctx context.Context, opts Options) (settings.Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return NewWithClient(client, opts.Prefix, opts.Clock), nil
}

// NewWithClient wraps an existing client. Close closes the client.
func NewWithClient(client *goredis.Client, prefix string, clk clock.Clock) settings.Store {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &redisStore{client: client, key: Key(prefix), clock: clk}
}

func (s *redisStore) Load(ctx context.Context) (domain.Settings, error) {
	vals, err := s.client.HMGet(ctx, s.key, settings.KeyBlockedSites, settings.KeyIsBlocking).Result()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("redis load: %w", err)
	}
	return settings.Decode(field(vals, 0), field(vals, 1))
}

// field returns the raw bytes of an HMGET slot, nil when the field is absent.
func field(vals []any, i int) []byte {
	if i >= len(vals) || vals[i] == nil {
		return nil
	}
	if s, ok := vals[i].(string); ok {
		return []byte(s)
	}
	return nil
}

// Save writes every field with a single HSET, which Redis applies atomically.
func (s *redisStore) Save(ctx context.Context, st domain.Settings) error {
	sites, flag, err := settings.Encode(st)
	if err != nil {
		return err
	}
	err = s.client.HSet(ctx, s.key,
		settings.KeyBlockedSites, string(sites),
		settings.KeyIsBlocking, string(flag),
		settings.KeyUpdated, strconv.FormatInt(s.clock.Now().Unix(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("redis save: %w", err)
	}
	return nil
}

func (s *redisStore) Updated(ctx context.Context) (time.Time, error) {
	v, err := s.client.HGet(ctx, s.key, settings.KeyUpdated).Result()
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("redis updated: %w", err)
	}
	unix, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("redis updated: %w", err)
	}
	return time.Unix(unix, 0), nil
}

func (s *redisStore) Close() error { return s.client.Close() }

var (
	_ settings.Store       = (*redisStore)(nil)
	_ settings.Timestamped = (*redisStore)(nil)
)
