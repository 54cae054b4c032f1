// Package redis implements the key-value connection manager on top of go-redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nimburion/servicekit/pkg/observability/logger"
	"github.com/nimburion/servicekit/pkg/store"
)

// ErrKeyNotFound is returned by Get for a missing key.
var ErrKeyNotFound = errors.New("key not found")

// Config holds client settings that are not part of the discovered parameters.
type Config struct {
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
}

// Adapter provides Redis connectivity with connection pooling
type Adapter struct {
	params store.Params
	config Config
	logger logger.Logger

	mu     sync.RWMutex
	client *redis.Client
}

// NewAdapter creates a Redis adapter. No connection is made until Connect.
func NewAdapter(params store.Params, cfg Config, log logger.Logger) (*Adapter, error) {
	if params.Kind() != store.KindKeyValue {
		return nil, fmt.Errorf("redis adapter requires key-value params, got %s", params.Kind())
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis params: %w", err)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 3 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Adapter{
		params: params,
		config: cfg,
		logger: log.With("backend", params.Kind().Alias()),
	}, nil
}

// Name returns the registry key of the adapter.
func (a *Adapter) Name() string { return a.params.Kind().Alias() }

// Kind returns store.KindKeyValue.
func (a *Adapter) Kind() store.Kind { return store.KindKeyValue }

// Params returns the parameters the adapter was built from.
func (a *Adapter) Params() store.Params { return a.params }

// DB returns the logical database index. Redis databases are numbered, so a
// non-numeric database name selects database 0.
func (a *Adapter) DB() int {
	n, err := strconv.Atoi(a.params.Database())
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// BuildURI renders redis://[user][:password@]host:port/db.
func (a *Adapter) BuildURI() string {
	userinfo := store.DefaultUserinfo(a.params)
	if userinfo == nil && a.params.Password() != "" {
		userinfo = url.UserPassword("", a.params.Password())
	}
	return store.BuildURI(a.params.Kind().Scheme(), userinfo, a.params, strconv.Itoa(a.DB()))
}

// Connect creates the pooled client and verifies it with PING.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return nil
	}

	opts, err := redis.ParseURL(a.BuildURI())
	if err != nil {
		return &store.ConnectionError{Backend: a.Name(), Err: fmt.Errorf("failed to parse redis URL: %w", err)}
	}

	opts.PoolSize = a.params.MaxPoolSize()
	opts.MinIdleConns = a.params.MinPoolSize()
	opts.ConnMaxIdleTime = a.params.IdleTimeout()
	opts.DialTimeout = a.config.ConnectTimeout
	opts.ReadTimeout = a.config.OperationTimeout
	opts.WriteTimeout = a.config.OperationTimeout

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, a.config.ConnectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return &store.ConnectionError{Backend: a.Name(), Err: fmt.Errorf("failed to ping redis: %w", err)}
	}

	a.client = client
	a.logger.Info("Redis connection established",
		"address", a.params.Address(),
		"db", a.DB(),
		"pool_size", opts.PoolSize,
		"operation_timeout", a.config.OperationTimeout,
	)
	return nil
}

// Close gracefully closes the Redis connection pool. Calling it when not connected is a no-op.
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	client := a.client
	a.client = nil
	a.mu.Unlock()

	if client == nil {
		return nil
	}

	if err := client.Close(); err != nil {
		a.logger.Error("failed to close Redis connection", "error", err)
		return &store.CloseError{Backend: a.Name(), Err: err}
	}
	a.logger.Info("Redis connection closed")
	return nil
}

// Connected reports whether the client is open.
func (a *Adapter) Connected() bool {
	return a.Client() != nil
}

// Client returns the underlying *redis.Client, nil when not connected.
func (a *Adapter) Client() *redis.Client {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.client
}

// HealthCheck verifies the Redis connection is healthy with a timeout
func (a *Adapter) HealthCheck(ctx context.Context) error {
	client := a.Client()
	if client == nil {
		return fmt.Errorf("redis health check failed: %w", store.ErrNotConnected)
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		a.logger.Error("Redis health check failed", "error", err)
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func (a *Adapter) ensure(ctx context.Context) (*redis.Client, error) {
	if client := a.Client(); client != nil {
		return client, nil
	}
	if err := a.Connect(ctx); err != nil {
		return nil, err
	}
	if client := a.Client(); client != nil {
		return client, nil
	}
	return nil, &store.ConnectionError{Backend: a.Name(), Err: store.ErrNotConnected}
}

// Get retrieves a value by key. A missing key yields ErrKeyNotFound.
func (a *Adapter) Get(ctx context.Context, key string) (string, error) {
	client, err := a.ensure(ctx)
	if err != nil {
		return "", err
	}
	val, err := client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, nil
}

// Set stores a key-value pair. A zero ttl means no expiration.
func (a *Adapter) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	client, err := a.ensure(ctx)
	if err != nil {
		return err
	}
	if err := client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Delete removes keys and returns how many existed.
func (a *Adapter) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	client, err := a.ensure(ctx)
	if err != nil {
		return 0, err
	}
	n, err := client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete keys: %w", err)
	}
	return n, nil
}

// Exists returns how many of keys are present.
func (a *Adapter) Exists(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	client, err := a.ensure(ctx)
	if err != nil {
		return 0, err
	}
	n, err := client.Exists(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to check keys: %w", err)
	}
	return n, nil
}

// Publish sends message on channel and returns the number of receivers.
func (a *Adapter) Publish(ctx context.Context, channel string, message any) (int64, error) {
	client, err := a.ensure(ctx)
	if err != nil {
		return 0, err
	}
	n, err := client.Publish(ctx, channel, message).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return n, nil
}

// Incr atomically increments the value of a key by 1
func (a *Adapter) Incr(ctx context.Context, key string) (int64, error) {
	return a.IncrBy(ctx, key, 1)
}

// IncrBy atomically increments the value of a key by the specified amount
func (a *Adapter) IncrBy(ctx context.Context, key string, value int64) (int64, error) {
	client, err := a.ensure(ctx)
	if err != nil {
		return 0, err
	}
	val, err := client.IncrBy(ctx, key, value).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment key %s by %d: %w", key, value, err)
	}
	return val, nil
}
