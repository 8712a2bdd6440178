package cacheinfra

import (
	"context"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for the Redis backend.
type RedisConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// ScanCount is the COUNT hint used when deleting by prefix.
	ScanCount int64
}

// DefaultRedisConfig targets a local Redis with go-redis' own pool defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		ScanCount:    100,
	}
}

// Validate checks the connection settings.
func (c RedisConfig) Validate() error {
	nonNegative := validation.Min(time.Duration(0))
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.DB, validation.Min(0)),
		validation.Field(&c.PoolSize, validation.Min(0)),
		validation.Field(&c.DialTimeout, nonNegative),
		validation.Field(&c.ReadTimeout, nonNegative),
		validation.Field(&c.WriteTimeout, nonNegative),
		validation.Field(&c.ScanCount, validation.Min(int64(0))),
	)
}

// String masks the password so the config can be logged.
func (c RedisConfig) String() string {
	return fmt.Sprintf("RedisConfig{Addr: %s, Username: %s, Password: ***, DB: %d, PoolSize: %d}",
		c.Addr, c.Username, c.DB, c.PoolSize)
}

// Options converts the config to go-redis options.
func (c RedisConfig) Options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr,
		Username:     c.Username,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

// NewRedisClient connects to Redis and verifies the connection with PING.
// The client is closed again when the ping fails.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(cfg.Options())
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection to %s failed: %w", cfg.Addr, err)
	}

	return client, nil
}
