// Package participation implements the participation oracle against the
// platform's Redis-backed ledger, plus an in-memory oracle for tests and
// development.
package participation

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/voluntr/engine/core/errs"
)

// Config holds the Redis connection settings.
type Config struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	// Prefix namespaces the ledger keys, default "voluntr".
	Prefix string `json:"prefix"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Prefix == "" {
		c.Prefix = "voluntr"
	}
}

// RedisOracle reads user scores and credits support points in Redis.
type RedisOracle struct {
	client *redis.Client
	prefix string
}

// NewRedisOracle connects to Redis and verifies the connection.
func NewRedisOracle(ctx context.Context, cfg Config) (*RedisOracle, error) {
	cfg.SetDefaults()
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errs.Transient("redis ping", err)
	}
	return &RedisOracle{client: client, prefix: cfg.Prefix}, nil
}

// Close releases the Redis connection.
func (o *RedisOracle) Close() error { return o.client.Close() }

func (o *RedisOracle) scoreKey(address string) string {
	return fmt.Sprintf("%s:score:%s", o.prefix, address)
}

func (o *RedisOracle) supportKey(address string) string {
	return fmt.Sprintf("%s:support:%s", o.prefix, address)
}

// GetUserScore returns the stored reputation score, 0 when absent.
func (o *RedisOracle) GetUserScore(ctx context.Context, address string) (float64, error) {
	val, err := o.client.Get(ctx, o.scoreKey(address)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, errs.Transient("get user score", err)
	}
	score, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, errs.Transient("parse user score", err)
	}
	return score, nil
}

// UpdateSupportScore atomically credits PoP points to a volunteer.
func (o *RedisOracle) UpdateSupportScore(ctx context.Context, address string, points float64) error {
	if err := o.client.IncrByFloat(ctx, o.supportKey(address), points).Err(); err != nil {
		return errs.Transient("update support score", err)
	}
	return nil
}
