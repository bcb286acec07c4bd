package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/example/tableserve/pkg/cart"
	"github.com/example/tableserve/pkg/config"
)

type RedisRepository struct {
	client *redis.Client
	config *config.RedisConfig
}

func NewRedisRepository(cfg *config.RedisConfig) *RedisRepository {
	return &RedisRepository{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		}),
		config: cfg,
	}
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, expiration).Err()
}

func (r *RedisRepository) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

func (r *RedisRepository) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// Cart persistence: one key per session, refreshed on every mutation so an
// abandoned cart eventually expires.

func cartKey(sessionID string) string {
	return "cart:" + sessionID
}

func (r *RedisRepository) Save(ctx context.Context, c *cart.Cart) error {
	return r.SetJSON(ctx, cartKey(c.SessionID), c, r.config.CartTTL)
}

func (r *RedisRepository) Load(ctx context.Context, sessionID string) (*cart.Cart, error) {
	var c cart.Cart
	err := r.GetJSON(ctx, cartKey(sessionID), &c)
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *RedisRepository) Delete(ctx context.Context, sessionID string) error {
	return r.Del(ctx, cartKey(sessionID))
}

var _ cart.Store = (*RedisRepository)(nil)
