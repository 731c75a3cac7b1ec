package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "orderpay:alerts"

type zsetClient interface {
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRevRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Close() error
}

// RedisAlerter keeps alerts in a sorted set scored by raise time, newest
// last, so an operator tool can page through them.
type RedisAlerter struct {
	client zsetClient
	key    string
}

func NewRedisAlerter(redisURL string) (*RedisAlerter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisAlerter{client: client, key: DefaultRedisKey}, nil
}

func (r *RedisAlerter) Raise(ctx context.Context, a Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	return r.client.ZAdd(ctx, r.key, redis.Z{
		Score:  float64(a.RaisedAt.UnixNano()),
		Member: string(data),
	}).Err()
}

// Recent returns up to n alerts, newest first.
func (r *RedisAlerter) Recent(ctx context.Context, n int64) ([]Alert, error) {
	if n <= 0 {
		return nil, nil
	}
	members, err := r.client.ZRevRange(ctx, r.key, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read alerts: %w", err)
	}

	alerts := make([]Alert, 0, len(members))
	for _, m := range members {
		var a Alert
		if err := json.Unmarshal([]byte(m), &a); err != nil {
			return nil, fmt.Errorf("failed to unmarshal alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

func (r *RedisAlerter) Close() error {
	return r.client.Close()
}
