package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RedisPublisher publishes updates on a Redis channel for the mailer to consume.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher dials Redis and verifies the connection.
func NewRedisPublisher(addr, password string, db int, channel string) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisPublisher{client: client, channel: channel}, nil
}

// Notify implements Sink.
func (p *RedisPublisher) Notify(ctx context.Context, accountID string, balance decimal.Decimal) error {
	payload, err := json.Marshal(newMessage(accountID, balance))
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
