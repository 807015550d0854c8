// Package redis 基于 Redis Pub/Sub 的队列事件总线
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"mgmt-syncq/internal/shared/eventbus"
)

// EventBus Redis 队列事件总线
type EventBus struct {
	client  *redis.Client
	channel string
}

var _ eventbus.QueueEventBus = (*EventBus)(nil)

// NewEventBusFromClient 从现有 Redis 客户端创建事件总线
func NewEventBusFromClient(client *redis.Client, channel string) *EventBus {
	if channel == "" {
		channel = eventbus.ChannelQueueEvents
	}
	return &EventBus{client: client, channel: channel}
}

// NewEventBusFromURL 从 URL 创建事件总线
func NewEventBusFromURL(redisURL, channel string) (*EventBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("[Redis/EventBus] Connected to %s", opts.Addr)
	return NewEventBusFromClient(client, channel), nil
}

// Close 关闭 Redis 连接
func (b *EventBus) Close() error {
	return b.client.Close()
}

// Publish 发布队列事件
func (b *EventBus) Publish(ctx context.Context, event *eventbus.QueueEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe 订阅队列事件
func (b *EventBus) Subscribe(ctx context.Context) (<-chan *eventbus.QueueEvent, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := make(chan *eventbus.QueueEvent, eventbus.SubscriberBuffer)
	go func() {
		defer close(ch)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event eventbus.QueueEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Printf("[Redis/EventBus] Failed to unmarshal event: %v", err)
					continue
				}
				select {
				case ch <- &event:
				default:
				}
			}
		}
	}()

	return ch, nil
}
