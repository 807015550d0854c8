// Package infra Redis 基础设施初始化
package infra

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"mgmt-syncq/internal/shared/eventbus"
	eventbusredis "mgmt-syncq/internal/shared/eventbus/redis"
	"mgmt-syncq/internal/shared/membership"
	membershipredis "mgmt-syncq/internal/shared/membership/redis"
)

// RedisInfra Redis 基础设施
//
// 成员（TTL 键）与入队通知（Pub/Sub）共用一个连接
type RedisInfra struct {
	members  *membershipredis.Store
	eventBus *eventbusredis.EventBus

	// 底层连接
	client *redis.Client
}

// NewRedisInfra 从 URL 创建 Redis 基础设施
func NewRedisInfra(redisURL, keyPrefix string, ttl time.Duration) (*RedisInfra, error) {
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

	log.Printf("[Redis/Infra] Connected to %s", opts.Addr)

	return newRedisInfraFromClient(client, keyPrefix, ttl), nil
}

func newRedisInfraFromClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisInfra {
	return &RedisInfra{
		client:   client,
		members:  membershipredis.NewStoreFromClient(client, keyPrefix, ttl),
		eventBus: eventbusredis.NewEventBusFromClient(client, ""),
	}
}

// Membership 返回成员组件接口
func (r *RedisInfra) Membership() membership.Membership {
	return r.members
}

// EventBus 返回事件总线组件接口
func (r *RedisInfra) EventBus() eventbus.QueueEventBus {
	return r.eventBus
}

// Client 返回底层 Redis 客户端
func (r *RedisInfra) Client() *redis.Client {
	return r.client
}

// Close 关闭 Redis 连接
func (r *RedisInfra) Close() error {
	return r.client.Close()
}
