// Package redis 基于 Redis TTL 键的成员实现
//
// 每个节点一个键 {prefix}{nodeID}，值为节点 JSON，过期时间即成员 TTL。
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"mgmt-syncq/internal/shared/membership"
	"mgmt-syncq/internal/shared/model"
)

// Store Redis 成员存储
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ membership.Membership = (*Store)(nil)

// NewStoreFromClient 从现有 Redis 客户端创建成员存储
func NewStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = membership.DefaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = membership.DefaultTTL
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// NewStoreFromURL 从 URL 创建成员存储
func NewStoreFromURL(redisURL, prefix string, ttl time.Duration) (*Store, error) {
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

	log.Printf("[Redis/Membership] Connected to %s", opts.Addr)
	return NewStoreFromClient(client, prefix, ttl), nil
}

// Close 关闭 Redis 连接
func (s *Store) Close() error {
	return s.client.Close()
}

// Heartbeat 刷新节点键及其 TTL
func (s *Store) Heartbeat(ctx context.Context, node *model.Node) error {
	n := *node
	n.LastHeartbeat = time.Now()
	data, err := json.Marshal(&n)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+node.ID, data, s.ttl).Err()
}

// Leave 删除节点键
func (s *Store) Leave(ctx context.Context, nodeID string) error {
	return s.client.Del(ctx, s.prefix+nodeID).Err()
}

// ListAlive 列出存活节点
//
// 使用 SCAN 替代 KEYS，避免在节点数量大时阻塞 Redis
func (s *Store) ListAlive(ctx context.Context) ([]*model.Node, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	nodes := make([]*model.Node, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// SCAN 与 MGET 之间过期
			continue
		}
		var n model.Node
		if err := json.Unmarshal([]byte(str), &n); err != nil || n.ID == "" {
			n = model.Node{ID: keys[i][len(s.prefix):]}
		}
		nodes = append(nodes, &n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}
