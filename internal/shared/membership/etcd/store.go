// Package etcd 基于 etcd 租约的成员实现
//
// 每个节点持有一个 etcd lease，节点键绑定该 lease；
// 心跳即 KeepAliveOnce，lease 过期后键被 etcd 自动删除。
package etcd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"

	"mgmt-syncq/internal/shared/membership"
	"mgmt-syncq/internal/shared/model"
)

// Store etcd 成员存储
type Store struct {
	client *clientv3.Client
	prefix string
	ttl    time.Duration

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID
}

var _ membership.Membership = (*Store)(nil)

// Config etcd 配置
type Config struct {
	Endpoints   []string
	DialTimeout time.Duration
	Prefix      string
	TTL         time.Duration
}

// NewStore 创建 etcd 成员存储
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints are required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "/syncq"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = membership.DefaultTTL
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := client.Status(ctx, cfg.Endpoints[0]); err != nil {
		client.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	log.Printf("[etcd] Connected to %v", cfg.Endpoints)
	return &Store{
		client: client,
		prefix: strings.TrimRight(cfg.Prefix, "/"),
		ttl:    cfg.TTL,
		leases: make(map[string]clientv3.LeaseID),
	}, nil
}

// Close 关闭连接
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) nodesPrefix() string {
	return s.prefix + "/nodes/"
}

// Heartbeat 首次调用时创建 lease 并写入节点键，之后续约
//
// lease 已过期（例如长时间网络分区）时重新创建。
func (s *Store) Heartbeat(ctx context.Context, node *model.Node) error {
	s.mu.Lock()
	leaseID, ok := s.leases[node.ID]
	s.mu.Unlock()

	if ok {
		_, err := s.client.KeepAliveOnce(ctx, leaseID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, rpctypes.ErrLeaseNotFound) {
			return fmt.Errorf("failed to keep alive lease: %w", err)
		}
		log.Printf("[etcd] Lease for node %s expired, re-registering", node.ID)
	}

	lease, err := s.client.Grant(ctx, int64(s.ttl.Seconds()))
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	n := *node
	n.LastHeartbeat = time.Now()
	data, err := json.Marshal(&n)
	if err != nil {
		return err
	}
	if _, err := s.client.Put(ctx, s.nodesPrefix()+node.ID, string(data), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to put node: %w", err)
	}

	s.mu.Lock()
	s.leases[node.ID] = lease.ID
	s.mu.Unlock()
	return nil
}

// Leave 撤销 lease，节点键随之删除
func (s *Store) Leave(ctx context.Context, nodeID string) error {
	s.mu.Lock()
	leaseID, ok := s.leases[nodeID]
	delete(s.leases, nodeID)
	s.mu.Unlock()

	if ok {
		if _, err := s.client.Revoke(ctx, leaseID); err != nil && !errors.Is(err, rpctypes.ErrLeaseNotFound) {
			return fmt.Errorf("failed to revoke lease: %w", err)
		}
		return nil
	}
	_, err := s.client.Delete(ctx, s.nodesPrefix()+nodeID)
	return err
}

// ListAlive 列出存活节点
func (s *Store) ListAlive(ctx context.Context) ([]*model.Node, error) {
	resp, err := s.client.Get(ctx, s.nodesPrefix(), clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	nodes := make([]*model.Node, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var n model.Node
		if err := json.Unmarshal(kv.Value, &n); err != nil || n.ID == "" {
			n = model.Node{ID: strings.TrimPrefix(string(kv.Key), s.nodesPrefix())}
		}
		nodes = append(nodes, &n)
	}
	return nodes, nil
}
