// Package infra 基础设施聚合层
//
// 根据配置统一初始化并注入基础设施，包括：
//   - Store：共享持久化存储（PostgreSQL / MySQL / SQLite）
//   - Members：集群成员（Redis / etcd / 进程内）
//   - EventBus：入队唤醒通知（Redis Pub/Sub / 进程内）
//   - Archiver：终态项归档（MinIO / MongoDB）
package infra

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"mgmt-syncq/internal/clock"
	"mgmt-syncq/internal/config"
	"mgmt-syncq/internal/shared/archive"
	"mgmt-syncq/internal/shared/eventbus"
	"mgmt-syncq/internal/shared/membership"
	etcdmembership "mgmt-syncq/internal/shared/membership/etcd"
	"mgmt-syncq/internal/shared/objstore"
	"mgmt-syncq/internal/shared/storage"
	"mgmt-syncq/internal/shared/storage/dbutil"
	mysqldriver "mgmt-syncq/internal/shared/storage/driver/mysql"
	pgdriver "mgmt-syncq/internal/shared/storage/driver/postgres"
	sqlitedriver "mgmt-syncq/internal/shared/storage/driver/sqlite"
	"mgmt-syncq/internal/shared/storage/mongostore"
	"mgmt-syncq/internal/shared/storage/repository"
)

// Infrastructure 基础设施聚合结构
type Infrastructure struct {
	// Store 共享持久化存储
	Store storage.QueueStore

	// Members 集群成员，backend=none 时为 nil
	Members membership.Membership

	// MembersShared Members 是否为集群共享视图（redis / etcd）
	// 为 false 时不得启动 NodeWatcher
	MembersShared bool

	// EventBus 入队唤醒通知（未启用时为 NoOp）
	EventBus eventbus.QueueEventBus

	// Archiver 终态项归档（未启用时为 NoOp）
	Archiver archive.Archiver

	// ArchiveReader 归档查询，仅 mongodb 归档时非 nil
	ArchiveReader archive.Reader

	redis   *RedisInfra
	closers []func() error
}

// New 按配置创建全部基础设施；任一组件失败时关闭已创建的组件
func New(ctx context.Context, cfg *config.Config, clk clock.Clock) (*Infrastructure, error) {
	infra := &Infrastructure{
		EventBus: eventbus.NewNoOpEventBus(),
		Archiver: archive.NoOp{},
	}

	store, err := NewStore(cfg)
	if err != nil {
		return nil, err
	}
	infra.Store = store
	infra.closers = append(infra.closers, store.Close)

	if err := infra.initMembership(cfg, clk); err != nil {
		infra.Close()
		return nil, err
	}
	if err := infra.initEventBus(cfg); err != nil {
		infra.Close()
		return nil, err
	}
	if cfg.Reaper.Enabled {
		if err := infra.initArchiver(ctx, cfg, clk); err != nil {
			infra.Close()
			return nil, err
		}
	}
	return infra, nil
}

// NewStore 打开共享存储并执行 Schema 迁移
func NewStore(cfg *config.Config) (*repository.Store, error) {
	db, dialect, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if err := dialect.AutoMigrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s schema: %w", cfg.DatabaseDriver, err)
	}
	log.Printf("[Infra] Store ready (driver=%s)", cfg.DatabaseDriver)
	return repository.NewStore(db, dialect), nil
}

func openDatabase(cfg *config.Config) (*sql.DB, dbutil.Dialect, error) {
	switch cfg.DatabaseDriver {
	case "sqlite":
		db, err := sqlitedriver.Open(cfg.DatabaseURL)
		return db, sqlitedriver.NewDialect(), err
	case "mysql":
		dsn := mysqldriver.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.Name,
		}.FormatDSN()
		db, err := mysqldriver.Open(dsn)
		return db, mysqldriver.NewDialect(), err
	case "postgres", "":
		db, err := pgdriver.Open(cfg.DatabaseURL)
		return db, pgdriver.NewDialect(), err
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
}

// redisClient 惰性创建共享的 Redis 连接（成员与事件总线共用）
func (i *Infrastructure) redisClient(cfg *config.Config) (*RedisInfra, error) {
	if i.redis != nil {
		return i.redis, nil
	}
	r, err := NewRedisInfra(cfg.RedisURL, cfg.Membership.KeyPrefix, cfg.Membership.TTL)
	if err != nil {
		return nil, err
	}
	i.redis = r
	i.closers = append(i.closers, r.Close)
	return r, nil
}

func (i *Infrastructure) initMembership(cfg *config.Config, clk clock.Clock) error {
	switch cfg.Membership.Backend {
	case "none", "":
		log.Printf("[Infra] Membership disabled, relying on lease expiry only")
		return nil
	case "memory":
		log.Printf("[Infra] Membership memory is process-local, dead-node release disabled")
		i.Members = membership.NewMemory(cfg.Membership.TTL, clk)
	case "redis":
		r, err := i.redisClient(cfg)
		if err != nil {
			return err
		}
		i.Members = r.Membership()
		i.MembersShared = true
		return nil // 连接由 RedisInfra 统一关闭
	case "etcd":
		s, err := etcdmembership.NewStore(etcdmembership.Config{
			Endpoints:   cfg.Etcd.Endpoints,
			DialTimeout: cfg.Etcd.DialTimeout,
			Prefix:      cfg.Etcd.Prefix,
			TTL:         cfg.Membership.TTL,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to etcd: %w", err)
		}
		i.Members = s
		i.MembersShared = true
	default:
		return fmt.Errorf("unsupported membership backend %q", cfg.Membership.Backend)
	}
	i.closers = append(i.closers, i.Members.Close)
	return nil
}

func (i *Infrastructure) initEventBus(cfg *config.Config) error {
	switch cfg.SyncQueue.Notify {
	case "none":
		return nil
	case "redis":
		r, err := i.redisClient(cfg)
		if err != nil {
			return err
		}
		i.EventBus = r.EventBus()
		return nil
	default:
		// 进程内通知只唤醒本节点；其他节点依靠轮询
		bus := eventbus.NewLocalEventBus()
		i.EventBus = bus
		i.closers = append(i.closers, bus.Close)
		return nil
	}
}

func (i *Infrastructure) initArchiver(ctx context.Context, cfg *config.Config, clk clock.Clock) error {
	switch cfg.Reaper.Archive {
	case "minio":
		client, err := objstore.NewClient(cfg.MinIO)
		if err != nil {
			return err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure bucket %s: %w", client.Bucket(), err)
		}
		i.Archiver = archive.NewObjectArchiver(client, cfg.MinIO.Prefix, clk)
	case "mongodb":
		s, err := mongostore.NewStore(cfg.MongoDB.URI, cfg.MongoDB.Database, cfg.MongoDB.Collection)
		if err != nil {
			return err
		}
		i.Archiver = s
		i.ArchiveReader = s
		i.closers = append(i.closers, s.Close)
	}
	log.Printf("[Infra] Reaper archive: %s", i.Archiver.Name())
	return nil
}

// Close 按创建的逆序关闭所有基础设施连接
func (i *Infrastructure) Close() error {
	var lastErr error
	for n := len(i.closers) - 1; n >= 0; n-- {
		if err := i.closers[n](); err != nil {
			lastErr = err
		}
	}
	i.closers = nil
	return lastErr
}

// NewLocalInfrastructure 使用给定存储创建进程内基础设施（用于测试和单节点开发）
func NewLocalInfrastructure(store storage.QueueStore, clk clock.Clock) *Infrastructure {
	bus := eventbus.NewLocalEventBus()
	members := membership.NewMemory(membership.DefaultTTL, clk)
	return &Infrastructure{
		Store:    store,
		Members:  members,
		EventBus: bus,
		Archiver: archive.NoOp{},
		closers:  []func() error{store.Close, members.Close, bus.Close},
	}
}
