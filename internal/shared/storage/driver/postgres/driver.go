// Package postgres PostgreSQL 数据库驱动
//
// 提供 PostgreSQL 连接管理、方言实现和自动 Schema 迁移。
// 生产环境的共享持久化存储。
package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"mgmt-syncq/internal/shared/storage/dbutil"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Dialect PostgreSQL 方言实现
type Dialect struct{}

var _ dbutil.Dialect = (*Dialect)(nil)

func (d *Dialect) DriverType() dbutil.DriverType {
	return dbutil.DriverPostgres
}

func (d *Dialect) Rebind(query string) string {
	return dbutil.RebindToPositional(query)
}

func (d *Dialect) InsertIgnore(table, columns, values, conflictColumns string) string {
	return dbutil.OnConflictDoNothing(table, columns, values, conflictColumns)
}

func (d *Dialect) AutoMigrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// Open 创建 PostgreSQL 数据库连接
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return db, nil
}

// NewDialect 创建 PostgreSQL 方言
func NewDialect() *Dialect {
	return &Dialect{}
}

const schema = `
CREATE TABLE IF NOT EXISTS sync_queue (
    id VARCHAR(64) PRIMARY KEY,
    resource_kind VARCHAR(64) NOT NULL,
    resource_id BIGINT NOT NULL,
    last_seq BIGINT NOT NULL DEFAULT 0,
    created_at BIGINT NOT NULL,
    last_updated BIGINT NOT NULL,
    CONSTRAINT uq_sync_queue_resource UNIQUE (resource_kind, resource_id)
);

CREATE TABLE IF NOT EXISTS sync_queue_item (
    id VARCHAR(64) PRIMARY KEY,
    queue_id VARCHAR(64) NOT NULL REFERENCES sync_queue(id),
    seq BIGINT NOT NULL,
    payload_ref TEXT NOT NULL,
    state VARCHAR(16) NOT NULL DEFAULT 'queued',
    owner_node_id VARCHAR(128),
    lease_expires_at BIGINT,
    attempts INTEGER NOT NULL DEFAULT 0,
    not_before BIGINT NOT NULL DEFAULT 0,
    last_error TEXT,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    CONSTRAINT uq_sync_queue_item_seq UNIQUE (queue_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_sync_queue_item_queue_state_seq ON sync_queue_item(queue_id, state, seq);
CREATE INDEX IF NOT EXISTS idx_sync_queue_item_state_lease ON sync_queue_item(state, lease_expires_at);
CREATE INDEX IF NOT EXISTS idx_sync_queue_item_owner ON sync_queue_item(owner_node_id);
`
