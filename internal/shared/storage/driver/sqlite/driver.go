// Package sqlite SQLite 数据库驱动
//
// 提供 SQLite 连接管理、方言实现和自动 Schema 迁移。
// 适用于开发、测试和单机部署场景。
package sqlite

import (
	"database/sql"
	"fmt"

	"mgmt-syncq/internal/shared/storage/dbutil"

	_ "modernc.org/sqlite"
)

// Dialect SQLite 方言实现
type Dialect struct{}

var _ dbutil.Dialect = (*Dialect)(nil)

func (d *Dialect) DriverType() dbutil.DriverType {
	return dbutil.DriverSQLite
}

func (d *Dialect) Rebind(query string) string {
	return dbutil.StripPgCasts(dbutil.RebindToQuestion(query))
}

func (d *Dialect) InsertIgnore(table, columns, values, conflictColumns string) string {
	return dbutil.RebindToQuestion(dbutil.OnConflictDoNothing(table, columns, values, conflictColumns))
}

func (d *Dialect) AutoMigrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// Open 创建 SQLite 数据库连接
// dsn 示例: "file:test.db?cache=shared&mode=rwc" 或 ":memory:"
//
// SQLite 只允许单写者，连接池固定为 1 个连接：
// 事务之间由连接池串行化，避免 SQLITE_BUSY。
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	// SQLite 优化设置
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", p, err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}

	return db, nil
}

// NewDialect 创建 SQLite 方言
func NewDialect() *Dialect {
	return &Dialect{}
}

// schema SQLite 完整建表语句（与 PostgreSQL 等价）
const schema = `
CREATE TABLE IF NOT EXISTS sync_queue (
    id VARCHAR(64) PRIMARY KEY,
    resource_kind VARCHAR(64) NOT NULL,
    resource_id INTEGER NOT NULL,
    last_seq INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    last_updated INTEGER NOT NULL,
    UNIQUE (resource_kind, resource_id)
);

CREATE TABLE IF NOT EXISTS sync_queue_item (
    id VARCHAR(64) PRIMARY KEY,
    queue_id VARCHAR(64) NOT NULL REFERENCES sync_queue(id),
    seq INTEGER NOT NULL,
    payload_ref TEXT NOT NULL,
    state VARCHAR(16) NOT NULL DEFAULT 'queued',
    owner_node_id VARCHAR(128),
    lease_expires_at INTEGER,
    attempts INTEGER NOT NULL DEFAULT 0,
    not_before INTEGER NOT NULL DEFAULT 0,
    last_error TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    UNIQUE (queue_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_sync_queue_item_queue_state_seq ON sync_queue_item(queue_id, state, seq);
CREATE INDEX IF NOT EXISTS idx_sync_queue_item_state_lease ON sync_queue_item(state, lease_expires_at);
CREATE INDEX IF NOT EXISTS idx_sync_queue_item_owner ON sync_queue_item(owner_node_id);
`
