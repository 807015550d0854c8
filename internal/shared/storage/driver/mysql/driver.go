// Package mysql MySQL 数据库驱动
//
// 提供 MySQL 连接管理、方言实现和自动 Schema 迁移。
// 要求 InnoDB（行级锁）与 MySQL 8.0+。
package mysql

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"mgmt-syncq/internal/shared/storage/dbutil"

	gomysql "github.com/go-sql-driver/mysql"
)

// Dialect MySQL 方言实现
type Dialect struct{}

var _ dbutil.Dialect = (*Dialect)(nil)

func (d *Dialect) DriverType() dbutil.DriverType {
	return dbutil.DriverMySQL
}

func (d *Dialect) Rebind(query string) string {
	return dbutil.StripPgCasts(dbutil.RebindToQuestion(query))
}

// InsertIgnore 使用 INSERT IGNORE，唯一键冲突时返回 0 行受影响而非错误
func (d *Dialect) InsertIgnore(table, columns, values, conflictColumns string) string {
	return dbutil.RebindToQuestion(fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES (%s)", table, columns, values))
}

// AutoMigrate MySQL 不支持 CREATE INDEX IF NOT EXISTS，索引随建表语句一起创建
func (d *Dialect) AutoMigrate(db *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("mysql migrate: %w", err)
		}
	}
	return nil
}

// Config MySQL 连接参数
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// FormatDSN 生成 go-sql-driver 格式的 DSN
func (c Config) FormatDSN() string {
	mc := gomysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	mc.DBName = c.DBName
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{
		"transaction_isolation": "'READ-COMMITTED'",
	}
	return mc.FormatDSN()
}

// Open 创建 MySQL 数据库连接
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}

	return db, nil
}

// NewDialect 创建 MySQL 方言
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
    UNIQUE KEY uq_sync_queue_resource (resource_kind, resource_id)
) ENGINE=InnoDB;

CREATE TABLE IF NOT EXISTS sync_queue_item (
    id VARCHAR(64) PRIMARY KEY,
    queue_id VARCHAR(64) NOT NULL,
    seq BIGINT NOT NULL,
    payload_ref TEXT NOT NULL,
    state VARCHAR(16) NOT NULL DEFAULT 'queued',
    owner_node_id VARCHAR(128),
    lease_expires_at BIGINT,
    attempts INT NOT NULL DEFAULT 0,
    not_before BIGINT NOT NULL DEFAULT 0,
    last_error TEXT,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    UNIQUE KEY uq_sync_queue_item_seq (queue_id, seq),
    KEY idx_sync_queue_item_queue_state_seq (queue_id, state, seq),
    KEY idx_sync_queue_item_state_lease (state, lease_expires_at),
    KEY idx_sync_queue_item_owner (owner_node_id),
    CONSTRAINT fk_sync_queue_item_queue FOREIGN KEY (queue_id) REFERENCES sync_queue(id)
) ENGINE=InnoDB
`
