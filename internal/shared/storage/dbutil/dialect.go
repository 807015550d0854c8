// Package dbutil 提供数据库方言抽象和工具函数
//
// 通过 Dialect 接口屏蔽不同数据库（PostgreSQL、SQLite、MySQL）的 SQL 差异，
// 使 repository 层可以编写与数据库无关的业务逻辑。
package dbutil

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DriverType 数据库驱动类型
type DriverType string

const (
	DriverPostgres DriverType = "postgres"
	DriverSQLite   DriverType = "sqlite"
	DriverMySQL    DriverType = "mysql"
)

// Dialect 数据库方言接口
//
// 不同数据库的 SQL 语法差异通过该接口屏蔽：
//   - 占位符：PostgreSQL 用 $1, $2；MySQL/SQLite 用 ?
//   - 条件插入：PostgreSQL/SQLite 用 ON CONFLICT DO NOTHING；MySQL 用 INSERT IGNORE
//   - 类型转换：PostgreSQL 有 ::type 语法
//
// 时间统一以毫秒时间戳（BIGINT）存储，不依赖各数据库的时间函数。
type Dialect interface {
	// DriverType 返回驱动类型标识
	DriverType() DriverType

	// Rebind 将 PostgreSQL 风格的占位符 ($1, $2, ...) 转换为目标数据库的占位符格式
	Rebind(query string) string

	// InsertIgnore 生成唯一键冲突时静默忽略的 INSERT 语句
	// conflictColumns: 唯一约束列，如 "resource_kind, resource_id"
	InsertIgnore(table, columns, values, conflictColumns string) string

	// AutoMigrate 自动创建/迁移数据库 Schema
	AutoMigrate(db *sql.DB) error
}

// pgPlaceholderRe 匹配 PostgreSQL 风格占位符 $1, $2, ...
var pgPlaceholderRe = regexp.MustCompile(`\$(\d+)`)

// pgCastRe 匹配 PostgreSQL 类型转换 ::type
var pgCastRe = regexp.MustCompile(`::(\w+)`)

// RebindToPositional 保持 $N 占位符不变（PostgreSQL 专用）
func RebindToPositional(query string) string {
	return query
}

// RebindToQuestion 将 $N 占位符转换为 ? （MySQL/SQLite 专用）
//
// 注意：? 占位符按出现顺序绑定参数，因此同一个 $N 出现多次时，
// 调用方需按出现顺序重复传参。repository 层的 SQL 均保证 $N 单调且不重复。
func RebindToQuestion(query string) string {
	return pgPlaceholderRe.ReplaceAllString(query, "?")
}

// StripPgCasts 去除 PostgreSQL 类型转换 (::varchar, ::text 等)
func StripPgCasts(query string) string {
	return pgCastRe.ReplaceAllString(query, "")
}

// OnConflictDoNothing PostgreSQL/SQLite 风格的条件插入
func OnConflictDoNothing(table, columns, values, conflictColumns string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		table, columns, values, conflictColumns)
}

// PlaceholderList 生成指定数量的占位符列表，如 "$1, $2, $3"
// 返回 PG 风格，由调用方整体 Rebind
func PlaceholderList(start, count int) string {
	parts := make([]string, count)
	for i := 0; i < count; i++ {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

// IsUniqueViolation 判断是否为唯一约束冲突错误
//
// 各驱动错误类型不同，按错误文本识别：
//   - PostgreSQL (pgx): "duplicate key value violates unique constraint" / SQLSTATE 23505
//   - SQLite (modernc): "UNIQUE constraint failed"
//   - MySQL: "Error 1062 ... Duplicate entry"
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry")
}

// ToMillis 时间转毫秒时间戳
func ToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis 毫秒时间戳转 UTC 时间
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// TimeFromNull 可空毫秒转可空时间
func TimeFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := FromMillis(v.Int64)
	return &t
}

// StringFromNull 可空字符串转指针
func StringFromNull(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
