package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// buildDatabaseURL 根据驱动类型构建数据库连接字符串
func buildDatabaseURL(db DatabaseConfig, password string) string {
	switch strings.ToLower(db.Driver) {
	case "sqlite":
		dbPath := db.Path
		if dbPath == "" {
			dbPath = "/var/lib/mgmt-syncq/syncq.db"
		}
		return fmt.Sprintf("file:%s?mode=rwc", dbPath)
	case "mysql":
		// DSN 由 infra 通过 go-sql-driver 的 Config 构建，这里只用于日志展示
		return fmt.Sprintf("mysql://%s:%s@%s:%d/%s", db.User, password, db.Host, db.Port, db.Name)
	default: // postgres
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			db.User, password, db.Host, db.Port, db.Name, db.SSLMode)
	}
}

// detectDatabaseDriver 检测数据库驱动类型
// 优先级：YAML driver 字段 > DATABASE_URL 前缀自动检测 > 默认 postgres
func detectDatabaseDriver(yamlDriver, databaseURL string) string {
	if d := strings.ToLower(yamlDriver); d == "sqlite" || d == "postgres" || d == "mysql" {
		return d
	}
	switch {
	case strings.HasPrefix(databaseURL, "file:"), strings.HasPrefix(databaseURL, "sqlite:"):
		return "sqlite"
	case strings.HasPrefix(databaseURL, "mysql://"):
		return "mysql"
	}
	return "postgres"
}

// buildRedisURL 构建 Redis 连接字符串
// 如果 URL 字段非空，直接使用；否则从 host/port/db/password 构建
func buildRedisURL(redis RedisConfig) string {
	if redis.URL != "" {
		return redis.URL
	}
	if redis.Password != "" {
		return fmt.Sprintf("redis://:%s@%s:%d/%d", redis.Password, redis.Host, redis.Port, redis.DB)
	}
	return fmt.Sprintf("redis://%s:%d/%d", redis.Host, redis.Port, redis.DB)
}

// maskPassword 隐藏密码
func maskPassword(url string) string {
	re := regexp.MustCompile(`(://[^:]*:)([^@]+)(@)`)
	return re.ReplaceAllString(url, "${1}***${3}")
}

// parseEnv 解析环境字符串
func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "test":
		return EnvTest
	case "prod", "production":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

// firstEnv 返回第一个非空的环境变量值
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// getEnv 获取环境变量，支持默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsTest 是否为测试环境
func (c *Config) IsTest() bool {
	return c.Env == EnvTest
}

// String 返回配置摘要（隐藏密码）
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, Driver: %s, DB: %s, Redis: %s, Membership: %s}",
		c.Env, c.DatabaseDriver, maskPassword(c.DatabaseURL), maskPassword(c.RedisURL), c.Membership.Backend)
}

// validate 填充同步队列默认值
func (s *SyncQueueConfig) validate() {
	if s.LeaseDuration <= 0 {
		s.LeaseDuration = 30 * time.Second
	}
	if s.RenewInterval <= 0 {
		s.RenewInterval = s.LeaseDuration / 3
	}
	if s.PollInterval <= 0 {
		s.PollInterval = time.Second
	}
	if s.SweepInterval <= 0 {
		s.SweepInterval = 2 * time.Second
	}
	if s.BatchSize <= 0 {
		s.BatchSize = 100
	}
	if s.Workers <= 0 {
		s.Workers = 4
	}
	if s.Strategy == "" {
		s.Strategy = "round_robin"
	}
	if s.MaxBackoff <= 0 {
		s.MaxBackoff = 30 * time.Second
	}
	if s.Notify == "" {
		s.Notify = "local"
	}
	if s.RetryBaseDelay <= 0 {
		s.RetryBaseDelay = time.Second
	}
	if s.RetryMaxDelay <= 0 {
		s.RetryMaxDelay = 5 * time.Minute
	}
}

// validate 填充成员默认值
func (m *MembershipConfig) validate() {
	if m.Backend == "" {
		m.Backend = "none"
	}
	if m.HeartbeatInterval <= 0 {
		m.HeartbeatInterval = 5 * time.Second
	}
	if m.TTL <= 0 {
		m.TTL = 15 * time.Second
	}
	if m.CheckInterval <= 0 {
		m.CheckInterval = 10 * time.Second
	}
	if m.KeyPrefix == "" {
		m.KeyPrefix = "syncq:node:"
	}
}

// validate 填充清理默认值
func (r *ReaperConfig) validate() {
	if r.Interval <= 0 {
		r.Interval = time.Hour
	}
	if r.Retention <= 0 {
		r.Retention = 7 * 24 * time.Hour
	}
	if r.BatchSize <= 0 {
		r.BatchSize = 500
	}
	if r.Archive == "" {
		r.Archive = "none"
	}
}

// validate 填充处理器默认值
func (h *HandlersConfig) validate() {
	if h.Default == "" {
		h.Default = "log"
	}
	for kind, wh := range h.Webhooks {
		if wh.Timeout <= 0 {
			wh.Timeout = 30 * time.Second
			h.Webhooks[kind] = wh
		}
	}
}

// validate 填充认证默认值
func (a *AuthConfig) validate() {
	if a.AdminUser == "" {
		a.AdminUser = "admin"
	}
	if a.AccessTokenTTL <= 0 {
		a.AccessTokenTTL = time.Hour
	}
}
