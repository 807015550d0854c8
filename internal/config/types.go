// Package config 统一配置管理
//
// 配置加载优先级（高→低）：
//  1. 环境变量（通过 .env 文件或 shell/systemd 注入）
//  2. YAML 配置文件（{env}.yaml，如 dev.yaml、test.yaml、prod.yaml）
//  3. 代码硬编码默认值
//
// 凭据单一数据源：
//
//	密码/密钥只存在 .env 文件或环境变量中（YAML 中不存储任何密码）。
//
// 配置路径确定策略：
//  1. --config 命令行参数（显式路径）
//  2. CONFIG_DIR 环境变量
//  3. 按 APP_ENV 选择默认路径：
//     - prod → /etc/mgmt-syncq/
//     - dev/test → ./configs/
package config

import "time"

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	APIServer  APIServerConfig  `yaml:"api_server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Etcd       EtcdConfig       `yaml:"etcd"`
	MinIO      MinIOConfig      `yaml:"minio"`
	MongoDB    MongoDBConfig    `yaml:"mongodb"`
	Node       NodeConfig       `yaml:"node"`
	SyncQueue  SyncQueueConfig  `yaml:"syncqueue"`
	Membership MembershipConfig `yaml:"membership"`
	Reaper     ReaperConfig     `yaml:"reaper"`
	Handlers   HandlersConfig   `yaml:"handlers"`
	Auth       AuthConfig       `yaml:"auth"`
	Log        LogConfig        `yaml:"log"`

	loadedFrom string // 实际加载的配置文件路径
}

// APIServerConfig API Server 配置
type APIServerConfig struct {
	Port string    `yaml:"port"`
	TLS  TLSConfig `yaml:"tls"`
}

// TLSConfig 管理接口 TLS 配置
type TLSConfig struct {
	Mode     string `yaml:"mode"`      // off | auto | files
	CertDir  string `yaml:"cert_dir"`  // auto 模式证书目录
	Hosts    string `yaml:"hosts"`     // auto 模式附加 SANs（逗号分隔）
	CertFile string `yaml:"cert_file"` // files 模式
	KeyFile  string `yaml:"key_file"`  // files 模式
}

// DatabaseConfig 共享持久化存储配置
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "postgres", "sqlite" 或 "mysql"（默认 postgres）
	Path     string `yaml:"path"`   // SQLite 文件路径
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"` // 只从 DB_PASSWORD 环境变量读取
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"`   // 只从 REDIS_PASSWORD 环境变量读取
	URL      string `yaml:"url"` // 直接指定 URL（优先于 host/port/db）
}

type EtcdConfig struct {
	Endpoints   []string      `yaml:"endpoints"`
	Prefix      string        `yaml:"prefix"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// MinIOConfig MinIO 对象存储配置（归档）
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"` // 例如 localhost:9000
	AccessKey string `yaml:"-"`        // 只从 MINIO_ROOT_USER 环境变量读取
	SecretKey string `yaml:"-"`        // 只从 MINIO_ROOT_PASSWORD 环境变量读取
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"` // 归档对象 key 前缀
}

// MongoDBConfig MongoDB 配置（归档）
type MongoDBConfig struct {
	URI        string `yaml:"uri"` // MONGO_URI 环境变量可覆盖（含凭据）
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// NodeConfig 本节点配置
type NodeConfig struct {
	ID string `yaml:"id"` // 为空时启动时生成 {hostname}-{随机}
}

// SyncQueueConfig 同步队列配置
//
// 租约时长与轮询周期均为可调参数。
type SyncQueueConfig struct {
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewInterval  time.Duration `yaml:"renew_interval"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	BatchSize      int           `yaml:"batch_size"`
	Workers        int           `yaml:"workers"`
	Strategy       string        `yaml:"strategy"` // round_robin | oldest_first
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	HandlerTimeout time.Duration `yaml:"handler_timeout"`  // 0 表示不限制
	Notify         string        `yaml:"notify"`           // 入队唤醒通知：local | redis | none
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"` // Retriable 后的首次等待，按认领次数翻倍
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`
}

// MembershipConfig 集群成员配置
type MembershipConfig struct {
	Backend           string        `yaml:"backend"` // none | memory | redis | etcd
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	TTL               time.Duration `yaml:"ttl"`
	CheckInterval     time.Duration `yaml:"check_interval"`
	KeyPrefix         string        `yaml:"key_prefix"`
}

// Shared 成员视图是否跨进程共享
//
// memory 只记录本进程的心跳，只能用于单节点；此时不能据此判定其它节点死亡。
func (m MembershipConfig) Shared() bool {
	return m.Backend == "redis" || m.Backend == "etcd"
}

// ReaperConfig 终态项清理配置
type ReaperConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Interval  time.Duration `yaml:"interval"`
	Retention time.Duration `yaml:"retention"`
	BatchSize int           `yaml:"batch_size"`
	Archive   string        `yaml:"archive"` // none | minio | mongodb
}

// HandlersConfig 作业处理器配置
type HandlersConfig struct {
	Default  string                   `yaml:"default"`  // log | none
	Webhooks map[string]WebhookConfig `yaml:"webhooks"` // resource kind → webhook
}

// WebhookConfig Webhook 处理器配置
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// AuthConfig 认证配置
// 注意：JWTSecret 只从环境变量读取，不存储在 YAML 中
type AuthConfig struct {
	JWTSecret         string        `yaml:"-"` // 只从 JWT_SECRET 环境变量读取
	AdminPasswordHash string        `yaml:"-"` // bcrypt 哈希，只从 ADMIN_PASSWORD_HASH 环境变量读取
	AdminUser         string        `yaml:"admin_user"`
	AccessTokenTTL    time.Duration `yaml:"access_token_ttl"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env            Environment
	Database       DatabaseConfig
	DatabaseDriver string
	DatabaseURL    string // postgres/sqlite 连接串；mysql 由 infra 根据 Database 构建 DSN
	RedisURL       string
	Etcd           EtcdConfig
	MinIO          MinIOConfig
	MongoDB        MongoDBConfig
	APIPort        string
	APITLS         TLSConfig
	Node           NodeConfig
	SyncQueue      SyncQueueConfig
	Membership     MembershipConfig
	Reaper         ReaperConfig
	Handlers       HandlersConfig
	Auth           AuthConfig
	Log            LogConfig
}
