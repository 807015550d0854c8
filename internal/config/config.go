package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load 加载配置
//  1. 加载 .env.{env}（敏感信息）
//  2. 加载 {env}.yaml
//  3. 环境变量覆盖
//  4. 填充默认值
func Load() *Config {
	env := parseEnv(getEnv("APP_ENV", "dev"))
	loadEnvFiles(env)

	yamlCfg := loadYAMLConfig(env)
	if yamlCfg.loadedFrom != "" {
		log.Printf("[config] Loaded %s", yamlCfg.loadedFrom)
	}

	return build(env, yamlCfg)
}

// build 由 YAML 配置与环境变量构建最终配置
func build(env Environment, y *YAMLConfig) *Config {
	y.Database.Password = getEnv("DB_PASSWORD", "")
	y.Redis.Password = getEnv("REDIS_PASSWORD", "")
	if url := os.Getenv("REDIS_URL"); url != "" {
		y.Redis.URL = url
	}
	if eps := os.Getenv("ETCD_ENDPOINTS"); eps != "" {
		y.Etcd.Endpoints = strings.Split(eps, ",")
	}
	y.MinIO.AccessKey = firstEnv("MINIO_ROOT_USER", "MINIO_ACCESS_KEY")
	y.MinIO.SecretKey = firstEnv("MINIO_ROOT_PASSWORD", "MINIO_SECRET_KEY")
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		y.MongoDB.URI = uri
	}
	if port := os.Getenv("API_PORT"); port != "" {
		y.APIServer.Port = port
	}
	if id := os.Getenv("NODE_ID"); id != "" {
		y.Node.ID = id
	}
	y.Auth.JWTSecret = getEnv("JWT_SECRET", "")
	y.Auth.AdminPasswordHash = getEnv("ADMIN_PASSWORD_HASH", "")
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		y.Log.Level = lvl
	}

	databaseURL := os.Getenv("DATABASE_URL")
	driver := detectDatabaseDriver(y.Database.Driver, databaseURL)
	y.Database.Driver = driver
	if databaseURL == "" {
		databaseURL = buildDatabaseURL(y.Database, y.Database.Password)
	}

	cfg := &Config{
		Env:            env,
		Database:       y.Database,
		DatabaseDriver: driver,
		DatabaseURL:    databaseURL,
		RedisURL:       buildRedisURL(y.Redis),
		Etcd:           y.Etcd,
		MinIO:          y.MinIO,
		MongoDB:        y.MongoDB,
		APIPort:        y.APIServer.Port,
		APITLS:         y.APIServer.TLS,
		Node:           y.Node,
		SyncQueue:      y.SyncQueue,
		Membership:     y.Membership,
		Reaper:         y.Reaper,
		Handlers:       y.Handlers,
		Auth:           y.Auth,
		Log:            y.Log,
	}

	cfg.SyncQueue.validate()
	cfg.Membership.validate()
	cfg.Reaper.validate()
	cfg.Handlers.validate()
	cfg.Auth.validate()
	return cfg
}

// defaultYAMLConfig 硬编码默认值
func defaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		APIServer: APIServerConfig{Port: "8080", TLS: TLSConfig{Mode: "off"}},
		Database:  DatabaseConfig{Driver: "postgres", Host: "localhost", Port: 5432, User: "cloud", Name: "cloud", SSLMode: "disable"},
		Redis:     RedisConfig{Host: "localhost", Port: 6379, DB: 0},
		Etcd:      EtcdConfig{Endpoints: []string{"localhost:2379"}, Prefix: "/syncq"},
		MinIO:     MinIOConfig{Endpoint: "localhost:9000", Bucket: "mgmt-syncq", Prefix: "sync-queue-items"},
		MongoDB:   MongoDBConfig{URI: "mongodb://localhost:27017", Database: "mgmt_syncq", Collection: "sync_queue_item_archive"},
		Membership: MembershipConfig{
			Backend: "none",
		},
		Reaper:   ReaperConfig{Archive: "none"},
		Handlers: HandlersConfig{Default: "log"},
		Log:      LogConfig{Level: "info", Format: "text", Output: "stdout"},
	}
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → {env}.yaml
func loadYAMLConfig(env Environment) *YAMLConfig {
	cfg := defaultYAMLConfig()

	filename := ConfigFileName()
	for _, base := range effectiveConfigPaths() {
		path := filepath.Join(base, filename)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			log.Printf("[config] WARNING: failed to parse %s: %v", path, err)
			continue
		}
		cfg.loadedFrom = path
		break
	}

	return cfg
}

// ConfigFileName 返回当前环境的配置文件名
func ConfigFileName() string {
	env := parseEnv(getEnv("APP_ENV", "dev"))
	return fmt.Sprintf("%s.yaml", env)
}

// Validate 校验配置的取值范围
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "postgres", "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
	}
	switch c.SyncQueue.Strategy {
	case "round_robin", "oldest_first":
	default:
		return fmt.Errorf("unsupported syncqueue strategy %q", c.SyncQueue.Strategy)
	}
	if c.SyncQueue.RenewInterval >= c.SyncQueue.LeaseDuration {
		return fmt.Errorf("syncqueue renew_interval (%s) must be shorter than lease_duration (%s)",
			c.SyncQueue.RenewInterval, c.SyncQueue.LeaseDuration)
	}
	switch c.APITLS.Mode {
	case "off", "", "auto":
	case "files":
		if c.APITLS.CertFile == "" || c.APITLS.KeyFile == "" {
			return fmt.Errorf("api_server.tls mode files requires cert_file and key_file")
		}
	default:
		return fmt.Errorf("unsupported api_server.tls mode %q", c.APITLS.Mode)
	}
	switch c.SyncQueue.Notify {
	case "none", "local", "redis":
	default:
		return fmt.Errorf("unsupported syncqueue notify %q", c.SyncQueue.Notify)
	}
	switch c.Membership.Backend {
	case "none", "memory", "redis", "etcd":
	default:
		return fmt.Errorf("unsupported membership backend %q", c.Membership.Backend)
	}
	if c.Membership.Backend != "none" && c.Membership.HeartbeatInterval >= c.Membership.TTL {
		return fmt.Errorf("membership heartbeat_interval (%s) must be shorter than ttl (%s)",
			c.Membership.HeartbeatInterval, c.Membership.TTL)
	}
	switch c.Reaper.Archive {
	case "none", "minio", "mongodb":
	default:
		return fmt.Errorf("unsupported reaper archive %q", c.Reaper.Archive)
	}
	for kind, wh := range c.Handlers.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("webhook handler for %q has no url", kind)
		}
	}
	return nil
}
