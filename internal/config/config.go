package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API         APIConfig         `mapstructure:"api"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	MinIO       MinIOConfig       `mapstructure:"minio"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Internal    InternalConfig    `mapstructure:"internal"`
	Recommend   RecommendConfig   `mapstructure:"recommend"`
	SavedSearch SavedSearchConfig `mapstructure:"savedsearch"`
	Log         LogConfig         `mapstructure:"log"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// 以下两项是每用户每小时的请求上限。
	LoginRateLimit   int `mapstructure:"login_rate_limit"`
	RefreshRateLimit int `mapstructure:"refresh_rate_limit"`
}

// WorkerConfig 包含异步任务消费端配置。
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	MetricsPort int `mapstructure:"metrics_port"`
	MaxRetry    int `mapstructure:"max_retry"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
	LogSQL   bool   `mapstructure:"log_sql"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr 返回 host:port 形式的地址，供 go-redis 与 asynq 共用。
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
// Storage is optional: with an empty endpoint resume links are never generated.
type MinIOConfig struct {
	Endpoint         string        `mapstructure:"endpoint"`
	PublicEndpoint   string        `mapstructure:"public_endpoint"`
	Region           string        `mapstructure:"region"`
	BucketLookup     string        `mapstructure:"bucket_lookup"`
	AccessKeyID      string        `mapstructure:"access_key_id"`
	SecretAccessKey  string        `mapstructure:"secret_access_key"`
	UseSSL           bool          `mapstructure:"use_ssl"`
	Bucket           string        `mapstructure:"bucket"`
	AutoCreateBucket bool          `mapstructure:"auto_create_bucket"`
	ResumeLinkTTL    time.Duration `mapstructure:"resume_link_ttl"`
}

// Enabled 表示是否配置了对象存储。
func (m MinIOConfig) Enabled() bool {
	return strings.TrimSpace(m.Endpoint) != ""
}

// AuthConfig 描述 JWT 校验与签发所需的密钥。
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// InternalConfig 保存内部协作方回调使用的共享密钥。
type InternalConfig struct {
	Secret string `mapstructure:"secret"`
}

// RecommendConfig 是推荐打分的全局常量，启动时读取一次。
type RecommendConfig struct {
	SkillWeight     float64       `mapstructure:"skill_weight"`
	LocationWeight  float64       `mapstructure:"location_weight"`
	Threshold       int           `mapstructure:"threshold"`
	TopK            int           `mapstructure:"top_k"`
	StickyDismissal bool          `mapstructure:"sticky_dismissal"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	BusyRetryDelay  time.Duration `mapstructure:"busy_retry_delay"`
}

// SavedSearchConfig 控制保存搜索的定时执行。
type SavedSearchConfig struct {
	Schedule string `mapstructure:"schedule"`
}

// LogConfig 控制 slog 输出。
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.login_rate_limit", 10)
	v.SetDefault("api.refresh_rate_limit", 30)
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.metrics_port", 9091)
	v.SetDefault("worker.max_retry", 10)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "jobboard")
	v.SetDefault("database.user", "jobboard")
	v.SetDefault("database.password", "jobboard")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.log_sql", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "resumes")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.resume_link_ttl", 15*time.Minute)
	v.SetDefault("auth.public_key_path", "keys/jwt_public.pem")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("recommend.skill_weight", 0.7)
	v.SetDefault("recommend.location_weight", 0.3)
	v.SetDefault("recommend.threshold", 15)
	v.SetDefault("recommend.top_k", 10)
	v.SetDefault("recommend.sticky_dismissal", false)
	v.SetDefault("recommend.lock_ttl", 2*time.Minute)
	v.SetDefault("recommend.busy_retry_delay", 2*time.Second)
	v.SetDefault("savedsearch.schedule", "@every 1h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                    "API_PORT",
		"api.allowed_origins":         "API_ALLOWED_ORIGINS",
		"api.login_rate_limit":        "API_LOGIN_RATE_LIMIT",
		"api.refresh_rate_limit":      "API_REFRESH_RATE_LIMIT",
		"worker.concurrency":          "WORKER_CONCURRENCY",
		"worker.metrics_port":         "WORKER_METRICS_PORT",
		"worker.max_retry":            "WORKER_MAX_RETRY",
		"database.host":               "DATABASE_HOST",
		"database.port":               "DATABASE_PORT",
		"database.name":               "POSTGRES_DB",
		"database.user":               "POSTGRES_USER",
		"database.password":           "POSTGRES_PASSWORD",
		"database.sslmode":            "DATABASE_SSLMODE",
		"database.log_sql":            "DATABASE_LOG_SQL",
		"redis.host":                  "REDIS_HOST",
		"redis.port":                  "REDIS_PORT",
		"minio.endpoint":              "MINIO_ENDPOINT",
		"minio.public_endpoint":       "MINIO_PUBLIC_ENDPOINT",
		"minio.region":                "MINIO_REGION",
		"minio.bucket_lookup":         "MINIO_BUCKET_LOOKUP",
		"minio.access_key_id":         "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":     "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":               "MINIO_USE_SSL",
		"minio.bucket":                "MINIO_BUCKET",
		"minio.auto_create_bucket":    "MINIO_AUTO_CREATE_BUCKET",
		"minio.resume_link_ttl":       "MINIO_RESUME_LINK_TTL",
		"auth.public_key_path":        "JWT_PUBLIC_KEY_PATH",
		"auth.private_key_path":       "JWT_PRIVATE_KEY_PATH",
		"auth.access_token_ttl":       "JWT_ACCESS_TOKEN_TTL",
		"internal.secret":             "INTERNAL_API_SECRET",
		"recommend.skill_weight":      "RECOMMEND_SKILL_WEIGHT",
		"recommend.location_weight":   "RECOMMEND_LOCATION_WEIGHT",
		"recommend.threshold":         "RECOMMEND_THRESHOLD",
		"recommend.top_k":             "RECOMMEND_TOP_K",
		"recommend.sticky_dismissal":  "RECOMMEND_STICKY_DISMISSAL",
		"recommend.lock_ttl":          "RECOMMEND_LOCK_TTL",
		"recommend.busy_retry_delay":  "RECOMMEND_BUSY_RETRY_DELAY",
		"savedsearch.schedule":        "SAVED_SEARCH_SCHEDULE",
		"log.level":                   "LOG_LEVEL",
		"log.format":                  "LOG_FORMAT",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.Worker.Concurrency <= 0 {
		return errors.New("worker concurrency must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Enabled() {
		if cfg.MinIO.AccessKeyID == "" {
			return errors.New("minio access key id is required")
		}
		if cfg.MinIO.SecretAccessKey == "" {
			return errors.New("minio secret access key is required")
		}
		if cfg.MinIO.Bucket == "" {
			return errors.New("minio bucket is required")
		}
	}
	if cfg.Auth.PublicKeyPath == "" {
		return errors.New("jwt public key path is required")
	}
	// 权重为负说明配置写错，直接拒绝而不是截断。
	if cfg.Recommend.SkillWeight < 0 || cfg.Recommend.LocationWeight < 0 {
		return errors.New("recommend weights must not be negative")
	}
	if cfg.Recommend.TopK <= 0 {
		return errors.New("recommend top_k must be positive")
	}
	if cfg.Recommend.Threshold < 0 || cfg.Recommend.Threshold > 100 {
		return errors.New("recommend threshold must be within [0,100]")
	}
	if cfg.Recommend.LockTTL <= 0 {
		return errors.New("recommend lock ttl must be positive")
	}
	if strings.TrimSpace(cfg.SavedSearch.Schedule) == "" {
		return errors.New("saved search schedule is required")
	}
	return nil
}
