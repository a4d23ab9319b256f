package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caz-payments/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Gateway      GatewayConfig      `mapstructure:"gateway"`
	Credentials  CredentialsConfig  `mapstructure:"credentials"`
	Payment      PaymentConfig      `mapstructure:"payment"`
	Reconcile    ReconcileConfig    `mapstructure:"reconcile"`
	Outbox       OutboxConfig       `mapstructure:"outbox"`
	Notification NotificationConfig `mapstructure:"notification"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	NewRelic     NewRelicConfig     `mapstructure:"newrelic"`
	Idempotency  IdempotencyConfig  `mapstructure:"idempotency"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver      string             `mapstructure:"driver"`       // 数据库驱动（sqlite/postgres）
	DSN         string             `mapstructure:"dsn"`          // 数据库连接串
	MigrateMode string             `mapstructure:"migrate_mode"` // auto: gorm AutoMigrate；sql: 执行内嵌 SQL 迁移（仅 postgres）
	Pool        DatabasePoolConfig `mapstructure:"pool"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// KafkaConfig 收据通知消息通道配置
type KafkaConfig struct {
	Enabled             bool     `mapstructure:"enabled"`
	Brokers             []string `mapstructure:"brokers"`
	Topic               string   `mapstructure:"topic"`
	WriteTimeoutSeconds int      `mapstructure:"write_timeout_seconds"`
	MaxAttempts         int      `mapstructure:"max_attempts"`
}

// WriteTimeout 写入超时
func (c KafkaConfig) WriteTimeout() time.Duration {
	return secondsOr(c.WriteTimeoutSeconds, 10)
}

// GatewayEndpointConfig 单个网关的连接配置
type GatewayEndpointConfig struct {
	APIBaseURL     string `mapstructure:"api_base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
	RetryBackoffMS int    `mapstructure:"retry_backoff_ms"`
}

// Timeout 单次请求超时
func (c GatewayEndpointConfig) Timeout() time.Duration {
	return secondsOr(c.TimeoutSeconds, 12)
}

// RetryBackoff 重试间隔
func (c GatewayEndpointConfig) RetryBackoff() time.Duration {
	if c.RetryBackoffMS <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}

// GatewayConfig 支付网关配置
type GatewayConfig struct {
	Card        GatewayEndpointConfig `mapstructure:"card"`
	DirectDebit GatewayEndpointConfig `mapstructure:"direct_debit"`
}

// CredentialsConfig 网关密钥配置
type CredentialsConfig struct {
	Source              string            `mapstructure:"source"` // config / redis
	CardAPIKeys         map[string]string `mapstructure:"card_api_keys"`
	DirectDebitAPIKeys  map[string]string `mapstructure:"direct_debit_api_keys"`
	RedisHashPrefix     string            `mapstructure:"redis_hash_prefix"`
	InvalidationChannel string            `mapstructure:"invalidation_channel"`
}

// PaymentConfig 支付创建配置
type PaymentConfig struct {
	RemainderPolicy  string `mapstructure:"remainder_policy"`
	MandateReturnURL string `mapstructure:"mandate_return_url"`
}

// ReconcileConfig 对账配置
type ReconcileConfig struct {
	DanglingIntervalSeconds int `mapstructure:"dangling_interval_seconds"`
	DanglingMinAgeSeconds   int `mapstructure:"dangling_min_age_seconds"`
	BatchSize               int `mapstructure:"batch_size"`
	LockTTLSeconds          int `mapstructure:"lock_ttl_seconds"`
}

// DanglingInterval 悬挂支付扫描间隔
func (c ReconcileConfig) DanglingInterval() time.Duration {
	return secondsOr(c.DanglingIntervalSeconds, 300)
}

// DanglingMinAge 进入扫描范围的最小支付时长
func (c ReconcileConfig) DanglingMinAge() time.Duration {
	return secondsOr(c.DanglingMinAgeSeconds, 5400)
}

// LockTTL 扫描任务锁时长
func (c ReconcileConfig) LockTTL() time.Duration {
	return secondsOr(c.LockTTLSeconds, 240)
}

// OutboxConfig 发件箱投递配置
type OutboxConfig struct {
	RelayIntervalSeconds int `mapstructure:"relay_interval_seconds"`
	BatchSize            int `mapstructure:"batch_size"`
	MaxAttempts          int `mapstructure:"max_attempts"`
}

// RelayInterval 投递轮询间隔
func (c OutboxConfig) RelayInterval() time.Duration {
	return secondsOr(c.RelayIntervalSeconds, 5)
}

// NotificationConfig 收据通知配置
type NotificationConfig struct {
	ReceiptTemplateID string            `mapstructure:"receipt_template_id"`
	ZoneNames         map[string]string `mapstructure:"zone_names"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// NewRelicConfig APM 配置
type NewRelicConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	AppName    string `mapstructure:"app_name"`
	LicenseKey string `mapstructure:"license_key"`
}

// IdempotencyConfig 幂等键配置
type IdempotencyConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	TTLHours int  `mapstructure:"ttl_hours"`
}

// TTL 幂等响应缓存时长
func (c IdempotencyConfig) TTL() time.Duration {
	if c.TTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.TTLHours) * time.Hour
}

// RateLimitRuleConfig 单条限流规则
type RateLimitRuleConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// RateLimitConfig 接口限流配置
type RateLimitConfig struct {
	Enabled       bool                `mapstructure:"enabled"`
	PaymentCreate RateLimitRuleConfig `mapstructure:"payment_create"`
	CardCallback  RateLimitRuleConfig `mapstructure:"card_callback"`
}

// Load 从 config.yml 加载配置
func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")
	viper.AddConfigPath("./etc")

	setDefaults(viper.GetViper())

	// 环境变量支持，例如 server.port -> SERVER_PORT
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", viper.ConfigFileUsed())
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "caz-payments.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/caz_payments.db")
	v.SetDefault("database.migrate_mode", "auto")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "caz")
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic", "payment-receipts")
	v.SetDefault("kafka.write_timeout_seconds", 10)
	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("gateway.card.api_base_url", "https://publicapi.payments.service.gov.uk")
	v.SetDefault("gateway.card.timeout_seconds", 12)
	v.SetDefault("gateway.card.max_retries", 2)
	v.SetDefault("gateway.card.retry_backoff_ms", 200)
	v.SetDefault("gateway.direct_debit.api_base_url", "https://publicapi.payments.service.gov.uk")
	v.SetDefault("gateway.direct_debit.timeout_seconds", 12)
	v.SetDefault("gateway.direct_debit.max_retries", 2)
	v.SetDefault("gateway.direct_debit.retry_backoff_ms", 200)
	v.SetDefault("credentials.source", "config")
	v.SetDefault("credentials.redis_hash_prefix", "credentials")
	v.SetDefault("credentials.invalidation_channel", "credentials:invalidate")
	v.SetDefault("payment.remainder_policy", "truncate")
	v.SetDefault("payment.mandate_return_url", "")
	v.SetDefault("reconcile.dangling_interval_seconds", 300)
	v.SetDefault("reconcile.dangling_min_age_seconds", 5400)
	v.SetDefault("reconcile.batch_size", 100)
	v.SetDefault("reconcile.lock_ttl_seconds", 240)
	v.SetDefault("outbox.relay_interval_seconds", 5)
	v.SetDefault("outbox.batch_size", 20)
	v.SetDefault("outbox.max_attempts", 10)
	v.SetDefault("notification.receipt_template_id", "")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("newrelic.enabled", false)
	v.SetDefault("newrelic.app_name", "caz-payments")
	v.SetDefault("idempotency.enabled", true)
	v.SetDefault("idempotency.ttl_hours", 24)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.payment_create.window_seconds", 60)
	v.SetDefault("rate_limit.payment_create.max_requests", 10)
	v.SetDefault("rate_limit.card_callback.window_seconds", 60)
	v.SetDefault("rate_limit.card_callback.max_requests", 120)
}

func secondsOr(value int, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}
