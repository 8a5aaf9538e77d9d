package config

import (
	"strings"
	"time"

	"balanceledger/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server     ServerConfig    `mapstructure:"server"`
	Database   DatabaseConfig  `mapstructure:"database"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Kafka      KafkaConfig     `mapstructure:"kafka"`
	Business   BusinessConfig  `mapstructure:"business"`
	Thresholds ThresholdConfig `mapstructure:"thresholds"`
	Log        logger.Config   `mapstructure:"log"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql | sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SQLitePath   string `mapstructure:"sqlite_path"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	LedgerEvent  string `mapstructure:"ledger_event"`
	BalanceAlert string `mapstructure:"balance_alert"`
}

type BusinessConfig struct {
	TxTimeoutSeconds      int    `mapstructure:"tx_timeout_seconds"`
	LockTTLSeconds        int    `mapstructure:"lock_ttl_seconds"`
	LockRetryIntervalMs   int    `mapstructure:"lock_retry_interval_ms"`
	MaxRetryCount         int    `mapstructure:"max_retry_count"`
	OutboxIntervalMs      int    `mapstructure:"outbox_interval_ms"`
	OutboxBatchSize       int    `mapstructure:"outbox_batch_size"`
	AuditCron             string `mapstructure:"audit_cron"`
	AuditLookbackHours    int    `mapstructure:"audit_lookback_hours"`
	ConfigCacheTTLSeconds int    `mapstructure:"config_cache_ttl_seconds"`
	NodeID                int64  `mapstructure:"node_id"`
}

// ThresholdConfig balance_config 表为空时使用的默认阈值，0 表示不检查
type ThresholdConfig struct {
	MinRechargeAmount     string `mapstructure:"min_recharge_amount"`
	MaxRechargeAmount     string `mapstructure:"max_recharge_amount"`
	MaxDailyRecharge      string `mapstructure:"max_daily_recharge"`
	MaxBalanceLimit       string `mapstructure:"max_balance_limit"`
	LargeRechargeAlert    string `mapstructure:"large_recharge_alert"`
	LargeConsumeAlert     string `mapstructure:"large_consume_alert"`
	FrequentRechargeCount int    `mapstructure:"frequent_recharge_count"`
	FrequentConsumeCount  int    `mapstructure:"frequent_consume_count"`
	LargeAdjustAlert      string `mapstructure:"large_adjust_alert"`
}

func (b BusinessConfig) TxTimeout() time.Duration {
	if b.TxTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(b.TxTimeoutSeconds) * time.Second
}

func (b BusinessConfig) LockTTL() time.Duration {
	if b.LockTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(b.LockTTLSeconds) * time.Second
}

func (b BusinessConfig) LockRetryInterval() time.Duration {
	if b.LockRetryIntervalMs <= 0 {
		return 50 * time.Millisecond
	}
	return time.Duration(b.LockRetryIntervalMs) * time.Millisecond
}

func (b BusinessConfig) ConfigCacheTTL() time.Duration {
	if b.ConfigCacheTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(b.ConfigCacheTTLSeconds) * time.Second
}

// Dec 解析配置里的金额字符串，空或非法视为 0
func Dec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		log.Warn().Str("value", s).Msg("金额配置非法，按 0 处理")
		return decimal.Zero
	}
	return d
}

var GlobalConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("kafka.topic.ledger_event", "balance_ledger_event")
	v.SetDefault("kafka.topic.balance_alert", "balance_alert")
	v.SetDefault("business.tx_timeout_seconds", 5)
	v.SetDefault("business.lock_ttl_seconds", 30)
	v.SetDefault("business.lock_retry_interval_ms", 50)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.outbox_interval_ms", 200)
	v.SetDefault("business.outbox_batch_size", 100)
	v.SetDefault("business.audit_cron", "@every 10m")
	v.SetDefault("business.audit_lookback_hours", 24)
	v.SetDefault("business.config_cache_ttl_seconds", 30)
	v.SetDefault("business.node_id", 1)
	v.SetDefault("log.level", "info")
}

// LoadConfig 加载配置文件，环境变量 LEDGER_* 覆盖同名配置
func LoadConfig(configPath string) *Config {
	// .env 可选，不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("读取配置文件失败")
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		log.Fatal().Err(err).Msg("解析配置文件失败")
	}

	GlobalConfig = config
	return config
}
