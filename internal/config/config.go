package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP       HTTPConfig      `mapstructure:"http"`
	MySQL      DatabaseConfig  `mapstructure:"mysql"`
	ClickHouse DatabaseConfig  `mapstructure:"clickhouse"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Kafka      KafkaConfig     `mapstructure:"kafka"`
	Desk       DeskConfig      `mapstructure:"desk"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
	Relay      RelayConfig     `mapstructure:"relay"`
	Analytics  AnalyticsConfig `mapstructure:"analytics"`
	Log        LogConfig       `mapstructure:"log"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr         string   `mapstructure:"addr"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
	OperatorKeys []string `mapstructure:"operator_keys"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	Topic          string   `mapstructure:"topic"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

// DeskConfig tunes admission and the live views.
type DeskConfig struct {
	MaxSlotsPerService int           `mapstructure:"max_slots_per_service"`
	PromoteAttempts    int           `mapstructure:"promote_attempts"`
	SampleInterval     time.Duration `mapstructure:"sample_interval"`
	QueueStreamTimeout time.Duration `mapstructure:"queue_stream_timeout"`
}

// RateLimitConfig limits session creation per client IP.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

type RelayConfig struct {
	BatchSize    int           `mapstructure:"batch_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Breaker      BreakerConfig `mapstructure:"breaker"`
}

type AnalyticsConfig struct {
	BatchSize int           `mapstructure:"batch_size"`
	BatchWait time.Duration `mapstructure:"batch_wait"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env
// overrides (FLOWPAY_*). A .env file in the working directory is loaded first.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (FLOWPAY_DESK_MAX_SLOTS_PER_SERVICE=5)
	v.SetEnvPrefix("FLOWPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the desk cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Desk.MaxSlotsPerService <= 0 {
		errs = append(errs, fmt.Errorf("desk.max_slots_per_service must be positive, got %d", c.Desk.MaxSlotsPerService))
	}
	if c.Desk.PromoteAttempts <= 0 {
		errs = append(errs, fmt.Errorf("desk.promote_attempts must be positive, got %d", c.Desk.PromoteAttempts))
	}
	if c.Desk.SampleInterval <= 0 {
		errs = append(errs, errors.New("desk.sample_interval must be positive"))
	}
	if c.Desk.QueueStreamTimeout <= 0 {
		errs = append(errs, errors.New("desk.queue_stream_timeout must be positive"))
	}
	return errors.Join(errs...)
}
