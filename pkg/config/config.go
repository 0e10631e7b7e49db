package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Storage struct {
		Driver       string        `yaml:"driver" default:"sqlite" validate:"oneof=sqlite postgres"`
		DSN          string        `yaml:"dsn" default:"file:signalflow.db?_busy_timeout=5000" validate:"required"`
		MaxOpenConns int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns int           `yaml:"max_idle_conns" default:"5"`
		ConnMaxLife  time.Duration `yaml:"conn_max_lifetime" default:"5m"`
	} `yaml:"storage"`
	Redis struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		Prefix   string `yaml:"prefix" default:"signalflow"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers      []string `yaml:"brokers" default:"[\"localhost:9092\"]" validate:"min=1"`
		TopicPrefix  string   `yaml:"topic_prefix" default:"signalflow" validate:"required"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts     int           `yaml:"max_attempts" default:"3"`
			BatchTimeout    time.Duration `yaml:"batch_timeout" default:"10ms"`
			WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
			AutoCreateTopic bool          `yaml:"auto_create_topic" default:"true"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled" default:"true"`
			GroupID    string        `yaml:"group_id" default:"signalflow-audit"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"signalflow.dlq"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled     bool          `yaml:"enabled"`
		Host        string        `yaml:"host" default:"localhost"`
		Port        int           `yaml:"port" default:"9000"`
		Database    string        `yaml:"database" default:"signalflow"`
		User        string        `yaml:"user" default:"default"`
		Password    string        `yaml:"password"`
		DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout time.Duration `yaml:"read_timeout" default:"10s"`
	} `yaml:"clickhouse"`
	Feed struct {
		Type          string        `yaml:"type" default:"binance" validate:"oneof=binance memory"`
		WebSocketURL  string        `yaml:"websocket_url" default:"wss://stream.binance.com:9443/ws"`
		BackoffMin    time.Duration `yaml:"backoff_min" default:"500ms"`
		BackoffMax    time.Duration `yaml:"backoff_max" default:"30s"`
		MaxReconnects int           `yaml:"max_reconnects" default:"8" validate:"gte=0"`
		WindowSize    int           `yaml:"window_size" default:"200" validate:"gt=1"`
		PingInterval  time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"feed"`
	Exchange struct {
		Type         string  `yaml:"type" default:"paper" validate:"oneof=paper binance"`
		APIKey       string  `yaml:"api_key"`
		APISecret    string  `yaml:"api_secret"`
		Testnet      bool    `yaml:"testnet" default:"true"`
		QuantityStep float64 `yaml:"quantity_step" default:"0.001" validate:"gt=0"`
	} `yaml:"exchange"`
	Trading struct {
		AccountEquity float64       `yaml:"account_equity" default:"10000" validate:"gt=0"`
		RiskPercent   float64       `yaml:"risk_percent" default:"2.0"`
		MinRisk       float64       `yaml:"min_risk_percent" default:"2.0" validate:"gt=0"`
		MaxRisk       float64       `yaml:"max_risk_percent" default:"4.0" validate:"gt=0"`
		SubmitTimeout time.Duration `yaml:"submit_timeout" default:"8s"`
		RequestsPerS  float64       `yaml:"requests_per_second" default:"2"`
	} `yaml:"trading"`
	Outbox struct {
		BatchSize  int           `yaml:"batch_size" default:"100" validate:"gt=0"`
		Interval   time.Duration `yaml:"interval" default:"3s" validate:"gt=0"`
		MaxRetries int           `yaml:"max_retries" default:"5" validate:"gte=0"`
		StaleAfter time.Duration `yaml:"stale_after" default:"1m"`
	} `yaml:"outbox"`
	Lock struct {
		Backend  string        `yaml:"backend" default:"redis" validate:"oneof=redis memory"`
		DrainTTL time.Duration `yaml:"drain_ttl" default:"10s" validate:"gt=0"`
		TradeTTL time.Duration `yaml:"trade_ttl" default:"10s" validate:"gt=0"`
	} `yaml:"lock"`
	Notify struct {
		WebhookURL string        `yaml:"webhook_url"`
		Timeout    time.Duration `yaml:"timeout" default:"5s"`
		DedupTTL   time.Duration `yaml:"dedup_ttl" default:"24h"`
	} `yaml:"notify"`
}

var validate = validator.New()

// Default returns a config populated only from struct defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("EXCHANGE_API_KEY"); v != "" {
		c.Exchange.APIKey = v
	}
	if v := os.Getenv("EXCHANGE_API_SECRET"); v != "" {
		c.Exchange.APISecret = v
	}
	if v := os.Getenv("ACCOUNT_EQUITY"); v != "" {
		eq, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("ACCOUNT_EQUITY: %w", err)
		}
		c.Trading.AccountEquity = eq
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks struct tags and the rules that span several fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Trading.MinRisk > c.Trading.MaxRisk {
		return fmt.Errorf("trading.min_risk_percent (%.2f) exceeds max_risk_percent (%.2f)", c.Trading.MinRisk, c.Trading.MaxRisk)
	}
	if c.Trading.RiskPercent < c.Trading.MinRisk || c.Trading.RiskPercent > c.Trading.MaxRisk {
		return fmt.Errorf("trading.risk_percent must be within [%.1f, %.1f], got %.2f", c.Trading.MinRisk, c.Trading.MaxRisk, c.Trading.RiskPercent)
	}
	if c.Lock.DrainTTL < c.Outbox.Interval {
		return fmt.Errorf("lock.drain_ttl (%s) must cover one outbox cycle (%s)", c.Lock.DrainTTL, c.Outbox.Interval)
	}
	if c.Exchange.Type == "binance" && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		return fmt.Errorf("exchange.api_key and exchange.api_secret are required for binance")
	}
	if c.Feed.BackoffMax < c.Feed.BackoffMin {
		return fmt.Errorf("feed.backoff_max must be >= feed.backoff_min")
	}
	return nil
}
