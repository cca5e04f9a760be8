package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all application configuration, grouped by concern.
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Broker    BrokerConfig    `mapstructure:"broker" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment" validate:"oneof=development staging production"`
	LogLevel    string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type BrokerConfig struct {
	// URL is the AMQP connection string.
	URL string `mapstructure:"url" validate:"required"`
	// ConsumerGroup names the logical audit consumer group. Instances
	// sharing the value divide the stream; a distinct value receives an
	// independent full copy.
	ConsumerGroup string `mapstructure:"consumer_group" validate:"required"`
	PoisonTopic   string `mapstructure:"poison_topic"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

type AuthConfig struct {
	// JWTSecret verifies tokens issued by the external identity
	// collaborator. Token issuance is out of scope.
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
	// Window bounds how long a connection may stay unauthenticated.
	Window time.Duration `mapstructure:"window"`
}

type GatewayConfig struct {
	SendBuffer       int           `mapstructure:"send_buffer"`
	MailboxSize      int           `mapstructure:"mailbox_size"`
	SendTimeout      time.Duration `mapstructure:"send_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	EvictionInterval time.Duration `mapstructure:"eviction_interval"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	// EnforceOwnership rejects subscriptions to tasks the authenticated
	// user does not own.
	EnforceOwnership bool `mapstructure:"enforce_ownership"`
}

type AuditConfig struct {
	// DedupCacheSize bounds the in-memory cache of recently applied
	// event IDs that fronts the sink's uniqueness constraint.
	DedupCacheSize int `mapstructure:"dedup_cache_size"`
	MaxRetries     int `mapstructure:"max_retries"`
}

type TelemetryConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
}

// Enabled reports whether OTLP export is configured.
func (t TelemetryConfig) Enabled() bool { return t.Endpoint != "" }

func (s ServiceConfig) IsProduction() bool { return s.Environment == "production" }

// LoadConfig reads configuration from an optional YAML file and the
// environment (prefix TES_, e.g. TES_BROKER_URL). Flags already bound
// to the viper instance take precedence over both.
func LoadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("service.name", "task-events-service")
	v.SetDefault("service.environment", "development")
	v.SetDefault("service.log_level", "info")
	v.SetDefault("server.addr", ":8084")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("broker.consumer_group", "audit-consumer")
	v.SetDefault("broker.poison_topic", "task-events.poison")
	v.SetDefault("auth.window", 10*time.Second)
	v.SetDefault("gateway.send_buffer", 256)
	v.SetDefault("gateway.mailbox_size", 2048)
	v.SetDefault("gateway.send_timeout", 500*time.Millisecond)
	v.SetDefault("gateway.idle_timeout", 30*time.Minute)
	v.SetDefault("gateway.eviction_interval", 15*time.Minute)
	v.SetDefault("gateway.write_timeout", 10*time.Second)
	v.SetDefault("gateway.enforce_ownership", true)
	v.SetDefault("audit.dedup_cache_size", 8192)
	v.SetDefault("audit.max_retries", 3)
	v.SetDefault("telemetry.service_name", "task-events-service")

	v.SetEnvPrefix("TES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return &cfg, nil
}
