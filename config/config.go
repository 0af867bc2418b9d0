// Package config loads the gateway's environment-driven configuration once
// at boot via viper, validating it before anything else starts.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// KafkaConfig holds broker connectivity and auth.
type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	SSL         bool     `mapstructure:"ssl"`
	SASLEnabled bool     `mapstructure:"sasl_enabled"`
	APIKey      string   `mapstructure:"api_key"`
	APISecret   string   `mapstructure:"api_secret"`
}

// SchemaRegistryConfig holds schema registry connectivity.
type SchemaRegistryConfig struct {
	URL    string `mapstructure:"url"`
	Key    string `mapstructure:"key"`
	Secret string `mapstructure:"secret"`
}

// PostgresConfig holds ledger connection parameters.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	DB       string `mapstructure:"db"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// DSN builds the Postgres connection string for pgx/v5/stdlib.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		p.Host, p.Port, p.DB, p.User, p.Password)
}

// Config is the gateway's full boot configuration.
type Config struct {
	KafkaBrokers             string               `mapstructure:"kafka_brokers"`
	KafkaSSL                 bool                 `mapstructure:"kafka_ssl"`
	KafkaSASLEnabled         bool                 `mapstructure:"kafka_sasl_enabled"`
	KafkaAPIKey              string               `mapstructure:"kafka_api_key"`
	KafkaAPISecret           string               `mapstructure:"kafka_api_secret"`
	SchemaRegistryURL        string               `mapstructure:"schema_registry_url"`
	SchemaRegistryKey        string               `mapstructure:"schema_registry_key"`
	SchemaRegistrySecret     string               `mapstructure:"schema_registry_secret"`
	PostgresHost             string               `mapstructure:"postgres_host"`
	PostgresPort             int                  `mapstructure:"postgres_port"`
	PostgresDB               string               `mapstructure:"postgres_db"`
	PostgresUser             string               `mapstructure:"postgres_user"`
	PostgresPassword         string               `mapstructure:"postgres_password"`
	JWTSecret                string               `mapstructure:"jwt_secret"`
	HTTPPort                 int                  `mapstructure:"http_port"`
}

// Kafka returns the KafkaConfig view of Config.
func (c Config) Kafka() KafkaConfig {
	return KafkaConfig{
		Brokers:     strings.Split(c.KafkaBrokers, ","),
		SSL:         c.KafkaSSL,
		SASLEnabled: c.KafkaSASLEnabled,
		APIKey:      c.KafkaAPIKey,
		APISecret:   c.KafkaAPISecret,
	}
}

// Postgres returns the PostgresConfig view of Config.
func (c Config) Postgres() PostgresConfig {
	return PostgresConfig{
		Host:     c.PostgresHost,
		Port:     c.PostgresPort,
		DB:       c.PostgresDB,
		User:     c.PostgresUser,
		Password: c.PostgresPassword,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("kafka_brokers", "localhost:9092")
	v.SetDefault("kafka_ssl", false)
	v.SetDefault("kafka_sasl_enabled", false)
	v.SetDefault("kafka_api_key", "")
	v.SetDefault("kafka_api_secret", "")
	v.SetDefault("schema_registry_url", "")
	v.SetDefault("schema_registry_key", "")
	v.SetDefault("schema_registry_secret", "")
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_db", "velivolant")
	v.SetDefault("postgres_user", "postgres")
	v.SetDefault("postgres_password", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("http_port", 8080)
}

// Load reads configuration from the environment, applying defaults for
// anything unset, then validates the result.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the enumerated required fields, per spec.md §6.
func (c Config) Validate() error {
	if c.KafkaBrokers == "" {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.PostgresHost == "" || c.PostgresDB == "" || c.PostgresUser == "" {
		return fmt.Errorf("postgres connection parameters are incomplete")
	}
	if c.KafkaSASLEnabled && (c.KafkaAPIKey == "" || c.KafkaAPISecret == "") {
		return fmt.Errorf("KAFKA_API_KEY and KAFKA_API_SECRET are required when KAFKA_SASL_ENABLED is set")
	}
	return nil
}
