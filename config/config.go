package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultTokenTTL     = 7 * 24 * time.Hour
	defaultBcryptCost   = 10
	defaultEventChannel = "linklite.users"
)

type Config struct {
	Env        string
	ServerPort int
	LogLevel   string
	Database   DatabaseConfig
	Auth       AuthConfig
	MQ         MQConfig
}

type DatabaseConfig struct {
	// URL takes precedence over the individual fields when set.
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type AuthConfig struct {
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int
	// RateLimit is the number of auth attempts allowed per client per minute.
	RateLimit int
	RateBurst int
}

type MQConfig struct {
	// Backend is one of "none", "rabbitmq" or "pubsub".
	Backend  string
	Channel  string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	PrefetchCount   int
	QueueDurable    bool
	QueueAutoDelete bool
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

// LoadConfig reads the process environment. A missing JWT secret or missing
// database location is an error; the server must not start without them.
func LoadConfig() (Config, error) {
	env := getEnv("ENV", "")
	if env == "dev" {
		_ = godotenv.Load()
	}

	ttl, err := ParseTTL(getEnv("JWT_EXPIRE", ""))
	if err != nil {
		return Config{}, fmt.Errorf("JWT_EXPIRE: %w", err)
	}

	dbConfig := loadDatabaseConfig()

	cfg := Config{
		Env:        env,
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		Database:   dbConfig,
		Auth: AuthConfig{
			JWTSecret:  strings.TrimSpace(getEnv("JWT_SECRET", "")),
			TokenTTL:   ttl,
			BcryptCost: getEnvInt("BCRYPT_COST", defaultBcryptCost),
			RateLimit:  getEnvInt("AUTH_RATE_LIMIT", 20),
			RateBurst:  getEnvInt("AUTH_RATE_BURST", 5),
		},
		MQ: MQConfig{
			Backend: strings.ToLower(getEnv("MQ_BACKEND", "none")),
			Channel: getEnv("EVENTS_CHANNEL", defaultEventChannel),
			RabbitMQ: RabbitMQConfig{
				URL:             getEnv("RABBITMQ_URL", ""),
				PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 0),
				QueueDurable:    getEnvBool("RABBITMQ_DURABLE", true),
				QueueAutoDelete: getEnvBool("RABBITMQ_AUTO_DELETE", false),
			},
			PubSub: PubSubConfig{
				ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
				CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
				SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", ""),
			},
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDatabaseConfig reads only the database settings, for commands such as
// migrate that never touch tokens.
func LoadDatabaseConfig() (DatabaseConfig, error) {
	if getEnv("ENV", "") == "dev" {
		_ = godotenv.Load()
	}
	cfg := loadDatabaseConfig()
	if err := cfg.Validate(); err != nil {
		return DatabaseConfig{}, err
	}
	return cfg, nil
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:      strings.TrimSpace(getEnv("DATABASE_URL", "")),
		Host:     strings.TrimSpace(getEnv("DB_HOST", "")),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "linklite"),
		Password: getEnv("DB_PASSWORD", ""),
		DBName:   getEnv("DB_NAME", "linklite"),
		UseSSL:   getEnvBool("DB_SSL", false),
	}
}

func (c DatabaseConfig) Validate() error {
	if c.URL == "" && c.Host == "" {
		return errors.New("DATABASE_URL or DB_HOST is required")
	}
	return nil
}

// Validate reports configuration the server cannot run without.
func (c Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	switch c.MQ.Backend {
	case "", "none", "rabbitmq", "pubsub":
	default:
		return fmt.Errorf("unsupported MQ_BACKEND %q", c.MQ.Backend)
	}
	return nil
}

// ParseTTL accepts Go durations ("1h", "90m") and whole days ("7d").
// An empty value yields the default of seven days.
func ParseTTL(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultTokenTTL, nil
	}
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 1 {
			return 0, fmt.Errorf("invalid day count %q", raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	ttl, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if ttl <= 0 {
		return 0, fmt.Errorf("non-positive duration %q", raw)
	}
	return ttl, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}
