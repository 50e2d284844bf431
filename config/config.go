package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"

	BackendNone     = "none"
	BackendRabbitMQ = "rabbitmq"
	BackendPubSub   = "pubsub"
	BackendMinio    = "minio"
	BackendGCS      = "gcs"

	// MinBcryptCost is the lowest work factor accepted from configuration.
	MinBcryptCost = 10
)

type Config struct {
	Env        string `env:"ENV"`
	ServerPort int    `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat  string `env:"LOG_FORMAT" envDefault:"text"`

	Database  DatabaseConfig
	Auth      AuthConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	MQ        MQConfig
	Archive   ArchiveConfig
}

type DatabaseConfig struct {
	Driver       string        `env:"DB_DRIVER" envDefault:"postgres"`
	Host         string        `env:"DB_HOST" envDefault:"localhost"`
	Port         int           `env:"DB_PORT" envDefault:"5432"`
	User         string        `env:"DB_USER" envDefault:"accounts"`
	Password     string        `env:"DB_PASSWORD" envDefault:"password"`
	DBName       string        `env:"DB_NAME" envDefault:"accounts_db"`
	UseSSL       bool          `env:"DB_USE_SSL" envDefault:"false"`
	SQLitePath   string        `env:"SQLITE_PATH" envDefault:"accounts.db"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
}

type AuthConfig struct {
	JWTSecret       string        `env:"JWT_SECRET,required,notEmpty"`
	TokenTTL        time.Duration `env:"TOKEN_TTL" envDefault:"1h"`
	TokenIssuer     string        `env:"TOKEN_ISSUER" envDefault:"accounts"`
	BcryptCost      int           `env:"BCRYPT_COST" envDefault:"10"`
	HashConcurrency int           `env:"HASH_CONCURRENCY" envDefault:"0"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	UseTLS   bool   `env:"REDIS_TLS" envDefault:"false"`
}

type RateLimitConfig struct {
	Enabled        bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	Capacity       int           `env:"RATE_LIMIT_CAPACITY" envDefault:"10"`
	RefillTokens   int           `env:"RATE_LIMIT_REFILL_TOKENS" envDefault:"1"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" envDefault:"6s"`
	TTL            time.Duration `env:"RATE_LIMIT_TTL" envDefault:"10m"`
	Prefix         string        `env:"RATE_LIMIT_PREFIX" envDefault:"rl"`
}

type MQConfig struct {
	Backend  string `env:"MQ_BACKEND" envDefault:"none"`
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string `env:"RABBITMQ_URL"`
	QueueDurable    bool   `env:"RABBITMQ_QUEUE_DURABLE" envDefault:"true"`
	QueueAutoDelete bool   `env:"RABBITMQ_QUEUE_AUTO_DELETE" envDefault:"false"`
	PrefetchCount   int    `env:"RABBITMQ_PREFETCH" envDefault:"0"`
}

type PubSubConfig struct {
	ProjectID          string `env:"PUBSUB_PROJECT_ID"`
	CredentialsFile    string `env:"PUBSUB_CREDENTIALS_FILE"`
	SubscriptionSuffix string `env:"PUBSUB_SUBSCRIPTION_SUFFIX" envDefault:"-sub"`
}

type ArchiveConfig struct {
	Backend string `env:"ARCHIVE_BACKEND" envDefault:"none"`
	Minio   MinioConfig
	GCS     GCSConfig
}

type MinioConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Bucket    string `env:"MINIO_BUCKET"`
	UseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`
}

type GCSConfig struct {
	Bucket          string `env:"GCS_BUCKET"`
	ProjectID       string `env:"GCS_PROJECT_ID"`
	CredentialsFile string `env:"GCS_CREDENTIALS_FILE"`
}

// LoadConfig reads configuration from the environment. A .env file is
// honoured when ENV=dev. A missing JWT_SECRET is an error: tokens are never
// signed with a built-in fallback.
func LoadConfig() (Config, error) {
	loadDotEnv()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadSection parses a single configuration section, for commands that only
// talk to one backend and should not require the rest of the settings.
func LoadSection[T any]() (T, error) {
	loadDotEnv()
	return env.ParseAs[T]()
}

func loadDotEnv() {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}
}

// Validate checks values that struct tags cannot express.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.Auth.BcryptCost < MinBcryptCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d", MinBcryptCost, bcrypt.MaxCost))
	}
	if c.Auth.HashConcurrency < 0 {
		errs = append(errs, errors.New("HASH_CONCURRENCY must not be negative"))
	}
	if c.Database.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}

	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver))
	}
	switch c.MQ.Backend {
	case BackendNone, BackendRabbitMQ, BackendPubSub:
	default:
		errs = append(errs, fmt.Errorf("unknown MQ_BACKEND %q", c.MQ.Backend))
	}
	switch c.Archive.Backend {
	case BackendNone, BackendMinio, BackendGCS:
	default:
		errs = append(errs, fmt.Errorf("unknown ARCHIVE_BACKEND %q", c.Archive.Backend))
	}

	return errors.Join(errs...)
}
