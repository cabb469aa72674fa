package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendFile     = "file"
	BackendBlob     = "blob"
	BackendPostgres = "postgres"
)

type Config struct {
	Environment string
	LogLevel    string
	Port        string

	StorageBackend string
	DataDir        string
	StaticDir      string
	GeoIPDBPath    string
	MaxBodyBytes   int64

	Blob     BlobConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
}

type BlobConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type PostgresConfig struct {
	Host            string
	Port            string
	Database        string
	Username        string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SSLMode         string
}

type KafkaConfig struct {
	// Brokers empty means the event mirror is disabled.
	Brokers         []string
	Topic           string
	ProducerRetries int
	ProducerTimeout time.Duration
	RequiredAcks    int
	CompressionType string
	MaxMessageBytes int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Port:           getEnv("PORT", "3000"),
		StorageBackend: getEnv("STORAGE_BACKEND", BackendFile),
		DataDir:        getEnv("DATA_DIR", "data"),
		StaticDir:      getEnv("STATIC_DIR", ""),
		GeoIPDBPath:    getEnv("GEOIP_DB_PATH", ""),
		MaxBodyBytes:   int64(getEnvAsInt("MAX_BODY_BYTES", 256*1024)),
	}

	switch cfg.StorageBackend {
	case BackendFile, BackendBlob, BackendPostgres:
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	cfg.Blob = BlobConfig{
		BaseURL: getEnv("BLOB_BASE_URL", "https://blob.vercel-storage.com"),
		Token:   getEnv("BLOB_READ_WRITE_TOKEN", ""),
		Timeout: getEnvAsDuration("BLOB_TIMEOUT", 30*time.Second),
	}
	if cfg.StorageBackend == BackendBlob && cfg.Blob.Token == "" {
		return nil, fmt.Errorf("BLOB_READ_WRITE_TOKEN is required for the blob backend")
	}

	cfg.Postgres = PostgresConfig{
		Host:            getEnv("POSTGRES_HOST", "localhost"),
		Port:            getEnv("POSTGRES_PORT", "5432"),
		Database:        getEnv("POSTGRES_DB", "campaign"),
		Username:        getEnv("POSTGRES_USER", "admin"),
		Password:        getEnv("POSTGRES_PASSWORD", "password"),
		MaxOpenConns:    getEnvAsInt("POSTGRES_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("POSTGRES_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("POSTGRES_CONN_MAX_LIFETIME", 5*time.Minute),
		SSLMode:         getEnv("POSTGRES_SSL_MODE", "disable"),
	}

	brokers := getEnv("KAFKA_BROKERS", "")
	cfg.Kafka = KafkaConfig{
		Topic:           getEnv("KAFKA_TOPIC_EVENTS", "visitor-events"),
		ProducerRetries: getEnvAsInt("KAFKA_PRODUCER_RETRIES", 3),
		ProducerTimeout: getEnvAsDuration("KAFKA_PRODUCER_TIMEOUT", 10*time.Second),
		RequiredAcks:    getEnvAsInt("KAFKA_REQUIRED_ACKS", 1),
		CompressionType: getEnv("KAFKA_COMPRESSION", "snappy"),
		MaxMessageBytes: getEnvAsInt("KAFKA_MAX_MESSAGE_BYTES", 1000000),
	}
	if brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}

	return cfg, nil
}

func (c *PostgresConfig) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode)
}

func (c *KafkaConfig) MirrorEnabled() bool {
	return len(c.Brokers) > 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
