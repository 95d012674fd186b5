package config

import (
	"fmt"
	"os"
	"strconv"
)

// Blob backend selectors.
const (
	BackendGateway = "gateway"
	BackendMinio   = "minio"
)

// Config holds all application configuration.
type Config struct {
	// Service configuration
	ServicePort     string
	ServiceName     string
	ChunkSizeMB     int
	ReadIncrementKB int
	Debug           bool

	// Blob backend selection
	BlobBackend string

	// Blob gateway configuration
	GatewayBaseURL  string
	GatewayAPIToken string
	GatewayChatID   string

	// MinIO configuration
	MinIOEndpoint   string
	MinIOAccessKey  string
	MinIOSecretKey  string
	MinIOBucketName string
	MinIOUseSSL     bool

	// MySQL configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis configuration
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// OTLP trace collector endpoint
	OTLPEndpoint string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ServicePort:     getEnv("SERVICE_PORT", "8080"),
		ServiceName:     getEnv("SERVICE_NAME", "vidstream"),
		ChunkSizeMB:     getEnvAsInt("CHUNK_SIZE_MB", 10),
		ReadIncrementKB: getEnvAsInt("READ_INCREMENT_KB", 1024),
		Debug:           getEnvAsBool("DEBUG", false),

		BlobBackend: getEnv("BLOB_BACKEND", BackendGateway),

		GatewayBaseURL:  getEnv("STORAGE_GATEWAY_URL", "http://localhost:9100"),
		GatewayAPIToken: getEnv("STORAGE_GATEWAY_TOKEN", ""),
		GatewayChatID:   getEnv("STORAGE_GATEWAY_CHAT_ID", ""),

		MinIOEndpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinIOSecretKey:  getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinIOBucketName: getEnv("MINIO_BUCKET_NAME", "vidstream"),
		MinIOUseSSL:     getEnvAsBool("MINIO_USE_SSL", false),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "vidstream"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", "http://localhost:4318"),
	}

	if cfg.BlobBackend != BackendGateway && cfg.BlobBackend != BackendMinio {
		return nil, fmt.Errorf("unknown BLOB_BACKEND %q", cfg.BlobBackend)
	}
	if cfg.ChunkSizeMB < 1 {
		return nil, fmt.Errorf("CHUNK_SIZE_MB must be at least 1, got %d", cfg.ChunkSizeMB)
	}
	return cfg, nil
}

// GetDSN returns the MySQL connection string.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.DBUser,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
	)
}

// GetRedisAddr returns the Redis address.
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// ChunkSizeBytes returns the chunk size in bytes.
func (c *Config) ChunkSizeBytes() int {
	return c.ChunkSizeMB * 1024 * 1024
}

// ReadIncrementBytes returns the source read increment in bytes.
func (c *Config) ReadIncrementBytes() int {
	return c.ReadIncrementKB * 1024
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
