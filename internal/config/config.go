package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	LogLevel           string
	FrontendURL        string

	JWTSecret string

	// MongoURI empty selects the in-memory cart repository.
	MongoURI         string
	MongoDBName      string
	MongoAppName     string
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// RedisAddr empty disables the cart cache.
	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration

	CatalogDBPath string

	// ImageBucket empty stores uploads on local disk under UploadDir.
	ImageBucket string
	ImagePrefix string
	UploadDir   string

	// KafkaBrokers empty disables the checkout consumer.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string
}

// Load reads a .env file when present, then the environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTPPort:           getEnv("HTTP_PORT", "5000"),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxRequestBodySize: getInt64("MAX_REQUEST_BODY_SIZE", 25<<20),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		FrontendURL:        getEnv("FRONTEND_URL", "http://localhost:3000"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		MongoURI:           getEnv("MONGO_URI", ""),
		MongoDBName:        getEnv("MONGO_DB_NAME", "cartdb"),
		MongoAppName:       getEnv("MONGO_APP_NAME", "storefront"),
		MongoMaxPoolSize:   getUint64("MONGO_MAX_POOL_SIZE", 100),
		MongoMinPoolSize:   getUint64("MONGO_MIN_POOL_SIZE", 10),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		CacheTTL:           getDuration("CART_CACHE_TTL", 15*time.Minute),
		CatalogDBPath:      getEnv("CATALOG_DB_PATH", "./products.db"),
		ImageBucket:        getEnv("IMAGE_BUCKET", ""),
		ImagePrefix:        getEnv("IMAGE_PREFIX", "products"),
		UploadDir:          getEnv("UPLOAD_DIR", "./uploads"),
		KafkaBrokers:       getList("KAFKA_BROKERS"),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "checkout-outbox"),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "cart-service-consumer"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}

func getInt64(key string, defaultValue int64) int64 {
	if n, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		return n
	}
	return defaultValue
}

func getUint64(key string, defaultValue uint64) uint64 {
	if n, err := strconv.ParseUint(os.Getenv(key), 10, 64); err == nil {
		return n
	}
	return defaultValue
}

func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
