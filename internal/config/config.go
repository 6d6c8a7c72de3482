package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// GatewayConfig holds configuration for the edge gateway binary.
type GatewayConfig struct {
	HTTPPort      string
	BackendURL    string // proxy target; empty means /api/* proxying answers 503
	StaticDir     string
	SessionSecret []byte
	Database      DatabaseConfig
	RequestLogger RequestLoggerConfig
	Archiver      ArchiverConfig
}

// BackendConfig holds configuration for the compute backend binary.
type BackendConfig struct {
	HTTPPort       string
	AllowedOrigins []string
	Database       DatabaseConfig
	UsageQueue     UsageQueueConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// RequestLoggerConfig holds settings for the buffered JSONL request log.
type RequestLoggerConfig struct {
	FilePathTemplate string
	MaxSize          int64
	MaxFiles         int
	BufferSize       int
	FlushInterval    time.Duration
}

// ArchiverConfig holds configuration for the S3 ledger archiver.
type ArchiverConfig struct {
	Enabled       bool
	BufferSize    int
	FlushSize     int
	FlushInterval time.Duration
	S3Bucket      string
	S3Region      string
	S3Prefix      string
	NodeName      string
}

// UsageQueueConfig holds settings for asynchronous usage recording.
type UsageQueueConfig struct {
	UseRedis      bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	BatchSize     int
	BatchTimeout  time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}
	return duration
}

func loadDatabase() (DatabaseConfig, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return DatabaseConfig{}, fmt.Errorf("DATABASE_URL is required")
	}
	return DatabaseConfig{
		URL:             dbURL,
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
	}, nil
}

// LoadGateway reads the gateway configuration from environment variables.
// BACKEND_URL is intentionally not required here: its absence is a per
// proxy-request 503, not a startup failure, so missing configuration is
// visible instead of silently taking the ledger endpoints down with it.
func LoadGateway() (*GatewayConfig, error) {
	db, err := loadDatabase()
	if err != nil {
		return nil, err
	}

	cfg := &GatewayConfig{
		HTTPPort:      getEnvString("HTTP_PORT", "8787"),
		BackendURL:    strings.TrimSuffix(os.Getenv("BACKEND_URL"), "/"),
		StaticDir:     getEnvString("STATIC_DIR", "./frontend"),
		SessionSecret: []byte(getEnvString("SESSION_SECRET", "dev-session-secret")),
		Database:      db,
		RequestLogger: RequestLoggerConfig{
			FilePathTemplate: getEnvString("REQUEST_LOGGER_FILE_PATH_TEMPLATE", "/var/log/flashmvp/requests-%s.jsonl"),
			MaxSize:          getEnvInt64("REQUEST_LOGGER_MAX_SIZE", 10_485_760), // default 10 MB
			MaxFiles:         getEnvInt("REQUEST_LOGGER_MAX_FILES", 5),
			BufferSize:       getEnvInt("REQUEST_LOGGER_BUFFER_SIZE", 100),
			FlushInterval:    getEnvDuration("REQUEST_LOGGER_FLUSH_INTERVAL", 60*time.Second),
		},
		Archiver: ArchiverConfig{
			Enabled:       getEnvString("ARCHIVER_ENABLED", "false") == "true",
			BufferSize:    getEnvInt("ARCHIVER_BUFFER_SIZE", 10000),
			FlushSize:     getEnvInt("ARCHIVER_FLUSH_SIZE", 1000),
			FlushInterval: getEnvDuration("ARCHIVER_FLUSH_INTERVAL", 5*time.Minute),
			S3Bucket:      getEnvString("ARCHIVER_S3_BUCKET", ""),
			S3Region:      getEnvString("ARCHIVER_S3_REGION", "us-east-1"),
			S3Prefix:      getEnvString("ARCHIVER_S3_PREFIX", "ledger/"),
			NodeName:      getEnvString("NODE_NAME", "gateway-0"),
		},
	}

	return cfg, nil
}

// LoadBackend reads the compute backend configuration from environment
// variables.
func LoadBackend() (*BackendConfig, error) {
	db, err := loadDatabase()
	if err != nil {
		return nil, err
	}

	origins := []string{"http://localhost:8787"}
	if extra := os.Getenv("ALLOWED_ORIGINS"); extra != "" {
		for _, origin := range strings.Split(extra, ",") {
			origins = append(origins, strings.TrimSpace(origin))
		}
	}

	redisAddr := getEnvString("REDIS_ADDRESS", "")

	cfg := &BackendConfig{
		HTTPPort:       getEnvString("HTTP_PORT", "8000"),
		AllowedOrigins: origins,
		Database:       db,
		UsageQueue: UsageQueueConfig{
			UseRedis:      redisAddr != "",
			RedisAddr:     redisAddr,
			RedisPassword: getEnvString("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			BatchSize:     getEnvInt("USAGE_QUEUE_BATCH_SIZE", 100),
			BatchTimeout:  getEnvDuration("USAGE_QUEUE_BATCH_TIMEOUT", 5*time.Second),
			MaxRetries:    getEnvInt("USAGE_QUEUE_MAX_RETRIES", 3),
			RetryBackoff:  getEnvDuration("USAGE_QUEUE_RETRY_BACKOFF", 1*time.Second),
		},
	}

	return cfg, nil
}
