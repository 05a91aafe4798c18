package cfg

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort string
	GRPCPort string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioBucket    string

	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	JWTSecret           string
	JWTTTL              time.Duration
	BootstrapAdminEmail string

	MaxFileSizeBytes int64
	LookupTimeout    time.Duration

	RateLimitRequests   int
	RateLimitWindow     time.Duration
	AllowedCORSOrigins  []string
	TrustedProxies      []string
	CookieSecure        bool
	ShutdownGracePeriod time.Duration

	LogLevel string
	LogFile  string

	TaskServerGRPCAddr string
}

var ErrWeakSecret = errors.New("JWT_SECRET must be at least 32 characters long")

// Load reads the API server configuration; it requires a strong JWT_SECRET.
func Load() (Config, error) {
	cfg := load()
	if len(cfg.JWTSecret) < 32 {
		return Config{}, ErrWeakSecret
	}
	return cfg, nil
}

// LoadNotifier reads the same environment without the signing secret check:
// the notifier never issues or verifies tokens.
func LoadNotifier() Config {
	return load()
}

func load() Config {
	// .env is optional; real deployments pass plain environment variables
	if err := godotenv.Load(); err != nil {
		log.Println(".env not found, using environment variables")
	}

	cfg := Config{
		HTTPPort: getEnv("HTTP_PORT", "8081"),
		GRPCPort: getEnv("GRPC_PORT", "9091"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "taskflow"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		KafkaBrokers: parseCSVEnv("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "task-events"),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "taskflow-notifier"),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioBucket:    getEnv("MINIO_BUCKET", "task-files"),

		MongoURI:        getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:   getEnv("MONGODB_DATABASE", "taskflow"),
		MongoCollection: getEnv("MONGODB_COLLECTION", "submissions"),

		JWTSecret:           os.Getenv("JWT_SECRET"),
		JWTTTL:              getEnvDuration("JWT_TTL", time.Hour),
		BootstrapAdminEmail: strings.ToLower(getEnv("BOOTSTRAP_ADMIN_EMAIL", "")),

		MaxFileSizeBytes: getEnvInt64("MAX_FILE_SIZE", 20*1024*1024),
		LookupTimeout:    getEnvDuration("LOOKUP_TIMEOUT", 10*time.Second),

		RateLimitRequests:   getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:     getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		AllowedCORSOrigins:  parseCSVEnv("ALLOWED_ORIGINS"),
		TrustedProxies:      parseCSVEnv("TRUSTED_PROXIES"),
		CookieSecure:        getEnvBool("COOKIE_SECURE", false),
		ShutdownGracePeriod: getEnvDuration("SHUTDOWN_GRACE_PERIOD", 10*time.Second),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", "logs/taskflow.log"),

		TaskServerGRPCAddr: getEnv("TASK_SERVER_GRPC_ADDR", "localhost:9091"),
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func parseCSVEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// DSN builds the postgres connection string used by gorm and the migrator.
func (c Config) DSN() string {
	return "host=" + c.DBHost +
		" port=" + c.DBPort +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" sslmode=disable"
}
