package config

import (
	"os"      // For environment variables
	"strconv" // For string to int conversion
	"strings" // For list parsing
	"time"    // For durations

	"github.com/joho/godotenv" // For loading .env files
)

// DefaultTitheCategories are the tithe designations offered to payers when TITHE_CATEGORIES is unset
var DefaultTitheCategories = []string{"welfare", "thanksgiving", "building", "missions", "harvest"}

// Config holds the application configuration
type Config struct {
	AppPort    string // Application port
	DBDriver   string // mysql or postgres
	DBUser     string // Database user
	DBPassword string // Database password
	DBHost     string // Database host
	DBPort     string // Database port
	DBName     string // Database name
	JWTSecret  string // JWT secret key
	RedisAddr  string // Redis server address
	RedisPass  string // Redis password
	RedisDB    int    // Redis database number
	IsProd     bool   // Is production environment
	LogLevel   string // logrus level name
	LogFormat  string // text or json

	RequiredApprovals    int           // Approvals needed before a withdrawal executes
	ApprovalSecretHashes []string      // bcrypt hashes of the organization-wide approval secrets
	ApprovalCodeTTL      time.Duration // Lifetime of alternate-channel codes
	TitheCategories      []string      // Tithe designations in split order

	GatewayURL           string        // Payment gateway base URL
	GatewayAPIKey        string        // Payment gateway API key
	GatewayTimeout       time.Duration // Per-call gateway timeout
	TransferPollInterval time.Duration // How often the outbox is drained
	TransferMaxAttempts  int           // Gateway attempts before giving up
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	return &Config{
		AppPort:    getenv("APP_PORT", "8080"),     // Application port
		DBDriver:   getenv("DB_DRIVER", "mysql"),   // Database driver
		DBUser:     os.Getenv("DB_USER"),           // Database user
		DBPassword: os.Getenv("DB_PASSWORD"),       // Database password
		DBHost:     os.Getenv("DB_HOST"),           // Database host
		DBPort:     os.Getenv("DB_PORT"),           // Database port
		DBName:     os.Getenv("DB_NAME"),           // Database name
		JWTSecret:  os.Getenv("JWT_SECRET"),        // JWT secret key
		RedisAddr:  os.Getenv("REDIS_ADDR"),        // Redis server address
		RedisPass:  os.Getenv("REDIS_PASS"),        // Redis password
		RedisDB:    redisDB,                        // Redis database number
		IsProd:     os.Getenv("IS_PROD") == "true", // Is production environment
		LogLevel:   getenv("LOG_LEVEL", "info"),    // Log level
		LogFormat:  getenv("LOG_FORMAT", "text"),   // Log format

		RequiredApprovals:    getint("REQUIRED_APPROVALS", 3),
		ApprovalSecretHashes: splitList(os.Getenv("APPROVAL_SECRET_HASHES")),
		ApprovalCodeTTL:      getduration("APPROVAL_CODE_TTL", 10*time.Minute),
		TitheCategories:      titheCategories(os.Getenv("TITHE_CATEGORIES")),

		GatewayURL:           os.Getenv("GATEWAY_URL"),
		GatewayAPIKey:        os.Getenv("GATEWAY_API_KEY"),
		GatewayTimeout:       getduration("GATEWAY_TIMEOUT", 15*time.Second),
		TransferPollInterval: getduration("TRANSFER_POLL_INTERVAL", 10*time.Second),
		TransferMaxAttempts:  getint("TRANSFER_MAX_ATTEMPTS", 5),
	}
}

// getenv returns the variable or def when unset
func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// getint parses a positive integer, falling back to def
func getint(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// getduration parses a Go duration string, falling back to def
func getduration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// splitList splits a comma-separated value, dropping blanks
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// titheCategories lower-cases and de-duplicates the configured designations
func titheCategories(raw string) []string {
	list := splitList(raw)
	if len(list) == 0 {
		return append([]string(nil), DefaultTitheCategories...)
	}
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, c := range list {
		c = strings.ToLower(c)
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
