package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisURL string

	Holded HoldedConfig
	Cegid  CegidConfig
	Sync   SyncConfig

	Dashboard DashboardConfig

	AccountsFile string
}

type HoldedConfig struct {
	BaseURL string
	Timeout time.Duration
}

type CegidConfig struct {
	BaseURL        string
	Username       string
	Password       string
	ClientID       string
	ClientSecret   string
	SubaccountBase int64
	Timeout        time.Duration
}

type SyncConfig struct {
	BatchSize            int
	Pacing               time.Duration
	MaxDuplicateRetries  int
	MaxSubaccountRetries int
	RunInterval          time.Duration
	JobTimeout           time.Duration
	LockTTL              time.Duration
	Timezone             string
	FallbackPDF          bool
}

type DashboardConfig struct {
	Addr         string
	User         string
	PasswordHash string
	ExportRate   float64
	ExportBurst  int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "ledgerbridge"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "sqlite"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "ledgerbridge"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "ledgerbridge.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		RedisURL: strings.TrimSpace(getenv("REDIS_URL", "")),

		Holded: HoldedConfig{
			BaseURL: strings.TrimRight(getenv("HOLDED_BASE_URL", "https://api.holded.com/api"), "/"),
			Timeout: getenvDuration("HOLDED_TIMEOUT", 30*time.Second),
		},
		Cegid: CegidConfig{
			BaseURL:        strings.TrimRight(getenv("CEGID_API_URL", "https://apicon.diezsoftware.com"), "/"),
			Username:       strings.TrimSpace(getenv("CEGID_USERNAME", "")),
			Password:       getenv("CEGID_PASSWORD", ""),
			ClientID:       strings.TrimSpace(getenv("CEGID_CLIENT_ID", "")),
			ClientSecret:   strings.TrimSpace(getenv("CEGID_CLIENT_SECRET", "")),
			SubaccountBase: getenvInt64("CEGID_SUBACCOUNT_BASE", 0),
			Timeout:        getenvDuration("CEGID_TIMEOUT", 30*time.Second),
		},
		Sync: SyncConfig{
			BatchSize:            getenvInt("SYNC_BATCH_SIZE", 15),
			Pacing:               getenvDuration("SYNC_PACING", 500*time.Millisecond),
			MaxDuplicateRetries:  getenvInt("SYNC_MAX_DUPLICATE_RETRIES", 3),
			MaxSubaccountRetries: getenvInt("SYNC_MAX_SUBACCOUNT_RETRIES", 10),
			RunInterval:          getenvDuration("SYNC_RUN_INTERVAL", 15*time.Minute),
			JobTimeout:           getenvDuration("SYNC_JOB_TIMEOUT", 10*time.Minute),
			LockTTL:              getenvDuration("SYNC_LOCK_TTL", 15*time.Minute),
			Timezone:             getenv("SYNC_TIMEZONE", "Europe/Madrid"),
			FallbackPDF:          getenvBool("SYNC_FALLBACK_PDF", false),
		},
		Dashboard: DashboardConfig{
			Addr:         getenv("DASHBOARD_ADDR", ":8080"),
			User:         strings.TrimSpace(getenv("DASHBOARD_USER", "admin")),
			PasswordHash: strings.TrimSpace(getenv("DASHBOARD_PASSWORD_HASH", "")),
			ExportRate:   getenvFloat("DASHBOARD_EXPORT_RATE", 0.2),
			ExportBurst:  getenvInt("DASHBOARD_EXPORT_BURST", 2),
		},
		AccountsFile: strings.TrimSpace(getenv("ACCOUNTS_FILE", "")),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	return int(getenvInt64(key, int64(def)))
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

// getenvDuration accepts Go durations ("500ms", "15m") or a bare number of seconds.
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}
	return def
}
