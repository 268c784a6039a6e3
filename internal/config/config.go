package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	SandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	ProductionBaseURL = "https://api.safaricom.co.ke"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Mpesa    MpesaConfig
	Store    StoreConfig
	Log      LogConfig
	Poller   PollerConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// MpesaConfig holds the Daraja credentials and merchant settings.
type MpesaConfig struct {
	Environment      string
	BaseURL          string
	ConsumerKey      string
	ConsumerSecret   string
	ShortCode        string
	Passkey          string
	CallbackURL      string
	AccountReference string
	TransactionDesc  string
	HTTPTimeout      time.Duration
	Location         *time.Location

	// CallbackToken, when set, must accompany every callback as ?token= or X-Callback-Token.
	CallbackToken string
	// CallbackAllowedCIDRs restricts callback source addresses when non-empty.
	CallbackAllowedCIDRs []string
}

// StoreConfig selects the booking store backend.
type StoreConfig struct {
	Backend  string // "postgres" or "file"
	FilePath string
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Format string // "json" or "text"
}

// PollerConfig holds the client poller timings.
type PollerConfig struct {
	ServerURL string
	Interval  time.Duration
	Timeout   time.Duration
}

// Load loads configuration from environment variables, reading a .env file first if one exists.
// Variables already present in the environment take precedence over the file.
func Load() *Config {
	_ = godotenv.Load()

	env := strings.ToLower(getEnv("MPESA_ENV", "sandbox"))
	baseURL := SandboxBaseURL
	if env == "production" {
		baseURL = ProductionBaseURL
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "5000"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			CORSOrigins:  getListEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "ridepay"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "ridepay"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Mpesa: MpesaConfig{
			Environment:          env,
			BaseURL:              getEnv("MPESA_BASE_URL", baseURL),
			ConsumerKey:          getEnv("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret:       getEnv("MPESA_CONSUMER_SECRET", ""),
			ShortCode:            getEnv("MPESA_SHORTCODE", "174379"),
			Passkey:              getEnv("MPESA_PASSKEY", ""),
			CallbackURL:          getEnv("MPESA_CALLBACK_URL", ""),
			AccountReference:     getEnv("MPESA_ACCOUNT_REFERENCE", "Luxury Rides"),
			TransactionDesc:      getEnv("MPESA_TRANSACTION_DESC", "Payment for booking"),
			HTTPTimeout:          getDurationEnv("MPESA_HTTP_TIMEOUT", 20*time.Second),
			Location:             getLocationEnv("MPESA_TIMEZONE", "Africa/Nairobi"),
			CallbackToken:        getEnv("MPESA_CALLBACK_TOKEN", ""),
			CallbackAllowedCIDRs: getListEnv("MPESA_CALLBACK_ALLOWED_CIDRS", nil),
		},
		Store: StoreConfig{
			Backend:  strings.ToLower(getEnv("BOOKING_STORE", "postgres")),
			FilePath: getEnv("BOOKING_STORE_FILE", "db.json"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		},
		Poller: PollerConfig{
			ServerURL: getEnv("RIDEPAY_SERVER_URL", "http://localhost:5000"),
			Interval:  getDurationEnv("POLL_INTERVAL", 3*time.Second),
			Timeout:   getDurationEnv("POLL_TIMEOUT", 5*time.Minute),
		},
	}
}

// MissingMpesaSettings lists the gateway settings that are required but empty.
func (c *Config) MissingMpesaSettings() []string {
	var missing []string
	for name, value := range map[string]string{
		"MPESA_CONSUMER_KEY":    c.Mpesa.ConsumerKey,
		"MPESA_CONSUMER_SECRET": c.Mpesa.ConsumerSecret,
		"MPESA_PASSKEY":         c.Mpesa.Passkey,
		"MPESA_CALLBACK_URL":    c.Mpesa.CallbackURL,
	} {
		if value == "" {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getListEnv splits a comma-separated value, dropping empty entries.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getLocationEnv loads a time zone, falling back to a fixed UTC+3 zone when tzdata is unavailable.
func getLocationEnv(key, defaultValue string) *time.Location {
	name := getEnv(key, defaultValue)
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	return time.FixedZone("EAT", 3*60*60)
}
