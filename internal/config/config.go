package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultSupplierBaseURL = "https://developers.cjdropshipping.com/api2.0/v1"

type Config struct {
	Port        string
	Environment string
	Database    DatabaseConfig
	Supplier    SupplierConfig
	Redis       RedisConfig
	Sync        SyncConfig
	LogLevel    string
	LogFormat   string
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
}

// DSN returns the lib/pq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		dsnValue(d.Host), dsnValue(d.Port), dsnValue(d.User), dsnValue(d.Password), dsnValue(d.DBName), dsnValue(d.SSLMode))
}

// dsnValue quotes v when it is empty or holds spaces, quotes or backslashes
func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v) + "'"
}

// MigrateURL returns the connection URL golang-migrate expects. User and
// password are escaped.
func (d DatabaseConfig) MigrateURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, d.Port),
		Path:     "/" + d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

// SupplierConfig holds transport settings shared by every supplier account.
// Account credentials live in the supplier_configs table.
type SupplierConfig struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	TokenMargin       time.Duration
	TokenFallbackTTL  time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type SyncConfig struct {
	SubmitClaimTTL time.Duration
}

func Load() (*Config, error) {
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")

	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("LOG_LEVEL", "info")

	// Read from environment variables
	viper.AutomaticEnv()

	// Try to read .env file (optional)
	if err := viper.ReadInConfig(); err != nil {
		// It's okay if .env doesn't exist, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	environment := getEnvOrViper("ENVIRONMENT", "development")
	defaultFormat := "console"
	if environment == "production" {
		defaultFormat = "json"
	}

	cfg := &Config{
		Port:        getEnvOrViper("PORT", "8080"),
		Environment: environment,
		Database: DatabaseConfig{
			Host:         getEnvOrViper("DB_HOST", "localhost"),
			Port:         getEnvOrViper("DB_PORT", "5432"),
			User:         getEnvOrViper("DB_USER", "postgres"),
			Password:     getEnvOrViper("DB_PASSWORD", "postgres"),
			DBName:       getEnvOrViper("DB_NAME", "dropsync"),
			SSLMode:      getEnvOrViper("DB_SSLMODE", "disable"),
			MaxOpenConns: getIntOrViper("DB_MAX_OPEN_CONNS", 10),
		},
		Supplier: SupplierConfig{
			BaseURL:           getEnvOrViper("SUPPLIER_BASE_URL", defaultSupplierBaseURL),
			Timeout:           time.Duration(getIntOrViper("SUPPLIER_TIMEOUT_SECONDS", 30)) * time.Second,
			RequestsPerSecond: getFloatOrViper("SUPPLIER_REQUESTS_PER_SECOND", 1),
			TokenMargin:       time.Duration(getIntOrViper("SUPPLIER_TOKEN_MARGIN_MINUTES", 5)) * time.Minute,
			TokenFallbackTTL:  time.Duration(getIntOrViper("SUPPLIER_TOKEN_FALLBACK_HOURS", 2)) * time.Hour,
		},
		Redis: RedisConfig{
			Enabled:  getEnvOrViper("REDIS_ENABLED", "false") == "true",
			Host:     getEnvOrViper("REDIS_HOST", ""),
			Port:     getEnvOrViper("REDIS_PORT", "6379"),
			Password: getEnvOrViper("REDIS_PASSWORD", ""),
			DB:       getIntOrViper("REDIS_DB", 0),
		},
		Sync: SyncConfig{
			SubmitClaimTTL: time.Duration(getIntOrViper("SUBMIT_CLAIM_TTL_SECONDS", 90)) * time.Second,
		},
		LogLevel:  getEnvOrViper("LOG_LEVEL", "info"),
		LogFormat: getEnvOrViper("LOG_FORMAT", defaultFormat),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and ranges
func (c *Config) Validate() error {
	if c.Supplier.BaseURL == "" {
		return fmt.Errorf("SUPPLIER_BASE_URL is required")
	}
	if c.Supplier.Timeout <= 0 {
		return fmt.Errorf("SUPPLIER_TIMEOUT_SECONDS must be positive")
	}
	if c.Supplier.RequestsPerSecond <= 0 {
		return fmt.Errorf("SUPPLIER_REQUESTS_PER_SECOND must be positive")
	}
	if c.Supplier.TokenMargin <= 0 {
		return fmt.Errorf("SUPPLIER_TOKEN_MARGIN_MINUTES must be positive")
	}
	if c.Supplier.TokenFallbackTTL <= c.Supplier.TokenMargin {
		return fmt.Errorf("SUPPLIER_TOKEN_FALLBACK_HOURS must exceed the token margin")
	}
	if c.Sync.SubmitClaimTTL <= 0 {
		return fmt.Errorf("SUBMIT_CLAIM_TTL_SECONDS must be positive")
	}
	if c.Redis.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required when REDIS_ENABLED is true")
	}
	return nil
}

func getEnvOrViper(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultValue
}

func getIntOrViper(key string, defaultValue int) int {
	raw := getEnvOrViper(key, "")
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return n
}

func getFloatOrViper(key string, defaultValue float64) float64 {
	raw := getEnvOrViper(key, "")
	if raw == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return defaultValue
	}
	return f
}
