// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Ledger   LedgerConfig
	Delivery DeliveryConfig
	Exports  ExportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LedgerConfig tunes version/send history behaviour.
type LedgerConfig struct {
	HistoryCacheTTL  time.Duration
	SendHistoryLimit int
	ShareLinkSecret  string
	ShareLinkTTL     time.Duration
}

// DeliveryConfig governs the async email dispatch queue.
type DeliveryConfig struct {
	Enabled           bool
	WorkerConcurrency int
	WorkerRetries     int
	RetryDelay        time.Duration
	FromAddress       string
}

// ExportsConfig governs snapshot PDF and send-history CSV rendering.
type ExportsConfig struct {
	Enabled     bool
	CompanyName string
}

var defaults = map[string]interface{}{
	"ENV":        EnvDevelopment,
	"PORT":       8080,
	"API_PREFIX": "/api/v1",

	"DB_HOST":           "localhost",
	"DB_PORT":           5432,
	"DB_USER":           "postgres",
	"DB_PASSWORD":       "postgres",
	"DB_NAME":           "proposal_ledger",
	"DB_SSL_MODE":       "disable",
	"DB_MAX_OPEN_CONNS": 10,
	"DB_MAX_IDLE_CONNS": 5,

	"REDIS_HOST":     "localhost",
	"REDIS_PORT":     6379,
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,

	"JWT_SECRET":               "dev_secret",
	"JWT_EXPIRATION":           "24h",
	"REFRESH_TOKEN_EXPIRATION": "168h",

	"ALLOWED_ORIGINS": "",
	"LOG_LEVEL":       "info",
	"LOG_FORMAT":      "json",

	"LEDGER_HISTORY_CACHE_TTL":  "5m",
	"LEDGER_SEND_HISTORY_LIMIT": 200,
	"SHARE_LINK_SECRET":         "",
	"SHARE_LINK_TTL":            "720h",

	"ENABLE_DELIVERY_QUEUE":       true,
	"DELIVERY_WORKER_CONCURRENCY": 2,
	"DELIVERY_WORKER_RETRIES":     3,
	"DELIVERY_RETRY_DELAY":        "5s",
	"DELIVERY_FROM_ADDRESS":       "proposals@quillforge.dev",

	"ENABLE_EXPORTS":       true,
	"EXPORTS_COMPANY_NAME": "Quillforge",
}

// Load reads configuration from the environment. A missing .env file is not
// an error; any other read failure is.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{
		Env:       v.GetString("ENV"),
		Port:      v.GetInt("PORT"),
		APIPrefix: v.GetString("API_PREFIX"),

		Database: loadDatabase(v),
		Redis:    loadRedis(v),
		JWT:      loadJWT(v),
		CORS:     CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))},
		Log:      LogConfig{Level: v.GetString("LOG_LEVEL"), Format: v.GetString("LOG_FORMAT")},
		Ledger:   loadLedger(v),
		Delivery: loadDelivery(v),
		Exports: ExportsConfig{
			Enabled:     v.GetBool("ENABLE_EXPORTS"),
			CompanyName: v.GetString("EXPORTS_COMPANY_NAME"),
		},
	}

	// share links fall back to the JWT secret so a single secret suffices
	if cfg.Ledger.ShareLinkSecret == "" {
		cfg.Ledger.ShareLinkSecret = cfg.JWT.Secret
	}
	return cfg, nil
}

func loadDatabase(v *viper.Viper) DatabaseConfig {
	return DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}
}

func loadRedis(v *viper.Viper) RedisConfig {
	return RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}
}

func loadJWT(v *viper.Viper) JWTConfig {
	return JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}
}

func loadLedger(v *viper.Viper) LedgerConfig {
	return LedgerConfig{
		HistoryCacheTTL:  parseDuration(v.GetString("LEDGER_HISTORY_CACHE_TTL"), 5*time.Minute),
		SendHistoryLimit: v.GetInt("LEDGER_SEND_HISTORY_LIMIT"),
		ShareLinkSecret:  v.GetString("SHARE_LINK_SECRET"),
		ShareLinkTTL:     parseDuration(v.GetString("SHARE_LINK_TTL"), 30*24*time.Hour),
	}
}

func loadDelivery(v *viper.Viper) DeliveryConfig {
	return DeliveryConfig{
		Enabled:           v.GetBool("ENABLE_DELIVERY_QUEUE"),
		WorkerConcurrency: v.GetInt("DELIVERY_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("DELIVERY_WORKER_RETRIES"),
		RetryDelay:        parseDuration(v.GetString("DELIVERY_RETRY_DELAY"), 5*time.Second),
		FromAddress:       v.GetString("DELIVERY_FROM_ADDRESS"),
	}
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
