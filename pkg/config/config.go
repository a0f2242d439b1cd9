package config

import (
	"errors"
	"io/fs"
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

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Cache      CacheConfig
	Scheduling SchedulingConfig
	Pagination PaginationConfig
	RateLimit  RateLimitConfig
}

type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	AutoMigrate    bool
	MigrationsPath string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds the shared secret used to verify access tokens issued by
// the identity service.
type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig toggles the Redis-backed session list cache.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// SchedulingConfig carries the tunable capacity limits.
type SchedulingConfig struct {
	MaxSeats          int
	MaxSessionsPerDay int
	SessionDuration   time.Duration
}

// PaginationConfig bounds list queries.
type PaginationConfig struct {
	DefaultLimit int
	MaxLimit     int
}

// RateLimitConfig throttles booking endpoints per client IP.
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:           v.GetString("DB_HOST"),
		Port:           v.GetInt("DB_PORT"),
		User:           v.GetString("DB_USER"),
		Password:       v.GetString("DB_PASSWORD"),
		Name:           v.GetString("DB_NAME"),
		SSLMode:        v.GetString("DB_SSL_MODE"),
		MaxOpenConns:   v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:   v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:    v.GetBool("DB_AUTO_MIGRATE"),
		MigrationsPath: v.GetString("DB_MIGRATIONS_PATH"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_CACHE"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), time.Minute),
	}

	cfg.Scheduling = SchedulingConfig{
		MaxSeats:          v.GetInt("SCHEDULING_MAX_SEATS"),
		MaxSessionsPerDay: v.GetInt("SCHEDULING_MAX_SESSIONS_PER_DAY"),
		SessionDuration:   parseDuration(v.GetString("SCHEDULING_SESSION_DURATION"), 120*time.Minute),
	}

	cfg.Pagination = PaginationConfig{
		DefaultLimit: v.GetInt("PAGINATION_DEFAULT_LIMIT"),
		MaxLimit:     v.GetInt("PAGINATION_MAX_LIMIT"),
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled: v.GetBool("ENABLE_RATE_LIMIT"),
		RPS:     v.GetFloat64("RATE_LIMIT_RPS"),
		Burst:   v.GetInt("RATE_LIMIT_BURST"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "fitclass")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)
	v.SetDefault("DB_MIGRATIONS_PATH", "./migrations")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("CACHE_TTL", "1m")

	v.SetDefault("SCHEDULING_MAX_SEATS", 10)
	v.SetDefault("SCHEDULING_MAX_SESSIONS_PER_DAY", 5)
	v.SetDefault("SCHEDULING_SESSION_DURATION", "120m")

	v.SetDefault("PAGINATION_DEFAULT_LIMIT", 10)
	v.SetDefault("PAGINATION_MAX_LIMIT", 100)

	v.SetDefault("ENABLE_RATE_LIMIT", true)
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)
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

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
