package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Store drivers understood by Load.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config holds runtime configuration sourced from env vars and an optional YAML file.
type Config struct {
	Port                 string
	StoreDriver          string
	DatabaseURL          string
	MongoURI             string
	MongoDatabase        string
	StoreConnectAttempts int
	JWTSecret            string
	JWTIssuer            string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	CORSOrigins          []string
	RedisURL             string
	LoginRatePerMinute   int
	LogEnv               string
	LogLevel             string
}

// Load reads configuration and performs minimal validation. Environment variables
// win over keys of the YAML file named by CONFIG_FILE, which win over defaults.
func Load() (Config, error) {
	k := koanf.New(".")
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	src := source{k: k}

	cfg := Config{
		Port:                 src.str("PORT", "port", "8080"),
		StoreDriver:          strings.ToLower(src.str("STORE_DRIVER", "store.driver", DriverMemory)),
		DatabaseURL:          src.str("DATABASE_URL", "store.database_url", ""),
		MongoURI:             src.str("MONGO_URI", "store.mongo_uri", ""),
		MongoDatabase:        src.str("MONGO_DB", "store.mongo_db", "learning_paths_dashboard"),
		StoreConnectAttempts: src.positiveInt("STORE_CONNECT_ATTEMPTS", "store.connect_attempts", 5),
		JWTSecret:            src.str("JWT_SECRET", "jwt.secret", ""),
		JWTIssuer:            src.str("JWT_ISSUER", "jwt.issuer", "learning-path-backend"),
		AccessTokenTTL:       src.duration("ACCESS_TOKEN_TTL", "jwt.access_ttl", 2*time.Hour),
		RefreshTokenTTL:      src.duration("REFRESH_TOKEN_TTL", "jwt.refresh_ttl", 7*24*time.Hour),
		CORSOrigins:          parseCSV(src.str("CORS_ALLOWED_ORIGINS", "cors.allowed_origins", "*")),
		RedisURL:             src.str("REDIS_URL", "redis.url", ""),
		LoginRatePerMinute:   src.positiveInt("LOGIN_RATE_PER_MINUTE", "ratelimit.login_per_minute", 10),
		LogEnv:               src.str("LOG_ENV", "log.env", "dev"),
		LogLevel:             src.str("LOG_LEVEL", "log.level", "info"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	switch cfg.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, errors.New("DATABASE_URL is required for the postgres store")
		}
	case DriverMongo:
		if cfg.MongoURI == "" {
			return Config{}, errors.New("MONGO_URI is required for the mongo store")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	return cfg, nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

type source struct {
	k *koanf.Koanf
}

func (s source) str(env, key, def string) string {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return v
	}
	return fallback(s.k.String(key), def)
}

func (s source) duration(env, key string, def time.Duration) time.Duration {
	raw := s.str(env, key, "")
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return def
}

func (s source) positiveInt(env, key string, def int) int {
	raw := s.str(env, key, "")
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return n
	}
	return def
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
