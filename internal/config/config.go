package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	HTTPAddr       string
	Store          string
	Postgres       Postgres
	RedisURL       string
	JWTSecret      string
	GoogleClientID string
	AllowedOrigins []string
	RedirectURL    string
	CookieDomain   string
	CookieSameSite http.SameSite
	LogLevel       slog.Level
}

type Postgres struct {
	Host     string
	Port     string
	User     string
	Password string
	DB       string
}

// ConnString builds a lib/pq connection URL.
func (p Postgres) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", p.User, p.Password, p.Host, p.Port, p.DB)
}

// Load reads .env (if present), the environment and then command line flags,
// later sources overriding earlier ones.
func Load(args []string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr: envOr("HTTP_ADDR", "0.0.0.0:8080"),
		Store:    envOr("STORE", StorePostgres),
		Postgres: Postgres{
			Host:     os.Getenv("POSTGRES_HOST"),
			Port:     envOr("POSTGRES_PORT", "5432"),
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			DB:       os.Getenv("POSTGRES_DB"),
		},
		RedisURL:       os.Getenv("REDIS_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		GoogleClientID: os.Getenv("GOOGLE_CLIENT_ID"),
		RedirectURL:    envOr("AUTH_REDIRECT_URL", "/"),
		CookieDomain:   os.Getenv("COOKIE_DOMAIN"),
	}

	origins := os.Getenv("ALLOWED_ORIGINS")
	sameSite := envOr("COOKIE_SAMESITE", "lax")
	logLevel := envOr("LOG_LEVEL", "info")

	fs := flag.NewFlagSet("ballot", flag.ContinueOnError)
	fs.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.Store, "store", cfg.Store, "Poll store (postgres or memory)")
	fs.StringVar(&cfg.Postgres.Host, "db-host", cfg.Postgres.Host, "Database host")
	fs.StringVar(&cfg.Postgres.Port, "db-port", cfg.Postgres.Port, "Database port")
	fs.StringVar(&cfg.Postgres.User, "db-user", cfg.Postgres.User, "Database user")
	fs.StringVar(&cfg.Postgres.Password, "db-pass", cfg.Postgres.Password, "Database password")
	fs.StringVar(&cfg.Postgres.DB, "db-name", cfg.Postgres.DB, "Database name")
	fs.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis URL for the results cache (optional)")
	fs.StringVar(&origins, "origins", origins, "Comma separated CORS origins")
	fs.StringVar(&logLevel, "log-level", logLevel, "Log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.AllowedOrigins = splitList(origins)

	if err := cfg.LogLevel.UnmarshalText([]byte(logLevel)); err != nil {
		return Config{}, fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}

	switch strings.ToLower(sameSite) {
	case "lax":
		cfg.CookieSameSite = http.SameSiteLaxMode
	case "strict":
		cfg.CookieSameSite = http.SameSiteStrictMode
	case "none":
		cfg.CookieSameSite = http.SameSiteNoneMode
	default:
		return Config{}, fmt.Errorf("invalid COOKIE_SAMESITE %q", sameSite)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET required")
	}
	// Browsers send the auth cookies cross-origin, so every origin must be named.
	if slices.Contains(c.AllowedOrigins, "*") {
		return errors.New("ALLOWED_ORIGINS cannot contain * because credentials are allowed")
	}
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Postgres.Host == "" || c.Postgres.User == "" || c.Postgres.DB == "" {
			return errors.New("POSTGRES_HOST, POSTGRES_USER and POSTGRES_DB required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	return nil
}

// PostgresFromEnv is used by the one-shot jobs that only need a database.
func PostgresFromEnv() Postgres {
	_ = godotenv.Load()
	return Postgres{
		Host:     os.Getenv("POSTGRES_HOST"),
		Port:     envOr("POSTGRES_PORT", "5432"),
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		DB:       os.Getenv("POSTGRES_DB"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
