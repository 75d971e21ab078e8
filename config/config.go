package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the server configuration read from the environment.
type Config struct {
	HTTPAddr          string
	DatabaseURL       string
	RedisAddr         string
	NATSURL           string
	JWTSecret         string
	AdminPasswordHash string
	AdminSessionTTL   time.Duration
	Env               string
	LogLevel          slog.Level
	ContactLimit      int
	ContactWindow     time.Duration
	PostsCacheTTL     time.Duration

	// TrustedProxies are the proxies whose forwarding headers are honored.
	TrustedProxies []netip.Prefix
}

// Production reports whether the server runs in production.
func (c Config) Production() bool {
	return c.Env == "production"
}

// Load reads a .env file, when present, into the environment and then builds
// the configuration from it.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	e := env{getenv: getenv}
	c := Config{
		HTTPAddr:          e.str("HTTP_ADDR", ":8080"),
		DatabaseURL:       e.str("DATABASE_URL", ""),
		RedisAddr:         e.str("REDIS_ADDR", "localhost:6379"),
		NATSURL:           e.str("NATS_URL", ""),
		JWTSecret:         e.str("JWT_SECRET", ""),
		AdminPasswordHash: e.str("ADMIN_PASSWORD_HASH", ""),
		AdminSessionTTL:   e.duration("ADMIN_SESSION_TTL", 7*24*time.Hour),
		Env:               e.str("APP_ENV", "development"),
		LogLevel:          e.level("LOG_LEVEL", slog.LevelInfo),
		ContactLimit:      e.integer("CONTACT_LIMIT", 5),
		ContactWindow:     e.duration("CONTACT_WINDOW", time.Hour),
		PostsCacheTTL:     e.duration("POSTS_CACHE_TTL", 5*time.Minute),
		TrustedProxies:    e.prefixes("TRUSTED_PROXIES"),
	}
	if e.err != nil {
		return Config{}, e.err
	}

	if c.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	if c.Production() && len(c.JWTSecret) < 32 {
		return Config{}, errors.New("JWT_SECRET must be at least 32 characters in production")
	}
	if c.ContactLimit < 1 {
		return Config{}, errors.New("CONTACT_LIMIT must be positive")
	}
	return c, nil
}

// env reads typed values and keeps the first parse error.
type env struct {
	getenv func(string) string
	err    error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil && e.err == nil {
		e.err = fmt.Errorf("%s: %w", key, err)
	}
	return n
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil && e.err == nil {
		e.err = fmt.Errorf("%s: %w", key, err)
	}
	return d
}

// prefixes reads a comma separated list of CIDR ranges. A bare address is
// taken as a single host.
func (e *env) prefixes(key string) []netip.Prefix {
	var out []netip.Prefix
	for _, v := range strings.Split(e.str(key, ""), ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		p, err := netip.ParsePrefix(v)
		if err != nil {
			addr, aerr := netip.ParseAddr(v)
			if aerr != nil {
				if e.err == nil {
					e.err = fmt.Errorf("%s: %w", key, err)
				}
				continue
			}
			p = netip.PrefixFrom(addr, addr.BitLen())
		}
		out = append(out, p.Masked())
	}
	return out
}

func (e *env) level(key string, def slog.Level) slog.Level {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil && e.err == nil {
		e.err = fmt.Errorf("%s: %w", key, err)
	}
	return l
}
