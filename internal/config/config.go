// Package config loads runtime settings from defaults, an optional YAML file,
// a .env file and QUOTEBOARD_* environment variables, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override: session.secret is read from
// QUOTEBOARD_SESSION_SECRET.
const EnvPrefix = "QUOTEBOARD"

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Session   SessionConfig
	Log       LogConfig
	RateLimit RateLimitConfig
	GitHub    GitHubConfig
	Web       WebConfig
	Admin     AdminConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DBConfig points at the SQLite file.
type DBConfig struct {
	Path string
}

// SessionConfig controls the session cookie. Secret has no default and must
// be supplied.
type SessionConfig struct {
	Secret       string
	TTL          time.Duration
	SecureCookie bool
}

type LogConfig struct {
	Level  string
	Format string
}

// RateLimitConfig applies per client IP to login, registration and voting.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// GitHubConfig enables "Sign in with GitHub" when all three fields are set.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

// Enabled reports whether GitHub sign-in is configured.
func (g GitHubConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != "" && g.CallbackURL != ""
}

// WebConfig overrides the embedded static assets with a directory on disk.
type WebConfig struct {
	StaticDir string
}

// AdminConfig bootstraps an account holding every permission, so a fresh
// install has someone who can moderate. Leave Name empty to skip.
type AdminConfig struct {
	Name     string
	Password string
}

// Load reads configuration. configPath may be empty, in which case only
// defaults, .env and the environment are used.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", "10s")
	v.SetDefault("server.writeTimeout", "30s")
	v.SetDefault("server.shutdownTimeout", "10s")

	v.SetDefault("db.path", "data/quoteboard.db")

	// Session defaults. The secret is registered with an empty default so
	// that QUOTEBOARD_SESSION_SECRET is picked up by Unmarshal.
	v.SetDefault("session.secret", "")
	v.SetDefault("session.ttl", "168h")
	v.SetDefault("session.secureCookie", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("ratelimit.rps", 5)
	v.SetDefault("ratelimit.burst", 10)

	v.SetDefault("github.clientID", "")
	v.SetDefault("github.clientSecret", "")
	v.SetDefault("github.callbackURL", "")

	v.SetDefault("web.staticDir", "")

	v.SetDefault("admin.name", "")
	v.SetDefault("admin.password", "")
}

// Validate rejects configurations the server must not start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Session.Secret == "" {
		errs = append(errs, errors.New("session.secret is required (set QUOTEBOARD_SESSION_SECRET)"))
	} else if len(c.Session.Secret) < 16 {
		errs = append(errs, errors.New("session.secret must be at least 16 characters"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, fmt.Errorf("session.ttl must be positive, got %s", c.Session.TTL))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.DB.Path == "" {
		errs = append(errs, errors.New("db.path is required"))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("ratelimit.rps and ratelimit.burst must be positive"))
	}
	gh := c.GitHub
	if (gh.ClientID != "" || gh.ClientSecret != "" || gh.CallbackURL != "") && !gh.Enabled() {
		errs = append(errs, errors.New("github sign-in needs clientID, clientSecret and callbackURL together"))
	}
	if c.Admin.Name != "" && len(c.Admin.Password) < 8 {
		errs = append(errs, errors.New("admin.password must be at least 8 characters when admin.name is set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
