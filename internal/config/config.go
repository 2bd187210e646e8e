// Package config loads the server configuration with precedence
// defaults < config file < environment. Environment variables use the
// M3U_ prefix, e.g. M3U_PORT, M3U_JWT_SECRET.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the server needs to start.
type Config struct {
	Port    int
	DBPath  string
	BaseURL string // public base URL, used to build raw playlist links

	LogLevel  string // debug, info, warn, error
	LogFormat string // json or text

	JWTSecret string

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
	FrontendURL        string // OAuth success redirect target

	// Default admin seeded at first boot. Seeding is skipped when the
	// password is empty.
	AdminEmail    string
	AdminPassword string

	FetchTimeout time.Duration
	MaxFetchSize int64

	RefreshTick time.Duration // how often the refresh sweep runs
	CheckTick   time.Duration // how often the availability sweep runs
	CheckMaxAge time.Duration // probe results older than this are redone

	ShutdownTimeout time.Duration
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("db_path", "m3u.db")
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("github_callback_url", "http://localhost:8080/auth/github/callback")
	v.SetDefault("frontend_url", "http://localhost:3000")
	v.SetDefault("admin_email", "admin@example.com")
	v.SetDefault("admin_password", "")
	v.SetDefault("fetch_timeout", 30*time.Second)
	v.SetDefault("max_fetch_size", int64(5<<20))
	v.SetDefault("refresh_tick", 30*time.Second)
	v.SetDefault("check_tick", time.Hour)
	v.SetDefault("check_max_age", 24*time.Hour)
	v.SetDefault("shutdown_timeout", 10*time.Second)
}

// Load resolves the configuration. A config.yaml next to the binary is
// optional; the environment always wins.
func Load() (Config, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("m3u")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Config{
		Port:               v.GetInt("port"),
		DBPath:             v.GetString("db_path"),
		BaseURL:            strings.TrimRight(v.GetString("base_url"), "/"),
		LogLevel:           v.GetString("log_level"),
		LogFormat:          v.GetString("log_format"),
		JWTSecret:          v.GetString("jwt_secret"),
		GitHubClientID:     v.GetString("github_client_id"),
		GitHubClientSecret: v.GetString("github_client_secret"),
		GitHubCallbackURL:  v.GetString("github_callback_url"),
		FrontendURL:        v.GetString("frontend_url"),
		AdminEmail:         v.GetString("admin_email"),
		AdminPassword:      v.GetString("admin_password"),
		FetchTimeout:       v.GetDuration("fetch_timeout"),
		MaxFetchSize:       v.GetInt64("max_fetch_size"),
		RefreshTick:        v.GetDuration("refresh_tick"),
		CheckTick:          v.GetDuration("check_tick"),
		CheckMaxAge:        v.GetDuration("check_max_age"),
		ShutdownTimeout:    v.GetDuration("shutdown_timeout"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, errors.New("config: M3U_JWT_SECRET is required")
	}
	return cfg, nil
}
