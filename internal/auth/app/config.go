package app

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// jwtSecretPlaceholder is the value shipped in deployment templates. The
// service refuses to boot with it so a copy-pasted manifest cannot sign
// tokens with a public secret.
const jwtSecretPlaceholder = "change-me"

// Config is the full runtime configuration, loaded from the environment.
type Config struct {
	ListenAddr string
	Env        string
	LogLevel   string
	LogFormat  string

	DatabasePath string

	JWTSecret      string
	AccessTokenTTL time.Duration
	RefreshTTL     time.Duration

	LoginRateLimit  int
	LoginRateWindow time.Duration
	LoginLockout    time.Duration

	RefreshRateLimit  int
	RefreshRateWindow time.Duration

	ThrottleRPS   float64
	ThrottleBurst int

	ShutdownGrace        time.Duration
	HousekeepingInterval time.Duration
	AuditRetention       time.Duration
}

// LoadConfig reads configuration from AUTH_* environment variables,
// applying defaults for everything except the JWT secret.
func LoadConfig() (Config, error) {
	cfg := Config{
		ListenAddr: getEnvOrDefault("AUTH_LISTEN_ADDR", ":8080"),
		Env:        getEnvOrDefault("AUTH_ENV", "production"),
		LogLevel:   getEnvOrDefault("AUTH_LOG_LEVEL", "info"),
		LogFormat:  getEnvOrDefault("AUTH_LOG_FORMAT", "json"),

		DatabasePath: getEnvOrDefault("AUTH_DB_PATH", "authd.db"),

		JWTSecret: os.Getenv("AUTH_JWT_SECRET"),

		LoginRateLimit:   getEnvInt("AUTH_LOGIN_RATE_LIMIT", 5),
		RefreshRateLimit: getEnvInt("AUTH_REFRESH_RATE_LIMIT", 10),

		ThrottleRPS:   float64(getEnvInt("AUTH_THROTTLE_RPS", 20)),
		ThrottleBurst: getEnvInt("AUTH_THROTTLE_BURST", 40),
	}

	var err error
	if cfg.AccessTokenTTL, err = getEnvDuration("AUTH_ACCESS_TOKEN_TTL", 15*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTTL, err = getEnvDuration("AUTH_REFRESH_TOKEN_TTL", 30*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.LoginRateWindow, err = getEnvDuration("AUTH_LOGIN_RATE_WINDOW", time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.LoginLockout, err = getEnvDuration("AUTH_LOGIN_LOCKOUT", 2*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.RefreshRateWindow, err = getEnvDuration("AUTH_REFRESH_RATE_WINDOW", time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownGrace, err = getEnvDuration("AUTH_SHUTDOWN_GRACE", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.HousekeepingInterval, err = getEnvDuration("AUTH_HOUSEKEEPING_INTERVAL", time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.AuditRetention, err = getEnvDuration("AUTH_AUDIT_RETENTION", 90*24*time.Hour); err != nil {
		return Config{}, err
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if cfg.JWTSecret == jwtSecretPlaceholder {
		return Config{}, fmt.Errorf("AUTH_JWT_SECRET is still the placeholder value; set a real secret")
	}

	return cfg, nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
