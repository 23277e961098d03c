package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Backend   BackendConfig
	Auth      AuthConfig
	Live      LiveConfig
	Dashboard DashboardConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Server    ServerConfig
	Slack     SlackConfig
}

// BackendConfig points at the task backend REST API and its board stream.
type BackendConfig struct {
	URL     string
	WSURL   string // empty = derived from URL
	Timeout time.Duration
	RPS     float64
	Burst   int
}

// AuthConfig locates the bearer token pulse presents to the backend.
type AuthConfig struct {
	Token     string //nolint:gosec // G117: credential config
	TokenFile string
}

// LiveConfig holds live-update client settings.
type LiveConfig struct {
	Enabled        bool
	ReconnectDelay time.Duration
	MaxReconnects  int
	Heartbeat      time.Duration
	WatchProject   int64 // 0 = no live client at startup
}

// DashboardConfig holds aggregation settings.
type DashboardConfig struct {
	PollInterval time.Duration
	DisplayLimit int
}

// DatabaseConfig holds PostgreSQL connection settings. An empty host disables
// persisted column role assignments.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings. An empty address keeps
// snapshots in process.
type RedisConfig struct {
	Addr        string
	Password    string //nolint:gosec // G117: Redis connection config
	DB          int
	SnapshotTTL time.Duration
}

// JWTConfig holds the secret shared with the backend for verifying callers
// of the pulse API. Empty leaves the API open.
type JWTConfig struct {
	Secret string //nolint:gosec // G117: JWT signing secret config
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// SlackConfig holds overdue digest settings.
type SlackConfig struct {
	BotToken string
	Channel  string
}

// Enabled reports whether a database is configured.
func (c *DatabaseConfig) Enabled() bool { return c.Host != "" }

// Enabled reports whether Redis is configured.
func (c *RedisConfig) Enabled() bool { return c.Addr != "" }

// Enabled reports whether the Slack digest is configured.
func (c *SlackConfig) Enabled() bool { return c.BotToken != "" }

// Load reads configuration from environment variables.
// Every external store is optional; the defaults run pulse against a local
// backend with in-process state only.
func Load() (*Config, error) {
	apiTimeout, err := getEnvDuration("PULSE_API_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	apiRPS, err := getEnvFloat("PULSE_API_RPS", 10)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	apiBurst, err := getEnvInt("PULSE_API_BURST", 20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	liveEnabled, err := getEnvBool("PULSE_LIVE_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	reconnectDelay, err := getEnvDuration("PULSE_LIVE_RECONNECT_DELAY", 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maxReconnects, err := getEnvInt("PULSE_LIVE_MAX_RECONNECTS", 5)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	heartbeat, err := getEnvDuration("PULSE_LIVE_HEARTBEAT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	watchProject, err := getEnvInt64("PULSE_WATCH_PROJECT", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	pollInterval, err := getEnvDuration("PULSE_POLL_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	displayLimit, err := getEnvInt("PULSE_DISPLAY_LIMIT", 5)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbPort, err := getEnvInt("PULSE_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("PULSE_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("PULSE_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	snapshotTTL, err := getEnvDuration("PULSE_SNAPSHOT_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("PULSE_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("PULSE_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	corsOrigins := getEnvList("PULSE_CORS_ORIGINS", []string{"http://localhost:5173"})

	cfg := &Config{
		Backend: BackendConfig{
			URL:     getEnv("PULSE_API_URL", "http://localhost:8080"),
			WSURL:   getEnv("PULSE_WS_URL", ""),
			Timeout: apiTimeout,
			RPS:     apiRPS,
			Burst:   apiBurst,
		},
		Auth: AuthConfig{
			Token:     getEnv("PULSE_AUTH_TOKEN", ""),
			TokenFile: getEnv("PULSE_AUTH_TOKEN_FILE", ""),
		},
		Live: LiveConfig{
			Enabled:        liveEnabled,
			ReconnectDelay: reconnectDelay,
			MaxReconnects:  maxReconnects,
			Heartbeat:      heartbeat,
			WatchProject:   watchProject,
		},
		Dashboard: DashboardConfig{
			PollInterval: pollInterval,
			DisplayLimit: displayLimit,
		},
		Database: DatabaseConfig{
			Host:     getEnv("PULSE_DB_HOST", ""),
			Port:     dbPort,
			User:     getEnv("PULSE_DB_USER", "pulse"),
			Password: getEnv("PULSE_DB_PASSWORD", ""),
			DBName:   getEnv("PULSE_DB_NAME", "pulse"),
			SSLMode:  getEnv("PULSE_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:        getEnv("PULSE_REDIS_ADDR", ""),
			Password:    getEnv("PULSE_REDIS_PASSWORD", ""),
			DB:          redisDB,
			SnapshotTTL: snapshotTTL,
		},
		JWT: JWTConfig{
			Secret: getEnv("PULSE_JWT_SECRET", ""),
		},
		Server: ServerConfig{
			Addr:         getEnv("PULSE_SERVER_ADDR", ":8090"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  corsOrigins,
		},
		Slack: SlackConfig{
			BotToken: getEnv("PULSE_SLACK_BOT_TOKEN", ""),
			Channel:  getEnv("PULSE_SLACK_CHANNEL", ""),
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("PULSE_API_URL must be an absolute http(s) URL, got %q", c.Backend.URL)
	}
	if c.Backend.WSURL != "" {
		w, err := url.Parse(c.Backend.WSURL)
		if err != nil || (w.Scheme != "ws" && w.Scheme != "wss") || w.Host == "" {
			return fmt.Errorf("PULSE_WS_URL must be an absolute ws(s) URL, got %q", c.Backend.WSURL)
		}
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("PULSE_API_TIMEOUT must be positive, got %s", c.Backend.Timeout)
	}
	if c.Backend.RPS <= 0 {
		return fmt.Errorf("PULSE_API_RPS must be positive, got %g", c.Backend.RPS)
	}
	if c.Backend.Burst < 1 {
		return fmt.Errorf("PULSE_API_BURST must be >= 1, got %d", c.Backend.Burst)
	}

	if c.Auth.Token == "" && c.Auth.TokenFile == "" {
		log.Warn().Msg("neither PULSE_AUTH_TOKEN nor PULSE_AUTH_TOKEN_FILE is set; backend calls and live updates will be skipped")
	}

	if c.Live.ReconnectDelay <= 0 {
		return fmt.Errorf("PULSE_LIVE_RECONNECT_DELAY must be positive, got %s", c.Live.ReconnectDelay)
	}
	if c.Live.MaxReconnects < 1 {
		return fmt.Errorf("PULSE_LIVE_MAX_RECONNECTS must be >= 1, got %d", c.Live.MaxReconnects)
	}
	if c.Live.Heartbeat <= 0 {
		return fmt.Errorf("PULSE_LIVE_HEARTBEAT must be positive, got %s", c.Live.Heartbeat)
	}
	if c.Live.WatchProject < 0 {
		return fmt.Errorf("PULSE_WATCH_PROJECT must be >= 0, got %d", c.Live.WatchProject)
	}

	if c.Dashboard.PollInterval <= 0 {
		return fmt.Errorf("PULSE_POLL_INTERVAL must be positive, got %s", c.Dashboard.PollInterval)
	}
	if c.Dashboard.DisplayLimit < 1 {
		return fmt.Errorf("PULSE_DISPLAY_LIMIT must be >= 1, got %d", c.Dashboard.DisplayLimit)
	}

	if c.Database.Enabled() {
		if c.Database.SSLMode == "disable" {
			log.Warn().Msg("PULSE_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("PULSE_DB_PORT must be 1-65535, got %d", c.Database.Port)
		}
		if c.Database.MaxConns < 1 {
			return fmt.Errorf("PULSE_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
		}
	}

	if c.Redis.DB < 0 {
		return fmt.Errorf("PULSE_REDIS_DB must be >= 0, got %d", c.Redis.DB)
	}
	if c.Redis.SnapshotTTL <= 0 {
		return fmt.Errorf("PULSE_SNAPSHOT_TTL must be positive, got %s", c.Redis.SnapshotTTL)
	}

	if c.JWT.Secret == "" {
		log.Warn().Msg("PULSE_JWT_SECRET is not set; the dashboard API is unauthenticated")
	} else if len(c.JWT.Secret) < 32 {
		return errors.New("PULSE_JWT_SECRET must be at least 32 characters")
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("PULSE_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("PULSE_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}

	if c.Slack.Enabled() && c.Slack.Channel == "" {
		return errors.New("PULSE_SLACK_CHANNEL is required when PULSE_SLACK_BOT_TOKEN is set")
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int64: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
