package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Server     ServerConfig
	WebSocket  WebSocketConfig
	Collab     CollabConfig
	SelfHosted bool
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr        string
	Password    string //nolint:gosec // G117: Redis connection config
	DB          int
	PresenceTTL time.Duration
}

// JWTConfig holds handshake credential settings.
type JWTConfig struct {
	Secret    string //nolint:gosec // G117: JWT signing secret config
	AccessTTL time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// WebSocketConfig holds per-connection transport settings.
type WebSocketConfig struct {
	SendBuffer      int
	WriteTimeout    time.Duration
	EventsPerSecond float64
	EventBurst      int
}

// CollabConfig holds engine settings.
type CollabConfig struct {
	IOTimeout      time.Duration
	QueueSize      int
	LastSeenBuffer int
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production,
// sensitive values (JWT secret, DB password) must be set explicitly.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("BOARDCAST_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("BOARDCAST_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("BOARDCAST_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	presenceTTL, err := getEnvDuration("BOARDCAST_REDIS_PRESENCE_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	accessTTL, err := getEnvDuration("BOARDCAST_JWT_ACCESS_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("BOARDCAST_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("BOARDCAST_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	sendBuffer, err := getEnvInt("BOARDCAST_WS_SEND_BUFFER", 256)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	wsWriteTimeout, err := getEnvDuration("BOARDCAST_WS_WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	eventsPerSecond, err := getEnvFloat("BOARDCAST_WS_EVENTS_PER_SECOND", 20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	eventBurst, err := getEnvInt("BOARDCAST_WS_EVENT_BURST", 40)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	ioTimeout, err := getEnvDuration("BOARDCAST_COLLAB_IO_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	queueSize, err := getEnvInt("BOARDCAST_COLLAB_QUEUE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	lastSeenBuffer, err := getEnvInt("BOARDCAST_COLLAB_LASTSEEN_BUFFER", 256)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	selfHosted, err := getEnvBool("BOARDCAST_SELF_HOSTED", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	corsOrigins := getEnvList("BOARDCAST_CORS_ORIGINS", []string{"http://localhost:5173"})

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("BOARDCAST_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("BOARDCAST_DB_USER", "boardcast"),
			Password: getEnv("BOARDCAST_DB_PASSWORD", ""),
			DBName:   getEnv("BOARDCAST_DB_NAME", "boardcast_dev"),
			SSLMode:  getEnv("BOARDCAST_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:        getEnv("BOARDCAST_REDIS_ADDR", "localhost:6379"),
			Password:    getEnv("BOARDCAST_REDIS_PASSWORD", ""),
			DB:          redisDB,
			PresenceTTL: presenceTTL,
		},
		JWT: JWTConfig{
			Secret:    getEnv("BOARDCAST_JWT_SECRET", ""),
			AccessTTL: accessTTL,
		},
		Server: ServerConfig{
			Addr:         getEnv("BOARDCAST_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  corsOrigins,
		},
		WebSocket: WebSocketConfig{
			SendBuffer:      sendBuffer,
			WriteTimeout:    wsWriteTimeout,
			EventsPerSecond: eventsPerSecond,
			EventBurst:      eventBurst,
		},
		Collab: CollabConfig{
			IOTimeout:      ioTimeout,
			QueueSize:      queueSize,
			LastSeenBuffer: lastSeenBuffer,
		},
		SelfHosted: selfHosted,
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	// JWT secret is required (no insecure default).
	if c.JWT.Secret == "" {
		return errors.New("BOARDCAST_JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("BOARDCAST_JWT_SECRET must be at least 32 characters")
	}

	if c.Database.SSLMode == "disable" && !c.SelfHosted {
		log.Warn().Msg("BOARDCAST_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	// Bounds checks.
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("BOARDCAST_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("BOARDCAST_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Redis.PresenceTTL <= 0 {
		return fmt.Errorf("BOARDCAST_REDIS_PRESENCE_TTL must be positive, got %s", c.Redis.PresenceTTL)
	}
	if c.JWT.AccessTTL <= 0 {
		return fmt.Errorf("BOARDCAST_JWT_ACCESS_TTL must be positive, got %s", c.JWT.AccessTTL)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("BOARDCAST_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("BOARDCAST_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.WebSocket.SendBuffer < 1 {
		return fmt.Errorf("BOARDCAST_WS_SEND_BUFFER must be >= 1, got %d", c.WebSocket.SendBuffer)
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("BOARDCAST_WS_WRITE_TIMEOUT must be positive, got %s", c.WebSocket.WriteTimeout)
	}
	if c.WebSocket.EventsPerSecond <= 0 {
		return fmt.Errorf("BOARDCAST_WS_EVENTS_PER_SECOND must be positive, got %g", c.WebSocket.EventsPerSecond)
	}
	if c.WebSocket.EventBurst < 1 {
		return fmt.Errorf("BOARDCAST_WS_EVENT_BURST must be >= 1, got %d", c.WebSocket.EventBurst)
	}
	if c.Collab.IOTimeout <= 0 {
		return fmt.Errorf("BOARDCAST_COLLAB_IO_TIMEOUT must be positive, got %s", c.Collab.IOTimeout)
	}
	if c.Collab.QueueSize < 1 {
		return fmt.Errorf("BOARDCAST_COLLAB_QUEUE_SIZE must be >= 1, got %d", c.Collab.QueueSize)
	}
	if c.Collab.LastSeenBuffer < 1 {
		return fmt.Errorf("BOARDCAST_COLLAB_LASTSEEN_BUFFER must be >= 1, got %d", c.Collab.LastSeenBuffer)
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
