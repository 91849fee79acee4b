// Package config собирает настройки сервера из флагов командной строки
// и переменных окружения. Переменная окружения задает default,
// флаг имеет приоритет.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/iudanet/docsync/internal/resolver"
)

// Backend names for the pluggable storage layers
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

// Auth mode names
const (
	AuthModeJWT    = "jwt"
	AuthModeStatic = "static"
)

// Config holds every tunable of the sync server
type Config struct {
	// Addr адрес HTTP listener
	Addr string
	// SyncPath путь websocket эндпоинта
	SyncPath string
	// LogLevel уровень логирования: debug, info, warn, error
	LogLevel string

	// Strategy политика разрешения конфликтов
	Strategy resolver.Strategy

	// MaxSessionsPerUser квота одновременных сессий на пользователя
	MaxSessionsPerUser int
	// IdleTimeout время бездействия до принудительного закрытия сессии
	IdleTimeout time.Duration
	// SweepInterval период проверки бездействующих сессий; 0 означает IdleTimeout/2
	SweepInterval time.Duration

	// DefaultPageSize размер страницы pull по умолчанию
	DefaultPageSize int
	// MaxPageSize верхняя граница размера страницы pull
	MaxPageSize int

	// ChangelogBackend memory или sqlite
	ChangelogBackend string
	// ChangelogPath путь к файлу sqlite
	ChangelogPath string
	// SnapshotBackend memory или bolt
	SnapshotBackend string
	// SnapshotPath путь к файлу bolt
	SnapshotPath string

	// AuthMode jwt или static
	AuthMode string
	// JWTSecret секрет подписи HS256, обязателен в режиме jwt
	JWTSecret string
	// JWTIssuer issuer claim выдаваемых токенов
	JWTIssuer string
	// TokenTTL время жизни выдаваемых токенов
	TokenTTL time.Duration
	// StaticTokens пары user:token через запятую для режима static
	StaticTokens string

	// RateLimit попыток соединения с одного IP за RateWindow; 0 отключает
	RateLimit int
	// RateWindow окно rate limiter
	RateWindow time.Duration

	// ShutdownTimeout максимальное время graceful shutdown
	ShutdownTimeout time.Duration
}

// Load разбирает args (без имени программы) поверх переменных окружения
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("docsync", flag.ContinueOnError)

	addr := fs.String("addr", envOr("DOCSYNC_ADDR", ":8080"), "HTTP listen address")
	syncPath := fs.String("sync-path", envOr("DOCSYNC_SYNC_PATH", "/sync"), "Websocket endpoint path")
	logLevel := fs.String("log-level", envOr("DOCSYNC_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	strategy := fs.String("strategy", envOr("DOCSYNC_STRATEGY", "last-write-wins"),
		"Conflict resolution strategy: last-write-wins, server-wins, client-wins")

	maxSessions := fs.Int("max-sessions", envIntOr("DOCSYNC_MAX_SESSIONS", 10),
		"Max concurrent sessions per user")
	idleTimeout := fs.Duration("idle-timeout", envDurationOr("DOCSYNC_IDLE_TIMEOUT", 5*time.Minute),
		"Session idle timeout")
	sweepInterval := fs.Duration("sweep-interval", envDurationOr("DOCSYNC_SWEEP_INTERVAL", 0),
		"Idle sweep interval, 0 means half the idle timeout")

	defaultPage := fs.Int("page-size", envIntOr("DOCSYNC_PAGE_SIZE", 100), "Default pull page size")
	maxPage := fs.Int("max-page-size", envIntOr("DOCSYNC_MAX_PAGE_SIZE", 1000), "Max pull page size")

	changelogBackend := fs.String("changelog", envOr("DOCSYNC_CHANGELOG", BackendMemory),
		"Change log backend: memory or sqlite")
	changelogPath := fs.String("changelog-path", envOr("DOCSYNC_CHANGELOG_PATH", "docsync-changelog.db"),
		"Path to the sqlite change log file")
	snapshotBackend := fs.String("snapshot", envOr("DOCSYNC_SNAPSHOT", BackendMemory),
		"Snapshot backend: memory or bolt")
	snapshotPath := fs.String("snapshot-path", envOr("DOCSYNC_SNAPSHOT_PATH", "docsync-snapshot.db"),
		"Path to the bolt snapshot file")

	authMode := fs.String("auth", envOr("DOCSYNC_AUTH", AuthModeJWT), "Auth mode: jwt or static")
	jwtSecret := fs.String("jwt-secret", envOr("DOCSYNC_JWT_SECRET", ""), "HS256 signing secret")
	jwtIssuer := fs.String("jwt-issuer", envOr("DOCSYNC_JWT_ISSUER", "docsync"), "JWT issuer claim")
	tokenTTL := fs.Duration("token-ttl", envDurationOr("DOCSYNC_TOKEN_TTL", 24*time.Hour),
		"Issued token lifetime")
	staticTokens := fs.String("static-tokens", envOr("DOCSYNC_STATIC_TOKENS", ""),
		"Comma-separated user:token pairs for static auth")

	rateLimit := fs.Int("rate-limit", envIntOr("DOCSYNC_RATE_LIMIT", 0),
		"Connection attempts per IP per window, 0 disables")
	rateWindow := fs.Duration("rate-window", envDurationOr("DOCSYNC_RATE_WINDOW", time.Minute),
		"Rate limiter window")

	shutdownTimeout := fs.Duration("shutdown-timeout", envDurationOr("DOCSYNC_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	parsedStrategy, err := resolver.ParseStrategy(*strategy)
	if err != nil {
		return nil, fmt.Errorf("invalid strategy: %w", err)
	}

	cfg := &Config{
		Addr:               *addr,
		SyncPath:           *syncPath,
		LogLevel:           *logLevel,
		Strategy:           parsedStrategy,
		MaxSessionsPerUser: *maxSessions,
		IdleTimeout:        *idleTimeout,
		SweepInterval:      *sweepInterval,
		DefaultPageSize:    *defaultPage,
		MaxPageSize:        *maxPage,
		ChangelogBackend:   *changelogBackend,
		ChangelogPath:      *changelogPath,
		SnapshotBackend:    *snapshotBackend,
		SnapshotPath:       *snapshotPath,
		AuthMode:           *authMode,
		JWTSecret:          *jwtSecret,
		JWTIssuer:          *jwtIssuer,
		TokenTTL:           *tokenTTL,
		StaticTokens:       *staticTokens,
		RateLimit:          *rateLimit,
		RateWindow:         *rateWindow,
		ShutdownTimeout:    *shutdownTimeout,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек
func (c *Config) Validate() error {
	switch c.ChangelogBackend {
	case BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("unknown changelog backend %q", c.ChangelogBackend)
	}

	switch c.SnapshotBackend {
	case BackendMemory, BackendBolt:
	default:
		return fmt.Errorf("unknown snapshot backend %q", c.SnapshotBackend)
	}

	switch c.AuthMode {
	case AuthModeJWT:
		if c.JWTSecret == "" {
			return fmt.Errorf("jwt auth requires a signing secret")
		}
	case AuthModeStatic:
		if c.StaticTokens == "" {
			return fmt.Errorf("static auth requires at least one user:token pair")
		}
	default:
		return fmt.Errorf("unknown auth mode %q", c.AuthMode)
	}

	if c.MaxSessionsPerUser <= 0 {
		return fmt.Errorf("max sessions per user must be positive")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive")
	}
	if c.DefaultPageSize <= 0 || c.MaxPageSize < c.DefaultPageSize {
		return fmt.Errorf("invalid page sizes: default %d, max %d", c.DefaultPageSize, c.MaxPageSize)
	}

	return nil
}

// SlogLevel переводит строковый уровень в slog.Level
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
