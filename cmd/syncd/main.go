package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/iudanet/docsync/internal/changelog"
	changelogsqlite "github.com/iudanet/docsync/internal/changelog/sqlite"
	"github.com/iudanet/docsync/internal/config"
	"github.com/iudanet/docsync/internal/engine"
	"github.com/iudanet/docsync/internal/server"
	"github.com/iudanet/docsync/internal/server/auth"
	"github.com/iudanet/docsync/internal/session"
	"github.com/iudanet/docsync/internal/snapshot"
	snapshotbolt "github.com/iudanet/docsync/internal/snapshot/boltdb"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "-version" {
		printVersion()
		os.Exit(0)
	}

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting docsync",
		"version", Version,
		"git_commit", GitCommit,
		"changelog", cfg.ChangelogBackend,
		"snapshot", cfg.SnapshotBackend,
		"strategy", cfg.Strategy.String(),
	)

	// Change log
	var log changelog.Log
	switch cfg.ChangelogBackend {
	case config.BackendSQLite:
		sqliteLog, err := changelogsqlite.New(ctx, cfg.ChangelogPath)
		if err != nil {
			return fmt.Errorf("failed to open change log: %w", err)
		}
		log = sqliteLog
	default:
		log = changelog.NewMemoryLog()
	}
	defer func() {
		if err := log.Close(); err != nil {
			logger.Error("Failed to close change log", "error", err)
		}
	}()

	// Snapshot store
	var store snapshot.Store
	switch cfg.SnapshotBackend {
	case config.BackendBolt:
		boltStore, err := snapshotbolt.New(ctx, cfg.SnapshotPath)
		if err != nil {
			return fmt.Errorf("failed to open snapshot store: %w", err)
		}
		store = boltStore
	default:
		store = snapshot.NewMemoryStore()
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close snapshot store", "error", err)
		}
	}()

	authn, err := buildAuthenticator(cfg)
	if err != nil {
		return err
	}

	sessions := session.NewManager(logger, cfg.MaxSessionsPerUser, cfg.IdleTimeout, cfg.SweepInterval)
	go sessions.Run(ctx)

	eng := engine.New(engine.Config{
		Logger:          logger,
		ChangeLog:       log,
		Snapshot:        store,
		Sessions:        sessions,
		Strategy:        cfg.Strategy,
		DefaultPageSize: cfg.DefaultPageSize,
		MaxPageSize:     cfg.MaxPageSize,
	})
	defer eng.Close()

	srv := server.New(server.Config{
		Logger:          logger,
		Engine:          eng,
		Auth:            authn,
		Addr:            cfg.Addr,
		SyncPath:        cfg.SyncPath,
		Version:         Version,
		RateLimit:       cfg.RateLimit,
		RateWindow:      cfg.RateWindow,
		ShutdownTimeout: cfg.ShutdownTimeout,
	})

	return srv.ListenAndServe(ctx)
}

// buildAuthenticator собирает аутентификатор из конфигурации
func buildAuthenticator(cfg *config.Config) (auth.Authenticator, error) {
	switch cfg.AuthMode {
	case config.AuthModeStatic:
		static := auth.NewStatic()
		for _, pair := range strings.Split(cfg.StaticTokens, ",") {
			user, token, ok := strings.Cut(strings.TrimSpace(pair), ":")
			if !ok {
				return nil, fmt.Errorf("malformed static token entry %q", pair)
			}
			if err := static.AddToken(user, token, nil); err != nil {
				return nil, fmt.Errorf("failed to add static token: %w", err)
			}
		}
		return static, nil
	default:
		return auth.NewJWT([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.TokenTTL), nil
	}
}

func printVersion() {
	fmt.Printf("docsync server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
