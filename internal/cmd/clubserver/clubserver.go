// Package clubserver wires the HTTP API process: storage, notifications,
// sessions, and the domain service behind one listener.
package clubserver

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/torresgol10/movie-club/internal/auth"
	"github.com/torresgol10/movie-club/internal/club/api"
	"github.com/torresgol10/movie-club/internal/club/domain"
	"github.com/torresgol10/movie-club/internal/club/storage/sqlite"
	"github.com/torresgol10/movie-club/internal/notifications"
	"github.com/torresgol10/movie-club/internal/platform/otel"
)

const (
	defaultHTTPAddr = "localhost:8080"
	defaultDBPath   = "movieclub.db"
)

// Config holds the server command configuration.
type Config struct {
	HTTPAddr      string
	DBPath        string
	SessionSecret string
	AdminToken    string
	CronSecret    string
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ParseConfig parses flags and environment into a Config.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	cfg := Config{
		HTTPAddr:      envOrDefault(lookup, "MOVIECLUB_HTTP_ADDR", defaultHTTPAddr),
		DBPath:        envOrDefault(lookup, "MOVIECLUB_DB_PATH", defaultDBPath),
		SessionSecret: envOrDefault(lookup, "MOVIECLUB_SESSION_SECRET", ""),
		AdminToken:    envOrDefault(lookup, "MOVIECLUB_ADMIN_TOKEN", ""),
		CronSecret:    envOrDefault(lookup, "MOVIECLUB_CRON_SECRET", ""),
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.SessionSecret) == "" {
		return Config{}, fmt.Errorf("MOVIECLUB_SESSION_SECRET is required")
	}
	return cfg, nil
}

// Run starts the club API server.
func Run(ctx context.Context, cfg Config) error {
	shutdownTracing, err := otel.Setup(ctx, "movie-club-server")
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("shutdown tracing: %v", err)
		}
	}()

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
	}()

	pushConfig, err := notifications.LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("load push config: %w", err)
	}
	if !pushConfig.Enabled() {
		log.Print("push notifications disabled: VAPID keys not configured")
	}
	notifier := notifications.NewPushNotifier(store, pushConfig)

	svc := domain.NewService(store, notifier, nil, nil, nil)

	sessions, err := auth.NewManager([]byte(cfg.SessionSecret), nil)
	if err != nil {
		return fmt.Errorf("init sessions: %w", err)
	}

	handler, err := api.NewHandler(api.HandlerConfig{
		Service:    svc,
		PushStore:  store,
		Sessions:   sessions,
		AdminToken: cfg.AdminToken,
		CronSecret: cfg.CronSecret,
	})
	if err != nil {
		return fmt.Errorf("init handler: %w", err)
	}

	server, err := api.NewServer(cfg.HTTPAddr, handler)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}
	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve api: %w", err)
	}
	return nil
}

func envOrDefault(lookup EnvLookup, key, fallback string) string {
	if lookup == nil {
		return fallback
	}
	if value, ok := lookup(key); ok {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
