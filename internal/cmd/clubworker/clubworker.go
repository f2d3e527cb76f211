// Package clubworker runs the periodic jobs: the weekly transition check
// and push reminders. It shares the server's storage and notifier wiring
// but owns no HTTP surface.
package clubworker

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/torresgol10/movie-club/internal/club/domain"
	"github.com/torresgol10/movie-club/internal/club/storage/sqlite"
	"github.com/torresgol10/movie-club/internal/notifications"
	"github.com/torresgol10/movie-club/internal/platform/otel"
)

const (
	defaultDBPath             = "movieclub.db"
	defaultTransitionInterval = time.Hour
	defaultReminderInterval   = 6 * time.Hour
)

// Config holds the worker command configuration.
type Config struct {
	DBPath             string
	TransitionInterval time.Duration
	ReminderInterval   time.Duration
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ParseConfig parses flags and environment into a Config.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	cfg := Config{
		DBPath:             envOrDefault(lookup, "MOVIECLUB_DB_PATH", defaultDBPath),
		TransitionInterval: defaultTransitionInterval,
		ReminderInterval:   defaultReminderInterval,
	}

	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.DurationVar(&cfg.TransitionInterval, "transition-interval", cfg.TransitionInterval, "how often to check for due weekly transitions")
	fs.DurationVar(&cfg.ReminderInterval, "reminder-interval", cfg.ReminderInterval, "how often to send pending reminders")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.TransitionInterval <= 0 {
		return Config{}, fmt.Errorf("transition interval must be positive")
	}
	if cfg.ReminderInterval <= 0 {
		return Config{}, fmt.Errorf("reminder interval must be positive")
	}
	return cfg, nil
}

// Run starts the periodic worker loop and blocks until the context ends.
func Run(ctx context.Context, cfg Config) error {
	shutdownTracing, err := otel.Setup(ctx, "movie-club-worker")
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
	notifier := notifications.NewPushNotifier(store, pushConfig)
	svc := domain.NewService(store, notifier, nil, nil, nil)

	// Run both jobs once at startup so a restart never waits a full
	// interval to catch up.
	runTransition(ctx, svc)
	runReminders(ctx, svc)

	transitionTicker := time.NewTicker(cfg.TransitionInterval)
	defer transitionTicker.Stop()
	reminderTicker := time.NewTicker(cfg.ReminderInterval)
	defer reminderTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-transitionTicker.C:
			runTransition(ctx, svc)
		case <-reminderTicker.C:
			runReminders(ctx, svc)
		}
	}
}

func runTransition(ctx context.Context, svc *domain.Service) {
	result, err := svc.RunWeeklyTransition(ctx)
	if err != nil {
		log.Printf("weekly transition: %v", err)
		return
	}
	if result.PromotedMovieID != "" || result.CurrentWeek != result.PreviousWeek {
		log.Printf("weekly transition: week %d -> %d, promoted %q",
			result.PreviousWeek, result.CurrentWeek, result.PromotedMovieID)
	}
}

func runReminders(ctx context.Context, svc *domain.Service) {
	result, err := svc.SendReminders(ctx)
	if err != nil {
		log.Printf("send reminders: %v", err)
		return
	}
	if result.VettingReminders > 0 || result.VoteReminders > 0 {
		log.Printf("reminders sent: %d vetting, %d vote", result.VettingReminders, result.VoteReminders)
	}
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
