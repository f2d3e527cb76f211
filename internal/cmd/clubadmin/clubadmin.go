// Package clubadmin implements the operator command for managing members
// directly against the database.
package clubadmin

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/torresgol10/movie-club/internal/club/domain"
	"github.com/torresgol10/movie-club/internal/club/storage/sqlite"
)

const defaultDBPath = "movieclub.db"

// Config holds the admin command configuration.
type Config struct {
	DBPath     string
	MemberName string
	MemberPIN  string
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ParseConfig parses flags and environment into a Config.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	cfg := Config{DBPath: envOrDefault(lookup, "MOVIECLUB_DB_PATH", defaultDBPath)}

	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.MemberName, "name", "", "member display name")
	fs.StringVar(&cfg.MemberPIN, "pin", "", "member login PIN (four digits)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.MemberName) == "" {
		return Config{}, fmt.Errorf("-name is required")
	}
	if strings.TrimSpace(cfg.MemberPIN) == "" {
		return Config{}, fmt.Errorf("-pin is required")
	}
	return cfg, nil
}

// Run creates the member and prints its id.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
	}()

	svc := domain.NewService(store, nil, nil, nil, nil)
	member, err := svc.CreateMember(ctx, domain.CreateMemberInput{
		Name: cfg.MemberName,
		PIN:  cfg.MemberPIN,
	})
	if err != nil {
		return fmt.Errorf("create member: %w", err)
	}
	fmt.Fprintf(out, "created member %s (%s)\n", member.Name, member.ID)
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
