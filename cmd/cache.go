package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lunarvale/tonearm/internal/repositories"
	"github.com/lunarvale/tonearm/internal/shared"
	"github.com/urfave/cli/v3"
)

// openCache opens the configured database and wraps it in a response repository.
func (r *Runner) openCache() (*repositories.ResponseRepository, *sql.DB, error) {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repositories.NewResponseRepository(db), db, nil
}

// CacheList lists the cached upstream responses.
func (r *Runner) CacheList(ctx context.Context, cmd *cli.Command) error {
	repo, db, err := r.openCache()
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := repo.List(nil)
	if err != nil {
		return fmt.Errorf("failed to list cached responses: %w", err)
	}

	if cmd.Bool("json") {
		type entryJSON struct {
			Key       string `json:"key"`
			Status    int    `json:"status"`
			FetchedAt string `json:"fetched_at"`
			TTL       int    `json:"ttl_seconds"`
			Fresh     bool   `json:"fresh"`
		}
		out := make([]entryJSON, len(entries))
		for i, e := range entries {
			out[i] = entryJSON{
				Key:       e.CacheKey(),
				Status:    e.StatusCode(),
				FetchedAt: e.FetchedAt().Format(time.RFC3339),
				TTL:       e.TTLSeconds(),
				Fresh:     e.Fresh(time.Now()),
			}
		}
		return r.writeJSON(out, true)
	}

	if len(entries) == 0 {
		return r.writePlain("No cached responses\n")
	}

	now := time.Now()
	for _, e := range entries {
		state := "stale"
		if e.Fresh(now) {
			state = "fresh"
		}
		r.writePlain("%s  [%d]  %s  (%s)\n", e.CacheKey(), e.StatusCode(), e.FetchedAt().Format(time.RFC3339), state)
	}
	r.writePlain("\n%d cached response(s)\n", len(entries))

	return nil
}

// CacheClear removes cached responses, all of them or only expired ones.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	repo, db, err := r.openCache()
	if err != nil {
		return err
	}
	defer db.Close()

	var removed int64
	if cmd.Bool("expired") {
		removed, err = repo.DeleteExpired(time.Now())
	} else {
		removed, err = repo.Purge()
	}
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	r.logger.Info("cache cleared", "removed", removed)
	return r.writePlain("✓ Removed %d cached response(s)\n", removed)
}
