// Package store opens the swarm store named by a database URL.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/content-swarm/internal/db"
	"github.com/jonathan/content-swarm/internal/db/sqlite"
	"github.com/jonathan/content-swarm/internal/swarm"
)

// Open connects to PostgreSQL for postgres:// and postgresql:// URLs and opens an
// embedded SQLite database for sqlite:// URLs. "sqlite://:memory:" gives a private
// in-memory database. The schema is migrated before returning.
func Open(ctx context.Context, databaseURL string) (swarm.Store, error) {
	switch {
	case databaseURL == "":
		return nil, fmt.Errorf("database URL is empty")

	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		pg, err := db.Connect(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		return pg, nil

	case strings.HasPrefix(databaseURL, "sqlite://"):
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("sqlite URL has no path: %s", databaseURL)
		}
		var (
			lite *sqlite.Store
			err  error
		)
		if path == ":memory:" {
			lite, err = sqlite.NewMemoryStore(ctx)
		} else {
			lite, err = sqlite.Open(ctx, path)
		}
		if err != nil {
			return nil, err
		}
		return lite, nil
	}
	return nil, fmt.Errorf("unsupported database URL scheme: %s", databaseURL)
}
