// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caretrail/journey/pkg/persistence"
	"github.com/caretrail/journey/pkg/persistence/memory"
	"github.com/caretrail/journey/pkg/persistence/postgresql"
)

// NewPersistence creates a persistence instance from a database URL. A
// postgres:// or postgresql:// URL selects PostgreSQL; anything else falls
// back to the in-memory store, which is only suitable for local development.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parsePersistenceProvider(databaseURL) {
	case "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create PostgreSQL persistence: %w", err))
		}

		return p
	default:
		logger.Warn("No database URL configured, using in-memory persistence")

		return memory.NewPersistence()
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "memory"
	}

	if provider == "postgres" || provider == "postgresql" {
		return "postgresql"
	}

	return "memory"
}
