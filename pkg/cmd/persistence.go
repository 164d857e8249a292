package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pressgate/pressgate/pkg/persistence"
	"github.com/pressgate/pressgate/pkg/persistence/file"
	"github.com/pressgate/pressgate/pkg/persistence/postgresql"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql"}

func NewPersistence(ctx context.Context, logger *slog.Logger, databaseUrl string) (persistence.Persistence, error) {
	provider := parsePersistenceProvider(databaseUrl)

	switch provider {
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseUrl)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgresql persistence: %w", err)
		}

		return store, nil
	default:
		return file.NewPersistence(databaseUrl), nil
	}
}

func parsePersistenceProvider(databaseUrl string) string {
	parts := strings.Split(databaseUrl, "://")

	provider := parts[0]
	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
