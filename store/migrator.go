package store

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
)

//go:embed migration
var migrationFS embed.FS

// LatestSchemaFileName holds the full current schema, applied once to fresh
// databases. Incremental migrations are not needed yet; the schema carries a
// version row so they can be added later.
const LatestSchemaFileName = "LATEST.sql"

// Migrate initializes a fresh database with the latest schema. Already
// initialized databases pass through untouched.
func (s *Store) Migrate(ctx context.Context) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return fmt.Errorf("check database initialization: %w", err)
	}
	if initialized {
		slog.Debug("database already initialized", "driver", s.profile.Driver)
		return nil
	}

	schemaPath := fmt.Sprintf("migration/%s/%s", s.profile.Driver, LatestSchemaFileName)
	schema, err := migrationFS.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("read schema %s: %w", schemaPath, err)
	}

	if _, err := s.driver.GetDB().ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("apply schema %s: %w", schemaPath, err)
	}

	slog.Info("database initialized", "driver", s.profile.Driver, "schema", schemaPath)
	return nil
}
