// Package postgresql provides PostgreSQL persistence for workflow instances,
// task instances and permission rules.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	"github.com/pressgate/pressgate/pkg/persistence"
	"github.com/pressgate/pressgate/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db             *sql.DB
	logger         *slog.Logger
	instanceRepo   *InstanceRepository
	taskRepo       *TaskRepository
	permissionRepo *PermissionRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs pending
// schema migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:             database,
		logger:         logger,
		instanceRepo:   &InstanceRepository{db: database, logger: logger},
		taskRepo:       &TaskRepository{db: database, logger: logger},
		permissionRepo: &PermissionRepository{db: database},
	}, nil
}

// Instances returns the instance repository.
func (p *Persistence) Instances() persistence.InstanceRepository {
	return p.instanceRepo
}

// Tasks returns the task repository.
func (p *Persistence) Tasks() persistence.TaskRepository {
	return p.taskRepo
}

// Permissions returns the permission repository.
func (p *Persistence) Permissions() persistence.PermissionRepository {
	return p.permissionRepo
}

// HealthCheck verifies database connectivity.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
