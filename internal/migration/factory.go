package migration

import (
	"fmt"
	"strings"

	appconfig "github.com/BaSui01/evoflow/config"
	"github.com/BaSui01/evoflow/internal/database"
)

// NewMigratorFromConfig creates a new migrator from application configuration
func NewMigratorFromConfig(cfg *appconfig.Config) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	return NewMigratorFromDatabaseConfig(cfg.Database.Config)
}

// NewMigratorFromDatabaseConfig creates a migrator for the tracker database.
// The DSN is the same one the tracker hands to GORM.
func NewMigratorFromDatabaseConfig(dbCfg database.Config) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}

	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  MigrationURL(dbType, dbCfg.DSN),
		TableName:    "schema_migrations",
	})
}

// NewMigratorFromURL creates a new migrator from a database URL
func NewMigratorFromURL(dbType, dbURL string) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}

	return NewMigrator(&Config{
		DatabaseType: dt,
		DatabaseURL:  MigrationURL(dt, dbURL),
		TableName:    "schema_migrations",
	})
}

// MigrationURL adapts a tracker DSN for migrations: MySQL needs
// multiStatements so a migration file can hold several statements.
func MigrationURL(dbType DatabaseType, dsn string) string {
	if dbType != DatabaseTypeMySQL || strings.Contains(dsn, "multiStatements=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "multiStatements=true"
}
