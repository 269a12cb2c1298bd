package database

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// migrateURL swaps the postgres scheme for the pgx/v5 migrate driver.
func migrateURL(dsn string) string {
	if rest, ok := strings.CutPrefix(dsn, "postgres://"); ok {
		return "pgx5://" + rest
	}
	return dsn
}

func newMigrator(dsn, path string) (*migrate.Migrate, error) {
	m, err := migrate.New("file://"+strings.TrimPrefix(path, "file://"), migrateURL(dsn))
	if err != nil {
		return nil, fmt.Errorf("init migrations from %s: %w", path, err)
	}
	return m, nil
}

func closeMigrator(m *migrate.Migrate) {
	if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
		log.Printf("[DB] Closing migrator: source=%v db=%v", srcErr, dbErr)
	}
}

// RunMigrations applies every pending up migration.
func RunMigrations(dsn, path string) error {
	m, err := newMigrator(dsn, path)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// RollbackMigration reverts the most recent migration.
func RollbackMigration(dsn, path string) error {
	m, err := newMigrator(dsn, path)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	if err := m.Steps(-1); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// GetMigrationVersion reports 0 when nothing has been applied yet.
func GetMigrationVersion(dsn, path string) (uint, bool, error) {
	m, err := newMigrator(dsn, path)
	if err != nil {
		return 0, false, err
	}
	defer closeMigrator(m)

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("migrate version: %w", err)
	}
	return version, dirty, nil
}
