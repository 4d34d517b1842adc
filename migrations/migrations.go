// Package migrations installs the catalog functions used by list_tables,
// describe_table and the table existence check.
package migrations

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var files embed.FS

// Up applies every pending migration. An up-to-date database is not an error.
func Up(dbURL string, logger *slog.Logger) error {
	return run(dbURL, logger, "up", func(m *migrate.Migrate) error { return m.Up() })
}

// Down reverts every applied migration.
func Down(dbURL string, logger *slog.Logger) error {
	return run(dbURL, logger, "down", func(m *migrate.Migrate) error { return m.Down() })
}

// Version reports the applied migration version. A database without
// migrations reports 0.
func Version(dbURL string) (uint, bool, error) {
	m, err := open(dbURL)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("migrations: version failed: %w", err)
	}
	return version, dirty, nil
}

func open(dbURL string) (*migrate.Migrate, error) {
	if dbURL == "" {
		return nil, errors.New("migrations: database url is empty")
	}

	src, err := iofs.New(files, ".")
	if err != nil {
		return nil, fmt.Errorf("migrations: source failed: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return nil, fmt.Errorf("migrations: open failed: %w", err)
	}
	return m, nil
}

func run(dbURL string, logger *slog.Logger, direction string, step func(*migrate.Migrate) error) error {
	if logger == nil {
		logger = slog.Default()
	}

	m, err := open(dbURL)
	if err != nil {
		logger.Info("migrations: open failed", slog.String("error", err.Error()))
		return err
	}
	defer m.Close()

	if err := step(m); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("migrations: no change", slog.String("direction", direction))
			return nil
		}
		logger.Info("migrations: "+direction+" failed", slog.String("error", err.Error()))
		return fmt.Errorf("migrations: %s failed: %w", direction, err)
	}

	logger.Info("migrations: applied", slog.String("direction", direction))
	return nil
}
