package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	migrate "github.com/golang-migrate/migrate"
	"github.com/golang-migrate/migrate/database/postgres"
	_ "github.com/golang-migrate/migrate/source/file" // file:// source
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/newtron-network/newtnet/pkg/util"
)

func newMigrator(ctx context.Context, db *sql.DB, dir string) (*migrate.Migrate, error) {
	config := postgres.Config{
		MigrationsTable: "schema_migrations",
	}

	query := db.QueryRowContext(ctx, "SELECT current_database()")
	if err := query.Scan(&config.DatabaseName); err != nil {
		return nil, errors.Wrap(err, "could not select current database")
	}

	driver, err := postgres.WithInstance(db, &config)
	if err != nil {
		return nil, errors.Wrap(err, "could not setup postgres migration client")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "bad migrations dir %q", dir)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+abs, "postgres", driver)
	if err != nil {
		return nil, errors.Wrap(err, "could not create migration instance")
	}
	m.Log = &migrateLogger{Entry: util.WithField("component", "migrate")}
	return m, nil
}

// Version reports the applied schema version and whether the last migration
// left the schema dirty. A database with no migrations reports version 0.
func Version(ctx context.Context, db *sql.DB, dir string) (uint, bool, error) {
	m, err := newMigrator(ctx, db, dir)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if err == migrate.ErrNilVersion {
		return 0, false, nil
	}
	return version, dirty, err
}

// Migrate applies every pending up migration in dir.
func Migrate(ctx context.Context, db *sql.DB, dir string) error {
	m, err := newMigrator(ctx, db, dir)
	if err != nil {
		return err
	}
	version, dirty, err := m.Version()
	if err == nil && dirty {
		return fmt.Errorf("database is dirty at version %d", version)
	}
	err = m.Up()
	if err == migrate.ErrNoChange {
		util.Infof("Schema already at version %d", version)
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "could not perform migrations")
	}
	return nil
}

type migrateLogger struct {
	*logrus.Entry
}

func (ml migrateLogger) Verbose() bool {
	return ml.Logger.IsLevelEnabled(logrus.DebugLevel)
}
