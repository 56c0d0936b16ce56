package postgres

import (
	"database/sql"
	"embed"
	stderrors "errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/turtacn/SafeScan/pkg/errors"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ErrNothingToRollBack is returned by Down when the schema is already empty.
var ErrNothingToRollBack = errors.New(errors.ErrCodeConflict, "no migrations to roll back")

// Migrator applies the SafeScan schema. Source is either empty, meaning the
// migrations compiled into the binary, or a golang-migrate source URL such as
// file://migrations.
type Migrator struct {
	m      *migrate.Migrate
	source string
}

func openSource(sourceURL string) (source.Driver, string, error) {
	if sourceURL != "" {
		return nil, sourceURL, nil
	}
	src, err := iofs.New(migrationFS, "migrations")
	return src, "embedded", err
}

// OpenMigrator opens a migrator against dbURL with its own connection.
func OpenMigrator(dbURL, sourceURL string) (*Migrator, error) {
	src, name, err := openSource(sourceURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to open embedded migrations")
	}
	var m *migrate.Migrate
	if src != nil {
		m, err = migrate.NewWithSourceInstance("iofs", src, dbURL)
	} else {
		m, err = migrate.New(sourceURL, dbURL)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create migrator")
	}
	return &Migrator{m: m, source: name}, nil
}

// migratorForDB reuses an open pool. Close on the result must not be called;
// it would close db as well.
func migratorForDB(db *sql.DB, sourceURL string) (*Migrator, error) {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create migration driver")
	}
	src, name, err := openSource(sourceURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to open embedded migrations")
	}
	var m *migrate.Migrate
	if src != nil {
		m, err = migrate.NewWithInstance("iofs", src, "postgres", driver)
	} else {
		m, err = migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create migrator")
	}
	return &Migrator{m: m, source: name}, nil
}

// Source names where migrations are read from.
func (g *Migrator) Source() string { return g.source }

func (g *Migrator) Close() error {
	srcErr, dbErr := g.m.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}

// Up applies every pending migration. An up-to-date schema is not an error.
func (g *Migrator) Up() error {
	if err := g.m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		version, _, _ := g.Status()
		return errors.Wrap(err, errors.ErrCodeDatabaseError,
			fmt.Sprintf("failed to apply migrations (schema at version %d)", version))
	}
	return nil
}

// Down rolls back steps migrations.
func (g *Migrator) Down(steps int) error {
	if steps <= 0 {
		return errors.InvalidParam(fmt.Sprintf("steps must be greater than 0, got %d", steps))
	}
	if err := g.m.Steps(-steps); err != nil {
		if stderrors.Is(err, migrate.ErrNoChange) {
			return ErrNothingToRollBack
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, fmt.Sprintf("failed to roll back %d step(s)", steps))
	}
	return nil
}

// Status reports the applied version and whether a failed migration left the
// schema dirty. A fresh database is version 0.
func (g *Migrator) Status() (uint, bool, error) {
	version, dirty, err := g.m.Version()
	if stderrors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read schema version")
	}
	return version, dirty, nil
}

// Reset rolls everything back and re-applies it. The seeded knowledge base is
// recreated from the migrations; analyses and validation logs are lost.
func (g *Migrator) Reset() error {
	if err := g.m.Down(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to roll back all migrations")
	}
	return g.Up()
}

// Force records version as applied without running anything. -1 clears it.
func (g *Migrator) Force(version int) error {
	if err := g.m.Force(version); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, fmt.Sprintf("failed to force version %d", version))
	}
	return nil
}

// RunMigrations opens a migrator, applies pending migrations and closes it.
func RunMigrations(dbURL, sourceURL string) error {
	g, err := OpenMigrator(dbURL, sourceURL)
	if err != nil {
		return err
	}
	defer g.Close()
	return g.Up()
}
