package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/SafeScan/internal/infrastructure/database/postgres"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// withMigrator opens a migrator for the configured database, runs fn and
// closes it.
func withMigrator(cmd *cobra.Command, fn func(*CLIContext, *postgres.Migrator) error) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	db := cliCtx.Config.Database
	if db.Host == "" || db.DBName == "" {
		return errors.InvalidParam("database.host and database.db_name must be configured")
	}
	g, err := postgres.OpenMigrator(db.MigrationURL(), db.MigrationPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := g.Close(); cerr != nil {
			cliCtx.Logger.Warn("closing migrator", logging.Err(cerr))
		}
	}()
	return fn(cliCtx, g)
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
		Long: "Apply, roll back or inspect schema migrations. The migrations compiled\n" +
			"into the binary are used unless database.migration_path names a source URL.",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(cliCtx *CLIContext, g *postgres.Migrator) error {
				if err := g.Up(); err != nil {
					return err
				}
				cliCtx.Logger.Info("migrations applied", logging.String("source", g.Source()))
				PrintSuccess(cmd, "schema is up to date")
				return nil
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(_ *CLIContext, g *postgres.Migrator) error {
				if err := g.Down(steps); err != nil {
					return err
				}
				PrintSuccess(cmd, fmt.Sprintf("rolled back %d migration(s)", steps))
				return nil
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(_ *CLIContext, g *postgres.Migrator) error {
				version, dirty, err := g.Status()
				if err != nil {
					return err
				}
				return PrintResult(cmd, migrationStatus{Version: version, Dirty: dirty, Source: g.Source()})
			})
		},
	}

	force := &cobra.Command{
		Use:   "force VERSION",
		Short: "Record VERSION as applied without running it",
		Long:  "Record VERSION as applied without running it. Use only to recover from a\ndirty schema; -1 clears the version.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return errors.InvalidParam("VERSION must be an integer")
			}
			return withMigrator(cmd, func(_ *CLIContext, g *postgres.Migrator) error {
				if err := g.Force(version); err != nil {
					return err
				}
				PrintSuccess(cmd, fmt.Sprintf("schema version forced to %d", version))
				return nil
			})
		},
	}

	var confirm bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Drop and re-create every table, including the knowledge base",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return errors.InvalidParam("reset drops all data; pass --yes to confirm")
			}
			return withMigrator(cmd, func(_ *CLIContext, g *postgres.Migrator) error {
				if err := g.Reset(); err != nil {
					return err
				}
				PrintSuccess(cmd, "database reset")
				return nil
			})
		},
	}
	reset.Flags().BoolVar(&confirm, "yes", false, "confirm data loss")

	cmd.AddCommand(up, down, status, force, reset)
	return cmd
}

type migrationStatus struct {
	Version uint   `json:"version"`
	Dirty   bool   `json:"dirty"`
	Source  string `json:"source"`
}

func (s migrationStatus) String() string {
	state := "clean"
	if s.Dirty {
		state = "dirty"
	}
	return fmt.Sprintf("version %d (%s), source %s", s.Version, state, s.Source)
}
