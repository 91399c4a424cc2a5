package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/geocoder89/ninjafinder/internal/config"
	"github.com/geocoder89/ninjafinder/internal/db"
	"github.com/geocoder89/ninjafinder/internal/observability"
	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the ninjafinder database schema",
		SilenceUsage: true,
	}

	root.AddCommand(upCmd(), downCmd(), versionCmd(), forceCmd())

	return root
}

// withMigrator opens the embedded migrations against the configured database.
func withMigrator(fn func(m *migrate.Migrate) error) error {
	dbURL, err := config.LoadDatabaseURL()

	if err != nil {
		return err
	}

	m, err := db.NewMigrator(dbURL)

	if err != nil {
		return err
	}

	defer func() { _, _ = m.Close() }()

	return fn(m)
}

func upCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all up migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *migrate.Migrate) error {
				err := m.Up()

				if errors.Is(err, migrate.ErrNoChange) {
					fmt.Fprintln(cmd.OutOrStdout(), "no change")
					return nil
				}

				return err
			})
		},
	}
}

func downCmd() *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (one step by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *migrate.Migrate) error {
				var err error

				if steps <= 0 {
					err = m.Down()
				} else {
					err = m.Steps(-steps)
				}

				if errors.Is(err, migrate.ErrNoChange) {
					return nil
				}

				return err
			})
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back, 0 for all")

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *migrate.Migrate) error {
				v, dirty, err := m.Version()

				if errors.Is(err, migrate.ErrNilVersion) {
					fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
					return nil
				}

				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", v, dirty)
				return nil
			})
		},
	}
}

func forceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations (clears dirty state)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])

			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}

			return withMigrator(func(m *migrate.Migrate) error {
				log := observability.NewLogger("prod")
				log.Warn("forcing schema version", "version", v)
				return m.Force(v)
			})
		},
	}
}
