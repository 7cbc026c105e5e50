package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ioc-platform/ioc/internal/config"
	"github.com/ioc-platform/ioc/internal/store"
)

func newMigrateCmd(load func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	withMigrator := func(cmd *cobra.Command, fn func(*store.Migrator) error) error {
		cfg, err := load()
		if err != nil {
			return err
		}
		logs := setupLogging(cfg, cmd.ErrOrStderr())
		defer logs.Close()

		st, err := store.Connect(cfg.DB.Driver, cfg.DB.DSN)
		if err != nil {
			return err
		}
		defer st.Close()

		m, err := st.Migrator()
		if err != nil {
			return err
		}
		return fn(m)
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				return printVersion(cmd, m)
			})
		},
	}

	down := &cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations",
		Long: `Roll back migrations.

Rolls back the given number of migrations (default: 1). Zero rolls back
everything.

Example:
  ioc migrate down      # Roll back 1 migration
  ioc migrate down 3    # Roll back 3 migrations`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) > 0 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 0 {
					return fmt.Errorf("invalid steps %q", args[0])
				}
				steps = n
			}
			return withMigrator(cmd, func(m *store.Migrator) error {
				if err := m.Down(steps); err != nil {
					return err
				}
				return printVersion(cmd, m)
			})
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the current migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error { return printVersion(cmd, m) })
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}

func printVersion(cmd *cobra.Command, m *store.Migrator) error {
	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Current version: %d (dirty: %v)\n", v, dirty)
	return nil
}
