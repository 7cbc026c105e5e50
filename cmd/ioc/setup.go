package main

import (
	"fmt"
	"slices"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"

	"github.com/ioc-platform/ioc/internal/config"
	"github.com/ioc-platform/ioc/internal/seed"
	"github.com/ioc-platform/ioc/internal/store"
)

func newSetupCmd(load func() (*config.Config, error)) *cobra.Command {
	var now string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Recreate the domain tables and load the sample data",
		Long: `Recreate the domain tables and load the sample data.

Drops and recreates every domain table, then inserts the sample rows in
a single transaction. Settings, alert and audit history are kept.
Running it twice leaves the same row counts.

Example:
  ioc setup
  ioc setup --now "2026-03-02 09:00"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logs := setupLogging(cfg, cmd.ErrOrStderr())
			defer logs.Close()

			st, err := store.Open(cfg.DB.Driver, cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer st.Close()

			sd := seed.New(st)
			sd.SiteTitle = cfg.Site.Title
			sd.Organisation = cfg.Site.Organisation
			if now != "" {
				t, err := dateparse.ParseIn(now, time.UTC)
				if err != nil {
					return fmt.Errorf("parsing --now %q: %w", now, err)
				}
				sd.Now = func() time.Time { return t }
			}

			report, err := sd.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("setup failed: %w", err)
			}

			out := cmd.OutOrStdout()
			tables := make([]string, 0, len(report.Counts))
			for table := range report.Counts {
				tables = append(tables, table)
			}
			slices.Sort(tables)
			for _, table := range tables {
				fmt.Fprintf(out, "  %-28s %4d\n", table, report.Counts[table])
			}
			fmt.Fprintf(out, "Setup complete: %d rows in %d tables (%s)\n",
				report.Total(), len(report.Counts), report.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&now, "now", "", "freeze the clock used for relative timestamps (any common date format)")
	return cmd
}
