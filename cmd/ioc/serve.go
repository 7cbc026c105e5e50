package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ioc-platform/ioc/internal/alerter"
	"github.com/ioc-platform/ioc/internal/api"
	"github.com/ioc-platform/ioc/internal/cache"
	"github.com/ioc-platform/ioc/internal/collector"
	"github.com/ioc-platform/ioc/internal/config"
	"github.com/ioc-platform/ioc/internal/docs"
	"github.com/ioc-platform/ioc/internal/notify"
	"github.com/ioc-platform/ioc/internal/rail"
	"github.com/ioc-platform/ioc/internal/store"
)

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard, API and background workers",
		Long: `Run the dashboard, API and background workers.

Starts the HTTP server together with the table loader, website probe,
file integrity collectors, alerter, retention pruner and, when enabled,
the rail control simulator. Stops gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logs := setupLogging(cfg, cmd.ErrOrStderr())
			defer logs.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	ver, sha, built, dirty := buildInfo()
	slog.Info("starting ioc",
		"version", ver,
		"commit", sha,
		"built", built,
		"dirty", dirty,
		"go", runtime.Version(),
		"listen", cfg.Listen,
		"driver", cfg.DB.Driver,
	)

	st, err := store.Open(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	c := cache.New()
	pool := collector.NewWorkerPool(cfg.WorkerPoolSize)

	renderer, err := docs.NewRenderer(st, docs.Site{
		Title:        cfg.Site.Title,
		Organisation: cfg.Site.Organisation,
	})
	if err != nil {
		return err
	}
	defer renderer.Close()

	g, ctx := errgroup.WithContext(ctx)

	loader := collector.NewLoader(st, c, cfg.RefreshInterval.Duration)
	g.Go(func() error { return collector.Run(ctx, loader) })

	if cfg.WPM.ProbeEnabled {
		probe := collector.NewProbe(collector.ProbeConfig{
			Interval:      cfg.WPM.Interval.Duration,
			Timeout:       cfg.WPM.Timeout.Duration,
			SlowThreshold: cfg.WPM.SlowThreshold.Duration,
		}, pool, c, st)
		g.Go(func() error { return collector.Run(ctx, probe) })
	}

	for _, srv := range cfg.SCM.Servers {
		ic, err := collector.NewIntegrityCollector(collector.IntegrityConfig{
			Name: srv.Name,
			SSH: collector.SSHConfig{
				Host:    srv.Host,
				Port:    srv.Port,
				User:    srv.User,
				KeyPath: srv.KeyPath,
			},
			Paths:    srv.Paths,
			Interval: srv.Interval.Duration,
		}, c, st)
		if err != nil {
			return err
		}
		g.Go(func() error { return collector.Run(ctx, ic) })
	}

	var (
		controller *rail.Controller
		emergency  alerter.EmergencySource
	)
	if cfg.Rail.Enabled {
		controller = rail.NewController(st, cfg.Rail.Tick.Duration)
		emergency = controller
		g.Go(func() error { return collector.Run(ctx, controller) })
	}

	pruner := store.NewPruner(st, retention(cfg.Retention), cfg.Retention.PruneEvery.Duration)
	g.Go(func() error { return pruner.Run(ctx) })

	providers, err := notify.FromConfig(cfg.Notifications)
	if err != nil {
		return err
	}
	a := alerter.NewAlerter(c, st, providers, alerter.FromConfig(cfg.Alerts), emergency)
	g.Go(func() error { return a.Run(ctx) })

	server := api.NewServer(cfg.Listen, c, st, api.Options{
		Docs:      renderer,
		Rail:      controller,
		JWTSecret: cfg.Rail.JWTSecret,
	})
	g.Go(func() error { return server.Run(ctx) })

	slog.Info("all components started",
		"scm_servers", len(cfg.SCM.Servers),
		"probe", cfg.WPM.ProbeEnabled,
		"rail", cfg.Rail.Enabled,
		"notifications", len(providers),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("ioc stopped gracefully")
	return nil
}

func retention(r config.RetentionConfig) store.RetentionConfig {
	out := store.DefaultRetention()
	if r.ChecksDays > 0 {
		out.WebsiteChecks = days(r.ChecksDays)
	}
	if r.AlertsDays > 0 {
		out.AlertLog = days(r.AlertsDays)
	}
	if r.AuditDays > 0 {
		out.AuditLog = days(r.AuditDays)
	}
	return out
}

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }
