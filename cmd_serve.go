package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"venue-intel-pipeline/internal/constants"
	"venue-intel-pipeline/internal/curation"
	"venue-intel-pipeline/internal/models"
	"venue-intel-pipeline/pkg/config"
	"venue-intel-pipeline/pkg/health"
	"venue-intel-pipeline/pkg/logging"
	"venue-intel-pipeline/pkg/monitoring"
	"venue-intel-pipeline/pkg/store"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the curation callback API",
	Long: `Serve the HTTP bridge that applies curator decisions. POST /callback takes
chat-admin actions ({"from": <curator id>, "data": "<action>_<id>"}),
GET /status returns the latest run manifest pivot, GET /spots/{id}/history
replays one spot's decision journal, GET /venues and GET /venues/{id} look
venues up for the bot, GET /audit returns the recent mutation trail, GET
/healthz runs the component checks, and the metrics and pprof endpoints
mount on the same address when enabled.

The curator roster and pipeline knob file are watched while the server is
up, so roster edits and budget changes land without a restart.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8090", "listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := app.Store(ctx)
	if err != nil {
		return err
	}
	journal, err := app.Journal(ctx)
	if err != nil {
		return err
	}

	monitoring.EnableProfiling(app.cfg.ProfilingEnabled)

	roster := curation.NewRoster(app.cfg.CuratorsPath, app.log)
	done := make(chan struct{})
	defer close(done)
	go roster.Watch(done)

	bridge := curation.NewBridge(db, journal, app.log)

	hm := health.NewManager()
	hm.Register(health.NewStoreChecker(db))
	hm.Register(health.NewDataDirChecker(app.cfg.DataDir))
	hm.Register(curation.RosterChecker(roster))
	hm.Register(health.NewCheckFunc("pipeline", lastRunCheck(db)))

	var mon *monitoring.Metrics
	if app.cfg.MetricsEnabled {
		mon = monitoring.NewMetrics(512)
	}
	router := curation.NewRouter(bridge, roster, app.layout, hm, curation.RouterConfig{
		MetricsEnabled:   app.cfg.MetricsEnabled,
		MetricsPath:      app.cfg.MetricsPath,
		ProfilingEnabled: app.cfg.ProfilingEnabled,
		Monitor:          mon,
		History:          journal,
		Admin:            db,
	}, app.log)

	// Hot reload so knob changes land without a restart.
	cw := config.NewWatcher(time.Duration(app.cfg.ConfigReloadIntervalSeconds) * time.Second)
	cw.Start()
	defer cw.Close()
	go func() {
		for chg := range cw.Subscribe() {
			if chg.Err != nil {
				app.log.Error("config reload failed", chg.Err)
				continue
			}
			app.log.Info("config applied", logging.Any("fields", chg.Fields))
		}
	}()

	server := &http.Server{Addr: serveAddr, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		app.log.Info("curation server listening", logging.String("addr", serveAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.log.Info("shutdown signal received, draining")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DrainTimeoutDefault)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// lastRunCheck reports the newest pipeline run on the health endpoint so a
// failed overnight run is visible without reading the report.
func lastRunCheck(db *store.Store) func(context.Context) health.ComponentHealth {
	return func(ctx context.Context) health.ComponentHealth {
		run, err := db.LatestRun(ctx)
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "cannot read pipeline runs"}
		}
		if run == nil {
			return health.ComponentHealth{Status: health.StatusHealthy, Message: "no pipeline runs yet"}
		}
		ch := health.ComponentHealth{
			Status: health.StatusHealthy,
			Metadata: map[string]any{
				"runId":     run.ID,
				"status":    run.Status,
				"startedAt": run.StartedAt,
			},
		}
		if run.Status == models.RunFailed || run.Status == models.RunFailedStale {
			ch.Status = health.StatusDegraded
			ch.Message = "last pipeline run " + run.Status
		}
		return ch
	}
}
