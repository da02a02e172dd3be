package main

import (
	"os"

	"github.com/spf13/cobra"

	"venue-intel-pipeline/internal/report"
	"venue-intel-pipeline/pkg/logging"
)

var reportDate string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render the daily operator report",
	Long: `Render the daily operator report: run pivot, delta summary, spot counts,
run history, attention buckets, streak leaders, and curation actions from
the last day.

The run pivot and delta summary come from the data directory alone, so the
report still renders when the store is unreachable; database-backed sections
are simply absent. An approved-spot snapshot is written to
reporting/spots.json alongside the rendered text.`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVar(&reportDate, "date", "", "report date as YYYYMMDD (default: latest run)")
}

func runReport(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()

	var (
		st report.Store
		jn report.Journal
	)
	if db, err := app.Store(ctx); err == nil {
		st = db
		if j, err := app.Journal(ctx); err == nil {
			jn = j
		}
	} else {
		app.log.Warn("store unavailable, rendering a disk-only report",
			logging.String("cause", err.Error()))
	}

	b := report.NewBuilder(app.layout, st, jn, app.log)
	rep, err := b.Generate(ctx, reportDate)
	if err != nil {
		return err
	}
	if st != nil {
		if n, err := b.SnapshotSpots(ctx); err != nil {
			app.log.Warn("spot snapshot failed", logging.String("cause", err.Error()))
		} else {
			app.log.Info("spot snapshot written",
				logging.Int("spots", n),
				logging.String("path", app.layout.SpotsReportPath()))
		}
	}
	return rep.Render(os.Stdout)
}
