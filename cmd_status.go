package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"venue-intel-pipeline/internal/datadir"
	"venue-intel-pipeline/internal/report"
	"venue-intel-pipeline/pkg/config"
)

// statusCmd reads only the reporting directory, so it works without a
// database connection or any API keys.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest pipeline run manifest",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	layout := datadir.New(cfg.DataDir)

	m, err := report.LatestManifest(layout)
	if err != nil {
		fmt.Printf("No pipeline runs recorded under %s.\n", layout.ReportingDir())
		return nil
	}

	fmt.Printf("Run %s (%s) %s\n", m.RunID, m.Date, m.Status)
	fmt.Printf("updated %s\n\n", m.UpdatedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tSTATUS\tITEMS\tDURATION\tREASON")
	for _, s := range report.Pivot(m) {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", s.Step, s.Status, s.Items, s.Duration, s.Reason)
	}
	return tw.Flush()
}
