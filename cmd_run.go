package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"venue-intel-pipeline/internal/delta"
	"venue-intel-pipeline/internal/extractor"
	"venue-intel-pipeline/internal/fetcher"
	"venue-intel-pipeline/internal/merger"
	"venue-intel-pipeline/internal/models"
	"venue-intel-pipeline/internal/pipeline"
	"venue-intel-pipeline/internal/reviewer"
	"venue-intel-pipeline/internal/spots"
	"venue-intel-pipeline/internal/trimmer"
	errs "venue-intel-pipeline/pkg/errors"
	"venue-intel-pipeline/pkg/logging"
	"venue-intel-pipeline/pkg/store"
)

var (
	runConfirm bool
	runArea    string
	runBulk    bool
)

var runCmd = &cobra.Command{
	Use:   "run-pipeline",
	Short: "Execute one pipeline pass (fetch, merge, trim, delta, extract, materialize)",
	Long: `Execute one full pipeline pass over every active venue with a website.

Without --confirm nothing is touched: the plan (steps, venue count, LLM
budget) is printed and the command exits 0. With --confirm the run takes the
single active-run slot, snapshots the store, and walks the steps in order.
SIGINT/SIGTERM cancel cooperatively; the step in flight drains and the run is
marked failed rather than left dangling.`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runConfirm, "confirm", false, "actually execute; omitted = print the plan only")
	runCmd.Flags().StringVar(&runArea, "area", "", "limit the run to venues in one area")
	runCmd.Flags().BoolVar(&runBulk, "bulk", false, "clear the bulk sentinel so extraction revisits every venue")
}

func runPipeline(cmd *cobra.Command, args []string) error {
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
	if runArea != "" {
		if err := checkAreaFlag(ctx, db, runArea); err != nil {
			return err
		}
	}
	journal, err := app.Journal(ctx)
	if err != nil {
		return err
	}
	stages, err := buildStages(ctx, app, db)
	if err != nil {
		return err
	}

	orch := pipeline.New(app.layout, db, journal, stages, app.cfg.Pipeline, app.log)
	opts := pipeline.Options{AreaFilter: runArea, ForceBulk: runBulk}

	if !runConfirm {
		plan, err := orch.Plan(ctx, opts)
		if err != nil {
			return err
		}
		printPlan(plan)
		return nil
	}

	run, err := orch.Run(ctx, opts)
	if err != nil {
		return err
	}
	printRun(run)
	if run.Status != models.RunCompleted {
		return fmt.Errorf("pipeline run %s ended %s", run.ID, run.Status)
	}
	return nil
}

// buildStages assembles the step implementations. Extract stays nil without
// an OpenAI key; the orchestrator then records a skip for that step.
func buildStages(ctx context.Context, app *App, db *store.Store) (pipeline.Stages, error) {
	stages := pipeline.Stages{
		Fetch:       fetcher.New(app.cfg.Pipeline, app.layout, app.log),
		Merge:       merger.New(app.layout, app.log),
		Trim:        trimmer.New(app.layout, app.log),
		Delta:       delta.New(app.layout, app.cfg.Pipeline.NormalizerRules, app.log),
		Materialize: spots.New(app.layout, db, app.log),
	}
	if app.cfg.OpenAIAPIKey == "" {
		app.log.Warn("OPENAI_API_KEY not set, the extract step will be skipped")
		return stages, nil
	}
	pm, err := app.Prompts()
	if err != nil {
		return pipeline.Stages{}, err
	}
	llm := extractor.NewClient(app.cfg, app.log)
	rev := reviewer.New(app.cfg.Pipeline, db, pm, llm, app.log)
	stages.Extract = extractor.New(app.layout, db, rev, pm, llm, app.cfg.Pipeline,
		activityNames(ctx, db, app.log), app.log)
	return stages, nil
}

// checkAreaFlag refuses a typo'd --area up front; an unknown area would
// otherwise plan zero venues and skip every step without a word. A database
// whose area table has not been synced yet cannot validate, so the filter
// passes through.
func checkAreaFlag(ctx context.Context, db *store.Store, area string) error {
	names, err := db.ListAreaNames(ctx)
	if err != nil || len(names) == 0 {
		return nil
	}
	for _, n := range names {
		if n == area {
			return nil
		}
	}
	return errs.NewConfig("run-pipeline",
		fmt.Sprintf("unknown area %q, known areas: %s", area, strings.Join(names, ", ")), nil)
}

// activityNames feeds the extractor's vocabulary from the activity table so
// curator-added types steer extraction on the next run.
func activityNames(ctx context.Context, db *store.Store, log *logging.Logger) []string {
	acts, err := db.ListActivities(ctx)
	if err != nil {
		log.Warn("cannot list activity types, extractor falls back to built-ins",
			logging.String("cause", err.Error()))
		return nil
	}
	names := make([]string, 0, len(acts))
	for _, a := range acts {
		if a.Deprecated {
			continue
		}
		names = append(names, a.Name)
	}
	return names
}

func printPlan(p *pipeline.Plan) {
	fmt.Println("Plan (dry run, pass --confirm to execute):")
	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "  steps\t%s\n", strings.Join(p.Steps, " > "))
	fmt.Fprintf(tw, "  venues\t%d\n", p.Venues)
	if p.AreaFilter != "" {
		fmt.Fprintf(tw, "  area\t%s\n", p.AreaFilter)
	}
	fmt.Fprintf(tw, "  bulk mode\t%v\n", p.BulkMode)
	fmt.Fprintf(tw, "  llm budget\t%d\n", p.LLMBudget)
	tw.Flush()
}

func printRun(run *models.PipelineRun) {
	fmt.Printf("Run %s (%s) %s\n", run.ID, run.RunDate, run.Status)
	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tSTATUS\tITEMS\tREASON")
	for _, step := range models.StepOrder() {
		rec, ok := run.Steps[step]
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", step, rec.Status, rec.Items, rec.Reason)
	}
	tw.Flush()
}
