// Package pipeline sequences the daily run: rotate the on-disk hierarchy,
// fetch raw pages, merge, trim, detect deltas, extract with the LLM,
// materialize spots, clean up. Steps execute strictly in order; each records
// its outcome in the run row and the on-disk manifest. A step failure stays
// local to its step; the run only aborts on integrity or config errors, or
// when the operator cancels.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"venue-intel-pipeline/internal/constants"
	"venue-intel-pipeline/internal/datadir"
	"venue-intel-pipeline/internal/extractor"
	"venue-intel-pipeline/internal/fetcher"
	"venue-intel-pipeline/internal/merger"
	"venue-intel-pipeline/internal/models"
	"venue-intel-pipeline/internal/spots"
	"venue-intel-pipeline/internal/trimmer"
	"venue-intel-pipeline/pkg/config"
	errs "venue-intel-pipeline/pkg/errors"
	"venue-intel-pipeline/pkg/events"
	"venue-intel-pipeline/pkg/logging"
)

// Options selects the scope of one run.
type Options struct {
	AreaFilter string // limit the venue set to one area
	ForceBulk  bool   // clear the bulk sentinel so extraction covers every venue
}

// Store is the slice of the relational store the orchestrator drives.
type Store interface {
	RecoverStaleRuns(ctx context.Context, threshold time.Duration) (int, error)
	ActiveRun(ctx context.Context) (*models.PipelineRun, error)
	CreateRun(ctx context.Context, run *models.PipelineRun) error
	UpdateRunSteps(ctx context.Context, id string, steps map[string]models.StepRecord) error
	FinishRun(ctx context.Context, id, status string, finishedAt time.Time) error
	ListVenuesWithWebsite(ctx context.Context, areaFilter string) ([]models.Venue, error)
	Backup(ctx context.Context, layout datadir.Layout, now time.Time) (string, error)
}

// Journal receives run lifecycle events. Append failures are logged, never
// fatal; the journal is an audit trail, not a control channel.
type Journal interface {
	Append(ctx context.Context, ev ...events.Event) error
}

// Per-stage interfaces, satisfied by the concrete stage types. The
// orchestrator only sees these, so scenario tests can swap any stage out.
// Stage Run methods return their stats struct non-nil even on error.

type Fetcher interface {
	FetchAll(ctx context.Context, venues []models.Venue) (*fetcher.Stats, error)
}

type Merger interface {
	MergeAll(ctx context.Context, venues []models.Venue) (merger.Stats, error)
}

type Trimmer interface {
	TrimAll(ctx context.Context) (trimmer.Stats, error)
}

type DeltaDetector interface {
	Run(ctx context.Context, now time.Time) (*models.DeltaSummary, error)
}

type Extractor interface {
	Run(ctx context.Context, now time.Time) (*extractor.Stats, error)
}

type Materializer interface {
	Run(ctx context.Context, now time.Time) (*spots.Stats, error)
}

// Stages bundles the step implementations in execution order. Extract may be
// nil when no LLM credentials are configured; the step then records a skip.
type Stages struct {
	Fetch       Fetcher
	Merge       Merger
	Trim        Trimmer
	Delta       DeltaDetector
	Extract     Extractor
	Materialize Materializer
}

type Orchestrator struct {
	layout  datadir.Layout
	store   Store
	journal Journal

	fetch       Fetcher
	merge       Merger
	trim        Trimmer
	delta       DeltaDetector
	extract     Extractor
	materialize Materializer

	pcfg         config.Pipeline
	stageTimeout time.Duration
	now          func() time.Time
	log          *logging.ComponentLogger
}

func New(layout datadir.Layout, st Store, journal Journal, stages Stages, pcfg config.Pipeline, log *logging.Logger) *Orchestrator {
	return &Orchestrator{
		layout:       layout,
		store:        st,
		journal:      journal,
		fetch:        stages.Fetch,
		merge:        stages.Merge,
		trim:         stages.Trim,
		delta:        stages.Delta,
		extract:      stages.Extract,
		materialize:  stages.Materialize,
		pcfg:         pcfg,
		stageTimeout: constants.StageTimeoutDefault,
		now:          time.Now,
		log:          log.WithComponent("pipeline"),
	}
}

// Plan describes what a run would do without doing it, for the dry-run
// output of run-pipeline.
type Plan struct {
	Steps      []string `json:"steps"`
	Venues     int      `json:"venues"`
	AreaFilter string   `json:"areaFilter,omitempty"`
	BulkMode   bool     `json:"bulkMode"`
	LLMBudget  int      `json:"llmBudget"`
}

func (o *Orchestrator) Plan(ctx context.Context, opts Options) (*Plan, error) {
	venues, err := o.store.ListVenuesWithWebsite(ctx, opts.AreaFilter)
	if err != nil {
		return nil, err
	}
	limit := o.pcfg.MaxIncrementalFiles
	if limit <= 0 {
		limit = constants.MaxIncrementalFilesDefault
	}
	return &Plan{
		Steps:      models.StepOrder(),
		Venues:     len(venues),
		AreaFilter: opts.AreaFilter,
		BulkMode:   opts.ForceBulk || !o.layout.BulkComplete(),
		LLMBudget:  limit,
	}, nil
}

// Run executes one full pipeline pass. The returned run carries every step's
// outcome; the error is non-nil only when the run was refused or aborted.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*models.PipelineRun, error) {
	now := o.now()

	threshold := o.pcfg.StaleRunThreshold()
	if threshold <= 0 {
		threshold = constants.StaleRunThresholdDefault
	}
	recovered, err := o.store.RecoverStaleRuns(ctx, threshold)
	if err != nil {
		return nil, err
	}
	if recovered > 0 {
		o.log.Warn("recovered stale runs", logging.Int("count", recovered))
	}

	active, err := o.store.ActiveRun(ctx)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, errs.NewConfig("pipeline.Run",
			fmt.Sprintf("run %s is still active, refusing to start another", active.ID), nil)
	}

	// Snapshot the store before the first mutation. A run that cannot secure
	// its rollback point does not start.
	backupPath, err := o.store.Backup(ctx, o.layout, now)
	if err != nil {
		return nil, err
	}
	o.log.Info("store backed up", logging.String("path", backupPath))

	if opts.ForceBulk {
		if err := os.Remove(o.layout.BulkSentinelPath()); err != nil && !os.IsNotExist(err) {
			return nil, errs.NewTransient("pipeline.Run", "cannot clear bulk sentinel", err)
		}
	}

	run := &models.PipelineRun{
		ID:        uuid.New().String(),
		StartedAt: now,
		Status:    models.RunRunning,
		RunDate:   now.Format("20060102"),
		Steps:     map[string]models.StepRecord{},
	}
	if opts.AreaFilter != "" {
		af := opts.AreaFilter
		run.AreaFilter = &af
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	o.journalAppend(events.RunStarted{
		Base:       events.Base{Ts: now, Subj: events.RunSubject(run.ID)},
		RunID:      run.ID,
		Date:       run.RunDate,
		AreaFilter: run.AreaFilter,
	})
	o.log.Info("pipeline run started",
		logging.String("run_id", run.ID),
		logging.String("date", run.RunDate),
		logging.String("area", opts.AreaFilter))

	var venues []models.Venue

	// Reasons that cascade: skipContent blanks out every later content stage
	// (zero pages fetched means there is nothing downstream to chew on);
	// extractGate only blanks extraction.
	var skipContent, extractGate string

	if err := o.step(ctx, run, models.StepRotate, func(c context.Context) (int, string, error) {
		res, err := o.layout.RotateDaily(o.now())
		if err != nil {
			return 0, "", err
		}
		if res.ArchivedTo != "" {
			o.log.Info("previous raw retired to archive", logging.String("path", res.ArchivedTo))
		}
		if !res.RawRotated && !res.TrimmedRotated {
			return 0, "nothing to rotate", nil
		}
		return 0, "", nil
	}); err != nil {
		return o.finish(run, models.RunFailed, err)
	}

	if err := o.step(ctx, run, models.StepFetch, func(c context.Context) (int, string, error) {
		var err error
		venues, err = o.store.ListVenuesWithWebsite(c, opts.AreaFilter)
		if err != nil {
			skipContent = "venue list unavailable"
			return 0, "", err
		}
		if len(venues) == 0 {
			skipContent = "no venues in scope"
			return 0, skipContent, nil
		}
		st, err := o.fetch.FetchAll(c, venues)
		saved := 0
		if st != nil {
			saved = int(st.PagesSaved + st.CacheHits)
		}
		if err != nil {
			if saved == 0 {
				skipContent = "no pages fetched"
			}
			return saved, "", err
		}
		if saved == 0 {
			skipContent = "no pages fetched"
			return 0, "", errors.New("no pages fetched or cached")
		}
		return saved, "", nil
	}); err != nil {
		return o.finish(run, models.RunFailed, err)
	}

	if err := o.step(ctx, run, models.StepMerge, func(c context.Context) (int, string, error) {
		if skipContent != "" {
			return 0, skipContent, nil
		}
		st, err := o.merge.MergeAll(c, venues)
		return st.Venues, "", err
	}); err != nil {
		return o.finish(run, models.RunFailed, err)
	}

	if err := o.step(ctx, run, models.StepTrim, func(c context.Context) (int, string, error) {
		if skipContent != "" {
			return 0, skipContent, nil
		}
		st, err := o.trim.TrimAll(c)
		return st.Venues, "", err
	}); err != nil {
		return o.finish(run, models.RunFailed, err)
	}

	if err := o.step(ctx, run, models.StepDelta, func(c context.Context) (int, string, error) {
		if skipContent != "" {
			return 0, skipContent, nil
		}
		sum, err := o.delta.Run(c, o.now())
		if err != nil {
			// The work-set directory is now unreliable; extraction must not
			// trust it.
			extractGate = "delta failed, work-set unreliable"
			return 0, "", err
		}
		return sum.WorkSetSize(), "", nil
	}); err != nil {
		return o.finish(run, models.RunFailed, err)
	}

	if err := o.step(ctx, run, models.StepExtract, func(c context.Context) (int, string, error) {
		if skipContent != "" {
			return 0, skipContent, nil
		}
		if extractGate != "" {
			return 0, extractGate, nil
		}
		if o.extract == nil {
			return 0, "no LLM credentials", nil
		}
		st, err := o.extract.Run(c, o.now())
		if err != nil {
			var be *extractor.BudgetError
			if errors.As(err, &be) {
				return 0, be.Error(), nil
			}
			var pl *errs.ProviderLimitError
			if errors.As(err, &pl) {
				return int(st.Extracted), "provider limit: " + pl.Msg, nil
			}
			return int(st.Extracted), "", err
		}
		if st.WorkSet == 0 {
			if st.Mode == models.ExtractionIncremental {
				return 0, "no incremental changes", nil
			}
			return 0, "no trimmed documents", nil
		}
		return int(st.Extracted), "", nil
	}); err != nil {
		return o.finish(run, models.RunFailed, err)
	}

	if err := o.step(ctx, run, models.StepMaterialize, func(c context.Context) (int, string, error) {
		if skipContent != "" {
			return 0, skipContent, nil
		}
		// Runs even when extraction skipped: the watchlist sweep must still
		// purge spots for venues excluded since the last pass.
		st, err := o.materialize.Run(c, o.now())
		return int(st.Created + st.Updated + st.Unchanged), "", err
	}); err != nil {
		return o.finish(run, models.RunFailed, err)
	}

	if err := o.step(ctx, run, models.StepCleanup, func(c context.Context) (int, string, error) {
		backups, err := o.layout.PruneBackups(constants.BackupRetainDefault)
		if err != nil {
			return backups, "", err
		}
		archives, err := o.layout.PruneArchives(constants.ArchiveRetainDefault)
		if err != nil {
			return backups + archives, "", err
		}
		return backups + archives, "", nil
	}); err != nil {
		return o.finish(run, models.RunFailed, err)
	}

	return o.finish(run, models.RunCompleted, nil)
}

// step runs one stage under the soft ceiling and records its outcome. fn
// returns (items, skipReason, err); an empty skipReason with a nil error
// means completed. The returned error is non-nil only when the run must
// abort: cancellation, or an error errs.Fatal classes as fatal.
func (o *Orchestrator) step(ctx context.Context, run *models.PipelineRun, name string, fn func(context.Context) (int, string, error)) error {
	started := o.now()
	run.Steps[name] = models.StepRecord{Status: models.StepRunning, StartedAt: started}
	o.persist(run)

	stepCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	items, skipReason, err := fn(stepCtx)
	cancel()

	finished := o.now()
	rec := models.StepRecord{StartedAt: started, FinishedAt: &finished, Items: items}
	switch {
	case err != nil:
		rec.Status = models.StepFailed
		rec.Reason = err.Error()
		if ctx.Err() != nil {
			rec.Reason = "cancelled"
		}
		o.log.Warn("step failed",
			logging.String("run_id", run.ID),
			logging.String("step", name),
			logging.String("reason", rec.Reason))
	case skipReason != "":
		rec.Status = models.StepSkipped
		rec.Reason = skipReason
		o.journalAppend(events.StepSkipped{
			Base:   events.Base{Ts: finished, Subj: events.RunSubject(run.ID)},
			RunID:  run.ID,
			Step:   name,
			Reason: skipReason,
		})
		o.log.Info("step skipped",
			logging.String("run_id", run.ID),
			logging.String("step", name),
			logging.String("reason", skipReason))
	default:
		rec.Status = models.StepCompleted
		o.log.Info("step completed",
			logging.String("run_id", run.ID),
			logging.String("step", name),
			logging.Int("items", items),
			logging.String("took", finished.Sub(started).Round(time.Millisecond).String()))
	}
	run.Steps[name] = rec
	o.persist(run)

	if err != nil {
		if ctx.Err() != nil {
			return errs.NewTransient("pipeline."+name, "run cancelled", ctx.Err())
		}
		if errs.Fatal(err) {
			return err
		}
	}
	return nil
}

// finish closes the run: unvisited steps become skips, the terminal manifest
// is written, the run row closes, and the journal records the outcome.
func (o *Orchestrator) finish(run *models.PipelineRun, status string, cause error) (*models.PipelineRun, error) {
	finished := o.now()
	run.Status = status
	run.FinishedAt = &finished

	reason := "run aborted"
	var t *errs.TransientError
	if errors.As(cause, &t) {
		reason = "cancelled"
	}
	for _, name := range models.StepOrder() {
		if _, seen := run.Steps[name]; seen {
			continue
		}
		run.Steps[name] = models.StepRecord{
			Status:     models.StepSkipped,
			StartedAt:  finished,
			FinishedAt: &finished,
			Reason:     reason,
		}
		o.journalAppend(events.StepSkipped{
			Base:   events.Base{Ts: finished, Subj: events.RunSubject(run.ID)},
			RunID:  run.ID,
			Step:   name,
			Reason: reason,
		})
	}
	o.persist(run)

	pctx, cancel := context.WithTimeout(context.Background(), constants.EventsSQLTimeoutDefault)
	defer cancel()
	if err := o.store.FinishRun(pctx, run.ID, status, finished); err != nil {
		o.log.Warn("run row close failed",
			logging.String("run_id", run.ID),
			logging.String("cause", err.Error()))
	}

	var completed, skipped, failed int
	for _, rec := range run.Steps {
		switch rec.Status {
		case models.StepCompleted:
			completed++
		case models.StepSkipped:
			skipped++
		case models.StepFailed:
			failed++
		}
	}
	o.journalAppend(events.RunFinished{
		Base:      events.Base{Ts: finished, Subj: events.RunSubject(run.ID)},
		RunID:     run.ID,
		Status:    status,
		Completed: completed,
		Skipped:   skipped,
		Failed:    failed,
	})
	o.log.Info("pipeline run finished",
		logging.String("run_id", run.ID),
		logging.String("status", status),
		logging.Int("completed", completed),
		logging.Int("skipped", skipped),
		logging.Int("failed", failed))
	return run, cause
}

// persist mirrors the step map to the run row and the on-disk manifest. Both
// writes survive cancellation on purpose: after a shutdown signal, the final
// state still has to land.
func (o *Orchestrator) persist(run *models.PipelineRun) {
	man := models.Manifest{
		RunID:     run.ID,
		Date:      run.RunDate,
		Status:    run.Status,
		StartedAt: run.StartedAt,
		UpdatedAt: o.now(),
		Steps:     run.Steps,
	}
	if err := datadir.WriteJSONAtomic(o.layout.ManifestPath(run.RunDate), man); err != nil {
		o.log.Warn("manifest write failed",
			logging.String("run_id", run.ID),
			logging.String("cause", err.Error()))
	}

	pctx, cancel := context.WithTimeout(context.Background(), constants.EventsSQLTimeoutDefault)
	defer cancel()
	if err := o.store.UpdateRunSteps(pctx, run.ID, run.Steps); err != nil {
		o.log.Warn("run step mirror failed",
			logging.String("run_id", run.ID),
			logging.String("cause", err.Error()))
	}
}

func (o *Orchestrator) journalAppend(ev events.Event) {
	if o.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), constants.EventsSQLTimeoutDefault)
	defer cancel()
	if err := o.journal.Append(ctx, ev); err != nil {
		o.log.Warn("journal append failed",
			logging.String("type", ev.Type()),
			logging.String("cause", err.Error()))
	}
}
