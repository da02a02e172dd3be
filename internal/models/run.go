package models

import "time"

// Pipeline run statuses.
const (
	RunRunning     = "running"
	RunCompleted   = "completed"
	RunFailed      = "failed"
	RunFailedStale = "failed_stale"
)

// Step statuses. Running only ever appears in a live manifest; a crash
// mid-step leaves it behind as the tell for stale-run recovery.
const (
	StepRunning   = "running"
	StepCompleted = "completed"
	StepSkipped   = "skipped"
	StepFailed    = "failed"
)

// Pipeline step names, in execution order.
const (
	StepRotate      = "rotate"
	StepFetch       = "fetch"
	StepMerge       = "merge"
	StepTrim        = "trim"
	StepDelta       = "delta"
	StepExtract     = "extract"
	StepMaterialize = "materialize"
	StepCleanup     = "cleanup"
)

// StepRecord captures one step's outcome inside a run.
type StepRecord struct {
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Reason     string     `json:"reason,omitempty"` // set for skipped/failed
	Items      int        `json:"items,omitempty"`  // processed item count
}

// PipelineRun is the store row for one orchestrator invocation. At most one
// run may be in "running" state; runs stuck running past the stale threshold
// are flipped to failed_stale on read.
type PipelineRun struct {
	ID         string                `json:"id" db:"id"`
	StartedAt  time.Time             `json:"started_at" db:"started_at"`
	FinishedAt *time.Time            `json:"finished_at" db:"finished_at"`
	Status     string                `json:"status" db:"status"`
	RunDate    string                `json:"run_date" db:"run_date"` // YYYYMMDD
	Steps      map[string]StepRecord `json:"steps" db:"steps"`
	AreaFilter *string               `json:"area_filter" db:"area_filter"`
}

// Manifest is the on-disk mirror of a run's state, written atomically after
// every step transition so status survives a crash.
type Manifest struct {
	RunID     string                `json:"runId"`
	Date      string                `json:"date"`
	Status    string                `json:"status"`
	StartedAt time.Time             `json:"startedAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
	Steps     map[string]StepRecord `json:"steps"`
}

// StepOrder returns pipeline steps in execution order, for stable rendering.
func StepOrder() []string {
	return []string{
		StepRotate, StepFetch, StepMerge, StepTrim,
		StepDelta, StepExtract, StepMaterialize, StepCleanup,
	}
}

// AuditLog is one append-only mutation record.
type AuditLog struct {
	ID        int64     `json:"id" db:"id"`
	TableName string    `json:"table_name" db:"table_name"`
	RowKey    string    `json:"row_key" db:"row_key"`
	Action    string    `json:"action" db:"action"` // INSERT, UPDATE, DELETE, DENY
	Actor     string    `json:"actor" db:"actor"`
	Diff      *string   `json:"diff" db:"diff"`
	At        time.Time `json:"at" db:"at"`
}
