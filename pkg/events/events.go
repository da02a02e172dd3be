package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"
)

// Event is the base interface for journal entries. Keep payloads small and
// JSON-friendly; the journal exists for audit and replay, not as a queue.
type Event interface {
	Type() string
	Subject() string
	Timestamp() time.Time
	Actor() *string
	MarshalData() ([]byte, error)
}

// Base contains common event metadata. Subject is a typed key such as
// "run:<uuid>", "spot:42" or "venue:<placeid>".
type Base struct {
	Ts   time.Time `json:"ts"`
	Subj string    `json:"subject"`
	Act  *string   `json:"actor,omitempty"`
}

func (b Base) Timestamp() time.Time { return b.Ts }
func (b Base) Subject() string      { return b.Subj }
func (b Base) Actor() *string       { return b.Act }

// Subject key constructors.

func RunSubject(runID string) string     { return "run:" + runID }
func SpotSubject(spotID int64) string    { return "spot:" + strconv.FormatInt(spotID, 10) }
func VenueSubject(venueID string) string { return "venue:" + venueID }

// --- Concrete events ---

const (
	TypeRunStarted   = "run.started"
	TypeRunCompleted = "run.completed"
	TypeRunFailed    = "run.failed"
	TypeStepSkipped  = "run.step_skipped"

	TypeSpotApproved = "spot.approved"
	TypeSpotDenied   = "spot.denied"
	TypeSpotDeleted  = "spot.deleted"
	TypeEditApplied  = "spot.edit_applied"
	TypeEditRejected = "spot.edit_rejected"

	TypeVenueExcluded = "venue.excluded"
	TypeActivityAdded = "activity.added"
)

// RunStarted is emitted when the orchestrator admits a new run.
type RunStarted struct {
	Base
	RunID      string  `json:"run_id"`
	Date       string  `json:"date"` // YYYYMMDD
	AreaFilter *string `json:"area_filter,omitempty"`
}

func (e RunStarted) Type() string                 { return TypeRunStarted }
func (e RunStarted) MarshalData() ([]byte, error) { return json.Marshal(e) }

// RunFinished closes a run with its terminal status and step tallies.
type RunFinished struct {
	Base
	RunID     string `json:"run_id"`
	Status    string `json:"status"` // completed|failed|failed_stale
	Completed int    `json:"completed"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

func (e RunFinished) Type() string {
	if e.Status == "completed" {
		return TypeRunCompleted
	}
	return TypeRunFailed
}
func (e RunFinished) MarshalData() ([]byte, error) { return json.Marshal(e) }

// StepSkipped records a step that did not run and why, so skip cascades are
// reconstructable after the fact.
type StepSkipped struct {
	Base
	RunID  string `json:"run_id"`
	Step   string `json:"step"`
	Reason string `json:"reason"`
}

func (e StepSkipped) Type() string                 { return TypeStepSkipped }
func (e StepSkipped) MarshalData() ([]byte, error) { return json.Marshal(e) }

// Curation decision events. Actor carries the admin identity.

type SpotApproved struct {
	Base
	SpotID  int64   `json:"spot_id"`
	VenueID *string `json:"venue_id,omitempty"`
}

func (e SpotApproved) Type() string                 { return TypeSpotApproved }
func (e SpotApproved) MarshalData() ([]byte, error) { return json.Marshal(e) }

type SpotDenied struct {
	Base
	SpotID  int64   `json:"spot_id"`
	VenueID *string `json:"venue_id,omitempty"`
}

func (e SpotDenied) Type() string                 { return TypeSpotDenied }
func (e SpotDenied) MarshalData() ([]byte, error) { return json.Marshal(e) }

type SpotDeleted struct {
	Base
	SpotID   int64   `json:"spot_id"`
	VenueID  *string `json:"venue_id,omitempty"`
	Excluded bool    `json:"excluded"` // venue also landed on the watchlist
}

func (e SpotDeleted) Type() string                 { return TypeSpotDeleted }
func (e SpotDeleted) MarshalData() ([]byte, error) { return json.Marshal(e) }

type EditApplied struct {
	Base
	SpotID int64           `json:"spot_id"`
	Edit   json.RawMessage `json:"edit,omitempty"`
}

func (e EditApplied) Type() string                 { return TypeEditApplied }
func (e EditApplied) MarshalData() ([]byte, error) { return json.Marshal(e) }

type EditRejected struct {
	Base
	SpotID int64 `json:"spot_id"`
}

func (e EditRejected) Type() string                 { return TypeEditRejected }
func (e EditRejected) MarshalData() ([]byte, error) { return json.Marshal(e) }

type VenueExcluded struct {
	Base
	VenueID string `json:"venue_id"`
	Reason  string `json:"reason"`
}

func (e VenueExcluded) Type() string                 { return TypeVenueExcluded }
func (e VenueExcluded) MarshalData() ([]byte, error) { return json.Marshal(e) }

type ActivityAdded struct {
	Base
	Name string `json:"name"`
}

func (e ActivityAdded) Type() string                 { return TypeActivityAdded }
func (e ActivityAdded) MarshalData() ([]byte, error) { return json.Marshal(e) }

// EventStore defines persistence and replay. Implementations must guarantee
// ordering per subject.
type EventStore interface {
	Append(ctx context.Context, ev ...Event) error
	ListBySubject(ctx context.Context, subject string) ([]StoredEvent, error)
}

// StoredEvent is the durable representation. Seq is a monotonic order
// within the DB; Payload carries the original event JSON verbatim.
type StoredEvent struct {
	Seq     int64           `json:"seq"`
	Subject string          `json:"subject"`
	Type    string          `json:"type"`
	Ts      time.Time       `json:"ts"`
	Actor   *string         `json:"actor,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// SpotState is the result of replaying one spot's journal: last decision and
// who made it. UIs can still show full history by listing events.
type SpotState struct {
	SpotID      int64      `json:"spot_id"`
	Status      string     `json:"status"` // approved|denied|"" when undecided
	Deleted     bool       `json:"deleted"`
	EditApplied bool       `json:"edit_applied"`
	LastActor   *string    `json:"last_actor,omitempty"`
	LastUpdated time.Time  `json:"last_updated"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// ReplaySpot applies one spot's events in order and rebuilds its decision
// state.
func ReplaySpot(spotID int64, events []StoredEvent) *SpotState {
	st := &SpotState{SpotID: spotID}
	for _, se := range events {
		st.LastUpdated = se.Ts
		if se.Actor != nil {
			st.LastActor = se.Actor
		}
		switch se.Type {
		case TypeSpotApproved:
			st.Status = "approved"
		case TypeSpotDenied:
			st.Status = "denied"
		case TypeSpotDeleted:
			st.Deleted = true
			ts := se.Ts
			st.DeletedAt = &ts
		case TypeEditApplied:
			st.EditApplied = true
		}
	}
	return st
}
