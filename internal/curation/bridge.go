package curation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"venue-intel-pipeline/internal/models"
	"venue-intel-pipeline/internal/spots"
	"venue-intel-pipeline/pkg/events"
	"venue-intel-pipeline/pkg/logging"
)

// ErrNotFound marks callbacks whose target spot no longer exists. A later
// callback can legitimately race a delete, so the server answers 404 rather
// than 500.
var ErrNotFound = errors.New("spot not found")

// Exclusion reasons recorded on the watchlist.
const (
	reasonDeleteApproved = "delete approved by curator"
	reasonReportUpheld   = "user report upheld"
)

// CurationStore is the slice of the relational store the bridge mutates.
// Every method is one audited transaction.
type CurationStore interface {
	GetSpot(ctx context.Context, id int64) (*models.Spot, error)
	UpdateSpotStatus(ctx context.Context, id int64, status, actor string) error
	ApplyPendingEdit(ctx context.Context, id int64, actor string) (*models.Spot, error)
	RejectPendingEdit(ctx context.Context, id int64, actor string) error
	SetPendingDelete(ctx context.Context, id int64, pending bool, actor string) error
	DeleteSpot(ctx context.Context, sp *models.Spot, actor string) error
	DeleteSpotAndExcludeVenue(ctx context.Context, sp *models.Spot, reason, actor string) error
	AddActivity(ctx context.Context, name, actor string) error
	DeprecateActivity(ctx context.Context, name, actor string) error
	DismissReport(ctx context.Context, spotID int64, actor string) error
	NoteDeniedSender(ctx context.Context, sender, payload string) error
}

// Journal receives curation events. Append failures are logged, never fatal.
type Journal interface {
	Append(ctx context.Context, ev ...events.Event) error
}

// Result describes what one applied callback did, echoed back to the bot.
type Result struct {
	Action        Action `json:"action"`
	SpotID        int64  `json:"spotId,omitempty"`
	Activity      string `json:"activity,omitempty"`
	Outcome       string `json:"outcome"`
	VenueExcluded bool   `json:"venueExcluded,omitempty"`
}

// Bridge applies decoded callbacks to the store. Applies for the same spot
// are serialized in receipt order by a keyed mutex; distinct spots proceed
// concurrently.
type Bridge struct {
	store           CurationStore
	journal         Journal
	locks           keyedMutex
	excludeOnDelete spots.Specification[models.Spot]
	excludeOnReport spots.Specification[models.Spot]
	now             func() time.Time
	log             *logging.ComponentLogger
}

// NewBridge builds the bridge. journal may be nil; decisions are then only
// audited, not journaled.
func NewBridge(store CurationStore, journal Journal, log *logging.Logger) *Bridge {
	return &Bridge{
		store:           store,
		journal:         journal,
		excludeOnDelete: spots.ExcludeOnRemoval(),
		excludeOnReport: spots.HasVenue(),
		now:             time.Now,
		log:             log.WithComponent("curation"),
	}
}

// DenySender audits a callback from an unknown sender. No mutation happens.
func (b *Bridge) DenySender(ctx context.Context, sender, payload string) error {
	return b.store.NoteDeniedSender(ctx, sender, payload)
}

// Apply executes one callback on behalf of a resolved curator. The actor on
// audit rows and journal events is the curator's name.
func (b *Bridge) Apply(ctx context.Context, cb Callback, curator Curator) (*Result, error) {
	unlock := b.locks.lock(cb.lockKey())
	defer unlock()

	actor := curator.Name

	var (
		res *Result
		evs []events.Event
		err error
	)
	if cb.Action.TargetsActivity() {
		res, evs, err = b.applyActivity(ctx, cb, actor)
	} else {
		var sp *models.Spot
		sp, err = b.store.GetSpot(ctx, cb.SpotID)
		if err != nil {
			return nil, err
		}
		if sp == nil {
			return nil, fmt.Errorf("%w: %d", ErrNotFound, cb.SpotID)
		}
		res, evs, err = b.applySpot(ctx, cb, sp, actor)
	}
	if err != nil {
		return nil, err
	}
	b.append(ctx, evs...)

	fields := []logging.Field{
		logging.String("action", string(cb.Action)),
		logging.String("actor", actor),
		logging.String("outcome", res.Outcome),
	}
	if cb.Action.TargetsActivity() {
		fields = append(fields, logging.String("activity", cb.Activity))
	} else {
		fields = append(fields, logging.Int64("spot_id", cb.SpotID))
	}
	b.log.Info("callback applied", fields...)
	return res, nil
}

// lockKey serializes per target: spot callbacks per spot id, activity
// callbacks per category name.
func (c Callback) lockKey() string {
	if c.Action.TargetsActivity() {
		return "act:" + c.Activity
	}
	return "spot:" + fmt.Sprint(c.SpotID)
}

func (b *Bridge) applySpot(ctx context.Context, cb Callback, sp *models.Spot, actor string) (*Result, []events.Event, error) {
	res := &Result{Action: cb.Action, SpotID: sp.ID}
	base := b.eventBase(events.SpotSubject(sp.ID), actor)

	switch cb.Action {
	case ActionApprove:
		if err := b.store.UpdateSpotStatus(ctx, sp.ID, models.SpotApproved, actor); err != nil {
			return nil, nil, err
		}
		res.Outcome = "approved"
		return res, []events.Event{events.SpotApproved{Base: base, SpotID: sp.ID, VenueID: sp.VenueID}}, nil

	case ActionDeny:
		if err := b.store.UpdateSpotStatus(ctx, sp.ID, models.SpotDenied, actor); err != nil {
			return nil, nil, err
		}
		res.Outcome = "denied"
		return res, []events.Event{events.SpotDenied{Base: base, SpotID: sp.ID, VenueID: sp.VenueID}}, nil

	case ActionEditApprove:
		var edit json.RawMessage
		if sp.PendingEdit != nil {
			edit = json.RawMessage(*sp.PendingEdit)
		}
		if _, err := b.store.ApplyPendingEdit(ctx, sp.ID, actor); err != nil {
			return nil, nil, err
		}
		res.Outcome = "edit_applied"
		return res, []events.Event{events.EditApplied{Base: base, SpotID: sp.ID, Edit: edit}}, nil

	case ActionEditDeny:
		if err := b.store.RejectPendingEdit(ctx, sp.ID, actor); err != nil {
			return nil, nil, err
		}
		res.Outcome = "edit_rejected"
		return res, []events.Event{events.EditRejected{Base: base, SpotID: sp.ID}}, nil

	case ActionDeleteApprove:
		return b.removeSpot(ctx, res, sp, b.excludeOnDelete, reasonDeleteApproved, actor)

	case ActionDeleteDeny:
		if err := b.store.SetPendingDelete(ctx, sp.ID, false, actor); err != nil {
			return nil, nil, err
		}
		res.Outcome = "delete_rejected"
		return res, nil, nil

	case ActionReportExclude:
		return b.removeSpot(ctx, res, sp, b.excludeOnReport, reasonReportUpheld, actor)

	case ActionReportKeep:
		if err := b.store.DismissReport(ctx, sp.ID, actor); err != nil {
			return nil, nil, err
		}
		res.Outcome = "report_dismissed"
		return res, nil, nil
	}

	return nil, nil, fmt.Errorf("unhandled callback action %q", cb.Action)
}

// removeSpot deletes a spot and, when the exclusion gate passes, sweeps its
// venue onto the excluded watchlist in the same transaction.
func (b *Bridge) removeSpot(ctx context.Context, res *Result, sp *models.Spot, gate spots.Specification[models.Spot], reason, actor string) (*Result, []events.Event, error) {
	base := b.eventBase(events.SpotSubject(sp.ID), actor)

	if !gate.IsSatisfiedBy(ctx, *sp) {
		if err := b.store.DeleteSpot(ctx, sp, actor); err != nil {
			return nil, nil, err
		}
		res.Outcome = "deleted"
		return res, []events.Event{events.SpotDeleted{Base: base, SpotID: sp.ID, VenueID: sp.VenueID}}, nil
	}

	if err := b.store.DeleteSpotAndExcludeVenue(ctx, sp, reason, actor); err != nil {
		return nil, nil, err
	}
	res.Outcome = "deleted"
	res.VenueExcluded = true
	evs := []events.Event{
		events.SpotDeleted{Base: base, SpotID: sp.ID, VenueID: sp.VenueID, Excluded: true},
		events.VenueExcluded{
			Base:    b.eventBase(events.VenueSubject(*sp.VenueID), actor),
			VenueID: *sp.VenueID,
			Reason:  reason,
		},
	}
	return res, evs, nil
}

func (b *Bridge) applyActivity(ctx context.Context, cb Callback, actor string) (*Result, []events.Event, error) {
	res := &Result{Action: cb.Action, Activity: cb.Activity}

	switch cb.Action {
	case ActionActivityAdd:
		if err := b.store.AddActivity(ctx, cb.Activity, actor); err != nil {
			return nil, nil, err
		}
		res.Outcome = "activity_added"
		ev := events.ActivityAdded{
			Base: b.eventBase("activity:"+cb.Activity, actor),
			Name: cb.Activity,
		}
		return res, []events.Event{ev}, nil

	case ActionActivityDeny:
		if err := b.store.DeprecateActivity(ctx, cb.Activity, actor); err != nil {
			return nil, nil, err
		}
		res.Outcome = "activity_retired"
		return res, nil, nil
	}

	return nil, nil, fmt.Errorf("unhandled callback action %q", cb.Action)
}

func (b *Bridge) eventBase(subject, actor string) events.Base {
	return events.Base{Ts: b.now(), Subj: subject, Act: &actor}
}

// append writes journal events best-effort.
func (b *Bridge) append(ctx context.Context, evs ...events.Event) {
	if b.journal == nil || len(evs) == 0 {
		return
	}
	if err := b.journal.Append(ctx, evs...); err != nil {
		b.log.Warn("journal append failed", logging.String("cause", err.Error()))
	}
}

// keyedMutex hands out one mutex per key, refcounted so idle keys do not
// accumulate. Zero value is ready to use.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
