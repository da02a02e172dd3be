package store

import (
	"context"
	"database/sql"
	"fmt"

	"venue-intel-pipeline/internal/models"
	errs "venue-intel-pipeline/pkg/errors"
)

// Curation operations. Each is one transaction: the mutation plus its audit
// row commit together or not at all. The curation bridge serializes calls
// per spot, so read-then-write here does not race with itself.

// ApplyPendingEdit loads a spot and applies its queued edit: edited fields
// land, manual_override locks them against pipeline refreshes, the queue
// slot clears. Returns the updated spot.
func (s *Store) ApplyPendingEdit(ctx context.Context, id int64, actor string) (*models.Spot, error) {
	sp, err := s.GetSpot(ctx, id)
	if err != nil {
		return nil, err
	}
	if sp == nil {
		return nil, errs.NewIntegrity("store.ApplyPendingEdit",
			fmt.Sprintf("spot %d not found", id), nil)
	}

	var out *models.Spot
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		out, err = s.ApplyPendingEditTx(tx, sp, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RejectPendingEdit drops a queued edit without applying it.
func (s *Store) RejectPendingEdit(ctx context.Context, id int64, actor string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.ClearPendingEditTx(tx, id, actor)
	})
}

// DeleteSpot removes one spot, auditing the full row.
func (s *Store) DeleteSpot(ctx context.Context, sp *models.Spot, actor string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.DeleteSpotTx(tx, sp, actor)
	})
}

// DeleteSpotAndExcludeVenue removes a spot and lands its venue on the
// excluded watchlist in the same transaction, so a crash between the two
// cannot leave the venue eligible for re-materialization.
func (s *Store) DeleteSpotAndExcludeVenue(ctx context.Context, sp *models.Spot, reason, actor string) error {
	if sp.VenueID == nil || *sp.VenueID == "" {
		return errs.NewIntegrity("store.DeleteSpotAndExcludeVenue",
			fmt.Sprintf("spot %d has no venue to exclude", sp.ID), nil)
	}
	entry := &models.WatchlistEntry{
		VenueID: *sp.VenueID,
		Name:    sp.Title,
		Area:    sp.Area,
		Status:  models.WatchlistExcluded,
		Reason:  reason,
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.DeleteSpotTx(tx, sp, actor); err != nil {
			return err
		}
		return s.UpsertWatchlistTx(tx, entry, actor)
	})
}

// AddActivity adds a curator-proposed activity category, reviving it if it
// had been deprecated.
func (s *Store) AddActivity(ctx context.Context, name, actor string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.UpsertActivityTx(tx, name, actor)
	})
}

// DeprecateActivity retires a proposed or existing activity category. The
// materializer stops producing spots of this type; existing spots keep it.
func (s *Store) DeprecateActivity(ctx context.Context, name, actor string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.SetActivityDeprecatedTx(tx, name, actor)
	})
}

// DismissReport records that a curator reviewed a reported spot and chose to
// keep it. The spot itself is untouched; the audit row is the decision.
func (s *Store) DismissReport(ctx context.Context, spotID int64, actor string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		diff := map[string]string{"report": "dismissed"}
		return appendAudit(tx, "spots", fmt.Sprint(spotID), "UPDATE", actor, diff)
	})
}

// NoteDeniedSender audits a callback from a sender missing from the curator
// roster. Nothing is mutated; the row exists so silent probe attempts leave
// a trace.
func (s *Store) NoteDeniedSender(ctx context.Context, sender, payload string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		diff := map[string]string{"reason": "denied_sender", "data": payload}
		return appendAudit(tx, "callbacks", sender, "DENY", sender, diff)
	})
}
