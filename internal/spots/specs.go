package spots

import (
	"context"
	"strings"

	"venue-intel-pipeline/internal/models"
)

// Specification is a composable publish-eligibility predicate. Evaluation
// takes a context so callers inside cancellable stages fail closed on
// cancellation. Keep implementations small; compose for complexity.
type Specification[T any] interface {
	IsSatisfiedBy(ctx context.Context, v T) bool
	And(other Specification[T]) Specification[T]
	Or(other Specification[T]) Specification[T]
	Not() Specification[T]
}

type specFunc[T any] func(ctx context.Context, v T) bool

func (f specFunc[T]) IsSatisfiedBy(ctx context.Context, v T) bool { return f(ctx, v) }

func (f specFunc[T]) And(other Specification[T]) Specification[T] {
	return specFunc[T](func(ctx context.Context, v T) bool {
		if ctx.Err() != nil {
			return false
		}
		if !f(ctx, v) {
			return false
		}
		return other.IsSatisfiedBy(ctx, v)
	})
}

func (f specFunc[T]) Or(other Specification[T]) Specification[T] {
	return specFunc[T](func(ctx context.Context, v T) bool {
		if ctx.Err() != nil {
			return false
		}
		if f(ctx, v) {
			return true
		}
		return other.IsSatisfiedBy(ctx, v)
	})
}

func (f specFunc[T]) Not() Specification[T] {
	return specFunc[T](func(ctx context.Context, v T) bool {
		if ctx.Err() != nil {
			return false
		}
		return !f(ctx, v)
	})
}

// NewSpec constructs a Specification from a predicate.
func NewSpec[T any](fn func(ctx context.Context, v T) bool) Specification[T] {
	return specFunc[T](fn)
}

// Candidate is the unit of publish eligibility: one gold record for a venue,
// optionally narrowed to a single extracted entry.
type Candidate struct {
	VenueID string
	Record  *models.GoldRecord
	Entry   models.PromotionEntry
}

// VenueIncluded passes candidates whose venue is not on the excluded
// watchlist.
func VenueIncluded(excluded map[string]bool) Specification[Candidate] {
	return NewSpec(func(ctx context.Context, c Candidate) bool {
		return !excluded[c.VenueID]
	})
}

// HasOffer passes candidates whose gold record carries at least one
// extracted offer.
func HasOffer() Specification[Candidate] {
	return NewSpec(func(ctx context.Context, c Candidate) bool {
		return c.Record != nil && c.Record.Found()
	})
}

// ActivityCurrent passes candidates whose entry type is not a deprecated
// activity category.
func ActivityCurrent(deprecated map[string]bool) Specification[Candidate] {
	return NewSpec(func(ctx context.Context, c Candidate) bool {
		return !deprecated[c.Entry.Type]
	})
}

// ConfidentExtraction passes candidates whose record cleared review without
// an unsure flag. New spots from confident records land approved; flagged
// ones land pending for an admin decision.
func ConfidentExtraction() Specification[Candidate] {
	return NewSpec(func(ctx context.Context, c Candidate) bool {
		return c.Record != nil && !c.Record.NeedsLLM
	})
}

// Publishable composes the full eligibility gate for one candidate entry.
func Publishable(excluded, deprecated map[string]bool) Specification[Candidate] {
	return VenueIncluded(excluded).And(HasOffer()).And(ActivityCurrent(deprecated))
}

// Spot-level specifications, used by the curation bridge to decide exclusion
// side effects.

// Automated passes spots the pipeline materialized, as opposed to user or
// discovery submissions.
func Automated() Specification[models.Spot] {
	return NewSpec(func(ctx context.Context, sp models.Spot) bool {
		return sp.Source == models.SourceAutomated
	})
}

// HasVenue passes spots tied to a seeded venue.
func HasVenue() Specification[models.Spot] {
	return NewSpec(func(ctx context.Context, sp models.Spot) bool {
		return sp.VenueID != nil && strings.TrimSpace(*sp.VenueID) != ""
	})
}

// ExcludeOnRemoval is the gate for sweeping a venue onto the excluded
// watchlist when one of its spots is removed by a curator: only automated
// spots with a venue behind them carry that side effect. Removing a
// user-submitted spot says nothing about the venue.
func ExcludeOnRemoval() Specification[models.Spot] {
	return Automated().And(HasVenue())
}
