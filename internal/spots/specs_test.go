package spots

import (
	"context"
	"testing"

	"venue-intel-pipeline/internal/models"
)

func goldWithOffer(venueID string, needsLLM bool) *models.GoldRecord {
	return &models.GoldRecord{
		VenueID:  venueID,
		NeedsLLM: needsLLM,
		HappyHour: &models.HappyHour{
			Found: true,
			Times: "4-6pm",
		},
	}
}

func TestPublishable(t *testing.T) {
	excluded := map[string]bool{"bad-venue": true}
	deprecated := map[string]bool{"Ladies Night": true}
	gate := Publishable(excluded, deprecated)
	ctx := context.Background()

	tests := []struct {
		name string
		cand Candidate
		want bool
	}{
		{
			name: "clean candidate passes",
			cand: Candidate{
				VenueID: "v1",
				Record:  goldWithOffer("v1", false),
				Entry:   models.PromotionEntry{Type: "Happy Hour"},
			},
			want: true,
		},
		{
			name: "excluded venue fails",
			cand: Candidate{
				VenueID: "bad-venue",
				Record:  goldWithOffer("bad-venue", false),
				Entry:   models.PromotionEntry{Type: "Happy Hour"},
			},
			want: false,
		},
		{
			name: "record without offer fails",
			cand: Candidate{
				VenueID: "v1",
				Record:  &models.GoldRecord{VenueID: "v1"},
				Entry:   models.PromotionEntry{Type: "Happy Hour"},
			},
			want: false,
		},
		{
			name: "nil record fails",
			cand: Candidate{VenueID: "v1", Entry: models.PromotionEntry{Type: "Happy Hour"}},
			want: false,
		},
		{
			name: "deprecated activity fails",
			cand: Candidate{
				VenueID: "v1",
				Record:  goldWithOffer("v1", false),
				Entry:   models.PromotionEntry{Type: "Ladies Night"},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gate.IsSatisfiedBy(ctx, tt.cand); got != tt.want {
				t.Errorf("IsSatisfiedBy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfidentExtraction(t *testing.T) {
	ctx := context.Background()
	spec := ConfidentExtraction()

	if spec.IsSatisfiedBy(ctx, Candidate{Record: goldWithOffer("v1", true)}) {
		t.Error("flagged record should not count as confident")
	}
	if !spec.IsSatisfiedBy(ctx, Candidate{Record: goldWithOffer("v1", false)}) {
		t.Error("clean record should count as confident")
	}
	if spec.IsSatisfiedBy(ctx, Candidate{}) {
		t.Error("missing record should not count as confident")
	}
}

func TestSpecComposition(t *testing.T) {
	ctx := context.Background()
	yes := NewSpec(func(ctx context.Context, _ struct{}) bool { return true })
	no := NewSpec(func(ctx context.Context, _ struct{}) bool { return false })

	if yes.And(no).IsSatisfiedBy(ctx, struct{}{}) {
		t.Error("true AND false should be false")
	}
	if !yes.Or(no).IsSatisfiedBy(ctx, struct{}{}) {
		t.Error("true OR false should be true")
	}
	if !no.Not().IsSatisfiedBy(ctx, struct{}{}) {
		t.Error("NOT false should be true")
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if yes.And(yes).IsSatisfiedBy(cancelled, struct{}{}) {
		t.Error("composed spec should fail closed on cancelled context")
	}
}

func TestExcludeOnRemoval(t *testing.T) {
	ctx := context.Background()
	gate := ExcludeOnRemoval()
	venueID := "place-123"
	blank := "  "

	tests := []struct {
		name string
		spot models.Spot
		want bool
	}{
		{"automated with venue", models.Spot{Source: models.SourceAutomated, VenueID: &venueID}, true},
		{"user submission", models.Spot{Source: models.SourceUser, VenueID: &venueID}, false},
		{"automated without venue", models.Spot{Source: models.SourceAutomated}, false},
		{"automated with blank venue", models.Spot{Source: models.SourceAutomated, VenueID: &blank}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gate.IsSatisfiedBy(ctx, tt.spot); got != tt.want {
				t.Errorf("IsSatisfiedBy() = %v, want %v", got, tt.want)
			}
		})
	}
}
