package seeder

import (
	"context"
	"errors"
	"testing"

	"googlemaps.github.io/maps"

	errs "venue-intel-pipeline/pkg/errors"
)

func TestClassifyPlacesErr(t *testing.T) {
	cases := []struct {
		name      string
		in        error
		retryable bool
		limit     bool
	}{
		{"query limit", errors.New("maps: OVER_QUERY_LIMIT - quota exceeded"), false, true},
		{"daily limit", errors.New("maps: OVER_DAILY_LIMIT - billing disabled"), false, true},
		{"denied", errors.New("maps: REQUEST_DENIED - key invalid"), false, false},
		{"invalid", errors.New("maps: INVALID_REQUEST - missing location"), false, false},
		{"backend", errors.New("maps: UNKNOWN_ERROR - backend error"), true, false},
		{"transport", errors.New("connection reset by peer"), true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyPlacesErr("places.test", tc.in)
			if errs.Retryable(got) != tc.retryable {
				t.Errorf("retryable = %v, want %v (%v)", errs.Retryable(got), tc.retryable, got)
			}
			var pl *errs.ProviderLimitError
			if errors.As(got, &pl) != tc.limit {
				t.Errorf("provider-limit = %v, want %v (%v)", !tc.limit, tc.limit, got)
			}
		})
	}
}

func TestClientOpenCircuitIsProviderLimit(t *testing.T) {
	api := &fakePlaces{
		text: func(_ *maps.TextSearchRequest) (maps.PlacesSearchResponse, error) {
			return maps.PlacesSearchResponse{}, errors.New("connection refused")
		},
	}
	c := newClient(api, testLogger(t))

	ctx := context.Background()
	var last error
	for i := 0; i < 6; i++ {
		_, last = c.Search(ctx, "happy hour bar in Downtown Charleston")
	}
	var pl *errs.ProviderLimitError
	if !errors.As(last, &pl) {
		t.Fatalf("want ProviderLimitError from open circuit, got %v", last)
	}
	if pl.System != "places" {
		t.Errorf("system = %q", pl.System)
	}
	// The breaker opened after the fifth consecutive failure; the sixth
	// call never reached the provider.
	if api.textCalls != 5 {
		t.Errorf("provider reached %d times", api.textCalls)
	}
}

func TestClientDetailsPassesFieldMask(t *testing.T) {
	api := &fakePlaces{}
	c := newClient(api, testLogger(t))

	if _, err := c.Details(context.Background(), "pl-x"); err != nil {
		t.Fatalf("Details: %v", err)
	}
	if len(api.lastMask) != len(detailFields) {
		t.Fatalf("mask = %d fields, want %d", len(api.lastMask), len(detailFields))
	}
}
