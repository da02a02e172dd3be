package seeder

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"googlemaps.github.io/maps"

	"venue-intel-pipeline/internal/constants"
	"venue-intel-pipeline/pkg/circuit"
	"venue-intel-pipeline/pkg/config"
	errs "venue-intel-pipeline/pkg/errors"
	"venue-intel-pipeline/pkg/geography"
	"venue-intel-pipeline/pkg/logging"
)

// placesAPI is the slice of the Google Maps client the seeder actually uses.
// Tests substitute a canned implementation.
type placesAPI interface {
	NearbySearch(ctx context.Context, r *maps.NearbySearchRequest) (maps.PlacesSearchResponse, error)
	TextSearch(ctx context.Context, r *maps.TextSearchRequest) (maps.PlacesSearchResponse, error)
	PlaceDetails(ctx context.Context, r *maps.PlaceDetailsRequest) (maps.PlaceDetailsResult, error)
}

// detailFields limits PlaceDetails responses to the fields the pipeline
// consumes. Every extra field is billable.
var detailFields = []maps.PlaceDetailsFieldMask{
	maps.PlaceDetailsFieldMaskPlaceID,
	maps.PlaceDetailsFieldMaskName,
	maps.PlaceDetailsFieldMaskGeometry,
	maps.PlaceDetailsFieldMaskFormattedAddress,
	maps.PlaceDetailsFieldMaskAddressComponent,
	maps.PlaceDetailsFieldMaskWebsite,
	maps.PlaceDetailsFieldMaskFormattedPhoneNumber,
	maps.PlaceDetailsFieldMaskOpeningHours,
	maps.PlaceDetailsFieldMaskBusinessStatus,
}

// Client wraps the Places API behind the provider circuit breaker. Calls are
// single-shot: the daily request cap is charged per attempt, so recovery from
// a flaky provider belongs to the next pass, not an in-pass retry loop.
type Client struct {
	api     placesAPI
	breaker *circuit.Breaker
	log     *logging.ComponentLogger
}

// NewClient builds the production client. The API key must already be
// validated by the arming gate; this only fails on client construction.
func NewClient(cfg *config.Config, log *logging.Logger) (*Client, error) {
	api, err := maps.NewClient(
		maps.WithAPIKey(cfg.GoogleMapsAPIKey),
		maps.WithHTTPClient(&http.Client{Timeout: constants.PlacesRequestTimeout}),
	)
	if err != nil {
		return nil, errs.NewConfig("seeder.NewClient", "cannot construct places client", err)
	}
	return newClient(api, log), nil
}

func newClient(api placesAPI, log *logging.Logger) *Client {
	br := circuit.New(circuit.Config{
		Name:              "places",
		OperationTimeout:  constants.PlacesOperationTimeout,
		OpenFor:           constants.PlacesOpenFor,
		MaxConsecFailures: 5,
		WindowSize:        20,
		FailureRate:       constants.CircuitFailureRate,
		SlowCallThreshold: constants.PlacesSlowCallThreshold,
		SlowCallRate:      constants.CircuitSlowCallRate,
	}, log)

	return &Client{
		api:     api,
		breaker: br,
		log:     log.WithComponent("places"),
	}
}

// Nearby searches for places of one type around a seed point.
func (c *Client) Nearby(ctx context.Context, at geography.LatLng, radiusM int, placeType maps.PlaceType) ([]maps.PlacesSearchResult, error) {
	var results []maps.PlacesSearchResult
	op := func(ctx context.Context) error {
		resp, err := c.api.NearbySearch(ctx, &maps.NearbySearchRequest{
			Location: &maps.LatLng{Lat: at.Lat, Lng: at.Lng},
			Radius:   uint(radiusM),
			Type:     placeType,
		})
		if err != nil {
			return classifyPlacesErr("places.Nearby", err)
		}
		results = resp.Results
		return nil
	}
	if err := c.breaker.Do(ctx, op, nil); err != nil {
		return nil, wrapOpen("places.Nearby", err)
	}
	return results, nil
}

// Search runs one free-text query.
func (c *Client) Search(ctx context.Context, query string) ([]maps.PlacesSearchResult, error) {
	var results []maps.PlacesSearchResult
	op := func(ctx context.Context) error {
		resp, err := c.api.TextSearch(ctx, &maps.TextSearchRequest{Query: query})
		if err != nil {
			return classifyPlacesErr("places.Search", err)
		}
		results = resp.Results
		return nil
	}
	if err := c.breaker.Do(ctx, op, nil); err != nil {
		return nil, wrapOpen("places.Search", err)
	}
	return results, nil
}

// Details fetches one place's full record, masked to the consumed fields.
func (c *Client) Details(ctx context.Context, placeID string) (*maps.PlaceDetailsResult, error) {
	var details maps.PlaceDetailsResult
	op := func(ctx context.Context) error {
		resp, err := c.api.PlaceDetails(ctx, &maps.PlaceDetailsRequest{
			PlaceID: placeID,
			Fields:  detailFields,
		})
		if err != nil {
			return classifyPlacesErr("places.Details", err)
		}
		details = resp
		return nil
	}
	if err := c.breaker.Do(ctx, op, nil); err != nil {
		return nil, wrapOpen("places.Details", err)
	}
	return &details, nil
}

func wrapOpen(op string, err error) error {
	if errors.Is(err, circuit.ErrOpen) {
		return errs.NewProviderLimit(op, "places", "provider circuit open", err)
	}
	return err
}

// classifyPlacesErr maps provider failures onto the pipeline taxonomy. The
// maps library reports API statuses as formatted strings, so matching is
// textual. ZERO_RESULTS never reaches here; the library treats it as an
// empty success.
func classifyPlacesErr(op string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "OVER_QUERY_LIMIT"),
		strings.Contains(msg, "OVER_DAILY_LIMIT"),
		strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return errs.NewProviderLimit(op, "places", "query limit reached", err)
	case strings.Contains(msg, "REQUEST_DENIED"),
		strings.Contains(msg, "INVALID_REQUEST"),
		strings.Contains(msg, "NOT_FOUND"):
		return errs.NewPermanent(op, "provider rejected request", err)
	default:
		return errs.NewTransient(op, "provider unreachable", err)
	}
}
