package seeder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"googlemaps.github.io/maps"

	"venue-intel-pipeline/internal/models"
	"venue-intel-pipeline/pkg/config"
	errs "venue-intel-pipeline/pkg/errors"
	"venue-intel-pipeline/pkg/geography"
	"venue-intel-pipeline/pkg/logging"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, err := logging.NewLogger(logging.LogConfig{Level: logging.LevelError, Format: "text", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func testAreaSet() *geography.AreaSet {
	return &geography.AreaSet{
		Metro: geography.Bounds{South: 32.6, West: -80.2, North: 33.0, East: -79.7},
		Areas: []geography.Area{
			{
				Name:        "Downtown Charleston",
				DisplayName: "Downtown Charleston",
				Bounds:      geography.Bounds{South: 32.76, West: -79.96, North: 32.80, East: -79.92},
				Center:      geography.LatLng{Lat: 32.78, Lng: -79.94},
				RadiusM:     1200,
				ZipCodes:    []string{"29401", "29403"},
			},
			{
				Name:        "Mount Pleasant",
				DisplayName: "Mount Pleasant",
				Bounds:      geography.Bounds{South: 32.76, West: -79.91, North: 32.88, East: -79.78},
				Center:      geography.LatLng{Lat: 32.82, Lng: -79.86},
				RadiusM:     2000,
				ZipCodes:    []string{"29464"},
			},
		},
	}
}

// oneAreaSet trims the fixture to downtown only, for request-count math.
func oneAreaSet() *geography.AreaSet {
	set := testAreaSet()
	set.Areas = set.Areas[:1]
	return set
}

type fakeSeederStore struct {
	mu       sync.Mutex
	counters map[string]int
	venues   map[string]models.Venue
	history  []string // historical distinct areas
	synced   bool
	upserts  int
	actors   []string
}

func newFakeSeederStore() *fakeSeederStore {
	return &fakeSeederStore{
		counters: make(map[string]int),
		venues:   make(map[string]models.Venue),
	}
}

func (f *fakeSeederStore) SyncAreas(_ context.Context, _ *geography.AreaSet) error {
	f.synced = true
	return nil
}

func (f *fakeSeederStore) DistinctVenueAreas(_ context.Context) ([]string, error) {
	return f.history, nil
}

func (f *fakeSeederStore) AddCounter(_ context.Context, name string, delta int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[name] += delta
	return f.counters[name], nil
}

func (f *fakeSeederStore) UpsertVenues(_ context.Context, venues []models.Venue, actor string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	f.actors = append(f.actors, actor)
	created := 0
	for _, v := range venues {
		if _, ok := f.venues[v.ID]; !ok {
			created++
		}
		f.venues[v.ID] = v
	}
	return created, nil
}

type fakePlaces struct {
	mu          sync.Mutex
	nearbyCalls int
	textCalls   int
	detailCalls int
	lastMask    []maps.PlaceDetailsFieldMask

	nearby  func(r *maps.NearbySearchRequest) (maps.PlacesSearchResponse, error)
	text    func(r *maps.TextSearchRequest) (maps.PlacesSearchResponse, error)
	details func(r *maps.PlaceDetailsRequest) (maps.PlaceDetailsResult, error)
}

func (f *fakePlaces) NearbySearch(_ context.Context, r *maps.NearbySearchRequest) (maps.PlacesSearchResponse, error) {
	f.mu.Lock()
	f.nearbyCalls++
	f.mu.Unlock()
	if f.nearby == nil {
		return maps.PlacesSearchResponse{}, nil
	}
	return f.nearby(r)
}

func (f *fakePlaces) TextSearch(_ context.Context, r *maps.TextSearchRequest) (maps.PlacesSearchResponse, error) {
	f.mu.Lock()
	f.textCalls++
	f.mu.Unlock()
	if f.text == nil {
		return maps.PlacesSearchResponse{}, nil
	}
	return f.text(r)
}

func (f *fakePlaces) PlaceDetails(_ context.Context, r *maps.PlaceDetailsRequest) (maps.PlaceDetailsResult, error) {
	f.mu.Lock()
	f.detailCalls++
	f.lastMask = r.Fields
	f.mu.Unlock()
	if f.details == nil {
		return maps.PlaceDetailsResult{}, nil
	}
	return f.details(r)
}

func (f *fakePlaces) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nearbyCalls + f.textCalls + f.detailCalls
}

func searchHit(id, name string, lat, lng float64) maps.PlacesSearchResponse {
	return maps.PlacesSearchResponse{Results: []maps.PlacesSearchResult{{
		PlaceID:  id,
		Name:     name,
		Geometry: maps.AddressGeometry{Location: maps.LatLng{Lat: lat, Lng: lng}},
		Vicinity: "Charleston",
	}}}
}

func newTestSeeder(t *testing.T, set *geography.AreaSet, st *fakeSeederStore, api placesAPI, workers, cap int) *Seeder {
	t.Helper()
	log := testLogger(t)
	return New(set, st, newClient(api, log), workers, cap, log)
}

var seedDay = time.Date(2026, 8, 24, 5, 0, 0, 0, time.UTC)

func TestRunDiscoversAndUpsertsVenues(t *testing.T) {
	api := &fakePlaces{
		nearby: func(_ *maps.NearbySearchRequest) (maps.PlacesSearchResponse, error) {
			return searchHit("pl-shelter", "The Shelter Kitchen", 32.80, -79.87), nil
		},
		text: func(_ *maps.TextSearchRequest) (maps.PlacesSearchResponse, error) {
			return searchHit("pl-griffon", "The Griffon", 32.7785, -79.9295), nil
		},
		details: func(r *maps.PlaceDetailsRequest) (maps.PlaceDetailsResult, error) {
			if r.PlaceID == "pl-griffon" {
				return maps.PlaceDetailsResult{
					PlaceID:              "pl-griffon",
					Name:                 "The Griffon",
					FormattedAddress:     "18 Vendue Range, Charleston, SC 29401, USA",
					Geometry:             maps.AddressGeometry{Location: maps.LatLng{Lat: 32.7785, Lng: -79.9295}},
					Website:              "https://griffoncharleston.com",
					FormattedPhoneNumber: "(843) 723-1700",
					BusinessStatus:       "OPERATIONAL",
					AddressComponents: []maps.AddressComponent{
						{LongName: "29401", ShortName: "29401", Types: []string{"postal_code"}},
					},
				}, nil
			}
			return maps.PlaceDetailsResult{
				PlaceID:        r.PlaceID,
				Name:           "The Shelter Kitchen",
				BusinessStatus: "OPERATIONAL",
			}, nil
		},
	}
	st := newFakeSeederStore()
	s := newTestSeeder(t, testAreaSet(), st, api, 1, 0)

	stats, err := s.Run(context.Background(), seedDay)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !st.synced {
		t.Error("area mirror not synced")
	}
	if stats.Candidates != 2 || stats.Detailed != 2 {
		t.Fatalf("candidates = %d, detailed = %d", stats.Candidates, stats.Detailed)
	}
	if stats.Upserted != 2 || stats.Created != 2 || stats.Unclassified != 0 {
		t.Fatalf("upserted = %d, created = %d, unclassified = %d",
			stats.Upserted, stats.Created, stats.Unclassified)
	}

	// 2 areas x (5 points x 2 types + 3 phrases) discovery calls, then one
	// detail call per unique candidate.
	if api.nearbyCalls != 20 || api.textCalls != 6 || api.detailCalls != 2 {
		t.Fatalf("calls = %d nearby / %d text / %d details",
			api.nearbyCalls, api.textCalls, api.detailCalls)
	}
	if stats.Requests != 28 {
		t.Errorf("requests = %d, want 28", stats.Requests)
	}
	if st.counters["seeder_requests_20260824"] != 28 {
		t.Errorf("counter = %d", st.counters["seeder_requests_20260824"])
	}

	griffon, ok := st.venues["pl-griffon"]
	if !ok {
		t.Fatal("griffon not upserted")
	}
	if griffon.Website == nil || *griffon.Website != "https://griffoncharleston.com" {
		t.Errorf("website = %v", griffon.Website)
	}
	if griffon.Phone == nil || *griffon.Phone != "+18437231700" {
		t.Errorf("phone = %v, want normalized +18437231700", griffon.Phone)
	}
	if griffon.Area == nil || *griffon.Area != "Downtown Charleston" {
		t.Errorf("griffon area = %v", griffon.Area)
	}
	if griffon.ZipCodes == nil || *griffon.ZipCodes != `["29401"]` {
		t.Errorf("zip codes = %v", griffon.ZipCodes)
	}
	if !griffon.Active {
		t.Error("griffon not active")
	}

	// The shelter detail has no geometry, so the search sighting's
	// coordinates survive and bounding-box containment assigns the area.
	shelter, ok := st.venues["pl-shelter"]
	if !ok {
		t.Fatal("shelter not upserted")
	}
	if shelter.Area == nil || *shelter.Area != "Mount Pleasant" {
		t.Errorf("shelter area = %v", shelter.Area)
	}
	if shelter.Website != nil {
		t.Errorf("shelter website = %v", *shelter.Website)
	}

	if len(st.actors) != 1 || st.actors[0] != "seeder" {
		t.Errorf("actors = %v", st.actors)
	}
	if len(api.lastMask) == 0 {
		t.Fatal("details requested without a field mask")
	}
	hasWebsite := false
	for _, m := range api.lastMask {
		if m == maps.PlaceDetailsFieldMaskWebsite {
			hasWebsite = true
		}
	}
	if !hasWebsite {
		t.Error("field mask does not request the website")
	}
}

func TestRunMergesDuplicateSightings(t *testing.T) {
	api := &fakePlaces{
		nearby: func(_ *maps.NearbySearchRequest) (maps.PlacesSearchResponse, error) {
			return searchHit("pl-griffon", "The Griffon", 32.7785, -79.9295), nil
		},
		text: func(_ *maps.TextSearchRequest) (maps.PlacesSearchResponse, error) {
			return maps.PlacesSearchResponse{Results: []maps.PlacesSearchResult{{
				PlaceID:          "pl-griffon",
				Name:             "Griffon Pub",
				FormattedAddress: "18 Vendue Range, Charleston, SC 29401, USA",
				Geometry:         maps.AddressGeometry{Location: maps.LatLng{Lat: 32.7785, Lng: -79.9295}},
			}}}, nil
		},
	}
	st := newFakeSeederStore()
	s := newTestSeeder(t, oneAreaSet(), st, api, 1, 0)

	stats, err := s.Run(context.Background(), seedDay)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Candidates != 1 || api.detailCalls != 1 {
		t.Fatalf("candidates = %d, detail calls = %d", stats.Candidates, api.detailCalls)
	}
	if len(st.venues) != 1 {
		t.Fatalf("venues = %d", len(st.venues))
	}
	// First sighting wins for already-filled fields.
	if got := st.venues["pl-griffon"].Name; got != "The Griffon" {
		t.Errorf("name = %q", got)
	}
}

func TestRunDailyCapStopsCalls(t *testing.T) {
	api := &fakePlaces{}
	st := newFakeSeederStore()
	s := newTestSeeder(t, oneAreaSet(), st, api, 1, 5)

	stats, err := s.Run(context.Background(), seedDay)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !stats.CapExhausted {
		t.Fatal("cap not reported as exhausted")
	}
	if api.totalCalls() != 5 {
		t.Fatalf("provider calls = %d, want 5", api.totalCalls())
	}
	if stats.Requests != 5 {
		t.Errorf("requests = %d", stats.Requests)
	}

	// The counter persists, so a second pass the same day stops immediately.
	stats2, err := s.Run(context.Background(), seedDay)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !stats2.CapExhausted || stats2.Requests != 0 {
		t.Fatalf("second pass: capExhausted = %v, requests = %d",
			stats2.CapExhausted, stats2.Requests)
	}
	if api.totalCalls() != 5 {
		t.Errorf("provider calls after second pass = %d", api.totalCalls())
	}
}

func TestRunAreaFailureDoesNotAbortOthers(t *testing.T) {
	set := testAreaSet()
	downtown := set.Areas[0].Center
	api := &fakePlaces{
		nearby: func(r *maps.NearbySearchRequest) (maps.PlacesSearchResponse, error) {
			// One bad request in downtown; everything else answers.
			if r.Location.Lat == downtown.Lat && r.Location.Lng == downtown.Lng && r.Type == maps.PlaceTypeRestaurant {
				return maps.PlacesSearchResponse{}, errors.New("maps: UNKNOWN_ERROR - backend error")
			}
			if r.Location.Lat > 32.81 {
				return searchHit("pl-shelter", "The Shelter Kitchen", 32.80, -79.87), nil
			}
			return maps.PlacesSearchResponse{}, nil
		},
	}
	st := newFakeSeederStore()
	s := newTestSeeder(t, set, st, api, 1, 0)

	stats, err := s.Run(context.Background(), seedDay)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.FailedAreas != 1 {
		t.Fatalf("failed areas = %d", stats.FailedAreas)
	}
	if stats.ProviderLimited || stats.CapExhausted {
		t.Fatal("degraded area misreported as a pass-wide stop")
	}
	if _, ok := st.venues["pl-shelter"]; !ok {
		t.Fatal("other area's venue not committed")
	}
	// All 26 discovery requests were attempted despite the failure.
	if got := api.nearbyCalls + api.textCalls; got != 26 {
		t.Errorf("discovery calls = %d, want 26", got)
	}
}

func TestRunProviderLimitStopsPassButCommits(t *testing.T) {
	var calls int
	api := &fakePlaces{
		nearby: func(_ *maps.NearbySearchRequest) (maps.PlacesSearchResponse, error) {
			calls++
			if calls == 1 {
				return searchHit("pl-griffon", "The Griffon", 32.7785, -79.9295), nil
			}
			return maps.PlacesSearchResponse{}, errors.New("maps: OVER_QUERY_LIMIT - daily quota exceeded")
		},
	}
	st := newFakeSeederStore()
	s := newTestSeeder(t, oneAreaSet(), st, api, 1, 0)

	stats, err := s.Run(context.Background(), seedDay)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !stats.ProviderLimited {
		t.Fatal("provider limit not latched")
	}
	if stats.FailedAreas != 0 {
		t.Errorf("failed areas = %d", stats.FailedAreas)
	}
	// The first sighting still commits, without a detail record.
	if _, ok := st.venues["pl-griffon"]; !ok {
		t.Fatal("partial discovery not committed")
	}
	if stats.Detailed != 0 || api.detailCalls != 0 {
		t.Errorf("details ran after the latch: %d/%d", stats.Detailed, api.detailCalls)
	}
	if api.totalCalls() != 2 {
		t.Errorf("provider calls = %d, want 2", api.totalCalls())
	}
}

func TestRunDetailFailureKeepsSearchData(t *testing.T) {
	api := &fakePlaces{
		text: func(_ *maps.TextSearchRequest) (maps.PlacesSearchResponse, error) {
			return searchHit("pl-griffon", "The Griffon", 32.7785, -79.9295), nil
		},
		details: func(_ *maps.PlaceDetailsRequest) (maps.PlaceDetailsResult, error) {
			return maps.PlaceDetailsResult{}, errors.New("maps: UNKNOWN_ERROR - backend error")
		},
	}
	st := newFakeSeederStore()
	s := newTestSeeder(t, oneAreaSet(), st, api, 1, 0)

	stats, err := s.Run(context.Background(), seedDay)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Detailed != 0 {
		t.Errorf("detailed = %d", stats.Detailed)
	}
	v, ok := st.venues["pl-griffon"]
	if !ok {
		t.Fatal("venue dropped because details failed")
	}
	if v.Name != "The Griffon" || v.Website != nil {
		t.Errorf("venue = %+v", v)
	}
	if stats.FailedAreas != 0 {
		t.Errorf("detail failure counted as an area failure")
	}
}

func TestRunRejectsCandidatesOutsideMetro(t *testing.T) {
	api := &fakePlaces{
		text: func(_ *maps.TextSearchRequest) (maps.PlacesSearchResponse, error) {
			return searchHit("pl-miami", "South Beach Bar", 25.79, -80.13), nil
		},
	}
	st := newFakeSeederStore()
	s := newTestSeeder(t, oneAreaSet(), st, api, 1, 0)

	stats, err := s.Run(context.Background(), seedDay)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Rejected != 1 || stats.Upserted != 0 {
		t.Fatalf("rejected = %d, upserted = %d", stats.Rejected, stats.Upserted)
	}
	if st.upserts != 0 {
		t.Errorf("upsert pass ran with nothing to commit")
	}
}

func TestRunRejectsMalformedCandidateFields(t *testing.T) {
	api := &fakePlaces{
		text: func(_ *maps.TextSearchRequest) (maps.PlacesSearchResponse, error) {
			return searchHit("pl-short", "X", 32.7785, -79.9295), nil
		},
	}
	st := newFakeSeederStore()
	s := newTestSeeder(t, oneAreaSet(), st, api, 1, 0)

	stats, err := s.Run(context.Background(), seedDay)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Rejected != 1 || stats.Upserted != 0 {
		t.Fatalf("rejected = %d, upserted = %d", stats.Rejected, stats.Upserted)
	}
}

func TestGate(t *testing.T) {
	cases := []struct {
		name    string
		confirm bool
		env     string
		key     string
		wantErr string
	}{
		{"both signals missing", false, "", "key", "both required"},
		{"confirm only", true, "", "key", "GOOGLE_PLACES_ENABLED"},
		{"env only", false, "true", "key", "--confirm"},
		{"case variant refused", true, "TRUE", "key", "GOOGLE_PLACES_ENABLED"},
		{"missing api key", true, "true", "", "GOOGLE_MAPS_API_KEY"},
		{"armed", true, "true", "key", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &config.Config{GooglePlacesEnabled: tc.env, GoogleMapsAPIKey: tc.key}
			err := Gate(tc.confirm, cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Gate: %v", err)
				}
				return
			}
			var ce *errs.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("want ConfigError, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tc.wantErr)
			}
		})
	}
}
