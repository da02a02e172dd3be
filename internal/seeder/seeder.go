// Package seeder discovers venues through the Places API and keeps the
// venues table canonical. Discovery sweeps every configured area with
// nearby searches at a grid of seed points plus curated text queries,
// merges all sightings into one in-memory set keyed by place id, enriches
// them with place details, and commits in a single upsert pass. The store
// merge never shrinks a venue, so re-running the seeder is always safe.
package seeder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"googlemaps.github.io/maps"

	"venue-intel-pipeline/internal/areas"
	"venue-intel-pipeline/internal/constants"
	"venue-intel-pipeline/internal/models"
	"venue-intel-pipeline/internal/validation"
	"venue-intel-pipeline/pkg/config"
	errs "venue-intel-pipeline/pkg/errors"
	"venue-intel-pipeline/pkg/geography"
	"venue-intel-pipeline/pkg/logging"
	"venue-intel-pipeline/pkg/utils"
)

// actorSeeder is the audit actor for seeded venue writes.
const actorSeeder = "seeder"

// RequestCounterPrefix keys the per-day provider request counter in the
// config table; a YYYYMMDD date completes the key. The counter outlives the
// pass, so same-day reruns share one budget.
const RequestCounterPrefix = "seeder_requests_"

// placeTypes are the establishment types swept at every seed point.
var placeTypes = []maps.PlaceType{maps.PlaceTypeRestaurant, maps.PlaceTypeBar}

// searchPhrases are the curated text queries, formatted with the area
// display name.
var searchPhrases = []string{
	"happy hour bar in %s",
	"happy hour restaurant in %s",
	"drink specials bar in %s",
}

// Gate enforces the two-signal arming contract. Discovery costs real money,
// so the confirm flag and the environment flag must both say yes before any
// provider client exists; either one missing is a refusal, not a degrade.
func Gate(confirmed bool, cfg *config.Config) error {
	const op = "seeder.Gate"
	switch {
	case !confirmed && !cfg.SeederArmed():
		return errs.NewConfig(op, "refusing to seed: --confirm flag and GOOGLE_PLACES_ENABLED=true are both required", nil)
	case !confirmed:
		return errs.NewConfig(op, "refusing to seed: --confirm flag missing", nil)
	case !cfg.SeederArmed():
		return errs.NewConfig(op, `refusing to seed: GOOGLE_PLACES_ENABLED must be exactly "true"`, nil)
	case cfg.GoogleMapsAPIKey == "":
		return errs.NewConfig(op, "refusing to seed: GOOGLE_MAPS_API_KEY is not set", nil)
	}
	return nil
}

// SeederStore is the slice of the relational store the seeder writes through.
type SeederStore interface {
	SyncAreas(ctx context.Context, set *geography.AreaSet) error
	DistinctVenueAreas(ctx context.Context) ([]string, error)
	AddCounter(ctx context.Context, name string, delta int) (int, error)
	UpsertVenues(ctx context.Context, venues []models.Venue, actor string) (int, error)
}

// Stats summarizes one seed pass.
type Stats struct {
	Areas           int64 `json:"areas"`
	Requests        int64 `json:"requests"` // provider calls charged against the daily cap
	Candidates      int64 `json:"candidates"`
	Detailed        int64 `json:"detailed"`
	Rejected        int64 `json:"rejected"` // nameless, malformed, or outside the metro box
	Unclassified    int64 `json:"unclassified"`
	Upserted        int64 `json:"upserted"`
	Created         int64 `json:"created"`
	FailedAreas     int64 `json:"failedAreas"`
	CapExhausted    bool  `json:"capExhausted"`
	ProviderLimited bool  `json:"providerLimited"`
}

// errPassStopped short-circuits further provider calls once the pass latch
// is set. It is a local control signal, never surfaced to callers.
var errPassStopped = errors.New("seeder: pass stopped")

type jobKind int

const (
	jobNearby jobKind = iota
	jobText
)

type searchJob struct {
	kind      jobKind
	area      string
	point     geography.LatLng
	radiusM   int
	placeType maps.PlaceType
	query     string
}

// candidate accumulates everything learned about one place across passes.
type candidate struct {
	placeID    string
	name       string
	lat, lng   float64
	address    string
	website    string
	phone      string
	status     string // provider business status, "" when unknown
	components []maps.AddressComponent
	hours      *maps.OpeningHours
}

// absorb merges one search sighting into the candidate: first non-empty
// value wins, later sightings only fill blanks.
func (c *candidate) absorb(r maps.PlacesSearchResult) {
	if c.name == "" {
		c.name = r.Name
	}
	if c.lat == 0 && c.lng == 0 {
		c.lat = r.Geometry.Location.Lat
		c.lng = r.Geometry.Location.Lng
	}
	if c.address == "" {
		if r.FormattedAddress != "" {
			c.address = r.FormattedAddress
		} else {
			c.address = r.Vicinity
		}
	}
	if c.status == "" {
		c.status = r.BusinessStatus
	}
}

// enrich overlays the detail record. Details are authoritative, so non-empty
// detail fields replace whatever the searches reported.
func (c *candidate) enrich(det *maps.PlaceDetailsResult) {
	if det.Name != "" {
		c.name = det.Name
	}
	if det.Geometry.Location.Lat != 0 || det.Geometry.Location.Lng != 0 {
		c.lat = det.Geometry.Location.Lat
		c.lng = det.Geometry.Location.Lng
	}
	if det.FormattedAddress != "" {
		c.address = det.FormattedAddress
	}
	c.website = det.Website
	c.phone = det.FormattedPhoneNumber
	c.components = det.AddressComponents
	c.hours = det.OpeningHours
	if det.BusinessStatus != "" {
		c.status = det.BusinessStatus
	}
}

type candidateSet struct {
	mu   sync.Mutex
	byID map[string]*candidate
}

func newCandidateSet() *candidateSet {
	return &candidateSet{byID: make(map[string]*candidate)}
}

func (cs *candidateSet) add(r maps.PlacesSearchResult) {
	if r.PlaceID == "" {
		return
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	c, ok := cs.byID[r.PlaceID]
	if !ok {
		c = &candidate{placeID: r.PlaceID}
		cs.byID[r.PlaceID] = c
	}
	c.absorb(r)
}

// sorted returns the candidates in place-id order so the detail and upsert
// passes are deterministic.
func (cs *candidateSet) sorted() []*candidate {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]*candidate, 0, len(cs.byID))
	for _, c := range cs.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].placeID < out[j].placeID })
	return out
}

type Seeder struct {
	set        *geography.AreaSet
	classifier *areas.Classifier
	store      SeederStore
	client     *Client
	workers    int
	dailyCap   int
	log        *logging.ComponentLogger

	// per-pass state, reset at the top of Run
	runDate string
	stop    atomic.Bool
}

// New wires a seed pass. workers and dailyCap fall back to the built-in
// limits when non-positive.
func New(set *geography.AreaSet, store SeederStore, client *Client, workers, dailyCap int, log *logging.Logger) *Seeder {
	if workers <= 0 {
		workers = constants.SeederConcurrencyDefault
	}
	if dailyCap <= 0 {
		dailyCap = constants.SeederDailyRequestCapDefault
	}
	return &Seeder{
		set:        set,
		classifier: areas.NewClassifier(set),
		store:      store,
		client:     client,
		workers:    workers,
		dailyCap:   dailyCap,
		log:        log.WithComponent("seeder"),
	}
}

// Run executes one seed pass: discovery across every area, a detail pass
// over the merged candidate set, then a single upsert commit. A failed
// provider call degrades its area, never the pass; the daily request cap
// and provider limits stop further calls but still commit what was found.
func (s *Seeder) Run(ctx context.Context, now time.Time) (*Stats, error) {
	stats := &Stats{Areas: int64(len(s.set.Areas))}
	s.runDate = now.Format("20060102")
	s.stop.Store(false)

	if err := s.store.SyncAreas(ctx, s.set); err != nil {
		return stats, err
	}
	s.warnOnShrunkenConfig(ctx)

	cands := newCandidateSet()
	s.discover(ctx, cands, stats)

	ordered := cands.sorted()
	stats.Candidates = int64(len(ordered))
	if len(ordered) == 0 {
		s.log.Info("seed pass discovered nothing",
			logging.Int64("requests", atomic.LoadInt64(&stats.Requests)))
		return stats, nil
	}

	s.detailPass(ctx, ordered, stats)

	venues := make([]models.Venue, 0, len(ordered))
	for _, c := range ordered {
		if v := s.venueFor(c, stats); v != nil {
			venues = append(venues, *v)
		}
	}

	if len(venues) > 0 {
		created, err := s.store.UpsertVenues(ctx, venues, actorSeeder)
		if err != nil {
			return stats, err
		}
		stats.Upserted = int64(len(venues))
		stats.Created = int64(created)
	}

	s.log.Info("seed pass complete",
		logging.Int64("areas", stats.Areas),
		logging.Int64("requests", stats.Requests),
		logging.Int64("candidates", stats.Candidates),
		logging.Int64("detailed", stats.Detailed),
		logging.Int64("upserted", stats.Upserted),
		logging.Int64("created", stats.Created),
		logging.Int64("failed_areas", stats.FailedAreas),
		logging.Bool("cap_exhausted", stats.CapExhausted))
	return stats, nil
}

// warnOnShrunkenConfig compares the loaded area config against the
// historical set. Venues in a dropped area are preserved regardless; the
// warning exists so a truncated config file gets noticed.
func (s *Seeder) warnOnShrunkenConfig(ctx context.Context) {
	stored, err := s.store.DistinctVenueAreas(ctx)
	if err != nil {
		s.log.Warn("cannot read historical area set", logging.String("cause", err.Error()))
		return
	}
	if len(stored) > len(s.set.Areas) {
		s.log.Warn("area config has fewer areas than the historical set",
			logging.Int("configured", len(s.set.Areas)),
			logging.Int("historical", len(stored)))
	}
}

// areaJobs builds the discovery requests for one area: a nearby search per
// seed point per place type, plus the curated text phrases.
func (s *Seeder) areaJobs(a geography.Area) []searchJob {
	points := geography.SeedPoints(a)
	jobs := make([]searchJob, 0, len(points)*len(placeTypes)+len(searchPhrases))
	for _, pt := range points {
		for _, typ := range placeTypes {
			jobs = append(jobs, searchJob{
				kind:      jobNearby,
				area:      a.Name,
				point:     pt,
				radiusM:   a.RadiusM / 2,
				placeType: typ,
			})
		}
	}
	label := a.DisplayName
	if label == "" {
		label = a.Name
	}
	for _, phrase := range searchPhrases {
		jobs = append(jobs, searchJob{
			kind:  jobText,
			area:  a.Name,
			query: fmt.Sprintf(phrase, label),
		})
	}
	return jobs
}

// discover fans the search jobs for all areas out over the worker semaphore
// and merges every sighting into the shared candidate set.
func (s *Seeder) discover(ctx context.Context, cands *candidateSet, stats *Stats) {
	var jobs []searchJob
	for _, a := range s.set.Areas {
		jobs = append(jobs, s.areaJobs(a)...)
	}

	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	failures := make(map[string]int)

	for _, job := range jobs {
		if ctx.Err() != nil || s.stop.Load() {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(job searchJob) {
			defer wg.Done()
			defer func() { <-sem }()

			results, err := s.runSearch(ctx, job, stats)
			if err != nil {
				if errors.Is(err, errPassStopped) {
					return
				}
				if s.latchOnLimit(err, stats) {
					return
				}
				mu.Lock()
				failures[job.area]++
				mu.Unlock()
				s.log.Warn("discovery request failed",
					logging.String("area", job.area),
					logging.String("cause", err.Error()))
				return
			}
			for _, r := range results {
				cands.add(r)
			}
		}(job)
	}
	wg.Wait()

	for area, n := range failures {
		stats.FailedAreas++
		s.log.Warn("area discovery degraded",
			logging.String("area", area),
			logging.Int("failed_requests", n))
	}
}

func (s *Seeder) runSearch(ctx context.Context, job searchJob, stats *Stats) ([]maps.PlacesSearchResult, error) {
	if err := s.charge(ctx, stats, job.area+" search"); err != nil {
		return nil, err
	}
	if job.kind == jobNearby {
		return s.client.Nearby(ctx, job.point, job.radiusM, job.placeType)
	}
	return s.client.Search(ctx, job.query)
}

// detailPass fetches the full record for each candidate. A failed or
// skipped detail leaves the search-level data in place; the next pass gets
// another chance.
func (s *Seeder) detailPass(ctx context.Context, cands []*candidate, stats *Stats) {
	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup

	for _, c := range cands {
		if ctx.Err() != nil || s.stop.Load() {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(c *candidate) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.charge(ctx, stats, "details"); err != nil {
				return
			}
			det, err := s.client.Details(ctx, c.placeID)
			if err != nil {
				if s.latchOnLimit(err, stats) {
					return
				}
				s.log.Warn("place details failed",
					logging.String("place_id", c.placeID),
					logging.String("cause", err.Error()))
				return
			}
			c.enrich(det)
			atomic.AddInt64(&stats.Detailed, 1)
		}(c)
	}
	wg.Wait()
}

// charge debits one request from the daily cap before the provider call is
// made. Crossing the cap latches the pass: no further calls, but everything
// already discovered still commits.
func (s *Seeder) charge(ctx context.Context, stats *Stats, what string) error {
	if s.stop.Load() {
		return errPassStopped
	}
	total, err := s.store.AddCounter(ctx, RequestCounterPrefix+s.runDate, 1)
	if err != nil {
		return err
	}
	if total > s.dailyCap {
		if s.stop.CompareAndSwap(false, true) {
			stats.CapExhausted = true
			s.log.Warn("daily request cap exhausted",
				logging.Int("cap", s.dailyCap),
				logging.String("at", what))
		}
		return errPassStopped
	}
	atomic.AddInt64(&stats.Requests, 1)
	return nil
}

// latchOnLimit stops the pass when the provider reports a quota condition
// or the circuit opens. Reported once; later callers just observe the latch.
func (s *Seeder) latchOnLimit(err error, stats *Stats) bool {
	var pl *errs.ProviderLimitError
	if !errors.As(err, &pl) {
		return false
	}
	if s.stop.CompareAndSwap(false, true) {
		stats.ProviderLimited = true
		s.log.Warn("provider limit reached; stopping discovery",
			logging.String("cause", err.Error()))
	}
	return true
}

// venueFor converts one candidate into a venue row, or nil when the
// candidate fails the gate checks. Classification may come back empty;
// such venues are stored unassigned and picked up once the area tables
// learn their address.
func (s *Seeder) venueFor(c *candidate, stats *Stats) *models.Venue {
	if c.name == "" {
		stats.Rejected++
		s.log.Debug("candidate without a name dropped", logging.String("place_id", c.placeID))
		return nil
	}
	if !s.set.Metro.Contains(c.lat, c.lng) {
		stats.Rejected++
		s.log.Debug("candidate outside metro box dropped",
			logging.String("place_id", c.placeID),
			logging.Float64("lat", c.lat),
			logging.Float64("lng", c.lng))
		return nil
	}

	v := &models.Venue{
		ID:     c.placeID,
		Name:   c.name,
		Lat:    c.lat,
		Lng:    c.lng,
		Active: c.status != "CLOSED_PERMANENTLY",
	}
	if c.address != "" {
		v.Address = strPtr(c.address)
	}
	if c.website != "" {
		v.Website = strPtr(c.website)
	}
	if c.phone != "" {
		// One canonical format in the store regardless of how the provider
		// formatted it.
		v.Phone = strPtr(utils.NormalizePhoneNumber(c.phone))
	}

	zip := componentValue(c.components, "postal_code")
	if zip != "" {
		if raw, err := json.Marshal([]string{zip}); err == nil {
			v.ZipCodes = strPtr(string(raw))
		}
	}
	if len(c.components) > 0 {
		if raw, err := json.Marshal(c.components); err == nil {
			v.AddressComponents = strPtr(string(raw))
		}
	}
	if c.hours != nil {
		if raw, err := json.Marshal(c.hours); err == nil {
			v.OperatingHours = strPtr(string(raw))
		}
	}

	sub := componentValue(c.components, "sublocality_level_1")
	if sub == "" {
		sub = componentValue(c.components, "sublocality")
	}
	area := s.classifier.Classify(areas.Candidate{
		Lat:         c.lat,
		Lng:         c.lng,
		Address:     c.address,
		Sublocality: sub,
		Zip:         zip,
	})
	if area != "" {
		v.Area = strPtr(area)
	} else {
		stats.Unclassified++
	}

	if err := validation.Venue(v); err != nil {
		stats.Rejected++
		s.log.Debug("candidate failed field validation",
			logging.String("place_id", c.placeID),
			logging.String("cause", err.Error()))
		return nil
	}
	return v
}

// componentValue returns the long name of the first address component
// carrying the given type.
func componentValue(components []maps.AddressComponent, typ string) string {
	for _, comp := range components {
		for _, t := range comp.Types {
			if t == typ {
				return comp.LongName
			}
		}
	}
	return ""
}

func strPtr(s string) *string { return &s }
