package curation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"venue-intel-pipeline/internal/datadir"
	"venue-intel-pipeline/internal/models"
	"venue-intel-pipeline/internal/report"
	errs "venue-intel-pipeline/pkg/errors"
	"venue-intel-pipeline/pkg/events"
	"venue-intel-pipeline/pkg/health"
	"venue-intel-pipeline/pkg/logging"
	"venue-intel-pipeline/pkg/metrics"
	"venue-intel-pipeline/pkg/monitoring"
)

// metrics
var (
	mCallbackApplied = metrics.Default.Counter("curation_callbacks_applied_total", "Curation callbacks applied")
	mCallbackDenied  = metrics.Default.Counter("curation_callbacks_denied_total", "Callbacks rejected for unknown sender")
	mCallbackBad     = metrics.Default.Counter("curation_callbacks_bad_total", "Callbacks with unparseable payloads")
)

// callbackRequest mirrors the chat bot's POST body.
type callbackRequest struct {
	From string `json:"from"`
	Data string `json:"data"`
}

// CallbackHandler receives one curation decision from the chat bot and
// applies it through the bridge. Unknown senders get 403 and an audit row;
// malformed payloads get 400 before any store access.
func CallbackHandler(bridge *Bridge, roster *Roster, log *logging.Logger) http.HandlerFunc {
	clog := log.WithComponent("curation.http")
	return func(w http.ResponseWriter, r *http.Request) {
		var req callbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			mCallbackBad.Inc(1)
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		curator, ok := roster.Resolve(req.From)
		if !ok {
			mCallbackDenied.Inc(1)
			if err := bridge.DenySender(r.Context(), req.From, req.Data); err != nil {
				clog.Error("denied sender audit failed", err, logging.String("sender", req.From))
			}
			http.Error(w, "unknown sender", http.StatusForbidden)
			return
		}

		cb, err := ParseCallback(req.Data)
		if err != nil {
			mCallbackBad.Inc(1)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		res, err := bridge.Apply(r.Context(), cb, curator)
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, ErrNotFound):
				status = http.StatusNotFound
			case errs.Is(err, errs.ErrIntegrity):
				status = http.StatusConflict
			}
			http.Error(w, err.Error(), status)
			return
		}

		mCallbackApplied.Inc(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(res)
	}
}

// StatusHandler returns the latest run manifest as an ordered step pivot.
func StatusHandler(layout datadir.Layout) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := report.LatestManifest(layout)
		if err != nil {
			http.Error(w, "no pipeline runs recorded", http.StatusNotFound)
			return
		}
		resp := struct {
			RunID     string              `json:"runId"`
			Date      string              `json:"date"`
			Status    string              `json:"status"`
			UpdatedAt time.Time           `json:"updatedAt"`
			Steps     []report.StepStatus `json:"steps"`
		}{
			RunID:     m.RunID,
			Date:      m.Date,
			Status:    m.Status,
			UpdatedAt: m.UpdatedAt,
			Steps:     report.Pivot(m),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// historySource is the journal slice the history endpoint reads; the SQL
// event store satisfies it.
type historySource interface {
	ListBySubject(ctx context.Context, subject string) ([]events.StoredEvent, error)
}

// HistoryHandler returns one spot's curation history: the replayed decision
// state plus the raw journal entries, oldest first. Spots the journal has
// never seen get 404.
func HistoryHandler(journal historySource, log *logging.Logger) http.HandlerFunc {
	clog := log.WithComponent("curation.http")
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "invalid spot id", http.StatusBadRequest)
			return
		}

		evs, err := journal.ListBySubject(r.Context(), events.SpotSubject(id))
		if err != nil {
			clog.Error("history lookup failed", err, logging.Int64("spot_id", id))
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
		if len(evs) == 0 {
			http.Error(w, "no history for spot", http.StatusNotFound)
			return
		}

		resp := struct {
			State  *events.SpotState    `json:"state"`
			Events []events.StoredEvent `json:"events"`
		}{
			State:  events.ReplaySpot(id, evs),
			Events: evs,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// adminSource is the read-only store slice behind the venue and audit
// lookups; the relational store satisfies it.
type adminSource interface {
	ListActiveVenues(ctx context.Context, areaFilter string) ([]models.Venue, error)
	GetVenue(ctx context.Context, id string) (*models.Venue, error)
	GetGoldRecord(ctx context.Context, venueID string) (*models.GoldRecord, error)
	ListSpotsByVenue(ctx context.Context, venueID string) ([]models.Spot, error)
	ListAuditsSince(ctx context.Context, cutoff time.Time) ([]models.AuditLog, error)
}

// VenuesHandler lists active venues, optionally one area, so the bot can
// resolve a name to a venue id before excluding it.
func VenuesHandler(db adminSource, log *logging.Logger) http.HandlerFunc {
	clog := log.WithComponent("curation.http")
	return func(w http.ResponseWriter, r *http.Request) {
		venues, err := db.ListActiveVenues(r.Context(), r.URL.Query().Get("area"))
		if err != nil {
			clog.Error("venue list failed", err)
			http.Error(w, "venue list unavailable", http.StatusInternalServerError)
			return
		}
		resp := struct {
			Count  int            `json:"count"`
			Venues []models.Venue `json:"venues"`
		}{Count: len(venues), Venues: venues}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// VenueHandler returns one venue dossier: the row itself, its latest
// extraction record and its spots. This is what the bot shows a curator
// deciding on a venue-level action.
func VenueHandler(db adminSource, log *logging.Logger) http.HandlerFunc {
	clog := log.WithComponent("curation.http")
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		v, err := db.GetVenue(r.Context(), id)
		if err != nil {
			clog.Error("venue lookup failed", err, logging.String("venue_id", id))
			http.Error(w, "venue lookup failed", http.StatusInternalServerError)
			return
		}
		if v == nil {
			http.Error(w, "unknown venue", http.StatusNotFound)
			return
		}
		gold, err := db.GetGoldRecord(r.Context(), id)
		if err != nil {
			clog.Error("gold lookup failed", err, logging.String("venue_id", id))
			http.Error(w, "venue lookup failed", http.StatusInternalServerError)
			return
		}
		sps, err := db.ListSpotsByVenue(r.Context(), id)
		if err != nil {
			clog.Error("spot lookup failed", err, logging.String("venue_id", id))
			http.Error(w, "venue lookup failed", http.StatusInternalServerError)
			return
		}
		resp := struct {
			Venue *models.Venue      `json:"venue"`
			Gold  *models.GoldRecord `json:"gold,omitempty"`
			Spots []models.Spot      `json:"spots,omitempty"`
		}{Venue: v, Gold: gold, Spots: sps}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// Audit window bounds. The default window matches the report's curation
// section; the cap keeps one request from dragging the whole table over
// the wire.
const (
	auditWindowDefault = 24 * time.Hour
	auditWindowMaxH    = 720
)

// AuditHandler returns the audit trail for the last N hours, newest first.
func AuditHandler(db adminSource, log *logging.Logger) http.HandlerFunc {
	clog := log.WithComponent("curation.http")
	return func(w http.ResponseWriter, r *http.Request) {
		window := auditWindowDefault
		if h := r.URL.Query().Get("hours"); h != "" {
			n, err := strconv.Atoi(h)
			if err != nil || n <= 0 || n > auditWindowMaxH {
				http.Error(w, fmt.Sprintf("hours must be between 1 and %d", auditWindowMaxH), http.StatusBadRequest)
				return
			}
			window = time.Duration(n) * time.Hour
		}
		since := time.Now().Add(-window)
		logs, err := db.ListAuditsSince(r.Context(), since)
		if err != nil {
			clog.Error("audit window read failed", err)
			http.Error(w, "audit log unavailable", http.StatusInternalServerError)
			return
		}
		resp := struct {
			Since time.Time         `json:"since"`
			Count int               `json:"count"`
			Audit []models.AuditLog `json:"audit"`
		}{Since: since, Count: len(logs), Audit: logs}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// RosterChecker reports the curator roster as degraded while unloaded: the
// server stays up but every callback is denied until the file appears.
func RosterChecker(r *Roster) health.Checker {
	return health.NewCheckFunc("curators", func(context.Context) health.ComponentHealth {
		if !r.IsLoaded() {
			return health.ComponentHealth{
				Status:  health.StatusDegraded,
				Message: "curator roster not loaded; all callbacks are denied",
			}
		}
		return health.ComponentHealth{
			Status:   health.StatusHealthy,
			Metadata: map[string]any{"curators": r.Len()},
		}
	})
}

// RouterConfig switches the optional serve surfaces. History enables the
// per-spot journal endpoint when a journal is available; Admin enables the
// venue and audit lookups.
type RouterConfig struct {
	MetricsEnabled   bool
	MetricsPath      string
	ProfilingEnabled bool
	Monitor          *monitoring.Metrics
	History          historySource
	Admin            adminSource
}

// NewRouter assembles the serve-mode router: the callback bridge, the run
// status pivot, health checks, and the metrics and pprof surfaces when
// enabled.
func NewRouter(bridge *Bridge, roster *Roster, layout datadir.Layout, hm *health.Manager, rc RouterConfig, log *logging.Logger) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/callback", CallbackHandler(bridge, roster, log)).Methods("POST")
	router.HandleFunc("/status", StatusHandler(layout)).Methods("GET")
	router.Handle("/healthz", hm.Handler()).Methods("GET")
	if rc.History != nil {
		router.HandleFunc("/spots/{id}/history", HistoryHandler(rc.History, log)).Methods("GET")
	}
	if rc.Admin != nil {
		router.HandleFunc("/venues", VenuesHandler(rc.Admin, log)).Methods("GET")
		router.HandleFunc("/venues/{id}", VenueHandler(rc.Admin, log)).Methods("GET")
		router.HandleFunc("/audit", AuditHandler(rc.Admin, log)).Methods("GET")
	}

	if rc.MetricsEnabled {
		path := rc.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, metrics.Handler()).Methods("GET")
		if rc.Monitor != nil && path != "/metrics.json" {
			router.Handle("/metrics.json", monitoring.MetricsHandler(rc.Monitor)).Methods("GET")
		}
	}
	if rc.ProfilingEnabled {
		profMux := http.NewServeMux()
		monitoring.RegisterPprof(profMux)
		router.PathPrefix("/debug/pprof/").Handler(profMux)
	}
	if rc.Monitor != nil {
		router.Use(monitoring.Middleware(rc.Monitor))
	}
	return router
}
