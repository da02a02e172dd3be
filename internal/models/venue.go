package models

import (
	"time"
)

// Venue is a curated hospitality venue tracked by the pipeline. IDs are
// opaque external identifiers (the provider place id for seeded venues).
// Venues are never hard-deleted; exclusion happens via the watchlist.
type Venue struct {
	ID                string     `json:"id" db:"id"`
	Name              string     `json:"name" db:"name"`
	Area              *string    `json:"area" db:"area"`
	Address           *string    `json:"address" db:"address"`
	Lat               float64    `json:"lat" db:"lat"`
	Lng               float64    `json:"lng" db:"lng"`
	Website           *string    `json:"website" db:"website"`
	Phone             *string    `json:"phone" db:"phone"`
	ZipCodes          *string    `json:"zip_codes" db:"zip_codes"`
	AddressComponents *string    `json:"address_components" db:"address_components"`
	OperatingHours    *string    `json:"operating_hours" db:"operating_hours"`
	Active            bool       `json:"active" db:"active"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at" db:"updated_at"`
}

// HasWebsite reports whether the venue has anything the fetcher can pull.
func (v *Venue) HasWebsite() bool {
	return v.Website != nil && *v.Website != ""
}

// AreaName returns the classified area or "" when unclassified.
func (v *Venue) AreaName() string {
	if v.Area == nil {
		return ""
	}
	return *v.Area
}

// Watchlist statuses.
const (
	WatchlistExcluded = "excluded"
	WatchlistFlagged  = "flagged"
)

// WatchlistEntry marks a venue as excluded from spot materialization or
// flagged for attention in the daily report.
type WatchlistEntry struct {
	VenueID   string    `json:"venue_id" db:"venue_id"`
	Name      string    `json:"name" db:"name"`
	Area      *string   `json:"area" db:"area"`
	Status    string    `json:"status" db:"status"` // "excluded", "flagged"
	Reason    string    `json:"reason" db:"reason"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Streak counts consecutive days a venue+type produced changed content.
// Resets when a day is skipped.
type Streak struct {
	VenueID   string    `json:"venue_id" db:"venue_id"`
	Type      string    `json:"type" db:"type"`
	Name      string    `json:"name" db:"name"`
	LastDate  string    `json:"last_date" db:"last_date"` // YYYYMMDD
	Streak    int       `json:"streak" db:"streak"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Activity is a spot category ("Happy Hour", "Brunch", ...). Deprecated
// activities are skipped during materialization.
type Activity struct {
	ID         int64     `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Deprecated bool      `json:"deprecated" db:"deprecated"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// VenueStats is the venue inventory summary printed after a seed pass.
type VenueStats struct {
	Total      int            `json:"total"`
	Active     int            `json:"active"`
	WithSite   int            `json:"with_site"`
	Excluded   int            `json:"excluded"`
	ByArea     map[string]int `json:"by_area"`
	Unassigned int            `json:"unassigned"`
}
