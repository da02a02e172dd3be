package models

import (
	"encoding/json"
	"time"
)

// Spot statuses. Only approved spots reach the serving layer.
const (
	SpotPending  = "pending"
	SpotApproved = "approved"
	SpotDenied   = "denied"
)

// Spot sources.
const (
	SourceAutomated = "automated"
	SourceUser      = "user"
	SourceDiscovery = "discovery"
)

// Spot is the user-visible record materialized from gold output or
// submitted directly. Natural key for automated spots is (venue_id, type).
type Spot struct {
	ID             int64      `json:"id" db:"id"`
	VenueID        *string    `json:"venue_id" db:"venue_id"` // null for user-submitted
	Title          string     `json:"title" db:"title"`
	Description    string     `json:"description" db:"description"`
	Type           string     `json:"type" db:"type"`
	Lat            float64    `json:"lat" db:"lat"`
	Lng            float64    `json:"lng" db:"lng"`
	Area           *string    `json:"area" db:"area"`
	Source         string     `json:"source" db:"source"` // "automated", "user", "discovery"
	Status         string     `json:"status" db:"status"` // "pending", "approved", "denied"
	ManualOverride bool       `json:"manual_override" db:"manual_override"`
	PendingEdit    *string    `json:"pending_edit" db:"pending_edit"` // JSON SpotEdit, null when none
	PendingDelete  bool       `json:"pending_delete" db:"pending_delete"`
	PhotoURL       *string    `json:"photo_url" db:"photo_url"`
	SourceURL      *string    `json:"source_url" db:"source_url"`
	PromotionTime  *string    `json:"promotion_time" db:"promotion_time"`
	Confidence     float64    `json:"confidence" db:"confidence"`
	EditedAt       *time.Time `json:"edited_at" db:"edited_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at" db:"updated_at"`
}

// SpotEdit is the payload held in pending_edit until an admin decides.
// Nil fields mean "leave unchanged".
type SpotEdit struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Type        *string `json:"type,omitempty"`
}

// Edit decodes the pending_edit column. Returns nil when no edit is queued
// or the stored JSON is unreadable.
func (s *Spot) Edit() *SpotEdit {
	if s.PendingEdit == nil || *s.PendingEdit == "" {
		return nil
	}
	var e SpotEdit
	if err := json.Unmarshal([]byte(*s.PendingEdit), &e); err != nil {
		return nil
	}
	return &e
}

// HasPendingEdit reports whether an admin decision is outstanding.
func (s *Spot) HasPendingEdit() bool {
	return s.PendingEdit != nil && *s.PendingEdit != ""
}
