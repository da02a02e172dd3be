package validation

import (
	"strings"
	"testing"

	"venue-intel-pipeline/internal/models"
)

func strPtr(s string) *string { return &s }

func TestSpotContent(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		desc    string
		typ     string
		wantErr bool
	}{
		{name: "plain content", title: "Tuesday Trivia", desc: "Weekly quiz from 7pm.", typ: "Trivia"},
		{name: "empty description is fine", title: "Happy Hour", typ: "Happy Hour"},
		{name: "type with ampersand and apostrophe", title: "Wine & Dine", typ: "ladies' night"},
		{name: "one character title", title: "x", typ: "Trivia", wantErr: true},
		{name: "whitespace only title", title: "   ", typ: "Trivia", wantErr: true},
		{name: "oversized title", title: strings.Repeat("a", maxTitleLen+1), typ: "Trivia", wantErr: true},
		{name: "oversized description", title: "Happy Hour", desc: strings.Repeat("b", maxDescriptionLen+1), typ: "Happy Hour", wantErr: true},
		{name: "empty type", title: "Happy Hour", typ: "", wantErr: true},
		{name: "type with punctuation", title: "Happy Hour", typ: "drop;table", wantErr: true},
		{name: "oversized type", title: "Happy Hour", typ: strings.Repeat("c", maxTypeLen+1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SpotContent(tt.title, tt.desc, tt.typ)
			if (err != nil) != tt.wantErr {
				t.Errorf("SpotContent(%q, %q, %q) error = %v, wantErr %v",
					tt.title, tt.desc, tt.typ, err, tt.wantErr)
			}
		})
	}
}

func TestVenue(t *testing.T) {
	base := func() *models.Venue {
		return &models.Venue{
			ID:      "pl_123",
			Name:    "Harvest Table",
			Lat:     1.301,
			Lng:     103.84,
			Website: strPtr("https://harvest.example.com"),
			Phone:   strPtr("+65 6123 4567"),
			Address: strPtr("12 Orchard Rd"),
		}
	}

	if err := Venue(base()); err != nil {
		t.Fatalf("valid venue rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*models.Venue)
	}{
		{"single character name", func(v *models.Venue) { v.Name = "H" }},
		{"oversized name", func(v *models.Venue) { v.Name = strings.Repeat("n", maxNameLen+1) }},
		{"latitude out of range", func(v *models.Venue) { v.Lat = 91 }},
		{"longitude out of range", func(v *models.Venue) { v.Lng = -181 }},
		{"oversized address", func(v *models.Venue) { v.Address = strPtr(strings.Repeat("a", maxAddressLen+1)) }},
		{"phone with letters", func(v *models.Venue) { v.Phone = strPtr("call me") }},
		{"relative website", func(v *models.Venue) { v.Website = strPtr("harvest.example.com/deals") }},
		{"ftp website", func(v *models.Venue) { v.Website = strPtr("ftp://harvest.example.com") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := base()
			tt.mutate(v)
			if err := Venue(v); err == nil {
				t.Errorf("Venue() accepted bad venue for case %q", tt.name)
			}
		})
	}

	t.Run("optional fields absent", func(t *testing.T) {
		v := &models.Venue{ID: "pl_9", Name: "Corner Bar", Lat: 1.28, Lng: 103.85}
		if err := Venue(v); err != nil {
			t.Errorf("venue without optional fields rejected: %v", err)
		}
	})

	t.Run("empty phone passes", func(t *testing.T) {
		if err := Phone(""); err != nil {
			t.Errorf("empty phone rejected: %v", err)
		}
	})
}
