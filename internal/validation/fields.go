// Package validation bounds-checks venue and spot field content before it
// is written. The helpers return plain errors describing the violation;
// callers wrap them in their own error kinds.
package validation

import (
	"fmt"
	"net/url"
	"strings"

	"venue-intel-pipeline/internal/models"
)

const (
	maxNameLen        = 200
	maxAddressLen     = 500
	maxPhoneLen       = 50
	maxTitleLen       = 200
	maxDescriptionLen = 5000
	maxTypeLen        = 80
)

// VenueName requires a trimmed length of 2 to 200.
func VenueName(name string) error {
	name = strings.TrimSpace(name)
	if len(name) < 2 {
		return fmt.Errorf("name must be at least 2 characters")
	}
	if len(name) > maxNameLen {
		return fmt.Errorf("name must be at most %d characters", maxNameLen)
	}
	return nil
}

// VenueAddress allows empty (the provider often returns none) and caps length.
func VenueAddress(addr string) error {
	if len(strings.TrimSpace(addr)) > maxAddressLen {
		return fmt.Errorf("address must be at most %d characters", maxAddressLen)
	}
	return nil
}

// Phone is optional; when present it may only carry digits, spaces and
// the +-() separators.
func Phone(phone string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil
	}
	if len(phone) > maxPhoneLen {
		return fmt.Errorf("phone must be at most %d characters", maxPhoneLen)
	}
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
		case r == ' ', r == '+', r == '-', r == '(', r == ')':
		default:
			return fmt.Errorf("phone contains invalid character %q", r)
		}
	}
	return nil
}

// Latitude bounds the coordinate to the WGS84 range.
func Latitude(lat float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude must be between -90 and 90")
	}
	return nil
}

// Longitude bounds the coordinate to the WGS84 range.
func Longitude(lng float64) error {
	if lng < -180 || lng > 180 {
		return fmt.Errorf("longitude must be between -180 and 180")
	}
	return nil
}

// WebsiteURL is optional; when present it must parse as an absolute http(s)
// URL, otherwise the fetcher would burn a slot on it every night.
func WebsiteURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("website is not a valid URL")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("website must be an absolute http or https URL")
	}
	return nil
}

// SpotTitle requires a trimmed length of 2 to 200.
func SpotTitle(title string) error {
	title = strings.TrimSpace(title)
	if len(title) < 2 {
		return fmt.Errorf("title must be at least 2 characters")
	}
	if len(title) > maxTitleLen {
		return fmt.Errorf("title must be at most %d characters", maxTitleLen)
	}
	return nil
}

// SpotDescription caps length; empty is fine.
func SpotDescription(desc string) error {
	if len(desc) > maxDescriptionLen {
		return fmt.Errorf("description must be at most %d characters", maxDescriptionLen)
	}
	return nil
}

// SpotType must be a non-empty activity category name. The alphabet is the
// one curation callbacks accept: letters, digits, spaces, hyphens,
// ampersands and apostrophes.
func SpotType(typ string) error {
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return fmt.Errorf("type cannot be empty")
	}
	if len(typ) > maxTypeLen {
		return fmt.Errorf("type must be at most %d characters", maxTypeLen)
	}
	for _, r := range typ {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == ' ', r == '-', r == '&', r == '\'':
		default:
			return fmt.Errorf("type contains invalid character %q", r)
		}
	}
	return nil
}

// Venue checks every field the seeder writes. The first violation wins.
func Venue(v *models.Venue) error {
	if err := VenueName(v.Name); err != nil {
		return err
	}
	if err := Latitude(v.Lat); err != nil {
		return err
	}
	if err := Longitude(v.Lng); err != nil {
		return err
	}
	if v.Address != nil {
		if err := VenueAddress(*v.Address); err != nil {
			return err
		}
	}
	if v.Phone != nil {
		if err := Phone(*v.Phone); err != nil {
			return err
		}
	}
	if v.Website != nil {
		if err := WebsiteURL(*v.Website); err != nil {
			return err
		}
	}
	return nil
}

// SpotContent checks the writable spot fields as they would land after a
// pending edit is applied.
func SpotContent(title, description, typ string) error {
	if err := SpotTitle(title); err != nil {
		return err
	}
	if err := SpotDescription(description); err != nil {
		return err
	}
	return SpotType(typ)
}
