package geography

import (
	_ "embed"
	"encoding/json"
	"math"
	"os"
	"sort"
	"strings"

	errs "venue-intel-pipeline/pkg/errors"
)

// Area geometry for the metro. The embedded areas.json ships the default
// Charleston set; an on-disk config file overrides it wholesale when present.

//go:embed areas.json
var areasJSON []byte

// LatLng is a geographic point.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is a geographic bounding box. Valid iff South<North and West<East.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Contains reports whether the point lies inside the box (edges inclusive).
func (b Bounds) Contains(lat, lng float64) bool {
	return b.South <= lat && lat <= b.North && b.West <= lng && lng <= b.East
}

// Degrees2 returns the box area in squared degrees. Only used for ordering,
// so the latitude distortion does not matter.
func (b Bounds) Degrees2() float64 {
	return (b.North - b.South) * (b.East - b.West)
}

// Area is a named neighborhood with a bounding box, center, seed radius and
// zip-code set.
type Area struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Bounds      Bounds   `json:"bounds"`
	Center      LatLng   `json:"center"`
	RadiusM     int      `json:"radius_m"`
	ZipCodes    []string `json:"zip_codes"`
}

// HasZip reports whether zip belongs to the area's zip-code set.
func (a Area) HasZip(zip string) bool {
	for _, z := range a.ZipCodes {
		if z == zip {
			return true
		}
	}
	return false
}

// AreaSet is the loaded area configuration plus the metro bounding box that
// every area must fit inside.
type AreaSet struct {
	Metro Bounds `json:"metro"`
	Areas []Area `json:"areas"`
}

// ByName returns the area with the given canonical name.
func (s *AreaSet) ByName(name string) (Area, bool) {
	for _, a := range s.Areas {
		if a.Name == name {
			return a, true
		}
	}
	return Area{}, false
}

// Names returns all canonical area names in config order.
func (s *AreaSet) Names() []string {
	out := make([]string, 0, len(s.Areas))
	for _, a := range s.Areas {
		out = append(out, a.Name)
	}
	return out
}

// SmallestFirst returns the areas sorted by bounding-box area ascending, so
// an inner area is considered before the larger area enclosing it.
func (s *AreaSet) SmallestFirst() []Area {
	sorted := append([]Area{}, s.Areas...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Bounds.Degrees2() < sorted[j].Bounds.Degrees2()
	})
	return sorted
}

// LoadAreas reads the area configuration from path; when path is empty or
// missing the embedded defaults are used. Validation failures are integrity
// errors and abort startup.
func LoadAreas(path string) (*AreaSet, error) {
	raw := areasJSON
	if path != "" {
		if b, err := os.ReadFile(path); err == nil {
			raw = b
		} else if !os.IsNotExist(err) {
			return nil, errs.NewConfig("geography.LoadAreas", "cannot read areas config: "+path, err)
		}
	}
	return ParseAreas(raw)
}

// ParseAreas decodes and validates an area configuration document.
func ParseAreas(raw []byte) (*AreaSet, error) {
	var set AreaSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, errs.NewConfig("geography.ParseAreas", "areas config is not valid JSON", err)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &set, nil
}

// Validate enforces the geometric invariants: every box well-formed, every
// center inside its box, every box inside the metro box.
func (s *AreaSet) Validate() error {
	const op = "geography.Validate"
	if s.Metro.South >= s.Metro.North || s.Metro.West >= s.Metro.East {
		return errs.NewIntegrity(op, "metro bounding box is degenerate", nil)
	}
	if len(s.Areas) == 0 {
		return errs.NewIntegrity(op, "no areas configured", nil)
	}
	seen := make(map[string]bool, len(s.Areas))
	for _, a := range s.Areas {
		if strings.TrimSpace(a.Name) == "" {
			return errs.NewIntegrity(op, "area with empty name", nil)
		}
		if seen[a.Name] {
			return errs.NewIntegrity(op, "duplicate area name: "+a.Name, nil)
		}
		seen[a.Name] = true
		b := a.Bounds
		if b.South >= b.North || b.West >= b.East {
			return errs.NewIntegrity(op, "degenerate bounds for area "+a.Name, nil)
		}
		if !b.Contains(a.Center.Lat, a.Center.Lng) {
			return errs.NewIntegrity(op, "center outside bounds for area "+a.Name, nil)
		}
		if !s.Metro.Contains(b.South, b.West) || !s.Metro.Contains(b.North, b.East) {
			return errs.NewIntegrity(op, "area outside metro box: "+a.Name, nil)
		}
		if a.RadiusM <= 0 {
			return errs.NewIntegrity(op, "non-positive radius for area "+a.Name, nil)
		}
	}
	return nil
}

const earthRadiusM = 6371000.0

// HaversineM returns the great-circle distance between two points in meters.
func HaversineM(a, b LatLng) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// SeedPoints returns the area center plus four offset points at half radius,
// the grid the seeder sweeps with nearby searches.
func SeedPoints(a Area) []LatLng {
	// meters per degree latitude is near-constant; longitude shrinks by cos(lat)
	half := float64(a.RadiusM) / 2
	dLat := half / 111320.0
	dLng := half / (111320.0 * math.Cos(a.Center.Lat*math.Pi/180))
	return []LatLng{
		a.Center,
		{Lat: a.Center.Lat + dLat, Lng: a.Center.Lng},
		{Lat: a.Center.Lat - dLat, Lng: a.Center.Lng},
		{Lat: a.Center.Lat, Lng: a.Center.Lng + dLng},
		{Lat: a.Center.Lat, Lng: a.Center.Lng - dLng},
	}
}
