package areas

// Street and keyword tables for the classifier cascade. These encode
// observed misclassifications that must not regress; extend them, don't
// reorder.

// streetOverrides are authoritative: a matching street wins regardless of
// any other signal. Needles are in utils.NormalizeAddress vocabulary
// ("east"→"e", "street"→"st"), so "e bay st" catches "East Bay Street",
// "East Bay St" and "E Bay St" alike. Checked in order.
var streetOverrides = []struct {
	Needle string
	Area   string
	// Zips gates the override to addresses carrying one of these zips.
	// Empty means unconditional.
	Zips []string
}{
	{Needle: "e bay st", Area: "Downtown Charleston"},
	{Needle: "pittsburgh ave", Area: "North Charleston"},
	{Needle: "clements ferry", Area: "Daniel Island", Zips: []string{"29492"}},
}

// streetRanges split streets that span two areas on the leading house
// number. Bounds are inclusive.
var streetRanges = []struct {
	Street string
	Splits []rangeSplit
}{
	{
		Street: "king st",
		Splits: []rangeSplit{
			{Low: 1, High: 2000, Area: "Downtown Charleston"},
			{Low: 2001, High: maxHouseNumber, Area: "West Ashley"},
		},
	},
	{
		Street: "meeting st",
		Splits: []rangeSplit{
			{Low: 1, High: 400, Area: "Downtown Charleston"},
			{Low: 401, High: maxHouseNumber, Area: "North Charleston"},
		},
	},
}

type rangeSplit struct {
	Low, High int
	Area      string
}

const maxHouseNumber = 1 << 20

// areaKeywords map free-text fragments to areas, matched against the raw
// lowercased address (not normalized, hence the "mt. pleasant" variant).
// Longest-first so "north charleston" is never masked by a shorter needle.
// A bare "charleston" is deliberately absent: it appears in nearly every
// address in the metro and says nothing about the area.
var areaKeywords = map[string]string{
	"downtown charleston": "Downtown Charleston",
	"north charleston":    "North Charleston",
	"n charleston":        "North Charleston",
	"mount pleasant":      "Mount Pleasant",
	"mt. pleasant":        "Mount Pleasant",
	"mt pleasant":         "Mount Pleasant",
	"west ashley":         "West Ashley",
	"daniel island":       "Daniel Island",
	"james island":        "James Island",
	"johns island":        "Johns Island",
	"john's island":       "Johns Island",
	"folly beach":         "Folly Beach",
	"park circle":         "Park Circle",
	"isle of palms":       "Sullivan's & IOP",
	"sullivan's island":   "Sullivan's & IOP",
	"sullivans island":    "Sullivan's & IOP",
}

// sublocalityAreas map provider sublocality values (lowercased) to areas.
// Sublocality is reliable when present but often missing.
var sublocalityAreas = map[string]string{
	"downtown":          "Downtown Charleston",
	"french quarter":    "Downtown Charleston",
	"north charleston":  "North Charleston",
	"park circle":       "Park Circle",
	"west ashley":       "West Ashley",
	"mount pleasant":    "Mount Pleasant",
	"daniel island":     "Daniel Island",
	"cainhoy":           "Daniel Island",
	"wando":             "Daniel Island",
	"james island":      "James Island",
	"johns island":      "Johns Island",
	"folly beach":       "Folly Beach",
	"sullivan's island": "Sullivan's & IOP",
	"isle of palms":     "Sullivan's & IOP",
}
