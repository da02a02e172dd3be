package areas

import (
	"testing"

	"venue-intel-pipeline/pkg/geography"
)

func testClassifier(t *testing.T) *Classifier {
	t.Helper()
	set, err := geography.LoadAreas("")
	if err != nil {
		t.Fatalf("LoadAreas: %v", err)
	}
	return NewClassifier(set)
}

// Regression fixtures: observed addresses whose classification must never
// change.
func TestClassifyRegressionFixtures(t *testing.T) {
	c := testClassifier(t)

	tests := []struct {
		address string
		want    string
	}{
		{"685 King Street, Charleston, SC", "Downtown Charleston"},
		{"2001 King Street, Charleston, SC", "West Ashley"},
		{"400 Meeting Street, Charleston, SC", "Downtown Charleston"},
		{"401 Meeting Street, Charleston, SC", "North Charleston"},
		{"701 East Bay Street Suite 100-2, Charleston, SC", "Downtown Charleston"},
		{"2015 Pittsburgh Avenue, Charleston, SC", "North Charleston"},
		{"2514 Clements Ferry Road, Wando, SC 29492", "Daniel Island"},
		{"123 Random Street, Charleston, SC", ""},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			got := c.Classify(Candidate{Address: tt.address})
			if got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.address, got, tt.want)
			}
		})
	}
}

func TestStreetOverrideOutranksKeyword(t *testing.T) {
	c := testClassifier(t)

	// Pittsburgh Ave override must win even when the address also carries a
	// keyword for another area.
	got := c.Classify(Candidate{Address: "2015 Pittsburgh Ave, Mount Pleasant, SC"})
	if got != "North Charleston" {
		t.Errorf("Classify = %q, want North Charleston from the street override", got)
	}
}

func TestClementsFerryRequiresZip(t *testing.T) {
	c := testClassifier(t)

	// Without the Daniel Island zip the override passes through.
	got := c.Classify(Candidate{Address: "2514 Clements Ferry Road, Somewhere, SC 29406"})
	if got == "Daniel Island" {
		t.Error("Clements Ferry override should not fire outside its zip set")
	}
}

func TestKeywordLongestFirst(t *testing.T) {
	c := testClassifier(t)

	tests := []struct {
		address string
		want    string
	}{
		{"1000 Rivers Gate Blvd, North Charleston, SC", "North Charleston"},
		{"77 Harbor View, N Charleston, SC", "North Charleston"},
		{"200 Coleman Blvd, Mt. Pleasant, SC", "Mount Pleasant"},
		{"10 Ocean Blvd, Isle of Palms, SC", "Sullivan's & IOP"},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			got := c.Classify(Candidate{Address: tt.address})
			if got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.address, got, tt.want)
			}
		})
	}
}

func TestSublocalityRule(t *testing.T) {
	c := testClassifier(t)

	got := c.Classify(Candidate{
		Address:     "4000 Mixson Ave", // no keyword, no range street
		Sublocality: "Park Circle",
	})
	if got != "Park Circle" {
		t.Errorf("Classify = %q, want Park Circle from sublocality", got)
	}
}

func TestZipMembership(t *testing.T) {
	c := testClassifier(t)

	got := c.Classify(Candidate{Address: "nameless lot", Zip: "29412"})
	if got != "James Island" {
		t.Errorf("Classify = %q, want James Island from zip", got)
	}

	// Zip embedded in the address line works too.
	got = c.Classify(Candidate{Address: "10 Center St, SC 29439"})
	if got != "Folly Beach" {
		t.Errorf("Classify = %q, want Folly Beach from embedded zip", got)
	}
}

func TestBBoxSmallestWins(t *testing.T) {
	c := testClassifier(t)

	// Park Circle sits inside the larger North Charleston box; the smaller
	// box must win.
	got := c.Classify(Candidate{Lat: 32.865, Lng: -79.981})
	if got != "Park Circle" {
		t.Errorf("Classify = %q, want Park Circle from smallest-box containment", got)
	}
}

func TestClassifyNullCases(t *testing.T) {
	c := testClassifier(t)

	tests := []struct {
		name string
		cand Candidate
	}{
		{"empty candidate", Candidate{}},
		{"point outside metro", Candidate{Lat: 40.7, Lng: -74.0}},
		{"unknown zip", Candidate{Zip: "99999"}},
		{"unknown sublocality", Candidate{Sublocality: "Narnia"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.cand); got != "" {
				t.Errorf("Classify = %q, want empty", got)
			}
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	c := testClassifier(t)
	cand := Candidate{Address: "685 King Street, Charleston, SC", Zip: "29403"}

	first := c.Classify(cand)
	for i := 0; i < 10; i++ {
		if got := c.Classify(cand); got != first {
			t.Fatalf("Classify changed from %q to %q on repeat call", first, got)
		}
	}
}

func BenchmarkClassify(b *testing.B) {
	set, err := geography.LoadAreas("")
	if err != nil {
		b.Fatalf("LoadAreas: %v", err)
	}
	c := NewClassifier(set)
	cand := Candidate{Address: "685 King Street, Charleston, SC 29403", Lat: 32.79, Lng: -79.94}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Classify(cand)
	}
}
