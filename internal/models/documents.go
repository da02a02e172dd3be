package models

import "time"

// RawMetadata is the per-venue index written next to raw page files,
// mapping url hash to the original URL. Merged into on rewrite so hashes
// from earlier fetches the same day survive.
type RawMetadata struct {
	VenueID   string            `json:"venueId"`
	URLs      map[string]string `json:"urls"` // urlhash -> url
	FetchedAt time.Time         `json:"fetchedAt"`
}

// MergedPage is one downloaded page inside a merged document.
type MergedPage struct {
	URL          string    `json:"url"`
	HTML         string    `json:"html,omitempty"`
	Text         string    `json:"text,omitempty"`
	Hash         string    `json:"hash"`
	DownloadedAt time.Time `json:"downloadedAt"`
}

// MergedDocument is the per-venue consolidation of all raw pages, written to
// silver_merged/all/<venueId>.json. Always rewritten whole; last-writer-wins.
type MergedDocument struct {
	VenueID   string       `json:"venueId"`
	VenueName string       `json:"venueName"`
	VenueArea string       `json:"venueArea,omitempty"`
	Website   string       `json:"website,omitempty"`
	ScrapedAt time.Time    `json:"scrapedAt"`
	Pages     []MergedPage `json:"pages"`
}

// TrimmedDocument mirrors MergedDocument with pages[].text holding plain
// text instead of HTML. Produced deterministically from the merged form.
type TrimmedDocument = MergedDocument

// DeltaSummary records the partition of venues into new / changed /
// unchanged for one day, written to silver_trimmed/delta-summary.json.
type DeltaSummary struct {
	Date         string   `json:"date"`
	PreviousDate string   `json:"previousDate,omitempty"`
	New          []string `json:"new"`
	Changed      []string `json:"changed"`
	Unchanged    []string `json:"unchanged"`
	Summary      string   `json:"summary"`
}

// WorkSetSize returns how many venues need LLM extraction.
func (d *DeltaSummary) WorkSetSize() int {
	return len(d.New) + len(d.Changed)
}
