// Package merger consolidates each venue's raw pages into one JSON document
// under silver_merged/all. The merged form is the hand-off between the fetch
// side (many small files, mtime-based caching) and the text side (trimmer,
// delta, extractor), which only ever sees whole documents.
package merger

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"venue-intel-pipeline/internal/datadir"
	"venue-intel-pipeline/internal/models"
	errs "venue-intel-pipeline/pkg/errors"
	"venue-intel-pipeline/pkg/logging"
)

type Merger struct {
	layout datadir.Layout
	log    *logging.ComponentLogger
}

func New(layout datadir.Layout, log *logging.Logger) *Merger {
	return &Merger{layout: layout, log: log.WithComponent("merger")}
}

// Stats summarizes one merge pass.
type Stats struct {
	Venues       int `json:"venues"`
	Pages        int `json:"pages"`
	SkippedFiles int `json:"skipped_files"`
	EmptyVenues  int `json:"empty_venues"`
}

// MergeAll writes a merged document for every venue in the list, even those
// whose fetch produced nothing (pages stays empty, so downstream stages see
// the venue disappear from its website rather than from the pipeline).
func (m *Merger) MergeAll(ctx context.Context, venues []models.Venue) (Stats, error) {
	var stats Stats
	for i := range venues {
		if err := ctx.Err(); err != nil {
			return stats, errs.NewTransient("merger.MergeAll", "merge cancelled", err)
		}
		v := &venues[i]
		doc, skipped := m.mergeVenue(v)
		stats.SkippedFiles += skipped
		if err := datadir.WriteJSONAtomic(m.layout.MergedPath(v.ID), doc); err != nil {
			return stats, err
		}
		stats.Venues++
		stats.Pages += len(doc.Pages)
		if len(doc.Pages) == 0 {
			stats.EmptyVenues++
		}
	}
	m.log.Info("merge complete",
		logging.Int("venues", stats.Venues),
		logging.Int("pages", stats.Pages),
		logging.Int("skipped_files", stats.SkippedFiles))
	return stats, nil
}

// mergeVenue reads raw/today/<id>/*.html plus metadata.json into one document.
// Unreadable files are skipped, never fatal; a missing directory just yields
// zero pages.
func (m *Merger) mergeVenue(v *models.Venue) (*models.MergedDocument, int) {
	doc := &models.MergedDocument{
		VenueID:   v.ID,
		VenueName: v.Name,
		VenueArea: v.AreaName(),
		ScrapedAt: time.Now(),
		Pages:     []models.MergedPage{},
	}
	if v.Website != nil {
		doc.Website = *v.Website
	}

	var meta models.RawMetadata
	_ = datadir.ReadJSON(m.layout.RawMetadataPath(v.ID), &meta)

	dir := m.layout.RawVenueDir(v.ID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return doc, 0
	}

	skipped := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".html") {
			continue
		}
		hash := strings.TrimSuffix(e.Name(), ".html")
		path := filepath.Join(dir, e.Name())

		data, rerr := os.ReadFile(path)
		if rerr != nil {
			skipped++
			m.log.Warn("unreadable raw page skipped",
				logging.String("venue_id", v.ID), logging.String("file", e.Name()))
			continue
		}
		info, serr := e.Info()
		downloadedAt := time.Now()
		if serr == nil {
			downloadedAt = info.ModTime()
		}

		doc.Pages = append(doc.Pages, models.MergedPage{
			URL:          meta.URLs[hash],
			HTML:         string(data),
			Hash:         hash,
			DownloadedAt: downloadedAt,
		})
	}

	// Deterministic order keeps merged documents diffable across runs.
	sort.Slice(doc.Pages, func(i, j int) bool {
		if doc.Pages[i].URL != doc.Pages[j].URL {
			return doc.Pages[i].URL < doc.Pages[j].URL
		}
		return doc.Pages[i].Hash < doc.Pages[j].Hash
	})
	return doc, skipped
}
