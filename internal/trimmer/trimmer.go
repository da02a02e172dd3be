// Package trimmer converts merged HTML documents into plain-text documents
// under silver_trimmed/all. The text form is what the delta hash and the LLM
// prompt are built from, so extraction has to be deterministic: same HTML in,
// same text out.
package trimmer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"venue-intel-pipeline/internal/constants"
	"venue-intel-pipeline/internal/datadir"
	"venue-intel-pipeline/internal/models"
	errs "venue-intel-pipeline/pkg/errors"
	"venue-intel-pipeline/pkg/logging"
	"venue-intel-pipeline/pkg/utils"
)

type Trimmer struct {
	layout datadir.Layout
	log    *logging.ComponentLogger
}

func New(layout datadir.Layout, log *logging.Logger) *Trimmer {
	return &Trimmer{layout: layout, log: log.WithComponent("trimmer")}
}

// Stats summarizes one trim pass.
type Stats struct {
	Venues    int `json:"venues"`
	Pages     int `json:"pages"`
	Truncated int `json:"truncated"`
	Failed    int `json:"failed"`
}

// TrimAll processes every document in silver_merged/all. A single corrupt
// document is logged and skipped; the pass continues.
func (t *Trimmer) TrimAll(ctx context.Context) (Stats, error) {
	var stats Stats
	entries, err := os.ReadDir(t.layout.MergedDir())
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, errs.NewTransient("trimmer.TrimAll", "cannot list merged documents", err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return stats, errs.NewTransient("trimmer.TrimAll", "trim cancelled", err)
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}

		var doc models.MergedDocument
		if err := datadir.ReadJSON(filepath.Join(t.layout.MergedDir(), e.Name()), &doc); err != nil {
			stats.Failed++
			t.log.Warn("corrupt merged document skipped", logging.String("file", e.Name()))
			continue
		}

		trimmed, truncated := t.trimDocument(&doc)
		if err := datadir.WriteJSONAtomic(t.layout.TrimmedAllPath(doc.VenueID), trimmed); err != nil {
			return stats, err
		}
		stats.Venues++
		stats.Pages += len(trimmed.Pages)
		stats.Truncated += truncated
	}

	t.log.Info("trim complete",
		logging.Int("venues", stats.Venues),
		logging.Int("pages", stats.Pages),
		logging.Int("truncated", stats.Truncated))
	return stats, nil
}

// trimDocument replaces each page's html with extracted text, prefixed by the
// page title line and capped so one noisy page cannot dominate a prompt.
func (t *Trimmer) trimDocument(doc *models.MergedDocument) (*models.TrimmedDocument, int) {
	out := &models.TrimmedDocument{
		VenueID:   doc.VenueID,
		VenueName: doc.VenueName,
		VenueArea: doc.VenueArea,
		Website:   doc.Website,
		ScrapedAt: doc.ScrapedAt,
		Pages:     make([]models.MergedPage, 0, len(doc.Pages)),
	}

	truncated := 0
	for _, p := range doc.Pages {
		title, text := ExtractText(p.HTML)
		if title != "" {
			text = fmt.Sprintf("[Page Title: %s]\n%s", title, text)
		}
		capped := utils.TruncateWithMarker(text, constants.PageTextCapBytes, constants.TruncationMarker)
		if capped != text {
			truncated++
		}
		out.Pages = append(out.Pages, models.MergedPage{
			URL:          p.URL,
			Text:         capped,
			Hash:         p.Hash,
			DownloadedAt: p.DownloadedAt,
		})
	}
	return out, truncated
}
