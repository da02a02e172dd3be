// Package delta partitions venues into new / changed / unchanged by comparing
// a normalized content hash of today's trimmed document against yesterday's.
// New and changed venues are copied into silver_trimmed/incremental as the
// LLM work-set; the partition is recorded in delta-summary.json.
package delta

import (
	"context"
	"fmt"
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

type Detector struct {
	layout datadir.Layout
	log    *logging.ComponentLogger
	rules  []string
}

func New(layout datadir.Layout, rules []string, log *logging.Logger) *Detector {
	return &Detector{layout: layout, rules: rules, log: log.WithComponent("delta")}
}

// Run compares every document in silver_trimmed/all against its counterpart
// in silver_trimmed/previous, rebuilds the incremental work-set from scratch,
// and writes the summary. The work-set directory is emptied first so a venue
// that settled down does not linger from an earlier day.
func (d *Detector) Run(ctx context.Context, now time.Time) (*models.DeltaSummary, error) {
	summary := &models.DeltaSummary{
		Date:      now.Format("20060102"),
		New:       []string{},
		Changed:   []string{},
		Unchanged: []string{},
	}

	var prior models.DeltaSummary
	if err := datadir.ReadJSON(d.layout.DeltaSummaryPath(), &prior); err == nil {
		if prior.Date == summary.Date {
			// Same-day rerun: keep pointing at the run we actually compare
			// against, not at ourselves.
			summary.PreviousDate = prior.PreviousDate
		} else {
			summary.PreviousDate = prior.Date
		}
	}

	if err := d.resetIncremental(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(d.layout.TrimmedAllDir())
	if err != nil {
		if os.IsNotExist(err) {
			summary.Summary = "no trimmed documents"
			return summary, datadir.WriteJSONAtomic(d.layout.DeltaSummaryPath(), summary)
		}
		return nil, errs.NewTransient("delta.Run", "cannot list trimmed documents", err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, errs.NewTransient("delta.Run", "delta cancelled", err)
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		venueID := strings.TrimSuffix(e.Name(), ".json")

		todayHash, err := d.hashDocument(d.layout.TrimmedAllPath(venueID))
		if err != nil {
			d.log.Warn("unreadable trimmed document skipped", logging.String("venue_id", venueID))
			continue
		}

		prevPath := d.layout.TrimmedPreviousPath(venueID)
		if !datadir.Exists(prevPath) {
			summary.New = append(summary.New, venueID)
			if err := d.addToWorkSet(venueID); err != nil {
				return nil, err
			}
			continue
		}

		prevHash, err := d.hashDocument(prevPath)
		if err != nil || prevHash != todayHash {
			summary.Changed = append(summary.Changed, venueID)
			if err := d.addToWorkSet(venueID); err != nil {
				return nil, err
			}
			continue
		}
		summary.Unchanged = append(summary.Unchanged, venueID)
	}

	sort.Strings(summary.New)
	sort.Strings(summary.Changed)
	sort.Strings(summary.Unchanged)
	total := len(summary.New) + len(summary.Changed) + len(summary.Unchanged)
	summary.Summary = fmt.Sprintf("%d new, %d changed, %d unchanged of %d venues",
		len(summary.New), len(summary.Changed), len(summary.Unchanged), total)

	if err := datadir.WriteJSONAtomic(d.layout.DeltaSummaryPath(), summary); err != nil {
		return nil, err
	}

	d.log.Info("delta complete",
		logging.Int("new", len(summary.New)),
		logging.Int("changed", len(summary.Changed)),
		logging.Int("unchanged", len(summary.Unchanged)))
	return summary, nil
}

// hashDocument loads a trimmed document and hashes its pages' normalized text.
func (d *Detector) hashDocument(path string) (string, error) {
	var doc models.TrimmedDocument
	if err := datadir.ReadJSON(path, &doc); err != nil {
		return "", err
	}
	texts := make([]string, 0, len(doc.Pages))
	for _, p := range doc.Pages {
		texts = append(texts, p.Text)
	}
	return VenueHash(texts, d.rules), nil
}

func (d *Detector) resetIncremental() error {
	dir := d.layout.TrimmedIncrementalDir()
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return errs.NewTransient("delta.resetIncremental", "cannot clear work-set", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errs.NewTransient("delta.resetIncremental", "cannot recreate work-set", err)
	}
	return nil
}

// addToWorkSet copies the venue's trimmed document into incremental/ byte for
// byte, so the extractor reads exactly what was hashed.
func (d *Detector) addToWorkSet(venueID string) error {
	data, err := os.ReadFile(filepath.Clean(d.layout.TrimmedAllPath(venueID)))
	if err != nil {
		return errs.NewTransient("delta.addToWorkSet", "cannot read trimmed document "+venueID, err)
	}
	return datadir.WriteFileAtomic(d.layout.TrimmedIncrementalPath(venueID), data)
}
