// Package datadir owns the on-disk data hierarchy: path resolution, atomic
// JSON writes, and the daily rotation of raw and trimmed content. Each
// pipeline stage owns exactly one subtree and goes through this package so
// nothing ever hand-builds a path.
package datadir

import (
	"os"
	"path/filepath"
	"time"

	errs "venue-intel-pipeline/pkg/errors"
)

// Layout resolves every path under the data root.
//
//	raw/today/<venueId>/<urlhash>.html
//	raw/today/<venueId>/metadata.json
//	raw/previous/...
//	raw/archive/YYYYMMDD/...
//	silver_merged/all/<venueId>.json
//	silver_trimmed/{all,previous,incremental}/<venueId>.json
//	silver_trimmed/delta-summary.json
//	gold/<venueId>.json  + gold/.bulk-complete
//	config/{config.json,areas.json}
//	reporting/{manifest-YYYYMMDD.json,spots.json}
//	backups/backup-YYYYMMDD-HHMMSS.json
type Layout struct {
	Root string
}

func New(root string) Layout {
	return Layout{Root: root}
}

// Raw subtree (owned by the fetcher).

func (l Layout) RawDir() string         { return filepath.Join(l.Root, "raw") }
func (l Layout) RawTodayDir() string    { return filepath.Join(l.Root, "raw", "today") }
func (l Layout) RawPreviousDir() string { return filepath.Join(l.Root, "raw", "previous") }
func (l Layout) RawArchiveDir() string  { return filepath.Join(l.Root, "raw", "archive") }

func (l Layout) RawVenueDir(venueID string) string {
	return filepath.Join(l.RawTodayDir(), venueID)
}

func (l Layout) RawPagePath(venueID, urlHash string) string {
	return filepath.Join(l.RawVenueDir(venueID), urlHash+".html")
}

func (l Layout) RawMetadataPath(venueID string) string {
	return filepath.Join(l.RawVenueDir(venueID), "metadata.json")
}

// Silver subtrees (merged owned by the merger, trimmed by the trimmer).

func (l Layout) MergedDir() string { return filepath.Join(l.Root, "silver_merged", "all") }

func (l Layout) MergedPath(venueID string) string {
	return filepath.Join(l.MergedDir(), venueID+".json")
}

func (l Layout) TrimmedDir() string         { return filepath.Join(l.Root, "silver_trimmed") }
func (l Layout) TrimmedAllDir() string      { return filepath.Join(l.TrimmedDir(), "all") }
func (l Layout) TrimmedPreviousDir() string { return filepath.Join(l.TrimmedDir(), "previous") }
func (l Layout) TrimmedIncrementalDir() string {
	return filepath.Join(l.TrimmedDir(), "incremental")
}

func (l Layout) TrimmedAllPath(venueID string) string {
	return filepath.Join(l.TrimmedAllDir(), venueID+".json")
}

func (l Layout) TrimmedPreviousPath(venueID string) string {
	return filepath.Join(l.TrimmedPreviousDir(), venueID+".json")
}

func (l Layout) TrimmedIncrementalPath(venueID string) string {
	return filepath.Join(l.TrimmedIncrementalDir(), venueID+".json")
}

func (l Layout) DeltaSummaryPath() string {
	return filepath.Join(l.TrimmedDir(), "delta-summary.json")
}

// Gold subtree (owned by the extractor).

func (l Layout) GoldDir() string { return filepath.Join(l.Root, "gold") }

func (l Layout) GoldPath(venueID string) string {
	return filepath.Join(l.GoldDir(), venueID+".json")
}

func (l Layout) BulkSentinelPath() string {
	return filepath.Join(l.GoldDir(), ".bulk-complete")
}

// Config, reporting and backups.

func (l Layout) ConfigDir() string  { return filepath.Join(l.Root, "config") }
func (l Layout) ConfigPath() string { return filepath.Join(l.ConfigDir(), "config.json") }
func (l Layout) AreasPath() string  { return filepath.Join(l.ConfigDir(), "areas.json") }

func (l Layout) ReportingDir() string { return filepath.Join(l.Root, "reporting") }

func (l Layout) ManifestPath(date string) string {
	return filepath.Join(l.ReportingDir(), "manifest-"+date+".json")
}

func (l Layout) SpotsReportPath() string {
	return filepath.Join(l.ReportingDir(), "spots.json")
}

func (l Layout) BackupsDir() string { return filepath.Join(l.Root, "backups") }

func (l Layout) BackupPath(t time.Time) string {
	return filepath.Join(l.BackupsDir(), "backup-"+t.Format("20060102-150405")+".json")
}

// EnsureTree creates every directory the pipeline writes into. Called once
// at startup; stages assume their subtree exists.
func (l Layout) EnsureTree() error {
	dirs := []string{
		l.RawTodayDir(),
		l.RawPreviousDir(),
		l.RawArchiveDir(),
		l.MergedDir(),
		l.TrimmedAllDir(),
		l.TrimmedPreviousDir(),
		l.TrimmedIncrementalDir(),
		l.GoldDir(),
		l.ConfigDir(),
		l.ReportingDir(),
		l.BackupsDir(),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return errs.NewConfig("datadir.EnsureTree", "cannot create data directory "+d, err)
		}
	}
	return nil
}

// BulkComplete reports whether the one-time bulk extraction pass has
// finished. Incremental extraction refuses to run before it.
func (l Layout) BulkComplete() bool {
	_, err := os.Stat(l.BulkSentinelPath())
	return err == nil
}

// MarkBulkComplete drops the sentinel. Content is the completion timestamp,
// purely informational.
func (l Layout) MarkBulkComplete(now time.Time) error {
	return WriteFileAtomic(l.BulkSentinelPath(), []byte(now.UTC().Format(time.RFC3339)+"\n"))
}
