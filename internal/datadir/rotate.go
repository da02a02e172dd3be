package datadir

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	errs "venue-intel-pipeline/pkg/errors"
)

// RotationResult reports what the daily rotation actually did.
type RotationResult struct {
	RawRotated     bool
	TrimmedRotated bool
	ArchivedTo     string
}

// RotateDaily runs the day-boundary sequence. For raw/: when today/ holds
// files from an earlier day, previous/ is retired into the archive, today/
// becomes previous/, and a fresh today/ is created. silver_trimmed/all
// rotates into silver_trimmed/previous the same way (no archive). Same-day
// content is left untouched, which is what makes regenerated reruns cheap.
func (l Layout) RotateDaily(now time.Time) (RotationResult, error) {
	var res RotationResult

	rotated, archived, err := l.rotateRaw(now)
	if err != nil {
		return res, err
	}
	res.RawRotated = rotated
	res.ArchivedTo = archived

	rotated, err = rotateDir(l.TrimmedAllDir(), l.TrimmedPreviousDir(), now)
	if err != nil {
		return res, err
	}
	res.TrimmedRotated = rotated

	return res, nil
}

func (l Layout) rotateRaw(now time.Time) (bool, string, error) {
	today := l.RawTodayDir()
	if !hasStaleContent(today, now) {
		return false, "", nil
	}

	archived := ""
	prev := l.RawPreviousDir()
	if newest, ok := newestMTime(prev); ok {
		target := filepath.Join(l.RawArchiveDir(), newest.Format("20060102"))
		if Exists(target) {
			// Already archived once; drop the stale previous outright.
			if err := os.RemoveAll(prev); err != nil {
				return false, "", errs.NewTransient("datadir.rotateRaw", "cannot remove previous", err)
			}
		} else {
			if err := os.Rename(prev, target); err != nil {
				return false, "", errs.NewTransient("datadir.rotateRaw", "cannot archive previous", err)
			}
			archived = target
		}
	} else {
		if err := os.RemoveAll(prev); err != nil && !os.IsNotExist(err) {
			return false, "", errs.NewTransient("datadir.rotateRaw", "cannot remove previous", err)
		}
	}

	if err := os.Rename(today, prev); err != nil {
		return false, "", errs.NewTransient("datadir.rotateRaw", "cannot rotate today to previous", err)
	}
	if err := os.MkdirAll(today, 0755); err != nil {
		return false, "", errs.NewTransient("datadir.rotateRaw", "cannot recreate today", err)
	}
	return true, archived, nil
}

// rotateDir moves src to dst when src's content predates now's day.
func rotateDir(src, dst string, now time.Time) (bool, error) {
	if !hasStaleContent(src, now) {
		return false, nil
	}
	if err := os.RemoveAll(dst); err != nil && !os.IsNotExist(err) {
		return false, errs.NewTransient("datadir.rotateDir", "cannot remove "+dst, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return false, errs.NewTransient("datadir.rotateDir", "cannot rotate "+src, err)
	}
	if err := os.MkdirAll(src, 0755); err != nil {
		return false, errs.NewTransient("datadir.rotateDir", "cannot recreate "+src, err)
	}
	return true, nil
}

// hasStaleContent reports whether dir holds files whose newest mtime is
// before the start of now's day.
func hasStaleContent(dir string, now time.Time) bool {
	newest, ok := newestMTime(dir)
	if !ok {
		return false
	}
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return newest.Before(dayStart)
}

// newestMTime walks dir and returns the latest file modification time.
// ok is false when the directory is missing or holds no files.
func newestMTime(dir string) (time.Time, bool) {
	var newest time.Time
	found := false
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if !found || info.ModTime().After(newest) {
			newest = info.ModTime()
			found = true
		}
		return nil
	})
	return newest, found
}

// PruneBackups removes all but the newest keep backup files. Names embed the
// timestamp so lexicographic order is chronological.
func (l Layout) PruneBackups(keep int) (int, error) {
	return pruneSorted(l.BackupsDir(), keep)
}

// PruneArchives removes all but the newest keep archive day-directories.
func (l Layout) PruneArchives(keep int) (int, error) {
	return pruneSorted(l.RawArchiveDir(), keep)
}

func pruneSorted(dir string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errs.NewTransient("datadir.pruneSorted", "cannot read "+dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	removed := 0
	for i := keep; i < len(names); i++ {
		if err := os.RemoveAll(filepath.Join(dir, names[i])); err != nil {
			return removed, errs.NewTransient("datadir.pruneSorted", "cannot remove "+names[i], err)
		}
		removed++
	}
	return removed, nil
}
