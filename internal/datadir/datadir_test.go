package datadir

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLayoutPaths(t *testing.T) {
	l := New("/data")

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"Raw page", l.RawPagePath("v1", "abc123def456"), "/data/raw/today/v1/abc123def456.html"},
		{"Raw metadata", l.RawMetadataPath("v1"), "/data/raw/today/v1/metadata.json"},
		{"Merged", l.MergedPath("v1"), "/data/silver_merged/all/v1.json"},
		{"Trimmed all", l.TrimmedAllPath("v1"), "/data/silver_trimmed/all/v1.json"},
		{"Trimmed previous", l.TrimmedPreviousPath("v1"), "/data/silver_trimmed/previous/v1.json"},
		{"Trimmed incremental", l.TrimmedIncrementalPath("v1"), "/data/silver_trimmed/incremental/v1.json"},
		{"Delta summary", l.DeltaSummaryPath(), "/data/silver_trimmed/delta-summary.json"},
		{"Gold", l.GoldPath("v1"), "/data/gold/v1.json"},
		{"Bulk sentinel", l.BulkSentinelPath(), "/data/gold/.bulk-complete"},
		{"Knob file", l.ConfigPath(), "/data/config/config.json"},
		{"Spots report", l.SpotsReportPath(), "/data/reporting/spots.json"},
		{"Manifest", l.ManifestPath("20260824"), "/data/reporting/manifest-20260824.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("path = %q, want %q", tt.got, tt.expected)
			}
		})
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	if err := WriteFileAtomic(path, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Errorf("content = %q, want %q", data, `{"a":1}`)
	}

	// Overwrite must replace, and no temp files may linger.
	if err := WriteFileAtomic(path, []byte(`{"a":2}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries after overwrite, want 1 (no temp leftovers)", len(entries))
	}
}

func TestWriteJSONAtomicRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.json")
	in := map[string]int{"venues": 42}

	if err := WriteJSONAtomic(path, in); err != nil {
		t.Fatalf("WriteJSONAtomic: %v", err)
	}

	var out map[string]int
	if err := ReadJSON(path, &out); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if out["venues"] != 42 {
		t.Errorf("round trip = %v, want venues=42", out)
	}
}

func TestReadJSONMissingFile(t *testing.T) {
	var v map[string]int
	err := ReadJSON(filepath.Join(t.TempDir(), "absent.json"), &v)
	if !os.IsNotExist(err) {
		t.Errorf("ReadJSON on missing file = %v, want os.IsNotExist", err)
	}
}

func writeAged(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestRotateDaily(t *testing.T) {
	now := time.Date(2026, 8, 24, 3, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)

	t.Run("Stale content rotates", func(t *testing.T) {
		l := New(t.TempDir())
		if err := l.EnsureTree(); err != nil {
			t.Fatalf("EnsureTree: %v", err)
		}
		writeAged(t, l.RawPagePath("v1", "aaa"), yesterday)
		writeAged(t, l.TrimmedAllPath("v1"), yesterday)

		res, err := l.RotateDaily(now)
		if err != nil {
			t.Fatalf("RotateDaily: %v", err)
		}
		if !res.RawRotated || !res.TrimmedRotated {
			t.Errorf("result = %+v, want both subtrees rotated", res)
		}
		if !Exists(filepath.Join(l.RawPreviousDir(), "v1", "aaa.html")) {
			t.Error("yesterday's raw page not moved to previous/")
		}
		if Exists(l.RawPagePath("v1", "aaa")) {
			t.Error("today/ still holds yesterday's page")
		}
		if !Exists(l.TrimmedPreviousPath("v1")) {
			t.Error("yesterday's trimmed doc not moved to previous/")
		}
		if !Exists(l.RawTodayDir()) || !Exists(l.TrimmedAllDir()) {
			t.Error("fresh today/ and all/ directories missing after rotation")
		}
	})

	t.Run("Same-day content stays", func(t *testing.T) {
		l := New(t.TempDir())
		if err := l.EnsureTree(); err != nil {
			t.Fatalf("EnsureTree: %v", err)
		}
		writeAged(t, l.RawPagePath("v1", "aaa"), now.Add(-1*time.Hour))

		res, err := l.RotateDaily(now)
		if err != nil {
			t.Fatalf("RotateDaily: %v", err)
		}
		if res.RawRotated {
			t.Error("same-day content must not rotate")
		}
		if !Exists(l.RawPagePath("v1", "aaa")) {
			t.Error("same-day page vanished")
		}
	})

	t.Run("Retiring previous goes to archive", func(t *testing.T) {
		l := New(t.TempDir())
		if err := l.EnsureTree(); err != nil {
			t.Fatalf("EnsureTree: %v", err)
		}
		twoDaysAgo := now.AddDate(0, 0, -2)
		writeAged(t, filepath.Join(l.RawPreviousDir(), "v1", "old.html"), twoDaysAgo)
		writeAged(t, l.RawPagePath("v1", "aaa"), yesterday)

		res, err := l.RotateDaily(now)
		if err != nil {
			t.Fatalf("RotateDaily: %v", err)
		}
		wantArchive := filepath.Join(l.RawArchiveDir(), twoDaysAgo.Format("20060102"))
		if res.ArchivedTo != wantArchive {
			t.Errorf("ArchivedTo = %q, want %q", res.ArchivedTo, wantArchive)
		}
		if !Exists(filepath.Join(wantArchive, "v1", "old.html")) {
			t.Error("retired previous content missing from archive")
		}
	})
}

func TestPruneBackups(t *testing.T) {
	l := New(t.TempDir())
	if err := l.EnsureTree(); err != nil {
		t.Fatalf("EnsureTree: %v", err)
	}

	base := time.Date(2026, 8, 10, 2, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		p := l.BackupPath(base.AddDate(0, 0, i))
		if err := os.WriteFile(p, []byte("{}"), 0644); err != nil {
			t.Fatalf("write backup: %v", err)
		}
	}

	removed, err := l.PruneBackups(7)
	if err != nil {
		t.Fatalf("PruneBackups: %v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}

	entries, _ := os.ReadDir(l.BackupsDir())
	if len(entries) != 7 {
		t.Fatalf("kept %d backups, want 7", len(entries))
	}
	// Oldest three must be the ones gone.
	if entries[0].Name() != "backup-"+base.AddDate(0, 0, 3).Format("20060102-150405")+".json" {
		t.Errorf("oldest kept = %q, want day 3's backup", entries[0].Name())
	}
}

func TestBulkSentinel(t *testing.T) {
	l := New(t.TempDir())
	if err := l.EnsureTree(); err != nil {
		t.Fatalf("EnsureTree: %v", err)
	}

	if l.BulkComplete() {
		t.Error("BulkComplete true before sentinel written")
	}
	if err := l.MarkBulkComplete(time.Now()); err != nil {
		t.Fatalf("MarkBulkComplete: %v", err)
	}
	if !l.BulkComplete() {
		t.Error("BulkComplete false after sentinel written")
	}
}
