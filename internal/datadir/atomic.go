package datadir

import (
	"encoding/json"
	"os"
	"path/filepath"

	errs "venue-intel-pipeline/pkg/errors"
)

// WriteFileAtomic writes data via a temp file in the same directory, fsyncs,
// then renames over the target. Readers see either the old or the new file,
// never a partial one.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errs.NewTransient("datadir.WriteFileAtomic", "cannot create directory", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errs.NewTransient("datadir.WriteFileAtomic", "cannot create temp file", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return errs.NewTransient("datadir.WriteFileAtomic", "write failed", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return errs.NewTransient("datadir.WriteFileAtomic", "fsync failed", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errs.NewTransient("datadir.WriteFileAtomic", "close failed", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errs.NewTransient("datadir.WriteFileAtomic", "rename failed", err)
	}
	return nil
}

// WriteJSONAtomic marshals v (indented, so the files stay diffable) and
// writes it atomically.
func WriteJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errs.NewSchema("datadir.WriteJSONAtomic", "marshal failed for "+path, err)
	}
	return WriteFileAtomic(path, append(data, '\n'))
}

// ReadJSON loads a JSON file into v. Missing files return os.ErrNotExist
// (wrapped) so callers can branch on existence.
func ReadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return err
		}
		return errs.NewTransient("datadir.ReadJSON", "cannot read "+path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errs.NewSchema("datadir.ReadJSON", "cannot parse "+path, err)
	}
	return nil
}

// Exists reports whether a path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
